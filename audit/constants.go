package audit

// Action constants for audit events.
const (
	// Trip actions
	ActionTripStarted   = "trip.started"
	ActionTripCompleted = "trip.completed"
	ActionTripCancelled = "trip.cancelled"
	ActionTripRefunded  = "trip.refunded"

	// Payment actions
	ActionTopupInitiated = "topup.initiated"
	ActionTopupSettled   = "topup.settled"
	ActionFaresSettled   = "fares.settled"
)

// Resource constants for audit events.
const (
	ResourceTrip        = "trip"
	ResourceTransaction = "transaction"
	ResourceAgency      = "agency"
)

// Category constants for audit events.
const (
	CategoryTravel  = "travel"
	CategoryPayment = "payment"
)

// Severity constants for audit events.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
)

// Outcome constants for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// allActions returns all known audit actions.
func allActions() []string {
	return []string{
		ActionTripStarted,
		ActionTripCompleted,
		ActionTripCancelled,
		ActionTripRefunded,
		ActionTopupInitiated,
		ActionTopupSettled,
		ActionFaresSettled,
	}
}
