package transit

import (
	"errors"
	"fmt"

	"github.com/mzansipass/transit/account"
	"github.com/mzansipass/transit/fare"
	"github.com/mzansipass/transit/gateway"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound     = errors.New("transit: not found")
	ErrInvalidInput = errors.New("transit: invalid input")

	// Account errors
	ErrUserNotFound   = errors.New("transit: user not found")
	ErrCardNotFound   = errors.New("transit: card not found")
	ErrAgencyNotFound = errors.New("transit: agency not found")
	ErrAgencyInactive = errors.New("transit: agency inactive")
	ErrAgencyExists   = errors.New("transit: agency code already registered")
	ErrUserExists     = errors.New("transit: email already registered")
	ErrCardExists     = errors.New("transit: card token already issued")

	// Trip errors
	ErrActiveTripConflict  = errors.New("transit: trip already in progress for this card")
	ErrNoActiveTrip        = errors.New("transit: no active trip for this card")
	ErrTripNotFound        = errors.New("transit: trip not found")
	ErrTripNotRefundable   = errors.New("transit: trip has no completed fare to refund")
	ErrConcurrencyConflict = errors.New("transit: concurrent update lost, retry")

	// Ledger errors
	ErrTransactionNotFound = errors.New("transit: transaction not found")
	ErrDuplicateReference  = errors.New("transit: transaction reference already used")

	// Store errors
	ErrStoreClosed = errors.New("transit: store is closed")

	// ErrNoGateway is returned when a top-up operation is called on a
	// core built without a payment gateway.
	ErrNoGateway = errors.New("transit: no payment gateway configured")
)

// Re-exported domain sentinels so callers can classify everything from
// one package.
var (
	// ErrInvalidAmount rejects non-positive monetary amounts.
	ErrInvalidAmount = account.ErrInvalidAmount

	// ErrInsufficientBalance covers both the tap-in floor gate and a
	// fare or debit exceeding the balance.
	ErrInsufficientBalance = account.ErrInsufficientBalance

	// ErrUnsupportedAgency is returned by the fare engine for agency
	// codes outside the closed set.
	ErrUnsupportedAgency = fare.ErrUnsupportedAgency

	// ErrGateway covers payment provider failures and timeouts after
	// the bounded retry budget is exhausted.
	ErrGateway = gateway.ErrGateway
)

// ValidationError represents a malformed-input failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("transit: validation failed for %s: %s", e.Field, e.Message)
}

// IsNotFound returns true if the error is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrCardNotFound) ||
		errors.Is(err, ErrAgencyNotFound) ||
		errors.Is(err, ErrTripNotFound) ||
		errors.Is(err, ErrTransactionNotFound)
}

// IsConflict returns true if the error is a state conflict the caller
// caused by racing itself or replaying a reference.
func IsConflict(err error) bool {
	return errors.Is(err, ErrActiveTripConflict) ||
		errors.Is(err, ErrNoActiveTrip) ||
		errors.Is(err, ErrDuplicateReference) ||
		errors.Is(err, ErrConcurrencyConflict)
}

// IsRetryable returns true if the operation may succeed when repeated.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict) ||
		errors.Is(err, ErrGateway)
}
