// Package trip defines the tap-in/tap-out trip entity and its state
// machine: in_progress → completed or in_progress → cancelled, with no
// way out of a terminal state.
package trip

import (
	"errors"
	"fmt"
	"time"

	"github.com/mzansipass/transit/id"
	"github.com/mzansipass/transit/types"
)

// Status is a trip's lifecycle state.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// ErrTerminalState is returned when a transition is attempted on a trip
// that already reached completed or cancelled.
var ErrTerminalState = errors.New("trip: already in a terminal state")

// Trip is a single passenger journey. It is created on tap-in, mutated
// exactly once on tap-out (or cancellation), and never deleted.
type Trip struct {
	types.Entity
	ID        id.TripID      `json:"id"`
	UserID    id.UserID      `json:"user_id"`
	AgencyID  id.AgencyID    `json:"agency_id"`
	CardToken string         `json:"card_token"`
	Reference string         `json:"reference"`
	Start     types.GeoPoint `json:"start"`
	StartTime time.Time      `json:"start_time"`
	End       *types.GeoPoint `json:"end,omitempty"`
	EndTime   *time.Time     `json:"end_time,omitempty"`
	Fare      types.Money    `json:"fare"`
	Status    Status         `json:"status"`

	// Version guards against two concurrent tap-outs both closing the
	// same trip. Stores bump it on every committed mutation.
	Version int64 `json:"version"`
}

// New creates an in-progress trip starting now at the given point.
func New(userID id.UserID, agencyID id.AgencyID, cardToken, reference string, start types.GeoPoint, startTime time.Time) *Trip {
	return &Trip{
		Entity:    types.NewEntity(),
		ID:        id.NewTripID(),
		UserID:    userID,
		AgencyID:  agencyID,
		CardToken: cardToken,
		Reference: reference,
		Start:     start,
		StartTime: startTime.UTC(),
		Fare:      types.Zero("zar"),
		Status:    StatusInProgress,
		Version:   1,
	}
}

// Active reports whether the trip is still open.
func (t *Trip) Active() bool {
	return t.Status == StatusInProgress
}

// Complete closes the trip with its end point, end time, and fare.
// Fails if the trip is already terminal or the fare is negative.
func (t *Trip) Complete(end types.GeoPoint, endTime time.Time, fare types.Money) error {
	if !t.Active() {
		return fmt.Errorf("%w: %s", ErrTerminalState, t.Status)
	}
	if fare.IsNegative() {
		return fmt.Errorf("trip: fare cannot be negative: %s", fare)
	}

	et := endTime.UTC()
	t.End = &end
	t.EndTime = &et
	t.Fare = fare
	t.Status = StatusCompleted
	t.Version++
	t.Touch()
	return nil
}

// Cancel closes the trip administratively. No money moves.
func (t *Trip) Cancel(at time.Time) error {
	if !t.Active() {
		return fmt.Errorf("%w: %s", ErrTerminalState, t.Status)
	}

	et := at.UTC()
	t.EndTime = &et
	t.Status = StatusCancelled
	t.Version++
	t.Touch()
	return nil
}
