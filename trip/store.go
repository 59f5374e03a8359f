package trip

import (
	"context"

	"github.com/mzansipass/transit/id"
)

// Store is the trip slice of the unified storage interface. The
// multi-entity tap-out unit lives on the unified store, not here.
type Store interface {
	// CreateTrip persists a new in-progress trip. The store enforces at
	// most one in-progress trip per (user, card); the loser of a
	// concurrent tap-in race fails with an active-trip conflict.
	CreateTrip(ctx context.Context, t *Trip) error

	GetTrip(ctx context.Context, tripID id.TripID) (*Trip, error)

	// ActiveTrip returns the single in-progress trip for a user+card
	// pair, or a no-active-trip error.
	ActiveTrip(ctx context.Context, userID id.UserID, cardToken string) (*Trip, error)

	ListTrips(ctx context.Context, agencyID id.AgencyID, opts ListOpts) ([]*Trip, error)

	// CancelTrip transitions an in-progress trip to cancelled, guarded
	// by the expected version.
	CancelTrip(ctx context.Context, tripID id.TripID, expectedVersion int64) (*Trip, error)
}

// ListOpts filters and pages agency trip listings.
type ListOpts struct {
	Status Status
	Limit  int
	Offset int
}
