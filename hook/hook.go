// Package hook provides lifecycle hooks for the transit core. Hooks
// observe trip and payment events to extend functionality: audit
// trails, notifications, reconciliation exports.
package hook

import (
	"context"

	"github.com/mzansipass/transit/id"
	"github.com/mzansipass/transit/trip"
	"github.com/mzansipass/transit/txn"
	"github.com/mzansipass/transit/types"
)

// Hook is the base interface that all hooks must implement.
type Hook interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the core starts.
type OnInit interface {
	Hook
	OnInit(ctx context.Context, core interface{}) error
}

// OnShutdown is called when the core is shutting down.
type OnShutdown interface {
	Hook
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Trip lifecycle hooks
// ──────────────────────────────────────────────────

// OnTripStarted is called after a successful tap-in.
type OnTripStarted interface {
	Hook
	OnTripStarted(ctx context.Context, t *trip.Trip) error
}

// OnTripCompleted is called after a tap-out has closed the trip and
// the fare transaction is on the ledger.
type OnTripCompleted interface {
	Hook
	OnTripCompleted(ctx context.Context, t *trip.Trip, fare *txn.Transaction) error
}

// OnTripCancelled is called when a trip is cancelled administratively.
type OnTripCancelled interface {
	Hook
	OnTripCancelled(ctx context.Context, t *trip.Trip) error
}

// OnTripRefunded is called after a completed trip's fare is reversed.
type OnTripRefunded interface {
	Hook
	OnTripRefunded(ctx context.Context, t *trip.Trip, refund *txn.Transaction) error
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnTopupInitiated is called when a pending top-up is recorded.
type OnTopupInitiated interface {
	Hook
	OnTopupInitiated(ctx context.Context, t *txn.Transaction) error
}

// OnTopupSettled is called by the single verification that credited
// the balance, never on idempotent re-verifies.
type OnTopupSettled interface {
	Hook
	OnTopupSettled(ctx context.Context, t *txn.Transaction) error
}

// OnFaresSettled is called when an agency settlement run marks fares
// settled.
type OnFaresSettled interface {
	Hook
	OnFaresSettled(ctx context.Context, agencyID id.AgencyID, total types.Money, count int64) error
}
