// Package store declares the unified storage interface for the transit
// core. Implementations must provide atomic multi-entity units with
// serializable-or-stronger semantics for the guarded operations; the
// core's money rules depend on it.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mzansipass/transit/account"
	"github.com/mzansipass/transit/agency"
	"github.com/mzansipass/transit/id"
	"github.com/mzansipass/transit/trip"
	"github.com/mzansipass/transit/txn"
	"github.com/mzansipass/transit/types"
)

// Store is the unified storage interface. Single-entity operations come
// from the per-entity slices; the multi-entity mutations below each run
// as one atomic unit — every effect commits together or none do.
type Store interface {
	account.Store
	agency.Store
	trip.Store
	txn.Store

	// CompleteTrip atomically closes an in-progress trip, debits the
	// owner's balance by the fare, and appends the fare transaction.
	// The trip row is guarded by the expected version: a concurrent
	// completion loses with a concurrency conflict (or a no-active-trip
	// error when the trip is already terminal on re-read). A fare
	// exceeding the balance fails with insufficient balance and leaves
	// every row untouched.
	CompleteTrip(ctx context.Context, c TripCompletion) (*trip.Trip, error)

	// SettleTopup performs the one-way, exactly-once pending→success
	// transition for a topup reference and credits the user by the
	// gateway-confirmed amount in the same unit. The transition is a
	// check-and-set guarded by the persisted status: if the record is
	// already final the call reports credited=false and changes
	// nothing, which keeps arbitrary redelivery safe.
	SettleTopup(ctx context.Context, s TopupSettlement) (*txn.Transaction, bool, error)

	// FailTopup marks a pending topup failed and attaches the provider
	// payload. No balance change. Settled records are left alone.
	FailTopup(ctx context.Context, reference string, payload json.RawMessage) (*txn.Transaction, error)

	// Credit atomically increases a user's balance and appends the
	// transaction that justifies it (refunds). The transaction's
	// reference uniqueness makes repeated credits collide instead of
	// paying twice.
	Credit(ctx context.Context, c BalanceCredit) (*account.User, error)

	// SettleAgencyFares marks every unsettled fare transaction for the
	// agency settled, in one unit. Returns the settled gross total
	// (absolute value) and the number of records touched.
	SettleAgencyFares(ctx context.Context, agencyID id.AgencyID, settledAt time.Time) (types.Money, int64, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// TripCompletion is the input to the tap-out atomic unit.
type TripCompletion struct {
	TripID          id.TripID
	ExpectedVersion int64
	End             types.GeoPoint
	EndTime         time.Time
	Fare            types.Money
	Transaction     *txn.Transaction
}

// TopupSettlement is the input to the topup success atomic unit.
// Amount is the gateway-confirmed amount, not the initiated one.
type TopupSettlement struct {
	Reference string
	Amount    types.Money
	Payload   json.RawMessage
}

// BalanceCredit is the input to the credit atomic unit.
type BalanceCredit struct {
	UserID      id.UserID
	Amount      types.Money
	Transaction *txn.Transaction
}
