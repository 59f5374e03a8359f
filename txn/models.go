// Package txn defines the append-only financial ledger records. A
// transaction is created once; only a topup's status may move from
// pending to a final state, and nothing else about a committed record
// ever changes.
package txn

import (
	"encoding/json"
	"time"

	"github.com/mzansipass/transit/fare"
	"github.com/mzansipass/transit/id"
	"github.com/mzansipass/transit/types"
)

// Type classifies a ledger record.
type Type string

const (
	TypeTopup  Type = "topup"
	TypeFare   Type = "fare"
	TypeRefund Type = "refund"
)

// Status is a transaction's settlement state. Fare and refund records
// are final at creation; only topups start pending.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Transaction is one immutable financial fact. Amounts are signed from
// the passenger's point of view: fares are negative, topups and refunds
// positive.
type Transaction struct {
	types.Entity
	ID       id.TransactionID `json:"id"`
	UserID   id.UserID        `json:"user_id"`
	AgencyID id.AgencyID      `json:"agency_id,omitempty"` // Nil for topups
	Amount   types.Money      `json:"amount"`
	Type     Type             `json:"type"`
	Status   Status           `json:"status"`

	// Reference is the unique idempotency key. Collisions are rejected
	// by the store.
	Reference string `json:"reference"`

	Meta Meta `json:"meta"`

	// Settled marks a fare as reconciled with its agency.
	Settled   bool       `json:"settled"`
	SettledAt *time.Time `json:"settled_at,omitempty"`
}

// Meta is the per-type metadata union. Exactly one branch is set,
// matching Type.
type Meta struct {
	Fare   *FareMeta   `json:"fare,omitempty"`
	Topup  *TopupMeta  `json:"topup,omitempty"`
	Refund *RefundMeta `json:"refund,omitempty"`
}

// FareMeta links a fare debit to its trip and pricing breakdown.
type FareMeta struct {
	TripID    id.TripID       `json:"trip_id"`
	Breakdown *fare.Breakdown `json:"breakdown,omitempty"`
}

// TopupMeta carries the raw gateway payload for audit. The core treats
// everything beyond status and amount as opaque.
type TopupMeta struct {
	GatewayPayload json.RawMessage `json:"gateway_payload,omitempty"`
}

// RefundMeta links a refund credit back to the refunded trip.
type RefundMeta struct {
	TripID id.TripID `json:"trip_id"`
	Reason string    `json:"reason,omitempty"`
}

// NewFare builds the debit record for a completed trip. The stored
// amount is negative; fareAmount must be the positive fare.
func NewFare(userID id.UserID, agencyID id.AgencyID, fareAmount types.Money, reference string, meta FareMeta) *Transaction {
	return &Transaction{
		Entity:    types.NewEntity(),
		ID:        id.NewTransactionID(),
		UserID:    userID,
		AgencyID:  agencyID,
		Amount:    fareAmount.Negate(),
		Type:      TypeFare,
		Status:    StatusSuccess,
		Reference: reference,
		Meta:      Meta{Fare: &meta},
	}
}

// NewTopup builds a pending top-up record awaiting gateway verification.
func NewTopup(userID id.UserID, amount types.Money, reference string) *Transaction {
	return &Transaction{
		Entity:    types.NewEntity(),
		ID:        id.NewTransactionID(),
		UserID:    userID,
		Amount:    amount,
		Type:      TypeTopup,
		Status:    StatusPending,
		Reference: reference,
		Meta:      Meta{Topup: &TopupMeta{}},
	}
}

// NewRefund builds the credit record reversing a trip's fare.
func NewRefund(userID id.UserID, agencyID id.AgencyID, amount types.Money, reference string, meta RefundMeta) *Transaction {
	return &Transaction{
		Entity:    types.NewEntity(),
		ID:        id.NewTransactionID(),
		UserID:    userID,
		AgencyID:  agencyID,
		Amount:    amount,
		Type:      TypeRefund,
		Status:    StatusSuccess,
		Reference: reference,
		Meta:      Meta{Refund: &meta},
	}
}

// Final reports whether the record's status can no longer change.
func (t *Transaction) Final() bool {
	return t.Status == StatusSuccess || t.Status == StatusFailed
}
