package txn

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"

	"github.com/mzansipass/transit/id"
)

// NewFareReference returns a fresh unique reference for a fare debit,
// e.g. "fare_9f4c...".
func NewFareReference() string {
	return "fare_" + randomHex()
}

// NewTopupReference returns a fresh unique reference for a payment
// session, e.g. "ps_3b1a...". The gateway echoes it back on verify.
func NewTopupReference() string {
	return "ps_" + randomHex()
}

// RefundReference derives the reference for refunding a trip. It is
// deterministic so a second refund of the same trip collides on the
// ledger's uniqueness constraint instead of paying out twice.
func RefundReference(tripID id.TripID) string {
	return fmt.Sprintf("rfnd_%s", tripID)
}

func randomHex() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}
