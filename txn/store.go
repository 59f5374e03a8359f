package txn

import (
	"context"

	"github.com/mzansipass/transit/id"
)

// Store is the transaction slice of the unified storage interface.
// Settlement transitions and balance-coupled writes live on the unified
// store's atomic units.
type Store interface {
	// RecordTransaction appends a new ledger record. A reference
	// collision fails with a duplicate-reference conflict.
	RecordTransaction(ctx context.Context, t *Transaction) error

	GetTransaction(ctx context.Context, txnID id.TransactionID) (*Transaction, error)
	GetTransactionByReference(ctx context.Context, reference string) (*Transaction, error)
	ListTransactions(ctx context.Context, userID id.UserID, opts ListOpts) ([]*Transaction, error)
}

// ListOpts filters and pages a user's ledger history.
type ListOpts struct {
	Type   Type
	Limit  int
	Offset int
}
