package transit

import (
	"github.com/mzansipass/transit/id"
	"github.com/mzansipass/transit/types"
)

// Re-export common types for convenience so users don't have to import types package.

// Money is re-exported from types package.
type Money = types.Money

// Entity is re-exported from types package.
type Entity = types.Entity

// GeoPoint is re-exported from types package.
type GeoPoint = types.GeoPoint

// Re-export Money constructors
var (
	ZAR  = types.ZAR
	Zero = types.Zero
	Sum  = types.Sum
)

// Re-export Entity constructor
var NewEntity = types.NewEntity

// Re-export identifier types so callers can hold IDs without importing id.
type (
	UserID        = id.UserID
	CardID        = id.CardID
	AgencyID      = id.AgencyID
	TripID        = id.TripID
	TransactionID = id.TransactionID
)
