package agency

import (
	"context"

	"github.com/mzansipass/transit/id"
)

// Store is the agency slice of the unified storage interface.
type Store interface {
	CreateAgency(ctx context.Context, a *Agency) error
	GetAgency(ctx context.Context, agencyID id.AgencyID) (*Agency, error)
	GetAgencyByCode(ctx context.Context, code Code) (*Agency, error)
}
