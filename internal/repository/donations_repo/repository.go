package donations_repo

import (
	"context"

	"donations/internal/domain"
)

type DonationRepository interface {
	// UpsertTx inserts or updates by reference. It reports false when the
	// write was skipped because the stored donation is already PAID.
	UpsertTx(ctx context.Context, querier domain.Querier, donation *domain.Donation) (bool, error)
	GetByReference(ctx context.Context, querier domain.Querier, reference string) (*domain.Donation, error)
}
