package campaign_repo

import (
	"context"

	"donations/internal/domain"
)

type CampaignRepository interface {
	// EnsureTx creates the campaign with its seed amount, or refreshes name and
	// budget of an existing one without touching the received total.
	EnsureTx(ctx context.Context, querier domain.Querier, campaign *domain.Campaign) error
	Get(ctx context.Context, querier domain.Querier, id string) (*domain.Campaign, error)
	// AddContributionTx records the ledger row and increments the counter in
	// one statement pair. A reference already in the ledger is not counted
	// again and applied is false.
	AddContributionTx(ctx context.Context, querier domain.Querier, contribution *domain.Contribution) (total int64, applied bool, err error)
	// ReconcileTx rebuilds the counter from seed plus ledger sum.
	ReconcileTx(ctx context.Context, querier domain.Querier, id string) (before, after int64, err error)
}
