package campaigns

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"donations/internal/domain"
)

type fakeCampaignRepo struct {
	campaign *domain.Campaign
	ledger   map[string]int64
}

func newFakeCampaignRepo(total int64) *fakeCampaignRepo {
	return &fakeCampaignRepo{
		campaign: &domain.Campaign{
			ID:                  "tunis-open-2026",
			Name:                "2nd Tunis International Open Championships",
			BudgetMinor:         19250000,
			SeedMinor:           110198,
			AmountReceivedMinor: total,
		},
		ledger: map[string]int64{},
	}
}

func (f *fakeCampaignRepo) EnsureTx(ctx context.Context, q domain.Querier, c *domain.Campaign) error {
	if f.campaign == nil {
		cp := *c
		cp.AmountReceivedMinor = c.SeedMinor
		f.campaign = &cp
	}
	return nil
}

func (f *fakeCampaignRepo) Get(ctx context.Context, q domain.Querier, id string) (*domain.Campaign, error) {
	if f.campaign == nil {
		return nil, domain.ErrCampaignNotFound
	}
	cp := *f.campaign
	return &cp, nil
}

func (f *fakeCampaignRepo) AddContributionTx(ctx context.Context, q domain.Querier, c *domain.Contribution) (int64, bool, error) {
	if _, ok := f.ledger[c.Reference]; ok {
		return f.campaign.AmountReceivedMinor, false, nil
	}
	f.ledger[c.Reference] = c.AmountMinor
	f.campaign.AmountReceivedMinor += c.AmountMinor
	return f.campaign.AmountReceivedMinor, true, nil
}

func (f *fakeCampaignRepo) ReconcileTx(ctx context.Context, q domain.Querier, id string) (int64, int64, error) {
	before := f.campaign.AmountReceivedMinor
	after := f.campaign.SeedMinor
	for _, v := range f.ledger {
		after += v
	}
	f.campaign.AmountReceivedMinor = after
	return before, after, nil
}

func testSettings() Settings {
	return Settings{
		ID:          "tunis-open-2026",
		Name:        "2nd Tunis International Open Championships",
		BudgetMinor: 19250000,
		SeedMinor:   110198,
		USDToGHS:    11,
		PresetsGHS:  []float64{50, 100},
	}
}

func TestAdd_SequentialDeltasAccumulate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := newFakeCampaignRepo(110198)
	svc := NewCampaignService(db, repo, testSettings(), zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectCommit()

	_, err = svc.Add(context.Background(), 100, "")
	require.NoError(t, err)
	res, err := svc.Add(context.Background(), 250.5, "")
	require.NoError(t, err)

	assert.True(t, res.Applied)
	assert.Equal(t, int64(110198+10000+25050), repo.campaign.AmountReceivedMinor)
	assert.InDelta(t, 1452.48, res.Total.GHS, 0.001)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdd_RepeatedReferenceIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := newFakeCampaignRepo(0)
	svc := NewCampaignService(db, repo, testSettings(), zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectCommit()

	first, err := svc.Add(context.Background(), 20, "ADJ_manual-1")
	require.NoError(t, err)
	second, err := svc.Add(context.Background(), 20, "ADJ_manual-1")
	require.NoError(t, err)

	assert.True(t, first.Applied)
	assert.False(t, second.Applied)
	assert.Equal(t, int64(2000), repo.campaign.AmountReceivedMinor)
}

func TestAdd_RejectsZeroDelta(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	svc := NewCampaignService(db, newFakeCampaignRepo(0), testSettings(), zap.NewNop())

	_, err = svc.Add(context.Background(), 0, "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestAdd_RejectsDonationReference(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := newFakeCampaignRepo(0)
	svc := NewCampaignService(db, repo, testSettings(), zap.NewNop())

	_, err = svc.Add(context.Background(), 20, "GKF_1700000000000_ABCDEFG")
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Empty(t, repo.ledger)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdd_NegativeTotalRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	svc := NewCampaignService(db, newFakeCampaignRepo(1000), testSettings(), zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err = svc.Add(context.Background(), -50, "")
	assert.ErrorIs(t, err, domain.ErrNegativeTotal)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_ComputesProgressAndUSD(t *testing.T) {
	repo := newFakeCampaignRepo(1925000)
	svc := NewCampaignService(nil, repo, testSettings(), zap.NewNop())

	summary, err := svc.Get(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 19250.0, summary.AmountReceived.GHS)
	assert.Equal(t, 1750.0, summary.AmountReceived.USD)
	assert.Equal(t, 192500.0, summary.Budget.GHS)
	assert.Equal(t, 173250.0, summary.Outstanding.GHS)
	assert.Equal(t, 10.0, summary.Progress)
}

func TestRecordDonationTx(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	t.Run("tracked sponsorship counts once", func(t *testing.T) {
		repo := newFakeCampaignRepo(0)
		svc := NewCampaignService(nil, repo, testSettings(), zap.NewNop())
		md := domain.DonationMetadata{DonationType: domain.SponsorshipType}

		applied, err := svc.RecordDonationTx(context.Background(), nil, "GKF_1", 5000, "GHS", md, now)
		require.NoError(t, err)
		assert.True(t, applied)

		applied, err = svc.RecordDonationTx(context.Background(), nil, "GKF_1", 5000, "GHS", md, now)
		require.NoError(t, err)
		assert.False(t, applied)
		assert.Equal(t, int64(5000), repo.campaign.AmountReceivedMinor)
	})

	t.Run("general donation is ignored", func(t *testing.T) {
		repo := newFakeCampaignRepo(0)
		svc := NewCampaignService(nil, repo, testSettings(), zap.NewNop())
		md := domain.DonationMetadata{DonationType: domain.DefaultDonationType, Campaign: domain.DefaultCampaign}

		applied, err := svc.RecordDonationTx(context.Background(), nil, "GKF_2", 5000, "GHS", md, now)
		require.NoError(t, err)
		assert.False(t, applied)
		assert.Empty(t, repo.ledger)
	})

	t.Run("usd is converted", func(t *testing.T) {
		repo := newFakeCampaignRepo(0)
		svc := NewCampaignService(nil, repo, testSettings(), zap.NewNop())
		md := domain.DonationMetadata{Campaign: testSettings().Name}

		_, err := svc.RecordDonationTx(context.Background(), nil, "GKF_3", 1000, "USD", md, now)
		require.NoError(t, err)
		assert.Equal(t, int64(11000), repo.campaign.AmountReceivedMinor)
	})
}

func TestReconcile_ReportsDrift(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := newFakeCampaignRepo(500)
	repo.ledger["GKF_a"] = 1000
	svc := NewCampaignService(db, repo, testSettings(), zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectCommit()

	before, after, err := svc.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(500), before)
	assert.Equal(t, int64(111198), after)
}

func TestCreditDonation_CountsOnceInOwnTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := newFakeCampaignRepo(0)
	svc := NewCampaignService(db, repo, testSettings(), zap.NewNop())
	credit := domain.CampaignCredit{
		Reference:    "GKF_1_RETRY",
		AmountMinor:  5000,
		Currency:     "GHS",
		DonationType: domain.SponsorshipType,
		PaidAt:       time.Date(2026, 10, 1, 9, 30, 0, 0, time.UTC),
	}

	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectCommit()

	require.NoError(t, svc.CreditDonation(context.Background(), credit))
	require.NoError(t, svc.CreditDonation(context.Background(), credit))

	assert.Equal(t, int64(5000), repo.campaign.AmountReceivedMinor)
	assert.Equal(t, int64(5000), repo.ledger["GKF_1_RETRY"])
	require.NoError(t, mock.ExpectationsWereMet())
}
