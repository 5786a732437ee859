package campaigns

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"donations/internal/domain"
	"donations/internal/repository/campaign_repo"
	"donations/internal/util"
)

type Settings struct {
	ID          string
	Name        string
	BudgetMinor int64
	SeedMinor   int64
	USDToGHS    float64
	PresetsGHS  []float64
}

type Amounts struct {
	GHS float64 `json:"ghs"`
	USD float64 `json:"usd"`
}

type Summary struct {
	CampaignID     string
	Name           string
	AmountReceived Amounts
	Budget         Amounts
	Outstanding    Amounts
	Progress       float64
	Presets        []float64
	UpdatedAt      time.Time
}

type AdjustResult struct {
	Reference string
	Applied   bool
	Total     Amounts
}

type CampaignService interface {
	Ensure(ctx context.Context) error
	Get(ctx context.Context) (*Summary, error)
	// Add applies a manual delta in GHS. reference makes the call idempotent;
	// an empty reference gets a generated one.
	Add(ctx context.Context, amountGHS float64, reference string) (*AdjustResult, error)
	Reconcile(ctx context.Context) (before, after int64, err error)
	// RecordDonationTx counts a paid donation toward the tracked campaign
	// inside the caller's transaction. Untracked donations are ignored.
	RecordDonationTx(ctx context.Context, querier domain.Querier, reference string, amountMinor int64, currency string, md domain.DonationMetadata, now time.Time) (bool, error)
	// CreditDonation is RecordDonationTx in a transaction of its own, for
	// credits deferred through the outbox.
	CreditDonation(ctx context.Context, credit domain.CampaignCredit) error
}

type campaignService struct {
	db       *sql.DB
	repo     campaign_repo.CampaignRepository
	settings Settings
	logger   *zap.Logger
}

func NewCampaignService(db *sql.DB, repo campaign_repo.CampaignRepository, settings Settings, logger *zap.Logger) CampaignService {
	return &campaignService{
		db:       db,
		repo:     repo,
		settings: settings,
		logger:   logger,
	}
}

func (s *campaignService) Ensure(ctx context.Context) error {
	c := &domain.Campaign{
		ID:          s.settings.ID,
		Name:        s.settings.Name,
		BudgetMinor: s.settings.BudgetMinor,
		SeedMinor:   s.settings.SeedMinor,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := s.repo.EnsureTx(ctx, s.db, c); err != nil {
		return err
	}
	s.logger.Info("Campaign ensured", zap.String("campaign_id", c.ID), zap.String("name", c.Name))
	return nil
}

func (s *campaignService) Get(ctx context.Context) (*Summary, error) {
	c, err := s.repo.Get(ctx, s.db, s.settings.ID)
	if err != nil {
		return nil, err
	}

	received := domain.FromMinorUnits(c.AmountReceivedMinor)
	budget := domain.FromMinorUnits(c.BudgetMinor)
	outstanding := math.Max(budget-received, 0)

	progress := 0.0
	if c.BudgetMinor > 0 {
		progress = round2(float64(c.AmountReceivedMinor) / float64(c.BudgetMinor) * 100)
	}

	return &Summary{
		CampaignID:     c.ID,
		Name:           c.Name,
		AmountReceived: s.amounts(received),
		Budget:         s.amounts(budget),
		Outstanding:    s.amounts(outstanding),
		Progress:       progress,
		Presets:        s.settings.PresetsGHS,
		UpdatedAt:      c.UpdatedAt,
	}, nil
}

func (s *campaignService) Add(ctx context.Context, amountGHS float64, reference string) (*AdjustResult, error) {
	if math.IsNaN(amountGHS) || math.IsInf(amountGHS, 0) {
		return nil, domain.NewValidationError("Invalid amount")
	}
	delta := domain.ToMinorUnits(amountGHS)
	if delta == 0 {
		return nil, domain.NewValidationError("Invalid amount")
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		reference = util.GenerateAdjustmentReference()
	}
	// Donation references key their own ledger rows.
	if util.IsDonationReference(reference) {
		return nil, domain.NewValidationError("Invalid adjustment reference")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	total, applied, err := s.repo.AddContributionTx(ctx, tx, &domain.Contribution{
		Reference:   reference,
		CampaignID:  s.settings.ID,
		AmountMinor: delta,
		Source:      domain.ContributionSourceAdjustment,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if total < 0 {
		tx.Rollback()
		return nil, domain.ErrNegativeTotal
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit campaign adjustment: %w", err)
	}

	s.logger.Info("Campaign total adjusted",
		zap.String("campaign_id", s.settings.ID),
		zap.String("reference", reference),
		zap.Bool("applied", applied),
		zap.Int64("delta_minor", delta),
		zap.Int64("total_minor", total),
	)

	return &AdjustResult{
		Reference: reference,
		Applied:   applied,
		Total:     s.amounts(domain.FromMinorUnits(total)),
	}, nil
}

func (s *campaignService) Reconcile(ctx context.Context) (int64, int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	before, after, err := s.repo.ReconcileTx(ctx, tx, s.settings.ID)
	if err != nil {
		tx.Rollback()
		return 0, 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit reconcile: %w", err)
	}

	if before != after {
		s.logger.Warn("Campaign total drifted from ledger, corrected",
			zap.String("campaign_id", s.settings.ID),
			zap.Int64("before_minor", before),
			zap.Int64("after_minor", after),
		)
	} else {
		s.logger.Info("Campaign total matches ledger", zap.String("campaign_id", s.settings.ID), zap.Int64("total_minor", after))
	}
	return before, after, nil
}

func (s *campaignService) RecordDonationTx(ctx context.Context, querier domain.Querier, reference string, amountMinor int64, currency string, md domain.DonationMetadata, now time.Time) (bool, error) {
	if !md.IsTrackedCampaign(s.settings.Name) {
		return false, nil
	}

	ghsMinor, ok := s.toGHSMinor(amountMinor, currency)
	if !ok {
		s.logger.Warn("Skipping campaign contribution in unsupported currency",
			zap.String("reference", reference),
			zap.String("currency", currency),
		)
		return false, nil
	}

	total, applied, err := s.repo.AddContributionTx(ctx, querier, &domain.Contribution{
		Reference:   reference,
		CampaignID:  s.settings.ID,
		AmountMinor: ghsMinor,
		Source:      domain.ContributionSourceDonation,
		CreatedAt:   now,
	})
	if err != nil {
		if errors.Is(err, domain.ErrCampaignNotFound) {
			return false, fmt.Errorf("tracked campaign %s is missing: %w", s.settings.ID, err)
		}
		return false, err
	}
	if applied {
		s.logger.Info("Campaign total updated",
			zap.String("campaign_id", s.settings.ID),
			zap.String("reference", reference),
			zap.Float64("added_ghs", domain.FromMinorUnits(ghsMinor)),
			zap.Float64("total_ghs", domain.FromMinorUnits(total)),
		)
	}
	return applied, nil
}

func (s *campaignService) CreditDonation(ctx context.Context, credit domain.CampaignCredit) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	md := domain.DonationMetadata{DonationType: credit.DonationType, Campaign: credit.Campaign}
	if _, err := s.RecordDonationTx(ctx, tx, credit.Reference, credit.AmountMinor, credit.Currency, md, credit.PaidAt); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit campaign credit for %s: %w", credit.Reference, err)
	}
	return nil
}

func (s *campaignService) toGHSMinor(amountMinor int64, currency string) (int64, bool) {
	switch strings.ToUpper(currency) {
	case "", domain.DefaultCurrency:
		return amountMinor, true
	case "USD":
		return int64(math.Round(float64(amountMinor) * s.settings.USDToGHS)), true
	default:
		return 0, false
	}
}

func (s *campaignService) amounts(ghs float64) Amounts {
	usd := 0.0
	if s.settings.USDToGHS > 0 {
		usd = round2(ghs / s.settings.USDToGHS)
	}
	return Amounts{GHS: round2(ghs), USD: usd}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
