package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"donations/internal/domain"
)

type CampaignRepository struct{}

func NewCampaignRepository() *CampaignRepository {
	return &CampaignRepository{}
}

func (r *CampaignRepository) EnsureTx(ctx context.Context, querier domain.Querier, c *domain.Campaign) error {
	query := `
		INSERT INTO campaigns (id, name, budget_minor, seed_minor, amount_received_minor, updated_at)
		VALUES ($1, $2, $3, $4, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			budget_minor = EXCLUDED.budget_minor,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := querier.ExecContext(ctx, query, c.ID, c.Name, c.BudgetMinor, c.SeedMinor, c.UpdatedAt); err != nil {
		return fmt.Errorf("failed to ensure campaign %s: %w", c.ID, err)
	}
	return nil
}

func (r *CampaignRepository) Get(ctx context.Context, querier domain.Querier, id string) (*domain.Campaign, error) {
	query := `
		SELECT id, name, budget_minor, seed_minor, amount_received_minor, updated_at
		FROM campaigns
		WHERE id = $1
	`
	c := &domain.Campaign{}
	err := querier.QueryRowContext(ctx, query, id).Scan(
		&c.ID,
		&c.Name,
		&c.BudgetMinor,
		&c.SeedMinor,
		&c.AmountReceivedMinor,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCampaignNotFound
		}
		return nil, fmt.Errorf("failed to get campaign %s: %w", id, err)
	}
	return c, nil
}

func (r *CampaignRepository) AddContributionTx(ctx context.Context, querier domain.Querier, c *domain.Contribution) (int64, bool, error) {
	insert := `
		INSERT INTO campaign_contributions (reference, campaign_id, amount_minor, source, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (reference) DO NOTHING
	`
	res, err := querier.ExecContext(ctx, insert, c.Reference, c.CampaignID, c.AmountMinor, string(c.Source), c.CreatedAt)
	if err != nil {
		return 0, false, fmt.Errorf("failed to record contribution %s: %w", c.Reference, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("failed to get rows affected for contribution: %w", err)
	}
	if n == 0 {
		current, err := r.Get(ctx, querier, c.CampaignID)
		if err != nil {
			return 0, false, err
		}
		return current.AmountReceivedMinor, false, nil
	}

	update := `
		UPDATE campaigns
		SET amount_received_minor = amount_received_minor + $1, updated_at = $2
		WHERE id = $3
		RETURNING amount_received_minor
	`
	var total int64
	if err := querier.QueryRowContext(ctx, update, c.AmountMinor, c.CreatedAt, c.CampaignID).Scan(&total); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, domain.ErrCampaignNotFound
		}
		return 0, false, fmt.Errorf("failed to increment campaign %s: %w", c.CampaignID, err)
	}
	return total, true, nil
}

func (r *CampaignRepository) ReconcileTx(ctx context.Context, querier domain.Querier, id string) (int64, int64, error) {
	var before, seed int64
	lock := `SELECT amount_received_minor, seed_minor FROM campaigns WHERE id = $1 FOR UPDATE`
	if err := querier.QueryRowContext(ctx, lock, id).Scan(&before, &seed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, domain.ErrCampaignNotFound
		}
		return 0, 0, fmt.Errorf("failed to lock campaign %s: %w", id, err)
	}

	var sum int64
	total := `SELECT COALESCE(SUM(amount_minor), 0) FROM campaign_contributions WHERE campaign_id = $1`
	if err := querier.QueryRowContext(ctx, total, id).Scan(&sum); err != nil {
		return 0, 0, fmt.Errorf("failed to sum contributions for %s: %w", id, err)
	}

	after := seed + sum
	update := `UPDATE campaigns SET amount_received_minor = $1, updated_at = $2 WHERE id = $3`
	if _, err := querier.ExecContext(ctx, update, after, time.Now().UTC(), id); err != nil {
		return 0, 0, fmt.Errorf("failed to store reconciled total for %s: %w", id, err)
	}
	return before, after, nil
}
