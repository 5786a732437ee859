package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"donations/internal/domain"
)

type DonationRepository struct{}

func NewDonationRepository() *DonationRepository {
	return &DonationRepository{}
}

func (r *DonationRepository) UpsertTx(ctx context.Context, querier domain.Querier, d *domain.Donation) (bool, error) {
	query := `
		INSERT INTO donations (
			reference, email, amount_minor, currency, status, anonymous, donation_type, campaign,
			donor_name, metadata, payment_channel, gateway_response, event_id,
			created_at, verified_at, paid_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (reference) DO UPDATE SET
			status = EXCLUDED.status,
			email = COALESCE(NULLIF(EXCLUDED.email, ''), donations.email),
			amount_minor = EXCLUDED.amount_minor,
			currency = EXCLUDED.currency,
			anonymous = EXCLUDED.anonymous,
			donation_type = EXCLUDED.donation_type,
			campaign = EXCLUDED.campaign,
			donor_name = EXCLUDED.donor_name,
			metadata = EXCLUDED.metadata,
			payment_channel = EXCLUDED.payment_channel,
			gateway_response = EXCLUDED.gateway_response,
			event_id = COALESCE(NULLIF(EXCLUDED.event_id, ''), donations.event_id),
			verified_at = COALESCE(EXCLUDED.verified_at, donations.verified_at),
			paid_at = COALESCE(EXCLUDED.paid_at, donations.paid_at),
			updated_at = EXCLUDED.updated_at
		WHERE donations.status <> 'PAID' OR EXCLUDED.status = 'PAID'
		RETURNING reference
	`
	var ref string
	err := querier.QueryRowContext(ctx, query,
		d.Reference,
		d.Email,
		d.AmountMinor,
		d.Currency,
		string(d.Status),
		d.Anonymous,
		d.DonationType,
		d.Campaign,
		d.DonorName,
		metadataParam(d.Metadata),
		d.PaymentChannel,
		d.GatewayResponse,
		d.EventID,
		d.CreatedAt,
		d.VerifiedAt,
		d.PaidAt,
		d.UpdatedAt,
	).Scan(&ref)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to upsert donation %s: %w", d.Reference, err)
	}
	return true, nil
}

func (r *DonationRepository) GetByReference(ctx context.Context, querier domain.Querier, reference string) (*domain.Donation, error) {
	query := `
		SELECT reference, email, amount_minor, currency, status, anonymous, donation_type, campaign,
			donor_name, metadata, payment_channel, gateway_response, event_id,
			created_at, verified_at, paid_at, updated_at
		FROM donations
		WHERE reference = $1
	`
	d := &domain.Donation{}
	var status string
	var metadata []byte
	var verifiedAt, paidAt sql.NullTime
	err := querier.QueryRowContext(ctx, query, reference).Scan(
		&d.Reference,
		&d.Email,
		&d.AmountMinor,
		&d.Currency,
		&status,
		&d.Anonymous,
		&d.DonationType,
		&d.Campaign,
		&d.DonorName,
		&metadata,
		&d.PaymentChannel,
		&d.GatewayResponse,
		&d.EventID,
		&d.CreatedAt,
		&verifiedAt,
		&paidAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrDonationNotFound
		}
		return nil, fmt.Errorf("failed to get donation %s: %w", reference, err)
	}
	d.Status = domain.DonationStatus(status)
	if len(metadata) > 0 {
		d.Metadata = json.RawMessage(metadata)
	}
	if verifiedAt.Valid {
		d.VerifiedAt = &verifiedAt.Time
	}
	if paidAt.Valid {
		d.PaidAt = &paidAt.Time
	}
	return d, nil
}

// metadataParam passes JSON as text; lib/pq would send []byte as bytea.
func metadataParam(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}
