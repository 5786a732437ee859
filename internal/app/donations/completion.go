package donations

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"donations/internal/domain"
	"donations/internal/infrastructure/paystack"
	"donations/internal/outbox"
)

// recordPaidTx persists a successful charge and its side effects. Verify and
// the webhook both call it; the ledger and outbox dedup keys make the second
// call a no-op for the campaign total, the receipt and the analytics event.
func (s *donationService) recordPaidTx(ctx context.Context, tx *sql.Tx, txn *paystack.Transaction, md domain.DonationMetadata, eventID string, now time.Time) error {
	paidAt := txn.PaidAt
	if paidAt == nil {
		paidAt = &now
	}
	email := txn.Customer.PrimaryEmail()

	donation := &domain.Donation{
		Reference:       txn.Reference,
		Email:           email,
		AmountMinor:     txn.Amount,
		Currency:        txn.Currency,
		Status:          domain.DonationStatusPaid,
		Anonymous:       md.Anonymous,
		DonationType:    md.DonationType,
		Campaign:        md.Campaign,
		DonorName:       md.DonorName,
		Metadata:        txn.Metadata,
		PaymentChannel:  txn.Channel,
		GatewayResponse: txn.GatewayResponse,
		EventID:         eventID,
		CreatedAt:       now,
		VerifiedAt:      &now,
		PaidAt:          paidAt,
		UpdatedAt:       now,
	}
	if _, err := s.donationsRepo.UpsertTx(ctx, tx, donation); err != nil {
		return fmt.Errorf("failed to save donation %s: %w", txn.Reference, err)
	}

	if err := s.creditCampaignTx(ctx, tx, txn, md, *paidAt, now); err != nil {
		return err
	}

	if email != "" {
		donorName := md.DonorName
		if md.Anonymous {
			donorName = ""
		}
		receipt, err := outbox.NewReceiptMessage(domain.ReceiptPayload{
			Email:        email,
			Amount:       domain.FromMinorUnits(txn.Amount),
			Currency:     txn.Currency,
			Reference:    txn.Reference,
			DonationType: md.DonationType,
			DonorName:    donorName,
			PaidAt:       paidAt,
		}, now)
		if err != nil {
			return err
		}
		if err := s.enqueue(ctx, tx, receipt); err != nil {
			return err
		}
	} else {
		s.logger.Warn("Paid donation has no customer email, skipping receipt", zap.String("reference", txn.Reference))
	}

	return s.enqueueEvent(ctx, tx, domain.DonationEvent{
		Event:        domain.MessageTypeDonationCompleted,
		Reference:    txn.Reference,
		Amount:       domain.FromMinorUnits(txn.Amount),
		Currency:     txn.Currency,
		DonationType: md.DonationType,
		Campaign:     md.Campaign,
		Channel:      txn.Channel,
		Timestamp:    now,
	})
}

// creditCampaignTx counts the donation toward the campaign inside a savepoint.
// When that fails only the savepoint is rolled back and the credit is queued
// in the outbox, so the paid donation still commits.
func (s *donationService) creditCampaignTx(ctx context.Context, tx *sql.Tx, txn *paystack.Transaction, md domain.DonationMetadata, paidAt, now time.Time) error {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT campaign_total"); err != nil {
		return fmt.Errorf("failed to open campaign savepoint: %w", err)
	}

	_, creditErr := s.campaigns.RecordDonationTx(ctx, tx, txn.Reference, txn.Amount, txn.Currency, md, now)
	if creditErr == nil {
		if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT campaign_total"); err != nil {
			return fmt.Errorf("failed to release campaign savepoint: %w", err)
		}
		return nil
	}

	if _, err := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT campaign_total"); err != nil {
		return fmt.Errorf("failed to roll back campaign savepoint after %v: %w", creditErr, err)
	}
	s.logger.Error("Campaign total update failed, queued for retry",
		zap.String("reference", txn.Reference),
		zap.Error(creditErr),
	)

	credit, err := outbox.NewCampaignCreditMessage(domain.CampaignCredit{
		Reference:    txn.Reference,
		AmountMinor:  txn.Amount,
		Currency:     txn.Currency,
		DonationType: md.DonationType,
		Campaign:     md.Campaign,
		PaidAt:       paidAt,
	}, now)
	if err != nil {
		return err
	}
	return s.enqueue(ctx, tx, credit)
}

// recordFailedTx stores a failed charge. A donation that is already PAID is
// left alone and no failure event is emitted.
func (s *donationService) recordFailedTx(ctx context.Context, tx *sql.Tx, txn *paystack.Transaction, md domain.DonationMetadata, eventID string, now time.Time) error {
	donation := &domain.Donation{
		Reference:       txn.Reference,
		Email:           txn.Customer.PrimaryEmail(),
		AmountMinor:     txn.Amount,
		Currency:        txn.Currency,
		Status:          domain.DonationStatusFailed,
		Anonymous:       md.Anonymous,
		DonationType:    md.DonationType,
		Campaign:        md.Campaign,
		DonorName:       md.DonorName,
		Metadata:        txn.Metadata,
		PaymentChannel:  txn.Channel,
		GatewayResponse: txn.GatewayResponse,
		EventID:         eventID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	written, err := s.donationsRepo.UpsertTx(ctx, tx, donation)
	if err != nil {
		return fmt.Errorf("failed to save failed donation %s: %w", txn.Reference, err)
	}
	if !written {
		s.logger.Warn("Ignoring charge failure for paid donation", zap.String("reference", txn.Reference))
		return nil
	}

	return s.enqueueEvent(ctx, tx, domain.DonationEvent{
		Event:        domain.MessageTypeDonationFailed,
		Reference:    txn.Reference,
		Amount:       domain.FromMinorUnits(txn.Amount),
		Currency:     txn.Currency,
		DonationType: md.DonationType,
		Campaign:     md.Campaign,
		Channel:      txn.Channel,
		Reason:       txn.GatewayResponse,
		Timestamp:    now,
	})
}

func (s *donationService) enqueueEvent(ctx context.Context, tx *sql.Tx, event domain.DonationEvent) error {
	msg, err := outbox.NewDonationEventMessage(event, s.settings.AnalyticsTopic, event.Timestamp)
	if err != nil {
		return err
	}
	return s.enqueue(ctx, tx, msg)
}

func (s *donationService) enqueue(ctx context.Context, tx *sql.Tx, msg *domain.OutboxMessage) error {
	created, err := s.outboxRepo.CreateMessageTx(ctx, tx, msg)
	if err != nil {
		return fmt.Errorf("failed to enqueue %s for %s: %w", msg.MessageType, msg.AggregateID, err)
	}
	if !created {
		s.logger.Debug("Outbox message already queued", zap.String("dedup_key", msg.DedupKey))
	}
	return nil
}
