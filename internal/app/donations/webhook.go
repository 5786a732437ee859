package donations

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"donations/internal/domain"
	"donations/internal/infrastructure/paystack"
)

const (
	EventChargeSuccess   = "charge.success"
	EventChargeFailure   = "charge.failure"
	EventTransferSuccess = "transfer.success"

	malformedEventType = "malformed"
)

type WebhookResult struct {
	EventID        string
	EventType      string
	Duplicate      bool
	Failed         bool
	ProcessingTime time.Duration
}

type ReplayReport struct {
	Processed int
	Failed    int
	Skipped   int
}

type webhookEvent struct {
	Event string          `json:"event"`
	ID    json.RawMessage `json:"id"`
	Data  json.RawMessage `json:"data"`
}

type eventRef struct {
	Reference string `json:"reference"`
}

// HandleWebhook authenticates a gateway event and applies it exactly once.
// Processing failures do not surface as errors: the event is recorded as
// FAILED and the result reports it, so the gateway receives a 200.
func (s *donationService) HandleWebhook(ctx context.Context, body []byte, signature string) (*WebhookResult, error) {
	start := time.Now()

	if strings.TrimSpace(signature) == "" {
		s.logger.Warn("Webhook missing signature", zap.String("security_event", "missing_signature"))
		return nil, domain.ErrMissingSignature
	}
	secret := s.gateway.SecretKey()
	if secret == "" {
		s.logger.Error("Paystack secret key is not configured")
		return nil, domain.ErrNotConfigured
	}
	if !paystack.VerifySignature(secret, body, signature) {
		s.logger.Warn("Invalid webhook signature",
			zap.String("security_event", "invalid_signature"),
			zap.Int("body_bytes", len(body)),
		)
		return nil, domain.ErrInvalidSignature
	}

	msg, event, err := parseWebhook(body, s.now())
	if err != nil {
		// Authenticated but unreadable: recorded as FAILED and still acknowledged.
		msg = &domain.InboxMessage{
			ID:         EventID("", "", nil, body),
			EventType:  malformedEventType,
			Payload:    body,
			Status:     domain.InboxStatusNew,
			ReceivedAt: s.now(),
		}
		s.recordFailure(ctx, msg, fmt.Errorf("invalid webhook payload: %w", err))
		return &WebhookResult{EventID: msg.ID, EventType: msg.EventType, Failed: true, ProcessingTime: time.Since(start)}, nil
	}

	result := &WebhookResult{EventID: msg.ID, EventType: event.Event}
	err = s.processInbox(ctx, msg, event)
	result.ProcessingTime = time.Since(start)

	switch {
	case errors.Is(err, domain.ErrMessageAlreadyProcessed):
		s.logger.Info("Event already processed", zap.String("event_id", msg.ID))
		result.Duplicate = true
	case err != nil:
		s.recordFailure(ctx, msg, err)
		result.Failed = true
	default:
		s.logger.Info("Webhook processed",
			zap.String("event_id", msg.ID),
			zap.String("event", event.Event),
			zap.Duration("processing_time", result.ProcessingTime),
		)
	}
	return result, nil
}

// ReplayFailed re-runs inbox events recorded as FAILED.
func (s *donationService) ReplayFailed(ctx context.Context, limit int) (*ReplayReport, error) {
	messages, err := s.inboxRepo.GetFailedMessages(ctx, s.db, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load failed inbox messages: %w", err)
	}

	report := &ReplayReport{}
	for i := range messages {
		msg := &messages[i]
		var event webhookEvent
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			s.logger.Error("Stored webhook payload is not valid JSON", zap.String("event_id", msg.ID), zap.Error(err))
			report.Skipped++
			continue
		}

		err := s.processInbox(ctx, msg, event)
		switch {
		case errors.Is(err, domain.ErrMessageAlreadyProcessed):
			report.Skipped++
		case err != nil:
			s.recordFailure(ctx, msg, err)
			report.Failed++
		default:
			s.logger.Info("Replayed webhook event", zap.String("event_id", msg.ID), zap.String("event", event.Event))
			report.Processed++
		}
	}
	return report, nil
}

func (s *donationService) processInbox(ctx context.Context, msg *domain.InboxMessage, event webhookEvent) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.inboxRepo.CreateMessageTx(ctx, tx, msg); err != nil {
			return err
		}
		if err := s.dispatchEvent(ctx, tx, msg.ID, event); err != nil {
			return err
		}
		return s.inboxRepo.UpdateStatusTx(ctx, tx, msg.ID, domain.InboxStatusProcessed)
	})
}

func (s *donationService) dispatchEvent(ctx context.Context, tx *sql.Tx, eventID string, event webhookEvent) error {
	now := s.now()

	switch event.Event {
	case EventChargeSuccess, EventChargeFailure:
		var txn paystack.Transaction
		if err := json.Unmarshal(event.Data, &txn); err != nil {
			return fmt.Errorf("failed to decode %s data: %w", event.Event, err)
		}
		if txn.Reference == "" {
			return fmt.Errorf("%s event without reference: %w", event.Event, domain.ErrInvalidTransactionData)
		}
		md := domain.ParseMetadata(txn.Metadata)
		if event.Event == EventChargeSuccess {
			s.logger.Info("Processing successful payment",
				zap.String("event_id", eventID),
				zap.String("reference", txn.Reference),
				zap.Float64("amount", domain.FromMinorUnits(txn.Amount)),
			)
			return s.recordPaidTx(ctx, tx, &txn, md, eventID, now)
		}
		s.logger.Warn("Processing failed payment",
			zap.String("event_id", eventID),
			zap.String("reference", txn.Reference),
			zap.String("gateway_response", txn.GatewayResponse),
		)
		return s.recordFailedTx(ctx, tx, &txn, md, eventID, now)

	case EventTransferSuccess:
		var transfer struct {
			Reference string `json:"reference"`
			Amount    int64  `json:"amount"`
		}
		if err := json.Unmarshal(event.Data, &transfer); err != nil {
			return fmt.Errorf("failed to decode %s data: %w", event.Event, err)
		}
		s.logger.Info("Transfer completed",
			zap.String("event_id", eventID),
			zap.String("reference", transfer.Reference),
			zap.Float64("amount", domain.FromMinorUnits(transfer.Amount)),
		)
		return nil

	default:
		s.logger.Info("Unhandled webhook event", zap.String("event_id", eventID), zap.String("event", event.Event))
		return nil
	}
}

func (s *donationService) recordFailure(ctx context.Context, msg *domain.InboxMessage, cause error) {
	s.logger.Error("Webhook processing error",
		zap.String("event_id", msg.ID),
		zap.String("event", msg.EventType),
		zap.Error(cause),
	)
	// The request context may be cancelled already; the failure record must still land.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.inboxRepo.MarkFailed(recordCtx, s.db, msg, cause.Error()); err != nil {
		s.logger.Error("Failed to record webhook failure", zap.String("event_id", msg.ID), zap.Error(err))
	}
}

func parseWebhook(body []byte, receivedAt time.Time) (*domain.InboxMessage, webhookEvent, error) {
	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, event, err
	}
	var ref eventRef
	if len(event.Data) > 0 {
		_ = json.Unmarshal(event.Data, &ref)
	}

	return &domain.InboxMessage{
		ID:         EventID(event.Event, ref.Reference, event.ID, body),
		EventType:  event.Event,
		Reference:  ref.Reference,
		Payload:    body,
		Status:     domain.InboxStatusNew,
		ReceivedAt: receivedAt,
	}, event, nil
}

// EventID derives the dedup key of a webhook delivery: the event type with the
// transaction reference, else with the event id, else a hash of the body.
func EventID(eventType, reference string, rawID json.RawMessage, body []byte) string {
	if reference != "" {
		return eventType + ":" + reference
	}
	if id := rawIDString(rawID); id != "" {
		return eventType + ":" + id
	}
	sum := sha256.Sum256(body)
	return "sha256:" + hex.EncodeToString(sum[:])
}

func rawIDString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
