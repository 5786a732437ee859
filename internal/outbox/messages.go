package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"donations/internal/domain"
	"donations/internal/util"
)

// NewReceiptMessage builds the receipt side effect. The dedup key is the
// reference, so verify and webhook paths converge on a single email.
func NewReceiptMessage(receipt domain.ReceiptPayload, now time.Time) (*domain.OutboxMessage, error) {
	payload, err := json.Marshal(receipt)
	if err != nil {
		return nil, fmt.Errorf("failed to encode receipt payload: %w", err)
	}
	return &domain.OutboxMessage{
		ID:            util.GenerateUUID(),
		AggregateID:   receipt.Reference,
		MessageType:   domain.MessageTypeReceiptEmail,
		Key:           receipt.Reference,
		Payload:       payload,
		DedupKey:      domain.MessageTypeReceiptEmail + ":" + receipt.Reference,
		Status:        domain.OutboxStatusPending,
		NextAttemptAt: now,
		CreatedAt:     now,
	}, nil
}

// NewDonationEventMessage builds an analytics event for the given topic.
func NewDonationEventMessage(event domain.DonationEvent, topic string, now time.Time) (*domain.OutboxMessage, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to encode donation event: %w", err)
	}
	return &domain.OutboxMessage{
		ID:            util.GenerateUUID(),
		AggregateID:   event.Reference,
		MessageType:   event.Event,
		Topic:         topic,
		Key:           event.Reference,
		Payload:       payload,
		DedupKey:      event.Event + ":" + event.Reference,
		Status:        domain.OutboxStatusPending,
		NextAttemptAt: now,
		CreatedAt:     now,
	}, nil
}

// NewCampaignCreditMessage queues a retry of a donation's campaign total update.
func NewCampaignCreditMessage(credit domain.CampaignCredit, now time.Time) (*domain.OutboxMessage, error) {
	payload, err := json.Marshal(credit)
	if err != nil {
		return nil, fmt.Errorf("failed to encode campaign credit: %w", err)
	}
	return &domain.OutboxMessage{
		ID:            util.GenerateUUID(),
		AggregateID:   credit.Reference,
		MessageType:   domain.MessageTypeCampaignCredit,
		Key:           credit.Reference,
		Payload:       payload,
		DedupKey:      domain.MessageTypeCampaignCredit + ":" + credit.Reference,
		Status:        domain.OutboxStatusPending,
		NextAttemptAt: now,
		CreatedAt:     now,
	}, nil
}
