package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"donations/internal/domain"
	kafka_infra "donations/internal/infrastructure/kafka"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, msg domain.OutboxMessage) error
}

type DispatcherFunc func(ctx context.Context, msg domain.OutboxMessage) error

func (f DispatcherFunc) Dispatch(ctx context.Context, msg domain.OutboxMessage) error {
	return f(ctx, msg)
}

type ReceiptSender interface {
	SendReceipt(ctx context.Context, receipt domain.ReceiptPayload) error
}

// NewKafkaDispatcher publishes the payload as-is. Messages without a topic
// go to defaultTopic.
func NewKafkaDispatcher(producer kafka_infra.Producer, defaultTopic string) Dispatcher {
	return DispatcherFunc(func(ctx context.Context, msg domain.OutboxMessage) error {
		topic := msg.Topic
		if topic == "" {
			topic = defaultTopic
		}
		return producer.Produce(ctx, msg.Key, topic, msg.Payload)
	})
}

type CampaignCreditor interface {
	CreditDonation(ctx context.Context, credit domain.CampaignCredit) error
}

func NewCampaignCreditDispatcher(creditor CampaignCreditor) Dispatcher {
	return DispatcherFunc(func(ctx context.Context, msg domain.OutboxMessage) error {
		var credit domain.CampaignCredit
		if err := json.Unmarshal(msg.Payload, &credit); err != nil {
			return fmt.Errorf("invalid campaign credit payload: %w", err)
		}
		return creditor.CreditDonation(ctx, credit)
	})
}

func NewReceiptDispatcher(sender ReceiptSender) Dispatcher {
	return DispatcherFunc(func(ctx context.Context, msg domain.OutboxMessage) error {
		var receipt domain.ReceiptPayload
		if err := json.Unmarshal(msg.Payload, &receipt); err != nil {
			return fmt.Errorf("invalid receipt payload: %w", err)
		}
		return sender.SendReceipt(ctx, receipt)
	})
}
