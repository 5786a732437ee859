package outbox_repo

import (
	"context"
	"time"

	"donations/internal/domain"
)

type OutboxRepository interface {
	// CreateMessageTx reports false when a message with the same dedup key exists.
	CreateMessageTx(ctx context.Context, querier domain.Querier, msg *domain.OutboxMessage) (bool, error)
	// GetPendingMessagesTx locks due messages; querier must be a transaction.
	GetPendingMessagesTx(ctx context.Context, querier domain.Querier, now time.Time, limit int) ([]domain.OutboxMessage, error)
	// LeaseMessagesTx pushes next_attempt_at of the given messages to until so
	// other pollers skip them while they are being delivered.
	LeaseMessagesTx(ctx context.Context, querier domain.Querier, ids []string, until time.Time) error
	MarkMessageSentTx(ctx context.Context, querier domain.Querier, id string, sentAt time.Time) error
	MarkMessageRetryTx(ctx context.Context, querier domain.Querier, id string, attempts int, nextAttemptAt time.Time, lastError string, status domain.OutboxMessageStatus) error
}
