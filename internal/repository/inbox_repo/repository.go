package inbox_repo

import (
	"context"
	"time"

	"donations/internal/domain"
)

type InboxRepository interface {
	// CreateMessageTx claims the event id. It returns
	// domain.ErrMessageAlreadyProcessed when the id is already stored and not FAILED.
	CreateMessageTx(ctx context.Context, querier domain.Querier, msg *domain.InboxMessage) error
	UpdateStatusTx(ctx context.Context, querier domain.Querier, id string, status domain.InboxMessageStatus) error
	// MarkFailed records a failed attempt outside the rolled-back transaction.
	MarkFailed(ctx context.Context, querier domain.Querier, msg *domain.InboxMessage, reason string) error
	GetFailedMessages(ctx context.Context, querier domain.Querier, limit int) ([]domain.InboxMessage, error)
	DeleteProcessedBefore(ctx context.Context, querier domain.Querier, cutoff time.Time) (int64, error)
}
