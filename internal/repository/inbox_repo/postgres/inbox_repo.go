package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"donations/internal/domain"
)

type InboxRepository struct{}

func NewInboxRepository() *InboxRepository {
	return &InboxRepository{}
}

// CreateMessageTx relies on the primary key: a concurrent delivery of the same
// event blocks on the index until the first transaction finishes, then sees
// the conflict. Only FAILED rows may be claimed again.
func (r *InboxRepository) CreateMessageTx(ctx context.Context, querier domain.Querier, msg *domain.InboxMessage) error {
	query := `
		INSERT INTO inbox_messages (id, event_type, reference, payload, status, attempts, received_at)
		VALUES ($1, $2, $3, $4, $5, 1, $6)
		ON CONFLICT (id) DO UPDATE SET
			payload = EXCLUDED.payload,
			status = EXCLUDED.status,
			attempts = inbox_messages.attempts + 1,
			last_error = NULL,
			received_at = EXCLUDED.received_at
		WHERE inbox_messages.status = 'FAILED'
		RETURNING id
	`
	var id string
	err := querier.QueryRowContext(ctx, query,
		msg.ID,
		msg.EventType,
		msg.Reference,
		msg.Payload,
		string(msg.Status),
		msg.ReceivedAt,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrMessageAlreadyProcessed
		}
		return fmt.Errorf("failed to insert inbox message %s: %w", msg.ID, err)
	}
	return nil
}

func (r *InboxRepository) UpdateStatusTx(ctx context.Context, querier domain.Querier, id string, status domain.InboxMessageStatus) error {
	query := `
		UPDATE inbox_messages
		SET status = $1, processed_at = CASE WHEN $1 = 'PROCESSED' THEN $2::timestamptz ELSE NULL END
		WHERE id = $3
	`
	res, err := querier.ExecContext(ctx, query, string(status), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update inbox message status %s: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for inbox message update: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("inbox message with id %s not found for status update", id)
	}
	return nil
}

func (r *InboxRepository) MarkFailed(ctx context.Context, querier domain.Querier, msg *domain.InboxMessage, reason string) error {
	query := `
		INSERT INTO inbox_messages (id, event_type, reference, payload, status, attempts, last_error, received_at)
		VALUES ($1, $2, $3, $4, 'FAILED', 1, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			status = 'FAILED',
			last_error = EXCLUDED.last_error
		WHERE inbox_messages.status <> 'PROCESSED'
	`
	if _, err := querier.ExecContext(ctx, query,
		msg.ID,
		msg.EventType,
		msg.Reference,
		msg.Payload,
		reason,
		msg.ReceivedAt,
	); err != nil {
		return fmt.Errorf("failed to mark inbox message %s as failed: %w", msg.ID, err)
	}
	return nil
}

func (r *InboxRepository) GetFailedMessages(ctx context.Context, querier domain.Querier, limit int) ([]domain.InboxMessage, error) {
	query := `
		SELECT id, event_type, reference, payload, status, attempts, COALESCE(last_error, ''), received_at, processed_at
		FROM inbox_messages
		WHERE status = 'FAILED'
		ORDER BY received_at ASC
		LIMIT $1
	`
	rows, err := querier.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get failed inbox messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.InboxMessage
	for rows.Next() {
		msg := domain.InboxMessage{}
		var status string
		var processedAt sql.NullTime
		if err := rows.Scan(
			&msg.ID,
			&msg.EventType,
			&msg.Reference,
			&msg.Payload,
			&status,
			&msg.Attempts,
			&msg.LastError,
			&msg.ReceivedAt,
			&processedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan inbox message: %w", err)
		}
		msg.Status = domain.InboxMessageStatus(status)
		if processedAt.Valid {
			msg.ProcessedAt = &processedAt.Time
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating inbox messages: %w", err)
	}
	return messages, nil
}

func (r *InboxRepository) DeleteProcessedBefore(ctx context.Context, querier domain.Querier, cutoff time.Time) (int64, error) {
	query := `DELETE FROM inbox_messages WHERE status = 'PROCESSED' AND processed_at < $1`
	res, err := querier.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge inbox messages: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected for inbox purge: %w", err)
	}
	return n, nil
}
