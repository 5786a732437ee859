package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"donations/internal/domain"
)

type OutboxRepository struct{}

func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{}
}

func (r *OutboxRepository) CreateMessageTx(ctx context.Context, querier domain.Querier, msg *domain.OutboxMessage) (bool, error) {
	query := `
		INSERT INTO outbox_messages (id, aggregate_id, message_type, topic, key_value, payload, dedup_key, status, attempts, next_attempt_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $10)
		ON CONFLICT (dedup_key) DO NOTHING
	`
	res, err := querier.ExecContext(ctx, query,
		msg.ID,
		msg.AggregateID,
		msg.MessageType,
		msg.Topic,
		msg.Key,
		msg.Payload,
		msg.DedupKey,
		string(msg.Status),
		msg.NextAttemptAt,
		msg.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create outbox message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected for outbox insert: %w", err)
	}
	return n == 1, nil
}

func (r *OutboxRepository) GetPendingMessagesTx(ctx context.Context, querier domain.Querier, now time.Time, limit int) ([]domain.OutboxMessage, error) {
	query := `
		SELECT id, aggregate_id, message_type, topic, key_value, payload, dedup_key, status, attempts,
			COALESCE(last_error, ''), next_attempt_at, created_at
		FROM outbox_messages
		WHERE status = 'PENDING' AND next_attempt_at <= $1
		ORDER BY created_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`
	rows, err := querier.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending outbox messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.OutboxMessage
	for rows.Next() {
		msg := domain.OutboxMessage{}
		var status string
		if err := rows.Scan(
			&msg.ID,
			&msg.AggregateID,
			&msg.MessageType,
			&msg.Topic,
			&msg.Key,
			&msg.Payload,
			&msg.DedupKey,
			&status,
			&msg.Attempts,
			&msg.LastError,
			&msg.NextAttemptAt,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan outbox message: %w", err)
		}
		msg.Status = domain.OutboxMessageStatus(status)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox messages: %w", err)
	}
	return messages, nil
}

func (r *OutboxRepository) LeaseMessagesTx(ctx context.Context, querier domain.Querier, ids []string, until time.Time) error {
	query := `
		UPDATE outbox_messages
		SET next_attempt_at = $1
		WHERE id = ANY($2) AND status = 'PENDING'
	`
	if _, err := querier.ExecContext(ctx, query, until, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to lease %d outbox messages: %w", len(ids), err)
	}
	return nil
}

func (r *OutboxRepository) MarkMessageSentTx(ctx context.Context, querier domain.Querier, id string, sentAt time.Time) error {
	query := `
		UPDATE outbox_messages
		SET status = 'SENT', sent_at = $1, attempts = attempts + 1, last_error = NULL
		WHERE id = $2
	`
	res, err := querier.ExecContext(ctx, query, sentAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark outbox message %s as sent: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("outbox message %s not found", id)
	}
	return nil
}

func (r *OutboxRepository) MarkMessageRetryTx(ctx context.Context, querier domain.Querier, id string, attempts int, nextAttemptAt time.Time, lastError string, status domain.OutboxMessageStatus) error {
	query := `
		UPDATE outbox_messages
		SET status = $1, attempts = $2, next_attempt_at = $3, last_error = $4
		WHERE id = $5
	`
	if _, err := querier.ExecContext(ctx, query, string(status), attempts, nextAttemptAt, lastError, id); err != nil {
		return fmt.Errorf("failed to schedule retry for outbox message %s: %w", id, err)
	}
	return nil
}
