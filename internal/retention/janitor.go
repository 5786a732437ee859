package retention

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"donations/internal/repository/inbox_repo"
)

// InboxJanitor deletes processed webhook records once they leave the
// deduplication window.
type InboxJanitor struct {
	db        *sql.DB
	inboxRepo inbox_repo.InboxRepository
	retention time.Duration
	interval  time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func NewInboxJanitor(db *sql.DB, inboxRepo inbox_repo.InboxRepository, retention, interval time.Duration, logger *zap.Logger) *InboxJanitor {
	if interval <= 0 {
		interval = time.Hour
	}
	return &InboxJanitor{
		db:        db,
		inboxRepo: inboxRepo,
		retention: retention,
		interval:  interval,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (j *InboxJanitor) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.Purge(ctx); err != nil {
				j.logger.Error("Inbox purge failed", zap.Error(err))
			}
		}
	}
}

func (j *InboxJanitor) Purge(ctx context.Context) (int64, error) {
	cutoff := j.now().Add(-j.retention)
	n, err := j.inboxRepo.DeleteProcessedBefore(ctx, j.db, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		j.logger.Info("Purged processed webhook events", zap.Int64("count", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}
