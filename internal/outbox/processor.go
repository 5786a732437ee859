package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"donations/internal/domain"
	"donations/internal/repository/outbox_repo"
)

const maxRetryDelay = time.Hour

type ProcessorConfig struct {
	PollInterval time.Duration
	PollTimeout  time.Duration
	BatchSize    int
	MaxAttempts  int
	RetryBase    time.Duration
	// LeaseDuration is how long claimed messages stay hidden from other
	// pollers. Defaults to one PollTimeout per message in the batch, plus one.
	LeaseDuration time.Duration
}

// Processor delivers outbox messages. Due rows are claimed with SKIP LOCKED and
// leased, so several instances can run side by side.
type Processor struct {
	db          *sql.DB
	outboxRepo  outbox_repo.OutboxRepository
	dispatchers map[string]Dispatcher
	cfg         ProcessorConfig
	logger      *zap.Logger
	now         func() time.Time
}

func NewProcessor(
	db *sql.DB,
	outboxRepo outbox_repo.OutboxRepository,
	dispatchers map[string]Dispatcher,
	cfg ProcessorConfig,
	logger *zap.Logger,
) *Processor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 30 * time.Second
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = cfg.PollTimeout * time.Duration(cfg.BatchSize+1)
	}
	return &Processor{
		db:          db,
		outboxRepo:  outboxRepo,
		dispatchers: dispatchers,
		cfg:         cfg,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Start polls until ctx is cancelled.
func (p *Processor) Start(ctx context.Context) {
	p.logger.Info("Starting outbox processor", zap.Duration("poll_interval", p.cfg.PollInterval))
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox processor stopped")
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				p.logger.Error("Outbox batch failed", zap.Error(err))
			}
		}
	}
}

// ProcessBatch delivers one batch of due messages and returns how many were sent.
// Messages are claimed in a short transaction that leases them, then delivered
// and marked one by one outside of it.
func (p *Processor) ProcessBatch(ctx context.Context) (int, error) {
	messages, err := p.claim(ctx)
	if err != nil || len(messages) == 0 {
		return 0, err
	}

	p.logger.Debug("Claimed pending outbox messages", zap.Int("count", len(messages)))

	// Deliveries stop before the lease runs out so no other poller can pick up a
	// message that is still being sent.
	leaseCtx, cancel := context.WithTimeout(ctx, p.cfg.LeaseDuration*9/10)
	defer cancel()

	sent := 0
	for i, msg := range messages {
		if leaseCtx.Err() != nil {
			p.logger.Warn("Outbox lease ran out, leaving messages for the next poll", zap.Int("remaining", len(messages)-i))
			break
		}
		if p.deliver(ctx, leaseCtx, msg) {
			sent++
		}
	}
	return sent, nil
}

func (p *Processor) claim(ctx context.Context) ([]domain.OutboxMessage, error) {
	claimCtx, cancel := context.WithTimeout(ctx, p.cfg.PollTimeout)
	defer cancel()

	tx, err := p.db.BeginTx(claimCtx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin outbox transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	now := p.now()
	messages, err := p.outboxRepo.GetPendingMessagesTx(claimCtx, tx, now, p.cfg.BatchSize)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if len(messages) == 0 {
		return nil, tx.Rollback()
	}

	ids := make([]string, len(messages))
	for i := range messages {
		ids[i] = messages[i].ID
	}
	if err := p.outboxRepo.LeaseMessagesTx(claimCtx, tx, ids, now.Add(p.cfg.LeaseDuration)); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit outbox claim: %w", err)
	}
	return messages, nil
}

// deliver dispatches a single message and records the outcome. It reports
// whether the message was sent.
func (p *Processor) deliver(ctx, leaseCtx context.Context, msg domain.OutboxMessage) bool {
	dispatchCtx, cancel := context.WithTimeout(leaseCtx, p.cfg.PollTimeout)
	dispatchErr := p.dispatch(dispatchCtx, msg)
	cancel()

	// The outcome is recorded even when the poller is shutting down.
	markCtx, cancelMark := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.PollTimeout)
	defer cancelMark()

	fields := []zap.Field{
		zap.String("message_id", msg.ID),
		zap.String("message_type", msg.MessageType),
		zap.String("reference", msg.AggregateID),
	}

	if dispatchErr == nil {
		if err := p.outboxRepo.MarkMessageSentTx(markCtx, p.db, msg.ID, p.now()); err != nil {
			p.logger.Error("Outbox message delivered but not marked sent", append(fields, zap.Error(err))...)
			return true
		}
		p.logger.Info("Outbox message delivered", fields...)
		return true
	}

	attempts := msg.Attempts + 1
	status := domain.OutboxStatusPending
	if attempts >= p.cfg.MaxAttempts {
		status = domain.OutboxStatusFailed
	}
	next := p.now().Add(p.backoff(attempts))
	fields = append(fields, zap.Int("attempts", attempts), zap.Error(dispatchErr))

	if err := p.outboxRepo.MarkMessageRetryTx(markCtx, p.db, msg.ID, attempts, next, dispatchErr.Error(), status); err != nil {
		p.logger.Error("Failed to schedule outbox retry", append(fields, zap.NamedError("mark_error", err))...)
		return false
	}
	if status == domain.OutboxStatusFailed {
		p.logger.Error("Outbox message gave up after max attempts", fields...)
	} else {
		p.logger.Warn("Outbox message delivery failed, will retry", append(fields, zap.Time("next_attempt_at", next))...)
	}
	return false
}

func (p *Processor) dispatch(ctx context.Context, msg domain.OutboxMessage) error {
	d, ok := p.dispatchers[msg.MessageType]
	if !ok {
		return fmt.Errorf("no dispatcher for message type %q", msg.MessageType)
	}
	return d.Dispatch(ctx, msg)
}

func (p *Processor) backoff(attempts int) time.Duration {
	delay := p.cfg.RetryBase
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}
