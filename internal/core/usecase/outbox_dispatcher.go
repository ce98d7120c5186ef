package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atvirokodosprendimai/storefront/internal/core/domain"
	"github.com/atvirokodosprendimai/storefront/internal/core/ports"
	"go.uber.org/zap"
)

const (
	defaultOutboxAttempts = 5
	maxOutboxBackoff      = 5 * time.Minute
)

// OutboxDispatcher delivers tenant and credential lifecycle events that were
// committed together with the registry change that produced them. Delivery
// is at least once; subscribers dedupe on EventID.
type OutboxDispatcher struct {
	repo        ports.OutboxRepository
	publisher   ports.EventPublisher
	interval    time.Duration
	batchSize   int
	maxAttempts int
	logger      *zap.Logger
	now         func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	delivered atomic.Int64
	failed    atomic.Int64
	dead      atomic.Int64
}

type OutboxDispatcherMetrics struct {
	DispatchSuccessTotal int64
	DispatchFailureTotal int64
	DispatchDeadTotal    int64
}

func NewOutboxDispatcher(repo ports.OutboxRepository, publisher ports.EventPublisher, interval time.Duration, batchSize int, logger *zap.Logger) *OutboxDispatcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutboxDispatcher{
		repo:        repo,
		publisher:   publisher,
		interval:    interval,
		batchSize:   batchSize,
		maxAttempts: defaultOutboxAttempts,
		logger:      logger,
		now:         time.Now,
	}
}

// Start launches the polling loop. Calling it twice is a no-op.
func (d *OutboxDispatcher) Start(parent context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	d.cancel = cancel
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(ctx)
	}()
}

func (d *OutboxDispatcher) Close() error {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
	return nil
}

func (d *OutboxDispatcher) run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if _, err := d.DispatchOnce(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error("outbox dispatch", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// DispatchOnce publishes one batch of due events and reports how many were
// delivered. A store error aborts the batch; publish errors only reschedule
// the event they belong to.
func (d *OutboxDispatcher) DispatchOnce(ctx context.Context) (int, error) {
	pending, err := d.repo.FetchPending(ctx, d.batchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch pending events: %w", err)
	}

	delivered := 0
	for _, event := range pending {
		if err := d.deliver(ctx, event); err != nil {
			if markErr := d.reschedule(ctx, event, err); markErr != nil {
				return delivered, markErr
			}
			continue
		}
		if err := d.repo.MarkDispatched(ctx, event.ID); err != nil {
			return delivered, fmt.Errorf("mark event %d dispatched: %w", event.ID, err)
		}
		d.delivered.Add(1)
		delivered++
	}
	return delivered, nil
}

func (d *OutboxDispatcher) deliver(ctx context.Context, event domain.OutboxEvent) error {
	var envelope domain.EventEnvelope
	if err := json.Unmarshal(event.PayloadJSON, &envelope); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	topic := event.Topic
	if topic == "" {
		topic = envelope.Topic()
	}
	return d.publisher.Publish(ctx, topic, envelope)
}

func (d *OutboxDispatcher) reschedule(ctx context.Context, event domain.OutboxEvent, cause error) error {
	d.failed.Add(1)
	attempts := event.Attempts + 1
	fields := []zap.Field{
		zap.Int64("outbox_id", event.ID),
		zap.String("event_type", event.EventType),
		zap.String("tenant_id", event.TenantID),
		zap.Int("attempt", attempts),
		zap.Error(cause),
	}

	if attempts >= d.maxAttempts {
		d.logger.Error("outbox event dead-lettered", fields...)
		if err := d.repo.MarkDead(ctx, event.ID, attempts, cause.Error()); err != nil {
			return fmt.Errorf("mark event %d dead: %w", event.ID, err)
		}
		d.dead.Add(1)
		return nil
	}

	d.logger.Warn("outbox delivery failed", fields...)
	next := d.now().UTC().Add(retryBackoff(attempts)).Format(time.RFC3339Nano)
	if err := d.repo.MarkFailed(ctx, event.ID, attempts, next, cause.Error()); err != nil {
		return fmt.Errorf("mark event %d failed: %w", event.ID, err)
	}
	return nil
}

func (d *OutboxDispatcher) Metrics() OutboxDispatcherMetrics {
	return OutboxDispatcherMetrics{
		DispatchSuccessTotal: d.delivered.Load(),
		DispatchFailureTotal: d.failed.Load(),
		DispatchDeadTotal:    d.dead.Load(),
	}
}

// retryBackoff doubles from one second and is capped at five minutes.
func retryBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	backoff := time.Second
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff >= maxOutboxBackoff {
			return maxOutboxBackoff
		}
	}
	return backoff
}
