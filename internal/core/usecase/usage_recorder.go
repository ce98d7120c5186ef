package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atvirokodosprendimai/storefront/internal/core/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type pendingUsage struct {
	uses     int64
	lastUsed time.Time
}

// UsageRecorder coalesces credential usage in memory and writes it to the
// credential store in the background. Record never performs I/O.
type UsageRecorder struct {
	repo       ports.CredentialStore
	interval   time.Duration
	maxPending int
	logger     *zap.Logger

	pendingMu sync.Mutex
	pending   map[uuid.UUID]pendingUsage

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	dropped atomic.Int64
	flushed atomic.Int64
	onDrop  func()
}

func NewUsageRecorder(repo ports.CredentialStore, interval time.Duration, maxPending int, logger *zap.Logger) *UsageRecorder {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if maxPending <= 0 {
		maxPending = 1024
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UsageRecorder{
		repo:       repo,
		interval:   interval,
		maxPending: maxPending,
		logger:     logger,
		pending:    make(map[uuid.UUID]pendingUsage),
	}
}

// OnDrop registers a callback invoked for every usage event that could not be
// buffered.
func (r *UsageRecorder) OnDrop(fn func()) {
	r.onDrop = fn
}

func (r *UsageRecorder) Record(keyID uuid.UUID, at time.Time) {
	r.pendingMu.Lock()
	ok := r.mergeLocked(keyID, pendingUsage{uses: 1, lastUsed: at})
	r.pendingMu.Unlock()
	if !ok {
		r.drop(1)
	}
}

func (r *UsageRecorder) mergeLocked(keyID uuid.UUID, u pendingUsage) bool {
	cur, exists := r.pending[keyID]
	if !exists && len(r.pending) >= r.maxPending {
		return false
	}
	cur.uses += u.uses
	if u.lastUsed.After(cur.lastUsed) {
		cur.lastUsed = u.lastUsed
	}
	r.pending[keyID] = cur
	return true
}

func (r *UsageRecorder) drop(n int64) {
	r.dropped.Add(n)
	if r.onDrop != nil {
		for range n {
			r.onDrop()
		}
	}
}

func (r *UsageRecorder) Start(parent context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	r.cancel = cancel
	r.wg.Add(1)
	go r.loop(ctx)
}

// Close stops the loop and performs a final flush.
func (r *UsageRecorder) Close() error {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	r.wg.Wait()

	ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	r.Flush(ctx)
	return nil
}

func (r *UsageRecorder) loop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Flush(ctx)
		}
	}
}

// Flush writes all pending usage. Entries that fail are merged back for the
// next attempt when there is room.
func (r *UsageRecorder) Flush(ctx context.Context) {
	r.pendingMu.Lock()
	batch := r.pending
	r.pending = make(map[uuid.UUID]pendingUsage, len(batch))
	r.pendingMu.Unlock()

	for id, u := range batch {
		if err := r.repo.RecordUsage(ctx, id, u.uses, u.lastUsed); err != nil {
			r.logger.Warn("record api key usage", zap.String("api_key_id", id.String()), zap.Error(err))
			r.pendingMu.Lock()
			ok := r.mergeLocked(id, u)
			r.pendingMu.Unlock()
			if !ok {
				r.drop(u.uses)
			}
			continue
		}
		r.flushed.Add(u.uses)
	}
}

type UsageRecorderMetrics struct {
	Flushed int64
	Dropped int64
}

func (r *UsageRecorder) Metrics() UsageRecorderMetrics {
	return UsageRecorderMetrics{Flushed: r.flushed.Load(), Dropped: r.dropped.Load()}
}
