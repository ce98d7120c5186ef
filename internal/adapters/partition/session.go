package partition

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/atvirokodosprendimai/storefront/internal/core/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultResetTimeout = 5 * time.Second

// ConnBinder binds and resets a single connection.
type ConnBinder interface {
	Bind(ctx context.Context, conn *sql.Conn, partition domain.Partition) error
	Reset(ctx context.Context, conn *sql.Conn) error
}

// Observer receives binding lifecycle signals, typically metrics.
type Observer interface {
	ObserveBind(ok bool)
	ObserveReset(ok bool)
	ObserveDiscard()
}

// Session is one pooled connection bound to one partition for the lifetime
// of a WithPartition call. It must not be retained after fn returns.
type Session struct {
	ctx       context.Context
	conn      *sql.Conn
	base      *gorm.DB
	partition domain.Partition
}

func (s *Session) Partition() domain.Partition {
	return s.partition
}

// Conn is the raw connection the partition is bound to.
func (s *Session) Conn() *sql.Conn {
	return s.conn
}

// DB returns a gorm handle whose statements all run on the bound
// connection.
func (s *Session) DB() *gorm.DB {
	tx := s.base.WithContext(s.ctx)
	tx.Statement.ConnPool = s.conn
	return tx
}

type sessionKey struct{}

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok && s != nil
}

// Pool hands out partition-bound connections from a dedicated *sql.DB.
type Pool struct {
	base         *gorm.DB
	db           *sql.DB
	binder       ConnBinder
	resetTimeout time.Duration
	observer     Observer
	logger       *zap.Logger
}

type PoolOption func(*Pool)

func WithResetTimeout(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.resetTimeout = d
		}
	}
}

func WithObserver(o Observer) PoolOption {
	return func(p *Pool) {
		p.observer = o
	}
}

func WithLogger(l *zap.Logger) PoolOption {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

func NewPool(base *gorm.DB, binder ConnBinder, opts ...PoolOption) (*Pool, error) {
	db, err := base.DB()
	if err != nil {
		return nil, fmt.Errorf("partition pool: %w", err)
	}
	p := &Pool{
		base:         base,
		db:           db,
		binder:       binder,
		resetTimeout: defaultResetTimeout,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// WithPartition acquires a connection, binds it to partition, runs fn and
// then resets and releases the connection on every exit path, including
// panics and cancellation. A connection whose reset fails is discarded
// instead of being returned to the pool.
func (p *Pool) WithPartition(ctx context.Context, partition domain.Partition, fn func(ctx context.Context, s *Session) error) error {
	if partition.IsZero() {
		return fmt.Errorf("%w: empty partition", domain.ErrPartitionValidationFailed)
	}

	conn, err := p.db.Conn(ctx)
	if err != nil {
		p.observeBind(false)
		return fmt.Errorf("%w: acquire connection: %v", domain.ErrPartitionBindFailed, err)
	}
	defer p.release(ctx, conn, partition)

	if err := p.binder.Bind(ctx, conn, partition); err != nil {
		p.observeBind(false)
		return err
	}
	p.observeBind(true)

	sess := &Session{conn: conn, base: p.base, partition: partition}
	scoped := WithSession(ctx, sess)
	sess.ctx = scoped
	return fn(scoped, sess)
}

func (p *Pool) release(ctx context.Context, conn *sql.Conn, partition domain.Partition) {
	resetCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.resetTimeout)
	defer cancel()

	if err := p.binder.Reset(resetCtx, conn); err != nil {
		p.observeReset(false)
		p.logger.Error("partition reset failed, discarding connection",
			zap.String("partition", partition.Name()),
			zap.Error(err),
		)
		discard(conn)
		if p.observer != nil {
			p.observer.ObserveDiscard()
		}
	} else {
		p.observeReset(true)
	}
	_ = conn.Close()
}

// discard makes database/sql close the underlying driver connection rather
// than returning it to the idle pool.
func discard(conn *sql.Conn) {
	_ = conn.Raw(func(any) error {
		return driver.ErrBadConn
	})
}

// Stats exposes the underlying pool statistics.
func (p *Pool) Stats() sql.DBStats {
	return p.db.Stats()
}

func (p *Pool) observeBind(ok bool) {
	if p.observer != nil {
		p.observer.ObserveBind(ok)
	}
}

func (p *Pool) observeReset(ok bool) {
	if p.observer != nil {
		p.observer.ObserveReset(ok)
	}
}
