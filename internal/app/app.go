package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/atvirokodosprendimai/storefront/internal/adapters/events"
	"github.com/atvirokodosprendimai/storefront/internal/adapters/httpapi"
	"github.com/atvirokodosprendimai/storefront/internal/adapters/partition"
	"github.com/atvirokodosprendimai/storefront/internal/adapters/store"
	"github.com/atvirokodosprendimai/storefront/internal/adapters/store/gormdb"
	"github.com/atvirokodosprendimai/storefront/internal/config"
	"github.com/atvirokodosprendimai/storefront/internal/core/ports"
	"github.com/atvirokodosprendimai/storefront/internal/core/usecase"
	"github.com/atvirokodosprendimai/storefront/internal/metrics"
	"github.com/atvirokodosprendimai/storefront/migrations"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

type resourceCloser struct {
	closers []io.Closer
}

func (r resourceCloser) Close() error {
	var firstErr error
	for _, c := range r.closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// App holds the registry-side services. The partition pool and HTTP servers
// are only created by Serve.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	db         *gormdb.DB
	tenantRepo *store.TenantRepository
	registry   *prometheus.Registry
	metrics    *metrics.Metrics

	Tenants     *usecase.TenantService
	Auth        *usecase.AuthService
	Credentials *usecase.CredentialService
	Events      *usecase.EventService

	usage      *usecase.UsageRecorder
	dispatcher *usecase.OutboxDispatcher
	closer     resourceCloser
}

// Open connects the registry database, applies shared migrations and builds
// the services.
func Open(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}

	db, err := gormdb.Open(gormdb.Options{
		DSN:     cfg.DatabaseURL,
		ReadDSN: cfg.DatabaseReadURL,
		Writer:  registryPool(cfg),
		Reader:  registryPool(cfg),
	})
	if err != nil {
		return nil, fmt.Errorf("open registry db: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	tenantRepo := store.NewTenantRepository(db, store.NewSchemaProvisioner())
	keyRepo := store.NewAPIKeyRepository(db)
	outboxRepo := store.NewOutboxRepository(db)

	usage := usecase.NewUsageRecorder(keyRepo, cfg.UsageFlushInterval, cfg.UsageMaxPending, logger.Named("usage"))
	usage.OnDrop(m.UsageDropped)
	dispatcher := usecase.NewOutboxDispatcher(outboxRepo, newPublisher(cfg, logger), cfg.OutboxInterval, cfg.OutboxBatchSize, logger.Named("outbox"))
	m.RegisterUsageRecorder(usage)
	m.RegisterOutbox(dispatcher)

	return &App{
		cfg:         cfg,
		logger:      logger,
		db:          db,
		tenantRepo:  tenantRepo,
		registry:    registry,
		metrics:     m,
		Tenants:     usecase.NewTenantService(tenantRepo, store.NewUsageRepository()),
		Auth:        usecase.NewAuthService(keyRepo, tenantRepo, usage),
		Credentials: usecase.NewCredentialService(keyRepo, tenantRepo),
		Events:      usecase.NewEventService(outboxRepo),
		usage:       usage,
		dispatcher:  dispatcher,
		closer:      resourceCloser{closers: []io.Closer{dispatcher, usage, db}},
	}, nil
}

// Migrate applies the shared-partition migrations and reports the resulting
// version.
func Migrate(ctx context.Context, cfg config.Config) (int64, error) {
	if err := cfg.RequireDatabase(); err != nil {
		return 0, err
	}
	db, err := gormdb.Open(gormdb.Options{DSN: cfg.DatabaseURL, Writer: gormdb.PoolOptions{MaxOpenConns: 1}})
	if err != nil {
		return 0, fmt.Errorf("open registry db: %w", err)
	}
	defer db.Close()

	if err := migrate(ctx, db); err != nil {
		return 0, err
	}
	sqlDB, err := db.WriteSQLDB()
	if err != nil {
		return 0, err
	}
	return migrations.Version(ctx, sqlDB, migrations.DialectPostgres)
}

func migrate(ctx context.Context, db *gormdb.DB) error {
	sqlDB, err := db.WriteSQLDB()
	if err != nil {
		return fmt.Errorf("resolve writer sql db: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return migrations.Up(ctx, sqlDB, migrations.DialectPostgres)
}

func registryPool(cfg config.Config) gormdb.PoolOptions {
	return gormdb.PoolOptions{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}
}

func newPublisher(cfg config.Config, logger *zap.Logger) ports.EventPublisher {
	if cfg.WebhookURL != "" {
		return events.NewWebhookPublisher(cfg.WebhookURL, cfg.WebhookSecret, cfg.WebhookTimeout)
	}
	return events.NewLogPublisher(logger)
}

// warnUnauthenticatedAdmin reports a management API that anyone reaching the
// listener can use to create tenants and mint keys.
func warnUnauthenticatedAdmin(cfg config.Config, logger *zap.Logger) bool {
	if cfg.AdminToken != "" {
		return false
	}
	logger.Warn("ADMIN_TOKEN is not set; management API is unauthenticated",
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("path", "/admin/api/"),
	)
	return true
}

// Serve runs the API and metrics servers together with the background
// workers until ctx is cancelled or a server fails.
func (a *App) Serve(ctx context.Context) error {
	warnUnauthenticatedAdmin(a.cfg, a.logger)

	partitionDB, err := gormdb.OpenHandle(a.cfg.DatabaseURL, gormdb.PoolOptions{
		MaxOpenConns:    a.cfg.PartitionMaxOpenConns,
		MaxIdleConns:    a.cfg.PartitionMaxIdleConns,
		ConnMaxLifetime: a.cfg.ConnMaxLifetime,
	}, true)
	if err != nil {
		return fmt.Errorf("open partition pool: %w", err)
	}
	defer func() {
		if sqlDB, err := partitionDB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()

	pool, err := partition.NewPool(partitionDB, partition.NewBinder(),
		partition.WithResetTimeout(a.cfg.PartitionResetTimeout),
		partition.WithObserver(a.metrics),
		partition.WithLogger(a.logger.Named("partition")),
	)
	if err != nil {
		return err
	}
	a.metrics.RegisterPool(pool.Stats)

	opts := []usecase.IdentifierOption{usecase.WithResolutionObserver(a.metrics)}
	if len(a.cfg.PublicPaths) > 0 {
		opts = append(opts, usecase.WithPublicPaths(a.cfg.PublicPaths))
	}
	validator, err := usecase.NewPayloadValidator()
	if err != nil {
		return err
	}

	handler := httpapi.NewHandler(httpapi.Services{
		Identifier:  usecase.NewIdentifier(a.Auth, a.tenantRepo, a.logger.Named("identifier"), opts...),
		Partitions:  pool,
		Tenants:     a.Tenants,
		Auth:        a.Auth,
		Credentials: a.Credentials,
		Events:      a.Events,
		Validator:   validator,
	}, httpapi.Options{
		AdminToken:    a.cfg.AdminToken,
		DevHosts:      a.cfg.CORSDevHosts,
		DefaultKeyTTL: a.cfg.DefaultKeyTTL,
		Logger:        a.logger,
	})

	apiServer := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{
		Addr:              a.cfg.MetricsAddr,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	a.usage.Start(gctx)
	a.dispatcher.Start(gctx)

	g.Go(func() error { return a.listen(apiServer, "api") })
	g.Go(func() error { return a.listen(metricsServer, "metrics") })
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return errors.Join(apiServer.Shutdown(shutdownCtx), metricsServer.Shutdown(shutdownCtx))
	})
	return g.Wait()
}

func (a *App) listen(srv *http.Server, name string) error {
	a.logger.Info("listening", zap.String("server", name), zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server: %w", name, err)
	}
	return nil
}

// Close stops the workers, flushes pending usage and closes the registry.
func (a *App) Close() error {
	return a.closer.Close()
}
