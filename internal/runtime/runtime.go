package runtime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/dynamisch-arpit/RT-shared-component/internal/audit"
	cfgpkg "github.com/dynamisch-arpit/RT-shared-component/internal/config"
	"github.com/dynamisch-arpit/RT-shared-component/internal/pipeline"
	"github.com/dynamisch-arpit/RT-shared-component/internal/queue"
	"github.com/dynamisch-arpit/RT-shared-component/internal/queue/local"
	"github.com/dynamisch-arpit/RT-shared-component/internal/storage/kv"
	"github.com/dynamisch-arpit/RT-shared-component/internal/tenant"
	"github.com/dynamisch-arpit/RT-shared-component/internal/worker"
)

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	Logger *zap.Logger
	// OpenTenantConn overrides how per-tenant databases are dialed.
	// Nil uses the postgres default.
	OpenTenantConn tenant.OpenFunc
}

// Runtime wires the queue backend, tenant resolution, and the pipeline
// for a single-node instance.
type Runtime struct {
	config cfgpkg.Config
	logger *zap.Logger

	store    *kv.Store
	client   *queue.Client
	tenantDB *sql.DB
	source   *tenant.SQLSource
	cache    *tenant.ConfigCache
	registry *tenant.ConnectionRegistry
	pipe     *pipeline.Pipeline
	cron     *cron.Cron
}

// Open initializes storage, provisions the queue and its dead-letter
// companion, and returns a ready Runtime.
func Open(opts Options) (*Runtime, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	store, err := kv.Open(kv.Options{DataDir: filepath.Join(cfg.DataDir, "queue")})
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}

	rt := &Runtime{config: cfg, logger: logger, store: store}

	backend := local.NewBackend(store, logger)
	rt.client = queue.NewClient(backend, cfg.QueueName, logger)
	err = rt.client.Create(context.Background(), queue.Attributes{
		RetentionPeriod:   time.Duration(cfg.Queue.RetentionDays) * 24 * time.Hour,
		VisibilityTimeout: time.Duration(cfg.Queue.VisibilityTimeoutSeconds) * time.Second,
		ReceiveWaitTime:   time.Duration(cfg.Queue.ReceiveWaitSeconds) * time.Second,
	}, &queue.DLQSpec{MaxReceiveCount: cfg.Queue.MaxReceiveCount})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("provision queue: %w", err)
	}

	rt.tenantDB, err = sql.Open("sqlite3", cfg.TenantDB())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open tenant db: %w", err)
	}
	rt.source = tenant.NewSQLSource(rt.tenantDB)
	if err := rt.source.EnsureSchema(context.Background()); err != nil {
		_ = rt.tenantDB.Close()
		_ = store.Close()
		return nil, err
	}

	ttl := time.Duration(cfg.TenantCacheTTLHours) * time.Hour
	rt.cache = tenant.NewConfigCache(rt.source, ttl, logger)
	rt.registry = tenant.NewConnectionRegistry(rt.cache, opts.OpenTenantConn, logger)
	rt.pipe = pipeline.New(rt.client, rt.registry, audit.Dialect(cfg.AuditDialect), logger)
	return rt, nil
}

// Close stops the retention job and releases every owned resource.
func (r *Runtime) Close() error {
	if r.cron != nil {
		ctx := r.cron.Stop()
		<-ctx.Done()
		r.cron = nil
	}
	var firstErr error
	if r.registry != nil {
		if err := r.registry.CloseAll(); err != nil {
			firstErr = err
		}
	}
	if r.tenantDB != nil {
		if err := r.tenantDB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.store = nil
	}
	return firstErr
}

// CheckHealth verifies the queue store and the tenant database answer.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.store == nil {
		return errors.New("store not open")
	}
	it, err := r.store.NewIter(nil)
	if err != nil {
		return err
	}
	if err := it.Close(); err != nil {
		return err
	}
	return r.tenantDB.PingContext(ctx)
}

// StartRetention schedules the audit purge job per the configured cron
// expression. Safe to call once; a bad expression is an error.
func (r *Runtime) StartRetention() error {
	if r.cron != nil {
		return nil
	}
	c := cron.New()
	days := r.config.Retention.Days
	_, err := c.AddFunc(r.config.Retention.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		purged := r.pipe.CleanupAll(ctx, days)
		r.logger.Info("retention pass complete", zap.Int("tenants", len(purged)))
	})
	if err != nil {
		return fmt.Errorf("schedule retention: %w", err)
	}
	c.Start()
	r.cron = c
	return nil
}

// NewWorker builds the consumer loop bound to the queue and the
// pipeline handler.
func (r *Runtime) NewWorker() *worker.Worker {
	w := r.config.Worker
	return worker.New(r.client, r.pipe.Handler(), worker.Options{
		MaxMessages:     w.MaxMessages,
		Concurrency:     w.Concurrency,
		MaxRetries:      w.MaxRetries,
		RetryDelay:      time.Duration(w.RetryDelaySeconds) * time.Second,
		ShutdownTimeout: time.Duration(w.ShutdownTimeoutSeconds) * time.Second,
	}, r.logger)
}

// InvalidateTenant drops every cached artifact for one tenant: the
// config entry, the pooled connection, and the pipeline's store.
func (r *Runtime) InvalidateTenant(clientID string) error {
	r.cache.Invalidate(clientID)
	r.pipe.Forget(clientID)
	return r.registry.Close(clientID)
}

// Pipeline returns the audit pipeline façade.
func (r *Runtime) Pipeline() *pipeline.Pipeline { return r.pipe }

// Queue returns the bound queue client.
func (r *Runtime) Queue() *queue.Client { return r.client }

// Tenants returns the durable tenant configuration source.
func (r *Runtime) Tenants() *tenant.SQLSource { return r.source }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
