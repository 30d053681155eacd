// Package app assembles the valuation engine from configuration. The server,
// the worker and the CLI share it so every process wires the same stores,
// cache and listeners.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"carmen/internal/config"
	"carmen/internal/core/tx"
	"carmen/internal/domain/audit"
	"carmen/internal/domain/costing/fifo"
	"carmen/internal/domain/costing/periodic"
	"carmen/internal/domain/costing/settings"
	"carmen/internal/domain/costing/valuation"
	"carmen/internal/domain/registers/cost"
	"carmen/internal/infrastructure/cache"
	"carmen/internal/infrastructure/http/v1/handlers"
	"carmen/internal/infrastructure/storage/memory"
	"carmen/internal/infrastructure/storage/postgres"
	"carmen/internal/infrastructure/storage/postgres/register_repo"
	"carmen/internal/infrastructure/storage/postgres/settings_repo"
	"carmen/pkg/logger"
)

// Options adjusts how the application is assembled.
type Options struct {
	// Memory uses in-process stores instead of PostgreSQL.
	Memory bool
	// Registerer receives cache metrics; a fresh registry is used when nil.
	Registerer prometheus.Registerer
}

// App holds the wired services.
type App struct {
	Config *config.Config

	Pool      *postgres.Pool
	TxManager *postgres.TxManager
	Redis     *redis.Client

	Settings   *settings.Service
	Register   *cost.Service
	Calculator *periodic.Calculator
	FIFO       *fifo.Strategy
	Valuation  *valuation.Service
	Audit      audit.Recorder

	Registry *prometheus.Registry
	Checks   map[string]handlers.CheckFunc

	closers []func()
}

// New builds the application. Close releases what it opened.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{
		Config: cfg,
		Checks: map[string]handlers.CheckFunc{},
	}

	registerer := opts.Registerer
	if registerer == nil {
		a.Registry = prometheus.NewRegistry()
		registerer = a.Registry
	}
	metrics, err := cache.NewMetrics(registerer)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	var (
		settingsRepo settings.Repository
		costRepo     interface {
			cost.Repository
			fifo.History
		}
		txm tx.Manager
	)

	if opts.Memory || cfg.DatabaseURL == "" {
		logger.Info(ctx, "using in-memory stores")
		settingsRepo = memory.NewSettingsRepo()
		costRepo = memory.NewCostRepo()
		a.Audit = memory.NewAuditLog()
	} else {
		if err := a.openDatabase(ctx, registerer); err != nil {
			a.Close()
			return nil, err
		}
		auditLog, err := postgres.NewAuditLog(a.TxManager, cfg.AuditCompressBytes)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, auditLog.Close)
		a.Audit = auditLog
		settingsRepo = settings_repo.NewSettingsRepo(a.TxManager)
		costRepo = register_repo.NewCostRepo(a.TxManager)
		txm = a.TxManager
	}

	avgCache, err := a.openCache(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	calcCfg := periodic.DefaultConfig()
	calcCfg.Location = cfg.Location()
	calcCfg.Scale = cfg.CostScale
	calcCfg.OpenTTL = cfg.OpenPeriodTTL
	calcCfg.ClosedTTL = cfg.ClosedPeriodTTL
	calcCfg.InvalidateClosed = cfg.InvalidateClosed
	a.Calculator = periodic.NewCalculator(costRepo, avgCache, calcCfg, periodic.WithObserver(metrics))

	a.Register = cost.NewService(costRepo, txm)
	a.Register.UseAudit(a.Audit)
	a.Register.Subscribe(a.Calculator)
	if a.TxManager != nil {
		a.Register.Subscribe(postgres.NewNotifier(a.TxManager, cfg.NotifyChannel))
		if cfg.KafkaEnabled() {
			a.Register.UseOutbox(postgres.NewOutboxPublisher(a.TxManager))
		}
	}

	settingsOpts := []settings.Option{settings.WithDefaultMethod(cfg.Method()), settings.WithAudit(a.Audit)}
	if txm != nil {
		settingsOpts = append(settingsOpts, settings.WithTxManager(txm))
	}
	a.Settings = settings.NewService(settingsRepo, settingsOpts...)

	var fifoOpts []fifo.Option
	if a.TxManager != nil {
		fifoOpts = append(fifoOpts, fifo.WithSnapshot(a.TxManager))
	}
	a.FIFO = fifo.NewStrategy(costRepo, cfg.CostScale, fifoOpts...)
	a.Valuation = valuation.NewService(a.Settings, a.FIFO, periodic.NewStrategy(a.Calculator))

	return a, nil
}

func (a *App) openDatabase(ctx context.Context, registerer prometheus.Registerer) error {
	poolCfg := postgres.DefaultPoolConfig(a.Config.DatabaseURL)
	poolCfg.MaxConns = a.Config.DBMaxConns
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	a.Pool = pool
	a.closers = append(a.closers, pool.Close)
	a.TxManager = postgres.NewTxManager(pool)
	a.Checks["database"] = pool.Ready
	if err := registerer.Register(postgres.NewPoolCollector(pool)); err != nil {
		return fmt.Errorf("register pool metrics: %w", err)
	}

	if a.Config.AutoMigrate {
		if err := postgres.ApplySchema(ctx, pool); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (a *App) openCache(ctx context.Context, cfg *config.Config) (periodic.Cache, error) {
	if cfg.CacheBackend == config.CacheBackendRedis {
		client, err := cache.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		a.Redis = client
		a.closers = append(a.closers, func() { _ = client.Close() })

		rc := cache.NewRedisAverageCache(client, cfg.RedisKeyPrefix, cache.DefaultBreakerConfig("redis-average-cache"))
		a.Checks["redis"] = rc.Ping
		logger.Info(ctx, "average cache backend: redis", "addr", cfg.RedisAddr)
		return rc, nil
	}

	mc := cache.NewMemoryAverageCache(cfg.CacheCapacity)
	mc.Start()
	a.closers = append(a.closers, mc.Stop)
	logger.Info(ctx, "average cache backend: memory", "capacity", cfg.CacheCapacity)
	return mc, nil
}

// SharesCache reports whether the average cache is shared between processes.
func (a *App) SharesCache() bool {
	return a.Redis != nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
