// Package app wires the progression engine to its configured cache,
// remote store and attempt log. The daemon, the MCP server and the
// attempt-log worker all build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/felixgeelhaar/fracquest/internal/config"
	"github.com/felixgeelhaar/fracquest/internal/progress"
	"github.com/felixgeelhaar/fracquest/internal/queue"
	"github.com/felixgeelhaar/fracquest/internal/storage/local"
	"github.com/felixgeelhaar/fracquest/internal/storage/postgres"
	"github.com/felixgeelhaar/fracquest/internal/storage/sqlite"
)

// App holds all application dependencies
type App struct {
	Config   *config.LocalConfig
	Engine   *progress.Engine
	Cache    progress.Cache
	Session  *progress.Session
	Registry *prometheus.Registry

	closers []func() error
}

// AppConfig holds configuration for application initialization
type AppConfig struct {
	Config *config.LocalConfig

	// Dir is the data directory, normally ~/.fracquest
	Dir string

	// Registry receives engine metrics (default: a fresh registry)
	Registry *prometheus.Registry
}

// NewApp creates a new application instance with all dependencies wired.
// The remote store is never dialed here: an unreachable database shows up
// on the first call, where the circuit breaker routes the engine to the
// local cache until the database recovers.
func NewApp(ctx context.Context, cfg AppConfig) (*App, error) {
	if cfg.Config == nil {
		cfg.Config = config.DefaultLocalConfig()
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}

	layout, err := cfg.Config.Layout()
	if err != nil {
		return nil, fmt.Errorf("level layout: %w", err)
	}

	a := &App{
		Config:   cfg.Config,
		Session:  progress.NewSession(cfg.Config.User.ID),
		Registry: cfg.Registry,
	}

	a.Cache, err = a.openCache(ctx, cfg.Config.CacheDir(cfg.Dir))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open cache: %w", err)
	}

	var remote progress.RemoteStore
	if cfg.Config.Remote.Enabled {
		remote, err = a.openRemote(ctx)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open remote store: %w", err)
		}
	}

	a.Engine, err = progress.NewEngine(progress.Config{
		Layout:  layout,
		Remote:  remote,
		Cache:   a.Cache,
		Users:   a.Session,
		Metrics: progress.NewMetrics(cfg.Registry),
		Logger:  slog.Default(),
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create engine: %w", err)
	}

	slog.Info("progression engine ready",
		"groups", layout.Groups(),
		"cache", cfg.Config.Cache.Backend,
		"remote", remote != nil,
		"attempt_log", cfg.Config.Remote.AttemptLog,
	)

	return a, nil
}

func (a *App) openCache(ctx context.Context, dir string) (progress.Cache, error) {
	switch a.Config.Cache.Backend {
	case config.CacheBackendSQLite:
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
		db, err := sqlite.Open(filepath.Join(dir, "cache.db"))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		if err := db.Migrate(ctx); err != nil {
			return nil, err
		}
		return sqlite.NewCacheStore(db), nil

	default:
		return local.NewStore(dir)
	}
}

func (a *App) openRemote(ctx context.Context) (_ progress.RemoteStore, err error) {
	remoteCfg := a.Config.Remote

	// Resources are handed to a.closers only once the store is built.
	var opened []func() error
	defer func() {
		if err != nil {
			for i := len(opened) - 1; i >= 0; i-- {
				_ = opened[i]()
			}
			return
		}
		a.closers = append(a.closers, opened...)
	}()

	pool, err := postgres.NewPool(ctx, remoteCfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	opened = append(opened, func() error { pool.Close(); return nil })

	attempts, closeAttempts, err := a.openAttemptWriter()
	if err != nil {
		return nil, err
	}
	if closeAttempts != nil {
		opened = append(opened, closeAttempts)
	}

	store := postgres.NewStore(pool, attempts)
	schemaCtx, cancel := context.WithTimeout(ctx, a.Config.RemoteTimeout())
	defer cancel()
	if err := store.EnsureSchema(schemaCtx); err != nil {
		slog.Warn("progress schema not applied yet, retrying on first use", "error", err)
	}

	return progress.NewResilientStore(store, progress.ResilientConfig{
		Timeout:              a.Config.RemoteTimeout(),
		EnableCircuitBreaker: true,
		EnableRetry:          a.Config.Resilience.RetryAttempts > 1,
		FailureThreshold:     a.Config.Resilience.BreakerThreshold,
		MaxAttempts:          a.Config.Resilience.RetryAttempts,
		MaxConcurrent:        a.Config.Resilience.MaxConcurrent,
		Logger:               slog.Default(),
	}), nil
}

// openAttemptWriter returns the direct Postgres attempt log, or the queue
// producer when attempts are drained by a worker. An unreachable broker
// leaves the writer nil: attempts are then dropped with a warning while
// progress keeps flowing.
func (a *App) openAttemptWriter() (progress.AttemptWriter, func() error, error) {
	if a.Config.Remote.AttemptLog == config.AttemptLogQueue {
		conn, err := queue.NewConnection(a.Config.Queue.URL)
		if err != nil {
			slog.Warn("attempt queue unavailable, attempts will not be logged", "error", err)
			return nil, nil, nil
		}
		return queue.NewProducer(conn), conn.Close, nil
	}

	log, err := postgres.OpenAttemptLog(a.Config.Remote.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return log, log.Close, nil
}

// Close cleans up application resources in reverse order of opening
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
