// Package app wires the design verification pipeline from configuration.
// Both the operational server and the command line tool build on it.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/DukeRupert/designaudit/internal"
	"github.com/DukeRupert/designaudit/internal/design"
	"github.com/DukeRupert/designaudit/internal/jobs"
	"github.com/DukeRupert/designaudit/internal/logstore"
	"github.com/DukeRupert/designaudit/internal/rules"
	"github.com/DukeRupert/designaudit/internal/safety"
	"github.com/DukeRupert/designaudit/internal/service"
	"github.com/DukeRupert/designaudit/internal/storage"
	"github.com/DukeRupert/designaudit/internal/version"
	"github.com/DukeRupert/designaudit/internal/worker"
)

// App holds the pipeline components and the connections they use.
type App struct {
	Engine    *rules.Engine
	Designers *design.Registry
	Logs      logstore.Store
	Safety    *safety.Layer
	Versions  *version.Manager
	Archive   storage.Storage
	Designs   service.DesignService
	Jobs      *worker.Pool

	db     *sql.DB
	redis  *redis.Client
	logger *slog.Logger
}

// New connects the configured backends and builds the pipeline. Close must
// be called to release connections.
func New(ctx context.Context, cfg *internal.Config, logger *slog.Logger) (*App, error) {
	a := &App{logger: logger}
	if err := a.init(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context, cfg *internal.Config) error {
	// Rule engine
	var ruleSource fs.FS = rules.DefaultDefinitions()
	if cfg.RulesDir != "" {
		ruleSource = os.DirFS(cfg.RulesDir)
	}
	a.Engine = rules.NewEngine(ruleSource, a.logger)
	if err := a.Engine.Reload(); err != nil {
		return fmt.Errorf("rule engine initialization failed: %w", err)
	}

	// Version store
	var versionStore version.Store
	switch cfg.VersionStore {
	case internal.VersionStorePostgres:
		db, err := sql.Open("pgx", cfg.DatabaseUrl)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		a.db = db
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("database ping failed: %w", err)
		}
		if err := internal.RunMigrations(ctx, db, a.logger); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		versionStore = version.NewPostgresStore(db)
		a.logger.Info("database ready")
	default:
		versionStore = version.NewMemoryStore()
		a.logger.Warn("using in-memory version store, versions are lost on exit")
	}

	// Calculation log store
	switch cfg.LogStore {
	case internal.LogStoreRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		a.redis = redis.NewClient(opts)
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
		a.Logs = logstore.NewRedisStore(a.redis, cfg.LogStoreTTL, a.logger)
		a.logger.Info("redis log store ready", "ttl", cfg.LogStoreTTL)
	default:
		a.Logs = logstore.NewMemoryStore()
	}

	// Archive
	archive, err := storage.New(cfg.StorageProvider,
		storage.LocalConfig{BasePath: cfg.LocalStoragePath},
		storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			Endpoint:        cfg.R2Endpoint,
		},
		a.logger,
	)
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}
	a.Archive = archive

	a.Designers = design.DefaultRegistry()
	a.Safety = safety.NewLayer(a.logger, safety.WithMinReasonLength(cfg.OverrideMinReasonLength))
	a.Versions = version.NewManager(versionStore, a.Archive, a.logger)
	a.Designs = service.NewDesignService(a.Engine, a.Designers, a.Logs, a.Safety, a.Versions, a.Archive, a.logger)

	// Batch design jobs
	workerConfig := worker.DefaultConfig()
	workerConfig.Concurrency = cfg.WorkerConcurrency
	workerConfig.JobTimeout = cfg.JobTimeout
	pool, err := worker.New(workerConfig, a.logger)
	if err != nil {
		return fmt.Errorf("worker initialization failed: %w", err)
	}
	pool.Register(jobs.NewRunDesignHandler(a.Designs, a.logger))
	a.Jobs = pool

	a.logger.Info("design pipeline ready",
		"rule_categories", a.Engine.Categories(),
		"designers", a.Designers.Types(),
	)
	return nil
}

// Health pings the external backends in use.
func (a *App) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if a.db != nil {
		if err := a.db.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Close releases the database and Redis connections.
func (a *App) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
