// Package app wires configuration into the storage, tag integration and
// service graph shared by the server and the admin CLI.
package app

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/InverskProperty/propsk-sub012/internal/config"
	"github.com/InverskProperty/propsk-sub012/internal/database"
	"github.com/InverskProperty/propsk-sub012/internal/handlers"
	"github.com/InverskProperty/propsk-sub012/internal/lock"
	"github.com/InverskProperty/propsk-sub012/internal/logger"
	"github.com/InverskProperty/propsk-sub012/internal/repository"
	"github.com/InverskProperty/propsk-sub012/internal/services"
	"github.com/InverskProperty/propsk-sub012/internal/tagsync"
)

// App holds the opened resources and the services built on them.
type App struct {
	Config *config.Config
	Log    *logger.Logger

	// DB is nil for the memory driver.
	DB    *database.Database
	Store *repository.Store

	// Tags is nil when the integration is disabled.
	Tags services.TagResolver

	// Redis is nil when no address is configured; Locker is then in-process.
	Redis  *redis.Client
	Locker lock.Locker

	Assignments services.AssignmentService
	Blocks      services.BlockService
	Sync        services.SyncService
	Portfolios  services.PortfolioService
}

// New opens the store selected by cfg, runs pending migrations when asked
// to, and builds every service. Callers must Close the App.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}

	switch cfg.Database.Driver {
	case config.DriverMemory:
		a.Store = repository.NewMemoryStore()
		log.Warn("Using in-memory store; data is lost on exit", nil)
	default:
		db, err := database.NewPostgresPool(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.DB = db
		if cfg.Database.AutoMigrate {
			if err := db.Migrate(ctx); err != nil {
				a.Close()
				return nil, err
			}
		}
		a.Store = repository.NewPostgresStore(db)
		log.Info("Database connection established", map[string]interface{}{
			"host":     cfg.Database.Host,
			"port":     cfg.Database.Port,
			"database": cfg.Database.Name,
			"pool_min": cfg.Database.PoolMin,
			"pool_max": cfg.Database.PoolMax,
		})
	}

	// Assigning a nil *Resolver would make Tags a non-nil interface.
	if cfg.TagSync.Enabled {
		a.Tags = tagsync.NewResolver(tagsync.NewHTTPClient(cfg.TagSync, log), log)
		log.Info("Tag integration enabled", map[string]interface{}{"base_url": cfg.TagSync.BaseURL})
	} else {
		log.Warn("Tag integration disabled; assignments stay pending", nil)
	}

	if cfg.Redis.Addr != "" {
		a.Redis = lock.NewRedisClient(cfg.Redis)
		a.Locker = lock.NewRedisLocker(a.Redis)
	} else {
		a.Locker = lock.NewLocalLocker()
	}

	a.Assignments = services.NewAssignmentService(a.Store, a.Tags, log)
	a.Blocks = services.NewBlockService(a.Store, log)
	a.Sync = services.NewSyncService(a.Store, a.Tags, log)
	a.Portfolios = services.NewPortfolioService(a.Store, a.Tags, log)
	return a, nil
}

// HealthChecks lists the dependencies the readiness probe pings.
func (a *App) HealthChecks() map[string]handlers.Pinger {
	checks := map[string]handlers.Pinger{}
	if a.DB != nil {
		checks["database"] = a.DB
	}
	if l, ok := a.Locker.(*lock.RedisLocker); ok {
		checks["redis"] = l
	}
	return checks
}

// Close releases the database pool and the Redis client. Safe to call twice.
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
		a.DB = nil
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Log.Error("Failed to close redis client", err, nil)
		}
		a.Redis = nil
	}
}

// RequireTags fails when the integration is disabled.
func (a *App) RequireTags() error {
	if a.Tags == nil {
		return fmt.Errorf("tag integration is disabled (set TAGSYNC_ENABLED=true)")
	}
	return nil
}
