package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/HatiCode/loadcast/cmd/forecaster/config"
	"github.com/HatiCode/loadcast/cmd/forecaster/metrics"
	"github.com/HatiCode/loadcast/pkg/cache"
	"github.com/HatiCode/loadcast/pkg/database"
	"github.com/HatiCode/loadcast/pkg/storage"
)

// backends holds the stores the API runs on and how to release them.
type backends struct {
	store  storage.Store
	cache  cache.Cache
	ready  map[string]func(ctx context.Context) error
	closer []func()
}

func (b *backends) Close() {
	for i := len(b.closer) - 1; i >= 0; i-- {
		b.closer[i]()
	}
}

// openStore connects the forecast store. A database that stays unreachable
// after the configured retries is returned as a *forecast.ConnectivityError.
func openStore(ctx context.Context, cfg *config.Config, b *backends, logger *slog.Logger) error {
	if cfg.Storage == "memory" {
		logger.Warn("using in-memory forecast store, data is lost on restart")
		b.store = storage.NewMemoryStore()
		return nil
	}

	if cfg.Migrate {
		// Migrate dials on its own; run it behind the same retry policy as the pool.
		if _, err := database.Retry(ctx, cfg.Retry, "migrations", logger, func(context.Context) (struct{}, error) {
			return struct{}{}, database.Migrate(cfg.Database, logger)
		}); err != nil {
			return err
		}
	}

	pool, err := database.Connect(ctx, cfg.Database, cfg.Retry, logger)
	if err != nil {
		return err
	}
	b.closer = append(b.closer, pool.Close)

	b.store = storage.NewPostgresStore(pool)
	b.ready["database"] = database.NewReadinessChecker(pool).Check
	return nil
}

// openCache builds the result cache, wrapped so backend failures degrade to
// misses unless cfg.CacheStrict is set.
func openCache(cfg *config.Config, b *backends, logger *slog.Logger, m *metrics.Metrics) error {
	var backend cache.Cache

	switch cfg.Cache {
	case "redis":
		rc, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			if cfg.CacheStrict {
				return fmt.Errorf("create redis cache: %w", err)
			}
			// Start anyway; the breaker keeps probing until Redis answers.
			logger.Warn("redis unreachable at startup, cache degraded", "addr", cfg.RedisAddr, "error", err)
			if rc, err = cache.NewRedisCacheLazy(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB); err != nil {
				return err
			}
		}
		b.closer = append(b.closer, func() {
			if err := rc.Close(); err != nil {
				logger.Error("failed to close redis cache", "error", err)
			}
		})
		if cfg.CacheStrict {
			b.ready["cache"] = rc.Ping
		}
		backend = rc
		logger.Info("using redis cache", "addr", cfg.RedisAddr, "db", cfg.RedisDB, "ttl", cfg.CacheTTL)
	default:
		backend = cache.NewMemoryCache(cfg.CacheMaxEntries, cfg.CacheTTL)
		logger.Info("using in-memory cache", "max_entries", cfg.CacheMaxEntries, "ttl", cfg.CacheTTL)
	}

	b.cache = cache.NewDegrading(backend, cache.DegradingOptions{
		Strict: cfg.CacheStrict,
		Logger: logger,
		OnError: func(op string) {
			if m != nil {
				m.RecordCacheError(op)
			}
		},
	})
	return nil
}
