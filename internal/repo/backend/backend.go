// Package backend opens the HistoryStore selected by configuration.
package backend

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hamed0406/sitestatus/internal/config"
	"github.com/hamed0406/sitestatus/internal/repo"
	"github.com/hamed0406/sitestatus/internal/repo/file"
	"github.com/hamed0406/sitestatus/internal/repo/memory"
	"github.com/hamed0406/sitestatus/internal/repo/postgres"
	rds "github.com/hamed0406/sitestatus/internal/repo/redis"
	"github.com/hamed0406/sitestatus/internal/repo/sqlite"
)

// Open returns the configured store and a close func (a no-op for stores
// without a connection).
func Open(ctx context.Context, cfg config.StoreConfig, log *zap.Logger) (repo.HistoryStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Driver {
	case config.DriverFile, "":
		s := file.New(cfg.Path)
		log.Info("store_selected", zap.String("driver", config.DriverFile), zap.String("path", s.Path()))
		return s, noop, nil
	case config.DriverMemory:
		log.Warn("store_selected", zap.String("driver", config.DriverMemory), zap.String("note", "history is lost on restart"))
		return memory.New(), noop, nil
	case config.DriverSQLite:
		s, err := sqlite.New(ctx, cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite store: %w", err)
		}
		log.Info("store_selected", zap.String("driver", config.DriverSQLite), zap.String("path", cfg.Path))
		return s, s.Close, nil
	case config.DriverPostgres:
		s, err := postgres.New(ctx, cfg.DSN, log)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres store: %w", err)
		}
		log.Info("store_selected", zap.String("driver", config.DriverPostgres))
		return s, s.Close, nil
	case config.DriverRedis:
		s, err := rds.New(ctx, rds.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.KeyPrefix,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("redis store: %w", err)
		}
		log.Info("store_selected", zap.String("driver", config.DriverRedis), zap.String("addr", cfg.RedisAddr))
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
