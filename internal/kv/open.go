package kv

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/storygraph/internal/db"
	"github.com/persistorai/storygraph/internal/db/migrations"
	"github.com/persistorai/storygraph/internal/dbpool"
)

// OpenConfig selects and configures a backend.
type OpenConfig struct {
	Backend       string
	BadgerPath    string
	RedisAddr     string
	RedisPassword string
	DatabaseURL   string
	// Workers is the warm worker count; the postgres pool adds headroom for
	// request handlers on top.
	Workers int
}

// Open connects the configured backend. For postgres it also applies
// pending migrations.
func Open(ctx context.Context, cfg OpenConfig, log *logrus.Logger) (Store, error) {
	switch cfg.Backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendBadger, "":
		return OpenBadger(DefaultBadgerConfig(cfg.BadgerPath), log)
	case BackendRedis:
		return OpenRedis(ctx, RedisConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, KeyPrefix: "storygraph:"})
	case BackendPostgres:
		pc := dbpool.DefaultConfig(cfg.DatabaseURL)
		if cfg.Workers > 0 {
			pc.Workers = int32(cfg.Workers) + 6
		}

		pool, err := dbpool.NewPool(ctx, pc)
		if err != nil {
			return nil, err
		}

		if err := db.RunMigrations(ctx, pool, log, migrations.FS); err != nil {
			pool.Close()
			return nil, err
		}

		return NewPostgresStore(pool, log), nil
	default:
		return nil, fmt.Errorf("unknown kv backend %q", cfg.Backend)
	}
}
