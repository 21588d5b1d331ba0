package main

import (
	"context"
	"fmt"
	"log/slog"

	"devcompliance/internal/compliance/service"
	"devcompliance/internal/compliance/store"
	"devcompliance/internal/platform/config"
	"devcompliance/internal/platform/health"
	"devcompliance/internal/platform/postgres"
	"devcompliance/internal/platform/redis"
)

// backend is what main needs from a store: the service port plus a
// readiness ping.
type backend interface {
	service.Store
	health.Pinger
}

// openStore builds the backend selected by STORE_DRIVER. The returned close
// func releases its connections and is never nil.
func openStore(ctx context.Context, cfg config.Server, log *slog.Logger) (backend, func() error, error) {
	noop := func() error { return nil }

	switch cfg.StoreDriver {
	case config.DriverPostgres:
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, noop, err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, noop, err
		}
		log.InfoContext(ctx, "compliance store ready", "driver", cfg.StoreDriver)
		return store.NewPostgres(db), db.Close, nil

	case config.DriverRedis:
		client, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, noop, err
		}
		log.InfoContext(ctx, "compliance store ready", "driver", cfg.StoreDriver)
		return store.NewRedis(client.Client), client.Close, nil

	case config.DriverMemory:
		log.WarnContext(ctx, "compliance store is in-memory; records are lost on restart")
		return store.NewInMemory(), noop, nil

	default:
		return nil, noop, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
