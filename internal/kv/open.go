package kv

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/kimhsiao/pawtrail/core/internal/config"
	"github.com/kimhsiao/pawtrail/core/internal/db"
	"github.com/kimhsiao/pawtrail/core/internal/network"
)

// Opened is a Store together with the functions that check and release it.
type Opened struct {
	Store Store
	Close func() error

	// Check reports whether the backend is reachable. Nil for memory.
	Check network.CheckFunc
}

// Open builds the Store selected by cfg.StorageBackend. The SQLite backend is
// migrated before it is returned.
func Open(ctx context.Context, cfg config.Config) (*Opened, error) {
	switch cfg.StorageBackend {
	case config.BackendSQLite, "":
		database, err := db.Open(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		if _, err := db.Migrate(ctx, database.DB); err != nil {
			database.Close()
			return nil, err
		}
		return &Opened{Store: NewSQLite(database.DB), Close: database.Close, Check: database.PingContext}, nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		store := NewRedis(client, cfg.RedisPrefix)
		if err := store.Ping(ctx); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err)
		}
		return &Opened{Store: store, Close: client.Close, Check: network.RedisCheck(client)}, nil

	case config.BackendMemory:
		return &Opened{Store: NewMemory(), Close: func() error { return nil }}, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
