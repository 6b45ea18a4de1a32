package remote

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	"github.com/kimhsiao/pawtrail/core/internal/remote/migrations"
)

// Dial creates a connection pool for databaseURL without connecting. Devices
// start offline often enough that the first connection is left to the
// connectivity prober.
func Dial(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "remote: open pool")
	}
	return pool, nil
}

// Connect opens a connection pool to databaseURL and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := Dial(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "remote: ping")
	}
	return pool, nil
}

// Migrate applies the embedded schema and returns the resulting version.
// goose needs database/sql, so the pool is wrapped with the pgx stdlib adapter.
func Migrate(ctx context.Context, pool *pgxpool.Pool) (int64, error) {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		return 0, errors.Wrap(err, "remote: create migration provider")
	}
	if _, err := provider.Up(ctx); err != nil {
		return 0, errors.Wrap(err, "remote: apply migrations")
	}
	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "remote: read schema version")
	}
	return version, nil
}
