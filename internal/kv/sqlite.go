package kv

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/pkg/errors"
)

// SQLite stores keys in the kv_store table created by the local migrations.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite creates a SQLite-backed store. The schema must already be migrated.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db, now: time.Now}
}

// Get implements Store.
func (s *SQLite) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = ?`, key).Scan(&value)
	if stderrors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "kv: get %q", key)
	}
	return value, true, nil
}

// Set implements Store.
func (s *SQLite) Set(ctx context.Context, key, value string) error {
	const q = `
	INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, q, key, value, s.now().UnixMilli()); err != nil {
		return errors.Wrapf(err, "kv: set %q", key)
	}
	return nil
}

// Remove implements Store.
func (s *SQLite) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_store WHERE key = ?`, key); err != nil {
		return errors.Wrapf(err, "kv: remove %q", key)
	}
	return nil
}
