// Package db provides the on-device SQLite connection backing local walk storage.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// FileName is the database file created inside the data directory.
const FileName = "pawtrail.db"

// DB wraps the sql.DB with walk-core specific configuration.
type DB struct {
	*sql.DB
	Path string
}

// Open opens the local SQLite database in dataDir. The database is opened with:
// - a single connection, since SQLite doesn't support multiple writers
// - WAL mode so readers never block the checkpoint writer
// - synchronous=FULL so a committed checkpoint survives power loss
func Open(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, FileName)

	// modernc.org/sqlite is pure Go, so the mobile build needs no CGO toolchain for it.
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	return &DB{DB: db, Path: dbPath}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}
