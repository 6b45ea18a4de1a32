// Package migrations embeds the local SQLite schema so goose can apply it on
// device without a migrations directory on disk.
package migrations

import "embed"

// FS holds all *.sql migration files embedded at compile time.
//
//go:embed *.sql
var FS embed.FS
