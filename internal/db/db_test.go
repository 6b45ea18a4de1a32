package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_createsDataDirAndFile(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "nested", "data")

	database, err := Open(dataDir)
	require.NoError(t, err)
	defer database.Close()

	_, err = os.Stat(filepath.Join(dataDir, FileName))
	assert.NoError(t, err)
	assert.Equal(t, filepath.Join(dataDir, FileName), database.Path)
}

func TestOpen_usesWALAndFullSync(t *testing.T) {
	database, err := Open(t.TempDir())
	require.NoError(t, err)
	defer database.Close()

	var mode string
	require.NoError(t, database.QueryRow("PRAGMA journal_mode;").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var synchronous int
	require.NoError(t, database.QueryRow("PRAGMA synchronous;").Scan(&synchronous))
	assert.Equal(t, 2, synchronous)
}

func TestMigrate_createsKVTableAndIsRepeatable(t *testing.T) {
	database, err := Open(t.TempDir())
	require.NoError(t, err)
	defer database.Close()

	ctx := context.Background()
	version, err := Migrate(ctx, database.DB)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	version, err = Migrate(ctx, database.DB)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	_, err = database.Exec(`INSERT INTO kv_store (key, value, updated_at) VALUES ('k', 'v', 1)`)
	assert.NoError(t, err)
}
