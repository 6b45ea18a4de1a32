package remote

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimhsiao/pawtrail/core/internal/models"
)

// TestPostgres_integration runs against TEST_DATABASE_URL and is skipped
// when it is not set.
func TestPostgres_integration(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	pool, err := Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	version, err := Migrate(ctx, pool)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, version, int64(1))

	again, err := Migrate(ctx, pool)
	require.NoError(t, err)
	assert.Equal(t, version, again)

	svc := NewPostgres(pool)
	rec := sampleRecord()

	first, err := svc.InsertWalk(ctx, rec)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.DeleteWalk(context.Background(), first) })

	second, err := svc.InsertWalk(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	events := []models.WalkEvent{{
		ID:        "5b0c6f9e-2d1a-4c7e-8f3b-9a2e1d0c4b5a",
		EventType: models.EventWater,
		Timestamp: rec.StartTime,
	}}
	require.NoError(t, svc.InsertWalkEvents(ctx, first, events))
	require.NoError(t, svc.InsertWalkEvents(ctx, first, events))
	require.NoError(t, svc.DeleteWalkEvents(ctx, first))
}

func TestConnect_badURL(t *testing.T) {
	_, err := Connect(context.Background(), "postgres://%zz")
	assert.Error(t, err)
}
