package walkstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kimhsiao/pawtrail/core/internal/db"
	"github.com/kimhsiao/pawtrail/core/internal/errors"
	"github.com/kimhsiao/pawtrail/core/internal/kv"
	"github.com/kimhsiao/pawtrail/core/internal/models"
)

var testNow = time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*Store, *kv.Memory) {
	t.Helper()
	mem := kv.NewMemory()
	return New(mem, WithClock(func() time.Time { return testNow }), WithLogger(zap.NewNop())), mem
}

func sampleWalk(id string) *models.LocalWalk {
	return &models.LocalWalk{
		LocalID:          id,
		DogID:            "dog-1",
		UserID:           "user-1",
		StartTime:        testNow.Add(-10 * time.Minute),
		RouteCoordinates: []models.Coordinate{{Latitude: 37.5, Longitude: 127.0}},
		Events:           []models.WalkEvent{},
		DurationSeconds:  600,
		DistanceMeters:   42.5,
		SyncStatus:       models.SyncStatusPending,
	}
}

func TestActiveWalk_roundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	assert.Nil(t, s.GetActiveWalk(ctx))

	walk := sampleWalk("w1")
	walk.Events = []models.WalkEvent{{
		ID:         "e1",
		EventType:  models.EventPee,
		Coordinate: models.Coordinate{Latitude: 37.5, Longitude: 127.0},
		Timestamp:  testNow.Add(-5 * time.Minute),
	}}
	require.NoError(t, s.SaveActiveWalk(ctx, walk))
	assert.Equal(t, testNow, walk.LastSavedAt)

	got := s.GetActiveWalk(ctx)
	require.NotNil(t, got)
	assert.Equal(t, walk, got)

	require.NoError(t, s.ClearActiveWalk(ctx))
	assert.Nil(t, s.GetActiveWalk(ctx))
	require.NoError(t, s.ClearActiveWalk(ctx))
}

func TestActiveWalk_saveOverwrites(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	walk := sampleWalk("w1")
	require.NoError(t, s.SaveActiveWalk(ctx, walk))

	walk.RouteCoordinates = append(walk.RouteCoordinates, models.Coordinate{Latitude: 37.501, Longitude: 127.0})
	walk.DurationSeconds = 700
	require.NoError(t, s.SaveActiveWalk(ctx, walk))

	got := s.GetActiveWalk(ctx)
	require.NotNil(t, got)
	assert.Len(t, got.RouteCoordinates, 2)
	assert.Equal(t, int64(700), got.DurationSeconds)
}

func TestActiveWalk_saveFailureIsReported(t *testing.T) {
	ctx := context.Background()
	s, mem := newTestStore(t)
	mem.FailWrites(true)

	err := s.SaveActiveWalk(ctx, sampleWalk("w1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStorageWrite))
}

func TestActiveWalk_corruptSlotIsAbsent(t *testing.T) {
	ctx := context.Background()
	s, mem := newTestStore(t)

	require.NoError(t, mem.Set(ctx, ActiveWalkKey, "{not json"))
	assert.Nil(t, s.GetActiveWalk(ctx))

	require.NoError(t, mem.Set(ctx, ActiveWalkKey, `{"dogId":"d1"}`))
	assert.Nil(t, s.GetActiveWalk(ctx))
}

func TestPendingWalks_emptyIsNeverNil(t *testing.T) {
	s, _ := newTestStore(t)

	walks := s.GetPendingWalks(context.Background())
	require.NotNil(t, walks)
	assert.Empty(t, walks)
	assert.Equal(t, 0, s.GetPendingWalkCount(context.Background()))
}

func TestAddToPendingWalks_appendsInOrderAsPending(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	first := sampleWalk("w1")
	first.SyncStatus = models.SyncStatusFailed
	require.NoError(t, s.AddToPendingWalks(ctx, first))
	require.NoError(t, s.AddToPendingWalks(ctx, sampleWalk("w2")))

	walks := s.GetPendingWalks(ctx)
	require.Len(t, walks, 2)
	assert.Equal(t, "w1", walks[0].LocalID)
	assert.Equal(t, "w2", walks[1].LocalID)
	assert.Equal(t, models.SyncStatusPending, walks[0].SyncStatus)
	assert.Equal(t, models.SyncStatusFailed, first.SyncStatus, "caller's walk is not mutated")
}

func TestAddToPendingWalks_sameLocalIDReplaces(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	require.NoError(t, s.AddToPendingWalks(ctx, sampleWalk("w1")))
	require.NoError(t, s.UpdateWalkSyncStatus(ctx, "w1", models.SyncStatusFailed, "remote-1"))

	again := sampleWalk("w1")
	again.DistanceMeters = 99
	require.NoError(t, s.AddToPendingWalks(ctx, again))

	walks := s.GetPendingWalks(ctx)
	require.Len(t, walks, 1)
	assert.Equal(t, 99.0, walks[0].DistanceMeters)
	assert.Equal(t, "remote-1", walks[0].RemoteID)
}

func TestAddToPendingWalks_rejectsMissingID(t *testing.T) {
	s, _ := newTestStore(t)

	err := s.AddToPendingWalks(context.Background(), &models.LocalWalk{})
	assert.True(t, errors.Is(err, errors.ErrInvalid))
}

func TestAddToPendingWalks_writeFailure(t *testing.T) {
	ctx := context.Background()
	s, mem := newTestStore(t)
	mem.FailWrites(true)

	err := s.AddToPendingWalks(ctx, sampleWalk("w1"))
	assert.True(t, errors.Is(err, errors.ErrStorageWrite))

	mem.FailWrites(false)
	assert.Empty(t, s.GetPendingWalks(ctx))
}

func TestUpdateWalkSyncStatus(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.AddToPendingWalks(ctx, sampleWalk("w1")))
	require.NoError(t, s.AddToPendingWalks(ctx, sampleWalk("w2")))

	require.NoError(t, s.UpdateWalkSyncStatus(ctx, "w2", models.SyncStatusSynced, "r2"))

	walks := s.GetPendingWalks(ctx)
	require.Len(t, walks, 2)
	assert.Equal(t, models.SyncStatusPending, walks[0].SyncStatus)
	assert.Empty(t, walks[0].RemoteID)
	assert.Equal(t, models.SyncStatusSynced, walks[1].SyncStatus)
	assert.Equal(t, "r2", walks[1].RemoteID)
}

func TestUpdateWalkSyncStatus_keepsExistingRemoteID(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.AddToPendingWalks(ctx, sampleWalk("w1")))

	require.NoError(t, s.UpdateWalkSyncStatus(ctx, "w1", models.SyncStatusSyncing, "r1"))
	require.NoError(t, s.UpdateWalkSyncStatus(ctx, "w1", models.SyncStatusFailed, ""))
	require.NoError(t, s.UpdateWalkSyncStatus(ctx, "w1", models.SyncStatusSynced, "r-other"))

	walks := s.GetPendingWalks(ctx)
	require.Len(t, walks, 1)
	assert.Equal(t, "r1", walks[0].RemoteID)
	assert.Equal(t, models.SyncStatusSynced, walks[0].SyncStatus)
}

func TestUpdateWalkSyncStatus_unknownIDIsNoop(t *testing.T) {
	ctx := context.Background()
	s, mem := newTestStore(t)
	require.NoError(t, s.AddToPendingWalks(ctx, sampleWalk("w1")))
	before, _, _ := mem.Get(ctx, PendingWalksKey)

	require.NoError(t, s.UpdateWalkSyncStatus(ctx, "missing", models.SyncStatusSynced, "r9"))

	after, _, _ := mem.Get(ctx, PendingWalksKey)
	assert.Equal(t, before, after)
}

func TestUpdateWalkSyncStatus_rejectsUnknownStatus(t *testing.T) {
	s, _ := newTestStore(t)

	err := s.UpdateWalkSyncStatus(context.Background(), "w1", models.SyncStatus("archived"), "")
	assert.True(t, errors.Is(err, errors.ErrInvalid))
}

func TestRemoveSyncedWalks(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	for _, id := range []string{"w1", "w2", "w3", "w4"} {
		require.NoError(t, s.AddToPendingWalks(ctx, sampleWalk(id)))
	}
	require.NoError(t, s.UpdateWalkSyncStatus(ctx, "w1", models.SyncStatusSynced, "r1"))
	require.NoError(t, s.UpdateWalkSyncStatus(ctx, "w2", models.SyncStatusFailed, ""))
	require.NoError(t, s.UpdateWalkSyncStatus(ctx, "w3", models.SyncStatusSyncing, ""))

	removed, err := s.RemoveSyncedWalks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	walks := s.GetPendingWalks(ctx)
	require.Len(t, walks, 3)
	for _, w := range walks {
		assert.NotEqual(t, models.SyncStatusSynced, w.SyncStatus)
	}

	removed, err = s.RemoveSyncedWalks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
	assert.Len(t, s.GetPendingWalks(ctx), 3)
}

func TestGetPendingWalkCount_countsPendingAndFailed(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	for _, id := range []string{"w1", "w2", "w3", "w4"} {
		require.NoError(t, s.AddToPendingWalks(ctx, sampleWalk(id)))
	}
	require.NoError(t, s.UpdateWalkSyncStatus(ctx, "w2", models.SyncStatusFailed, ""))
	require.NoError(t, s.UpdateWalkSyncStatus(ctx, "w3", models.SyncStatusSyncing, ""))
	require.NoError(t, s.UpdateWalkSyncStatus(ctx, "w4", models.SyncStatusSynced, "r4"))

	assert.Equal(t, 2, s.GetPendingWalkCount(ctx))
}

func TestRecoverInterrupted(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.AddToPendingWalks(ctx, sampleWalk("w1")))
	require.NoError(t, s.AddToPendingWalks(ctx, sampleWalk("w2")))
	require.NoError(t, s.UpdateWalkSyncStatus(ctx, "w1", models.SyncStatusSyncing, ""))

	n, err := s.RecoverInterrupted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	walks := s.GetPendingWalks(ctx)
	assert.Equal(t, models.SyncStatusFailed, walks[0].SyncStatus)
	assert.Equal(t, models.SyncStatusPending, walks[1].SyncStatus)
	assert.Equal(t, 2, s.GetPendingWalkCount(ctx))

	n, err = s.RecoverInterrupted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPendingWalks_corruptQueueIsQuarantined(t *testing.T) {
	ctx := context.Background()
	s, mem := newTestStore(t)
	require.NoError(t, mem.Set(ctx, PendingWalksKey, "[{broken"))

	assert.Empty(t, s.GetPendingWalks(ctx))

	require.NoError(t, s.AddToPendingWalks(ctx, sampleWalk("w1")))
	walks := s.GetPendingWalks(ctx)
	require.Len(t, walks, 1)

	key := fmt.Sprintf("%s%d", quarantineKeyBase, testNow.UnixNano())
	saved, ok, err := mem.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "[{broken", saved)
}

func TestPendingWalks_badEntriesAreSkippedAndKept(t *testing.T) {
	ctx := context.Background()
	s, mem := newTestStore(t)
	raw := `[{"localId":"w1","syncStatus":"pending"},{"localId":"w2","syncStatus":"archived"},{"dogId":"orphan"}]`
	require.NoError(t, mem.Set(ctx, PendingWalksKey, raw))

	walks := s.GetPendingWalks(ctx)
	require.Len(t, walks, 1)
	assert.Equal(t, "w1", walks[0].LocalID)

	n, err := s.RecoverInterrupted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	saved, ok, err := mem.Get(ctx, fmt.Sprintf("%s%d", quarantineKeyBase, testNow.UnixNano()))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, strings.Contains(saved, "archived"))
	assert.True(t, strings.Contains(saved, "orphan"))

	stored, _, _ := mem.Get(ctx, PendingWalksKey)
	assert.NotContains(t, stored, "orphan")
}

func TestAddToPendingWalks_concurrentAddsAreNotLost(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.AddToPendingWalks(ctx, sampleWalk(fmt.Sprintf("w%02d", i))))
		}(i)
	}
	wg.Wait()

	assert.Len(t, s.GetPendingWalks(ctx), 25)
}

func TestStore_sqliteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	open := func() (*Store, *db.DB) {
		database, err := db.Open(dir)
		require.NoError(t, err)
		_, err = db.Migrate(ctx, database.DB)
		require.NoError(t, err)
		return New(kv.NewSQLite(database.DB), WithLogger(zap.NewNop())), database
	}

	s, database := open()
	require.NoError(t, s.SaveActiveWalk(ctx, sampleWalk("active")))
	require.NoError(t, s.AddToPendingWalks(ctx, sampleWalk("queued")))
	require.NoError(t, database.Close())

	s, database = open()
	defer database.Close()

	active := s.GetActiveWalk(ctx)
	require.NotNil(t, active)
	assert.Equal(t, "active", active.LocalID)
	walks := s.GetPendingWalks(ctx)
	require.Len(t, walks, 1)
	assert.Equal(t, "queued", walks[0].LocalID)
}
