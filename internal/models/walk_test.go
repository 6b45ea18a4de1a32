package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalWalk_decodeToleratesMissingOptionalFields(t *testing.T) {
	raw := `{
		"localId": "w1",
		"dogId": "d1",
		"userId": "u1",
		"startTime": "2026-10-16T08:00:00Z",
		"routeCoordinates": [{"latitude": 0, "longitude": 0}],
		"events": [],
		"durationSeconds": 12,
		"distanceMeters": 0,
		"syncStatus": "pending",
		"lastSavedAt": "2026-10-16T08:00:12Z"
	}`

	var w LocalWalk
	require.NoError(t, json.Unmarshal([]byte(raw), &w))

	assert.Nil(t, w.EndTime)
	assert.Empty(t, w.RemoteID)
	assert.Equal(t, SyncStatusPending, w.SyncStatus)
	assert.Equal(t, int64(12), w.DurationSeconds)
	assert.False(t, w.IsFinished())
}

func TestLocalWalk_encodeUsesPersistedKeys(t *testing.T) {
	end := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	w := LocalWalk{
		LocalID:    "w1",
		EndTime:    &end,
		SyncStatus: SyncStatusFailed,
		RemoteID:   "r1",
	}

	data, err := json.Marshal(w)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	for _, key := range []string{
		"localId", "dogId", "userId", "startTime", "endTime", "routeCoordinates", "events",
		"durationSeconds", "distanceMeters", "syncStatus", "lastSavedAt", "remoteId",
	} {
		assert.Contains(t, m, key)
	}
	assert.Equal(t, "2026-10-16T09:00:00Z", m["endTime"])
}

func TestSyncStatus_decode(t *testing.T) {
	var s SyncStatus
	require.NoError(t, json.Unmarshal([]byte(`"syncing"`), &s))
	assert.Equal(t, SyncStatusSyncing, s)

	require.NoError(t, json.Unmarshal([]byte(`""`), &s))
	assert.Equal(t, SyncStatusPending, s)

	assert.Error(t, json.Unmarshal([]byte(`"archived"`), &s))
}

func TestSyncStatus_predicates(t *testing.T) {
	tests := []struct {
		status    SyncStatus
		needsSync bool
		retry     bool
	}{
		{SyncStatusPending, true, true},
		{SyncStatusSyncing, false, true},
		{SyncStatusSynced, false, false},
		{SyncStatusFailed, true, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.needsSync, tt.status.NeedsSync())
			assert.Equal(t, tt.retry, tt.status.IsRetryEligible())
		})
	}
}

func TestEventType_decodeRejectsUnknown(t *testing.T) {
	var e WalkEvent
	err := json.Unmarshal([]byte(`{"id":"e1","eventType":"bark","coordinate":{"latitude":1,"longitude":2}}`), &e)
	assert.Error(t, err)

	require.NoError(t, json.Unmarshal([]byte(`{"id":"e1","eventType":"sniff"}`), &e))
	assert.Equal(t, EventSniff, e.EventType)
}

func TestLocalWalk_CloneIsDeep(t *testing.T) {
	end := time.Now()
	w := &LocalWalk{
		LocalID:          "w1",
		EndTime:          &end,
		RouteCoordinates: []Coordinate{{Latitude: 1, Longitude: 1}},
		Events:           []WalkEvent{{ID: "e1", EventType: EventPee}},
	}

	c := w.Clone()
	c.RouteCoordinates[0].Latitude = 9
	c.Events[0].ID = "changed"
	*c.EndTime = end.Add(time.Hour)

	assert.Equal(t, 1.0, w.RouteCoordinates[0].Latitude)
	assert.Equal(t, "e1", w.Events[0].ID)
	assert.Equal(t, end, *w.EndTime)
}

func TestLocalWalk_NormalizeFillsEmptySlices(t *testing.T) {
	var w LocalWalk
	w.Normalize()

	assert.NotNil(t, w.RouteCoordinates)
	assert.NotNil(t, w.Events)
	assert.Equal(t, SyncStatusPending, w.SyncStatus)
}

func TestLocalWalk_Record(t *testing.T) {
	start := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)
	w := &LocalWalk{
		LocalID:          "w1",
		DogID:            "d1",
		UserID:           "u1",
		StartTime:        start,
		DurationSeconds:  60,
		DistanceMeters:   111.2,
		RouteCoordinates: []Coordinate{{0, 0}, {0, 0.001}},
	}

	rec := w.Record()

	assert.Equal(t, "w1", rec.LocalID)
	assert.Equal(t, "d1", rec.DogID)
	assert.Equal(t, "u1", rec.UserID)
	assert.Equal(t, start, rec.StartTime)
	assert.Len(t, rec.RouteCoordinates, 2)
	last, ok := w.LastCoordinate()
	require.True(t, ok)
	assert.Equal(t, Coordinate{0, 0.001}, last)
}
