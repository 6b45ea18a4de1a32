package sync

import (
	"context"
	"time"

	"github.com/kimhsiao/pawtrail/core/internal/models"
)

// SyncEngineInterface is what the scheduler, bridge and desktop server
// need from the engine. It allows mocking in tests.
type SyncEngineInterface interface {
	// CompleteWalk stores a finished walk remotely or queues it.
	CompleteWalk(ctx context.Context, walk *models.LocalWalk) (string, error)

	// SyncPendingWalks runs one pass over the pending queue.
	SyncPendingWalks(ctx context.Context) SyncResult

	// PendingCount returns the number of walks still waiting for upload.
	PendingCount(ctx context.Context) int

	// SetEventHandler sets the handler for sync notifications.
	SetEventHandler(handler EventHandler)
}

var _ SyncEngineInterface = (*Engine)(nil)

// Sync event types.
const (
	EventSyncStarted   = "sync.started"
	EventSyncCompleted = "sync.completed"
	EventWalkCompleted = "walk.completed"
)

// SyncEvent is published to the EventHandler during sync operations.
type SyncEvent struct {
	Type     string    `json:"type"`
	LocalID  string    `json:"localId,omitempty"`
	RemoteID string    `json:"remoteId,omitempty"`
	Synced   int       `json:"synced"`
	Failed   int       `json:"failed"`
	Pending  int       `json:"pending"`
	Time     time.Time `json:"time"`
}

// EventHandler receives sync events. Calls are made synchronously from the
// goroutine doing the work, so implementations must not block.
type EventHandler interface {
	OnSyncEvent(event SyncEvent)
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(SyncEvent)

// OnSyncEvent implements EventHandler.
func (f EventHandlerFunc) OnSyncEvent(event SyncEvent) { f(event) }
