// Package sync reconciles finished walks with the remote walk store.
package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/kimhsiao/pawtrail/core/internal/errors"
	"github.com/kimhsiao/pawtrail/core/internal/logging"
	"github.com/kimhsiao/pawtrail/core/internal/models"
	"github.com/kimhsiao/pawtrail/core/internal/network"
	"github.com/kimhsiao/pawtrail/core/internal/remote"
	"github.com/kimhsiao/pawtrail/core/internal/telemetry"
)

// Store is the part of the walk store the engine works with.
type Store interface {
	ClearActiveWalk(ctx context.Context) error
	AddToPendingWalks(ctx context.Context, walk *models.LocalWalk) error
	GetPendingWalks(ctx context.Context) []*models.LocalWalk
	UpdateWalkSyncStatus(ctx context.Context, localID string, status models.SyncStatus, remoteID string) error
	RemoveSyncedWalks(ctx context.Context) (int, error)
	GetPendingWalkCount(ctx context.Context) int
}

// SyncResult counts the outcome of one sync pass.
type SyncResult struct {
	Synced int `json:"synced"`
	Failed int `json:"failed"`
}

// Engine moves finished walks into the remote store, directly when online
// and through the pending queue otherwise.
type Engine struct {
	store    Store
	remote   remote.Service
	observer network.Observer
	metrics  *telemetry.SyncMetrics
	log      *zap.Logger
	now      func() time.Time

	// mu guards the single-flight flag and the handler.
	mu      gosync.Mutex
	syncing bool
	handler EventHandler

	// bg tracks passes started by the network listener.
	bg gosync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics reports pass and completion counters to m.
func WithMetrics(m *telemetry.SyncMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger overrides the engine logger.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithEventHandler sets the handler notified of sync events.
func WithEventHandler(h EventHandler) Option {
	return func(e *Engine) { e.handler = h }
}

// NewEngine creates an Engine.
func NewEngine(store Store, svc remote.Service, observer network.Observer, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		remote:   svc,
		observer: observer,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logging.Named("sync")
	}
	return e
}

// SetEventHandler replaces the event handler. A nil handler disables events.
func (e *Engine) SetEventHandler(h EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = h
}

// CompleteWalk hands a finished walk over for upload. It returns the remote
// id when the walk was stored remotely right away, or "" when it was queued
// for a later pass. An error means the walk could not be queued either; the
// active slot is then left untouched so the walk survives a restart.
func (e *Engine) CompleteWalk(ctx context.Context, walk *models.LocalWalk) (string, error) {
	if walk == nil || walk.LocalID == "" {
		return "", errors.New(errors.ErrInvalid, "complete walk: missing local id")
	}
	log := e.log.With(zap.String("local_id", walk.LocalID))

	if e.observer.IsConnected() {
		remoteID, err := e.upload(ctx, walk)
		if err == nil {
			e.clearActive(ctx, log)
			e.metrics.WalkCompleted(telemetry.PathOnline)
			e.emit(SyncEvent{Type: EventWalkCompleted, LocalID: walk.LocalID, RemoteID: remoteID})
			log.Info("walk stored remotely", zap.String("remote_id", remoteID))
			return remoteID, nil
		}
		log.Warn("direct upload failed, queueing walk",
			zap.String("code", string(errors.CodeOf(err))), zap.Error(err))
	}

	if err := e.store.AddToPendingWalks(ctx, walk); err != nil {
		log.Error("could not queue finished walk",
			zap.String("code", string(errors.ErrStorageWrite)), zap.Error(err))
		return "", err
	}
	e.clearActive(ctx, log)

	pending := e.store.GetPendingWalkCount(ctx)
	e.metrics.WalkCompleted(telemetry.PathQueued)
	e.metrics.SetPending(pending)
	e.emit(SyncEvent{Type: EventWalkCompleted, LocalID: walk.LocalID, Pending: pending})
	log.Info("walk queued for sync", zap.Int("pending", pending))
	return "", nil
}

// SyncPendingWalks runs one pass over the pending queue. Only one pass runs
// at a time; a call made while a pass is running returns a zero result, as
// does a call made while offline.
func (e *Engine) SyncPendingWalks(ctx context.Context) SyncResult {
	e.mu.Lock()
	if e.syncing {
		e.mu.Unlock()
		e.log.Debug("sync pass already running, skipping")
		return SyncResult{}
	}
	e.syncing = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.syncing = false
		e.mu.Unlock()
	}()

	if !e.observer.IsConnected() {
		e.log.Debug("offline, skipping sync pass")
		return SyncResult{}
	}

	var result SyncResult
	walks := e.store.GetPendingWalks(ctx)
	e.emit(SyncEvent{Type: EventSyncStarted, Pending: len(walks)})
	started := e.now()

	for _, walk := range walks {
		if !walk.SyncStatus.IsRetryEligible() {
			continue
		}
		if e.syncOne(ctx, walk) {
			result.Synced++
		} else {
			result.Failed++
		}
	}

	if removed, err := e.store.RemoveSyncedWalks(ctx); err != nil {
		e.log.Warn("could not purge synced walks", zap.Error(err))
	} else if removed > 0 {
		e.log.Debug("purged synced walks", zap.Int("count", removed))
	}

	pending := e.store.GetPendingWalkCount(ctx)
	e.metrics.SyncPass(result.Synced, result.Failed)
	e.metrics.SetPending(pending)
	e.emit(SyncEvent{Type: EventSyncCompleted, Synced: result.Synced, Failed: result.Failed, Pending: pending})

	if result.Synced+result.Failed > 0 {
		e.log.Info("sync pass finished",
			zap.Int("synced", result.Synced),
			zap.Int("failed", result.Failed),
			zap.Int("pending", pending),
			zap.Duration("took", e.now().Sub(started)))
	}
	return result
}

// syncOne uploads a single queue entry and records the outcome on it.
func (e *Engine) syncOne(ctx context.Context, walk *models.LocalWalk) bool {
	log := e.log.With(zap.String("local_id", walk.LocalID))

	// A remote id means the row exists remotely; only the local status is stale.
	if walk.RemoteID != "" {
		if err := e.store.UpdateWalkSyncStatus(ctx, walk.LocalID, models.SyncStatusSynced, walk.RemoteID); err != nil {
			log.Warn("could not mark walk synced", zap.Error(err))
			return false
		}
		return true
	}

	if err := e.store.UpdateWalkSyncStatus(ctx, walk.LocalID, models.SyncStatusSyncing, ""); err != nil {
		log.Warn("could not mark walk syncing", zap.Error(err))
		return false
	}

	remoteID, err := e.upload(ctx, walk)
	if err != nil {
		log.Warn("walk upload failed, will retry",
			zap.String("code", string(errors.CodeOf(err))), zap.Error(err))
		if err := e.store.UpdateWalkSyncStatus(ctx, walk.LocalID, models.SyncStatusFailed, ""); err != nil {
			log.Warn("could not mark walk failed", zap.Error(err))
		}
		return false
	}

	if err := e.store.UpdateWalkSyncStatus(ctx, walk.LocalID, models.SyncStatusSynced, remoteID); err != nil {
		// The next pass re-inserts by local id and gets the same remote id.
		log.Warn("could not mark walk synced", zap.String("remote_id", remoteID), zap.Error(err))
	}
	return true
}

// upload inserts the walk row and then its events. Event failures are
// logged and do not fail the upload. A panic in the remote client is
// reported as a remote sync error.
func (e *Engine) upload(ctx context.Context, walk *models.LocalWalk) (remoteID string, err error) {
	defer func() {
		if r := recover(); r != nil {
			remoteID = ""
			err = errors.New(errors.ErrRemoteSync, fmt.Sprintf("remote client panic: %v", r))
		}
	}()

	remoteID, err = e.remote.InsertWalk(ctx, walk.Record())
	if err != nil {
		return "", errors.Wrap(errors.ErrRemoteSync, "insert walk", err)
	}
	if remoteID == "" {
		return "", errors.New(errors.ErrRemoteSync, "insert walk: remote returned no id")
	}

	if len(walk.Events) > 0 {
		if err := e.remote.InsertWalkEvents(ctx, remoteID, walk.Events); err != nil {
			e.log.Warn("walk events not stored",
				zap.String("code", string(errors.ErrEventSync)),
				zap.String("local_id", walk.LocalID),
				zap.String("remote_id", remoteID),
				zap.Int("events", len(walk.Events)),
				zap.Error(err))
		}
	}
	return remoteID, nil
}

func (e *Engine) clearActive(ctx context.Context, log *zap.Logger) {
	if err := e.store.ClearActiveWalk(ctx); err != nil {
		// Recovery finds the finished walk on next start and re-queues it.
		log.Warn("could not clear active walk", zap.Error(err))
	}
}

// StartNetworkListener runs a sync pass in the background every time
// connectivity comes back. The returned func stops listening; passes already
// started keep running and can be awaited with Wait. Once ctx is cancelled
// no new pass is started.
func (e *Engine) StartNetworkListener(ctx context.Context) func() {
	return e.observer.Subscribe(func(connected bool) {
		if !connected {
			return
		}
		e.mu.Lock()
		if ctx.Err() != nil {
			e.mu.Unlock()
			return
		}
		e.bg.Add(1)
		e.mu.Unlock()
		go func() {
			defer e.bg.Done()
			e.SyncPendingWalks(ctx)
		}()
	})
}

// Wait blocks until background passes started by the listener return. When
// the listener's context is already cancelled, no pass can start after Wait
// begins.
func (e *Engine) Wait() {
	// Pairs with the locked ctx check in the listener.
	e.mu.Lock()
	e.mu.Unlock() //nolint:staticcheck
	e.bg.Wait()
}

// Syncing reports whether a pass is running.
func (e *Engine) Syncing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.syncing
}

// PendingCount returns the pending badge count.
func (e *Engine) PendingCount(ctx context.Context) int {
	return e.store.GetPendingWalkCount(ctx)
}

func (e *Engine) emit(ev SyncEvent) {
	e.mu.Lock()
	h := e.handler
	e.mu.Unlock()
	if h == nil {
		return
	}
	ev.Time = e.now().UTC()
	h.OnSyncEvent(ev)
}
