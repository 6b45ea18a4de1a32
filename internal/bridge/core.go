// Package bridge wires the walk core together for the app shells. The mobile
// FFI and the desktop server both drive a Core.
package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kimhsiao/pawtrail/core/internal/config"
	"github.com/kimhsiao/pawtrail/core/internal/errors"
	"github.com/kimhsiao/pawtrail/core/internal/kv"
	"github.com/kimhsiao/pawtrail/core/internal/logging"
	"github.com/kimhsiao/pawtrail/core/internal/models"
	"github.com/kimhsiao/pawtrail/core/internal/network"
	"github.com/kimhsiao/pawtrail/core/internal/recorder"
	"github.com/kimhsiao/pawtrail/core/internal/recovery"
	"github.com/kimhsiao/pawtrail/core/internal/remote"
	syncpkg "github.com/kimhsiao/pawtrail/core/internal/sync"
	"github.com/kimhsiao/pawtrail/core/internal/sync/scheduler"
	"github.com/kimhsiao/pawtrail/core/internal/telemetry"
	"github.com/kimhsiao/pawtrail/core/internal/walkstore"
)

// Core owns one device's walk store, sync engine and current recorder.
type Core struct {
	Store     *walkstore.Store
	Engine    *syncpkg.Engine
	Monitor   *network.Monitor
	Scheduler *scheduler.Scheduler
	Registry  *prometheus.Registry

	// StorageCheck reports local storage health. Nil when not applicable.
	StorageCheck network.CheckFunc

	recovery     *recovery.Coordinator
	recorderOpts []recorder.Option
	log          *zap.Logger

	ctx         context.Context
	cancel      context.CancelFunc
	group       *errgroup.Group
	unsubscribe func()
	closers     []func() error

	mu        sync.Mutex
	rec       *recorder.Recorder
	stopRun   context.CancelFunc
	runDone   chan struct{}
	closeOnce sync.Once
}

// Deps are the collaborators of a Core built with New.
type Deps struct {
	Store   *walkstore.Store
	Remote  remote.Service
	Monitor *network.Monitor

	Metrics            *telemetry.SyncMetrics
	CheckpointInterval time.Duration
	SyncSchedule       string
}

// New wires a Core from already-open collaborators and starts the network
// listener.
func New(deps Deps) *Core {
	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)

	log := logging.Named("bridge")
	recorderOpts := []recorder.Option{
		recorder.WithMetrics(deps.Metrics),
		recorder.WithCheckpointInterval(deps.CheckpointInterval),
	}

	engine := syncpkg.NewEngine(deps.Store, deps.Remote, deps.Monitor, syncpkg.WithMetrics(deps.Metrics))
	c := &Core{
		Store:        deps.Store,
		Engine:       engine,
		Monitor:      deps.Monitor,
		Scheduler:    scheduler.NewScheduler(engine, deps.Store, &scheduler.SchedulerConfig{Schedule: deps.SyncSchedule}),
		recovery:     recovery.NewCoordinator(deps.Store, recorderOpts...),
		recorderOpts: recorderOpts,
		log:          log,
		ctx:          gctx,
		cancel:       cancel,
		group:        group,
	}
	c.unsubscribe = engine.StartNetworkListener(gctx)
	return c
}

// Open builds a Core from configuration: local storage, the remote store
// when configured, a connectivity prober and, if enabled, metrics.
func Open(ctx context.Context, cfg config.Config) (*Core, error) {
	opened, err := kv.Open(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(errors.ErrStorageRead, "open local storage", err)
	}

	var registry *prometheus.Registry
	var metrics *telemetry.SyncMetrics
	if cfg.MetricsEnabled {
		registry = prometheus.NewRegistry()
		metrics = telemetry.NewSyncMetrics(registry)
	}

	monitor := network.NewMonitor(false)
	svc := remote.Offline
	var check network.CheckFunc
	closers := []func() error{opened.Close}

	if cfg.Online() {
		pool, err := remote.Dial(ctx, cfg.DatabaseURL)
		if err != nil {
			_ = opened.Close()
			return nil, errors.Wrap(errors.ErrRemoteSync, "configure remote store", err)
		}
		svc = remote.NewPostgres(pool)
		check = network.PoolCheck(pool)
		closers = append(closers, func() error { pool.Close(); return nil })
	}

	c := New(Deps{
		Store:              walkstore.New(opened.Store),
		Remote:             svc,
		Monitor:            monitor,
		Metrics:            metrics,
		CheckpointInterval: cfg.CheckpointInterval,
		SyncSchedule:       cfg.SyncSchedule,
	})
	c.Registry = registry
	c.StorageCheck = opened.Check
	c.closers = closers

	if check != nil {
		prober := network.NewProber(monitor, check, cfg.ProbeInterval)
		c.group.Go(func() error { return prober.Run(c.ctx) })
	}
	if err := c.Scheduler.Start(c.ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// AppStart resets interrupted queue entries and runs the app-start pass in
// the background.
func (c *Core) AppStart() {
	c.group.Go(func() error {
		c.Scheduler.OnAppStart(c.ctx)
		return nil
	})
}

// StartWalk begins recording a new walk. It refuses while another walk owns
// the active slot: a live recording, an orphan awaiting a resume or discard
// decision, or an unfinished walk the crash check has not seen yet. A
// finished walk left in the slot by a failed hand-off is queued first.
func (c *Core) StartWalk(ctx context.Context, dogID, userID string) (*models.LocalWalk, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rec != nil {
		return nil, errors.New(errors.ErrInvalidState, "a walk is already in progress")
	}
	if c.recovery.AwaitingDecision() {
		return nil, errors.New(errors.ErrInvalidState, "an interrupted walk is awaiting a resume or discard decision")
	}
	if leftover := c.Store.GetActiveWalk(ctx); leftover != nil {
		if !leftover.IsFinished() {
			return nil, errors.New(errors.ErrInvalidState, "an interrupted walk must be recovered before starting a new one")
		}
		if _, err := c.Engine.CompleteWalk(ctx, leftover); err != nil {
			return nil, err
		}
		c.log.Info("handed off finished walk left in active slot", zap.String("local_id", leftover.LocalID))
	}

	rec := recorder.New(c.Store, c.recorderOpts...)
	if err := rec.StartWalk(ctx, dogID, userID); err != nil {
		return nil, err
	}
	c.attach(rec)
	return rec.Snapshot(), nil
}

// RecordLocation forwards a GPS fix to the current walk.
func (c *Core) RecordLocation(coord models.Coordinate) error {
	rec, err := c.current()
	if err != nil {
		return err
	}
	return rec.RecordLocation(coord)
}

// RecordEvent logs an event on the current walk. A nil event means it was
// dropped for lack of a position.
func (c *Core) RecordEvent(eventType models.EventType) (*models.WalkEvent, error) {
	rec, err := c.current()
	if err != nil {
		return nil, err
	}
	return rec.RecordEvent(eventType)
}

// Pause pauses the current walk.
func (c *Core) Pause() error {
	rec, err := c.current()
	if err != nil {
		return err
	}
	return rec.Pause()
}

// Resume continues the current paused walk.
func (c *Core) Resume() error {
	rec, err := c.current()
	if err != nil {
		return err
	}
	return rec.ResumeRecording()
}

// CurrentWalk returns a snapshot of the walk in progress, or nil.
func (c *Core) CurrentWalk() *models.LocalWalk {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rec == nil {
		return nil
	}
	return c.rec.Snapshot()
}

// FinishResult is the outcome of ending a walk.
type FinishResult struct {
	Walk     *models.LocalWalk `json:"walk"`
	RemoteID string            `json:"remoteId,omitempty"`
	Queued   bool              `json:"queued"`
}

// FinishWalk ends the current walk and hands it to the sync engine. When
// the final write fails the walk stays open and FinishWalk can be retried.
func (c *Core) FinishWalk(ctx context.Context) (*FinishResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rec == nil {
		return nil, errors.New(errors.ErrInvalidState, "no walk in progress")
	}
	walk, err := c.rec.Finish(ctx)
	if err != nil {
		return nil, err
	}
	c.detach()

	remoteID, err := c.Engine.CompleteWalk(ctx, walk)
	if err != nil {
		// The finished walk is still in the active slot; the next StartWalk
		// or crash check queues it.
		return nil, err
	}
	return &FinishResult{Walk: walk, RemoteID: remoteID, Queued: remoteID == ""}, nil
}

// SyncNow runs a sync pass and returns its counts.
func (c *Core) SyncNow(ctx context.Context) syncpkg.SyncResult {
	return c.Scheduler.Refresh(ctx)
}

// PendingCount returns the pending badge count.
func (c *Core) PendingCount(ctx context.Context) int {
	return c.Engine.PendingCount(ctx)
}

// CheckCrashedWalk returns a walk orphaned by a previous run for the UI to
// offer Resume or Discard, or nil. While a walk is recording the slot is
// owned by it, so the check is refused and may be repeated later.
func (c *Core) CheckCrashedWalk(ctx context.Context, auth recovery.AuthState) (*models.LocalWalk, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rec != nil {
		return nil, errors.New(errors.ErrInvalidState, "crash check while a walk is in progress")
	}
	return c.recovery.Detect(ctx, auth)
}

// ResolveCrashedWalk applies the user's choice. On resume the recovered walk
// becomes the current walk and is returned.
func (c *Core) ResolveCrashedWalk(ctx context.Context, decision recovery.Decision) (*models.LocalWalk, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rec != nil {
		return nil, errors.New(errors.ErrInvalidState, "a walk is already in progress")
	}
	rec, err := c.recovery.Resolve(ctx, decision)
	if err != nil || rec == nil {
		return nil, err
	}
	c.attach(rec)
	return rec.Snapshot(), nil
}

// SetConnectivity reports a platform reachability change.
func (c *Core) SetConnectivity(connected bool) {
	c.Monitor.Set(connected)
}

// Close stops the recorder loop, background passes and the prober, then
// releases storage. The active walk is left in its slot for recovery.
func (c *Core) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.detach()
		c.mu.Unlock()

		// Cancel first so nothing starts new passes, then drain the group
		// before waiting on the engine.
		c.cancel()
		if gerr := c.group.Wait(); gerr != nil {
			c.log.Warn("background task failed", zap.Error(gerr))
		}
		c.unsubscribe()
		c.Scheduler.Stop()
		c.Engine.Wait()

		for _, closeFn := range c.closers {
			if cerr := closeFn(); cerr != nil && err == nil {
				err = cerr
			}
		}
	})
	return err
}

func (c *Core) current() (*recorder.Recorder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rec == nil {
		return nil, errors.New(errors.ErrInvalidState, "no walk in progress")
	}
	return c.rec, nil
}

// attach makes rec the current recorder and starts its loop. c.mu must be held.
func (c *Core) attach(rec *recorder.Recorder) {
	runCtx, stop := context.WithCancel(c.ctx)
	done := make(chan struct{})
	c.rec = rec
	c.stopRun = stop
	c.runDone = done
	go func() {
		defer close(done)
		rec.Run(runCtx)
	}()
}

// detach stops the current recorder loop and forgets it. c.mu must be held.
func (c *Core) detach() {
	if c.rec == nil {
		return
	}
	c.stopRun()
	<-c.runDone
	c.rec = nil
	c.stopRun = nil
	c.runDone = nil
}
