// Package scheduler triggers sync passes from app lifecycle events: app
// start, manual refresh and an optional cron schedule.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/kimhsiao/pawtrail/core/internal/errors"
	"github.com/kimhsiao/pawtrail/core/internal/logging"
	syncpkg "github.com/kimhsiao/pawtrail/core/internal/sync"
)

// Recoverer resets queue entries left mid-sync by a killed process.
type Recoverer interface {
	RecoverInterrupted(ctx context.Context) (int, error)
}

// Scheduler runs sync passes on lifecycle triggers.
type Scheduler struct {
	engine   syncpkg.SyncEngineInterface
	store    Recoverer
	schedule string
	timeout  time.Duration
	cron     *cron.Cron
	log      *zap.Logger

	mu           sync.RWMutex
	isRunning    bool
	lastSyncTime time.Time
	lastResult   syncpkg.SyncResult
	passes       int
}

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	// Schedule is a cron spec for periodic passes. Empty disables them.
	Schedule string

	// PassTimeout bounds each pass. Defaults to 5 minutes.
	PassTimeout time.Duration
}

// DefaultSchedulerConfig returns the default configuration: no periodic
// passes, lifecycle triggers only.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		PassTimeout: 5 * time.Minute,
	}
}

// NewScheduler creates a new Scheduler.
func NewScheduler(engine syncpkg.SyncEngineInterface, store Recoverer, config *SchedulerConfig) *Scheduler {
	if config == nil {
		config = DefaultSchedulerConfig()
	}
	timeout := config.PassTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	return &Scheduler{
		engine:   engine,
		store:    store,
		schedule: config.Schedule,
		timeout:  timeout,
		log:      logging.Named("scheduler"),
	}
}

// OnAppStart resets interrupted entries and runs the app-start pass.
func (s *Scheduler) OnAppStart(ctx context.Context) syncpkg.SyncResult {
	if n, err := s.store.RecoverInterrupted(ctx); err != nil {
		s.log.Warn("could not reset interrupted sync entries",
			zap.String("code", string(errors.CodeOf(err))), zap.Error(err))
	} else if n > 0 {
		s.log.Info("reset interrupted sync entries", zap.Int("count", n))
	}
	return s.runSync(ctx, "app_start")
}

// Refresh runs a pass for an explicit user refresh.
func (s *Scheduler) Refresh(ctx context.Context) syncpkg.SyncResult {
	return s.runSync(ctx, "refresh")
}

// Start begins periodic passes when a schedule is configured. It returns
// an error for an unparseable schedule.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}
	if s.schedule != "" {
		c := cron.New()
		if _, err := c.AddFunc(s.schedule, func() { s.runSync(ctx, "cron") }); err != nil {
			return errors.Wrap(errors.ErrInvalid, "parse sync schedule", err)
		}
		c.Start()
		s.cron = c
	}
	s.isRunning = true

	s.log.Info("sync scheduler started", zap.String("schedule", s.schedule))
	return nil
}

// Stop stops periodic passes and waits for a running cron pass to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	s.log.Info("sync scheduler stopped")
}

// runSync executes one pass and records its outcome.
func (s *Scheduler) runSync(ctx context.Context, trigger string) syncpkg.SyncResult {
	passCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result := s.engine.SyncPendingWalks(passCtx)

	s.mu.Lock()
	s.lastSyncTime = time.Now()
	s.lastResult = result
	s.passes++
	s.mu.Unlock()

	s.log.Debug("sync triggered",
		zap.String("trigger", trigger),
		zap.Int("synced", result.Synced),
		zap.Int("failed", result.Failed))
	return result
}

// SchedulerStatus is a snapshot of the scheduler for status screens.
type SchedulerStatus struct {
	IsRunning    bool               `json:"isRunning"`
	Schedule     string             `json:"schedule,omitempty"`
	LastSyncTime *time.Time         `json:"lastSyncTime,omitempty"`
	LastResult   syncpkg.SyncResult `json:"lastResult"`
	Passes       int                `json:"passes"`
	PendingWalks int                `json:"pendingWalks"`
}

// Status returns the current status of the scheduler.
func (s *Scheduler) Status(ctx context.Context) SchedulerStatus {
	s.mu.RLock()
	status := SchedulerStatus{
		IsRunning:  s.isRunning,
		Schedule:   s.schedule,
		LastResult: s.lastResult,
		Passes:     s.passes,
	}
	if !s.lastSyncTime.IsZero() {
		last := s.lastSyncTime
		status.LastSyncTime = &last
	}
	s.mu.RUnlock()

	status.PendingWalks = s.engine.PendingCount(ctx)
	return status
}

// IsRunning returns whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
