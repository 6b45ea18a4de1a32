// Package recovery detects a walk orphaned by a crash or kill and lets the
// user either resume it or discard it.
package recovery

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/kimhsiao/pawtrail/core/internal/errors"
	"github.com/kimhsiao/pawtrail/core/internal/logging"
	"github.com/kimhsiao/pawtrail/core/internal/models"
	"github.com/kimhsiao/pawtrail/core/internal/recorder"
)

// AuthState is what the app knows about the signed-in user.
type AuthState int

const (
	// AuthUnknown means the session has not been restored yet.
	AuthUnknown AuthState = iota
	AuthLoggedOut
	AuthLoggedIn
)

// Decision is the user's answer to the recovery prompt.
type Decision string

const (
	DecisionDiscard Decision = "discard"
	DecisionResume  Decision = "resume"
)

// Valid reports whether d is a known decision.
func (d Decision) Valid() bool {
	return d == DecisionDiscard || d == DecisionResume
}

// Prompter asks the user what to do with an orphaned walk.
type Prompter interface {
	PromptCrashedWalk(ctx context.Context, walk *models.LocalWalk) (Decision, error)
}

// PromptFunc adapts a function to Prompter.
type PromptFunc func(ctx context.Context, walk *models.LocalWalk) (Decision, error)

// PromptCrashedWalk implements Prompter.
func (f PromptFunc) PromptCrashedWalk(ctx context.Context, walk *models.LocalWalk) (Decision, error) {
	return f(ctx, walk)
}

// Store is the part of the walk store recovery needs.
type Store interface {
	recorder.Store
	GetActiveWalk(ctx context.Context) *models.LocalWalk
	ClearActiveWalk(ctx context.Context) error
	AddToPendingWalks(ctx context.Context, walk *models.LocalWalk) error
}

// Coordinator runs the crash check once per app start. Create a new
// Coordinator on every start.
type Coordinator struct {
	store        Store
	recorderOpts []recorder.Option
	log          *zap.Logger

	mu       sync.Mutex
	checked  bool
	orphan   *models.LocalWalk
	resolved bool
}

// NewCoordinator creates a Coordinator. recorderOpts are passed to the
// recorder built on resume.
func NewCoordinator(store Store, recorderOpts ...recorder.Option) *Coordinator {
	return &Coordinator{
		store:        store,
		recorderOpts: recorderOpts,
		log:          logging.Named("recovery"),
	}
}

// CheckForCrashedWalk looks for an orphaned walk and, if there is one, asks
// prompt whether to resume or discard it. It returns a Recording recorder
// when the user chose to resume and nil otherwise.
//
// Before the auth state is known it fails with AUTH_NOT_READY and may be
// called again. When logged out it does nothing and may be called again
// after login. Otherwise it runs at most once.
func (c *Coordinator) CheckForCrashedWalk(ctx context.Context, auth AuthState, prompt Prompter) (*recorder.Recorder, error) {
	walk, err := c.Detect(ctx, auth)
	if err != nil || walk == nil {
		return nil, err
	}

	decision, err := prompt.PromptCrashedWalk(ctx, walk.Clone())
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "recovery prompt", err)
	}
	return c.Resolve(ctx, decision)
}

// Detect is the first half of CheckForCrashedWalk for callers that show the
// prompt asynchronously. It returns the orphan awaiting a decision, or nil.
// A finished walk left in the slot never reached the sync engine; it is
// queued for upload without asking.
func (c *Coordinator) Detect(ctx context.Context, auth AuthState) (*models.LocalWalk, error) {
	switch auth {
	case AuthUnknown:
		return nil, errors.New(errors.ErrAuthNotReady, "crash check before auth state is known")
	case AuthLoggedOut:
		c.log.Debug("logged out, skipping crash check")
		return nil, nil
	case AuthLoggedIn:
	default:
		return nil, errors.New(errors.ErrInvalid, fmt.Sprintf("unknown auth state %d", auth))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.checked {
		return nil, nil
	}
	c.checked = true

	walk := c.store.GetActiveWalk(ctx)
	if walk == nil {
		return nil, nil
	}

	if walk.IsFinished() {
		if err := c.store.AddToPendingWalks(ctx, walk); err != nil {
			return nil, err
		}
		if err := c.store.ClearActiveWalk(ctx); err != nil {
			c.log.Warn("could not clear requeued walk", zap.String("local_id", walk.LocalID), zap.Error(err))
		}
		c.log.Info("queued finished walk found in active slot", zap.String("local_id", walk.LocalID))
		return nil, nil
	}

	c.orphan = walk
	c.log.Info("orphaned walk found",
		zap.String("local_id", walk.LocalID),
		zap.Int64("duration_seconds", walk.DurationSeconds),
		zap.Int("points", len(walk.RouteCoordinates)))
	return walk.Clone(), nil
}

// AwaitingDecision reports whether Detect returned an orphan that has not
// been resolved yet.
func (c *Coordinator) AwaitingDecision() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.orphan != nil && !c.resolved
}

// Resolve applies the user's decision to the orphan returned by Detect.
// Discard permanently deletes the walk. Resume returns a Recording recorder
// that continues from the last checkpoint.
func (c *Coordinator) Resolve(ctx context.Context, decision Decision) (*recorder.Recorder, error) {
	if !decision.Valid() {
		return nil, errors.New(errors.ErrInvalid, fmt.Sprintf("unknown recovery decision %q", decision))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.orphan == nil || c.resolved {
		return nil, errors.New(errors.ErrInvalidState, "no orphaned walk awaiting a decision")
	}
	walk := c.orphan

	switch decision {
	case DecisionDiscard:
		if err := c.store.ClearActiveWalk(ctx); err != nil {
			return nil, err
		}
		c.resolved = true
		c.log.Info("orphaned walk discarded by user", zap.String("local_id", walk.LocalID))
		return nil, nil
	default:
		rec, err := recorder.Resume(c.store, walk, c.recorderOpts...)
		if err != nil {
			return nil, err
		}
		c.resolved = true
		return rec, nil
	}
}
