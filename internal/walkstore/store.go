// Package walkstore persists the active walk and the queue of finished walks
// waiting for upload on top of a kv.Store.
package walkstore

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kimhsiao/pawtrail/core/internal/kv"
	"github.com/kimhsiao/pawtrail/core/internal/logging"
)

// Storage keys. The layout is shared with earlier app versions, so these
// must not change.
const (
	ActiveWalkKey     = "activeWalk"
	PendingWalksKey   = "pendingWalks"
	quarantineKeyBase = "pendingWalks.unreadable."
)

// Store is the local walk record store. It is safe for concurrent use; all
// pending-queue mutations are serialised read-modify-write of the whole queue.
type Store struct {
	kv  kv.Store
	now func() time.Time
	log *zap.Logger

	// mu serialises pending queue read-modify-write cycles.
	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for lastSavedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger overrides the store logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Store) { s.log = log }
}

// New creates a Store on top of backend.
func New(backend kv.Store, opts ...Option) *Store {
	s := &Store{
		kv:  backend,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logging.Named("walkstore")
	}
	return s
}
