// Package recorder owns the in-memory session of the walk in progress and is
// the only writer of the active-walk slot while recording.
package recorder

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kimhsiao/pawtrail/core/internal/errors"
	"github.com/kimhsiao/pawtrail/core/internal/geo"
	"github.com/kimhsiao/pawtrail/core/internal/logging"
	"github.com/kimhsiao/pawtrail/core/internal/models"
	"github.com/kimhsiao/pawtrail/core/internal/telemetry"
	"github.com/kimhsiao/pawtrail/core/internal/uuid"
)

// DefaultCheckpointInterval is how often Run snapshots the active walk.
const DefaultCheckpointInterval = 30 * time.Second

// State is the recorder lifecycle state.
type State int

const (
	Idle State = iota
	Recording
	Paused
	Finished
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Paused:
		return "paused"
	case Finished:
		return "finished"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Store is the slice of the walk store the recorder writes to.
type Store interface {
	SaveActiveWalk(ctx context.Context, walk *models.LocalWalk) error
}

// Recorder accumulates route, events and duration for a single walk.
// A Recorder is used for one walk; after Finish it is discarded.
type Recorder struct {
	store   Store
	now     func() time.Time
	log     *zap.Logger
	metrics *telemetry.SyncMetrics

	tickInterval       time.Duration
	checkpointInterval time.Duration

	// mu guards everything below and is held across active-slot writes, so
	// a checkpoint can never land after the final write of Finish.
	mu          sync.Mutex
	state       State
	walk        *models.LocalWalk
	current     *models.Coordinate
	lastEventAt time.Time

	running  bool
	stop     chan struct{}
	stopOnce sync.Once
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock overrides the clock used for start, end and event timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// WithLogger overrides the recorder logger.
func WithLogger(log *zap.Logger) Option {
	return func(r *Recorder) { r.log = log }
}

// WithMetrics reports checkpoint failures to m.
func WithMetrics(m *telemetry.SyncMetrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

// WithCheckpointInterval overrides the periodic checkpoint interval.
func WithCheckpointInterval(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.checkpointInterval = d
		}
	}
}

// New creates an Idle recorder writing to store.
func New(store Store, opts ...Option) *Recorder {
	r := &Recorder{
		store:              store,
		now:                time.Now,
		tickInterval:       time.Second,
		checkpointInterval: DefaultCheckpointInterval,
		state:              Idle,
		stop:               make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logging.Named("recorder")
	}
	return r
}

// Resume builds a Recording recorder around a walk recovered from the
// active slot. Route, events, duration and distance are kept as they are.
func Resume(store Store, walk *models.LocalWalk, opts ...Option) (*Recorder, error) {
	if walk == nil || walk.LocalID == "" {
		return nil, errors.New(errors.ErrInvalid, "resume: no walk to resume")
	}
	if walk.IsFinished() {
		return nil, errors.New(errors.ErrInvalidState, "resume: walk already finished")
	}

	r := New(store, opts...)
	r.walk = walk.Clone()
	r.walk.Normalize()
	r.state = Recording
	if last, ok := r.walk.LastCoordinate(); ok {
		r.current = &last
	}
	for _, e := range r.walk.Events {
		if e.Timestamp.After(r.lastEventAt) {
			r.lastEventAt = e.Timestamp
		}
	}

	r.log.Info("walk resumed",
		zap.String("local_id", r.walk.LocalID),
		zap.Int("points", len(r.walk.RouteCoordinates)),
		zap.Int("events", len(r.walk.Events)),
		zap.Int64("duration_seconds", r.walk.DurationSeconds))
	return r, nil
}

// StartWalk creates a fresh walk and persists it to the active slot. It
// fails with WALK_START_ERROR when either id is missing or the first write
// fails; the recorder then stays Idle.
func (r *Recorder) StartWalk(ctx context.Context, dogID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Idle {
		return errors.New(errors.ErrInvalidState, fmt.Sprintf("start walk: recorder is %s", r.state))
	}
	if userID == "" {
		return errors.New(errors.ErrWalkStart, "start walk: no authenticated user")
	}
	if dogID == "" {
		return errors.New(errors.ErrWalkStart, "start walk: no dog selected")
	}

	walk := &models.LocalWalk{
		LocalID:          uuid.GenerateLocalID(),
		DogID:            dogID,
		UserID:           userID,
		StartTime:        r.now().UTC(),
		RouteCoordinates: []models.Coordinate{},
		Events:           []models.WalkEvent{},
		SyncStatus:       models.SyncStatusPending,
	}
	if err := r.store.SaveActiveWalk(ctx, walk); err != nil {
		return errors.Wrap(errors.ErrWalkStart, "start walk: persist active walk", err)
	}

	r.walk = walk
	r.state = Recording
	r.log.Info("walk started", zap.String("local_id", walk.LocalID), zap.String("dog_id", dogID))
	return nil
}

// RecordLocation handles a GPS fix. While Recording it extends the route and
// the distance; while Paused it only updates the current position used by
// RecordEvent.
func (r *Recorder) RecordLocation(c models.Coordinate) error {
	if err := validateCoordinate(c); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case Recording:
		if prev, ok := r.walk.LastCoordinate(); ok {
			r.walk.DistanceMeters += geo.HaversineMeters(prev.Latitude, prev.Longitude, c.Latitude, c.Longitude)
		}
		r.walk.RouteCoordinates = append(r.walk.RouteCoordinates, c)
	case Paused:
	default:
		return errors.New(errors.ErrInvalidState, fmt.Sprintf("record location: recorder is %s", r.state))
	}

	r.current = &c
	return nil
}

// RecordEvent logs an event at the current position. Without a known
// position the event is dropped and (nil, nil) is returned.
func (r *Recorder) RecordEvent(eventType models.EventType) (*models.WalkEvent, error) {
	if !eventType.Valid() {
		return nil, errors.New(errors.ErrInvalid, fmt.Sprintf("unknown event type %q", eventType))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Recording && r.state != Paused {
		return nil, errors.New(errors.ErrInvalidState, fmt.Sprintf("record event: recorder is %s", r.state))
	}
	if r.current == nil {
		r.log.Debug("walk_event_dropped",
			zap.String("local_id", r.walk.LocalID),
			zap.String("event_type", string(eventType)))
		return nil, nil
	}

	ts := r.now().UTC()
	if !ts.After(r.lastEventAt) {
		ts = r.lastEventAt.Add(time.Millisecond)
	}
	r.lastEventAt = ts

	event := models.WalkEvent{
		ID:         uuid.New(),
		EventType:  eventType,
		Coordinate: *r.current,
		Timestamp:  ts,
	}
	r.walk.Events = append(r.walk.Events, event)
	return &event, nil
}

// Tick adds one second of duration. It does nothing unless Recording.
func (r *Recorder) Tick() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == Recording {
		r.walk.DurationSeconds++
	}
}

// Checkpoint writes the current state to the active slot. Outside Recording
// and Paused it is a no-op. Failures are logged and returned; the in-memory
// walk stays authoritative.
func (r *Recorder) Checkpoint(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Recording && r.state != Paused {
		return nil
	}
	if err := r.store.SaveActiveWalk(ctx, r.walk); err != nil {
		r.metrics.CheckpointFailed()
		r.log.Error("checkpoint failed",
			zap.String("code", string(errors.ErrStorageWrite)),
			zap.String("local_id", r.walk.LocalID),
			zap.Error(err))
		return err
	}
	r.log.Debug("checkpoint saved",
		zap.String("local_id", r.walk.LocalID),
		zap.Int("points", len(r.walk.RouteCoordinates)))
	return nil
}

// Pause suspends location accumulation and duration.
func (r *Recorder) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Recording {
		return errors.New(errors.ErrInvalidState, fmt.Sprintf("pause: recorder is %s", r.state))
	}
	r.state = Paused
	return nil
}

// ResumeRecording continues a paused walk.
func (r *Recorder) ResumeRecording() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Paused {
		return errors.New(errors.ErrInvalidState, fmt.Sprintf("resume: recorder is %s", r.state))
	}
	r.state = Recording
	return nil
}

// Finish stamps the end time, writes the final state to the active slot and
// returns the finished walk. If the write fails the recorder keeps its
// state and Finish may be retried. Once it succeeds, Run stops and further
// mutations are rejected.
func (r *Recorder) Finish(ctx context.Context) (*models.LocalWalk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Recording && r.state != Paused {
		return nil, errors.New(errors.ErrInvalidState, fmt.Sprintf("finish: recorder is %s", r.state))
	}

	final := r.walk.Clone()
	end := r.now().UTC()
	final.EndTime = &end
	if err := r.store.SaveActiveWalk(ctx, final); err != nil {
		r.log.Error("finish walk failed",
			zap.String("code", string(errors.ErrStorageWrite)),
			zap.String("local_id", final.LocalID),
			zap.Error(err))
		return nil, err
	}

	r.walk = final
	r.state = Finished
	r.stopOnce.Do(func() { close(r.stop) })

	r.log.Info("walk finished",
		zap.String("local_id", final.LocalID),
		zap.Int64("duration_seconds", final.DurationSeconds),
		zap.Float64("distance_meters", final.DistanceMeters),
		zap.Int("events", len(final.Events)))
	return final.Clone(), nil
}

// Snapshot returns a copy of the walk being recorded, or nil when Idle.
func (r *Recorder) Snapshot() *models.LocalWalk {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.walk.Clone()
}

// State returns the current lifecycle state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// CurrentLocation returns the last known position.
func (r *Recorder) CurrentLocation() (models.Coordinate, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return models.Coordinate{}, false
	}
	return *r.current, true
}

// Run drives Tick every second and Checkpoint on the checkpoint interval
// until ctx is cancelled or the walk is finished. Only the first call runs;
// later calls return immediately.
func (r *Recorder) Run(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.mu.Unlock()

	tick := time.NewTicker(r.tickInterval)
	defer tick.Stop()
	checkpoint := time.NewTicker(r.checkpointInterval)
	defer checkpoint.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-tick.C:
			r.Tick()
		case <-checkpoint.C:
			// Errors are already logged and counted.
			_ = r.Checkpoint(ctx)
		}
	}
}

func validateCoordinate(c models.Coordinate) error {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) ||
		c.Latitude < -90 || c.Latitude > 90 || c.Longitude < -180 || c.Longitude > 180 {
		return errors.New(errors.ErrInvalid,
			fmt.Sprintf("coordinate out of range: %v,%v", c.Latitude, c.Longitude))
	}
	return nil
}
