// Package remote talks to the remote walk store. Each method maps to one SQL
// statement; sync policy lives in the sync package.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kimhsiao/pawtrail/core/internal/errors"
	"github.com/kimhsiao/pawtrail/core/internal/models"
)

// Service is the remote persistence contract the sync engine depends on.
type Service interface {
	// InsertWalk creates the walk row and returns its remote id. Inserting a
	// record whose LocalID already exists returns the existing id.
	InsertWalk(ctx context.Context, record models.WalkRecord) (string, error)

	// InsertWalkEvents bulk-creates event rows for walkID. Events already
	// stored under the same id are skipped.
	InsertWalkEvents(ctx context.Context, walkID string, events []models.WalkEvent) error

	// DeleteWalk removes a walk row and, through the foreign key, its events.
	DeleteWalk(ctx context.Context, id string) error

	// DeleteWalkEvents removes all events of walkID.
	DeleteWalkEvents(ctx context.Context, walkID string) error
}

// Querier is the minimal interface satisfied by *pgxpool.Pool, pgx.Conn,
// pgx.Tx and pgxmock pools.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres is the Service backed by the walks and walk_events tables.
type Postgres struct {
	db Querier
}

// NewPostgres constructs a Postgres service. In production pass
// *pgxpool.Pool; in tests pass a pgxmock pool.
func NewPostgres(db Querier) *Postgres {
	return &Postgres{db: db}
}

// InsertWalk inserts the walk, or returns the id of the row already stored
// for record.LocalID. A retried upload after a lost response therefore
// never creates a second row.
func (p *Postgres) InsertWalk(ctx context.Context, record models.WalkRecord) (string, error) {
	const q = `
		INSERT INTO walks (local_id, user_id, dog_id, start_time, end_time,
		                   duration_seconds, distance_meters, route_coordinates)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb)
		ON CONFLICT (local_id) DO UPDATE SET local_id = EXCLUDED.local_id
		RETURNING id::text`

	route := record.RouteCoordinates
	if route == nil {
		route = []models.Coordinate{}
	}
	routeJSON, err := json.Marshal(route)
	if err != nil {
		return "", errors.Wrap(errors.ErrRemoteSync, "encode route", err)
	}

	var id string
	err = p.db.QueryRow(ctx, q,
		record.LocalID,
		record.UserID,
		record.DogID,
		record.StartTime,
		record.EndTime,
		record.DurationSeconds,
		record.DistanceMeters,
		string(routeJSON),
	).Scan(&id)
	if err != nil {
		return "", errors.Wrap(errors.ErrRemoteSync,
			fmt.Sprintf("insert walk %s", record.LocalID), err)
	}
	return id, nil
}

// InsertWalkEvents inserts all events in one statement.
func (p *Postgres) InsertWalkEvents(ctx context.Context, walkID string, events []models.WalkEvent) error {
	if len(events) == 0 {
		return nil
	}

	const q = `
		INSERT INTO walk_events (id, walk_id, event_type, latitude, longitude, occurred_at)
		SELECT e.id::uuid, $1::uuid, e.event_type, e.latitude, e.longitude, e.occurred_at
		FROM unnest($2::text[], $3::text[], $4::float8[], $5::float8[], $6::timestamptz[])
		     AS e(id, event_type, latitude, longitude, occurred_at)
		ON CONFLICT (id) DO NOTHING`

	ids := make([]string, len(events))
	types := make([]string, len(events))
	lats := make([]float64, len(events))
	lngs := make([]float64, len(events))
	times := make([]time.Time, len(events))
	for i, e := range events {
		ids[i] = e.ID
		types[i] = string(e.EventType)
		lats[i] = e.Coordinate.Latitude
		lngs[i] = e.Coordinate.Longitude
		times[i] = e.Timestamp
	}

	if _, err := p.db.Exec(ctx, q, walkID, ids, types, lats, lngs, times); err != nil {
		return errors.Wrap(errors.ErrEventSync,
			fmt.Sprintf("insert %d events for walk %s", len(events), walkID), err)
	}
	return nil
}

// DeleteWalk removes a walk by remote id. Returns NOT_FOUND if no row matched.
func (p *Postgres) DeleteWalk(ctx context.Context, id string) error {
	tag, err := p.db.Exec(ctx, `DELETE FROM walks WHERE id = $1::uuid`, id)
	if err != nil {
		return errors.Wrap(errors.ErrRemoteSync, fmt.Sprintf("delete walk %s", id), err)
	}
	if tag.RowsAffected() == 0 {
		return errors.New(errors.ErrNotFound, fmt.Sprintf("walk %s not found", id))
	}
	return nil
}

// DeleteWalkEvents removes the events of a walk. Deleting from a walk with
// no events is not an error.
func (p *Postgres) DeleteWalkEvents(ctx context.Context, walkID string) error {
	if _, err := p.db.Exec(ctx, `DELETE FROM walk_events WHERE walk_id = $1::uuid`, walkID); err != nil {
		return errors.Wrap(errors.ErrRemoteSync, fmt.Sprintf("delete events of walk %s", walkID), err)
	}
	return nil
}

// Offline is the Service used when no remote store is configured. Every
// call fails with REMOTE_SYNC_ERROR, so finished walks stay queued.
var Offline Service = offline{}

type offline struct{}

func (offline) InsertWalk(context.Context, models.WalkRecord) (string, error) {
	return "", errNotConfigured
}

func (offline) InsertWalkEvents(context.Context, string, []models.WalkEvent) error {
	return errNotConfigured
}

func (offline) DeleteWalk(context.Context, string) error { return errNotConfigured }

func (offline) DeleteWalkEvents(context.Context, string) error { return errNotConfigured }

var errNotConfigured = errors.New(errors.ErrRemoteSync, "remote store not configured")
