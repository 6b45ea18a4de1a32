// Package models provides data model definitions for the walk core.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Coordinate is an immutable GPS sample.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// EventType is the kind of in-walk event the user logged.
type EventType string

const (
	EventPoop     EventType = "poop"
	EventPee      EventType = "pee"
	EventReaction EventType = "reaction"
	EventSniff    EventType = "sniff"
	EventWater    EventType = "water"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventPoop, EventPee, EventReaction, EventSniff, EventWater:
		return true
	}
	return false
}

// UnmarshalJSON rejects unknown event types.
func (t *EventType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if !EventType(s).Valid() {
		return fmt.Errorf("unknown event type %q", s)
	}
	*t = EventType(s)
	return nil
}

// WalkEvent is a discrete event logged during a walk. Immutable once created.
type WalkEvent struct {
	ID         string     `json:"id"`
	EventType  EventType  `json:"eventType"`
	Coordinate Coordinate `json:"coordinate"`
	Timestamp  time.Time  `json:"timestamp"`
}

// SyncStatus is the sync state of a LocalWalk.
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSyncing SyncStatus = "syncing"
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusFailed  SyncStatus = "failed"
)

// Valid reports whether s is a known status.
func (s SyncStatus) Valid() bool {
	switch s {
	case SyncStatusPending, SyncStatusSyncing, SyncStatusSynced, SyncStatusFailed:
		return true
	}
	return false
}

// NeedsSync reports whether the walk is still waiting to be uploaded.
// Used for the pending badge count.
func (s SyncStatus) NeedsSync() bool {
	return s == SyncStatusPending || s == SyncStatusFailed
}

// IsRetryEligible reports whether a sync pass should attempt the walk.
// A syncing status found at the start of a pass was left by a killed
// process and is treated like failed.
func (s SyncStatus) IsRetryEligible() bool {
	return s == SyncStatusPending || s == SyncStatusFailed || s == SyncStatusSyncing
}

// UnmarshalJSON accepts the known statuses; an empty status decodes as pending.
func (s *SyncStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		*s = SyncStatusPending
		return nil
	}
	if !SyncStatus(raw).Valid() {
		return fmt.Errorf("unknown sync status %q", raw)
	}
	*s = SyncStatus(raw)
	return nil
}

// LocalWalk is one walking session from local creation until it is synced
// and purged. LocalID is the idempotency key for sync and is never reused.
type LocalWalk struct {
	LocalID          string       `json:"localId"`
	DogID            string       `json:"dogId"`
	UserID           string       `json:"userId"`
	StartTime        time.Time    `json:"startTime"`
	EndTime          *time.Time   `json:"endTime,omitempty"`
	RouteCoordinates []Coordinate `json:"routeCoordinates"`
	Events           []WalkEvent  `json:"events"`
	DurationSeconds  int64        `json:"durationSeconds"`
	DistanceMeters   float64      `json:"distanceMeters"`
	SyncStatus       SyncStatus   `json:"syncStatus"`
	LastSavedAt      time.Time    `json:"lastSavedAt"`
	RemoteID         string       `json:"remoteId,omitempty"`
}

// IsFinished reports whether EndTime has been set.
func (w *LocalWalk) IsFinished() bool {
	return w.EndTime != nil
}

// LastCoordinate returns the most recent route point, if any.
func (w *LocalWalk) LastCoordinate() (Coordinate, bool) {
	if len(w.RouteCoordinates) == 0 {
		return Coordinate{}, false
	}
	return w.RouteCoordinates[len(w.RouteCoordinates)-1], true
}

// Clone returns a deep copy so snapshots never alias recorder state.
func (w *LocalWalk) Clone() *LocalWalk {
	if w == nil {
		return nil
	}
	c := *w
	if w.EndTime != nil {
		end := *w.EndTime
		c.EndTime = &end
	}
	if w.RouteCoordinates != nil {
		c.RouteCoordinates = append(make([]Coordinate, 0, len(w.RouteCoordinates)), w.RouteCoordinates...)
	}
	if w.Events != nil {
		c.Events = append(make([]WalkEvent, 0, len(w.Events)), w.Events...)
	}
	return &c
}

// Normalize fills nil slices and an empty status after decoding, so older or
// partial records behave like fresh ones.
func (w *LocalWalk) Normalize() {
	if w.RouteCoordinates == nil {
		w.RouteCoordinates = []Coordinate{}
	}
	if w.Events == nil {
		w.Events = []WalkEvent{}
	}
	if w.SyncStatus == "" {
		w.SyncStatus = SyncStatusPending
	}
}

// Record builds the remote insert payload for the walk.
func (w *LocalWalk) Record() WalkRecord {
	return WalkRecord{
		LocalID:          w.LocalID,
		UserID:           w.UserID,
		DogID:            w.DogID,
		StartTime:        w.StartTime,
		EndTime:          w.EndTime,
		DurationSeconds:  w.DurationSeconds,
		DistanceMeters:   w.DistanceMeters,
		RouteCoordinates: append([]Coordinate(nil), w.RouteCoordinates...),
	}
}

// WalkRecord is the row sent to the remote persistence service.
type WalkRecord struct {
	LocalID          string       `json:"localId"`
	UserID           string       `json:"userId"`
	DogID            string       `json:"dogId"`
	StartTime        time.Time    `json:"startTime"`
	EndTime          *time.Time   `json:"endTime,omitempty"`
	DurationSeconds  int64        `json:"durationSeconds"`
	DistanceMeters   float64      `json:"distanceMeters"`
	RouteCoordinates []Coordinate `json:"routeCoordinates"`
}
