package walkstore

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/kimhsiao/pawtrail/core/internal/errors"
	"github.com/kimhsiao/pawtrail/core/internal/models"
)

// GetPendingWalks returns the pending queue in insertion order. It never
// returns nil; an unreadable queue is logged and reported as empty.
func (s *Store) GetPendingWalks(ctx context.Context) []*models.LocalWalk {
	walks, _, err := s.loadPending(ctx, false)
	if err != nil {
		s.log.Warn("pending walks unreadable",
			zap.String("code", string(errors.ErrStorageRead)), zap.Error(err))
		return []*models.LocalWalk{}
	}
	return walks
}

// AddToPendingWalks appends walk to the queue with status pending. A walk
// whose localId is already queued replaces that entry in place, so the same
// localId never appears twice.
func (s *Store) AddToPendingWalks(ctx context.Context, walk *models.LocalWalk) error {
	if walk == nil || walk.LocalID == "" {
		return errors.New(errors.ErrInvalid, "add pending walk: missing local id")
	}

	queued := walk.Clone()
	queued.SyncStatus = models.SyncStatusPending
	queued.LastSavedAt = s.now().UTC()

	return s.mutatePending(ctx, func(walks []*models.LocalWalk) ([]*models.LocalWalk, bool) {
		for i, w := range walks {
			if w.LocalID == queued.LocalID {
				if queued.RemoteID == "" {
					queued.RemoteID = w.RemoteID
				}
				walks[i] = queued
				return walks, true
			}
		}
		return append(walks, queued), true
	})
}

// UpdateWalkSyncStatus rewrites the status of the entry with localID, and its
// remoteID when one is given. A remoteID, once set, is never replaced. Unknown
// localIDs are a no-op.
func (s *Store) UpdateWalkSyncStatus(ctx context.Context, localID string, status models.SyncStatus, remoteID string) error {
	if !status.Valid() {
		return errors.New(errors.ErrInvalid, fmt.Sprintf("unknown sync status %q", status))
	}

	return s.mutatePending(ctx, func(walks []*models.LocalWalk) ([]*models.LocalWalk, bool) {
		for _, w := range walks {
			if w.LocalID != localID {
				continue
			}
			w.SyncStatus = status
			if remoteID != "" {
				switch {
				case w.RemoteID == "":
					w.RemoteID = remoteID
				case w.RemoteID != remoteID:
					s.log.Warn("refusing to reassign remote id",
						zap.String("local_id", localID),
						zap.String("remote_id", w.RemoteID),
						zap.String("rejected_remote_id", remoteID))
				}
			}
			w.LastSavedAt = s.now().UTC()
			return walks, true
		}
		return walks, false
	})
}

// RemoveSyncedWalks drops every synced entry and returns how many were removed.
// Entries in any other status are kept. Calling it again is a no-op.
func (s *Store) RemoveSyncedWalks(ctx context.Context) (int, error) {
	removed := 0
	err := s.mutatePending(ctx, func(walks []*models.LocalWalk) ([]*models.LocalWalk, bool) {
		kept := walks[:0]
		for _, w := range walks {
			if w.SyncStatus == models.SyncStatusSynced {
				removed++
				continue
			}
			kept = append(kept, w)
		}
		return kept, removed > 0
	})
	return removed, err
}

// GetPendingWalkCount counts entries that still need sync (pending or failed).
func (s *Store) GetPendingWalkCount(ctx context.Context) int {
	count := 0
	for _, w := range s.GetPendingWalks(ctx) {
		if w.SyncStatus.NeedsSync() {
			count++
		}
	}
	return count
}

// RecoverInterrupted rewrites entries left in syncing by a killed process to
// failed, so they show up as needing sync and are retried on the next pass.
// Call it once at startup, before any sync pass runs.
func (s *Store) RecoverInterrupted(ctx context.Context) (int, error) {
	recovered := 0
	err := s.mutatePending(ctx, func(walks []*models.LocalWalk) ([]*models.LocalWalk, bool) {
		for _, w := range walks {
			if w.SyncStatus == models.SyncStatusSyncing {
				w.SyncStatus = models.SyncStatusFailed
				recovered++
			}
		}
		return walks, recovered > 0
	})
	if recovered > 0 {
		s.log.Info("recovered interrupted sync entries", zap.Int("count", recovered))
	}
	return recovered, err
}

// mutatePending runs fn over the current queue and persists the result when fn
// reports a change. The whole cycle holds s.mu.
func (s *Store) mutatePending(ctx context.Context, fn func([]*models.LocalWalk) ([]*models.LocalWalk, bool)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	walks, quarantined, err := s.loadPending(ctx, true)
	if err != nil {
		return errors.Wrap(errors.ErrStorageRead, "load pending walks", err)
	}

	walks, changed := fn(walks)
	if !changed && !quarantined {
		return nil
	}
	return s.writePending(ctx, walks)
}

func (s *Store) writePending(ctx context.Context, walks []*models.LocalWalk) error {
	if walks == nil {
		walks = []*models.LocalWalk{}
	}
	data, err := json.Marshal(walks)
	if err != nil {
		return errors.Wrap(errors.ErrStorageWrite, "encode pending walks", err)
	}
	if err := s.kv.Set(ctx, PendingWalksKey, string(data)); err != nil {
		return errors.Wrap(errors.ErrStorageWrite, "save pending walks", err)
	}
	return nil
}

// loadPending decodes the queue entry by entry. Entries that fail to decode
// are skipped; when quarantine is set they are first copied under a separate
// key so the following write does not destroy them, and quarantined is true.
func (s *Store) loadPending(ctx context.Context, quarantine bool) (walks []*models.LocalWalk, quarantined bool, err error) {
	raw, ok, err := s.kv.Get(ctx, PendingWalksKey)
	if err != nil {
		return nil, false, err
	}
	if !ok || raw == "" {
		return []*models.LocalWalk{}, false, nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		if quarantine {
			if qErr := s.quarantine(ctx, raw, err); qErr != nil {
				return nil, false, qErr
			}
			return []*models.LocalWalk{}, true, nil
		}
		s.log.Warn("pending queue corrupt", zap.Error(err))
		return []*models.LocalWalk{}, false, nil
	}

	walks = make([]*models.LocalWalk, 0, len(entries))
	var bad []json.RawMessage
	for _, entry := range entries {
		var w models.LocalWalk
		if err := json.Unmarshal(entry, &w); err != nil || w.LocalID == "" {
			bad = append(bad, entry)
			continue
		}
		w.Normalize()
		walks = append(walks, &w)
	}

	if len(bad) > 0 {
		if quarantine {
			data, _ := json.Marshal(bad)
			cause := fmt.Errorf("%d undecodable entries", len(bad))
			if err := s.quarantine(ctx, string(data), cause); err != nil {
				return nil, false, err
			}
			return walks, true, nil
		}
		s.log.Warn("skipping undecodable pending entries", zap.Int("count", len(bad)))
	}
	return walks, false, nil
}

func (s *Store) quarantine(ctx context.Context, raw string, cause error) error {
	key := fmt.Sprintf("%s%d", quarantineKeyBase, s.now().UnixNano())
	if err := s.kv.Set(ctx, key, raw); err != nil {
		return errors.Wrap(errors.ErrStorageWrite, "quarantine unreadable pending walks", err)
	}
	s.log.Error("quarantined unreadable pending walks",
		zap.String("code", string(errors.ErrStorageRead)),
		zap.String("key", key),
		zap.Error(cause))
	return nil
}
