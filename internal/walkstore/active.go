package walkstore

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/kimhsiao/pawtrail/core/internal/errors"
	"github.com/kimhsiao/pawtrail/core/internal/models"
)

// SaveActiveWalk overwrites the active-walk slot with walk and stamps its
// LastSavedAt. Callers must propagate the error: a lost write here is data
// lost on crash.
func (s *Store) SaveActiveWalk(ctx context.Context, walk *models.LocalWalk) error {
	if walk == nil {
		return errors.New(errors.ErrInvalid, "save active walk: nil walk")
	}

	saved := walk.Clone()
	saved.LastSavedAt = s.now().UTC()

	data, err := json.Marshal(saved)
	if err != nil {
		return errors.Wrap(errors.ErrStorageWrite, "encode active walk", err)
	}
	if err := s.kv.Set(ctx, ActiveWalkKey, string(data)); err != nil {
		return errors.Wrap(errors.ErrStorageWrite, "save active walk", err)
	}

	walk.LastSavedAt = saved.LastSavedAt
	return nil
}

// GetActiveWalk returns the walk in the active slot, or nil when the slot is
// empty or unreadable. Recovery is optional, so a corrupt slot is logged and
// treated as absent.
func (s *Store) GetActiveWalk(ctx context.Context) *models.LocalWalk {
	raw, ok, err := s.kv.Get(ctx, ActiveWalkKey)
	if err != nil {
		s.log.Warn("active walk unreadable",
			zap.String("code", string(errors.ErrStorageRead)), zap.Error(err))
		return nil
	}
	if !ok || raw == "" {
		return nil
	}

	var walk models.LocalWalk
	if err := json.Unmarshal([]byte(raw), &walk); err != nil {
		s.log.Warn("active walk corrupt, ignoring",
			zap.String("code", string(errors.ErrStorageRead)), zap.Error(err))
		return nil
	}
	if walk.LocalID == "" {
		s.log.Warn("active walk has no local id, ignoring",
			zap.String("code", string(errors.ErrStorageRead)))
		return nil
	}
	walk.Normalize()
	return &walk
}

// ClearActiveWalk deletes the active slot. Clearing an empty slot is a no-op.
func (s *Store) ClearActiveWalk(ctx context.Context) error {
	if err := s.kv.Remove(ctx, ActiveWalkKey); err != nil {
		return errors.Wrap(errors.ErrStorageWrite, "clear active walk", err)
	}
	return nil
}
