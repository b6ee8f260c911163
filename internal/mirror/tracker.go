package mirror

import (
	"context"
	"fmt"

	"mirror-go/internal/model"
)

// DiscardChanges restores a dirty resource to its last synced state.
// A resource created locally and never pushed is deleted instead, in which
// case the returned resource is nil.
func (s *Service) DiscardChanges(ctx context.Context, id int64) (*model.Resource, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	r, err := s.database.DiscardChanges(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("discarding changes of %d: %w", id, err)
	}
	s.logger.Info("local changes discarded", "id", id, "deleted", r == nil)
	return r, nil
}

// GetSnapshot returns the baseline of a dirty resource, or nil when clean.
func (s *Service) GetSnapshot(ctx context.Context, id int64) (*model.Snapshot, error) {
	snap, err := s.database.GetSnapshot(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting snapshot of %d: %w", id, err)
	}
	return snap, nil
}

// FieldDiff is one changed field of a dirty resource.
type FieldDiff struct {
	Path     string
	Baseline any
	Current  any
}

// Diff lists the fields whose current value differs from the baseline.
// It returns an empty slice for clean resources.
func (s *Service) Diff(ctx context.Context, id int64) ([]FieldDiff, error) {
	r, err := s.database.GetResource(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting resource %d: %w", id, err)
	}
	snap, err := s.database.GetSnapshot(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting snapshot of %d: %w", id, err)
	}
	if snap == nil {
		return []FieldDiff{}, nil
	}

	cur := r.State()
	paths := cur.Diff(snap.State)
	out := make([]FieldDiff, 0, len(paths))
	for _, p := range paths {
		fp, err := model.ParseFieldPath(p)
		if err != nil {
			return nil, err
		}
		base, _ := snap.State.Field(fp)
		now, _ := cur.Field(fp)
		out = append(out, FieldDiff{Path: p, Baseline: base, Current: now})
	}
	return out, nil
}
