package mirror

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"mirror-go/internal/hooks"
	"mirror-go/internal/model"
)

// PushOptions scopes a push.
type PushOptions struct {
	// Type limits the push to one resource type. Empty pushes every dirty resource.
	Type string

	// SkipConflictCheck sends local state without comparing remote timestamps.
	SkipConflictCheck bool
}

// PushAll sends every dirty resource to the remote server.
//
// Resources are pushed with bounded parallelism. Conflicts and remote
// failures are per-resource outcomes in the report and never stop the
// batch. When ctx is cancelled, resources not yet started are left for the
// next push; a resource already in flight is allowed to finish.
func (s *Service) PushAll(ctx context.Context, opts PushOptions) (*PushReport, error) {
	dirty, err := s.database.ListDirty(ctx, opts.Type)
	if err != nil {
		return nil, fmt.Errorf("listing dirty resources: %w", err)
	}

	report := &PushReport{}
	if len(dirty) == 0 {
		s.logger.Info("nothing to push", "type", opts.Type)
		return report, nil
	}
	s.logger.Info("push started", "resources", len(dirty), "skip_conflict_check", opts.SkipConflictCheck)

	results := make([]*PushResult, len(dirty))
	cancelled := make([]bool, len(dirty))

	var g errgroup.Group
	g.SetLimit(s.opts.PushConcurrency)

	for i, r := range dirty {
		if ctx.Err() != nil {
			cancelled[i] = true
			continue
		}
		id := r.ID
		g.Go(func() error {
			if ctx.Err() != nil {
				cancelled[i] = true
				return nil
			}
			results[i] = s.pushOne(ctx, id, opts)
			return nil
		})
	}
	_ = g.Wait()

	for i, res := range results {
		if cancelled[i] {
			report.Cancelled = true
		}
		if res == nil {
			continue
		}
		if res.Outcome == OutcomeFailure {
			s.logger.Warn("push failed", "id", res.ResourceID, "error", res.Err)
		}
		report.add(res)
	}

	s.logger.Info("push finished", "status", report.Status(), "succeeded", report.Succeeded(),
		"conflicts", len(report.Conflicts), "failed", len(report.Failures), "cancelled", report.Cancelled)
	return report, nil
}

// pushOne pushes a single resource under its lock. It returns nil when the
// resource no longer needs pushing.
func (s *Service) pushOne(ctx context.Context, id int64, opts PushOptions) *PushResult {
	ctx = context.WithoutCancel(ctx)

	unlock := s.locks.Lock(id)
	defer unlock()

	local, err := s.database.GetResource(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	result := &PushResult{ResourceID: id, RemoteID: id}
	if err != nil {
		return result.fail(fmt.Errorf("loading resource: %w", err))
	}
	if !local.Dirty {
		return nil
	}
	result.Type = local.Type

	taxonomies, err := s.clearableTaxonomies(ctx, id)
	if err != nil {
		return result.fail(err)
	}

	payload, err := hooks.Run(ctx, s.pipeline, hooks.ResourceBeforePush, model.PushPayload{
		Local:    local.Clone(),
		Outbound: model.Outbound(local, taxonomies...),
	})
	if err != nil {
		var tErr *TransformError
		if !errors.As(err, &tErr) || tErr.Hard {
			return result.fail(err)
		}
		result.Warnings = append(result.Warnings, err)
	}

	if !local.IsLocalOnly() && !opts.SkipConflictCheck {
		current, err := callRemote(ctx, s.opts.RemoteTimeout, func(c context.Context) (*model.RemoteResource, error) {
			return s.remote.Get(c, local.Type, id)
		})
		if err != nil {
			return result.fail(fmt.Errorf("checking remote state: %w", err))
		}
		if current.ModifiedAt.After(local.SyncedModifiedAt) {
			s.logger.Warn("push conflict", "id", id, "remote_modified", current.ModifiedAt, "baseline", local.SyncedModifiedAt)
			result.Outcome = OutcomeConflict
			result.Err = &ConflictError{
				ResourceID:            id,
				RemoteModified:        current.ModifiedAt,
				LocalBaselineModified: local.SyncedModifiedAt,
			}
			return result
		}
	}

	returned, err := callRemote(ctx, s.opts.RemoteTimeout, func(c context.Context) (*model.RemoteResource, error) {
		if local.IsLocalOnly() {
			return s.remote.Create(c, local.Type, payload.Outbound)
		}
		return s.remote.Update(c, local.Type, id, payload.Outbound)
	})
	if err != nil {
		return result.fail(fmt.Errorf("writing remote: %w", err))
	}
	if returned.Type == "" {
		returned.Type = local.Type
	}
	if returned.ID == 0 && !local.IsLocalOnly() {
		returned.ID = id
	}

	synced, err := hooks.Run(ctx, s.pipeline, hooks.ResourceBeforeSync, model.SyncPayload{Resource: *returned})
	if err != nil {
		// The remote write already happened, so the returned state is
		// recorded either way; a hard failure falls back to it untransformed.
		var tErr *TransformError
		if !errors.As(err, &tErr) || tErr.Hard {
			synced = model.SyncPayload{Resource: *returned}
		}
		result.Warnings = append(result.Warnings, err)
	}

	res := model.FromRemote(synced.Resource, synced.PluginData)
	res.LocalKey = local.LocalKey
	stored, err := s.database.RecordSynced(ctx, res)
	if err != nil {
		return result.fail(fmt.Errorf("recording pushed state: %w", err))
	}

	result.RemoteID = stored.ID
	result.Outcome = OutcomeSuccess
	s.logger.Info("resource pushed", "id", id, "remote_id", stored.ID, "type", local.Type)
	return result
}

// clearableTaxonomies lists the taxonomies an outbound payload must carry
// even when empty: every configured one plus any the baseline had.
func (s *Service) clearableTaxonomies(ctx context.Context, id int64) ([]string, error) {
	out := append([]string{}, s.opts.Taxonomies...)
	snap, err := s.database.GetSnapshot(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading baseline: %w", err)
	}
	if snap != nil {
		for tax := range snap.State.Terms {
			out = append(out, tax)
		}
	}
	return out, nil
}

func (r *PushResult) fail(err error) *PushResult {
	r.Outcome = OutcomeFailure
	r.Err = err
	return r
}
