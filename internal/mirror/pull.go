package mirror

import (
	"context"
	"errors"
	"fmt"

	"mirror-go/internal/hooks"
	"mirror-go/internal/model"
)

// SyncOptions scopes a pull.
type SyncOptions struct {
	// Type limits the pull to one resource type. Empty pulls every configured type.
	Type string

	// OverwriteDirty lets remote state replace pending local edits.
	OverwriteDirty bool
}

// SyncAll pulls remote resources into the mirror.
//
// Dirty resources are not overwritten unless OverwriteDirty is set; only
// their remote-reported timestamps are refreshed so drift stays visible.
// Per-resource and per-page failures are collected in the report. The
// returned error is reserved for failures that prevent the pull from
// starting at all.
func (s *Service) SyncAll(ctx context.Context, opts SyncOptions) (*SyncReport, error) {
	types := s.opts.ResourceTypes
	if opts.Type != "" {
		types = []string{opts.Type}
	}
	if len(types) == 0 {
		return nil, fmt.Errorf("no resource types configured")
	}

	s.logger.Info("pull started", "types", types, "overwrite_dirty", opts.OverwriteDirty)
	report := &SyncReport{}

	if opts.Type == "" {
		s.pullTerms(ctx, report)
	}

pages:
	for _, typ := range types {
		for page := 1; ; page++ {
			if ctx.Err() != nil {
				report.Cancelled = true
				break pages
			}

			pg, err := callRemote(ctx, s.opts.RemoteTimeout, func(c context.Context) (*model.RemotePage, error) {
				return s.remote.List(c, typ, page, s.opts.PageSize)
			})
			if err != nil {
				s.logger.Warn("page fetch failed", "type", typ, "page", page, "error", err)
				report.Errors = append(report.Errors, &SyncError{Type: typ, Page: page, Err: err})
				break
			}
			if len(pg.Items) == 0 {
				break
			}

			for _, rr := range pg.Items {
				if ctx.Err() != nil {
					report.Cancelled = true
					break pages
				}
				report.Fetched++
				s.syncOne(ctx, typ, rr, opts, report)
			}

			if pg.TotalPages > 0 && page >= pg.TotalPages {
				break
			}
		}
	}

	summary := model.SyncSummary{
		Type:         opts.Type,
		Fetched:      report.Fetched,
		Upserted:     report.Upserted,
		SkippedDirty: report.SkippedDirty,
		Errors:       len(report.Errors),
	}
	if _, err := hooks.Run(context.WithoutCancel(ctx), s.pipeline, hooks.SyncComplete, summary); err != nil {
		report.Warnings = append(report.Warnings, &Warning{Err: err})
	}

	s.logger.Info("pull finished", "status", report.Status(), "fetched", report.Fetched,
		"upserted", report.Upserted, "skipped_dirty", report.SkippedDirty, "errors", len(report.Errors))
	return report, nil
}

// syncOne reconciles a single fetched resource under its lock. Work on a
// resource that has started is not interrupted by cancellation.
func (s *Service) syncOne(ctx context.Context, typ string, rr model.RemoteResource, opts SyncOptions, report *SyncReport) {
	ctx = context.WithoutCancel(ctx)
	if rr.Type == "" {
		rr.Type = typ
	}

	unlock := s.locks.Lock(rr.ID)
	defer unlock()

	payload, err := hooks.Run(ctx, s.pipeline, hooks.ResourceBeforeSync, model.SyncPayload{Resource: rr})
	if err != nil {
		var tErr *TransformError
		if errors.As(err, &tErr) && !tErr.Hard {
			report.Warnings = append(report.Warnings, &Warning{ResourceID: rr.ID, Err: err})
		} else {
			report.Errors = append(report.Errors, &SyncError{Type: typ, ResourceID: rr.ID, Err: err})
			return
		}
	}

	local, err := s.database.GetResource(ctx, rr.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		report.Errors = append(report.Errors, &SyncError{Type: typ, ResourceID: rr.ID, Err: fmt.Errorf("loading local copy: %w", err)})
		return
	}

	if local != nil && local.Dirty && !opts.OverwriteDirty {
		// Only remote-reported timestamps are refreshed; the conflict
		// baseline stays where the last sync left it.
		if err := s.database.RefreshRemoteTimestamps(ctx, rr.ID, payload.Resource.CreatedAt, payload.Resource.ModifiedAt); err != nil {
			report.Errors = append(report.Errors, &SyncError{Type: typ, ResourceID: rr.ID, Err: fmt.Errorf("refreshing timestamps: %w", err)})
			return
		}
		report.SkippedDirty++
		s.logger.Debug("skipped dirty resource", "id", rr.ID, "remote_modified", payload.Resource.ModifiedAt)
		return
	}

	res := model.FromRemote(payload.Resource, payload.PluginData)
	if local != nil {
		res.LocalKey = local.LocalKey
	}
	if _, err := s.database.RecordSynced(ctx, res); err != nil {
		report.Errors = append(report.Errors, &SyncError{Type: typ, ResourceID: rr.ID, Err: fmt.Errorf("recording synced state: %w", err)})
		return
	}
	report.Upserted++
}

// pullTerms refreshes term definitions of every configured taxonomy.
func (s *Service) pullTerms(ctx context.Context, report *SyncReport) {
	for _, tax := range s.opts.Taxonomies {
		for page := 1; ; page++ {
			if ctx.Err() != nil {
				report.Cancelled = true
				return
			}

			pg, err := callRemote(ctx, s.opts.RemoteTimeout, func(c context.Context) (*model.TermPage, error) {
				return s.remote.ListTerms(c, tax, page, s.opts.PageSize)
			})
			if err != nil {
				s.logger.Warn("term page fetch failed", "taxonomy", tax, "page", page, "error", err)
				report.Errors = append(report.Errors, &SyncError{Type: "terms/" + tax, Page: page, Err: err})
				break
			}
			if len(pg.Items) == 0 {
				break
			}

			for _, rt := range pg.Items {
				term := &model.Term{ID: rt.ID, Taxonomy: tax, Name: rt.Name, Slug: rt.Slug, ParentID: rt.ParentID}
				if err := s.database.UpsertTerm(context.WithoutCancel(ctx), term); err != nil {
					report.Errors = append(report.Errors, &SyncError{Type: "terms/" + tax, ResourceID: rt.ID, Err: err})
					continue
				}
				report.TermsUpserted++
			}

			if pg.TotalPages > 0 && page >= pg.TotalPages {
				break
			}
		}
	}
}
