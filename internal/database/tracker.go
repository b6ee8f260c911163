package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mirror-go/internal/mirror"
	"mirror-go/internal/model"
)

// Dirty tracking. A snapshot row exists exactly when the resource is dirty,
// and a resource is dirty exactly when its state differs from the snapshot.
// Snapshots of never-synced resources (is_new) stay until push or discard.

// ApplyChanges applies field mutations in one transaction. Each change that
// alters a value is written to the change log. The pre-mutation state
// becomes the snapshot if none exists; when the resulting state equals the
// baseline again the snapshot is dropped and the resource is clean.
func (s *SQLiteDatabase) ApplyChanges(ctx context.Context, id int64, changes []model.Change) (*model.Resource, error) {
	return withTx(ctx, s.db, func(tx *sql.Tx) (*model.Resource, error) {
		r, err := loadResource(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		snap, err := getSnapshot(ctx, tx, id)
		if err != nil {
			return nil, err
		}

		before := r.State()
		now := s.clock.Now()
		changed := false

		for _, c := range changes {
			prev := r.State()
			oldVal, hadOld := prev.Field(c.Path)

			if err := applyChange(r, c); err != nil {
				return nil, err
			}

			next := r.State()
			newVal, hasNew := next.Field(c.Path)
			if hadOld == hasNew && model.JSONEqual(oldVal, newVal) {
				continue
			}
			changed = true

			if err := writeField(ctx, tx, r, c); err != nil {
				return nil, err
			}
			if err := appendChange(ctx, tx, r.LocalKey, r.ID, c.Path.String(), oldVal, hadOld, newVal, hasNew, now); err != nil {
				return nil, err
			}
		}

		if !changed {
			return r, nil
		}

		if err := s.settleDirty(ctx, tx, r, before, snap, now); err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE resources SET local_modified_at = ? WHERE id = ?`, now, id); err != nil {
			return nil, fmt.Errorf("touching resource %d: %w", id, err)
		}
		return loadResource(ctx, tx, id)
	})
}

// settleDirty reconciles the dirty flag and snapshot with r's current state.
func (s *SQLiteDatabase) settleDirty(ctx context.Context, q querier, r *model.Resource, before model.SyncState, snap *model.Snapshot, now time.Time) error {
	baseline, isNew := before, false
	if snap != nil {
		baseline, isNew = snap.State, snap.IsNew
	}

	if !isNew && r.State().Equal(baseline) {
		if err := deleteSnapshot(ctx, q, r.ID); err != nil {
			return err
		}
		if err := clearPending(ctx, q, r.ID); err != nil {
			return err
		}
		return setDirty(ctx, q, r.ID, false)
	}

	if snap == nil {
		if err := insertSnapshot(ctx, q, r.ID, before, false, now); err != nil {
			return err
		}
	}
	return setDirty(ctx, q, r.ID, true)
}

// MarkChanged captures the current state as baseline if no snapshot exists
// and flags the resource dirty.
func (s *SQLiteDatabase) MarkChanged(ctx context.Context, id int64, fieldPath string) error {
	if _, err := model.ParseFieldPath(fieldPath); err != nil {
		return err
	}
	_, err := withTx(ctx, s.db, func(tx *sql.Tx) (struct{}, error) {
		r, err := loadResource(ctx, tx, id)
		if err != nil {
			return struct{}{}, err
		}
		snap, err := getSnapshot(ctx, tx, id)
		if err != nil {
			return struct{}{}, err
		}
		now := s.clock.Now()
		if snap == nil {
			if err := insertSnapshot(ctx, tx, id, r.State(), false, now); err != nil {
				return struct{}{}, err
			}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE resources SET dirty = 1, local_modified_at = ? WHERE id = ?`, now, id); err != nil {
			return struct{}{}, fmt.Errorf("marking %d dirty: %w", id, err)
		}
		return struct{}{}, nil
	})
	return err
}

// RecordSynced stores r as the new clean baseline.
//
// Core fields and meta are replaced in full. Taxonomies present in r.Terms
// replace the stored assignments of that taxonomy; absent taxonomies are
// left alone. A plugin namespace present in r.PluginData replaces everything
// that plugin stored, so an empty namespace clears it. A local-only
// row whose local key matches r.LocalKey is re-keyed to r.ID first.
func (s *SQLiteDatabase) RecordSynced(ctx context.Context, r *model.Resource) (*model.Resource, error) {
	if r.ID <= 0 {
		return nil, fmt.Errorf("synced resource needs a remote id, got %d", r.ID)
	}
	return withTx(ctx, s.db, func(tx *sql.Tx) (*model.Resource, error) {
		existingID, existingKey, err := findExisting(ctx, tx, r)
		if err != nil {
			return nil, err
		}

		switch {
		case existingID == 0:
			row := r.Clone()
			if row.LocalKey == "" {
				row.LocalKey = s.idgen.New()
			}
			row.Dirty = false
			if err := insertResourceRow(ctx, tx, row); err != nil {
				return nil, err
			}
		case existingID != r.ID:
			if existingID > 0 {
				return nil, fmt.Errorf("local key %s belongs to resource %d, not %d", existingKey, existingID, r.ID)
			}
			if _, err := tx.ExecContext(ctx, `UPDATE resources SET id = ? WHERE id = ?`, r.ID, existingID); err != nil {
				return nil, fmt.Errorf("re-keying resource %d to %d: %w", existingID, r.ID, err)
			}
		}

		_, err = tx.ExecContext(ctx, `UPDATE resources SET type = ?, title = ?, slug = ?, status = ?, content = ?, excerpt = ?,
			created_at = ?, modified_at = ?, synced_modified_at = ?, dirty = 0 WHERE id = ?`,
			r.Type, r.Title, r.Slug, string(r.Status), r.Content, r.Excerpt,
			nullTime(r.CreatedAt), nullTime(r.ModifiedAt), nullTime(r.ModifiedAt), r.ID)
		if err != nil {
			return nil, fmt.Errorf("writing synced resource %d: %w", r.ID, err)
		}

		if err := replaceMeta(ctx, tx, r.ID, r.Meta); err != nil {
			return nil, err
		}
		for tax, ids := range r.Terms {
			if err := replaceTaxonomy(ctx, tx, r.ID, tax, ids); err != nil {
				return nil, err
			}
		}
		for plugin, entries := range r.PluginData {
			if err := replacePluginNamespace(ctx, tx, r.ID, plugin, entries); err != nil {
				return nil, err
			}
		}

		if err := deleteSnapshot(ctx, tx, r.ID); err != nil {
			return nil, err
		}
		if err := clearPending(ctx, tx, r.ID); err != nil {
			return nil, err
		}
		return loadResource(ctx, tx, r.ID)
	})
}

// findExisting locates the row a synced resource maps to: by local key when
// given, otherwise by id. Returns id 0 when there is none.
func findExisting(ctx context.Context, q querier, r *model.Resource) (int64, string, error) {
	var (
		id  int64
		key string
		err error
	)
	if r.LocalKey != "" {
		err = q.QueryRowContext(ctx, `SELECT id, local_key FROM resources WHERE local_key = ?`, r.LocalKey).Scan(&id, &key)
		if err == nil {
			return id, key, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, "", fmt.Errorf("looking up local key %s: %w", r.LocalKey, err)
		}
	}
	err = q.QueryRowContext(ctx, `SELECT id, local_key FROM resources WHERE id = ?`, r.ID).Scan(&id, &key)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", nil
	}
	if err != nil {
		return 0, "", fmt.Errorf("looking up resource %d: %w", r.ID, err)
	}
	return id, key, nil
}

// RefreshRemoteTimestamps updates remote-reported timestamps only. The
// conflict baseline (synced_modified_at) is left unchanged.
func (s *SQLiteDatabase) RefreshRemoteTimestamps(ctx context.Context, id int64, createdAt, modifiedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE resources SET created_at = ?, modified_at = ? WHERE id = ?`,
		nullTime(createdAt), nullTime(modifiedAt), id)
	if err != nil {
		return fmt.Errorf("refreshing timestamps of %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("resource %d: %w", id, mirror.ErrNotFound)
	}
	return nil
}

// DiscardChanges restores a dirty resource from its snapshot. A resource
// that was never synced is deleted and nil is returned.
func (s *SQLiteDatabase) DiscardChanges(ctx context.Context, id int64) (*model.Resource, error) {
	return withTx(ctx, s.db, func(tx *sql.Tx) (*model.Resource, error) {
		r, err := loadResource(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		snap, err := getSnapshot(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if snap == nil {
			return nil, fmt.Errorf("resource %d: %w", id, mirror.ErrNoLocalChanges)
		}

		if snap.IsNew {
			if _, err := tx.ExecContext(ctx, `DELETE FROM resources WHERE id = ?`, id); err != nil {
				return nil, fmt.Errorf("deleting unsynced resource %d: %w", id, err)
			}
			return nil, nil
		}

		now := s.clock.Now()
		current := r.State()
		for _, path := range current.Diff(snap.State) {
			fp, err := model.ParseFieldPath(path)
			if err != nil {
				return nil, err
			}
			oldVal, hadOld := current.Field(fp)
			newVal, hasNew := snap.State.Field(fp)
			if err := appendChange(ctx, tx, r.LocalKey, id, path, oldVal, hadOld, newVal, hasNew, now); err != nil {
				return nil, err
			}
		}

		r.Apply(snap.State)
		if err := updateCore(ctx, tx, r); err != nil {
			return nil, err
		}
		if err := replaceMeta(ctx, tx, id, r.Meta); err != nil {
			return nil, err
		}
		if err := replaceAllTerms(ctx, tx, id, r.Terms); err != nil {
			return nil, err
		}
		if err := replaceAllPluginData(ctx, tx, id, r.PluginData); err != nil {
			return nil, err
		}
		if err := deleteSnapshot(ctx, tx, id); err != nil {
			return nil, err
		}
		if err := setDirty(ctx, tx, id, false); err != nil {
			return nil, err
		}
		return loadResource(ctx, tx, id)
	})
}

// GetSnapshot returns the baseline of a dirty resource, or nil when clean.
func (s *SQLiteDatabase) GetSnapshot(ctx context.Context, id int64) (*model.Snapshot, error) {
	return getSnapshot(ctx, s.db, id)
}

func getSnapshot(ctx context.Context, q querier, id int64) (*model.Snapshot, error) {
	var (
		raw  string
		snap = model.Snapshot{ResourceID: id}
	)
	err := q.QueryRowContext(ctx,
		`SELECT state, is_new, captured_at FROM resource_snapshots WHERE resource_id = ?`, id).
		Scan(&raw, &snap.IsNew, &snap.CapturedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot of %d: %w", id, err)
	}
	if err := json.Unmarshal([]byte(raw), &snap.State); err != nil {
		return nil, fmt.Errorf("decoding snapshot of %d: %w", id, err)
	}
	return &snap, nil
}

func insertSnapshot(ctx context.Context, q querier, id int64, state model.SyncState, isNew bool, at time.Time) error {
	raw, err := state.Canonical()
	if err != nil {
		return fmt.Errorf("encoding snapshot of %d: %w", id, err)
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO resource_snapshots (resource_id, state, is_new, captured_at) VALUES (?, ?, ?, ?)`,
		id, string(raw), isNew, at.UTC())
	if err != nil {
		return fmt.Errorf("writing snapshot of %d: %w", id, err)
	}
	return nil
}

func deleteSnapshot(ctx context.Context, q querier, id int64) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM resource_snapshots WHERE resource_id = ?`, id); err != nil {
		return fmt.Errorf("deleting snapshot of %d: %w", id, err)
	}
	return nil
}

// applyChange mutates r in memory.
func applyChange(r *model.Resource, c model.Change) error {
	switch c.Path.Kind {
	case model.FieldTitle, model.FieldSlug, model.FieldContent, model.FieldExcerpt, model.FieldStatus:
		str, err := stringValue(c)
		if err != nil {
			return err
		}
		switch c.Path.Kind {
		case model.FieldTitle:
			r.Title = str
		case model.FieldSlug:
			r.Slug = str
		case model.FieldContent:
			r.Content = str
		case model.FieldExcerpt:
			r.Excerpt = str
		case model.FieldStatus:
			st, err := model.ParseStatus(str)
			if err != nil {
				return err
			}
			r.Status = st
		}
	case model.FieldMeta:
		if c.Delete {
			delete(r.Meta, c.Path.Key)
		} else {
			r.Meta[c.Path.Key] = c.Value
		}
	case model.FieldTerms:
		ids, ok := c.Value.([]int64)
		if !ok && c.Value != nil {
			return fmt.Errorf("field %s requires []int64, got %T", c.Path, c.Value)
		}
		if c.Delete || len(ids) == 0 {
			delete(r.Terms, c.Path.Key)
		} else {
			r.Terms[c.Path.Key] = model.NormalizeTermIDs(ids)
		}
	case model.FieldPlugin:
		if c.Delete {
			delete(r.PluginData[c.Path.Plugin], c.Path.Key)
		} else {
			if r.PluginData[c.Path.Plugin] == nil {
				r.PluginData[c.Path.Plugin] = map[string]any{}
			}
			r.PluginData[c.Path.Plugin][c.Path.Key] = c.Value
		}
	default:
		return fmt.Errorf("unknown field kind %q", c.Path.Kind)
	}
	return nil
}

func stringValue(c model.Change) (string, error) {
	if c.Delete {
		return "", fmt.Errorf("field %s cannot be deleted", c.Path)
	}
	switch v := c.Value.(type) {
	case string:
		return v, nil
	case model.Status:
		return string(v), nil
	default:
		return "", fmt.Errorf("field %s requires a string, got %T", c.Path, c.Value)
	}
}

// writeField persists the field a change touched.
func writeField(ctx context.Context, q querier, r *model.Resource, c model.Change) error {
	switch c.Path.Kind {
	case model.FieldMeta:
		if v, ok := r.Meta[c.Path.Key]; ok {
			return setMeta(ctx, q, r.ID, c.Path.Key, v)
		}
		return deleteMeta(ctx, q, r.ID, c.Path.Key)
	case model.FieldTerms:
		return replaceTaxonomy(ctx, q, r.ID, c.Path.Key, r.Terms[c.Path.Key])
	case model.FieldPlugin:
		if v, ok := r.PluginData[c.Path.Plugin][c.Path.Key]; ok {
			return upsertPluginEntry(ctx, q, r.ID, c.Path.Plugin, c.Path.Key, v, true)
		}
		return deletePluginEntry(ctx, q, r.ID, c.Path.Plugin, c.Path.Key)
	default:
		return updateCore(ctx, q, r)
	}
}
