package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"mirror-go/internal/mirror"
	"mirror-go/internal/model"
)

const resourceColumns = `id, local_key, type, title, slug, status, content, excerpt,
	created_at, modified_at, synced_modified_at, local_modified_at, dirty`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResource(row rowScanner) (*model.Resource, error) {
	var (
		r                                         model.Resource
		status                                    string
		created, modified, synced, localModified sql.NullTime
	)
	err := row.Scan(&r.ID, &r.LocalKey, &r.Type, &r.Title, &r.Slug, &status, &r.Content, &r.Excerpt,
		&created, &modified, &synced, &localModified, &r.Dirty)
	if err != nil {
		return nil, err
	}
	r.Status = model.Status(status)
	r.CreatedAt = created.Time
	r.ModifiedAt = modified.Time
	r.SyncedModifiedAt = synced.Time
	r.LocalModifiedAt = localModified.Time
	r.Meta = map[string]any{}
	r.Terms = map[string][]int64{}
	r.PluginData = map[string]map[string]any{}
	return &r, nil
}

// loadResource reads a resource row and everything attached to it.
func loadResource(ctx context.Context, q querier, id int64) (*model.Resource, error) {
	row := q.QueryRowContext(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id = ?`, id)
	r, err := scanResource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("resource %d: %w", id, mirror.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading resource %d: %w", id, err)
	}
	if err := loadAttachments(ctx, q, r); err != nil {
		return nil, err
	}
	return r, nil
}

// queryResources runs a resource query and loads attachments once the
// result set is closed.
func queryResources(ctx context.Context, q querier, query string, args ...any) ([]*model.Resource, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying resources: %w", err)
	}

	var out []*model.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning resource: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating resources: %w", err)
	}
	rows.Close()

	for _, r := range out {
		if err := loadAttachments(ctx, q, r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func loadAttachments(ctx context.Context, q querier, r *model.Resource) error {
	if err := loadMeta(ctx, q, r); err != nil {
		return err
	}
	if err := loadTerms(ctx, q, r); err != nil {
		return err
	}
	return loadPluginData(ctx, q, r)
}

func loadMeta(ctx context.Context, q querier, r *model.Resource) error {
	rows, err := q.QueryContext(ctx, `SELECT key, value FROM meta_entries WHERE resource_id = ?`, r.ID)
	if err != nil {
		return fmt.Errorf("querying meta of %d: %w", r.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return fmt.Errorf("scanning meta of %d: %w", r.ID, err)
		}
		v, err := decodeValue(raw)
		if err != nil {
			return fmt.Errorf("decoding meta %q of %d: %w", key, r.ID, err)
		}
		r.Meta[key] = v
	}
	return rows.Err()
}

func loadTerms(ctx context.Context, q querier, r *model.Resource) error {
	rows, err := q.QueryContext(ctx,
		`SELECT taxonomy, term_id FROM term_assignments WHERE resource_id = ? ORDER BY taxonomy, term_id`, r.ID)
	if err != nil {
		return fmt.Errorf("querying terms of %d: %w", r.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var tax string
		var termID int64
		if err := rows.Scan(&tax, &termID); err != nil {
			return fmt.Errorf("scanning terms of %d: %w", r.ID, err)
		}
		r.Terms[tax] = append(r.Terms[tax], termID)
	}
	return rows.Err()
}

func loadPluginData(ctx context.Context, q querier, r *model.Resource) error {
	entries, err := queryPluginData(ctx, q, r.ID, "")
	if err != nil {
		return err
	}
	for _, e := range entries {
		if r.PluginData[e.Plugin] == nil {
			r.PluginData[e.Plugin] = map[string]any{}
		}
		r.PluginData[e.Plugin][e.Key] = e.Value
	}
	return nil
}

// GetResource returns a resource with its meta, terms and plugin data.
func (s *SQLiteDatabase) GetResource(ctx context.Context, id int64) (*model.Resource, error) {
	return loadResource(ctx, s.db, id)
}

// ListResources returns resources matching filter, most recently modified
// first. Ties are broken by id, highest first.
func (s *SQLiteDatabase) ListResources(ctx context.Context, filter model.ResourceFilter) ([]*model.Resource, error) {
	var (
		where []string
		args  []any
	)
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, filter.Type)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.DirtyOnly {
		where = append(where, "dirty = 1")
	}
	if filter.Search != "" {
		where = append(where, "(title LIKE ? OR slug LIKE ?)")
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern)
	}

	query := `SELECT ` + resourceColumns + ` FROM resources`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY MAX(COALESCE(modified_at, ''), COALESCE(local_modified_at, '')) DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	return queryResources(ctx, s.db, query, args...)
}

// ListDirty returns every dirty resource, optionally scoped to a type, in id order.
func (s *SQLiteDatabase) ListDirty(ctx context.Context, resourceType string) ([]*model.Resource, error) {
	if resourceType == "" {
		return queryResources(ctx, s.db, `SELECT `+resourceColumns+` FROM resources WHERE dirty = 1 ORDER BY id`)
	}
	return queryResources(ctx, s.db,
		`SELECT `+resourceColumns+` FROM resources WHERE dirty = 1 AND type = ? ORDER BY id`, resourceType)
}

// CreateResource inserts a local-only resource under the next free negative
// id. The resource starts dirty with an empty never-synced baseline.
func (s *SQLiteDatabase) CreateResource(ctx context.Context, r *model.Resource) (*model.Resource, error) {
	return withTx(ctx, s.db, func(tx *sql.Tx) (*model.Resource, error) {
		var minID int64
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MIN(id), 0) FROM resources WHERE id < 0`).Scan(&minID); err != nil {
			return nil, fmt.Errorf("allocating local id: %w", err)
		}

		c := r.Clone()
		c.ID = minID - 1
		if c.LocalKey == "" {
			c.LocalKey = s.idgen.New()
		}
		now := s.clock.Now()
		c.CreatedAt, c.ModifiedAt, c.SyncedModifiedAt = time.Time{}, time.Time{}, time.Time{}
		c.LocalModifiedAt = now
		c.Dirty = true

		if err := insertResourceRow(ctx, tx, c); err != nil {
			return nil, err
		}
		if err := replaceMeta(ctx, tx, c.ID, c.Meta); err != nil {
			return nil, err
		}
		for tax, ids := range c.Terms {
			if err := replaceTaxonomy(ctx, tx, c.ID, tax, ids); err != nil {
				return nil, err
			}
		}
		for plugin, entries := range c.PluginData {
			for key, v := range entries {
				if err := upsertPluginEntry(ctx, tx, c.ID, plugin, key, v, true); err != nil {
					return nil, err
				}
			}
		}
		if err := insertSnapshot(ctx, tx, c.ID, model.SyncState{}, true, now); err != nil {
			return nil, err
		}

		state := c.State()
		for _, path := range state.Diff(model.SyncState{}) {
			fp, err := model.ParseFieldPath(path)
			if err != nil {
				return nil, err
			}
			newVal, _ := state.Field(fp)
			if err := appendChange(ctx, tx, c.LocalKey, c.ID, path, nil, false, newVal, true, now); err != nil {
				return nil, err
			}
		}

		return loadResource(ctx, tx, c.ID)
	})
}

// DeleteResource removes a resource. Meta, assignments, plugin data and the
// snapshot cascade; the change log is kept.
func (s *SQLiteDatabase) DeleteResource(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM resources WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting resource %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting resource %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("resource %d: %w", id, mirror.ErrNotFound)
	}
	return nil
}

func insertResourceRow(ctx context.Context, q querier, r *model.Resource) error {
	_, err := q.ExecContext(ctx, `INSERT INTO resources (`+resourceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.LocalKey, r.Type, r.Title, r.Slug, string(r.Status), r.Content, r.Excerpt,
		nullTime(r.CreatedAt), nullTime(r.ModifiedAt), nullTime(r.SyncedModifiedAt), nullTime(r.LocalModifiedAt), r.Dirty)
	if err != nil {
		return fmt.Errorf("inserting resource %d: %w", r.ID, err)
	}
	return nil
}

// updateCore writes the core synchronizable fields.
func updateCore(ctx context.Context, q querier, r *model.Resource) error {
	_, err := q.ExecContext(ctx,
		`UPDATE resources SET title = ?, slug = ?, status = ?, content = ?, excerpt = ? WHERE id = ?`,
		r.Title, r.Slug, string(r.Status), r.Content, r.Excerpt, r.ID)
	if err != nil {
		return fmt.Errorf("updating resource %d: %w", r.ID, err)
	}
	return nil
}

func setDirty(ctx context.Context, q querier, id int64, dirty bool) error {
	if _, err := q.ExecContext(ctx, `UPDATE resources SET dirty = ? WHERE id = ?`, dirty, id); err != nil {
		return fmt.Errorf("setting dirty flag of %d: %w", id, err)
	}
	return nil
}

// replaceMeta replaces the full meta set of a resource.
func replaceMeta(ctx context.Context, q querier, id int64, meta map[string]any) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM meta_entries WHERE resource_id = ?`, id); err != nil {
		return fmt.Errorf("clearing meta of %d: %w", id, err)
	}
	for key, v := range meta {
		if err := setMeta(ctx, q, id, key, v); err != nil {
			return err
		}
	}
	return nil
}

func setMeta(ctx context.Context, q querier, id int64, key string, v any) error {
	raw, err := encodeValue(v)
	if err != nil {
		return fmt.Errorf("encoding meta %q: %w", key, err)
	}
	_, err = q.ExecContext(ctx, `INSERT INTO meta_entries (resource_id, key, value) VALUES (?, ?, ?)
		ON CONFLICT (resource_id, key) DO UPDATE SET value = excluded.value`, id, key, raw)
	if err != nil {
		return fmt.Errorf("writing meta %q of %d: %w", key, id, err)
	}
	return nil
}

func deleteMeta(ctx context.Context, q querier, id int64, key string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM meta_entries WHERE resource_id = ? AND key = ?`, id, key); err != nil {
		return fmt.Errorf("deleting meta %q of %d: %w", key, id, err)
	}
	return nil
}

// replaceTaxonomy replaces the assignments of one taxonomy; other
// taxonomies are untouched.
func replaceTaxonomy(ctx context.Context, q querier, id int64, taxonomy string, termIDs []int64) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM term_assignments WHERE resource_id = ? AND taxonomy = ?`, id, taxonomy); err != nil {
		return fmt.Errorf("clearing %s terms of %d: %w", taxonomy, id, err)
	}
	for _, termID := range model.NormalizeTermIDs(termIDs) {
		_, err := q.ExecContext(ctx,
			`INSERT INTO term_assignments (resource_id, term_id, taxonomy) VALUES (?, ?, ?)`, id, termID, taxonomy)
		if err != nil {
			return fmt.Errorf("assigning term %d to %d: %w", termID, id, err)
		}
	}
	return nil
}

func replaceAllTerms(ctx context.Context, q querier, id int64, terms map[string][]int64) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM term_assignments WHERE resource_id = ?`, id); err != nil {
		return fmt.Errorf("clearing terms of %d: %w", id, err)
	}
	for tax, ids := range terms {
		if err := replaceTaxonomy(ctx, q, id, tax, ids); err != nil {
			return err
		}
	}
	return nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func encodeValue(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeValue(raw string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, err
	}
	return v, nil
}
