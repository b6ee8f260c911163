package database

import (
	"context"
	"fmt"

	"mirror-go/internal/model"
)

// upsertPluginEntry writes one plugin value. pending marks a local write
// not yet pushed.
func upsertPluginEntry(ctx context.Context, q querier, id int64, plugin, key string, v any, pending bool) error {
	raw, err := encodeValue(v)
	if err != nil {
		return fmt.Errorf("encoding plugin data %s.%s: %w", plugin, key, err)
	}
	_, err = q.ExecContext(ctx, `INSERT INTO plugin_data (resource_id, plugin, key, value, pending_push)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (resource_id, plugin, key) DO UPDATE SET value = excluded.value, pending_push = excluded.pending_push`,
		id, plugin, key, raw, pending)
	if err != nil {
		return fmt.Errorf("writing plugin data %s.%s of %d: %w", plugin, key, id, err)
	}
	return nil
}

func deletePluginEntry(ctx context.Context, q querier, id int64, plugin, key string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM plugin_data WHERE resource_id = ? AND plugin = ? AND key = ?`, id, plugin, key)
	if err != nil {
		return fmt.Errorf("deleting plugin data %s.%s of %d: %w", plugin, key, id, err)
	}
	return nil
}

// replacePluginNamespace replaces every entry a plugin stored on a resource.
func replacePluginNamespace(ctx context.Context, q querier, id int64, plugin string, entries map[string]any) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM plugin_data WHERE resource_id = ? AND plugin = ?`, id, plugin); err != nil {
		return fmt.Errorf("clearing plugin data %s of %d: %w", plugin, id, err)
	}
	for key, v := range entries {
		if err := upsertPluginEntry(ctx, q, id, plugin, key, v, false); err != nil {
			return err
		}
	}
	return nil
}

// replaceAllPluginData replaces every plugin entry of a resource. The
// restored entries are not pending.
func replaceAllPluginData(ctx context.Context, q querier, id int64, data map[string]map[string]any) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM plugin_data WHERE resource_id = ?`, id); err != nil {
		return fmt.Errorf("clearing plugin data of %d: %w", id, err)
	}
	for plugin, entries := range data {
		for key, v := range entries {
			if err := upsertPluginEntry(ctx, q, id, plugin, key, v, false); err != nil {
				return err
			}
		}
	}
	return nil
}

func clearPending(ctx context.Context, q querier, id int64) error {
	if _, err := q.ExecContext(ctx, `UPDATE plugin_data SET pending_push = 0 WHERE resource_id = ?`, id); err != nil {
		return fmt.Errorf("clearing pending plugin data of %d: %w", id, err)
	}
	return nil
}

// queryPluginData lists the plugin entries of a resource ordered by plugin
// and key. An empty plugin returns every plugin's entries.
func queryPluginData(ctx context.Context, q querier, id int64, plugin string) ([]*model.PluginDataEntry, error) {
	query := `SELECT plugin, key, value, pending_push FROM plugin_data WHERE resource_id = ?`
	args := []any{id}
	if plugin != "" {
		query += ` AND plugin = ?`
		args = append(args, plugin)
	}
	query += ` ORDER BY plugin, key`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying plugin data of %d: %w", id, err)
	}
	defer rows.Close()

	var out []*model.PluginDataEntry
	for rows.Next() {
		e := &model.PluginDataEntry{ResourceID: id}
		var raw string
		if err := rows.Scan(&e.Plugin, &e.Key, &raw, &e.PendingPush); err != nil {
			return nil, fmt.Errorf("scanning plugin data of %d: %w", id, err)
		}
		if e.Value, err = decodeValue(raw); err != nil {
			return nil, fmt.Errorf("decoding plugin data %s.%s of %d: %w", e.Plugin, e.Key, id, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SetPluginData writes a plugin value through the dirty tracker.
func (s *SQLiteDatabase) SetPluginData(ctx context.Context, id int64, plugin, key string, value any) error {
	_, err := s.ApplyChanges(ctx, id, []model.Change{{
		Path:  model.FieldPath{Kind: model.FieldPlugin, Plugin: plugin, Key: key},
		Value: value,
	}})
	return err
}

// GetPluginData returns the entries a plugin stored on a resource.
func (s *SQLiteDatabase) GetPluginData(ctx context.Context, id int64, plugin string) ([]*model.PluginDataEntry, error) {
	if _, err := loadResource(ctx, s.db, id); err != nil {
		return nil, err
	}
	return queryPluginData(ctx, s.db, id, plugin)
}
