package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mirror-go/internal/model"
)

// appendChange writes one change log row. A missing old or new value is
// stored as NULL.
func appendChange(ctx context.Context, q querier, key string, id int64, path string,
	oldVal any, hadOld bool, newVal any, hasNew bool, at time.Time) error {
	oldRaw, err := nullJSON(oldVal, hadOld)
	if err != nil {
		return fmt.Errorf("encoding old value of %s: %w", path, err)
	}
	newRaw, err := nullJSON(newVal, hasNew)
	if err != nil {
		return fmt.Errorf("encoding new value of %s: %w", path, err)
	}

	_, err = q.ExecContext(ctx, `INSERT INTO change_log
		(resource_key, resource_id, field_path, old_value, new_value, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		key, id, path, oldRaw, newRaw, at.UTC())
	if err != nil {
		return fmt.Errorf("appending change of %d: %w", id, err)
	}
	return nil
}

func nullJSON(v any, present bool) (sql.NullString, error) {
	if !present {
		return sql.NullString{}, nil
	}
	raw, err := encodeValue(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: raw, Valid: true}, nil
}

// History returns the change log of a resource, newest first. The log is
// keyed by local key, so a resource that was re-keyed keeps its local-only
// history. A deleted resource is found by the last id it was logged under.
// limit <= 0 returns everything.
func (s *SQLiteDatabase) History(ctx context.Context, id int64, limit int) ([]*model.ChangeLogEntry, error) {
	key, err := historyKey(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, resource_key, resource_id, field_path, old_value, new_value, created_at
		FROM change_log WHERE resource_key = ? ORDER BY id DESC LIMIT ?`, key, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history of %d: %w", id, err)
	}
	defer rows.Close()

	var out []*model.ChangeLogEntry
	for rows.Next() {
		var (
			e             model.ChangeLogEntry
			oldRaw, newRaw sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.ResourceKey, &e.ResourceID, &e.FieldPath, &oldRaw, &newRaw, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning history of %d: %w", id, err)
		}
		e.OldValue = oldRaw.String
		e.NewValue = newRaw.String
		out = append(out, &e)
	}
	return out, rows.Err()
}

// historyKey resolves id to the local key its change log is filed under.
func historyKey(ctx context.Context, q querier, id int64) (string, error) {
	var key string
	err := q.QueryRowContext(ctx, `SELECT local_key FROM resources WHERE id = ?`, id).Scan(&key)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("looking up resource %d: %w", id, err)
	}

	err = q.QueryRowContext(ctx,
		`SELECT resource_key FROM change_log WHERE resource_id = ? ORDER BY id DESC LIMIT 1`, id).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("looking up history of %d: %w", id, err)
	}
	return key, nil
}
