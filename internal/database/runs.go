package database

import (
	"context"
	"database/sql"
	"fmt"

	"mirror-go/internal/model"
)

// CreateSyncRun records the start of an operation.
func (s *SQLiteDatabase) CreateSyncRun(ctx context.Context, operation, parameters string) (*model.SyncRun, error) {
	now := s.clock.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_runs (operation, parameters, started_at, status) VALUES (?, ?, ?, 'running')`,
		operation, parameters, now)
	if err != nil {
		return nil, fmt.Errorf("creating sync run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("creating sync run: %w", err)
	}
	return &model.SyncRun{
		ID:         id,
		Operation:  operation,
		Parameters: parameters,
		StartedAt:  now,
		Status:     "running",
	}, nil
}

// FinishSyncRun stamps a run with its final status and summary.
func (s *SQLiteDatabase) FinishSyncRun(ctx context.Context, id int64, status, summary string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sync_runs SET status = ?, summary = ?, finished_at = ? WHERE id = ?`,
		status, summary, s.clock.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("finishing sync run %d: %w", id, err)
	}
	return nil
}

// ListSyncRuns returns the most recent runs first. limit <= 0 returns all.
func (s *SQLiteDatabase) ListSyncRuns(ctx context.Context, limit int) ([]*model.SyncRun, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, operation, parameters, started_at, finished_at, status, summary
		FROM sync_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying sync runs: %w", err)
	}
	defer rows.Close()

	var out []*model.SyncRun
	for rows.Next() {
		var (
			r        model.SyncRun
			finished sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.Operation, &r.Parameters, &r.StartedAt, &finished, &r.Status, &r.Summary); err != nil {
			return nil, fmt.Errorf("scanning sync run: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// MaxSyncRunID returns the highest run id, or 0 when none exist. It
// versions vault backups.
func (s *SQLiteDatabase) MaxSyncRunID(ctx context.Context) (int64, error) {
	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM sync_runs`).Scan(&id); err != nil {
		return 0, fmt.Errorf("reading max sync run id: %w", err)
	}
	return id, nil
}

// StatusByType counts resources per type.
func (s *SQLiteDatabase) StatusByType(ctx context.Context) ([]*model.TypeStatus, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT type,
			COUNT(*),
			COALESCE(SUM(dirty), 0),
			COALESCE(SUM(CASE WHEN id < 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN modified_at > synced_modified_at THEN 1 ELSE 0 END), 0)
		FROM resources GROUP BY type ORDER BY type`)
	if err != nil {
		return nil, fmt.Errorf("querying status: %w", err)
	}
	defer rows.Close()

	var out []*model.TypeStatus
	for rows.Next() {
		var st model.TypeStatus
		if err := rows.Scan(&st.Type, &st.Total, &st.Dirty, &st.LocalOnly, &st.Drifted); err != nil {
			return nil, fmt.Errorf("scanning status: %w", err)
		}
		out = append(out, &st)
	}
	return out, rows.Err()
}
