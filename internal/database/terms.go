package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"mirror-go/internal/mirror"
	"mirror-go/internal/model"
)

const termColumns = `id, taxonomy, name, slug, parent_id`

func scanTerm(row rowScanner) (*model.Term, error) {
	var (
		t      model.Term
		parent sql.NullInt64
	)
	if err := row.Scan(&t.ID, &t.Taxonomy, &t.Name, &t.Slug, &parent); err != nil {
		return nil, err
	}
	t.ParentID = parent.Int64
	return &t, nil
}

// UpsertTerm inserts or replaces a term definition.
func (s *SQLiteDatabase) UpsertTerm(ctx context.Context, term *model.Term) error {
	var parent any
	if term.ParentID != 0 {
		parent = term.ParentID
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO terms (`+termColumns+`) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET taxonomy = excluded.taxonomy, name = excluded.name,
			slug = excluded.slug, parent_id = excluded.parent_id`,
		term.ID, term.Taxonomy, term.Name, term.Slug, parent)
	if err != nil {
		return fmt.Errorf("writing term %d: %w", term.ID, err)
	}
	return nil
}

// GetTerm returns a term definition.
func (s *SQLiteDatabase) GetTerm(ctx context.Context, id int64) (*model.Term, error) {
	t, err := scanTerm(s.db.QueryRowContext(ctx, `SELECT `+termColumns+` FROM terms WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("term %d: %w", id, mirror.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading term %d: %w", id, err)
	}
	return t, nil
}

// ListTerms returns the terms of a taxonomy by name. An empty taxonomy
// lists every term.
func (s *SQLiteDatabase) ListTerms(ctx context.Context, taxonomy string) ([]*model.Term, error) {
	query := `SELECT ` + termColumns + ` FROM terms`
	var args []any
	if taxonomy != "" {
		query += ` WHERE taxonomy = ?`
		args = append(args, taxonomy)
	}
	query += ` ORDER BY taxonomy, name, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying terms: %w", err)
	}
	defer rows.Close()

	var out []*model.Term
	for rows.Next() {
		t, err := scanTerm(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning term: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
