package mirror

import (
	"context"
	"fmt"

	"mirror-go/internal/model"
)

// History returns the most recent field changes of a resource, newest first.
func (s *Service) History(ctx context.Context, id int64, limit int) ([]*model.ChangeLogEntry, error) {
	entries, err := s.database.History(ctx, id, limit)
	if err != nil {
		return nil, fmt.Errorf("reading history of %d: %w", id, err)
	}
	return entries, nil
}

// ListRuns returns the most recent mirror operations, newest first.
func (s *Service) ListRuns(ctx context.Context, limit int) ([]*model.SyncRun, error) {
	runs, err := s.database.ListSyncRuns(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sync runs: %w", err)
	}
	return runs, nil
}
