package mirror

import (
	"context"
	"fmt"

	"mirror-go/internal/model"
)

// Status summarizes the mirror per resource type. Configured types with no
// resources yet are included with zero counts.
func (s *Service) Status(ctx context.Context) ([]*model.TypeStatus, error) {
	s.logger.Debug("computing status")

	rows, err := s.database.StatusByType(ctx)
	if err != nil {
		return nil, fmt.Errorf("computing status: %w", err)
	}

	seen := make(map[string]bool, len(rows))
	for _, r := range rows {
		seen[r.Type] = true
	}
	for _, typ := range s.opts.ResourceTypes {
		if !seen[typ] {
			rows = append(rows, &model.TypeStatus{Type: typ})
		}
	}
	return rows, nil
}

// ListTerms returns the term definitions of a taxonomy.
func (s *Service) ListTerms(ctx context.Context, taxonomy string) ([]*model.Term, error) {
	terms, err := s.database.ListTerms(ctx, taxonomy)
	if err != nil {
		return nil, fmt.Errorf("listing terms: %w", err)
	}
	return terms, nil
}
