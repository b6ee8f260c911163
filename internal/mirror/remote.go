package mirror

import (
	"context"

	"mirror-go/internal/model"
)

// Remote is the content API of the remote server. Implementations return
// *RemoteError for non-2xx responses and transport failures.
type Remote interface {
	// List fetches one page (1-based) of resources of a type.
	List(ctx context.Context, resourceType string, page, perPage int) (*model.RemotePage, error)

	// Get fetches a single resource.
	Get(ctx context.Context, resourceType string, id int64) (*model.RemoteResource, error)

	// Create creates a resource and returns the server's authoritative state.
	Create(ctx context.Context, resourceType string, r model.RemoteResource) (*model.RemoteResource, error)

	// Update replaces a resource and returns the server's authoritative state.
	Update(ctx context.Context, resourceType string, id int64, r model.RemoteResource) (*model.RemoteResource, error)

	// Delete removes a resource.
	Delete(ctx context.Context, resourceType string, id int64) error

	// ListTerms fetches one page of term definitions of a taxonomy.
	ListTerms(ctx context.Context, taxonomy string, page, perPage int) (*model.TermPage, error)
}
