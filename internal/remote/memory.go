package remote

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"

	"mirror-go/internal/mirror"
	"mirror-go/internal/model"
)

// Op names a remote API operation.
type Op string

const (
	OpList      Op = "list"
	OpGet       Op = "get"
	OpCreate    Op = "create"
	OpUpdate    Op = "update"
	OpDelete    Op = "delete"
	OpListTerms Op = "list_terms"
)

// Call describes one request made against a MemoryRemote.
type Call struct {
	Op   Op
	Type string // resource type, or taxonomy for OpListTerms
	ID   int64  // 0 for list and create calls
	Page int    // set for list calls
}

// MemoryRemote is an in-process content API. It assigns ids and slugs and
// stamps modification times the way a CMS does, which makes it useful for
// testing and for the "memory" remote type. It is safe for concurrent use.
type MemoryRemote struct {
	mu        sync.Mutex
	clock     mirror.Clock
	resources map[string]map[int64]model.RemoteResource // type -> id -> resource
	terms     map[string][]model.RemoteTerm             // taxonomy -> terms
	nextID    int64
	calls     []Call
	intercept func(context.Context, Call) error
}

// NewMemoryRemote creates an empty remote. Created resources get ids from 1000 up.
func NewMemoryRemote(clock mirror.Clock) *MemoryRemote {
	return &MemoryRemote{
		clock:     clock,
		resources: make(map[string]map[int64]model.RemoteResource),
		terms:     make(map[string][]model.RemoteTerm),
		nextID:    1000,
	}
}

// Seed stores a resource exactly as given, as if it had been created on the
// server by someone else.
func (m *MemoryRemote) Seed(r model.RemoteResource) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.resources[r.Type] == nil {
		m.resources[r.Type] = make(map[int64]model.RemoteResource)
	}
	m.resources[r.Type][r.ID] = r.Clone()
	if r.ID >= m.nextID {
		m.nextID = r.ID + 1
	}
}

// SeedTerms replaces the term definitions of a taxonomy.
func (m *MemoryRemote) SeedTerms(taxonomy string, terms ...model.RemoteTerm) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terms[taxonomy] = slices.Clone(terms)
}

// Edit applies fn to a stored resource and bumps its modification time,
// simulating an edit made on the server.
func (m *MemoryRemote) Edit(resourceType string, id int64, fn func(*model.RemoteResource)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.resources[resourceType][id]
	if !ok {
		return fmt.Errorf("%s %d: %w", resourceType, id, mirror.ErrNotFound)
	}
	fn(&r)
	r.ModifiedAt = m.clock.Now()
	m.resources[resourceType][id] = r
	return nil
}

// Resource returns a copy of a stored resource.
func (m *MemoryRemote) Resource(resourceType string, id int64) (model.RemoteResource, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.resources[resourceType][id]
	if !ok {
		return model.RemoteResource{}, false
	}
	return r.Clone(), true
}

// Calls returns every call made so far, in order.
func (m *MemoryRemote) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// CountCalls returns the number of calls made with op.
func (m *MemoryRemote) CountCalls(op Op) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, c := range m.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// SetInterceptor installs fn to run before every call, outside the remote's
// lock. A non-nil error fails the call with that error. fn may block.
func (m *MemoryRemote) SetInterceptor(fn func(context.Context, Call) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intercept = fn
}

func (m *MemoryRemote) begin(ctx context.Context, c Call) error {
	m.mu.Lock()
	m.calls = append(m.calls, c)
	fn := m.intercept
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return &mirror.RemoteError{Op: string(c.Op), Err: err}
	}
	if fn != nil {
		return fn(ctx, c)
	}
	return nil
}

// List returns one page of resources ordered by id.
func (m *MemoryRemote) List(ctx context.Context, resourceType string, page, perPage int) (*model.RemotePage, error) {
	if err := m.begin(ctx, Call{Op: OpList, Type: resourceType, Page: page}); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]int64, 0, len(m.resources[resourceType]))
	for id := range m.resources[resourceType] {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	items, total := paginate(ids, page, perPage)
	out := &model.RemotePage{Items: make([]model.RemoteResource, 0, len(items)), TotalPages: total}
	for _, id := range items {
		out.Items = append(out.Items, m.resources[resourceType][id].Clone())
	}
	return out, nil
}

// Get returns a single resource.
func (m *MemoryRemote) Get(ctx context.Context, resourceType string, id int64) (*model.RemoteResource, error) {
	if err := m.begin(ctx, Call{Op: OpGet, Type: resourceType, ID: id}); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.resources[resourceType][id]
	if !ok {
		return nil, notFound(OpGet, resourceType, id)
	}
	r = r.Clone()
	return &r, nil
}

// Create stores a new resource with a fresh id and returns it.
func (m *MemoryRemote) Create(ctx context.Context, resourceType string, r model.RemoteResource) (*model.RemoteResource, error) {
	if err := m.begin(ctx, Call{Op: OpCreate, Type: resourceType}); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	stored := r.Clone()
	stored.ID = m.nextID
	m.nextID++
	stored.Type = resourceType
	if stored.Slug == "" {
		stored.Slug = slugify(stored.Title)
	}
	if stored.Meta == nil {
		stored.Meta = map[string]any{}
	}
	stored.Terms = mergeTerms(nil, stored.Terms)
	stored.CreatedAt = now
	stored.ModifiedAt = now

	if m.resources[resourceType] == nil {
		m.resources[resourceType] = make(map[int64]model.RemoteResource)
	}
	m.resources[resourceType][stored.ID] = stored

	out := stored.Clone()
	return &out, nil
}

// Update replaces a resource. Meta is replaced wholesale; term assignments
// are replaced per taxonomy present in r.
func (m *MemoryRemote) Update(ctx context.Context, resourceType string, id int64, r model.RemoteResource) (*model.RemoteResource, error) {
	if err := m.begin(ctx, Call{Op: OpUpdate, Type: resourceType, ID: id}); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	prev, ok := m.resources[resourceType][id]
	if !ok {
		return nil, notFound(OpUpdate, resourceType, id)
	}

	stored := r.Clone()
	stored.ID = id
	stored.Type = resourceType
	if stored.Meta == nil {
		stored.Meta = map[string]any{}
	}
	stored.Terms = mergeTerms(prev.Terms, r.Terms)
	stored.CreatedAt = prev.CreatedAt
	stored.ModifiedAt = m.clock.Now()
	m.resources[resourceType][id] = stored

	out := stored.Clone()
	return &out, nil
}

// Delete removes a resource.
func (m *MemoryRemote) Delete(ctx context.Context, resourceType string, id int64) error {
	if err := m.begin(ctx, Call{Op: OpDelete, Type: resourceType, ID: id}); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.resources[resourceType][id]; !ok {
		return notFound(OpDelete, resourceType, id)
	}
	delete(m.resources[resourceType], id)
	return nil
}

// ListTerms returns one page of term definitions in seeded order.
func (m *MemoryRemote) ListTerms(ctx context.Context, taxonomy string, page, perPage int) (*model.TermPage, error) {
	if err := m.begin(ctx, Call{Op: OpListTerms, Type: taxonomy, Page: page}); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	items, total := paginate(m.terms[taxonomy], page, perPage)
	out := &model.TermPage{Items: make([]model.RemoteTerm, 0, len(items)), TotalPages: total}
	for _, t := range items {
		t.Taxonomy = taxonomy
		out.Items = append(out.Items, t)
	}
	return out, nil
}

// paginate returns the 1-based page of items and the total page count.
func paginate[T any](items []T, page, perPage int) ([]T, int) {
	if perPage <= 0 {
		perPage = len(items)
	}
	if perPage == 0 {
		return nil, 0
	}
	total := (len(items) + perPage - 1) / perPage
	start := (page - 1) * perPage
	if page < 1 || start >= len(items) {
		return nil, total
	}
	end := min(start+perPage, len(items))
	return items[start:end], total
}

func mergeTerms(prev, next map[string][]int64) map[string][]int64 {
	out := make(map[string][]int64, len(prev)+len(next))
	for tax, ids := range prev {
		out[tax] = slices.Clone(ids)
	}
	for tax, ids := range next {
		out[tax] = model.NormalizeTermIDs(ids)
	}
	return out
}

func notFound(op Op, resourceType string, id int64) *mirror.RemoteError {
	return &mirror.RemoteError{
		Op:         string(op),
		StatusCode: http.StatusNotFound,
		Code:       "rest_not_found",
		Detail:     fmt.Sprintf("no %s with id %d", resourceType, id),
	}
}

func slugify(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

var _ mirror.Remote = (*MemoryRemote)(nil)
