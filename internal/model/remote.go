package model

import "time"

// RemoteResource is the wire shape of a resource on the remote content API.
type RemoteResource struct {
	ID         int64              `json:"id,omitempty"`
	Type       string             `json:"type"`
	Title      string             `json:"title"`
	Slug       string             `json:"slug"`
	Status     Status             `json:"status"`
	Content    string             `json:"content"`
	Excerpt    string             `json:"excerpt"`
	Meta       map[string]any     `json:"meta"`
	Terms      map[string][]int64 `json:"terms"`
	CreatedAt  time.Time          `json:"created_at"`
	ModifiedAt time.Time          `json:"modified_at"`
}

// Clone returns a deep copy.
func (r RemoteResource) Clone() RemoteResource {
	c := r
	c.Meta = cloneMap(r.Meta)
	c.Terms = cloneTerms(r.Terms)
	return c
}

// RemotePage is one page of a remote listing.
type RemotePage struct {
	Items      []RemoteResource
	TotalPages int // 0 when the server does not report it
}

// RemoteTerm is the wire shape of a term definition.
type RemoteTerm struct {
	ID       int64  `json:"id"`
	Taxonomy string `json:"taxonomy"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	ParentID int64  `json:"parent,omitempty"`
}

// TermPage is one page of a remote term listing.
type TermPage struct {
	Items      []RemoteTerm
	TotalPages int
}

// Outbound builds the payload sent to the remote server from local state.
// Every meta key and every taxonomy is included, so an absent key is never
// ambiguous on the remote side. Listed taxonomies that have no
// local terms are sent empty, which removes their remote assignments.
func Outbound(r *Resource, taxonomies ...string) RemoteResource {
	out := RemoteResource{
		Type:       r.Type,
		Title:      r.Title,
		Slug:       r.Slug,
		Status:     r.Status,
		Content:    r.Content,
		Excerpt:    r.Excerpt,
		Meta:       cloneMap(r.Meta),
		Terms:      normalizeTerms(r.Terms),
		CreatedAt:  r.CreatedAt,
		ModifiedAt: r.ModifiedAt,
	}
	for _, tax := range taxonomies {
		if _, ok := out.Terms[tax]; !ok {
			out.Terms[tax] = []int64{}
		}
	}
	if !r.IsLocalOnly() {
		out.ID = r.ID
	}
	return out
}

// FromRemote converts a (transformed) remote resource into local form.
func FromRemote(rr RemoteResource, pluginData map[string]map[string]any) *Resource {
	return &Resource{
		ID:               rr.ID,
		Type:             rr.Type,
		Title:            rr.Title,
		Slug:             rr.Slug,
		Status:           rr.Status,
		Content:          rr.Content,
		Excerpt:          rr.Excerpt,
		Meta:             cloneMap(rr.Meta),
		Terms:            cloneTerms(rr.Terms),
		PluginData:       clonePluginData(pluginData),
		CreatedAt:        rr.CreatedAt,
		ModifiedAt:       rr.ModifiedAt,
		SyncedModifiedAt: rr.ModifiedAt,
	}
}
