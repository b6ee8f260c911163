package model

import (
	"fmt"
	"time"
)

// Status is the publication state of a resource.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusPrivate   Status = "private"
	StatusPublished Status = "published"
	StatusTrashed   Status = "trashed"
)

// ParseStatus validates a raw status string.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusDraft, StatusPending, StatusPrivate, StatusPublished, StatusTrashed:
		return st, nil
	default:
		return "", fmt.Errorf("unknown status: %q", s)
	}
}

// Resource is a content item mirrored from the remote server.
// A negative ID marks a resource created locally that has never been pushed.
type Resource struct {
	ID       int64  // remote-assigned id, or negative for local-only
	LocalKey string // UUID, stable across the local-only -> remote re-key
	Type     string

	Title   string
	Slug    string
	Status  Status
	Content string
	Excerpt string

	Meta       map[string]any
	Terms      map[string][]int64        // taxonomy -> term ids
	PluginData map[string]map[string]any // plugin -> key -> value

	CreatedAt        time.Time // remote reported
	ModifiedAt       time.Time // remote reported, refreshed by every pull
	SyncedModifiedAt time.Time // remote modified time at the last successful sync (conflict baseline)
	LocalModifiedAt  time.Time // last local edit, zero if never edited

	Dirty bool
}

// IsLocalOnly reports whether the resource has never been created remotely.
func (r *Resource) IsLocalOnly() bool {
	return r.ID < 0
}

// State returns the synchronizable projection of the resource.
func (r *Resource) State() SyncState {
	return SyncState{
		Title:      r.Title,
		Slug:       r.Slug,
		Status:     r.Status,
		Content:    r.Content,
		Excerpt:    r.Excerpt,
		Meta:       cloneMap(r.Meta),
		Terms:      normalizeTerms(r.Terms),
		PluginData: clonePluginData(r.PluginData),
	}
}

// Apply overwrites the synchronizable fields of r with s.
func (r *Resource) Apply(s SyncState) {
	r.Title = s.Title
	r.Slug = s.Slug
	r.Status = s.Status
	r.Content = s.Content
	r.Excerpt = s.Excerpt
	r.Meta = cloneMap(s.Meta)
	r.Terms = normalizeTerms(s.Terms)
	r.PluginData = clonePluginData(s.PluginData)
}

// Clone returns a deep copy of the resource.
func (r *Resource) Clone() *Resource {
	if r == nil {
		return nil
	}
	c := *r
	c.Meta = cloneMap(r.Meta)
	c.Terms = normalizeTerms(r.Terms)
	c.PluginData = clonePluginData(r.PluginData)
	return &c
}

// Term is a taxonomy value shared across resources.
type Term struct {
	ID       int64
	Taxonomy string
	Name     string
	Slug     string
	ParentID int64 // 0 when the term has no parent
}

// PluginDataEntry is plugin-owned side data attached to a resource.
type PluginDataEntry struct {
	ResourceID  int64
	Plugin      string
	Key         string
	Value       any
	PendingPush bool
}

// Snapshot is the last-synchronized state of a dirty resource.
type Snapshot struct {
	ResourceID int64
	State      SyncState
	IsNew      bool // baseline of a resource that has never been synced
	CapturedAt time.Time
}

// ChangeLogEntry records a single field mutation. Entries are immutable.
type ChangeLogEntry struct {
	ID          int64
	ResourceKey string // LocalKey of the resource
	ResourceID  int64  // resource id at the time of the change
	FieldPath   string
	OldValue    string // JSON
	NewValue    string // JSON
	CreatedAt   time.Time
}

// SyncRun tracks a CLI operation that mutated the mirror.
type SyncRun struct {
	ID         int64
	Operation  string
	Parameters string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string
	Summary    string
}

// ResourceFilter narrows ListResources.
type ResourceFilter struct {
	Type      string
	Status    Status
	DirtyOnly bool
	Search    string // substring match on title or slug
	Limit     int    // 0 means no limit
}

// TypeStatus summarizes the mirror for one resource type.
type TypeStatus struct {
	Type      string
	Total     int
	Dirty     int
	LocalOnly int
	Drifted   int // remote modified after the local baseline
}
