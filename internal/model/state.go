package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
)

// SyncState is the set of fields that take part in synchronization.
// It is what a Snapshot stores and what dirtiness is computed against.
type SyncState struct {
	Title      string                    `json:"title"`
	Slug       string                    `json:"slug"`
	Status     Status                    `json:"status"`
	Content    string                    `json:"content"`
	Excerpt    string                    `json:"excerpt"`
	Meta       map[string]any            `json:"meta"`
	Terms      map[string][]int64        `json:"terms"`
	PluginData map[string]map[string]any `json:"plugin_data"`
}

// Canonical returns a deterministic JSON encoding of the state.
// encoding/json sorts map keys, and term ids are normalized first.
func (s SyncState) Canonical() ([]byte, error) {
	c := s
	c.Terms = normalizeTerms(s.Terms)
	if c.Meta == nil {
		c.Meta = map[string]any{}
	}
	// an empty namespace carries no values
	c.PluginData = make(map[string]map[string]any, len(s.PluginData))
	for plugin, entries := range s.PluginData {
		if len(entries) > 0 {
			c.PluginData[plugin] = entries
		}
	}
	return json.Marshal(c)
}

// Equal reports whether two states encode identically.
func (s SyncState) Equal(o SyncState) bool {
	a, errA := s.Canonical()
	b, errB := o.Canonical()
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// Field returns the value at a field path, and whether it is present.
func (s SyncState) Field(p FieldPath) (any, bool) {
	switch p.Kind {
	case FieldTitle:
		return s.Title, true
	case FieldSlug:
		return s.Slug, true
	case FieldStatus:
		return string(s.Status), true
	case FieldContent:
		return s.Content, true
	case FieldExcerpt:
		return s.Excerpt, true
	case FieldMeta:
		v, ok := s.Meta[p.Key]
		return v, ok
	case FieldTerms:
		v, ok := s.Terms[p.Key]
		return v, ok
	case FieldPlugin:
		v, ok := s.PluginData[p.Plugin][p.Key]
		return v, ok
	}
	return nil, false
}

// Diff lists the field paths whose values differ between base and s.
func (s SyncState) Diff(base SyncState) []string {
	var out []string
	for _, f := range []FieldKind{FieldTitle, FieldSlug, FieldStatus, FieldContent, FieldExcerpt} {
		p := FieldPath{Kind: f}
		a, _ := s.Field(p)
		b, _ := base.Field(p)
		if a != b {
			out = append(out, p.String())
		}
	}
	for _, k := range unionKeys(s.Meta, base.Meta) {
		if !jsonEqual(s.Meta[k], base.Meta[k]) || hasKey(s.Meta, k) != hasKey(base.Meta, k) {
			out = append(out, FieldPath{Kind: FieldMeta, Key: k}.String())
		}
	}
	cur, old := normalizeTerms(s.Terms), normalizeTerms(base.Terms)
	for _, k := range unionKeys(cur, old) {
		if !slices.Equal(cur[k], old[k]) {
			out = append(out, FieldPath{Kind: FieldTerms, Key: k}.String())
		}
	}
	for _, plugin := range unionKeys(s.PluginData, base.PluginData) {
		a, b := s.PluginData[plugin], base.PluginData[plugin]
		for _, k := range unionKeys(a, b) {
			if !jsonEqual(a[k], b[k]) || hasKey(a, k) != hasKey(b, k) {
				out = append(out, FieldPath{Kind: FieldPlugin, Plugin: plugin, Key: k}.String())
			}
		}
	}
	return out
}

// FieldKind identifies the category of a field path.
type FieldKind string

const (
	FieldTitle   FieldKind = "title"
	FieldSlug    FieldKind = "slug"
	FieldStatus  FieldKind = "status"
	FieldContent FieldKind = "content"
	FieldExcerpt FieldKind = "excerpt"
	FieldMeta    FieldKind = "meta"
	FieldTerms   FieldKind = "terms"
	FieldPlugin  FieldKind = "plugin"
)

// FieldPath addresses one synchronizable field:
// title, slug, status, content, excerpt, meta.<key>, terms.<taxonomy>, plugin.<plugin>.<key>.
type FieldPath struct {
	Kind   FieldKind
	Plugin string
	Key    string
}

// ParseFieldPath parses the dotted representation of a field path.
func ParseFieldPath(s string) (FieldPath, error) {
	head, rest, _ := strings.Cut(s, ".")
	switch k := FieldKind(head); k {
	case FieldTitle, FieldSlug, FieldStatus, FieldContent, FieldExcerpt:
		if rest != "" {
			return FieldPath{}, fmt.Errorf("field %q takes no key: %q", head, s)
		}
		return FieldPath{Kind: k}, nil
	case FieldMeta, FieldTerms:
		if rest == "" {
			return FieldPath{}, fmt.Errorf("field %q requires a key: %q", head, s)
		}
		return FieldPath{Kind: k, Key: rest}, nil
	case FieldPlugin:
		plugin, key, ok := strings.Cut(rest, ".")
		if !ok || plugin == "" || key == "" {
			return FieldPath{}, fmt.Errorf("plugin field must be plugin.<name>.<key>: %q", s)
		}
		return FieldPath{Kind: k, Plugin: plugin, Key: key}, nil
	default:
		return FieldPath{}, fmt.Errorf("unknown field: %q", s)
	}
}

func (p FieldPath) String() string {
	switch p.Kind {
	case FieldMeta, FieldTerms:
		return string(p.Kind) + "." + p.Key
	case FieldPlugin:
		return string(p.Kind) + "." + p.Plugin + "." + p.Key
	default:
		return string(p.Kind)
	}
}

// Change is a single field mutation requested by the editing surface.
// Delete removes a meta key, a taxonomy, or a plugin data entry.
type Change struct {
	Path   FieldPath
	Value  any
	Delete bool
}

// normalizeTerms returns a copy with sorted, de-duplicated ids and no empty taxonomies.
func normalizeTerms(in map[string][]int64) map[string][]int64 {
	out := make(map[string][]int64, len(in))
	for tax, ids := range in {
		if len(ids) == 0 {
			continue
		}
		c := slices.Clone(ids)
		slices.Sort(c)
		out[tax] = slices.Compact(c)
	}
	return out
}

// cloneTerms normalizes ids like normalizeTerms but keeps empty
// taxonomies, which on the wire mean "no terms assigned".
func cloneTerms(in map[string][]int64) map[string][]int64 {
	out := make(map[string][]int64, len(in))
	for tax, ids := range in {
		out[tax] = NormalizeTermIDs(ids)
	}
	return out
}

// NormalizeTermIDs sorts and de-duplicates a list of term ids.
func NormalizeTermIDs(ids []int64) []int64 {
	c := append([]int64{}, ids...)
	slices.Sort(c)
	return slices.Compact(c)
}

func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func clonePluginData(in map[string]map[string]any) map[string]map[string]any {
	out := make(map[string]map[string]any, len(in))
	for plugin, entries := range in {
		out[plugin] = cloneMap(entries)
	}
	return out
}

// cloneValue deep-copies JSON-shaped values.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		c := make([]any, len(t))
		for i := range t {
			c[i] = cloneValue(t[i])
		}
		return c
	default:
		return v
	}
}

func jsonEqual(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(ja, jb)
}

// JSONEqual reports whether two JSON-shaped values encode identically.
func JSONEqual(a, b any) bool { return jsonEqual(a, b) }

func hasKey[V any](m map[string]V, k string) bool {
	_, ok := m[k]
	return ok
}

func unionKeys[V any](a, b map[string]V) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
