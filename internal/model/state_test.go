package model

import (
	"reflect"
	"slices"
	"testing"
)

func TestParseFieldPath(t *testing.T) {
	tests := []struct {
		in      string
		want    FieldPath
		wantErr bool
	}{
		{in: "title", want: FieldPath{Kind: FieldTitle}},
		{in: "status", want: FieldPath{Kind: FieldStatus}},
		{in: "meta.color", want: FieldPath{Kind: FieldMeta, Key: "color"}},
		{in: "meta.a.b", want: FieldPath{Kind: FieldMeta, Key: "a.b"}},
		{in: "terms.category", want: FieldPath{Kind: FieldTerms, Key: "category"}},
		{in: "plugin.seo.title", want: FieldPath{Kind: FieldPlugin, Plugin: "seo", Key: "title"}},
		{in: "title.x", wantErr: true},
		{in: "meta", wantErr: true},
		{in: "plugin.seo", wantErr: true},
		{in: "author", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFieldPath(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFieldPath(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got != tt.want {
				t.Errorf("ParseFieldPath(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
			if got.String() != tt.in {
				t.Errorf("String() = %q, want %q", got.String(), tt.in)
			}
		})
	}
}

func TestParseStatus(t *testing.T) {
	if _, err := ParseStatus("published"); err != nil {
		t.Errorf("ParseStatus(published) error = %v", err)
	}
	if _, err := ParseStatus("publish"); err == nil {
		t.Error("ParseStatus(publish) expected error")
	}
}

func TestSyncState_Equal(t *testing.T) {
	a := SyncState{
		Title: "t",
		Meta:  map[string]any{"n": 1, "list": []any{"x"}},
		Terms: map[string][]int64{"tag": {3, 1, 3}},
	}
	b := SyncState{
		Title:      "t",
		Meta:       map[string]any{"list": []any{"x"}, "n": float64(1)},
		Terms:      map[string][]int64{"tag": {1, 3}, "empty": nil},
		PluginData: map[string]map[string]any{"seo": {}},
	}

	if !a.Equal(b) {
		t.Error("expected states to be equal after normalization")
	}

	b.Meta["n"] = 2
	if a.Equal(b) {
		t.Error("expected states to differ")
	}
}

func TestSyncState_Diff(t *testing.T) {
	base := SyncState{
		Title:      "Old",
		Status:     StatusDraft,
		Meta:       map[string]any{"keep": "v", "gone": true},
		Terms:      map[string][]int64{"category": {1}},
		PluginData: map[string]map[string]any{"seo": {"title": "a"}},
	}
	cur := SyncState{
		Title:      "New",
		Status:     StatusDraft,
		Meta:       map[string]any{"keep": "v", "added": 1},
		Terms:      map[string][]int64{"category": {1, 2}},
		PluginData: map[string]map[string]any{"seo": {"title": "b"}},
	}

	got := cur.Diff(base)
	want := []string{"title", "meta.added", "meta.gone", "terms.category", "plugin.seo.title"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Diff() = %v, want %v", got, want)
	}

	if d := base.Diff(base); len(d) != 0 {
		t.Errorf("Diff(self) = %v, want empty", d)
	}
}

func TestResource_CloneIsDeep(t *testing.T) {
	r := &Resource{
		ID:         1,
		Meta:       map[string]any{"obj": map[string]any{"a": 1}},
		Terms:      map[string][]int64{"tag": {1}},
		PluginData: map[string]map[string]any{"seo": {"k": "v"}},
	}
	c := r.Clone()
	c.Meta["obj"].(map[string]any)["a"] = 2
	c.Terms["tag"][0] = 9
	c.PluginData["seo"]["k"] = "changed"

	if r.Meta["obj"].(map[string]any)["a"] != 1 {
		t.Error("meta was shared between clone and original")
	}
	if r.Terms["tag"][0] != 1 {
		t.Error("terms were shared between clone and original")
	}
	if r.PluginData["seo"]["k"] != "v" {
		t.Error("plugin data was shared between clone and original")
	}
}

func TestOutbound_LocalOnlyHasNoID(t *testing.T) {
	r := &Resource{ID: -1, Type: "article", Title: "draft"}
	if got := Outbound(r); got.ID != 0 {
		t.Errorf("Outbound().ID = %d, want 0 for local-only resource", got.ID)
	}
	r.ID = 42
	if got := Outbound(r); got.ID != 42 {
		t.Errorf("Outbound().ID = %d, want 42", got.ID)
	}
}

func TestOutbound_CarriesClearedTaxonomies(t *testing.T) {
	r := &Resource{ID: 7, Terms: map[string][]int64{"tag": {3, 1, 3}}}
	got := Outbound(r, "tag", "category")
	if len(got.Terms["category"]) != 0 || got.Terms["category"] == nil {
		t.Errorf("Outbound().Terms[category] = %v, want empty non-nil", got.Terms["category"])
	}
	if want := []int64{1, 3}; !slices.Equal(got.Terms["tag"], want) {
		t.Errorf("Outbound().Terms[tag] = %v, want %v", got.Terms["tag"], want)
	}
}

func TestFromRemote_KeepsEmptyTaxonomy(t *testing.T) {
	rr := RemoteResource{ID: 7, Terms: map[string][]int64{"tag": {}}}
	got := FromRemote(rr, nil)
	if _, ok := got.Terms["tag"]; !ok {
		t.Error("FromRemote() dropped empty taxonomy; it must clear local assignments")
	}
}

func TestFromRemote_KeepsEmptyPluginNamespace(t *testing.T) {
	got := FromRemote(RemoteResource{ID: 7}, map[string]map[string]any{"seo": {}})
	if _, ok := got.PluginData["seo"]; !ok {
		t.Error("FromRemote() dropped empty plugin namespace; it must clear stored entries")
	}
}
