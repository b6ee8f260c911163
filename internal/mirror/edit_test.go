package mirror_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mirror-go/internal/mirror"
	"mirror-go/internal/model"
	"mirror-go/internal/plugins"
	"mirror-go/internal/remote"
)

func TestDiscardChanges_RoundTrip(t *testing.T) {
	env := newTestEnv(t)
	env.seedAndPull(t, 1)
	ctx := context.Background()

	before := env.get(t, 1)

	_, err := env.svc.ApplyChanges(ctx, 1, []model.Change{
		{Path: model.FieldPath{Kind: model.FieldTitle}, Value: "draft title"},
		{Path: model.FieldPath{Kind: model.FieldStatus}, Value: "draft"},
		{Path: model.FieldPath{Kind: model.FieldMeta, Key: "subtitle"}, Value: "new"},
		{Path: model.FieldPath{Kind: model.FieldMeta, Key: "views"}, Delete: true},
		{Path: model.FieldPath{Kind: model.FieldTerms, Key: "tags"}, Value: []any{float64(8), float64(2)}},
	})
	require.NoError(t, err)
	require.NoError(t, env.svc.SetPluginData(ctx, 1, "seo", "title", "SEO"))
	env.requireDirtyInvariant(t)

	restored, err := env.svc.DiscardChanges(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, restored)

	after := env.get(t, 1)
	ignore := cmpopts.IgnoreFields(model.Resource{}, "LocalModifiedAt")
	if diff := cmp.Diff(before, after, ignore); diff != "" {
		t.Errorf("discard did not restore the pre-edit state (-before +after):\n%s", diff)
	}
	assert.False(t, after.Dirty)
	env.requireDirtyInvariant(t)

	_, err = env.svc.DiscardChanges(ctx, 1)
	assert.ErrorIs(t, err, mirror.ErrNoLocalChanges)
}

func TestDiscardChanges_LocalOnlyResourceIsDeleted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.svc.CreateResource(ctx, &model.Resource{Type: "posts", Title: "scratch"})
	require.NoError(t, err)

	restored, err := env.svc.DiscardChanges(ctx, created.ID)
	require.NoError(t, err)
	assert.Nil(t, restored)

	_, err = env.svc.GetResource(ctx, created.ID)
	assert.ErrorIs(t, err, mirror.ErrNotFound)
}

func TestApplyChanges_RevertClearsDirty(t *testing.T) {
	env := newTestEnv(t)
	env.seedAndPull(t, 1)
	ctx := context.Background()

	r, err := env.svc.UpdateField(ctx, 1, "title", "temporary")
	require.NoError(t, err)
	assert.True(t, r.Dirty)

	r, err = env.svc.UpdateField(ctx, 1, "title", "Post 1")
	require.NoError(t, err)
	assert.False(t, r.Dirty)
	env.requireDirtyInvariant(t)

	report, err := env.svc.PushAll(ctx, mirror.PushOptions{})
	require.NoError(t, err)
	assert.Equal(t, mirror.StatusNoop, report.Status())
}

func TestApplyChanges_Validation(t *testing.T) {
	env := newTestEnv(t)
	env.seedAndPull(t, 1)
	ctx := context.Background()

	tests := []struct {
		name   string
		change model.Change
	}{
		{"unknown status", model.Change{Path: model.FieldPath{Kind: model.FieldStatus}, Value: "archived"}},
		{"non-string title", model.Change{Path: model.FieldPath{Kind: model.FieldTitle}, Value: 7}},
		{"delete core field", model.Change{Path: model.FieldPath{Kind: model.FieldSlug}, Delete: true}},
		{"meta without key", model.Change{Path: model.FieldPath{Kind: model.FieldMeta}, Value: "x"}},
		{"fractional term id", model.Change{Path: model.FieldPath{Kind: model.FieldTerms, Key: "tags"}, Value: []any{1.5}}},
		{"terms not a list", model.Change{Path: model.FieldPath{Kind: model.FieldTerms, Key: "tags"}, Value: "3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.ApplyChanges(ctx, 1, []model.Change{tt.change})
			assert.Error(t, err)
		})
	}

	assert.False(t, env.get(t, 1).Dirty)

	_, err := env.svc.UpdateField(ctx, 404, "title", "x")
	assert.ErrorIs(t, err, mirror.ErrNotFound)

	_, err = env.svc.UpdateField(ctx, 1, "nonsense", "x")
	assert.Error(t, err)
}

func TestDiff(t *testing.T) {
	env := newTestEnv(t)
	env.seedAndPull(t, 1)
	ctx := context.Background()

	diffs, err := env.svc.Diff(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, diffs)

	_, err = env.svc.UpdateField(ctx, 1, "title", "changed")
	require.NoError(t, err)
	_, err = env.svc.SetMeta(ctx, 1, "views", float64(99))
	require.NoError(t, err)

	diffs, err = env.svc.Diff(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []mirror.FieldDiff{
		{Path: "title", Baseline: "Post 1", Current: "changed"},
		{Path: "meta.views", Baseline: float64(10), Current: float64(99)},
	}, diffs)
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t)
	env.seedAndPull(t, 1)
	ctx := context.Background()

	for _, title := range []string{"a", "b", "c"} {
		_, err := env.svc.UpdateField(ctx, 1, "title", title)
		require.NoError(t, err)
	}

	entries, err := env.svc.History(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "title", entries[0].FieldPath)
	assert.JSONEq(t, `"c"`, entries[0].NewValue)
	assert.JSONEq(t, `"b"`, entries[0].OldValue)
	assert.JSONEq(t, `"b"`, entries[1].NewValue)
}

func TestDeleteResource(t *testing.T) {
	env := newTestEnv(t)
	env.seedAndPull(t, 1, 2, 3)
	ctx := context.Background()

	t.Run("local only", func(t *testing.T) {
		require.NoError(t, env.svc.DeleteResource(ctx, 1, false))
		_, err := env.svc.GetResource(ctx, 1)
		assert.ErrorIs(t, err, mirror.ErrNotFound)
		_, ok := env.remote.Resource("posts", 1)
		assert.True(t, ok)
	})

	t.Run("with remote", func(t *testing.T) {
		require.NoError(t, env.svc.DeleteResource(ctx, 2, true))
		_, ok := env.remote.Resource("posts", 2)
		assert.False(t, ok)
		_, err := env.svc.GetResource(ctx, 2)
		assert.ErrorIs(t, err, mirror.ErrNotFound)
	})

	t.Run("already gone remotely", func(t *testing.T) {
		require.NoError(t, env.remote.Delete(ctx, "posts", 3))
		require.NoError(t, env.svc.DeleteResource(ctx, 3, true))
		_, err := env.svc.GetResource(ctx, 3)
		assert.ErrorIs(t, err, mirror.ErrNotFound)
	})

	t.Run("remote failure keeps local copy", func(t *testing.T) {
		env.seedAndPull(t, 4)
		env.remote.SetInterceptor(func(_ context.Context, c remote.Call) error {
			if c.Op == remote.OpDelete {
				return &mirror.RemoteError{Op: "delete", StatusCode: 403, Detail: "forbidden"}
			}
			return nil
		})
		defer env.remote.SetInterceptor(nil)

		err := env.svc.DeleteResource(ctx, 4, true)
		var rErr *mirror.RemoteError
		require.True(t, errors.As(err, &rErr))
		assert.Equal(t, 403, rErr.StatusCode)
		_, err = env.svc.GetResource(ctx, 4)
		assert.NoError(t, err)
	})

	t.Run("missing", func(t *testing.T) {
		assert.ErrorIs(t, env.svc.DeleteResource(ctx, 404, false), mirror.ErrNotFound)
	})
}

func TestSetPluginData_MarksDirtyAndPushes(t *testing.T) {
	env := newTestEnv(t)
	_, err := plugins.Enable(env.svc.Pipeline(), []string{"seo"})
	require.NoError(t, err)
	ctx := context.Background()

	seeded := remotePost(1, t0)
	seeded.Meta["_seo_title"] = "Original SEO"
	env.remote.Seed(seeded)
	_, err = env.svc.SyncAll(ctx, mirror.SyncOptions{Type: "posts"})
	require.NoError(t, err)

	pulled := env.get(t, 1)
	assert.NotContains(t, pulled.Meta, "_seo_title")
	assert.Equal(t, "Original SEO", pulled.PluginData["seo"]["title"])

	require.NoError(t, env.svc.SetPluginData(ctx, 1, "seo", "title", "Better SEO"))
	assert.True(t, env.get(t, 1).Dirty)

	report, err := env.svc.PushAll(ctx, mirror.PushOptions{})
	require.NoError(t, err)
	require.Equal(t, mirror.StatusComplete, report.Status())

	got, _ := env.remote.Resource("posts", 1)
	assert.Equal(t, "Better SEO", got.Meta["_seo_title"])

	pushed := env.get(t, 1)
	assert.False(t, pushed.Dirty)
	assert.NotContains(t, pushed.Meta, "_seo_title")
	assert.Equal(t, "Better SEO", pushed.PluginData["seo"]["title"])
	env.requireDirtyInvariant(t)

	assert.Error(t, env.svc.SetPluginData(ctx, 1, "", "title", "x"))
}

func TestStatus_IncludesConfiguredTypes(t *testing.T) {
	env := newTestEnv(t)
	env.seedAndPull(t, 1, 2)
	ctx := context.Background()

	_, err := env.svc.CreateResource(ctx, &model.Resource{Type: "posts", Title: "new"})
	require.NoError(t, err)

	status, err := env.svc.Status(ctx)
	require.NoError(t, err)
	require.Len(t, status, 2)
	assert.Equal(t, &model.TypeStatus{Type: "posts", Total: 3, Dirty: 1, LocalOnly: 1}, status[0])
	assert.Equal(t, &model.TypeStatus{Type: "pages"}, status[1])
}

func TestSyncAll_RemoteSEODeletionIsNotPushedBack(t *testing.T) {
	env := newTestEnv(t)
	_, err := plugins.Enable(env.svc.Pipeline(), []string{"seo"})
	require.NoError(t, err)
	ctx := context.Background()

	seeded := remotePost(1, t0)
	seeded.Meta["_seo_title"] = "Old SEO"
	env.remote.Seed(seeded)
	_, err = env.svc.SyncAll(ctx, mirror.SyncOptions{Type: "posts"})
	require.NoError(t, err)
	require.Equal(t, "Old SEO", env.get(t, 1).PluginData["seo"]["title"])

	env.clock.Advance(time.Minute)
	require.NoError(t, env.remote.Edit("posts", 1, func(r *model.RemoteResource) {
		delete(r.Meta, "_seo_title")
	}))
	_, err = env.svc.SyncAll(ctx, mirror.SyncOptions{Type: "posts"})
	require.NoError(t, err)

	pulled := env.get(t, 1)
	assert.False(t, pulled.Dirty)
	assert.NotContains(t, pulled.PluginData["seo"], "title")

	_, err = env.svc.UpdateField(ctx, 1, "title", "Edited")
	require.NoError(t, err)
	report, err := env.svc.PushAll(ctx, mirror.PushOptions{})
	require.NoError(t, err)
	require.Equal(t, mirror.StatusComplete, report.Status())

	got, _ := env.remote.Resource("posts", 1)
	assert.Equal(t, "Edited", got.Title)
	assert.NotContains(t, got.Meta, "_seo_title")
	env.requireDirtyInvariant(t)
}
