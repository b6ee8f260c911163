package remote_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mirror-go/internal/config"
	"mirror-go/internal/mirror"
	"mirror-go/internal/model"
	"mirror-go/internal/remote"
	"mirror-go/internal/testutil"
)

func TestMemoryRemote_ListPages(t *testing.T) {
	clock := testutil.FixedClock()
	m := remote.NewMemoryRemote(clock)
	for _, id := range []int64{5, 1, 3} {
		m.Seed(post(id, "p", clock.Now()))
	}
	ctx := context.Background()

	tests := []struct {
		page, perPage int
		wantIDs       []int64
		wantTotal     int
	}{
		{page: 1, perPage: 2, wantIDs: []int64{1, 3}, wantTotal: 2},
		{page: 2, perPage: 2, wantIDs: []int64{5}, wantTotal: 2},
		{page: 3, perPage: 2, wantIDs: nil, wantTotal: 2},
		{page: 1, perPage: 0, wantIDs: []int64{1, 3, 5}, wantTotal: 1},
	}
	for _, tt := range tests {
		pg, err := m.List(ctx, "posts", tt.page, tt.perPage)
		require.NoError(t, err)
		var ids []int64
		for _, r := range pg.Items {
			ids = append(ids, r.ID)
		}
		assert.Equal(t, tt.wantIDs, ids, "page %d per %d", tt.page, tt.perPage)
		assert.Equal(t, tt.wantTotal, pg.TotalPages)
	}

	empty, err := m.List(ctx, "pages", 1, 10)
	require.NoError(t, err)
	assert.Empty(t, empty.Items)
	assert.Zero(t, empty.TotalPages)
}

func TestMemoryRemote_CreateAssignsIDAndSlug(t *testing.T) {
	clock := testutil.FixedClock()
	m := remote.NewMemoryRemote(clock)
	m.Seed(post(1200, "existing", clock.Now()))

	got, err := m.Create(context.Background(), "posts", model.RemoteResource{Title: "Hello, World!  Again"})
	require.NoError(t, err)
	assert.Equal(t, int64(1201), got.ID)
	assert.Equal(t, "hello-world-again", got.Slug)
	assert.Equal(t, "posts", got.Type)
	assert.NotNil(t, got.Meta)
	assert.True(t, got.CreatedAt.Equal(clock.Now()))
}

func TestMemoryRemote_UpdateMergesTaxonomies(t *testing.T) {
	clock := testutil.FixedClock()
	m := remote.NewMemoryRemote(clock)
	seeded := post(1, "p", clock.Now())
	seeded.Terms = map[string][]int64{"tags": {3}, "categories": {9}}
	m.Seed(seeded)

	clock.Advance(time.Hour)
	update := seeded.Clone()
	update.Terms = map[string][]int64{"tags": {}}
	update.Meta = map[string]any{}

	got, err := m.Update(context.Background(), "posts", 1, update)
	require.NoError(t, err)
	assert.Equal(t, []int64{}, got.Terms["tags"])
	assert.Equal(t, []int64{9}, got.Terms["categories"])
	assert.Empty(t, got.Meta)
	assert.True(t, got.ModifiedAt.Equal(clock.Now()))
	assert.True(t, got.CreatedAt.Equal(seeded.CreatedAt))
}

func TestMemoryRemote_Edit(t *testing.T) {
	clock := testutil.FixedClock()
	m := remote.NewMemoryRemote(clock)
	m.Seed(post(1, "p", clock.Now()))

	clock.Advance(time.Minute)
	require.NoError(t, m.Edit("posts", 1, func(r *model.RemoteResource) { r.Title = "changed" }))

	got, ok := m.Resource("posts", 1)
	require.True(t, ok)
	assert.Equal(t, "changed", got.Title)
	assert.True(t, got.ModifiedAt.Equal(clock.Now()))

	assert.ErrorIs(t, m.Edit("posts", 2, func(*model.RemoteResource) {}), mirror.ErrNotFound)
}

func TestMemoryRemote_Interceptor(t *testing.T) {
	clock := testutil.FixedClock()
	m := remote.NewMemoryRemote(clock)
	m.Seed(post(1, "p", clock.Now()))

	boom := &mirror.RemoteError{Op: "update", StatusCode: 500, Detail: "boom"}
	m.SetInterceptor(func(_ context.Context, c remote.Call) error {
		if c.Op == remote.OpUpdate && c.ID == 1 {
			return boom
		}
		return nil
	})

	_, err := m.Update(context.Background(), "posts", 1, post(1, "new", clock.Now()))
	assert.True(t, errors.Is(err, boom))

	got, _ := m.Resource("posts", 1)
	assert.Equal(t, "p", got.Title)

	_, err = m.Get(context.Background(), "posts", 1)
	require.NoError(t, err)

	assert.Equal(t, 1, m.CountCalls(remote.OpUpdate))
	assert.Equal(t, []remote.Call{
		{Op: remote.OpUpdate, Type: "posts", ID: 1},
		{Op: remote.OpGet, Type: "posts", ID: 1},
	}, m.Calls())
}

func TestMemoryRemote_CancelledContext(t *testing.T) {
	m := remote.NewMemoryRemote(testutil.FixedClock())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.List(ctx, "posts", 1, 10)
	assert.ErrorIs(t, err, context.Canceled)

	var rErr *mirror.RemoteError
	require.ErrorAs(t, err, &rErr)
	assert.Zero(t, rErr.StatusCode)
}

func TestNewRemoteFromConfig(t *testing.T) {
	clock := testutil.FixedClock()

	r, err := remote.NewRemoteFromConfig(configFor("memory", ""), clock)
	require.NoError(t, err)
	assert.IsType(t, &remote.MemoryRemote{}, r)

	r, err = remote.NewRemoteFromConfig(configFor("http", "https://cms.example.com/api"), clock)
	require.NoError(t, err)
	assert.IsType(t, &remote.HTTPRemote{}, r)

	_, err = remote.NewRemoteFromConfig(configFor("http", ""), clock)
	assert.Error(t, err)

	_, err = remote.NewRemoteFromConfig(configFor("grpc", ""), clock)
	assert.Error(t, err)
}

func configFor(typ, baseURL string) config.RemoteConfig {
	return config.RemoteConfig{Type: typ, BaseURL: baseURL}
}
