package mirror_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mirror-go/internal/database"
	"mirror-go/internal/mirror"
	"mirror-go/internal/model"
	"mirror-go/internal/remote"
	"mirror-go/internal/testutil"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type testEnv struct {
	clock  *testutil.StubClock
	db     *database.SQLiteDatabase
	remote *remote.MemoryRemote
	svc    *mirror.Service
}

func newTestEnv(t *testing.T, tune ...func(*mirror.Options)) *testEnv {
	t.Helper()

	clock := testutil.NewStubClock(t0)
	db := testutil.NewTestDatabase(t, clock)
	rem := testutil.NewTestRemote(clock)

	opts := mirror.Options{
		ResourceTypes:   []string{"posts", "pages"},
		Taxonomies:      []string{"tags"},
		PageSize:        2,
		PushConcurrency: 4,
		RemoteTimeout:   5 * time.Second,
	}
	for _, fn := range tune {
		fn(&opts)
	}

	return &testEnv{
		clock:  clock,
		db:     db,
		remote: rem,
		svc:    mirror.NewService(db, rem, nil, mirror.NewNopLogger(), clock, opts),
	}
}

func remotePost(id int64, modified time.Time) model.RemoteResource {
	return model.RemoteResource{
		ID:         id,
		Type:       "posts",
		Title:      fmt.Sprintf("Post %d", id),
		Slug:       fmt.Sprintf("post-%d", id),
		Status:     model.StatusPublished,
		Content:    fmt.Sprintf("<p>body %d</p>", id),
		Meta:       map[string]any{"views": float64(id * 10)},
		Terms:      map[string][]int64{"tags": {3}},
		CreatedAt:  modified.Add(-time.Hour),
		ModifiedAt: modified,
	}
}

// seedAndPull stores posts on the remote and pulls them into the mirror.
func (e *testEnv) seedAndPull(t *testing.T, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		e.remote.Seed(remotePost(id, t0))
	}
	report, err := e.svc.SyncAll(context.Background(), mirror.SyncOptions{Type: "posts"})
	require.NoError(t, err)
	require.Empty(t, report.Errors)
}

func (e *testEnv) get(t *testing.T, id int64) *model.Resource {
	t.Helper()
	r, err := e.svc.GetResource(context.Background(), id)
	require.NoError(t, err)
	return r
}

// requireDirtyInvariant checks that every resource is dirty exactly when it
// has a snapshot, and that a dirty resource really differs from it.
func (e *testEnv) requireDirtyInvariant(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	all, err := e.db.ListResources(ctx, model.ResourceFilter{})
	require.NoError(t, err)
	for _, r := range all {
		snap, err := e.db.GetSnapshot(ctx, r.ID)
		require.NoError(t, err)
		require.Equal(t, r.Dirty, snap != nil, "resource %d: dirty=%v snapshot=%v", r.ID, r.Dirty, snap != nil)
		if snap != nil && !snap.IsNew {
			require.False(t, r.State().Equal(snap.State), "resource %d is dirty but equals its snapshot", r.ID)
		}
	}
}
