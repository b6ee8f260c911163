package mirror

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushReport_Status(t *testing.T) {
	var empty PushReport
	assert.Equal(t, StatusNoop, empty.Status())

	cancelled := PushReport{Cancelled: true}
	assert.Equal(t, StatusPartial, cancelled.Status())

	var ok PushReport
	ok.add(&PushResult{ResourceID: 1, Outcome: OutcomeSuccess})
	assert.Equal(t, StatusComplete, ok.Status())

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var mixed PushReport
	mixed.add(&PushResult{ResourceID: 1, Outcome: OutcomeSuccess})
	mixed.add(&PushResult{ResourceID: 2, Outcome: OutcomeFailure, Err: errors.New("boom")})
	mixed.add(&PushResult{ResourceID: 3, Outcome: OutcomeConflict, Err: &ConflictError{
		ResourceID: 3, RemoteModified: t0.Add(time.Hour), LocalBaselineModified: t0,
	}})
	assert.Equal(t, StatusPartial, mixed.Status())
	assert.Equal(t, 1, mixed.Succeeded())
	require.Len(t, mixed.Conflicts, 1)
	assert.Equal(t, int64(3), mixed.Conflicts[0].ResourceID)
	require.Len(t, mixed.Failures, 1)
	assert.Equal(t, "partial: 1 succeeded, 1 conflicts, 1 failed", mixed.String())
}

func TestRemoteError(t *testing.T) {
	notFound := &RemoteError{Op: "GET /resources/posts/9", StatusCode: 404, Detail: "no post"}
	assert.ErrorIs(t, notFound, ErrNotFound)
	assert.Equal(t, "GET /resources/posts/9: remote returned 404: no post", notFound.Error())

	server := &RemoteError{Op: "PUT", StatusCode: 500}
	assert.NotErrorIs(t, server, ErrNotFound)

	cause := errors.New("dial tcp: connection refused")
	transport := &RemoteError{Op: "GET", Err: cause}
	assert.ErrorIs(t, transport, cause)
	assert.Contains(t, transport.Error(), "connection refused")
}

func TestSyncReport_Status(t *testing.T) {
	r := SyncReport{Fetched: 2, Upserted: 2}
	assert.Equal(t, StatusComplete, r.Status())

	r.Errors = append(r.Errors, &SyncError{Type: "posts", Page: 2, Err: errors.New("timeout")})
	assert.Equal(t, StatusPartial, r.Status())
	assert.Equal(t, "posts page 2: timeout", r.Errors[0].Error())
}
