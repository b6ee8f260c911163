package mirror

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"mirror-go/internal/hooks"
)

var (
	// ErrNotFound is returned when a resource or term does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNoLocalChanges is returned when discarding changes of a clean resource.
	ErrNoLocalChanges = errors.New("no local changes")
)

// TransformError is a hook handler failure.
type TransformError = hooks.TransformError

// ConflictError reports that the remote copy changed after the local baseline
// was captured.
type ConflictError struct {
	ResourceID            int64
	RemoteModified        time.Time
	LocalBaselineModified time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("resource %d modified remotely at %s after local baseline %s",
		e.ResourceID,
		e.RemoteModified.UTC().Format(time.RFC3339),
		e.LocalBaselineModified.UTC().Format(time.RFC3339))
}

// RemoteError is a non-2xx response or transport failure from the remote API.
// StatusCode is 0 for transport failures.
type RemoteError struct {
	Op         string
	StatusCode int
	Code       string // server-provided error code, if any
	Detail     string
	Err        error
}

func (e *RemoteError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Detail != "":
		return fmt.Sprintf("%s: remote returned %d: %s", e.Op, e.StatusCode, e.Detail)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: remote returned %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: remote failure", e.Op)
	}
}

func (e *RemoteError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	if e.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}
