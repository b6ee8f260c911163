package mirror

import (
	"errors"
	"fmt"
	"time"
)

// ReportStatus distinguishes full success from partial outcomes.
type ReportStatus string

const (
	StatusNoop     ReportStatus = "noop"
	StatusComplete ReportStatus = "complete"
	StatusPartial  ReportStatus = "partial"
)

// Outcome is the result of pushing a single resource.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFailure  Outcome = "failure"
	OutcomeConflict Outcome = "conflict"
)

// PushResult is the per-resource entry of a PushReport.
type PushResult struct {
	ResourceID int64 // id before the push
	RemoteID   int64 // id after the push; differs for created resources
	Type       string
	Outcome    Outcome
	Err        error   // nil on success
	Warnings   []error // soft transform failures
}

// Conflict is a push refused because the remote copy moved on.
type Conflict struct {
	ResourceID            int64
	RemoteModified        time.Time
	LocalBaselineModified time.Time
}

// PushReport aggregates the outcome of a push batch.
type PushReport struct {
	Results   []*PushResult
	Conflicts []*Conflict
	Failures  []*PushResult

	// Cancelled is set when the batch stopped before every selected
	// resource was attempted.
	Cancelled bool
}

func (r *PushReport) add(res *PushResult) {
	r.Results = append(r.Results, res)
	switch res.Outcome {
	case OutcomeFailure:
		r.Failures = append(r.Failures, res)
	case OutcomeConflict:
		var c *ConflictError
		if errors.As(res.Err, &c) {
			r.Conflicts = append(r.Conflicts, &Conflict{
				ResourceID:            c.ResourceID,
				RemoteModified:        c.RemoteModified,
				LocalBaselineModified: c.LocalBaselineModified,
			})
		}
	}
}

// Succeeded returns the number of resources pushed successfully.
func (r *PushReport) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == OutcomeSuccess {
			n++
		}
	}
	return n
}

// Status returns noop when nothing was attempted, complete when every
// attempted resource succeeded, and partial otherwise.
func (r *PushReport) Status() ReportStatus {
	switch {
	case len(r.Results) == 0 && !r.Cancelled:
		return StatusNoop
	case r.Cancelled || len(r.Failures) > 0 || len(r.Conflicts) > 0:
		return StatusPartial
	default:
		return StatusComplete
	}
}

func (r *PushReport) String() string {
	return fmt.Sprintf("%s: %d succeeded, %d conflicts, %d failed",
		r.Status(), r.Succeeded(), len(r.Conflicts), len(r.Failures))
}

// SyncError is a resource or page that could not be pulled.
type SyncError struct {
	Type       string
	Page       int   // set for page fetch failures
	ResourceID int64 // set for resource failures
	Err        error
}

func (e *SyncError) Error() string {
	if e.ResourceID != 0 {
		return fmt.Sprintf("%s %d: %v", e.Type, e.ResourceID, e.Err)
	}
	return fmt.Sprintf("%s page %d: %v", e.Type, e.Page, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// Warning is a soft failure attached to a resource that was still processed.
type Warning struct {
	ResourceID int64
	Err        error
}

// SyncReport aggregates the outcome of a pull.
type SyncReport struct {
	Fetched       int
	Upserted      int
	SkippedDirty  int
	TermsUpserted int
	Errors        []*SyncError
	Warnings      []*Warning
	Cancelled     bool
}

// Status returns complete only when every page and resource was processed.
func (r *SyncReport) Status() ReportStatus {
	if r.Cancelled || len(r.Errors) > 0 {
		return StatusPartial
	}
	return StatusComplete
}

func (r *SyncReport) String() string {
	return fmt.Sprintf("%s: fetched %d, upserted %d, skipped dirty %d, errors %d",
		r.Status(), r.Fetched, r.Upserted, r.SkippedDirty, len(r.Errors))
}
