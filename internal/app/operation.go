package app

import (
	"strings"

	"mirror-go/internal/mirror"
)

// Run status values stored in sync_runs.
const (
	RunSuccess = "success"
	RunPartial = "partial"
	RunError   = "error"
)

// Operation tracks a CLI operation that may mutate the mirror.
// Operations are created in memory with ID=0. Only mutating commands
// persist them as a sync run, and the run id versions the database backup.
type Operation struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string
	Summary    string
}

// NewOperation creates a new in-memory operation.
func NewOperation(operation string, parameters ...string) *Operation {
	return &Operation{
		Operation:  operation,
		Parameters: strings.Join(parameters, " "),
		Status:     RunSuccess,
	}
}

// Persisted returns true if this operation has been saved as a sync run.
func (op *Operation) Persisted() bool {
	return op.ID != 0
}

// Fail marks the operation as failed. The first error wins.
func (op *Operation) Fail(err error) {
	if err == nil || op.Status == RunError {
		return
	}
	op.Status = RunError
	op.Summary = err.Error()
}

// Record stores the outcome of an engine run. A failure recorded earlier
// is kept.
func (op *Operation) Record(status mirror.ReportStatus, summary string) {
	if op.Status == RunError {
		return
	}
	if status == mirror.StatusPartial {
		op.Status = RunPartial
	}
	op.Summary = summary
}
