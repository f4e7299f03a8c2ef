package core

// job.go holds the BulkUploadJob state machine.
//
//	pending ──> processing ──> completed
//	               │  ^    └──> failed
//	               v  │
//	              paused ─────> failed
//
// UpdateStatus is the only mutator. It never decrements a counter and keeps
// ProcessedRows == SuccessfulRows + FailedRows <= TotalRows after every call.

import (
	"fmt"
	"time"
)

// allowedTransitions lists legal status changes. Staying in the same
// non-terminal status is always allowed and only applies the delta.
var allowedTransitions = map[JobStatus][]JobStatus{
	JobPending:    {JobProcessing, JobFailed},
	JobProcessing: {JobPaused, JobCompleted, JobFailed},
	JobPaused:     {JobProcessing, JobFailed},
}

// ProgressDelta is the change folded into a job by one UpdateStatus call.
type ProgressDelta struct {
	Successful int
	Failed     int
	Errors     []string
	Warnings   []string
}

// CanTransition reports whether from -> to is legal.
func CanTransition(from, to JobStatus) bool {
	if from == to {
		return !from.Terminal()
	}
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// UpdateStatus moves job to newStatus and applies delta. It sets StartedAt on
// the first entry to processing and CompletedAt on entry to a terminal status.
// On error job is left untouched.
func UpdateStatus(job *Job, newStatus JobStatus, delta ProgressDelta, now time.Time) error {
	if !CanTransition(job.Status, newStatus) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, newStatus)
	}
	if delta.Successful < 0 || delta.Failed < 0 {
		return fmt.Errorf("negative progress delta (successful=%d, failed=%d)", delta.Successful, delta.Failed)
	}
	if job.ProcessedRows+delta.Successful+delta.Failed > job.TotalRows {
		return fmt.Errorf("progress would exceed total rows: %d + %d > %d",
			job.ProcessedRows, delta.Successful+delta.Failed, job.TotalRows)
	}

	if newStatus == JobProcessing && job.StartedAt == nil {
		t := now
		job.StartedAt = &t
	}
	if newStatus.Terminal() && job.CompletedAt == nil {
		t := now
		job.CompletedAt = &t
	}

	job.Status = newStatus
	job.SuccessfulRows += delta.Successful
	job.FailedRows += delta.Failed
	job.ProcessedRows = job.SuccessfulRows + job.FailedRows
	job.Errors = append(job.Errors, delta.Errors...)
	job.Warnings = append(job.Warnings, delta.Warnings...)

	return nil
}

// checkInvariants verifies the counter invariants. Used by tests and as a
// guard before persisting a job loaded from storage.
func checkInvariants(job Job) error {
	if job.ProcessedRows != job.SuccessfulRows+job.FailedRows {
		return fmt.Errorf("processed %d != successful %d + failed %d",
			job.ProcessedRows, job.SuccessfulRows, job.FailedRows)
	}
	if job.ProcessedRows > job.TotalRows {
		return fmt.Errorf("processed %d > total %d", job.ProcessedRows, job.TotalRows)
	}
	return nil
}
