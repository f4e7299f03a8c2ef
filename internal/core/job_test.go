package core

import (
	"errors"
	"testing"
	"time"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to JobStatus
		want     bool
	}{
		{JobPending, JobProcessing, true},
		{JobPending, JobFailed, true},
		{JobPending, JobCompleted, false},
		{JobPending, JobPaused, false},
		{JobProcessing, JobPaused, true},
		{JobProcessing, JobCompleted, true},
		{JobProcessing, JobFailed, true},
		{JobProcessing, JobPending, false},
		{JobProcessing, JobProcessing, true},
		{JobPaused, JobProcessing, true},
		{JobPaused, JobFailed, true},
		{JobPaused, JobCompleted, false},
		{JobCompleted, JobProcessing, false},
		{JobCompleted, JobCompleted, false},
		{JobFailed, JobPaused, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestUpdateStatus_Timestamps(t *testing.T) {
	job := Job{Status: JobPending, TotalRows: 2}

	if err := UpdateStatus(&job, JobProcessing, ProgressDelta{}, testNow); err != nil {
		t.Fatalf("UpdateStatus(processing) error = %v", err)
	}
	if job.StartedAt == nil || !job.StartedAt.Equal(testNow) {
		t.Fatalf("StartedAt = %v, want %v", job.StartedAt, testNow)
	}

	later := testNow.Add(time.Minute)
	if err := UpdateStatus(&job, JobPaused, ProgressDelta{}, later); err != nil {
		t.Fatalf("UpdateStatus(paused) error = %v", err)
	}
	if err := UpdateStatus(&job, JobProcessing, ProgressDelta{}, later); err != nil {
		t.Fatalf("UpdateStatus(resume) error = %v", err)
	}
	if !job.StartedAt.Equal(testNow) {
		t.Errorf("StartedAt moved on resume: %v", job.StartedAt)
	}
	if job.CompletedAt != nil {
		t.Errorf("CompletedAt = %v before terminal status", job.CompletedAt)
	}

	if err := UpdateStatus(&job, JobCompleted, ProgressDelta{Successful: 2}, later); err != nil {
		t.Fatalf("UpdateStatus(completed) error = %v", err)
	}
	if job.CompletedAt == nil || !job.CompletedAt.Equal(later) {
		t.Errorf("CompletedAt = %v, want %v", job.CompletedAt, later)
	}
}

func TestUpdateStatus_Counters(t *testing.T) {
	job := Job{Status: JobProcessing, TotalRows: 3}

	steps := []ProgressDelta{
		{Successful: 1},
		{Failed: 1, Errors: []string{"row 2: title: required field is empty"}},
		{Successful: 1, Warnings: []string{"row 3: city \"atlantis\" not found in cities; left empty"}},
	}
	for i, d := range steps {
		if err := UpdateStatus(&job, JobProcessing, d, testNow); err != nil {
			t.Fatalf("step %d: UpdateStatus() error = %v", i, err)
		}
		if err := checkInvariants(job); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	if job.ProcessedRows != 3 || job.SuccessfulRows != 2 || job.FailedRows != 1 {
		t.Errorf("counters = %d/%d/%d, want 3/2/1", job.ProcessedRows, job.SuccessfulRows, job.FailedRows)
	}
	if len(job.Errors) != 1 || len(job.Warnings) != 1 {
		t.Errorf("errors=%v warnings=%v, want one of each", job.Errors, job.Warnings)
	}
}

func TestUpdateStatus_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		job     Job
		status  JobStatus
		delta   ProgressDelta
		wantErr error
	}{
		{
			name:    "terminal job",
			job:     Job{Status: JobCompleted, TotalRows: 1},
			status:  JobProcessing,
			wantErr: ErrInvalidTransition,
		},
		{
			name:    "skip processing",
			job:     Job{Status: JobPending, TotalRows: 1},
			status:  JobCompleted,
			wantErr: ErrInvalidTransition,
		},
		{
			name:   "negative delta",
			job:    Job{Status: JobProcessing, TotalRows: 1},
			status: JobProcessing,
			delta:  ProgressDelta{Successful: -1},
		},
		{
			name:   "exceeds total",
			job:    Job{Status: JobProcessing, TotalRows: 1, ProcessedRows: 1, SuccessfulRows: 1},
			status: JobProcessing,
			delta:  ProgressDelta{Failed: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.job
			err := UpdateStatus(&tt.job, tt.status, tt.delta, testNow)
			if err == nil {
				t.Fatal("UpdateStatus() expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("UpdateStatus() error = %v, want %v", err, tt.wantErr)
			}
			if tt.job.Status != before.Status || tt.job.ProcessedRows != before.ProcessedRows {
				t.Errorf("job mutated on error: %+v", tt.job)
			}
		})
	}
}

func TestProgress_Percent(t *testing.T) {
	tests := []struct {
		p    Progress
		want int
	}{
		{Progress{TotalRows: 4, ProcessedRows: 1}, 25},
		{Progress{TotalRows: 3, ProcessedRows: 3}, 100},
		{Progress{TotalRows: 0, Status: JobProcessing}, 0},
		{Progress{TotalRows: 0, Status: JobCompleted}, 100},
	}

	for _, tt := range tests {
		if got := tt.p.Percent(); got != tt.want {
			t.Errorf("Percent(%+v) = %d, want %d", tt.p, got, tt.want)
		}
	}
}

func TestParseTargetType(t *testing.T) {
	for _, tt := range TargetTypes {
		got, err := ParseTargetType(string(tt))
		if err != nil || got != tt {
			t.Errorf("ParseTargetType(%q) = %q, %v", tt, got, err)
		}
		if tt.Collection() == "" {
			t.Errorf("%q has no collection", tt)
		}
	}
	if _, err := ParseTargetType("itinerary"); err == nil {
		t.Error("ParseTargetType(itinerary) expected error")
	}
}
