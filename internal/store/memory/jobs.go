package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JonMunkholm/bulkimport/internal/core"
)

// JobRepository keeps jobs, their stored rows and ledger records in memory.
type JobRepository struct {
	mu     sync.RWMutex
	jobs   map[string]core.Job
	rows   map[string][]core.RawRow
	ledger map[string][]core.GeneratedPageRecord
}

// NewJobRepository creates an empty repository.
func NewJobRepository() *JobRepository {
	return &JobRepository{
		jobs:   make(map[string]core.Job),
		rows:   make(map[string][]core.RawRow),
		ledger: make(map[string][]core.GeneratedPageRecord),
	}
}

func (r *JobRepository) CreateJob(_ context.Context, job core.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	r.jobs[job.ID] = cloneJob(job)
	return nil
}

func (r *JobRepository) SaveJob(_ context.Context, job core.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.ID]; !exists {
		return fmt.Errorf("%w: %s", core.ErrJobNotFound, job.ID)
	}
	r.jobs[job.ID] = cloneJob(job)
	return nil
}

func (r *JobRepository) GetJob(_ context.Context, id string) (core.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return core.Job{}, fmt.Errorf("%w: %s", core.ErrJobNotFound, id)
	}
	return cloneJob(job), nil
}

func (r *JobRepository) StoreRows(_ context.Context, jobID string, rows []core.RawRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[jobID]; !ok {
		return fmt.Errorf("%w: %s", core.ErrJobNotFound, jobID)
	}
	r.rows[jobID] = append([]core.RawRow(nil), rows...)
	return nil
}

func (r *JobRepository) LoadRows(_ context.Context, jobID string) ([]core.RawRow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.jobs[jobID]; !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrJobNotFound, jobID)
	}
	return append([]core.RawRow(nil), r.rows[jobID]...), nil
}

// AppendLedger rejects a second record for the same row.
func (r *JobRepository) AppendLedger(_ context.Context, rec core.GeneratedPageRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.ledger[rec.JobID] {
		if existing.RowID == rec.RowID {
			return fmt.Errorf("ledger already has row %d of job %s", rec.RowID, rec.JobID)
		}
	}
	r.ledger[rec.JobID] = append(r.ledger[rec.JobID], rec)
	return nil
}

func (r *JobRepository) ListLedger(_ context.Context, jobID string) ([]core.GeneratedPageRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := append([]core.GeneratedPageRecord(nil), r.ledger[jobID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].RowID < out[j].RowID })
	return out, nil
}

// PurgeFinishedRows drops stored rows of jobs that completed before the cutoff.
func (r *JobRepository) PurgeFinishedRows(_ context.Context, completedBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var purged int64
	for id, job := range r.jobs {
		if job.Status.Terminal() && job.CompletedAt != nil && job.CompletedAt.Before(completedBefore) {
			purged += int64(len(r.rows[id]))
			delete(r.rows, id)
		}
	}
	return purged, nil
}

func cloneJob(j core.Job) core.Job {
	j.Errors = append([]string{}, j.Errors...)
	j.Warnings = append([]string{}, j.Warnings...)
	return j
}
