package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RowOutcome is what the job loop knows about one row once it is done with it.
type RowOutcome struct {
	TemplateID string
	TargetType TargetType
	TargetID   string
	Title      string
	Slug       string
	Success    bool
	Errors     []string
	Warnings   []string
}

// Ledger is the append-only generated-page log. One record per row, never
// updated; a failed row gets a failed record rather than a retry in place.
type Ledger struct {
	repo JobRepository
	now  func() time.Time
}

// NewLedger creates a ledger over repo.
func NewLedger(repo JobRepository) *Ledger {
	return &Ledger{repo: repo, now: time.Now}
}

// Record appends the outcome for rowID of jobID.
func (l *Ledger) Record(ctx context.Context, jobID string, rowID int, out RowOutcome) (GeneratedPageRecord, error) {
	rec := GeneratedPageRecord{
		ID:               uuid.NewString(),
		JobID:            jobID,
		RowID:            rowID,
		TemplateID:       out.TemplateID,
		TargetType:       out.TargetType,
		TargetCollection: out.TargetType.Collection(),
		Title:            out.Title,
		Slug:             out.Slug,
		Status:           PageFailed,
		GenerationErrors: append([]string{}, out.Errors...),
		Warnings:         append([]string(nil), out.Warnings...),
		CreatedAt:        l.now().UTC(),
	}
	if out.Success {
		id := out.TargetID
		rec.TargetID = &id
		rec.Status = PageDraft
	}

	if err := l.repo.AppendLedger(ctx, rec); err != nil {
		return GeneratedPageRecord{}, fmt.Errorf("append ledger row %d: %w", rowID, err)
	}
	return rec, nil
}

// ListByJob returns every record of jobID in row order.
func (l *Ledger) ListByJob(ctx context.Context, jobID string) ([]GeneratedPageRecord, error) {
	return l.repo.ListLedger(ctx, jobID)
}

// ProcessedRowIDs returns the set of rows of jobID already in the ledger.
func (l *Ledger) ProcessedRowIDs(ctx context.Context, jobID string) (map[int]bool, error) {
	recs, err := l.repo.ListLedger(ctx, jobID)
	if err != nil {
		return nil, err
	}
	done := make(map[int]bool, len(recs))
	for _, r := range recs {
		done[r.RowID] = true
	}
	return done, nil
}
