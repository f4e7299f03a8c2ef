package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/bulkimport/internal/logging"
)

// DefaultJobTimeout bounds a single run of the row loop.
const DefaultJobTimeout = 30 * time.Minute

// ErrFileTooLarge is returned by ImportFile when the upload exceeds the limit.
var ErrFileTooLarge = errors.New("file exceeds maximum upload size")

// ServiceConfig tunes the job runner.
type ServiceConfig struct {
	MaxConcurrentJobs int
	MaxWait           time.Duration
	JobTimeout        time.Duration
	MaxFileSize       int64
}

// Service runs import jobs: it owns job state transitions and drives each
// job's ordered row loop.
type Service struct {
	templates  *TemplateRegistry
	repo       JobRepository
	ledger     *Ledger
	store      ContentStore
	processors Processors
	limiter    *JobLimiter
	publisher  ProgressPublisher
	cfg        ServiceConfig
	now        func() time.Time

	mu   sync.RWMutex
	runs map[string]*jobRun
}

// jobRun is the in-memory state of one job. mu guards job and gen; gen is
// bumped every time a loop is launched so a loop outlived by a pause/resume
// cycle stops instead of racing the new one.
type jobRun struct {
	mu      sync.Mutex
	job     Job
	gen     int
	running bool
	done    chan struct{}
	cancel  context.CancelFunc

	listenerMu sync.Mutex
	listeners  []chan Progress
}

// Option customizes a Service.
type Option func(*Service)

// WithPublisher mirrors every progress change to p.
func WithPublisher(p ProgressPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
		s.ledger.now = now
	}
}

// NewService wires the job runner. Pass a BreakerStore as store to trip
// jobs to failed when the content store goes down.
func NewService(templates *TemplateRegistry, repo JobRepository, store ContentStore, cfg ServiceConfig, opts ...Option) *Service {
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}
	s := &Service{
		templates:  templates,
		repo:       repo,
		ledger:     NewLedger(repo),
		store:      store,
		processors: NewProcessors(store),
		limiter:    NewJobLimiter(cfg.MaxConcurrentJobs, cfg.MaxWait),
		cfg:        cfg,
		now:        time.Now,
		runs:       make(map[string]*jobRun),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Templates returns the registry the service validates against.
func (s *Service) Templates() *TemplateRegistry { return s.templates }

// Limiter returns the running-job limiter.
func (s *Service) Limiter() *JobLimiter { return s.limiter }

// CreateJobParams are the immutable fields of a new job.
type CreateJobParams struct {
	TemplateID     string
	JobName        string
	SourceFilename string
	FileSizeBytes  int64
	TotalRows      int
}

// CreateJob registers a pending job against an active template.
func (s *Service) CreateJob(ctx context.Context, p CreateJobParams) (Job, error) {
	if _, err := s.templates.Active(p.TemplateID); err != nil {
		return Job{}, err
	}
	if p.TotalRows < 0 {
		return Job{}, fmt.Errorf("total rows must not be negative: %d", p.TotalRows)
	}
	name := p.JobName
	if name == "" {
		name = p.SourceFilename
	}

	job := Job{
		ID:             uuid.NewString(),
		TemplateID:     p.TemplateID,
		JobName:        name,
		SourceFilename: p.SourceFilename,
		FileSizeBytes:  p.FileSizeBytes,
		TotalRows:      p.TotalRows,
		Status:         JobPending,
		Errors:         []string{},
		Warnings:       []string{},
		CreatedAt:      s.now().UTC(),
		SubmittedFrom:  GetIPAddressFromContext(ctx),
		UserAgent:      GetUserAgentFromContext(ctx),
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return Job{}, fmt.Errorf("create job: %w", err)
	}

	s.mu.Lock()
	s.runs[job.ID] = &jobRun{job: job}
	s.mu.Unlock()

	logging.WithFields(ctx, "job_id", job.ID, "template_id", job.TemplateID).
		Info("import job created", "total_rows", job.TotalRows, "file", job.SourceFilename)
	return job, nil
}

// StoreRows persists parsed rows for a pending job.
func (s *Service) StoreRows(ctx context.Context, jobID string, rows []RawRow) error {
	run, err := s.runFor(ctx, jobID)
	if err != nil {
		return err
	}

	run.mu.Lock()
	defer run.mu.Unlock()

	if run.job.Status != JobPending {
		return fmt.Errorf("%w: rows can only be stored on a pending job (status %s)", ErrInvalidTransition, run.job.Status)
	}
	if len(rows) > run.job.TotalRows {
		return fmt.Errorf("%w: %d rows for a job of %d", ErrRowLimitExceeded, len(rows), run.job.TotalRows)
	}
	if err := s.repo.StoreRows(ctx, jobID, rows); err != nil {
		return fmt.Errorf("store rows: %w", err)
	}
	return nil
}

// Start moves a pending job to processing and launches its row loop. It
// returns once the loop is running; use Wait or SubscribeProgress to follow it.
func (s *Service) Start(ctx context.Context, jobID string) error {
	return s.launch(ctx, jobID, JobPending)
}

// Resume moves a paused job back to processing and continues from the first
// row not yet in the ledger. Resuming a job that is already processing is a no-op.
func (s *Service) Resume(ctx context.Context, jobID string) error {
	run, err := s.runFor(ctx, jobID)
	if err != nil {
		return err
	}
	run.mu.Lock()
	already := run.job.Status == JobProcessing && run.running
	run.mu.Unlock()
	if already {
		return nil
	}
	return s.launch(ctx, jobID, JobPaused)
}

// Pause stops the job from dispatching further rows. A row already in flight
// finishes and is counted; nothing is rolled back.
func (s *Service) Pause(ctx context.Context, jobID string) error {
	run, err := s.runFor(ctx, jobID)
	if err != nil {
		return err
	}

	run.mu.Lock()
	if run.job.Status == JobPaused {
		run.mu.Unlock()
		return nil
	}
	if err := UpdateStatus(&run.job, JobPaused, ProgressDelta{}, s.now()); err != nil {
		run.mu.Unlock()
		return err
	}
	s.persistLocked(ctx, run)
	snapshot := run.job
	run.mu.Unlock()

	logging.WithFields(ctx, "job_id", jobID).Info("import job paused",
		"processed_rows", snapshot.ProcessedRows, "total_rows", snapshot.TotalRows)
	return nil
}

// Wait blocks until the job's current loop exits (completed, failed or
// paused) and returns the job.
func (s *Service) Wait(ctx context.Context, jobID string) (Job, error) {
	run, err := s.runFor(ctx, jobID)
	if err != nil {
		return Job{}, err
	}

	run.mu.Lock()
	done := run.done
	run.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return Job{}, ctx.Err()
		}
	}

	run.mu.Lock()
	defer run.mu.Unlock()
	return run.job, nil
}

// GetJob returns a snapshot of a job.
func (s *Service) GetJob(ctx context.Context, jobID string) (Job, error) {
	run, err := s.runFor(ctx, jobID)
	if err != nil {
		return Job{}, err
	}
	run.mu.Lock()
	defer run.mu.Unlock()
	return run.job, nil
}

// GetProgress returns the job's counters, status and messages.
func (s *Service) GetProgress(ctx context.Context, jobID string) (Progress, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return Progress{}, err
	}
	return ProgressOf(job), nil
}

// ListLedger returns the generated-page records of a job in row order.
func (s *Service) ListLedger(ctx context.Context, jobID string) ([]GeneratedPageRecord, error) {
	if _, err := s.runFor(ctx, jobID); err != nil {
		return nil, err
	}
	return s.ledger.ListByJob(ctx, jobID)
}

// SubscribeProgress returns a channel receiving progress snapshots, starting
// with the current one. The channel is closed when the job reaches a terminal
// status or the returned cancel func is called.
func (s *Service) SubscribeProgress(ctx context.Context, jobID string) (<-chan Progress, func(), error) {
	run, err := s.runFor(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan Progress, 16)

	// Holding run.mu orders registration against broadcasts, so the first
	// snapshot is never newer than anything sent after it.
	run.mu.Lock()
	ch <- ProgressOf(run.job)
	if run.job.Status.Terminal() {
		run.mu.Unlock()
		close(ch)
		return ch, func() {}, nil
	}
	run.listenerMu.Lock()
	run.listeners = append(run.listeners, ch)
	run.listenerMu.Unlock()
	run.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() { run.removeListener(ch) })
	}
	return ch, cancel, nil
}

// ImportRequest is a whole-file import.
type ImportRequest struct {
	TemplateID string
	JobName    string
	Filename   string
	Data       []byte
}

// ImportResult reports what ImportFile set in motion.
type ImportResult struct {
	Job         Job          `json:"job"`
	ParseErrors []ParseError `json:"parseErrors"`
}

// ImportFile parses data, creates a job sized to the parsed rows, stores them
// and starts processing. Malformed lines are recorded on the job's errors.
func (s *Service) ImportFile(ctx context.Context, req ImportRequest) (ImportResult, error) {
	if s.cfg.MaxFileSize > 0 && int64(len(req.Data)) > s.cfg.MaxFileSize {
		return ImportResult{}, fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, len(req.Data), s.cfg.MaxFileSize)
	}
	if _, err := s.templates.Active(req.TemplateID); err != nil {
		return ImportResult{}, err
	}

	parsed, err := Parse(req.Data)
	if err != nil {
		return ImportResult{}, fmt.Errorf("parse %s: %w", req.Filename, err)
	}

	job, err := s.CreateJob(ctx, CreateJobParams{
		TemplateID:     req.TemplateID,
		JobName:        req.JobName,
		SourceFilename: req.Filename,
		FileSizeBytes:  int64(len(req.Data)),
		TotalRows:      len(parsed.Rows),
	})
	if err != nil {
		return ImportResult{}, err
	}

	var lineErrors []string
	for _, pe := range parsed.ParseErrors {
		if pe.Severity == SeverityError {
			lineErrors = append(lineErrors, pe.String())
		}
	}
	if len(lineErrors) > 0 {
		if err := s.apply(ctx, job.ID, JobPending, ProgressDelta{Errors: lineErrors}); err != nil {
			return s.abandon(ctx, job.ID, parsed, err)
		}
	}

	if err := s.StoreRows(ctx, job.ID, parsed.Rows); err != nil {
		return s.abandon(ctx, job.ID, parsed, err)
	}
	if err := s.Start(ctx, job.ID); err != nil {
		return s.abandon(ctx, job.ID, parsed, err)
	}

	job, err = s.GetJob(ctx, job.ID)
	if err != nil {
		return ImportResult{}, err
	}
	return ImportResult{Job: job, ParseErrors: parsed.ParseErrors}, nil
}

// abandon fails a job ImportFile created but could not start, so no pending
// job is left behind that nothing will ever run. The failed job is returned
// with cause.
func (s *Service) abandon(ctx context.Context, jobID string, parsed ParseResult, cause error) (ImportResult, error) {
	ctx = context.WithoutCancel(ctx)
	run, err := s.runFor(ctx, jobID)
	if err != nil {
		return ImportResult{}, cause
	}
	s.failJob(ctx, run, fmt.Errorf("not started: %w", cause))

	run.mu.Lock()
	job := run.job
	run.mu.Unlock()
	return ImportResult{Job: job, ParseErrors: parsed.ParseErrors}, cause
}

// EvictFinished drops terminal jobs completed more than olderThan ago from
// memory. Their state stays in the repository.
func (s *Service) EvictFinished(olderThan time.Duration) int {
	cutoff := s.now().Add(-olderThan)

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, run := range s.runs {
		run.mu.Lock()
		finished := run.job.Status.Terminal() && !run.running &&
			run.job.CompletedAt != nil && run.job.CompletedAt.Before(cutoff)
		run.mu.Unlock()
		if finished {
			delete(s.runs, id)
			evicted++
		}
	}
	return evicted
}

// Shutdown waits for running loops to finish, cancelling them if ctx expires
// first. Cancelled jobs end up failed.
func (s *Service) Shutdown(ctx context.Context) error {
	if err := s.limiter.WaitForDrain(ctx); err == nil {
		return nil
	}

	s.mu.RLock()
	for _, run := range s.runs {
		run.mu.Lock()
		if run.cancel != nil {
			run.cancel()
		}
		run.mu.Unlock()
	}
	s.mu.RUnlock()

	drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.limiter.WaitForDrain(drainCtx)
}

// runFor returns the in-memory run for jobID, loading it from the repository
// if this process has not seen it yet.
func (s *Service) runFor(ctx context.Context, jobID string) (*jobRun, error) {
	s.mu.RLock()
	run, ok := s.runs[jobID]
	s.mu.RUnlock()
	if ok {
		return run, nil
	}

	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := checkInvariants(job); err != nil {
		return nil, fmt.Errorf("job %s: stored state is inconsistent: %w", jobID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[jobID]; ok {
		return run, nil
	}
	// A job loaded from storage as processing had its loop die with the
	// process; treat it as paused so it can be resumed.
	if job.Status == JobProcessing {
		job.Status = JobPaused
	}
	run = &jobRun{job: job}
	s.runs[jobID] = run
	return run, nil
}

// launch transitions from want to processing and starts a new loop.
func (s *Service) launch(ctx context.Context, jobID string, want JobStatus) error {
	run, err := s.runFor(ctx, jobID)
	if err != nil {
		return err
	}

	run.mu.Lock()
	status := run.job.Status
	run.mu.Unlock()
	if status != want {
		return fmt.Errorf("%w: cannot start a %s job", ErrInvalidTransition, status)
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return err
	}

	run.mu.Lock()
	if run.job.Status != want {
		run.mu.Unlock()
		s.limiter.Release()
		return fmt.Errorf("%w: job became %s", ErrInvalidTransition, run.job.Status)
	}
	if err := UpdateStatus(&run.job, JobProcessing, ProgressDelta{}, s.now()); err != nil {
		run.mu.Unlock()
		s.limiter.Release()
		return err
	}
	run.gen++
	gen := run.gen
	prev := run.done
	done := make(chan struct{})
	run.done = done
	run.running = true
	loopCtx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
	run.cancel = cancel
	s.persistLocked(ctx, run)
	snapshot := run.job
	run.mu.Unlock()

	log := logging.WithFields(ctx, "job_id", jobID, "template_id", snapshot.TemplateID)
	log.Info("import job processing", "total_rows", snapshot.TotalRows, "already_processed", snapshot.ProcessedRows)

	go func() {
		defer s.limiter.Release()
		defer cancel()
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic in import job", "panic", r)
				s.failJob(loopCtx, run, fmt.Errorf("internal error: %v", r))
			}
			run.mu.Lock()
			if run.gen == gen {
				run.running = false
			}
			run.mu.Unlock()
		}()

		if prev != nil {
			<-prev
		}
		s.runLoop(ContextWithJobID(loopCtx, jobID), run, gen)
	}()

	return nil
}

// loopItem is one stored row with its validation verdict.
type loopItem struct {
	row      RawRow
	rejected []ValidationError
	warnings []ValidationError
}

// runLoop processes the job's rows in ascending order, skipping rows already
// in the ledger. It exits when the rows run out, the job leaves processing,
// or an infrastructure error fails the job.
func (s *Service) runLoop(ctx context.Context, run *jobRun, gen int) {
	run.mu.Lock()
	jobID, templateID := run.job.ID, run.job.TemplateID
	run.mu.Unlock()

	log := logging.WithFields(ctx, "job_id", jobID, "template_id", templateID)
	start := time.Now()

	tmpl, err := s.templates.Get(templateID)
	if err != nil {
		s.failJob(ctx, run, err)
		return
	}
	proc, err := s.processors.For(tmpl.TargetType)
	if err != nil {
		s.failJob(ctx, run, err)
		return
	}
	rows, err := s.repo.LoadRows(ctx, jobID)
	if err != nil {
		s.failJob(ctx, run, fmt.Errorf("load rows: %w", err))
		return
	}
	done, err := s.ledger.ProcessedRowIDs(ctx, jobID)
	if err != nil {
		s.failJob(ctx, run, fmt.Errorf("read ledger: %w", err))
		return
	}

	for _, item := range orderedItems(rows, tmpl) {
		if done[item.row.RowNumber] {
			continue
		}
		if !s.stillProcessing(run, gen) {
			log.Info("import loop stopped", "reason", "job no longer processing")
			return
		}
		if err := ctx.Err(); err != nil {
			s.failJob(ctx, run, fmt.Errorf("import aborted: %w", err))
			return
		}

		out := RowOutcome{
			TemplateID: tmpl.ID,
			TargetType: tmpl.TargetType,
			Warnings:   FormatValidationErrors(item.warnings),
		}

		if len(item.rejected) > 0 {
			out.Title = rowTitle(item.row)
			out.Errors = FormatValidationErrors(item.rejected)
		} else {
			res := proc.Process(ctx, item.row, tmpl)
			if res.Fatal != nil {
				log.Error("content store failure, aborting job", "row", item.row.RowNumber, "error", res.Fatal)
				s.failJob(ctx, run, fmt.Errorf("row %d: %w", item.row.RowNumber, res.Fatal))
				return
			}
			out.Success = res.Success
			out.TargetID = res.TargetID
			out.Title = res.Title
			out.Slug = res.Slug
			out.Errors = res.Errors
			out.Warnings = append(out.Warnings, res.Warnings...)
		}

		if _, err := s.ledger.Record(ctx, jobID, item.row.RowNumber, out); err != nil {
			s.failJob(ctx, run, err)
			return
		}

		delta := ProgressDelta{
			Errors:   rowMessages(item.row.RowNumber, out.Errors),
			Warnings: rowMessages(item.row.RowNumber, out.Warnings),
		}
		if out.Success {
			delta.Successful = 1
		} else {
			delta.Failed = 1
			log.Debug("row failed", "row", item.row.RowNumber, "errors", out.Errors)
		}
		if err := s.applyRun(ctx, run, "", delta); err != nil {
			s.failJob(ctx, run, err)
			return
		}
	}

	run.mu.Lock()
	if run.gen != gen || run.job.Status != JobProcessing {
		run.mu.Unlock()
		return
	}
	if err := UpdateStatus(&run.job, JobCompleted, ProgressDelta{}, s.now()); err != nil {
		run.mu.Unlock()
		s.failJob(ctx, run, err)
		return
	}
	s.persistLocked(ctx, run)
	snapshot := run.job
	run.mu.Unlock()
	log.Info("import job completed",
		"successful_rows", snapshot.SuccessfulRows,
		"failed_rows", snapshot.FailedRows,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// orderedItems validates rows as one batch and returns them in ascending row
// order. Validation is pure, so a resumed run reaches the same verdicts.
func orderedItems(rows []RawRow, tmpl Template) []loopItem {
	sorted := append([]RawRow(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].RowNumber < sorted[j].RowNumber })

	outcome := Validate(sorted, tmpl)
	rejected := make(map[int][]ValidationError, len(outcome.Rejected))
	for _, r := range outcome.Rejected {
		rejected[r.RowNumber] = r.Errors
	}

	items := make([]loopItem, len(sorted))
	for i, row := range sorted {
		items[i] = loopItem{
			row:      row,
			rejected: rejected[row.RowNumber],
			warnings: outcome.RowWarnings[row.RowNumber],
		}
	}
	return items
}

func (s *Service) stillProcessing(run *jobRun, gen int) bool {
	run.mu.Lock()
	defer run.mu.Unlock()
	return run.gen == gen && run.job.Status == JobProcessing
}

// apply folds delta into the job, staying in or moving to status.
func (s *Service) apply(ctx context.Context, jobID string, status JobStatus, delta ProgressDelta) error {
	run, err := s.runFor(ctx, jobID)
	if err != nil {
		return err
	}
	return s.applyRun(ctx, run, status, delta)
}

// applyRun is apply on a resolved run. An empty status keeps the current one,
// so a row finishing after a pause is still counted.
func (s *Service) applyRun(ctx context.Context, run *jobRun, status JobStatus, delta ProgressDelta) error {
	run.mu.Lock()
	defer run.mu.Unlock()
	if status == "" {
		status = run.job.Status
	}
	if err := UpdateStatus(&run.job, status, delta, s.now()); err != nil {
		return err
	}
	s.persistLocked(ctx, run)
	return nil
}

// failJob moves the job to failed unless it is already terminal.
func (s *Service) failJob(ctx context.Context, run *jobRun, cause error) {
	run.mu.Lock()
	if run.job.Status.Terminal() {
		run.mu.Unlock()
		return
	}
	err := UpdateStatus(&run.job, JobFailed, ProgressDelta{Errors: []string{cause.Error()}}, s.now())
	if err == nil {
		s.persistLocked(ctx, run)
	}
	snapshot := run.job
	run.mu.Unlock()

	log := logging.WithFields(ctx, "job_id", snapshot.ID, "template_id", snapshot.TemplateID)
	if err != nil {
		log.Error("could not mark job failed", "error", err, "cause", cause)
		return
	}
	log.Error("import job failed", "error", cause,
		"processed_rows", snapshot.ProcessedRows, "total_rows", snapshot.TotalRows)
}

// persistLocked saves the job and broadcasts its progress. run.mu must be
// held, which keeps broadcasts in mutation order. Storage and publish errors
// are logged; in-memory state stays authoritative for this process.
func (s *Service) persistLocked(ctx context.Context, run *jobRun) {
	snapshot := run.job
	ctx = context.WithoutCancel(ctx)
	log := logging.WithFields(ctx, "job_id", snapshot.ID)

	if err := s.repo.SaveJob(ctx, snapshot); err != nil {
		log.Warn("save job failed", "error", err)
	}

	p := ProgressOf(snapshot)
	run.notify(p)
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, p); err != nil {
			log.Debug("publish progress failed", "error", err)
		}
	}
	if snapshot.Status.Terminal() {
		run.closeListeners()
	}
}

// notify sends p to every listener without blocking on slow ones.
func (run *jobRun) notify(p Progress) {
	run.listenerMu.Lock()
	defer run.listenerMu.Unlock()

	for _, ch := range run.listeners {
		select {
		case ch <- p:
		default:
		}
	}
}

func (run *jobRun) closeListeners() {
	run.listenerMu.Lock()
	defer run.listenerMu.Unlock()

	for _, ch := range run.listeners {
		close(ch)
	}
	run.listeners = nil
}

func (run *jobRun) removeListener(ch chan Progress) {
	run.listenerMu.Lock()
	defer run.listenerMu.Unlock()

	for i, l := range run.listeners {
		if l == ch {
			run.listeners = append(run.listeners[:i], run.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}
