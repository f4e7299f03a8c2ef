// Package postgres implements the content store and job repository on
// PostgreSQL using pgx.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/bulkimport/internal/core"
)

//go:embed schema.sql
var schemaSQL string

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Store is backed by a pgx pool. It satisfies core.ContentStore,
// core.JobRepository and core.RowPurger.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an open pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens and pings a pool for databaseURL.
func Connect(ctx context.Context, databaseURL string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns > 0 {
		cfg.MinConns = minConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return pool, nil
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate: %w", mapErr(err))
	}
	return nil
}

// mapErr converts driver errors to core sentinels: unique violations become
// ErrSlugTaken, anything that is not a server-side SQL error is treated as
// the store being unreachable.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w (%s)", core.ErrSlugTaken, pgErr.ConstraintName)
		}
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	return fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
}

// ---- Content store ----

func (s *Store) FindBySlug(ctx context.Context, collection, slug string) (string, bool, error) {
	return s.lookup(ctx,
		`SELECT id FROM content_records WHERE collection = $1 AND slug = $2`,
		collection, slug)
}

func (s *Store) InsertDraft(ctx context.Context, collection string, rec core.ContentRecord) (string, error) {
	fields, err := json.Marshal(nonNilMap(rec.Fields))
	if err != nil {
		return "", fmt.Errorf("marshal fields: %w", err)
	}
	refMap := rec.References
	if refMap == nil {
		refMap = map[string]string{}
	}
	refs, err := json.Marshal(refMap)
	if err != nil {
		return "", fmt.Errorf("marshal references: %w", err)
	}
	seo, err := json.Marshal(nonNilMap(rec.SEO))
	if err != nil {
		return "", fmt.Errorf("marshal seo: %w", err)
	}
	structured, err := json.Marshal(nonNilMap(rec.StructuredData))
	if err != nil {
		return "", fmt.Errorf("marshal structured data: %w", err)
	}

	id := uuid.NewString()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO content_records
			(id, collection, slug, title, status, fields, refs, seo, structured_data, source_job_id, source_row)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11)`,
		id, collection, rec.Slug, rec.Title, string(core.PageDraft),
		fields, refs, seo, structured, rec.SourceJobID, rec.SourceRow,
	)
	if err != nil {
		return "", fmt.Errorf("insert %s/%s: %w", collection, rec.Slug, mapErr(err))
	}
	return id, nil
}

// LookupBySlugField resolves slug directly; other fields are matched in the
// fields document.
func (s *Store) LookupBySlugField(ctx context.Context, collection, field, value string) (string, bool, error) {
	if field == "slug" {
		return s.FindBySlug(ctx, collection, value)
	}
	return s.lookup(ctx,
		`SELECT id FROM content_records WHERE collection = $1 AND fields ->> $2 = $3 LIMIT 1`,
		collection, field, value)
}

func (s *Store) lookup(ctx context.Context, sql string, args ...any) (string, bool, error) {
	var id string
	err := s.pool.QueryRow(ctx, sql, args...).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, mapErr(err)
	}
	return id, true, nil
}

// ---- Job repository ----

func (s *Store) CreateJob(ctx context.Context, job core.Job) error {
	errs, warns, err := marshalMessages(job)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO import_jobs
			(id, template_id, job_name, source_filename, file_size_bytes, total_rows, status,
			 processed_rows, successful_rows, failed_rows, errors, warnings,
			 created_at, started_at, completed_at, submitted_from, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		job.ID, job.TemplateID, job.JobName, job.SourceFilename, job.FileSizeBytes, job.TotalRows,
		string(job.Status), job.ProcessedRows, job.SuccessfulRows, job.FailedRows, errs, warns,
		job.CreatedAt, job.StartedAt, job.CompletedAt, job.SubmittedFrom, job.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", mapErr(err))
	}
	return nil
}

// SaveJob writes the mutable fields of job.
func (s *Store) SaveJob(ctx context.Context, job core.Job) error {
	errs, warns, err := marshalMessages(job)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE import_jobs SET
			status = $2, processed_rows = $3, successful_rows = $4, failed_rows = $5,
			errors = $6, warnings = $7, started_at = $8, completed_at = $9
		WHERE id = $1`,
		job.ID, string(job.Status), job.ProcessedRows, job.SuccessfulRows, job.FailedRows,
		errs, warns, job.StartedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", mapErr(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", core.ErrJobNotFound, job.ID)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (core.Job, error) {
	var (
		job          core.Job
		status       string
		errs, warns  []byte
		started, end *time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, template_id, job_name, source_filename, file_size_bytes, total_rows, status,
		       processed_rows, successful_rows, failed_rows, errors, warnings,
		       created_at, started_at, completed_at, submitted_from, user_agent
		FROM import_jobs WHERE id = $1`, id,
	).Scan(
		&job.ID, &job.TemplateID, &job.JobName, &job.SourceFilename, &job.FileSizeBytes, &job.TotalRows, &status,
		&job.ProcessedRows, &job.SuccessfulRows, &job.FailedRows, &errs, &warns,
		&job.CreatedAt, &started, &end, &job.SubmittedFrom, &job.UserAgent,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Job{}, fmt.Errorf("%w: %s", core.ErrJobNotFound, id)
	}
	if err != nil {
		return core.Job{}, fmt.Errorf("get job: %w", mapErr(err))
	}

	job.Status = core.JobStatus(status)
	job.StartedAt, job.CompletedAt = started, end
	if err := json.Unmarshal(errs, &job.Errors); err != nil {
		return core.Job{}, fmt.Errorf("decode job errors: %w", err)
	}
	if err := json.Unmarshal(warns, &job.Warnings); err != nil {
		return core.Job{}, fmt.Errorf("decode job warnings: %w", err)
	}
	return job, nil
}

// StoreRows replaces the stored rows of a job in one transaction.
func (s *Store) StoreRows(ctx context.Context, jobID string, rows []core.RawRow) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", mapErr(err))
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM import_job_rows WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("clear rows: %w", mapErr(err))
	}

	batch := &pgx.Batch{}
	for _, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("marshal row %d: %w", row.RowNumber, err)
		}
		batch.Queue(`INSERT INTO import_job_rows (job_id, row_number, data) VALUES ($1, $2, $3)`,
			jobID, row.RowNumber, data)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert rows: %w", mapErr(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit rows: %w", mapErr(err))
	}
	return nil
}

func (s *Store) LoadRows(ctx context.Context, jobID string) ([]core.RawRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM import_job_rows WHERE job_id = $1 ORDER BY row_number`, jobID)
	if err != nil {
		return nil, fmt.Errorf("load rows: %w", mapErr(err))
	}

	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (core.RawRow, error) {
		var data []byte
		if err := r.Scan(&data); err != nil {
			return core.RawRow{}, err
		}
		var row core.RawRow
		if err := json.Unmarshal(data, &row); err != nil {
			return core.RawRow{}, fmt.Errorf("decode stored row: %w", err)
		}
		return row, nil
	})
	if err != nil {
		return nil, fmt.Errorf("load rows: %w", mapErr(err))
	}
	return out, nil
}

func (s *Store) AppendLedger(ctx context.Context, rec core.GeneratedPageRecord) error {
	errs, err := json.Marshal(nonNilSlice(rec.GenerationErrors))
	if err != nil {
		return err
	}
	warns, err := json.Marshal(nonNilSlice(rec.Warnings))
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO generated_pages
			(id, job_id, row_number, template_id, target_type, target_collection, target_id,
			 title, slug, status, generation_errors, warnings, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rec.ID, rec.JobID, rec.RowID, rec.TemplateID, string(rec.TargetType), rec.TargetCollection,
		rec.TargetID, rec.Title, rec.Slug, string(rec.Status), errs, warns, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ledger record: %w", mapErr(err))
	}
	return nil
}

func (s *Store) ListLedger(ctx context.Context, jobID string) ([]core.GeneratedPageRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, job_id, row_number, template_id, target_type, target_collection, target_id,
		       title, slug, status, generation_errors, warnings, created_at
		FROM generated_pages WHERE job_id = $1 ORDER BY row_number`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list ledger: %w", mapErr(err))
	}

	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (core.GeneratedPageRecord, error) {
		var (
			rec                core.GeneratedPageRecord
			targetType, status string
			errs, warns        []byte
		)
		if err := r.Scan(&rec.ID, &rec.JobID, &rec.RowID, &rec.TemplateID, &targetType, &rec.TargetCollection,
			&rec.TargetID, &rec.Title, &rec.Slug, &status, &errs, &warns, &rec.CreatedAt); err != nil {
			return rec, err
		}
		rec.TargetType = core.TargetType(targetType)
		rec.Status = core.PageStatus(status)
		if err := json.Unmarshal(errs, &rec.GenerationErrors); err != nil {
			return rec, err
		}
		if err := json.Unmarshal(warns, &rec.Warnings); err != nil {
			return rec, err
		}
		return rec, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list ledger: %w", mapErr(err))
	}
	return out, nil
}

// PurgeFinishedRows deletes stored rows of jobs that completed before the
// cutoff. Jobs and ledger records are kept.
func (s *Store) PurgeFinishedRows(ctx context.Context, completedBefore time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM import_job_rows r
		USING import_jobs j
		WHERE r.job_id = j.id
		  AND j.status IN ('completed', 'failed')
		  AND j.completed_at < $1`, completedBefore)
	if err != nil {
		return 0, fmt.Errorf("purge rows: %w", mapErr(err))
	}
	return tag.RowsAffected(), nil
}

func marshalMessages(job core.Job) ([]byte, []byte, error) {
	errs, err := json.Marshal(nonNilSlice(job.Errors))
	if err != nil {
		return nil, nil, fmt.Errorf("marshal job errors: %w", err)
	}
	warns, err := json.Marshal(nonNilSlice(job.Warnings))
	if err != nil {
		return nil, nil, fmt.Errorf("marshal job warnings: %w", err)
	}
	return errs, warns, nil
}

func nonNilSlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
