// Package core provides the business logic for bulk content imports.
// This package has no transport dependencies and can be used by any frontend.
package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors checked with errors.Is across the import pipeline.
var (
	ErrTemplateNotFound  = errors.New("template not found")
	ErrTemplateInactive  = errors.New("template is inactive")
	ErrJobNotFound       = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrStoreUnavailable  = errors.New("content store unavailable")
	ErrSlugTaken         = errors.New("slug already exists")
	ErrRowLimitExceeded  = errors.New("stored rows exceed job total")
)

// TargetType is the closed set of content shapes a Template can import into.
type TargetType string

const (
	TargetExperience TargetType = "experience"
	TargetCategory   TargetType = "category"
)

// TargetTypes lists every supported target type.
var TargetTypes = []TargetType{TargetExperience, TargetCategory}

// ParseTargetType converts a string to a TargetType.
func ParseTargetType(s string) (TargetType, error) {
	switch TargetType(s) {
	case TargetExperience:
		return TargetExperience, nil
	case TargetCategory:
		return TargetCategory, nil
	default:
		return "", fmt.Errorf("unknown target type %q", s)
	}
}

// Collection returns the Content Store collection records of this type live in.
func (t TargetType) Collection() string {
	switch t {
	case TargetExperience:
		return "experiences"
	case TargetCategory:
		return "categories"
	default:
		return ""
	}
}

// RuleSet holds the optional checks for one field. Nil pointers mean "no check".
type RuleSet struct {
	Type      string   `yaml:"type,omitempty" json:"type,omitempty" validate:"omitempty,oneof=string number boolean array json"`
	MinLength *int     `yaml:"min_length,omitempty" json:"minLength,omitempty" validate:"omitempty,gte=0"`
	MaxLength *int     `yaml:"max_length,omitempty" json:"maxLength,omitempty" validate:"omitempty,gte=0"`
	Min       *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max       *float64 `yaml:"max,omitempty" json:"max,omitempty"`
	Enum      []string `yaml:"enum,omitempty" json:"enum,omitempty"`
	Pattern   string   `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Format    string   `yaml:"format,omitempty" json:"format,omitempty" validate:"omitempty,oneof=url"`
}

// Template is an immutable import schema for one content shape.
type Template struct {
	ID              string             `yaml:"id" json:"id" validate:"required"`
	Name            string             `yaml:"name" json:"name" validate:"required"`
	TargetType      TargetType         `yaml:"target_type" json:"targetType" validate:"required,oneof=experience category"`
	RequiredFields  []string           `yaml:"required_fields" json:"requiredFields" validate:"dive,required"`
	OptionalFields  map[string]string  `yaml:"optional_fields" json:"optionalFields"`
	ValidationRules map[string]RuleSet `yaml:"validation_rules" json:"validationRules" validate:"dive"`
	DefaultValues   map[string]Value   `yaml:"-" json:"defaultValues"`
	Version         int                `yaml:"version" json:"version" validate:"gte=1"`
	Active          bool               `yaml:"active" json:"active"`
}

// IsRequired reports whether field is in the template's required set.
func (t Template) IsRequired(field string) bool {
	for _, f := range t.RequiredFields {
		if f == field {
			return true
		}
	}
	return false
}

// RawRow is one parsed data line. RowNumber is 1-based and excludes the header.
type RawRow struct {
	RowNumber int              `json:"rowNumber"`
	Columns   map[string]Value `json:"columns"`

	// Warnings carries parse-level warnings (e.g. an unparseable _json cell)
	// so they travel with the row into its eventual outcome.
	Warnings []ValidationError `json:"warnings,omitempty"`
}

// Get returns the value for column, or Null when absent.
func (r RawRow) Get(column string) Value {
	if r.Columns == nil {
		return Null()
	}
	return r.Columns[column]
}

// Severity distinguishes blocking validation errors from warnings.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// JobStatus is a state in the job state machine.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobPaused     JobStatus = "paused"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Job is one import run (a BulkUploadJob).
type Job struct {
	ID string `json:"id"`

	TemplateID     string `json:"templateId"`
	JobName        string `json:"jobName"`
	SourceFilename string `json:"sourceFilename"`
	FileSizeBytes  int64  `json:"fileSizeBytes"`
	TotalRows      int    `json:"totalRows"`

	Status         JobStatus  `json:"status"`
	ProcessedRows  int        `json:"processedRows"`
	SuccessfulRows int        `json:"successfulRows"`
	FailedRows     int        `json:"failedRows"`
	Errors         []string   `json:"errors"`
	Warnings       []string   `json:"warnings"`
	CreatedAt      time.Time  `json:"createdAt"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`

	SubmittedFrom string `json:"submittedFrom,omitempty"`
	UserAgent     string `json:"userAgent,omitempty"`
}

// Progress is the read model returned by GetProgress.
type Progress struct {
	JobID          string    `json:"jobId"`
	TotalRows      int       `json:"totalRows"`
	ProcessedRows  int       `json:"processedRows"`
	SuccessfulRows int       `json:"successfulRows"`
	FailedRows     int       `json:"failedRows"`
	Status         JobStatus `json:"status"`
	Errors         []string  `json:"errors"`
	Warnings       []string  `json:"warnings"`
}

// Percent returns processed rows as a percentage (0-100).
func (p Progress) Percent() int {
	if p.TotalRows <= 0 {
		if p.Status == JobCompleted {
			return 100
		}
		return 0
	}
	return (p.ProcessedRows * 100) / p.TotalRows
}

// ProgressOf snapshots a job's progress. Slices are copied.
func ProgressOf(j Job) Progress {
	return Progress{
		JobID:          j.ID,
		TotalRows:      j.TotalRows,
		ProcessedRows:  j.ProcessedRows,
		SuccessfulRows: j.SuccessfulRows,
		FailedRows:     j.FailedRows,
		Status:         j.Status,
		Errors:         append([]string(nil), j.Errors...),
		Warnings:       append([]string(nil), j.Warnings...),
	}
}

// PageStatus is the state of a generated content record as seen by the ledger.
type PageStatus string

const (
	PageDraft     PageStatus = "draft"
	PagePublished PageStatus = "published"
	PageFailed    PageStatus = "failed"
)

// GeneratedPageRecord is one append-only ledger entry per processed row.
type GeneratedPageRecord struct {
	ID               string     `json:"id"`
	JobID            string     `json:"jobId"`
	RowID            int        `json:"rowId"`
	TemplateID       string     `json:"templateId"`
	TargetType       TargetType `json:"targetType"`
	TargetCollection string     `json:"targetCollection"`
	TargetID         *string    `json:"targetId"`
	Title            string     `json:"title"`
	Slug             string     `json:"slug"`
	Status           PageStatus `json:"status"`
	GenerationErrors []string   `json:"generationErrors"`
	Warnings         []string   `json:"warnings,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// ContentRecord is what a Row Processor hands to the Content Store.
type ContentRecord struct {
	Collection     string            `json:"collection"`
	Slug           string            `json:"slug"`
	Title          string            `json:"title"`
	Status         PageStatus        `json:"status"`
	Fields         map[string]any    `json:"fields"`
	References     map[string]string `json:"references,omitempty"`
	SEO            map[string]any    `json:"seo,omitempty"`
	StructuredData map[string]any    `json:"structuredData,omitempty"`
	SourceJobID    string            `json:"sourceJobId,omitempty"`
	SourceRow      int               `json:"sourceRow,omitempty"`
}

// ContentStore is the external persistence layer for generated content.
// Implementations return errors wrapping ErrStoreUnavailable for connectivity
// failures and ErrSlugTaken for slug uniqueness violations.
type ContentStore interface {
	FindBySlug(ctx context.Context, collection, slug string) (id string, found bool, err error)
	InsertDraft(ctx context.Context, collection string, record ContentRecord) (id string, err error)
	LookupBySlugField(ctx context.Context, collection, field, value string) (id string, found bool, err error)
}

// JobRepository persists jobs, their stored rows, and the ledger.
type JobRepository interface {
	CreateJob(ctx context.Context, job Job) error
	SaveJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, id string) (Job, error)
	StoreRows(ctx context.Context, jobID string, rows []RawRow) error
	LoadRows(ctx context.Context, jobID string) ([]RawRow, error)
	AppendLedger(ctx context.Context, rec GeneratedPageRecord) error
	ListLedger(ctx context.Context, jobID string) ([]GeneratedPageRecord, error)
}

// ProgressPublisher receives progress snapshots for out-of-process readers.
type ProgressPublisher interface {
	Publish(ctx context.Context, p Progress) error
}
