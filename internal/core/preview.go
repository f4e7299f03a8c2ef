package core

// preview.go is a read-only dry run of an import: it parses and validates a
// file against a template and checks slugs against the content store, without
// creating a job or writing anything.

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// PreviewSummary contains the summary counts for an import preview.
type PreviewSummary struct {
	TotalRows       int `json:"totalRows"`
	NewRows         int `json:"newRows"`
	RenamedRows     int `json:"renamedRows"`
	ErrorRows       int `json:"errorRows"`
	WarningRows     int `json:"warningRows"`
	DuplicateInFile int `json:"duplicateInFile"`
}

// RowPreview is one accepted row and the slug it would get.
type RowPreview struct {
	RowNumber int    `json:"rowNumber"`
	Title     string `json:"title"`
	Slug      string `json:"slug"`

	// Renamed is set when the base slug is taken in the store and a
	// numbered variant would be used.
	Renamed bool `json:"renamed,omitempty"`
}

// ErrorPreview is a row that would be rejected.
type ErrorPreview struct {
	RowNumber int      `json:"rowNumber"`
	Title     string   `json:"title,omitempty"`
	Errors    []string `json:"errors"`
}

// DuplicatePreview is a slug claimed by more than one row of the file.
type DuplicatePreview struct {
	Slug       string `json:"slug"`
	RowNumbers []int  `json:"rowNumbers"`
}

// PreviewResponse is the complete result of Preview.
type PreviewResponse struct {
	TemplateID       string             `json:"templateId"`
	Summary          PreviewSummary     `json:"summary"`
	MissingColumns   []string           `json:"missingColumns"`
	UnknownColumns   []string           `json:"unknownColumns"`
	ParseErrors      []ParseError       `json:"parseErrors"`
	RowSamples       []RowPreview       `json:"rowSamples"`
	ErrorSamples     []ErrorPreview     `json:"errorSamples"`
	DuplicateSamples []DuplicatePreview `json:"duplicateSamples"`
	ProcessingTimeMs int64              `json:"processingTimeMs"`
}

// Sample limits
const (
	maxRowSamples       = 10
	maxErrorSamples     = 20
	maxDuplicateSamples = 10
)

// Preview reports what importing data against templateID would do. Slug
// checks hit the content store read-only; nothing is created.
func (s *Service) Preview(ctx context.Context, templateID string, data []byte) (*PreviewResponse, error) {
	start := time.Now()

	if s.cfg.MaxFileSize > 0 && int64(len(data)) > s.cfg.MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, len(data), s.cfg.MaxFileSize)
	}
	tmpl, err := s.templates.Active(templateID)
	if err != nil {
		return nil, err
	}
	parsed, err := Parse(data)
	if err != nil {
		return nil, err
	}

	resp := &PreviewResponse{
		TemplateID:       tmpl.ID,
		MissingColumns:   []string{},
		UnknownColumns:   []string{},
		ParseErrors:      parsed.ParseErrors,
		RowSamples:       []RowPreview{},
		ErrorSamples:     []ErrorPreview{},
		DuplicateSamples: []DuplicatePreview{},
	}
	resp.Summary.TotalRows = len(parsed.Rows)
	resp.MissingColumns, resp.UnknownColumns = compareColumns(parsed.Headers, tmpl)

	outcome := Validate(parsed.Rows, tmpl)
	resp.Summary.ErrorRows = len(outcome.Rejected)
	resp.Summary.WarningRows = len(outcome.RowWarnings)

	for _, rej := range outcome.Rejected {
		if len(resp.ErrorSamples) >= maxErrorSamples {
			break
		}
		resp.ErrorSamples = append(resp.ErrorSamples, ErrorPreview{
			RowNumber: rej.RowNumber,
			Title:     rowTitle(rej.Row),
			Errors:    FormatValidationErrors(rej.Errors),
		})
	}

	resp.DuplicateSamples, resp.Summary.DuplicateInFile = duplicateSlugs(parsed.Rows)

	collection := tmpl.TargetType.Collection()
	for _, row := range outcome.ValidRows {
		slug := batchSlug(row)
		if slug == "" {
			slug = DefaultSlug
		}
		_, taken, err := s.store.FindBySlug(ctx, collection, slug)
		if err != nil {
			return nil, fmt.Errorf("check slug %q: %w", slug, err)
		}
		if taken {
			resp.Summary.RenamedRows++
		} else {
			resp.Summary.NewRows++
		}
		if len(resp.RowSamples) < maxRowSamples {
			resp.RowSamples = append(resp.RowSamples, RowPreview{
				RowNumber: row.RowNumber,
				Title:     rowTitle(row),
				Slug:      slug,
				Renamed:   taken,
			})
		}
	}

	resp.ProcessingTimeMs = time.Since(start).Milliseconds()
	return resp, nil
}

// compareColumns lists required fields absent from headers, and headers the
// template does not declare.
func compareColumns(headers []string, tmpl Template) (missing, unknown []string) {
	missing, unknown = []string{}, []string{}
	have := make(map[string]bool, len(headers))
	for _, h := range headers {
		if h != "" {
			have[h] = true
		}
	}
	for _, f := range tmpl.RequiredFields {
		if !have[f] {
			missing = append(missing, f)
		}
	}
	for _, h := range headers {
		if h == "" || tmpl.IsRequired(h) {
			continue
		}
		if _, ok := tmpl.OptionalFields[h]; !ok {
			unknown = append(unknown, h)
		}
	}
	return missing, unknown
}

// duplicateSlugs groups rows by the slug they would claim. The count is the
// number of rows that lose to an earlier row.
func duplicateSlugs(rows []RawRow) ([]DuplicatePreview, int) {
	bySlug := make(map[string][]int)
	for _, row := range rows {
		if slug := batchSlug(row); slug != "" {
			bySlug[slug] = append(bySlug[slug], row.RowNumber)
		}
	}

	dups := []DuplicatePreview{}
	count := 0
	for _, slug := range sortedKeys(bySlug) {
		nums := bySlug[slug]
		if len(nums) < 2 {
			continue
		}
		count += len(nums) - 1
		if len(dups) < maxDuplicateSamples {
			sort.Ints(nums)
			dups = append(dups, DuplicatePreview{Slug: slug, RowNumbers: nums})
		}
	}
	return dups, count
}
