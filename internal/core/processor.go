package core

// processor.go defines the Row Processor contract and the pieces shared by
// every target-type implementation: slug resolution, reference lookups,
// default values and persistence.
//
// Processors never touch job state. They return a ProcessResult that the job
// loop folds into counters and the ledger.

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ProcessResult is the outcome of committing one row.
type ProcessResult struct {
	Success  bool
	TargetID string
	Title    string
	Slug     string
	Errors   []string
	Warnings []string

	// Fatal is set when the failure is infrastructure-level (open circuit,
	// cancelled context) and the job loop must stop instead of moving on.
	Fatal error
}

// RowProcessor maps a validated row to a content record and persists it as a draft.
type RowProcessor interface {
	TargetType() TargetType
	Process(ctx context.Context, row RawRow, tmpl Template) ProcessResult
}

// Processors is the closed set of row processors keyed by target type.
type Processors map[TargetType]RowProcessor

// NewProcessors builds one processor per TargetType over store.
func NewProcessors(store ContentStore) Processors {
	base := baseProcessor{store: store, slugs: NewSlugResolver(store)}
	procs := Processors{}
	for _, t := range TargetTypes {
		switch t {
		case TargetExperience:
			procs[t] = &ExperienceProcessor{baseProcessor: base}
		case TargetCategory:
			procs[t] = &CategoryProcessor{baseProcessor: base}
		}
	}
	return procs
}

// For returns the processor for t.
func (p Processors) For(t TargetType) (RowProcessor, error) {
	proc, ok := p[t]
	if !ok {
		return nil, fmt.Errorf("no row processor for target type %q", t)
	}
	return proc, nil
}

// typeSuffixes are stripped from column names to get record field names.
var typeSuffixes = []string{"_array", "_json", "_boolean", "_number"}

// FieldName strips a coercion suffix: price_number -> price.
func FieldName(column string) string {
	for _, suf := range typeSuffixes {
		if strings.HasSuffix(column, suf) && len(column) > len(suf) {
			return strings.TrimSuffix(column, suf)
		}
	}
	return column
}

// baseProcessor carries the collaborators shared by every processor.
type baseProcessor struct {
	store ContentStore
	slugs *SlugResolver
}

// fieldValue finds a field by base name, accepting either the bare or any
// suffixed column (price or price_number).
func fieldValue(row RawRow, name string) Value {
	if v := row.Get(name); !v.IsNull() {
		return v
	}
	for _, suf := range typeSuffixes {
		if v := row.Get(name + suf); !v.IsNull() {
			return v
		}
	}
	return Null()
}

func fieldString(row RawRow, name string) string {
	v := fieldValue(row, name)
	if s, ok := v.Str(); ok {
		return strings.TrimSpace(s)
	}
	if v.IsNull() {
		return ""
	}
	return v.String()
}

// applyDefaults fills blank fields from the template's default values.
func applyDefaults(row RawRow, tmpl Template) RawRow {
	if len(tmpl.DefaultValues) == 0 {
		return row
	}
	cols := make(map[string]Value, len(row.Columns)+len(tmpl.DefaultValues))
	for k, v := range row.Columns {
		cols[k] = v
	}
	for field, def := range tmpl.DefaultValues {
		if cols[field].IsBlank() {
			cols[field] = def
		}
	}
	row.Columns = cols
	return row
}

// slugFor returns the row's explicit slug or resolves a unique one from title.
func (b baseProcessor) slugFor(ctx context.Context, row RawRow, title, collection string) (string, error) {
	if s := fieldString(row, "slug"); s != "" {
		return s, nil
	}
	return b.slugs.Resolve(ctx, title, collection)
}

// reference resolves a human-readable slug to an id in collection. A missing
// target is a warning and an empty reference, not an error.
func (b baseProcessor) reference(ctx context.Context, row RawRow, field, collection string, refs map[string]string, warnings *[]string) error {
	value := fieldString(row, field)
	if value == "" {
		return nil
	}
	id, found, err := b.store.LookupBySlugField(ctx, collection, "slug", value)
	if err != nil {
		return fmt.Errorf("resolve %s %q: %w", field, value, err)
	}
	if !found {
		*warnings = append(*warnings, fmt.Sprintf("%s %q not found in %s; left empty", field, value, collection))
		return nil
	}
	refs[field] = id
	return nil
}

// extraFields copies every column not in reserved into a record field map,
// keyed by base field name.
func extraFields(row RawRow, reserved map[string]bool) map[string]any {
	fields := make(map[string]any)
	for _, col := range sortedKeys(row.Columns) {
		name := FieldName(col)
		if reserved[name] {
			continue
		}
		v := row.Columns[col]
		if v.IsNull() {
			continue
		}
		fields[name] = v.Interface()
	}
	return fields
}

// persist inserts rec as a draft and converts store errors to a row result.
func (b baseProcessor) persist(ctx context.Context, rec ContentRecord, res ProcessResult) ProcessResult {
	rec.Status = PageDraft
	id, err := b.store.InsertDraft(ctx, rec.Collection, rec)
	if err != nil {
		return failResult(res, err)
	}
	res.Success = true
	res.TargetID = id
	return res
}

// failResult records err on res, marking it fatal for infrastructure errors.
func failResult(res ProcessResult, err error) ProcessResult {
	res.Success = false
	switch {
	case errors.Is(err, ErrSlugTaken):
		res.Errors = append(res.Errors, fmt.Sprintf("%v: %s", ErrSlugTaken, res.Slug))
	default:
		res.Errors = append(res.Errors, err.Error())
	}
	if IsInfrastructureError(err) {
		res.Fatal = err
	}
	return res
}

// IsInfrastructureError reports whether err means the run itself cannot
// continue, as opposed to one row failing.
func IsInfrastructureError(err error) bool {
	return errors.Is(err, ErrCircuitOpen) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func seoFor(title, description, canonical string, row RawRow) map[string]any {
	metaTitle := fieldString(row, "meta_title")
	if metaTitle == "" {
		metaTitle = title
	}
	metaDesc := fieldString(row, "meta_description")
	if metaDesc == "" {
		metaDesc = truncate(description, 160)
	}
	seo := map[string]any{
		"meta_title":     metaTitle,
		"canonical_path": canonical,
	}
	if metaDesc != "" {
		seo["meta_description"] = metaDesc
	}
	return seo
}

// truncate shortens s to at most n runes on a word boundary where possible.
func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	cut := string(r[:n])
	if i := strings.LastIndex(cut, " "); i > n/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "…"
}
