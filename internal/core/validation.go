package core

// validation.go checks parsed rows against a Template before any row is
// committed. Validation is pure: it never touches the Content Store.
//
// Per row, in order:
//  1. Required fields: absent, Null or blank strings are errors
//  2. Field rules: evaluated only on present values, every check independent
//  3. Duplicate slug: a slug already claimed by an earlier accepted row is an error
//
// A row is accepted when it carries no error-severity items. Warnings ride
// along to the row's outcome without blocking it.

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/gosimple/slug"
)

// ValidationError is a single problem found on a row.
type ValidationError struct {
	Field    string   `json:"field"`
	Value    string   `json:"value,omitempty"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// RejectedRow is a row that failed validation, with every error found.
type RejectedRow struct {
	RowNumber int               `json:"rowNumber"`
	Row       RawRow            `json:"-"`
	Errors    []ValidationError `json:"errors"`
}

// ValidationOutcome is the result of validating a batch.
type ValidationOutcome struct {
	ValidRows []RawRow      `json:"validRows"`
	Rejected  []RejectedRow `json:"rejected"`

	// RowWarnings holds non-blocking items for accepted rows, keyed by row number.
	RowWarnings map[int][]ValidationError `json:"rowWarnings,omitempty"`
}

// RowValidator validates rows against one template.
type RowValidator struct {
	tmpl Template

	mu       sync.Mutex
	patterns map[string]*regexp.Regexp
}

// NewRowValidator creates a validator for tmpl.
func NewRowValidator(tmpl Template) *RowValidator {
	return &RowValidator{
		tmpl:     tmpl,
		patterns: make(map[string]*regexp.Regexp),
	}
}

// Validate checks every row in order. Earlier accepted rows claim their slugs
// first, so of two rows sharing a slug the later one is rejected.
func Validate(rows []RawRow, tmpl Template) ValidationOutcome {
	return NewRowValidator(tmpl).ValidateBatch(rows)
}

// ValidateBatch is Validate on a prepared validator.
func (v *RowValidator) ValidateBatch(rows []RawRow) ValidationOutcome {
	out := ValidationOutcome{RowWarnings: make(map[int][]ValidationError)}
	claimed := make(map[string]int) // slug -> row number of the accepting row

	for _, row := range rows {
		issues := v.ValidateRow(row)

		key := batchSlug(row)
		if key != "" {
			if first, taken := claimed[key]; taken {
				issues = append(issues, ValidationError{
					Field:    "slug",
					Value:    key,
					Message:  fmt.Sprintf("duplicate slug %q, already used by row %d", key, first),
					Severity: SeverityError,
				})
			}
		}

		errs, warns := splitSeverity(issues)
		if len(errs) > 0 {
			out.Rejected = append(out.Rejected, RejectedRow{
				RowNumber: row.RowNumber,
				Row:       row,
				Errors:    errs,
			})
			continue
		}

		if key != "" {
			claimed[key] = row.RowNumber
		}
		out.ValidRows = append(out.ValidRows, row)
		if len(warns) > 0 {
			out.RowWarnings[row.RowNumber] = warns
		}
	}

	return out
}

// ValidateRow returns every required-field and rule issue on a single row,
// including parse warnings carried by the row. It does not do cross-row checks.
func (v *RowValidator) ValidateRow(row RawRow) []ValidationError {
	issues := append([]ValidationError(nil), row.Warnings...)

	for _, field := range v.tmpl.RequiredFields {
		if row.Get(field).IsBlank() {
			issues = append(issues, ValidationError{
				Field:    field,
				Message:  "required field is empty",
				Severity: SeverityError,
			})
		}
	}

	for _, field := range sortedKeys(v.tmpl.ValidationRules) {
		val := row.Get(field)
		if val.IsNull() {
			continue
		}
		issues = append(issues, v.checkRules(field, val, v.tmpl.ValidationRules[field])...)
	}

	if s, ok := row.Get("slug").Str(); ok && strings.TrimSpace(s) != "" && !slug.IsSlug(strings.TrimSpace(s)) {
		issues = append(issues, ValidationError{
			Field:    "slug",
			Value:    s,
			Message:  "invalid slug format (use lower-case letters, digits and hyphens)",
			Severity: SeverityError,
		})
	}

	return issues
}

// checkRules evaluates every check in rs independently.
func (v *RowValidator) checkRules(field string, val Value, rs RuleSet) []ValidationError {
	var errs []ValidationError
	fail := func(msg string) {
		errs = append(errs, ValidationError{
			Field:    field,
			Value:    val.String(),
			Message:  msg,
			Severity: SeverityError,
		})
	}

	if rs.Type != "" && !matchesType(val, rs.Type) {
		fail(fmt.Sprintf("expected %s, got %s", rs.Type, val.Kind()))
	}

	if rs.MinLength != nil || rs.MaxLength != nil {
		if n, ok := valueLength(val); ok {
			if rs.MinLength != nil && n < *rs.MinLength {
				fail(fmt.Sprintf("length %d is below minimum %d", n, *rs.MinLength))
			}
			if rs.MaxLength != nil && n > *rs.MaxLength {
				fail(fmt.Sprintf("length %d exceeds maximum %d", n, *rs.MaxLength))
			}
		}
	}

	if rs.Min != nil || rs.Max != nil {
		if f, ok := val.Num(); ok {
			if rs.Min != nil && f < *rs.Min {
				fail(fmt.Sprintf("value %v is below minimum %v", f, *rs.Min))
			}
			if rs.Max != nil && f > *rs.Max {
				fail(fmt.Sprintf("value %v exceeds maximum %v", f, *rs.Max))
			}
		}
	}

	if len(rs.Enum) > 0 && !inEnum(val, rs.Enum) {
		fail(fmt.Sprintf("value must be one of: %s", strings.Join(rs.Enum, ", ")))
	}

	if rs.Pattern != "" {
		re, err := v.pattern(rs.Pattern)
		switch {
		case err != nil:
			fail(fmt.Sprintf("invalid pattern %q in template", rs.Pattern))
		case !re.MatchString(val.String()):
			fail(fmt.Sprintf("does not match pattern %s", rs.Pattern))
		}
	}

	if rs.Format == "url" && !isURL(val) {
		fail("invalid url")
	}

	return errs
}

// pattern compiles and caches a rule pattern.
func (v *RowValidator) pattern(expr string) (*regexp.Regexp, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if re, ok := v.patterns[expr]; ok {
		return re, nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	v.patterns[expr] = re
	return re, nil
}

func matchesType(val Value, want string) bool {
	switch want {
	case "string":
		return val.Kind() == KindString
	case "number":
		return val.Kind() == KindNumber
	case "boolean":
		return val.Kind() == KindBool
	case "array":
		return val.Kind() == KindList
	case "json":
		return val.Kind() == KindJSON
	default:
		return true
	}
}

// valueLength is rune count for strings and item count for lists.
func valueLength(val Value) (int, bool) {
	switch val.Kind() {
	case KindString:
		s, _ := val.Str()
		return len([]rune(s)), true
	case KindList:
		items, _ := val.Items()
		return len(items), true
	default:
		return 0, false
	}
}

// inEnum requires every list item to be allowed; scalars compare by rendered text.
func inEnum(val Value, allowed []string) bool {
	contains := func(s string) bool {
		for _, a := range allowed {
			if a == s {
				return true
			}
		}
		return false
	}

	if items, ok := val.Items(); ok {
		for _, item := range items {
			if !contains(item.String()) {
				return false
			}
		}
		return true
	}
	return contains(val.String())
}

func isURL(val Value) bool {
	s, ok := val.Str()
	if !ok {
		return false
	}
	u, err := url.ParseRequestURI(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// batchSlug is the slug a row will claim: its explicit slug, or the one derived
// from its title.
func batchSlug(row RawRow) string {
	if s, ok := row.Get("slug").Str(); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	title := rowTitle(row)
	if title == "" {
		return ""
	}
	return DeriveSlug(title)
}

// rowTitle returns the row's title, falling back to name.
func rowTitle(row RawRow) string {
	for _, col := range []string{"title", "name"} {
		if s, ok := row.Get(col).Str(); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func splitSeverity(issues []ValidationError) (errs, warns []ValidationError) {
	for _, i := range issues {
		if i.Severity == SeverityWarning {
			warns = append(warns, i)
		} else {
			errs = append(errs, i)
		}
	}
	return errs, warns
}

// FormatValidationErrors renders issues as "field: message" strings.
func FormatValidationErrors(issues []ValidationError) []string {
	out := make([]string, len(issues))
	for i, e := range issues {
		out[i] = e.Error()
	}
	return out
}
