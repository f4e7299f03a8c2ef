package core

import (
	"strings"
	"testing"
)

func intPtr(i int) *int           { return &i }
func floatPtr(f float64) *float64 { return &f }

// testTemplate mirrors the experience seed with a rule for every check kind.
func testTemplate() Template {
	return Template{
		ID:             "experience-test",
		Name:           "Experiences",
		TargetType:     TargetExperience,
		RequiredFields: []string{"title", "price_number"},
		OptionalFields: map[string]string{
			"description":  "Long description",
			"slug":         "Explicit slug",
			"city":         "City slug",
			"category":     "Category slug",
			"difficulty":   "easy, moderate or hard",
			"booking_url":  "Partner booking link",
			"sku":          "Partner SKU",
			"tags_array":   "Comma-separated tags",
			"currency":     "ISO currency",
			"featured":     "Featured flag",
			"image_url":    "Hero image",
			"meta_title":   "SEO title",
			"duration":     "Duration text",
			"languages":    "Languages",
		},
		ValidationRules: map[string]RuleSet{
			"title":        {Type: "string", MinLength: intPtr(3), MaxLength: intPtr(40)},
			"price_number": {Type: "number", Min: floatPtr(0), Max: floatPtr(10000)},
			"difficulty":   {Enum: []string{"easy", "moderate", "hard"}},
			"booking_url":  {Format: "url"},
			"sku":          {Pattern: `^[A-Z]{3}-\d{3}$`},
			"tags_array":   {Type: "array", MaxLength: intPtr(2), Enum: []string{"museum", "outdoor", "food"}},
		},
		Version: 1,
		Active:  true,
	}
}

func row(n int, cols map[string]Value) RawRow {
	return RawRow{RowNumber: n, Columns: cols}
}

func validCols(title string) map[string]Value {
	return map[string]Value{
		"title":        String(title),
		"price_number": Number(29.4),
	}
}

func TestValidateRow_RequiredFields(t *testing.T) {
	v := NewRowValidator(testTemplate())

	tests := []struct {
		name      string
		cols      map[string]Value
		wantField []string
	}{
		{name: "all present", cols: validCols("Eiffel Tower Tour")},
		{name: "absent", cols: map[string]Value{"price_number": Number(1)}, wantField: []string{"title"}},
		{name: "null", cols: map[string]Value{"title": Null(), "price_number": Number(1)}, wantField: []string{"title"}},
		{name: "blank string", cols: map[string]Value{"title": String("   "), "price_number": Number(1)}, wantField: []string{"title"}},
		{name: "both missing", cols: map[string]Value{"description": String("lots of optional data")}, wantField: []string{"title", "price_number"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := v.ValidateRow(row(1, tt.cols))
			var got []string
			for _, i := range issues {
				if i.Message == "required field is empty" {
					got = append(got, i.Field)
				}
			}
			if strings.Join(got, ",") != strings.Join(tt.wantField, ",") {
				t.Errorf("required-field errors on %v, want %v (issues %v)", got, tt.wantField, issues)
			}
		})
	}
}

func TestValidateRow_Rules(t *testing.T) {
	v := NewRowValidator(testTemplate())

	tests := []struct {
		name       string
		field      string
		value      Value
		wantErrors int
		wantMsg    string
	}{
		{name: "title too short", field: "title", value: String("ab"), wantErrors: 1, wantMsg: "below minimum 3"},
		{name: "title too long", field: "title", value: String(strings.Repeat("x", 41)), wantErrors: 1, wantMsg: "exceeds maximum 40"},
		{name: "price negative", field: "price_number", value: Number(-1), wantErrors: 1, wantMsg: "below minimum"},
		{name: "price wrong type", field: "price_number", value: String("cheap"), wantErrors: 1, wantMsg: "expected number"},
		{name: "enum miss", field: "difficulty", value: String("extreme"), wantErrors: 1, wantMsg: "value must be one of"},
		{name: "enum hit", field: "difficulty", value: String("easy")},
		{name: "bad url", field: "booking_url", value: String("not a url"), wantErrors: 1, wantMsg: "invalid url"},
		{name: "ftp url", field: "booking_url", value: String("ftp://example.com/x"), wantErrors: 1, wantMsg: "invalid url"},
		{name: "good url", field: "booking_url", value: String("https://example.com/book?id=1")},
		{name: "pattern miss", field: "sku", value: String("abc-1"), wantErrors: 1, wantMsg: "does not match pattern"},
		{name: "pattern hit", field: "sku", value: String("PAR-001")},
		{
			name:       "independent checks accumulate",
			field:      "tags_array",
			value:      StringList([]string{"museum", "nightlife", "food"}),
			wantErrors: 2,
		},
		{name: "null skips rules", field: "difficulty", value: Null()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cols := validCols("Eiffel Tower Tour")
			cols[tt.field] = tt.value

			var errs []ValidationError
			for _, i := range v.ValidateRow(row(1, cols)) {
				if i.Severity == SeverityError && i.Field == tt.field {
					errs = append(errs, i)
				}
			}
			if len(errs) != tt.wantErrors {
				t.Fatalf("errors on %s = %v, want %d", tt.field, errs, tt.wantErrors)
			}
			if tt.wantMsg != "" && !strings.Contains(errs[0].Message, tt.wantMsg) {
				t.Errorf("message = %q, want it to contain %q", errs[0].Message, tt.wantMsg)
			}
		})
	}
}

func TestValidateRow_SlugFormat(t *testing.T) {
	v := NewRowValidator(testTemplate())

	cols := validCols("Eiffel Tower Tour")
	cols["slug"] = String("Not A Slug")
	issues := v.ValidateRow(row(1, cols))
	if len(issues) != 1 || issues[0].Field != "slug" {
		t.Fatalf("issues = %v, want one slug error", issues)
	}

	cols["slug"] = String("eiffel-tower-2")
	if issues := v.ValidateRow(row(1, cols)); len(issues) != 0 {
		t.Errorf("issues = %v, want none for a valid slug", issues)
	}
}

func TestValidate_RequiredFieldRejection(t *testing.T) {
	cols := map[string]Value{
		"price_number": Number(10),
		"description":  String("Skip the line"),
		"city":         String("paris"),
		"category":     String("tours"),
		"difficulty":   String("easy"),
		"featured":     Bool(true),
		"tags_array":   StringList([]string{"museum"}),
	}

	out := Validate([]RawRow{row(1, cols)}, testTemplate())
	if len(out.ValidRows) != 0 {
		t.Errorf("ValidRows = %v, want none", out.ValidRows)
	}
	if len(out.Rejected) != 1 || out.Rejected[0].RowNumber != 1 {
		t.Fatalf("Rejected = %v, want row 1", out.Rejected)
	}
}

func TestValidate_DuplicateSlug(t *testing.T) {
	rows := []RawRow{
		row(1, validCols("Eiffel Tower Tour")),
		row(2, validCols("Louvre Highlights")),
		row(3, validCols("Eiffel  Tower   Tour!")),
	}

	out := Validate(rows, testTemplate())

	if len(out.ValidRows) != 2 || out.ValidRows[0].RowNumber != 1 || out.ValidRows[1].RowNumber != 2 {
		t.Fatalf("ValidRows = %v, want rows 1 and 2", out.ValidRows)
	}
	if len(out.Rejected) != 1 {
		t.Fatalf("Rejected = %v, want 1", out.Rejected)
	}
	rej := out.Rejected[0]
	if rej.RowNumber != 3 || len(rej.Errors) != 1 {
		t.Fatalf("rejected row = %+v, want row 3 with one error", rej)
	}
	if msg := rej.Errors[0].Message; !strings.Contains(msg, "duplicate slug") || !strings.Contains(msg, "row 1") {
		t.Errorf("message = %q, want duplicate slug referencing row 1", msg)
	}
}

func TestValidate_ExplicitSlugDuplicate(t *testing.T) {
	first := validCols("Seine Cruise")
	first["slug"] = String("paris-boat")
	second := validCols("Evening Seine Cruise")
	second["slug"] = String("paris-boat")

	out := Validate([]RawRow{row(4, first), row(7, second)}, testTemplate())
	if len(out.Rejected) != 1 || out.Rejected[0].RowNumber != 7 {
		t.Fatalf("Rejected = %v, want row 7", out.Rejected)
	}
	if !strings.Contains(out.Rejected[0].Errors[0].Message, "row 4") {
		t.Errorf("message = %q, want reference to row 4", out.Rejected[0].Errors[0].Message)
	}
}

// A rejected row never claims its slug.
func TestValidate_RejectedRowDoesNotClaimSlug(t *testing.T) {
	invalid := map[string]Value{"title": String("Eiffel Tower Tour")}
	rows := []RawRow{row(1, invalid), row(2, validCols("Eiffel Tower Tour"))}

	out := Validate(rows, testTemplate())
	if len(out.ValidRows) != 1 || out.ValidRows[0].RowNumber != 2 {
		t.Errorf("ValidRows = %v, want row 2", out.ValidRows)
	}
}

func TestValidate_WarningsDoNotReject(t *testing.T) {
	r := row(1, validCols("Eiffel Tower Tour"))
	r.Warnings = []ValidationError{{
		Field:    "itinerary_json",
		Message:  "invalid JSON: unexpected end of input",
		Severity: SeverityWarning,
	}}

	out := Validate([]RawRow{r}, testTemplate())
	if len(out.ValidRows) != 1 {
		t.Fatalf("ValidRows = %v, want the row", out.ValidRows)
	}
	if w := out.RowWarnings[1]; len(w) != 1 || w[0].Field != "itinerary_json" {
		t.Errorf("RowWarnings[1] = %v, want the JSON warning", w)
	}
}

func TestValidate_InvalidPatternInTemplate(t *testing.T) {
	tmpl := testTemplate()
	tmpl.ValidationRules["sku"] = RuleSet{Pattern: "(["}

	cols := validCols("Eiffel Tower Tour")
	cols["sku"] = String("PAR-001")
	out := Validate([]RawRow{row(1, cols)}, tmpl)
	if len(out.Rejected) != 1 || !strings.Contains(out.Rejected[0].Errors[0].Message, "invalid pattern") {
		t.Errorf("Rejected = %v, want an invalid pattern error", out.Rejected)
	}
}
