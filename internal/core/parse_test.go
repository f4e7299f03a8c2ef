package core

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

// ============================================================================
// sanitizeUTF8 Tests
// ============================================================================

func TestSanitizeUTF8(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  []byte
	}{
		{name: "valid UTF-8 unchanged", input: []byte("hello world"), want: []byte("hello world")},
		{name: "empty input", input: []byte{}, want: []byte{}},
		{name: "accented letters preserved", input: []byte("Sacr\xc3\xa9-C\xc5\x93ur"), want: []byte("Sacr\xc3\xa9-C\xc5\x93ur")},
		{name: "invalid byte replaced", input: []byte{0x80}, want: []byte("�")},
		{name: "truncated multibyte sequence", input: []byte{0xc3}, want: []byte("�")},
		{name: "mixed valid and invalid", input: []byte("hello\x80world"), want: []byte("hello�world")},
		{name: "Latin-1 high byte replaced", input: []byte("caf\xe9"), want: []byte("caf�")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizeUTF8(tt.input)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("sanitizeUTF8(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// ============================================================================
// isEmptyRow Tests
// ============================================================================

func TestIsEmptyRow(t *testing.T) {
	tests := []struct {
		name string
		row  []string
		want bool
	}{
		{name: "empty slice", row: []string{}, want: true},
		{name: "all blank", row: []string{"", "  ", "\t"}, want: true},
		{name: "one value", row: []string{"", "x", ""}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isEmptyRow(tt.row); got != tt.want {
				t.Errorf("isEmptyRow(%q) = %v, want %v", tt.row, got, tt.want)
			}
		})
	}
}

// ============================================================================
// Parse Tests
// ============================================================================

func TestParse_NormalizesHeadersAndCoerces(t *testing.T) {
	data := "\xef\xbb\xbfTitle, Tags Array ,Enabled Boolean,Price Number,Notes\n" +
		`Eiffel Tower Tour,"a, b ,c",Yes,12.5abc,` + "\n"

	res, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	wantHeaders := []string{"title", "tags_array", "enabled_boolean", "price_number", "notes"}
	if strings.Join(res.Headers, "|") != strings.Join(wantHeaders, "|") {
		t.Errorf("Headers = %v, want %v", res.Headers, wantHeaders)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("len(Rows) = %d, want 1", len(res.Rows))
	}

	row := res.Rows[0]
	if row.RowNumber != 1 {
		t.Errorf("RowNumber = %d, want 1", row.RowNumber)
	}
	checks := map[string]Value{
		"title":           String("Eiffel Tower Tour"),
		"tags_array":      StringList([]string{"a", "b", "c"}),
		"enabled_boolean": Bool(true),
		"price_number":    Null(),
		"notes":           Null(),
	}
	for col, want := range checks {
		if got := row.Get(col); !got.Equal(want) {
			t.Errorf("%s = %v (%v), want %v (%v)", col, got, got.Kind(), want, want.Kind())
		}
	}
	if len(res.ParseErrors) != 0 {
		t.Errorf("ParseErrors = %v, want none", res.ParseErrors)
	}
}

func TestParse_BadJSONIsWarning(t *testing.T) {
	data := "title,itinerary_json\n" +
		"Louvre Highlights,{broken\n" +
		`Orsay Tour,"{""day"":1}"` + "\n"

	res, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("len(Rows) = %d, want 2 (bad JSON must not drop the row)", len(res.Rows))
	}
	if !res.Rows[0].Get("itinerary_json").IsNull() {
		t.Errorf("itinerary_json = %v, want null", res.Rows[0].Get("itinerary_json"))
	}
	if len(res.Rows[0].Warnings) != 1 {
		t.Errorf("row warnings = %v, want 1", res.Rows[0].Warnings)
	}
	if res.Rows[1].Get("itinerary_json").Kind() != KindJSON {
		t.Errorf("row 2 itinerary_json kind = %v, want json", res.Rows[1].Get("itinerary_json").Kind())
	}

	if len(res.ParseErrors) != 1 {
		t.Fatalf("ParseErrors = %v, want 1", res.ParseErrors)
	}
	pe := res.ParseErrors[0]
	if pe.Severity != SeverityWarning || pe.RowNumber != 1 || pe.Field != "itinerary_json" {
		t.Errorf("ParseError = %+v, want warning on row 1 itinerary_json", pe)
	}
	if len(res.Warnings()) != 1 {
		t.Errorf("Warnings() = %v, want 1", res.Warnings())
	}
}

func TestParse_OverlongLineExcluded(t *testing.T) {
	data := "title,price_number\n" +
		"First,10\n" +
		"Second,20,surprise\n" +
		"Third,30,,\n"

	res, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if len(res.Rows) != 2 {
		t.Fatalf("len(Rows) = %d, want 2", len(res.Rows))
	}
	if res.Rows[0].RowNumber != 1 || res.Rows[1].RowNumber != 3 {
		t.Errorf("row numbers = %d, %d, want 1, 3", res.Rows[0].RowNumber, res.Rows[1].RowNumber)
	}
	if len(res.ParseErrors) != 1 {
		t.Fatalf("ParseErrors = %v, want 1", res.ParseErrors)
	}
	if pe := res.ParseErrors[0]; pe.RowNumber != 2 || pe.Severity != SeverityError {
		t.Errorf("ParseError = %+v, want error on row 2", pe)
	}
	if got := res.Strings()[0]; !strings.HasPrefix(got, "row 2: ") {
		t.Errorf("Strings()[0] = %q, want row prefix", got)
	}
}

func TestParse_ShortRowsAndBlankLines(t *testing.T) {
	data := "title,description,price_number\n" +
		"Only Title\n" +
		",,\n" +
		"Full,Desc,5\n"

	res, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("len(Rows) = %d, want 2", len(res.Rows))
	}
	if !res.Rows[0].Get("description").IsNull() {
		t.Errorf("missing cell = %v, want null", res.Rows[0].Get("description"))
	}
	if res.Rows[1].RowNumber != 3 {
		t.Errorf("RowNumber = %d, want 3 (blank row still counts)", res.Rows[1].RowNumber)
	}
}

func TestParse_EmptyFile(t *testing.T) {
	for _, data := range []string{"", "\xef\xbb\xbf", " , ,\n"} {
		if _, err := Parse([]byte(data)); !errors.Is(err, ErrEmptyFile) {
			t.Errorf("Parse(%q) error = %v, want ErrEmptyFile", data, err)
		}
	}
}

func TestParse_HeaderOnly(t *testing.T) {
	res, err := Parse([]byte("title,price_number\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(res.Rows) != 0 {
		t.Errorf("len(Rows) = %d, want 0", len(res.Rows))
	}
}
