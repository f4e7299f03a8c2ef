package core

// parse.go is the tabular parser: raw file bytes in, normalized typed rows out.
//
// Parsing never aborts on a bad line. Malformed lines become row-indexed parse
// errors and are left out of Rows; an unparseable _json cell becomes a
// warning-level parse error and a Null value on an otherwise kept row.

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// ParseError describes a problem found while parsing one row.
type ParseError struct {
	RowNumber int      `json:"rowNumber"`
	Field     string   `json:"field,omitempty"`
	Message   string   `json:"message"`
	Severity  Severity `json:"severity"`
}

func (e ParseError) String() string {
	if e.Field != "" {
		return fmt.Sprintf("row %d: %s: %s", e.RowNumber, e.Field, e.Message)
	}
	return fmt.Sprintf("row %d: %s", e.RowNumber, e.Message)
}

// ParseResult is the output of Parse.
type ParseResult struct {
	Headers     []string     `json:"headers"`
	Rows        []RawRow     `json:"rows"`
	ParseErrors []ParseError `json:"parseErrors"`
}

// Strings returns every parse error formatted with its row number.
func (r ParseResult) Strings() []string {
	out := make([]string, len(r.ParseErrors))
	for i, e := range r.ParseErrors {
		out[i] = e.String()
	}
	return out
}

// Warnings returns only the warning-level parse errors, formatted.
func (r ParseResult) Warnings() []string {
	var out []string
	for _, e := range r.ParseErrors {
		if e.Severity == SeverityWarning {
			out = append(out, e.String())
		}
	}
	return out
}

// ErrEmptyFile is returned by Parse when there is no header row.
var ErrEmptyFile = errors.New("empty file")

// Parse converts file bytes into normalized rows. It only returns an error when
// the file has no usable header row; everything else is reported per row.
func Parse(data []byte) (ParseResult, error) {
	var result ParseResult

	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	data = sanitizeUTF8(data)

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err == io.EOF {
		return result, ErrEmptyFile
	}
	if err != nil {
		return result, fmt.Errorf("invalid csv header: %w", err)
	}

	result.Headers = make([]string, len(header))
	for i, h := range header {
		result.Headers[i] = NormalizeColumnName(h)
	}
	if isEmptyRow(result.Headers) {
		return result, ErrEmptyFile
	}

	rowNum := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		rowNum++

		if err != nil {
			result.ParseErrors = append(result.ParseErrors, ParseError{
				RowNumber: rowNum,
				Message:   fmt.Sprintf("malformed line: %v", err),
				Severity:  SeverityError,
			})
			continue
		}

		if isEmptyRow(record) {
			continue
		}

		if len(record) > len(result.Headers) && !isEmptyRow(record[len(result.Headers):]) {
			result.ParseErrors = append(result.ParseErrors, ParseError{
				RowNumber: rowNum,
				Message:   fmt.Sprintf("expected at most %d columns, got %d", len(result.Headers), len(record)),
				Severity:  SeverityError,
			})
			continue
		}

		row := RawRow{RowNumber: rowNum, Columns: make(map[string]Value, len(result.Headers))}
		for i, col := range result.Headers {
			if col == "" {
				continue
			}
			raw := ""
			if i < len(record) {
				raw = record[i]
			}
			v, cerr := CoerceCell(col, raw)
			if cerr != nil {
				pe := ParseError{
					RowNumber: rowNum,
					Field:     col,
					Message:   fmt.Sprintf("invalid JSON: %v", cerr),
					Severity:  SeverityWarning,
				}
				result.ParseErrors = append(result.ParseErrors, pe)
				row.Warnings = append(row.Warnings, ValidationError{
					Field:    col,
					Value:    CleanCell(raw),
					Message:  pe.Message,
					Severity: SeverityWarning,
				})
			}
			row.Columns[col] = v
		}
		result.Rows = append(result.Rows, row)
	}

	return result, nil
}

// sanitizeUTF8 replaces invalid UTF-8 sequences with the replacement character.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('\uFFFD')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
