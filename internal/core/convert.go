package core

// convert.go turns raw CSV cell text into typed Values.
//
// Coercion is driven by the normalized column name:
//   - <field>_array   comma-separated list, items trimmed, empty items dropped
//   - <field>_json    structured document; a parse failure is a warning and Null
//   - <field>_boolean true/1/yes/on (any case) is true, anything else false
//   - <field>_number  float, Null when it does not parse
//
// A fixed set of legacy column names gets the same treatment without a suffix.
// Every blank cell becomes Null so required-field checks are unambiguous.

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// ColumnType is the coercion applied to a column.
type ColumnType int

const (
	ColumnText ColumnType = iota
	ColumnArray
	ColumnJSON
	ColumnBoolean
	ColumnNumber
)

// legacyColumns predate the suffix convention and keep their coercion for
// older import files.
var legacyColumns = map[string]ColumnType{
	"highlights":     ColumnArray,
	"languages":      ColumnArray,
	"featured":       ColumnBoolean,
	"bestseller":     ColumnBoolean,
	"price":          ColumnNumber,
	"original_price": ColumnNumber,
	"duration_hours": ColumnNumber,
	"max_group_size": ColumnNumber,
	"min_age":        ColumnNumber,
}

// numericRegex validates that a string is a plain decimal or scientific number.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// ColumnTypeFor returns the coercion for a normalized column name.
func ColumnTypeFor(column string) ColumnType {
	switch {
	case strings.HasSuffix(column, "_array"):
		return ColumnArray
	case strings.HasSuffix(column, "_json"):
		return ColumnJSON
	case strings.HasSuffix(column, "_boolean"):
		return ColumnBoolean
	case strings.HasSuffix(column, "_number"):
		return ColumnNumber
	}
	if t, ok := legacyColumns[column]; ok {
		return t
	}
	return ColumnText
}

// NormalizeColumnName trims, lower-cases and collapses whitespace runs to "_".
func NormalizeColumnName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.Join(strings.FieldsFunc(name, unicode.IsSpace), "_")
}

// CoerceCell converts a raw cell for the given column. The returned error is
// only ever non-nil for _json columns; callers record it as a warning.
func CoerceCell(column, raw string) (Value, error) {
	raw = CleanCell(raw)
	if raw == "" {
		return Null(), nil
	}

	switch ColumnTypeFor(column) {
	case ColumnArray:
		return ToArray(raw), nil
	case ColumnJSON:
		return ToJSON(raw)
	case ColumnBoolean:
		return ToBool(raw), nil
	case ColumnNumber:
		return ToNumber(raw), nil
	default:
		return String(raw), nil
	}
}

// ToArray splits on commas, trims each item and drops empty items.
// An input with no non-empty items is Null.
func ToArray(s string) Value {
	parts := strings.Split(s, ",")
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			items = append(items, p)
		}
	}
	if len(items) == 0 {
		return Null()
	}
	return StringList(items)
}

// ToJSON decodes a structured sub-document.
func ToJSON(s string) (Value, error) {
	var doc any
	if err := json.Unmarshal([]byte(s), &doc); err != nil {
		return Null(), err
	}
	return JSON(doc), nil
}

// ToBool maps true/1/yes/on (case-insensitive) to true and everything else to false.
func ToBool(s string) Value {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return Bool(true)
	default:
		return Bool(false)
	}
}

// ToNumber parses a float. Anything that is not entirely numeric is Null.
func ToNumber(s string) Value {
	s = strings.TrimSpace(s)
	if !numericRegex.MatchString(s) {
		return Null()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Null()
	}
	return Number(f)
}

// CleanCell removes common CSV artifacts from a cell value:
//   - Trims whitespace
//   - Removes the Excel formula wrapper (="...")
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") && len(s) >= 3 {
		s = s[2 : len(s)-1]
	}

	return strings.TrimSpace(s)
}
