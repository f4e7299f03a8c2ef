package core

// value.go defines the tagged cell value used for every parsed column.
//
// A Value is exactly one of Null, String, Number, Bool, List or JSON. Consumers
// switch on Kind() rather than type-asserting, so a new kind shows up as a
// missing case instead of a silent runtime miss.

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ValueKind identifies which variant a Value holds.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindJSON
)

// String returns the lower-case name used in rule sets and the wire encoding.
func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	case KindList:
		return "array"
	case KindJSON:
		return "json"
	default:
		return "unknown"
	}
}

func parseValueKind(s string) (ValueKind, bool) {
	switch s {
	case "null":
		return KindNull, true
	case "string":
		return KindString, true
	case "number":
		return KindNumber, true
	case "boolean":
		return KindBool, true
	case "array":
		return KindList, true
	case "json":
		return KindJSON, true
	default:
		return KindNull, false
	}
}

// Value is an immutable tagged cell value. The zero Value is Null.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
	list []Value
	doc  any
}

// Null returns the null value.
func Null() Value { return Value{} }

// String wraps s. Blank strings are still strings; use Text to get Null for blanks.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Text trims s and returns Null when nothing is left.
func Text(s string) Value {
	s = strings.TrimSpace(s)
	if s == "" {
		return Null()
	}
	return String(s)
}

// Number wraps f.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Bool wraps b.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// List wraps items. The slice is copied.
func List(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindList, list: cp}
}

// StringList builds a List of String values.
func StringList(items []string) Value {
	vals := make([]Value, len(items))
	for i, s := range items {
		vals[i] = String(s)
	}
	return Value{kind: KindList, list: vals}
}

// JSON wraps an already-decoded JSON document (map, slice, scalar).
func JSON(doc any) Value { return Value{kind: KindJSON, doc: doc} }

// Kind reports the variant held by v.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether v is Null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsBlank reports whether v is Null or a whitespace-only string.
func (v Value) IsBlank() bool {
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return strings.TrimSpace(v.str) == ""
	default:
		return false
	}
}

// Str returns the string payload and whether v is a String.
func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

// Num returns the numeric payload and whether v is a Number.
func (v Value) Num() (float64, bool) { return v.num, v.kind == KindNumber }

// Boolean returns the bool payload and whether v is a Bool.
func (v Value) Boolean() (bool, bool) { return v.b, v.kind == KindBool }

// Items returns the list payload and whether v is a List.
func (v Value) Items() ([]Value, bool) { return v.list, v.kind == KindList }

// Doc returns the JSON payload and whether v is JSON.
func (v Value) Doc() (any, bool) { return v.doc, v.kind == KindJSON }

// Interface converts v to plain Go values suitable for JSON documents.
func (v Value) Interface() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Interface()
		}
		return out
	case KindJSON:
		return v.doc
	default:
		return nil
	}
}

// String renders v for messages and CSV output. Null renders as "".
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindList:
		parts := make([]string, len(v.list))
		for i, item := range v.list {
			parts[i] = item.String()
		}
		return strings.Join(parts, ", ")
	case KindJSON:
		b, err := json.Marshal(v.doc)
		if err != nil {
			return fmt.Sprintf("%v", v.doc)
		}
		return string(b)
	default:
		return ""
	}
}

// Equal reports deep equality between two values.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindJSON:
		return v.String() == o.String()
	default:
		return false
	}
}

// wireValue is the persisted form of a Value. The kind tag keeps JSON documents
// that happen to be arrays distinct from List values.
type wireValue struct {
	Kind  string          `json:"kind"`
	Value json.RawMessage `json:"value,omitempty"`
}

// MarshalJSON encodes v with its kind tag.
func (v Value) MarshalJSON() ([]byte, error) {
	w := wireValue{Kind: v.kind.String()}
	if v.kind != KindNull {
		var payload any
		switch v.kind {
		case KindList:
			payload = v.list
		default:
			payload = v.Interface()
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s value: %w", v.kind, err)
		}
		w.Value = raw
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the tagged form produced by MarshalJSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	kind, ok := parseValueKind(w.Kind)
	if !ok {
		return fmt.Errorf("unknown value kind %q", w.Kind)
	}

	switch kind {
	case KindNull:
		*v = Null()
	case KindString:
		var s string
		if err := json.Unmarshal(w.Value, &s); err != nil {
			return err
		}
		*v = String(s)
	case KindNumber:
		var f float64
		if err := json.Unmarshal(w.Value, &f); err != nil {
			return err
		}
		*v = Number(f)
	case KindBool:
		var b bool
		if err := json.Unmarshal(w.Value, &b); err != nil {
			return err
		}
		*v = Bool(b)
	case KindList:
		var items []Value
		if err := json.Unmarshal(w.Value, &items); err != nil {
			return err
		}
		*v = Value{kind: KindList, list: items}
	case KindJSON:
		var doc any
		if err := json.Unmarshal(w.Value, &doc); err != nil {
			return err
		}
		*v = JSON(doc)
	}
	return nil
}
