package core

import (
	"encoding/json"
	"testing"
)

func TestValue_Kinds(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want ValueKind
	}{
		{name: "zero value", v: Value{}, want: KindNull},
		{name: "null", v: Null(), want: KindNull},
		{name: "blank text", v: Text("  "), want: KindNull},
		{name: "text", v: Text(" x "), want: KindString},
		{name: "number", v: Number(1), want: KindNumber},
		{name: "bool", v: Bool(false), want: KindBool},
		{name: "list", v: List(String("a")), want: KindList},
		{name: "json", v: JSON(map[string]any{}), want: KindJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.Kind(); got != tt.want {
				t.Errorf("Kind() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValue_IsBlank(t *testing.T) {
	tests := []struct {
		v    Value
		want bool
	}{
		{Null(), true},
		{String(""), true},
		{String(" \t"), true},
		{String("x"), false},
		{Number(0), false},
		{Bool(false), false},
		{List(), false},
	}

	for _, tt := range tests {
		if got := tt.v.IsBlank(); got != tt.want {
			t.Errorf("%v (%v).IsBlank() = %v, want %v", tt.v, tt.v.Kind(), got, tt.want)
		}
	}
}

func TestValue_String(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{Null(), ""},
		{String("paris"), "paris"},
		{Number(12.5), "12.5"},
		{Number(40), "40"},
		{Bool(true), "true"},
		{StringList([]string{"a", "b"}), "a, b"},
		{JSON(map[string]any{"k": "v"}), `{"k":"v"}`},
	}

	for _, tt := range tests {
		if got := tt.v.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestValue_ListIsCopied(t *testing.T) {
	items := []Value{String("a"), String("b")}
	v := List(items...)
	items[0] = String("changed")

	got, _ := v.Items()
	if s, _ := got[0].Str(); s != "a" {
		t.Errorf("List shares backing array with caller: got %q", s)
	}
}

// A JSON document that is an array must not come back as a List.
func TestValue_WireKeepsKind(t *testing.T) {
	values := []Value{
		Null(),
		String("x"),
		Number(3),
		Bool(true),
		StringList([]string{"a", "b"}),
		JSON([]any{"a", "b"}),
	}

	for _, v := range values {
		t.Run(v.Kind().String(), func(t *testing.T) {
			data, err := json.Marshal(v)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			var got Value
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("Unmarshal(%s) error = %v", data, err)
			}
			if got.Kind() != v.Kind() || !got.Equal(v) {
				t.Errorf("round trip of %s = %v (%v), want %v (%v)", data, got, got.Kind(), v, v.Kind())
			}
		})
	}
}

func TestValue_UnmarshalUnknownKind(t *testing.T) {
	var v Value
	if err := json.Unmarshal([]byte(`{"kind":"date","value":"2024-01-01"}`), &v); err == nil {
		t.Error("Unmarshal() expected error for unknown kind")
	}
}
