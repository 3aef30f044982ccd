package table

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Kind identifies which scalar a Value holds.
type Kind uint8

const (
	KindString Kind = iota
	KindNumber
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	default:
		return "string"
	}
}

// Value is a single table cell: a string, a number or a boolean.
// The zero Value is the empty string.
type Value struct {
	kind Kind
	str  string // string payload, or the raw spelling of a parsed number/bool
	num  float64
	b    bool
}

// Sentinels used to keep every column populated.
var (
	// NA fills cells that were absent when a row was built.
	NA = String("N/A")
	// Unknown marks a failed enrichment.
	Unknown = String("Unknown")
)

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number returns a numeric Value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Parse types a raw text cell. Numeric text becomes a Number and
// true/false (any case) a Bool; both keep their original spelling.
// Everything else, including the empty string, stays a String.
func Parse(raw string) Value {
	s := strings.TrimSpace(raw)
	if s == "" {
		return String(raw)
	}
	switch strings.ToLower(s) {
	case "true":
		return Value{kind: KindBool, b: true, str: raw}
	case "false":
		return Value{kind: KindBool, b: false, str: raw}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !isSpecialFloat(s) {
		return Value{kind: KindNumber, num: f, str: raw}
	}
	return String(raw)
}

// isSpecialFloat reports spellings ParseFloat accepts but that are words
// in a spreadsheet (inf, nan, infinity).
func isSpecialFloat(s string) bool {
	l := strings.ToLower(strings.TrimLeft(s, "+-"))
	return l == "inf" || l == "infinity" || l == "nan"
}

// Kind returns the scalar kind.
func (v Value) Kind() Kind { return v.kind }

// Text returns the string payload. ok is false for numbers and booleans,
// which are never used as classifier input.
func (v Value) Text() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// Float returns the numeric payload.
func (v Value) Float() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

// Truth returns the boolean payload.
func (v Value) Truth() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// Measure converts the value to a number for aggregation: numbers as is,
// booleans as 1/0, anything else (including sentinels) as 0.
func (v Value) Measure() float64 {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindBool:
		if v.b {
			return 1
		}
	}
	return 0
}

// String renders the cell the way the exporter writes it.
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		if v.str != "" {
			return v.str
		}
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		if v.str != "" {
			return v.str
		}
		return strconv.FormatBool(v.b)
	default:
		return v.str
	}
}

// IsSentinel reports whether the value is NA or Unknown.
func (v Value) IsSentinel() bool {
	return v.Equal(NA) || v.Equal(Unknown)
}

// Equal compares kind and payload; the raw spelling is ignored.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	default:
		return v.str == o.str
	}
}

// MarshalJSON encodes the value as a native JSON scalar.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	default:
		return json.Marshal(v.str)
	}
}

// UnmarshalJSON decodes a JSON string, number or boolean.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case float64:
		*v = Number(x)
	case bool:
		*v = Bool(x)
	case string:
		*v = String(x)
	case nil:
		*v = NA
	default:
		*v = String(string(data))
	}
	return nil
}
