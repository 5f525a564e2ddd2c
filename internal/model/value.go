package model

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Kind discriminates the variants of Value.
type Kind int

const (
	// KindString holds free text.
	KindString Kind = iota + 1
	// KindNumber holds a finite float64.
	KindNumber
	// KindBool holds a boolean flag.
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	default:
		return "invalid"
	}
}

// Value is a tagged union of the value shapes a proposed change can carry.
// The zero Value is invalid; use StringValue, NumberValue or BoolValue.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
}

// StringValue wraps s.
func StringValue(s string) Value { return Value{kind: KindString, str: s} }

// NumberValue wraps n.
func NumberValue(n float64) Value { return Value{kind: KindNumber, num: n} }

// BoolValue wraps b.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// Kind reports which variant v holds.
func (v Value) Kind() Kind { return v.kind }

// Valid reports whether v holds any variant.
func (v Value) Valid() bool { return v.kind != 0 }

// Str returns the string variant. ok is false for other kinds.
func (v Value) Str() (s string, ok bool) { return v.str, v.kind == KindString }

// Num returns the number variant. ok is false for other kinds.
func (v Value) Num() (n float64, ok bool) { return v.num, v.kind == KindNumber }

// Bool returns the bool variant. ok is false for other kinds.
func (v Value) Bool() (b bool, ok bool) { return v.b, v.kind == KindBool }

// IsEmpty reports whether v counts as "no value": invalid, or a blank string.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case KindString:
		return strings.TrimSpace(v.str) == ""
	case KindNumber, KindBool:
		return false
	default:
		return true
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// MarshalJSON encodes v as a bare JSON string, number or boolean.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return nil, eris.New("model: non-finite number value")
		}
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a bare JSON string, number or boolean.
// null decodes to the invalid Value; objects and arrays are rejected.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = Value{}
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return eris.Wrap(err, "model: decode string value")
		}
		*v = StringValue(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return eris.Wrap(err, "model: decode bool value")
		}
		*v = BoolValue(b)
	case '{', '[':
		return eris.Errorf("model: value must be a string, number or boolean, got %s", string(data))
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return eris.Wrap(err, "model: decode number value")
		}
		*v = NumberValue(n)
	}
	return nil
}
