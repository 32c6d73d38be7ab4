package scoring

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/rotisserie/eris"
)

// ValueKind discriminates the variants of Value.
type ValueKind int

const (
	KindUnset ValueKind = iota
	KindNumeric
	KindText
)

// Value is the raw input a factor was scored from: a number, a piece of
// text, or nothing at all. The zero Value is Unset.
type Value struct {
	kind ValueKind
	num  float64
	text string
}

// Numeric returns a numeric Value.
func Numeric(n float64) Value { return Value{kind: KindNumeric, num: n} }

// Text returns a text Value.
func Text(s string) Value { return Value{kind: KindText, text: s} }

// Unset returns the empty Value.
func Unset() Value { return Value{} }

// Kind reports which variant v holds.
func (v Value) Kind() ValueKind { return v.kind }

// Number returns the numeric payload and whether v is Numeric.
func (v Value) Number() (float64, bool) {
	return v.num, v.kind == KindNumeric
}

// Str returns the text payload and whether v is Text.
func (v Value) Str() (string, bool) {
	return v.text, v.kind == KindText
}

// Display renders the value for explanations and exports.
func (v Value) Display() string {
	switch v.kind {
	case KindNumeric:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindText:
		return v.text
	default:
		return "Unknown"
	}
}

// MarshalJSON encodes Numeric as a JSON number, Text as a string and Unset as null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumeric:
		return json.Marshal(v.num)
	case KindText:
		return json.Marshal(v.text)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*v = Unset()
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return eris.Wrap(err, "scoring: decode text value")
		}
		*v = Text(s)
		return nil
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return eris.Wrap(err, "scoring: decode numeric value")
		}
		*v = Numeric(n)
		return nil
	}
}
