// Package domain contains core business types and interfaces.
//
// This file defines Value, the tagged union used for every input parameter,
// step input and step result so that snapshots can be hashed and diffed
// without reflecting over open-ended maps.
package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// ValueKind names the permitted kinds of a Value.
type ValueKind string

const (
	KindNumber ValueKind = "number"
	KindText   ValueKind = "text"
	KindBool   ValueKind = "bool"
	KindRecord ValueKind = "record"
)

// Value holds exactly one of a number, a text, a boolean or a small record of
// nested Values. The zero Value is empty and encodes as JSON null.
type Value struct {
	kind   ValueKind
	num    float64
	text   string
	flag   bool
	record map[string]Value
}

// NumberValue returns a numeric Value.
func NumberValue(n float64) Value { return Value{kind: KindNumber, num: n} }

// TextValue returns a text Value.
func TextValue(s string) Value { return Value{kind: KindText, text: s} }

// BoolValue returns a boolean Value.
func BoolValue(b bool) Value { return Value{kind: KindBool, flag: b} }

// RecordValue returns a record Value. The map is copied.
func RecordValue(fields map[string]Value) Value {
	rec := make(map[string]Value, len(fields))
	for k, v := range fields {
		rec[k] = v
	}
	return Value{kind: KindRecord, record: rec}
}

// Kind returns the kind of the value, or "" for the empty value.
func (v Value) Kind() ValueKind { return v.kind }

// IsZero reports whether the value is empty.
func (v Value) IsZero() bool { return v.kind == "" }

// AsNumber returns the numeric content and true if v is a number.
func (v Value) AsNumber() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

// AsText returns the text content and true if v is text.
func (v Value) AsText() (string, bool) {
	if v.kind != KindText {
		return "", false
	}
	return v.text, true
}

// AsBool returns the boolean content and true if v is a boolean.
func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.flag, true
}

// Fields returns the record's field names in sorted order.
func (v Value) Fields() []string {
	if v.kind != KindRecord {
		return nil
	}
	keys := make([]string, 0, len(v.record))
	for k := range v.record {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Field returns a record field.
func (v Value) Field(name string) (Value, bool) {
	if v.kind != KindRecord {
		return Value{}, false
	}
	f, ok := v.record[name]
	return f, ok
}

// Equal reports deep equality of two values.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNumber:
		return v.num == o.num
	case KindText:
		return v.text == o.text
	case KindBool:
		return v.flag == o.flag
	case KindRecord:
		if len(v.record) != len(o.record) {
			return false
		}
		for k, fv := range v.record {
			ov, ok := o.record[k]
			if !ok || !fv.Equal(ov) {
				return false
			}
		}
	}
	return true
}

// String renders the value for transcripts and diff reports.
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindText:
		return v.text
	case KindBool:
		return strconv.FormatBool(v.flag)
	case KindRecord:
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range v.Fields() {
			if i > 0 {
				buf.WriteString(", ")
			}
			buf.WriteString(k)
			buf.WriteString(": ")
			buf.WriteString(v.record[k].String())
		}
		buf.WriteByte('}')
		return buf.String()
	}
	return ""
}

// MarshalJSON encodes the value in its natural JSON form.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return nil, fmt.Errorf("cannot encode non-finite number %v", v.num)
		}
		return json.Marshal(v.num)
	case KindText:
		return json.Marshal(v.text)
	case KindBool:
		return json.Marshal(v.flag)
	case KindRecord:
		// encoding/json writes map keys in sorted order.
		return json.Marshal(v.record)
	}
	return []byte("null"), nil
}

// UnmarshalJSON decodes a number, string, boolean, object or null.
// Arrays are not a permitted kind.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ValueOf converts a decoded JSON/YAML scalar or object into a Value.
func ValueOf(raw interface{}) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Value{}, nil
	case Value:
		return x, nil
	case float64:
		return NumberValue(x), nil
	case float32:
		return NumberValue(float64(x)), nil
	case int:
		return NumberValue(float64(x)), nil
	case int64:
		return NumberValue(float64(x)), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Value{}, err
		}
		return NumberValue(f), nil
	case string:
		return TextValue(x), nil
	case bool:
		return BoolValue(x), nil
	case map[string]interface{}:
		rec := make(map[string]Value, len(x))
		for k, fv := range x {
			parsed, err := ValueOf(fv)
			if err != nil {
				return Value{}, fmt.Errorf("field %q: %w", k, err)
			}
			rec[k] = parsed
		}
		return Value{kind: KindRecord, record: rec}, nil
	}
	return Value{}, fmt.Errorf("unsupported value type %T", raw)
}

// =============================================================================
// Params
// =============================================================================

// Params is a named set of values, used for design inputs and step inputs.
type Params map[string]Value

// Keys returns the parameter names in sorted order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Numbers returns the numeric parameters only.
func (p Params) Numbers() map[string]float64 {
	out := make(map[string]float64, len(p))
	for k, v := range p {
		if n, ok := v.AsNumber(); ok {
			out[k] = n
		}
	}
	return out
}

// Clone returns a shallow copy of p.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// NumberParams builds Params from plain numbers.
func NumberParams(values map[string]float64) Params {
	out := make(Params, len(values))
	for k, v := range values {
		out[k] = NumberValue(v)
	}
	return out
}
