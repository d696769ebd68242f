package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Value is a converted field value. It is either a Scalar or a List; a List
// is produced only for multi-valued properties and is resolved into scalars
// by the field expander before items reach a sink.
type Value interface {
	isValue()
	// Empty reports whether the value carries nothing worth writing.
	Empty() bool
}

// Scalar holds a single string, float64 or bool.
type Scalar struct {
	V any
}

// List holds the elements of a multi-valued property in source order.
type List []Scalar

func (Scalar) isValue() {}
func (List) isValue()   {}

func (s Scalar) Empty() bool {
	switch v := s.V.(type) {
	case nil:
		return true
	case string:
		return v == ""
	default:
		return false
	}
}

func (l List) Empty() bool { return len(l) == 0 }

// String returns the scalar as text, formatting non-string payloads.
func (s Scalar) String() string {
	switch v := s.V.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return formatNumber(v)
	default:
		return fmt.Sprint(v)
	}
}

func (s Scalar) MarshalJSON() ([]byte, error) { return json.Marshal(s.V) }

func (s *Scalar) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch v.(type) {
	case nil, string, float64, bool:
		s.V = v
		return nil
	}
	return fmt.Errorf("scalar: unsupported JSON %s", b)
}

// Str, Num and Bool build scalars.
func Str(s string) Scalar  { return Scalar{V: s} }
func Num(f float64) Scalar { return Scalar{V: f} }
func Bool(b bool) Scalar   { return Scalar{V: b} }

// Strings builds a List of string scalars.
func Strings(ss ...string) List {
	out := make(List, 0, len(ss))
	for _, s := range ss {
		out = append(out, Str(s))
	}
	return out
}

// DecodeValue reverses the JSON encoding used by sinks: arrays become a List,
// everything else a Scalar.
func DecodeValue(raw json.RawMessage) (Value, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var l List
		if err := json.Unmarshal(trimmed, &l); err != nil {
			return nil, err
		}
		return l, nil
	}
	var s Scalar
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return nil, err
	}
	return s, nil
}

func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}
