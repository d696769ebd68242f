package fieldconv

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"collection-sync/internal/core/schema"
)

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

func decode[T any](raw json.RawMessage) (T, bool, error) {
	var v T
	if isNull(raw) {
		return v, false, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, fmt.Errorf("decode %T: %w", v, err)
	}
	return v, true, nil
}

func str(s string) schema.Value {
	if s == "" {
		return nil
	}
	return schema.Str(s)
}

func stringValue(raw json.RawMessage, _ Context) (schema.Value, error) {
	s, ok, err := decode[string](raw)
	if !ok {
		return nil, err
	}
	return str(s), nil
}

func numberValue(raw json.RawMessage, _ Context) (schema.Value, error) {
	f, ok, err := decode[float64](raw)
	if !ok {
		return nil, err
	}
	return schema.Num(f), nil
}

func numberAsString(raw json.RawMessage, _ Context) (schema.Value, error) {
	f, ok, err := decode[float64](raw)
	if !ok {
		return nil, err
	}
	return schema.Str(schema.Num(f).String()), nil
}

func boolValue(raw json.RawMessage, _ Context) (schema.Value, error) {
	b, ok, err := decode[bool](raw)
	if !ok {
		// Airtable omits unchecked checkboxes entirely.
		return schema.Bool(false), err
	}
	return schema.Bool(b), nil
}

func boolAsString(raw json.RawMessage, c Context) (schema.Value, error) {
	v, err := boolValue(raw, c)
	if err != nil || v == nil {
		return v, err
	}
	return schema.Str(strconv.FormatBool(v.(schema.Scalar).V.(bool))), nil
}

// dateLayouts are tried in order when parsing source dates.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006",
	"2006/01/02",
}

// ParseDate parses the date forms produced by the shipped sources.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// FormatDate renders a source date for a date field. Without includeTime the
// calendar date as written by the source is kept, so no zone shift applies.
func FormatDate(s string, includeTime bool) (schema.Value, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := ParseDate(s)
	if err != nil {
		return nil, err
	}
	if !includeTime {
		return schema.Str(t.Format("2006-01-02")), nil
	}
	return schema.Str(t.UTC().Format(time.RFC3339)), nil
}

func dateString(raw json.RawMessage, c Context) (schema.Value, error) {
	s, ok, err := decode[string](raw)
	if !ok {
		return nil, err
	}
	return FormatDate(s, c.Settings.WithTime())
}

// multi shapes a multi-valued property: a List when multiple values are
// allowed, else only the first element.
func multi(values []string, c Context) schema.Value {
	values = compact(values)
	if len(values) == 0 {
		return nil
	}
	if !c.Settings.AllowMultiple() {
		return schema.Str(values[0])
	}
	return schema.Strings(values...)
}

// joined renders a multi-valued property into a single string field.
func joined(values []string, c Context) schema.Value {
	values = compact(values)
	if len(values) == 0 {
		return nil
	}
	if !c.Settings.AllowMultiple() {
		return schema.Str(values[0])
	}
	return schema.Str(strings.Join(values, ", "))
}

func compact(values []string) []string {
	out := values[:0:0]
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}

// optionID resolves an option by name to its stable id, falling back to the
// name itself when the schema lists no such option.
func optionID(p schema.SourceProperty, name string) string {
	for _, o := range p.Options {
		if o.Name == name {
			return o.ID
		}
	}
	return name
}

// EnumCases builds the cases of an enum field, the "none" case first.
func EnumCases(p schema.SourceProperty, s schema.FieldSettings) []schema.EnumCase {
	cases := make([]schema.EnumCase, 0, len(p.Options)+1)
	cases = append(cases, schema.EnumCase{ID: schema.NoneOptionID, Name: s.NoneLabel()})
	for _, o := range p.Options {
		cases = append(cases, schema.EnumCase{ID: o.ID, Name: o.Name})
	}
	return cases
}

// anyScalars flattens a loosely typed JSON value (formula, rollup and lookup
// results) into display strings.
func anyScalars(v any) []string {
	switch vv := v.(type) {
	case nil:
		return nil
	case string:
		return []string{vv}
	case float64:
		return []string{schema.Num(vv).String()}
	case bool:
		return []string{strconv.FormatBool(vv)}
	case []any:
		var out []string
		for _, e := range vv {
			out = append(out, anyScalars(e)...)
		}
		return out
	case map[string]any:
		for _, k := range []string{"name", "text", "value", "url", "email", "id"} {
			if s, ok := vv[k].(string); ok && s != "" {
				return []string{s}
			}
		}
	}
	return nil
}

func anyNumber(v any) (float64, bool) {
	switch vv := v.(type) {
	case float64:
		return vv, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(vv), 64)
		return f, err == nil
	case []any:
		if len(vv) > 0 {
			return anyNumber(vv[0])
		}
	}
	return 0, false
}

func anyBool(v any) (bool, bool) {
	switch vv := v.(type) {
	case bool:
		return vv, true
	case float64:
		return vv != 0, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(vv))
		return b, err == nil
	case []any:
		if len(vv) > 0 {
			return anyBool(vv[0])
		}
	}
	return false, false
}
