package fieldconv

import (
	"encoding/json"
	"strconv"
	"strings"

	"collection-sync/internal/core/schema"
)

// Sheet cells arrive as loosely typed JSON scalars; every converter accepts
// any scalar kind and coerces it.

func registerSheets(r *Registry) {
	r.add(schema.SheetsText, schema.FieldString, cellString)
	r.add(schema.SheetsText, schema.FieldFormattedText, cellTextHTML)

	r.add(schema.SheetsNumber, schema.FieldNumber, looseNumber)
	r.add(schema.SheetsNumber, schema.FieldString, cellString)

	r.add(schema.SheetsBoolean, schema.FieldBoolean, cellBool)
	r.add(schema.SheetsBoolean, schema.FieldString, cellString)

	r.add(schema.SheetsDate, schema.FieldDate, looseDate)
	r.add(schema.SheetsDate, schema.FieldString, cellString)

	r.add(schema.SheetsURL, schema.FieldLink, cellString)
	r.add(schema.SheetsURL, schema.FieldImage, cellString)
	r.add(schema.SheetsURL, schema.FieldString, cellString)

	r.add(schema.SheetsImage, schema.FieldImage, cellString)
	r.add(schema.SheetsImage, schema.FieldLink, cellString)
	r.add(schema.SheetsImage, schema.FieldString, cellString)

	r.add(schema.SheetsHTML, schema.FieldFormattedText, cellHTML)
	r.add(schema.SheetsHTML, schema.FieldString, cellString)

	r.rank(schema.SheetsText, schema.SheetsNumber)
}

func cellString(raw json.RawMessage, _ Context) (schema.Value, error) {
	v, ok, err := decode[any](raw)
	if !ok {
		return nil, err
	}
	switch vv := v.(type) {
	case string:
		return str(strings.TrimSpace(vv)), nil
	case bool:
		return schema.Str(strconv.FormatBool(vv)), nil
	case float64:
		return schema.Str(schema.Num(vv).String()), nil
	}
	return nil, nil
}

func cellTextHTML(raw json.RawMessage, c Context) (schema.Value, error) {
	v, err := cellString(raw, c)
	if err != nil || v == nil {
		return v, err
	}
	return str(TextToHTML(v.(schema.Scalar).String())), nil
}

func cellHTML(raw json.RawMessage, c Context) (schema.Value, error) {
	v, err := cellString(raw, c)
	if err != nil || v == nil {
		return v, err
	}
	return str(SanitizeHTML(v.(schema.Scalar).String())), nil
}

func cellBool(raw json.RawMessage, _ Context) (schema.Value, error) {
	v, ok, err := decode[any](raw)
	if !ok {
		return nil, err
	}
	if b, ok := anyBool(v); ok {
		return schema.Bool(b), nil
	}
	return nil, nil
}
