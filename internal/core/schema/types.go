// Package schema holds the data model shared by the sync engine, the source
// adapters and the sinks.
package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// NoneOptionID is the enum case id representing "no selection".
const NoneOptionID = "##none##"

// DefaultNoneOptionLabel is the display label of the "no selection" case.
const DefaultNoneOptionLabel = "None"

// EnumOption is one choice of a select-like source property.
type EnumOption struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// SourceProperty describes one column/field of the external source.
type SourceProperty struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	Type NativeType `json:"-"`
	// Options are the enum choices of select-like properties.
	Options []EnumOption `json:"options,omitempty"`
	// Format is a type-specific format specifier, e.g. "h:mm:ss" for durations.
	Format string `json:"format,omitempty"`
	// Result is the value type of formula, rollup and lookup properties.
	Result NativeType `json:"-"`
}

// Schema is the fetched shape of a source table/database.
type Schema struct {
	DisplayName string
	// TitlePropertyID is set when the source has an explicit title concept.
	TitlePropertyID string
	Properties      []SourceProperty
}

// Property returns the property with the given id.
func (s Schema) Property(id string) (SourceProperty, bool) {
	for _, p := range s.Properties {
		if p.ID == id {
			return p, true
		}
	}
	return SourceProperty{}, false
}

// SourceRecord is one external row/page. Values hold the raw JSON payload of
// each property keyed by property id.
type SourceRecord struct {
	ID           string
	Locator      string
	LastModified time.Time
	Values       map[string]json.RawMessage
}

// FieldSettings are the recognized per-field options.
type FieldSettings struct {
	MultipleValues  *bool   `json:"multipleValues,omitempty" yaml:"multiple_values,omitempty"`
	IncludeTime     *bool   `json:"includeTime,omitempty" yaml:"include_time,omitempty"`
	NoneOptionLabel *string `json:"noneOptionLabel,omitempty" yaml:"none_option_label,omitempty"`
}

// AllowMultiple reports the multipleValues setting (default true).
func (s FieldSettings) AllowMultiple() bool {
	if s.MultipleValues == nil {
		return true
	}
	return *s.MultipleValues
}

// WithTime reports the includeTime setting (default false).
func (s FieldSettings) WithTime() bool {
	return s.IncludeTime != nil && *s.IncludeTime
}

// NoneLabel reports the noneOptionLabel setting (default "None").
func (s FieldSettings) NoneLabel() string {
	if s.NoneOptionLabel == nil || *s.NoneOptionLabel == "" {
		return DefaultNoneOptionLabel
	}
	return *s.NoneOptionLabel
}

// FieldMapping is the user's decision of how one SourceProperty becomes a
// destination field.
type FieldMapping struct {
	SourcePropertyID string
	Type             FieldType
	// Name overrides the source property name when non-empty.
	Name     string
	Enabled  bool
	Settings FieldSettings
}

// EnumCase is one case of an enum collection field.
type EnumCase struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CollectionField is one destination schema field.
type CollectionField struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Type             FieldType  `json:"type"`
	Cases            []EnumCase `json:"cases,omitempty"`
	AllowedFileTypes []string   `json:"allowedFileTypes,omitempty"`
}

// CollectionItem is one destination record.
type CollectionItem struct {
	ID        string           `json:"id"`
	Slug      string           `json:"slug"`
	Title     string           `json:"title,omitempty"`
	FieldData map[string]Value `json:"fieldData"`
}

func (it *CollectionItem) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID        string                     `json:"id"`
		Slug      string                     `json:"slug"`
		Title     string                     `json:"title"`
		FieldData map[string]json.RawMessage `json:"fieldData"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	it.ID, it.Slug, it.Title = raw.ID, raw.Slug, raw.Title
	it.FieldData = make(map[string]Value, len(raw.FieldData))
	for k, v := range raw.FieldData {
		val, err := DecodeValue(v)
		if err != nil {
			return fmt.Errorf("field %s: %w", k, err)
		}
		it.FieldData[k] = val
	}
	return nil
}

// FanOutID returns the synthetic id of the index-th sub-field of base.
func FanOutID(base string, index int) string {
	return base + "-[[" + strconv.Itoa(index) + "]]"
}
