// Package mapping reads and writes the field-mapping file: which source
// properties become which collection fields, and which one feeds the slug.
package mapping

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"collection-sync/internal/core/fieldconv"
	"collection-sync/internal/core/schema"
	"collection-sync/internal/infra/logx"
)

// File is the on-disk mapping.
type File struct {
	SlugField string  `yaml:"slug_field,omitempty"`
	Fields    []Field `yaml:"fields"`
}

// Field maps one source property. Source is a property id or name.
type Field struct {
	Source   string               `yaml:"source"`
	Type     string               `yaml:"type,omitempty"`
	Name     string               `yaml:"name,omitempty"`
	Enabled  *bool                `yaml:"enabled,omitempty"`
	Settings schema.FieldSettings `yaml:"settings,omitempty"`
}

// Load reads a mapping file. A missing file returns an error matching
// os.ErrNotExist.
func Load(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("mapping %s: %w", path, err)
	}
	return &f, nil
}

// Save writes f to path.
func (f *File) Save(path string) error {
	b, err := yaml.Marshal(f)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, b, 0o644)
}

// FromMappings builds a file from resolved mappings, naming properties by
// name where that is unambiguous.
func FromMappings(sch schema.Schema, mappings []schema.FieldMapping, slugID string) *File {
	count := make(map[string]int)
	for _, p := range sch.Properties {
		count[p.Name]++
	}
	ref := func(id string) string {
		if p, ok := sch.Property(id); ok && count[p.Name] == 1 && p.Name != "" {
			return p.Name
		}
		return id
	}
	f := &File{SlugField: ref(slugID)}
	if slugID == "" {
		f.SlugField = ""
	}
	for _, m := range mappings {
		enabled := m.Enabled
		fld := Field{Source: ref(m.SourcePropertyID), Name: m.Name, Enabled: &enabled, Settings: m.Settings}
		if m.Type != schema.FieldUnknown {
			fld.Type = m.Type.String()
		}
		f.Fields = append(f.Fields, fld)
	}
	return f
}

// Default is the mapping used when no file exists.
func Default(reg *fieldconv.Registry, sch schema.Schema) *File {
	slugID := ""
	if p, ok := reg.DefaultSlugField(sch); ok {
		slugID = p.ID
	}
	return FromMappings(sch, reg.DefaultMappings(sch), slugID)
}

// ErrUnknownProperty is returned when a mapping entry names no property.
var ErrUnknownProperty = errors.New("mapping: unknown source property")

// Resolve turns the file into engine mappings against the fetched schema.
// Properties the file does not list are included disabled.
func (f *File) Resolve(reg *fieldconv.Registry, sch schema.Schema) ([]schema.FieldMapping, string, error) {
	var slugID string
	if f.SlugField != "" {
		p, err := Lookup(sch, f.SlugField)
		if err != nil {
			return nil, "", fmt.Errorf("slug_field: %w", err)
		}
		slugID = p.ID
	}

	listed := make(map[string]bool)
	var out []schema.FieldMapping
	for _, fld := range f.Fields {
		p, err := Lookup(sch, fld.Source)
		if err != nil {
			return nil, "", err
		}
		if listed[p.ID] {
			return nil, "", fmt.Errorf("mapping: property %q listed twice", p.Name)
		}
		listed[p.ID] = true
		m := schema.FieldMapping{
			SourcePropertyID: p.ID,
			Name:             fld.Name,
			Enabled:          fld.Enabled == nil || *fld.Enabled,
			Settings:         fld.Settings,
		}
		if fld.Type != "" {
			t, err := schema.ParseFieldType(fld.Type)
			if err != nil {
				return nil, "", fmt.Errorf("mapping %q: %w", fld.Source, err)
			}
			m.Type = t
		} else if allowed := reg.AllowedTypes(p.Type); len(allowed) > 0 {
			m.Type = allowed[0]
		} else {
			m.Enabled = false
		}
		out = append(out, m)
	}
	for _, p := range sch.Properties {
		if !listed[p.ID] {
			out = append(out, schema.FieldMapping{SourcePropertyID: p.ID})
		}
	}
	return out, slugID, nil
}

// Lookup finds the property ref names: exact id, then exact name, then a
// case-insensitive name, then the single best fuzzy match.
func Lookup(sch schema.Schema, ref string) (schema.SourceProperty, error) {
	if p, ok := sch.Property(ref); ok {
		return p, nil
	}
	for _, p := range sch.Properties {
		if p.Name == ref {
			return p, nil
		}
	}
	for _, p := range sch.Properties {
		if strings.EqualFold(p.Name, ref) {
			return p, nil
		}
	}
	names := make([]string, len(sch.Properties))
	for i, p := range sch.Properties {
		names[i] = p.Name
	}
	if idx := Match(ref, names, DefaultMatch); len(idx) > 0 {
		p := sch.Properties[idx[0]]
		logx.Warnw("mapping: property resolved by fuzzy match", "ref", ref, "property", p.Name)
		return p, nil
	}
	return schema.SourceProperty{}, fmt.Errorf("%w %q", ErrUnknownProperty, ref)
}
