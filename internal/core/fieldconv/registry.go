// Package fieldconv holds the static conversion tables: which destination
// field types each source property type may become, how likely a property is
// to be a good slug, and the converter for every allowed pair.
package fieldconv

import (
	"encoding/json"
	"sort"

	"collection-sync/internal/core/schema"
)

// Context is the read-only input a converter gets besides the raw value.
type Context struct {
	Property schema.SourceProperty
	Settings schema.FieldSettings
}

// Converter turns one raw property payload into a destination value. A nil
// Value with a nil error means the property carries no value for this record.
type Converter func(raw json.RawMessage, c Context) (schema.Value, error)

type pair struct {
	native schema.NativeType
	field  schema.FieldType
}

// Registry maps native types to their allowed destination types and
// converters. It is immutable after construction.
type Registry struct {
	allowed    map[schema.NativeType][]schema.FieldType
	converters map[pair]Converter
	slugRank   map[schema.NativeType]int
}

func newRegistry() *Registry {
	return &Registry{
		allowed:    make(map[schema.NativeType][]schema.FieldType),
		converters: make(map[pair]Converter),
		slugRank:   make(map[schema.NativeType]int),
	}
}

// add registers conv for (n, f). The first registration of n is its default
// destination type.
func (r *Registry) add(n schema.NativeType, f schema.FieldType, conv Converter) {
	if _, dup := r.converters[pair{n, f}]; dup {
		panic("fieldconv: duplicate converter for " + n.String() + "->" + f.String())
	}
	r.converters[pair{n, f}] = conv
	r.allowed[n] = append(r.allowed[n], f)
}

func (r *Registry) rank(order ...schema.NativeType) {
	for i, n := range order {
		r.slugRank[n] = i
	}
}

// Default is the registry for all shipped integrations.
var Default = func() *Registry {
	r := newRegistry()
	registerNotion(r)
	registerAirtable(r)
	registerSheets(r)
	return r
}()

// AllowedTypes returns the ordered destination types for n. An empty result
// means the property type is unsupported.
func (r *Registry) AllowedTypes(n schema.NativeType) []schema.FieldType {
	return append([]schema.FieldType(nil), r.allowed[n]...)
}

// IsAllowed reports whether n may be mapped to f.
func (r *Registry) IsAllowed(n schema.NativeType, f schema.FieldType) bool {
	_, ok := r.converters[pair{n, f}]
	return ok
}

// Lookup returns the converter for (n, f).
func (r *Registry) Lookup(n schema.NativeType, f schema.FieldType) (Converter, bool) {
	c, ok := r.converters[pair{n, f}]
	return c, ok
}

// SlugRank returns the slug preference of n; lower is better.
func (r *Registry) SlugRank(n schema.NativeType) (int, bool) {
	v, ok := r.slugRank[n]
	return v, ok
}

// RankSlugCandidates returns the slug-capable properties ordered by rank.
// Unranked types sort last; ties keep their original order.
func (r *Registry) RankSlugCandidates(props []schema.SourceProperty) []schema.SourceProperty {
	out := make([]schema.SourceProperty, 0, len(props))
	for _, p := range props {
		if r.IsAllowed(p.Type, schema.FieldString) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, oki := r.slugRank[out[i].Type]
		rj, okj := r.slugRank[out[j].Type]
		switch {
		case oki && okj:
			return ri < rj
		case oki:
			return true
		default:
			return false
		}
	})
	return out
}

// DefaultSlugField picks the likeliest slug property, preferring the source
// title property when there is one.
func (r *Registry) DefaultSlugField(s schema.Schema) (schema.SourceProperty, bool) {
	if s.TitlePropertyID != "" {
		if p, ok := s.Property(s.TitlePropertyID); ok {
			return p, true
		}
	}
	ranked := r.RankSlugCandidates(s.Properties)
	if len(ranked) == 0 {
		return schema.SourceProperty{}, false
	}
	return ranked[0], true
}

// SlugText extracts the plain-text form of a property value for slug use.
func (r *Registry) SlugText(raw json.RawMessage, p schema.SourceProperty) (string, error) {
	conv, ok := r.Lookup(p.Type, schema.FieldString)
	if !ok {
		return "", nil
	}
	v, err := conv(raw, Context{Property: p})
	if err != nil || v == nil {
		return "", err
	}
	switch vv := v.(type) {
	case schema.Scalar:
		return vv.String(), nil
	case schema.List:
		if len(vv) > 0 {
			return vv[0].String(), nil
		}
	}
	return "", nil
}

// DefaultMappings maps every supported property to its default destination
// type. Unsupported properties are returned disabled with FieldUnknown.
func (r *Registry) DefaultMappings(s schema.Schema) []schema.FieldMapping {
	out := make([]schema.FieldMapping, 0, len(s.Properties))
	for _, p := range s.Properties {
		m := schema.FieldMapping{SourcePropertyID: p.ID}
		if allowed := r.allowed[p.Type]; len(allowed) > 0 {
			m.Type = allowed[0]
			m.Enabled = true
		}
		out = append(out, m)
	}
	return out
}
