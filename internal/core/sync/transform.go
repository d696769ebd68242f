package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"collection-sync/internal/core/fieldconv"
	"collection-sync/internal/core/schema"
	"collection-sync/internal/source"
)

// ErrNoSlugField is returned when the configured slug field is not a property
// of the fetched schema or cannot be read as text.
var ErrNoSlugField = errors.New("sync: slug field not found in source schema")

// Outcome is the result of transforming one record: Produced or Skipped.
type Outcome interface{ isOutcome() }

// Produced carries the item built from a record.
type Produced struct {
	Item schema.CollectionItem
}

// SkipReason says why no item was produced.
type SkipReason uint8

const (
	SkipUnchanged SkipReason = iota + 1
	SkipMissingSlug
	SkipMissingTitle
)

func (r SkipReason) String() string {
	switch r {
	case SkipUnchanged:
		return "unchanged"
	case SkipMissingSlug:
		return "missing slug"
	case SkipMissingTitle:
		return "missing title"
	}
	return "unknown"
}

// Skipped means the record produced no item.
type Skipped struct {
	Reason SkipReason
}

func (Produced) isOutcome() {}
func (Skipped) isOutcome()  {}

// mappedField is an enabled mapping resolved against the schema.
type mappedField struct {
	prop    schema.SourceProperty
	mapping schema.FieldMapping
	conv    fieldconv.Converter
}

func (f mappedField) name() string {
	if f.mapping.Name != "" {
		return f.mapping.Name
	}
	return f.prop.Name
}

// TransformConfig is the read-only input shared by all transforms of a run.
type TransformConfig struct {
	Registry    *fieldconv.Registry
	Schema      schema.Schema
	Mappings    []schema.FieldMapping
	SlugFieldID string
	// LastSynced enables the unchanged-record skip when non-nil.
	LastSynced *time.Time
	Resolution time.Duration
	// Recheck holds record ids that are never skipped as unchanged.
	Recheck map[string]bool
	// Enricher fetches values not present on the record; may be nil.
	Enricher source.Enricher
	Status   *schema.SyncStatus
}

// Transformer turns source records into collection items.
type Transformer struct {
	cfg      TransformConfig
	slugProp schema.SourceProperty
	fields   []mappedField
}

// NewTransformer resolves the mappings against the schema. Mappings that
// reference unknown properties or disallowed conversions are dropped with a
// warning.
func NewTransformer(cfg TransformConfig) (*Transformer, error) {
	if cfg.Registry == nil {
		cfg.Registry = fieldconv.Default
	}
	if cfg.Status == nil {
		cfg.Status = schema.NewSyncStatus()
	}
	slug, ok := cfg.Schema.Property(cfg.SlugFieldID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoSlugField, cfg.SlugFieldID)
	}
	if !cfg.Registry.IsAllowed(slug.Type, schema.FieldString) {
		return nil, fmt.Errorf("%w: %q (%s) has no text form", ErrNoSlugField, slug.Name, slug.Type)
	}
	t := &Transformer{cfg: cfg, slugProp: slug}
	seen := make(map[string]bool, len(cfg.Mappings))
	for _, m := range cfg.Mappings {
		if !m.Enabled {
			continue
		}
		if seen[m.SourcePropertyID] {
			cfg.Status.AddWarning("", m.SourcePropertyID, "duplicate mapping ignored")
			continue
		}
		seen[m.SourcePropertyID] = true
		p, ok := cfg.Schema.Property(m.SourcePropertyID)
		if !ok {
			cfg.Status.AddWarning("", m.SourcePropertyID, "mapped property no longer exists in source")
			continue
		}
		conv, ok := cfg.Registry.Lookup(p.Type, m.Type)
		if !ok {
			cfg.Status.AddWarning("", p.ID, fmt.Sprintf("field %s: %s cannot be imported as %s", p.Name, p.Type, m.Type))
			continue
		}
		t.fields = append(t.fields, mappedField{prop: p, mapping: m, conv: conv})
	}
	return t, nil
}

// Fields returns the collection fields of the resolved mappings, before
// fan-out.
func (t *Transformer) Fields() []schema.CollectionField {
	out := make([]schema.CollectionField, 0, len(t.fields))
	for _, f := range t.fields {
		cf := schema.CollectionField{ID: f.prop.ID, Name: f.name(), Type: f.mapping.Type}
		if cf.Type == schema.FieldEnum {
			cf.Cases = fieldconv.EnumCases(f.prop, f.mapping.Settings)
		}
		out = append(out, cf)
	}
	return out
}

// Transform converts one record. Item-level problems are recorded in the run
// status and reported as Skipped; a returned error aborts the run.
func (t *Transformer) Transform(ctx context.Context, rec schema.SourceRecord) (Outcome, error) {
	st := t.cfg.Status
	if t.cfg.LastSynced != nil && !t.cfg.Recheck[rec.ID] && Unchanged(rec.LastModified, *t.cfg.LastSynced, t.cfg.Resolution) {
		st.AddInfo(rec.Locator, "", "skipped, unchanged since last sync")
		return Skipped{Reason: SkipUnchanged}, nil
	}

	slugText, err := t.cfg.Registry.SlugText(rec.Values[t.slugProp.ID], t.slugProp)
	if err != nil {
		st.AddWarning(rec.Locator, t.slugProp.ID, fmt.Sprintf("unreadable slug value: %v", err))
		return Skipped{Reason: SkipMissingSlug}, nil
	}
	slug := NormalizeSlug(slugText)
	if slug == "" {
		st.AddWarning(rec.Locator, t.slugProp.ID, "missing slug value, record skipped")
		return Skipped{Reason: SkipMissingSlug}, nil
	}

	item := schema.CollectionItem{ID: rec.ID, Slug: slug, FieldData: make(map[string]schema.Value, len(t.fields))}
	if id := t.cfg.Schema.TitlePropertyID; id != "" {
		titleProp, _ := t.cfg.Schema.Property(id)
		title, err := t.cfg.Registry.SlugText(rec.Values[id], titleProp)
		if err != nil || title == "" {
			st.AddWarning(rec.Locator, id, "missing title, record skipped")
			return Skipped{Reason: SkipMissingTitle}, nil
		}
		item.Title = title
	}

	for _, f := range t.fields {
		raw, ok := rec.Values[f.prop.ID]
		if !ok && t.cfg.Enricher != nil {
			raw, err = t.cfg.Enricher.EnrichValue(ctx, rec, f.prop)
			if err != nil {
				return nil, fmt.Errorf("fetch %s of %s: %w", f.name(), rec.Locator, err)
			}
		}
		v, err := f.conv(raw, fieldconv.Context{Property: f.prop, Settings: f.mapping.Settings})
		if err != nil {
			st.AddWarning(rec.Locator, f.prop.ID, fmt.Sprintf("could not convert value for field %s: %v", f.name(), err))
			continue
		}
		if v == nil || v.Empty() {
			st.AddWarning(rec.Locator, f.prop.ID, "value missing for field "+f.name())
			continue
		}
		item.FieldData[f.prop.ID] = v
	}
	return Produced{Item: item}, nil
}
