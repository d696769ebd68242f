package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Plugin data keys under which run metadata is persisted in the sink.
const (
	KeyIntegrationID       = "integrationId"
	KeyIntegrationLocator  = "integrationLocator"
	KeyIgnoredFieldIDs     = "ignoredFieldIds"
	KeyLastSyncedTime      = "lastSyncedTime"
	KeySlugFieldID         = "slugFieldId"
	KeyDatabaseDisplayName = "databaseDisplayName"
	KeyFieldSettings       = "fieldSettings"
	KeyFanOutWidths        = "fanOutWidths"
	KeySlugOwners          = "slugOwners"
	KeyCollisionIDs        = "collisionIds"
)

// MetadataKeys lists every persisted key.
var MetadataKeys = []string{
	KeyIntegrationID,
	KeyIntegrationLocator,
	KeyIgnoredFieldIDs,
	KeyLastSyncedTime,
	KeySlugFieldID,
	KeyDatabaseDisplayName,
	KeyFieldSettings,
	KeyFanOutWidths,
	KeySlugOwners,
	KeyCollisionIDs,
}

// FieldSetting is the persisted form of one enabled FieldMapping.
type FieldSetting struct {
	Type FieldType `json:"type"`
	Name string    `json:"name,omitempty"`
	FieldSettings
}

// RunMetadata is the bookkeeping of the last successful run.
type RunMetadata struct {
	Integration     Integration
	Locator         json.RawMessage
	IgnoredFieldIDs []string
	SlugFieldID     string
	LastSyncedTime  *time.Time
	DisplayName     string
	FieldSettings   map[string]FieldSetting
	// FanOutWidths is the number of sub-fields each fanned-out field had.
	FanOutWidths map[string]int
	// SlugOwners maps every slug in the collection to the item holding it.
	SlugOwners map[string]string
	// CollisionIDs are records dropped for a taken slug; they are
	// re-evaluated on the next run even when unchanged.
	CollisionIDs []string
}

// NewRunMetadata derives the metadata to persist after a run.
func NewRunMetadata(in Integration, locator json.RawMessage, displayName, slugFieldID string, mappings []FieldMapping, syncedAt time.Time) RunMetadata {
	md := RunMetadata{
		Integration:     in,
		Locator:         locator,
		SlugFieldID:     slugFieldID,
		DisplayName:     displayName,
		IgnoredFieldIDs: []string{},
		FieldSettings:   make(map[string]FieldSetting),
	}
	t := syncedAt.UTC()
	md.LastSyncedTime = &t
	for _, m := range mappings {
		if !m.Enabled {
			md.IgnoredFieldIDs = append(md.IgnoredFieldIDs, m.SourcePropertyID)
			continue
		}
		md.FieldSettings[m.SourcePropertyID] = FieldSetting{Type: m.Type, Name: m.Name, FieldSettings: m.Settings}
	}
	sort.Strings(md.IgnoredFieldIDs)
	return md
}

// Encode renders the metadata as plugin data values. A nil value clears the key.
func (m RunMetadata) Encode() (map[string]*string, error) {
	out := make(map[string]*string, len(MetadataKeys))
	str := func(s string) *string { return &s }

	out[KeyIntegrationID] = str(m.Integration.String())
	if len(m.Locator) > 0 {
		out[KeyIntegrationLocator] = str(string(m.Locator))
	} else {
		out[KeyIntegrationLocator] = nil
	}
	ignored, err := json.Marshal(m.IgnoredFieldIDs)
	if err != nil {
		return nil, fmt.Errorf("encode ignored field ids: %w", err)
	}
	out[KeyIgnoredFieldIDs] = str(string(ignored))
	if m.LastSyncedTime != nil {
		out[KeyLastSyncedTime] = str(m.LastSyncedTime.UTC().Format(time.RFC3339))
	} else {
		out[KeyLastSyncedTime] = nil
	}
	out[KeySlugFieldID] = str(m.SlugFieldID)
	out[KeyDatabaseDisplayName] = str(m.DisplayName)
	settings, err := json.Marshal(m.FieldSettings)
	if err != nil {
		return nil, fmt.Errorf("encode field settings: %w", err)
	}
	out[KeyFieldSettings] = str(string(settings))
	if len(m.FanOutWidths) > 0 {
		widths, err := json.Marshal(m.FanOutWidths)
		if err != nil {
			return nil, fmt.Errorf("encode fan-out widths: %w", err)
		}
		out[KeyFanOutWidths] = str(string(widths))
	} else {
		out[KeyFanOutWidths] = nil
	}
	if len(m.SlugOwners) > 0 {
		owners, err := json.Marshal(m.SlugOwners)
		if err != nil {
			return nil, fmt.Errorf("encode slug owners: %w", err)
		}
		out[KeySlugOwners] = str(string(owners))
	} else {
		out[KeySlugOwners] = nil
	}
	if len(m.CollisionIDs) > 0 {
		ids, err := json.Marshal(m.CollisionIDs)
		if err != nil {
			return nil, fmt.Errorf("encode collision ids: %w", err)
		}
		out[KeyCollisionIDs] = str(string(ids))
	} else {
		out[KeyCollisionIDs] = nil
	}
	return out, nil
}

// DecodeRunMetadata parses persisted plugin data. ok is false when no run has
// been recorded yet (no integration id).
func DecodeRunMetadata(data map[string]string) (md RunMetadata, ok bool, err error) {
	id := data[KeyIntegrationID]
	if id == "" {
		return RunMetadata{}, false, nil
	}
	if md.Integration, err = ParseIntegration(id); err != nil {
		return RunMetadata{}, true, err
	}
	if v := data[KeyIntegrationLocator]; v != "" {
		md.Locator = json.RawMessage(v)
	}
	if v := data[KeyIgnoredFieldIDs]; v != "" {
		if err := json.Unmarshal([]byte(v), &md.IgnoredFieldIDs); err != nil {
			return RunMetadata{}, true, fmt.Errorf("decode %s: %w", KeyIgnoredFieldIDs, err)
		}
	}
	if v := data[KeyLastSyncedTime]; v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return RunMetadata{}, true, fmt.Errorf("decode %s: %w", KeyLastSyncedTime, err)
		}
		md.LastSyncedTime = &t
	}
	md.SlugFieldID = data[KeySlugFieldID]
	md.DisplayName = data[KeyDatabaseDisplayName]
	if v := data[KeyFieldSettings]; v != "" {
		if err := json.Unmarshal([]byte(v), &md.FieldSettings); err != nil {
			return RunMetadata{}, true, fmt.Errorf("decode %s: %w", KeyFieldSettings, err)
		}
	}
	if v := data[KeyFanOutWidths]; v != "" {
		if err := json.Unmarshal([]byte(v), &md.FanOutWidths); err != nil {
			return RunMetadata{}, true, fmt.Errorf("decode %s: %w", KeyFanOutWidths, err)
		}
	}
	if v := data[KeySlugOwners]; v != "" {
		if err := json.Unmarshal([]byte(v), &md.SlugOwners); err != nil {
			return RunMetadata{}, true, fmt.Errorf("decode %s: %w", KeySlugOwners, err)
		}
	}
	if v := data[KeyCollisionIDs]; v != "" {
		if err := json.Unmarshal([]byte(v), &md.CollisionIDs); err != nil {
			return RunMetadata{}, true, fmt.Errorf("decode %s: %w", KeyCollisionIDs, err)
		}
	}
	return md, true, nil
}
