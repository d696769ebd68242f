package sync

import (
	"reflect"
	"sort"
	"time"

	"collection-sync/internal/core/schema"
)

// CanSkipUnchanged reports whether the previous run's last-synced time may be
// used to skip unchanged records. It requires a previous successful run with
// the same integration, slug field, ignored fields and field settings; any
// mapping change forces every record to be re-evaluated.
func CanSkipUnchanged(prev *schema.RunMetadata, in schema.Integration, mappings []schema.FieldMapping, slugFieldID string) bool {
	if prev == nil || prev.LastSyncedTime == nil {
		return false
	}
	if prev.Integration != in || prev.SlugFieldID != slugFieldID {
		return false
	}
	cur := schema.NewRunMetadata(in, nil, "", slugFieldID, mappings, time.Time{})
	if !sameStrings(prev.IgnoredFieldIDs, cur.IgnoredFieldIDs) {
		return false
	}
	if len(prev.FieldSettings) != len(cur.FieldSettings) {
		return false
	}
	for id, want := range cur.FieldSettings {
		got, ok := prev.FieldSettings[id]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	a = append([]string(nil), a...)
	b = append([]string(nil), b...)
	sort.Strings(a)
	sort.Strings(b)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Unchanged reports whether a record last modified at modified is not newer
// than lastSynced once both are truncated to resolution. A zero resolution or
// a zero modified time never counts as unchanged.
func Unchanged(modified, lastSynced time.Time, resolution time.Duration) bool {
	if resolution <= 0 || modified.IsZero() || lastSynced.IsZero() {
		return false
	}
	return !modified.Truncate(resolution).After(lastSynced.Truncate(resolution))
}
