// Package memsink is an in-memory sink for tests and dry runs.
package memsink

import (
	"context"
	"sort"
	"sync"

	"collection-sync/internal/core/schema"
)

// Calls counts write operations, which lets tests assert that an idempotent
// run wrote nothing.
type Calls struct {
	SetFields     int
	AddItems      int
	ItemsUpserted int
	RemoveItems   int
	ItemsRemoved  int
}

// Sink keeps a collection in memory. The zero value is not ready; use New.
type Sink struct {
	mu     sync.Mutex
	fields []schema.CollectionField
	items  map[string]schema.CollectionItem
	data   map[string]string
	calls  Calls

	// FailOn makes the named operation return this error, for write-phase
	// failure tests. Keys: "SetFields", "AddItems", "RemoveItems", "SetPluginData".
	FailOn map[string]error
}

func New() *Sink {
	return &Sink{items: make(map[string]schema.CollectionItem), data: make(map[string]string)}
}

func (s *Sink) fail(op string) error {
	if s.FailOn == nil {
		return nil
	}
	return s.FailOn[op]
}

func (s *Sink) ItemIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Sink) SetFields(ctx context.Context, fields []schema.CollectionField) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("SetFields"); err != nil {
		return err
	}
	s.fields = append([]schema.CollectionField(nil), fields...)
	s.calls.SetFields++
	return nil
}

func (s *Sink) AddItems(ctx context.Context, items []schema.CollectionItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("AddItems"); err != nil {
		return err
	}
	for _, it := range items {
		s.items[it.ID] = it
	}
	s.calls.AddItems++
	s.calls.ItemsUpserted += len(items)
	return nil
}

func (s *Sink) RemoveItems(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("RemoveItems"); err != nil {
		return err
	}
	for _, id := range ids {
		delete(s.items, id)
	}
	s.calls.RemoveItems++
	s.calls.ItemsRemoved += len(ids)
	return nil
}

func (s *Sink) PluginData(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *Sink) SetPluginData(ctx context.Context, key string, value *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("SetPluginData"); err != nil {
		return err
	}
	if value == nil {
		delete(s.data, key)
		return nil
	}
	s.data[key] = *value
	return nil
}

func (s *Sink) Fields(ctx context.Context) ([]schema.CollectionField, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]schema.CollectionField(nil), s.fields...), nil
}

// Items returns the stored items ordered by id.
func (s *Sink) Items(ctx context.Context) ([]schema.CollectionItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schema.CollectionItem, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Calls returns the write counters and resets them.
func (s *Sink) Calls() Calls {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.calls
	s.calls = Calls{}
	return c
}
