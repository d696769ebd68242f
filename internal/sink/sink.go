// Package sink defines the managed-collection store the engine writes into.
package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"collection-sync/internal/core/schema"
)

// Sink is the destination collection. AddItems has upsert semantics keyed by
// item id; SetFields replaces the whole schema.
type Sink interface {
	ItemIDs(ctx context.Context) ([]string, error)
	SetFields(ctx context.Context, fields []schema.CollectionField) error
	AddItems(ctx context.Context, items []schema.CollectionItem) error
	RemoveItems(ctx context.Context, ids []string) error
	// PluginData returns the value stored under key; ok is false when unset.
	PluginData(ctx context.Context, key string) (value string, ok bool, err error)
	// SetPluginData stores value under key; nil clears the key.
	SetPluginData(ctx context.Context, key string, value *string) error
}

// Inspector is implemented by sinks that can read their content back. The
// CLI status command and tests use it.
type Inspector interface {
	Fields(ctx context.Context) ([]schema.CollectionField, error)
	Items(ctx context.Context) ([]schema.CollectionItem, error)
}

// LoadPluginData reads every key in keys, skipping unset ones.
func LoadPluginData(ctx context.Context, s Sink, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		v, ok, err := s.PluginData(ctx, k)
		if err != nil {
			return nil, err
		}
		if ok {
			out[k] = v
		}
	}
	return out, nil
}

// EncodeFieldData is the JSON form database sinks store item field data in.
func EncodeFieldData(data map[string]schema.Value) ([]byte, error) {
	if data == nil {
		data = map[string]schema.Value{}
	}
	return json.Marshal(data)
}

// DecodeFieldData reverses EncodeFieldData.
func DecodeFieldData(b []byte) (map[string]schema.Value, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]schema.Value, len(raw))
	for k, v := range raw {
		val, err := schema.DecodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		out[k] = val
	}
	return out, nil
}
