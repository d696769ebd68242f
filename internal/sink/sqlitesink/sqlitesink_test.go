package sqlitesink

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"collection-sync/internal/core/schema"
)

func openTemp(t *testing.T, collection string) (*Sink, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "collections.db")
	s, err := Open(path, collection)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestItemsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t, "tasks")
	items := []schema.CollectionItem{
		{ID: "b", Slug: "beta", Title: "Beta", FieldData: map[string]schema.Value{
			"n":    schema.Num(2.5),
			"done": schema.Bool(true),
			"tags": schema.Strings("x", "y"),
		}},
		{ID: "a", Slug: "alpha", FieldData: map[string]schema.Value{"body": schema.Str("<p>hi</p>")}},
	}
	if err := s.AddItems(ctx, items); err != nil {
		t.Fatalf("AddItems: %v", err)
	}
	got, err := s.Items(ctx)
	if err != nil {
		t.Fatalf("Items: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].Title != "Beta" {
		t.Fatalf("items = %+v", got)
	}
	b := got[1].FieldData
	if b["n"] != schema.Num(2.5) || b["done"] != schema.Bool(true) {
		t.Fatalf("scalars = %+v", b)
	}
	if l, ok := b["tags"].(schema.List); !ok || len(l) != 2 || l[1] != schema.Str("y") {
		t.Fatalf("tags = %#v", b["tags"])
	}

	items[0].Slug = "beta-2"
	if err := s.AddItems(ctx, items[:1]); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.RemoveItems(ctx, []string{"a", "missing"}); err != nil {
		t.Fatalf("RemoveItems: %v", err)
	}
	ids, err := s.ItemIDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "b" {
		t.Fatalf("ids = %v", ids)
	}
	got, _ = s.Items(ctx)
	if got[0].Slug != "beta-2" {
		t.Fatalf("upsert kept old slug %q", got[0].Slug)
	}
}

func TestFieldsReplaceAndKeepOrder(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t, "tasks")
	first := []schema.CollectionField{{ID: "old", Name: "Old", Type: schema.FieldString}}
	if err := s.SetFields(ctx, first); err != nil {
		t.Fatal(err)
	}
	second := []schema.CollectionField{
		{ID: "z", Name: "Zed", Type: schema.FieldNumber},
		{ID: "s", Name: "Status", Type: schema.FieldEnum, Cases: []schema.EnumCase{{ID: schema.NoneOptionID, Name: "None"}, {ID: "d", Name: "Done"}}},
	}
	if err := s.SetFields(ctx, second); err != nil {
		t.Fatal(err)
	}
	got, err := s.Fields(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "z" || got[1].Type != schema.FieldEnum || len(got[1].Cases) != 2 {
		t.Fatalf("fields = %+v", got)
	}
}

func TestPluginDataAndCollectionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	a, path := openTemp(t, "a")
	b, err := Open(path, "b")
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	v := "notion"
	if err := a.SetPluginData(ctx, schema.KeyIntegrationID, &v); err != nil {
		t.Fatal(err)
	}
	if got, ok, err := a.PluginData(ctx, schema.KeyIntegrationID); err != nil || !ok || got != "notion" {
		t.Fatalf("PluginData = %q %v %v", got, ok, err)
	}
	if _, ok, _ := b.PluginData(ctx, schema.KeyIntegrationID); ok {
		t.Fatalf("collection b should not see a's data")
	}
	if err := b.AddItems(ctx, []schema.CollectionItem{{ID: "x", Slug: "x"}}); err != nil {
		t.Fatal(err)
	}
	if ids, _ := a.ItemIDs(ctx); len(ids) != 0 {
		t.Fatalf("collection a sees %v", ids)
	}

	if err := a.SetPluginData(ctx, schema.KeyIntegrationID, nil); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := a.PluginData(ctx, schema.KeyIntegrationID); ok {
		t.Fatalf("nil should clear the key")
	}
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	s, path := openTemp(t, "tasks")
	if err := s.AddItems(ctx, []schema.CollectionItem{{ID: "1", Slug: "one"}}); err != nil {
		t.Fatal(err)
	}
	s.Close()
	again, err := Open(path, "tasks")
	if err != nil {
		t.Fatal(err)
	}
	defer again.Close()
	items, err := again.Items(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Slug != "one" || len(items[0].FieldData) != 0 {
		t.Fatalf("items = %+v", items)
	}
}

func TestEmptyCollectionName(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "x.db"), ""); err == nil {
		t.Fatalf("expected error for empty collection name")
	}
}

func TestRemoveManyItems(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t, "tasks")
	items := []schema.CollectionItem{{ID: "keep", Slug: "keep"}, {ID: "x1", Slug: "x1"}, {ID: "x2", Slug: "x2"}}
	if err := s.AddItems(ctx, items); err != nil {
		t.Fatalf("AddItems: %v", err)
	}
	// More ids than SQLite accepts as bound variables in one statement.
	ids := make([]string, 0, 40000)
	for i := 0; i < 40000; i++ {
		ids = append(ids, fmt.Sprintf("gone-%d", i))
	}
	ids = append(ids, "x1", "x2")
	if err := s.RemoveItems(ctx, ids); err != nil {
		t.Fatalf("RemoveItems: %v", err)
	}
	got, err := s.ItemIDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "keep" {
		t.Fatalf("ids = %v", got)
	}
}
