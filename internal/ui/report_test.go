package ui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"collection-sync/internal/core/schema"
	coresync "collection-sync/internal/core/sync"
)

func sampleReport() *coresync.Report {
	st := schema.NewSyncStatus()
	st.AddError("rec-9", "title", `slug "a" already used by item rec-1, item dropped`)
	st.AddWarning("https://notion.so/p1", "", "missing slug value, record skipped")
	return &coresync.Report{
		RunID:       "0190-run",
		Integration: schema.IntegrationNotion,
		Collection:  "Tasks",
		Outcome:     st.Outcome(),
		Status:      st,
		Stats:       coresync.Stats{Fetched: 12, Upserted: 10, Unchanged: 1, Removed: 2, Collisions: 1, Duration: 1500 * time.Millisecond},
	}
}

func TestRenderReport(t *testing.T) {
	out := RenderReport(sampleReport())
	for _, want := range []string{"Tasks", "0190-run", "12 Fetched", "10 Upserted", "2 Removed", "1 Slug collisions", "rec-9 [title]", "missing slug value"} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "ERRORS") > strings.Index(out, "WARNINGS") {
		t.Fatalf("errors should be listed before warnings")
	}
}

func TestRenderReportCapsEntries(t *testing.T) {
	rep := sampleReport()
	rep.Status = schema.NewSyncStatus()
	for i := 0; i < MaxListedEntries+5; i++ {
		rep.Status.AddWarning(fmt.Sprintf("r%d", i), "", "value missing")
	}
	out := RenderReport(rep)
	if !strings.Contains(out, "and 5 more") {
		t.Fatalf("expected truncation note:\n%s", out)
	}
}

func TestWriteJSONAndDump(t *testing.T) {
	rep := sampleReport()
	var buf bytes.Buffer
	if err := WriteJSON(&buf, rep); err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if decoded["outcome"] != "completed_with_errors" || decoded["integration"] != "notion" {
		t.Fatalf("decoded = %v", decoded)
	}

	path := filepath.Join(t.TempDir(), "report.json")
	if err := Dump(path, rep); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"runId": "0190-run"`) {
		t.Fatalf("dump = %s", data)
	}
}

func TestRenderFieldsMarksSlugAndMapped(t *testing.T) {
	sch := schema.Schema{DisplayName: "Tasks", Properties: []schema.SourceProperty{
		{ID: "t", Name: "Name", Type: schema.NotionTitle},
		{ID: "s", Name: "Status", Type: schema.NotionStatus},
		{ID: "x", Name: "Mystery", Type: schema.NativeUnknown},
	}}
	mappings := []schema.FieldMapping{{SourcePropertyID: "s", Type: schema.FieldEnum, Enabled: true}}
	allowed := func(n schema.NativeType) []schema.FieldType {
		if n == schema.NativeUnknown {
			return nil
		}
		return []schema.FieldType{schema.FieldString}
	}
	out := RenderFields(sch, mappings, "t", allowed)
	lines := strings.Split(out, "\n")
	var name, status, mystery string
	for _, l := range lines {
		switch {
		case strings.Contains(l, "Name"):
			name = l
		case strings.Contains(l, "Status"):
			status = l
		case strings.Contains(l, "Mystery"):
			mystery = l
		}
	}
	if !strings.Contains(name, "★") || !strings.Contains(status, "enum") || !strings.Contains(mystery, "unsupported") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestRenderStatus(t *testing.T) {
	md := schema.NewRunMetadata(schema.IntegrationAirtable, json.RawMessage(`{"baseId":"app"}`), "Products", "fldName",
		[]schema.FieldMapping{{SourcePropertyID: "a", Enabled: true}, {SourcePropertyID: "b"}}, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC))
	out := RenderStatus(md, 7)
	for _, want := range []string{"airtable", "fldName", "2024-01-01T10:00:00Z", "Items:        7", "1 mapped, 1 ignored"} {
		if !strings.Contains(out, want) {
			t.Fatalf("status missing %q:\n%s", want, out)
		}
	}
}
