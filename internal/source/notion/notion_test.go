package notion

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"collection-sync/internal/core/fieldconv"
	"collection-sync/internal/core/schema"
	"collection-sync/internal/source"
)

const databaseJSON = `{
  "id": "db1",
  "title": [{"plain_text": "Tasks"}],
  "properties": {
    "Name":   {"id": "title", "name": "Name", "type": "title", "title": {}},
    "Status": {"id": "st%3A", "name": "Status", "type": "status", "status": {"options": [{"id": "s-done", "name": "Done", "color": "green"}]}},
    "Weird":  {"id": "w1", "name": "Weird", "type": "verification"}
  }
}`

func pageJSON(id, title string) string {
	return `{"id":"` + id + `","url":"https://notion.so/` + id + `","last_edited_time":"2024-01-01T10:00:00.000Z",
	  "cover":null,"icon":{"type":"emoji","emoji":"📌"},
	  "properties":{"Name":{"id":"title","type":"title","title":[{"plain_text":"` + title + `"}]},
	                "Status":{"id":"st%3A","type":"status","status":{"name":"Done"}}}}`
}

func newServer(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var cursors []string
	mux := http.NewServeMux()
	mux.HandleFunc("/databases/db1", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Notion-Version") == "" || r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing headers: %v", r.Header)
		}
		io.WriteString(w, databaseJSON)
	})
	mux.HandleFunc("/databases/db1/query", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("query method = %s", r.Method)
		}
		var body struct {
			StartCursor string `json:"start_cursor"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		cursors = append(cursors, body.StartCursor)
		if body.StartCursor == "" {
			io.WriteString(w, `{"results":[`+pageJSON("p1", "Hello")+`],"has_more":true,"next_cursor":"c2"}`)
			return
		}
		io.WriteString(w, `{"results":[`+pageJSON("p2", "World")+`,{"id":"p3","archived":true,"properties":{}}],"has_more":false,"next_cursor":null}`)
	})
	mux.HandleFunc("/blocks/p1/children", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"results":[
		  {"id":"b1","type":"paragraph","paragraph":{"rich_text":[{"plain_text":"Intro"}]},"has_children":false},
		  {"id":"b2","type":"toggle","toggle":{"rich_text":[{"plain_text":"More"}]},"has_children":true}],
		  "has_more":false}`)
	})
	mux.HandleFunc("/blocks/b2/children", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"results":[{"id":"b3","type":"paragraph","paragraph":{"rich_text":[{"plain_text":"Hidden"}]}}],"has_more":false}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &cursors
}

func TestFetchSchema(t *testing.T) {
	srv, _ := newServer(t)
	src := NewSource(srv.Client(), "secret", Locator{DatabaseID: "db1"}, srv.URL)

	s, err := src.FetchSchema(context.Background())
	if err != nil {
		t.Fatalf("FetchSchema: %v", err)
	}
	if s.DisplayName != "Tasks" || s.TitlePropertyID != "title" {
		t.Fatalf("schema = %+v", s)
	}
	if s.Properties[0].Type != schema.NotionTitle {
		t.Fatalf("title should sort first: %+v", s.Properties)
	}
	st, ok := s.Property("st%3A")
	if !ok || st.Type != schema.NotionStatus || len(st.Options) != 1 || st.Options[0].ID != "s-done" {
		t.Fatalf("status property = %+v", st)
	}
	w, _ := s.Property("w1")
	if w.Type != schema.NativeUnknown {
		t.Fatalf("unknown type should map to NativeUnknown, got %v", w.Type)
	}
	if _, ok := s.Property(PageContentID); !ok {
		t.Fatalf("synthetic page content property missing")
	}
}

func TestFetchRecordsPaginates(t *testing.T) {
	srv, cursors := newServer(t)
	src := NewSource(srv.Client(), "secret", Locator{DatabaseID: "db1"}, srv.URL)

	recs, err := src.FetchRecords(context.Background())
	if err != nil {
		t.Fatalf("FetchRecords: %v", err)
	}
	if len(recs) != 2 || recs[0].ID != "p1" || recs[1].ID != "p2" {
		t.Fatalf("records = %+v", recs)
	}
	if strings.Join(*cursors, ",") != ",c2" {
		t.Fatalf("cursors = %q", *cursors)
	}
	r := recs[0]
	if r.Locator != "https://notion.so/p1" || r.LastModified.Minute() != 0 || r.LastModified.Hour() != 10 {
		t.Fatalf("record meta = %+v", r)
	}
	if string(r.Values["st%3A"]) != `{"name":"Done"}` {
		t.Fatalf("status raw = %s", r.Values["st%3A"])
	}
	if _, ok := r.Values[PageIconID]; !ok {
		t.Fatalf("icon value missing")
	}
}

func TestEnrichValueFetchesNestedBlocks(t *testing.T) {
	srv, _ := newServer(t)
	src := NewSource(srv.Client(), "secret", Locator{DatabaseID: "db1"}, srv.URL)

	raw, err := src.EnrichValue(context.Background(), schema.SourceRecord{ID: "p1"}, schema.SourceProperty{ID: PageContentID, Type: schema.NotionPageContent})
	if err != nil {
		t.Fatalf("EnrichValue: %v", err)
	}
	conv, _ := fieldconv.Default.Lookup(schema.NotionPageContent, schema.FieldFormattedText)
	v, err := conv(raw, fieldconv.Context{})
	if err != nil {
		t.Fatal(err)
	}
	got := v.(schema.Scalar).String()
	if got != "<p>Intro</p><details><summary>More</summary><p>Hidden</p></details>" {
		t.Fatalf("content = %q", got)
	}
}

func TestUnauthorizedNeedsReauth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"object":"error","code":"unauthorized"}`)
	}))
	defer srv.Close()
	src := NewSource(srv.Client(), "expired", Locator{DatabaseID: "db1"}, srv.URL)

	_, err := src.FetchRecords(context.Background())
	if !errors.Is(err, source.ErrNeedsReauth) {
		t.Fatalf("expected ErrNeedsReauth, got %v", err)
	}
}

func TestNewRequiresDatabaseID(t *testing.T) {
	if _, err := New(source.Options{Locator: json.RawMessage(`{}`)}); err == nil {
		t.Fatalf("expected error for empty locator")
	}
	s, err := New(source.Options{Locator: json.RawMessage(`{"databaseId":"abc"}`), Token: "t"})
	if err != nil || !s.IsAuthenticated() || string(s.Locator()) != `{"databaseId":"abc"}` {
		t.Fatalf("New = %v, %v", s, err)
	}
}
