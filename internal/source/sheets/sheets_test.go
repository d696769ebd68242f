package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/oauth2"

	"collection-sync/internal/core/schema"
	"collection-sync/internal/source"
)

const valuesJSON = `{"range":"'Team'!A1:F5","values":[
  ["Name","Age","Active","Joined","Photo","Name"],
  ["Ada Lovelace",36,true,"1815-12-10","https://img.example.com/ada.png","x"],
  ["Alan Turing",41,false,"1912-06-23","https://img.example.com/alan.jpg"],
  [],
  ["Ada Lovelace",1,true,"2000-01-01","https://img.example.com/a2.png"],
  ["",2,false,"2000-01-02"]
]}`

func newServer(t *testing.T) (*httptest.Server, *[]*http.Request) {
	t.Helper()
	var reqs []*http.Request
	mux := http.NewServeMux()
	mux.HandleFunc("/spreadsheets/sheet1", func(w http.ResponseWriter, r *http.Request) {
		reqs = append(reqs, r)
		io.WriteString(w, `{"properties":{"title":"People"},"sheets":[{"properties":{"sheetId":0,"title":"Team"}},{"properties":{"sheetId":1,"title":"Other"}}]}`)
	})
	mux.HandleFunc("/spreadsheets/sheet1/values/", func(w http.ResponseWriter, r *http.Request) {
		reqs = append(reqs, r)
		if r.URL.Query().Get("valueRenderOption") != "UNFORMATTED_VALUE" {
			t.Errorf("query = %v", r.URL.Query())
		}
		io.WriteString(w, valuesJSON)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &reqs
}

func TestFetchSchemaInfersColumns(t *testing.T) {
	srv, reqs := newServer(t)
	src := NewSource(srv.Client(), "k", Locator{SpreadsheetID: "sheet1"}, srv.URL)

	s, err := src.FetchSchema(context.Background())
	if err != nil {
		t.Fatalf("FetchSchema: %v", err)
	}
	if s.DisplayName != "People / Team" {
		t.Fatalf("display name = %q", s.DisplayName)
	}
	want := map[string]schema.NativeType{
		"Name":   schema.SheetsText,
		"Age":    schema.SheetsNumber,
		"Active": schema.SheetsBoolean,
		"Joined": schema.SheetsDate,
		"Photo":  schema.SheetsImage,
		"Name 2": schema.SheetsText,
	}
	if len(s.Properties) != len(want) {
		t.Fatalf("properties = %+v", s.Properties)
	}
	for id, typ := range want {
		p, ok := s.Property(id)
		if !ok || p.Type != typ {
			t.Fatalf("%s = %+v (ok=%v), want %v", id, p, ok, typ)
		}
	}
	if (*reqs)[0].URL.Query().Get("key") != "k" {
		t.Fatalf("api key not sent")
	}
}

func TestFetchRecordsIDs(t *testing.T) {
	srv, _ := newServer(t)
	src := NewSource(srv.Client(), "k", Locator{SpreadsheetID: "sheet1", SheetTitle: "Team"}, srv.URL)
	if _, err := src.FetchSchema(context.Background()); err != nil {
		t.Fatal(err)
	}
	recs, err := src.FetchRecords(context.Background())
	if err != nil {
		t.Fatalf("FetchRecords: %v", err)
	}
	var ids []string
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	wantIDs := []string{"ada-lovelace", "alan-turing", "ada-lovelace-1", "row-6"}
	if len(ids) != len(wantIDs) {
		t.Fatalf("ids = %v", ids)
	}
	for i := range wantIDs {
		if ids[i] != wantIDs[i] {
			t.Fatalf("ids = %v, want %v", ids, wantIDs)
		}
	}
	if recs[1].Locator != "Team!A3" {
		t.Fatalf("locator = %q", recs[1].Locator)
	}
	if string(recs[0].Values["Age"]) != "36" || string(recs[0].Values["Active"]) != "true" {
		t.Fatalf("values = %v", recs[0].Values)
	}
	if _, ok := recs[3].Values["Name"]; ok {
		t.Fatalf("empty cells should be absent")
	}
	if !recs[0].LastModified.IsZero() || src.TimestampResolution() != 0 {
		t.Fatalf("sheets rows carry no timestamps")
	}
}

func TestKeyColumnMovesFirst(t *testing.T) {
	srv, _ := newServer(t)
	src := NewSource(srv.Client(), "k", Locator{SpreadsheetID: "sheet1", KeyColumn: "Joined"}, srv.URL)
	s, err := src.FetchSchema(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if s.Properties[0].ID != "Joined" {
		t.Fatalf("key column should be first: %+v", s.Properties)
	}
	recs, _ := src.FetchRecords(context.Background())
	if recs[0].ID != "1815-12-10" {
		t.Fatalf("id = %q", recs[0].ID)
	}
}

func TestUnknownTab(t *testing.T) {
	srv, _ := newServer(t)
	src := NewSource(srv.Client(), "k", Locator{SpreadsheetID: "sheet1", SheetTitle: "Missing"}, srv.URL)
	if _, err := src.FetchSchema(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestOAuthTokenSource(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if r.URL.Query().Get("key") != "" {
			t.Errorf("api key must not be sent with oauth")
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok", TokenType: "Bearer"})
	s, err := New(source.Options{
		HTTPClient:  srv.Client(),
		TokenSource: ts,
		Locator:     json.RawMessage(`{"spreadsheetId":"sheet1"}`),
		BaseURL:     srv.URL,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !s.IsAuthenticated() {
		t.Fatalf("oauth source should report authenticated")
	}
	if _, err := s.FetchSchema(context.Background()); !errors.Is(err, source.ErrNeedsReauth) {
		t.Fatalf("expected ErrNeedsReauth, got %v", err)
	}
	if auth != "Bearer tok" {
		t.Fatalf("authorization = %q", auth)
	}
}

func TestColumnLetter(t *testing.T) {
	cases := map[int]string{0: "A", 25: "Z", 26: "AA", 27: "AB", 701: "ZZ", 702: "AAA"}
	for in, want := range cases {
		if got := columnLetter(in); got != want {
			t.Fatalf("columnLetter(%d) = %q, want %q", in, got, want)
		}
	}
}
