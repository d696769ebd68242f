// Package sheets adapts one tab of a Google Sheet to source.Source. The first
// row holds the column headers; every following non-empty row is a record.
package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"collection-sync/internal/core/schema"
	coresync "collection-sync/internal/core/sync"
	"collection-sync/internal/infra/logx"
	"collection-sync/internal/source"
)

const defaultBaseURL = "https://sheets.googleapis.com/v4"

// Locator addresses one sheet tab. KeyColumn names the header whose values
// identify rows across runs; the first column is used when empty.
type Locator struct {
	SpreadsheetID string `json:"spreadsheetId"`
	SheetTitle    string `json:"sheetTitle,omitempty"`
	KeyColumn     string `json:"keyColumn,omitempty"`
}

// Source reads a sheet through the Sheets v4 values API.
type Source struct {
	http    *http.Client
	apiKey  string
	oauth   bool
	baseURL string
	loc     Locator

	// filled by FetchSchema
	title   string
	headers []string
	rows    [][]any
}

// New is the source.Factory for Google Sheets. With a TokenSource requests
// are authorized via OAuth2; otherwise Token is sent as an API key, which
// only works for publicly shared sheets.
func New(opts source.Options) (source.Source, error) {
	var loc Locator
	if len(opts.Locator) > 0 {
		if err := json.Unmarshal(opts.Locator, &loc); err != nil {
			return nil, fmt.Errorf("sheets locator: %w", err)
		}
	}
	if loc.SpreadsheetID == "" {
		return nil, errors.New("sheets locator: spreadsheetId is required")
	}
	hc := opts.HTTPClient
	if opts.TokenSource != nil {
		ctx := context.Background()
		if hc != nil {
			ctx = context.WithValue(ctx, oauth2.HTTPClient, hc)
		}
		hc = oauth2.NewClient(ctx, opts.TokenSource)
		s := NewSource(hc, "", loc, opts.BaseURL)
		s.oauth = true
		return s, nil
	}
	return NewSource(hc, opts.Token, loc, opts.BaseURL), nil
}

// NewSource builds a source from an explicit client. apiKey may be empty
// when hc already authorizes requests.
func NewSource(hc *http.Client, apiKey string, loc Locator, baseURL string) *Source {
	if hc == nil {
		hc = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Source{http: hc, apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/"), loc: loc}
}

func (s *Source) Integration() schema.Integration { return schema.IntegrationSheets }

func (s *Source) Locator() json.RawMessage { return source.Raw(s.loc) }

func (s *Source) IsAuthenticated() bool { return s.oauth || s.apiKey != "" }

// TimestampResolution is zero: the values API exposes no per-row timestamps,
// so every row is re-evaluated on each run.
func (s *Source) TimestampResolution() time.Duration { return 0 }

func (s *Source) get(ctx context.Context, path string, q url.Values, out any) error {
	if q == nil {
		q = url.Values{}
	}
	if s.apiKey != "" {
		q.Set("key", s.apiKey)
	}
	u := s.baseURL + path + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	res, err := s.http.Do(req)
	if err != nil {
		return source.RequestError("sheets GET "+path, err)
	}
	return source.DecodeJSON(res, out)
}

type metaResponse struct {
	Properties struct {
		Title string `json:"title"`
	} `json:"properties"`
	Sheets []struct {
		Properties struct {
			SheetID int    `json:"sheetId"`
			Title   string `json:"title"`
		} `json:"properties"`
	} `json:"sheets"`
}

type valuesResponse struct {
	Range  string  `json:"range"`
	Values [][]any `json:"values"`
}

// load reads the spreadsheet metadata and the whole tab. The values API has
// no pagination, so schema and records come from the same read.
func (s *Source) load(ctx context.Context) error {
	id := url.PathEscape(s.loc.SpreadsheetID)
	var meta metaResponse
	q := url.Values{}
	q.Set("fields", "properties.title,sheets.properties")
	if err := s.get(ctx, "/spreadsheets/"+id, q, &meta); err != nil {
		return err
	}
	tab := s.loc.SheetTitle
	if tab == "" {
		if len(meta.Sheets) == 0 {
			return fmt.Errorf("sheets: spreadsheet %q has no tabs", s.loc.SpreadsheetID)
		}
		tab = meta.Sheets[0].Properties.Title
	} else {
		found := false
		for _, sh := range meta.Sheets {
			if sh.Properties.Title == tab {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("sheets: tab %q not found in spreadsheet %q", tab, s.loc.SpreadsheetID)
		}
	}

	var vals valuesResponse
	q = url.Values{}
	q.Set("valueRenderOption", "UNFORMATTED_VALUE")
	q.Set("dateTimeRenderOption", "FORMATTED_STRING")
	if err := s.get(ctx, "/spreadsheets/"+id+"/values/"+url.PathEscape(quoteRange(tab)), q, &vals); err != nil {
		return err
	}
	s.loc.SheetTitle = tab
	s.title = meta.Properties.Title
	if tab != "" && tab != s.title {
		s.title = s.title + " / " + tab
	}
	s.headers = nil
	s.rows = nil
	if len(vals.Values) == 0 {
		return nil
	}
	s.headers = headerNames(vals.Values[0])
	s.rows = vals.Values[1:]
	logx.Debugw("sheets: loaded tab", "spreadsheet", s.loc.SpreadsheetID, "tab", tab, "rows", len(s.rows))
	return nil
}

// quoteRange wraps a tab title in single quotes as A1 notation requires for
// titles with spaces or punctuation.
func quoteRange(tab string) string {
	return "'" + strings.ReplaceAll(tab, "'", "''") + "'"
}

// headerNames turns the header row into unique, non-empty column names.
func headerNames(row []any) []string {
	out := make([]string, len(row))
	seen := make(map[string]int, len(row))
	for i, c := range row {
		name := strings.TrimSpace(fmt.Sprint(c))
		if c == nil || name == "" {
			name = columnLetter(i)
		}
		if n := seen[name]; n > 0 {
			seen[name] = n + 1
			name = name + " " + strconv.Itoa(n+1)
		} else {
			seen[name] = 1
		}
		out[i] = name
	}
	return out
}

// columnLetter returns the A1 column letter(s) of a zero-based index.
func columnLetter(i int) string {
	var b []byte
	for i++; i > 0; i = (i - 1) / 26 {
		b = append([]byte{byte('A' + (i-1)%26)}, b...)
	}
	return string(b)
}

// FetchSchema reads the header row and infers a native type per column from
// its cells.
func (s *Source) FetchSchema(ctx context.Context) (schema.Schema, error) {
	if err := s.load(ctx); err != nil {
		return schema.Schema{}, err
	}
	out := schema.Schema{DisplayName: s.title}
	for i, h := range s.headers {
		out.Properties = append(out.Properties, schema.SourceProperty{
			ID:   h,
			Name: h,
			Type: inferColumn(s.rows, i),
		})
	}
	if key := s.keyIndex(); key > 0 {
		p := out.Properties[key]
		out.Properties = append(out.Properties[:key], out.Properties[key+1:]...)
		out.Properties = append([]schema.SourceProperty{p}, out.Properties...)
	}
	return out, nil
}

func (s *Source) keyIndex() int {
	if s.loc.KeyColumn == "" {
		return 0
	}
	for i, h := range s.headers {
		if h == s.loc.KeyColumn {
			return i
		}
	}
	return 0
}

// FetchRecords returns every non-empty row. The record id is the slugified
// key column value; duplicates get a numeric suffix and rows without a key
// fall back to their row number.
func (s *Source) FetchRecords(ctx context.Context) ([]schema.SourceRecord, error) {
	if s.headers == nil {
		if err := s.load(ctx); err != nil {
			return nil, err
		}
	}
	key := s.keyIndex()
	used := make(map[string]int, len(s.rows))
	out := make([]schema.SourceRecord, 0, len(s.rows))
	for r, row := range s.rows {
		if rowEmpty(row) {
			continue
		}
		rowNum := r + 2
		id := ""
		if key < len(row) && row[key] != nil {
			id = coresync.NormalizeSlug(fmt.Sprint(row[key]))
		}
		if id == "" {
			id = "row-" + strconv.Itoa(rowNum)
		}
		if n := used[id]; n > 0 {
			used[id] = n + 1
			id = id + "-" + strconv.Itoa(n)
		} else {
			used[id] = 1
		}
		rec := schema.SourceRecord{
			ID:      id,
			Locator: s.loc.SheetTitle + "!A" + strconv.Itoa(rowNum),
			Values:  make(map[string]json.RawMessage, len(s.headers)),
		}
		for i, h := range s.headers {
			if i >= len(row) || row[i] == nil || row[i] == "" {
				continue
			}
			rec.Values[h] = source.Raw(row[i])
		}
		out = append(out, rec)
	}
	return out, nil
}

func rowEmpty(row []any) bool {
	for _, c := range row {
		if c != nil && strings.TrimSpace(fmt.Sprint(c)) != "" {
			return false
		}
	}
	return true
}

var (
	reDate    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}([ T]\d{2}:\d{2}(:\d{2})?)?$|^\d{1,2}/\d{1,2}/\d{4}( \d{1,2}:\d{2}(:\d{2})?)?$`)
	reHTMLTag = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)
	imageExts = []string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg", ".avif"}
)

// inferColumn picks the narrowest type every non-empty cell of column i
// satisfies. Text is the fallback.
func inferColumn(rows [][]any, col int) schema.NativeType {
	var kinds []schema.NativeType
	for _, row := range rows {
		if col >= len(row) || row[col] == nil || row[col] == "" {
			continue
		}
		kinds = append(kinds, cellKind(row[col]))
	}
	if len(kinds) == 0 {
		return schema.SheetsText
	}
	first := kinds[0]
	for _, k := range kinds[1:] {
		if k == first {
			continue
		}
		// a column mixing plain links and image links is still a link column
		if (k == schema.SheetsURL && first == schema.SheetsImage) || (k == schema.SheetsImage && first == schema.SheetsURL) {
			first = schema.SheetsURL
			continue
		}
		return schema.SheetsText
	}
	return first
}

func cellKind(v any) schema.NativeType {
	switch vv := v.(type) {
	case bool:
		return schema.SheetsBoolean
	case float64:
		return schema.SheetsNumber
	case string:
		s := strings.TrimSpace(vv)
		lower := strings.ToLower(s)
		switch {
		case reDate.MatchString(s):
			return schema.SheetsDate
		case strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://"):
			path := lower
			if u, err := url.Parse(s); err == nil {
				path = strings.ToLower(u.Path)
			}
			for _, ext := range imageExts {
				if strings.HasSuffix(path, ext) {
					return schema.SheetsImage
				}
			}
			return schema.SheetsURL
		case reHTMLTag.MatchString(s):
			return schema.SheetsHTML
		}
	}
	return schema.SheetsText
}
