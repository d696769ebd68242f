// Package notion adapts a Notion database to source.Source.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"collection-sync/internal/core/fieldconv"
	"collection-sync/internal/core/schema"
	"collection-sync/internal/infra/logx"
	"collection-sync/internal/source"
)

const (
	defaultBaseURL = "https://api.notion.com/v1"
	apiVersion     = "2022-06-28"
	pageSize       = 100
)

// Synthetic property ids. They cannot collide with Notion ids, which are
// short URL-encoded strings.
const (
	PageContentID = "page-content"
	PageCoverID   = "page-cover"
	PageIconID    = "page-icon"
)

// Locator addresses one database.
type Locator struct {
	DatabaseID string `json:"databaseId"`
}

// Source reads a Notion database.
type Source struct {
	http    *http.Client
	token   string
	baseURL string
	loc     Locator
}

// New is the source.Factory for Notion.
func New(opts source.Options) (source.Source, error) {
	var loc Locator
	if len(opts.Locator) > 0 {
		if err := json.Unmarshal(opts.Locator, &loc); err != nil {
			return nil, fmt.Errorf("notion locator: %w", err)
		}
	}
	if loc.DatabaseID == "" {
		return nil, errors.New("notion locator: databaseId is required")
	}
	return NewSource(opts.HTTPClient, opts.Token, loc, opts.BaseURL), nil
}

// NewSource builds a source from an explicit client.
func NewSource(hc *http.Client, token string, loc Locator, baseURL string) *Source {
	if hc == nil {
		hc = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Source{http: hc, token: token, baseURL: strings.TrimRight(baseURL, "/"), loc: loc}
}

func (s *Source) Integration() schema.Integration { return schema.IntegrationNotion }

func (s *Source) Locator() json.RawMessage { return source.Raw(s.loc) }

func (s *Source) IsAuthenticated() bool { return s.token != "" }

// TimestampResolution is a minute: Notion truncates last_edited_time.
func (s *Source) TimestampResolution() time.Duration { return time.Minute }

func (s *Source) do(ctx context.Context, method, path string, body any, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Notion-Version", apiVersion)
	req.Header.Set("Content-Type", "application/json")
	res, err := s.http.Do(req)
	if err != nil {
		return source.RequestError("notion "+method+" "+path, err)
	}
	return source.DecodeJSON(res, out)
}

type propertyDef struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Select      *optionsDef `json:"select,omitempty"`
	Status      *optionsDef `json:"status,omitempty"`
	MultiSelect *optionsDef `json:"multi_select,omitempty"`
	Number      *struct {
		Format string `json:"format"`
	} `json:"number,omitempty"`
}

type optionsDef struct {
	Options []schema.EnumOption `json:"options"`
}

type database struct {
	ID         string                 `json:"id"`
	Title      []fieldconv.RichText   `json:"title"`
	Properties map[string]propertyDef `json:"properties"`
}

// FetchSchema reads the database definition. Unsupported property types are
// returned with NativeUnknown so callers can list them as unsupported.
func (s *Source) FetchSchema(ctx context.Context) (schema.Schema, error) {
	var db database
	if err := s.do(ctx, http.MethodGet, "/databases/"+url.PathEscape(s.loc.DatabaseID), nil, &db); err != nil {
		return schema.Schema{}, err
	}
	out := schema.Schema{DisplayName: fieldconv.PlainText(db.Title)}
	if out.DisplayName == "" {
		out.DisplayName = "Untitled"
	}
	defs := make([]propertyDef, 0, len(db.Properties))
	for name, def := range db.Properties {
		if def.Name == "" {
			def.Name = name
		}
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool {
		ti, tj := defs[i].Type == "title", defs[j].Type == "title"
		if ti != tj {
			return ti
		}
		return defs[i].Name < defs[j].Name
	})
	for _, def := range defs {
		p := schema.SourceProperty{
			ID:   def.ID,
			Name: def.Name,
			Type: schema.ParseNativeType(schema.IntegrationNotion, def.Type),
		}
		switch {
		case def.Select != nil:
			p.Options = def.Select.Options
		case def.Status != nil:
			p.Options = def.Status.Options
		case def.MultiSelect != nil:
			p.Options = def.MultiSelect.Options
		case def.Number != nil:
			p.Format = def.Number.Format
		}
		if p.Type == schema.NotionTitle {
			out.TitlePropertyID = p.ID
		}
		out.Properties = append(out.Properties, p)
	}
	out.Properties = append(out.Properties,
		schema.SourceProperty{ID: PageContentID, Name: "Content", Type: schema.NotionPageContent},
		schema.SourceProperty{ID: PageCoverID, Name: "Cover Image", Type: schema.NotionPageCover},
		schema.SourceProperty{ID: PageIconID, Name: "Icon", Type: schema.NotionPageIcon},
	)
	return out, nil
}

type pageProperty struct {
	ID   string
	Type string
	Raw  json.RawMessage
}

func (p *pageProperty) UnmarshalJSON(b []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	if v, ok := m["id"]; ok {
		if err := json.Unmarshal(v, &p.ID); err != nil {
			return err
		}
	}
	if v, ok := m["type"]; ok {
		if err := json.Unmarshal(v, &p.Type); err != nil {
			return err
		}
	}
	p.Raw = m[p.Type]
	return nil
}

type page struct {
	ID             string                  `json:"id"`
	URL            string                  `json:"url"`
	Archived       bool                    `json:"archived"`
	InTrash        bool                    `json:"in_trash"`
	LastEditedTime time.Time               `json:"last_edited_time"`
	Cover          json.RawMessage         `json:"cover"`
	Icon           json.RawMessage         `json:"icon"`
	Properties     map[string]pageProperty `json:"properties"`
}

type queryResponse struct {
	Results    []page  `json:"results"`
	HasMore    bool    `json:"has_more"`
	NextCursor *string `json:"next_cursor"`
}

// FetchRecords queries the database until next_cursor is exhausted.
func (s *Source) FetchRecords(ctx context.Context) ([]schema.SourceRecord, error) {
	var out []schema.SourceRecord
	body := map[string]any{"page_size": pageSize}
	for {
		var resp queryResponse
		if err := s.do(ctx, http.MethodPost, "/databases/"+url.PathEscape(s.loc.DatabaseID)+"/query", body, &resp); err != nil {
			return nil, err
		}
		for _, pg := range resp.Results {
			if pg.Archived || pg.InTrash {
				continue
			}
			out = append(out, toRecord(pg))
		}
		logx.Debugw("notion: fetched page of records", "database", s.loc.DatabaseID, "count", len(resp.Results), "total", len(out))
		if !resp.HasMore || resp.NextCursor == nil || *resp.NextCursor == "" {
			break
		}
		body = map[string]any{"page_size": pageSize, "start_cursor": *resp.NextCursor}
	}
	return out, nil
}

func toRecord(pg page) schema.SourceRecord {
	rec := schema.SourceRecord{
		ID:           pg.ID,
		Locator:      pg.URL,
		LastModified: pg.LastEditedTime,
		Values:       make(map[string]json.RawMessage, len(pg.Properties)+2),
	}
	if rec.Locator == "" {
		rec.Locator = pg.ID
	}
	for _, p := range pg.Properties {
		rec.Values[p.ID] = p.Raw
	}
	if len(pg.Cover) > 0 {
		rec.Values[PageCoverID] = pg.Cover
	}
	if len(pg.Icon) > 0 {
		rec.Values[PageIconID] = pg.Icon
	}
	return rec
}

type blockResponse struct {
	Results []struct {
		fieldconv.Block
		HasChildren bool `json:"has_children"`
	} `json:"results"`
	HasMore    bool    `json:"has_more"`
	NextCursor *string `json:"next_cursor"`
}

// maxBlockDepth bounds recursion into nested blocks.
const maxBlockDepth = 3

// EnrichValue fetches the page body for the synthetic content property.
func (s *Source) EnrichValue(ctx context.Context, rec schema.SourceRecord, prop schema.SourceProperty) (json.RawMessage, error) {
	if prop.Type != schema.NotionPageContent {
		return rec.Values[prop.ID], nil
	}
	blocks, err := s.blocks(ctx, rec.ID, 0)
	if err != nil {
		return nil, err
	}
	return source.Raw(blocks), nil
}

func (s *Source) blocks(ctx context.Context, parentID string, depth int) ([]fieldconv.Block, error) {
	var out []fieldconv.Block
	cursor := ""
	for {
		q := url.Values{}
		q.Set("page_size", fmt.Sprint(pageSize))
		if cursor != "" {
			q.Set("start_cursor", cursor)
		}
		var resp blockResponse
		if err := s.do(ctx, http.MethodGet, "/blocks/"+url.PathEscape(parentID)+"/children?"+q.Encode(), nil, &resp); err != nil {
			return nil, err
		}
		for _, r := range resp.Results {
			b := r.Block
			if r.HasChildren && depth < maxBlockDepth {
				children, err := s.blocks(ctx, b.ID, depth+1)
				if err != nil {
					return nil, err
				}
				b.Children = children
			}
			out = append(out, b)
		}
		if !resp.HasMore || resp.NextCursor == nil || *resp.NextCursor == "" {
			return out, nil
		}
		cursor = *resp.NextCursor
	}
}
