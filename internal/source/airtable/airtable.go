// Package airtable adapts an Airtable table to source.Source.
package airtable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"collection-sync/internal/core/schema"
	"collection-sync/internal/infra/logx"
	"collection-sync/internal/source"
)

const (
	defaultBaseURL = "https://api.airtable.com/v0"
	pageSize       = 100
)

// Locator addresses one table of a base.
type Locator struct {
	BaseID  string `json:"baseId"`
	TableID string `json:"tableId"`
}

// Source reads an Airtable table.
type Source struct {
	http    *http.Client
	token   string
	baseURL string
	loc     Locator

	// lastModifiedField is the id of a lastModifiedTime field, discovered
	// by FetchSchema; records carry no timestamp without one.
	lastModifiedField string
}

// New is the source.Factory for Airtable.
func New(opts source.Options) (source.Source, error) {
	var loc Locator
	if len(opts.Locator) > 0 {
		if err := json.Unmarshal(opts.Locator, &loc); err != nil {
			return nil, fmt.Errorf("airtable locator: %w", err)
		}
	}
	if loc.BaseID == "" || loc.TableID == "" {
		return nil, errors.New("airtable locator: baseId and tableId are required")
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

func (s *Source) Integration() schema.Integration { return schema.IntegrationAirtable }

func (s *Source) Locator() json.RawMessage { return source.Raw(s.loc) }

func (s *Source) IsAuthenticated() bool { return s.token != "" }

func (s *Source) TimestampResolution() time.Duration { return time.Second }

func (s *Source) get(ctx context.Context, path string, q url.Values, out any) error {
	u := s.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	res, err := s.http.Do(req)
	if err != nil {
		return source.RequestError("airtable GET "+path, err)
	}
	return source.DecodeJSON(res, out)
}

type fieldDef struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Options struct {
		Choices        []schema.EnumOption `json:"choices"`
		DurationFormat string              `json:"durationFormat"`
		Result         *struct {
			Type string `json:"type"`
		} `json:"result"`
	} `json:"options"`
}

type tablesResponse struct {
	Tables []struct {
		ID             string     `json:"id"`
		Name           string     `json:"name"`
		PrimaryFieldID string     `json:"primaryFieldId"`
		Fields         []fieldDef `json:"fields"`
	} `json:"tables"`
}

// FetchSchema reads the table definition from the metadata API. The primary
// field is listed first so it wins slug ranking ties.
func (s *Source) FetchSchema(ctx context.Context) (schema.Schema, error) {
	var resp tablesResponse
	if err := s.get(ctx, "/meta/bases/"+url.PathEscape(s.loc.BaseID)+"/tables", nil, &resp); err != nil {
		return schema.Schema{}, err
	}
	for _, tbl := range resp.Tables {
		if tbl.ID != s.loc.TableID && tbl.Name != s.loc.TableID {
			continue
		}
		out := schema.Schema{DisplayName: tbl.Name}
		s.lastModifiedField = ""
		for _, f := range tbl.Fields {
			p := schema.SourceProperty{
				ID:      f.ID,
				Name:    f.Name,
				Type:    schema.ParseNativeType(schema.IntegrationAirtable, f.Type),
				Options: f.Options.Choices,
				Format:  f.Options.DurationFormat,
			}
			if f.Options.Result != nil {
				p.Result = schema.ParseNativeType(schema.IntegrationAirtable, f.Options.Result.Type)
			}
			if p.Type == schema.AirtableLastModifiedTime && s.lastModifiedField == "" {
				s.lastModifiedField = f.ID
			}
			if f.ID == tbl.PrimaryFieldID {
				out.Properties = append([]schema.SourceProperty{p}, out.Properties...)
				continue
			}
			out.Properties = append(out.Properties, p)
		}
		return out, nil
	}
	return schema.Schema{}, fmt.Errorf("airtable: table %q not found in base %q", s.loc.TableID, s.loc.BaseID)
}

type record struct {
	ID          string                     `json:"id"`
	CreatedTime time.Time                  `json:"createdTime"`
	Fields      map[string]json.RawMessage `json:"fields"`
}

type recordsResponse struct {
	Records []record `json:"records"`
	Offset  string   `json:"offset"`
}

// FetchRecords lists all records, following offset tokens.
func (s *Source) FetchRecords(ctx context.Context) ([]schema.SourceRecord, error) {
	var out []schema.SourceRecord
	offset := ""
	for {
		q := url.Values{}
		q.Set("pageSize", fmt.Sprint(pageSize))
		q.Set("returnFieldsByFieldId", "true")
		q.Set("cellFormat", "json")
		if offset != "" {
			q.Set("offset", offset)
		}
		var resp recordsResponse
		if err := s.get(ctx, "/"+url.PathEscape(s.loc.BaseID)+"/"+url.PathEscape(s.loc.TableID), q, &resp); err != nil {
			return nil, err
		}
		for _, r := range resp.Records {
			out = append(out, s.toRecord(r))
		}
		logx.Debugw("airtable: fetched page of records", "table", s.loc.TableID, "count", len(resp.Records), "total", len(out))
		if resp.Offset == "" {
			return out, nil
		}
		offset = resp.Offset
	}
}

func (s *Source) toRecord(r record) schema.SourceRecord {
	rec := schema.SourceRecord{
		ID:      r.ID,
		Locator: "https://airtable.com/" + s.loc.BaseID + "/" + s.loc.TableID + "/" + r.ID,
		Values:  r.Fields,
	}
	if rec.Values == nil {
		rec.Values = map[string]json.RawMessage{}
	}
	if s.lastModifiedField != "" {
		var ts string
		if raw, ok := r.Fields[s.lastModifiedField]; ok && json.Unmarshal(raw, &ts) == nil {
			if t, err := time.Parse(time.RFC3339, ts); err == nil {
				rec.LastModified = t
			}
		}
	}
	return rec
}
