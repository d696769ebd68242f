// Package source defines the contract every integration adapter fulfils and
// the helpers they share.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"golang.org/x/oauth2"

	"collection-sync/internal/core/schema"
	"collection-sync/internal/transport"
)

// ErrNeedsReauth is returned (wrapped) when the source rejected the
// credentials. Callers route the user back to authorization instead of
// retrying.
var ErrNeedsReauth = errors.New("source: credentials rejected, re-authorization required")

// Source fetches the schema and records of one external table.
type Source interface {
	Integration() schema.Integration
	// Locator is the opaque, JSON-encoded address of the table.
	Locator() json.RawMessage
	FetchSchema(ctx context.Context) (schema.Schema, error)
	// FetchRecords loops over all pages and returns every record.
	FetchRecords(ctx context.Context) ([]schema.SourceRecord, error)
	IsAuthenticated() bool
	// TimestampResolution is the granularity of record last-modified times.
	// Zero means the source has no usable timestamps and records are never
	// skipped as unchanged.
	TimestampResolution() time.Duration
}

// Enricher is implemented by sources with synthetic properties whose value
// needs an extra request per record (Notion page content).
type Enricher interface {
	EnrichValue(ctx context.Context, rec schema.SourceRecord, prop schema.SourceProperty) (json.RawMessage, error)
}

// Options carries what a factory needs to build a Source.
type Options struct {
	HTTPClient *http.Client
	// Token is a static bearer token or API key.
	Token string
	// TokenSource, when set, authorizes requests via OAuth2 instead of Token.
	TokenSource oauth2.TokenSource
	Locator     json.RawMessage
	// BaseURL overrides the API endpoint (tests, proxies).
	BaseURL string
}

// Factory builds a Source. Building a fresh Source after re-authorization
// replaces the old client; sources never share mutable client state.
type Factory func(Options) (Source, error)

// Registry maps integrations to factories.
type Registry struct {
	factories map[schema.Integration]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[schema.Integration]Factory)}
}

func (r *Registry) Register(in schema.Integration, f Factory) {
	r.factories[in] = f
}

// New builds the source for in.
func (r *Registry) New(in schema.Integration, opts Options) (Source, error) {
	f, ok := r.factories[in]
	if !ok {
		return nil, fmt.Errorf("source: integration %q not registered", in)
	}
	return f(opts)
}

// Integrations lists the registered integrations in a stable order.
func (r *Registry) Integrations() []schema.Integration {
	out := make([]schema.Integration, 0, len(r.factories))
	for in := range r.factories {
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CheckResponse converts a non-2xx response into an error, mapping 401 to
// ErrNeedsReauth.
func CheckResponse(resp *http.Response) error {
	err := transport.CheckResponse(resp)
	if err == nil {
		return nil
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %w", ErrNeedsReauth, err)
	}
	return err
}

// RequestError wraps a failed client.Do. A failed OAuth2 token refresh means
// the grant was revoked or expired and maps to ErrNeedsReauth.
func RequestError(op string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return fmt.Errorf("%s: %w: %w", op, ErrNeedsReauth, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// DecodeJSON checks resp and decodes its body into v.
func DecodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if err := CheckResponse(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s response: %w", resp.Request.URL.Path, err)
	}
	return nil
}

// Raw marshals v for SourceRecord.Values.
func Raw(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
