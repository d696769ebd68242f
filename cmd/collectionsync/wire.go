package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"

	"collection-sync/internal/auth"
	"collection-sync/internal/config"
	"collection-sync/internal/core/fieldconv"
	"collection-sync/internal/core/schema"
	coresync "collection-sync/internal/core/sync"
	"collection-sync/internal/infra/logx"
	"collection-sync/internal/mapping"
	"collection-sync/internal/sink"
	"collection-sync/internal/sink/memsink"
	"collection-sync/internal/sink/pgsink"
	"collection-sync/internal/sink/sqlitesink"
	"collection-sync/internal/source"
	"collection-sync/internal/source/airtable"
	"collection-sync/internal/source/notion"
	"collection-sync/internal/source/sheets"
	"collection-sync/internal/transport"
)

func newRegistry() *source.Registry {
	r := source.NewRegistry()
	r.Register(schema.IntegrationNotion, notion.New)
	r.Register(schema.IntegrationAirtable, airtable.New)
	r.Register(schema.IntegrationSheets, sheets.New)
	return r
}

// openSource builds the configured source on a rate-limited, retrying client.
func openSource(ctx context.Context, c config.Config) (source.Source, *transport.Metrics, error) {
	in, loc, token, err := c.SourceLocator()
	if err != nil {
		return nil, nil, err
	}
	topts := c.TransportOptions()
	hc, _ := transport.NewClient(topts, c.HTTPTimeout)
	opts := source.Options{HTTPClient: hc, Token: token, Locator: loc}
	if in == schema.IntegrationSheets && c.Google.ClientID != "" {
		oc := auth.NewGoogleProvider(auth.OAuthConfig{
			ClientID:     c.Google.ClientID,
			ClientSecret: c.Google.ClientSecret,
			RedirectURL:  c.Google.RedirectURL,
		})
		ts, err := auth.TokenSource(context.WithValue(ctx, oauth2.HTTPClient, hc), oc, auth.FileStore{Path: c.Google.TokenFile})
		switch {
		case err == nil:
			opts.TokenSource = ts
		case errors.Is(err, auth.ErrNoToken) && c.Google.APIKey != "":
			logx.Warnw("google: no stored token, falling back to API key", "tokenFile", c.Google.TokenFile)
		case errors.Is(err, auth.ErrNoToken):
			return nil, nil, fmt.Errorf("%w: %v", source.ErrNeedsReauth, err)
		default:
			return nil, nil, err
		}
	}
	src, err := newRegistry().New(in, opts)
	if err != nil {
		return nil, nil, err
	}
	return src, topts.Metrics, nil
}

// openSink opens the configured collection store. The returned func
// releases it.
func openSink(ctx context.Context, c config.Config) (sink.Sink, func(), error) {
	switch c.Sink.Driver {
	case "memory":
		return memsink.New(), func() {}, nil
	case "sqlite", "":
		path := c.Sink.DSN
		if path == "" {
			path = filepath.Join(filepath.Dir(config.DefaultPath()), ".collectionsync", "collections.db")
		}
		s, err := sqlitesink.Open(path, c.Sink.Collection)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	case "postgres":
		if c.Sink.DSN == "" {
			return nil, nil, errors.New("sink: postgres driver needs sink.dsn")
		}
		s, err := pgsink.Open(ctx, c.Sink.DSN, c.Sink.Collection)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("sink: unknown driver %q (sqlite, postgres or memory)", c.Sink.Driver)
	}
}

// loadMapping reads the mapping file. A missing or unset file means the
// registry defaults apply.
func loadMapping(c config.Config) (*mapping.File, error) {
	if c.MappingFile == "" {
		return nil, nil
	}
	f, err := mapping.Load(c.MappingFile)
	if errors.Is(err, os.ErrNotExist) {
		logx.Warnw("mapping: file not found, using defaults", "path", c.MappingFile)
		return nil, nil
	}
	return f, err
}

// resolveMapping returns the mappings for sch, from the file when one is
// loaded.
func resolveMapping(f *mapping.File, sch schema.Schema) ([]schema.FieldMapping, string, error) {
	if f == nil {
		reg := fieldconv.Default
		slug, _ := reg.DefaultSlugField(sch)
		return reg.DefaultMappings(sch), slug.ID, nil
	}
	return f.Resolve(fieldconv.Default, sch)
}

func newEngine(c config.Config) *coresync.Engine {
	return &coresync.Engine{
		Registry:    fieldconv.Default,
		Concurrency: c.Concurrency,
		ChunkSize:   c.Sink.ChunkSize,
	}
}

// runSync performs one complete run with the current configuration.
func runSync(ctx context.Context, c config.Config, full, reset bool, progress coresync.Progress) (*coresync.Report, error) {
	mf, err := loadMapping(c)
	if err != nil {
		return nil, err
	}
	src, metrics, err := openSource(ctx, c)
	if err != nil {
		return nil, err
	}
	snk, closeSink, err := openSink(ctx, c)
	if err != nil {
		return nil, err
	}
	defer closeSink()

	req := coresync.Request{Source: src, Sink: snk, Full: full, Reset: reset, Progress: progress}
	if mf != nil {
		req.Resolve = func(sch schema.Schema) ([]schema.FieldMapping, string, error) { return mf.Resolve(fieldconv.Default, sch) }
	}
	rep, err := newEngine(c).Run(ctx, req)
	m := metrics.Snapshot()
	logx.Infow("transport: totals", "requests", m.TotalRequests, "retries", m.TotalRetries,
		"backoff", m.TotalBackoff, "status429", m.Status429, "status5xx", m.Status5xx)
	return rep, err
}
