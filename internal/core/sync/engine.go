package sync

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"collection-sync/internal/core/fieldconv"
	"collection-sync/internal/core/schema"
	"collection-sync/internal/infra/logx"
	"collection-sync/internal/sink"
	"collection-sync/internal/source"
)

// Engine runs one source-to-collection sync at a time.
type Engine struct {
	Registry    *fieldconv.Registry
	Concurrency int
	ChunkSize   int
	Now         func() time.Time
}

// Request describes one run.
type Request struct {
	Source source.Source
	Sink   sink.Sink
	// Mappings defaults to the registry's default mapping when empty.
	Mappings []schema.FieldMapping
	// SlugFieldID defaults to the best-ranked slug candidate when empty.
	SlugFieldID string
	// Resolve, when set, derives Mappings and SlugFieldID from the
	// fetched schema and replaces both.
	Resolve func(schema.Schema) ([]schema.FieldMapping, string, error)
	// Reset ignores stored run metadata, including an unusable one.
	Reset bool
	// Full disables the unchanged-record skip.
	Full     bool
	Progress Progress
}

// Stats counts what a run did.
type Stats struct {
	Fetched    int           `json:"fetched"`
	Produced   int           `json:"produced"`
	Unchanged  int           `json:"unchanged"`
	Skipped    int           `json:"skipped"`
	Collisions int           `json:"collisions"`
	Upserted   int           `json:"upserted"`
	Removed    int           `json:"removed"`
	Fields     int           `json:"fields"`
	Duration   time.Duration `json:"duration"`
}

// Report is the result of a run that was written to the sink.
type Report struct {
	RunID       string             `json:"runId"`
	Integration schema.Integration `json:"integration"`
	Collection  string             `json:"collection"`
	Outcome     schema.Outcome     `json:"outcome"`
	Status      *schema.SyncStatus `json:"status"`
	Stats       Stats              `json:"stats"`
	StartedAt   time.Time          `json:"startedAt"`
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) registry() *fieldconv.Registry {
	if e.Registry != nil {
		return e.Registry
	}
	return fieldconv.Default
}

// Run fetches the source, transforms every record and writes the result.
// A returned error means the run failed; nothing is written unless the
// error is a *WriteError.
func (e *Engine) Run(ctx context.Context, req Request) (*Report, error) {
	started := e.now()
	runID := uuid.Must(uuid.NewV7()).String()
	src := req.Source
	in := src.Integration()
	logx.Infow("sync: run started", "run", runID, "integration", in)

	var prev *schema.RunMetadata
	if !req.Reset {
		rc, err := LoadRunContext(ctx, req.Sink, in)
		if err != nil {
			return nil, err
		}
		switch c := rc.(type) {
		case ErrorRun:
			return nil, fmt.Errorf("%w: %s", ErrContextError, c.Message)
		case UpdateRun:
			prev = &c.Metadata
		case NewRun:
		}
	}

	if !src.IsAuthenticated() {
		return nil, source.ErrNeedsReauth
	}
	sch, err := src.FetchSchema(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch schema: %w", err)
	}
	records, err := src.FetchRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch records: %w", err)
	}

	reg := e.registry()
	if req.Resolve != nil {
		if req.Mappings, req.SlugFieldID, err = req.Resolve(sch); err != nil {
			return nil, fmt.Errorf("resolve mapping: %w", err)
		}
	}
	mappings := req.Mappings
	if len(mappings) == 0 {
		mappings = reg.DefaultMappings(sch)
	}
	slugID := req.SlugFieldID
	if slugID == "" {
		p, ok := reg.DefaultSlugField(sch)
		if !ok {
			return nil, ErrNoSlugField
		}
		slugID = p.ID
	}

	existing, err := req.Sink.ItemIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collection items: %w", err)
	}

	skip := !req.Full && src.TimestampResolution() > 0 && CanSkipUnchanged(prev, in, mappings, slugID)
	if prev != nil && !skip {
		logx.Infow("sync: full re-evaluation", "run", runID, "reason", fullReason(req.Full, src, prev))
	}
	pass, err := e.runPass(ctx, req, sch, records, mappings, slugID, existing, prev, skip)
	if err != nil {
		return nil, err
	}
	if skip && widened(prev.FanOutWidths, pass.widths) {
		logx.Infow("sync: fan-out layout widened, re-evaluating every record", "run", runID)
		if pass, err = e.runPass(ctx, req, sch, records, mappings, slugID, existing, prev, false); err != nil {
			return nil, err
		}
	}

	md := schema.NewRunMetadata(in, src.Locator(), sch.DisplayName, slugID, mappings, started)
	md.FanOutWidths = pass.widths
	md.SlugOwners = pass.owners
	md.CollisionIDs = pass.collisionIDs
	w := &Writer{Sink: req.Sink, ChunkSize: e.ChunkSize}
	plan := WritePlan{Fields: pass.fields, Items: pass.items, Remove: pass.remove, Metadata: md}
	if err := w.Apply(ctx, plan); err != nil {
		return nil, err
	}

	stats := pass.stats
	stats.Fetched = len(records)
	stats.Upserted = len(pass.items)
	stats.Removed = len(pass.remove)
	stats.Fields = len(pass.fields)
	stats.Duration = e.now().Sub(started)
	rep := &Report{
		RunID:       runID,
		Integration: in,
		Collection:  sch.DisplayName,
		Outcome:     pass.status.Outcome(),
		Status:      pass.status,
		Stats:       stats,
		StartedAt:   started,
	}
	errs, warns, _ := pass.status.Counts()
	logx.Infow("sync: run finished", "run", runID, "outcome", string(rep.Outcome),
		"upserted", stats.Upserted, "removed", stats.Removed, "unchanged", stats.Unchanged,
		"errors", errs, "warnings", warns, "duration", stats.Duration)
	return rep, nil
}

type passResult struct {
	fields []schema.CollectionField
	items  []schema.CollectionItem
	remove []string
	widths map[string]int
	status *schema.SyncStatus
	stats  Stats

	owners       map[string]string
	collisionIDs []string
}

// runPass transforms, expands and dedupes one batch and works out the
// deletions. It writes nothing.
func (e *Engine) runPass(ctx context.Context, req Request, sch schema.Schema, records []schema.SourceRecord,
	mappings []schema.FieldMapping, slugID string, existing []string, prev *schema.RunMetadata, skip bool) (passResult, error) {
	status := schema.NewSyncStatus()
	cfg := TransformConfig{
		Registry:    e.registry(),
		Schema:      sch,
		Mappings:    mappings,
		SlugFieldID: slugID,
		Resolution:  req.Source.TimestampResolution(),
		Status:      status,
	}
	if skip {
		cfg.LastSynced = prev.LastSyncedTime
		cfg.Recheck = make(map[string]bool, len(prev.CollisionIDs))
		for _, id := range prev.CollisionIDs {
			cfg.Recheck[id] = true
		}
	}
	if en, ok := req.Source.(source.Enricher); ok {
		cfg.Enricher = en
	}
	t, err := NewTransformer(cfg)
	if err != nil {
		return passResult{}, err
	}
	unsynced := NewIDSet(existing)
	p := &Processor{Transformer: t, Unsynced: unsynced, Concurrency: e.Concurrency, Progress: req.Progress}
	batch, err := p.Process(ctx, records)
	if err != nil {
		return passResult{}, err
	}

	// Items skipped as unchanged keep the slugs they hold in the collection.
	taken := make(map[string]string)
	if skip && len(batch.UnchangedIDs) > 0 {
		unchanged := make(map[string]bool, len(batch.UnchangedIDs))
		for _, id := range batch.UnchangedIDs {
			unchanged[id] = true
		}
		for slug, id := range prev.SlugOwners {
			if unchanged[id] {
				taken[slug] = id
			}
		}
	}
	items, collisions := DedupeSlugs(batch.Items, taken)

	var floor map[string]int
	if skip {
		floor = prev.FanOutWidths
	}
	fields, widths := ExpandFields(t.Fields(), items, floor)

	owners := taken
	for _, it := range items {
		owners[it.Slug] = it.ID
	}
	had := make(map[string]bool, len(existing))
	for _, id := range existing {
		had[id] = true
	}
	remove := unsynced.Remaining()
	var dropped []string
	for _, c := range collisions {
		status.AddError(c.Dropped.ID, slugID, fmt.Sprintf("slug %q already used by item %s, item dropped", c.Slug, c.KeptID))
		dropped = append(dropped, c.Dropped.ID)
		if had[c.Dropped.ID] {
			remove = append(remove, c.Dropped.ID)
		}
	}
	sort.Strings(dropped)
	return passResult{
		fields: fields,
		items:  items,
		remove: remove,
		widths: widths,
		status: status,
		stats: Stats{
			Produced:   len(batch.Items),
			Unchanged:  len(batch.UnchangedIDs),
			Skipped:    batch.Skipped,
			Collisions: len(collisions),
		},
		owners:       owners,
		collisionIDs: dropped,
	}, nil
}

// widened reports whether any field needs more sub-fields than last run.
func widened(prev, cur map[string]int) bool {
	for id, w := range cur {
		if w > prev[id] {
			return true
		}
	}
	return false
}

func fullReason(full bool, src source.Source, prev *schema.RunMetadata) string {
	switch {
	case full:
		return "requested"
	case src.TimestampResolution() == 0:
		return "source has no modification times"
	case prev.LastSyncedTime == nil:
		return "no previous sync time"
	}
	return "mapping or slug field changed"
}
