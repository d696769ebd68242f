package sync

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"collection-sync/internal/core/schema"
	"collection-sync/internal/infra/logx"
)

// DefaultConcurrency bounds simultaneous record transforms.
const DefaultConcurrency = 5

// Progress reports completed transforms out of total.
type Progress func(done, total int)

// Processor runs a Transformer over a batch with bounded concurrency.
type Processor struct {
	Transformer *Transformer
	// Unsynced, when set, has the id of every produced or unchanged record
	// removed.
	Unsynced    *IDSet
	Concurrency int
	Progress    Progress
}

// BatchResult is what Process hands to the expander and writer.
type BatchResult struct {
	// Items are in input order of their records.
	Items []schema.CollectionItem
	// UnchangedIDs are the records skipped as unchanged, in input order.
	UnchangedIDs []string
	Skipped      int
}

// Process transforms records. Any error or panic from a single transform
// cancels the remaining work and fails the whole batch.
func (p *Processor) Process(ctx context.Context, records []schema.SourceRecord) (BatchResult, error) {
	limit := p.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	outcomes := make([]Outcome, len(records))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range records {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() (err error) {
			rec := records[i]
			defer func() {
				if r := recover(); r != nil {
					logx.Errorw("sync: transform panicked", "record", rec.Locator, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
					err = fmt.Errorf("transform %s: panic: %v", rec.Locator, r)
				}
			}()
			out, err := p.Transformer.Transform(gctx, rec)
			if err != nil {
				return err
			}
			outcomes[i] = out
			if p.Unsynced != nil {
				switch o := out.(type) {
				case Produced:
					p.Unsynced.MarkSeen(o.Item.ID)
				case Skipped:
					if o.Reason == SkipUnchanged {
						p.Unsynced.MarkSeen(rec.ID)
					}
				}
			}
			if p.Progress != nil {
				p.Progress(int(done.Add(1)), len(records))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BatchResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return BatchResult{}, err
	}

	var res BatchResult
	for i, out := range outcomes {
		switch o := out.(type) {
		case Produced:
			res.Items = append(res.Items, o.Item)
		case Skipped:
			if o.Reason == SkipUnchanged {
				res.UnchangedIDs = append(res.UnchangedIDs, records[i].ID)
			} else {
				res.Skipped++
			}
		}
	}
	return res, nil
}
