package sync

import (
	"context"
	"fmt"

	"collection-sync/internal/core/schema"
	"collection-sync/internal/infra/logx"
	"collection-sync/internal/sink"
)

// DefaultChunkSize bounds the number of items per AddItems call.
const DefaultChunkSize = 250

// WriteStep names the phase a write failed in.
type WriteStep string

const (
	StepSetFields   WriteStep = "set fields"
	StepAddItems    WriteStep = "add items"
	StepRemoveItems WriteStep = "remove items"
	StepMetadata    WriteStep = "save metadata"
)

// WriteError reports a failed write phase. Earlier phases are not rolled
// back, so the collection may hold a new schema with old items.
type WriteError struct {
	Step WriteStep
	Err  error
}

func (e *WriteError) Error() string { return fmt.Sprintf("sink write failed (%s): %v", e.Step, e.Err) }
func (e *WriteError) Unwrap() error { return e.Err }

// WritePlan is the finalized output of one run.
type WritePlan struct {
	Fields   []schema.CollectionField
	Items    []schema.CollectionItem
	Remove   []string
	Metadata schema.RunMetadata
}

// Writer applies a plan to a sink: schema, then items, then deletions, then
// run metadata.
type Writer struct {
	Sink      sink.Sink
	ChunkSize int
}

func (w *Writer) Apply(ctx context.Context, p WritePlan) error {
	if err := w.Sink.SetFields(ctx, p.Fields); err != nil {
		return &WriteError{Step: StepSetFields, Err: err}
	}
	size := w.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	for start := 0; start < len(p.Items); start += size {
		end := min(start+size, len(p.Items))
		if err := w.Sink.AddItems(ctx, p.Items[start:end]); err != nil {
			return &WriteError{Step: StepAddItems, Err: err}
		}
		logx.Debugw("sync: items written", "from", start, "to", end, "total", len(p.Items))
	}
	if len(p.Remove) > 0 {
		if err := w.Sink.RemoveItems(ctx, p.Remove); err != nil {
			return &WriteError{Step: StepRemoveItems, Err: err}
		}
	}
	data, err := p.Metadata.Encode()
	if err != nil {
		return &WriteError{Step: StepMetadata, Err: err}
	}
	for _, k := range schema.MetadataKeys {
		if err := w.Sink.SetPluginData(ctx, k, data[k]); err != nil {
			return &WriteError{Step: StepMetadata, Err: fmt.Errorf("%s: %w", k, err)}
		}
	}
	return nil
}
