package sync

import (
	"context"
	"errors"
	"fmt"

	"collection-sync/internal/core/schema"
	"collection-sync/internal/sink"
)

// ErrContextError is returned when the collection's stored run context
// cannot be used for this run.
var ErrContextError = errors.New("sync: collection run context unusable")

// RunContext is what a collection already knows about previous runs. It is
// one of NewRun, UpdateRun or ErrorRun.
type RunContext interface{ isRunContext() }

// NewRun is a collection that was never synced.
type NewRun struct{}

// UpdateRun is a collection synced before from the same integration.
type UpdateRun struct {
	Metadata schema.RunMetadata
}

// ErrorRun is a collection whose stored metadata is unreadable or belongs to
// another integration.
type ErrorRun struct {
	Message string
}

func (NewRun) isRunContext()    {}
func (UpdateRun) isRunContext() {}
func (ErrorRun) isRunContext()  {}

// LoadRunContext reads the plugin data of s. Only sink failures are returned
// as errors; bad metadata becomes an ErrorRun.
func LoadRunContext(ctx context.Context, s sink.Sink, in schema.Integration) (RunContext, error) {
	data, err := sink.LoadPluginData(ctx, s, schema.MetadataKeys)
	if err != nil {
		return nil, fmt.Errorf("read run metadata: %w", err)
	}
	md, ok, err := schema.DecodeRunMetadata(data)
	switch {
	case err != nil:
		return ErrorRun{Message: err.Error()}, nil
	case !ok:
		return NewRun{}, nil
	case md.Integration != in:
		return ErrorRun{Message: fmt.Sprintf("collection is synced from %s, not %s", md.Integration, in)}, nil
	}
	return UpdateRun{Metadata: md}, nil
}
