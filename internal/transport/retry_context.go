package transport

import (
	"context"
	"sync/atomic"
)

type retryCtxKey struct{}

// RetryCounters attributes retries to one logical operation (a run, or one
// page fetch). It may be shared by concurrent requests.
type RetryCounters struct {
	Total     atomic.Int64
	Status429 atomic.Int64
	Status5xx atomic.Int64
	Net       atomic.Int64
}

// WithRetryCounters attaches rc to ctx so the transport updates it.
func WithRetryCounters(ctx context.Context, rc *RetryCounters) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, retryCtxKey{}, rc)
}

func getRetryCounters(ctx context.Context) *RetryCounters {
	if ctx == nil {
		return nil
	}
	rc, _ := ctx.Value(retryCtxKey{}).(*RetryCounters)
	return rc
}
