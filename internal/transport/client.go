package transport

import (
	"net/http"
	"time"
)

// NewClient returns an http.Client routed through a RetryingLimiterTransport.
// A zero timeout means no client-side timeout.
func NewClient(opts Options, timeout time.Duration) (*http.Client, *RetryingLimiterTransport) {
	rt := NewRetryingLimiterTransport(opts)
	return &http.Client{Transport: rt, Timeout: timeout}, rt
}
