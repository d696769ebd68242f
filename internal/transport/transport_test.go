package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock allows deterministic control of time passage.
type fakeClock struct {
	now   time.Time
	slept time.Duration
}

func newFakeClock() *fakeClock       { return &fakeClock{now: time.Unix(0, 0)} }
func (fc *fakeClock) Now() time.Time { return fc.now }
func (fc *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fc.now = fc.now.Add(d)
	fc.slept += d
	return nil
}

// fakeRT returns a queued series of responses or errors.
type fakeRT struct {
	calls  atomic.Int64
	queue  []any // *http.Response or error
	bodies []string
}

func (frt *fakeRT) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		frt.bodies = append(frt.bodies, string(b))
	}
	idx := frt.calls.Add(1) - 1
	if int(idx) >= len(frt.queue) {
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	}
	item := frt.queue[idx]
	if resp, ok := item.(*http.Response); ok {
		if resp.Body == nil {
			resp.Body = http.NoBody
		}
		return resp, nil
	}
	if err, ok := item.(error); ok {
		return nil, err
	}
	return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
}

func newReq(host string) *http.Request {
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "https://"+host+"/x", nil)
	return req
}

func testOptions(fc *fakeClock, retryMax int, lim Limit) Options {
	return Options{
		RetryMax:    retryMax,
		BackoffBase: 250 * time.Millisecond,
		BackoffCap:  5 * time.Second,
		Clock:       fc,
		JitterFn:    func(base time.Duration, _ int) time.Duration { return 0 },
		Metrics:     NewMetrics(),
		HostLimits:  map[string]Limit{"api.notion.com": lim},
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	fc := newFakeClock()
	opt := testOptions(fc, 2, Limit{RPS: 1000, Burst: 1000})
	frt := &fakeRT{queue: []any{
		&http.Response{StatusCode: 429, Header: http.Header{"Retry-After": []string{"2"}}, Body: http.NoBody},
		&http.Response{StatusCode: 200, Body: http.NoBody},
	}}
	tr := NewRetryingLimiterTransport(opt)
	tr.Base = frt

	rc := &RetryCounters{}
	req := newReq("api.notion.com").WithContext(WithRetryCounters(context.Background(), rc))
	resp, err := tr.RoundTrip(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
	if got := fc.slept; got < 2*time.Second || got > 2100*time.Millisecond {
		t.Fatalf("expected ~2s sleep, got %v", got)
	}
	if opt.Metrics.TotalRetries.Load() != 1 {
		t.Fatalf("expected 1 retry, got %d", opt.Metrics.TotalRetries.Load())
	}
	if rc.Total.Load() != 1 || rc.Status429.Load() != 1 {
		t.Fatalf("retry counters: total=%d 429=%d", rc.Total.Load(), rc.Status429.Load())
	}
}

func TestBackoffOn503(t *testing.T) {
	fc := newFakeClock()
	frt := &fakeRT{queue: []any{
		&http.Response{StatusCode: 503, Body: http.NoBody},
		&http.Response{StatusCode: 200, Body: http.NoBody},
	}}
	tr := NewRetryingLimiterTransport(testOptions(fc, 2, Limit{RPS: 1000, Burst: 1000}))
	tr.Base = frt

	resp, err := tr.RoundTrip(newReq("api.notion.com"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
	// first backoff should be base (250ms)
	if fc.slept != 250*time.Millisecond {
		t.Fatalf("expected 250ms sleep, got %v", fc.slept)
	}
}

func TestRetriesExhaustedReturnsLastResponse(t *testing.T) {
	fc := newFakeClock()
	frt := &fakeRT{queue: []any{
		&http.Response{StatusCode: 502, Body: http.NoBody},
		&http.Response{StatusCode: 502, Body: http.NoBody},
	}}
	tr := NewRetryingLimiterTransport(testOptions(fc, 1, Limit{RPS: 1000, Burst: 1000}))
	tr.Base = frt

	resp, err := tr.RoundTrip(newReq("api.notion.com"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != 502 {
		t.Fatalf("want final 502, got %d", resp.StatusCode)
	}
	if frt.calls.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", frt.calls.Load())
	}
}

func TestLimiterPacing(t *testing.T) {
	fc := newFakeClock()
	tr := NewRetryingLimiterTransport(testOptions(fc, 0, Limit{RPS: 2, Burst: 1}))
	tr.Base = &fakeRT{}

	// Three sequential requests at 2 rps, burst 1 => ~1s total sleep for the latter two tokens.
	for i := 0; i < 3; i++ {
		if _, err := tr.RoundTrip(newReq("api.notion.com")); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	if fc.slept < 900*time.Millisecond {
		t.Fatalf("expected ~1s sleep due to limiter, got %v", fc.slept)
	}
}

func TestAdaptiveRateStaysWithinCeiling(t *testing.T) {
	fc := newFakeClock()
	frt := &fakeRT{queue: []any{
		&http.Response{StatusCode: 503, Body: http.NoBody},
		&http.Response{StatusCode: 200, Body: http.NoBody},
	}}
	tr := NewRetryingLimiterTransport(testOptions(fc, 2, Limit{RPS: 4, Burst: 4}))
	tr.Base = frt

	if _, err := tr.RoundTrip(newReq("api.notion.com")); err != nil {
		t.Fatal(err)
	}
	got := tr.CurrentRPS("api.notion.com")
	if got >= 4 || got < 3.7 {
		t.Fatalf("expected rate nudged below ceiling, got %v", got)
	}
	for i := 0; i < 50; i++ {
		_, _ = tr.RoundTrip(newReq("api.notion.com"))
	}
	if got := tr.CurrentRPS("api.notion.com"); got != 4 {
		t.Fatalf("expected rate back at ceiling, got %v", got)
	}
}

func TestPostBodyReplayedOnRetry(t *testing.T) {
	fc := newFakeClock()
	frt := &fakeRT{queue: []any{
		&http.Response{StatusCode: 429, Body: http.NoBody},
		&http.Response{StatusCode: 200, Body: http.NoBody},
	}}
	tr := NewRetryingLimiterTransport(testOptions(fc, 2, Limit{RPS: 1000, Burst: 1000}))
	tr.Base = frt

	req, _ := http.NewRequest(http.MethodPost, "https://api.notion.com/v1/databases/x/query", io.NopCloser(bytes.NewBufferString(`{"page_size":100}`)))
	req.GetBody = nil
	if _, err := tr.RoundTrip(req); err != nil {
		t.Fatal(err)
	}
	if len(frt.bodies) != 2 || frt.bodies[0] != frt.bodies[1] || frt.bodies[1] != `{"page_size":100}` {
		t.Fatalf("bodies = %q", frt.bodies)
	}
}

type transientErr struct{}

func (transientErr) Error() string   { return "temporary network error" }
func (transientErr) Timeout() bool   { return false }
func (transientErr) Temporary() bool { return true }

func TestTransientErrorRetried(t *testing.T) {
	fc := newFakeClock()
	frt := &fakeRT{queue: []any{transientErr{}, &http.Response{StatusCode: 200, Body: http.NoBody}}}
	tr := NewRetryingLimiterTransport(testOptions(fc, 1, Limit{RPS: 1000, Burst: 1000}))
	tr.Base = frt

	resp, err := tr.RoundTrip(newReq("api.notion.com"))
	if err != nil || resp.StatusCode != 200 {
		t.Fatalf("resp=%v err=%v", resp, err)
	}
}

func TestCancelDuringBackoff(t *testing.T) {
	fc := newFakeClock()
	frt := &fakeRT{queue: []any{transientErr{}, &http.Response{StatusCode: 200, Body: http.NoBody}}}
	tr := NewRetryingLimiterTransport(testOptions(fc, 1, Limit{RPS: 1000, Burst: 1000}))
	tr.Base = frt

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.notion.com/x", nil)
	cancel()
	_, err := tr.RoundTrip(req)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if frt.calls.Load() != 0 {
		t.Fatalf("no request should be sent after cancel")
	}
}

func TestParseRetryAfterDate(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	h := now.Add(3 * time.Second).Format(http.TimeFormat)
	if got := parseRetryAfter(h, now); got != 3*time.Second {
		t.Fatalf("got %v", got)
	}
	if got := parseRetryAfter("garbage", now); got != 0 {
		t.Fatalf("got %v", got)
	}
}

func TestCheckResponse(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "https://api.airtable.com/v0/app/tbl?offset=abc", nil)
	resp := &http.Response{StatusCode: 401, Body: io.NopCloser(strings.NewReader(`{"error":"AUTHENTICATION_REQUIRED"}`)), Request: req}
	err := CheckResponse(resp)
	if StatusCode(err) != 401 {
		t.Fatalf("status = %d", StatusCode(err))
	}
	if strings.Contains(err.Error(), "offset") || !strings.Contains(err.Error(), "AUTHENTICATION_REQUIRED") {
		t.Fatalf("error = %v", err)
	}
	ok := &http.Response{StatusCode: 204, Body: http.NoBody}
	if CheckResponse(ok) != nil {
		t.Fatalf("2xx should pass")
	}
}

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.IncRequest("api.notion.com", http.MethodGet)
	m.IncRequest("api.notion.com", http.MethodPost)
	m.IncStatus(200)
	m.IncStatus(429)
	m.IncStatus(404)
	m.IncStatus(503)
	m.AddBackoff(time.Second)
	s := m.Snapshot()
	if s.TotalRequests != 2 || s.ReadRequests != 1 || s.WriteRequests != 1 || s.HostCounts["api.notion.com"] != 2 {
		t.Fatalf("snapshot = %+v", s)
	}
	if s.Status2xx != 1 || s.Status429 != 1 || s.Status4xx != 1 || s.Status5xx != 1 || s.TotalBackoff != time.Second {
		t.Fatalf("status buckets = %+v", s)
	}
	var nilM *Metrics
	if nilM.Snapshot().TotalRequests != 0 {
		t.Fatalf("nil snapshot")
	}
}
