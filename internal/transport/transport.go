// Package transport provides the rate-limited, retrying HTTP round tripper
// shared by all source adapters.
package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"collection-sync/internal/infra/logx"
)

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Limit defines a rate limit: RPS with a burst capacity.
type Limit struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// Options configures the retrying, rate-limited transport.
type Options struct {
	RetryMax    int
	BackoffBase time.Duration
	BackoffCap  time.Duration
	JitterFn    func(base time.Duration, attempt int) time.Duration
	Clock       Clock
	Metrics     *Metrics

	// Host-specific limits (by req.URL.Host). If missing, DefaultLimit applies.
	HostLimits   map[string]Limit
	DefaultLimit Limit
}

// Published per-integration API ceilings.
var defaultHostLimits = map[string]Limit{
	"api.notion.com":        {RPS: 3, Burst: 3},
	"api.airtable.com":      {RPS: 5, Burst: 5},
	"sheets.googleapis.com": {RPS: 5, Burst: 5},
	"oauth2.googleapis.com": {RPS: 5, Burst: 5},
}

// DefaultOptions returns defaults tuned to the shipped source APIs. Entries
// in overrides replace the built-in host limits.
func DefaultOptions(overrides map[string]Limit) Options {
	limits := make(map[string]Limit, len(defaultHostLimits)+len(overrides))
	for h, l := range defaultHostLimits {
		limits[h] = l
	}
	for h, l := range overrides {
		if l.RPS > 0 {
			limits[h] = l
		}
	}
	return Options{
		RetryMax:    4,
		BackoffBase: 250 * time.Millisecond,
		BackoffCap:  5 * time.Second,
		Clock:       realClock{},
		JitterFn: func(base time.Duration, attempt int) time.Duration {
			// full jitter on top of base backoff
			if base <= 0 {
				return 0
			}
			return time.Duration(rand.Int63n(base.Nanoseconds()))
		},
		Metrics:      NewMetrics(),
		HostLimits:   limits,
		DefaultLimit: Limit{RPS: 10, Burst: 10},
	}
}

// hostLimiter wraps a token bucket whose rate is nudged by response outcomes
// within [1, ceiling].
type hostLimiter struct {
	mu      sync.Mutex
	lim     *rate.Limiter
	ceiling float64
}

func newHostLimiter(l Limit) *hostLimiter {
	return &hostLimiter{
		lim:     rate.NewLimiter(rate.Limit(l.RPS), max(1, l.Burst)),
		ceiling: l.RPS,
	}
}

// wait reserves a token at the clock's current time and sleeps until it may
// be used.
func (h *hostLimiter) wait(ctx context.Context, clock Clock) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := clock.Now()
	r := h.lim.ReserveN(now, 1)
	if !r.OK() {
		return errors.New("rate limiter: burst exceeded")
	}
	if d := r.DelayFrom(now); d > 0 {
		if err := clock.Sleep(ctx, d); err != nil {
			r.CancelAt(clock.Now())
			return err
		}
	}
	return nil
}

func (h *hostLimiter) adjust(now time.Time, delta float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	next := float64(h.lim.Limit()) + delta
	if next < 1 {
		next = 1
	}
	if next > h.ceiling {
		next = h.ceiling
	}
	h.lim.SetLimitAt(now, rate.Limit(next))
}

func (h *hostLimiter) rps() float64 {
	return float64(h.lim.Limit())
}

// RetryingLimiterTransport wraps a base RoundTripper with host-based rate limiting and retries.
type RetryingLimiterTransport struct {
	Base     http.RoundTripper
	Opts     Options
	limMu    sync.Mutex
	limiters map[string]*hostLimiter
}

func NewRetryingLimiterTransport(opts Options) *RetryingLimiterTransport {
	return &RetryingLimiterTransport{Opts: opts, limiters: make(map[string]*hostLimiter)}
}

func (t *RetryingLimiterTransport) getLimiter(host string) *hostLimiter {
	if host == "" {
		host = "_default_"
	}
	t.limMu.Lock()
	defer t.limMu.Unlock()
	if hl, ok := t.limiters[host]; ok {
		return hl
	}
	lim := t.Opts.DefaultLimit
	if lim.RPS <= 0 {
		lim = Limit{RPS: 10, Burst: 10}
	}
	if v, ok := t.Opts.HostLimits[host]; ok && v.RPS > 0 {
		lim = v
	}
	hl := newHostLimiter(lim)
	t.limiters[host] = hl
	return hl
}

// CurrentRPS reports the adapted rate for host, or 0 when no request has been
// made to it yet.
func (t *RetryingLimiterTransport) CurrentRPS(host string) float64 {
	t.limMu.Lock()
	defer t.limMu.Unlock()
	if hl, ok := t.limiters[host]; ok {
		return hl.rps()
	}
	return 0
}

func (t *RetryingLimiterTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *RetryingLimiterTransport) clock() Clock {
	if t.Opts.Clock != nil {
		return t.Opts.Clock
	}
	return realClock{}
}

func (t *RetryingLimiterTransport) jitter(base time.Duration, attempt int) time.Duration {
	if t.Opts.JitterFn != nil {
		return t.Opts.JitterFn(base, attempt)
	}
	return 0
}

// ensureGetBody guarantees the request body is replayable across retries.
func ensureGetBody(req *http.Request) error {
	if req.Body == nil || req.GetBody != nil {
		return nil
	}
	if req.Method != http.MethodPost && req.Method != http.MethodPut && req.Method != http.MethodPatch {
		return nil
	}
	buf, err := io.ReadAll(req.Body)
	if err != nil {
		return err
	}
	req.Body.Close()
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(buf)), nil
	}
	req.Body = io.NopCloser(bytes.NewReader(buf))
	return nil
}

func (t *RetryingLimiterTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := ensureGetBody(req); err != nil {
		return nil, err
	}
	ctx := req.Context()
	host := req.URL.Host
	lim := t.getLimiter(host)
	if t.Opts.Metrics != nil {
		t.Opts.Metrics.IncRequest(host, req.Method)
	}

	attempts := max(1, t.Opts.RetryMax+1) // RetryMax=4 => up to 5 tries total
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := lim.wait(ctx, t.clock()); err != nil {
			return nil, err
		}
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			req.Body = body
		}

		resp, err := t.base().RoundTrip(req)
		if err != nil {
			if ctx.Err() == nil && isTransientNetErr(err) && attempt < attempts-1 {
				lastErr = err
				if rc := getRetryCounters(ctx); rc != nil {
					rc.Total.Add(1)
					rc.Net.Add(1)
				}
				logx.Debugw("transport: retrying after network error", "host", host, "attempt", attempt+1, "err", err)
				lim.adjust(t.clock().Now(), -0.1)
				if err := t.sleepBackoff(ctx, attempt); err != nil {
					return nil, err
				}
				continue
			}
			return nil, err
		}

		if t.Opts.Metrics != nil {
			t.Opts.Metrics.IncStatus(resp.StatusCode)
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			lim.adjust(t.clock().Now(), +0.02)
		}

		if shouldRetryStatus(resp.StatusCode) && attempt < attempts-1 {
			resp.Body.Close()
			if t.Opts.Metrics != nil {
				t.Opts.Metrics.IncRetry()
			}
			if rc := getRetryCounters(ctx); rc != nil {
				rc.Total.Add(1)
				if resp.StatusCode == http.StatusTooManyRequests {
					rc.Status429.Add(1)
				} else {
					rc.Status5xx.Add(1)
				}
			}
			logx.Debugw("transport: retrying status", "host", host, "status", resp.StatusCode, "attempt", attempt+1)
			if ra := parseRetryAfter(resp.Header.Get("Retry-After"), t.clock().Now()); ra > 0 {
				lim.adjust(t.clock().Now(), -0.3)
				d := minDur(ra, t.backoffCap())
				if t.Opts.Metrics != nil {
					t.Opts.Metrics.AddBackoff(d)
				}
				if err := t.clock().Sleep(ctx, d); err != nil {
					return nil, err
				}
				continue
			}
			lim.adjust(t.clock().Now(), -0.2)
			if err := t.sleepBackoff(ctx, attempt); err != nil {
				return nil, err
			}
			continue
		}

		return resp, nil
	}
	if lastErr == nil {
		lastErr = errors.New("max retries exceeded")
	}
	return nil, lastErr
}

func (t *RetryingLimiterTransport) backoffCap() time.Duration {
	if t.Opts.BackoffCap <= 0 {
		return 5 * time.Second
	}
	return t.Opts.BackoffCap
}

func (t *RetryingLimiterTransport) sleepBackoff(ctx context.Context, attempt int) error {
	base := t.Opts.BackoffBase
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	cap := t.backoffCap()
	// exponential backoff: base * 2^attempt
	delay := minDur(time.Duration(float64(base)*math.Pow(2, float64(attempt))), cap)
	d := minDur(delay+t.jitter(delay, attempt), cap)
	if t.Opts.Metrics != nil {
		t.Opts.Metrics.AddBackoff(d)
	}
	return t.clock().Sleep(ctx, d)
}

func isTransientNetErr(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var tmp interface{ Temporary() bool }
	if errors.As(err, &tmp) && tmp.Temporary() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "temporary") ||
		strings.Contains(msg, "connection reset") || strings.Contains(msg, "eof")
}

func shouldRetryStatus(code int) bool {
	return code == 429 || code == 502 || code == 503 || code == 504
}

func parseRetryAfter(h string, now time.Time) time.Duration {
	h = strings.TrimSpace(h)
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(h); err == nil {
		d := when.Sub(now)
		if d < 0 {
			return 0
		}
		return d
	}
	return 0
}

func minDur(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
