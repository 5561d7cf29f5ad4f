package ratelimit

import (
	"crypto/subtle"
	"math"
	"sync"
	"time"

	"github.com/insightloop/analysisgate/pkg/domain/analysis"
)

// window is one fixed-reset counting window. The counter resets entirely
// once the window duration has elapsed rather than decaying continuously;
// that permits brief bursts at window boundaries but keeps state O(1) per
// client.
type window struct {
	requestCount int
	windowStart  time.Time
	lastRequest  time.Time
}

func (w *window) elapsed(now time.Time, duration time.Duration) bool {
	return now.Sub(w.windowStart) >= duration
}

// Limiter enforces a per-client limit and an independent global limit.
// The global window is evaluated first: when aggregate traffic is
// exhausted, client identity does not matter.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*window
	global  window

	clientLimit  int
	clientWindow time.Duration
	globalLimit  int
	globalWindow time.Duration
	bypassSecret string

	timeProvider func() time.Time
	stopSweep    chan struct{}
	sweepOnce    sync.Once
}

// Config holds the limiter tunables; Validate lives in pkg/config.
type Config struct {
	ClientLimit  int
	ClientWindow time.Duration
	GlobalLimit  int
	GlobalWindow time.Duration
	BypassSecret string
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithTimeProvider substitutes the clock, for tests.
func WithTimeProvider(now func() time.Time) Option {
	return func(l *Limiter) {
		l.timeProvider = now
	}
}

func NewLimiter(cfg Config, opts ...Option) *Limiter {
	l := &Limiter{
		clients:      make(map[string]*window),
		clientLimit:  cfg.ClientLimit,
		clientWindow: cfg.ClientWindow,
		globalLimit:  cfg.GlobalLimit,
		globalWindow: cfg.GlobalWindow,
		bypassSecret: cfg.BypassSecret,
		timeProvider: time.Now,
		stopSweep:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CheckLimit reports whether a request from clientID may proceed. A valid
// bypass token short-circuits both tiers; it is matched in constant time
// against the configured secret. CheckLimit does not consume quota, callers
// record the request with RecordRequest once it completes.
func (l *Limiter) CheckLimit(clientID, bypassToken string) analysis.RateLimitResult {
	now := l.timeProvider()

	if l.bypassSecret != "" && bypassToken != "" &&
		subtle.ConstantTimeCompare([]byte(bypassToken), []byte(l.bypassSecret)) == 1 {
		return analysis.RateLimitResult{
			Allowed:           true,
			RemainingRequests: l.clientLimit,
			ResetTime:         now.Add(l.clientWindow),
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if res, ok := l.check(&l.global, now, l.globalLimit, l.globalWindow); !ok {
		res.Tier = "global"
		return res
	}

	w, ok := l.clients[clientID]
	if !ok {
		w = &window{windowStart: now, lastRequest: now}
		l.clients[clientID] = w
	}
	res, allowed := l.check(w, now, l.clientLimit, l.clientWindow)
	if !allowed {
		res.Tier = "client"
	}
	return res
}

// check evaluates one window, resetting it first if its duration elapsed.
// Caller holds the lock.
func (l *Limiter) check(w *window, now time.Time, limit int, duration time.Duration) (analysis.RateLimitResult, bool) {
	if w.windowStart.IsZero() || w.elapsed(now, duration) {
		w.requestCount = 0
		w.windowStart = now
	}

	resetTime := w.windowStart.Add(duration)
	if w.requestCount >= limit {
		retryAfter := int(math.Ceil(resetTime.Sub(now).Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		return analysis.RateLimitResult{
			Allowed:    false,
			ResetTime:  resetTime,
			RetryAfter: retryAfter,
		}, false
	}

	return analysis.RateLimitResult{
		Allowed:           true,
		RemainingRequests: limit - w.requestCount,
		ResetTime:         resetTime,
	}, true
}

// RecordRequest counts one completed request against both tiers. Called
// only after the request passed CheckLimit and finished processing, so
// requests rejected for other reasons never consume quota.
func (l *Limiter) RecordRequest(clientID string) {
	now := l.timeProvider()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.record(&l.global, now, l.globalWindow)

	w, ok := l.clients[clientID]
	if !ok {
		w = &window{windowStart: now}
		l.clients[clientID] = w
	}
	l.record(w, now, l.clientWindow)
}

func (l *Limiter) record(w *window, now time.Time, duration time.Duration) {
	if w.windowStart.IsZero() || w.elapsed(now, duration) {
		w.requestCount = 0
		w.windowStart = now
	}
	w.requestCount++
	w.lastRequest = now
}

// ClientCount returns the number of tracked per-client windows.
func (l *Limiter) ClientCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// RemoveStale purges per-client windows idle for more than twice the
// client window, bounding memory under churn of distinct clients such as
// rotating IPs. Returns how many were removed.
func (l *Limiter) RemoveStale() int {
	now := l.timeProvider()
	cutoff := 2 * l.clientWindow

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, w := range l.clients {
		if now.Sub(w.lastRequest) > cutoff {
			delete(l.clients, id)
			removed++
		}
	}
	return removed
}

// StartSweep runs RemoveStale on the given interval until Stop is called.
func (l *Limiter) StartSweep(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.RemoveStale()
			case <-l.stopSweep:
				return
			}
		}
	}()
}

// Stop terminates the background sweep. Safe to call more than once.
func (l *Limiter) Stop() {
	l.sweepOnce.Do(func() {
		close(l.stopSweep)
	})
}
