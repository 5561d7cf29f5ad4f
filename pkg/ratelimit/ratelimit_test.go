package ratelimit

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestLimiter(cfg Config) (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	return NewLimiter(cfg, WithTimeProvider(clock.Now)), clock
}

func defaultConfig() Config {
	return Config{
		ClientLimit:  10,
		ClientWindow: 5 * time.Minute,
		GlobalLimit:  100,
		GlobalWindow: time.Minute,
	}
}

func TestLimiter_AllowsUpToClientLimit(t *testing.T) {
	limiter, _ := newTestLimiter(defaultConfig())

	for i := 0; i < 10; i++ {
		res := limiter.CheckLimit("1.2.3.4", "")
		require.True(t, res.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 10-i, res.RemainingRequests)
		limiter.RecordRequest("1.2.3.4")
	}

	res := limiter.CheckLimit("1.2.3.4", "")
	assert.False(t, res.Allowed)
	assert.Equal(t, "client", res.Tier)
	assert.Greater(t, res.RetryAfter, 0)
}

func TestLimiter_RetryAfterMatchesWindowRemainder(t *testing.T) {
	limiter, clock := newTestLimiter(defaultConfig())

	for i := 0; i < 10; i++ {
		limiter.RecordRequest("1.2.3.4")
	}
	clock.Advance(2 * time.Minute)

	res := limiter.CheckLimit("1.2.3.4", "")
	require.False(t, res.Allowed)
	// 3 minutes remain until windowStart + 5m.
	assert.Equal(t, 180, res.RetryAfter)
}

func TestLimiter_WindowResets(t *testing.T) {
	limiter, clock := newTestLimiter(defaultConfig())

	for i := 0; i < 10; i++ {
		limiter.RecordRequest("1.2.3.4")
	}
	require.False(t, limiter.CheckLimit("1.2.3.4", "").Allowed)

	clock.Advance(5 * time.Minute)

	res := limiter.CheckLimit("1.2.3.4", "")
	assert.True(t, res.Allowed)
	assert.Equal(t, 10, res.RemainingRequests)
}

func TestLimiter_GlobalLimitTakesPrecedence(t *testing.T) {
	cfg := defaultConfig()
	cfg.GlobalLimit = 5
	limiter, _ := newTestLimiter(cfg)

	// Five distinct clients exhaust the global window while each stays
	// well under its own per-client limit.
	for i := 0; i < 5; i++ {
		limiter.RecordRequest(fmt.Sprintf("10.0.0.%d", i))
	}

	res := limiter.CheckLimit("10.0.0.99", "")
	assert.False(t, res.Allowed)
	assert.Equal(t, "global", res.Tier)
	assert.Greater(t, res.RetryAfter, 0)
}

func TestLimiter_GlobalWindowResetsIndependently(t *testing.T) {
	cfg := defaultConfig()
	cfg.GlobalLimit = 5
	limiter, clock := newTestLimiter(cfg)

	for i := 0; i < 5; i++ {
		limiter.RecordRequest("1.2.3.4")
	}
	require.False(t, limiter.CheckLimit("5.6.7.8", "").Allowed)

	// The one-minute global window elapses while the five-minute client
	// window has not.
	clock.Advance(time.Minute)

	assert.True(t, limiter.CheckLimit("5.6.7.8", "").Allowed)
	res := limiter.CheckLimit("1.2.3.4", "")
	assert.True(t, res.Allowed)
	assert.Equal(t, 5, res.RemainingRequests)
}

func TestLimiter_BypassTokenShortCircuits(t *testing.T) {
	cfg := defaultConfig()
	cfg.ClientLimit = 1
	cfg.GlobalLimit = 1
	cfg.BypassSecret = "trusted-internal-caller"
	limiter, _ := newTestLimiter(cfg)

	limiter.RecordRequest("1.2.3.4")
	require.False(t, limiter.CheckLimit("1.2.3.4", "").Allowed)

	res := limiter.CheckLimit("1.2.3.4", "trusted-internal-caller")
	assert.True(t, res.Allowed)

	res = limiter.CheckLimit("1.2.3.4", "wrong-token")
	assert.False(t, res.Allowed)
}

func TestLimiter_NoBypassWhenSecretUnset(t *testing.T) {
	cfg := defaultConfig()
	cfg.ClientLimit = 1
	limiter, _ := newTestLimiter(cfg)

	limiter.RecordRequest("1.2.3.4")

	res := limiter.CheckLimit("1.2.3.4", "anything")
	assert.False(t, res.Allowed)
}

func TestLimiter_DistinctClientsHaveIndependentWindows(t *testing.T) {
	cfg := defaultConfig()
	cfg.ClientLimit = 2
	limiter, _ := newTestLimiter(cfg)

	limiter.RecordRequest("1.2.3.4")
	limiter.RecordRequest("1.2.3.4")

	assert.False(t, limiter.CheckLimit("1.2.3.4", "").Allowed)
	assert.True(t, limiter.CheckLimit("5.6.7.8", "").Allowed)
}

func TestLimiter_RemoveStale(t *testing.T) {
	limiter, clock := newTestLimiter(defaultConfig())

	limiter.RecordRequest("old-client")
	clock.Advance(11 * time.Minute) // > 2× the 5m client window
	limiter.RecordRequest("fresh-client")

	removed := limiter.RemoveStale()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, limiter.ClientCount())
}

func TestLimiter_CheckDoesNotConsumeQuota(t *testing.T) {
	cfg := defaultConfig()
	cfg.ClientLimit = 1
	limiter, _ := newTestLimiter(cfg)

	for i := 0; i < 5; i++ {
		res := limiter.CheckLimit("1.2.3.4", "")
		assert.True(t, res.Allowed)
		assert.Equal(t, 1, res.RemainingRequests)
	}
}

func TestLimiter_SweepStops(t *testing.T) {
	limiter, _ := newTestLimiter(defaultConfig())

	limiter.StartSweep(10 * time.Millisecond)
	limiter.Stop()
	limiter.Stop() // idempotent
}
