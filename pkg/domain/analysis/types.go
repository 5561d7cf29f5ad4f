package analysis

import "time"

// Result is what the dispatcher hands back to the HTTP layer for one
// hypothesis analysis, fresh or served from cache.
type Result struct {
	ResultText      string
	ConnectionFound bool
	TokensUsed      int
	Cached          bool
	ProcessingTime  time.Duration
	RequestID       string
}

// RateLimitResult reports the outcome of a limit check. RetryAfter and
// Tier are only meaningful when Allowed is false.
type RateLimitResult struct {
	Allowed           bool
	RemainingRequests int
	ResetTime         time.Time
	RetryAfter        int
	Tier              string
}
