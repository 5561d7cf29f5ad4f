package httpx

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/insightloop/analysisgate/pkg/domain/analysis"
	"github.com/insightloop/analysisgate/pkg/infra/prometheus"
)

// CircuitBreaker guards one class of outbound operation. While open it
// rejects immediately, with no operation invocation and no added latency.
type CircuitBreaker interface {
	Execute(fn func() error) error
	State() gobreaker.State
}

type circuitBreakerWrapper struct {
	breaker *gobreaker.CircuitBreaker
}

// NewCircuitBreaker trips after maxFailures consecutive failures and stays
// open for recoveryTimeout. MaxRequests is 1 so the half-open state admits
// exactly one trial call; its outcome decides whether the breaker closes.
func NewCircuitBreaker(name string, recoveryTimeout time.Duration, maxFailures uint32) CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     recoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(_ string, _, to gobreaker.State) {
			prometheus.CircuitBreakerState.Set(stateValue(to))
		},
	}
	return &circuitBreakerWrapper{
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Execute runs fn under the breaker. Open-state rejections surface as a
// ServiceUnavailable error; fn's own error passes through unchanged so
// callers can still classify it.
func (g *circuitBreakerWrapper) Execute(fn func() error) error {
	_, err := g.breaker.Execute(func() (interface{}, error) {
		if err := fn(); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return analysis.WrapError(
			analysis.KindServiceUnavailable,
			"analysis service temporarily unavailable",
			err,
		)
	}
	return err
}

func (g *circuitBreakerWrapper) State() gobreaker.State {
	return g.breaker.State()
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
