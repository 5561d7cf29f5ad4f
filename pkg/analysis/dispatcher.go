package analysis

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/insightloop/analysisgate/pkg/cache"
	domain "github.com/insightloop/analysisgate/pkg/domain/analysis"
	"github.com/insightloop/analysisgate/pkg/infra/prometheus"
	"github.com/insightloop/analysisgate/pkg/prompt"
	"github.com/insightloop/analysisgate/pkg/ratelimit"
)

const maxHypothesisLength = 2000

// Request is one inbound analysis request after transport decoding.
type Request struct {
	ClientID    string
	Hypothesis  string
	BypassToken string
}

// Dispatcher sequences the resilience layer for each request:
// rate-limit check, cache lookup, provider call, cache store, and quota
// accounting. It owns all shared state for the process; main constructs
// exactly one and hands it to the HTTP layer.
type Dispatcher struct {
	cache   *cache.Store
	limiter *ratelimit.Limiter
	client  Client
	prompts prompt.ContextLoader
	logger  *logrus.Logger

	cacheTTL     time.Duration
	timeProvider func() time.Time
	uuidProvider func() uuid.UUID
}

// DispatcherDI carries the dispatcher's collaborators.
type DispatcherDI struct {
	Cache    *cache.Store
	Limiter  *ratelimit.Limiter
	Client   Client
	Prompts  prompt.ContextLoader
	Logger   *logrus.Logger
	CacheTTL time.Duration
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithTimeProvider substitutes the clock, for tests.
func WithTimeProvider(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		d.timeProvider = now
	}
}

// WithUUIDProvider substitutes request ID generation, for tests.
func WithUUIDProvider(next func() uuid.UUID) DispatcherOption {
	return func(d *Dispatcher) {
		d.uuidProvider = next
	}
}

func NewDispatcher(di DispatcherDI, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		cache:        di.Cache,
		limiter:      di.Limiter,
		client:       di.Client,
		prompts:      di.Prompts,
		logger:       di.Logger,
		cacheTTL:     di.CacheTTL,
		timeProvider: time.Now,
		uuidProvider: uuid.New,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch handles one request end to end. Quota is recorded only after a
// fresh result is produced and cached, so requests rejected earlier in the
// sequence never count against the client's window. Cache hits skip both
// the provider call and quota accounting.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*domain.Result, error) {
	start := d.timeProvider()
	requestID := d.uuidProvider().String()

	if err := validate(req); err != nil {
		prometheus.AnalysisRequestTotal.WithLabelValues("validation_failed").Inc()
		return nil, err
	}

	limit := d.limiter.CheckLimit(req.ClientID, req.BypassToken)
	if !limit.Allowed {
		prometheus.AnalysisRequestTotal.WithLabelValues("rate_limited").Inc()
		prometheus.RateLimitRejections.WithLabelValues(limit.Tier).Inc()
		d.logger.WithFields(logrus.Fields{
			"request_id":  requestID,
			"retry_after": limit.RetryAfter,
		}).Info("request rejected by rate limiter")
		return nil, domain.NewRateLimitError(limit.RetryAfter)
	}

	if value, ok := d.cache.Get(req.Hypothesis); ok {
		prometheus.AnalysisRequestTotal.WithLabelValues("cache_hit").Inc()
		prometheus.CacheOperations.WithLabelValues("hit").Inc()
		elapsed := d.timeProvider().Sub(start)
		prometheus.AnalysisLatency.WithLabelValues("true").Observe(float64(elapsed.Milliseconds()))
		return &domain.Result{
			ResultText:      value,
			ConnectionFound: ClassifyConnection(value),
			Cached:          true,
			ProcessingTime:  elapsed,
			RequestID:       requestID,
		}, nil
	}
	prometheus.CacheOperations.WithLabelValues("miss").Inc()

	referenceContext := d.prompts.Load(req.Hypothesis)
	output, err := d.client.Analyze(ctx, req.Hypothesis, referenceContext)
	if err != nil {
		prometheus.AnalysisRequestTotal.WithLabelValues(domain.KindOf(err).String()).Inc()
		d.logger.WithError(err).WithField("request_id", requestID).
			Error("analysis failed")
		return nil, err
	}

	d.cache.Set(req.Hypothesis, output.ResultText, d.cacheTTL)
	d.limiter.RecordRequest(req.ClientID)

	elapsed := d.timeProvider().Sub(start)
	prometheus.AnalysisRequestTotal.WithLabelValues("success").Inc()
	prometheus.AnalysisLatency.WithLabelValues("false").Observe(float64(elapsed.Milliseconds()))

	d.logger.WithFields(logrus.Fields{
		"request_id":       requestID,
		"tokens_used":      output.TokensUsed,
		"connection_found": output.ConnectionFound,
		"elapsed_ms":       elapsed.Milliseconds(),
	}).Info("analysis completed")

	return &domain.Result{
		ResultText:      output.ResultText,
		ConnectionFound: output.ConnectionFound,
		TokensUsed:      output.TokensUsed,
		Cached:          false,
		ProcessingTime:  elapsed,
		RequestID:       requestID,
	}, nil
}

// CacheMetrics exposes cache effectiveness for the operator endpoint.
func (d *Dispatcher) CacheMetrics() cache.Metrics {
	return d.cache.Metrics()
}

// ClearCache drops every cached response.
func (d *Dispatcher) ClearCache() {
	d.cache.Clear()
}

func validate(req Request) error {
	hypothesis := strings.TrimSpace(req.Hypothesis)
	if hypothesis == "" {
		return domain.NewError(domain.KindValidationFailed, "hypothesis is required")
	}
	if len(hypothesis) > maxHypothesisLength {
		return domain.NewError(domain.KindValidationFailed, "hypothesis exceeds maximum length")
	}
	return nil
}
