package analysis

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	domain "github.com/insightloop/analysisgate/pkg/domain/analysis"
	"github.com/insightloop/analysisgate/pkg/infra/httpx"
	"github.com/insightloop/analysisgate/pkg/infra/providers"
)

const systemPrompt = "You are a research assistant evaluating whether the supplied " +
	"reference material supports, contradicts, or is unrelated to a hypothesis. " +
	"Cite the material you rely on. If no reasonable connection exists, say " +
	"\"no reasonable connection found\"."

// Output is the post-processed result of one upstream analysis call.
type Output struct {
	ResultText      string
	TokensUsed      int
	ConnectionFound bool
}

// Client performs one hypothesis analysis against the upstream provider,
// with retries and circuit breaking applied.
type Client interface {
	Analyze(ctx context.Context, hypothesis, referenceContext string) (*Output, error)
}

// RetryConfig bounds the retry schedule. Delay for attempt n is
// min(BaseDelay * 2^(n-1) * (1 + jitter), MaxDelay), jitter drawn
// uniformly from [0, 0.3].
type RetryConfig struct {
	MaxRetries  int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	CallTimeout time.Duration
}

type retryingClient struct {
	provider    providers.Client
	providerCfg *providers.Config
	breaker     httpx.CircuitBreaker
	logger      *logrus.Logger
	retry       RetryConfig

	sleep      func(ctx context.Context, d time.Duration) error
	jitterFunc func() float64
}

// ClientOption configures a retrying client.
type ClientOption func(*retryingClient)

// WithSleeper substitutes the inter-attempt wait, for tests.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) ClientOption {
	return func(c *retryingClient) {
		c.sleep = sleep
	}
}

// WithJitterFunc substitutes the jitter source, for tests.
func WithJitterFunc(jitter func() float64) ClientOption {
	return func(c *retryingClient) {
		c.jitterFunc = jitter
	}
}

func NewRetryingClient(
	provider providers.Client,
	providerCfg *providers.Config,
	breaker httpx.CircuitBreaker,
	logger *logrus.Logger,
	retry RetryConfig,
	opts ...ClientOption,
) Client {
	if providerCfg.SystemPrompt == "" {
		providerCfg.SystemPrompt = systemPrompt
	}
	c := &retryingClient{
		provider:    provider,
		providerCfg: providerCfg,
		breaker:     breaker,
		logger:      logger,
		retry:       retry,
		sleep:       sleepContext,
		jitterFunc:  func() float64 { return rand.Float64() * 0.3 },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Analyze runs the provider call under the circuit breaker. All retry
// attempts happen inside one breaker execution, so an exhausted retry
// budget counts as a single breaker failure.
func (c *retryingClient) Analyze(ctx context.Context, hypothesis, referenceContext string) (*Output, error) {
	prompt := buildPrompt(hypothesis, referenceContext)

	var resp *providers.CompletionResponse
	err := c.breaker.Execute(func() error {
		var attemptErr error
		resp, attemptErr = c.callWithRetries(ctx, prompt)
		return attemptErr
	})
	if err != nil {
		return nil, c.classifyFailure(err)
	}

	return &Output{
		ResultText:      resp.Response,
		TokensUsed:      tokensUsed(resp),
		ConnectionFound: ClassifyConnection(resp.Response),
	}, nil
}

func (c *retryingClient) callWithRetries(ctx context.Context, prompt string) (*providers.CompletionResponse, error) {
	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, c.retry.CallTimeout)
		resp, err := c.provider.Ask(callCtx, c.providerCfg, prompt)
		cancel()
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if providers.IsPermanent(err) {
			c.logger.WithError(err).WithField("attempt", attempt).
				Warn("analysis call failed with permanent error, not retrying")
			return nil, err
		}
		if attempt == c.retry.MaxRetries {
			break
		}

		delay := c.backoffDelay(attempt)
		c.logger.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"delay":   delay.String(),
		}).Warn("analysis call failed, retrying")

		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *retryingClient) backoffDelay(attempt int) time.Duration {
	base := float64(c.retry.BaseDelay) * math.Pow(2, float64(attempt-1))
	delay := time.Duration(base * (1 + c.jitterFunc()))
	if delay > c.retry.MaxDelay {
		delay = c.retry.MaxDelay
	}
	return delay
}

// classifyFailure converts whatever escaped the breaker into the typed
// error taxonomy the dispatcher surfaces.
func (c *retryingClient) classifyFailure(err error) error {
	var typed *domain.Error
	if errors.As(err, &typed) {
		return typed
	}
	if providers.IsTimeout(err) {
		return domain.WrapError(domain.KindTimeout, "analysis timed out", err)
	}
	var provErr *providers.Error
	if errors.As(err, &provErr) {
		if provErr.StatusCode == http.StatusUnauthorized || provErr.StatusCode == http.StatusForbidden {
			return domain.WrapError(domain.KindServiceError, "analysis provider rejected credentials", err)
		}
		return domain.WrapError(domain.KindServiceError, provErr.Message, err)
	}
	return domain.WrapError(domain.KindServiceError, err.Error(), err)
}

func buildPrompt(hypothesis, referenceContext string) string {
	var b strings.Builder
	b.WriteString("Hypothesis: ")
	b.WriteString(hypothesis)
	if referenceContext != "" {
		b.WriteString("\n\nReference material:\n")
		b.WriteString(referenceContext)
	}
	return b.String()
}

// tokensUsed prefers the provider's reported usage and falls back to the
// chars/4 estimate when usage is absent.
func tokensUsed(resp *providers.CompletionResponse) int {
	if resp.Usage.TotalTokens > 0 {
		return resp.Usage.TotalTokens
	}
	return int(math.Ceil(float64(len(resp.Response)) / 4))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
