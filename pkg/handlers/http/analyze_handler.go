package http

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/insightloop/analysisgate/pkg/analysis"
	domain "github.com/insightloop/analysisgate/pkg/domain/analysis"
)

type analyzeRequest struct {
	Hypothesis  string `json:"hypothesis"`
	BypassToken string `json:"bypass_token,omitempty"`
}

type analyzeResponse struct {
	Result           string `json:"result"`
	ConnectionFound  bool   `json:"connection_found"`
	TokensUsed       int    `json:"tokens_used,omitempty"`
	Cached           bool   `json:"cached"`
	ProcessingTimeMs int64  `json:"processing_time_ms"`
	RequestID        string `json:"request_id"`
}

type analyzeHandler struct {
	logger     *logrus.Logger
	dispatcher *analysis.Dispatcher
}

func NewAnalyzeHandler(logger *logrus.Logger, dispatcher *analysis.Dispatcher) Handler {
	return &analyzeHandler{
		logger:     logger,
		dispatcher: dispatcher,
	}
}

func (h *analyzeHandler) Handle(c *fiber.Ctx) error {
	var req analyzeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	result, err := h.dispatcher.Dispatch(c.Context(), analysis.Request{
		ClientID:    clientID(c),
		Hypothesis:  req.Hypothesis,
		BypassToken: req.BypassToken,
	})
	if err != nil {
		return h.handleError(c, err)
	}

	cacheStatus := "MISS"
	if result.Cached {
		cacheStatus = "HIT"
	}
	c.Set("X-Cache", cacheStatus)

	return c.Status(fiber.StatusOK).JSON(analyzeResponse{
		Result:           result.ResultText,
		ConnectionFound:  result.ConnectionFound,
		TokensUsed:       result.TokensUsed,
		Cached:           result.Cached,
		ProcessingTimeMs: result.ProcessingTime.Milliseconds(),
		RequestID:        result.RequestID,
	})
}

func (h *analyzeHandler) handleError(c *fiber.Ctx, err error) error {
	var typed *domain.Error
	if !errors.As(err, &typed) {
		h.logger.WithError(err).Error("unclassified analysis failure")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal error",
		})
	}

	status := fiber.StatusInternalServerError
	switch typed.Kind {
	case domain.KindValidationFailed:
		status = fiber.StatusBadRequest
	case domain.KindRateLimitExceeded:
		status = fiber.StatusTooManyRequests
		c.Set("Retry-After", strconv.Itoa(typed.RetryAfter))
	case domain.KindServiceError:
		status = fiber.StatusBadGateway
	case domain.KindTimeout:
		status = fiber.StatusGatewayTimeout
	case domain.KindServiceUnavailable:
		status = fiber.StatusServiceUnavailable
	}

	return c.Status(status).JSON(fiber.Map{
		"error": typed.Message,
		"kind":  typed.Kind.String(),
	})
}

// clientID identifies the caller the way the rate limiter keys windows:
// proxy-forwarded IP headers first, remote address as a fallback.
func clientID(c *fiber.Ctx) string {
	for _, header := range []string{"X-Real-IP", "X-Forwarded-For", "True-Client-IP", "CF-Connecting-IP"} {
		if value := c.Get(header); value != "" {
			if idx := strings.IndexByte(value, ','); idx >= 0 {
				return strings.TrimSpace(value[:idx])
			}
			return value
		}
	}
	return c.IP()
}
