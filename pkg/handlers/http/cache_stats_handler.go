package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/insightloop/analysisgate/pkg/analysis"
)

type cacheStatsHandler struct {
	logger     *logrus.Logger
	dispatcher *analysis.Dispatcher
}

func NewCacheStatsHandler(logger *logrus.Logger, dispatcher *analysis.Dispatcher) Handler {
	return &cacheStatsHandler{
		logger:     logger,
		dispatcher: dispatcher,
	}
}

func (h *cacheStatsHandler) Handle(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(h.dispatcher.CacheMetrics())
}
