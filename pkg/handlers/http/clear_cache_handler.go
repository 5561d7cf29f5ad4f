package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/insightloop/analysisgate/pkg/analysis"
)

type clearCacheHandler struct {
	logger     *logrus.Logger
	dispatcher *analysis.Dispatcher
}

func NewClearCacheHandler(logger *logrus.Logger, dispatcher *analysis.Dispatcher) Handler {
	return &clearCacheHandler{
		logger:     logger,
		dispatcher: dispatcher,
	}
}

func (h *clearCacheHandler) Handle(c *fiber.Ctx) error {
	h.dispatcher.ClearCache()
	h.logger.Info("response cache cleared by operator request")
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "cleared"})
}
