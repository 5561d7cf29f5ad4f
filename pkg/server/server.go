package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/insightloop/analysisgate/pkg/config"
	handlers "github.com/insightloop/analysisgate/pkg/handlers/http"
)

type (
	GatewayServerDI struct {
		Config           *config.Config
		Logger           *logrus.Logger
		HandlerTransport handlers.HandlerTransport
	}

	GatewayServer struct {
		config           *config.Config
		logger           *logrus.Logger
		router           *fiber.App
		handlerTransport handlers.HandlerTransport
		metricsStarted   bool
	}
)

func NewGatewayServer(di GatewayServerDI) *GatewayServer {
	r := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           60 * time.Second,
		WriteTimeout:          60 * time.Second,
		IdleTimeout:           120 * time.Second,
		BodyLimit:             1024 * 1024,
	})
	r.Use(recover.New())

	return &GatewayServer{
		config:           di.Config,
		logger:           di.Logger,
		router:           r,
		handlerTransport: di.HandlerTransport,
	}
}

func (s *GatewayServer) Run() error {
	s.setupRoutes()
	s.setupHealthCheck()
	s.setupMetricsEndpoint()

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.logger.WithField("addr", addr).Info("starting analysis gateway")
	return s.router.Listen(addr)
}

func (s *GatewayServer) Shutdown() error {
	return s.router.Shutdown()
}

func (s *GatewayServer) setupRoutes() {
	v1 := s.router.Group("/api/v1")
	{
		v1.Post("/analyze", s.handlerTransport.AnalyzeHandler.Handle)

		cacheGroup := v1.Group("/cache")
		{
			cacheGroup.Get("/stats", s.handlerTransport.CacheStatsHandler.Handle)
			cacheGroup.Delete("", s.handlerTransport.ClearCacheHandler.Handle)
		}
	}
}

func (s *GatewayServer) setupHealthCheck() {
	s.router.Get("/health", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
}

func (s *GatewayServer) setupMetricsEndpoint() {
	if !s.config.Metrics.Enabled {
		s.logger.Info("prometheus metrics are disabled by configuration")
		return
	}
	if s.metricsStarted {
		return
	}
	s.metricsStarted = true

	metricsApp := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	metricsApp.Use(recover.New())

	metricsApp.Get("/metrics", func(c *fiber.Ctx) error {
		handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
		handler(c.Context())
		return nil
	})

	go func() {
		addr := fmt.Sprintf(":%d", s.config.Server.MetricsPort)
		if err := metricsApp.Listen(addr); err != nil {
			if !strings.Contains(err.Error(), "address already in use") {
				s.logger.WithError(err).Error("failed to start metrics server")
			}
		}
	}()
}
