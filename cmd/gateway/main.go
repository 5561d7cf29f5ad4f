package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/insightloop/analysisgate/pkg/analysis"
	"github.com/insightloop/analysisgate/pkg/cache"
	"github.com/insightloop/analysisgate/pkg/config"
	handlers "github.com/insightloop/analysisgate/pkg/handlers/http"
	"github.com/insightloop/analysisgate/pkg/infra/httpx"
	"github.com/insightloop/analysisgate/pkg/infra/logger"
	"github.com/insightloop/analysisgate/pkg/infra/prometheus"
	"github.com/insightloop/analysisgate/pkg/infra/providers"
	"github.com/insightloop/analysisgate/pkg/infra/providers/factory"
	"github.com/insightloop/analysisgate/pkg/prompt"
	"github.com/insightloop/analysisgate/pkg/ratelimit"
	"github.com/insightloop/analysisgate/pkg/server"
)

func main() {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		log.Println("no .env file found, using system environment variables")
	}

	cfg, err := config.Load("./config")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	lgr := logger.NewLogger(cfg.Log.Level)

	if cfg.Metrics.Enabled {
		prometheus.Initialize()
	}

	cacheStore := cache.NewStore(cfg.Cache.Capacity, cfg.Cache.DefaultTTL)
	cacheStore.StartSweep(cfg.Cache.SweepInterval)
	defer cacheStore.Stop()

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		ClientLimit:  cfg.RateLimit.ClientLimit,
		ClientWindow: cfg.RateLimit.ClientWindow,
		GlobalLimit:  cfg.RateLimit.GlobalLimit,
		GlobalWindow: cfg.RateLimit.GlobalWindow,
		BypassSecret: cfg.RateLimit.BypassSecret,
	})
	limiter.StartSweep(cfg.RateLimit.SweepInterval)
	defer limiter.Stop()

	breaker := httpx.NewCircuitBreaker(
		"analysis-provider",
		cfg.Breaker.RecoveryTimeout,
		cfg.Breaker.FailureThreshold,
	)

	providerLocator := factory.NewProviderLocator()
	providerClient, err := providerLocator.Get(cfg.Provider.Name)
	if err != nil {
		lgr.WithError(err).Fatal("failed to resolve analysis provider")
	}

	analysisClient := analysis.NewRetryingClient(
		providerClient,
		&providers.Config{
			Credentials: providers.Credentials{ApiKey: cfg.Provider.APIKey},
			Model:       cfg.Provider.Model,
			MaxTokens:   cfg.Provider.MaxTokens,
			Temperature: cfg.Provider.Temperature,
		},
		breaker,
		lgr,
		analysis.RetryConfig{
			MaxRetries:  cfg.Retry.MaxRetries,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxDelay:    cfg.Retry.MaxDelay,
			CallTimeout: cfg.Retry.CallTimeout,
		},
	)

	dispatcher := analysis.NewDispatcher(analysis.DispatcherDI{
		Cache:    cacheStore,
		Limiter:  limiter,
		Client:   analysisClient,
		Prompts:  prompt.NewFileLoader(cfg.Provider.ReferenceCorpus, lgr),
		Logger:   lgr,
		CacheTTL: cfg.Cache.DefaultTTL,
	})

	gatewayServer := server.NewGatewayServer(server.GatewayServerDI{
		Config: cfg,
		Logger: lgr,
		HandlerTransport: handlers.HandlerTransport{
			AnalyzeHandler:    handlers.NewAnalyzeHandler(lgr, dispatcher),
			CacheStatsHandler: handlers.NewCacheStatsHandler(lgr, dispatcher),
			ClearCacheHandler: handlers.NewClearCacheHandler(lgr, dispatcher),
		},
	})

	go func() {
		if err := gatewayServer.Run(); err != nil {
			lgr.WithError(err).Fatal("gateway server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	lgr.Info("shutting down gateway")
	if err := gatewayServer.Shutdown(); err != nil {
		lgr.WithError(err).Error("error during server shutdown")
	}
}
