package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Cache     CacheConfig     `mapstructure:"cache"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Breaker   BreakerConfig   `mapstructure:"circuit_breaker"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

type CacheConfig struct {
	Capacity      int           `mapstructure:"capacity"`
	DefaultTTL    time.Duration `mapstructure:"default_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type RateLimitConfig struct {
	ClientLimit   int           `mapstructure:"client_limit"`
	ClientWindow  time.Duration `mapstructure:"client_window"`
	GlobalLimit   int           `mapstructure:"global_limit"`
	GlobalWindow  time.Duration `mapstructure:"global_window"`
	BypassSecret  string        `mapstructure:"bypass_secret"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type BreakerConfig struct {
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	RecoveryTimeout  time.Duration `mapstructure:"recovery_timeout"`
}

type RetryConfig struct {
	MaxRetries  int           `mapstructure:"max_retries"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

type ProviderConfig struct {
	Name            string  `mapstructure:"name"`
	Model           string  `mapstructure:"model"`
	APIKey          string  `mapstructure:"api_key"`
	MaxTokens       int     `mapstructure:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature"`
	ReferenceCorpus string  `mapstructure:"reference_corpus"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load reads config.yaml plus environment overrides into a typed Config
// and validates it. Misconfiguration fails startup instead of surfacing
// per-request.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No file is fine, environment variables and defaults apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_port", 9090)

	v.SetDefault("cache.capacity", 1000)
	v.SetDefault("cache.default_ttl", 5*time.Minute)
	v.SetDefault("cache.sweep_interval", time.Minute)

	v.SetDefault("rate_limit.client_limit", 10)
	v.SetDefault("rate_limit.client_window", 5*time.Minute)
	v.SetDefault("rate_limit.global_limit", 100)
	v.SetDefault("rate_limit.global_window", time.Minute)
	v.SetDefault("rate_limit.sweep_interval", time.Minute)

	v.SetDefault("circuit_breaker.failure_threshold", 5)
	v.SetDefault("circuit_breaker.recovery_timeout", 60*time.Second)

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.base_delay", time.Second)
	v.SetDefault("retry.max_delay", 10*time.Second)
	v.SetDefault("retry.call_timeout", 30*time.Second)

	// Empty defaults keep env-only keys visible to Unmarshal.
	v.SetDefault("rate_limit.bypass_secret", "")

	v.SetDefault("provider.name", "anthropic")
	v.SetDefault("provider.model", "")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.max_tokens", 1024)
	v.SetDefault("provider.temperature", 0.2)
	v.SetDefault("provider.reference_corpus", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("metrics.enabled", true)
}

// Validate rejects configurations the resilience layer cannot run with.
func (c *Config) Validate() error {
	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache.capacity must be positive, got %d", c.Cache.Capacity)
	}
	if c.Cache.DefaultTTL <= 0 {
		return fmt.Errorf("cache.default_ttl must be positive, got %s", c.Cache.DefaultTTL)
	}
	if c.RateLimit.ClientLimit <= 0 || c.RateLimit.GlobalLimit <= 0 {
		return fmt.Errorf("rate limit counts must be positive")
	}
	if c.RateLimit.ClientWindow <= 0 || c.RateLimit.GlobalWindow <= 0 {
		return fmt.Errorf("rate limit windows must be positive")
	}
	if c.Breaker.FailureThreshold == 0 {
		return fmt.Errorf("circuit_breaker.failure_threshold must be positive")
	}
	if c.Retry.MaxRetries <= 0 {
		return fmt.Errorf("retry.max_retries must be positive, got %d", c.Retry.MaxRetries)
	}
	if c.Retry.BaseDelay <= 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("retry delays misconfigured: base %s, max %s", c.Retry.BaseDelay, c.Retry.MaxDelay)
	}
	if c.Retry.CallTimeout <= 0 {
		return fmt.Errorf("retry.call_timeout must be positive")
	}
	if c.Provider.Name == "" {
		return fmt.Errorf("provider.name is required")
	}
	if c.Provider.APIKey == "" {
		return fmt.Errorf("provider.api_key is required")
	}
	return nil
}
