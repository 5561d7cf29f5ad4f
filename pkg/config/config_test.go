package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Cache: CacheConfig{
			Capacity:      1000,
			DefaultTTL:    5 * time.Minute,
			SweepInterval: time.Minute,
		},
		RateLimit: RateLimitConfig{
			ClientLimit:  10,
			ClientWindow: 5 * time.Minute,
			GlobalLimit:  100,
			GlobalWindow: time.Minute,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  time.Minute,
		},
		Retry: RetryConfig{
			MaxRetries:  3,
			BaseDelay:   time.Second,
			MaxDelay:    10 * time.Second,
			CallTimeout: 30 * time.Second,
		},
		Provider: ProviderConfig{
			Name:   "anthropic",
			APIKey: "test-key",
		},
	}
}

func TestValidate_AcceptsDefaults(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero cache capacity", mutate: func(c *Config) { c.Cache.Capacity = 0 }},
		{name: "zero cache ttl", mutate: func(c *Config) { c.Cache.DefaultTTL = 0 }},
		{name: "zero client limit", mutate: func(c *Config) { c.RateLimit.ClientLimit = 0 }},
		{name: "negative global limit", mutate: func(c *Config) { c.RateLimit.GlobalLimit = -1 }},
		{name: "zero client window", mutate: func(c *Config) { c.RateLimit.ClientWindow = 0 }},
		{name: "zero failure threshold", mutate: func(c *Config) { c.Breaker.FailureThreshold = 0 }},
		{name: "zero max retries", mutate: func(c *Config) { c.Retry.MaxRetries = 0 }},
		{name: "max delay below base delay", mutate: func(c *Config) { c.Retry.MaxDelay = time.Millisecond }},
		{name: "zero call timeout", mutate: func(c *Config) { c.Retry.CallTimeout = 0 }},
		{name: "missing provider name", mutate: func(c *Config) { c.Provider.Name = "" }},
		{name: "missing api key", mutate: func(c *Config) { c.Provider.APIKey = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_AppliesDefaultsAndFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`
provider:
  api_key: file-key
rate_limit:
  client_limit: 25
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "file-key", cfg.Provider.APIKey)
	assert.Equal(t, 25, cfg.RateLimit.ClientLimit)
	// Untouched values fall back to defaults.
	assert.Equal(t, 5*time.Minute, cfg.RateLimit.ClientWindow)
	assert.Equal(t, uint32(5), cfg.Breaker.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.Retry.CallTimeout)
	assert.Equal(t, "anthropic", cfg.Provider.Name)
}

func TestLoad_InvalidConfigFailsStartup(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`
provider:
  api_key: file-key
cache:
  capacity: -5
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0o600))

	_, err := Load(dir)
	assert.Error(t, err)
}
