// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// APIBaseURL is the backend API base URL (e.g. https://api.billpoint.app). Required.
	APIBaseURL string `mapstructure:"API_BASE_URL"`
	// APIKey is the value sent in the x-api-key header on every outgoing request.
	APIKey string `mapstructure:"API_KEY"`
	// RequestTimeout is the fixed HTTP request timeout (e.g. "2m"). Generous to tolerate slow mobile networks.
	RequestTimeout string `mapstructure:"REQUEST_TIMEOUT"`
	// IdleThreshold is how long the app may stay backgrounded before resume forces logout (e.g. "2m").
	IdleThreshold string `mapstructure:"IDLE_THRESHOLD"`
	// SweepInterval is the credential sweeper interval (e.g. "15m"). Clamped to a 15m minimum at use.
	SweepInterval string `mapstructure:"SWEEP_INTERVAL"`
	// RetryMaxAttempts is how many extra attempts the cache layer makes after a retryable failure.
	RetryMaxAttempts int `mapstructure:"RETRY_MAX_ATTEMPTS"`
	// RetryDelay is the constant delay between cache-layer retries (e.g. "5s").
	RetryDelay string `mapstructure:"RETRY_DELAY"`
	// DataDir is the directory holding the plain and secure store files. Default ~/.billpoint.
	DataDir string `mapstructure:"DATA_DIR"`
	// OTLPEndpoint is the OTLP gRPC collector endpoint (e.g. http://localhost:4317). Empty disables telemetry export.
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP export even for https endpoints (standard OTEL_EXPORTER_OTLP_INSECURE behavior).
	OTLPInsecure bool `mapstructure:"OTLP_INSECURE"`
	// Env is the application environment (e.g. "development", "production"). Selects the zap config.
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("API_BASE_URL", "")
	v.SetDefault("API_KEY", "")
	v.SetDefault("REQUEST_TIMEOUT", "2m")
	v.SetDefault("IDLE_THRESHOLD", "2m")
	v.SetDefault("SWEEP_INTERVAL", "15m")
	v.SetDefault("RETRY_MAX_ATTEMPTS", 2)
	v.SetDefault("RETRY_DELAY", "5s")
	v.SetDefault("DATA_DIR", "")
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("OTLP_INSECURE", false)
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.APIBaseURL == "" {
		return nil, errors.New("config: API_BASE_URL must be set")
	}
	if !strings.HasPrefix(cfg.APIBaseURL, "http://") && !strings.HasPrefix(cfg.APIBaseURL, "https://") {
		return nil, errors.New("config: API_BASE_URL must be an http(s) URL")
	}
	if cfg.RetryMaxAttempts < 0 {
		return nil, errors.New("config: RETRY_MAX_ATTEMPTS must not be negative")
	}

	return &cfg, nil
}

// RequestTimeoutDuration parses RequestTimeout as a time.Duration. Returns 2m if unset or invalid.
func (c *Config) RequestTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil || d <= 0 {
		return 2 * time.Minute
	}
	return d
}

// IdleThresholdDuration parses IdleThreshold as a time.Duration. Returns 2m if unset or invalid.
func (c *Config) IdleThresholdDuration() time.Duration {
	d, err := time.ParseDuration(c.IdleThreshold)
	if err != nil || d <= 0 {
		return 2 * time.Minute
	}
	return d
}

// SweepIntervalDuration parses SweepInterval as a time.Duration, clamped to a 15m minimum.
// The sweeper never runs more often than every 15 minutes regardless of config.
func (c *Config) SweepIntervalDuration() time.Duration {
	const min = 15 * time.Minute
	d, err := time.ParseDuration(c.SweepInterval)
	if err != nil || d < min {
		return min
	}
	return d
}

// RetryDelayDuration parses RetryDelay as a time.Duration. Returns 5s if unset or invalid.
func (c *Config) RetryDelayDuration() time.Duration {
	d, err := time.ParseDuration(c.RetryDelay)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}
