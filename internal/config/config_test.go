package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()
	os.Setenv("API_BASE_URL", "https://api.example.test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config")
	}
	if cfg.APIBaseURL != "https://api.example.test" {
		t.Errorf("APIBaseURL = %q, want %q", cfg.APIBaseURL, "https://api.example.test")
	}
	if cfg.RequestTimeout != "2m" {
		t.Errorf("RequestTimeout = %q, want %q", cfg.RequestTimeout, "2m")
	}
	if cfg.IdleThreshold != "2m" {
		t.Errorf("IdleThreshold = %q, want %q", cfg.IdleThreshold, "2m")
	}
	if cfg.SweepInterval != "15m" {
		t.Errorf("SweepInterval = %q, want %q", cfg.SweepInterval, "15m")
	}
	if cfg.RetryMaxAttempts != 2 {
		t.Errorf("RetryMaxAttempts = %d, want 2", cfg.RetryMaxAttempts)
	}
	if cfg.RetryDelay != "5s" {
		t.Errorf("RetryDelay = %q, want %q", cfg.RetryDelay, "5s")
	}
}

func TestLoad_MissingBaseURL(t *testing.T) {
	os.Clearenv()

	if _, err := Load(); err == nil {
		t.Fatal("Load should fail when API_BASE_URL is unset")
	}
}

func TestLoad_RejectsNonHTTPBaseURL(t *testing.T) {
	os.Clearenv()
	os.Setenv("API_BASE_URL", "ftp://api.example.test")

	if _, err := Load(); err == nil {
		t.Fatal("Load should fail for a non-http(s) base URL")
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("API_BASE_URL", "http://localhost:8080")
	os.Setenv("IDLE_THRESHOLD", "90s")
	os.Setenv("RETRY_MAX_ATTEMPTS", "4")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIBaseURL != "http://localhost:8080" {
		t.Errorf("APIBaseURL = %q, want %q", cfg.APIBaseURL, "http://localhost:8080")
	}
	if got := cfg.IdleThresholdDuration(); got != 90*time.Second {
		t.Errorf("IdleThresholdDuration = %v, want 90s", got)
	}
	if cfg.RetryMaxAttempts != 4 {
		t.Errorf("RetryMaxAttempts = %d, want 4", cfg.RetryMaxAttempts)
	}
}

func TestDurationAccessors_Fallbacks(t *testing.T) {
	cfg := &Config{
		RequestTimeout: "bogus",
		IdleThreshold:  "",
		SweepInterval:  "-3m",
		RetryDelay:     "0s",
	}
	if got := cfg.RequestTimeoutDuration(); got != 2*time.Minute {
		t.Errorf("RequestTimeoutDuration = %v, want 2m", got)
	}
	if got := cfg.IdleThresholdDuration(); got != 2*time.Minute {
		t.Errorf("IdleThresholdDuration = %v, want 2m", got)
	}
	if got := cfg.SweepIntervalDuration(); got != 15*time.Minute {
		t.Errorf("SweepIntervalDuration = %v, want 15m", got)
	}
	if got := cfg.RetryDelayDuration(); got != 5*time.Second {
		t.Errorf("RetryDelayDuration = %v, want 5s", got)
	}
}

func TestSweepInterval_Clamped(t *testing.T) {
	cfg := &Config{SweepInterval: "1m"}
	if got := cfg.SweepIntervalDuration(); got != 15*time.Minute {
		t.Errorf("SweepIntervalDuration = %v, want clamp to 15m", got)
	}
	cfg = &Config{SweepInterval: "30m"}
	if got := cfg.SweepIntervalDuration(); got != 30*time.Minute {
		t.Errorf("SweepIntervalDuration = %v, want 30m", got)
	}
}
