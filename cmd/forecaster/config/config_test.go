package config

import (
	"flag"
	"os"
	"strings"
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "environment variable set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "from-env",
			want:         "from-env",
		},
		{
			name:         "environment variable not set",
			key:          "NONEXISTENT_VAR",
			defaultValue: "default",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			if got := getEnv(tt.key, tt.defaultValue); got != tt.want {
				t.Errorf("getEnv() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetEnvTyped(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BAD_INT", "forty-two")
	t.Setenv("TEST_FLOAT", "2.5")
	t.Setenv("TEST_DURATION", "90s")
	t.Setenv("TEST_BOOL", "TRUE")

	if got := getEnvInt("TEST_INT", 1); got != 42 {
		t.Errorf("getEnvInt() = %d, want 42", got)
	}
	if got := getEnvInt("TEST_BAD_INT", 7); got != 7 {
		t.Errorf("getEnvInt() on invalid value = %d, want default 7", got)
	}
	if got := getEnvFloat("TEST_FLOAT", 0); got != 2.5 {
		t.Errorf("getEnvFloat() = %v, want 2.5", got)
	}
	if got := getEnvDuration("TEST_DURATION", time.Second); got != 90*time.Second {
		t.Errorf("getEnvDuration() = %v, want 90s", got)
	}
	if got := getEnvBool("TEST_BOOL", false); !got {
		t.Error("getEnvBool() = false, want true")
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse(flag.NewFlagSet("forecaster", flag.ContinueOnError), nil)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Listen != ":8000" {
		t.Errorf("Listen = %q, want :8000", cfg.Listen)
	}
	if cfg.Storage != "postgres" || cfg.Cache != "memory" {
		t.Errorf("Storage/Cache = %q/%q", cfg.Storage, cfg.Cache)
	}
	if cfg.Retry.MaxAttempts != 5 || cfg.Retry.Delay != 5*time.Second || cfg.Retry.Backoff != "constant" {
		t.Errorf("Retry = %+v", cfg.Retry)
	}
	if cfg.CacheTTL != time.Hour {
		t.Errorf("CacheTTL = %v, want 1h", cfg.CacheTTL)
	}
	if cfg.Workers != 4 || cfg.QueueSize != 64 {
		t.Errorf("Workers/QueueSize = %d/%d", cfg.Workers, cfg.QueueSize)
	}
	if cfg.Database.MaxConns != 10 {
		t.Errorf("MaxConns = %d, want 10", cfg.Database.MaxConns)
	}
	if cfg.APIKey != "" || cfg.RateLimit != 0 || cfg.TrustProxy {
		t.Errorf("gate should be disabled by default: %q %v trust_proxy=%v", cfg.APIKey, cfg.RateLimit, cfg.TrustProxy)
	}
}

func TestParse_EnvAndFlags(t *testing.T) {
	t.Setenv("DB_CONNECT_ATTEMPTS", "3")
	t.Setenv("DB_RETRY_BACKOFF", "exponential")
	t.Setenv("CACHE_TTL", "10m")
	t.Setenv("WORKERS", "2")
	t.Setenv("TRUST_PROXY", "true")

	cfg, err := Parse(flag.NewFlagSet("forecaster", flag.ContinueOnError), []string{
		"-workers=8",
		"-storage=memory",
		"-cache-strict",
		"-log-format=json",
	})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Retry.MaxAttempts != 3 || cfg.Retry.Backoff != "exponential" {
		t.Errorf("Retry = %+v", cfg.Retry)
	}
	if cfg.CacheTTL != 10*time.Minute {
		t.Errorf("CacheTTL = %v, want 10m", cfg.CacheTTL)
	}
	if cfg.Workers != 8 {
		t.Errorf("Workers = %d, flag should win over env", cfg.Workers)
	}
	if !cfg.TrustProxy {
		t.Error("TrustProxy not read from TRUST_PROXY")
	}
	if cfg.Storage != "memory" || !cfg.CacheStrict || cfg.LogFormat != "json" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Parse(flag.NewFlagSet("forecaster", flag.ContinueOnError), nil)
		if err != nil {
			t.Fatalf("Parse() error = %v", err)
		}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown storage", func(c *Config) { c.Storage = "sqlite" }, "invalid storage"},
		{"unknown cache", func(c *Config) { c.Cache = "memcached" }, "invalid cache"},
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, "max attempts"},
		{"bad backoff", func(c *Config) { c.Retry.Backoff = "linear" }, "unknown backoff"},
		{"memory storage ignores retry", func(c *Config) { c.Storage = "memory"; c.Retry.MaxAttempts = 0 }, ""},
		{"redis without addr", func(c *Config) { c.Cache = "redis"; c.RedisAddr = "" }, "redis addr"},
		{"zero ttl", func(c *Config) { c.CacheTTL = 0 }, "cache ttl"},
		{"zero workers", func(c *Config) { c.Workers = 0 }, "workers"},
		{"zero timeout", func(c *Config) { c.ComputeTimeout = 0 }, "compute timeout"},
		{"negative rate", func(c *Config) { c.RateLimit = -1 }, "rate limit"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "log format"},
		{"tls without files", func(c *Config) { c.TLS.Enabled = true }, "tls"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestParse_InvalidFlag(t *testing.T) {
	fs := flag.NewFlagSet("forecaster", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if _, err := Parse(fs, []string{"-workers=0"}); err == nil {
		t.Error("Parse() accepted workers=0")
	}
}
