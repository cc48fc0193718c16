// Package config parses the forecaster configuration.
//
// Every setting is a command-line flag whose default comes from an environment
// variable, so flags take precedence over the environment and the environment
// over built-in defaults. A .env file in the working directory is loaded into
// the environment first; variables already set win over the file.
//
// Example usage:
//
//	cfg, err := config.ParseFlags()
//	if err != nil {
//		log.Fatal(err)
//	}
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/HatiCode/loadcast/pkg/database"
	"github.com/HatiCode/loadcast/pkg/tls"
)

// Config holds all forecaster configuration.
type Config struct {
	Listen     string
	GRPCListen string
	LogFormat  string
	LogLevel   string
	TLS        tls.Config

	Storage  string
	Database database.Config
	Retry    database.RetryConfig
	Migrate  bool

	Cache           string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	CacheTTL        time.Duration
	CacheStrict     bool
	CacheMaxEntries int

	ModelPath      string
	Workers        int
	QueueSize      int
	ComputeTimeout time.Duration

	APIKey     string
	RateLimit  float64
	RateBurst  int
	TrustProxy bool
}

// ParseFlags loads .env, then parses os.Args into a validated Config.
func ParseFlags() (*Config, error) {
	// a missing .env is normal outside development
	_ = godotenv.Load()
	return Parse(flag.CommandLine, os.Args[1:])
}

// Parse registers the forecaster flags on fs and parses args.
func Parse(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{}
	var backoff string

	fs.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8000"), "HTTP listen address")
	fs.StringVar(&cfg.GRPCListen, "grpc-listen", getEnv("GRPC_LISTEN", ""), "gRPC health listen address (empty disables)")
	fs.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	fs.BoolVar(&cfg.TLS.Enabled, "tls-enabled", getEnvBool("TLS_ENABLED", false), "Enable TLS for the HTTP server")
	fs.StringVar(&cfg.TLS.CertFile, "tls-cert-file", getEnv("TLS_CERT_FILE", ""), "TLS certificate file")
	fs.StringVar(&cfg.TLS.KeyFile, "tls-key-file", getEnv("TLS_KEY_FILE", ""), "TLS private key file")
	fs.StringVar(&cfg.TLS.CAFile, "tls-ca-file", getEnv("TLS_CA_FILE", ""), "CA file for client certificate verification (optional)")

	fs.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", "postgres"), "Forecast store: postgres or memory")
	fs.StringVar(&cfg.Database.Host, "db-host", getEnv("DB_HOST", "localhost"), "PostgreSQL host")
	fs.IntVar(&cfg.Database.Port, "db-port", getEnvInt("DB_PORT", 5432), "PostgreSQL port")
	fs.StringVar(&cfg.Database.Name, "db-name", getEnv("DB_NAME", "energy"), "PostgreSQL database")
	fs.StringVar(&cfg.Database.User, "db-user", getEnv("DB_USER", "postgres"), "PostgreSQL user")
	fs.StringVar(&cfg.Database.Password, "db-pass", getEnv("DB_PASS", ""), "PostgreSQL password")
	fs.StringVar(&cfg.Database.SSLMode, "db-sslmode", getEnv("DB_SSLMODE", "disable"), "PostgreSQL sslmode")
	maxConns := fs.Int("db-max-conns", getEnvInt("DB_MAX_CONNS", 10), "Maximum pooled connections")
	fs.IntVar(&cfg.Retry.MaxAttempts, "db-connect-attempts", getEnvInt("DB_CONNECT_ATTEMPTS", 5), "Connection attempts before giving up")
	fs.DurationVar(&cfg.Retry.Delay, "db-connect-delay", getEnvDuration("DB_CONNECT_DELAY", 5*time.Second), "Delay between connection attempts")
	fs.StringVar(&backoff, "db-retry-backoff", getEnv("DB_RETRY_BACKOFF", database.BackoffConstant), "Retry backoff: constant or exponential")
	fs.BoolVar(&cfg.Migrate, "migrate", getEnvBool("DB_MIGRATE", true), "Apply database migrations at startup")

	fs.StringVar(&cfg.Cache, "cache", getEnv("CACHE", "memory"), "Result cache: redis or memory")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis server address")
	fs.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	fs.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database number")
	fs.DurationVar(&cfg.CacheTTL, "cache-ttl", getEnvDuration("CACHE_TTL", time.Hour), "Cached forecast lifetime")
	fs.BoolVar(&cfg.CacheStrict, "cache-strict", getEnvBool("CACHE_STRICT", false), "Fail requests when the cache is unreachable instead of degrading")
	fs.IntVar(&cfg.CacheMaxEntries, "cache-max-entries", getEnvInt("CACHE_MAX_ENTRIES", 512), "In-memory cache capacity")

	fs.StringVar(&cfg.ModelPath, "model-path", getEnv("MODEL_PATH", "models/model.json"), "Trained model artifact")
	fs.IntVar(&cfg.Workers, "workers", getEnvInt("WORKERS", 4), "Background forecast workers")
	fs.IntVar(&cfg.QueueSize, "queue-size", getEnvInt("QUEUE_SIZE", 64), "Pending forecast jobs before requests are rejected")
	fs.DurationVar(&cfg.ComputeTimeout, "compute-timeout", getEnvDuration("COMPUTE_TIMEOUT", 2*time.Minute), "Timeout of one forecast computation")

	fs.StringVar(&cfg.APIKey, "api-key", getEnv("API_KEY", ""), "Bearer token required on forecast routes (empty disables)")
	fs.Float64Var(&cfg.RateLimit, "rate-limit", getEnvFloat("RATE_LIMIT", 0), "Requests per second per client (0 disables)")
	fs.IntVar(&cfg.RateBurst, "rate-burst", getEnvInt("RATE_BURST", 10), "Rate limit burst")
	fs.BoolVar(&cfg.TrustProxy, "trust-proxy", getEnvBool("TRUST_PROXY", false), "Rate limit by X-Forwarded-For (only behind a proxy that sets it)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.Database.MaxConns = int32(*maxConns)
	cfg.Retry.Backoff = backoff

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects inconsistent configuration.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage {
	case "postgres":
		if c.Database.Host == "" || c.Database.Name == "" {
			errs = append(errs, errors.New("db host and name are required when storage=postgres"))
		}
		if c.Database.MaxConns <= 0 {
			errs = append(errs, fmt.Errorf("db max conns must be > 0, got %d", c.Database.MaxConns))
		}
		if err := c.Retry.Validate(); err != nil {
			errs = append(errs, err)
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("invalid storage %q (must be postgres or memory)", c.Storage))
	}

	switch c.Cache {
	case "redis":
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redis addr is required when cache=redis"))
		}
		if c.RedisDB < 0 {
			errs = append(errs, fmt.Errorf("redis db must be >= 0, got %d", c.RedisDB))
		}
	case "memory":
		if c.CacheMaxEntries <= 0 {
			errs = append(errs, fmt.Errorf("cache max entries must be > 0, got %d", c.CacheMaxEntries))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid cache %q (must be redis or memory)", c.Cache))
	}

	if c.CacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("cache ttl must be > 0, got %v", c.CacheTTL))
	}
	if c.ModelPath == "" {
		errs = append(errs, errors.New("model path is required"))
	}
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be > 0, got %d", c.Workers))
	}
	if c.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("queue size must be >= 0, got %d", c.QueueSize))
	}
	if c.ComputeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("compute timeout must be > 0, got %v", c.ComputeTimeout))
	}
	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("rate limit must be >= 0, got %v", c.RateLimit))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("invalid log format %q (must be text or json)", c.LogFormat))
	}
	if err := c.TLS.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.EqualFold(value, "true") || value == "1"
	}
	return defaultValue
}
