// Package config parses the ETL pipeline configuration.
//
// Settings are flags with environment fallbacks, after loading .env. The
// source adapter is configured by SOURCE (csv, http, prometheus or
// victoriametrics) plus SOURCE_* variables, which become the adapter's
// configuration map with camelCase keys (SOURCE_VALUE_PATH → valuePath).
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/joho/godotenv"

	"github.com/HatiCode/loadcast/pkg/adapters"
	"github.com/HatiCode/loadcast/pkg/database"
	"github.com/HatiCode/loadcast/pkg/forecast"
	"github.com/HatiCode/loadcast/pkg/models"
	"github.com/HatiCode/loadcast/pkg/pipeline"
)

// Config holds all pipeline configuration.
type Config struct {
	LogFormat string
	LogLevel  string

	Source        string
	SourceConfig  map[string]string
	SourceTimeout time.Duration
	WindowStart   time.Time
	WindowEnd     time.Time

	Storage  string
	Database database.Config
	Retry    database.RetryConfig
	Migrate  bool

	Model        models.Spec
	ArtifactPath string

	Steps    []pipeline.Step
	Schedule string
}

// ParseFlags loads .env, then parses os.Args into a validated Config.
func ParseFlags() (*Config, error) {
	_ = godotenv.Load()
	return Parse(flag.CommandLine, os.Args[1:], os.Environ())
}

// Parse registers the pipeline flags on fs and parses args. environ supplies
// the SOURCE_* adapter settings.
func Parse(fs *flag.FlagSet, args, environ []string) (*Config, error) {
	cfg := &Config{}
	var backoff, steps, start, end string
	var maxConns int

	fs.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	fs.StringVar(&cfg.Source, "source", getEnv("SOURCE", adapters.KindCSV), "Load source: csv, http, prometheus, or victoriametrics")
	fs.DurationVar(&cfg.SourceTimeout, "source-timeout", getEnvDuration("SOURCE_TIMEOUT", 5*time.Minute), "Timeout of the extract step")
	fs.StringVar(&start, "window-start", getEnv("WINDOW_START", ""), "First day to extract, YYYY-MM-DD (empty is unbounded)")
	fs.StringVar(&end, "window-end", getEnv("WINDOW_END", ""), "Day after the last one to extract, YYYY-MM-DD (empty is unbounded)")

	fs.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", "postgres"), "Daily load store: postgres or none")
	fs.StringVar(&cfg.Database.Host, "db-host", getEnv("DB_HOST", "localhost"), "PostgreSQL host")
	fs.IntVar(&cfg.Database.Port, "db-port", getEnvInt("DB_PORT", 5432), "PostgreSQL port")
	fs.StringVar(&cfg.Database.Name, "db-name", getEnv("DB_NAME", "energy"), "PostgreSQL database")
	fs.StringVar(&cfg.Database.User, "db-user", getEnv("DB_USER", "postgres"), "PostgreSQL user")
	fs.StringVar(&cfg.Database.Password, "db-pass", getEnv("DB_PASS", ""), "PostgreSQL password")
	fs.StringVar(&cfg.Database.SSLMode, "db-sslmode", getEnv("DB_SSLMODE", "disable"), "PostgreSQL sslmode")
	fs.IntVar(&maxConns, "db-max-conns", getEnvInt("DB_MAX_CONNS", 4), "Maximum pooled connections")
	fs.IntVar(&cfg.Retry.MaxAttempts, "db-connect-attempts", getEnvInt("DB_CONNECT_ATTEMPTS", 5), "Connection attempts before giving up")
	fs.DurationVar(&cfg.Retry.Delay, "db-connect-delay", getEnvDuration("DB_CONNECT_DELAY", 5*time.Second), "Delay between connection attempts")
	fs.StringVar(&backoff, "db-retry-backoff", getEnv("DB_RETRY_BACKOFF", database.BackoffConstant), "Retry backoff: constant or exponential")
	fs.BoolVar(&cfg.Migrate, "migrate", getEnvBool("DB_MIGRATE", true), "Apply database migrations before loading")

	fs.StringVar(&cfg.Model.Kind, "model", getEnv("MODEL", models.KindBaseline), "Model: baseline, arima, sarima, or byom")
	fs.IntVar(&cfg.Model.P, "arima-p", getEnvInt("ARIMA_P", 1), "AR order")
	fs.IntVar(&cfg.Model.D, "arima-d", getEnvInt("ARIMA_D", 1), "Differencing order")
	fs.IntVar(&cfg.Model.Q, "arima-q", getEnvInt("ARIMA_Q", 1), "MA order")
	fs.IntVar(&cfg.Model.SP, "sarima-p", getEnvInt("SARIMA_P", 1), "Seasonal AR order")
	fs.IntVar(&cfg.Model.SD, "sarima-d", getEnvInt("SARIMA_D", 1), "Seasonal differencing order")
	fs.IntVar(&cfg.Model.SQ, "sarima-q", getEnvInt("SARIMA_Q", 1), "Seasonal MA order")
	fs.IntVar(&cfg.Model.S, "sarima-s", getEnvInt("SARIMA_S", 7), "Seasonal period in days")
	fs.StringVar(&cfg.Model.BYOMURL, "byom-url", getEnv("BYOM_URL", ""), "External model service endpoint (model=byom)")
	fs.Float64Var(&cfg.Model.IntervalWidth, "interval-width", getEnvFloat("INTERVAL_WIDTH", models.DefaultIntervalWidth), "Prediction interval coverage")
	fs.StringVar(&cfg.ArtifactPath, "model-path", getEnv("MODEL_PATH", "models/model.json"), "Where to write the trained model artifact")

	fs.StringVar(&steps, "steps", getEnv("STEPS", "all"), "Comma-separated steps: extract, transform, load, train")
	fs.StringVar(&cfg.Schedule, "schedule", getEnv("SCHEDULE", ""), "Cron expression or interval (e.g. 24h) to run repeatedly; empty runs once")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.Database.MaxConns = int32(maxConns)
	cfg.Retry.Backoff = backoff
	cfg.SourceConfig = parseSourceConfig(environ)

	var errs []error
	var err error
	if cfg.Steps, err = pipeline.ParseSteps(steps); err != nil {
		errs = append(errs, err)
	}
	if cfg.WindowStart, err = parseDay(start); err != nil {
		errs = append(errs, fmt.Errorf("window start: %w", err))
	}
	if cfg.WindowEnd, err = parseDay(end); err != nil {
		errs = append(errs, fmt.Errorf("window end: %w", err))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Has reports whether step is part of the run.
func (c *Config) Has(step pipeline.Step) bool {
	for _, s := range c.Steps {
		if s == step {
			return true
		}
	}
	return false
}

// Validate rejects inconsistent configuration.
func (c *Config) Validate() error {
	var errs []error

	switch c.Source {
	case adapters.KindCSV, adapters.KindHTTP, adapters.KindPrometheus, adapters.KindVictoriaMetrics:
	default:
		errs = append(errs, fmt.Errorf("invalid source %q (must be csv, http, prometheus, or victoriametrics)", c.Source))
	}
	if c.SourceTimeout <= 0 {
		errs = append(errs, fmt.Errorf("source timeout must be > 0, got %v", c.SourceTimeout))
	}
	if !c.WindowStart.IsZero() && !c.WindowEnd.IsZero() && !c.WindowStart.Before(c.WindowEnd) {
		errs = append(errs, errors.New("window start must be before window end"))
	}

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
	case "none":
		if c.Has(pipeline.StepLoad) {
			errs = append(errs, errors.New("step load needs storage=postgres"))
		}
		if c.Has(pipeline.StepTrain) && !c.Has(pipeline.StepTransform) {
			errs = append(errs, errors.New("a train-only run needs storage=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid storage %q (must be postgres or none)", c.Storage))
	}

	if c.Has(pipeline.StepTrain) {
		if err := c.Model.Validate(); err != nil {
			errs = append(errs, err)
		}
		if c.ArtifactPath == "" {
			errs = append(errs, errors.New("model path is required for step train"))
		}
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("invalid log format %q (must be text or json)", c.LogFormat))
	}

	return errors.Join(errs...)
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return forecast.ParseDate(s)
}

// parseSourceConfig collects SOURCE_* variables into an adapter configuration
// map. SOURCE itself and SOURCE_TIMEOUT are pipeline settings, not adapter ones.
func parseSourceConfig(environ []string) map[string]string {
	const prefix = "SOURCE_"
	config := make(map[string]string)

	for _, env := range environ {
		key, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(key, prefix) || len(key) == len(prefix) {
			continue
		}
		if key == "SOURCE_TIMEOUT" {
			continue
		}
		config[toLowerCamelCase(key[len(prefix):])] = value
	}
	return config
}

// toLowerCamelCase converts VALUE_PATH to valuePath.
func toLowerCamelCase(s string) string {
	var b strings.Builder
	upperNext := false
	for _, r := range strings.ToLower(s) {
		if r == '_' {
			upperNext = b.Len() > 0
			continue
		}
		if upperNext {
			r = unicode.ToUpper(r)
			upperNext = false
		}
		b.WriteRune(r)
	}
	return b.String()
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.EqualFold(value, "true") || value == "1"
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
