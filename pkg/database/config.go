package database

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds PostgreSQL connection settings.
type Config struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
	MaxConns int32
}

// DSN returns a libpq-style connection URL understood by pgxpool.
func (c Config) DSN() string {
	return c.url("postgres")
}

// MigrateURL returns the URL golang-migrate expects for its pgx/v5 driver.
func (c Config) MigrateURL() string {
	return c.url("pgx5")
}

func (c Config) url(scheme string) string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   scheme,
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Name,
		RawQuery: "sslmode=" + url.QueryEscape(sslMode),
	}
	return u.String()
}

// Backoff strategies accepted by RetryConfig.
const (
	BackoffConstant    = "constant"
	BackoffExponential = "exponential"
)

// RetryConfig bounds how hard Connect tries before giving up.
type RetryConfig struct {
	MaxAttempts int
	Delay       time.Duration
	Backoff     string
}

// DefaultRetryConfig returns five attempts five seconds apart.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 5,
		Delay:       5 * time.Second,
		Backoff:     BackoffConstant,
	}
}

// Validate rejects retry settings that would never attempt a connection.
func (r RetryConfig) Validate() error {
	if r.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be >= 1, got %d", r.MaxAttempts)
	}
	if r.Delay < 0 {
		return fmt.Errorf("retry delay must be >= 0, got %v", r.Delay)
	}
	switch r.Backoff {
	case "", BackoffConstant, BackoffExponential:
		return nil
	default:
		return fmt.Errorf("unknown backoff %q (must be constant or exponential)", r.Backoff)
	}
}
