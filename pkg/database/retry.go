package database

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/HatiCode/loadcast/pkg/forecast"
)

// Retry runs fn until it succeeds or cfg.MaxAttempts attempts have failed.
// Every failed attempt is logged with its 1-based index. When all attempts
// fail, the last error is returned wrapped in a *forecast.ConnectivityError
// for component.
func Retry[T any](ctx context.Context, cfg RetryConfig, component string, logger *slog.Logger, fn func(context.Context) (T, error)) (T, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	attempt := 0
	operation := func() (T, error) {
		attempt++
		return fn(ctx)
	}

	notify := func(err error, wait time.Duration) {
		logger.Warn("attempt failed",
			"component", component,
			"attempt", attempt,
			"max_attempts", cfg.MaxAttempts,
			"retry_in", wait,
			"error", err,
		)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(newBackOff(cfg), uint64(cfg.MaxAttempts-1)),
		ctx,
	)

	v, err := backoff.RetryNotifyWithData(operation, policy, notify)
	if err != nil {
		logger.Error("attempt failed, giving up",
			"component", component,
			"attempt", attempt,
			"max_attempts", cfg.MaxAttempts,
			"error", err,
		)
		var zero T
		return zero, &forecast.ConnectivityError{Component: component, Err: err}
	}
	return v, nil
}

func newBackOff(cfg RetryConfig) backoff.BackOff {
	if cfg.Backoff == BackoffExponential {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = cfg.Delay
		b.MaxElapsedTime = 0
		b.Reset()
		return b
	}
	return backoff.NewConstantBackOff(cfg.Delay)
}
