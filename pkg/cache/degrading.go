package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/HatiCode/loadcast/pkg/forecast"
)

// DegradingOptions configures NewDegrading.
type DegradingOptions struct {
	// Strict propagates backend failures instead of degrading to a miss.
	Strict bool

	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration

	// MaxFailures is the number of consecutive failures that opens the breaker.
	MaxFailures uint32

	// OnError is called with the operation name for every degraded call.
	OnError func(op string)

	Logger *slog.Logger
}

// Degrading wraps a Cache so that backend failures, or an open circuit,
// behave like an empty cache: Get misses, Set and Release are dropped and
// Claim is granted locally. Failures are logged and reported through OnError.
// In strict mode the failure is returned as a *forecast.ConnectivityError.
//
// A caller whose own context is done gets its context error back: it is
// neither degraded nor counted against the breaker.
type Degrading struct {
	backend Cache
	cb      *gobreaker.CircuitBreaker
	opts    DegradingOptions
	logger  *slog.Logger
}

type getResult struct {
	points []forecast.Point
	found  bool
}

type claimResult struct {
	holder  string
	claimed bool
}

// NewDegrading wraps backend with a circuit breaker.
func NewDegrading(backend Cache, opts DegradingOptions) *Degrading {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = 30 * time.Second
	}
	if opts.MaxFailures == 0 {
		opts.MaxFailures = 5
	}

	maxFailures := opts.MaxFailures
	logger := opts.Logger

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "cache",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     opts.OpenTimeout,
		IsSuccessful: func(err error) bool {
			return err == nil || isContextErr(err)
		},
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("cache circuit state changed", "from", from.String(), "to", to.String())
		},
	})

	return &Degrading{backend: backend, cb: cb, opts: opts, logger: logger}
}

// State returns the breaker state ("closed", "half-open" or "open").
func (d *Degrading) State() string {
	return d.cb.State().String()
}

func (d *Degrading) Get(ctx context.Context, key string) ([]forecast.Point, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	res, err := d.cb.Execute(func() (interface{}, error) {
		points, found, err := d.backend.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		return getResult{points: points, found: found}, nil
	})
	if err != nil {
		if callerDone(ctx, err) {
			return nil, false, err
		}
		return nil, false, d.degrade("get", key, err)
	}
	r := res.(getResult)
	return r.points, r.found, nil
}

func (d *Degrading) Set(ctx context.Context, key string, points []forecast.Point, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := d.cb.Execute(func() (interface{}, error) {
		return nil, d.backend.Set(ctx, key, points, ttl)
	})
	if err != nil {
		if callerDone(ctx, err) {
			return err
		}
		return d.degrade("set", key, err)
	}
	return nil
}

func (d *Degrading) Claim(ctx context.Context, key, owner string, ttl time.Duration) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	res, err := d.cb.Execute(func() (interface{}, error) {
		holder, claimed, err := d.backend.Claim(ctx, key, owner, ttl)
		if err != nil {
			return nil, err
		}
		return claimResult{holder: holder, claimed: claimed}, nil
	})
	if err != nil {
		if callerDone(ctx, err) {
			return "", false, err
		}
		if err := d.degrade("claim", key, err); err != nil {
			return "", false, err
		}
		return owner, true, nil
	}
	r := res.(claimResult)
	return r.holder, r.claimed, nil
}

func (d *Degrading) Release(ctx context.Context, key, owner string) error {
	_, err := d.cb.Execute(func() (interface{}, error) {
		return nil, d.backend.Release(ctx, key, owner)
	})
	if err != nil {
		if callerDone(ctx, err) {
			return err
		}
		return d.degrade("release", key, err)
	}
	return nil
}

// degrade logs and counts a backend failure. It returns nil unless strict.
func (d *Degrading) degrade(op, key string, err error) error {
	if d.opts.OnError != nil {
		d.opts.OnError(op)
	}

	connErr := &forecast.ConnectivityError{Component: "cache", Err: err}
	if d.opts.Strict {
		d.logger.Error("cache operation failed", "op", op, "cache_key", key, "error", err)
		return connErr
	}

	d.logger.Warn("cache unavailable, degrading", "op", op, "cache_key", key, "error", err)
	return nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// callerDone reports whether err comes from the caller's own context rather
// than from the backend.
func callerDone(ctx context.Context, err error) bool {
	return ctx.Err() != nil && isContextErr(err)
}
