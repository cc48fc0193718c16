package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/HatiCode/loadcast/pkg/cache"
	"github.com/HatiCode/loadcast/pkg/forecast"
	"github.com/HatiCode/loadcast/pkg/storage"
)

// Predictor is the read-only model the API serves. *models.Handle implements it.
type Predictor interface {
	Available() bool
	Predict(ctx context.Context, days int) ([]forecast.Point, error)
}

// Job is one forecast computation handed to the pool.
type Job struct {
	RequestID   string
	HorizonDays int
	CacheKey    string
	EnqueuedAt  time.Time
}

// Outcome is what a unit of background work reports back to the pool.
type Outcome struct {
	Job      Job
	Status   forecast.Status
	Points   int
	Duration time.Duration
	Err      error
}

// Worker runs one job end to end:
//
//	ledger processing → predict → store append → cache set → ledger done
//
// Any failure marks the ledger record failed and leaves the cache untouched.
// The in-flight marker is released on every path.
type Worker struct {
	model    Predictor
	store    storage.ForecastStore
	ledger   storage.Ledger
	cache    cache.Cache
	cacheTTL time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker.
func NewWorker(
	model Predictor,
	store storage.ForecastStore,
	ledger storage.Ledger,
	c cache.Cache,
	cacheTTL, timeout time.Duration,
	logger *slog.Logger,
) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if cacheTTL <= 0 {
		cacheTTL = cache.DefaultTTL
	}
	return &Worker{
		model:    model,
		store:    store,
		ledger:   ledger,
		cache:    c,
		cacheTTL: cacheTTL,
		timeout:  timeout,
		logger:   logger,
	}
}

// Run executes job. It never panics; a panic inside the model is reported
// as a *forecast.ComputationError.
func (w *Worker) Run(ctx context.Context, job Job) (out Outcome) {
	start := time.Now()
	out = Outcome{Job: job, Status: forecast.StatusFailed}
	log := w.logger.With(
		"request_id", job.RequestID,
		"horizon_days", job.HorizonDays,
		"cache_key", job.CacheKey,
	)

	defer func() {
		if r := recover(); r != nil {
			out.Status = forecast.StatusFailed
			out.Err = &forecast.ComputationError{HorizonDays: job.HorizonDays, Err: fmt.Errorf("panic: %v", r)}
		}
		if out.Status == forecast.StatusFailed {
			w.setStatus(ctx, log, job.RequestID, forecast.StatusFailed, out.Err)
		}
		w.release(ctx, log, job)
		out.Duration = time.Since(start)
	}()

	w.setStatus(ctx, log, job.RequestID, forecast.StatusProcessing, nil)

	points, err := w.predict(ctx, job.HorizonDays)
	if err != nil {
		out.Err = err
		return out
	}
	out.Points = len(points)

	if err := w.store.Append(ctx, job.RequestID, points); err != nil {
		out.Err = &forecast.ConnectivityError{Component: "store", Err: err}
		return out
	}

	if err := w.cache.Set(ctx, job.CacheKey, points, w.cacheTTL); err != nil {
		out.Err = fmt.Errorf("cache forecast: %w", err)
		return out
	}

	out.Status = forecast.StatusDone
	w.setStatus(ctx, log, job.RequestID, forecast.StatusDone, nil)
	return out
}

func (w *Worker) predict(ctx context.Context, days int) ([]forecast.Point, error) {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	points, err := w.model.Predict(ctx, days)
	if err != nil {
		return nil, &forecast.ComputationError{HorizonDays: days, Err: err}
	}
	if len(points) != days {
		return nil, &forecast.ComputationError{
			HorizonDays: days,
			Err:         fmt.Errorf("model returned %d points", len(points)),
		}
	}
	return points, nil
}

// setStatus records a ledger transition. Ledger failures are logged only:
// the forecast itself is already durable or already lost.
func (w *Worker) setStatus(ctx context.Context, log *slog.Logger, id string, status forecast.Status, cause error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := w.ledger.UpdateStatus(ctx, id, status, msg); err != nil {
		log.Warn("failed to update request status", "status", status, "error", err)
	}
}

func (w *Worker) release(ctx context.Context, log *slog.Logger, job Job) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := w.cache.Release(ctx, job.CacheKey, job.RequestID); err != nil {
		log.Warn("failed to release in-flight marker", "error", err)
	}
}

// outcomeReason maps a failure to a low-cardinality metric label.
func outcomeReason(err error) string {
	var (
		comp *forecast.ComputationError
		conn *forecast.ConnectivityError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &conn):
		return conn.Component + "_unreachable"
	case errors.As(err, &comp):
		return "predict_failed"
	default:
		return "unknown"
	}
}
