package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/HatiCode/loadcast/cmd/forecaster/metrics"
	"github.com/HatiCode/loadcast/pkg/cache"
	"github.com/HatiCode/loadcast/pkg/forecast"
	"github.com/HatiCode/loadcast/pkg/storage"
)

// Submitter accepts jobs without blocking. *Pool implements it.
type Submitter interface {
	Submit(job Job) error
}

// Dispatcher answers forecast requests from the cache, or hands the
// computation to the pool and acknowledges immediately.
type Dispatcher struct {
	model    Predictor
	cache    cache.Cache
	ledger   storage.Ledger
	pool     Submitter
	claimTTL time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
	newID    func() string
}

// NewDispatcher creates a Dispatcher. claimTTL bounds how long an in-flight
// marker survives a crashed worker.
func NewDispatcher(
	model Predictor,
	c cache.Cache,
	ledger storage.Ledger,
	pool Submitter,
	claimTTL time.Duration,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if claimTTL <= 0 {
		claimTTL = cache.DefaultClaimTTL
	}
	return &Dispatcher{
		model:    model,
		cache:    c,
		ledger:   ledger,
		pool:     pool,
		claimTTL: claimTTL,
		logger:   logger,
		metrics:  m,
		newID:    uuid.NewString,
	}
}

// Dispatch validates req and returns either the cached forecast or an
// acknowledgement carrying the id of the computation that will produce it.
//
// Errors: *forecast.ValidationError, forecast.ErrModelUnavailable,
// forecast.ErrBusy, or a *forecast.ConnectivityError for the ledger or a
// strict cache.
func (d *Dispatcher) Dispatch(ctx context.Context, req forecast.Request) (forecast.Result, error) {
	if err := req.Validate(); err != nil {
		d.record("invalid")
		return forecast.Result{}, err
	}

	if !d.model.Available() {
		d.record("unavailable")
		return forecast.Result{}, forecast.ErrModelUnavailable
	}

	key := req.CacheKey()
	log := d.logger.With("horizon_days", req.HorizonDays, "cache_key", key)

	points, found, err := d.cache.Get(ctx, key)
	if err != nil {
		d.record("error")
		return forecast.Result{}, err
	}
	if d.metrics != nil {
		d.metrics.RecordCacheLookup(found)
	}
	if found {
		d.record("cached")
		log.Debug("serving cached forecast")
		return forecast.Result{Disposition: forecast.Cached, CacheKey: key, Points: points}, nil
	}

	id := d.newID()
	holder, claimed, err := d.cache.Claim(ctx, key, id, d.claimTTL)
	if err != nil {
		d.record("error")
		return forecast.Result{}, err
	}
	if !claimed {
		d.record("duplicate")
		log.Debug("forecast already in progress", "request_id", holder)
		return forecast.Result{Disposition: forecast.Accepted, CacheKey: key, RequestID: holder}, nil
	}

	log = log.With("request_id", id)

	rec := forecast.Record{
		ID:          id,
		HorizonDays: req.HorizonDays,
		CacheKey:    key,
		Status:      forecast.StatusPending,
	}
	if err := d.ledger.CreateRequest(ctx, rec); err != nil {
		d.release(key, id, log)
		d.record("error")
		log.Error("failed to record forecast request", "error", err)
		return forecast.Result{}, &forecast.ConnectivityError{Component: "ledger", Err: err}
	}

	job := Job{RequestID: id, HorizonDays: req.HorizonDays, CacheKey: key, EnqueuedAt: time.Now()}
	if err := d.pool.Submit(job); err != nil {
		d.fail(id, err, log)
		d.release(key, id, log)
		d.record("busy")
		log.Warn("forecast queue full, rejecting request")
		if errors.Is(err, forecast.ErrBusy) {
			return forecast.Result{}, forecast.ErrBusy
		}
		return forecast.Result{}, err
	}

	d.record("accepted")
	log.Info("forecast computation dispatched")
	return forecast.Result{Disposition: forecast.Accepted, CacheKey: key, RequestID: id}, nil
}

func (d *Dispatcher) fail(id string, cause error, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := d.ledger.UpdateStatus(ctx, id, forecast.StatusFailed, cause.Error()); err != nil {
		log.Warn("failed to update request status", "error", err)
	}
}

func (d *Dispatcher) release(key, id string, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := d.cache.Release(ctx, key, id); err != nil {
		log.Warn("failed to release in-flight marker", "error", err)
	}
}

func (d *Dispatcher) record(outcome string) {
	if d.metrics != nil {
		d.metrics.RecordDispatch(outcome)
	}
}
