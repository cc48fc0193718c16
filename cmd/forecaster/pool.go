package main

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/HatiCode/loadcast/cmd/forecaster/metrics"
	"github.com/HatiCode/loadcast/pkg/forecast"
)

// RunFunc executes one job.
type RunFunc func(ctx context.Context, job Job) Outcome

// Pool runs jobs on a fixed number of goroutines fed by a bounded queue.
// Submit never blocks: a full queue is reported as forecast.ErrBusy.
type Pool struct {
	workers int
	jobs    chan Job
	run     RunFunc
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	closed bool
	group  *errgroup.Group
	cancel context.CancelFunc
}

// NewPool creates a pool; call Start before submitting.
func NewPool(workers, queueSize int, run RunFunc, logger *slog.Logger, m *metrics.Metrics) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &Pool{
		workers: workers,
		jobs:    make(chan Job, queueSize),
		run:     run,
		logger:  logger,
		metrics: m,
	}
}

// Start launches the workers. They stop when ctx is canceled or after Stop.
func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)

	p.mu.Lock()
	p.group = g
	p.cancel = cancel
	p.mu.Unlock()

	for i := range p.workers {
		g.Go(func() error {
			p.loop(ctx, i)
			return nil
		})
	}
	p.logger.Info("worker pool started", "workers", p.workers, "queue_size", cap(p.jobs))
}

// Submit enqueues job, or returns forecast.ErrBusy when the queue is full
// or the pool is stopping.
func (p *Pool) Submit(job Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return forecast.ErrBusy
	}

	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}

	select {
	case p.jobs <- job:
		if p.metrics != nil {
			p.metrics.SetQueueDepth(len(p.jobs))
		}
		return nil
	default:
		return forecast.ErrBusy
	}
}

// Stop refuses new jobs and waits for queued ones to finish. After timeout
// the running units are canceled.
func (p *Pool) Stop(timeout time.Duration) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobs)
	g, cancel := p.group, p.cancel
	p.mu.Unlock()

	if g == nil {
		return nil
	}
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool drained")
		return nil
	case <-time.After(timeout):
		cancel()
		<-done
		return errors.New("worker pool stop timed out, pending jobs abandoned")
	}
}

func (p *Pool) loop(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			if p.metrics != nil {
				p.metrics.SetQueueDepth(len(p.jobs))
			}
			p.record(id, p.run(ctx, job))
		}
	}
}

// record logs and counts an Outcome.
func (p *Pool) record(worker int, out Outcome) {
	log := p.logger.With(
		"worker", worker,
		"request_id", out.Job.RequestID,
		"horizon_days", out.Job.HorizonDays,
		"cache_key", out.Job.CacheKey,
		"duration_ms", out.Duration.Milliseconds(),
		"queued_ms", time.Since(out.Job.EnqueuedAt).Milliseconds()-out.Duration.Milliseconds(),
	)

	if p.metrics != nil {
		p.metrics.RecordCompute(string(out.Status), out.Duration.Seconds())
	}

	if out.Status != forecast.StatusDone {
		if p.metrics != nil {
			p.metrics.RecordError("worker", outcomeReason(out.Err))
		}
		log.Error("forecast computation failed", "error", out.Err)
		return
	}

	log.Info("forecast computed", "points", out.Points)
}
