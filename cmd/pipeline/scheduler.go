package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// scheduler reruns the pipeline on a cron expression or a fixed interval.
type scheduler struct {
	s      *gocron.Scheduler
	logger *slog.Logger
}

// newScheduler registers run under schedule, which is either a Go duration
// ("24h") or a five-field cron expression ("0 3 * * *"), evaluated in UTC.
// Runs never overlap: a tick that arrives while a run is active is skipped.
func newScheduler(ctx context.Context, schedule string, run func(context.Context) error, logger *slog.Logger) (*scheduler, error) {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	if d, err := time.ParseDuration(schedule); err == nil {
		if d <= 0 {
			return nil, fmt.Errorf("schedule interval must be > 0, got %v", d)
		}
		s.Every(d).StartImmediately()
	} else {
		s.Cron(schedule)
	}

	_, err := s.Do(func() {
		start := time.Now()
		logger.Info("scheduled pipeline run starting")
		if err := run(ctx); err != nil {
			logger.Error("scheduled pipeline run failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
			return
		}
		logger.Info("scheduled pipeline run finished", "duration_ms", time.Since(start).Milliseconds())
	})
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	return &scheduler{s: s, logger: logger}, nil
}

// Start runs the scheduler in the background.
func (s *scheduler) Start() {
	s.s.StartAsync()
	if _, next := s.s.NextRun(); !next.IsZero() {
		s.logger.Info("pipeline scheduled", "next_run", next)
	}
}

// Stop cancels future runs.
func (s *scheduler) Stop() {
	s.s.Stop()
}
