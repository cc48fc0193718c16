package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/HatiCode/loadcast/cmd/forecaster/metrics"
	"github.com/HatiCode/loadcast/pkg/forecast"
	"github.com/HatiCode/loadcast/pkg/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

var origin = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

// flatModel predicts a constant load. block, when set, holds Predict until closed.
type flatModel struct {
	level float64
	calls atomic.Int32
	block chan struct{}
	err   error
	panic bool
}

func (m *flatModel) Name() string { return "flat" }

func (m *flatModel) Train(context.Context, models.FeatureFrame) error { return nil }

func (m *flatModel) Predict(ctx context.Context, steps int) (models.Forecast, error) {
	m.calls.Add(1)
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return models.Forecast{}, ctx.Err()
		}
	}
	if m.panic {
		panic("singular matrix")
	}
	if m.err != nil {
		return models.Forecast{}, m.err
	}

	f := models.Forecast{
		Values: make([]float64, steps),
		Lower:  make([]float64, steps),
		Upper:  make([]float64, steps),
	}
	for i := range steps {
		f.Values[i] = m.level
		f.Lower[i] = m.level - 1000
		f.Upper[i] = m.level + 1000
	}
	return f, nil
}

func handleFor(m models.Model) *models.Handle {
	return models.NewHandleFromModel(m, origin)
}

// failingLedger fails every call and records attempted status updates.
type failingLedger struct {
	mu      sync.Mutex
	updates []forecast.Status
}

var errLedgerDown = errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")

func (l *failingLedger) CreateRequest(context.Context, forecast.Record) error { return errLedgerDown }

func (l *failingLedger) UpdateStatus(_ context.Context, _ string, s forecast.Status, _ string) error {
	l.mu.Lock()
	l.updates = append(l.updates, s)
	l.mu.Unlock()
	return errLedgerDown
}

func (l *failingLedger) GetRequest(context.Context, string) (forecast.Record, error) {
	return forecast.Record{}, errLedgerDown
}

// recordingSubmitter collects jobs without running them.
type recordingSubmitter struct {
	mu   sync.Mutex
	jobs []Job
	err  error
}

func (s *recordingSubmitter) Submit(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.jobs = append(s.jobs, job)
	return nil
}

func (s *recordingSubmitter) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}
