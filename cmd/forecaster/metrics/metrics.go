// Package metrics provides Prometheus instrumentation for the forecast API.
//
// Metrics exposed:
//   - loadcast_cache_requests_total: cache lookups by result (hit, miss)
//   - loadcast_cache_errors_total: degraded cache operations by op
//   - loadcast_dispatch_total: dispatch outcomes (cached, accepted, duplicate, busy, invalid, unavailable, error)
//   - loadcast_compute_seconds: duration of background forecast units
//   - loadcast_compute_total: background units by outcome (done, failed)
//   - loadcast_queue_depth: jobs waiting for a worker
//   - loadcast_errors_total: errors by component and reason
//   - loadcast_model_available: 1 when the model artifact is loaded
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the forecaster.
type Metrics struct {
	CacheRequests  *prometheus.CounterVec
	CacheErrors    *prometheus.CounterVec
	Dispatch       *prometheus.CounterVec
	ComputeSeconds *prometheus.HistogramVec
	ComputeTotal   *prometheus.CounterVec
	QueueDepth     prometheus.Gauge
	ErrorsTotal    *prometheus.CounterVec
	ModelAvailable prometheus.Gauge
}

// New creates all metrics and registers them with reg.
// A nil reg registers with the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		CacheRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loadcast_cache_requests_total",
			Help: "Forecast cache lookups by result",
		}, []string{"result"}),

		CacheErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loadcast_cache_errors_total",
			Help: "Cache operations that failed and were degraded",
		}, []string{"op"}),

		Dispatch: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loadcast_dispatch_total",
			Help: "Forecast requests by dispatch outcome",
		}, []string{"outcome"}),

		ComputeSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "loadcast_compute_seconds",
			Help:    "Time spent computing and persisting a forecast",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),

		ComputeTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loadcast_compute_total",
			Help: "Background forecast computations by outcome",
		}, []string{"outcome"}),

		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "loadcast_queue_depth",
			Help: "Forecast jobs waiting for a worker",
		}),

		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loadcast_errors_total",
			Help: "Total number of errors by component and reason",
		}, []string{"component", "reason"}),

		ModelAvailable: factory.NewGauge(prometheus.GaugeOpts{
			Name: "loadcast_model_available",
			Help: "1 when the forecast model is loaded, 0 otherwise",
		}),
	}
}

// RecordCacheLookup counts a cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheRequests.WithLabelValues(result).Inc()
}

// RecordCacheError counts a degraded cache operation.
func (m *Metrics) RecordCacheError(op string) {
	m.CacheErrors.WithLabelValues(op).Inc()
}

// RecordDispatch counts a dispatch outcome.
func (m *Metrics) RecordDispatch(outcome string) {
	m.Dispatch.WithLabelValues(outcome).Inc()
}

// RecordCompute records a finished background unit.
func (m *Metrics) RecordCompute(outcome string, seconds float64) {
	m.ComputeSeconds.WithLabelValues(outcome).Observe(seconds)
	m.ComputeTotal.WithLabelValues(outcome).Inc()
}

// SetQueueDepth sets the number of queued jobs.
func (m *Metrics) SetQueueDepth(n int) {
	m.QueueDepth.Set(float64(n))
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, reason string) {
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}

// SetModelAvailable reports whether the model handle is usable.
func (m *Metrics) SetModelAvailable(ok bool) {
	v := 0.0
	if ok {
		v = 1
	}
	m.ModelAvailable.Set(v)
}
