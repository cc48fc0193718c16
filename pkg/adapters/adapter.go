// Package adapters extracts hourly power-load readings from external sources
// and normalizes them into a common Reading slice for the ETL pipeline.
//
// Available adapters:
//   - CSVAdapter: a local or remote CSV file, such as the OPSD time series
//   - HTTPAdapter: any REST API with JSON responses, extracted with gjson paths
//   - PrometheusAdapter: a query_range call against Prometheus or VictoriaMetrics
//
// Adapters only pull and shape raw data. Aggregation to daily values and
// persistence happen in the pipeline package.
package adapters

import (
	"context"
	"sort"
	"time"
)

// Reading is one hourly load observation.
type Reading struct {
	Timestamp time.Time
	LoadMW    float64
}

// Window bounds an extraction. A zero Start or End leaves that side open.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls in [Start, End).
func (w Window) Contains(t time.Time) bool {
	if !w.Start.IsZero() && t.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && !t.Before(w.End) {
		return false
	}
	return true
}

// Adapter is implemented by every load source.
//
// Collect is synchronous and must respect context cancellation. Readings are
// returned in UTC, sorted by timestamp.
type Adapter interface {
	Collect(ctx context.Context, window Window) ([]Reading, error)

	// Name returns a short identifier such as "csv" or "prometheus".
	Name() string
}

func sortReadings(readings []Reading) {
	sort.Slice(readings, func(i, j int) bool {
		return readings[i].Timestamp.Before(readings[j].Timestamp)
	})
}
