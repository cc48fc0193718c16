// Package storage persists computed forecasts, the request ledger and the
// daily load history the models train on.
package storage

import (
	"context"

	"github.com/HatiCode/loadcast/pkg/forecast"
)

// ForecastStore is the durable table of forecast points.
type ForecastStore interface {
	// Append writes points tagged with requestID in one transaction.
	// Appending is not idempotent: a second run adds a second set of rows.
	Append(ctx context.Context, requestID string, points []forecast.Point) error

	// List returns stored points ordered by date, then insertion order.
	List(ctx context.Context, page forecast.Page) ([]forecast.Point, error)
}

// Ledger tracks the lifecycle of forecast requests.
type Ledger interface {
	CreateRequest(ctx context.Context, rec forecast.Record) error
	UpdateStatus(ctx context.Context, id string, status forecast.Status, errMsg string) error

	// GetRequest returns forecast.ErrNotFound for unknown ids.
	GetRequest(ctx context.Context, id string) (forecast.Record, error)
}

// DailyLoadRepository holds the aggregated ETL output.
type DailyLoadRepository interface {
	// ReplaceDailyLoad swaps the whole table for rows atomically.
	ReplaceDailyLoad(ctx context.Context, rows []forecast.DailyLoad) error
	ListDailyLoad(ctx context.Context) ([]forecast.DailyLoad, error)
}

// Store is implemented by every backend.
type Store interface {
	ForecastStore
	Ledger
	DailyLoadRepository
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
