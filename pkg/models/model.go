// Package models provides the daily load forecasting models and the
// read-only Handle the forecaster serves predictions from.
package models

import "context"

// FeatureFrame is a table of numeric features, one row per observed day.
// Rows carry at least "value"; builders add "dow" (0=Sunday) and "timestamp"
// (Unix seconds at midnight UTC).
type FeatureFrame struct {
	Rows []map[string]float64
}

// Forecast is the raw output of a model for steps consecutive days after
// the last training day. Lower and Upper have the same length as Values.
type Forecast struct {
	Values []float64
	Lower  []float64
	Upper  []float64
}

// Model is a trainable daily forecaster.
//
// Train fits the model on history and must be called before Predict.
// Predict must be safe for concurrent use after training and, for a given
// trained state, return the same values for the same number of steps.
type Model interface {
	Name() string
	Train(ctx context.Context, history FeatureFrame) error
	Predict(ctx context.Context, steps int) (Forecast, error)
}
