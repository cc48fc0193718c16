package models

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
)

// baselineMinDays is two full weeks, enough to see every weekday twice.
const baselineMinDays = 14

// BaselineModel forecasts daily load as a linear trend plus a day-of-week
// offset.
//
// Algorithm:
//  1. Fit a least-squares line through the history (level and slope per day)
//  2. For each weekday, average the residual of the days falling on it
//  3. Forecast day i as level + slope*(n-1+i) + weekday offset, clamped at zero
//  4. Interval bounds come from the standard deviation of what remains
//     after removing trend and weekday offsets
//
// Works best with at least eight weeks of history. Holidays are not modeled.
type BaselineModel struct {
	z float64

	mu             sync.RWMutex
	trained        bool
	intercept      float64
	slope          float64
	n              int
	lastDow        int
	weekday        [7]float64
	residualStdDev float64
}

// NewBaselineModel creates a baseline model producing intervals of the given coverage.
func NewBaselineModel(intervalWidth float64) *BaselineModel {
	return &BaselineModel{z: zScore(intervalWidth)}
}

// Name returns the model identifier.
func (m *BaselineModel) Name() string {
	return "baseline"
}

// Train fits trend and weekday offsets. Rows need "value" and "dow".
func (m *BaselineModel) Train(ctx context.Context, history FeatureFrame) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	values, err := extractValues(history)
	if err != nil {
		return err
	}
	if len(values) < baselineMinDays {
		return fmt.Errorf("need at least %d days for baseline, got %d", baselineMinDays, len(values))
	}

	dows := make([]int, len(values))
	for i, row := range history.Rows {
		d, ok := row["dow"]
		if !ok || d < 0 || d > 6 {
			return fmt.Errorf("row %d missing or invalid 'dow' field", i)
		}
		dows[i] = int(d)
	}

	intercept, slope := linearFit(values)

	var sums [7]float64
	var counts [7]int
	for i, v := range values {
		sums[dows[i]] += v - (intercept + slope*float64(i))
		counts[dows[i]]++
	}

	var weekday [7]float64
	for d := range weekday {
		if counts[d] > 0 {
			weekday[d] = sums[d] / float64(counts[d])
		}
	}

	residuals := make([]float64, len(values))
	for i, v := range values {
		residuals[i] = v - (intercept + slope*float64(i)) - weekday[dows[i]]
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.trained = true
	m.intercept = intercept
	m.slope = slope
	m.n = len(values)
	m.lastDow = dows[len(dows)-1]
	m.weekday = weekday
	m.residualStdDev = math.Sqrt(variance(residuals))

	return nil
}

// Predict forecasts the steps days following the last training day.
func (m *BaselineModel) Predict(ctx context.Context, steps int) (Forecast, error) {
	if ctx.Err() != nil {
		return Forecast{}, ctx.Err()
	}
	if steps <= 0 {
		return Forecast{}, fmt.Errorf("steps must be > 0, got %d", steps)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.trained {
		return Forecast{}, errors.New("model not trained, call Train() first")
	}

	values := make([]float64, steps)
	for i := range values {
		x := float64(m.n - 1 + i + 1)
		dow := (m.lastDow + i + 1) % 7
		values[i] = math.Max(0, m.intercept+m.slope*x+m.weekday[dow])
	}

	lower, upper := bounds(values, m.residualStdDev, m.z, false)
	return Forecast{Values: values, Lower: lower, Upper: upper}, nil
}

// linearFit returns the least-squares intercept and slope of values against their index.
func linearFit(values []float64) (intercept, slope float64) {
	n := float64(len(values))
	if n == 0 {
		return 0, 0
	}

	var sumX, sumY, sumXY, sumX2 float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}

	denominator := n*sumX2 - sumX*sumX
	if denominator == 0 {
		return sumY / n, 0
	}

	slope = (n*sumXY - sumX*sumY) / denominator
	intercept = (sumY - slope*sumX) / n
	return intercept, slope
}
