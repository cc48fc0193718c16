package models

import (
	"context"
	"errors"
	"fmt"
)

// DefaultSeasonalPeriod is one week of daily observations.
const DefaultSeasonalPeriod = 7

// SARIMAModel forecasts daily load with a Seasonal ARIMA.
//
// SARIMA(p,d,q)(P,D,Q,s) where:
//   - p, d, q: Non-seasonal AutoRegressive, Differencing and Moving Average orders
//   - P, D, Q: Seasonal AutoRegressive, Differencing and Moving Average orders
//   - s: Seasonal period in days (7 for the weekly cycle of power demand)
type SARIMAModel struct {
	armaEstimator
}

// NewSARIMAModel creates a SARIMA model.
//
// All-zero non-seasonal orders select (1,1,1); otherwise they are taken as
// given. A zero period with any seasonal order selects DefaultSeasonalPeriod.
//
// Example: SARIMA(1,1,1)(1,1,1,7) for daily load with a weekly cycle.
func NewSARIMAModel(p, d, q, P, D, Q, s int, intervalWidth float64) (*SARIMAModel, error) {
	if d < 0 || d > 2 {
		return nil, fmt.Errorf("d must be in range [0, 2], got %d", d)
	}
	if D < 0 || D > 1 {
		return nil, fmt.Errorf("D must be in range [0, 1], got %d", D)
	}
	if p < 0 || q < 0 || P < 0 || Q < 0 || s < 0 {
		return nil, errors.New("orders and period must be >= 0")
	}

	if s == 0 && (P > 0 || D > 0 || Q > 0) {
		s = DefaultSeasonalPeriod
	}

	p, d, q = defaultOrders(p, d, q)
	m := &SARIMAModel{}
	m.order = order{
		p: p, d: d, q: q,
		P: P, D: D, Q: Q, s: s,
	}
	m.z = zScore(intervalWidth)
	return m, nil
}

func (m *SARIMAModel) Name() string {
	if !m.seasonal() {
		return fmt.Sprintf("sarima(%d,%d,%d)", m.p, m.d, m.q)
	}
	return fmt.Sprintf("sarima(%d,%d,%d)(%d,%d,%d,%d)", m.p, m.d, m.q, m.P, m.D, m.Q, m.s)
}

// Train fits the non-seasonal terms as ARIMA does, after an extra seasonal
// difference at lag s, and adds seasonal AR and MA terms at multiples of s.
//
// Needs at least max(p+d, q+d, s*(P+D), s*(Q+D), 2*s, 20) days.
func (m *SARIMAModel) Train(ctx context.Context, history FeatureFrame) error {
	minDays := max(m.p+m.d, m.q+m.d, 20)
	if m.seasonal() {
		minDays = max(minDays, m.s*(m.P+m.D), m.s*(m.Q+m.D), 2*m.s)
	}
	return m.train(ctx, history, minDays, m.Name())
}
