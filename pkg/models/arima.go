package models

import (
	"context"
	"fmt"
)

// ARIMAModel forecasts daily load with an AutoRegressive Integrated Moving Average.
//
// ARIMA(p,d,q) where:
//   - p: AutoRegressive order (how many past days to use)
//   - d: Differencing order (trend removal: 0=none, 1=linear, 2=quadratic)
//   - q: Moving Average order (how many past errors to use)
//
// It is safe for concurrent Predict calls after training.
type ARIMAModel struct {
	armaEstimator
}

// NewARIMAModel creates an ARIMA model.
//
// All-zero orders select ARIMA(1,1,1); otherwise every order is taken as
// given, so d=0 fits an ARMA(p,q) on the raw series.
// Returns an error if any order is negative or d > 2.
func NewARIMAModel(p, d, q int, intervalWidth float64) (*ARIMAModel, error) {
	if d < 0 || d > 2 {
		return nil, fmt.Errorf("d must be in range [0, 2], got %d", d)
	}
	if p < 0 || q < 0 {
		return nil, fmt.Errorf("p and q must be >= 0, got p=%d q=%d", p, q)
	}

	m := &ARIMAModel{}
	p, d, q = defaultOrders(p, d, q)
	m.order = order{p: p, d: d, q: q}
	m.z = zScore(intervalWidth)
	return m, nil
}

// defaultOrders maps an unset (all-zero) order to (1,1,1).
func defaultOrders(p, d, q int) (int, int, int) {
	if p == 0 && d == 0 && q == 0 {
		return 1, 1, 1
	}
	return p, d, q
}

// Name returns the model name with ARIMA parameters.
func (m *ARIMAModel) Name() string {
	return fmt.Sprintf("arima(%d,%d,%d)", m.p, m.d, m.q)
}

// Train differences the history d times, fits AR coefficients with
// Yule-Walker and MA coefficients from the AR residuals.
// Needs at least max(p+d, q+d, 10) days.
func (m *ARIMAModel) Train(ctx context.Context, history FeatureFrame) error {
	return m.train(ctx, history, max(m.p+m.d, m.q+m.d, 10), m.Name())
}
