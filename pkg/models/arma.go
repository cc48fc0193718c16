package models

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// order holds the (S)ARIMA orders. Plain ARIMA leaves the seasonal part zero.
type order struct {
	p, d, q    int
	P, D, Q, s int
}

func (o order) seasonal() bool {
	return o.s > 0 && (o.P > 0 || o.D > 0 || o.Q > 0)
}

// armaFit is the state left by fitting an order to a daily series.
type armaFit struct {
	ar, sar []float64
	ma, sma []float64
	recent  []float64 // newest observations, newest last
	errs    []float64 // newest residuals, newest last
	sigma   float64
}

func fitARMA(values []float64, o order) *armaFit {
	series := lagDiff(values, 1, o.d)
	if o.seasonal() {
		series = lagDiff(series, o.s, o.D)
	}

	mu := mean(series)
	centered := make([]float64, len(series))
	for i, v := range series {
		centered[i] = v - mu
	}

	f := &armaFit{ar: arCoefficients(centered, o.p, 1, 0.5)}
	if o.seasonal() {
		f.sar = arCoefficients(centered, o.P, o.s, 0.3)
	}

	residuals := arResiduals(centered, f.ar, f.sar, o.s)
	f.ma = maCoefficients(residuals, o.q, 1)
	if o.seasonal() {
		f.sma = maCoefficients(residuals, o.Q, o.s)
	}

	f.recent = tail(values, max(o.p, o.s*o.P, 1))
	f.errs = tail(residuals, max(o.q, o.s*o.Q))
	f.sigma = rmsError(residuals)
	return f
}

// forecast projects steps days ahead. The first step applies the fitted
// terms around the last observation; later steps decay towards it, with a
// damped echo of the previous season when P > 0.
func (f *armaFit) forecast(o order, steps int) []float64 {
	base := 0.0
	if len(f.recent) > 0 {
		base = f.recent[len(f.recent)-1]
	}

	out := make([]float64, steps)
	for t := range out {
		var pred float64
		if t == 0 {
			shock := lagged(f.ar, f.recent, 0, 1) +
				lagged(f.sar, f.recent, o.s, o.s) +
				lagged(f.ma, f.errs, 0, 1) +
				lagged(f.sma, f.errs, o.s, o.s)
			pred = base + shock*0.1
		} else {
			damp := 1 / (1 + float64(t)*0.1)
			pred = base*0.9 + out[t-1]*0.1
			if o.P > 0 && o.s > 0 && t >= o.s {
				pred += (out[t-o.s] - base) * 0.3 * damp
			}
			pred = pred*damp + base*(1-damp)
		}
		out[t] = clampPrediction(pred, base)
	}
	return out
}

// lagged sums coef[i] * recent at lag first+i*stride, counted back from the
// newest value. Lags older than recent are ignored.
func lagged(coef, recent []float64, first, stride int) float64 {
	var sum float64
	for i, c := range coef {
		idx := len(recent) - 1 - first - i*stride
		if idx < 0 {
			break
		}
		sum += c * recent[idx]
	}
	return sum
}

// clampPrediction keeps a step within [0, 2*base+100] so a poorly fit model cannot run away.
func clampPrediction(pred, base float64) float64 {
	if pred < 0 {
		return 0
	}
	if limit := base*2 + 100; pred > limit {
		return limit
	}
	return pred
}

// armaEstimator carries the fitting and prediction shared by ARIMAModel and SARIMAModel.
type armaEstimator struct {
	order
	z float64

	mu  sync.RWMutex
	fit *armaFit
}

func (e *armaEstimator) train(ctx context.Context, history FeatureFrame, minDays int, name string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	values, err := extractValues(history)
	if err != nil {
		return err
	}
	if len(values) < minDays {
		return fmt.Errorf("need at least %d days for %s, got %d", minDays, name, len(values))
	}

	fit := fitARMA(values, e.order)

	e.mu.Lock()
	e.fit = fit
	e.mu.Unlock()
	return nil
}

// Predict forecasts the steps days following the last training day.
// The interval widens with the square root of the step index.
func (e *armaEstimator) Predict(ctx context.Context, steps int) (Forecast, error) {
	if ctx.Err() != nil {
		return Forecast{}, ctx.Err()
	}
	if steps <= 0 {
		return Forecast{}, fmt.Errorf("steps must be > 0, got %d", steps)
	}

	e.mu.RLock()
	fit := e.fit
	e.mu.RUnlock()

	if fit == nil {
		return Forecast{}, errors.New("model not trained, call Train() first")
	}

	values := fit.forecast(e.order, steps)
	lower, upper := bounds(values, fit.sigma, e.z, true)
	return Forecast{Values: values, Lower: lower, Upper: upper}, nil
}
