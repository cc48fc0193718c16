package models

import (
	"errors"
	"math"
)

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// variance is the population variance of xs.
func variance(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	mu := mean(xs)
	var ss float64
	for _, x := range xs {
		ss += (x - mu) * (x - mu)
	}
	return ss / float64(len(xs))
}

// rmsError is the sample standard deviation of zero-mean residuals.
func rmsError(residuals []float64) float64 {
	if len(residuals) < 2 {
		return 0
	}
	var ss float64
	for _, r := range residuals {
		ss += r * r
	}
	return math.Sqrt(ss / float64(len(residuals)-1))
}

// lagDiff differences xs at the given lag, times times over. Differencing
// stops early once the series is no longer than the lag.
func lagDiff(xs []float64, lag, times int) []float64 {
	out := append([]float64(nil), xs...)
	for range times {
		if lag <= 0 || len(out) <= lag {
			break
		}
		next := make([]float64, len(out)-lag)
		for i := range next {
			next[i] = out[i+lag] - out[i]
		}
		out = next
	}
	return out
}

// acf is the sample autocorrelation of xs at lag.
func acf(xs []float64, lag int) float64 {
	if lag < 0 || lag >= len(xs) {
		return 0
	}
	mu := mean(xs)
	var c0, ck float64
	for i, x := range xs {
		c0 += (x - mu) * (x - mu)
		if i+lag < len(xs) {
			ck += (x - mu) * (xs[i+lag] - mu)
		}
	}
	if c0 == 0 {
		return 0
	}
	return ck / c0
}

// arCoefficients solves the Yule-Walker equations for order coefficients
// spaced stride apart. A degenerate system yields fallback as the first
// coefficient and zeros elsewhere.
func arCoefficients(centered []float64, order, stride int, fallback float64) []float64 {
	if order <= 0 || stride <= 0 {
		return nil
	}
	if variance(centered) < 1e-10 {
		return make([]float64, order)
	}

	r := make([]float64, order+1)
	for k := range r {
		r[k] = acf(centered, k*stride)
	}

	coeffs, err := levinsonDurbin(r)
	if err != nil {
		coeffs = make([]float64, order)
		coeffs[0] = fallback
	}
	return coeffs
}

// levinsonDurbin solves the Toeplitz system defined by autocorrelations r[0..p].
func levinsonDurbin(r []float64) ([]float64, error) {
	p := len(r) - 1
	phi := make([]float64, p)
	prev := make([]float64, p)
	v := r[0]

	for k := 0; k < p; k++ {
		if v == 0 {
			return nil, errors.New("levinson-durbin: zero prediction error")
		}
		num := r[k+1]
		for j := 0; j < k; j++ {
			num -= prev[j] * r[k-j]
		}
		refl := num / v

		phi[k] = refl
		for j := 0; j < k; j++ {
			phi[j] = prev[j] - refl*prev[k-1-j]
		}
		copy(prev, phi)

		v *= 1 - refl*refl
		if v < 0 {
			return nil, errors.New("levinson-durbin: negative prediction error")
		}
	}
	return phi, nil
}

// maCoefficients approximates order moving-average coefficients spaced stride
// apart by the residual autocorrelations, kept inside the unit interval.
func maCoefficients(residuals []float64, order, stride int) []float64 {
	if order <= 0 || stride <= 0 || len(residuals) == 0 {
		return nil
	}
	coeffs := make([]float64, order)
	for i := range coeffs {
		c := acf(residuals, (i+1)*stride)
		if math.Abs(c) > 1 {
			c = math.Copysign(0.9, c)
		}
		coeffs[i] = c
	}
	return coeffs
}

// arResiduals returns the one-step errors of the autoregressive part, with
// seasonal terms at lag multiples of s.
func arResiduals(centered, ar, sar []float64, s int) []float64 {
	start := max(len(ar), len(sar)*s)
	if len(centered) <= start {
		return nil
	}
	out := make([]float64, len(centered)-start)
	for t := start; t < len(centered); t++ {
		pred := 0.0
		for i, c := range ar {
			pred += c * centered[t-1-i]
		}
		for i, c := range sar {
			pred += c * centered[t-(i+1)*s]
		}
		out[t-start] = centered[t] - pred
	}
	return out
}

// tail copies the last n values of xs, or returns nil when xs is shorter.
func tail(xs []float64, n int) []float64 {
	if n <= 0 || n > len(xs) {
		return nil
	}
	return append([]float64(nil), xs[len(xs)-n:]...)
}
