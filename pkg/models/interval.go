package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultIntervalWidth is the coverage of the prediction interval when none is configured.
const DefaultIntervalWidth = 0.80

// ParseIntervalWidth parses an interval coverage from decimal ("0.80"),
// percent ("80%") or p-notation ("p80"). Empty input yields the default.
func ParseIntervalWidth(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultIntervalWidth, nil
	}

	var (
		w   float64
		err error
	)
	switch {
	case strings.HasSuffix(s, "%"):
		w, err = strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
		w /= 100
	case strings.HasPrefix(strings.ToLower(s), "p"):
		w, err = strconv.ParseFloat(s[1:], 64)
		w /= 100
	default:
		w, err = strconv.ParseFloat(s, 64)
	}
	if err != nil {
		return 0, fmt.Errorf("invalid interval width %q: %w", s, err)
	}
	if w <= 0 || w >= 1 {
		return 0, fmt.Errorf("interval width %v out of range (0, 1)", w)
	}
	return w, nil
}

// zScore returns the two-sided standard normal quantile for coverage width,
// e.g. 0.80 -> 1.2816.
func zScore(width float64) float64 {
	if width <= 0 || width >= 1 {
		width = DefaultIntervalWidth
	}
	return math.Sqrt2 * math.Erfinv(width)
}

// bounds derives interval bounds around values from the residual spread.
// When widen is set the spread grows with the step index.
func bounds(values []float64, stdDev, z float64, widen bool) (lower, upper []float64) {
	lower = make([]float64, len(values))
	upper = make([]float64, len(values))
	for i, v := range values {
		spread := z * stdDev
		if widen {
			spread *= math.Sqrt(1.0 + float64(i)*0.1)
		}
		lower[i] = math.Max(0, v-spread)
		upper[i] = v + spread
	}
	return lower, upper
}
