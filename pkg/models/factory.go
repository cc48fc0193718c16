package models

import (
	"fmt"
	"strings"
)

// Model kinds accepted by New.
const (
	KindBaseline = "baseline"
	KindARIMA    = "arima"
	KindSARIMA   = "sarima"
	KindBYOM     = "byom"
)

// Spec describes which model to build and how.
type Spec struct {
	Kind          string  `json:"model"`
	P             int     `json:"p,omitempty"`
	D             int     `json:"d,omitempty"`
	Q             int     `json:"q,omitempty"`
	SP            int     `json:"seasonal_p,omitempty"`
	SD            int     `json:"seasonal_d,omitempty"`
	SQ            int     `json:"seasonal_q,omitempty"`
	S             int     `json:"seasonal_period,omitempty"`
	BYOMURL       string  `json:"byom_url,omitempty"`
	IntervalWidth float64 `json:"interval_width"`
}

// Validate checks that the spec names a known model with the settings it needs.
func (s Spec) Validate() error {
	switch strings.ToLower(s.Kind) {
	case KindBaseline, KindARIMA, KindSARIMA:
	case KindBYOM:
		if s.BYOMURL == "" {
			return fmt.Errorf("byom_url is required when model=byom")
		}
	default:
		return fmt.Errorf("invalid model %q (must be baseline, arima, sarima, or byom)", s.Kind)
	}
	if s.IntervalWidth < 0 || s.IntervalWidth >= 1 {
		return fmt.Errorf("interval_width %v out of range (0, 1)", s.IntervalWidth)
	}
	return nil
}

// New builds an untrained model from spec.
func New(spec Spec) (Model, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	width := spec.IntervalWidth
	if width == 0 {
		width = DefaultIntervalWidth
	}

	switch strings.ToLower(spec.Kind) {
	case KindARIMA:
		m, err := NewARIMAModel(spec.P, spec.D, spec.Q, width)
		if err != nil {
			return nil, err
		}
		return m, nil
	case KindSARIMA:
		m, err := NewSARIMAModel(spec.P, spec.D, spec.Q, spec.SP, spec.SD, spec.SQ, spec.S, width)
		if err != nil {
			return nil, err
		}
		return m, nil
	case KindBYOM:
		return NewBYOMModel(spec.BYOMURL, width), nil
	default:
		return NewBaselineModel(width), nil
	}
}
