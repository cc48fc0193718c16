package models

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/HatiCode/loadcast/pkg/forecast"
)

// BYOMModel delegates predictions to an external HTTP model service, such as
// a Prophet sidecar. Train keeps the history; each Predict posts it along
// with the horizon and interval width.
//
// Request:  {"history": [{"ds": "2024-01-01", "y": 51234.5}], "horizon_days": 7, "interval_width": 0.8}
// Response: {"yhat": [...], "yhat_lower": [...], "yhat_upper": [...]}
//
// yhat_lower and yhat_upper may be omitted, in which case the bounds equal yhat.
type BYOMModel struct {
	endpoint string
	width    float64
	client   *http.Client

	mu      sync.RWMutex
	history []byomObservation
}

type byomObservation struct {
	Date  string  `json:"ds"`
	Value float64 `json:"y"`
}

type byomRequest struct {
	History       []byomObservation `json:"history"`
	HorizonDays   int               `json:"horizon_days"`
	IntervalWidth float64           `json:"interval_width"`
}

type byomResponse struct {
	Values []float64 `json:"yhat"`
	Lower  []float64 `json:"yhat_lower"`
	Upper  []float64 `json:"yhat_upper"`
}

// NewBYOMModel creates a model that calls the service at endpoint.
func NewBYOMModel(endpoint string, intervalWidth float64) *BYOMModel {
	if intervalWidth <= 0 || intervalWidth >= 1 {
		intervalWidth = DefaultIntervalWidth
	}
	return &BYOMModel{
		endpoint: endpoint,
		width:    intervalWidth,
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				MaxIdleConnsPerHost: 2,
			},
		},
	}
}

// Name returns the model identifier.
func (m *BYOMModel) Name() string {
	return "byom"
}

// Train stores the history sent with every prediction request.
// Rows need "value" and "timestamp".
func (m *BYOMModel) Train(ctx context.Context, history FeatureFrame) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if len(history.Rows) == 0 {
		return errors.New("byom: history cannot be empty")
	}

	obs := make([]byomObservation, len(history.Rows))
	for i, row := range history.Rows {
		v, ok := row["value"]
		if !ok {
			return fmt.Errorf("byom: row %d missing 'value' field", i)
		}
		ts, ok := row["timestamp"]
		if !ok {
			return fmt.Errorf("byom: row %d missing 'timestamp' field", i)
		}
		obs[i] = byomObservation{
			Date:  time.Unix(int64(ts), 0).UTC().Format(forecast.DateLayout),
			Value: v,
		}
	}

	m.mu.Lock()
	m.history = obs
	m.mu.Unlock()
	return nil
}

// Predict asks the external service for steps days.
func (m *BYOMModel) Predict(ctx context.Context, steps int) (Forecast, error) {
	if steps <= 0 {
		return Forecast{}, fmt.Errorf("byom: steps must be > 0, got %d", steps)
	}

	m.mu.RLock()
	history := m.history
	m.mu.RUnlock()

	if len(history) == 0 {
		return Forecast{}, errors.New("byom: model not trained, call Train() first")
	}

	body, err := json.Marshal(byomRequest{
		History:       history,
		HorizonDays:   steps,
		IntervalWidth: m.width,
	})
	if err != nil {
		return Forecast{}, fmt.Errorf("byom: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return Forecast{}, fmt.Errorf("byom: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return Forecast{}, fmt.Errorf("byom: http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Forecast{}, fmt.Errorf("byom: http %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var out byomResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Forecast{}, fmt.Errorf("byom: decode response: %w", err)
	}

	if len(out.Values) != steps {
		return Forecast{}, fmt.Errorf("byom: expected %d predictions, got %d", steps, len(out.Values))
	}
	if out.Lower == nil {
		out.Lower = append([]float64(nil), out.Values...)
	}
	if out.Upper == nil {
		out.Upper = append([]float64(nil), out.Values...)
	}
	if len(out.Lower) != steps || len(out.Upper) != steps {
		return Forecast{}, fmt.Errorf("byom: bounds length mismatch: lower=%d upper=%d, want %d",
			len(out.Lower), len(out.Upper), steps)
	}

	for i := range out.Values {
		if out.Values[i] < 0 {
			out.Values[i] = 0
		}
		if out.Lower[i] < 0 {
			out.Lower[i] = 0
		}
	}

	return Forecast{Values: out.Values, Lower: out.Lower, Upper: out.Upper}, nil
}
