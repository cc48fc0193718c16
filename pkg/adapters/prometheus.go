package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DefaultLookback is the extraction range when the window has no start.
const DefaultLookback = 365 * 24 * time.Hour

// PrometheusAdapter fetches load series from the Prometheus HTTP API, or any
// compatible server such as VictoriaMetrics. It issues a /api/v1/query_range
// call at Step resolution. If several series are returned, values with the
// same timestamp are summed, so a query per bidding zone adds up to the total.
type PrometheusAdapter struct {
	// ServerURL is the base URL, e.g. http://prometheus.monitoring.svc:9090
	ServerURL string
	// Query is the PromQL or MetricsQL expression to evaluate.
	Query string
	// Step is the resolution; defaults to one hour.
	Step time.Duration
	// Lookback is used when the window has no start; defaults to DefaultLookback.
	Lookback time.Duration
	// HTTPClient is optional; if nil a default client with timeout is used.
	HTTPClient *http.Client

	kind string
	now  func() time.Time
}

func (p *PrometheusAdapter) Name() string {
	if p.kind != "" {
		return p.kind
	}
	return "prometheus"
}

// Collect implements Adapter. The window end defaults to now.
func (p *PrometheusAdapter) Collect(ctx context.Context, window Window) ([]Reading, error) {
	if p.ServerURL == "" || p.Query == "" {
		return nil, errors.New("prometheus adapter: ServerURL and Query are required")
	}
	step := p.Step
	if step <= 0 {
		step = time.Hour
	}
	lookback := p.Lookback
	if lookback <= 0 {
		lookback = DefaultLookback
	}

	end := window.End
	if end.IsZero() {
		now := time.Now
		if p.now != nil {
			now = p.now
		}
		end = now().UTC().Truncate(step)
	}
	start := window.Start
	if start.IsZero() {
		start = end.Add(-lookback)
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("prometheus adapter: empty window %s..%s", start, end)
	}

	u, err := url.Parse(p.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ServerURL: %w", err)
	}
	u.Path = "/api/v1/query_range"

	q := u.Query()
	q.Set("query", p.Query)
	q.Set("start", strconv.FormatInt(start.Unix(), 10))
	q.Set("end", strconv.FormatInt(end.Unix(), 10))
	q.Set("step", strconv.FormatInt(int64(step/time.Second), 10))
	u.RawQuery = q.Encode()

	cli := p.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := cli.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%s: status %d: %s", p.Name(), resp.StatusCode, string(body))
	}

	var pr RangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", p.Name(), err)
	}
	if pr.Status != "success" {
		return nil, fmt.Errorf("%s status: %s: %s", p.Name(), pr.Status, pr.Error)
	}

	readings, err := AggregateRangeResult(pr.Data.Result)
	if err != nil {
		return nil, err
	}

	// query_range is inclusive of end; the window is not
	kept := readings[:0]
	for _, r := range readings {
		if (Window{Start: start, End: end}).Contains(r.Timestamp) {
			kept = append(kept, r)
		}
	}
	return kept, nil
}

// RangeResponse is a query_range response from Prometheus and compatible systems.
type RangeResponse struct {
	Status string    `json:"status"`
	Error  string    `json:"error,omitempty"`
	Data   RangeData `json:"data"`
}

// RangeData contains the result data from a range query.
type RangeData struct {
	ResultType string        `json:"resultType"`
	Result     []RangeSeries `json:"result"`
}

// RangeSeries is a single time series in the result.
type RangeSeries struct {
	Metric map[string]string `json:"metric"`
	// Values is an array of [ <unix_time_float>, "<value_string>" ]
	Values [][]any `json:"values"`
}

// AggregateRangeResult sums series at equal timestamps and returns readings
// sorted by time. NaN samples are skipped.
func AggregateRangeResult(series []RangeSeries) ([]Reading, error) {
	acc := make(map[int64]float64)
	for _, s := range series {
		for _, pair := range s.Values {
			if len(pair) != 2 {
				return nil, fmt.Errorf("invalid value pair length: %d", len(pair))
			}

			var tsSec int64
			switch v := pair[0].(type) {
			case float64:
				tsSec = int64(v)
			case json.Number:
				f, _ := v.Float64()
				tsSec = int64(f)
			default:
				return nil, fmt.Errorf("unexpected timestamp type %T", v)
			}

			var val float64
			switch vv := pair[1].(type) {
			case string:
				if vv == "NaN" {
					continue
				}
				f, err := strconv.ParseFloat(vv, 64)
				if err != nil {
					return nil, fmt.Errorf("parse value: %w", err)
				}
				val = f
			case float64:
				val = vv
			case json.Number:
				f, _ := vv.Float64()
				val = f
			default:
				return nil, fmt.Errorf("unexpected value type %T", vv)
			}
			acc[tsSec] += val
		}
	}

	readings := make([]Reading, 0, len(acc))
	for ts, v := range acc {
		readings = append(readings, Reading{Timestamp: time.Unix(ts, 0).UTC(), LoadMW: v})
	}
	sortReadings(readings)
	return readings, nil
}
