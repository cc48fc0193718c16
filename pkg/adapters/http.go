package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/tidwall/gjson"
)

// HTTPAdapter calls a REST endpoint and extracts load readings using gjson
// path expressions.
//
// Body and header values are templates with these variables, plus
// TemplateVars:
//
//	{{.Start}} {{.End}}                 - window as Unix seconds
//	{{.StartRFC3339}} {{.EndRFC3339}}   - window as RFC 3339
//	{{.StartDate}} {{.EndDate}}         - window as YYYY-MM-DD
//
// Example configuration for a transparency-platform style API:
//
//	adapter := &HTTPAdapter{
//	    URL: "https://api.example.com/load?from={{.StartDate}}",
//	    Headers: map[string]string{"Authorization": "Bearer {{.Token}}"},
//	    ValuePath: "data.#.load_mw",
//	    TimestampPath: "data.#.timestamp",
//	}
type HTTPAdapter struct {
	// URL is the endpoint to call (required). It may use template variables.
	URL string

	// Method defaults to GET.
	Method string

	Headers map[string]string

	// Body is the request body template, for POST.
	Body string

	// ValuePath is the gjson path to the load values, e.g. "data.#.value".
	ValuePath string

	// TimestampPath must return as many elements as ValuePath.
	TimestampPath string

	// TimestampFormat is "rfc3339" (default), "unix" or "unix_milli".
	TimestampFormat string

	// Lookback is used when the window has no start; defaults to DefaultLookback.
	Lookback time.Duration

	// HTTPClient is optional; if nil a default client with timeout is used.
	HTTPClient *http.Client

	TemplateVars map[string]string
}

func (h *HTTPAdapter) Name() string { return "http" }

// Collect implements Adapter. Readings outside window are dropped.
func (h *HTTPAdapter) Collect(ctx context.Context, window Window) ([]Reading, error) {
	if err := h.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("http adapter: %w", err)
	}

	req, err := h.newRequest(ctx, h.templateData(window))
	if err != nil {
		return nil, err
	}

	cli := h.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := cli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, snippet)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return h.decode(payload, window)
}

// templateData resolves the window against the lookback and exposes it in
// the formats listed on HTTPAdapter.
func (h *HTTPAdapter) templateData(window Window) map[string]any {
	end := window.End
	if end.IsZero() {
		end = time.Now().UTC().Truncate(time.Second)
	}
	start := window.Start
	if start.IsZero() {
		lookback := h.Lookback
		if lookback <= 0 {
			lookback = DefaultLookback
		}
		start = end.Add(-lookback)
	}
	start, end = start.UTC(), end.UTC()

	data := map[string]any{
		"Start":        start.Unix(),
		"End":          end.Unix(),
		"StartRFC3339": start.Format(time.RFC3339),
		"EndRFC3339":   end.Format(time.RFC3339),
		"StartDate":    start.Format(time.DateOnly),
		"EndDate":      end.Format(time.DateOnly),
	}
	for k, v := range h.TemplateVars {
		data[k] = v
	}
	return data
}

func (h *HTTPAdapter) newRequest(ctx context.Context, data map[string]any) (*http.Request, error) {
	target, err := renderTemplate(h.URL, data)
	if err != nil {
		return nil, fmt.Errorf("render url template: %w", err)
	}

	var body io.Reader
	if h.Body != "" {
		rendered, err := renderTemplate(h.Body, data)
		if err != nil {
			return nil, fmt.Errorf("render body template: %w", err)
		}
		body = strings.NewReader(rendered)
	}

	method := h.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	for key, tmpl := range h.Headers {
		value, err := renderTemplate(tmpl, data)
		if err != nil {
			return nil, fmt.Errorf("render header %s: %w", key, err)
		}
		req.Header.Set(key, value)
	}
	return req, nil
}

// decode pairs the values and timestamps selected by the gjson paths.
// A null value marks a missing hour and is skipped.
func (h *HTTPAdapter) decode(payload []byte, window Window) ([]Reading, error) {
	if !gjson.ValidBytes(payload) {
		return nil, errors.New("response is not valid JSON")
	}

	values := gjson.GetBytes(payload, h.ValuePath)
	if !values.Exists() {
		return nil, fmt.Errorf("value path %q not found in response", h.ValuePath)
	}
	stamps := gjson.GetBytes(payload, h.TimestampPath)
	if !stamps.Exists() {
		return nil, fmt.Errorf("timestamp path %q not found in response", h.TimestampPath)
	}

	vs, ts := values.Array(), stamps.Array()
	if len(vs) != len(ts) {
		return nil, fmt.Errorf("value count (%d) != timestamp count (%d)", len(vs), len(ts))
	}

	readings := make([]Reading, 0, len(vs))
	for i, v := range vs {
		if v.Type == gjson.Null {
			continue
		}
		at, err := h.parseTimestamp(ts[i])
		if err != nil {
			return nil, fmt.Errorf("parse timestamp[%d]: %w", i, err)
		}
		if window.Contains(at) {
			readings = append(readings, Reading{Timestamp: at, LoadMW: v.Float()})
		}
	}

	sortReadings(readings)
	return readings, nil
}

func (h *HTTPAdapter) parseTimestamp(value gjson.Result) (time.Time, error) {
	switch h.TimestampFormat {
	case "", "rfc3339":
		t, err := time.Parse(time.RFC3339, value.String())
		return t.UTC(), err

	case "unix":
		return time.Unix(int64(value.Float()), 0).UTC(), nil

	case "unix_milli":
		return time.UnixMilli(int64(value.Float())).UTC(), nil

	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp format: %s", h.TimestampFormat)
	}
}

// renderTemplate renders a text template with the given data
func renderTemplate(tmplStr string, data map[string]any) (string, error) {
	if !strings.Contains(tmplStr, "{{") {
		return tmplStr, nil
	}

	tmpl, err := template.New("").Option("missingkey=error").Parse(tmplStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

// ValidateConfig checks if the adapter configuration is valid
func (h *HTTPAdapter) ValidateConfig() error {
	if h.URL == "" {
		return errors.New("url is required")
	}
	if h.ValuePath == "" {
		return errors.New("valuePath is required")
	}
	if h.TimestampPath == "" {
		return errors.New("timestampPath is required")
	}

	switch h.TimestampFormat {
	case "", "rfc3339", "unix", "unix_milli":
	default:
		return fmt.Errorf("invalid timestampFormat: %s (must be rfc3339, unix, or unix_milli)", h.TimestampFormat)
	}
	return nil
}
