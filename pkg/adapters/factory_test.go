package adapters

import (
	"net/http"
	"testing"
	"time"
)

func TestNew_RangeQuery(t *testing.T) {
	tests := []struct {
		kind    string
		config  map[string]string
		wantURL string
	}{
		{"prometheus", map[string]string{"url": "http://prometheus:9090", "query": "sum(load_mw)", "step": "1h"}, "http://prometheus:9090"},
		{"prometheus", map[string]string{"query": "sum(load_mw)"}, "http://localhost:9090"},
		{"victoriametrics", map[string]string{"query": "sum(load_mw)"}, "http://localhost:8428"},
	}

	for _, tt := range tests {
		a, err := New(tt.kind, tt.config, nil)
		if err != nil {
			t.Fatalf("New(%s) error = %v", tt.kind, err)
		}
		p, ok := a.(*PrometheusAdapter)
		if !ok {
			t.Fatalf("New(%s) = %T, want *PrometheusAdapter", tt.kind, a)
		}
		if p.ServerURL != tt.wantURL {
			t.Errorf("New(%s) ServerURL = %s, want %s", tt.kind, p.ServerURL, tt.wantURL)
		}
		if p.Name() != tt.kind {
			t.Errorf("Name() = %s, want %s", p.Name(), tt.kind)
		}
	}
}

func TestNew_PrometheusStep(t *testing.T) {
	a, err := New("prometheus", map[string]string{"query": "up", "step": "15m", "lookback": "720h"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	p := a.(*PrometheusAdapter)
	if p.Step != 15*time.Minute || p.Lookback != 720*time.Hour {
		t.Errorf("Step = %v, Lookback = %v", p.Step, p.Lookback)
	}

	if _, err := New("prometheus", map[string]string{"query": "up", "step": "hourly"}, nil); err == nil {
		t.Error("expected error for invalid step")
	}
}

func TestNew_CSV(t *testing.T) {
	client := &http.Client{}

	a, err := New("csv", map[string]string{}, client)
	if err != nil {
		t.Fatal(err)
	}
	c := a.(*CSVAdapter)
	if c.Location != OPSDURL {
		t.Errorf("Location = %s, want OPSD export", c.Location)
	}
	if c.HTTPClient != client {
		t.Error("shared client not passed through")
	}

	a, _ = New("csv", map[string]string{"path": "data/load.csv", "loadColumn": "AT_load_actual_entsoe_transparency"}, nil)
	c = a.(*CSVAdapter)
	if c.Location != "data/load.csv" || c.LoadColumn != "AT_load_actual_entsoe_transparency" {
		t.Errorf("adapter = %+v", c)
	}
}

func TestNew_HTTP(t *testing.T) {
	config := map[string]string{
		"url":           "https://api.example.com/load",
		"valuePath":     "data.#.value",
		"timestampPath": "data.#.timestamp",
		"headers":       `{"Authorization":"Bearer {{.Token}}"}`,
		"templateVars":  `{"Token":"secret"}`,
	}

	a, err := New("http", config, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	h, ok := a.(*HTTPAdapter)
	if !ok {
		t.Fatalf("expected *HTTPAdapter, got %T", a)
	}
	if h.URL != "https://api.example.com/load" || h.ValuePath != "data.#.value" {
		t.Errorf("adapter = %+v", h)
	}
	if h.Headers["Authorization"] != "Bearer {{.Token}}" || h.TemplateVars["Token"] != "secret" {
		t.Errorf("headers = %v, vars = %v", h.Headers, h.TemplateVars)
	}
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name   string
		kind   string
		config map[string]string
	}{
		{"unknown kind", "kafka", map[string]string{}},
		{"prometheus without query", "prometheus", map[string]string{"url": "http://prometheus:9090"}},
		{"victoriametrics without query", "victoriametrics", map[string]string{"url": "http://vm:8428"}},
		{"http without url", "http", map[string]string{"valuePath": "v", "timestampPath": "t"}},
		{"http without paths", "http", map[string]string{"url": "https://api.example.com"}},
		{"http bad headers", "http", map[string]string{"url": "u", "valuePath": "v", "timestampPath": "t", "headers": "{"}},
		{"http bad format", "http", map[string]string{"url": "u", "valuePath": "v", "timestampPath": "t", "timestampFormat": "iso"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.kind, tt.config, nil); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
