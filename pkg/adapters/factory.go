package adapters

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Supported adapter kinds.
const (
	KindCSV             = "csv"
	KindHTTP            = "http"
	KindPrometheus      = "prometheus"
	KindVictoriaMetrics = "victoriametrics"
)

// OPSDURL is the hourly Open Power System Data export used when a csv source
// names no location.
const OPSDURL = "https://data.open-power-system-data.org/time_series/2020-10-06/time_series_60min_singleindex.csv"

// New creates an adapter from kind and a generic configuration map, such as
// the SOURCE_* environment of the pipeline. client is shared by network
// adapters and may be nil.
//
// Returns an error if kind is unknown or required fields are missing.
func New(kind string, config map[string]string, client *http.Client) (Adapter, error) {
	switch kind {
	case KindCSV:
		return newCSV(config, client), nil
	case KindPrometheus:
		return newRangeQuery(kind, config, "http://localhost:9090", client)
	case KindVictoriaMetrics:
		return newRangeQuery(kind, config, "http://localhost:8428", client)
	case KindHTTP:
		return newHTTP(config, client)
	default:
		return nil, fmt.Errorf("unknown adapter kind: %s (must be csv, http, prometheus, or victoriametrics)", kind)
	}
}

func newCSV(config map[string]string, client *http.Client) Adapter {
	location := config["path"]
	if location == "" {
		location = config["url"]
	}
	if location == "" {
		location = OPSDURL
	}
	return &CSVAdapter{
		Location:        location,
		TimestampColumn: config["timestampColumn"],
		LoadColumn:      config["loadColumn"],
		HTTPClient:      client,
	}
}

func newRangeQuery(kind string, config map[string]string, defaultURL string, client *http.Client) (Adapter, error) {
	query := config["query"]
	if query == "" {
		return nil, fmt.Errorf("%s adapter requires 'query' config", kind)
	}

	url := config["url"]
	if url == "" {
		url = defaultURL
	}

	step, err := durationOption(config, "step")
	if err != nil {
		return nil, err
	}
	lookback, err := durationOption(config, "lookback")
	if err != nil {
		return nil, err
	}

	return &PrometheusAdapter{
		ServerURL:  url,
		Query:      query,
		Step:       step,
		Lookback:   lookback,
		HTTPClient: client,
		kind:       kind,
	}, nil
}

func newHTTP(config map[string]string, client *http.Client) (Adapter, error) {
	var headers map[string]string
	if headersJSON := config["headers"]; headersJSON != "" {
		if err := json.Unmarshal([]byte(headersJSON), &headers); err != nil {
			return nil, fmt.Errorf("invalid 'headers' JSON: %w", err)
		}
	}

	var templateVars map[string]string
	if varsJSON := config["templateVars"]; varsJSON != "" {
		if err := json.Unmarshal([]byte(varsJSON), &templateVars); err != nil {
			return nil, fmt.Errorf("invalid 'templateVars' JSON: %w", err)
		}
	}

	lookback, err := durationOption(config, "lookback")
	if err != nil {
		return nil, err
	}

	a := &HTTPAdapter{
		URL:             config["url"],
		Method:          config["method"],
		Headers:         headers,
		Body:            config["body"],
		ValuePath:       config["valuePath"],
		TimestampPath:   config["timestampPath"],
		TimestampFormat: config["timestampFormat"],
		Lookback:        lookback,
		HTTPClient:      client,
		TemplateVars:    templateVars,
	}
	if err := a.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("http adapter: %w", err)
	}
	return a, nil
}

func durationOption(config map[string]string, key string) (time.Duration, error) {
	raw := config[key]
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid '%s' duration %q", key, raw)
	}
	return d, nil
}
