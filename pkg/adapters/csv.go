package adapters

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Default columns of the Open Power System Data hourly time series.
const (
	DefaultTimestampColumn = "utc_timestamp"
	DefaultLoadColumn      = "DE_load_actual_entsoe_transparency"
)

// CSVAdapter reads hourly load from a CSV file with a header row. Location is
// a filesystem path or an http(s) URL. Rows with an empty load cell are
// dropped; any other unparsable cell is an error.
type CSVAdapter struct {
	Location        string
	TimestampColumn string
	LoadColumn      string

	// HTTPClient is used for http(s) locations; if nil a default client is used.
	HTTPClient *http.Client
}

func (c *CSVAdapter) Name() string { return "csv" }

// Collect implements Adapter.
func (c *CSVAdapter) Collect(ctx context.Context, window Window) ([]Reading, error) {
	if c.Location == "" {
		return nil, errors.New("csv adapter: Location is required")
	}

	rc, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return c.parse(ctx, rc, window)
}

func (c *CSVAdapter) open(ctx context.Context) (io.ReadCloser, error) {
	if !strings.HasPrefix(c.Location, "http://") && !strings.HasPrefix(c.Location, "https://") {
		f, err := os.Open(c.Location)
		if err != nil {
			return nil, fmt.Errorf("open csv: %w", err)
		}
		return f, nil
	}

	cli := c.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 5 * time.Minute}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Location, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/csv")

	resp, err := cli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download csv: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("download csv: status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func (c *CSVAdapter) parse(ctx context.Context, r io.Reader, window Window) ([]Reading, error) {
	tsCol := c.TimestampColumn
	if tsCol == "" {
		tsCol = DefaultTimestampColumn
	}
	loadCol := c.LoadColumn
	if loadCol == "" {
		loadCol = DefaultLoadColumn
	}

	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	tsIdx, loadIdx := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case tsCol:
			tsIdx = i
		case loadCol:
			loadIdx = i
		}
	}
	if tsIdx < 0 || loadIdx < 0 {
		return nil, fmt.Errorf("csv header lacks %q or %q", tsCol, loadCol)
	}

	var readings []Reading
	for line := 2; ; line++ {
		if line%10000 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}

		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}

		raw := strings.TrimSpace(rec[loadIdx])
		if raw == "" {
			continue
		}

		ts, err := parseCSVTime(strings.TrimSpace(rec[tsIdx]))
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		if !window.Contains(ts) {
			continue
		}

		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: parse load %q: %w", line, raw, err)
		}
		readings = append(readings, Reading{Timestamp: ts, LoadMW: v})
	}

	sortReadings(readings)
	return readings, nil
}

// parseCSVTime accepts RFC 3339 and the space-separated form some exports use.
func parseCSVTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q", s)
}
