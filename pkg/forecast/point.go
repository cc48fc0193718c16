// Package forecast defines the domain types shared by the forecast-serving
// path: forecast points, request parameters and their cache fingerprint,
// request-tracking records, and the error taxonomy the HTTP layer maps to
// status codes.
package forecast

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the wire format of a forecast point's date.
const DateLayout = "2006-01-02"

// Point is a single forecast value for one day.
// Points are produced by the compute worker and never modified afterwards.
type Point struct {
	Timestamp time.Time `json:"ds"`
	Predicted float64   `json:"yhat"`
	Lower     float64   `json:"yhat_lower"`
	Upper     float64   `json:"yhat_upper"`
}

type pointJSON struct {
	Date      string  `json:"ds"`
	Predicted float64 `json:"yhat"`
	Lower     float64 `json:"yhat_lower"`
	Upper     float64 `json:"yhat_upper"`
}

// MarshalJSON encodes the timestamp as a calendar date.
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal(pointJSON{
		Date:      p.Timestamp.UTC().Format(DateLayout),
		Predicted: p.Predicted,
		Lower:     p.Lower,
		Upper:     p.Upper,
	})
}

// UnmarshalJSON accepts both a calendar date and an RFC3339 timestamp for ds.
func (p *Point) UnmarshalJSON(data []byte) error {
	var raw pointJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	ts, err := ParseDate(raw.Date)
	if err != nil {
		return err
	}

	*p = Point{
		Timestamp: ts,
		Predicted: raw.Predicted,
		Lower:     raw.Lower,
		Upper:     raw.Upper,
	}
	return nil
}

// ParseDate parses "2006-01-02" or RFC3339 and truncates to a UTC day.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return Day(t), nil
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DailyLoad is the average load of one UTC day, the unit of training data.
type DailyLoad struct {
	Day       time.Time
	AvgLoadMW float64
}
