package models

import (
	"fmt"
	"sort"

	"github.com/HatiCode/loadcast/pkg/forecast"
)

// BuildFeatures turns daily load observations into a FeatureFrame ordered by day.
func BuildFeatures(history []forecast.DailyLoad) FeatureFrame {
	sorted := make([]forecast.DailyLoad, len(history))
	copy(sorted, history)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Day.Before(sorted[j].Day) })

	rows := make([]map[string]float64, len(sorted))
	for i, d := range sorted {
		day := forecast.Day(d.Day)
		rows[i] = map[string]float64{
			"value":     d.AvgLoadMW,
			"dow":       float64(day.Weekday()),
			"timestamp": float64(day.Unix()),
		}
	}
	return FeatureFrame{Rows: rows}
}

func extractValues(frame FeatureFrame) ([]float64, error) {
	values := make([]float64, len(frame.Rows))
	for i, row := range frame.Rows {
		v, ok := row["value"]
		if !ok {
			return nil, fmt.Errorf("row %d missing 'value' field", i)
		}
		values[i] = v
	}
	return values, nil
}
