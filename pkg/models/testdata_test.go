package models

import (
	"math"
	"time"

	"github.com/HatiCode/loadcast/pkg/forecast"
)

// 2024-01-01 is a Monday.
var historyStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// weekdayOffsets lowers weekend demand the way real grid load behaves.
var weekdayOffsets = [7]float64{
	time.Sunday:    -300,
	time.Monday:    50,
	time.Tuesday:   80,
	time.Wednesday: 90,
	time.Thursday:  80,
	time.Friday:    20,
	time.Saturday:  -200,
}

func syntheticDaily(days int, level, trend float64, weekly bool) []forecast.DailyLoad {
	out := make([]forecast.DailyLoad, days)
	for i := range days {
		day := historyStart.AddDate(0, 0, i)
		v := level + trend*float64(i)
		if weekly {
			v += weekdayOffsets[day.Weekday()]
		}
		out[i] = forecast.DailyLoad{Day: day, AvgLoadMW: v}
	}
	return out
}

func syntheticSine(days, period int, amplitude float64) FeatureFrame {
	rows := make([]map[string]float64, days)
	for i := range days {
		rows[i] = map[string]float64{
			"value": 1000 + amplitude*math.Sin(2*math.Pi*float64(i)/float64(period)),
		}
	}
	return FeatureFrame{Rows: rows}
}
