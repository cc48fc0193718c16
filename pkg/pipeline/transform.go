package pipeline

import (
	"sort"
	"time"

	"github.com/HatiCode/loadcast/pkg/adapters"
	"github.com/HatiCode/loadcast/pkg/forecast"
)

// HourlyToDaily averages readings per UTC calendar day. Days without any
// reading are absent from the result, which is sorted by day.
func HourlyToDaily(readings []adapters.Reading) []forecast.DailyLoad {
	type acc struct {
		sum   float64
		count int
	}
	days := make(map[time.Time]*acc)
	for _, r := range readings {
		day := forecast.Day(r.Timestamp)
		a, ok := days[day]
		if !ok {
			a = &acc{}
			days[day] = a
		}
		a.sum += r.LoadMW
		a.count++
	}

	out := make([]forecast.DailyLoad, 0, len(days))
	for day, a := range days {
		out = append(out, forecast.DailyLoad{Day: day, AvgLoadMW: a.sum / float64(a.count)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out
}
