package market

import (
	"fmt"
	"sort"
	"time"
)

// Timeframe maps a chart timeframe onto the provider interval it is fetched
// at and, when the provider has no native bar of that width, the interval
// the fetched bars are resampled into.
type Timeframe struct {
	Name          string
	FetchInterval string
	ResampleTo    string
	DefaultPeriod string
}

var timeframes = map[string]Timeframe{
	"4h": {Name: "4h", FetchInterval: "1h", ResampleTo: "4h", DefaultPeriod: "1y"},
	"1d": {Name: "1d", FetchInterval: "1d", DefaultPeriod: "6mo"},
	"1w": {Name: "1w", FetchInterval: "1wk", DefaultPeriod: "6mo"},
	"1m": {Name: "1m", FetchInterval: "1mo", DefaultPeriod: "6mo"},
}

// LookupTimeframe returns the timeframe registered under name.
func LookupTimeframe(name string) (Timeframe, error) {
	tf, ok := timeframes[name]
	if !ok {
		return Timeframe{}, fmt.Errorf("unsupported timeframe %q (want one of %v)", name, TimeframeNames())
	}
	return tf, nil
}

// TimeframeNames lists the supported timeframes.
func TimeframeNames() []string {
	names := make([]string, 0, len(timeframes))
	for name := range timeframes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Preset is a quick date range ending now.
type Preset struct {
	Name   string
	Years  int
	Months int
	Days   int
}

// Presets in display order.
var Presets = []Preset{
	{Name: "1d", Days: 1},
	{Name: "1w", Days: 7},
	{Name: "1m", Months: 1},
	{Name: "3m", Months: 3},
	{Name: "6m", Months: 6},
	{Name: "ytd"},
	{Name: "1y", Years: 1},
	{Name: "2y", Years: 2},
	{Name: "5y", Years: 5},
	{Name: "10y", Years: 10},
}

// PresetStart returns the start of the named preset range ending at now.
// "ytd" starts at January 1 of now's year.
func PresetStart(name string, now time.Time) (time.Time, error) {
	if name == "ytd" {
		return PeriodStart("ytd", now)
	}
	for _, p := range Presets {
		if p.Name == name {
			return now.AddDate(-p.Years, -p.Months, -p.Days), nil
		}
	}
	return time.Time{}, fmt.Errorf("unknown preset %q", name)
}

// PeriodStart resolves a provider range such as "6mo", "1y" or "ytd" to the
// start of that range ending at now. "max" yields the zero time.
func PeriodStart(period string, now time.Time) (time.Time, error) {
	switch period {
	case "max":
		return time.Time{}, nil
	case "ytd":
		return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location()), nil
	}

	var n int
	var unit string
	if _, err := fmt.Sscanf(period, "%d%s", &n, &unit); err != nil || n <= 0 {
		return time.Time{}, fmt.Errorf("invalid period %q", period)
	}
	switch unit {
	case "d":
		return now.AddDate(0, 0, -n), nil
	case "wk":
		return now.AddDate(0, 0, -7*n), nil
	case "mo":
		return now.AddDate(0, -n, 0), nil
	case "y":
		return now.AddDate(-n, 0, 0), nil
	default:
		return time.Time{}, fmt.Errorf("invalid period %q", period)
	}
}
