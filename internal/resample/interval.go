package resample

import (
	"fmt"
	"sort"
	"time"
)

// Interval is a bar width the resampler can bucket into.
type Interval struct {
	Name     string
	Duration time.Duration
	Format   string
}

// Supported intervals. Day, week and month buckets follow the calendar of
// the series location rather than fixed durations.
var (
	Interval1h  = Interval{Name: "1h", Duration: time.Hour, Format: "2006-01-02 15:00"}
	Interval4h  = Interval{Name: "4h", Duration: 4 * time.Hour, Format: "2006-01-02 15:00"}
	Interval1d  = Interval{Name: "1d", Duration: 24 * time.Hour, Format: "2006-01-02"}
	Interval1w  = Interval{Name: "1w", Duration: 7 * 24 * time.Hour, Format: "2006-01-02"}
	Interval1mo = Interval{Name: "1mo", Duration: 30 * 24 * time.Hour, Format: "2006-01"}
)

// AllIntervals lists every supported interval from finest to coarsest.
var AllIntervals = []Interval{Interval1h, Interval4h, Interval1d, Interval1w, Interval1mo}

var intervalRegistry = make(map[string]Interval)

func init() {
	for _, interval := range AllIntervals {
		intervalRegistry[interval.Name] = interval
	}
}

// GetInterval returns an interval by name.
func GetInterval(name string) (Interval, error) {
	interval, exists := intervalRegistry[name]
	if !exists {
		return Interval{}, fmt.Errorf("unsupported interval: %s", name)
	}
	return interval, nil
}

// IntervalNames returns the supported names, sorted.
func IntervalNames() []string {
	names := make([]string, 0, len(intervalRegistry))
	for name := range intervalRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BucketStart returns the start of the bucket containing ts, evaluated on
// the wall clock of loc.
func (i Interval) BucketStart(ts time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := ts.In(loc)
	y, m, d := local.Date()

	switch i.Name {
	case Interval1h.Name:
		return time.Date(y, m, d, local.Hour(), 0, 0, 0, loc)
	case Interval4h.Name:
		return time.Date(y, m, d, local.Hour()-local.Hour()%4, 0, 0, 0, loc)
	case Interval1d.Name:
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	case Interval1w.Name:
		// Monday start
		days := int(local.Weekday())
		if days == 0 {
			days = 7
		}
		return time.Date(y, m, d+1-days, 0, 0, 0, 0, loc)
	case Interval1mo.Name:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc)
	default:
		return ts.Truncate(i.Duration)
	}
}
