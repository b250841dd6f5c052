package market

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrEmptySeries indicates a series without bars.
	ErrEmptySeries = errors.New("market: series has no bars")
	// ErrUnordered indicates bars that are not strictly increasing by time.
	ErrUnordered = errors.New("market: bars not strictly increasing by time")
)

// Bar is one OHLCV observation.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Series is an ordered run of bars for one symbol and interval.
type Series struct {
	Symbol   string
	Interval string
	// Location is the calendar zone of the bars. Zone-less calendar dates
	// are interpreted in it.
	Location *time.Location
	Bars     []Bar
}

// Len returns the number of bars.
func (s Series) Len() int { return len(s.Bars) }

// Clone returns a deep copy of the series.
func (s Series) Clone() Series {
	out := s
	out.Bars = make([]Bar, len(s.Bars))
	copy(out.Bars, s.Bars)
	return out
}

// Validate checks that the series is non-empty and strictly ordered.
func (s Series) Validate() error {
	if len(s.Bars) == 0 {
		return ErrEmptySeries
	}
	for i := 1; i < len(s.Bars); i++ {
		if !s.Bars[i].Time.After(s.Bars[i-1].Time) {
			return fmt.Errorf("%w: index %d (%s <= %s)", ErrUnordered, i,
				s.Bars[i].Time.Format(time.RFC3339), s.Bars[i-1].Time.Format(time.RFC3339))
		}
	}
	return nil
}

// Times returns the bar timestamps.
func (s Series) Times() []time.Time {
	out := make([]time.Time, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Time
	}
	return out
}

// Closes returns the close prices.
func (s Series) Closes() []float64 {
	return s.column(func(b Bar) float64 { return b.Close })
}

// Highs returns the high prices.
func (s Series) Highs() []float64 {
	return s.column(func(b Bar) float64 { return b.High })
}

// Lows returns the low prices.
func (s Series) Lows() []float64 {
	return s.column(func(b Bar) float64 { return b.Low })
}

func (s Series) column(pick func(Bar) float64) []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = pick(b)
	}
	return out
}

// First returns the earliest bar time. The series must not be empty.
func (s Series) First() time.Time { return s.Bars[0].Time }

// Last returns the latest bar time. The series must not be empty.
func (s Series) Last() time.Time { return s.Bars[len(s.Bars)-1].Time }

// PriceRange returns the minimum low and maximum high, ignoring non-finite values.
func (s Series) PriceRange() (low, high float64) {
	low, high = math.Inf(1), math.Inf(-1)
	for _, b := range s.Bars {
		if !math.IsNaN(b.Low) && !math.IsInf(b.Low, 0) && b.Low < low {
			low = b.Low
		}
		if !math.IsNaN(b.High) && !math.IsInf(b.High, 0) && b.High > high {
			high = b.High
		}
	}
	return low, high
}
