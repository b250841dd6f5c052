// Package resample downsamples bar series into coarser calendar buckets.
package resample

import (
	"fmt"
	"math"

	"halving-chart/internal/market"
)

// Resample aggregates series into buckets of interval: open is the first
// open, high the max high, low the min low, close the last close and volume
// the sum. Buckets are labelled by their start and empty buckets are not
// emitted. The input must be ordered by time; it is not modified.
func Resample(series market.Series, interval Interval) (market.Series, error) {
	if err := series.Validate(); err != nil {
		return market.Series{}, fmt.Errorf("resample %s: %w", interval.Name, err)
	}

	out := market.Series{
		Symbol:   series.Symbol,
		Interval: interval.Name,
		Location: series.Location,
	}

	var cur *market.Bar
	for _, b := range series.Bars {
		start := interval.BucketStart(b.Time, series.Location)
		if cur != nil && cur.Time.Equal(start) {
			cur.High = math.Max(cur.High, b.High)
			cur.Low = math.Min(cur.Low, b.Low)
			cur.Close = b.Close
			cur.Volume += b.Volume
			continue
		}
		out.Bars = append(out.Bars, market.Bar{
			Time:   start,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		})
		cur = &out.Bars[len(out.Bars)-1]
	}
	return out, nil
}
