package resample

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"halving-chart/internal/market"
)

func hourlySeries(start time.Time, n int) market.Series {
	bars := make([]market.Bar, n)
	for i := range bars {
		p := 100 + float64(i)
		bars[i] = market.Bar{
			Time:   start.Add(time.Duration(i) * time.Hour),
			Open:   p,
			High:   p + 5,
			Low:    p - 5,
			Close:  p + 1,
			Volume: 10,
		}
	}
	return market.Series{Symbol: "BTC-USD", Interval: "1h", Location: time.UTC, Bars: bars}
}

func TestResampleFourHour(t *testing.T) {
	series := hourlySeries(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), 10)
	got, err := Resample(series, Interval4h)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}
	if got.Interval != "4h" || got.Len() != 3 {
		t.Fatalf("expected 3 bars of 4h, got %d (%s)", got.Len(), got.Interval)
	}

	first := got.Bars[0]
	if first.Open != 100 || first.High != 108 || first.Low != 95 || first.Close != 104 || first.Volume != 40 {
		t.Fatalf("unexpected first bucket %+v", first)
	}
	last := got.Bars[2]
	if !last.Time.Equal(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected last bucket start %s", last.Time)
	}
	if last.Open != 108 || last.Close != 110 || last.Volume != 20 {
		t.Fatalf("partial bucket should aggregate only its bars, got %+v", last)
	}
}

func TestResampleDropsEmptyBuckets(t *testing.T) {
	series := hourlySeries(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), 2)
	series.Bars = append(series.Bars, market.Bar{
		Time: time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 3,
	})
	got, err := Resample(series, Interval4h)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}
	if got.Len() != 2 {
		t.Fatalf("expected gaps to produce no bars, got %d", got.Len())
	}
	if !got.Bars[1].Time.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected bucket %s", got.Bars[1].Time)
	}
}

func TestResampleDoesNotMutateInput(t *testing.T) {
	series := hourlySeries(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), 8)
	before := series.Clone()
	if _, err := Resample(series, Interval4h); err != nil {
		t.Fatalf("Resample: %v", err)
	}
	for i := range series.Bars {
		if series.Bars[i] != before.Bars[i] {
			t.Fatalf("bar %d mutated", i)
		}
	}
}

func TestResampleRejectsEmpty(t *testing.T) {
	if _, err := Resample(market.Series{}, Interval1d); !errors.Is(err, market.ErrEmptySeries) {
		t.Fatalf("expected ErrEmptySeries, got %v", err)
	}
}

func TestBucketStart(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load zone: %v", err)
	}
	// Thursday 2024-04-18 15:45 UTC is 11:45 in New York.
	ts := time.Date(2024, 4, 18, 15, 45, 0, 0, time.UTC)

	tests := []struct {
		interval Interval
		loc      *time.Location
		want     time.Time
	}{
		{Interval1h, time.UTC, time.Date(2024, 4, 18, 15, 0, 0, 0, time.UTC)},
		{Interval4h, time.UTC, time.Date(2024, 4, 18, 12, 0, 0, 0, time.UTC)},
		{Interval4h, ny, time.Date(2024, 4, 18, 8, 0, 0, 0, ny)},
		{Interval1d, time.UTC, time.Date(2024, 4, 18, 0, 0, 0, 0, time.UTC)},
		{Interval1d, ny, time.Date(2024, 4, 18, 0, 0, 0, 0, ny)},
		{Interval1w, time.UTC, time.Date(2024, 4, 15, 0, 0, 0, 0, time.UTC)},
		{Interval1mo, time.UTC, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.interval.Name+"/"+tt.loc.String(), func(t *testing.T) {
			got := tt.interval.BucketStart(ts, tt.loc)
			if !got.Equal(tt.want) {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}

	sunday := time.Date(2024, 4, 21, 23, 0, 0, 0, time.UTC)
	if got := Interval1w.BucketStart(sunday, time.UTC); !got.Equal(time.Date(2024, 4, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("sunday belongs to the week starting monday 15th, got %s", got)
	}
}

func TestGetInterval(t *testing.T) {
	if _, err := GetInterval("4h"); err != nil {
		t.Fatalf("GetInterval: %v", err)
	}
	if _, err := GetInterval("3h"); err == nil {
		t.Fatal("expected error for unsupported interval")
	}
}
