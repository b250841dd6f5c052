package market

import (
	"errors"
	"math"
	"testing"
	"time"
)

func dailyBars(n int) []Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]Bar, n)
	for i := range bars {
		p := 100 + float64(i)
		bars[i] = Bar{Time: start.AddDate(0, 0, i), Open: p, High: p + 2, Low: p - 3, Close: p + 1, Volume: 10}
	}
	return bars
}

func TestSeriesValidate(t *testing.T) {
	if err := (Series{}).Validate(); !errors.Is(err, ErrEmptySeries) {
		t.Fatalf("empty series should fail with ErrEmptySeries, got %v", err)
	}

	bars := dailyBars(3)
	bars[2].Time = bars[1].Time
	if err := (Series{Bars: bars}).Validate(); !errors.Is(err, ErrUnordered) {
		t.Fatalf("duplicate timestamp should fail with ErrUnordered, got %v", err)
	}

	if err := (Series{Bars: dailyBars(5)}).Validate(); err != nil {
		t.Fatalf("ordered series should validate: %v", err)
	}
}

func TestSeriesCloneIsIndependent(t *testing.T) {
	s := Series{Symbol: "BTC-USD", Bars: dailyBars(2)}
	c := s.Clone()
	c.Bars[0].Close = -1
	if s.Bars[0].Close == -1 {
		t.Fatal("clone must not share the bar slice")
	}
}

func TestSeriesPriceRange(t *testing.T) {
	bars := dailyBars(4)
	bars[1].High = math.NaN()
	low, high := Series{Bars: bars}.PriceRange()
	if low != 97 {
		t.Fatalf("low = %v, want 97", low)
	}
	if high != 105 {
		t.Fatalf("high = %v, want 105", high)
	}
}
