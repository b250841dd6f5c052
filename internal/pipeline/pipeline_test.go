package pipeline

import (
	"errors"
	"math"
	"testing"
	"time"

	"halving-chart/internal/market"
)

func sampleSeries(n int) market.Series {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, n)
	for i := range bars {
		mid := 40000 + 1500*math.Sin(float64(i)/5) + float64(i)*25
		bars[i] = market.Bar{
			Time:   start.AddDate(0, 0, i),
			Open:   mid - 50,
			High:   mid + 300,
			Low:    mid - 280,
			Close:  mid + 40*math.Cos(float64(i)),
			Volume: 1000 + float64(i),
		}
	}
	return market.Series{Symbol: "BTC-USD", Interval: "1d", Location: time.UTC, Bars: bars}
}

func TestComputeProducesNamedColumns(t *testing.T) {
	series := sampleSeries(150)
	frame, err := Compute(series, DefaultConfig())
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	want := []string{"bb_upper", "bb_middle", "bb_lower", "ema_13", "ema_21", "ema_50", "ema_100", "stoch_k", "stoch_d"}
	if len(frame.Order) != len(want) {
		t.Fatalf("expected %d columns, got %v", len(want), frame.Order)
	}
	for i, name := range want {
		if frame.Order[i] != name {
			t.Fatalf("column %d: expected %s, got %s", i, name, frame.Order[i])
		}
		col, ok := frame.Column(name)
		if !ok {
			t.Fatalf("column %s missing", name)
		}
		if len(col) != series.Len() {
			t.Fatalf("column %s has %d rows, want %d", name, len(col), series.Len())
		}
	}

	upper, _ := frame.Column(ColBBUpper)
	if !math.IsNaN(upper[18]) || math.IsNaN(upper[19]) {
		t.Fatalf("bollinger ramp-up should end at index 19")
	}
	d, _ := frame.Column(ColStochD)
	if !math.IsNaN(d[7]) || math.IsNaN(d[8]) {
		t.Fatalf("stochastic %%D ramp-up should end at index 8")
	}
}

func TestComputeIsIdempotent(t *testing.T) {
	series := sampleSeries(120)
	first, err := Compute(series, DefaultConfig())
	if err != nil {
		t.Fatalf("first Compute: %v", err)
	}
	second, err := Compute(series, DefaultConfig())
	if err != nil {
		t.Fatalf("second Compute: %v", err)
	}

	for _, name := range first.Order {
		a, _ := first.Column(name)
		b, _ := second.Column(name)
		for i := range a {
			if math.Float64bits(a[i]) != math.Float64bits(b[i]) {
				t.Fatalf("column %s differs at %d: %v vs %v", name, i, a[i], b[i])
			}
		}
	}
}

func TestComputeDoesNotShareCallerBars(t *testing.T) {
	series := sampleSeries(30)
	frame, err := Compute(series, DefaultConfig())
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	frame.Series.Bars[0].Close = -1
	if series.Bars[0].Close == -1 {
		t.Fatal("frame must hold its own copy of the bars")
	}
}

func TestComputeRejectsEmptySeries(t *testing.T) {
	_, err := Compute(market.Series{}, DefaultConfig())
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if !errors.Is(err, market.ErrEmptySeries) {
		t.Fatalf("expected wrapped ErrEmptySeries, got %v", err)
	}
}

func TestComputeRejectsMissingCloses(t *testing.T) {
	series := sampleSeries(5)
	for i := range series.Bars {
		series.Bars[i].Close = math.NaN()
	}
	if _, err := Compute(series, DefaultConfig()); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bollinger window", func(c *Config) { c.Bollinger.Window = 0 }},
		{"negative multiplier", func(c *Config) { c.Bollinger.StdDevMult = -1 }},
		{"ema span", func(c *Config) { c.EMASpans = []int{13, 0} }},
		{"duplicate ema span", func(c *Config) { c.EMASpans = []int{21, 21} }},
		{"stochastic window", func(c *Config) { c.Stochastic.KSmooth = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
}

func TestShortSeriesYieldsUndefinedColumns(t *testing.T) {
	frame, err := Compute(sampleSeries(4), DefaultConfig())
	if err != nil {
		t.Fatalf("short series must not error: %v", err)
	}
	for _, name := range []string{ColBBMiddle, ColStochK, ColStochD} {
		col, _ := frame.Column(name)
		for i, v := range col {
			if !math.IsNaN(v) {
				t.Fatalf("%s[%d] should be undefined, got %v", name, i, v)
			}
		}
	}
	ema, _ := frame.Column(EMAColumn(13))
	if ema[0] != frame.Series.Bars[0].Close {
		t.Fatalf("ema seed should be the first close")
	}
}
