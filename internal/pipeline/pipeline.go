// Package pipeline applies the indicator library to a bar series with a fixed
// configuration and returns a frame of named indicator columns.
package pipeline

import (
	"errors"
	"fmt"
	"strconv"

	"halving-chart/internal/indicator"
	"halving-chart/internal/market"
)

// ErrInvalidInput reports a series or configuration the pipeline cannot process.
var ErrInvalidInput = errors.New("pipeline: invalid input")

// Column names produced by Compute.
const (
	ColBBUpper  = "bb_upper"
	ColBBMiddle = "bb_middle"
	ColBBLower  = "bb_lower"
	ColStochK   = "stoch_k"
	ColStochD   = "stoch_d"
)

// EMAColumn returns the column name for an EMA of the given span.
func EMAColumn(span int) string {
	return "ema_" + strconv.Itoa(span)
}

// BollingerConfig configures the Bollinger envelope.
type BollingerConfig struct {
	Window     int     `mapstructure:"window" yaml:"window"`
	StdDevMult float64 `mapstructure:"std_dev_mult" yaml:"std_dev_mult"`
}

// StochasticConfig configures the slow stochastic oscillator.
type StochasticConfig struct {
	KWindow int `mapstructure:"k_window" yaml:"k_window"`
	DWindow int `mapstructure:"d_window" yaml:"d_window"`
	KSmooth int `mapstructure:"k_smooth" yaml:"k_smooth"`
}

// Config is the full indicator set computed for one series.
type Config struct {
	Bollinger  BollingerConfig  `mapstructure:"bollinger" yaml:"bollinger"`
	EMASpans   []int            `mapstructure:"ema_spans" yaml:"ema_spans"`
	Stochastic StochasticConfig `mapstructure:"stochastic" yaml:"stochastic"`
}

// DefaultConfig returns Bollinger 20/2.0, EMA 13/21/50/100 and a 5/3/3
// stochastic.
func DefaultConfig() Config {
	return Config{
		Bollinger:  BollingerConfig{Window: 20, StdDevMult: 2.0},
		EMASpans:   []int{13, 21, 50, 100},
		Stochastic: StochasticConfig{KWindow: 5, DWindow: 3, KSmooth: 3},
	}
}

// Validate checks that every window and span is usable.
func (c Config) Validate() error {
	if c.Bollinger.Window < 1 {
		return fmt.Errorf("%w: bollinger window must be positive", ErrInvalidInput)
	}
	if c.Bollinger.StdDevMult < 0 {
		return fmt.Errorf("%w: bollinger multiplier must be non-negative", ErrInvalidInput)
	}
	seen := make(map[int]struct{}, len(c.EMASpans))
	for _, span := range c.EMASpans {
		if span < 1 {
			return fmt.Errorf("%w: ema span %d must be positive", ErrInvalidInput, span)
		}
		if _, dup := seen[span]; dup {
			return fmt.Errorf("%w: duplicate ema span %d", ErrInvalidInput, span)
		}
		seen[span] = struct{}{}
	}
	st := c.Stochastic
	if st.KWindow < 1 || st.DWindow < 1 || st.KSmooth < 1 {
		return fmt.Errorf("%w: stochastic windows must be positive", ErrInvalidInput)
	}
	return nil
}

// Frame is a bar series augmented with indicator columns.
type Frame struct {
	Series  market.Series
	Columns map[string][]float64
	// Order lists the column names in the order they were computed.
	Order []string
}

// Column returns the named indicator column and whether it exists.
func (f *Frame) Column(name string) ([]float64, bool) {
	col, ok := f.Columns[name]
	return col, ok
}

// Len returns the number of rows.
func (f *Frame) Len() int { return f.Series.Len() }

func (f *Frame) add(name string, values []float64) {
	f.Columns[name] = values
	f.Order = append(f.Order, name)
}

// Compute runs every configured indicator over series. The returned frame
// holds a copy of the series; the caller's bars are never modified.
func Compute(series market.Series, cfg Config) (*Frame, error) {
	if series.Len() == 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, market.ErrEmptySeries)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	closes := series.Closes()
	if indicator.FirstDefined(closes) < 0 {
		return nil, fmt.Errorf("%w: close prices missing", ErrInvalidInput)
	}

	frame := &Frame{
		Series:  series.Clone(),
		Columns: make(map[string][]float64, 5+len(cfg.EMASpans)),
	}

	bands, err := indicator.BollingerBands(closes, cfg.Bollinger.Window, cfg.Bollinger.StdDevMult)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	frame.add(ColBBUpper, bands.Upper)
	frame.add(ColBBMiddle, bands.Middle)
	frame.add(ColBBLower, bands.Lower)

	for _, span := range cfg.EMASpans {
		ema, err := indicator.EMA(closes, span)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		frame.add(EMAColumn(span), ema)
	}

	st := cfg.Stochastic
	osc, err := indicator.Stochastic(series.Highs(), series.Lows(), closes, st.KWindow, st.DWindow, st.KSmooth)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	frame.add(ColStochK, osc.K)
	frame.add(ColStochD, osc.D)

	return frame, nil
}
