package indicator

import (
	"fmt"
	"math"
)

// Bands is a Bollinger envelope aligned with its input.
type Bands struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// SMA computes the simple moving average over window. The first window-1
// positions are NaN.
func SMA(series []float64, window int) ([]float64, error) {
	if window < 1 {
		return nil, fmt.Errorf("%w: sma window %d", ErrInvalidParameter, window)
	}

	out := make([]float64, len(series))
	stats := newRollingStats(window)
	for i, x := range series {
		if stats.push(x) {
			out[i] = stats.mean()
		} else {
			out[i] = math.NaN()
		}
	}
	return out, nil
}

// BollingerBands computes middle = rolling mean and upper/lower = middle ±
// mult·σ, where σ is the population standard deviation of the same window.
func BollingerBands(series []float64, window int, mult float64) (Bands, error) {
	if window < 1 {
		return Bands{}, fmt.Errorf("%w: bollinger window %d", ErrInvalidParameter, window)
	}
	if !isFinite(mult) || mult < 0 {
		return Bands{}, fmt.Errorf("%w: bollinger multiplier %v", ErrInvalidParameter, mult)
	}

	n := len(series)
	bands := Bands{
		Upper:  undefinedSeries(n),
		Middle: undefinedSeries(n),
		Lower:  undefinedSeries(n),
	}
	if n < window {
		return bands, nil
	}

	stats := newRollingStats(window)
	for i, x := range series {
		if !stats.push(x) {
			continue
		}
		mid := stats.mean()
		width := mult * stats.stddev(mid)
		bands.Middle[i] = mid
		bands.Upper[i] = mid + width
		bands.Lower[i] = mid - width
	}
	return bands, nil
}
