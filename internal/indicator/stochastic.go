package indicator

import (
	"fmt"
	"math"
)

// Oscillator holds the smoothed stochastic lines.
type Oscillator struct {
	K []float64
	D []float64
}

// Stochastic computes the slow stochastic oscillator:
//
//	rawK = 100·(close - lowest low) / (highest high - lowest low) over kWindow
//	%K   = SMA(rawK, kSmooth)
//	%D   = SMA(%K, dWindow)
//
// A flat high/low range leaves rawK undefined rather than dividing by zero.
// The first defined %D sits at index kWindow+kSmooth+dWindow-3.
func Stochastic(high, low, close []float64, kWindow, dWindow, kSmooth int) (Oscillator, error) {
	if kWindow < 1 || dWindow < 1 || kSmooth < 1 {
		return Oscillator{}, fmt.Errorf("%w: stochastic windows k=%d d=%d smooth=%d",
			ErrInvalidParameter, kWindow, dWindow, kSmooth)
	}
	if len(high) != len(close) || len(low) != len(close) {
		return Oscillator{}, fmt.Errorf("%w: stochastic input lengths high=%d low=%d close=%d",
			ErrInvalidParameter, len(high), len(low), len(close))
	}

	n := len(close)
	rawK := make([]float64, n)
	highest := newRollingExtreme(kWindow, true)
	lowest := newRollingExtreme(kWindow, false)
	for i := 0; i < n; i++ {
		hh, hReady := highest.push(i, high[i])
		ll, lReady := lowest.push(i, low[i])
		rawK[i] = math.NaN()
		if !hReady || !lReady || !isFinite(close[i]) {
			continue
		}
		// flat or inverted range
		if den := hh - ll; den > 0 {
			rawK[i] = 100 * (close[i] - ll) / den
		}
	}

	k, err := SMA(rawK, kSmooth)
	if err != nil {
		return Oscillator{}, err
	}
	d, err := SMA(k, dWindow)
	if err != nil {
		return Oscillator{}, err
	}
	return Oscillator{K: k, D: d}, nil
}
