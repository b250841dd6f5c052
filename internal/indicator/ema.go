package indicator

import (
	"fmt"
	"math"
)

// EMA computes the exponential moving average with α = 2/(span+1), seeded
// with the first observation (no simple-average warm-up):
//
//	ema[0] = x[0]
//	ema[i] = α·x[i] + (1-α)·ema[i-1]
//
// A non-finite input yields NaN at that position; the recurrence skips it and
// continues from the last finite average.
func EMA(series []float64, span int) ([]float64, error) {
	if span < 1 {
		return nil, fmt.Errorf("%w: ema span %d", ErrInvalidParameter, span)
	}

	alpha := 2.0 / float64(span+1)
	out := make([]float64, len(series))
	seeded := false
	prev := 0.0

	for i, x := range series {
		if !isFinite(x) {
			out[i] = math.NaN()
			continue
		}
		if !seeded {
			prev = x
			seeded = true
		} else {
			prev = alpha*x + (1-alpha)*prev
		}
		out[i] = prev
	}
	return out, nil
}
