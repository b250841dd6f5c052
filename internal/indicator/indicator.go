// Package indicator computes technical indicators over ordered price series.
//
// Every function is a pure transform: it reads its inputs and returns freshly
// allocated slices aligned 1:1 with them. Positions without enough history are
// NaN, and a non-finite input makes every window that contains it NaN.
package indicator

import (
	"errors"
	"math"
)

// ErrInvalidParameter reports a window, span or input shape that cannot be computed.
var ErrInvalidParameter = errors.New("indicator: invalid parameter")

// Undefined reports whether v marks a position without a value.
func Undefined(v float64) bool { return math.IsNaN(v) }

// FirstDefined returns the index of the first defined value, or -1.
func FirstDefined(series []float64) int {
	for i, v := range series {
		if !Undefined(v) {
			return i
		}
	}
	return -1
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func undefinedSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
