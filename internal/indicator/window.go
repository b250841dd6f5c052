package indicator

import "math"

// rollingStats holds the most recent finite values. A non-finite value empties
// the window, so a window is only complete once it holds `size` consecutive
// finite values. The mean and deviation are recomputed from the buffer on
// every call.
type rollingStats struct {
	size int
	buf  []float64
	head int
	n    int
}

func newRollingStats(size int) *rollingStats {
	return &rollingStats{size: size, buf: make([]float64, size)}
}

// push adds x and reports whether the window is complete.
func (r *rollingStats) push(x float64) bool {
	if !isFinite(x) {
		r.reset()
		return false
	}

	r.buf[r.head] = x
	r.head = (r.head + 1) % r.size
	if r.n < r.size {
		r.n++
	}
	return r.n == r.size
}

// values returns the buffered window in no particular order.
func (r *rollingStats) values() []float64 {
	return r.buf[:r.n]
}

// mean is the arithmetic mean of the current window, kept within the
// window's own min and max.
func (r *rollingStats) mean() float64 {
	vals := r.values()
	if len(vals) == 0 {
		return math.NaN()
	}

	lo, hi := vals[0], vals[0]
	sum := 0.0
	for _, v := range vals {
		sum += v
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	m := sum / float64(len(vals))
	// one-ulp rounding past the extremes
	return math.Max(lo, math.Min(hi, m))
}

// stddev is the population standard deviation of the current window around m.
func (r *rollingStats) stddev(m float64) float64 {
	vals := r.values()
	if len(vals) == 0 {
		return math.NaN()
	}

	ss := 0.0
	for _, v := range vals {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(vals)))
}

func (r *rollingStats) reset() {
	r.head, r.n = 0, 0
}

// rollingExtreme tracks the max (or min) of the last `size` finite values
// with a monotonic deque of indices.
type rollingExtreme struct {
	size    int
	highest bool
	idx     []int
	vals    []float64
	run     int
}

func newRollingExtreme(size int, highest bool) *rollingExtreme {
	return &rollingExtreme{size: size, highest: highest}
}

// push adds the value at position i and returns the current extreme and
// whether the window is complete.
func (r *rollingExtreme) push(i int, x float64) (float64, bool) {
	if !isFinite(x) {
		r.idx, r.vals, r.run = r.idx[:0], r.vals[:0], 0
		return math.NaN(), false
	}
	r.run++

	for len(r.vals) > 0 && r.dominated(r.vals[len(r.vals)-1], x) {
		r.idx = r.idx[:len(r.idx)-1]
		r.vals = r.vals[:len(r.vals)-1]
	}
	r.idx = append(r.idx, i)
	r.vals = append(r.vals, x)

	for r.idx[0] <= i-r.size {
		r.idx = r.idx[1:]
		r.vals = r.vals[1:]
	}

	return r.vals[0], r.run >= r.size
}

func (r *rollingExtreme) dominated(old, x float64) bool {
	if r.highest {
		return old <= x
	}
	return old >= x
}
