package indicator

import (
	"math"
	"math/rand"
	"testing"
)

// randomWalk builds n bars whose close is always one of high, low or the
// midpoint of the bar.
func randomWalk(n int, seed int64) (high, low, close []float64) {
	rng := rand.New(rand.NewSource(seed))
	high = make([]float64, n)
	low = make([]float64, n)
	close = make([]float64, n)
	mid := 1000.0
	for i := 0; i < n; i++ {
		mid = math.Max(1, mid+rng.NormFloat64()*5)
		spread := math.Abs(rng.NormFloat64()) * 3
		high[i] = mid + spread
		low[i] = mid - spread
		switch rng.Intn(3) {
		case 0:
			close[i] = high[i]
		case 1:
			close[i] = low[i]
		default:
			close[i] = mid
		}
	}
	return high, low, close
}

// regimeChange holds ~80 for 500 bars, slides geometrically down to ~1e-4
// and stays there for 300 bars, each bar jittered by up to ±5%.
func regimeChange() []float64 {
	rng := rand.New(rand.NewSource(42))
	jitter := func(v float64) float64 { return v * (1 + 0.1*(rng.Float64()-0.5)) }

	var out []float64
	for i := 0; i < 500; i++ {
		out = append(out, jitter(80))
	}
	const steps = 60
	ratio := math.Pow(1e-4/80, 1.0/steps)
	level := 80.0
	for i := 0; i < steps; i++ {
		level *= ratio
		out = append(out, jitter(level))
	}
	for i := 0; i < 300; i++ {
		out = append(out, jitter(1e-4))
	}
	return out
}

// naiveWindow computes the mean and population deviation of
// series[i-window+1..i] with a fresh two-pass sum.
func naiveWindow(series []float64, i, window int) (mean, sd, scale float64) {
	vals := series[i-window+1 : i+1]
	for _, v := range vals {
		mean += v
		scale = math.Max(scale, math.Abs(v))
	}
	mean /= float64(window)
	for _, v := range vals {
		sd += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(sd / float64(window)), scale
}

func assertBandsMatchNaive(t *testing.T, series []float64, window int, mult float64) {
	t.Helper()
	bands, err := BollingerBands(series, window, mult)
	if err != nil {
		t.Fatalf("BollingerBands: %v", err)
	}
	assertUndefined(t, "middle", bands.Middle, window-1)
	for i := window - 1; i < len(series); i++ {
		mean, sd, scale := naiveWindow(series, i, window)
		tol := 1e-9 * scale
		assertClose(t, "middle", bands.Middle[i], mean, tol)
		assertClose(t, "upper", bands.Upper[i], mean+mult*sd, tol)
		assertClose(t, "lower", bands.Lower[i], mean-mult*sd, tol)
		if t.Failed() {
			t.Fatalf("first mismatch at index %d", i)
		}
	}
}

func TestBollingerLongSeriesMatchesNaive(t *testing.T) {
	_, _, close := randomWalk(50_000, 3)
	assertBandsMatchNaive(t, close, 20, 2)
}

func TestBollingerAfterPriceScaleDrop(t *testing.T) {
	series := regimeChange()
	assertBandsMatchNaive(t, series, 20, 2)

	bands, err := BollingerBands(series, 20, 2)
	if err != nil {
		t.Fatalf("BollingerBands: %v", err)
	}
	for i := len(series) - 250; i < len(series); i++ {
		if width := bands.Upper[i] - bands.Lower[i]; !(width > 0) {
			t.Fatalf("index %d: band width %g, want > 0", i, width)
		}
		_, sd, _ := naiveWindow(series, i, 20)
		assertClose(t, "stddev", (bands.Upper[i]-bands.Middle[i])/2, sd, 1e-9*sd)
	}
}

func TestSMAStaysWithinWindowRange(t *testing.T) {
	_, _, close := randomWalk(100_000, 11)
	for _, window := range []int{1, 3, 20} {
		sma, err := SMA(close, window)
		if err != nil {
			t.Fatalf("SMA(%d): %v", window, err)
		}
		for i := window - 1; i < len(close); i++ {
			lo, hi := close[i], close[i]
			for _, v := range close[i-window+1 : i+1] {
				lo = math.Min(lo, v)
				hi = math.Max(hi, v)
			}
			if sma[i] < lo || sma[i] > hi {
				t.Fatalf("window %d index %d: mean %.20g outside [%.20g, %.20g]", window, i, sma[i], lo, hi)
			}
		}
	}
}

func TestRollingStatsResetsOnNaN(t *testing.T) {
	stats := newRollingStats(3)
	for _, x := range []float64{1, 2, 3} {
		stats.push(x)
	}
	if stats.push(math.NaN()) {
		t.Fatal("window should not be complete after NaN")
	}
	if stats.push(10) || stats.push(20) {
		t.Fatal("window completed before holding 3 finite values")
	}
	if !stats.push(30) {
		t.Fatal("window should be complete")
	}
	m := stats.mean()
	assertClose(t, "mean", m, 20, 1e-12)
	assertClose(t, "stddev", stats.stddev(m), math.Sqrt(200.0/3), 1e-12)
}
