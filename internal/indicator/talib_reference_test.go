package indicator

import (
	"testing"

	"github.com/markcheno/go-talib"
)

// These tests pin the rolling implementations against TA-Lib on non-flat
// data. TA-Lib seeds its EMA with a simple average, so EMA is covered by the
// recurrence tests instead.

func TestSMAMatchesTALib(t *testing.T) {
	_, _, close := wave(250)
	got, err := SMA(close, 20)
	if err != nil {
		t.Fatalf("SMA: %v", err)
	}
	want := talib.Sma(close, 20)
	for i := 19; i < len(close); i++ {
		assertClose(t, "sma", got[i], want[i], 1e-6)
	}
}

func TestBollingerMatchesTALib(t *testing.T) {
	_, _, close := wave(250)
	got, err := BollingerBands(close, 20, 2)
	if err != nil {
		t.Fatalf("BollingerBands: %v", err)
	}
	upper, middle, lower := talib.BBands(close, 20, 2, 2, talib.SMA)
	for i := 19; i < len(close); i++ {
		assertClose(t, "upper", got.Upper[i], upper[i], 1e-6)
		assertClose(t, "middle", got.Middle[i], middle[i], 1e-6)
		assertClose(t, "lower", got.Lower[i], lower[i], 1e-6)
	}
}

func TestStochasticMatchesTALib(t *testing.T) {
	high, low, close := wave(250)
	got, err := Stochastic(high, low, close, 5, 3, 3)
	if err != nil {
		t.Fatalf("Stochastic: %v", err)
	}
	slowK, slowD := talib.Stoch(high, low, close, 5, 3, talib.SMA, 3, talib.SMA)
	for i := 8; i < len(close); i++ {
		assertClose(t, "%K", got.K[i], slowK[i], 1e-6)
		assertClose(t, "%D", got.D[i], slowD[i], 1e-6)
	}
}
