package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"halving-chart/internal/market"
)

// BarRecord is a cached OHLCV bar. Prices are stored as exact decimals so a
// round trip through NUMERIC columns is lossless.
type BarRecord struct {
	Symbol    string
	Interval  string
	Bucket    time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
	Source    string
	UpdatedAt time.Time
}

// AlertRecord captures an emitted signal notification for de-duplication.
type AlertRecord struct {
	ID        int64
	Symbol    string
	BarTime   time.Time
	Kind      string
	Message   string
	Value     decimal.Decimal
	Channels  []string
	CreatedAt time.Time
}

// RecordsFromSeries converts a series into cache records.
func RecordsFromSeries(series market.Series, source string) []BarRecord {
	out := make([]BarRecord, len(series.Bars))
	for i, b := range series.Bars {
		out[i] = BarRecord{
			Symbol:   series.Symbol,
			Interval: series.Interval,
			Bucket:   b.Time.UTC(),
			Open:     decimal.NewFromFloat(b.Open),
			High:     decimal.NewFromFloat(b.High),
			Low:      decimal.NewFromFloat(b.Low),
			Close:    decimal.NewFromFloat(b.Close),
			Volume:   decimal.NewFromFloat(b.Volume),
			Source:   source,
		}
	}
	return out
}

// SeriesFromRecords rebuilds a series from ordered cache records. Bar times
// are expressed in loc (UTC when nil).
func SeriesFromRecords(symbol, interval string, loc *time.Location, records []BarRecord) market.Series {
	if loc == nil {
		loc = time.UTC
	}
	bars := make([]market.Bar, len(records))
	for i, r := range records {
		bars[i] = market.Bar{
			Time:   r.Bucket.In(loc),
			Open:   r.Open.InexactFloat64(),
			High:   r.High.InexactFloat64(),
			Low:    r.Low.InexactFloat64(),
			Close:  r.Close.InexactFloat64(),
			Volume: r.Volume.InexactFloat64(),
		}
	}
	return market.Series{Symbol: symbol, Interval: interval, Location: loc, Bars: bars}
}
