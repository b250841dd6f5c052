package fetcher

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"halving-chart/internal/market"
)

// BarRequest selects a run of bars from the provider. When From is zero the
// provider-relative Range (e.g. "6mo", "1y", "max") is used instead.
type BarRequest struct {
	Symbol   string
	Interval string
	Range    string
	From     time.Time
	To       time.Time
}

// BarFetcher retrieves OHLCV bars.
type BarFetcher interface {
	FetchBars(ctx context.Context, req BarRequest) (market.Series, error)
}

// ReferencePrice is an on-chain price observation.
type ReferencePrice struct {
	Price     decimal.Decimal
	RoundID   string
	UpdatedAt time.Time
	Block     uint64
}

// ReferencePriceFetcher retrieves the on-chain reference price.
type ReferencePriceFetcher interface {
	FetchReference(ctx context.Context) (ReferencePrice, error)
}
