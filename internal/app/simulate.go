package app

import (
	"context"
	"errors"
	"math"
	"time"

	"halving-chart/internal/fetcher"
	"halving-chart/internal/market"
	"halving-chart/internal/service"
	"halving-chart/internal/signals"
)

// SimulateAlert 构造一段以最近一次减半日收尾的日线，并走完整的告警流程。
func (a *App) SimulateAlert(ctx context.Context, price float64) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}
	if price <= 0 {
		return errors.New("price 必须大于 0")
	}

	table, err := a.Config.Signals.Table()
	if err != nil {
		return err
	}
	last := table.Anchors[len(table.Anchors)-1]

	cfg := *a.Config
	cfg.Source.Timeframe = "1d"
	cfg.Scheduler.AdvisoryLockKey = 0

	svc, err := service.New(&cfg, service.Dependencies{
		Bars:     &staticBarFetcher{series: syntheticSeries(cfg.Source.Symbol, last, price, 120)},
		Notifier: a.newNotifier(),
	}, a.Logger)
	if err != nil {
		return err
	}

	bucket := last.In(time.UTC)
	return svc.ProcessBucket(ctx, bucket)
}

// syntheticSeries returns n daily bars ending on end, oscillating around price.
func syntheticSeries(symbol string, end signals.Date, price float64, n int) market.Series {
	bars := make([]market.Bar, n)
	for i := range bars {
		day := end.AddDays(i - n + 1).In(time.UTC)
		base := price * (1 + 0.05*math.Sin(float64(i)/8))
		bars[i] = market.Bar{
			Time:   day,
			Open:   base * 0.995,
			High:   base * 1.01,
			Low:    base * 0.985,
			Close:  base,
			Volume: 1,
		}
	}
	return market.Series{Symbol: symbol, Interval: "1d", Location: time.UTC, Bars: bars}
}

type staticBarFetcher struct {
	series market.Series
}

func (s *staticBarFetcher) FetchBars(ctx context.Context, req fetcher.BarRequest) (market.Series, error) {
	return s.series.Clone(), nil
}

var _ fetcher.BarFetcher = (*staticBarFetcher)(nil)
