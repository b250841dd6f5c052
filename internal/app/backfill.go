package app

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"halving-chart/internal/fetcher"
	"halving-chart/internal/market"
	"halving-chart/internal/service"
	"halving-chart/internal/storage"
)

type window struct {
	from, to time.Time
}

// Backfill loads historical bars into the cache, one provider request per
// window, with up to opts.Workers requests in flight.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	timeframe := opts.Timeframe
	if timeframe == "" {
		timeframe = a.Config.Source.Timeframe
	}
	tf, err := market.LookupTimeframe(timeframe)
	if err != nil {
		return err
	}

	start := opts.From.UTC().Truncate(24 * time.Hour)
	end := opts.To.UTC()
	if !start.Before(end) {
		return errors.New("回填范围为空，请检查 --from/--to")
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	var store storage.Backend
	if opts.DryRun {
		a.Logger.Warn().Msg("回填 dry-run：不会写入数据库")
	} else {
		var closeStore func()
		store, closeStore, err = a.openStore(ctx)
		if err != nil {
			return err
		}
		if store == nil {
			return errors.New("database.dsn 未配置，无法回填")
		}
		if closeStore != nil {
			defer closeStore()
		}
	}

	svc, err := a.newService(nil, service.Dependencies{})
	if err != nil {
		return err
	}

	var processed, failed, written atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, w := range splitWindows(start, end, windowSize(tf)) {
		w := w
		g.Go(func() error {
			series, err := svc.FetchSeries(gctx, service.Request{
				Symbol:    opts.Symbol,
				Timeframe: tf.Name,
				From:      w.from,
				To:        w.to,
			})
			if errors.Is(err, fetcher.ErrNoData) {
				a.Logger.Debug().Time("from", w.from).Time("to", w.to).Msg("窗口内无数据")
				processed.Add(1)
				return nil
			}
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed.Add(1)
				a.Logger.Error().Err(err).Time("from", w.from).Time("to", w.to).Msg("回填失败")
				return nil
			}

			if store != nil {
				n, err := store.UpsertBars(gctx, storage.RecordsFromSeries(series, service.SourceYahoo))
				if err != nil {
					failed.Add(1)
					a.Logger.Error().Err(err).Time("from", w.from).Msg("写入缓存失败")
					return nil
				}
				written.Add(int64(n))
			}
			processed.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	a.Logger.Info().
		Str("timeframe", tf.Name).
		Int64("processed", processed.Load()).
		Int64("failed", failed.Load()).
		Int64("bars", written.Load()).
		Msg("回填完成")
	if failed.Load() > 0 {
		return errors.New("部分窗口回填失败，请检查日志")
	}
	return nil
}

// windowSize keeps intraday requests inside the provider's lookback limit
// for hourly bars.
func windowSize(tf market.Timeframe) time.Duration {
	if tf.FetchInterval == "1h" {
		return 30 * 24 * time.Hour
	}
	return 365 * 24 * time.Hour
}

func splitWindows(start, end time.Time, size time.Duration) []window {
	var out []window
	for from := start; from.Before(end); from = from.Add(size) {
		to := from.Add(size)
		if to.After(end) {
			to = end
		}
		out = append(out, window{from: from, to: to})
	}
	return out
}
