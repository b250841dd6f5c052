package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"halving-chart/internal/alerting"
	"halving-chart/internal/config"
	"halving-chart/internal/fetcher"
	"halving-chart/internal/market"
	"halving-chart/internal/overlay"
	"halving-chart/internal/pipeline"
	"halving-chart/internal/resample"
	"halving-chart/internal/scheduler"
	"halving-chart/internal/signals"
	"halving-chart/internal/storage"
)

// SourceYahoo tags bars cached from the chart API.
const SourceYahoo = "yahoo"

// Request selects the bars a snapshot is built from. Empty fields fall back
// to the configured symbol, timeframe and the timeframe's default period.
// A non-zero From takes precedence over Period.
type Request struct {
	Symbol        string
	Timeframe     string
	Period        string
	From          time.Time
	To            time.Time
	WithReference bool
}

// Snapshot is one computed chart state.
type Snapshot struct {
	Request     Request
	Timeframe   market.Timeframe
	Frame       *pipeline.Frame
	Annotations []overlay.Annotation
	Signals     signals.Signals
	Reference   *fetcher.ReferencePrice
	// FromCache reports that the provider failed and bars were read back
	// from the bar cache.
	FromCache   bool
	GeneratedAt time.Time
}

// Dependencies are the collaborators a Service drives. Every field except
// Bars is optional.
type Dependencies struct {
	Bars       fetcher.BarFetcher
	Reference  fetcher.ReferencePriceFetcher
	BarStore   storage.BarStore
	AlertStore storage.AlertStore
	Locker     storage.AdvisoryLocker
	Notifier   alerting.Notifier
	Scheduler  *scheduler.Scheduler
	// Publish receives every snapshot built by ProcessBucket.
	Publish func(ctx context.Context, snap *Snapshot) error
}

// Service orchestrates fetching, indicator computation, caching and alerting.
type Service struct {
	deps   Dependencies
	logger zerolog.Logger

	symbol     string
	timeframe  string
	indicators pipeline.Config
	table      signals.Table

	alertsOn   bool
	overbought float64
	oversold   float64
	cooldown   time.Duration
	channels   []string
	lockKey    int64

	mu       sync.Mutex
	lastSent map[string]time.Time
	now      func() time.Time
}

// New constructs the chart service.
func New(cfg *config.Config, deps Dependencies, logger zerolog.Logger) (*Service, error) {
	if deps.Bars == nil {
		return nil, errors.New("service: bar fetcher is required")
	}
	table, err := cfg.Signals.Table()
	if err != nil {
		return nil, err
	}
	if err := cfg.Indicators.Validate(); err != nil {
		return nil, err
	}

	return &Service{
		deps:       deps,
		logger:     logger.With().Str("component", "service").Logger(),
		symbol:     cfg.Source.Symbol,
		timeframe:  cfg.Source.Timeframe,
		indicators: cfg.Indicators,
		table:      table,
		alertsOn:   cfg.Alerting.Enabled,
		overbought: cfg.Alerting.Overbought,
		oversold:   cfg.Alerting.Oversold,
		cooldown:   cfg.Alerting.Cooldown,
		channels:   cfg.Alerting.Channels,
		lockKey:    cfg.Scheduler.AdvisoryLockKey,
		lastSent:   make(map[string]time.Time),
		now:        time.Now,
	}, nil
}

// Snapshot fetches bars (and optionally the on-chain reference price)
// concurrently, then computes indicators and places the calendar signals.
// When the provider fails, cached bars for the same window are used.
func (s *Service) Snapshot(ctx context.Context, req Request) (*Snapshot, error) {
	req = s.withDefaults(req)
	tf, err := market.LookupTimeframe(req.Timeframe)
	if err != nil {
		return nil, err
	}
	if req.Period == "" {
		req.Period = tf.DefaultPeriod
	}
	if !req.From.IsZero() && !req.To.IsZero() && !req.From.Before(req.To) {
		return nil, fmt.Errorf("from %s must be before to %s", req.From.Format(time.DateOnly), req.To.Format(time.DateOnly))
	}

	var (
		series   market.Series
		fetchErr error
		ref      *fetcher.ReferencePrice
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		series, fetchErr = s.fetchSeries(gctx, req, tf)
		return nil
	})
	if req.WithReference && s.deps.Reference != nil {
		g.Go(func() error {
			price, err := s.deps.Reference.FetchReference(gctx)
			if err != nil {
				s.logger.Warn().Err(err).Msg("reference price unavailable")
				return nil
			}
			ref = &price
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fromCache := false
	if fetchErr != nil {
		cached, err := s.loadCached(ctx, req, tf)
		if err != nil || cached.Len() == 0 {
			return nil, fmt.Errorf("fetch bars: %w", fetchErr)
		}
		s.logger.Warn().Err(fetchErr).Int("bars", cached.Len()).Msg("provider failed; using cached bars")
		series = cached
		fromCache = true
	} else {
		s.cacheSeries(ctx, series)
	}

	frame, err := pipeline.Compute(series, s.indicators)
	if err != nil {
		return nil, fmt.Errorf("compute indicators: %w", err)
	}
	sig := s.table.Generate()
	annotations, err := overlay.Assemble(frame.Series, sig)
	if err != nil {
		return nil, fmt.Errorf("assemble overlay: %w", err)
	}

	s.logger.Debug().
		Str("symbol", req.Symbol).
		Str("timeframe", tf.Name).
		Int("bars", frame.Len()).
		Int("annotations", len(annotations)).
		Msg("snapshot computed")

	return &Snapshot{
		Request:     req,
		Timeframe:   tf,
		Frame:       frame,
		Annotations: annotations,
		Signals:     sig,
		Reference:   ref,
		FromCache:   fromCache,
		GeneratedAt: s.now().UTC(),
	}, nil
}

func (s *Service) withDefaults(req Request) Request {
	if req.Symbol == "" {
		req.Symbol = s.symbol
	}
	if req.Timeframe == "" {
		req.Timeframe = s.timeframe
	}
	return req
}

// FetchSeries loads the bars for req from the provider without computing
// indicators or touching the cache.
func (s *Service) FetchSeries(ctx context.Context, req Request) (market.Series, error) {
	req = s.withDefaults(req)
	tf, err := market.LookupTimeframe(req.Timeframe)
	if err != nil {
		return market.Series{}, err
	}
	if req.Period == "" {
		req.Period = tf.DefaultPeriod
	}
	return s.fetchSeries(ctx, req, tf)
}

// fetchSeries loads bars at the provider interval and resamples them when
// the timeframe has no native provider bar. The returned series is labelled
// with the timeframe name.
func (s *Service) fetchSeries(ctx context.Context, req Request, tf market.Timeframe) (market.Series, error) {
	series, err := s.deps.Bars.FetchBars(ctx, fetcher.BarRequest{
		Symbol:   req.Symbol,
		Interval: tf.FetchInterval,
		Range:    req.Period,
		From:     req.From,
		To:       req.To,
	})
	if err != nil {
		return market.Series{}, err
	}

	if tf.ResampleTo != "" {
		interval, err := resample.GetInterval(tf.ResampleTo)
		if err != nil {
			return market.Series{}, err
		}
		if series, err = resample.Resample(series, interval); err != nil {
			return market.Series{}, err
		}
	}
	series.Interval = tf.Name
	return series, nil
}

func (s *Service) cacheSeries(ctx context.Context, series market.Series) {
	if s.deps.BarStore == nil || series.Len() == 0 {
		return
	}
	n, err := s.deps.BarStore.UpsertBars(ctx, storage.RecordsFromSeries(series, SourceYahoo))
	if err != nil {
		s.logger.Error().Err(err).Str("timeframe", series.Interval).Msg("failed to cache bars")
		return
	}
	s.logger.Debug().Int("bars", n).Str("timeframe", series.Interval).Msg("bars cached")
}

func (s *Service) loadCached(ctx context.Context, req Request, tf market.Timeframe) (market.Series, error) {
	if s.deps.BarStore == nil {
		return market.Series{}, storage.ErrNotConfigured
	}
	now := s.now().UTC()
	from, to := req.From, req.To
	if from.IsZero() {
		start, err := market.PeriodStart(req.Period, now)
		if err != nil {
			return market.Series{}, err
		}
		from = start
	}
	if to.IsZero() {
		to = now
	}
	records, err := s.deps.BarStore.ListBarsBetween(ctx, req.Symbol, tf.Name, from, to)
	if err != nil {
		return market.Series{}, err
	}
	return storage.SeriesFromRecords(req.Symbol, tf.Name, time.UTC, records), nil
}

// Run begins the refresh loop.
func (s *Service) Run(ctx context.Context) error {
	if s.deps.Scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.deps.Scheduler.Run(ctx, s.ProcessBucket)
}

// ProcessBucket builds a fresh snapshot, publishes it and dispatches any
// alerts raised by the latest bar.
func (s *Service) ProcessBucket(ctx context.Context, bucket time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("bucket", bucket).Msg("skip bucket because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	snap, err := s.Snapshot(ctx, Request{WithReference: true})
	if err != nil {
		return err
	}

	if s.deps.Publish != nil {
		if err := s.deps.Publish(ctx, snap); err != nil {
			return fmt.Errorf("publish snapshot: %w", err)
		}
	}

	last := snap.Frame.Series.Bars[snap.Frame.Len()-1]
	s.logger.Info().
		Time("bucket", bucket).
		Time("last_bar", last.Time).
		Float64("close", last.Close).
		Bool("from_cache", snap.FromCache).
		Msg("snapshot refreshed")

	if !s.alertsOn || s.deps.Notifier == nil {
		return nil
	}
	alerts := Evaluate(snap.Frame, snap.Annotations, s.overbought, s.oversold)
	if len(alerts) == 0 {
		return nil
	}
	s.Dispatch(ctx, alerts, snap.Reference)
	return nil
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.deps.Locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.deps.Locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

func alertKey(a Alert) string {
	return strings.Join([]string{a.Symbol, a.Timeframe, a.Kind}, "|")
}
