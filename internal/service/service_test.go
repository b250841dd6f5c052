package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"halving-chart/internal/alerting"
	"halving-chart/internal/config"
	"halving-chart/internal/fetcher"
	"halving-chart/internal/market"
	"halving-chart/internal/pipeline"
	"halving-chart/internal/signals"
	"halving-chart/internal/storage"
)

type fakeBars struct {
	series market.Series
	err    error
	last   fetcher.BarRequest
}

func (f *fakeBars) FetchBars(_ context.Context, req fetcher.BarRequest) (market.Series, error) {
	f.last = req
	if f.err != nil {
		return market.Series{}, f.err
	}
	return f.series.Clone(), nil
}

type fakeReference struct {
	price fetcher.ReferencePrice
	err   error
}

func (f fakeReference) FetchReference(context.Context) (fetcher.ReferencePrice, error) {
	return f.price, f.err
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []alerting.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n alerting.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
	return nil
}

func (r *recordingNotifier) count(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, note := range r.notes {
		if note.Kind == kind {
			n++
		}
	}
	return n
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Source.Symbol = "BTC-USD"
	cfg.Source.Timeframe = "1d"
	cfg.Indicators = pipeline.DefaultConfig()
	for _, d := range signals.Halvings {
		cfg.Signals.Anchors = append(cfg.Signals.Anchors, d.String())
	}
	cfg.Signals.TopOffsetDays = signals.DefaultTopOffsetDays
	cfg.Signals.BottomOffsetDays = signals.DefaultBottomOffsetDays
	cfg.Alerting.Enabled = true
	cfg.Alerting.Overbought = 80
	cfg.Alerting.Oversold = 20
	cfg.Alerting.Channels = []string{"telegram"}
	cfg.Scheduler.AdvisoryLockKey = 42
	return cfg
}

// dailyBars returns daily bars from start through end inclusive.
func dailyBars(start, end time.Time) market.Series {
	var bars []market.Bar
	for i, t := 0, start; !t.After(end); i, t = i+1, t.AddDate(0, 0, 1) {
		base := 62000 + 3000*math.Sin(float64(i)/7)
		bars = append(bars, market.Bar{
			Time:   t,
			Open:   base - 100,
			High:   base + 600,
			Low:    base - 700,
			Close:  base,
			Volume: 500 + float64(i),
		})
	}
	return market.Series{Symbol: "BTC-USD", Interval: "1d", Location: time.UTC, Bars: bars}
}

func newMemoryStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.OpenSQLite(config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return store
}

var (
	jan1     = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	halving4 = time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC)
)

func TestSnapshotComputesFrameAndCachesBars(t *testing.T) {
	store := newMemoryStore(t)
	bars := &fakeBars{series: dailyBars(jan1, halving4)}
	svc, err := New(testConfig(), Dependencies{Bars: bars, BarStore: store}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	snap, err := svc.Snapshot(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if bars.last.Interval != "1d" || bars.last.Range != "6mo" || bars.last.Symbol != "BTC-USD" {
		t.Fatalf("unexpected provider request %+v", bars.last)
	}
	if snap.Frame.Len() != 111 {
		t.Fatalf("expected 111 bars, got %d", snap.Frame.Len())
	}
	if _, ok := snap.Frame.Column(pipeline.EMAColumn(100)); !ok {
		t.Fatal("ema_100 column missing")
	}
	if len(snap.Annotations) != 1 || snap.Annotations[0].Label != "Halving 4" || snap.Annotations[0].Index != 110 {
		t.Fatalf("unexpected annotations %+v", snap.Annotations)
	}
	if snap.FromCache || snap.Reference != nil {
		t.Fatalf("unexpected snapshot flags %+v", snap)
	}

	count, err := store.CountBars(context.Background(), "BTC-USD", "1d")
	if err != nil {
		t.Fatalf("CountBars: %v", err)
	}
	if count != 111 {
		t.Fatalf("expected 111 cached bars, got %d", count)
	}
}

func TestSnapshotFallsBackToCache(t *testing.T) {
	store := newMemoryStore(t)
	bars := &fakeBars{series: dailyBars(jan1, halving4)}
	svc, err := New(testConfig(), Dependencies{Bars: bars, BarStore: store}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req := Request{From: jan1, To: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
	if _, err := svc.Snapshot(context.Background(), req); err != nil {
		t.Fatalf("warm snapshot: %v", err)
	}

	bars.err = errors.New("provider down")
	snap, err := svc.Snapshot(context.Background(), req)
	if err != nil {
		t.Fatalf("cached snapshot: %v", err)
	}
	if !snap.FromCache {
		t.Fatal("expected snapshot served from cache")
	}
	if snap.Frame.Len() != 111 || !snap.Frame.Series.Last().Equal(halving4) {
		t.Fatalf("unexpected cached frame: %d bars ending %s", snap.Frame.Len(), snap.Frame.Series.Last())
	}

	empty, err := New(testConfig(), Dependencies{Bars: bars}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := empty.Snapshot(context.Background(), req); err == nil {
		t.Fatal("expected fetch error without a cache")
	}
}

func TestSnapshotResamplesFourHour(t *testing.T) {
	start := time.Date(2024, 4, 19, 0, 0, 0, 0, time.UTC)
	hourly := make([]market.Bar, 48)
	for i := range hourly {
		p := 63000 + float64(i)*10
		hourly[i] = market.Bar{Time: start.Add(time.Duration(i) * time.Hour), Open: p, High: p + 50, Low: p - 50, Close: p + 5, Volume: 1}
	}
	bars := &fakeBars{series: market.Series{Symbol: "BTC-USD", Interval: "1h", Location: time.UTC, Bars: hourly}}

	svc, err := New(testConfig(), Dependencies{Bars: bars}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	snap, err := svc.Snapshot(context.Background(), Request{Timeframe: "4h"})
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if bars.last.Interval != "1h" || bars.last.Range != "1y" {
		t.Fatalf("unexpected provider request %+v", bars.last)
	}
	if snap.Frame.Len() != 12 || snap.Frame.Series.Interval != "4h" {
		t.Fatalf("expected 12 4h bars, got %d (%s)", snap.Frame.Len(), snap.Frame.Series.Interval)
	}
	if first := snap.Frame.Series.Bars[0]; first.Volume != 4 || first.Open != 63000 || first.Close != 63035 {
		t.Fatalf("unexpected first bucket %+v", first)
	}
}

func TestSnapshotRejectsBadRequests(t *testing.T) {
	svc, err := New(testConfig(), Dependencies{Bars: &fakeBars{}}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := svc.Snapshot(context.Background(), Request{Timeframe: "3d"}); err == nil {
		t.Fatal("expected unsupported timeframe error")
	}
	if _, err := svc.Snapshot(context.Background(), Request{From: halving4, To: jan1}); err == nil {
		t.Fatal("expected inverted range error")
	}
	if _, err := New(testConfig(), Dependencies{}, zerolog.Nop()); err == nil {
		t.Fatal("expected error without a bar fetcher")
	}
}

func TestReferenceFailureIsNotFatal(t *testing.T) {
	bars := &fakeBars{series: dailyBars(jan1, halving4)}

	failing, _ := New(testConfig(), Dependencies{Bars: bars, Reference: fakeReference{err: errors.New("rpc down")}}, zerolog.Nop())
	snap, err := failing.Snapshot(context.Background(), Request{WithReference: true})
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Reference != nil {
		t.Fatal("expected no reference price")
	}

	price := fetcher.ReferencePrice{Price: decimal.RequireFromString("64012.5"), RoundID: "7"}
	working, _ := New(testConfig(), Dependencies{Bars: bars, Reference: fakeReference{price: price}}, zerolog.Nop())
	snap, err = working.Snapshot(context.Background(), Request{WithReference: true})
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Reference == nil || !snap.Reference.Price.Equal(price.Price) {
		t.Fatalf("unexpected reference %+v", snap.Reference)
	}
}

func frameWithStoch(k, d []float64) *pipeline.Frame {
	series := dailyBars(jan1, jan1.AddDate(0, 0, len(k)-1))
	return &pipeline.Frame{
		Series:  series,
		Columns: map[string][]float64{pipeline.ColStochK: k, pipeline.ColStochD: d},
		Order:   []string{pipeline.ColStochK, pipeline.ColStochD},
	}
}

func TestEvaluateStochasticCrossings(t *testing.T) {
	nan := math.NaN()
	cases := []struct {
		name string
		k    []float64
		want string
	}{
		{"into overbought", []float64{nan, 75, 85}, KindOverbought},
		{"touching overbought", []float64{60, 70, 80}, KindOverbought},
		{"into oversold", []float64{30, 25, 15}, KindOversold},
		{"already overbought", []float64{85, 90, 95}, ""},
		{"undefined previous", []float64{nan, nan, 90}, ""},
		{"leaving oversold", []float64{10, 15, 25}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := []float64{nan, nan, 78}
			alerts := Evaluate(frameWithStoch(tc.k, d), nil, 80, 20)
			if tc.want == "" {
				if len(alerts) != 0 {
					t.Fatalf("expected no alerts, got %+v", alerts)
				}
				return
			}
			if len(alerts) != 1 || alerts[0].Kind != tc.want {
				t.Fatalf("expected one %s alert, got %+v", tc.want, alerts)
			}
			if alerts[0].K != tc.k[2] || alerts[0].D != 78 || alerts[0].Symbol != "BTC-USD" {
				t.Fatalf("unexpected alert payload %+v", alerts[0])
			}
		})
	}

	if Evaluate(nil, nil, 80, 20) != nil {
		t.Fatal("expected no alerts for nil frame")
	}
}

func TestEvaluateCalendarSignalOnLastBar(t *testing.T) {
	bars := &fakeBars{series: dailyBars(jan1, halving4)}
	svc, _ := New(testConfig(), Dependencies{Bars: bars}, zerolog.Nop())
	snap, err := svc.Snapshot(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	var calendar []Alert
	for _, a := range Evaluate(snap.Frame, snap.Annotations, 80, 20) {
		if a.Kind == "halving" {
			calendar = append(calendar, a)
		}
	}
	if len(calendar) != 1 || calendar[0].Headline != "Halving 4 (2024-04-20)" || !calendar[0].BarTime.Equal(halving4) {
		t.Fatalf("unexpected calendar alerts %+v", calendar)
	}

	// one bar later the halving is no longer on the last bar
	bars.series = dailyBars(jan1, halving4.AddDate(0, 0, 1))
	snap, _ = svc.Snapshot(context.Background(), Request{})
	for _, a := range Evaluate(snap.Frame, snap.Annotations, 80, 20) {
		if a.Kind == "halving" {
			t.Fatalf("unexpected halving alert %+v", a)
		}
	}
}

func TestProcessBucketDeduplicatesThroughStore(t *testing.T) {
	store := newMemoryStore(t)
	notifier := &recordingNotifier{}
	var published int
	deps := Dependencies{
		Bars:       &fakeBars{series: dailyBars(jan1, halving4)},
		BarStore:   store,
		AlertStore: store,
		Locker:     store,
		Notifier:   notifier,
		Publish: func(_ context.Context, snap *Snapshot) error {
			published++
			return nil
		},
	}
	svc, err := New(testConfig(), deps, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := svc.ProcessBucket(context.Background(), halving4); err != nil {
			t.Fatalf("ProcessBucket #%d: %v", i+1, err)
		}
	}
	if published != 2 {
		t.Fatalf("expected 2 published snapshots, got %d", published)
	}
	if got := notifier.count("halving"); got != 1 {
		t.Fatalf("expected the halving alert once, got %d", got)
	}

	alerts, err := store.ListRecentAlerts(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRecentAlerts: %v", err)
	}
	found := false
	for _, a := range alerts {
		if a.Kind == "halving" && a.BarTime.Equal(halving4) {
			found = true
		}
	}
	if !found {
		t.Fatalf("halving alert not recorded: %+v", alerts)
	}
}

func TestProcessBucketSkipsWhenLocked(t *testing.T) {
	store := newMemoryStore(t)
	published := 0
	svc, _ := New(testConfig(), Dependencies{
		Bars:    &fakeBars{series: dailyBars(jan1, halving4)},
		Locker:  store,
		Publish: func(context.Context, *Snapshot) error { published++; return nil },
	}, zerolog.Nop())

	unlock, ok, err := store.TryAdvisoryLock(context.Background(), 42)
	if err != nil || !ok {
		t.Fatalf("TryAdvisoryLock: %v %v", ok, err)
	}
	if err := svc.ProcessBucket(context.Background(), halving4); err != nil {
		t.Fatalf("ProcessBucket: %v", err)
	}
	if published != 0 {
		t.Fatal("bucket should be skipped while the lock is held")
	}

	unlock()
	if err := svc.ProcessBucket(context.Background(), halving4); err != nil {
		t.Fatalf("ProcessBucket: %v", err)
	}
	if published != 1 {
		t.Fatalf("expected one publish after unlock, got %d", published)
	}
}

func TestDispatchCooldown(t *testing.T) {
	cfg := testConfig()
	cfg.Alerting.Cooldown = time.Hour
	notifier := &recordingNotifier{}
	svc, _ := New(cfg, Dependencies{Bars: &fakeBars{}, Notifier: notifier}, zerolog.Nop())

	now := time.Date(2024, 4, 20, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	alert := Alert{Symbol: "BTC-USD", Timeframe: "1d", BarTime: halving4, Kind: KindOverbought, Close: 64000, K: 85, D: math.NaN()}
	ref := &fetcher.ReferencePrice{Price: decimal.RequireFromString("63990")}

	if sent := svc.Dispatch(context.Background(), []Alert{alert}, ref); sent != 1 {
		t.Fatalf("first dispatch sent %d", sent)
	}
	if sent := svc.Dispatch(context.Background(), []Alert{alert}, ref); sent != 0 {
		t.Fatalf("dispatch inside cooldown sent %d", sent)
	}
	now = now.Add(2 * time.Hour)
	if sent := svc.Dispatch(context.Background(), []Alert{alert}, nil); sent != 1 {
		t.Fatalf("dispatch after cooldown sent %d", sent)
	}

	first := notifier.notes[0]
	if first.Reference == nil || first.Reference.String() != "63990" {
		t.Fatalf("reference price not forwarded: %+v", first.Reference)
	}
	if !first.D.IsZero() || first.K.String() != "85" {
		t.Fatalf("unexpected stochastic values K=%s D=%s", first.K, first.D)
	}
	if notifier.notes[1].Reference != nil {
		t.Fatal("expected no reference on the second notification")
	}
}
