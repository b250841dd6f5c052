package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"halving-chart/internal/alerting"
	"halving-chart/internal/fetcher"
	"halving-chart/internal/overlay"
	"halving-chart/internal/pipeline"
	"halving-chart/internal/storage"
)

// Alert kinds raised by the oscillator. Calendar alerts use the overlay
// category as their kind.
const (
	KindOverbought = "overbought"
	KindOversold   = "oversold"
)

// Alert is a condition raised by the most recent bar.
type Alert struct {
	Symbol    string
	Timeframe string
	BarTime   time.Time
	Kind      string
	Headline  string
	Close     float64
	K         float64
	D         float64
}

// Evaluate inspects the last bar of frame. It raises an alert when %K
// crosses into the overbought or oversold zone on that bar and one for every
// annotation snapped onto it.
func Evaluate(frame *pipeline.Frame, annotations []overlay.Annotation, overbought, oversold float64) []Alert {
	if frame == nil || frame.Len() == 0 {
		return nil
	}
	last := frame.Len() - 1
	bar := frame.Series.Bars[last]

	k, _ := frame.Column(pipeline.ColStochK)
	d, _ := frame.Column(pipeline.ColStochD)
	cur, prev := at(k, last), at(k, last-1)

	base := Alert{
		Symbol:    frame.Series.Symbol,
		Timeframe: frame.Series.Interval,
		BarTime:   bar.Time,
		Close:     bar.Close,
		K:         cur,
		D:         at(d, last),
	}

	var out []Alert
	if !math.IsNaN(cur) && !math.IsNaN(prev) {
		switch {
		case prev < overbought && cur >= overbought:
			a := base
			a.Kind = KindOverbought
			a.Headline = fmt.Sprintf("Stochastic %%K crossed above %g", overbought)
			out = append(out, a)
		case prev > oversold && cur <= oversold:
			a := base
			a.Kind = KindOversold
			a.Headline = fmt.Sprintf("Stochastic %%K crossed below %g", oversold)
			out = append(out, a)
		}
	}

	for _, ann := range overlay.AtIndex(annotations, last) {
		a := base
		a.Kind = string(ann.Category)
		a.Headline = fmt.Sprintf("%s (%s)", ann.Label, ann.Target)
		out = append(out, a)
	}
	return out
}

func at(col []float64, i int) float64 {
	if i < 0 || i >= len(col) {
		return math.NaN()
	}
	return col[i]
}

// Dispatch records and sends alerts. An alert is dropped while its kind is
// cooling down for the symbol and timeframe, or when the alert store already
// holds the same bar and kind. It returns how many notifications were sent.
func (s *Service) Dispatch(ctx context.Context, alerts []Alert, ref *fetcher.ReferencePrice) int {
	if s.deps.Notifier == nil {
		return 0
	}

	sent := 0
	for _, a := range alerts {
		key := alertKey(a)
		if s.coolingDown(key) {
			s.logger.Debug().Str("kind", a.Kind).Msg("alert suppressed by cooldown")
			continue
		}

		if s.deps.AlertStore != nil {
			_, inserted, err := s.deps.AlertStore.InsertAlert(ctx, storage.AlertRecord{
				Symbol:   a.Symbol,
				BarTime:  a.BarTime,
				Kind:     a.Kind,
				Message:  a.Headline,
				Value:    decimal.NewFromFloat(a.Close),
				Channels: s.channels,
			})
			if err != nil {
				s.logger.Error().Err(err).Str("kind", a.Kind).Msg("failed to persist alert record")
			} else if !inserted {
				s.logger.Debug().Str("kind", a.Kind).Time("bar", a.BarTime).Msg("alert already recorded")
				continue
			}
		}

		if err := s.deps.Notifier.Notify(ctx, s.notification(a, ref)); err != nil {
			s.logger.Error().Err(err).Str("kind", a.Kind).Msg("failed to dispatch alert")
			continue
		}
		s.markSent(key)
		sent++
	}
	return sent
}

func (s *Service) notification(a Alert, ref *fetcher.ReferencePrice) alerting.Notification {
	note := alerting.Notification{
		Symbol:    a.Symbol,
		Timeframe: a.Timeframe,
		BarTime:   a.BarTime,
		Kind:      a.Kind,
		Headline:  a.Headline,
		Close:     decimal.NewFromFloat(a.Close),
		Channels:  s.channels,
	}
	if !math.IsNaN(a.K) {
		note.K = decimal.NewFromFloat(a.K)
	}
	if !math.IsNaN(a.D) {
		note.D = decimal.NewFromFloat(a.D)
	}
	if ref != nil {
		price := ref.Price
		note.Reference = &price
	}
	return note
}

func (s *Service) coolingDown(key string) bool {
	if s.cooldown <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastSent[key]
	return ok && s.now().Sub(last) < s.cooldown
}

func (s *Service) markSent(key string) {
	s.mu.Lock()
	s.lastSent[key] = s.now()
	s.mu.Unlock()
}
