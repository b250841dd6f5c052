// Package overlay turns calendar signals into annotations placed on the bars
// of a series.
package overlay

import (
	"fmt"
	"time"

	"halving-chart/internal/align"
	"halving-chart/internal/market"
	"halving-chart/internal/signals"
)

// Category selects how an annotation is drawn.
type Category string

const (
	CategoryHalving Category = "halving"
	CategoryTop     Category = "top"
	CategoryBottom  Category = "bottom"
)

// Annotation is one signal snapped onto a bar.
type Annotation struct {
	// At equals the time of the bar at Index.
	At       time.Time
	Index    int
	Label    string
	Category Category
	// Ordinal is the 1-based position of the anchor in the signal table.
	Ordinal int
	Target  signals.Date
	// LabelPrice is where the label sits: the series high for halvings and
	// tops, the series low for bottoms.
	LabelPrice float64
	SpanLow    float64
	SpanHigh   float64
}

type candidate struct {
	category Category
	prefix   string
	dates    []signals.Date
}

// Assemble aligns every signal that falls within the series' time range and
// returns annotations ordered halvings, tops, bottoms, each in anchor order.
// Naive signal dates are localized in series.Location.
func Assemble(series market.Series, sig signals.Signals) ([]Annotation, error) {
	if series.Len() == 0 {
		return nil, market.ErrEmptySeries
	}

	resolver := align.NewResolver(series.Location)
	stamps := series.Times()
	first, last := series.First(), series.Last()
	low, high := series.PriceRange()

	groups := []candidate{
		{CategoryHalving, "Halving", sig.Anchors},
		{CategoryTop, "Top", sig.Tops},
		{CategoryBottom, "Bottom", sig.Bottoms},
	}

	var out []Annotation
	for _, g := range groups {
		for i, d := range g.dates {
			target := align.NaiveDate(d.Year, d.Month, d.Day)
			at, err := resolver.Normalize(target)
			if err != nil {
				return nil, fmt.Errorf("%s %d (%s): %w", g.prefix, i+1, d, err)
			}
			if at.Before(first) || at.After(last) {
				continue
			}

			idx, err := resolver.NearestIndex(target, stamps)
			if err != nil {
				return nil, fmt.Errorf("%s %d (%s): %w", g.prefix, i+1, d, err)
			}

			labelPrice := high
			if g.category == CategoryBottom {
				labelPrice = low
			}
			out = append(out, Annotation{
				At:         stamps[idx],
				Index:      idx,
				Label:      fmt.Sprintf("%s %d", g.prefix, i+1),
				Category:   g.category,
				Ordinal:    i + 1,
				Target:     d,
				LabelPrice: labelPrice,
				SpanLow:    low,
				SpanHigh:   high,
			})
		}
	}
	return out, nil
}

// AtIndex returns the annotations placed on the bar at idx.
func AtIndex(annotations []Annotation, idx int) []Annotation {
	var out []Annotation
	for _, a := range annotations {
		if a.Index == idx {
			out = append(out, a)
		}
	}
	return out
}
