package render

import (
	"errors"
	"math"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"halving-chart/internal/market"
)

// candleSeries draws OHLC candles on the primary axis.
type candleSeries struct {
	name string
	xs   []float64
	bars []market.Bar
	up   drawing.Color
	down drawing.Color
}

func newCandleSeries(name string, bars []market.Bar, up, down drawing.Color) candleSeries {
	xs := make([]float64, len(bars))
	for i, b := range bars {
		xs[i] = chart.TimeToFloat64(b.Time)
	}
	return candleSeries{name: name, xs: xs, bars: bars, up: up, down: down}
}

func (cs candleSeries) GetName() string { return cs.name }
func (cs candleSeries) GetYAxis() chart.YAxisType { return chart.YAxisPrimary }
func (cs candleSeries) GetStyle() chart.Style {
	return chart.Style{StrokeColor: cs.up, StrokeWidth: 2, FillColor: cs.up}
}

func (cs candleSeries) Validate() error {
	if len(cs.bars) == 0 {
		return errors.New("candle series has no bars")
	}
	return nil
}

func (cs candleSeries) Len() int { return len(cs.bars) }

func (cs candleSeries) GetBoundedValues(index int) (x, y1, y2 float64) {
	b := cs.bars[index]
	return cs.xs[index], b.Low, b.High
}

func (cs candleSeries) Render(r chart.Renderer, box chart.Box, xrange, yrange chart.Range, _ chart.Style) {
	if len(cs.bars) == 0 {
		return
	}
	half := int(0.35 * float64(box.Width()) / float64(len(cs.bars)))

	for i, b := range cs.bars {
		if !finite(b.Open, b.High, b.Low, b.Close) {
			continue
		}
		color := cs.up
		if b.Close < b.Open {
			color = cs.down
		}

		x := box.Left + xrange.Translate(cs.xs[i])
		yHigh := box.Bottom - yrange.Translate(b.High)
		yLow := box.Bottom - yrange.Translate(b.Low)

		r.SetStrokeColor(color)
		r.SetStrokeWidth(1)
		r.SetStrokeDashArray(nil)
		r.MoveTo(x, yHigh)
		r.LineTo(x, yLow)
		r.Stroke()

		top := box.Bottom - yrange.Translate(math.Max(b.Open, b.Close))
		bottom := box.Bottom - yrange.Translate(math.Min(b.Open, b.Close))
		if bottom-top < 1 {
			bottom = top + 1
		}
		chart.Draw.Box(r, chart.Box{Top: top, Left: x - half, Right: x + half, Bottom: bottom}, chart.Style{
			FillColor:   color,
			StrokeColor: color,
			StrokeWidth: 1,
		})
	}
}

// lineSeries is a time series whose undefined (NaN) points break the line.
type lineSeries struct {
	name    string
	axis    chart.YAxisType
	style   chart.Style
	xs      []float64
	ys      []float64
	defined []int
}

func newLineSeries(name string, axis chart.YAxisType, style chart.Style, times []time.Time, ys []float64) lineSeries {
	ls := lineSeries{name: name, axis: axis, style: style, xs: make([]float64, len(times)), ys: ys}
	for i, t := range times {
		ls.xs[i] = chart.TimeToFloat64(t)
		if i < len(ys) && finite(ys[i]) {
			ls.defined = append(ls.defined, i)
		}
	}
	return ls
}

func (ls lineSeries) GetName() string { return ls.name }
func (ls lineSeries) GetYAxis() chart.YAxisType { return ls.axis }
func (ls lineSeries) GetStyle() chart.Style { return ls.style }
func (ls lineSeries) Validate() error { return nil }

// Len and GetValues expose defined points only, so range scans never see NaN.
func (ls lineSeries) Len() int { return len(ls.defined) }

func (ls lineSeries) GetValues(index int) (float64, float64) {
	i := ls.defined[index]
	return ls.xs[i], ls.ys[i]
}

func (ls lineSeries) Render(r chart.Renderer, box chart.Box, xrange, yrange chart.Range, defaults chart.Style) {
	style := ls.style.InheritFrom(defaults)
	for _, run := range runs(ls.defined) {
		chart.Draw.LineSeries(r, box, xrange, yrange, style, points{xs: ls.xs, ys: ls.ys, idx: run})
	}
}

// bandSeries fills the area between two columns where both are defined.
type bandSeries struct {
	name    string
	style   chart.Style
	xs      []float64
	upper   []float64
	lower   []float64
	defined []int
}

func newBandSeries(name string, style chart.Style, times []time.Time, upper, lower []float64) bandSeries {
	bs := bandSeries{name: name, style: style, xs: make([]float64, len(times)), upper: upper, lower: lower}
	for i, t := range times {
		bs.xs[i] = chart.TimeToFloat64(t)
		if i < len(upper) && i < len(lower) && finite(upper[i], lower[i]) {
			bs.defined = append(bs.defined, i)
		}
	}
	return bs
}

func (bs bandSeries) GetName() string { return bs.name }
func (bs bandSeries) GetYAxis() chart.YAxisType { return chart.YAxisPrimary }
func (bs bandSeries) GetStyle() chart.Style { return bs.style }
func (bs bandSeries) Validate() error { return nil }

func (bs bandSeries) Render(r chart.Renderer, box chart.Box, xrange, yrange chart.Range, defaults chart.Style) {
	style := bs.style.InheritFrom(defaults)
	for _, run := range runs(bs.defined) {
		if len(run) < 2 {
			continue
		}
		chart.Draw.BoundedSeries(r, box, xrange, yrange, style, bounded{xs: bs.xs, upper: bs.upper, lower: bs.lower, idx: run})
	}
}

// marker is a vertical signal line with its label.
type marker struct {
	x     float64
	label string
}

// markerSeries draws vertical lines spanning the price extent of the
// series with a label above (or below) the span.
type markerSeries struct {
	name      string
	style     chart.Style
	marks     []marker
	spanLow   float64
	spanHigh  float64
	labelLow  bool
	textColor drawing.Color
}

func (ms markerSeries) GetName() string { return ms.name }
func (ms markerSeries) GetYAxis() chart.YAxisType { return chart.YAxisPrimary }
func (ms markerSeries) GetStyle() chart.Style { return ms.style }
func (ms markerSeries) Validate() error { return nil }

func (ms markerSeries) Render(r chart.Renderer, box chart.Box, xrange, yrange chart.Range, defaults chart.Style) {
	style := ms.style.InheritFrom(defaults)
	text := chart.Style{FontColor: ms.textColor, FontSize: 9}.InheritFrom(defaults)

	top := box.Bottom - yrange.Translate(ms.spanHigh)
	bottom := box.Bottom - yrange.Translate(ms.spanLow)

	for _, m := range ms.marks {
		x := box.Left + xrange.Translate(m.x)

		style.GetStrokeOptions().WriteDrawingOptionsToRenderer(r)
		r.MoveTo(x, top)
		r.LineTo(x, bottom)
		r.Stroke()

		tb := chart.Draw.MeasureText(r, m.label, text)
		ty := top - 4
		if ms.labelLow {
			ty = bottom + tb.Height() + 4
		}
		chart.Draw.Text(r, m.label, x-tb.Width()/2, ty, text)
	}
	r.ResetStyle()
}

// oscillatorPanel draws the 0-100 frame of the lower panel: light grid
// lines with labels and the dashed overbought/oversold guides.
type oscillatorPanel struct {
	grid       chart.Style
	guide      chart.Style
	text       drawing.Color
	overbought float64
	oversold   float64
}

func (op oscillatorPanel) GetName() string { return "Overbought / Oversold" }
func (op oscillatorPanel) GetYAxis() chart.YAxisType { return chart.YAxisSecondary }
func (op oscillatorPanel) GetStyle() chart.Style { return op.guide }
func (op oscillatorPanel) Validate() error { return nil }

func (op oscillatorPanel) Render(r chart.Renderer, box chart.Box, _, yrange chart.Range, defaults chart.Style) {
	text := chart.Style{FontColor: op.text, FontSize: 8}.InheritFrom(defaults)

	hline := func(v float64, style chart.Style) int {
		y := box.Bottom - yrange.Translate(v)
		style.GetStrokeOptions().WriteDrawingOptionsToRenderer(r)
		r.MoveTo(box.Left, y)
		r.LineTo(box.Right, y)
		r.Stroke()
		return y
	}
	label := func(s string, y int) {
		tb := chart.Draw.MeasureText(r, s, text)
		chart.Draw.Text(r, s, box.Right-tb.Width()-4, y-2, text)
	}

	for _, v := range []float64{0, 50, 100} {
		y := hline(v, op.grid)
		label(formatLevel(v), y)
	}
	label(formatLevel(op.overbought)+" Overbought", hline(op.overbought, op.guide))
	label(formatLevel(op.oversold)+" Oversold", hline(op.oversold, op.guide))
	r.ResetStyle()
}

// points adapts one run of defined indexes to chart.ValuesProvider.
type points struct {
	xs, ys []float64
	idx    []int
}

func (p points) Len() int { return len(p.idx) }

func (p points) GetValues(index int) (float64, float64) {
	i := p.idx[index]
	return p.xs[i], p.ys[i]
}

// bounded adapts one run of defined indexes to chart.BoundedValuesProvider.
type bounded struct {
	xs, upper, lower []float64
	idx              []int
}

func (b bounded) Len() int { return len(b.idx) }

func (b bounded) GetBoundedValues(index int) (x, y1, y2 float64) {
	i := b.idx[index]
	return b.xs[i], b.upper[i], b.lower[i]
}

// runs splits ascending indexes into maximal consecutive runs.
func runs(idx []int) [][]int {
	var out [][]int
	start := 0
	for i := 1; i <= len(idx); i++ {
		if i == len(idx) || idx[i] != idx[i-1]+1 {
			if i > start {
				out = append(out, idx[start:i])
			}
			start = i
		}
	}
	return out
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

var (
	_ chart.Series                = candleSeries{}
	_ chart.BoundedValuesProvider = candleSeries{}
	_ chart.Series                = lineSeries{}
	_ chart.ValuesProvider        = lineSeries{}
	_ chart.Series                = bandSeries{}
	_ chart.Series                = markerSeries{}
	_ chart.Series                = oscillatorPanel{}
)
