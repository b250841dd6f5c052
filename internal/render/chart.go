// Package render draws an indicator frame and its signal annotations as a
// two-panel candlestick chart, and exports frames as CSV.
package render

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"halving-chart/internal/overlay"
	"halving-chart/internal/pipeline"
)

// ErrNotEnoughBars is returned for frames with fewer than two bars.
var ErrNotEnoughBars = errors.New("render: at least two bars are required")

const (
	// pricePanelShare is the fraction of the plot height used by candles.
	pricePanelShare = 0.70
	// oscPanelShare leaves a small gap under the price panel.
	oscPanelShare = 0.27
)

// Theme holds the chart palette.
type Theme struct {
	Background drawing.Color
	Canvas     drawing.Color
	Text       drawing.Color
	Grid       drawing.Color

	Up   drawing.Color
	Down drawing.Color

	BandEdge   drawing.Color
	BandMiddle drawing.Color
	BandFill   drawing.Color

	StochK    drawing.Color
	StochD    drawing.Color
	Guide     drawing.Color
	Reference drawing.Color

	Halving drawing.Color
	Top     drawing.Color
	Bottom  drawing.Color
}

// DarkTheme mirrors a TradingView-style dark layout.
func DarkTheme() Theme {
	return Theme{
		Background: drawing.ColorFromHex("111111"),
		Canvas:     drawing.ColorFromHex("111111"),
		Text:       drawing.ColorFromHex("D9D9D9"),
		Grid:       drawing.Color{R: 255, G: 255, B: 255, A: 40},

		Up:   drawing.ColorFromHex("26a69a"),
		Down: drawing.ColorFromHex("ef5350"),

		BandEdge:   drawing.Color{R: 250, G: 250, B: 250, A: 77},
		BandMiddle: drawing.Color{R: 250, G: 250, B: 250, A: 128},
		BandFill:   drawing.Color{R: 250, G: 250, B: 250, A: 26},

		StochK:    drawing.ColorFromHex("2962FF"),
		StochD:    drawing.ColorFromHex("FF6D00"),
		Guide:     drawing.Color{R: 255, G: 255, B: 255, A: 128},
		Reference: drawing.ColorFromHex("00BCD4"),

		Halving: drawing.Color{R: 255, G: 255, B: 0, A: 204},
		Top:     drawing.Color{R: 0, G: 255, B: 0, A: 204},
		Bottom:  drawing.Color{R: 255, G: 0, B: 0, A: 204},
	}
}

var emaPalette = map[int]string{
	13:  "2962FF",
	21:  "FF6D00",
	50:  "9C27B0",
	100: "F9A825",
}

var emaFallback = []string{"8BC34A", "E91E63", "00BCD4", "795548"}

// Reference is an optional horizontal price line, e.g. an oracle quote.
type Reference struct {
	Price float64
	Label string
}

// Options configure a rendered chart.
type Options struct {
	Width      int
	Height     int
	Title      string
	Overbought float64
	Oversold   float64
	Reference  *Reference
	Theme      Theme
}

// DefaultOptions returns a 1600x900 dark chart with 80/20 guides.
func DefaultOptions() Options {
	return Options{
		Width:      1600,
		Height:     900,
		Overbought: 80,
		Oversold:   20,
		Theme:      DarkTheme(),
	}
}

// Title builds the chart heading for a symbol.
func Title(symbol string) string {
	if strings.HasPrefix(strings.ToUpper(symbol), "BTC") {
		return fmt.Sprintf("Bitcoin (%s) - TradingView Style Chart", symbol)
	}
	return fmt.Sprintf("%s - TradingView Style Chart", symbol)
}

// RenderPNG writes the chart as PNG.
func RenderPNG(w io.Writer, frame *pipeline.Frame, annotations []overlay.Annotation, opts Options) error {
	graph, err := Build(frame, annotations, opts)
	if err != nil {
		return err
	}
	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render png: %w", err)
	}
	return nil
}

// RenderSVG writes the chart as SVG.
func RenderSVG(w io.Writer, frame *pipeline.Frame, annotations []overlay.Annotation, opts Options) error {
	graph, err := Build(frame, annotations, opts)
	if err != nil {
		return err
	}
	if err := graph.Render(chart.SVG, w); err != nil {
		return fmt.Errorf("render svg: %w", err)
	}
	return nil
}

// Build assembles the go-chart definition without rendering it. Candles,
// Bollinger bands, EMAs and signal lines share the primary axis, which is
// stretched so prices occupy the top panel; the stochastic uses the
// secondary axis, stretched so 0-100 occupies the bottom panel.
func Build(frame *pipeline.Frame, annotations []overlay.Annotation, opts Options) (chart.Chart, error) {
	if frame == nil || frame.Len() < 2 {
		return chart.Chart{}, ErrNotEnoughBars
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		def := DefaultOptions()
		opts.Width, opts.Height = def.Width, def.Height
	}
	if opts.Theme == (Theme{}) {
		opts.Theme = DarkTheme()
	}
	theme := opts.Theme

	series := frame.Series
	times := series.Times()
	spanLow, spanHigh := series.PriceRange()
	lo, hi := priceExtent(frame, spanLow, spanHigh, opts.Reference)
	pad := (hi - lo) * 0.04
	if pad == 0 {
		pad = math.Max(math.Abs(hi)*0.01, 1)
	}
	lo, hi = lo-pad, hi+pad
	axisMin := lo - (hi-lo)*(1-pricePanelShare)/pricePanelShare

	var out []chart.Series

	upper, _ := frame.Column(pipeline.ColBBUpper)
	middle, _ := frame.Column(pipeline.ColBBMiddle)
	lower, _ := frame.Column(pipeline.ColBBLower)
	if upper != nil && lower != nil {
		out = append(out, newBandSeries("BB Range", chart.Style{
			FillColor:   theme.BandFill,
			StrokeColor: drawing.ColorTransparent,
			StrokeWidth: 0,
		}, times, upper, lower))
		out = append(out,
			newLineSeries("BB Upper", chart.YAxisPrimary, lineStyle(theme.BandEdge, 1, nil), times, upper),
			newLineSeries("BB Middle", chart.YAxisPrimary, lineStyle(theme.BandMiddle, 1, []float64{5, 4}), times, middle),
			newLineSeries("BB Lower", chart.YAxisPrimary, lineStyle(theme.BandEdge, 1, nil), times, lower),
		)
	}

	for i, span := range emaSpans(frame) {
		values, _ := frame.Column(pipeline.EMAColumn(span))
		out = append(out, newLineSeries(fmt.Sprintf("EMA %d", span), chart.YAxisPrimary,
			lineStyle(emaColor(span, i), 1.5, nil), times, values))
	}

	out = append(out, newCandleSeries(series.Symbol, series.Bars, theme.Up, theme.Down))

	if ref := opts.Reference; ref != nil && finite(ref.Price) {
		label := ref.Label
		if label == "" {
			label = "Reference " + strconv.FormatFloat(ref.Price, 'f', 2, 64)
		}
		ends := []time.Time{times[0], times[len(times)-1]}
		out = append(out, newLineSeries(label, chart.YAxisPrimary,
			lineStyle(theme.Reference, 1, []float64{2, 2}), ends, []float64{ref.Price, ref.Price}))
	}

	out = append(out, markerSeriesFor(annotations, theme, spanLow, spanHigh)...)

	out = append(out, oscillatorPanel{
		grid:       lineStyle(theme.Grid, 1, nil),
		guide:      lineStyle(theme.Guide, 1, []float64{5, 4}),
		text:       theme.Text,
		overbought: opts.Overbought,
		oversold:   opts.Oversold,
	})
	if k, ok := frame.Column(pipeline.ColStochK); ok {
		out = append(out, newLineSeries("Stoch %K", chart.YAxisSecondary, lineStyle(theme.StochK, 1.5, nil), times, k))
	}
	if d, ok := frame.Column(pipeline.ColStochD); ok {
		out = append(out, newLineSeries("Stoch %D", chart.YAxisSecondary, lineStyle(theme.StochD, 1.5, nil), times, d))
	}

	axisStyle := chart.Style{StrokeColor: theme.Grid, FontColor: theme.Text}
	graph := chart.Chart{
		Title:      opts.Title,
		TitleStyle: chart.Style{FontColor: theme.Text, FontSize: 14},
		Width:      opts.Width,
		Height:     opts.Height,
		Background: chart.Style{FillColor: theme.Background, Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10}},
		Canvas:     chart.Style{FillColor: theme.Canvas},
		XAxis: chart.XAxis{
			Name:           "Date",
			NameStyle:      chart.Style{FontColor: theme.Text},
			Style:          axisStyle,
			ValueFormatter: chart.TimeValueFormatterWithFormat(timeLayout(series.Interval)),
		},
		YAxis: chart.YAxis{
			Name:      "Price (USD)",
			NameStyle: chart.Style{FontColor: theme.Text},
			Style:     axisStyle,
			Ticks:     priceTicks(lo, hi, axisMin),
		},
		YAxisSecondary: chart.YAxis{
			Style: chart.Hidden(),
			Range: &chart.ContinuousRange{Min: 0, Max: 100 / oscPanelShare},
		},
		Series: out,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph, chart.Style{
		FillColor:   theme.Canvas,
		FontColor:   theme.Text,
		StrokeColor: theme.Grid,
	})}
	return graph, nil
}

func markerSeriesFor(annotations []overlay.Annotation, theme Theme, spanLow, spanHigh float64) []chart.Series {
	groups := []struct {
		category overlay.Category
		name     string
		color    drawing.Color
		dash     []float64
		low      bool
	}{
		{overlay.CategoryHalving, "Halvings", theme.Halving, []float64{2, 3}, false},
		{overlay.CategoryTop, "Cycle tops", theme.Top, []float64{6, 4}, false},
		{overlay.CategoryBottom, "Cycle bottoms", theme.Bottom, []float64{6, 4}, true},
	}

	var out []chart.Series
	for _, g := range groups {
		var marks []marker
		for _, a := range annotations {
			if a.Category == g.category {
				marks = append(marks, marker{x: chart.TimeToFloat64(a.At), label: a.Label})
			}
		}
		if len(marks) == 0 {
			continue
		}
		out = append(out, markerSeries{
			name:      g.name,
			style:     lineStyle(g.color, 1, g.dash),
			marks:     marks,
			spanLow:   spanLow,
			spanHigh:  spanHigh,
			labelLow:  g.low,
			textColor: g.color.WithAlpha(255),
		})
	}
	return out
}

// priceExtent covers the bars, every defined price overlay column and the
// reference line.
func priceExtent(frame *pipeline.Frame, lo, hi float64, ref *Reference) (float64, float64) {
	for _, name := range frame.Order {
		if name == pipeline.ColStochK || name == pipeline.ColStochD {
			continue
		}
		for _, v := range frame.Columns[name] {
			if finite(v) {
				lo = math.Min(lo, v)
				hi = math.Max(hi, v)
			}
		}
	}
	if ref != nil && finite(ref.Price) {
		lo = math.Min(lo, ref.Price)
		hi = math.Max(hi, ref.Price)
	}
	return lo, hi
}

// priceTicks labels round values inside [lo, hi] and pins the axis bottom to
// axisMin with an unlabeled tick.
func priceTicks(lo, hi, axisMin float64) []chart.Tick {
	step := niceStep((hi - lo) / 6)
	decimals := 0
	if step < 1 {
		decimals = int(math.Ceil(-math.Log10(step)))
	}

	ticks := []chart.Tick{{Value: axisMin}}
	for v := math.Ceil(lo/step) * step; v <= hi; v += step {
		ticks = append(ticks, chart.Tick{Value: v, Label: strconv.FormatFloat(v, 'f', decimals, 64)})
	}
	ticks = append(ticks, chart.Tick{Value: hi})
	return ticks
}

func niceStep(raw float64) float64 {
	if raw <= 0 || !finite(raw) {
		return 1
	}
	mag := math.Pow(10, math.Floor(math.Log10(raw)))
	for _, m := range []float64{1, 2, 2.5, 5, 10} {
		if raw <= m*mag {
			return m * mag
		}
	}
	return 10 * mag
}

// emaSpans lists the EMA spans present in the frame, in computation order.
func emaSpans(frame *pipeline.Frame) []int {
	var spans []int
	for _, name := range frame.Order {
		raw, ok := strings.CutPrefix(name, "ema_")
		if !ok {
			continue
		}
		if span, err := strconv.Atoi(raw); err == nil {
			spans = append(spans, span)
		}
	}
	return spans
}

func emaColor(span, index int) drawing.Color {
	if hex, ok := emaPalette[span]; ok {
		return drawing.ColorFromHex(hex)
	}
	return drawing.ColorFromHex(emaFallback[index%len(emaFallback)])
}

func lineStyle(color drawing.Color, width float64, dash []float64) chart.Style {
	return chart.Style{StrokeColor: color, StrokeWidth: width, StrokeDashArray: dash}
}

func timeLayout(interval string) string {
	if d, err := time.ParseDuration(interval); err == nil && d < 24*time.Hour {
		return "2006-01-02 15:04"
	}
	return "2006-01-02"
}

func formatLevel(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
