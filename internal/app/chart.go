package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"halving-chart/internal/fetcher"
	"halving-chart/internal/render"
	"halving-chart/internal/service"
)

// Chart renders one snapshot to an image file.
func (a *App) Chart(ctx context.Context, opts ChartOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	svc, err := a.newService(store, service.Dependencies{})
	if err != nil {
		return err
	}

	output := opts.Output
	if output == "" {
		output = a.Config.Chart.Output
	}
	format, err := chartFormat(output, opts.Format)
	if err != nil {
		return err
	}

	snap, err := svc.Snapshot(ctx, opts.Request)
	if err != nil {
		return err
	}
	if err := a.writeChartAs(output, format, snap); err != nil {
		return err
	}

	a.Logger.Info().
		Str("output", output).
		Int("bars", snap.Frame.Len()).
		Int("annotations", len(snap.Annotations)).
		Msg("chart written")
	return nil
}

func chartFormat(path, format string) (string, error) {
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
		if format == "" {
			format = "png"
		}
	}
	switch format {
	case "png", "svg":
		return format, nil
	default:
		return "", fmt.Errorf("unsupported chart format %q (png|svg)", format)
	}
}

func (a *App) chartOptions(snap *service.Snapshot) render.Options {
	opts := render.DefaultOptions()
	opts.Width = a.Config.Chart.Width
	opts.Height = a.Config.Chart.Height
	opts.Overbought = a.Config.Alerting.Overbought
	opts.Oversold = a.Config.Alerting.Oversold
	opts.Title = a.Config.Chart.Title
	if opts.Title == "" {
		opts.Title = render.Title(snap.Request.Symbol)
	}
	opts.Reference = referenceLine(snap.Reference)
	return opts
}

func referenceLine(ref *fetcher.ReferencePrice) *render.Reference {
	if ref == nil {
		return nil
	}
	return &render.Reference{
		Price: ref.Price.InexactFloat64(),
		Label: "Chainlink " + ref.Price.StringFixed(2),
	}
}

func (a *App) writeChart(path string, snap *service.Snapshot) error {
	format, err := chartFormat(path, "")
	if err != nil {
		return err
	}
	return a.writeChartAs(path, format, snap)
}

// writeChartAs renders into a temporary file beside path and renames it
// into place.
func (a *App) writeChartAs(path, format string, snap *service.Snapshot) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".chart-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	opts := a.chartOptions(snap)
	var draw func(io.Writer) error
	if format == "svg" {
		draw = func(w io.Writer) error { return render.RenderSVG(w, snap.Frame, snap.Annotations, opts) }
	} else {
		draw = func(w io.Writer) error { return render.RenderPNG(w, snap.Frame, snap.Annotations, opts) }
	}

	if err := draw(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
