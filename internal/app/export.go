package app

import (
	"context"
	"errors"
	"math"
	"os"
	"sort"

	"halving-chart/internal/market"
	"halving-chart/internal/overlay"
	"halving-chart/internal/pipeline"
	"halving-chart/internal/render"
	"halving-chart/internal/service"
)

// Export renders a computed frame as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

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
	snap, err := svc.Snapshot(ctx, opts.Request)
	if err != nil {
		return err
	}

	frame, annotations := downsampleFrame(snap.Frame, snap.Annotations, opts.MaxPoints)
	a.Logger.Info().Int("total", snap.Frame.Len()).Int("exported", frame.Len()).Msg("exporting frame")

	if opts.CSVPath != "" {
		if err := writeFrameCSV(opts.CSVPath, frame, annotations); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		reduced := *snap
		reduced.Frame = frame
		reduced.Annotations = annotations
		if err := a.writeChartAs(opts.PNGPath, "png", &reduced); err != nil {
			return err
		}
	}

	return nil
}

// downsampleFrame keeps at most max evenly spaced rows, always including the
// rows that carry an annotation, and re-indexes the annotations.
func downsampleFrame(frame *pipeline.Frame, annotations []overlay.Annotation, max int) (*pipeline.Frame, []overlay.Annotation) {
	n := frame.Len()
	if max <= 0 || n <= max {
		return frame, annotations
	}

	keep := make(map[int]struct{}, max+len(annotations))
	if max == 1 {
		keep[n-1] = struct{}{}
	} else {
		step := float64(n-1) / float64(max-1)
		for i := 0; i < max; i++ {
			idx := int(math.Round(step * float64(i)))
			if idx >= n {
				idx = n - 1
			}
			keep[idx] = struct{}{}
		}
	}
	for _, ann := range annotations {
		keep[ann.Index] = struct{}{}
	}

	rows := make([]int, 0, len(keep))
	for idx := range keep {
		rows = append(rows, idx)
	}
	sort.Ints(rows)

	position := make(map[int]int, len(rows))
	out := &pipeline.Frame{
		Series:  frame.Series,
		Columns: make(map[string][]float64, len(frame.Columns)),
		Order:   frame.Order,
	}
	out.Series.Bars = make([]market.Bar, len(rows))
	for name := range frame.Columns {
		out.Columns[name] = make([]float64, len(rows))
	}
	for pos, idx := range rows {
		position[idx] = pos
		out.Series.Bars[pos] = frame.Series.Bars[idx]
		for name, col := range frame.Columns {
			out.Columns[name][pos] = col[idx]
		}
	}

	remapped := make([]overlay.Annotation, len(annotations))
	for i, ann := range annotations {
		ann.Index = position[ann.Index]
		remapped[i] = ann
	}
	return out, remapped
}

func writeFrameCSV(path string, frame *pipeline.Frame, annotations []overlay.Annotation) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := render.WriteCSV(file, frame, annotations); err != nil {
		return err
	}
	return file.Close()
}
