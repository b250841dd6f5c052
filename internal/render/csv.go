package render

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"halving-chart/internal/overlay"
	"halving-chart/internal/pipeline"
)

// WriteCSV writes one row per bar: OHLCV, every indicator column in
// computation order and the labels of any signals snapped to that bar.
// Undefined indicator values are written as empty cells.
func WriteCSV(w io.Writer, frame *pipeline.Frame, annotations []overlay.Annotation) error {
	if frame == nil {
		return fmt.Errorf("write csv: nil frame")
	}

	labels := make(map[int][]string, len(annotations))
	for _, a := range annotations {
		labels[a.Index] = append(labels[a.Index], a.Label)
	}

	writer := csv.NewWriter(w)

	header := append([]string{"time", "open", "high", "low", "close", "volume"}, frame.Order...)
	header = append(header, "signals")
	if err := writer.Write(header); err != nil {
		return err
	}

	layout := time.RFC3339
	for i, bar := range frame.Series.Bars {
		record := make([]string, 0, len(header))
		record = append(record,
			bar.Time.Format(layout),
			formatCell(bar.Open),
			formatCell(bar.High),
			formatCell(bar.Low),
			formatCell(bar.Close),
			formatCell(bar.Volume),
		)
		for _, name := range frame.Order {
			record = append(record, formatCell(frame.Columns[name][i]))
		}
		record = append(record, strings.Join(labels[i], ";"))
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatCell(v float64) string {
	if !finite(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
