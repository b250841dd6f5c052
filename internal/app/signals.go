package app

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"halving-chart/internal/signals"
)

type cycleRow struct {
	Cycle   int          `json:"cycle" yaml:"cycle"`
	Halving signals.Date `json:"halving" yaml:"halving"`
	Top     signals.Date `json:"top" yaml:"top"`
	Bottom  signals.Date `json:"bottom" yaml:"bottom"`
}

// Signals prints the configured halving table with its projected tops and
// bottoms as a table, JSON or YAML.
func (a *App) Signals(w io.Writer, opts SignalsOptions) error {
	table, err := a.Config.Signals.Table()
	if err != nil {
		return err
	}
	sig := table.Generate()

	rows := make([]cycleRow, len(sig.Anchors))
	for i := range sig.Anchors {
		rows[i] = cycleRow{Cycle: i + 1, Halving: sig.Anchors[i], Top: sig.Tops[i], Bottom: sig.Bottoms[i]}
	}

	switch opts.Format {
	case "", "table":
		writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintf(writer, "Cycle\tHalving\tTop (+%dd)\tBottom (+%dd)\n", table.TopOffsetDays, table.BottomOffsetDays)
		for _, r := range rows {
			fmt.Fprintf(writer, "%d\t%s\t%s\t%s\n", r.Cycle, r.Halving, r.Top, r.Bottom)
		}
		return writer.Flush()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rows); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported format %q (table|json|yaml)", opts.Format)
	}
}
