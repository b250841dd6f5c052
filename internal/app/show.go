package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"halving-chart/internal/storage"
)

// Show prints the most recent cached bars or recorded alerts.
func (a *App) Show(ctx context.Context, w io.Writer, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show cached data")
	}
	if closeStore != nil {
		defer closeStore()
	}

	if opts.Alerts {
		return a.showAlerts(ctx, w, store, opts.Limit)
	}

	symbol := opts.Symbol
	if symbol == "" {
		symbol = a.Config.Source.Symbol
	}
	timeframe := opts.Timeframe
	if timeframe == "" {
		timeframe = a.Config.Source.Timeframe
	}

	bars, err := store.ListRecentBars(ctx, symbol, timeframe, opts.Limit)
	if err != nil {
		return err
	}
	if len(bars) == 0 {
		fmt.Fprintln(w, "no bars cached")
		return nil
	}

	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tOpen\tHigh\tLow\tClose\tVolume\tSource")

	for _, bar := range bars {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			bar.Bucket.UTC().Format(time.RFC3339),
			formatDecimal(bar.Open, 2),
			formatDecimal(bar.High, 2),
			formatDecimal(bar.Low, 2),
			formatDecimal(bar.Close, 2),
			formatDecimal(bar.Volume, 0),
			bar.Source,
		)
	}

	return writer.Flush()
}

func (a *App) showAlerts(ctx context.Context, w io.Writer, store storage.AlertStore, limit int) error {
	alerts, err := store.ListRecentAlerts(ctx, limit)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(w, "no alerts recorded")
		return nil
	}

	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Sent (UTC)\tSymbol\tBar (UTC)\tKind\tClose\tChannels\tMessage")

	for _, alert := range alerts {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			alert.CreatedAt.UTC().Format(time.RFC3339),
			alert.Symbol,
			alert.BarTime.UTC().Format(time.RFC3339),
			alert.Kind,
			formatDecimal(alert.Value, 2),
			strings.Join(alert.Channels, ","),
			sanitizeInline(alert.Message),
		)
	}

	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
