package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"halving-chart/internal/market"
	"halving-chart/internal/service"
)

// requestFlags are the bar selection flags shared by chart and export.
type requestFlags struct {
	symbol    string
	timeframe string
	period    string
	preset    string
	from      string
	to        string
	reference bool
}

func (f *requestFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.symbol, "symbol", "", "Ticker symbol (defaults to config)")
	cmd.Flags().StringVar(&f.timeframe, "timeframe", "", "Bar timeframe: "+strings.Join(market.TimeframeNames(), "|"))
	cmd.Flags().StringVar(&f.period, "period", "", "Provider range such as 6mo, 1y, 10y or max")
	cmd.Flags().StringVar(&f.preset, "preset", "", "Quick range ending now: 1d|1w|1m|3m|6m|ytd|1y|2y|5y|10y")
	cmd.Flags().StringVar(&f.from, "from", "", "Start date (YYYY-MM-DD or RFC3339, inclusive)")
	cmd.Flags().StringVar(&f.to, "to", "", "End date (YYYY-MM-DD or RFC3339, exclusive)")
	cmd.Flags().BoolVar(&f.reference, "reference", false, "Draw the on-chain reference price when ethereum.rpc_url is set")
}

func (f *requestFlags) request(now time.Time) (service.Request, error) {
	req := service.Request{
		Symbol:        f.symbol,
		Timeframe:     f.timeframe,
		Period:        f.period,
		WithReference: f.reference,
	}

	if f.preset != "" {
		if f.from != "" || f.period != "" {
			return service.Request{}, errors.New("--preset cannot be combined with --from or --period")
		}
		start, err := market.PresetStart(f.preset, now.UTC())
		if err != nil {
			return service.Request{}, err
		}
		req.From = start
	}

	if f.from != "" {
		from, err := parseDate(f.from)
		if err != nil {
			return service.Request{}, fmt.Errorf("invalid --from value: %w", err)
		}
		req.From = from
	}
	if f.to != "" {
		to, err := parseDate(f.to)
		if err != nil {
			return service.Request{}, fmt.Errorf("invalid --to value: %w", err)
		}
		req.To = to
	}
	if !req.From.IsZero() && !req.To.IsZero() && !req.From.Before(req.To) {
		return service.Request{}, errors.New("--from must be before --to")
	}
	return req, nil
}

// parseDate accepts a calendar date (UTC midnight) or an RFC3339 timestamp.
func parseDate(v string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, v)
}
