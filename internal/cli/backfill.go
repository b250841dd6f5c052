package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"halving-chart/internal/app"
)

var (
	backfillFrom      string
	backfillTo        string
	backfillSymbol    string
	backfillTimeframe string
	backfillDryRun    bool
	backfillWorkers   int
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Load historical bars into the cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		if backfillFrom == "" || backfillTo == "" {
			return fmt.Errorf("--from and --to must be provided")
		}

		from, err := parseDate(backfillFrom)
		if err != nil {
			return fmt.Errorf("invalid --from value: %w", err)
		}

		to, err := parseDate(backfillTo)
		if err != nil {
			return fmt.Errorf("invalid --to value: %w", err)
		}

		if !from.Before(to) {
			return fmt.Errorf("--from must be before --to")
		}

		opts := app.BackfillOptions{
			Symbol:    backfillSymbol,
			Timeframe: backfillTimeframe,
			From:      from,
			To:        to,
			DryRun:    backfillDryRun,
			Workers:   backfillWorkers,
		}

		return getApp().Backfill(cmd.Context(), opts)
	},
}

func init() {
	backfillCmd.Flags().StringVar(&backfillFrom, "from", "", "Start date (YYYY-MM-DD or RFC3339, inclusive)")
	backfillCmd.Flags().StringVar(&backfillTo, "to", "", "End date (YYYY-MM-DD or RFC3339, exclusive)")
	backfillCmd.Flags().StringVar(&backfillSymbol, "symbol", "", "Ticker symbol (defaults to config)")
	backfillCmd.Flags().StringVar(&backfillTimeframe, "timeframe", "", "Bar timeframe (defaults to config)")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "Fetch without writing to storage")
	backfillCmd.Flags().IntVar(&backfillWorkers, "workers", 2, "Number of concurrent provider requests")
}
