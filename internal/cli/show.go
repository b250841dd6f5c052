package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"halving-chart/internal/app"
)

var (
	showLimit     int
	showSymbol    string
	showTimeframe string
	showAlerts    bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recently cached bars or sent alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Symbol:    showSymbol,
			Timeframe: showTimeframe,
			Limit:     showLimit,
			Alerts:    showAlerts,
		}

		return getApp().Show(cmd.Context(), cmd.OutOrStdout(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of rows to display")
	showCmd.Flags().StringVar(&showSymbol, "symbol", "", "Ticker symbol (defaults to config)")
	showCmd.Flags().StringVar(&showTimeframe, "timeframe", "", "Bar timeframe (defaults to config)")
	showCmd.Flags().BoolVar(&showAlerts, "alerts", false, "Show sent alerts instead of bars")
}
