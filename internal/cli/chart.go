package cli

import (
	"time"

	"github.com/spf13/cobra"

	"halving-chart/internal/app"
)

var (
	chartRequest requestFlags
	chartOutput  string
	chartFormat  string
)

var chartCmd = &cobra.Command{
	Use:   "chart",
	Short: "Render a candlestick chart with indicators and halving signals",
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := chartRequest.request(time.Now())
		if err != nil {
			return err
		}

		opts := app.ChartOptions{
			Request: req,
			Output:  chartOutput,
			Format:  chartFormat,
		}

		return getApp().Chart(cmd.Context(), opts)
	},
}

func init() {
	chartRequest.bind(chartCmd)
	chartCmd.Flags().StringVarP(&chartOutput, "output", "o", "", "Image path (defaults to chart.output)")
	chartCmd.Flags().StringVar(&chartFormat, "format", "", "Image format png|svg (inferred from --output)")
}
