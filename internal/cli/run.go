package cli

import (
	"github.com/spf13/cobra"

	"halving-chart/internal/app"
)

var (
	runOutput  string
	runOnStart bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Re-render the chart on a schedule and send signal alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context(), app.RunOptions{Output: runOutput, RunOnStart: runOnStart})
	},
}

func init() {
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "Image path (defaults to chart.output)")
	runCmd.Flags().BoolVar(&runOnStart, "now", true, "Render once immediately before waiting for the schedule")
}
