package cli

import (
	"github.com/spf13/cobra"

	"halving-chart/internal/app"
)

var signalsFormat string

var signalsCmd = &cobra.Command{
	Use:   "signals",
	Short: "List halving dates with projected cycle tops and bottoms",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Signals(cmd.OutOrStdout(), app.SignalsOptions{Format: signalsFormat})
	},
}

func init() {
	signalsCmd.Flags().StringVar(&signalsFormat, "format", "table", "Output format table|json|yaml")
}
