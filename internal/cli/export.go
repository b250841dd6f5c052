package cli

import (
	"time"

	"github.com/spf13/cobra"

	"halving-chart/internal/app"
)

var (
	exportRequest   requestFlags
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export bars with indicator columns as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := exportRequest.request(time.Now())
		if err != nil {
			return err
		}

		opts := app.ExportOptions{
			Request:   req,
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			MaxPoints: exportMaxPoints,
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportRequest.bind(exportCmd)
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum rows to export (defaults to config)")
}
