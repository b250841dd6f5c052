package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var simulatePrice float64

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟最近一次减半日的行情并触发告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulatePrice <= 0 {
			return errors.New("--price 必须大于 0")
		}
		return getApp().SimulateAlert(cmd.Context(), simulatePrice)
	},
}

func init() {
	simulateCmd.Flags().Float64Var(&simulatePrice, "price", 64000, "模拟收盘价中枢 (USD)")
}
