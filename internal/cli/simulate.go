package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"liquidation-zone-alerts/internal/app"
)

var (
	simulatePrice        float64
	simulateZonePrice    float64
	simulateLongDensity  float64
	simulateShortDensity float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一次区间逼近并触发告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulatePrice <= 0 || simulateZonePrice <= 0 {
			return errors.New("--price 与 --zone-price 必须大于 0")
		}
		if simulateLongDensity < 0 || simulateShortDensity < 0 {
			return errors.New("density 参数不能为负")
		}

		opts := app.SimulateOptions{
			Price:        decimal.NewFromFloat(simulatePrice),
			ZonePrice:    decimal.NewFromFloat(simulateZonePrice),
			LongDensity:  decimal.NewFromFloat(simulateLongDensity),
			ShortDensity: decimal.NewFromFloat(simulateShortDensity),
		}
		return getApp().SimulateAlert(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().Float64Var(&simulatePrice, "price", 0, "当前价格")
	simulateCmd.Flags().Float64Var(&simulateZonePrice, "zone-price", 0, "区间价格")
	simulateCmd.Flags().Float64Var(&simulateLongDensity, "long-density", 0, "多头爆仓密度 (USD)")
	simulateCmd.Flags().Float64Var(&simulateShortDensity, "short-density", 0, "空头爆仓密度 (USD)")
}
