package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var (
	simulateLocation string
	simulateHours    int
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "用合成数据触发一次质量告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateHours <= 0 {
			return errors.New("--hours 必须大于 0")
		}
		return getApp().SimulateAlert(cmd.Context(), simulateLocation, simulateHours)
	},
}

func init() {
	simulateCmd.Flags().StringVarP(&simulateLocation, "location", "l", "", "城市 key")
	simulateCmd.Flags().IntVar(&simulateHours, "hours", 6, "合成的小时数，少于 24 会触发完整性告警")
}
