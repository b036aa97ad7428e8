package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var simulateURL string

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "将一条已缓存估值推送到告警通道",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateURL == "" {
			return errors.New("--url 必须提供")
		}
		return getApp().SimulateAlert(cmd.Context(), simulateURL)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateURL, "url", "", "已缓存估值的 listing url")
}
