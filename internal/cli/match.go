package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"autosniper/internal/app"
)

var (
	matchURL   string
	matchLimit int
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Print comparable sales for one listing",
	RunE: func(cmd *cobra.Command, args []string) error {
		if matchURL == "" {
			return fmt.Errorf("--url must be provided")
		}
		return getApp().Match(cmd.Context(), app.MatchOptions{URL: matchURL, Limit: matchLimit})
	},
}

func init() {
	matchCmd.Flags().StringVar(&matchURL, "url", "", "Listing url")
	matchCmd.Flags().IntVar(&matchLimit, "limit", 0, "Maximum comparable rows to print (defaults to export.max_rows)")
}
