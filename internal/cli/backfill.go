package cli

import (
	"github.com/spf13/cobra"

	"autosniper/internal/app"
)

var (
	backfillDryRun bool
	backfillForce  bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Value every active listing regardless of closing time",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.BackfillOptions{
			DryRun: backfillDryRun,
			Force:  backfillForce,
		}

		return getApp().Backfill(cmd.Context(), opts)
	},
}

func init() {
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "Run without writing to storage")
	backfillCmd.Flags().BoolVar(&backfillForce, "force", false, "Ignore cached valuations")
}
