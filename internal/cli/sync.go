package cli

import (
	"github.com/spf13/cobra"

	"autosniper/internal/app"
)

var syncForce bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Download the remote dataset bundle",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Sync(cmd.Context(), app.SyncOptions{Force: syncForce})
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncForce, "force", false, "Download even when the local copy is fresh")
}
