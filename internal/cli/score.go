package cli

import (
	"github.com/spf13/cobra"

	"autosniper/internal/app"
)

var (
	scoreCSVDir  string
	scorePNGPath string
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score cached valuations against realised outcomes",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ScoreOptions{
			CSVDir:  scoreCSVDir,
			PNGPath: scorePNGPath,
		}
		return getApp().Score(cmd.Context(), opts)
	},
}

func init() {
	scoreCmd.Flags().StringVar(&scoreCSVDir, "csv-dir", "", "Directory for report CSVs (defaults to scoring.output_dir)")
	scoreCmd.Flags().StringVar(&scorePNGPath, "png", "", "Path to write the weekly accuracy chart")
}
