package cli

import (
	"github.com/spf13/cobra"

	"autosniper/internal/app"
)

var (
	valueURL      string
	valueForce    bool
	valueMinHours float64
	valueMaxHours float64
	valueCSVPath  string
	valueAlert    bool
)

var valueCmd = &cobra.Command{
	Use:   "value",
	Short: "Value active listings closing inside the hours window",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ValueOptions{
			URL:     valueURL,
			Force:   valueForce,
			CSVPath: valueCSVPath,
			Alert:   valueAlert,
		}
		if cmd.Flags().Changed("min-hours") {
			opts.MinHours = &valueMinHours
		}
		if cmd.Flags().Changed("max-hours") {
			opts.MaxHours = &valueMaxHours
		}
		return getApp().Value(cmd.Context(), opts)
	},
}

func init() {
	valueCmd.Flags().StringVar(&valueURL, "url", "", "Value a single listing by url, ignoring the window")
	valueCmd.Flags().BoolVar(&valueForce, "force", false, "Ignore cached valuations")
	valueCmd.Flags().Float64Var(&valueMinHours, "min-hours", 0, "Minimum hours remaining (defaults to listings.min_hours)")
	valueCmd.Flags().Float64Var(&valueMaxHours, "max-hours", 0, "Maximum hours remaining, exclusive (defaults to listings.max_hours)")
	valueCmd.Flags().StringVar(&valueCSVPath, "csv", "", "Path to write the valuations as CSV")
	valueCmd.Flags().BoolVar(&valueAlert, "alert", false, "Send alerts for fresh high-score valuations")
}
