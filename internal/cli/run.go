package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"energypulse/internal/app"
)

var (
	runLocation string
	runDays     int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run ingest, quality checks, and metrics once",
	RunE: func(cmd *cobra.Command, args []string) error {
		if runDays < 0 {
			return fmt.Errorf("--days must not be negative")
		}
		return getApp().RunPipeline(cmd.Context(), app.IngestOptions{Location: runLocation, Days: runDays})
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduled pipeline with health and metrics endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Serve(cmd.Context())
	},
}

func init() {
	runCmd.Flags().StringVarP(&runLocation, "location", "l", "", "Location key (defaults to weather.default_location)")
	runCmd.Flags().IntVarP(&runDays, "days", "d", 0, "Days of history to fetch (defaults to weather.lookback_days)")
}
