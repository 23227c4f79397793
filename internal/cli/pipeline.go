package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"energypulse/internal/app"
)

var (
	ingestLocation  string
	ingestDays      int
	qualityLocation string
	metricsLocation string
	currentLocation string
	statusLocation  string
	statusLimit     int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch weather and simulate energy demand",
	RunE: func(cmd *cobra.Command, args []string) error {
		if ingestDays < 0 {
			return fmt.Errorf("--days must not be negative")
		}
		return getApp().Ingest(cmd.Context(), app.IngestOptions{Location: ingestLocation, Days: ingestDays})
	},
}

var qualityCmd = &cobra.Command{
	Use:   "quality",
	Short: "Run data quality checks over stored observations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Quality(cmd.Context(), qualityLocation)
	},
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Compute summary metrics over stored observations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Metrics(cmd.Context(), metricsLocation)
	},
}

var currentCmd = &cobra.Command{
	Use:   "current",
	Short: "Show the current weather for a location",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Current(cmd.Context(), currentLocation)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display stored record counts, quality summary, and recent metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		if statusLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}
		return getApp().Status(cmd.Context(), app.StatusOptions{Location: statusLocation, MetricLimit: statusLimit})
	},
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestLocation, "location", "l", "", "Location key (defaults to weather.default_location)")
	ingestCmd.Flags().IntVarP(&ingestDays, "days", "d", 0, "Days of history to fetch (defaults to weather.lookback_days)")

	qualityCmd.Flags().StringVarP(&qualityLocation, "location", "l", "", "Only check this location")
	metricsCmd.Flags().StringVarP(&metricsLocation, "location", "l", "", "Only compute for this location")
	currentCmd.Flags().StringVarP(&currentLocation, "location", "l", "", "Location key (defaults to weather.default_location)")

	statusCmd.Flags().StringVarP(&statusLocation, "location", "l", "", "Only show metrics tagged with this location")
	statusCmd.Flags().IntVar(&statusLimit, "limit", 5, "Number of recent metrics to display")
}
