package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"energypulse/internal/app"
)

var (
	backfillFrom      string
	backfillTo        string
	backfillLocations []string
	backfillChunk     time.Duration
	backfillDryRun    bool
	backfillWorkers   int
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Ingest historical weather and simulated demand window by window",
	RunE: func(cmd *cobra.Command, args []string) error {
		if backfillFrom == "" || backfillTo == "" {
			return fmt.Errorf("--from and --to must be provided")
		}

		from, err := time.Parse(time.RFC3339, backfillFrom)
		if err != nil {
			return fmt.Errorf("invalid --from value: %w", err)
		}

		to, err := time.Parse(time.RFC3339, backfillTo)
		if err != nil {
			return fmt.Errorf("invalid --to value: %w", err)
		}

		if !from.Before(to) {
			return fmt.Errorf("--from must be before --to")
		}

		opts := app.BackfillOptions{
			Locations: backfillLocations,
			From:      from,
			To:        to,
			Chunk:     backfillChunk,
			DryRun:    backfillDryRun,
			Workers:   backfillWorkers,
		}

		return getApp().Backfill(cmd.Context(), opts)
	},
}

func init() {
	backfillCmd.Flags().StringVar(&backfillFrom, "from", "", "Start timestamp (RFC3339, inclusive)")
	backfillCmd.Flags().StringVar(&backfillTo, "to", "", "End timestamp (RFC3339, exclusive)")
	backfillCmd.Flags().StringSliceVarP(&backfillLocations, "location", "l", nil, "Locations to backfill (defaults to scheduler.locations)")
	backfillCmd.Flags().DurationVar(&backfillChunk, "chunk", 7*24*time.Hour, "Window size per weather request")
	backfillCmd.Flags().IntVar(&backfillWorkers, "workers", 2, "Number of concurrent windows")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "Run without writing to storage")
}
