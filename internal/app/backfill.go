package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"energypulse/internal/fetcher"
	"energypulse/internal/storage"
)

const defaultBackfillChunk = 7 * 24 * time.Hour

// Backfill ingests historical weather window by window for each location.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	chunk := opts.Chunk
	if chunk <= 0 {
		chunk = defaultBackfillChunk
	}

	start := alignForward(opts.From.UTC(), time.Hour)
	end := opts.To.UTC()
	if !start.Before(end) {
		return errors.New("backfill range is empty; check --from/--to")
	}

	locations := opts.Locations
	if len(locations) == 0 {
		locations = a.Config.Scheduler.Locations
	}
	for _, loc := range locations {
		if _, err := fetcher.Lookup(loc); err != nil {
			return err
		}
	}

	var store *storage.Store
	if opts.DryRun {
		a.Logger.Warn().Msg("backfill dry-run: nothing will be written")
	} else {
		var closeStore func()
		var err error
		store, closeStore, err = a.requireStore(ctx, "backfill")
		if err != nil {
			return err
		}
		defer closeStore()
	}

	svc, err := a.newService(store, nil, nil)
	if err != nil {
		return err
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	var (
		mu        sync.Mutex
		processed int
		failed    int
		records   int
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	for _, loc := range locations {
		for windowStart := start; windowStart.Before(end); windowStart = windowStart.Add(chunk) {
			windowEnd := windowStart.Add(chunk)
			if windowEnd.After(end) {
				windowEnd = end
			}

			group.Go(func() error {
				if err := groupCtx.Err(); err != nil {
					return err
				}

				res, err := svc.IngestRange(groupCtx, loc, windowStart, windowEnd)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failed++
					a.Logger.Error().Err(err).Str("location", loc).Time("window_start", windowStart).Msg("backfill window failed")
					return nil
				}
				processed++
				records += len(res.Weather)
				return nil
			})
		}
	}
	if err := group.Wait(); err != nil {
		return err
	}

	a.Logger.Info().Int("processed", processed).Int("failed", failed).Int("records", records).Msg("backfill complete")
	fmt.Fprintf(a.Out, "Backfilled %d records across %d windows (%d failed)\n", records, processed+failed, failed)
	if failed > 0 {
		return errors.New("some backfill windows failed; check logs")
	}
	return nil
}

func alignForward(t time.Time, interval time.Duration) time.Time {
	truncated := t.Truncate(interval)
	if truncated.Before(t) {
		return truncated.Add(interval)
	}
	return truncated
}
