package app

import (
	"context"
	"fmt"
	"io"

	"energypulse/internal/service"
)

// Ingest fetches weather for one location, simulates demand, and stores both.
func (a *App) Ingest(ctx context.Context, opts IngestOptions) error {
	location, err := a.location(opts.Location)
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; ingested records will not be stored")
	}
	if closeStore != nil {
		defer closeStore()
	}

	svc, err := a.newService(store, nil, nil)
	if err != nil {
		return err
	}

	res, err := svc.Ingest(ctx, location, opts.Days)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.Out, "Ingested %d weather and %d energy records for %s\n", len(res.Weather), len(res.Energy), location)
	return nil
}

// Quality runs the quality rules over stored observations.
func (a *App) Quality(ctx context.Context, location string) error {
	if location != "" {
		if _, err := a.location(location); err != nil {
			return err
		}
	}

	store, closeStore, err := a.requireStore(ctx, "check quality")
	if err != nil {
		return err
	}
	defer closeStore()

	svc, err := a.newService(store, nil, nil)
	if err != nil {
		return err
	}

	report, err := svc.CheckQuality(ctx, location)
	if err != nil {
		return err
	}
	return renderQuality(a.Out, report)
}

// Metrics computes summary metrics over stored observations.
func (a *App) Metrics(ctx context.Context, location string) error {
	if location != "" {
		if _, err := a.location(location); err != nil {
			return err
		}
	}

	store, closeStore, err := a.requireStore(ctx, "compute metrics")
	if err != nil {
		return err
	}
	defer closeStore()

	svc, err := a.newService(store, nil, nil)
	if err != nil {
		return err
	}

	report, err := svc.ComputeMetrics(ctx, location)
	if err != nil {
		return err
	}
	return renderMetrics(a.Out, report.Results)
}

// RunPipeline executes ingest, quality, and metrics once for a location.
func (a *App) RunPipeline(ctx context.Context, opts IngestOptions) error {
	location, err := a.location(opts.Location)
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; running pipeline in memory")
	}
	if closeStore != nil {
		defer closeStore()
	}

	svc, err := a.newService(store, nil, nil)
	if err != nil {
		return err
	}

	res, err := svc.RunPipeline(ctx, location, opts.Days)
	if err != nil {
		return err
	}
	return renderPipeline(a.Out, res)
}

// Current prints the latest observation for a location.
func (a *App) Current(ctx context.Context, location string) error {
	location, err := a.location(location)
	if err != nil {
		return err
	}

	svc, err := a.newService(nil, nil, nil)
	if err != nil {
		return err
	}

	rec, err := svc.Current(ctx, location)
	if err != nil {
		return err
	}
	if rec == nil {
		fmt.Fprintf(a.Out, "no current observation for %s\n", location)
		return nil
	}
	return renderCurrent(a.Out, rec)
}

func renderPipeline(w io.Writer, res service.PipelineResult) error {
	fmt.Fprintf(w, "Run %s: ingested %d weather and %d energy records for %s\n\n",
		res.RunID, len(res.Ingest.Weather), len(res.Ingest.Energy), res.Ingest.Location)
	if err := renderQuality(w, res.Quality); err != nil {
		return err
	}
	fmt.Fprintln(w)
	return renderMetrics(w, res.Metrics.Results)
}
