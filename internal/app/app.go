package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"energypulse/internal/alerting"
	"energypulse/internal/config"
	"energypulse/internal/fetcher"
	"energypulse/internal/observability"
	"energypulse/internal/scheduler"
	"energypulse/internal/service"
	"energypulse/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	// Out receives rendered tables and summaries.
	Out   io.Writer
	Clock clockwork.Clock
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config: cfg,
		Logger: logger.With().Str("component", "app").Logger(),
		Out:    os.Stdout,
		Clock:  clockwork.NewRealClock(),
	}
}

func (a *App) newSource() (*fetcher.OpenMeteo, error) {
	cfg := a.Config.Weather
	return fetcher.NewOpenMeteo(fetcher.OpenMeteoOptions{
		BaseURL:           cfg.BaseURL,
		Timezone:          cfg.Timezone,
		Timeout:           cfg.RequestTimeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		UserAgent:         cfg.UserAgent,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

// requireStore opens the store and fails when no DSN is configured.
func (a *App) requireStore(ctx context.Context, action string) (*storage.Store, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, fmt.Errorf("database not configured; cannot %s", action)
	}
	return store, closeStore, nil
}

// newService wires a pipeline service. store and telemetry may be nil.
func (a *App) newService(store *storage.Store, sched *scheduler.Scheduler, telemetry *observability.Metrics) (*service.Service, error) {
	source, err := a.newSource()
	if err != nil {
		return nil, err
	}

	var pipelineStore service.Store
	if store != nil {
		pipelineStore = store
	}

	return service.New(a.Config, sched, source, pipelineStore, a.newNotifier(), telemetry, a.Clock, a.Logger), nil
}

func (a *App) location(location string) (string, error) {
	if location == "" {
		location = a.Config.Weather.DefaultLocation
	}
	if _, err := fetcher.Lookup(location); err != nil {
		return "", err
	}
	return location, nil
}

// Serve runs the scheduled pipeline and exposes health and metrics endpoints
// until interrupted.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	for _, loc := range a.Config.Scheduler.Locations {
		if _, err := fetcher.Lookup(loc); err != nil {
			return fmt.Errorf("scheduler.locations: %w", err)
		}
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	registry := prometheus.NewRegistry()
	telemetry := observability.NewMetrics(registry)

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		RunOnStart:   true,
		Clock:        a.Clock,
	}, a.Logger)

	svc, err := a.newService(store, sched, telemetry)
	if err != nil {
		return err
	}

	var ready observability.ReadinessChecker = observability.ReadinessFunc(func(context.Context) error { return nil })
	if store != nil {
		ready = observability.ReadinessFunc(store.Ping)
	}
	server := observability.NewServer(a.Config.Server.ListenAddr, registry, ready, a.Logger)

	a.Logger.Info().
		Str("listen", a.Config.Server.ListenAddr).
		Strs("locations", a.Config.Scheduler.Locations).
		Dur("interval", a.Config.Scheduler.Interval).
		Msg("starting pipeline service")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := server.Start(); err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancelShutdown()
		return server.Shutdown(shutdownCtx)
	})
	group.Go(func() error {
		defer cancel()
		err := svc.Run(groupCtx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("pipeline service stopped")
	return nil
}

// IngestOptions configure the ingest and run commands.
type IngestOptions struct {
	Location string
	Days     int
}

// ExportOptions hold parameters for exporting stored energy data.
type ExportOptions struct {
	Location  string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// StatusOptions configure the status command.
type StatusOptions struct {
	Location    string
	MetricLimit int
}

// BackfillOptions configure the backfill job.
type BackfillOptions struct {
	Locations []string
	From      time.Time
	To        time.Time
	Chunk     time.Duration
	DryRun    bool
	Workers   int
}
