package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"energypulse/internal/alerting"
	"energypulse/internal/config"
	"energypulse/internal/fetcher"
	"energypulse/internal/metrics"
	"energypulse/internal/model"
	"energypulse/internal/observability"
	"energypulse/internal/quality"
	"energypulse/internal/scheduler"
	"energypulse/internal/simulation"
	"energypulse/internal/storage"
)

// Store is the persistence surface the pipeline needs.
type Store interface {
	storage.ObservationStore
	storage.ResultStore
}

// IngestResult carries the observations produced by one ingest.
type IngestResult struct {
	Location string
	Weather  []model.WeatherRecord
	Energy   []model.EnergyRecord
}

// QualityReport carries the verdicts of one quality run.
type QualityReport struct {
	RunID   string
	Results []model.QualityCheckResult
}

// Passed counts passing verdicts.
func (r QualityReport) Passed() int { return quality.Passed(r.Results) }

// MetricsReport carries the results of one metrics run.
type MetricsReport struct {
	RunID   string
	Results []model.MetricResult
}

// PipelineResult bundles the three stages of a pipeline run.
type PipelineResult struct {
	RunID   string
	Ingest  IngestResult
	Quality QualityReport
	Metrics MetricsReport
}

// StatusReport summarises stored pipeline state.
type StatusReport struct {
	WeatherCount  int64
	EnergyCount   int64
	Quality       storage.QualitySummary
	LatestMetrics []model.MetricResult
}

// Service orchestrates fetching, simulation, quality checks, metrics, and persistence.
type Service struct {
	scheduler *scheduler.Scheduler
	source    fetcher.WeatherSource
	store     Store
	notifier  alerting.Notifier
	telemetry *observability.Metrics
	clock     clockwork.Clock
	logger    zerolog.Logger

	checker *quality.Checker
	engine  *metrics.Engine

	seed         uint64
	lookbackDays int
	readLimit    int
	locations    []string
	alertsOn     bool
	minStatus    model.QualityStatus
	locker       storage.AdvisoryLocker
	lockKey      int64
}

// New constructs the pipeline service. store, notifier, telemetry, and
// sched may be nil.
func New(cfg *config.Config, sched *scheduler.Scheduler, source fetcher.WeatherSource, store Store, notifier alerting.Notifier, telemetry *observability.Metrics, clock clockwork.Clock, logger zerolog.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler:    sched,
		source:       source,
		store:        store,
		notifier:     notifier,
		telemetry:    telemetry,
		clock:        clock,
		logger:       logger.With().Str("component", "service").Logger(),
		checker:      quality.NewChecker(clock, logger),
		engine:       metrics.NewEngine(clock, logger),
		seed:         cfg.Simulation.Seed,
		lookbackDays: cfg.Weather.LookbackDays,
		readLimit:    cfg.Database.ReadLimit,
		locations:    cfg.Scheduler.Locations,
		alertsOn:     cfg.Alerting.Enabled,
		minStatus:    cfg.AlertThreshold(),
		locker:       locker,
		lockKey:      cfg.Scheduler.AdvisoryLockKey,
	}
}

// Run begins the scheduled pipeline loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessBucket)
}

// ProcessBucket 对每个配置的城市执行一次完整流水线。
func (s *Service) ProcessBucket(ctx context.Context, bucket time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("bucket", bucket).Msg("skip bucket because advisory lock held elsewhere")
		s.telemetry.ObserveRun(observability.OutcomeSkipped, 0)
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	var errs []error
	for _, location := range s.locations {
		if _, err := s.RunPipeline(ctx, location, s.lookbackDays); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", location, err))
		}
	}
	return errors.Join(errs...)
}

// Ingest fetches the last days of weather for location, simulates demand,
// and persists both when a store is configured. days <= 0 uses the
// configured lookback.
func (s *Service) Ingest(ctx context.Context, location string, days int) (IngestResult, error) {
	if days <= 0 {
		days = s.lookbackDays
	}
	end := s.clock.Now()
	return s.IngestRange(ctx, location, end.AddDate(0, 0, -days), end)
}

// IngestRange is Ingest over an explicit [start, end] window.
func (s *Service) IngestRange(ctx context.Context, location string, start, end time.Time) (IngestResult, error) {
	if s.source == nil {
		return IngestResult{}, fmt.Errorf("weather source not configured")
	}

	weather, err := s.source.FetchHistorical(ctx, location, start, end)
	if err != nil {
		return IngestResult{}, fmt.Errorf("fetch weather: %w", err)
	}

	energy, err := simulation.New(s.seed, s.logger).Simulate(weather)
	if err != nil {
		return IngestResult{}, fmt.Errorf("simulate energy: %w", err)
	}

	if s.store != nil {
		if _, err := s.store.SaveWeather(ctx, weather); err != nil {
			return IngestResult{}, fmt.Errorf("save weather: %w", err)
		}
		if _, err := s.store.SaveEnergy(ctx, energy); err != nil {
			return IngestResult{}, fmt.Errorf("save energy: %w", err)
		}
	}
	s.telemetry.ObserveIngest(location, len(weather), len(energy))

	s.logger.Info().
		Str("location", location).
		Time("start", start).
		Time("end", end).
		Int("weather", len(weather)).
		Int("energy", len(energy)).
		Bool("persisted", s.store != nil).
		Msg("ingest complete")

	return IngestResult{Location: location, Weather: weather, Energy: energy}, nil
}

// CheckQuality runs both rule sets over stored observations, optionally
// filtered to one location, and persists the verdicts.
func (s *Service) CheckQuality(ctx context.Context, location string) (QualityReport, error) {
	return s.checkStored(ctx, uuid.NewString(), location)
}

// ComputeMetrics computes summary metrics over stored observations and
// persists them. A location filter is recorded as a dimension.
func (s *Service) ComputeMetrics(ctx context.Context, location string) (MetricsReport, error) {
	return s.computeStored(ctx, uuid.NewString(), location)
}

// RunPipeline executes ingest, quality, and metrics for one location. Without
// a store the later stages run over the freshly ingested records.
func (s *Service) RunPipeline(ctx context.Context, location string, days int) (PipelineResult, error) {
	started := s.clock.Now()
	runID := uuid.NewString()
	logger := s.logger.With().Str("run_id", runID).Str("location", location).Logger()

	result, err := s.runPipeline(ctx, runID, location, days)
	elapsed := s.clock.Since(started)
	if err != nil {
		s.telemetry.ObserveRun(observability.OutcomeError, elapsed)
		logger.Error().Err(err).Dur("elapsed", elapsed).Msg("pipeline failed")
		return result, err
	}

	s.telemetry.ObserveRun(observability.OutcomeSuccess, elapsed)
	logger.Info().
		Int("passed", result.Quality.Passed()).
		Int("checks", len(result.Quality.Results)).
		Int("metrics", len(result.Metrics.Results)).
		Dur("elapsed", elapsed).
		Msg("pipeline complete")
	return result, nil
}

func (s *Service) runPipeline(ctx context.Context, runID, location string, days int) (PipelineResult, error) {
	result := PipelineResult{RunID: runID}

	ingest, err := s.Ingest(ctx, location, days)
	if err != nil {
		return result, err
	}
	result.Ingest = ingest

	if s.store == nil {
		result.Quality = s.checkRecords(ctx, runID, location, ingest.Weather, ingest.Energy)
		result.Metrics = s.computeRecords(runID, location, ingest.Energy, ingest.Weather)
		return result, nil
	}

	if result.Quality, err = s.checkStored(ctx, runID, location); err != nil {
		return result, err
	}
	if result.Metrics, err = s.computeStored(ctx, runID, location); err != nil {
		return result, err
	}
	return result, nil
}

func (s *Service) checkStored(ctx context.Context, runID, location string) (QualityReport, error) {
	weather, energy, err := s.loadObservations(ctx, location)
	if err != nil {
		return QualityReport{}, err
	}

	report := s.checkRecords(ctx, runID, location, weather, energy)
	saved, err := s.store.SaveQualityResults(ctx, report.Results)
	if err != nil {
		return report, fmt.Errorf("save quality results: %w", err)
	}
	report.Results = saved
	return report, nil
}

func (s *Service) checkRecords(ctx context.Context, runID, location string, weather []model.WeatherRecord, energy []model.EnergyRecord) QualityReport {
	results := append(s.checker.CheckWeather(weather), s.checker.CheckEnergy(energy)...)
	for i := range results {
		results[i].RunID = runID
	}

	s.telemetry.ObserveVerdicts(results)
	s.notify(ctx, runID, location, results)
	return QualityReport{RunID: runID, Results: results}
}

func (s *Service) computeStored(ctx context.Context, runID, location string) (MetricsReport, error) {
	weather, energy, err := s.loadObservations(ctx, location)
	if err != nil {
		return MetricsReport{}, err
	}

	report := s.computeRecords(runID, location, energy, weather)
	saved, err := s.store.SaveMetrics(ctx, report.Results)
	if err != nil {
		return report, fmt.Errorf("save metrics: %w", err)
	}
	report.Results = saved
	return report, nil
}

func (s *Service) computeRecords(runID, location string, energy []model.EnergyRecord, weather []model.WeatherRecord) MetricsReport {
	dims := map[string]string{}
	if location != "" {
		dims["location"] = location
	}

	results := s.engine.ComputeAll(energy, weather, dims)
	for i := range results {
		results[i].RunID = runID
	}

	s.telemetry.ObserveMetrics(results)
	return MetricsReport{RunID: runID, Results: results}
}

func (s *Service) loadObservations(ctx context.Context, location string) ([]model.WeatherRecord, []model.EnergyRecord, error) {
	if s.store == nil {
		return nil, nil, storage.ErrNotConfigured
	}
	weather, err := s.store.ListWeather(ctx, location, s.readLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("load weather: %w", err)
	}
	energy, err := s.store.ListEnergy(ctx, location, s.readLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("load energy: %w", err)
	}
	return weather, energy, nil
}

func (s *Service) notify(ctx context.Context, runID, location string, results []model.QualityCheckResult) {
	if !s.alertsOn || s.notifier == nil {
		return
	}
	flagged := alerting.Triggering(results, s.minStatus)
	if len(flagged) == 0 {
		return
	}

	note := alerting.Notification{
		RunID:     runID,
		Location:  location,
		CheckedAt: s.clock.Now(),
		Results:   flagged,
		Total:     len(results),
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Str("run_id", runID).Msg("failed to dispatch quality alert")
	}
}

// Current returns the latest observation for a location.
func (s *Service) Current(ctx context.Context, location string) (*model.WeatherRecord, error) {
	if s.source == nil {
		return nil, fmt.Errorf("weather source not configured")
	}
	return s.source.FetchCurrent(ctx, location)
}

// Status reports stored record counts, the quality summary, and recent
// metrics, restricted to metrics tagged with location when one is given.
func (s *Service) Status(ctx context.Context, location string, metricLimit int) (StatusReport, error) {
	if s.store == nil {
		return StatusReport{}, storage.ErrNotConfigured
	}

	var (
		report StatusReport
		err    error
	)
	if report.WeatherCount, err = s.store.CountWeather(ctx); err != nil {
		return StatusReport{}, err
	}
	if report.EnergyCount, err = s.store.CountEnergy(ctx); err != nil {
		return StatusReport{}, err
	}
	if report.Quality, err = s.store.QualitySummary(ctx); err != nil {
		return StatusReport{}, err
	}
	if location != "" {
		report.LatestMetrics, err = s.store.ListMetricsByDimension(ctx, "location", location, metricLimit)
	} else {
		report.LatestMetrics, err = s.store.ListLatestMetrics(ctx, metricLimit)
	}
	if err != nil {
		return StatusReport{}, err
	}
	return report, nil
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
