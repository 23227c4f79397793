package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energypulse/internal/alerting"
	"energypulse/internal/config"
	"energypulse/internal/metrics"
	"energypulse/internal/model"
	"energypulse/internal/quality"
	"energypulse/internal/storage"
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu      sync.Mutex
	hours   int
	failFor map[string]error
	calls   []fetchCall
	current *model.WeatherRecord
}

type fetchCall struct {
	location   string
	start, end time.Time
}

func (f *fakeSource) FetchHistorical(_ context.Context, location string, start, end time.Time) ([]model.WeatherRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fetchCall{location: location, start: start, end: end})
	if err := f.failFor[location]; err != nil {
		return nil, err
	}

	out := make([]model.WeatherRecord, 0, f.hours)
	first := end.Truncate(time.Hour).Add(-time.Duration(f.hours) * time.Hour)
	for i := 0; i < f.hours; i++ {
		out = append(out, model.WeatherRecord{
			Timestamp:     first.Add(time.Duration(i) * time.Hour),
			TemperatureC:  20,
			HumidityPct:   50,
			WindSpeedKmh:  10,
			CloudCoverPct: 40,
			Location:      location,
		})
	}
	return out, nil
}

func (f *fakeSource) FetchCurrent(_ context.Context, location string) (*model.WeatherRecord, error) {
	if err := f.failFor[location]; err != nil {
		return nil, err
	}
	return f.current, nil
}

type fakeStore struct {
	mu       sync.Mutex
	weather  []model.WeatherRecord
	energy   []model.EnergyRecord
	verdicts []model.QualityCheckResult
	metrics  []model.MetricResult
	limits   []int
}

func (s *fakeStore) SaveWeather(_ context.Context, records []model.WeatherRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weather = append(s.weather, records...)
	return len(records), nil
}

func (s *fakeStore) SaveEnergy(_ context.Context, records []model.EnergyRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.energy = append(s.energy, records...)
	return len(records), nil
}

func (s *fakeStore) ListWeather(_ context.Context, location string, limit int) ([]model.WeatherRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limits = append(s.limits, limit)
	var out []model.WeatherRecord
	for _, r := range s.weather {
		if location == "" || r.Location == location {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) ListEnergy(_ context.Context, location string, limit int) ([]model.EnergyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limits = append(s.limits, limit)
	var out []model.EnergyRecord
	for _, r := range s.energy {
		if location == "" || r.Location == location {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) ListEnergyBetween(ctx context.Context, location string, from, to time.Time) ([]model.EnergyRecord, error) {
	all, _ := s.ListEnergy(ctx, location, 0)
	var out []model.EnergyRecord
	for _, r := range all {
		if !r.Timestamp.Before(from) && !r.Timestamp.After(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) CountWeather(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.weather)), nil
}

func (s *fakeStore) CountEnergy(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.energy)), nil
}

func (s *fakeStore) SaveQualityResults(_ context.Context, results []model.QualityCheckResult) ([]model.QualityCheckResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.QualityCheckResult, len(results))
	for i, r := range results {
		r.ID = int64(len(s.verdicts) + 1)
		s.verdicts = append(s.verdicts, r)
		out[i] = r
	}
	return out, nil
}

func (s *fakeStore) SaveMetrics(_ context.Context, results []model.MetricResult) ([]model.MetricResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.MetricResult, len(results))
	for i, r := range results {
		r.ID = int64(len(s.metrics) + 1)
		s.metrics = append(s.metrics, r)
		out[i] = r
	}
	return out, nil
}

func (s *fakeStore) ListLatestMetrics(_ context.Context, limit int) ([]model.MetricResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit > len(s.metrics) {
		limit = len(s.metrics)
	}
	return append([]model.MetricResult(nil), s.metrics[len(s.metrics)-limit:]...), nil
}

func (s *fakeStore) ListMetricsByDimension(_ context.Context, key, value string, limit int) ([]model.MetricResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.MetricResult
	for _, m := range s.metrics {
		if m.Dimensions[key] == value && len(out) < limit {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeStore) QualitySummary(context.Context) (storage.QualitySummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	latest := map[string]model.QualityStatus{}
	for _, v := range s.verdicts {
		latest[v.CheckName] = v.Status
	}
	summary := storage.QualitySummary{}
	for _, status := range latest {
		summary[status]++
	}
	return summary, nil
}

type lockingStore struct {
	*fakeStore
	acquired bool
	released int
}

func (l *lockingStore) TryAdvisoryLock(context.Context, int64) (func(), bool, error) {
	if !l.acquired {
		return nil, false, nil
	}
	return func() { l.released++ }, true, nil
}

type recordingNotifier struct {
	notes []alerting.Notification
	err   error
}

func (n *recordingNotifier) Notify(_ context.Context, note alerting.Notification) error {
	n.notes = append(n.notes, note)
	return n.err
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Simulation.Seed = 42
	cfg.Weather.LookbackDays = 2
	cfg.Database.ReadLimit = 500
	cfg.Scheduler.Locations = []string{"new_york", "chicago"}
	cfg.Scheduler.AdvisoryLockKey = 7
	cfg.Alerting.Enabled = true
	cfg.Alerting.MinStatus = "fail"
	return cfg
}

func newTestService(cfg *config.Config, source *fakeSource, store Store, notifier alerting.Notifier) *Service {
	return New(cfg, nil, source, store, notifier, nil, clockwork.NewFakeClockAt(testNow), zerolog.Nop())
}

func TestIngestUsesLookbackAndPersists(t *testing.T) {
	source := &fakeSource{hours: 48}
	store := &fakeStore{}
	svc := newTestService(testConfig(), source, store, nil)

	res, err := svc.Ingest(context.Background(), "new_york", 0)
	require.NoError(t, err)

	require.Len(t, source.calls, 1)
	assert.Equal(t, testNow, source.calls[0].end)
	assert.Equal(t, testNow.AddDate(0, 0, -2), source.calls[0].start)

	assert.Len(t, res.Weather, 48)
	assert.Len(t, res.Energy, 48)
	assert.Len(t, store.weather, 48)
	assert.Len(t, store.energy, 48)
	for i := range res.Energy {
		assert.Equal(t, res.Weather[i].Timestamp, res.Energy[i].Timestamp)
		assert.Equal(t, "new_york", res.Energy[i].Location)
	}
}

func TestIngestExplicitDays(t *testing.T) {
	source := &fakeSource{hours: 24}
	svc := newTestService(testConfig(), source, nil, nil)

	_, err := svc.Ingest(context.Background(), "chicago", 7)
	require.NoError(t, err)
	assert.Equal(t, testNow.AddDate(0, 0, -7), source.calls[0].start)
}

func TestIngestIsReproducibleForSeed(t *testing.T) {
	cfg := testConfig()
	first, err := newTestService(cfg, &fakeSource{hours: 24}, nil, nil).Ingest(context.Background(), "houston", 1)
	require.NoError(t, err)
	second, err := newTestService(cfg, &fakeSource{hours: 24}, nil, nil).Ingest(context.Background(), "houston", 1)
	require.NoError(t, err)
	assert.Equal(t, first.Energy, second.Energy)
}

func TestIngestPropagatesFetchError(t *testing.T) {
	boom := errors.New("upstream down")
	store := &fakeStore{}
	svc := newTestService(testConfig(), &fakeSource{failFor: map[string]error{"phoenix": boom}}, store, nil)

	_, err := svc.Ingest(context.Background(), "phoenix", 1)
	require.ErrorIs(t, err, boom)
	assert.Empty(t, store.weather)
}

func TestRunPipelineWithoutStore(t *testing.T) {
	svc := newTestService(testConfig(), &fakeSource{hours: 48}, nil, nil)

	res, err := svc.RunPipeline(context.Background(), "new_york", 2)
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Len(t, res.Quality.Results, 9)
	assert.Len(t, res.Metrics.Results, 8)
	for _, r := range res.Quality.Results {
		assert.Equal(t, res.RunID, r.RunID)
	}
	for _, m := range res.Metrics.Results {
		assert.Equal(t, res.RunID, m.RunID)
		assert.Equal(t, map[string]string{"location": "new_york"}, m.Dimensions)
	}

	byName := map[string]model.QualityStatus{}
	for _, r := range res.Quality.Results {
		byName[r.CheckName] = r.Status
	}
	assert.Equal(t, model.StatusPass, byName[quality.CheckWeatherCompleteness])
	assert.Equal(t, model.StatusPass, byName[quality.CheckWeatherFreshness])
	assert.Equal(t, model.StatusPass, byName[quality.CheckNoGaps])
}

func TestRunPipelinePersistsAndFiltersByLocation(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(testConfig(), &fakeSource{hours: 48}, store, nil)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, "chicago", 2)
	require.NoError(t, err)

	res, err := svc.RunPipeline(ctx, "new_york", 2)
	require.NoError(t, err)

	assert.Len(t, store.verdicts, 9)
	assert.Len(t, store.metrics, 8)
	assert.NotZero(t, res.Quality.Results[0].ID)

	completeness := res.Quality.Results[0]
	require.Equal(t, quality.CheckWeatherCompleteness, completeness.CheckName)
	require.NotNil(t, completeness.MetricValue)
	assert.Equal(t, 48.0, *completeness.MetricValue)

	for _, limit := range store.limits {
		assert.Equal(t, 500, limit)
	}
}

func TestCheckQualityNotifiesOnFailure(t *testing.T) {
	store := &fakeStore{}
	notifier := &recordingNotifier{}
	svc := newTestService(testConfig(), &fakeSource{hours: 5}, store, notifier)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, "phoenix", 1)
	require.NoError(t, err)

	report, err := svc.CheckQuality(ctx, "phoenix")
	require.NoError(t, err)
	assert.Less(t, report.Passed(), len(report.Results))

	require.Len(t, notifier.notes, 1)
	note := notifier.notes[0]
	assert.Equal(t, report.RunID, note.RunID)
	assert.Equal(t, "phoenix", note.Location)
	assert.Equal(t, testNow, note.CheckedAt)
	assert.Equal(t, len(report.Results), note.Total)
	for _, r := range note.Results {
		assert.Equal(t, model.StatusFail, r.Status)
	}
}

func TestCheckQualityNotifierErrorIsNotFatal(t *testing.T) {
	store := &fakeStore{}
	notifier := &recordingNotifier{err: errors.New("telegram down")}
	svc := newTestService(testConfig(), &fakeSource{hours: 5}, store, notifier)

	_, err := svc.Ingest(context.Background(), "phoenix", 1)
	require.NoError(t, err)
	_, err = svc.CheckQuality(context.Background(), "phoenix")
	require.NoError(t, err)
	assert.Len(t, notifier.notes, 1)
}

func TestCheckQualityAlertingDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Alerting.Enabled = false
	store := &fakeStore{}
	notifier := &recordingNotifier{}
	svc := newTestService(cfg, &fakeSource{hours: 5}, store, notifier)

	_, err := svc.Ingest(context.Background(), "phoenix", 1)
	require.NoError(t, err)
	_, err = svc.CheckQuality(context.Background(), "phoenix")
	require.NoError(t, err)
	assert.Empty(t, notifier.notes)
}

func TestCheckQualityRequiresStore(t *testing.T) {
	svc := newTestService(testConfig(), &fakeSource{}, nil, nil)
	_, err := svc.CheckQuality(context.Background(), "")
	require.ErrorIs(t, err, storage.ErrNotConfigured)
	_, err = svc.ComputeMetrics(context.Background(), "")
	require.ErrorIs(t, err, storage.ErrNotConfigured)
	_, err = svc.Status(context.Background(), "", 10)
	require.ErrorIs(t, err, storage.ErrNotConfigured)
}

func TestComputeMetricsAllLocations(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(testConfig(), &fakeSource{hours: 24}, store, nil)
	ctx := context.Background()

	for _, loc := range []string{"new_york", "chicago"} {
		_, err := svc.Ingest(ctx, loc, 1)
		require.NoError(t, err)
	}

	report, err := svc.ComputeMetrics(ctx, "")
	require.NoError(t, err)
	require.Len(t, report.Results, 8)
	assert.Empty(t, report.Results[0].Dimensions)

	var total float64
	for _, e := range store.energy {
		total += e.DemandMWh
	}
	m, ok := metrics.At(report.Results, metrics.TotalDemandName)
	require.True(t, ok)
	assert.InDelta(t, total, m.Value, 0.01)
}

func TestProcessBucketRunsEveryLocation(t *testing.T) {
	boom := errors.New("no data")
	source := &fakeSource{hours: 24, failFor: map[string]error{"chicago": boom}}
	store := &fakeStore{}
	svc := newTestService(testConfig(), source, store, nil)

	err := svc.ProcessBucket(context.Background(), testNow)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "chicago")

	require.Len(t, source.calls, 2)
	assert.Equal(t, "new_york", source.calls[0].location)
	assert.Equal(t, "chicago", source.calls[1].location)
	assert.Len(t, store.weather, 24)
}

func TestProcessBucketSkipsWhenLockHeld(t *testing.T) {
	source := &fakeSource{hours: 24}
	store := &lockingStore{fakeStore: &fakeStore{}}
	svc := newTestService(testConfig(), source, store, nil)

	require.NoError(t, svc.ProcessBucket(context.Background(), testNow))
	assert.Empty(t, source.calls)

	store.acquired = true
	require.NoError(t, svc.ProcessBucket(context.Background(), testNow))
	assert.Len(t, source.calls, 2)
	assert.Equal(t, 1, store.released)
}

func TestStatus(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(testConfig(), &fakeSource{hours: 24}, store, nil)
	ctx := context.Background()

	_, err := svc.RunPipeline(ctx, "houston", 1)
	require.NoError(t, err)

	status, err := svc.Status(ctx, "", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(24), status.WeatherCount)
	assert.Equal(t, int64(24), status.EnergyCount)
	assert.Len(t, status.LatestMetrics, 3)
	assert.Equal(t, int64(8), status.Quality.Total())

	status, err = svc.Status(ctx, "houston", 20)
	require.NoError(t, err)
	assert.Len(t, status.LatestMetrics, 8)

	status, err = svc.Status(ctx, "phoenix", 20)
	require.NoError(t, err)
	assert.Empty(t, status.LatestMetrics)
}

func TestCurrent(t *testing.T) {
	rec := &model.WeatherRecord{Timestamp: testNow, TemperatureC: 11, Location: "chicago"}
	svc := newTestService(testConfig(), &fakeSource{current: rec}, nil, nil)

	got, err := svc.Current(context.Background(), "chicago")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}
