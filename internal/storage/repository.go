package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"energypulse/internal/model"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertWeatherSQL = `INSERT INTO weather (
        timestamp,
        location,
        temperature_c,
        humidity_pct,
        wind_speed_kmh,
        precipitation_mm,
        cloud_cover_pct
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    ON CONFLICT (timestamp, location) DO UPDATE
    SET
        temperature_c    = EXCLUDED.temperature_c,
        humidity_pct     = EXCLUDED.humidity_pct,
        wind_speed_kmh   = EXCLUDED.wind_speed_kmh,
        precipitation_mm = EXCLUDED.precipitation_mm,
        cloud_cover_pct  = EXCLUDED.cloud_cover_pct,
        loaded_at        = now();`

	upsertEnergySQL = `INSERT INTO energy (
        timestamp,
        location,
        demand_mwh,
        temperature_c,
        is_weekend,
        hour_of_day
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    ON CONFLICT (timestamp, location) DO UPDATE
    SET
        demand_mwh    = EXCLUDED.demand_mwh,
        temperature_c = EXCLUDED.temperature_c,
        is_weekend    = EXCLUDED.is_weekend,
        hour_of_day   = EXCLUDED.hour_of_day,
        loaded_at     = now();`

	insertQualitySQL = `INSERT INTO quality_checks (
        run_id,
        check_name,
        status,
        metric_value,
        threshold,
        message,
        checked_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    RETURNING check_id;`

	insertMetricSQL = `INSERT INTO metrics (
        run_id,
        metric_name,
        value,
        unit,
        dimensions,
        computed_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    RETURNING metric_id;`

	listWeatherSQL = `SELECT
        timestamp,
        location,
        temperature_c,
        humidity_pct,
        wind_speed_kmh,
        precipitation_mm,
        cloud_cover_pct
    FROM weather
    WHERE ($1 = '' OR location = $1)
    ORDER BY timestamp DESC, location
    LIMIT $2;`

	listEnergySQL = `SELECT
        timestamp,
        location,
        demand_mwh,
        temperature_c,
        is_weekend,
        hour_of_day
    FROM energy
    WHERE ($1 = '' OR location = $1)
    ORDER BY timestamp DESC, location
    LIMIT $2;`

	listEnergyBetweenSQL = `SELECT
        timestamp,
        location,
        demand_mwh,
        temperature_c,
        is_weekend,
        hour_of_day
    FROM energy
    WHERE location = $1
      AND timestamp >= $2
      AND timestamp < $3
    ORDER BY timestamp;`

	selectMetricColumns = `SELECT
        metric_id,
        run_id::text,
        metric_name,
        value,
        unit,
        dimensions,
        computed_at
    FROM metrics`

	listLatestMetricsSQL = selectMetricColumns + `
    ORDER BY computed_at DESC, metric_id DESC
    LIMIT $1;`

	listMetricsByDimensionSQL = selectMetricColumns + `
    WHERE dimensions ->> $1 = $2
    ORDER BY computed_at DESC, metric_id DESC
    LIMIT $3;`

	qualitySummarySQL = `SELECT status, COUNT(*)
    FROM (
        SELECT DISTINCT ON (check_name) check_name, status
        FROM quality_checks
        ORDER BY check_name, checked_at DESC, check_id DESC
    ) latest
    GROUP BY status;`

	countWeatherSQL = `SELECT COUNT(*) FROM weather;`
	countEnergySQL  = `SELECT COUNT(*) FROM energy;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// ObservationStore persists weather and energy observations keyed by
// (timestamp, location).
type ObservationStore interface {
	SaveWeather(ctx context.Context, records []model.WeatherRecord) (int, error)
	SaveEnergy(ctx context.Context, records []model.EnergyRecord) (int, error)
	ListWeather(ctx context.Context, location string, limit int) ([]model.WeatherRecord, error)
	ListEnergy(ctx context.Context, location string, limit int) ([]model.EnergyRecord, error)
	ListEnergyBetween(ctx context.Context, location string, from, to time.Time) ([]model.EnergyRecord, error)
	CountWeather(ctx context.Context) (int64, error)
	CountEnergy(ctx context.Context) (int64, error)
}

// ResultStore appends quality verdicts and metric results.
type ResultStore interface {
	SaveQualityResults(ctx context.Context, results []model.QualityCheckResult) ([]model.QualityCheckResult, error)
	SaveMetrics(ctx context.Context, results []model.MetricResult) ([]model.MetricResult, error)
	ListLatestMetrics(ctx context.Context, limit int) ([]model.MetricResult, error)
	ListMetricsByDimension(ctx context.Context, key, value string, limit int) ([]model.MetricResult, error)
	QualitySummary(ctx context.Context) (QualitySummary, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to observations and pipeline results.
type Store struct {
	pool *pgxpool.Pool
	loc  *time.Location
}

// NewStore wires a pgx pool into a Store. Observation timestamps are stored
// as wall-clock time in loc; nil means UTC.
func NewStore(pool *pgxpool.Pool, loc *time.Location) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{pool: pool, loc: loc}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// Releasing the connection ends the session lock even if this fails.
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// SaveWeather upserts weather observations in one batch.
func (s *Store) SaveWeather(ctx context.Context, records []model.WeatherRecord) (int, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		row := weatherToRow(r, s.loc)
		batch.Queue(upsertWeatherSQL,
			row.Timestamp,
			row.Location,
			row.TemperatureC,
			row.HumidityPct,
			row.WindSpeedKmh,
			row.PrecipitationMm,
			row.CloudCoverPct,
		)
	}
	if err := execBatch(ctx, pool, batch); err != nil {
		return 0, fmt.Errorf("upsert weather: %w", err)
	}
	return len(records), nil
}

// SaveEnergy upserts energy observations in one batch.
func (s *Store) SaveEnergy(ctx context.Context, records []model.EnergyRecord) (int, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		row := energyToRow(r, s.loc)
		batch.Queue(upsertEnergySQL,
			row.Timestamp,
			row.Location,
			row.DemandMWh,
			row.TemperatureC,
			row.IsWeekend,
			row.HourOfDay,
		)
	}
	if err := execBatch(ctx, pool, batch); err != nil {
		return 0, fmt.Errorf("upsert energy: %w", err)
	}
	return len(records), nil
}

func execBatch(ctx context.Context, pool *pgxpool.Pool, batch *pgx.Batch) error {
	br := pool.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return err
		}
	}
	return br.Close()
}

// SaveQualityResults appends verdicts and returns them with assigned ids.
func (s *Store) SaveQualityResults(ctx context.Context, results []model.QualityCheckResult) ([]model.QualityCheckResult, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}

	batch := &pgx.Batch{}
	for _, r := range results {
		row := qualityToRow(r)
		batch.Queue(insertQualitySQL,
			row.RunID,
			row.CheckName,
			row.Status,
			row.MetricValue,
			row.Threshold,
			row.Message,
			row.CheckedAt,
		)
	}

	saved := make([]model.QualityCheckResult, len(results))
	copy(saved, results)

	br := pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := range saved {
		if err := br.QueryRow().Scan(&saved[i].ID); err != nil {
			return nil, fmt.Errorf("insert quality result %s: %w", saved[i].CheckName, err)
		}
	}
	return saved, nil
}

// SaveMetrics appends metric results and returns them with assigned ids.
func (s *Store) SaveMetrics(ctx context.Context, results []model.MetricResult) ([]model.MetricResult, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}

	batch := &pgx.Batch{}
	for _, r := range results {
		row, convErr := metricToRow(r)
		if convErr != nil {
			return nil, convErr
		}
		batch.Queue(insertMetricSQL,
			row.RunID,
			row.MetricName,
			row.Value,
			row.Unit,
			row.Dimensions,
			row.ComputedAt,
		)
	}

	saved := make([]model.MetricResult, len(results))
	copy(saved, results)

	br := pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := range saved {
		if err := br.QueryRow().Scan(&saved[i].ID); err != nil {
			return nil, fmt.Errorf("insert metric %s: %w", saved[i].MetricName, err)
		}
	}
	return saved, nil
}

// ListWeather returns the newest weather rows, optionally for one location.
func (s *Store) ListWeather(ctx context.Context, location string, limit int) ([]model.WeatherRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listWeatherSQL, location, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list weather: %w", queryErr)
	}
	defer rows.Close()

	records := make([]model.WeatherRecord, 0)
	for rows.Next() {
		var row WeatherRow
		if err := rows.Scan(
			&row.Timestamp,
			&row.Location,
			&row.TemperatureC,
			&row.HumidityPct,
			&row.WindSpeedKmh,
			&row.PrecipitationMm,
			&row.CloudCoverPct,
		); err != nil {
			return nil, err
		}
		records = append(records, rowToWeather(row, s.loc))
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// ListEnergy returns the newest energy rows, optionally for one location.
func (s *Store) ListEnergy(ctx context.Context, location string, limit int) ([]model.EnergyRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listEnergySQL, location, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list energy: %w", queryErr)
	}
	return s.collectEnergy(rows)
}

// ListEnergyBetween returns a location's energy rows in [from, to), oldest first.
func (s *Store) ListEnergyBetween(ctx context.Context, location string, from, to time.Time) ([]model.EnergyRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listEnergyBetweenSQL, location, toWallClock(from, s.loc), toWallClock(to, s.loc))
	if queryErr != nil {
		return nil, fmt.Errorf("list energy between: %w", queryErr)
	}
	return s.collectEnergy(rows)
}

func (s *Store) collectEnergy(rows pgx.Rows) ([]model.EnergyRecord, error) {
	defer rows.Close()

	records := make([]model.EnergyRecord, 0)
	for rows.Next() {
		var row EnergyRow
		if err := rows.Scan(
			&row.Timestamp,
			&row.Location,
			&row.DemandMWh,
			&row.TemperatureC,
			&row.IsWeekend,
			&row.HourOfDay,
		); err != nil {
			return nil, err
		}
		records = append(records, rowToEnergy(row, s.loc))
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// ListLatestMetrics lists the most recently computed metrics.
func (s *Store) ListLatestMetrics(ctx context.Context, limit int) ([]model.MetricResult, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listLatestMetricsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list latest metrics: %w", queryErr)
	}
	return s.collectMetrics(rows)
}

// ListMetricsByDimension lists metrics whose dimension key equals value.
func (s *Store) ListMetricsByDimension(ctx context.Context, key, value string, limit int) ([]model.MetricResult, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listMetricsByDimensionSQL, key, value, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list metrics by dimension: %w", queryErr)
	}
	return s.collectMetrics(rows)
}

func (s *Store) collectMetrics(rows pgx.Rows) ([]model.MetricResult, error) {
	defer rows.Close()

	results := make([]model.MetricResult, 0)
	for rows.Next() {
		var row MetricRow
		if err := rows.Scan(
			&row.MetricID,
			&row.RunID,
			&row.MetricName,
			&row.Value,
			&row.Unit,
			&row.Dimensions,
			&row.ComputedAt,
		); err != nil {
			return nil, err
		}
		m, convErr := rowToMetric(row, s.loc)
		if convErr != nil {
			return nil, convErr
		}
		results = append(results, m)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return results, nil
}

// QualitySummary counts the latest verdict per check name by status.
func (s *Store) QualitySummary(ctx context.Context) (QualitySummary, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, qualitySummarySQL)
	if queryErr != nil {
		return nil, fmt.Errorf("quality summary: %w", queryErr)
	}
	defer rows.Close()

	summary := QualitySummary{}
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		parsed, parseErr := model.ParseQualityStatus(status)
		if parseErr != nil {
			return nil, parseErr
		}
		summary[parsed] = count
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return summary, nil
}

// CountWeather counts stored weather rows.
func (s *Store) CountWeather(ctx context.Context) (int64, error) {
	return s.count(ctx, countWeatherSQL, "count weather")
}

// CountEnergy counts stored energy rows.
func (s *Store) CountEnergy(ctx context.Context) (int64, error) {
	return s.count(ctx, countEnergySQL, "count energy")
}

func (s *Store) count(ctx context.Context, query, op string) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, query).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("%s: %w", op, scanErr)
	}
	return count, nil
}

var (
	_ ObservationStore = (*Store)(nil)
	_ ResultStore      = (*Store)(nil)
	_ AdvisoryLocker   = (*Store)(nil)
)
