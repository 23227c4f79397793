package storage

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS weather (
        timestamp        TIMESTAMP        NOT NULL,
        location         TEXT             NOT NULL,
        temperature_c    DOUBLE PRECISION NOT NULL,
        humidity_pct     DOUBLE PRECISION NOT NULL,
        wind_speed_kmh   DOUBLE PRECISION NOT NULL,
        precipitation_mm DOUBLE PRECISION NOT NULL,
        cloud_cover_pct  DOUBLE PRECISION NOT NULL,
        loaded_at        TIMESTAMPTZ      NOT NULL DEFAULT now(),
        PRIMARY KEY (timestamp, location)
    );`,
	`CREATE TABLE IF NOT EXISTS energy (
        timestamp     TIMESTAMP        NOT NULL,
        location      TEXT             NOT NULL,
        demand_mwh    DOUBLE PRECISION NOT NULL CHECK (demand_mwh >= 0),
        temperature_c DOUBLE PRECISION NOT NULL,
        is_weekend    BOOLEAN          NOT NULL,
        hour_of_day   INTEGER          NOT NULL CHECK (hour_of_day BETWEEN 0 AND 23),
        loaded_at     TIMESTAMPTZ      NOT NULL DEFAULT now(),
        PRIMARY KEY (timestamp, location)
    );`,
	`CREATE TABLE IF NOT EXISTS quality_checks (
        check_id     BIGSERIAL PRIMARY KEY,
        run_id       UUID,
        check_name   TEXT             NOT NULL,
        status       TEXT             NOT NULL CHECK (status IN ('pass', 'warn', 'fail')),
        metric_value DOUBLE PRECISION,
        threshold    DOUBLE PRECISION,
        message      TEXT             NOT NULL,
        checked_at   TIMESTAMPTZ      NOT NULL
    );`,
	`CREATE INDEX IF NOT EXISTS quality_checks_name_checked_idx
        ON quality_checks (check_name, checked_at DESC);`,
	`CREATE TABLE IF NOT EXISTS metrics (
        metric_id   BIGSERIAL PRIMARY KEY,
        run_id      UUID,
        metric_name TEXT             NOT NULL,
        value       DOUBLE PRECISION NOT NULL,
        unit        TEXT             NOT NULL,
        dimensions  JSONB            NOT NULL DEFAULT '{}'::jsonb,
        computed_at TIMESTAMPTZ      NOT NULL
    );`,
	`CREATE INDEX IF NOT EXISTS metrics_computed_idx ON metrics (computed_at DESC);`,
}

// EnsureSchema creates the pipeline tables when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
