package model

import (
	"fmt"
	"math"
	"time"
)

// QualityStatus is the verdict of a single quality rule.
type QualityStatus string

const (
	StatusPass QualityStatus = "pass"
	StatusWarn QualityStatus = "warn"
	StatusFail QualityStatus = "fail"
)

// ParseQualityStatus validates a stored status string.
func ParseQualityStatus(s string) (QualityStatus, error) {
	switch QualityStatus(s) {
	case StatusPass, StatusWarn, StatusFail:
		return QualityStatus(s), nil
	default:
		return "", invalid("status", s, "must be one of pass, warn, fail")
	}
}

// Severity orders statuses so that fail > warn > pass.
func (s QualityStatus) Severity() int {
	switch s {
	case StatusFail:
		return 2
	case StatusWarn:
		return 1
	default:
		return 0
	}
}

// WeatherRecord is a single hourly weather observation for one location.
type WeatherRecord struct {
	Timestamp       time.Time
	TemperatureC    float64
	HumidityPct     float64
	WindSpeedKmh    float64
	PrecipitationMm float64
	CloudCoverPct   float64
	Location        string
}

// NewWeatherRecord returns r if every field lies in its physical range.
func NewWeatherRecord(r WeatherRecord) (WeatherRecord, error) {
	if err := r.Validate(); err != nil {
		return WeatherRecord{}, err
	}
	return r, nil
}

// Validate reports the first out-of-range field.
func (r WeatherRecord) Validate() error {
	switch {
	case r.Timestamp.IsZero():
		return invalid("timestamp", r.Timestamp, "is required")
	case !between(r.TemperatureC, -60, 60):
		return invalid("temperature_c", r.TemperatureC, "must be within [-60, 60]")
	case !between(r.HumidityPct, 0, 100):
		return invalid("humidity_pct", r.HumidityPct, "must be within [0, 100]")
	case !atLeastZero(r.WindSpeedKmh):
		return invalid("wind_speed_kmh", r.WindSpeedKmh, "must be >= 0")
	case !atLeastZero(r.PrecipitationMm):
		return invalid("precipitation_mm", r.PrecipitationMm, "must be >= 0")
	case !between(r.CloudCoverPct, 0, 100):
		return invalid("cloud_cover_pct", r.CloudCoverPct, "must be within [0, 100]")
	}
	return nil
}

// EnergyRecord is the demand derived from one WeatherRecord.
type EnergyRecord struct {
	Timestamp    time.Time
	DemandMWh    float64
	TemperatureC float64
	IsWeekend    bool
	HourOfDay    int
	Location     string
}

// NewEnergyRecord returns r if demand is non-negative and the hour is valid.
func NewEnergyRecord(r EnergyRecord) (EnergyRecord, error) {
	if err := r.Validate(); err != nil {
		return EnergyRecord{}, err
	}
	return r, nil
}

// Validate reports the first out-of-range field.
func (r EnergyRecord) Validate() error {
	switch {
	case r.Timestamp.IsZero():
		return invalid("timestamp", r.Timestamp, "is required")
	case !atLeastZero(r.DemandMWh):
		return invalid("demand_mwh", r.DemandMWh, "must be >= 0")
	case math.IsNaN(r.TemperatureC) || math.IsInf(r.TemperatureC, 0):
		return invalid("temperature_c", r.TemperatureC, "must be finite")
	case r.HourOfDay < 0 || r.HourOfDay > 23:
		return invalid("hour_of_day", r.HourOfDay, "must be within [0, 23]")
	}
	return nil
}

// QualityCheckResult is the outcome of one quality rule over a record sequence.
type QualityCheckResult struct {
	ID          int64
	RunID       string
	CheckName   string
	Status      QualityStatus
	MetricValue *float64
	Threshold   *float64
	Message     string
	CheckedAt   time.Time
}

// NewQualityCheckResult validates the status and name of a verdict.
func NewQualityCheckResult(r QualityCheckResult) (QualityCheckResult, error) {
	if r.CheckName == "" {
		return QualityCheckResult{}, invalid("check_name", r.CheckName, "is required")
	}
	if _, err := ParseQualityStatus(string(r.Status)); err != nil {
		return QualityCheckResult{}, err
	}
	return r, nil
}

// MetricResult is one named scalar computed over a record sequence.
type MetricResult struct {
	ID         int64
	RunID      string
	MetricName string
	Value      float64
	Unit       string
	Dimensions map[string]string
	ComputedAt time.Time
}

// NewMetricResult rejects empty names and non-finite values.
func NewMetricResult(r MetricResult) (MetricResult, error) {
	if r.MetricName == "" {
		return MetricResult{}, invalid("metric_name", r.MetricName, "is required")
	}
	if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		return MetricResult{}, invalid("value", r.Value, "must be finite")
	}
	if r.Dimensions == nil {
		r.Dimensions = map[string]string{}
	}
	return r, nil
}

// Float returns a pointer to v, for optional verdict fields.
func Float(v float64) *float64 {
	return &v
}

func between(v, lo, hi float64) bool {
	return !math.IsNaN(v) && v >= lo && v <= hi
}

func atLeastZero(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 1) && v >= 0
}

func invalid(field string, value any, reason string) error {
	return &ValidationError{Field: field, Value: fmt.Sprint(value), Reason: reason}
}
