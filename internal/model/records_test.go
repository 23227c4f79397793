package model

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

func validWeather() WeatherRecord {
	return WeatherRecord{
		Timestamp:       testTime,
		TemperatureC:    20.5,
		HumidityPct:     65,
		WindSpeedKmh:    15,
		PrecipitationMm: 0,
		CloudCoverPct:   30,
		Location:        "new_york",
	}
}

func TestNewWeatherRecord(t *testing.T) {
	rec, err := NewWeatherRecord(validWeather())
	require.NoError(t, err)
	assert.Equal(t, 20.5, rec.TemperatureC)
	assert.Equal(t, "new_york", rec.Location)
}

func TestNewWeatherRecordRejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name  string
		field string
		edit  func(*WeatherRecord)
	}{
		{"too hot", "temperature_c", func(r *WeatherRecord) { r.TemperatureC = 100 }},
		{"too cold", "temperature_c", func(r *WeatherRecord) { r.TemperatureC = -61 }},
		{"humidity", "humidity_pct", func(r *WeatherRecord) { r.HumidityPct = 150 }},
		{"wind", "wind_speed_kmh", func(r *WeatherRecord) { r.WindSpeedKmh = -1 }},
		{"precipitation", "precipitation_mm", func(r *WeatherRecord) { r.PrecipitationMm = -0.1 }},
		{"cloud", "cloud_cover_pct", func(r *WeatherRecord) { r.CloudCoverPct = 101 }},
		{"nan temperature", "temperature_c", func(r *WeatherRecord) { r.TemperatureC = math.NaN() }},
		{"missing timestamp", "timestamp", func(r *WeatherRecord) { r.Timestamp = time.Time{} }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := validWeather()
			tc.edit(&rec)

			_, err := NewWeatherRecord(rec)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))

			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tc.field, vErr.Field)
		})
	}
}

func TestWeatherRecordBoundsAreInclusive(t *testing.T) {
	rec := validWeather()
	rec.TemperatureC = 60
	rec.HumidityPct = 100
	rec.CloudCoverPct = 0
	_, err := NewWeatherRecord(rec)
	assert.NoError(t, err)
}

func TestNewEnergyRecord(t *testing.T) {
	rec, err := NewEnergyRecord(EnergyRecord{
		Timestamp:    testTime,
		DemandMWh:    5000,
		TemperatureC: 25,
		HourOfDay:    14,
		Location:     "new_york",
	})
	require.NoError(t, err)
	assert.Equal(t, 5000.0, rec.DemandMWh)
	assert.Equal(t, 14, rec.HourOfDay)
}

func TestNewEnergyRecordRejectsNegativeDemand(t *testing.T) {
	_, err := NewEnergyRecord(EnergyRecord{Timestamp: testTime, DemandMWh: -100, HourOfDay: 12})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestNewEnergyRecordRejectsInvalidHour(t *testing.T) {
	_, err := NewEnergyRecord(EnergyRecord{Timestamp: testTime, DemandMWh: 5000, HourOfDay: 25})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestParseQualityStatus(t *testing.T) {
	for _, s := range []string{"pass", "warn", "fail"} {
		status, err := ParseQualityStatus(s)
		require.NoError(t, err)
		assert.Equal(t, QualityStatus(s), status)
	}

	_, err := ParseQualityStatus("unknown")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestQualityStatusSeverity(t *testing.T) {
	assert.Greater(t, StatusFail.Severity(), StatusWarn.Severity())
	assert.Greater(t, StatusWarn.Severity(), StatusPass.Severity())
}

func TestNewMetricResultRejectsNonFinite(t *testing.T) {
	_, err := NewMetricResult(MetricResult{MetricName: "total_demand", Value: math.Inf(1), Unit: "MWh"})
	assert.ErrorIs(t, err, ErrValidation)

	res, err := NewMetricResult(MetricResult{MetricName: "total_demand", Value: 0, Unit: "MWh"})
	require.NoError(t, err)
	assert.NotNil(t, res.Dimensions)
}

func TestNewQualityCheckResult(t *testing.T) {
	_, err := NewQualityCheckResult(QualityCheckResult{CheckName: "uniqueness", Status: "maybe"})
	assert.ErrorIs(t, err, ErrValidation)

	res, err := NewQualityCheckResult(QualityCheckResult{CheckName: "uniqueness", Status: StatusPass, Threshold: Float(0)})
	require.NoError(t, err)
	assert.Equal(t, 0.0, *res.Threshold)
}
