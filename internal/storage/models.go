package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"energypulse/internal/model"
)

// WeatherRow is the persisted shape of a weather observation. Timestamp is
// wall-clock time in the store's zone, carried in UTC fields.
type WeatherRow struct {
	Timestamp       time.Time
	Location        string
	TemperatureC    float64
	HumidityPct     float64
	WindSpeedKmh    float64
	PrecipitationMm float64
	CloudCoverPct   float64
}

// EnergyRow is the persisted shape of a demand observation.
type EnergyRow struct {
	Timestamp    time.Time
	Location     string
	DemandMWh    float64
	TemperatureC float64
	IsWeekend    bool
	HourOfDay    int
}

// QualityRow is an appended quality verdict.
type QualityRow struct {
	CheckID     int64
	RunID       *string
	CheckName   string
	Status      string
	MetricValue *float64
	Threshold   *float64
	Message     string
	CheckedAt   time.Time
}

// MetricRow is an appended metric result with JSON-encoded dimensions.
type MetricRow struct {
	MetricID   int64
	RunID      *string
	MetricName string
	Value      float64
	Unit       string
	Dimensions []byte
	ComputedAt time.Time
}

// QualitySummary counts the latest verdict of each check by status.
type QualitySummary map[model.QualityStatus]int64

// Total returns the number of checks summarised.
func (q QualitySummary) Total() int64 {
	var n int64
	for _, c := range q {
		n += c
	}
	return n
}

// toWallClock drops the zone after converting t into loc.
func toWallClock(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// fromWallClock reads the fields of a zone-less timestamp as local time in loc.
func fromWallClock(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}

func weatherToRow(r model.WeatherRecord, loc *time.Location) WeatherRow {
	return WeatherRow{
		Timestamp:       toWallClock(r.Timestamp, loc),
		Location:        r.Location,
		TemperatureC:    r.TemperatureC,
		HumidityPct:     r.HumidityPct,
		WindSpeedKmh:    r.WindSpeedKmh,
		PrecipitationMm: r.PrecipitationMm,
		CloudCoverPct:   r.CloudCoverPct,
	}
}

func rowToWeather(row WeatherRow, loc *time.Location) model.WeatherRecord {
	return model.WeatherRecord{
		Timestamp:       fromWallClock(row.Timestamp, loc),
		TemperatureC:    row.TemperatureC,
		HumidityPct:     row.HumidityPct,
		WindSpeedKmh:    row.WindSpeedKmh,
		PrecipitationMm: row.PrecipitationMm,
		CloudCoverPct:   row.CloudCoverPct,
		Location:        row.Location,
	}
}

func energyToRow(r model.EnergyRecord, loc *time.Location) EnergyRow {
	return EnergyRow{
		Timestamp:    toWallClock(r.Timestamp, loc),
		Location:     r.Location,
		DemandMWh:    r.DemandMWh,
		TemperatureC: r.TemperatureC,
		IsWeekend:    r.IsWeekend,
		HourOfDay:    r.HourOfDay,
	}
}

func rowToEnergy(row EnergyRow, loc *time.Location) model.EnergyRecord {
	return model.EnergyRecord{
		Timestamp:    fromWallClock(row.Timestamp, loc),
		DemandMWh:    row.DemandMWh,
		TemperatureC: row.TemperatureC,
		IsWeekend:    row.IsWeekend,
		HourOfDay:    row.HourOfDay,
		Location:     row.Location,
	}
}

func qualityToRow(r model.QualityCheckResult) QualityRow {
	return QualityRow{
		CheckID:     r.ID,
		RunID:       optionalString(r.RunID),
		CheckName:   r.CheckName,
		Status:      string(r.Status),
		MetricValue: r.MetricValue,
		Threshold:   r.Threshold,
		Message:     r.Message,
		CheckedAt:   r.CheckedAt,
	}
}

func rowToQuality(row QualityRow, loc *time.Location) (model.QualityCheckResult, error) {
	status, err := model.ParseQualityStatus(row.Status)
	if err != nil {
		return model.QualityCheckResult{}, fmt.Errorf("check %d: %w", row.CheckID, err)
	}
	return model.QualityCheckResult{
		ID:          row.CheckID,
		RunID:       derefString(row.RunID),
		CheckName:   row.CheckName,
		Status:      status,
		MetricValue: row.MetricValue,
		Threshold:   row.Threshold,
		Message:     row.Message,
		CheckedAt:   row.CheckedAt.In(loc),
	}, nil
}

func metricToRow(r model.MetricResult) (MetricRow, error) {
	dims := r.Dimensions
	if dims == nil {
		dims = map[string]string{}
	}
	encoded, err := json.Marshal(dims)
	if err != nil {
		return MetricRow{}, fmt.Errorf("encode dimensions: %w", err)
	}
	return MetricRow{
		MetricID:   r.ID,
		RunID:      optionalString(r.RunID),
		MetricName: r.MetricName,
		Value:      r.Value,
		Unit:       r.Unit,
		Dimensions: encoded,
		ComputedAt: r.ComputedAt,
	}, nil
}

func rowToMetric(row MetricRow, loc *time.Location) (model.MetricResult, error) {
	dims := map[string]string{}
	if len(row.Dimensions) > 0 {
		if err := json.Unmarshal(row.Dimensions, &dims); err != nil {
			return model.MetricResult{}, fmt.Errorf("decode dimensions of metric %d: %w", row.MetricID, err)
		}
	}
	return model.MetricResult{
		ID:         row.MetricID,
		RunID:      derefString(row.RunID),
		MetricName: row.MetricName,
		Value:      row.Value,
		Unit:       row.Unit,
		Dimensions: dims,
		ComputedAt: row.ComputedAt.In(loc),
	}, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
