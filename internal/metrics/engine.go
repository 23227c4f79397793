package metrics

import (
	"math"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/montanaflynn/stats"
	"github.com/rs/zerolog"

	"energypulse/internal/model"
	"energypulse/internal/numeric"
)

// Metric names.
const (
	TotalDemandName            = "total_demand"
	PeakDemandName             = "peak_demand"
	AverageDemandName          = "average_demand"
	PeakHourRatioName          = "peak_hour_ratio"
	WeekendWeekdayRatioName    = "weekend_weekday_ratio"
	PeakHourDemandName         = "peak_hour_demand"
	OvernightMinimumName       = "overnight_minimum"
	TemperatureSensitivityName = "temperature_sensitivity"
)

// Units.
const (
	UnitMWh         = "MWh"
	UnitRatio       = "ratio"
	UnitCorrelation = "correlation"
)

const (
	quantityPlaces = 2
	ratioPlaces    = 3

	peakHourStart      = 17
	peakHourEnd        = 20
	overnightHourStart = 0
	overnightHourEnd   = 5

	minCorrelationPairs = 10
)

// Engine computes summary metrics over energy and weather sequences.
type Engine struct {
	clock  clockwork.Clock
	logger zerolog.Logger
}

// NewEngine builds an Engine. A nil clock uses wall time.
func NewEngine(clock clockwork.Clock, logger zerolog.Logger) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{clock: clock, logger: logger.With().Str("component", "metrics").Logger()}
}

// ComputeAll returns the seven demand metrics and, when weather is non-empty,
// temperature_sensitivity. Every result carries a copy of dims.
func (e *Engine) ComputeAll(energy []model.EnergyRecord, weather []model.WeatherRecord, dims map[string]string) []model.MetricResult {
	results := []model.MetricResult{
		e.TotalDemand(energy, dims),
		e.PeakDemand(energy, dims),
		e.AverageDemand(energy, dims),
		e.PeakHourRatio(energy, dims),
		e.WeekendWeekdayRatio(energy, dims),
		e.PeakHourDemand(energy, dims),
		e.OvernightMinimum(energy, dims),
	}
	if len(weather) > 0 {
		results = append(results, e.TemperatureSensitivity(energy, weather, dims))
	}

	e.logger.Info().
		Int("count", len(results)).
		Interface("dimensions", dims).
		Msg("metrics computed")
	return results
}

func (e *Engine) TotalDemand(records []model.EnergyRecord, dims map[string]string) model.MetricResult {
	return e.result(TotalDemandName, sum(demands(records)), UnitMWh, quantityPlaces, dims)
}

func (e *Engine) PeakDemand(records []model.EnergyRecord, dims map[string]string) model.MetricResult {
	return e.result(PeakDemandName, peak(demands(records)), UnitMWh, quantityPlaces, dims)
}

func (e *Engine) AverageDemand(records []model.EnergyRecord, dims map[string]string) model.MetricResult {
	return e.result(AverageDemandName, mean(demands(records)), UnitMWh, quantityPlaces, dims)
}

// PeakHourRatio is peak demand over average demand.
func (e *Engine) PeakHourRatio(records []model.EnergyRecord, dims map[string]string) model.MetricResult {
	values := demands(records)
	return e.result(PeakHourRatioName, ratio(peak(values), mean(values)), UnitRatio, ratioPlaces, dims)
}

// WeekendWeekdayRatio is mean weekend demand over mean weekday demand, or 0
// when either group is empty.
func (e *Engine) WeekendWeekdayRatio(records []model.EnergyRecord, dims map[string]string) model.MetricResult {
	var weekend, weekday stats.Float64Data
	for _, r := range records {
		if r.IsWeekend {
			weekend = append(weekend, r.DemandMWh)
		} else {
			weekday = append(weekday, r.DemandMWh)
		}
	}

	value := 0.0
	if len(weekend) > 0 && len(weekday) > 0 {
		value = ratio(mean(weekend), mean(weekday))
	}
	return e.result(WeekendWeekdayRatioName, value, UnitRatio, ratioPlaces, dims)
}

// PeakHourDemand is mean demand over hours 17 through 20.
func (e *Engine) PeakHourDemand(records []model.EnergyRecord, dims map[string]string) model.MetricResult {
	values := demandsInHours(records, peakHourStart, peakHourEnd)
	return e.result(PeakHourDemandName, mean(values), UnitMWh, quantityPlaces, dims)
}

// OvernightMinimum is mean demand over hours 0 through 5.
func (e *Engine) OvernightMinimum(records []model.EnergyRecord, dims map[string]string) model.MetricResult {
	values := demandsInHours(records, overnightHourStart, overnightHourEnd)
	return e.result(OvernightMinimumName, mean(values), UnitMWh, quantityPlaces, dims)
}

// TemperatureSensitivity is the Pearson correlation between temperature and
// demand over records matched on (instant, location).
func (e *Engine) TemperatureSensitivity(energy []model.EnergyRecord, weather []model.WeatherRecord, dims map[string]string) model.MetricResult {
	type key struct {
		unixNano int64
		location string
	}

	lookup := make(map[key]float64, len(weather))
	for _, w := range weather {
		lookup[key{w.Timestamp.UnixNano(), w.Location}] = w.TemperatureC
	}

	var temps, loads []float64
	for _, r := range energy {
		if t, ok := lookup[key{r.Timestamp.UnixNano(), r.Location}]; ok {
			temps = append(temps, t)
			loads = append(loads, r.DemandMWh)
		}
	}

	value := 0.0
	if len(temps) >= minCorrelationPairs {
		value = pearson(temps, loads)
	}
	return e.result(TemperatureSensitivityName, value, UnitCorrelation, ratioPlaces, dims)
}

func (e *Engine) result(name string, value float64, unit string, places int32, dims map[string]string) model.MetricResult {
	return model.MetricResult{
		MetricName: name,
		Value:      numeric.Round(value, places),
		Unit:       unit,
		Dimensions: cloneDims(dims),
		ComputedAt: e.clock.Now(),
	}
}

func pearson(xs, ys []float64) float64 {
	n := float64(len(xs))
	var sumX, sumY, sumXX, sumYY, sumXY float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXX += xs[i] * xs[i]
		sumYY += ys[i] * ys[i]
		sumXY += xs[i] * ys[i]
	}

	denomSq := (n*sumXX - sumX*sumX) * (n*sumYY - sumY*sumY)
	if denomSq <= 0 {
		return 0
	}
	r := (n*sumXY - sumX*sumY) / math.Sqrt(denomSq)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return r
}

func demands(records []model.EnergyRecord) stats.Float64Data {
	out := make(stats.Float64Data, len(records))
	for i, r := range records {
		out[i] = r.DemandMWh
	}
	return out
}

func demandsInHours(records []model.EnergyRecord, from, to int) stats.Float64Data {
	var out stats.Float64Data
	for _, r := range records {
		if r.HourOfDay >= from && r.HourOfDay <= to {
			out = append(out, r.DemandMWh)
		}
	}
	return out
}

// stats returns an empty-input error for empty data; these map it to zero.
func sum(values stats.Float64Data) float64 {
	v, err := stats.Sum(values)
	if err != nil {
		return 0
	}
	return v
}

func peak(values stats.Float64Data) float64 {
	v, err := stats.Max(values)
	if err != nil {
		return 0
	}
	return v
}

func mean(values stats.Float64Data) float64 {
	v, err := stats.Mean(values)
	if err != nil {
		return 0
	}
	return v
}

func ratio(num, den float64) float64 {
	if den <= 0 {
		return 0
	}
	return num / den
}

func cloneDims(dims map[string]string) map[string]string {
	out := make(map[string]string, len(dims))
	for k, v := range dims {
		out[k] = v
	}
	return out
}

// At returns the first result named name.
func At(results []model.MetricResult, name string) (model.MetricResult, bool) {
	for _, r := range results {
		if r.MetricName == name {
			return r, true
		}
	}
	return model.MetricResult{}, false
}
