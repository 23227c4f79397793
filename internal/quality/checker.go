package quality

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"energypulse/internal/model"
)

// Check names as persisted with each verdict.
const (
	CheckWeatherCompleteness = "weather_completeness"
	CheckEnergyCompleteness  = "energy_completeness"
	CheckWeatherFreshness    = "weather_freshness"
	CheckTemperatureRange    = "temperature_range"
	CheckUniqueness          = "uniqueness"
	CheckNoGaps              = "no_gaps"
	CheckDemandRange         = "demand_range"
	CheckDemandConsistency   = "demand_consistency"
)

// Checker runs the weather and energy rule batteries. It holds no state
// besides its clock and logger and is safe for concurrent use.
type Checker struct {
	clock  clockwork.Clock
	logger zerolog.Logger
}

// NewChecker builds a Checker. A nil clock uses wall time.
func NewChecker(clock clockwork.Clock, logger zerolog.Logger) *Checker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Checker{clock: clock, logger: logger.With().Str("component", "quality").Logger()}
}

// CheckWeather evaluates the five weather rules against the checker's clock.
func (c *Checker) CheckWeather(records []model.WeatherRecord) []model.QualityCheckResult {
	return c.CheckWeatherAt(records, c.clock.Now())
}

// CheckWeatherAt evaluates the weather rules with an explicit "now" for freshness.
func (c *Checker) CheckWeatherAt(records []model.WeatherRecord, now time.Time) []model.QualityCheckResult {
	keys := make([]recordKey, len(records))
	temps := make([]float64, len(records))
	for i, r := range records {
		keys[i] = recordKey{ts: r.Timestamp, location: r.Location}
		temps[i] = r.TemperatureC
	}

	results := []model.QualityCheckResult{
		completeness(len(records), "weather", now),
		freshness(keys, now),
		temperatureRange(temps, now),
		uniqueness(keys, now),
		noGaps(keys, now),
	}

	c.logSummary("weather quality complete", results)
	return results
}

// CheckEnergy evaluates the four energy rules.
func (c *Checker) CheckEnergy(records []model.EnergyRecord) []model.QualityCheckResult {
	now := c.clock.Now()

	keys := make([]recordKey, len(records))
	demands := make([]float64, len(records))
	for i, r := range records {
		keys[i] = recordKey{ts: r.Timestamp, location: r.Location}
		demands[i] = r.DemandMWh
	}

	results := []model.QualityCheckResult{
		completeness(len(records), "energy", now),
		demandRange(demands, now),
		uniqueness(keys, now),
		demandConsistency(keys, demands, now),
	}

	c.logSummary("energy quality complete", results)
	return results
}

func (c *Checker) logSummary(msg string, results []model.QualityCheckResult) {
	c.logger.Info().Int("passed", Passed(results)).Int("total", len(results)).Msg(msg)
}

// Worst returns the most severe status in results, or pass when empty.
func Worst(results []model.QualityCheckResult) model.QualityStatus {
	worst := model.StatusPass
	for _, r := range results {
		if r.Status.Severity() > worst.Severity() {
			worst = r.Status
		}
	}
	return worst
}

// Passed counts verdicts with status pass.
func Passed(results []model.QualityCheckResult) int {
	n := 0
	for _, r := range results {
		if r.Status == model.StatusPass {
			n++
		}
	}
	return n
}
