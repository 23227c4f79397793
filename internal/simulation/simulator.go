package simulation

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat/distuv"

	"energypulse/internal/model"
	"energypulse/internal/numeric"
)

// DefaultBaseLoadMWh applies to locations missing from the base-load table.
const DefaultBaseLoadMWh = 3000.0

const (
	comfortMinC = 18.0
	comfortMaxC = 24.0

	noiseMean   = 1.0
	noiseStdDev = 0.05
)

var baseLoadMWh = map[string]float64{
	"new_york":    5000,
	"los_angeles": 4500,
	"chicago":     3500,
	"houston":     4000,
	"phoenix":     3000,
}

// BaseLoad returns the always-on demand for a location.
func BaseLoad(location string) float64 {
	if base, ok := baseLoadMWh[location]; ok {
		return base
	}
	return DefaultBaseLoadMWh
}

// Simulator derives hourly energy demand from weather. It owns its random
// source, so a Simulator must not be shared between goroutines.
type Simulator struct {
	noise  distuv.Normal
	logger zerolog.Logger
}

// New builds a Simulator whose noise sequence is fully determined by seed.
func New(seed uint64, logger zerolog.Logger) *Simulator {
	return &Simulator{
		noise: distuv.Normal{
			Mu:    noiseMean,
			Sigma: noiseStdDev,
			Src:   rand.NewPCG(seed, seed^0x9e3779b97f4a7c15),
		},
		logger: logger.With().Str("component", "simulator").Logger(),
	}
}

// Simulate returns one energy record per weather record, in input order.
func (s *Simulator) Simulate(weather []model.WeatherRecord) ([]model.EnergyRecord, error) {
	s.logger.Debug().Int("input_records", len(weather)).Msg("simulating energy")

	out := make([]model.EnergyRecord, 0, len(weather))
	for _, w := range weather {
		hour := w.Timestamp.Hour()
		weekend := isWeekend(w.Timestamp)

		rec, err := model.NewEnergyRecord(model.EnergyRecord{
			Timestamp:    w.Timestamp,
			DemandMWh:    s.demand(w, hour, weekend),
			TemperatureC: w.TemperatureC,
			IsWeekend:    weekend,
			HourOfDay:    hour,
			Location:     w.Location,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}

	s.logger.Info().Int("output_records", len(out)).Msg("energy simulated")
	return out, nil
}

func (s *Simulator) demand(w model.WeatherRecord, hour int, weekend bool) float64 {
	base := BaseLoad(w.Location)

	demand := (base + hvacLoad(base, w.TemperatureC)) * timeOfDayMultiplier(hour) * weekendMultiplier(weekend)
	demand *= s.noise.Rand()

	return numeric.Round(math.Max(0, demand), 2)
}

func hvacLoad(base, tempC float64) float64 {
	switch {
	case tempC < comfortMinC:
		return base * 0.3 * math.Pow((comfortMinC-tempC)/20, 1.5)
	case tempC > comfortMaxC:
		return base * 0.4 * math.Pow((tempC-comfortMaxC)/20, 1.5)
	default:
		return 0
	}
}

func timeOfDayMultiplier(hour int) float64 {
	switch {
	case hour >= 7 && hour <= 9:
		return 1.2
	case hour >= 17 && hour <= 20:
		return 1.35
	case hour >= 0 && hour <= 5:
		return 0.7
	default:
		return 1.0
	}
}

func weekendMultiplier(weekend bool) float64 {
	if weekend {
		return 0.75
	}
	return 1.0
}

func isWeekend(t time.Time) bool {
	day := t.Weekday()
	return day == time.Saturday || day == time.Sunday
}
