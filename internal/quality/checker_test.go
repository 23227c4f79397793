package quality

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energypulse/internal/model"
)

var now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestChecker() *Checker {
	return NewChecker(clockwork.NewFakeClockAt(now), zerolog.Nop())
}

func hourlyWeather(n int, start time.Time, location string) []model.WeatherRecord {
	out := make([]model.WeatherRecord, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, model.WeatherRecord{
			Timestamp:     start.Add(time.Duration(i) * time.Hour),
			TemperatureC:  20 + float64(i%10),
			HumidityPct:   50,
			WindSpeedKmh:  10,
			CloudCoverPct: 30,
			Location:      location,
		})
	}
	return out
}

func hourlyEnergy(n int, start time.Time, location string) []model.EnergyRecord {
	out := make([]model.EnergyRecord, 0, n)
	for i := 0; i < n; i++ {
		ts := start.Add(time.Duration(i) * time.Hour)
		out = append(out, model.EnergyRecord{
			Timestamp:    ts,
			DemandMWh:    5000 + float64(i%24)*100,
			TemperatureC: 20,
			IsWeekend:    i%7 >= 5,
			HourOfDay:    ts.Hour(),
			Location:     location,
		})
	}
	return out
}

func find(t *testing.T, results []model.QualityCheckResult, name string) model.QualityCheckResult {
	t.Helper()
	for _, r := range results {
		if r.CheckName == name {
			return r
		}
	}
	require.Failf(t, "check not found", "%s", name)
	return model.QualityCheckResult{}
}

func TestCheckWeatherHealthyData(t *testing.T) {
	results := newTestChecker().CheckWeather(hourlyWeather(48, now.Add(-48*time.Hour), "new_york"))
	require.Len(t, results, 5)

	for _, r := range results {
		assert.Equal(t, model.StatusPass, r.Status, "%s: %s", r.CheckName, r.Message)
		assert.Equal(t, now, r.CheckedAt)
	}
}

func TestCheckEnergyHealthyData(t *testing.T) {
	results := newTestChecker().CheckEnergy(hourlyEnergy(48, now.Add(-48*time.Hour), "new_york"))
	require.Len(t, results, 4)

	for _, r := range results {
		assert.Equal(t, model.StatusPass, r.Status, "%s: %s", r.CheckName, r.Message)
	}
}

func TestCompletenessThresholds(t *testing.T) {
	tests := []struct {
		count int
		want  model.QualityStatus
	}{
		{0, model.StatusFail},
		{5, model.StatusFail},
		{11, model.StatusFail},
		{12, model.StatusWarn},
		{23, model.StatusWarn},
		{24, model.StatusPass},
		{100, model.StatusPass},
	}

	for _, tc := range tests {
		res := find(t, newTestChecker().CheckWeather(hourlyWeather(tc.count, now.Add(-time.Duration(tc.count)*time.Hour), "chicago")), CheckWeatherCompleteness)
		assert.Equal(t, tc.want, res.Status, "count %d", tc.count)
		assert.Equal(t, float64(tc.count), *res.MetricValue)
		assert.Equal(t, 24.0, *res.Threshold)
	}

	energy := find(t, newTestChecker().CheckEnergy(hourlyEnergy(5, now, "chicago")), CheckEnergyCompleteness)
	assert.Equal(t, model.StatusFail, energy.Status)
}

func TestFreshness(t *testing.T) {
	c := newTestChecker()

	tests := []struct {
		age  time.Duration
		want model.QualityStatus
	}{
		{0, model.StatusPass},
		{48 * time.Hour, model.StatusPass},
		{49 * time.Hour, model.StatusWarn},
		{96 * time.Hour, model.StatusWarn},
		{97 * time.Hour, model.StatusFail},
	}
	for _, tc := range tests {
		records := hourlyWeather(1, now.Add(-tc.age), "houston")
		res := find(t, c.CheckWeatherAt(records, now), CheckWeatherFreshness)
		assert.Equal(t, tc.want, res.Status, "age %s", tc.age)
		assert.InDelta(t, tc.age.Hours(), *res.MetricValue, 1e-9)
	}
}

func TestFreshnessUsesLatestTimestamp(t *testing.T) {
	records := hourlyWeather(3, now.Add(-200*time.Hour), "houston")
	records = append(records, hourlyWeather(1, now.Add(-time.Hour), "houston")...)

	res := find(t, newTestChecker().CheckWeather(records), CheckWeatherFreshness)
	assert.Equal(t, model.StatusPass, res.Status)
}

func TestFreshnessFollowsInjectedClock(t *testing.T) {
	clock := clockwork.NewFakeClockAt(now)
	c := NewChecker(clock, zerolog.Nop())
	records := hourlyWeather(24, now.Add(-24*time.Hour), "phoenix")

	assert.Equal(t, model.StatusPass, find(t, c.CheckWeather(records), CheckWeatherFreshness).Status)

	clock.Advance(100 * time.Hour)
	assert.Equal(t, model.StatusFail, find(t, c.CheckWeather(records), CheckWeatherFreshness).Status)
}

func TestEmptyInputAlwaysYieldsVerdicts(t *testing.T) {
	c := newTestChecker()

	weather := c.CheckWeather(nil)
	require.Len(t, weather, 5)
	assert.Equal(t, model.StatusFail, find(t, weather, CheckWeatherCompleteness).Status)
	assert.Equal(t, model.StatusFail, find(t, weather, CheckWeatherFreshness).Status)
	assert.Equal(t, model.StatusFail, find(t, weather, CheckTemperatureRange).Status)
	assert.Equal(t, model.StatusFail, find(t, weather, CheckUniqueness).Status)
	assert.Equal(t, model.StatusWarn, find(t, weather, CheckNoGaps).Status)

	energy := c.CheckEnergy(nil)
	require.Len(t, energy, 4)
	assert.Equal(t, model.StatusFail, find(t, energy, CheckEnergyCompleteness).Status)
	assert.Equal(t, model.StatusFail, find(t, energy, CheckDemandRange).Status)
	assert.Equal(t, model.StatusFail, find(t, energy, CheckUniqueness).Status)
	assert.Equal(t, model.StatusWarn, find(t, energy, CheckDemandConsistency).Status)
}

func TestTemperatureRange(t *testing.T) {
	records := hourlyWeather(100, now.Add(-100*time.Hour), "phoenix")
	records[0].TemperatureC = 55
	records[1].TemperatureC = -45

	res := find(t, newTestChecker().CheckWeather(records), CheckTemperatureRange)
	assert.Equal(t, model.StatusWarn, res.Status)
	assert.Equal(t, 2.0, *res.MetricValue)

	for i := 2; i < 10; i++ {
		records[i].TemperatureC = 58
	}
	res = find(t, newTestChecker().CheckWeather(records), CheckTemperatureRange)
	assert.Equal(t, model.StatusFail, res.Status)
	assert.Equal(t, 10.0, *res.MetricValue)
}

func TestTemperatureRangeBoundsInclusive(t *testing.T) {
	records := hourlyWeather(2, now.Add(-2*time.Hour), "phoenix")
	records[0].TemperatureC = -40
	records[1].TemperatureC = 50

	res := find(t, newTestChecker().CheckWeather(records), CheckTemperatureRange)
	assert.Equal(t, model.StatusPass, res.Status)
}

func TestUniquenessDetectsDuplicates(t *testing.T) {
	ts := now.Add(-time.Hour)
	records := make([]model.WeatherRecord, 30)
	for i := range records {
		records[i] = model.WeatherRecord{Timestamp: ts, TemperatureC: 20, HumidityPct: 50, WindSpeedKmh: 10, CloudCoverPct: 30, Location: "test"}
	}

	res := find(t, newTestChecker().CheckWeather(records), CheckUniqueness)
	assert.Equal(t, model.StatusFail, res.Status)
	assert.Equal(t, 29.0, *res.MetricValue)
}

func TestUniquenessWarnsOnFewDuplicates(t *testing.T) {
	records := hourlyEnergy(200, now.Add(-200*time.Hour), "chicago")
	records = append(records, records[10])

	res := find(t, newTestChecker().CheckEnergy(records), CheckUniqueness)
	assert.Equal(t, model.StatusWarn, res.Status)
	assert.Equal(t, 1.0, *res.MetricValue)
}

func TestUniquenessComparesInstants(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	a := hourlyEnergy(1, now, "chicago")
	b := hourlyEnergy(1, now.In(ny), "chicago")

	res := find(t, newTestChecker().CheckEnergy(append(a, b...)), CheckUniqueness)
	assert.Equal(t, 1.0, *res.MetricValue)
}

func TestUniquenessKeysOnLocation(t *testing.T) {
	records := append(hourlyWeather(24, now.Add(-24*time.Hour), "chicago"), hourlyWeather(24, now.Add(-24*time.Hour), "houston")...)

	res := find(t, newTestChecker().CheckWeather(records), CheckUniqueness)
	assert.Equal(t, model.StatusPass, res.Status)
}

func TestNoGaps(t *testing.T) {
	tests := []struct {
		name    string
		removed []int
		want    model.QualityStatus
		gaps    float64
	}{
		{"complete", nil, model.StatusPass, 0},
		{"one gap", []int{5}, model.StatusWarn, 1},
		{"three gaps", []int{5, 10, 15}, model.StatusWarn, 3},
		{"four gaps", []int{5, 10, 15, 20}, model.StatusFail, 4},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			all := hourlyWeather(30, now.Add(-30*time.Hour), "new_york")
			records := make([]model.WeatherRecord, 0, len(all))
			for i, r := range all {
				if !contains(tc.removed, i) {
					records = append(records, r)
				}
			}

			res := find(t, newTestChecker().CheckWeather(records), CheckNoGaps)
			assert.Equal(t, tc.want, res.Status)
			assert.Equal(t, tc.gaps, *res.MetricValue)
		})
	}
}

func TestNoGapsToleratesFifteenMinutes(t *testing.T) {
	start := now.Add(-5 * time.Hour)
	records := []model.WeatherRecord{
		hourlyWeather(1, start, "x")[0],
		hourlyWeather(1, start.Add(75*time.Minute), "x")[0],
		hourlyWeather(1, start.Add(151*time.Minute), "x")[0],
	}

	res := find(t, newTestChecker().CheckWeather(records), CheckNoGaps)
	assert.Equal(t, 1.0, *res.MetricValue)
}

func TestNoGapsSortsAndGroupsByLocation(t *testing.T) {
	start := now.Add(-24 * time.Hour)
	ny := hourlyWeather(12, start, "new_york")
	chi := hourlyWeather(12, start.Add(6*time.Hour), "chicago")

	// Interleave and reverse so only per-location sorting yields zero gaps.
	var records []model.WeatherRecord
	for i := 11; i >= 0; i-- {
		records = append(records, ny[i], chi[i])
	}

	res := find(t, newTestChecker().CheckWeather(records), CheckNoGaps)
	assert.Equal(t, model.StatusPass, res.Status)
}

func TestNoGapsIgnoresDuplicateTimestamps(t *testing.T) {
	records := hourlyWeather(10, now.Add(-10*time.Hour), "x")
	records = append(records, records[3], records[7])

	res := find(t, newTestChecker().CheckWeather(records), CheckNoGaps)
	assert.Equal(t, model.StatusPass, res.Status)
}

func TestDemandRange(t *testing.T) {
	records := hourlyEnergy(40, now.Add(-40*time.Hour), "houston")
	records[0].DemandMWh = 400

	res := find(t, newTestChecker().CheckEnergy(records), CheckDemandRange)
	assert.Equal(t, model.StatusWarn, res.Status)
	assert.Equal(t, 1.0, *res.MetricValue)

	records[1].DemandMWh = 16000
	records[2].DemandMWh = 20000
	res = find(t, newTestChecker().CheckEnergy(records), CheckDemandRange)
	assert.Equal(t, model.StatusFail, res.Status)
	assert.Equal(t, 3.0, *res.MetricValue)
}

func TestDemandConsistency(t *testing.T) {
	records := hourlyEnergy(30, now.Add(-30*time.Hour), "houston")
	for i := range records {
		records[i].DemandMWh = 5000
	}
	records[10].DemandMWh = 9000

	res := find(t, newTestChecker().CheckEnergy(records), CheckDemandConsistency)
	// 5000 -> 9000 (+80%) is a spike; 9000 -> 5000 (-44%) is not.
	assert.Equal(t, model.StatusWarn, res.Status)
	assert.Equal(t, 1.0, *res.MetricValue)

	for _, i := range []int{2, 4, 6, 8, 12, 14} {
		records[i].DemandMWh = 9000
	}
	res = find(t, newTestChecker().CheckEnergy(records), CheckDemandConsistency)
	assert.Equal(t, model.StatusFail, res.Status)
	assert.Equal(t, 7.0, *res.MetricValue)
}

func TestDemandConsistencyNeverComparesAcrossLocations(t *testing.T) {
	start := now.Add(-24 * time.Hour)
	low := hourlyEnergy(24, start, "phoenix")
	high := hourlyEnergy(24, start.Add(30*time.Minute), "new_york")
	for i := range low {
		low[i].DemandMWh = 1000
		high[i].DemandMWh = 10000
	}

	res := find(t, newTestChecker().CheckEnergy(append(low, high...)), CheckDemandConsistency)
	assert.Equal(t, model.StatusPass, res.Status)
}

func TestDemandConsistencySkipsDuplicateTimestamps(t *testing.T) {
	records := hourlyEnergy(5, now.Add(-5*time.Hour), "x")
	for i := range records {
		records[i].DemandMWh = 5000
	}
	dup := records[len(records)-1]
	dup.DemandMWh = 12000
	records = append(records, dup)

	res := find(t, newTestChecker().CheckEnergy(records), CheckDemandConsistency)
	assert.Equal(t, model.StatusPass, res.Status)
}

func TestWorstAndPassed(t *testing.T) {
	results := []model.QualityCheckResult{
		{Status: model.StatusPass},
		{Status: model.StatusWarn},
		{Status: model.StatusPass},
	}
	assert.Equal(t, model.StatusWarn, Worst(results))
	assert.Equal(t, 2, Passed(results))
	assert.Equal(t, model.StatusPass, Worst(nil))
}

func contains(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
