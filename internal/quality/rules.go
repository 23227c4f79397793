package quality

import (
	"fmt"
	"math"
	"sort"
	"time"

	"energypulse/internal/model"
)

const (
	minRecords      = 24
	maxAgeHours     = 48.0
	minTemperatureC = -40.0
	maxTemperatureC = 50.0
	minDemandMWh    = 500.0
	maxDemandMWh    = 15000.0

	// Hourly data with 15 minutes of tolerance.
	maxGap         = time.Hour + 15*time.Minute
	maxGapsForWarn = 3

	maxPctChange     = 50.0
	maxSpikesForWarn = 5

	maxOutOfRangePct = 5.0
	maxDuplicatePct  = 1.0
)

type recordKey struct {
	ts       time.Time
	location string
}

type uniqueKey struct {
	unixNano int64
	location string
}

func verdict(name string, status model.QualityStatus, metric, threshold *float64, message string, now time.Time) model.QualityCheckResult {
	return model.QualityCheckResult{
		CheckName:   name,
		Status:      status,
		MetricValue: metric,
		Threshold:   threshold,
		Message:     message,
		CheckedAt:   now,
	}
}

func noRecords(name string, now time.Time) model.QualityCheckResult {
	return verdict(name, model.StatusFail, nil, nil, "No records to check", now)
}

func completeness(count int, dataType string, now time.Time) model.QualityCheckResult {
	var (
		status  model.QualityStatus
		message string
	)
	switch {
	case count >= minRecords:
		status = model.StatusPass
		message = fmt.Sprintf("Found %d %s records (threshold: %d)", count, dataType, minRecords)
	case count >= minRecords/2:
		status = model.StatusWarn
		message = fmt.Sprintf("Low record count: %d %s records (threshold: %d)", count, dataType, minRecords)
	default:
		status = model.StatusFail
		message = fmt.Sprintf("Insufficient data: %d %s records (threshold: %d)", count, dataType, minRecords)
	}

	return verdict(dataType+"_completeness", status, model.Float(float64(count)), model.Float(minRecords), message, now)
}

func freshness(keys []recordKey, now time.Time) model.QualityCheckResult {
	if len(keys) == 0 {
		return noRecords(CheckWeatherFreshness, now)
	}

	latest := keys[0].ts
	for _, k := range keys[1:] {
		if k.ts.After(latest) {
			latest = k.ts
		}
	}
	ageHours := now.Sub(latest).Hours()

	var (
		status  model.QualityStatus
		message string
	)
	switch {
	case ageHours <= maxAgeHours:
		status = model.StatusPass
		message = fmt.Sprintf("Latest data is %.1f hours old", ageHours)
	case ageHours <= maxAgeHours*2:
		status = model.StatusWarn
		message = fmt.Sprintf("Data is stale: %.1f hours old (threshold: %.0fh)", ageHours, maxAgeHours)
	default:
		status = model.StatusFail
		message = fmt.Sprintf("Data is very stale: %.1f hours old (threshold: %.0fh)", ageHours, maxAgeHours)
	}

	return verdict(CheckWeatherFreshness, status, model.Float(ageHours), model.Float(maxAgeHours), message, now)
}

func temperatureRange(temps []float64, now time.Time) model.QualityCheckResult {
	if len(temps) == 0 {
		return noRecords(CheckTemperatureRange, now)
	}

	outside := countOutside(temps, minTemperatureC, maxTemperatureC)
	if outside == 0 {
		msg := fmt.Sprintf("All %d temperatures within range [%.0f, %.0f]°C", len(temps), minTemperatureC, maxTemperatureC)
		return verdict(CheckTemperatureRange, model.StatusPass, model.Float(0), model.Float(0), msg, now)
	}

	pct := percent(outside, len(temps))
	msg := fmt.Sprintf("%d temps (%.1f%%) outside range [%.0f, %.0f]°C", outside, pct, minTemperatureC, maxTemperatureC)
	return verdict(CheckTemperatureRange, statusForPct(pct, maxOutOfRangePct), model.Float(float64(outside)), model.Float(0), msg, now)
}

func demandRange(demands []float64, now time.Time) model.QualityCheckResult {
	if len(demands) == 0 {
		return noRecords(CheckDemandRange, now)
	}

	outside := countOutside(demands, minDemandMWh, maxDemandMWh)
	if outside == 0 {
		msg := fmt.Sprintf("All %d demand values within range [%.0f, %.0f] MWh", len(demands), minDemandMWh, maxDemandMWh)
		return verdict(CheckDemandRange, model.StatusPass, model.Float(0), model.Float(0), msg, now)
	}

	pct := percent(outside, len(demands))
	msg := fmt.Sprintf("%d demands (%.1f%%) outside expected range", outside, pct)
	return verdict(CheckDemandRange, statusForPct(pct, maxOutOfRangePct), model.Float(float64(outside)), model.Float(0), msg, now)
}

func uniqueness(keys []recordKey, now time.Time) model.QualityCheckResult {
	if len(keys) == 0 {
		return noRecords(CheckUniqueness, now)
	}

	seen := make(map[uniqueKey]struct{}, len(keys))
	duplicates := 0
	for _, k := range keys {
		key := uniqueKey{unixNano: k.ts.UnixNano(), location: k.location}
		if _, ok := seen[key]; ok {
			duplicates++
			continue
		}
		seen[key] = struct{}{}
	}

	if duplicates == 0 {
		msg := fmt.Sprintf("All %d records are unique by timestamp+location", len(keys))
		return verdict(CheckUniqueness, model.StatusPass, model.Float(0), model.Float(0), msg, now)
	}

	pct := percent(duplicates, len(keys))
	msg := fmt.Sprintf("Found %d duplicate records (%.1f%%)", duplicates, pct)
	return verdict(CheckUniqueness, statusForPct(pct, maxDuplicatePct), model.Float(float64(duplicates)), model.Float(0), msg, now)
}

func noGaps(keys []recordKey, now time.Time) model.QualityCheckResult {
	if len(keys) < 2 {
		return verdict(CheckNoGaps, model.StatusWarn, nil, nil, "Not enough records to check for gaps", now)
	}

	gaps := 0
	for _, idx := range groupByLocation(keys) {
		for i := 1; i < len(idx); i++ {
			if keys[idx[i]].ts.Sub(keys[idx[i-1]].ts) > maxGap {
				gaps++
			}
		}
	}

	var (
		status  model.QualityStatus
		message string
	)
	switch {
	case gaps == 0:
		status = model.StatusPass
		message = "No gaps detected in hourly data"
	case gaps <= maxGapsForWarn:
		status = model.StatusWarn
		message = fmt.Sprintf("Found %d gaps in hourly data", gaps)
	default:
		status = model.StatusFail
		message = fmt.Sprintf("Found %d gaps in hourly data (data may be incomplete)", gaps)
	}

	return verdict(CheckNoGaps, status, model.Float(float64(gaps)), model.Float(0), message, now)
}

func demandConsistency(keys []recordKey, demands []float64, now time.Time) model.QualityCheckResult {
	if len(keys) < 2 {
		return verdict(CheckDemandConsistency, model.StatusWarn, nil, nil, "Not enough records to check consistency", now)
	}

	spikes := 0
	for _, idx := range groupByLocation(keys) {
		for i := 1; i < len(idx); i++ {
			prev, curr := idx[i-1], idx[i]
			// Duplicate timestamps are reported by uniqueness, not as spikes.
			if keys[prev].ts.Equal(keys[curr].ts) {
				continue
			}
			if demands[prev] <= 0 {
				continue
			}
			change := math.Abs(demands[curr]-demands[prev]) / demands[prev] * 100
			if change > maxPctChange {
				spikes++
			}
		}
	}

	var (
		status  model.QualityStatus
		message string
	)
	switch {
	case spikes == 0:
		status = model.StatusPass
		message = "Demand changes are consistent (no sudden spikes)"
	case spikes <= maxSpikesForWarn:
		status = model.StatusWarn
		message = fmt.Sprintf("Found %d unusual demand changes (>%.0f%% hour-to-hour)", spikes, maxPctChange)
	default:
		status = model.StatusFail
		message = fmt.Sprintf("Found %d unusual demand spikes - check data quality", spikes)
	}

	return verdict(CheckDemandConsistency, status, model.Float(float64(spikes)), model.Float(0), message, now)
}

// groupByLocation returns record indices per location, each sorted by timestamp.
func groupByLocation(keys []recordKey) map[string][]int {
	groups := make(map[string][]int)
	for i, k := range keys {
		groups[k.location] = append(groups[k.location], i)
	}
	for _, idx := range groups {
		sort.SliceStable(idx, func(a, b int) bool {
			return keys[idx[a]].ts.Before(keys[idx[b]].ts)
		})
	}
	return groups
}

func countOutside(values []float64, lo, hi float64) int {
	n := 0
	for _, v := range values {
		if v < lo || v > hi {
			n++
		}
	}
	return n
}

func percent(part, total int) float64 {
	return float64(part) / float64(total) * 100
}

func statusForPct(pct, failAbove float64) model.QualityStatus {
	if pct > failAbove {
		return model.StatusFail
	}
	return model.StatusWarn
}
