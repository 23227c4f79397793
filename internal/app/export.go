package app

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"energypulse/internal/model"
	"energypulse/internal/numeric"
)

// Export renders stored energy data for one location as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	location, err := a.location(opts.Location)
	if err != nil {
		return err
	}
	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	to := a.Clock.Now()
	if opts.To != nil {
		to = *opts.To
	}

	from := to.AddDate(0, 0, -a.Config.Weather.LookbackDays)
	if opts.From != nil {
		from = *opts.From
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	store, closeStore, err := a.requireStore(ctx, "export")
	if err != nil {
		return err
	}
	defer closeStore()

	records, err := store.ListEnergyBetween(ctx, location, from, to)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.Logger.Info().Str("location", location).Msg("no energy records found for export window")
		return nil
	}

	downsampled := downsampleRecords(records, opts.MaxPoints)
	a.Logger.Info().Int("total", len(records)).Int("exported", len(downsampled)).Msg("exporting energy records")

	if opts.CSVPath != "" {
		if err := writeRecordsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeRecordsPNG(opts.PNGPath, location, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleRecords(records []model.EnergyRecord, max int) []model.EnergyRecord {
	if max <= 0 || len(records) <= max {
		return records
	}
	if max == 1 {
		return records[:1]
	}

	result := make([]model.EnergyRecord, 0, max)
	step := float64(len(records)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(records) {
			idx = len(records) - 1
		}
		result = append(result, records[idx])
	}
	return result
}

func writeRecordsCSV(path string, records []model.EnergyRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return encodeRecordsCSV(file, records)
}

func encodeRecordsCSV(out io.Writer, records []model.EnergyRecord) error {
	writer := csv.NewWriter(out)

	header := []string{"timestamp", "location", "demand_mwh", "temperature_c", "is_weekend", "hour_of_day"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, r := range records {
		row := []string{
			r.Timestamp.Format(time.RFC3339),
			r.Location,
			numeric.Fixed(r.DemandMWh, 2),
			numeric.Fixed(r.TemperatureC, 1),
			strconv.FormatBool(r.IsWeekend),
			strconv.Itoa(r.HourOfDay),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeRecordsPNG(path, location string, records []model.EnergyRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return renderChart(file, location, records)
}

func renderChart(out io.Writer, location string, records []model.EnergyRecord) error {
	x := make([]time.Time, len(records))
	demand := make([]float64, len(records))
	temperature := make([]float64, len(records))

	for i, r := range records {
		x[i] = r.Timestamp
		demand[i] = r.DemandMWh
		temperature[i] = r.TemperatureC
	}

	graph := chart.Chart{
		Title:  "Energy demand: " + location,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: "Demand (MWh)",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.0f")
			},
		},
		YAxisSecondary: chart.YAxis{
			Name: "Temperature (°C)",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.1f")
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Demand",
				XValues: x,
				YValues: demand,
			},
			chart.TimeSeries{
				Name:    "Temperature",
				XValues: x,
				YValues: temperature,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	return graph.Render(chart.PNG, out)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
