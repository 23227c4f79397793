package app

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"energypulse/internal/model"
	"energypulse/internal/numeric"
	"energypulse/internal/quality"
	"energypulse/internal/service"
)

func renderQuality(out io.Writer, report service.QualityReport) error {
	if len(report.Results) == 0 {
		fmt.Fprintln(out, "no quality checks run")
		return nil
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Check\tStatus\tValue\tThreshold\tMessage")
	for _, r := range report.Results {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
			r.CheckName,
			strings.ToUpper(string(r.Status)),
			optionalFixed(r.MetricValue),
			optionalFixed(r.Threshold),
			sanitizeInline(r.Message),
		)
	}
	if err := writer.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "%d/%d checks passed (worst: %s)\n",
		report.Passed(), len(report.Results), strings.ToUpper(string(quality.Worst(report.Results))))
	return nil
}

func renderMetrics(out io.Writer, results []model.MetricResult) error {
	if len(results) == 0 {
		fmt.Fprintln(out, "no metrics found")
		return nil
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Metric\tValue\tUnit\tDimensions\tComputed")
	for _, m := range results {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
			m.MetricName,
			numeric.Fixed(m.Value, 2),
			m.Unit,
			formatDims(m.Dimensions),
			m.ComputedAt.UTC().Format(time.RFC3339),
		)
	}
	return writer.Flush()
}

func renderCurrent(out io.Writer, rec *model.WeatherRecord) error {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Location\t%s\n", rec.Location)
	fmt.Fprintf(writer, "Observed\t%s\n", rec.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(writer, "Temperature (°C)\t%s\n", numeric.Fixed(rec.TemperatureC, 1))
	fmt.Fprintf(writer, "Humidity (%%)\t%s\n", numeric.Fixed(rec.HumidityPct, 0))
	fmt.Fprintf(writer, "Wind (km/h)\t%s\n", numeric.Fixed(rec.WindSpeedKmh, 1))
	fmt.Fprintf(writer, "Precipitation (mm)\t%s\n", numeric.Fixed(rec.PrecipitationMm, 1))
	fmt.Fprintf(writer, "Cloud cover (%%)\t%s\n", numeric.Fixed(rec.CloudCoverPct, 0))
	return writer.Flush()
}

func optionalFixed(v *float64) string {
	if v == nil {
		return "-"
	}
	return numeric.Fixed(*v, 2)
}

func formatDims(dims map[string]string) string {
	if len(dims) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(dims))
	for k := range dims {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + dims[k]
	}
	return strings.Join(parts, ",")
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
