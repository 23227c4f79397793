package app

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"energypulse/internal/model"
	"energypulse/internal/service"
)

// Status prints stored record counts, the quality summary, and recent metrics.
func (a *App) Status(ctx context.Context, opts StatusOptions) error {
	if opts.Location != "" {
		if _, err := a.location(opts.Location); err != nil {
			return err
		}
	}

	store, closeStore, err := a.requireStore(ctx, "show status")
	if err != nil {
		return err
	}
	defer closeStore()

	svc, err := a.newService(store, nil, nil)
	if err != nil {
		return err
	}

	report, err := svc.Status(ctx, opts.Location, opts.MetricLimit)
	if err != nil {
		return err
	}
	return renderStatus(a.Out, report)
}

func renderStatus(out io.Writer, report service.StatusReport) error {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Table\tRecords")
	fmt.Fprintf(writer, "weather\t%d\n", report.WeatherCount)
	fmt.Fprintf(writer, "energy\t%d\n", report.EnergyCount)
	if err := writer.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	if report.Quality.Total() == 0 {
		fmt.Fprintln(out, "no quality checks recorded")
	} else {
		statuses := make([]model.QualityStatus, 0, len(report.Quality))
		for status := range report.Quality {
			statuses = append(statuses, status)
		}
		sort.Slice(statuses, func(i, j int) bool {
			return statuses[i].Severity() < statuses[j].Severity()
		})

		writer = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Quality\tChecks")
		for _, status := range statuses {
			fmt.Fprintf(writer, "%s\t%d\n", strings.ToUpper(string(status)), report.Quality[status])
		}
		if err := writer.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(out)
	return renderMetrics(out, report.LatestMetrics)
}
