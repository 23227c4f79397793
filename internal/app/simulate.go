package app

import (
	"context"
	"errors"
	"time"

	"energypulse/internal/fetcher"
	"energypulse/internal/model"
	"energypulse/internal/service"
)

// SimulateAlert 用少量合成天气数据跑一次内存流水线，用于验证告警通道。
func (a *App) SimulateAlert(ctx context.Context, location string, hours int) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is not enabled")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no alert channel configured")
	}

	location, err := a.location(location)
	if err != nil {
		return err
	}

	source := &staticWeatherSource{hours: hours, temperatureC: 20}
	svc := service.New(a.Config, nil, source, nil, notifier, nil, a.Clock, a.Logger)

	res, err := svc.RunPipeline(ctx, location, 1)
	if err != nil {
		return err
	}
	return renderQuality(a.Out, res.Quality)
}

// staticWeatherSource returns a fixed number of hourly readings ending at the requested window end.
type staticWeatherSource struct {
	hours        int
	temperatureC float64
}

func (s *staticWeatherSource) FetchHistorical(ctx context.Context, location string, start, end time.Time) ([]model.WeatherRecord, error) {
	last := end.Truncate(time.Hour)
	out := make([]model.WeatherRecord, 0, s.hours)
	for i := s.hours - 1; i >= 0; i-- {
		out = append(out, model.WeatherRecord{
			Timestamp:     last.Add(-time.Duration(i) * time.Hour),
			TemperatureC:  s.temperatureC,
			HumidityPct:   50,
			WindSpeedKmh:  10,
			CloudCoverPct: 50,
			Location:      location,
		})
	}
	return out, nil
}

func (s *staticWeatherSource) FetchCurrent(ctx context.Context, location string) (*model.WeatherRecord, error) {
	return nil, nil
}

var _ fetcher.WeatherSource = (*staticWeatherSource)(nil)
