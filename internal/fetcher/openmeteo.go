package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"energypulse/internal/model"
)

const (
	defaultBaseURL  = "https://api.open-meteo.com/v1/forecast"
	defaultTimezone = "America/New_York"
	weatherVars     = "temperature_2m,relative_humidity_2m,wind_speed_10m,precipitation,cloud_cover"

	// Open-Meteo local timestamps carry no offset or seconds.
	apiTimeLayout = "2006-01-02T15:04"
	apiDateLayout = "2006-01-02"
)

// OpenMeteoOptions parameterise the Open-Meteo client.
type OpenMeteoOptions struct {
	BaseURL           string
	Timezone          string
	Timeout           time.Duration
	RequestsPerSecond float64
	UserAgent         string
}

// OpenMeteo fetches hourly and current weather from the Open-Meteo API.
type OpenMeteo struct {
	opts     OpenMeteoOptions
	logger   zerolog.Logger
	client   *http.Client
	limiter  *rate.Limiter
	location *time.Location
}

// NewOpenMeteo constructs a weather client. The timezone must be a valid IANA name.
func NewOpenMeteo(opts OpenMeteoOptions, logger zerolog.Logger) (*OpenMeteo, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Timezone == "" {
		opts.Timezone = defaultTimezone
	}

	loc, err := time.LoadLocation(opts.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load weather timezone: %w", err)
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &OpenMeteo{
		opts:     opts,
		logger:   logger.With().Str("component", "weather_fetcher").Logger(),
		client:   &http.Client{Timeout: opts.Timeout},
		limiter:  rate.NewLimiter(limit, 1),
		location: loc,
	}, nil
}

// FetchHistorical returns hourly observations for the calendar days spanned
// by [start, end]. Rows with missing or out-of-range values are skipped.
func (o *OpenMeteo) FetchHistorical(ctx context.Context, location string, start, end time.Time) ([]model.WeatherRecord, error) {
	coords, err := Lookup(location)
	if err != nil {
		return nil, err
	}

	o.logger.Info().
		Str("location", location).
		Str("start", start.In(o.location).Format(apiDateLayout)).
		Str("end", end.In(o.location).Format(apiDateLayout)).
		Msg("fetching weather")

	params := o.baseParams(coords)
	params.Set("hourly", weatherVars)
	params.Set("start_date", start.In(o.location).Format(apiDateLayout))
	params.Set("end_date", end.In(o.location).Format(apiDateLayout))

	var payload forecastResponse
	if err := o.get(ctx, params, &payload); err != nil {
		return nil, err
	}

	records := o.parseHourly(payload.Hourly, location)
	o.logger.Info().Str("location", location).Int("record_count", len(records)).Msg("weather fetched")
	return records, nil
}

// FetchCurrent returns the latest observation, or nil when the API response
// has no current block.
func (o *OpenMeteo) FetchCurrent(ctx context.Context, location string) (*model.WeatherRecord, error) {
	coords, err := Lookup(location)
	if err != nil {
		return nil, err
	}

	params := o.baseParams(coords)
	params.Set("current", weatherVars)

	var payload forecastResponse
	if err := o.get(ctx, params, &payload); err != nil {
		return nil, err
	}
	if payload.Current == nil || payload.Current.Time == "" {
		return nil, nil
	}

	c := payload.Current
	ts, err := time.ParseInLocation(apiTimeLayout, c.Time, o.location)
	if err != nil {
		return nil, fmt.Errorf("parse current time %q: %w", c.Time, err)
	}
	if c.Temperature == nil || c.Humidity == nil || c.WindSpeed == nil || c.Precipitation == nil || c.CloudCover == nil {
		return nil, errors.New("current weather block is incomplete")
	}

	rec, err := model.NewWeatherRecord(model.WeatherRecord{
		Timestamp:       ts,
		TemperatureC:    *c.Temperature,
		HumidityPct:     *c.Humidity,
		WindSpeedKmh:    *c.WindSpeed,
		PrecipitationMm: *c.Precipitation,
		CloudCoverPct:   *c.CloudCover,
		Location:        location,
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (o *OpenMeteo) baseParams(c Coordinates) url.Values {
	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(c.Latitude, 'f', 4, 64))
	params.Set("longitude", strconv.FormatFloat(c.Longitude, 'f', 4, 64))
	params.Set("timezone", o.opts.Timezone)
	return params
}

func (o *OpenMeteo) get(ctx context.Context, params url.Values, out any) error {
	if err := o.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.opts.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(o.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "energypulse/1.0")
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return parseHTTPError(resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode weather response: %w", err)
	}
	return nil
}

func (o *OpenMeteo) parseHourly(h hourlyBlock, location string) []model.WeatherRecord {
	records := make([]model.WeatherRecord, 0, len(h.Time))
	for i, raw := range h.Time {
		rec, err := o.parseRow(h, i, raw, location)
		if err != nil {
			o.logger.Warn().Int("index", i).Str("time", raw).Err(err).Msg("skipping weather row")
			continue
		}
		records = append(records, rec)
	}
	return records
}

func (o *OpenMeteo) parseRow(h hourlyBlock, i int, raw, location string) (model.WeatherRecord, error) {
	ts, err := time.ParseInLocation(apiTimeLayout, raw, o.location)
	if err != nil {
		return model.WeatherRecord{}, err
	}

	var values [5]float64
	series := [5]struct {
		name string
		data []*float64
	}{
		{"temperature_2m", h.Temperature},
		{"relative_humidity_2m", h.Humidity},
		{"wind_speed_10m", h.WindSpeed},
		{"precipitation", h.Precipitation},
		{"cloud_cover", h.CloudCover},
	}
	for k, s := range series {
		if i >= len(s.data) || s.data[i] == nil {
			return model.WeatherRecord{}, fmt.Errorf("missing %s", s.name)
		}
		values[k] = *s.data[i]
	}

	return model.NewWeatherRecord(model.WeatherRecord{
		Timestamp:       ts,
		TemperatureC:    values[0],
		HumidityPct:     values[1],
		WindSpeedKmh:    values[2],
		PrecipitationMm: values[3],
		CloudCoverPct:   values[4],
		Location:        location,
	})
}

type forecastResponse struct {
	Hourly  hourlyBlock   `json:"hourly"`
	Current *currentBlock `json:"current"`
}

type hourlyBlock struct {
	Time          []string   `json:"time"`
	Temperature   []*float64 `json:"temperature_2m"`
	Humidity      []*float64 `json:"relative_humidity_2m"`
	WindSpeed     []*float64 `json:"wind_speed_10m"`
	Precipitation []*float64 `json:"precipitation"`
	CloudCover    []*float64 `json:"cloud_cover"`
}

type currentBlock struct {
	Time          string   `json:"time"`
	Temperature   *float64 `json:"temperature_2m"`
	Humidity      *float64 `json:"relative_humidity_2m"`
	WindSpeed     *float64 `json:"wind_speed_10m"`
	Precipitation *float64 `json:"precipitation"`
	CloudCover    *float64 `json:"cloud_cover"`
}

type errorResponse struct {
	Error  bool   `json:"error"`
	Reason string `json:"reason"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil && apiErr.Reason != "" {
		return fmt.Errorf("open-meteo error (%d): %s", status, apiErr.Reason)
	}
	if len(payload) > 0 {
		return fmt.Errorf("open-meteo error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("open-meteo error (%d)", status)
}

var _ WeatherSource = (*OpenMeteo)(nil)
