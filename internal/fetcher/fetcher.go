package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"energypulse/internal/model"
)

// ErrUnknownLocation is returned for location keys outside the known table.
var ErrUnknownLocation = errors.New("unknown location")

// WeatherSource supplies hourly weather observations for a location.
type WeatherSource interface {
	FetchHistorical(ctx context.Context, location string, start, end time.Time) ([]model.WeatherRecord, error)
	FetchCurrent(ctx context.Context, location string) (*model.WeatherRecord, error)
}

// Coordinates locate a city for the weather API.
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

var locations = map[string]Coordinates{
	"new_york":    {Latitude: 40.7128, Longitude: -74.0060},
	"los_angeles": {Latitude: 34.0522, Longitude: -118.2437},
	"chicago":     {Latitude: 41.8781, Longitude: -87.6298},
	"houston":     {Latitude: 29.7604, Longitude: -95.3698},
	"phoenix":     {Latitude: 33.4484, Longitude: -112.0740},
}

// Locations returns the known location keys in sorted order.
func Locations() []string {
	keys := make([]string, 0, len(locations))
	for k := range locations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Lookup resolves a location key to its coordinates.
func Lookup(location string) (Coordinates, error) {
	c, ok := locations[location]
	if !ok {
		return Coordinates{}, fmt.Errorf("%w: %q (valid: %s)", ErrUnknownLocation, location, strings.Join(Locations(), ", "))
	}
	return c, nil
}
