package maps

import (
	"context"
	"fmt"
	"math"

	gmaps "googlemaps.github.io/maps"

	"github.com/example/ride-hailing/internal/models"
)

const metersPerMile = 1609.34

// GoogleGeocoder resolves addresses and route metrics through the Google
// Geocoding and Distance Matrix APIs.
type GoogleGeocoder struct {
	client *gmaps.Client
}

func NewGoogleGeocoder(apiKey string) (*GoogleGeocoder, error) {
	client, err := gmaps.NewClient(gmaps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create google maps client: %w", err)
	}
	return &GoogleGeocoder{client: client}, nil
}

func (g *GoogleGeocoder) Coordinates(ctx context.Context, address string) (models.Coord, error) {
	if address == "" {
		return models.Coord{}, ErrUnknownAddress
	}
	results, err := g.client.Geocode(ctx, &gmaps.GeocodingRequest{Address: address})
	if err != nil {
		return models.Coord{}, fmt.Errorf("geocode %q: %w", address, err)
	}
	if len(results) == 0 {
		return models.Coord{}, ErrUnknownAddress
	}
	loc := results[0].Geometry.Location
	return models.Coord{Lat: loc.Lat, Lng: loc.Lng}, nil
}

func (g *GoogleGeocoder) Route(ctx context.Context, origin, destination string) (RouteMetrics, error) {
	resp, err := g.client.DistanceMatrix(ctx, &gmaps.DistanceMatrixRequest{
		Origins:      []string{origin},
		Destinations: []string{destination},
		Units:        gmaps.UnitsImperial,
	})
	if err != nil {
		return RouteMetrics{}, fmt.Errorf("distance matrix: %w", err)
	}
	if len(resp.Rows) == 0 || len(resp.Rows[0].Elements) == 0 {
		return RouteMetrics{}, ErrNoRoute
	}
	el := resp.Rows[0].Elements[0]
	switch el.Status {
	case "OK":
	case "NOT_FOUND":
		return RouteMetrics{}, ErrUnknownAddress
	default:
		return RouteMetrics{}, ErrNoRoute
	}
	return RouteMetrics{
		DistanceMiles:   round2(float64(el.Distance.Meters) / metersPerMile),
		DurationMinutes: math.Ceil(el.Duration.Minutes()),
	}, nil
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
