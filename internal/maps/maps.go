package maps

import (
	"context"
	"errors"
	"math"

	"github.com/example/ride-hailing/internal/models"
)

var (
	ErrUnknownAddress = errors.New("maps: address could not be resolved")
	ErrNoRoute        = errors.New("maps: no route between these locations")
	ErrUnconfigured   = errors.New("maps: no geocoding backend configured")
)

type RouteMetrics struct {
	DistanceMiles   float64 `json:"distance_miles"`
	DurationMinutes float64 `json:"duration_minutes"`
}

// Geocoder is the external geocode/route collaborator. Failures surface as
// typed errors and reject the fare computation; they never crash a caller.
type Geocoder interface {
	Coordinates(ctx context.Context, address string) (models.Coord, error)
	Route(ctx context.Context, origin, destination string) (RouteMetrics, error)
}

// Rates are the externally supplied fare constants, in currency minor units
// per unit of distance or time.
type Rates struct {
	Base      float64
	PerMile   float64
	PerMinute float64
}

// Fare applies the committed formula: round(base + distance*perMile +
// duration*perMinute), in minor units.
func Fare(r Rates, m RouteMetrics) int64 {
	return int64(math.Round(r.Base + m.DistanceMiles*r.PerMile + m.DurationMinutes*r.PerMinute))
}

// Quote resolves route metrics for a pickup/destination pair and prices it.
func Quote(ctx context.Context, g Geocoder, r Rates, pickup, destination string) (models.RideQuote, error) {
	if pickup == "" || destination == "" {
		return models.RideQuote{}, ErrUnknownAddress
	}
	m, err := g.Route(ctx, pickup, destination)
	if err != nil {
		return models.RideQuote{}, err
	}
	if m.DistanceMiles < 0 || m.DurationMinutes < 0 {
		return models.RideQuote{}, ErrNoRoute
	}
	return models.RideQuote{
		Fare:            Fare(r, m),
		DistanceMiles:   m.DistanceMiles,
		DurationMinutes: m.DurationMinutes,
	}, nil
}

// Unconfigured is wired when no maps API key is present; every lookup fails
// with a typed error the callers classify as transient.
type Unconfigured struct{}

func (Unconfigured) Coordinates(context.Context, string) (models.Coord, error) {
	return models.Coord{}, ErrUnconfigured
}

func (Unconfigured) Route(context.Context, string, string) (RouteMetrics, error) {
	return RouteMetrics{}, ErrUnconfigured
}
