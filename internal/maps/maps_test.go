package maps

import (
	"context"
	"errors"
	"testing"

	"github.com/example/ride-hailing/internal/models"
)

type fakeGeocoder struct {
	metrics RouteMetrics
	err     error
}

func (f *fakeGeocoder) Coordinates(context.Context, string) (models.Coord, error) {
	return models.Coord{}, f.err
}

func (f *fakeGeocoder) Route(context.Context, string, string) (RouteMetrics, error) {
	return f.metrics, f.err
}

func TestFareFormula(t *testing.T) {
	rates := Rates{Base: 250, PerMile: 120, PerMinute: 25}
	cases := []struct {
		name string
		m    RouteMetrics
		want int64
	}{
		{"typical trip", RouteMetrics{DistanceMiles: 4.2, DurationMinutes: 13}, 1079},
		{"zero distance", RouteMetrics{DistanceMiles: 0, DurationMinutes: 0}, 250},
		{"rounds half up", RouteMetrics{DistanceMiles: 0.5, DurationMinutes: 0.5}, 323},
	}
	for _, tc := range cases {
		if got := Fare(rates, tc.m); got != tc.want {
			t.Errorf("%s: Fare = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestQuoteRejectsRouteFailure(t *testing.T) {
	g := &fakeGeocoder{err: ErrNoRoute}
	_, err := Quote(context.Background(), g, Rates{Base: 100}, "a", "b")
	if !errors.Is(err, ErrNoRoute) {
		t.Fatalf("expected ErrNoRoute, got %v", err)
	}
}

func TestQuoteRejectsEmptyAddresses(t *testing.T) {
	g := &fakeGeocoder{metrics: RouteMetrics{DistanceMiles: 1, DurationMinutes: 1}}
	if _, err := Quote(context.Background(), g, Rates{}, "", "b"); !errors.Is(err, ErrUnknownAddress) {
		t.Fatalf("expected ErrUnknownAddress, got %v", err)
	}
}

func TestQuoteCarriesMetrics(t *testing.T) {
	g := &fakeGeocoder{metrics: RouteMetrics{DistanceMiles: 2.5, DurationMinutes: 9}}
	q, err := Quote(context.Background(), g, Rates{Base: 250, PerMile: 120, PerMinute: 25}, "a", "b")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.DistanceMiles != 2.5 || q.DurationMinutes != 9 {
		t.Fatalf("metrics not carried through: %+v", q)
	}
	if q.Fare != 775 {
		t.Fatalf("fare = %d, want 775", q.Fare)
	}
}
