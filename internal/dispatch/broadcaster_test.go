package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/example/ride-hailing/internal/geo"
	"github.com/example/ride-hailing/internal/maps"
	"github.com/example/ride-hailing/internal/models"
	"github.com/example/ride-hailing/internal/presence"
	"github.com/example/ride-hailing/internal/rides"
)

type staticGeocoder struct{ coord models.Coord }

func (s *staticGeocoder) Coordinates(context.Context, string) (models.Coord, error) {
	return s.coord, nil
}

func (s *staticGeocoder) Route(context.Context, string, string) (maps.RouteMetrics, error) {
	return maps.RouteMetrics{DistanceMiles: 4.2, DurationMinutes: 13}, nil
}

type allowList map[string]bool

func (a allowList) Active(_ context.Context, id string) (bool, error) { return a[id], nil }

type staticDirectory struct{}

func (staticDirectory) Profile(context.Context, string) (models.RiderProfile, error) {
	return models.RiderProfile{Name: "Ada", Photo: "https://img.example/ada.png"}, nil
}

type recordingSession struct{ events []models.Event }

func (r *recordingSession) Send(ev models.Event) error {
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSession) last() models.Event {
	if len(r.events) == 0 {
		return models.Event{}
	}
	return r.events[len(r.events)-1]
}

type fixture struct {
	b        *Broadcaster
	registry *presence.Registry
	rideSvc  *rides.Service
	index    *geo.MemoryIndex
}

func newFixture(t *testing.T, eligible Eligibility) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := presence.NewRegistry(logger)
	index := geo.NewMemoryIndex(5 * time.Minute)
	rideSvc := rides.NewService(rides.NewMemoryStore(), nil, logger, 5)
	b := NewBroadcaster(index, registry, rideSvc, &staticGeocoder{}, eligible, staticDirectory{}, 3, 90*time.Second, logger)
	return &fixture{b: b, registry: registry, rideSvc: rideSvc, index: index}
}

func (f *fixture) createRide(t *testing.T) *models.Ride {
	t.Helper()
	r, err := f.rideSvc.Create(context.Background(), rides.CreateParams{
		RiderID:     "r1",
		Pickup:      "9 Main St",
		Destination: "1 Harbor Rd",
		Quote:       models.RideQuote{Fare: 1079, DistanceMiles: 4.2, DurationMinutes: 13},
	})
	if err != nil {
		t.Fatalf("create ride: %v", err)
	}
	return r
}

func (f *fixture) connectCaptain(t *testing.T, id string, c models.Coord) *recordingSession {
	t.Helper()
	s := &recordingSession{}
	if err := f.registry.Announce(id, models.KindCaptain, s); err != nil {
		t.Fatalf("announce %s: %v", id, err)
	}
	if err := f.index.Upsert(context.Background(), id, c); err != nil {
		t.Fatalf("upsert %s: %v", id, err)
	}
	return s
}

func TestBroadcastReachesNearbyCaptains(t *testing.T) {
	f := newFixture(t, allowList{"c1": true, "c2": true})
	rider := &recordingSession{}
	_ = f.registry.Announce("r1", models.KindRider, rider)
	c1 := f.connectCaptain(t, "c1", models.Coord{Lat: 0.01, Lng: 0})
	c2 := f.connectCaptain(t, "c2", models.Coord{Lat: 0.02, Lng: 0})

	ride := f.createRide(t)
	n, err := f.b.Broadcast(context.Background(), ride)
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 captains notified, got %d", n)
	}
	for name, s := range map[string]*recordingSession{"c1": c1, "c2": c2} {
		ev := s.last()
		if ev.Name != models.EventRideOffer {
			t.Fatalf("%s: expected ride_offer, got %q", name, ev.Name)
		}
		payload, ok := ev.Data.(OfferPayload)
		if !ok {
			t.Fatalf("%s: unexpected payload %T", name, ev.Data)
		}
		if payload.Fare != 1079 || payload.Rider.Name != "Ada" {
			t.Fatalf("%s: payload missing fields: %+v", name, payload)
		}
	}
}

func TestBroadcastSkipsIneligibleAndOffline(t *testing.T) {
	f := newFixture(t, allowList{"c1": true}) // c2 inactive in the system of record
	c1 := f.connectCaptain(t, "c1", models.Coord{Lat: 0.01, Lng: 0})
	_ = f.connectCaptain(t, "c2", models.Coord{Lat: 0.01, Lng: 0})
	// c3 is nearby but has no live connection
	_ = f.index.Upsert(context.Background(), "c3", models.Coord{Lat: 0.01, Lng: 0})

	ride := f.createRide(t)
	n, err := f.b.Broadcast(context.Background(), ride)
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if n != 1 || len(c1.events) != 1 {
		t.Fatalf("expected only c1 notified, got n=%d", n)
	}
}

func TestBroadcastNoCandidatesKeepsRidePending(t *testing.T) {
	f := newFixture(t, AllowAll{})
	ride := f.createRide(t)

	_, err := f.b.Broadcast(context.Background(), ride)
	if !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("expected ErrNoCandidates, got %v", err)
	}
	got, err := f.rideSvc.Get(context.Background(), ride.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.StatusPending {
		t.Fatalf("ride should remain pending, got %s", got.Status)
	}
}

func TestAcceptFirstClaimWinsAndNotifies(t *testing.T) {
	f := newFixture(t, AllowAll{})
	rider := &recordingSession{}
	_ = f.registry.Announce("r1", models.KindRider, rider)
	f.connectCaptain(t, "c1", models.Coord{Lat: 0.01, Lng: 0})
	c2 := f.connectCaptain(t, "c2", models.Coord{Lat: 0.02, Lng: 0})

	ride := f.createRide(t)
	if _, err := f.b.Broadcast(context.Background(), ride); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	won, err := f.b.Accept(context.Background(), ride.ID, "c1")
	if err != nil {
		t.Fatalf("accept c1: %v", err)
	}
	if won.CaptainID != "c1" || won.Status != models.StatusAccepted {
		t.Fatalf("unexpected claim result: %+v", won)
	}

	if _, err := f.b.Accept(context.Background(), ride.ID, "c2"); err == nil {
		t.Fatal("second claim should be rejected")
	}

	ev := rider.last()
	if ev.Name != models.EventRideAccepted {
		t.Fatalf("rider should receive ride_accepted, got %q", ev.Name)
	}
	assigned, ok := ev.Data.(*models.Ride)
	if !ok || assigned.CaptainID != "c1" {
		t.Fatalf("assignment payload wrong: %+v", ev.Data)
	}
	if taken := c2.last(); taken.Name != models.EventRideTaken {
		t.Fatalf("losing captain should receive ride_taken, got %q", taken.Name)
	}
}

func TestAcceptAfterOfferExpiry(t *testing.T) {
	f := newFixture(t, AllowAll{})
	f.connectCaptain(t, "c1", models.Coord{Lat: 0.01, Lng: 0})

	ride := f.createRide(t)
	if _, err := f.b.Broadcast(context.Background(), ride); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	// push the clock past the offer window
	base := time.Now()
	f.b.offers.now = func() time.Time { return base.Add(2 * time.Minute) }

	if _, err := f.b.Accept(context.Background(), ride.ID, "c1"); !errors.Is(err, ErrOfferClosed) {
		t.Fatalf("expected ErrOfferClosed, got %v", err)
	}
	got, _ := f.rideSvc.Get(context.Background(), ride.ID)
	if got.Status != models.StatusPending || got.CaptainID != "" {
		t.Fatalf("expired claim must not mutate the ride: %+v", got)
	}
}

func TestAcceptFromCaptainNeverOffered(t *testing.T) {
	f := newFixture(t, AllowAll{})
	f.connectCaptain(t, "c1", models.Coord{Lat: 0.01, Lng: 0})

	ride := f.createRide(t)
	if _, err := f.b.Broadcast(context.Background(), ride); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if _, err := f.b.Accept(context.Background(), ride.ID, "stranger"); !errors.Is(err, ErrOfferClosed) {
		t.Fatalf("expected ErrOfferClosed, got %v", err)
	}
}
