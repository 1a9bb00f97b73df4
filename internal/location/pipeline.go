package location

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/example/ride-hailing/internal/geo"
	"github.com/example/ride-hailing/internal/models"
	"github.com/example/ride-hailing/internal/observability"
	"github.com/example/ride-hailing/internal/presence"
	"github.com/example/ride-hailing/internal/rides"
)

var ErrBadCoordinates = errors.New("location: coordinates out of range")

// Publisher is the optional streaming leg: samples are fanned to Kafka so
// the consumer process (and anything else on the topic) sees them too.
type Publisher interface {
	Publish(ctx context.Context, s models.LocationSample) error
}

// ActiveRideSource answers which ride, if any, a captain is currently
// paired on. Satisfied by *rides.Service.
type ActiveRideSource interface {
	ActiveForCaptain(ctx context.Context, captainID string) (*models.Ride, error)
}

// Pipeline ingests captain position samples: each one refreshes the
// proximity index and, when the captain is paired on a live ride, is relayed
// to the rider. Last write wins; there is no buffering.
type Pipeline struct {
	geo       geo.Index
	registry  *presence.Registry
	rides     ActiveRideSource
	publisher Publisher // optional
	staleness time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

func NewPipeline(index geo.Index, registry *presence.Registry, source ActiveRideSource, publisher Publisher, staleness time.Duration, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		geo:       index,
		registry:  registry,
		rides:     source,
		publisher: publisher,
		staleness: staleness,
		logger:    logger,
		now:       time.Now,
	}
}

func (p *Pipeline) Report(ctx context.Context, s models.LocationSample) error {
	if s.CaptainID == "" || s.Lat < -90 || s.Lat > 90 || s.Lng < -180 || s.Lng > 180 {
		return ErrBadCoordinates
	}
	if s.CapturedAt.IsZero() {
		s.CapturedAt = p.now()
	}
	// a sample past the staleness bound is dead on arrival: it must neither
	// refresh the index nor reach the rider
	if p.now().Sub(s.CapturedAt) > p.staleness {
		observability.LocationsStale.Inc()
		p.logger.Debug("stale location sample dropped", "captain_id", s.CaptainID, "captured_at", s.CapturedAt)
		return nil
	}

	if err := p.geo.Upsert(ctx, s.CaptainID, models.Coord{Lat: s.Lat, Lng: s.Lng}); err != nil {
		return err
	}
	observability.LocationsReported.Inc()

	if p.publisher != nil {
		if err := p.publisher.Publish(ctx, s); err != nil {
			p.logger.Warn("location publish failed", "captain_id", s.CaptainID, "error", err)
		}
	}

	p.relay(ctx, s)
	return nil
}

// relay forwards the sample to the rider paired with this captain, if the
// captain is on an accepted or ongoing ride and the rider is connected.
func (p *Pipeline) relay(ctx context.Context, s models.LocationSample) {
	ride, err := p.rides.ActiveForCaptain(ctx, s.CaptainID)
	if err != nil {
		if !errors.Is(err, rides.ErrNotFound) {
			p.logger.Warn("active ride lookup failed", "captain_id", s.CaptainID, "error", err)
		}
		return
	}
	if !ride.Active() {
		return
	}
	if p.registry.Deliver(ride.RiderID, models.KindRider, models.Event{
		Name: models.EventCaptainLocation,
		Data: s,
	}) {
		observability.LocationsRelayed.Inc()
	}
}

// Withdraw removes a captain from the proximity index, e.g. on disconnect.
func (p *Pipeline) Withdraw(ctx context.Context, captainID string) {
	if err := p.geo.Remove(ctx, captainID); err != nil {
		p.logger.Warn("geo remove failed", "captain_id", captainID, "error", err)
	}
}
