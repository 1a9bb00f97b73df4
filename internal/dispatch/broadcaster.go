package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/example/ride-hailing/internal/geo"
	"github.com/example/ride-hailing/internal/maps"
	"github.com/example/ride-hailing/internal/models"
	"github.com/example/ride-hailing/internal/observability"
	"github.com/example/ride-hailing/internal/presence"
	"github.com/example/ride-hailing/internal/rides"
)

var (
	// ErrNoCandidates means nobody eligible was reachable; the ride stays
	// pending so the broadcast can be retried.
	ErrNoCandidates = errors.New("dispatch: no captains nearby")

	// ErrOfferClosed rejects a claim for an offer that expired, was already
	// won, or never reached this captain.
	ErrOfferClosed = errors.New("dispatch: offer closed")
)

// Eligibility is the system-of-record check a candidate must pass before an
// offer is sent. Proximity entries that fail it are skipped, not evicted.
type Eligibility interface {
	Active(ctx context.Context, captainID string) (bool, error)
}

// RiderDirectory supplies the minimal rider display fields bundled into an
// offer.
type RiderDirectory interface {
	Profile(ctx context.Context, riderID string) (models.RiderProfile, error)
}

// OfferPayload is the data frame a candidate captain receives.
type OfferPayload struct {
	RideID          string              `json:"ride_id"`
	Pickup          string              `json:"pickup"`
	Destination     string              `json:"destination"`
	Fare            int64               `json:"fare"`
	DistanceMiles   float64             `json:"distance_miles"`
	DurationMinutes float64             `json:"duration_minutes"`
	Passengers      int                 `json:"passengers"`
	Rider           models.RiderProfile `json:"rider"`
}

// Broadcaster fans a pending ride out to nearby eligible captains and turns
// the winning claim into notifications for everyone involved.
type Broadcaster struct {
	geo         geo.Index
	registry    *presence.Registry
	rides       *rides.Service
	geocoder    maps.Geocoder
	eligibility Eligibility
	riders      RiderDirectory
	radiusMiles float64
	logger      *slog.Logger
	offers      *offerTable
}

func NewBroadcaster(
	index geo.Index,
	registry *presence.Registry,
	rideSvc *rides.Service,
	geocoder maps.Geocoder,
	eligibility Eligibility,
	riders RiderDirectory,
	radiusMiles float64,
	offerTTL time.Duration,
	logger *slog.Logger,
) *Broadcaster {
	return &Broadcaster{
		geo:         index,
		registry:    registry,
		rides:       rideSvc,
		geocoder:    geocoder,
		eligibility: eligibility,
		riders:      riders,
		radiusMiles: radiusMiles,
		logger:      logger,
		offers:      newOfferTable(offerTTL),
	}
}

// Broadcast resolves the pickup point, finds eligible nearby captains and
// delivers a ride offer to each one that is currently connected. It returns
// how many captains were notified; zero reachable candidates is reported as
// ErrNoCandidates and leaves the ride pending.
func (b *Broadcaster) Broadcast(ctx context.Context, ride *models.Ride) (int, error) {
	observability.BroadcastsTotal.Inc()

	pickup, err := b.geocoder.Coordinates(ctx, ride.Pickup)
	if err != nil {
		return 0, err
	}
	candidates, err := b.geo.Nearby(ctx, pickup, b.radiusMiles)
	if err != nil {
		return 0, err
	}

	profile := models.RiderProfile{}
	if b.riders != nil {
		if p, err := b.riders.Profile(ctx, ride.RiderID); err == nil {
			profile = p
		}
	}
	payload := OfferPayload{
		RideID:          ride.ID,
		Pickup:          ride.Pickup,
		Destination:     ride.Destination,
		Fare:            ride.Fare,
		DistanceMiles:   ride.DistanceMiles,
		DurationMinutes: ride.DurationMinutes,
		Passengers:      ride.Passengers,
		Rider:           profile,
	}

	notified := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if b.eligibility != nil {
			ok, err := b.eligibility.Active(ctx, c.CaptainID)
			if err != nil {
				b.logger.Warn("eligibility check failed", "captain_id", c.CaptainID, "error", err)
				continue
			}
			if !ok {
				continue
			}
		}
		if b.registry.Deliver(c.CaptainID, models.KindCaptain, models.Event{
			Name: models.EventRideOffer,
			Data: payload,
		}) {
			notified = append(notified, c.CaptainID)
		}
	}

	if len(notified) == 0 {
		observability.NoCandidates.Inc()
		b.logger.Info("no reachable candidates", "ride_id", ride.ID)
		return 0, ErrNoCandidates
	}

	b.offers.open(ride.ID, notified)
	observability.OffersSent.Add(float64(len(notified)))
	b.logger.Info("ride broadcast", "ride_id", ride.ID, "candidates", len(notified))
	return len(notified), nil
}

// Accept drives a captain's claim. The state machine's atomic claim decides
// the winner; this layer enforces the offer lifetime and handles the fan-out
// of the outcome: the rider learns their captain, losing candidates learn
// the ride is gone.
func (b *Broadcaster) Accept(ctx context.Context, rideID, captainID string) (*models.Ride, error) {
	if !b.offers.claimable(rideID, captainID) {
		observability.ClaimsRejected.Inc()
		return nil, ErrOfferClosed
	}

	ride, err := b.rides.Claim(ctx, rideID, captainID)
	if err != nil {
		return nil, err
	}

	losers := b.offers.close(rideID, captainID)
	b.registry.Deliver(ride.RiderID, models.KindRider, models.Event{
		Name: models.EventRideAccepted,
		Data: ride,
	})
	for _, other := range losers {
		b.registry.Deliver(other, models.KindCaptain, models.Event{
			Name:    models.EventRideTaken,
			Status:  "conflict",
			Message: "ride no longer available",
			Data:    map[string]string{"ride_id": rideID},
		})
	}
	return ride, nil
}

// NotifyRide relays a lifecycle event to both parties of a ride.
func (b *Broadcaster) NotifyRide(ride *models.Ride, event string) {
	b.registry.Deliver(ride.RiderID, models.KindRider, models.Event{Name: event, Data: ride})
	if ride.CaptainID != "" {
		b.registry.Deliver(ride.CaptainID, models.KindCaptain, models.Event{Name: event, Data: ride})
	}
}
