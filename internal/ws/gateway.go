package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/ride-hailing/internal/auth"
	"github.com/example/ride-hailing/internal/dispatch"
	"github.com/example/ride-hailing/internal/location"
	"github.com/example/ride-hailing/internal/models"
	"github.com/example/ride-hailing/internal/observability"
	"github.com/example/ride-hailing/internal/presence"
	"github.com/example/ride-hailing/internal/rides"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Gateway is the realtime edge: it authenticates the connection, announces
// the actor's presence, and translates inbound frames into core operations.
// Every failure becomes a structured error frame back to the sender; nothing
// propagates far enough to take the process down.
type Gateway struct {
	registry *presence.Registry
	pipeline *location.Pipeline
	dispatch *dispatch.Broadcaster
	rides    *rides.Service
	logger   *slog.Logger
}

func NewGateway(registry *presence.Registry, pipeline *location.Pipeline, broadcaster *dispatch.Broadcaster, rideSvc *rides.Service, logger *slog.Logger) *Gateway {
	return &Gateway{
		registry: registry,
		pipeline: pipeline,
		dispatch: broadcaster,
		rides:    rideSvc,
		logger:   logger,
	}
}

// ServeHTTP expects the auth middleware to have already attached the actor
// identity.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	s := newSession(conn)
	go s.writePump()

	if err := g.registry.Announce(id.ActorID, id.Kind, s); err != nil {
		_ = s.Send(errorEvent("connect", err))
		s.close()
		return
	}
	observability.ConnectedActors.WithLabelValues(string(id.Kind)).Inc()
	g.logger.Info("actor connected", "actor_id", id.ActorID, "kind", string(id.Kind))

	defer func() {
		s.close()
		g.registry.Withdraw(id.ActorID, id.Kind, s)
		if id.Kind == models.KindCaptain {
			g.pipeline.Withdraw(context.Background(), id.ActorID)
		}
		observability.ConnectedActors.WithLabelValues(string(id.Kind)).Dec()
		g.logger.Info("actor disconnected", "actor_id", id.ActorID, "kind", string(id.Kind))
	}()

	g.readLoop(r.Context(), id, s, conn)
}

func (g *Gateway) readLoop(ctx context.Context, id auth.Identity, s *session, conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame inboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.logger.Debug("read error", "actor_id", id.ActorID, "error", err)
			}
			return
		}
		if err := g.handle(ctx, id, s, frame); err != nil {
			_ = s.Send(errorEvent(frame.Event, err))
		}
	}
}

func (g *Gateway) handle(ctx context.Context, id auth.Identity, s *session, frame inboundFrame) error {
	switch frame.Event {
	case "location_update":
		return g.handleLocation(ctx, id, frame.Data)
	case "claim_ride":
		return g.handleClaim(ctx, id, s, frame.Data)
	case "start_ride":
		return g.handleStart(ctx, id, frame.Data)
	case "complete_ride":
		return g.handleComplete(ctx, id, frame.Data)
	case "join_ride", "leave_ride":
		// delivery is keyed by actor, not room; acknowledge for client compat
		return s.Send(models.Event{Name: models.EventNotice, Status: "ok", Message: frame.Event})
	default:
		return errBadPayload
	}
}

func (g *Gateway) handleLocation(ctx context.Context, id auth.Identity, data json.RawMessage) error {
	if id.Kind != models.KindCaptain {
		return errWrongRole
	}
	var body struct {
		Lat        float64   `json:"lat"`
		Lng        float64   `json:"lng"`
		Accuracy   float64   `json:"accuracy"`
		CapturedAt time.Time `json:"captured_at"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return errBadPayload
	}
	return g.pipeline.Report(ctx, models.LocationSample{
		CaptainID:      id.ActorID,
		Lat:            body.Lat,
		Lng:            body.Lng,
		AccuracyMeters: body.Accuracy,
		CapturedAt:     body.CapturedAt,
	})
}

func (g *Gateway) handleClaim(ctx context.Context, id auth.Identity, s *session, data json.RawMessage) error {
	if id.Kind != models.KindCaptain {
		return errWrongRole
	}
	var body struct {
		RideID string `json:"ride_id"`
	}
	if err := json.Unmarshal(data, &body); err != nil || body.RideID == "" {
		return errBadPayload
	}
	ride, err := g.dispatch.Accept(ctx, body.RideID, id.ActorID)
	if err != nil {
		return err
	}
	// the winner gets the full ride back; the rider was notified by dispatch
	return s.Send(models.Event{Name: models.EventRideAccepted, Data: ride})
}

func (g *Gateway) handleStart(ctx context.Context, id auth.Identity, data json.RawMessage) error {
	if id.Kind != models.KindCaptain {
		return errWrongRole
	}
	var body struct {
		RideID string `json:"ride_id"`
		OTP    string `json:"otp"`
	}
	if err := json.Unmarshal(data, &body); err != nil || body.RideID == "" || body.OTP == "" {
		return errBadPayload
	}
	if err := g.ownedBy(ctx, body.RideID, id.ActorID); err != nil {
		return err
	}
	ride, err := g.rides.Start(ctx, body.RideID, body.OTP)
	if err != nil {
		return err
	}
	g.dispatch.NotifyRide(ride, models.EventRideStarted)
	return nil
}

func (g *Gateway) handleComplete(ctx context.Context, id auth.Identity, data json.RawMessage) error {
	if id.Kind != models.KindCaptain {
		return errWrongRole
	}
	var body struct {
		RideID string `json:"ride_id"`
	}
	if err := json.Unmarshal(data, &body); err != nil || body.RideID == "" {
		return errBadPayload
	}
	if err := g.ownedBy(ctx, body.RideID, id.ActorID); err != nil {
		return err
	}
	ride, err := g.rides.Complete(ctx, body.RideID)
	if err != nil {
		return err
	}
	g.dispatch.NotifyRide(ride, models.EventRideCompleted)
	return nil
}

// ownedBy refuses lifecycle operations from a captain who is not bound to
// the ride.
func (g *Gateway) ownedBy(ctx context.Context, rideID, captainID string) error {
	ride, err := g.rides.Get(ctx, rideID)
	if err != nil {
		return err
	}
	if ride.CaptainID != captainID {
		return errNotYours
	}
	return nil
}
