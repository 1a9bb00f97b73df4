package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/example/ride-hailing/internal/auth"
	"github.com/example/ride-hailing/internal/config"
	"github.com/example/ride-hailing/internal/dispatch"
	"github.com/example/ride-hailing/internal/geo"
	"github.com/example/ride-hailing/internal/location"
	"github.com/example/ride-hailing/internal/logging"
	"github.com/example/ride-hailing/internal/maps"
	"github.com/example/ride-hailing/internal/models"
	"github.com/example/ride-hailing/internal/payments"
	"github.com/example/ride-hailing/internal/presence"
	"github.com/example/ride-hailing/internal/rides"
	"github.com/example/ride-hailing/internal/ws"
)

type Server struct {
	cfg      config.ServerConfig
	logger   *slog.Logger
	mux      *mux.Router
	rides    *rides.Service
	dispatch *dispatch.Broadcaster
	geocoder maps.Geocoder
	rates    maps.Rates
	stripe   *payments.StripeClient
	verifier *auth.Verifier
	gateway  *ws.Gateway
	webhook  http.Handler
}

// NewServerFromEnv wires the whole process from environment configuration,
// falling back to in-memory backends where Redis or Postgres are absent so
// a bare `go run` still works.
func NewServerFromEnv() (*Server, error) {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		return nil, err
	}
	logger := logging.NewLogger(cfg.LogLevel)

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	}

	var index geo.Index
	if rdb != nil {
		index = geo.NewRedisIndex(rdb, cfg.RedisGeoKey, cfg.GeoStaleness)
	} else {
		index = geo.NewMemoryIndex(cfg.GeoStaleness)
	}

	var store rides.Store
	if cfg.PGDSN != "" {
		ps, err := rides.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		store = ps
	} else {
		store = rides.NewMemoryStore()
	}
	var cache *rides.Cache
	if rdb != nil {
		cache = rides.NewCache(rdb, cfg.RideCacheTTL)
	}
	rideSvc := rides.NewService(store, cache, logger, cfg.OTPMaxAttempts)

	var geocoder maps.Geocoder = maps.Unconfigured{}
	if cfg.GoogleMapsKey != "" {
		g, err := maps.NewGoogleGeocoder(cfg.GoogleMapsKey)
		if err != nil {
			return nil, err
		}
		geocoder = g
	}

	registry := presence.NewRegistry(logger)

	var eligibility dispatch.Eligibility = dispatch.AllowAll{}
	var riders dispatch.RiderDirectory
	if rdb != nil {
		eligibility = dispatch.NewRedisEligibility(rdb)
		riders = dispatch.NewRedisRiderDirectory(rdb)
	}
	broadcaster := dispatch.NewBroadcaster(index, registry, rideSvc, geocoder,
		eligibility, riders, cfg.DispatchRadiusMiles, cfg.OfferTTL, logger)

	var publisher location.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher = location.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	}
	pipeline := location.NewPipeline(index, registry, rideSvc, publisher, cfg.GeoStaleness, logger)

	verifier := auth.NewVerifier(cfg.JWTSecret)
	gateway := ws.NewGateway(registry, pipeline, broadcaster, rideSvc, logger)

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		mux:      mux.NewRouter(),
		rides:    rideSvc,
		dispatch: broadcaster,
		geocoder: geocoder,
		rates:    maps.Rates{Base: cfg.BaseFare, PerMile: cfg.PerMileRate, PerMinute: cfg.PerMinuteRate},
		stripe:   payments.NewStripeClient(cfg.StripeKey),
		verifier: verifier,
		gateway:  gateway,
		webhook:  payments.NewWebhookHandler(cfg.StripeWebhookSecret, rideSvc, logger),
	}
	s.registerMiddleware()
	s.routes()
	return s, nil
}

func (s *Server) Config() config.ServerConfig { return s.cfg }
func (s *Server) Logger() *slog.Logger        { return s.logger }

func (s *Server) routes() {
	authed := s.verifier.Middleware

	s.mux.Handle("/api/v1/rides/request", authed(http.HandlerFunc(s.handleRideRequest))).Methods("POST")
	s.mux.Handle("/api/v1/rides/fare", authed(http.HandlerFunc(s.handleFare))).Methods("GET")
	s.mux.Handle("/api/v1/rides/{id}", authed(http.HandlerFunc(s.handleGetRide))).Methods("GET")
	s.mux.Handle("/api/v1/rides/{id}/payment-intent", authed(http.HandlerFunc(s.handlePaymentIntent))).Methods("POST")
	s.mux.Handle("/ws", authed(s.gateway))
	s.mux.Handle("/webhooks/stripe", s.webhook).Methods("POST")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// rideResponse augments a ride with the OTP, which is only disclosed to the
// ride's own rider so they can hand it to the captain in person.
type rideResponse struct {
	*models.Ride
	OTP string `json:"otp,omitempty"`
}

func (s *Server) handleRideRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok || id.Kind != models.KindRider {
		http.Error(w, "riders only", http.StatusForbidden)
		return
	}
	var body struct {
		Pickup      string `json:"pickup"`
		Destination string `json:"destination"`
		Passengers  int    `json:"passengers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	quote, err := maps.Quote(r.Context(), s.geocoder, s.rates, body.Pickup, body.Destination)
	if err != nil {
		s.writeError(w, err)
		return
	}
	ride, err := s.rides.Create(r.Context(), rides.CreateParams{
		RiderID:     id.ActorID,
		Pickup:      body.Pickup,
		Destination: body.Destination,
		Passengers:  body.Passengers,
		Quote:       quote,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	notified, err := s.dispatch.Broadcast(r.Context(), ride)
	resp := struct {
		Ride       rideResponse `json:"ride"`
		Candidates int          `json:"candidates"`
		Notice     string       `json:"notice,omitempty"`
	}{
		Ride:       rideResponse{Ride: ride, OTP: ride.OTP},
		Candidates: notified,
	}
	if errors.Is(err, dispatch.ErrNoCandidates) {
		// the ride stays pending; the rider can retry the broadcast
		resp.Notice = "no drivers nearby"
	} else if err != nil {
		s.logger.Error("broadcast failed", "ride_id", ride.ID, "error", err)
		resp.Notice = "dispatch delayed, retrying soon"
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleFare(w http.ResponseWriter, r *http.Request) {
	pickup := r.URL.Query().Get("pickup")
	destination := r.URL.Query().Get("destination")
	quote, err := maps.Quote(r.Context(), s.geocoder, s.rates, pickup, destination)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	ride, err := s.rides.GetAuthoritative(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	switch {
	case id.Kind == models.KindRider && ride.RiderID == id.ActorID:
		writeJSON(w, http.StatusOK, rideResponse{Ride: ride, OTP: ride.OTP})
	case id.Kind == models.KindCaptain && ride.CaptainID == id.ActorID:
		writeJSON(w, http.StatusOK, rideResponse{Ride: ride})
	default:
		http.Error(w, "ride not found", http.StatusNotFound)
	}
}

func (s *Server) handlePaymentIntent(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok || id.Kind != models.KindRider {
		http.Error(w, "riders only", http.StatusForbidden)
		return
	}
	rideID := mux.Vars(r)["id"]
	ride, err := s.rides.Get(r.Context(), rideID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if ride.RiderID != id.ActorID {
		http.Error(w, "ride not found", http.StatusNotFound)
		return
	}
	ref, err := s.stripe.Hold(r.Context(), ride.Fare, "usd", "")
	if err != nil {
		s.logger.Error("payment hold failed", "ride_id", rideID, "error", err)
		http.Error(w, "payment unavailable", http.StatusBadGateway)
		return
	}
	updated, err := s.rides.SetPaymentRef(r.Context(), rideID, ref)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rideResponse{Ride: updated})
}

// writeError maps core errors onto HTTP statuses following the same
// taxonomy the websocket gateway uses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rides.ErrNotFound):
		http.Error(w, "ride not found", http.StatusNotFound)
	case errors.Is(err, rides.ErrMissingQuote),
		errors.Is(err, maps.ErrUnknownAddress),
		errors.Is(err, maps.ErrNoRoute):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, rides.ErrRideUnavailable),
		errors.Is(err, rides.ErrInvalidTransition),
		errors.Is(err, dispatch.ErrOfferClosed):
		http.Error(w, "ride no longer available", http.StatusConflict)
	case errors.Is(err, dispatch.ErrNoCandidates):
		http.Error(w, "no drivers nearby", http.StatusServiceUnavailable)
	case errors.Is(err, maps.ErrUnconfigured):
		http.Error(w, "location service unavailable", http.StatusServiceUnavailable)
	default:
		s.logger.Error("request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newID() string { return uuid.NewString() }
