package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/ride-hailing/internal/auth"
	"github.com/example/ride-hailing/internal/dispatch"
	"github.com/example/ride-hailing/internal/geo"
	"github.com/example/ride-hailing/internal/maps"
	"github.com/example/ride-hailing/internal/models"
	"github.com/example/ride-hailing/internal/presence"
	"github.com/example/ride-hailing/internal/rides"
	"github.com/example/ride-hailing/internal/ws"
)

type routedGeocoder struct{ points map[string]models.Coord }

func (g routedGeocoder) Coordinates(ctx context.Context, address string) (models.Coord, error) {
	c, ok := g.points[address]
	if !ok {
		return models.Coord{}, maps.ErrUnknownAddress
	}
	return c, nil
}

func (g routedGeocoder) Route(ctx context.Context, origin, destination string) (maps.RouteMetrics, error) {
	if _, ok := g.points[origin]; !ok {
		return maps.RouteMetrics{}, maps.ErrUnknownAddress
	}
	if _, ok := g.points[destination]; !ok {
		return maps.RouteMetrics{}, maps.ErrUnknownAddress
	}
	return maps.RouteMetrics{DistanceMiles: 4.2, DurationMinutes: 13}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rideSvc := rides.NewService(rides.NewMemoryStore(), nil, logger, 5)
	registry := presence.NewRegistry(logger)
	index := geo.NewMemoryIndex(5 * time.Minute)
	geocoder := routedGeocoder{points: map[string]models.Coord{
		"airport":  {Lat: 24.9, Lng: 67.16},
		"downtown": {Lat: 24.86, Lng: 67.0},
	}}
	broadcaster := dispatch.NewBroadcaster(index, registry, rideSvc, geocoder,
		dispatch.AllowAll{}, nil, 3, 90*time.Second, logger)
	s := &Server{
		logger:   logger,
		mux:      mux.NewRouter(),
		rides:    rideSvc,
		dispatch: broadcaster,
		geocoder: geocoder,
		rates:    maps.Rates{Base: 250, PerMile: 120, PerMinute: 25},
		verifier: auth.NewVerifier("test-secret"),
		gateway:  ws.NewGateway(registry, nil, broadcaster, rideSvc, logger),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func bearer(t *testing.T, s *Server, actorID string, kind models.ActorKind) string {
	t.Helper()
	tok, err := s.verifier.Sign(actorID, kind, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return "Bearer " + tok
}

func TestRideRequestNoDriversStaysPending(t *testing.T) {
	s := newTestServer(t)
	body := `{"pickup":"airport","destination":"downtown","passengers":1}`
	req := httptest.NewRequest("POST", "/api/v1/rides/request", strings.NewReader(body))
	req.Header.Set("Authorization", bearer(t, s, "rider-1", models.KindRider))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", rec.Code, rec.Body.String())
	}
	var resp struct {
		Ride struct {
			ID     string `json:"id"`
			Status string `json:"status"`
			OTP    string `json:"otp"`
			Fare   int64  `json:"fare"`
		} `json:"ride"`
		Notice string `json:"notice"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Ride.Status != string(models.StatusPending) {
		t.Fatalf("status = %q, want pending", resp.Ride.Status)
	}
	if resp.Notice != "no drivers nearby" {
		t.Fatalf("notice = %q", resp.Notice)
	}
	if len(resp.Ride.OTP) != 4 {
		t.Fatalf("rider response must carry the 4-digit code, got %q", resp.Ride.OTP)
	}
	if resp.Ride.Fare != 1079 {
		t.Fatalf("fare = %d, want 1079", resp.Ride.Fare)
	}
}

func TestRideRequestRejectsCaptains(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest("POST", "/api/v1/rides/request", strings.NewReader(`{}`))
	req.Header.Set("Authorization", bearer(t, s, "cap-1", models.KindCaptain))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestFareQuote(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest("GET", "/api/v1/rides/fare?pickup=airport&destination=downtown", nil)
	req.Header.Set("Authorization", bearer(t, s, "rider-1", models.KindRider))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var q models.RideQuote
	if err := json.Unmarshal(rec.Body.Bytes(), &q); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if q.Fare != 1079 || q.DistanceMiles != 4.2 {
		t.Fatalf("quote = %+v", q)
	}
}

func TestFareQuoteUnknownAddress(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest("GET", "/api/v1/rides/fare?pickup=nowhere&destination=downtown", nil)
	req.Header.Set("Authorization", bearer(t, s, "rider-1", models.KindRider))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetRideHidesOTPFromCaptain(t *testing.T) {
	s := newTestServer(t)
	ride, err := s.rides.Create(context.Background(), rides.CreateParams{
		RiderID:     "rider-1",
		Pickup:      "airport",
		Destination: "downtown",
		Quote:       models.RideQuote{Fare: 1079, DistanceMiles: 4.2, DurationMinutes: 13},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.rides.Claim(context.Background(), ride.ID, "cap-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	fetch := func(authz string) (int, map[string]any) {
		req := httptest.NewRequest("GET", "/api/v1/rides/"+ride.ID, nil)
		req.Header.Set("Authorization", authz)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)
		var body map[string]any
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
		return rec.Code, body
	}

	code, body := fetch(bearer(t, s, "rider-1", models.KindRider))
	if code != http.StatusOK {
		t.Fatalf("rider fetch = %d", code)
	}
	if _, ok := body["otp"]; !ok {
		t.Fatal("rider view must include the code")
	}

	code, body = fetch(bearer(t, s, "cap-1", models.KindCaptain))
	if code != http.StatusOK {
		t.Fatalf("captain fetch = %d", code)
	}
	if _, ok := body["otp"]; ok {
		t.Fatal("captain view must not include the code")
	}

	code, _ = fetch(bearer(t, s, "rider-2", models.KindRider))
	if code != http.StatusNotFound {
		t.Fatalf("stranger fetch = %d, want 404", code)
	}
}

func TestMissingTokenUnauthorized(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest("GET", "/api/v1/rides/some-id", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
