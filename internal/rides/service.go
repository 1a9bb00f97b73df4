package rides

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-hailing/internal/models"
	"github.com/example/ride-hailing/internal/observability"
)

type nowFunc func() time.Time

func defaultNow() time.Time { return time.Now().UTC() }

type CreateParams struct {
	RiderID     string
	Pickup      string
	Destination string
	Passengers  int
	Quote       models.RideQuote
}

// Service owns the ride lifecycle. All transitions run through the Store's
// conditional writes; the service adds OTP generation, validation, the
// read-through cache and logging.
type Service struct {
	store          Store
	cache          *Cache // optional
	logger         *slog.Logger
	otpMaxAttempts int
	now            nowFunc
	newID          func() string
	newOTP         func() (string, error)
}

func NewService(store Store, cache *Cache, logger *slog.Logger, otpMaxAttempts int) *Service {
	return &Service{
		store:          store,
		cache:          cache,
		logger:         logger,
		otpMaxAttempts: otpMaxAttempts,
		now:            defaultNow,
		newID:          uuid.NewString,
		newOTP:         generateOTP,
	}
}

// generateOTP draws a uniform 4-digit code from 1000 to 9999.
func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", n.Int64()+1000), nil
}

func (s *Service) Create(ctx context.Context, p CreateParams) (*models.Ride, error) {
	if p.RiderID == "" || p.Pickup == "" || p.Destination == "" {
		return nil, ErrMissingQuote
	}
	if p.Quote.Fare <= 0 || p.Quote.DistanceMiles <= 0 || p.Quote.DurationMinutes <= 0 {
		return nil, ErrMissingQuote
	}
	if p.Passengers <= 0 {
		p.Passengers = 1
	}
	otp, err := s.newOTP()
	if err != nil {
		return nil, err
	}
	now := s.now()
	r := &models.Ride{
		ID:              s.newID(),
		RiderID:         p.RiderID,
		Pickup:          p.Pickup,
		Destination:     p.Destination,
		Passengers:      p.Passengers,
		Fare:            p.Quote.Fare,
		DistanceMiles:   p.Quote.DistanceMiles,
		DurationMinutes: p.Quote.DurationMinutes,
		OTP:             otp,
		Status:          models.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.Insert(ctx, r); err != nil {
		return nil, err
	}
	s.recache(ctx, r)
	observability.RidesCreated.Inc()
	s.logger.Info("ride created", "ride_id", r.ID, "rider_id", r.RiderID, "fare", r.Fare)
	return r, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Ride, error) {
	if s.cache != nil {
		if r, ok := s.cache.Get(ctx, id); ok {
			return r, nil
		}
	}
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.recache(ctx, r)
	return r, nil
}

// GetAuthoritative always reads the system of record. Cached copies never
// carry the OTP, so callers that need it must come through here.
func (s *Service) GetAuthoritative(ctx context.Context, id string) (*models.Ride, error) {
	return s.store.Get(ctx, id)
}

// Claim binds the first pending-state claimant to the ride. Losers get
// ErrRideUnavailable and the record is untouched for them.
func (s *Service) Claim(ctx context.Context, rideID, captainID string) (*models.Ride, error) {
	r, err := s.store.Claim(ctx, rideID, captainID)
	if err != nil {
		observability.ClaimsRejected.Inc()
		return nil, err
	}
	s.recache(ctx, r)
	observability.ClaimsWon.Inc()
	s.logger.Info("ride claimed", "ride_id", rideID, "captain_id", captainID)
	return r, nil
}

// Start moves accepted -> ongoing when the supplied code matches the ride's
// OTP. Wrong codes count against a bounded attempt budget.
func (s *Service) Start(ctx context.Context, rideID, otp string) (*models.Ride, error) {
	r, err := s.store.StartWithOTP(ctx, rideID, otp, s.otpMaxAttempts)
	if err != nil {
		return nil, err
	}
	s.recache(ctx, r)
	s.logger.Info("ride started", "ride_id", rideID)
	return r, nil
}

func (s *Service) Complete(ctx context.Context, rideID string) (*models.Ride, error) {
	r, err := s.store.Complete(ctx, rideID)
	if err != nil {
		return nil, err
	}
	s.recache(ctx, r)
	s.logger.Info("ride completed", "ride_id", rideID)
	return r, nil
}

func (s *Service) SetPaymentRef(ctx context.Context, rideID, ref string) (*models.Ride, error) {
	r, err := s.store.SetPaymentRef(ctx, rideID, ref)
	if err != nil {
		return nil, err
	}
	s.recache(ctx, r)
	return r, nil
}

// MarkPaidByRef is driven by the payment collaborator's webhook and may land
// while the ride is ongoing or already completed.
func (s *Service) MarkPaidByRef(ctx context.Context, ref string) (*models.Ride, error) {
	r, err := s.store.MarkPaidByRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	s.recache(ctx, r)
	s.logger.Info("ride paid", "ride_id", r.ID, "payment_ref", ref)
	return r, nil
}

// ActiveForCaptain returns the accepted or ongoing ride this captain is
// paired on, if any.
func (s *Service) ActiveForCaptain(ctx context.Context, captainID string) (*models.Ride, error) {
	return s.store.ActiveByCaptain(ctx, captainID)
}

func (s *Service) recache(ctx context.Context, r *models.Ride) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Put(ctx, r); err != nil {
		s.logger.Warn("ride cache write failed", "ride_id", r.ID, "error", err)
	}
}
