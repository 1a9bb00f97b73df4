package rides

import (
	"context"
	"sync"

	"github.com/example/ride-hailing/internal/models"
)

// Store persists rides. Every state change is a conditional write: the
// implementation must guarantee that Claim admits exactly one winner per
// ride and that a failed call leaves the record untouched.
type Store interface {
	Insert(ctx context.Context, r *models.Ride) error
	Get(ctx context.Context, id string) (*models.Ride, error)
	Claim(ctx context.Context, rideID, captainID string) (*models.Ride, error)
	StartWithOTP(ctx context.Context, rideID, otp string, maxAttempts int) (*models.Ride, error)
	Complete(ctx context.Context, rideID string) (*models.Ride, error)
	SetPaymentRef(ctx context.Context, rideID, ref string) (*models.Ride, error)
	MarkPaidByRef(ctx context.Context, ref string) (*models.Ride, error)
	ActiveByCaptain(ctx context.Context, captainID string) (*models.Ride, error)
}

// MemoryStore keeps rides in a map guarded by one mutex, which trivially
// serializes claims. Returned rides are copies so callers cannot mutate
// shared state.
type MemoryStore struct {
	mu    sync.Mutex
	rides map[string]*models.Ride
	now   nowFunc
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rides: make(map[string]*models.Ride), now: defaultNow}
}

func (m *MemoryStore) Insert(_ context.Context, r *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.rides[r.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) Claim(_ context.Context, rideID, captainID string) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return nil, ErrNotFound
	}
	if r.Status != models.StatusPending || r.CaptainID != "" {
		return nil, ErrRideUnavailable
	}
	r.CaptainID = captainID
	r.Status = models.StatusAccepted
	r.UpdatedAt = m.now()
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) StartWithOTP(_ context.Context, rideID, otp string, maxAttempts int) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return nil, ErrNotFound
	}
	if r.Status != models.StatusAccepted {
		return nil, ErrInvalidTransition
	}
	if r.OTPAttempts >= maxAttempts {
		return nil, ErrTooManyAttempts
	}
	if r.OTP != otp {
		r.OTPAttempts++
		return nil, ErrBadOTP
	}
	r.Status = models.StatusOngoing
	r.UpdatedAt = m.now()
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) Complete(_ context.Context, rideID string) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return nil, ErrNotFound
	}
	if r.Status != models.StatusOngoing {
		return nil, ErrInvalidTransition
	}
	r.Status = models.StatusCompleted
	r.UpdatedAt = m.now()
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) SetPaymentRef(_ context.Context, rideID, ref string) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return nil, ErrNotFound
	}
	r.PaymentRef = ref
	r.UpdatedAt = m.now()
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) MarkPaidByRef(_ context.Context, ref string) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rides {
		if r.PaymentRef == ref {
			r.Paid = true
			r.UpdatedAt = m.now()
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ActiveByCaptain(_ context.Context, captainID string) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rides {
		if r.CaptainID == captainID && r.Active() {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}
