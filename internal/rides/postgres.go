package rides

import (
	"context"
	"database/sql"
	"errors"

	_ "github.com/lib/pq"

	"github.com/example/ride-hailing/internal/models"
)

const rideColumns = `id, rider_id, captain_id, pickup, destination, passengers,
	fare, distance_miles, duration_minutes, otp, otp_attempts, status,
	payment_ref, paid, created_at, updated_at`

// PostgresStore backs the state machine with a rides table. Claim and the
// other transitions are single conditional UPDATEs, so concurrency control
// is delegated to the database's row locking.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Insert(ctx context.Context, r *models.Ride) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO rides(id, rider_id, pickup, destination, passengers,
		fare, distance_miles, duration_minutes, otp, otp_attempts, status, paid, created_at, updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		r.ID, r.RiderID, r.Pickup, r.Destination, r.Passengers,
		r.Fare, r.DistanceMiles, r.DurationMinutes, r.OTP, r.OTPAttempts, r.Status, r.Paid,
		r.CreatedAt, r.UpdatedAt)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*models.Ride, error) {
	return p.scanRide(p.db.QueryRowContext(ctx, `SELECT `+rideColumns+` FROM rides WHERE id=$1`, id))
}

func (p *PostgresStore) Claim(ctx context.Context, rideID, captainID string) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx, `UPDATE rides
		SET captain_id=$2, status=$3, updated_at=now()
		WHERE id=$1 AND status=$4 AND captain_id IS NULL
		RETURNING `+rideColumns,
		rideID, captainID, models.StatusAccepted, models.StatusPending)
	r, err := p.scanRide(row)
	if errors.Is(err, ErrNotFound) {
		// distinguish unknown ride from a lost race
		if _, getErr := p.Get(ctx, rideID); getErr != nil {
			return nil, getErr
		}
		return nil, ErrRideUnavailable
	}
	return r, err
}

func (p *PostgresStore) StartWithOTP(ctx context.Context, rideID, otp string, maxAttempts int) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx, `UPDATE rides
		SET status=$3, updated_at=now()
		WHERE id=$1 AND status=$4 AND otp=$2 AND otp_attempts < $5
		RETURNING `+rideColumns,
		rideID, otp, models.StatusOngoing, models.StatusAccepted, maxAttempts)
	r, err := p.scanRide(row)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	cur, getErr := p.Get(ctx, rideID)
	if getErr != nil {
		return nil, getErr
	}
	if cur.Status != models.StatusAccepted {
		return nil, ErrInvalidTransition
	}
	if cur.OTPAttempts >= maxAttempts {
		return nil, ErrTooManyAttempts
	}
	if _, execErr := p.db.ExecContext(ctx, `UPDATE rides SET otp_attempts = otp_attempts + 1
		WHERE id=$1 AND status=$2`, rideID, models.StatusAccepted); execErr != nil {
		return nil, execErr
	}
	return nil, ErrBadOTP
}

func (p *PostgresStore) Complete(ctx context.Context, rideID string) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx, `UPDATE rides SET status=$2, updated_at=now()
		WHERE id=$1 AND status=$3 RETURNING `+rideColumns,
		rideID, models.StatusCompleted, models.StatusOngoing)
	r, err := p.scanRide(row)
	if errors.Is(err, ErrNotFound) {
		if _, getErr := p.Get(ctx, rideID); getErr != nil {
			return nil, getErr
		}
		return nil, ErrInvalidTransition
	}
	return r, err
}

func (p *PostgresStore) SetPaymentRef(ctx context.Context, rideID, ref string) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx, `UPDATE rides SET payment_ref=$2, updated_at=now()
		WHERE id=$1 RETURNING `+rideColumns, rideID, ref)
	return p.scanRide(row)
}

func (p *PostgresStore) MarkPaidByRef(ctx context.Context, ref string) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx, `UPDATE rides SET paid=true, updated_at=now()
		WHERE payment_ref=$1 RETURNING `+rideColumns, ref)
	return p.scanRide(row)
}

func (p *PostgresStore) ActiveByCaptain(ctx context.Context, captainID string) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+rideColumns+` FROM rides
		WHERE captain_id=$1 AND status IN ($2,$3)
		ORDER BY updated_at DESC LIMIT 1`,
		captainID, models.StatusAccepted, models.StatusOngoing)
	return p.scanRide(row)
}

func (p *PostgresStore) scanRide(row *sql.Row) (*models.Ride, error) {
	var r models.Ride
	var captain, paymentRef sql.NullString
	err := row.Scan(&r.ID, &r.RiderID, &captain, &r.Pickup, &r.Destination, &r.Passengers,
		&r.Fare, &r.DistanceMiles, &r.DurationMinutes, &r.OTP, &r.OTPAttempts, &r.Status,
		&paymentRef, &r.Paid, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.CaptainID = captain.String
	r.PaymentRef = paymentRef.String
	return &r, nil
}
