package rides

import "errors"

var (
	// ErrMissingQuote rejects a create call whose fare, distance or duration
	// was not resolved by the fare collaborator first.
	ErrMissingQuote = errors.New("rides: fare, distance and duration are required")

	ErrNotFound = errors.New("rides: ride not found")

	// ErrRideUnavailable is returned to every claimant that lost the race or
	// arrived after the ride left pending.
	ErrRideUnavailable = errors.New("rides: ride no longer available")

	ErrInvalidTransition = errors.New("rides: invalid status transition")

	ErrBadOTP = errors.New("rides: incorrect code")

	ErrTooManyAttempts = errors.New("rides: too many incorrect codes")
)
