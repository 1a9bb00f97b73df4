package ws

import (
	"errors"

	"github.com/example/ride-hailing/internal/dispatch"
	"github.com/example/ride-hailing/internal/location"
	"github.com/example/ride-hailing/internal/maps"
	"github.com/example/ride-hailing/internal/models"
	"github.com/example/ride-hailing/internal/presence"
	"github.com/example/ride-hailing/internal/rides"
)

var (
	errBadPayload = errors.New("ws: malformed event payload")
	errWrongRole  = errors.New("ws: event not allowed for this role")
	errNotYours   = errors.New("ws: ride belongs to another captain")
)

// Statuses carried on outbound error frames. Clients use them to decide
// whether a retry makes sense.
const (
	statusValidation = "validation"
	statusNotFound   = "not_found"
	statusConflict   = "conflict"
	statusTransient  = "transient"
	statusInternal   = "internal"
)

// classify maps an operation error to the frame status and the user-facing
// message. Unknown errors become internal failures with no detail leaked.
func classify(err error) (string, string) {
	switch {
	case errors.Is(err, errBadPayload),
		errors.Is(err, errWrongRole),
		errors.Is(err, location.ErrBadCoordinates),
		errors.Is(err, presence.ErrInvalidKind),
		errors.Is(err, rides.ErrMissingQuote),
		errors.Is(err, maps.ErrUnknownAddress),
		errors.Is(err, maps.ErrNoRoute):
		return statusValidation, err.Error()
	case errors.Is(err, rides.ErrNotFound), errors.Is(err, errNotYours):
		return statusNotFound, "ride not found"
	case errors.Is(err, rides.ErrRideUnavailable), errors.Is(err, dispatch.ErrOfferClosed):
		return statusConflict, "ride no longer available"
	case errors.Is(err, rides.ErrBadOTP):
		return statusConflict, "incorrect code, try again"
	case errors.Is(err, rides.ErrTooManyAttempts):
		return statusConflict, "too many incorrect codes"
	case errors.Is(err, rides.ErrInvalidTransition):
		return statusConflict, "ride is not in a valid state for that"
	case errors.Is(err, dispatch.ErrNoCandidates):
		return statusTransient, "no drivers nearby"
	case errors.Is(err, maps.ErrUnconfigured):
		return statusTransient, "location service unavailable"
	default:
		return statusInternal, "internal error"
	}
}

func errorEvent(cause string, err error) models.Event {
	status, message := classify(err)
	return models.Event{
		Name:    models.EventError,
		Status:  status,
		Message: message,
		Data:    map[string]string{"event": cause},
	}
}
