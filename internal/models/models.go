package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ActorKind distinguishes the two roles sharing the realtime gateway.
type ActorKind string

const (
	KindRider   ActorKind = "rider"
	KindCaptain ActorKind = "captain"
)

func (k ActorKind) Valid() bool { return k == KindRider || k == KindCaptain }

type RideStatus string

const (
	StatusPending   RideStatus = "pending"
	StatusAccepted  RideStatus = "accepted"
	StatusOngoing   RideStatus = "ongoing"
	StatusCompleted RideStatus = "completed"
)

// Ride is the authoritative record for one trip. CaptainID is empty until a
// claim wins and is never reassigned afterwards. Fare, distance and duration
// are fixed at creation. The OTP is compared server-side and never serialized.
type Ride struct {
	ID              string     `json:"id"`
	RiderID         string     `json:"rider_id"`
	CaptainID       string     `json:"captain_id,omitempty"`
	Pickup          string     `json:"pickup"`
	Destination     string     `json:"destination"`
	Passengers      int        `json:"passengers"`
	Fare            int64      `json:"fare"` // currency minor units
	DistanceMiles   float64    `json:"distance_miles"`
	DurationMinutes float64    `json:"duration_minutes"`
	OTP             string     `json:"-"`
	OTPAttempts     int        `json:"-"`
	Status          RideStatus `json:"status"`
	PaymentRef      string     `json:"payment_ref,omitempty"`
	Paid            bool       `json:"paid"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Active reports whether a captain paired on this ride should have their
// position relayed to the rider.
func (r *Ride) Active() bool {
	return r.Status == StatusAccepted || r.Status == StatusOngoing
}

type RideQuote struct {
	Fare            int64   `json:"fare"`
	DistanceMiles   float64 `json:"distance_miles"`
	DurationMinutes float64 `json:"duration_minutes"`
}

// LocationSample is one periodic position report from an online captain.
type LocationSample struct {
	CaptainID      string    `json:"captain_id"`
	Lat            float64   `json:"lat"`
	Lng            float64   `json:"lng"`
	AccuracyMeters float64   `json:"accuracy_meters,omitempty"`
	CapturedAt     time.Time `json:"captured_at"`
}

// Candidate is a non-stale proximity index hit.
type Candidate struct {
	CaptainID string `json:"captain_id"`
	Coord
}

// RiderProfile carries the minimal display fields shown to candidate
// captains alongside an offer.
type RiderProfile struct {
	Name  string `json:"name,omitempty"`
	Photo string `json:"photo,omitempty"`
}

// Event is the structured frame delivered to connected actors.
type Event struct {
	Name    string `json:"event"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Outbound event names. These match what the client apps subscribe to.
const (
	EventRideOffer       = "ride_offer"
	EventRideAccepted    = "ride_accepted"
	EventRideTaken       = "ride_taken"
	EventRideStarted     = "ride_started"
	EventRideCompleted   = "ride_completed"
	EventCaptainLocation = "captain_location"
	EventError           = "error"
	EventNotice          = "notice"
)
