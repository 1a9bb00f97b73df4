package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RidesCreated    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_hailing", Name: "rides_created_total", Help: "Total rides created"})
	BroadcastsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_hailing", Name: "broadcasts_total", Help: "Total ride offer broadcasts"})
	OffersSent      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_hailing", Name: "offers_sent_total", Help: "Total ride offers delivered to captains"})
	NoCandidates    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_hailing", Name: "broadcasts_no_candidates_total", Help: "Broadcasts that found no reachable captain"})
	ClaimsWon       = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_hailing", Name: "claims_won_total", Help: "Ride claims that won the race"})
	ClaimsRejected  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_hailing", Name: "claims_rejected_total", Help: "Ride claims rejected (lost race, expired offer or bad state)"})

	LocationsReported = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_hailing", Name: "locations_reported_total", Help: "Captain location samples accepted"})
	LocationsRelayed  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_hailing", Name: "locations_relayed_total", Help: "Captain location samples relayed to a paired rider"})
	LocationsStale    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_hailing", Name: "locations_stale_total", Help: "Captain location samples dropped as stale"})

	ConnectedActors = promauto.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: "ride_hailing", Name: "connected_actors", Help: "Currently connected websocket actors"},
		[]string{"kind"},
	)
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_hailing", Name: "events_dropped_total", Help: "Events dropped because the target actor was offline"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_hailing", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_hailing",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
