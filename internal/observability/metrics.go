package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RidesRequested  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "rides_requested_total", Help: "Total ride requests accepted into the ledger"})
	DispatchPhases  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "search_phases_total", Help: "Total cascading-search phases executed"})
	OffersSent      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "offers_sent_total", Help: "Total driver_request notifications sent"})
	AcceptsWon      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "accepts_won_total", Help: "Accept attempts that won the conditional transition"})
	AcceptsLost     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "accepts_lost_total", Help: "Accept attempts rejected because the ride was already taken"})
	RidesTimedOut   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "rides_timed_out_total", Help: "Rides that exhausted every search tier"})
	RidesReconciled = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "rides_reconciled_total", Help: "Busy rides force-cancelled at startup"})
	PushFailures    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "push_failures_total", Help: "Best-effort push deliveries that failed"})
	DriversOnline   = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_dispatch", Name: "drivers_online", Help: "Drivers currently marked online"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_dispatch",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
