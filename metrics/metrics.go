package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingestion outcomes recorded in tracking_events_total.
const (
	OutcomeAccepted     = "accepted"
	OutcomeRateLimited  = "rate_limited"
	OutcomeInvalid      = "invalid"
	OutcomeBadRequest   = "bad_request"
	OutcomeStorageError = "storage_error"
)

// Metrics holds the Prometheus collectors of the tracking service.
type Metrics struct {
	EventsTotal         *prometheus.CounterVec
	PlatformTotal       *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	StoreWriteDuration  prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracking_events_total",
				Help: "Total number of /track hits by outcome",
			},
			[]string{"outcome"},
		),
		PlatformTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracking_events_platform_total",
				Help: "Accepted tracking events by detected platform",
			},
			[]string{"platform"},
		),
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"handler", "method"},
		),
		StoreWriteDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "event_store_write_duration_seconds",
				Help:    "Duration of event repository inserts",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

// RegisterGauges exposes live sizes of the in-memory tracking state.
func RegisterGauges(reg prometheus.Registerer, sessions, clients func() int) {
	f := promauto.With(reg)
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "tracking_active_sessions",
		Help: "Sessions currently held in memory",
	}, func() float64 { return float64(sessions()) })
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "tracking_rate_limited_clients",
		Help: "Client keys currently tracked by the rate limiter",
	}, func() float64 { return float64(clients()) })
}
