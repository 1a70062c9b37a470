package observability

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate on the companion/view surface.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight.
	HTTPRequestsInFlight prometheus.Gauge

	// Inbound companion messages by result (ok, malformed, unknown_key). Watch for: malformed spikes = companion bug.
	InboundMessagesTotal *prometheus.CounterVec

	// Outbound refresh requests by result (sent, busy, failed).
	RefreshRequestsTotal *prometheus.CounterVec

	// Send completions reported by the transport (success, failure).
	SendResultsTotal *prometheus.CounterVec

	// Pending refresh requests that expired without a reply. Watch for: steady growth = companion unreachable.
	RefreshTimeoutsTotal prometheus.Counter

	// Scheduler transitions by from/to state and trigger.
	SchedulerTransitionsTotal *prometheus.CounterVec

	// Current scheduler state (0 idle, 1 request_pending).
	SchedulerState prometheus.Gauge

	// Weather updates that changed at least one field.
	WeatherUpdatesTotal prometheus.Counter

	// Outfit changes by garment slot (head, chest, legs, umbrella).
	OutfitChangesTotal *prometheus.CounterVec

	// Events dispatched by the engine loop by type.
	EngineEventsTotal *prometheus.CounterVec

	// Inbound messages denied by the rate limiter (429).
	RateLimitDeniedTotal prometheus.Counter

	weatherAgeGaugeOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	InboundMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inboundMessagesTotal",
			Help: "Inbound companion messages by decode result",
		},
		[]string{"result"},
	)
	RefreshRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refreshRequestsTotal",
			Help: "Outbound weather refresh requests by result",
		},
		[]string{"result"},
	)
	SendResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sendResultsTotal",
			Help: "Transport send completions by result",
		},
		[]string{"result"},
	)
	RefreshTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "refreshTimeoutsTotal",
			Help: "Refresh requests that expired without a weather update",
		},
	)
	SchedulerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schedulerTransitionsTotal",
			Help: "Refresh scheduler state transitions",
		},
		[]string{"from", "to", "trigger"},
	)
	SchedulerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "schedulerState",
			Help: "Refresh scheduler state (0 idle, 1 request_pending)",
		},
	)
	WeatherUpdatesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weatherUpdatesTotal",
			Help: "Applied weather updates that changed at least one field",
		},
	)
	OutfitChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outfitChangesTotal",
			Help: "Outfit changes by garment slot",
		},
		[]string{"slot"},
	)
	EngineEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engineEventsTotal",
			Help: "Events dispatched by the engine loop",
		},
		[]string{"type"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of inbound messages denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		InboundMessagesTotal, RefreshRequestsTotal, SendResultsTotal,
		RefreshTimeoutsTotal, SchedulerTransitionsTotal, SchedulerState,
		WeatherUpdatesTotal, OutfitChangesTotal, EngineEventsTotal,
		RateLimitDeniedTotal,
	)
}

// RegisterWeatherAgeGauge exposes the age of the last applied update in seconds.
// age should return a negative value while no weather has arrived. Registers once.
func RegisterWeatherAgeGauge(age func() float64) {
	weatherAgeGaugeOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "weatherAgeSeconds",
					Help: "Seconds since the last weather update; -1 while pending",
				},
				age,
			),
		)
	})
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
