package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation.
	HTTPRequestsInFlight prometheus.Gauge

	// Upstream call rate per endpoint (weather, forecast) and status.
	WeatherAPICallsTotal *prometheus.CounterVec

	// Upstream latency per endpoint. Watch for: p95 > 2s (upstream degradation).
	WeatherAPIDuration *prometheus.HistogramVec

	// Upstream failures by endpoint and error category.
	WeatherAPIErrorsTotal *prometheus.CounterVec

	// Report lookups by result: hit, miss, forced. Hit rate = hit/(hit+miss).
	CacheLookupsTotal *prometheus.CounterVec

	// Slot clears by reason: manual, failure. Superseded writes are dropped stores after a clear.
	CacheInvalidationsTotal *prometheus.CounterVec

	// Callers that waited on another caller's upstream round.
	CoalescedRequestsTotal prometheus.Counter

	// Circuit breaker state (0 closed, 1 open, 2 half-open) and transitions.
	CircuitBreakerState       *prometheus.GaugeVec
	CircuitBreakerTransitions *prometheus.CounterVec

	// Saved-location operations by op and result.
	SettingsOperationsTotal *prometheus.CounterVec

	// Widget timelines served by outcome: fresh, placeholder.
	WidgetTimelinesTotal *prometheus.CounterVec

	// Scheduled refresh runs by outcome: refreshed, skipped, error.
	RefreshRunsTotal *prometheus.CounterVec

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter
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
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of OpenWeatherMap API calls",
		},
		[]string{"endpoint", "status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "OpenWeatherMap API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "status"},
	)
	WeatherAPIErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiErrorsTotal",
			Help: "Upstream failures by endpoint and category",
		},
		[]string{"endpoint", "category"},
	)
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheLookupsTotal",
			Help: "Weather report lookups by cache result (hit, miss, forced)",
		},
		[]string{"result"},
	)
	CacheInvalidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheInvalidationsTotal",
			Help: "Cache slot clears and dropped writes by reason",
		},
		[]string{"reason"},
	)
	CoalescedRequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coalescedRequestsTotal",
			Help: "Lookups that shared another caller's upstream round",
		},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state: 0 closed, 1 open, 2 half-open",
		},
		[]string{"component"},
	)
	CircuitBreakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)
	SettingsOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settingsOperationsTotal",
			Help: "Saved-location operations by op and result",
		},
		[]string{"op", "result"},
	)
	WidgetTimelinesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "widgetTimelinesTotal",
			Help: "Widget timelines built by outcome (fresh, placeholder)",
		},
		[]string{"outcome"},
	)
	RefreshRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refreshRunsTotal",
			Help: "Scheduled refresh runs by outcome (refreshed, skipped, error)",
		},
		[]string{"outcome"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		WeatherAPICallsTotal, WeatherAPIDuration, WeatherAPIErrorsTotal,
		CacheLookupsTotal, CacheInvalidationsTotal, CoalescedRequestsTotal,
		CircuitBreakerState, CircuitBreakerTransitions,
		SettingsOperationsTotal, WidgetTimelinesTotal, RefreshRunsTotal,
		RateLimitDeniedTotal,
	)
}

// RecordCircuitBreakerTransition counts a state change for component.
func RecordCircuitBreakerTransition(component, from, to string) {
	CircuitBreakerTransitions.WithLabelValues(component, from, to).Inc()
}

// SetCircuitBreakerStateGauge sets the state gauge (0 closed, 1 open, 2 half-open).
func SetCircuitBreakerStateGauge(component string, state int) {
	CircuitBreakerState.WithLabelValues(component).Set(float64(state))
}

// RecordSettingsOperation counts a saved-location operation; err nil records "success".
func RecordSettingsOperation(op string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	SettingsOperationsTotal.WithLabelValues(op, result).Inc()
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
