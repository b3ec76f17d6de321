package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-display-service/internal/observability"
)

// RouterConfig holds the middleware settings applied by NewRouter.
type RouterConfig struct {
	// Limiter throttles the upstream-backed routes; nil disables rate limiting.
	Limiter *rate.Limiter
	// RequestTimeout bounds upstream-backed routes; zero disables it.
	RequestTimeout time.Duration
	InFlight       *InFlightTracker
}

// NewRouter wires every route of the service onto a gorilla/mux router.
func NewRouter(h *Handler, logger *zap.Logger, cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware(cfg.InFlight))

	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)
	router.HandleFunc("/cache", h.DeleteCache).Methods(http.MethodDelete)

	router.HandleFunc("/locations", h.ListLocations).Methods(http.MethodGet)
	router.HandleFunc("/locations", h.AddLocation).Methods(http.MethodPost)
	router.HandleFunc("/locations/default", h.SetDefaultLocation).Methods(http.MethodPut)
	router.HandleFunc("/locations/{location}", h.DeleteLocation).Methods(http.MethodDelete)

	upstream := router.NewRoute().Subrouter()
	upstream.Use(RateLimitMiddleware(cfg.Limiter, h.traffic))
	upstream.Use(TimeoutMiddleware(cfg.RequestTimeout))
	upstream.HandleFunc("/weather/{location}", h.GetWeather).Methods(http.MethodGet)
	upstream.HandleFunc("/weather/{location}/freshness", h.GetFreshness).Methods(http.MethodGet)
	upstream.HandleFunc("/widget", h.GetWidget).Methods(http.MethodGet)

	return router
}
