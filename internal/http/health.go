package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-display-service/internal/circuitbreaker"
	"github.com/kjstillabower/weather-display-service/internal/client"
)

const (
	defaultPingTimeout         = 2 * time.Second
	defaultAPIKeyCheckInterval = 5 * time.Minute
)

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	DegradedWindow   time.Duration
	DegradedErrorPct int
	// BreakerState reports the upstream circuit; nil when no breaker is configured.
	BreakerState func() circuitbreaker.State
	PingTimeout  time.Duration
	// ValidateAPIKey checks the upstream credential; nil skips the check.
	// Results are reused for APIKeyCheckInterval so /health does not spend upstream quota.
	ValidateAPIKey      func(ctx context.Context) error
	APIKeyCheckInterval time.Duration
}

type healthResult struct {
	status     string
	statusCode int
	reason     string
	checks     map[string]string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	if prev := h.healthStatusPrev; prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	now := h.now()
	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   "weather-display-service",
		"version":   "dev",
		"checks":    result.checks,
		"uptime":    h.lifecycle.Uptime(now).Round(time.Second).String(),
		"timestamp": now.UTC().Format(time.RFC3339),
	})
}

// apiKeyRejected reports whether the last credential check saw ErrInvalidAPIKey,
// re-running the check once the previous result is older than the interval.
// Transport errors leave the key presumed valid.
func (h *Handler) apiKeyRejected(ctx context.Context) bool {
	if h.health.ValidateAPIKey == nil {
		return false
	}
	interval := h.health.APIKeyCheckInterval
	if interval <= 0 {
		interval = defaultAPIKeyCheckInterval
	}

	h.apiKeyMu.Lock()
	defer h.apiKeyMu.Unlock()
	now := h.now()
	if !h.apiKeyCheckedAt.IsZero() && now.Sub(h.apiKeyCheckedAt) < interval {
		return h.apiKeyInvalid
	}
	err := h.health.ValidateAPIKey(ctx)
	if ctx.Err() != nil {
		return h.apiKeyInvalid
	}
	h.apiKeyCheckedAt = now
	h.apiKeyInvalid = errors.Is(err, client.ErrInvalidAPIKey)
	if err != nil && !h.apiKeyInvalid {
		h.logger.Warn("api key check inconclusive", zap.Error(err))
	}
	return h.apiKeyInvalid
}

// computeHealthStatus evaluates, in order: shutting-down, settings store reachability,
// rejected API key, open upstream circuit, upstream error rate.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	checks := map[string]string{"settings": "healthy", "weatherApi": "healthy"}

	if h.lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal", checks}
	}

	timeout := h.health.PingTimeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	settingsErr := h.locations.Ping(pingCtx)
	if settingsErr != nil {
		checks["settings"] = "unhealthy"
	}

	reason := ""
	if h.apiKeyRejected(ctx) {
		checks["weatherApi"] = "unhealthy"
		reason = "api_key_invalid"
	} else if h.health.BreakerState != nil && h.health.BreakerState() == circuitbreaker.StateOpen {
		checks["weatherApi"] = "unhealthy"
		reason = "circuit_open"
	} else if h.traffic.Degraded(h.health.DegradedWindow, h.health.DegradedErrorPct) {
		checks["weatherApi"] = "unhealthy"
		reason = "error_rate_breach"
	}

	switch {
	case settingsErr != nil:
		return healthResult{"degraded", http.StatusServiceUnavailable, "settings_unreachable", checks}
	case reason != "":
		return healthResult{"degraded", http.StatusServiceUnavailable, reason, checks}
	}
	return healthResult{"healthy", http.StatusOK, "", checks}
}
