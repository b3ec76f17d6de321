package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-display-service/internal/client"
	"github.com/kjstillabower/weather-display-service/internal/display"
	"github.com/kjstillabower/weather-display-service/internal/lifecycle"
	"github.com/kjstillabower/weather-display-service/internal/models"
	"github.com/kjstillabower/weather-display-service/internal/observability"
	"github.com/kjstillabower/weather-display-service/internal/settings"
	"github.com/kjstillabower/weather-display-service/internal/traffic"
	"github.com/kjstillabower/weather-display-service/internal/widget"
)

// WeatherService is the cache-backed weather lookup.
type WeatherService interface {
	FetchWeather(ctx context.Context, location string, force bool) (models.Report, error)
	ShouldRefresh(location string) bool
	InvalidateCache()
}

// LocationStore holds the saved locations and the default one.
type LocationStore interface {
	List(ctx context.Context) ([]string, error)
	Default(ctx context.Context) (string, error)
	Add(ctx context.Context, location string) (string, error)
	Delete(ctx context.Context, location string) error
	SetDefault(ctx context.Context, location string) (string, error)
	Ping(ctx context.Context) error
}

type TimelineProvider interface {
	Timeline(ctx context.Context) (widget.Timeline, error)
}

// Options carries presentation and health settings for a Handler. Zero values get defaults.
type Options struct {
	// Timezone decides day boundaries and the theme hour. Defaults to UTC.
	Timezone  *time.Location
	Health    HealthConfig
	Traffic   *traffic.Tracker
	Lifecycle *lifecycle.State
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weather   WeatherService
	locations LocationStore
	widgets   TimelineProvider
	logger    *zap.Logger

	tz        *time.Location
	health    HealthConfig
	traffic   *traffic.Tracker
	lifecycle *lifecycle.State
	now       func() time.Time

	healthStatusMu   sync.Mutex
	healthStatusPrev string

	apiKeyMu        sync.Mutex
	apiKeyCheckedAt time.Time
	apiKeyInvalid   bool
}

func NewHandler(weather WeatherService, locations LocationStore, widgets TimelineProvider, logger *zap.Logger, opts Options) *Handler {
	if opts.Timezone == nil {
		opts.Timezone = time.UTC
	}
	if opts.Traffic == nil {
		opts.Traffic = traffic.NewTracker(traffic.DefaultRetention)
	}
	if opts.Lifecycle == nil {
		opts.Lifecycle = lifecycle.New(time.Now())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		weather:   weather,
		locations: locations,
		widgets:   widgets,
		logger:    logger,
		tz:        opts.Timezone,
		health:    opts.Health,
		traffic:   opts.Traffic,
		lifecycle: opts.Lifecycle,
		now:       time.Now,
	}
}

type currentView struct {
	Location    string  `json:"location"`
	Temperature float64 `json:"temperature"`
	FeelsLike   float64 `json:"feelsLike"`
	TempMin     float64 `json:"tempMin"`
	TempMax     float64 `json:"tempMax"`
	Condition   string  `json:"condition"`
	Icon        string  `json:"icon"`
	Symbol      string  `json:"symbol"`
}

type forecastView struct {
	Time        time.Time `json:"time"`
	Label       string    `json:"label"`
	Temperature float64   `json:"temperature"`
	TempMin     float64   `json:"tempMin"`
	TempMax     float64   `json:"tempMax"`
	Condition   string    `json:"condition"`
	Icon        string    `json:"icon"`
	Symbol      string    `json:"symbol"`
}

type weatherResponse struct {
	Location    string         `json:"location"`
	Current     currentView    `json:"current"`
	Forecast    []forecastView `json:"forecast"`
	Daily       []forecastView `json:"daily"`
	Theme       display.Theme  `json:"theme"`
	Palette     display.Colors `json:"palette"`
	FetchedAt   time.Time      `json:"fetchedAt"`
	LastUpdated string         `json:"lastUpdated"`
}

// GetWeather handles GET /weather/{location}. force=true bypasses the cache.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	location := mux.Vars(r)["location"]
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	report, err := h.weather.FetchWeather(r.Context(), location, force)
	if err != nil {
		h.writeWeatherError(w, r, err)
		return
	}
	h.traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, h.weatherView(report))
}

func (h *Handler) weatherView(report models.Report) weatherResponse {
	now := h.now()
	primary := report.Current.Primary()
	theme := display.ThemeForWeather(now.In(h.tz).Hour(), primary.Icon)

	resp := weatherResponse{
		Location: report.Location,
		Current: currentView{
			Location:    report.Current.Name,
			Temperature: report.Current.Main.Temp,
			FeelsLike:   report.Current.Main.FeelsLike,
			TempMin:     report.Current.Main.TempMin,
			TempMax:     report.Current.Main.TempMax,
			Condition:   primary.Description,
			Icon:        primary.Icon,
			Symbol:      display.IconSymbol(primary.Icon),
		},
		Forecast:    make([]forecastView, 0, len(report.Forecast.Points)),
		Daily:       []forecastView{},
		Theme:       theme,
		Palette:     display.Palette(theme),
		FetchedAt:   report.FetchedAt,
		LastUpdated: display.TimeAgo(now.Sub(report.FetchedAt)),
	}
	for _, p := range report.Forecast.Points {
		resp.Forecast = append(resp.Forecast, pointView(p, display.FormatHour(p.Time(), h.tz)))
	}
	for _, p := range display.DailyForecasts(report.Forecast.Points, h.tz) {
		resp.Daily = append(resp.Daily, pointView(p, display.FormatDay(p.Time(), h.tz)))
	}
	return resp
}

func pointView(p models.ForecastPoint, label string) forecastView {
	var cond models.Condition
	if len(p.Conditions) > 0 {
		cond = p.Conditions[0]
	}
	return forecastView{
		Time:        p.Time(),
		Label:       label,
		Temperature: p.Main.Temp,
		TempMin:     p.Main.TempMin,
		TempMax:     p.Main.TempMax,
		Condition:   cond.Description,
		Icon:        cond.Icon,
		Symbol:      display.IconSymbol(cond.Icon),
	}
}

// GetFreshness handles GET /weather/{location}/freshness.
func (h *Handler) GetFreshness(w http.ResponseWriter, r *http.Request) {
	location := mux.Vars(r)["location"]
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"location":      location,
		"shouldRefresh": h.weather.ShouldRefresh(location),
	})
}

// DeleteCache handles DELETE /cache.
func (h *Handler) DeleteCache(w http.ResponseWriter, r *http.Request) {
	h.weather.InvalidateCache()
	if logger := observability.LoggerFromContext(r.Context()); logger != nil {
		logger.Info("weather cache invalidated")
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetWidget handles GET /widget.
func (h *Handler) GetWidget(w http.ResponseWriter, r *http.Request) {
	timeline, err := h.widgets.Timeline(r.Context())
	if err != nil {
		writeCanceled(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, timeline)
}

type locationRequest struct {
	Location string `json:"location"`
}

// ListLocations handles GET /locations.
func (h *Handler) ListLocations(w http.ResponseWriter, r *http.Request) {
	locs, err := h.locations.List(r.Context())
	if err != nil {
		h.writeSettingsError(w, r, err)
		return
	}
	def, err := h.locations.Default(r.Context())
	if err != nil {
		h.writeSettingsError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"locations": locs,
		"default":   def,
	})
}

// AddLocation handles POST /locations with {"location": "..."}.
func (h *Handler) AddLocation(w http.ResponseWriter, r *http.Request) {
	var body locationRequest
	if !decodeBody(w, r, &body) {
		return
	}
	saved, err := h.locations.Add(r.Context(), body.Location)
	if err != nil {
		h.writeSettingsError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"location": saved})
}

// DeleteLocation handles DELETE /locations/{location}.
func (h *Handler) DeleteLocation(w http.ResponseWriter, r *http.Request) {
	if err := h.locations.Delete(r.Context(), mux.Vars(r)["location"]); err != nil {
		h.writeSettingsError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetDefaultLocation handles PUT /locations/default with {"location": "..."}.
func (h *Handler) SetDefaultLocation(w http.ResponseWriter, r *http.Request) {
	var body locationRequest
	if !decodeBody(w, r, &body) {
		return
	}
	saved, err := h.locations.SetDefault(r.Context(), body.Location)
	if err != nil {
		h.writeSettingsError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"default": saved})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON like {\"location\": \"London\"}")
		return false
	}
	return true
}

// writeWeatherError maps the weather error kinds to responses and feeds the
// error-rate tracker with upstream-side failures only.
func (h *Handler) writeWeatherError(w http.ResponseWriter, r *http.Request, err error) {
	logger := observability.LoggerFromContext(r.Context())
	if logger != nil {
		logger.Debug("weather request failed", zap.String("category", string(client.CategorizeError(err))), zap.Error(err))
	}

	switch {
	case client.IsCancellation(err):
		if errors.Is(err, context.DeadlineExceeded) {
			h.traffic.RecordError()
		}
		writeCanceled(w, r, err)
	case errors.Is(err, client.ErrInvalidLocationEncoding):
		writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", "location cannot be encoded for lookup")
	case errors.Is(err, client.ErrLocationNotFound):
		writeError(w, r, http.StatusNotFound, "LOCATION_NOT_FOUND", "location not found")
	case errors.Is(err, client.ErrDecode):
		h.traffic.RecordError()
		writeError(w, r, http.StatusBadGateway, "BAD_UPSTREAM_RESPONSE", "Weather provider returned an unreadable response")
	default:
		h.traffic.RecordError()
		writeError(w, r, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "Unable to fetch weather data")
	}
}

// writeCanceled answers 504 when the request deadline passed. A caller that went
// away gets nothing written.
func writeCanceled(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		writeError(w, r, http.StatusGatewayTimeout, "TIMEOUT", "Request timed out")
		return
	}
	if logger := observability.LoggerFromContext(r.Context()); logger != nil {
		logger.Debug("request canceled by caller", zap.Error(err))
	}
}

func (h *Handler) writeSettingsError(w http.ResponseWriter, r *http.Request, err error) {
	if ctxErr := r.Context().Err(); ctxErr != nil {
		writeCanceled(w, r, ctxErr)
		return
	}
	switch {
	case errors.Is(err, settings.ErrInvalidLocation):
		writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", err.Error())
	case errors.Is(err, settings.ErrDuplicateLocation):
		writeError(w, r, http.StatusConflict, "DUPLICATE_LOCATION", err.Error())
	case errors.Is(err, settings.ErrDeleteDefault):
		writeError(w, r, http.StatusConflict, "DEFAULT_LOCATION", err.Error())
	case errors.Is(err, settings.ErrLocationNotSaved):
		writeError(w, r, http.StatusNotFound, "LOCATION_NOT_SAVED", err.Error())
	default:
		h.logger.Error("settings store failed", zap.String("correlation_id", observability.CorrelationID(r.Context())), zap.Error(err))
		writeError(w, r, http.StatusServiceUnavailable, "SETTINGS_UNAVAILABLE", "Saved locations are unavailable")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"error": {"code", "message", "requestId"}}.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}
