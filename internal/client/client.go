package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/kjstillabower/weather-display-service/internal/circuitbreaker"
	"github.com/kjstillabower/weather-display-service/internal/models"
	"github.com/kjstillabower/weather-display-service/internal/observability"
)

// WeatherClient fetches the two upstream resources a weather report is built from.
type WeatherClient interface {
	GetCurrentConditions(ctx context.Context, location string) (models.CurrentConditions, error)
	GetForecast(ctx context.Context, location string) (models.ForecastSeries, error)
}

// Error kinds surfaced to callers. Every upstream failure wraps exactly one of
// ErrInvalidLocationEncoding, ErrLocationNotFound, ErrUpstreamFailure or ErrDecode.
// A done caller context is returned as the context error instead.
var (
	ErrInvalidLocationEncoding = errors.New("invalid location encoding")
	ErrLocationNotFound        = errors.New("location not found")
	ErrUpstreamFailure         = errors.New("upstream failure")
	ErrDecode                  = errors.New("decode response")

	// Detail errors, always wrapped together with ErrUpstreamFailure.
	ErrInvalidAPIKey = errors.New("invalid API key")
	ErrRateLimited   = errors.New("rate limited")
)

const (
	endpointWeather  = "weather"
	endpointForecast = "forecast"
)

type OpenWeatherClient struct {
	apiKey  string
	baseURL string
	timeout time.Duration
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
}

// NewOpenWeatherClient returns a client for the OpenWeatherMap 2.5 API rooted at baseURL
// (e.g. https://api.openweathermap.org/data/2.5). timeout bounds each upstream request.
func NewOpenWeatherClient(apiKey, baseURL string, timeout time.Duration) (*OpenWeatherClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	return &OpenWeatherClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// SetCircuitBreaker guards every upstream call with cb. Call before serving traffic.
func (c *OpenWeatherClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

type currentWire struct {
	Coord   *models.Coordinates  `json:"coord"`
	Main    *models.Temperatures `json:"main"`
	Weather *[]models.Condition  `json:"weather"`
	Name    *string              `json:"name"`
}

type forecastWire struct {
	List []struct {
		Dt      *int64               `json:"dt"`
		Main    *models.Temperatures `json:"main"`
		Weather *[]models.Condition  `json:"weather"`
		DtTxt   *string              `json:"dt_txt"`
	} `json:"list"`
	City *models.City `json:"city"`
}

func (c *OpenWeatherClient) GetCurrentConditions(ctx context.Context, location string) (models.CurrentConditions, error) {
	var wire currentWire
	if err := c.get(ctx, endpointWeather, location, &wire); err != nil {
		return models.CurrentConditions{}, err
	}
	if wire.Coord == nil || wire.Main == nil || wire.Weather == nil || wire.Name == nil {
		observability.WeatherAPIErrorsTotal.WithLabelValues(endpointWeather, string(ErrorCategoryDecode)).Inc()
		return models.CurrentConditions{}, fmt.Errorf("%w: weather: missing required field", ErrDecode)
	}
	return models.CurrentConditions{
		Coord:      *wire.Coord,
		Main:       *wire.Main,
		Conditions: *wire.Weather,
		Name:       *wire.Name,
	}, nil
}

func (c *OpenWeatherClient) GetForecast(ctx context.Context, location string) (models.ForecastSeries, error) {
	var wire forecastWire
	if err := c.get(ctx, endpointForecast, location, &wire); err != nil {
		return models.ForecastSeries{}, err
	}
	if wire.List == nil || wire.City == nil {
		observability.WeatherAPIErrorsTotal.WithLabelValues(endpointForecast, string(ErrorCategoryDecode)).Inc()
		return models.ForecastSeries{}, fmt.Errorf("%w: forecast: missing required field", ErrDecode)
	}
	series := models.ForecastSeries{
		City:   *wire.City,
		Points: make([]models.ForecastPoint, 0, len(wire.List)),
	}
	for i, p := range wire.List {
		if p.Dt == nil || p.Main == nil || p.Weather == nil || p.DtTxt == nil {
			observability.WeatherAPIErrorsTotal.WithLabelValues(endpointForecast, string(ErrorCategoryDecode)).Inc()
			return models.ForecastSeries{}, fmt.Errorf("%w: forecast: list[%d] missing required field", ErrDecode, i)
		}
		series.Points = append(series.Points, models.ForecastPoint{
			Dt:         *p.Dt,
			Main:       *p.Main,
			Conditions: *p.Weather,
			DtTxt:      *p.DtTxt,
		})
	}
	return series, nil
}

// get performs one upstream GET and decodes the body into out. The circuit breaker, when set,
// sees every attempt; not-found and caller cancellation are not counted as failures.
func (c *OpenWeatherClient) get(ctx context.Context, endpoint, location string, out interface{}) error {
	if err := checkLocationEncoding(location); err != nil {
		observability.WeatherAPIErrorsTotal.WithLabelValues(endpoint, string(ErrorCategoryInvalidLocation)).Inc()
		return err
	}
	if c.breaker == nil {
		return c.callAPI(ctx, endpoint, location, out)
	}
	err := c.breaker.Call(ctx, func() error {
		return c.callAPI(ctx, endpoint, location, out)
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		observability.WeatherAPIErrorsTotal.WithLabelValues(endpoint, string(ErrorCategoryCircuitOpen)).Inc()
		return fmt.Errorf("%w: %w", ErrUpstreamFailure, err)
	}
	return err
}

func (c *OpenWeatherClient) callAPI(ctx context.Context, endpoint, location string, out interface{}) error {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, endpoint, location)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		return err
	}

	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.WeatherAPIDuration.WithLabelValues(endpoint, "error").Observe(duration)

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(err, context.DeadlineExceeded) {
			observability.WeatherAPIErrorsTotal.WithLabelValues(endpoint, string(ErrorCategoryTimeout)).Inc()
			return fmt.Errorf("%w: %s request timeout: %w", ErrUpstreamFailure, endpoint, err)
		}
		observability.WeatherAPIErrorsTotal.WithLabelValues(endpoint, string(ErrorCategoryNetwork)).Inc()
		return fmt.Errorf("%w: %s network: %w", ErrUpstreamFailure, endpoint, err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(endpoint, status).Observe(duration)

	if err := handleErrorResponse(resp); err != nil {
		observability.WeatherAPIErrorsTotal.WithLabelValues(endpoint, string(CategorizeError(err))).Inc()
		return fmt.Errorf("%s: %w", endpoint, err)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		observability.WeatherAPIErrorsTotal.WithLabelValues(endpoint, string(ErrorCategoryNetwork)).Inc()
		return fmt.Errorf("%w: %s read body: %w", ErrUpstreamFailure, endpoint, err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		observability.WeatherAPIErrorsTotal.WithLabelValues(endpoint, string(ErrorCategoryDecode)).Inc()
		return fmt.Errorf("%w: %s: %w", ErrDecode, endpoint, err)
	}
	return nil
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, endpoint, location string) (*http.Request, error) {
	base, err := url.Parse(c.baseURL + "/" + endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidLocationEncoding, err)
	}

	params := url.Values{}
	params.Set("q", location)
	params.Set("appid", c.apiKey)
	params.Set("units", "metric")
	base.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", ErrInvalidLocationEncoding, err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

// checkLocationEncoding rejects strings that cannot be carried in a query parameter as text.
func checkLocationEncoding(location string) error {
	if strings.TrimSpace(location) == "" {
		return fmt.Errorf("%w: empty location", ErrInvalidLocationEncoding)
	}
	if !utf8.ValidString(location) {
		return fmt.Errorf("%w: location is not valid UTF-8", ErrInvalidLocationEncoding)
	}
	for _, r := range location {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: location contains control character %U", ErrInvalidLocationEncoding, r)
		}
	}
	return nil
}

func handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return ErrLocationNotFound
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", ErrUpstreamFailure, ErrInvalidAPIKey)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", ErrUpstreamFailure, ErrRateLimited)
	}
	return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == http.StatusNotFound {
		return "not_found"
	}
	if statusCode == http.StatusTooManyRequests {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

// ValidateAPIKey issues a single current-conditions request for a well-known city and
// reports whether upstream accepted the key.
func (c *OpenWeatherClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := c.buildRequest(ctx, endpointWeather, "London")
	if err != nil {
		return fmt.Errorf("build validation request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("validation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: API key is invalid or not activated", ErrInvalidAPIKey)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("validation failed: HTTP %d", resp.StatusCode)
	}

	return nil
}
