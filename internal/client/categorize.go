package client

import (
	"context"
	"errors"

	"github.com/kjstillabower/weather-display-service/internal/circuitbreaker"
)

// ErrorCategory is a stable label for error classification in metrics.
type ErrorCategory string

// Error category constants used as metric labels (weatherApiErrorsTotal, httpErrorsTotal).
const (
	ErrorCategoryCanceled         ErrorCategory = "canceled"
	ErrorCategoryTimeout          ErrorCategory = "timeout"
	ErrorCategoryNetwork          ErrorCategory = "network"
	ErrorCategoryInvalidLocation  ErrorCategory = "invalid_location_encoding"
	ErrorCategoryLocationNotFound ErrorCategory = "location_not_found"
	ErrorCategoryInvalidAPIKey    ErrorCategory = "invalid_api_key"
	ErrorCategoryRateLimited      ErrorCategory = "rate_limited"
	ErrorCategoryCircuitOpen      ErrorCategory = "circuit_open"
	ErrorCategoryUpstream         ErrorCategory = "upstream"
	ErrorCategoryDecode           ErrorCategory = "decode"
	ErrorCategoryUnknown          ErrorCategory = "unknown"
)

// CategorizeError maps an error to a stable ErrorCategory for metrics.
// Detail categories (API key, rate limit, open breaker) win over the generic upstream kind.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidLocationEncoding):
		return ErrorCategoryInvalidLocation
	case errors.Is(err, ErrLocationNotFound):
		return ErrorCategoryLocationNotFound
	case errors.Is(err, ErrDecode):
		return ErrorCategoryDecode
	case errors.Is(err, ErrInvalidAPIKey):
		return ErrorCategoryInvalidAPIKey
	case errors.Is(err, ErrRateLimited):
		return ErrorCategoryRateLimited
	case errors.Is(err, circuitbreaker.ErrOpen):
		return ErrorCategoryCircuitOpen
	case errors.Is(err, ErrUpstreamFailure):
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrorCategoryTimeout
		}
		return ErrorCategoryUpstream
	case errors.Is(err, context.Canceled):
		return ErrorCategoryCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorCategoryTimeout
	}
	return ErrorCategoryUnknown
}

// IsCancellation reports whether err is a bare caller cancellation rather than one of the
// upstream error kinds.
func IsCancellation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrInvalidLocationEncoding) || errors.Is(err, ErrLocationNotFound) ||
		errors.Is(err, ErrUpstreamFailure) || errors.Is(err, ErrDecode) {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// CountsAsFailure reports whether err should count against the upstream circuit breaker.
// An unknown location is an answer from a live upstream and unencodable input never
// leaves the process. Caller cancellation is neither; pair this with IsCancellation.
func CountsAsFailure(err error) bool {
	if err == nil || IsCancellation(err) {
		return false
	}
	return !errors.Is(err, ErrLocationNotFound) && !errors.Is(err, ErrInvalidLocationEncoding)
}
