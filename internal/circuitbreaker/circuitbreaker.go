package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// ErrOpen is returned by Call when the breaker rejects the request without running it.
var ErrOpen = errors.New("circuit breaker open")

// State represents the circuit breaker state.
const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// State is the circuit breaker state (Closed, Open, HalfOpen).
type State int

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Config holds circuit breaker parameters.
type Config struct {
	// FailureThreshold consecutive failures open the circuit.
	FailureThreshold int
	// SuccessThreshold consecutive half-open successes close it again.
	SuccessThreshold int
	// Timeout is how long the circuit stays open before probing.
	Timeout   time.Duration
	Component string
	// IsFailure decides which errors count against the circuit. Nil counts every error.
	// An error it rejects counts as a success: upstream answered, so it is alive.
	IsFailure func(err error) bool
	// IsIgnored marks errors that say nothing about upstream, such as caller
	// cancellation. They leave the counts untouched while closed and reopen the
	// circuit when they end a half-open trial.
	IsIgnored     func(err error) bool
	OnStateChange func(from, to State)
}

// CircuitBreaker protects upstream calls by opening after repeated failures
// and allowing trial requests in half-open state.
type CircuitBreaker struct {
	cb           *gobreaker.TwoStepCircuitBreaker
	isSuccessful func(err error) bool
	isIgnored    func(err error) bool
}

// New creates a new CircuitBreaker with the given config.
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	threshold := uint32(cfg.FailureThreshold)
	settings := gobreaker.Settings{
		Name:        cfg.Component,
		MaxRequests: uint32(cfg.SuccessThreshold),
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	}
	isSuccessful := func(err error) bool { return err == nil }
	if cfg.IsFailure != nil {
		isFailure := cfg.IsFailure
		isSuccessful = func(err error) bool {
			return err == nil || !isFailure(err)
		}
	}
	if cfg.OnStateChange != nil {
		onChange := cfg.OnStateChange
		settings.OnStateChange = func(_ string, from, to gobreaker.State) {
			onChange(fromGobreaker(from), fromGobreaker(to))
		}
	}
	return &CircuitBreaker{
		cb:           gobreaker.NewTwoStepCircuitBreaker(settings),
		isSuccessful: isSuccessful,
		isIgnored:    cfg.IsIgnored,
	}
}

// Call runs fn when the circuit allows it and returns fn's error unchanged.
// A rejected call returns an error wrapping ErrOpen.
func (b *CircuitBreaker) Call(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done, err := b.cb.Allow()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOpen, err)
	}

	completed := false
	defer func() {
		if !completed {
			done(false)
		}
	}()
	err = fn()
	completed = true

	switch {
	case err != nil && b.isIgnored != nil && b.isIgnored(err):
		// A half-open slot must be released or the circuit never closes.
		// Outcomes from an earlier generation are discarded by gobreaker.
		if b.cb.State() == gobreaker.StateHalfOpen {
			done(false)
		}
	default:
		done(b.isSuccessful(err))
	}
	return err
}

// State returns the current state (for metrics and health).
func (b *CircuitBreaker) State() State {
	return fromGobreaker(b.cb.State())
}
