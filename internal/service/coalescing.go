package service

import (
	"context"
	"sync"
	"time"
)

// inFlightCall is one upstream round that several callers may wait for.
type inFlightCall[T any] struct {
	done   chan struct{}
	result T
	err    error
}

// requestCoalescer shares one upstream round between concurrent callers for the same key.
//
// The round runs detached from the cancellation of whichever caller started it, bounded
// by timeout, so one caller abandoning a lookup does not fail the others. Each caller
// still stops waiting when its own context is done.
type requestCoalescer[T any] struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightCall[T]
	timeout  time.Duration
}

// newRequestCoalescer creates a requestCoalescer whose rounds are bounded by timeout.
func newRequestCoalescer[T any](timeout time.Duration) *requestCoalescer[T] {
	return &requestCoalescer[T]{
		inFlight: make(map[string]*inFlightCall[T]),
		timeout:  timeout,
	}
}

// GetOrDo joins the round in flight for key, or starts fn as a new round.
// shared is true when the caller joined a round another caller started.
func (rc *requestCoalescer[T]) GetOrDo(ctx context.Context, key string, fn func(ctx context.Context) (T, error)) (result T, shared bool, err error) {
	rc.mu.Lock()
	call, exists := rc.inFlight[key]
	if !exists {
		call = &inFlightCall[T]{done: make(chan struct{})}
		rc.inFlight[key] = call
		go rc.run(ctx, key, call, fn)
	}
	rc.mu.Unlock()

	select {
	case <-call.done:
		return call.result, exists, call.err
	case <-ctx.Done():
		var zero T
		return zero, exists, ctx.Err()
	}
}

func (rc *requestCoalescer[T]) run(ctx context.Context, key string, call *inFlightCall[T], fn func(ctx context.Context) (T, error)) {
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rc.timeout)
	defer cancel()

	call.result, call.err = fn(runCtx)

	rc.mu.Lock()
	if rc.inFlight[key] == call {
		delete(rc.inFlight, key)
	}
	rc.mu.Unlock()
	close(call.done)
}
