package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errBoom = errors.New("boom")
var errIgnored = errors.New("ignored")

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := New(Config{FailureThreshold: 3, Timeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := cb.Call(ctx, func() error { return errBoom }); !errors.Is(err, errBoom) {
			t.Fatalf("call %d error = %v, want errBoom", i, err)
		}
	}
	if cb.State() != StateOpen {
		t.Fatalf("State() = %v, want open", cb.State())
	}

	ran := false
	err := cb.Call(ctx, func() error { ran = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Errorf("Call() on open circuit error = %v, want ErrOpen", err)
	}
	if ran {
		t.Error("fn ran while circuit open")
	}
}

func TestCircuitBreaker_SuccessResetsConsecutiveFailures(t *testing.T) {
	cb := New(Config{FailureThreshold: 2})
	ctx := context.Background()

	_ = cb.Call(ctx, func() error { return errBoom })
	_ = cb.Call(ctx, func() error { return nil })
	_ = cb.Call(ctx, func() error { return errBoom })
	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	var mu sync.Mutex
	var transitions []string
	cb := New(Config{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          50 * time.Millisecond,
		Component:        "test",
		OnStateChange: func(from, to State) {
			mu.Lock()
			defer mu.Unlock()
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	ctx := context.Background()

	_ = cb.Call(ctx, func() error { return errBoom })
	time.Sleep(80 * time.Millisecond)
	if cb.State() != StateHalfOpen {
		t.Fatalf("State() after timeout = %v, want half_open", cb.State())
	}
	if err := cb.Call(ctx, func() error { return nil }); err != nil {
		t.Fatalf("trial call error = %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("State() after trial call = %v, want closed", cb.State())
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"closed->open", "open->half_open", "half_open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition[%d] = %q, want %q", i, transitions[i], want[i])
		}
	}
}

func TestCircuitBreaker_IsFailureFilter(t *testing.T) {
	cb := New(Config{
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return !errors.Is(err, errIgnored) },
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := cb.Call(ctx, func() error { return errIgnored }); !errors.Is(err, errIgnored) {
			t.Fatalf("Call() error = %v, want errIgnored passed through", err)
		}
	}
	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_IgnoredErrorsKeepFailureCount(t *testing.T) {
	cb := New(Config{
		FailureThreshold: 3,
		Timeout:          time.Minute,
		IsIgnored:        func(err error) bool { return errors.Is(err, context.Canceled) },
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_ = cb.Call(ctx, func() error { return errBoom })
		if err := cb.Call(ctx, func() error { return context.Canceled }); !errors.Is(err, context.Canceled) {
			t.Fatalf("Call() error = %v, want context.Canceled passed through", err)
		}
	}
	if cb.State() != StateClosed {
		t.Fatalf("State() after 2 failures = %v, want closed", cb.State())
	}
	_ = cb.Call(ctx, func() error { return errBoom })
	if cb.State() != StateOpen {
		t.Errorf("State() = %v, want open: cancellations must not reset the failure run", cb.State())
	}
}

func TestCircuitBreaker_AnsweredNonFailuresCountAsLiveness(t *testing.T) {
	errNotFound := errors.New("not found")
	cb := New(Config{
		FailureThreshold: 3,
		IsFailure:        func(err error) bool { return !errors.Is(err, errNotFound) },
	})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_ = cb.Call(ctx, func() error { return errBoom })
		_ = cb.Call(ctx, func() error { return errBoom })
		_ = cb.Call(ctx, func() error { return errNotFound })
	}
	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want closed while upstream keeps answering", cb.State())
	}
}

func TestCircuitBreaker_IgnoredTrialReopens(t *testing.T) {
	cb := New(Config{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          50 * time.Millisecond,
		IsIgnored:        func(err error) bool { return errors.Is(err, context.Canceled) },
	})
	ctx := context.Background()

	_ = cb.Call(ctx, func() error { return errBoom })
	time.Sleep(80 * time.Millisecond)
	if cb.State() != StateHalfOpen {
		t.Fatalf("State() after timeout = %v, want half_open", cb.State())
	}
	_ = cb.Call(ctx, func() error { return context.Canceled })
	if cb.State() != StateOpen {
		t.Errorf("State() after canceled trial = %v, want open", cb.State())
	}
}

func TestCircuitBreaker_PanicCountsAsFailure(t *testing.T) {
	cb := New(Config{FailureThreshold: 1, Timeout: time.Minute})

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("panic was swallowed")
			}
		}()
		_ = cb.Call(context.Background(), func() error { panic("upstream decoder") })
	}()
	if cb.State() != StateOpen {
		t.Errorf("State() = %v, want open", cb.State())
	}
}

func TestCircuitBreaker_DoneContextSkipsCall(t *testing.T) {
	cb := New(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	if err := cb.Call(ctx, func() error { ran = true; return nil }); !errors.Is(err, context.Canceled) {
		t.Errorf("Call() error = %v, want context.Canceled", err)
	}
	if ran {
		t.Error("fn ran with a done context")
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half_open",
		State(42):     "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
