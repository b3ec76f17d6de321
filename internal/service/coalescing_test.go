package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRequestCoalescer_GetOrDo_ConcurrentRequests(t *testing.T) {
	coalescer := newRequestCoalescer[string](5 * time.Second)
	var calls atomic.Int32
	release := make(chan struct{})

	fn := func(ctx context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "seattle", nil
	}

	var wg sync.WaitGroup
	results := make([]string, 10)
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx], _, errs[idx] = coalescer.GetOrDo(context.Background(), "seattle", fn)
		}(i)
	}
	// Let every goroutine register before the round completes.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := range results {
		if errs[i] != nil {
			t.Errorf("Request %d error = %v, want nil", i, errs[i])
		}
		if results[i] != "seattle" {
			t.Errorf("Request %d result = %q, want seattle", i, results[i])
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("fn call count = %d, want 1 (coalescing failed)", got)
	}
}

func TestRequestCoalescer_GetOrDo_ErrorPropagation(t *testing.T) {
	coalescer := newRequestCoalescer[string](5 * time.Second)
	wantErr := errors.New("api failure")

	_, shared, err := coalescer.GetOrDo(context.Background(), "seattle", func(ctx context.Context) (string, error) {
		return "", wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("GetOrDo() error = %v, want %v", err, wantErr)
	}
	if shared {
		t.Error("GetOrDo() shared = true for the caller that started the round")
	}
}

// TestRequestCoalescer_GetOrDo_CallerCancelDoesNotFailOthers verifies the round survives
// the starting caller abandoning it.
func TestRequestCoalescer_GetOrDo_CallerCancelDoesNotFailOthers(t *testing.T) {
	coalescer := newRequestCoalescer[string](5 * time.Second)
	release := make(chan struct{})
	fn := func(ctx context.Context) (string, error) {
		select {
		case <-release:
			return "ok", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, _, err := coalescer.GetOrDo(leaderCtx, "k", fn)
		leaderErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	followerDone := make(chan struct{})
	var followerResult string
	var followerShared bool
	var followerErr error
	go func() {
		defer close(followerDone)
		followerResult, followerShared, followerErr = coalescer.GetOrDo(context.Background(), "k", fn)
	}()
	time.Sleep(20 * time.Millisecond)

	cancelLeader()
	if err := <-leaderErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("leader error = %v, want context.Canceled", err)
	}
	close(release)
	<-followerDone

	if followerErr != nil || followerResult != "ok" || !followerShared {
		t.Errorf("follower = (%q, %v, %v), want (ok, true, nil)", followerResult, followerShared, followerErr)
	}
}

func TestRequestCoalescer_GetOrDo_Timeout(t *testing.T) {
	coalescer := newRequestCoalescer[string](50 * time.Millisecond)

	_, _, err := coalescer.GetOrDo(context.Background(), "seattle", func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("GetOrDo() error = %v, want context deadline exceeded", err)
	}
}

func TestRequestCoalescer_GetOrDo_DifferentKeys(t *testing.T) {
	coalescer := newRequestCoalescer[string](5 * time.Second)
	var calls atomic.Int32

	fn := func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "test", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			_, _, _ = coalescer.GetOrDo(context.Background(), key, fn)
		}("key" + string(rune('a'+i)))
	}
	wg.Wait()

	if got := calls.Load(); got != 5 {
		t.Errorf("fn call count = %d, want 5 (no coalescing for different keys)", got)
	}
}

// TestRequestCoalescer_NewRoundAfterCompletion verifies completed rounds are not reused.
func TestRequestCoalescer_NewRoundAfterCompletion(t *testing.T) {
	coalescer := newRequestCoalescer[int](time.Second)
	var calls atomic.Int32
	fn := func(ctx context.Context) (int, error) {
		return int(calls.Add(1)), nil
	}

	first, _, _ := coalescer.GetOrDo(context.Background(), "k", fn)
	second, _, _ := coalescer.GetOrDo(context.Background(), "k", fn)
	if first != 1 || second != 2 {
		t.Errorf("results = %d, %d; want 1, 2", first, second)
	}
}
