// Package traffic keeps sliding windows of weather request outcomes for health checks.
package traffic

import (
	"sync"
	"time"
)

// DefaultRetention bounds how far back outcomes are kept.
const DefaultRetention = 5 * time.Minute

// Tracker records outcome timestamps. The zero value is not usable; use NewTracker.
type Tracker struct {
	mu        sync.Mutex
	retention time.Duration
	now       func() time.Time

	successes []time.Time
	failures  []time.Time
	denials   []time.Time
}

// NewTracker returns a tracker that forgets outcomes older than retention.
func NewTracker(retention time.Duration) *Tracker {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Tracker{retention: retention, now: time.Now}
}

// RecordSuccess records a request that was answered from cache or upstream.
func (t *Tracker) RecordSuccess() { t.record(&t.successes) }

// RecordError records a request that failed because of upstream trouble.
func (t *Tracker) RecordError() { t.record(&t.failures) }

// RecordDenied records a rate-limit rejection.
func (t *Tracker) RecordDenied() { t.record(&t.denials) }

func (t *Tracker) record(times *[]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	*times = append(*times, now)
	t.pruneLocked(now)
}

// RequestCount returns successes, errors and denials within window.
func (t *Tracker) RequestCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	return countSince(t.successes, cutoff) + countSince(t.failures, cutoff) + countSince(t.denials, cutoff)
}

// DenialCount returns rate-limit rejections within window.
func (t *Tracker) DenialCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countSince(t.denials, t.now().Add(-window))
}

// ErrorRate returns (errors, total) within window. Denials are not part of total.
func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	errors = countSince(t.failures, cutoff)
	return errors, errors + countSince(t.successes, cutoff)
}

// Degraded reports whether the error percentage within window reached pct.
// An empty window is never degraded.
func (t *Tracker) Degraded(window time.Duration, pct int) bool {
	if window <= 0 || pct <= 0 {
		return false
	}
	errors, total := t.ErrorRate(window)
	if total == 0 {
		return false
	}
	return errors*100 >= pct*total
}

// Reset forgets every outcome.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.successes, t.failures, t.denials = nil, nil, nil
}

func countSince(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops timestamps older than the retention. Caller holds t.mu.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-t.retention)
	for _, times := range []*[]time.Time{&t.successes, &t.failures, &t.denials} {
		s := *times
		i := 0
		for i < len(s) && s[i].Before(cutoff) {
			i++
		}
		if i > 0 {
			*times = append(s[:0], s[i:]...)
		}
	}
}
