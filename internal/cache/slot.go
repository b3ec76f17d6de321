package cache

import (
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/kjstillabower/weather-display-service/internal/models"
)

// Entry is one cached report: both halves come from the same upstream round.
type Entry struct {
	Current   models.CurrentConditions
	Forecast  models.ForecastSeries
	Location  string
	FetchedAt time.Time
}

// Matches reports whether the entry was fetched for location, ignoring case.
func (e Entry) Matches(location string) bool {
	return strings.EqualFold(e.Location, location)
}

// FoldKey maps location to a key that is equal for two locations exactly when
// Matches would accept one for the other. Each rune becomes the smallest member of
// its simple case-folding orbit.
func FoldKey(location string) string {
	var b strings.Builder
	b.Grow(len(location))
	for _, r := range location {
		lowest := r
		for f := unicode.SimpleFold(r); f != r; f = unicode.SimpleFold(f) {
			if f < lowest {
				lowest = f
			}
		}
		b.WriteRune(lowest)
	}
	return b.String()
}

// Fresh reports whether the entry is younger than ttl at now.
func (e Entry) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.FetchedAt) < ttl
}

// Report converts the entry into the pair handed to callers. Slices are copied
// so a caller editing its report cannot reach the cached entry.
func (e Entry) Report() models.Report {
	current := e.Current
	current.Conditions = cloneConditions(current.Conditions)

	forecast := e.Forecast
	if forecast.Points != nil {
		forecast.Points = make([]models.ForecastPoint, len(e.Forecast.Points))
		for i, p := range e.Forecast.Points {
			p.Conditions = cloneConditions(p.Conditions)
			forecast.Points[i] = p
		}
	}

	return models.Report{
		Location:  e.Location,
		Current:   current,
		Forecast:  forecast,
		FetchedAt: e.FetchedAt,
	}
}

func cloneConditions(in []models.Condition) []models.Condition {
	if in == nil {
		return nil
	}
	return append([]models.Condition(nil), in...)
}

// Slot is a single-entry cache. An entry is replaced wholesale or cleared, never mutated.
//
// Every Clear advances an epoch. Writers read Epoch before going upstream and hand it
// back to StoreIf, so a write that raced with a clear is dropped instead of resurrecting
// data the clear was meant to discard. Safe for concurrent use.
type Slot struct {
	mu    sync.Mutex
	entry *Entry
	epoch uint64
}

// NewSlot returns an empty slot.
func NewSlot() *Slot {
	return &Slot{}
}

// Lookup returns the entry when it matches location and is still fresh.
func (s *Slot) Lookup(location string, now time.Time, ttl time.Duration) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entry == nil || !s.entry.Matches(location) || !s.entry.Fresh(now, ttl) {
		return Entry{}, false
	}
	return *s.entry, true
}

// Peek returns the current entry regardless of location or age.
func (s *Slot) Peek() (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entry == nil {
		return Entry{}, false
	}
	return *s.entry, true
}

// Epoch returns the clear counter to pass to StoreIf.
func (s *Slot) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// StoreIf replaces the entry unless the slot was cleared since epoch was read.
// Returns false when the write was dropped.
func (s *Slot) StoreIf(epoch uint64, e Entry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return false
	}
	s.entry = &e
	return true
}

// Clear empties the slot and advances the epoch.
func (s *Slot) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry = nil
	s.epoch++
}
