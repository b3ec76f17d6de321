package lifecycle

import (
	"testing"
	"time"
)

func TestState_ShuttingDown(t *testing.T) {
	s := New(time.Now())
	if s.IsShuttingDown() {
		t.Error("IsShuttingDown() = true, want false by default")
	}
	s.SetShuttingDown(true)
	if !s.IsShuttingDown() {
		t.Error("IsShuttingDown() = false after SetShuttingDown(true)")
	}
	s.SetShuttingDown(false)
	if s.IsShuttingDown() {
		t.Error("IsShuttingDown() = true after SetShuttingDown(false)")
	}
}

func TestState_Uptime(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New(start)
	if got := s.Uptime(start.Add(90 * time.Second)); got != 90*time.Second {
		t.Errorf("Uptime() = %v, want 90s", got)
	}
}
