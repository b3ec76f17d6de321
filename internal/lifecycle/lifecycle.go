// Package lifecycle tracks process start time and the draining flag reported by /health.
package lifecycle

import (
	"sync/atomic"
	"time"
)

type State struct {
	started      time.Time
	shuttingDown atomic.Bool
}

func New(started time.Time) *State {
	return &State{started: started}
}

// SetShuttingDown flips the draining flag. Call when SIGTERM/SIGINT is received.
func (s *State) SetShuttingDown(v bool) {
	s.shuttingDown.Store(v)
}

// IsShuttingDown reports whether the process is draining and should not receive new traffic.
func (s *State) IsShuttingDown() bool {
	return s.shuttingDown.Load()
}

// Uptime is the time elapsed since start, measured at now.
func (s *State) Uptime(now time.Time) time.Duration {
	return now.Sub(s.started)
}
