package lifecycle

import (
	"sync/atomic"
	"time"
)

// State tracks process lifecycle for the health endpoint: when the process started
// and whether it is draining.
type State struct {
	shuttingDown atomic.Bool
	startedAt    time.Time
}

// New returns a State started now.
func New() *State {
	return &State{startedAt: time.Now()}
}

// SetShuttingDown sets the shutdown flag. Call when SIGTERM/SIGINT is received.
// The health handler returns 503 with status shutting-down while true.
func (s *State) SetShuttingDown(v bool) {
	s.shuttingDown.Store(v)
}

// IsShuttingDown returns true if the process is draining and should not receive new traffic.
func (s *State) IsShuttingDown() bool {
	return s.shuttingDown.Load()
}

// Uptime returns the time elapsed since New.
func (s *State) Uptime() time.Duration {
	return time.Since(s.startedAt)
}
