package scribe

import (
	"fmt"
	"time"
)

// Session is the run-scoped configuration. It is not modified once a run starts.
type Session struct {
	Interval    time.Duration
	Writers     int
	Processes   int
	Distributed bool
}

// DefaultSession returns a single-writer, single-process session typing every 50ms.
func DefaultSession() Session {
	return Session{
		Interval:  50 * time.Millisecond,
		Writers:   1,
		Processes: 1,
	}
}

// Validate reports configuration errors as CONFIG errors.
func (s Session) Validate() error {
	if s.Interval <= 0 {
		return NewConfigError(fmt.Sprintf("interval must be > 0, got %s", s.Interval))
	}
	if s.Writers < 1 {
		return NewConfigError(fmt.Sprintf("writers must be >= 1, got %d", s.Writers))
	}
	if s.Processes < 1 {
		return NewConfigError(fmt.Sprintf("processes must be >= 1, got %d", s.Processes))
	}
	return nil
}
