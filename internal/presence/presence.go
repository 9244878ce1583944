// Package presence carries the one-line "what is the player doing" status.
// Desktop rich presence lives outside this module; Log is the built-in sink.
package presence

import (
	"log/slog"
	"sync"
	"time"
)

type Status struct {
	Details   string    `json:"details"`
	State     string    `json:"state"`
	Scenario  string    `json:"scenario,omitempty"`
	Turn      int64     `json:"turn,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
}

// Sink receives status updates. Implementations must not block.
type Sink interface {
	Update(s Status)
}

// Log writes changed statuses to slog and remembers the latest one.
type Log struct {
	logger *slog.Logger

	mu   sync.RWMutex
	last Status
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Update(s Status) {
	l.mu.Lock()
	changed := s != l.last
	l.last = s
	l.mu.Unlock()
	if changed {
		l.logger.Info("status", "details", s.Details, "state", s.State, "turn", s.Turn)
	}
}

// Current returns the latest status.
func (l *Log) Current() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.last
}
