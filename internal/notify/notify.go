// Package notify delivers dismissible, auto-expiring user notifications.
// Delivery never blocks the caller.
package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Level string

const (
	Info    Level = "info"
	Warning Level = "warning"
	Error   Level = "error"
)

// Notifier is what pipeline components use to surface non-fatal problems.
type Notifier interface {
	Notify(level Level, title, message string)
	// NotifyOnce shows a notification only the first time key is seen.
	NotifyOnce(key string, level Level, title, message string)
}

type Notification struct {
	ID        string    `json:"id"`
	Level     Level     `json:"level"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Center keeps the most recent notifications in a ring.
type Center struct {
	ttl    time.Duration
	max    int
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	items []Notification
	seen  map[string]struct{}
}

func NewCenter(max int, ttl time.Duration, logger *slog.Logger) *Center {
	if max <= 0 {
		max = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Center{
		ttl:    ttl,
		max:    max,
		logger: logger,
		now:    time.Now,
		seen:   make(map[string]struct{}),
	}
}

func (c *Center) Notify(level Level, title, message string) {
	switch level {
	case Error:
		c.logger.Error(title, "message", message)
	case Warning:
		c.logger.Warn(title, "message", message)
	default:
		c.logger.Info(title, "message", message)
	}

	now := c.now()
	n := Notification{
		ID:        uuid.NewString(),
		Level:     level,
		Title:     title,
		Message:   message,
		CreatedAt: now,
	}
	if c.ttl > 0 {
		n.ExpiresAt = now.Add(c.ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, n)
	if len(c.items) > c.max {
		c.items = c.items[len(c.items)-c.max:]
	}
}

func (c *Center) NotifyOnce(key string, level Level, title, message string) {
	c.mu.Lock()
	if _, ok := c.seen[key]; ok {
		c.mu.Unlock()
		c.logger.Debug("suppressed repeated notification", "key", key)
		return
	}
	c.seen[key] = struct{}{}
	c.mu.Unlock()
	c.Notify(level, title, message)
}

// Active returns unexpired notifications, newest first.
func (c *Center) Active() []Notification {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Notification, 0, len(c.items))
	for i := len(c.items) - 1; i >= 0; i-- {
		n := c.items[i]
		if !n.ExpiresAt.IsZero() && now.After(n.ExpiresAt) {
			continue
		}
		out = append(out, n)
	}
	return out
}

// Dismiss removes a notification. It reports whether it existed.
func (c *Center) Dismiss(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, n := range c.items {
		if n.ID == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return true
		}
	}
	return false
}

// Discard is a Notifier that only logs.
type Discard struct {
	Logger *slog.Logger
}

func (d Discard) Notify(level Level, title, message string) {
	l := d.Logger
	if l == nil {
		l = slog.Default()
	}
	l.Debug("notification", "level", level, "title", title, "message", message)
}

func (d Discard) NotifyOnce(_ string, level Level, title, message string) {
	d.Notify(level, title, message)
}
