// Package browser drives the helper web page. The pipeline only needs a
// narrow contract: keep one tab open, run scripts in it, move its window.
package browser

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrUnavailable is returned when the browser could not be reached after the
// configured number of attempts.
var ErrUnavailable = errors.New("browser unavailable")

type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Adapter is what the interpreter drives. Every call is synchronous and
// bounded; none blocks forever on a hung tab.
type Adapter interface {
	EnsureOpen(ctx context.Context, url string) error
	ExecuteScript(ctx context.Context, js string, args ...any) (any, error)
	WindowRect(ctx context.Context) (Rect, error)
	SetWindowRect(ctx context.Context, r Rect) error
	IsAlive(ctx context.Context) bool
	// URL is the address last passed to EnsureOpen, empty when closed.
	URL() string
	Close() error
}

// Disabled is the Adapter used when browser sync is turned off.
type Disabled struct{}

func (Disabled) EnsureOpen(context.Context, string) error                   { return nil }
func (Disabled) ExecuteScript(context.Context, string, ...any) (any, error) { return nil, nil }
func (Disabled) WindowRect(context.Context) (Rect, error)                   { return Rect{}, nil }
func (Disabled) SetWindowRect(context.Context, Rect) error                  { return nil }
func (Disabled) IsAlive(context.Context) bool                               { return false }
func (Disabled) URL() string                                                { return "" }
func (Disabled) Close() error                                               { return nil }

var sleepFn = time.Sleep

// withRetry runs op up to attempts+1 times. Between attempts it sleeps with
// exponential backoff and calls reset so the next attempt starts from a fresh
// tab.
func withRetry(ctx context.Context, attempts int, logger *slog.Logger, reset func() error, op func() error) error {
	var lastErr error
	for attempt := 0; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		logger.Debug("browser call failed", "attempt", attempt+1, "error", err)
		if attempt == attempts {
			break
		}
		sleepFn(backoff(attempt))
		if reset != nil {
			if err := reset(); err != nil {
				lastErr = err
				logger.Debug("browser reset failed", "attempt", attempt+1, "error", err)
			}
		}
	}
	return errors.Join(ErrUnavailable, lastErr)
}

func backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return 250 * time.Millisecond << attempt
}
