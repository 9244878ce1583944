// Package tracker decides which capture files get processed and removes them
// afterwards, at most once per file.
package tracker

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/yourorg/trainlink/internal/notify"
	"github.com/yourorg/trainlink/pkg/types"
)

// ErrSkipped is returned by Remove when a file was given up on.
var ErrSkipped = errors.New("capture file skipped permanently")

// SkipStore persists the permanent skip-set across restarts.
type SkipStore interface {
	AddSkipped(path, reason string) error
	IsSkipped(path string) (bool, error)
}

// DefaultReadFailures is how many scans may fail to read a file before it
// is skipped.
const DefaultReadFailures = 5

type Options struct {
	RemoveRetries    int
	RemoveRetryDelay time.Duration
	// ReadFailures bounds the scans that may fail to read one file.
	ReadFailures int
	Store        SkipStore
	Notifier     notify.Notifier
	Logger       *slog.Logger
}

var sleepFn = time.Sleep

type Tracker struct {
	start    time.Time
	retries  int
	delay    time.Duration
	maxReads int
	store    SkipStore
	notifier notify.Notifier
	logger   *slog.Logger
	remove   func(string) error

	mu        sync.Mutex
	skipped   map[string]struct{}
	handled   map[string]struct{}
	readFails map[string]int
}

// New creates a tracker whose watermark is start: anything captured earlier is stale.
func New(start time.Time, opts Options) *Tracker {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Discard{Logger: opts.Logger}
	}
	if opts.ReadFailures <= 0 {
		opts.ReadFailures = DefaultReadFailures
	}
	return &Tracker{
		start:     start,
		retries:   opts.RemoveRetries,
		delay:     opts.RemoveRetryDelay,
		maxReads:  opts.ReadFailures,
		store:     opts.Store,
		notifier:  opts.Notifier,
		logger:    opts.Logger,
		remove:    os.Remove,
		skipped:   make(map[string]struct{}),
		handled:   make(map[string]struct{}),
		readFails: make(map[string]int),
	}
}

// Start returns the watermark.
func (t *Tracker) Start() time.Time {
	return t.start
}

// IsStale reports whether the file was captured before the watermark.
func (t *Tracker) IsStale(f types.CaptureFile) bool {
	return f.Timestamp.Before(t.start)
}

// ShouldProcess reports whether f must be decoded and dispatched.
// Stale, skip-listed and already handled files are not.
func (t *Tracker) ShouldProcess(f types.CaptureFile) bool {
	if t.IsStale(f) {
		return false
	}
	return !t.IsSkipped(f.Path) && !t.IsHandled(f.Path)
}

// MarkHandled records that f's side effects have been applied. A handled
// file is never dispatched again even if its removal keeps failing.
func (t *Tracker) MarkHandled(path string) {
	t.mu.Lock()
	t.handled[path] = struct{}{}
	t.mu.Unlock()
}

func (t *Tracker) IsHandled(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.handled[path]
	return ok
}

func (t *Tracker) IsSkipped(path string) bool {
	t.mu.Lock()
	_, ok := t.skipped[path]
	t.mu.Unlock()
	if ok {
		return true
	}
	if t.store == nil {
		return false
	}
	skipped, err := t.store.IsSkipped(path)
	if err != nil {
		t.logger.Warn("skip-set lookup failed", "path", path, "error", err)
		return false
	}
	if skipped {
		t.mu.Lock()
		t.skipped[path] = struct{}{}
		t.mu.Unlock()
	}
	return skipped
}

// Remove deletes path, retrying on failure. After the last failed attempt the
// path joins the permanent skip-set and ErrSkipped is returned.
func (t *Tracker) Remove(path string) error {
	if t.IsSkipped(path) {
		return ErrSkipped
	}
	var lastErr error
	for attempt := 0; attempt <= t.retries; attempt++ {
		err := t.remove(path)
		if err == nil || errors.Is(err, os.ErrNotExist) {
			t.forget(path)
			return nil
		}
		lastErr = err
		t.logger.Debug("remove capture failed", "path", path, "attempt", attempt+1, "error", err)
		if attempt < t.retries {
			sleepFn(t.delay)
		}
	}

	t.skip(path, lastErr.Error())
	t.notifier.Notify(notify.Warning, "Capture file could not be removed",
		fmt.Sprintf("%s is locked and will be ignored from now on: %v", path, lastErr))
	return fmt.Errorf("%w: %s: %v", ErrSkipped, path, lastErr)
}

// ReadFailed records a scan that could not read path. Once the file has
// failed on ReadFailures scans it joins the permanent skip-set and
// ReadFailed reports true.
func (t *Tracker) ReadFailed(path string, err error) bool {
	t.mu.Lock()
	t.readFails[path]++
	n := t.readFails[path]
	t.mu.Unlock()
	if n < t.maxReads {
		return false
	}

	t.skip(path, err.Error())
	t.notifier.Notify(notify.Warning, "Capture file could not be read",
		fmt.Sprintf("%s stayed unreadable after %d scans and will be ignored from now on: %v", path, n, err))
	return true
}

// forget drops bookkeeping for a removed file; a new file with the same name
// is a new capture.
func (t *Tracker) forget(path string) {
	t.mu.Lock()
	delete(t.handled, path)
	delete(t.readFails, path)
	t.mu.Unlock()
}

func (t *Tracker) skip(path, reason string) {
	t.mu.Lock()
	t.skipped[path] = struct{}{}
	delete(t.readFails, path)
	t.mu.Unlock()
	if t.store != nil {
		if err := t.store.AddSkipped(path, reason); err != nil {
			t.logger.Warn("persist skipped file failed", "path", path, "error", err)
		}
	}
	t.logger.Warn("capture file skipped permanently", "path", path, "reason", reason)
}
