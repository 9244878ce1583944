// Package watcher polls the capture directory and feeds decoded messages to
// the interpreter in capture order.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/yourorg/trainlink/internal/capture"
	"github.com/yourorg/trainlink/internal/notify"
	"github.com/yourorg/trainlink/internal/tracker"
	"github.com/yourorg/trainlink/pkg/types"
)

// Decoder turns one capture file into a message.
type Decoder interface {
	Decode(f types.CaptureFile) (types.Message, error)
}

// Handler consumes decoded messages.
type Handler interface {
	Handle(ctx context.Context, dir types.Direction, msg types.Message) error
}

type Options struct {
	Dir          string
	PollInterval time.Duration
	// Watch wakes the loop on directory events in addition to the ticker.
	Watch    bool
	Decoder  Decoder
	Handler  Handler
	Tracker  *tracker.Tracker
	Notifier notify.Notifier
	Logger   *slog.Logger
}

// Stats counts what the watcher did since it started.
type Stats struct {
	Processed int64 `json:"processed"`
	Stale     int64 `json:"stale"`
	Failed    int64 `json:"failed"`
}

type Watcher struct {
	opts Options
	log  *slog.Logger

	processed atomic.Int64
	stale     atomic.Int64
	failed    atomic.Int64
}

func New(opts Options) *Watcher {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Discard{Logger: opts.Logger}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 250 * time.Millisecond
	}
	return &Watcher{opts: opts, log: opts.Logger}
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	var wake <-chan fsnotify.Event
	var watchErrs <-chan error
	if w.opts.Watch {
		fw, err := fsnotify.NewWatcher()
		if err == nil {
			err = fw.Add(w.opts.Dir)
		}
		if err != nil {
			w.log.Warn("directory events unavailable, polling only", "dir", w.opts.Dir, "error", err)
		} else {
			defer fw.Close()
			wake, watchErrs = fw.Events, fw.Errors
		}
	}

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	w.log.Info("watching capture directory", "dir", w.opts.Dir, "interval", w.opts.PollInterval, "events", wake != nil)
	w.Scan(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Scan(ctx)
		case ev, ok := <-wake:
			if !ok {
				wake = nil
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.Scan(ctx)
			}
		case err, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
				continue
			}
			w.log.Warn("directory watch error", "error", err)
		}
	}
}

// Scan processes every capture file currently present, oldest first.
func (w *Watcher) Scan(ctx context.Context) {
	files, err := capture.List(w.opts.Dir)
	if err != nil {
		w.opts.Notifier.NotifyOnce("capture-dir:"+err.Error(), notify.Error,
			"Capture directory unreadable", err.Error())
		return
	}
	for _, f := range files {
		if ctx.Err() != nil {
			return
		}
		w.process(ctx, f)
	}
}

func (w *Watcher) process(ctx context.Context, f types.CaptureFile) {
	t := w.opts.Tracker
	if t.IsStale(f) {
		w.stale.Add(1)
		w.remove(f.Path)
		return
	}
	if !t.ShouldProcess(f) {
		return
	}

	msg, err := w.opts.Decoder.Decode(f)
	var decErr *capture.DecodeError
	switch {
	case errors.As(err, &decErr):
		w.failed.Add(1)
		w.opts.Notifier.Notify(notify.Warning, "Unreadable capture file",
			fmt.Sprintf("%s was not a valid message and was discarded: %v", f.Path, decErr.Err))
		t.MarkHandled(f.Path)
		w.remove(f.Path)
		return
	case err != nil:
		if t.ReadFailed(f.Path, err) {
			w.failed.Add(1)
			return
		}
		// still being written or locked; the next scan retries
		w.log.Debug("capture file not readable yet", "path", f.Path, "error", err)
		return
	}

	if err := w.opts.Handler.Handle(ctx, f.Direction, msg); err != nil {
		w.log.Warn("message handling failed", "path", f.Path, "direction", f.Direction, "error", err)
	}
	w.processed.Add(1)
	t.MarkHandled(f.Path)
	w.remove(f.Path)
}

func (w *Watcher) remove(path string) {
	if err := w.opts.Tracker.Remove(path); err != nil {
		w.log.Debug("capture file left in place", "path", path, "error", err)
	}
}

func (w *Watcher) Stats() Stats {
	return Stats{
		Processed: w.processed.Load(),
		Stale:     w.stale.Load(),
		Failed:    w.failed.Load(),
	}
}
