package notify

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyOnceSuppressesRepeats(t *testing.T) {
	c := NewCenter(10, 0, quietLogger())
	c.NotifyOnce("k", Warning, "branch failed", "boom")
	c.NotifyOnce("k", Warning, "branch failed", "boom")
	c.NotifyOnce("other", Error, "decode failed", "bad bytes")

	active := c.Active()
	if len(active) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(active))
	}
	if active[0].Title != "decode failed" {
		t.Fatalf("expected newest first, got %s", active[0].Title)
	}
}

func TestActiveDropsExpired(t *testing.T) {
	c := NewCenter(10, time.Minute, quietLogger())
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }
	c.Notify(Info, "a", "")
	c.now = func() time.Time { return base.Add(2 * time.Minute) }
	c.Notify(Info, "b", "")

	active := c.Active()
	if len(active) != 1 || active[0].Title != "b" {
		t.Fatalf("expected only unexpired notification, got %+v", active)
	}
}

func TestRingAndDismiss(t *testing.T) {
	c := NewCenter(2, 0, quietLogger())
	c.Notify(Info, "a", "")
	c.Notify(Info, "b", "")
	c.Notify(Info, "c", "")

	active := c.Active()
	if len(active) != 2 || active[1].Title != "b" {
		t.Fatalf("expected ring of 2, got %+v", active)
	}
	if !c.Dismiss(active[0].ID) {
		t.Fatalf("expected dismiss to find notification")
	}
	if c.Dismiss("missing") {
		t.Fatalf("expected dismiss of unknown id to fail")
	}
	if len(c.Active()) != 1 {
		t.Fatalf("expected 1 notification after dismiss")
	}
}
