package browser

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/go-rod/rod"

	"github.com/yourorg/trainlink/internal/config"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func stubSleep(t *testing.T) *[]time.Duration {
	t.Helper()
	orig := sleepFn
	var waits []time.Duration
	sleepFn = func(d time.Duration) { waits = append(waits, d) }
	t.Cleanup(func() { sleepFn = orig })
	return &waits
}

func TestWithRetryRecoversAfterReset(t *testing.T) {
	waits := stubSleep(t)
	calls, resets := 0, 0
	err := withRetry(context.Background(), 3, quiet(), func() error {
		resets++
		return nil
	}, func() error {
		calls++
		if calls < 3 {
			return errors.New("target closed")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 || resets != 2 {
		t.Fatalf("calls=%d resets=%d", calls, resets)
	}
	if len(*waits) != 2 || (*waits)[1] <= (*waits)[0] {
		t.Fatalf("expected growing backoff, got %v", *waits)
	}
}

func TestWithRetryGivesUp(t *testing.T) {
	stubSleep(t)
	calls := 0
	err := withRetry(context.Background(), 2, quiet(), nil, func() error {
		calls++
		return errors.New("no route")
	})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestWithRetryStopsOnCancel(t *testing.T) {
	stubSleep(t)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := withRetry(ctx, 5, quiet(), nil, func() error {
		calls++
		cancel()
		return errors.New("boom")
	})
	if !errors.Is(err, context.Canceled) || calls != 1 {
		t.Fatalf("expected cancel after one call, got %v (%d calls)", err, calls)
	}
}

func TestRodScriptWithoutTabFails(t *testing.T) {
	r := NewRod(config.BrowserConfig{Retries: 1}, quiet())
	if _, err := r.ExecuteScript(context.Background(), "() => 1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if r.IsAlive(context.Background()) {
		t.Fatalf("expected not alive")
	}
}

func TestRodResetClosesOldTab(t *testing.T) {
	r := NewRod(config.BrowserConfig{}, quiet())
	var closed []*rod.Page
	r.closePage = func(p *rod.Page) error {
		closed = append(closed, p)
		return errors.New("target closed")
	}
	stale := &rod.Page{}
	r.page = stale

	if err := r.resetPageLocked(); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if len(closed) != 1 || closed[0] != stale {
		t.Fatalf("expected the old tab closed once, got %d", len(closed))
	}
	if r.page != nil {
		t.Fatalf("expected the tab dropped")
	}
	if err := r.resetPageLocked(); err != nil || len(closed) != 1 {
		t.Fatalf("reset without a tab must not close anything")
	}
}

func TestDisabledAdapter(t *testing.T) {
	var a Adapter = Disabled{}
	if err := a.EnsureOpen(context.Background(), "https://example.com"); err != nil {
		t.Fatal(err)
	}
	if a.IsAlive(context.Background()) || a.URL() != "" {
		t.Fatalf("disabled adapter must report closed")
	}
}
