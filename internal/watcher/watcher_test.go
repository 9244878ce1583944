package watcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/yourorg/trainlink/internal/capture"
	"github.com/yourorg/trainlink/internal/notify"
	"github.com/yourorg/trainlink/internal/tracker"
	"github.com/yourorg/trainlink/pkg/types"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeDecoder struct {
	mu      sync.Mutex
	fail    map[string]error
	decoded []string
}

func (d *fakeDecoder) Decode(f types.CaptureFile) (types.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	name := filepath.Base(f.Path)
	if err, ok := d.fail[name]; ok {
		return nil, err
	}
	d.decoded = append(d.decoded, name)
	return types.Message{"name": name}, nil
}

type recordingHandler struct {
	mu   sync.Mutex
	seen []string
	err  error
}

func (h *recordingHandler) Handle(_ context.Context, dir types.Direction, msg types.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, dir.String()+":"+msg.String("name"))
	return h.err
}

type countNotifier struct {
	mu    sync.Mutex
	count int
}

func (n *countNotifier) Notify(notify.Level, string, string) {
	n.mu.Lock()
	n.count++
	n.mu.Unlock()
}

func (n *countNotifier) NotifyOnce(_ string, l notify.Level, title, msg string) {
	n.Notify(l, title, msg)
}

const startMs = 1700000000000

func capFile(t *testing.T, dir string, stamp int64, response bool, mod time.Time) string {
	t.Helper()
	name := strconv.FormatInt(stamp, 10)
	if response {
		name += "R"
	}
	p := filepath.Join(dir, name+capture.Ext)
	if err := os.WriteFile(p, []byte{0x80}, 0o644); err != nil {
		t.Fatal(err)
	}
	if mod.IsZero() {
		return p
	}
	if err := os.Chtimes(p, mod, mod); err != nil {
		t.Fatal(err)
	}
	return p
}

func newWatcher(dir string, dec Decoder, h Handler, n notify.Notifier) *Watcher {
	tr := tracker.New(time.UnixMilli(startMs), tracker.Options{
		RemoveRetries: 0,
		Notifier:      n,
		Logger:        quiet,
	})
	return New(Options{
		Dir:      dir,
		Decoder:  dec,
		Handler:  h,
		Tracker:  tr,
		Notifier: n,
		Logger:   quiet,
	})
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func TestScanProcessesInOrderAndDropsStale(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Minute).Truncate(time.Second)
	stale := capFile(t, dir, startMs-5000, true, base)
	req := capFile(t, dir, startMs+100, false, base.Add(time.Second))
	resp := capFile(t, dir, startMs+100, true, base.Add(time.Second))
	later := capFile(t, dir, startMs+900, false, base.Add(2*time.Second))

	dec := &fakeDecoder{}
	h := &recordingHandler{}
	w := newWatcher(dir, dec, h, &countNotifier{})
	w.Scan(context.Background())

	want := []string{
		"request:" + filepath.Base(req),
		"response:" + filepath.Base(resp),
		"request:" + filepath.Base(later),
	}
	if len(h.seen) != len(want) {
		t.Fatalf("handled %v, want %v", h.seen, want)
	}
	for i := range want {
		if h.seen[i] != want[i] {
			t.Fatalf("handled %v, want %v", h.seen, want)
		}
	}
	if len(dec.decoded) != 3 {
		t.Fatalf("stale file must not be decoded, decoded %v", dec.decoded)
	}
	for _, p := range []string{stale, req, resp, later} {
		if exists(p) {
			t.Fatalf("%s should have been removed", p)
		}
	}
	st := w.Stats()
	if st.Processed != 3 || st.Stale != 1 || st.Failed != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestScanDiscardsUndecodableFile(t *testing.T) {
	dir := t.TempDir()
	bad := capFile(t, dir, startMs+1, true, time.Now().Add(-time.Second))
	dec := &fakeDecoder{fail: map[string]error{
		filepath.Base(bad): &capture.DecodeError{Path: bad, Err: errors.New("not a map")},
	}}
	h := &recordingHandler{}
	n := &countNotifier{}
	w := newWatcher(dir, dec, h, n)
	w.Scan(context.Background())

	if len(h.seen) != 0 {
		t.Fatalf("undecodable file must not be dispatched")
	}
	if exists(bad) {
		t.Fatalf("undecodable file should be removed")
	}
	if n.count != 1 || w.Stats().Failed != 1 {
		t.Fatalf("expected one notification and one failure, got %d / %+v", n.count, w.Stats())
	}
}

func TestScanRetriesUnreadableFileLater(t *testing.T) {
	dir := t.TempDir()
	p := capFile(t, dir, startMs+1, false, time.Now().Add(-time.Second))
	dec := &fakeDecoder{fail: map[string]error{filepath.Base(p): errors.New("locked")}}
	h := &recordingHandler{}
	w := newWatcher(dir, dec, h, &countNotifier{})

	w.Scan(context.Background())
	if !exists(p) || len(h.seen) != 0 {
		t.Fatalf("locked file must stay for the next scan")
	}

	dec.mu.Lock()
	delete(dec.fail, filepath.Base(p))
	dec.mu.Unlock()
	w.Scan(context.Background())
	if exists(p) || len(h.seen) != 1 {
		t.Fatalf("file should be handled once readable, seen %v", h.seen)
	}
}

func TestScanGivesUpOnPersistentlyUnreadableFile(t *testing.T) {
	dir := t.TempDir()
	p := capFile(t, dir, startMs+1, false, time.Now().Add(-time.Second))
	dec := &fakeDecoder{fail: map[string]error{
		filepath.Base(p): errors.New("capture file locked after 11 attempts"),
	}}
	h := &recordingHandler{}
	n := &countNotifier{}
	w := newWatcher(dir, dec, h, n)

	for i := 0; i < tracker.DefaultReadFailures-1; i++ {
		w.Scan(context.Background())
	}
	if n.count != 0 || w.Stats().Failed != 0 {
		t.Fatalf("gave up too early: notifications=%d stats=%+v", n.count, w.Stats())
	}
	for i := 0; i < 50; i++ {
		w.Scan(context.Background())
	}
	if !w.opts.Tracker.IsSkipped(p) {
		t.Fatalf("expected the file in the skip-set")
	}
	if n.count != 1 || w.Stats().Failed != 1 {
		t.Fatalf("expected one notification and one failure, got %d / %+v", n.count, w.Stats())
	}
	if !exists(p) || len(h.seen) != 0 {
		t.Fatalf("skipped file must be left alone and never dispatched")
	}
}

func TestHandlerErrorStillConsumesFile(t *testing.T) {
	dir := t.TempDir()
	p := capFile(t, dir, startMs+1, true, time.Now().Add(-time.Second))
	h := &recordingHandler{err: errors.New("rule failed")}
	w := newWatcher(dir, &fakeDecoder{}, h, &countNotifier{})
	w.Scan(context.Background())
	w.Scan(context.Background())

	if exists(p) {
		t.Fatalf("file should be removed even when handling failed")
	}
	if len(h.seen) != 1 {
		t.Fatalf("expected exactly one dispatch, got %v", h.seen)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	h := &recordingHandler{}
	w := newWatcher(dir, &fakeDecoder{}, h, &countNotifier{})
	w.opts.PollInterval = 10 * time.Millisecond
	w.opts.Watch = true

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	capFile(t, dir, startMs+1, true, time.Time{})
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.mu.Lock()
		n := len(h.seen)
		h.mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.seen) != 1 {
		t.Fatalf("expected the new file to be handled, got %v", h.seen)
	}
}
