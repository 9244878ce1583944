package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/yourorg/trainlink/internal/interp"
	"github.com/yourorg/trainlink/internal/notify"
	"github.com/yourorg/trainlink/internal/presence"
	"github.com/yourorg/trainlink/internal/store"
	"github.com/yourorg/trainlink/internal/watcher"
	"github.com/yourorg/trainlink/pkg/types"
)

type fixedStatus struct {
	snap interp.Snapshot
}

func (f *fixedStatus) Snapshot() interp.Snapshot { return f.snap }

type fixedStats struct{}

func (fixedStats) Stats() watcher.Stats { return watcher.Stats{Processed: 7, Stale: 2} }

func newTestServer(t *testing.T) (*Server, *store.SQLiteStore, *fixedStatus, *notify.Center) {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "trainlink.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	status := &fixedStatus{}
	center := notify.NewCenter(10, time.Minute, logger)
	srv, err := New(Options{
		Status:        status,
		Store:         st,
		Notifications: center,
		Stats:         fixedStats{},
		Logger:        logger,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv, st, status, center
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServerRunsEmpty(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	rec := get(t, srv, "/api/runs")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var runs []types.Run
	if err := json.NewDecoder(rec.Body).Decode(&runs); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected no runs, got %d", len(runs))
	}
}

func TestServerRunDetail(t *testing.T) {
	srv, st, _, _ := newTestServer(t)

	run, err := st.StartRun("1700000000:100101:1", 100101, 1, 1700000000, "/tmp/a.gz")
	if err != nil {
		t.Fatalf("start run: %v", err)
	}

	rec := get(t, srv, "/api/runs/"+run.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("detail status = %d", rec.Code)
	}
	var got types.Run
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if got.ID != run.ID || got.CardID != 100101 || got.Status != types.RunRunning {
		t.Fatalf("unexpected run: %+v", got)
	}

	if rec := get(t, srv, "/api/runs/missing"); rec.Code != http.StatusNotFound {
		t.Fatalf("missing run status = %d", rec.Code)
	}
	if rec := get(t, srv, "/api/runs/"+run.ID+"/extra"); rec.Code != http.StatusNotFound {
		t.Fatalf("nested path status = %d", rec.Code)
	}
}

func TestServerStatusAndHelper(t *testing.T) {
	srv, _, status, _ := newTestServer(t)

	if rec := get(t, srv, "/api/helper"); rec.Code != http.StatusNoContent {
		t.Fatalf("helper without table status = %d", rec.Code)
	}

	status.snap = interp.Snapshot{
		Running:    true,
		RunID:      "run-1",
		Scenario:   "Season Cup",
		Turn:       12,
		Status:     presence.Status{Details: "Training", State: "Turn 12"},
		HelperHTML: `<div class="trainlink-helper"></div>`,
	}

	rec := get(t, srv, "/api/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Run     interp.Snapshot `json:"run"`
		Watcher watcher.Stats   `json:"watcher"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !resp.Run.Running || resp.Run.Turn != 12 || resp.Watcher.Processed != 7 {
		t.Fatalf("unexpected status: %+v", resp)
	}

	rec = get(t, srv, "/api/helper")
	if rec.Code != http.StatusOK || rec.Body.String() != status.snap.HelperHTML {
		t.Fatalf("helper = %d %q", rec.Code, rec.Body.String())
	}
}

func TestServerNotifications(t *testing.T) {
	srv, _, _, center := newTestServer(t)
	center.Notify(notify.Warning, "Browser unavailable", "retry later")

	rec := get(t, srv, "/api/notifications")
	var notes []notify.Notification
	if err := json.NewDecoder(rec.Body).Decode(&notes); err != nil {
		t.Fatalf("decode notifications: %v", err)
	}
	if len(notes) != 1 || notes[0].Title != "Browser unavailable" {
		t.Fatalf("unexpected notifications: %+v", notes)
	}

	del := httptest.NewRecorder()
	srv.Handler().ServeHTTP(del, httptest.NewRequest(http.MethodDelete, "/api/notifications/"+notes[0].ID, nil))
	if del.Code != http.StatusNoContent {
		t.Fatalf("dismiss status = %d", del.Code)
	}
	if len(center.Active()) != 0 {
		t.Fatalf("notification not dismissed")
	}

	del = httptest.NewRecorder()
	srv.Handler().ServeHTTP(del, httptest.NewRequest(http.MethodDelete, "/api/notifications/"+notes[0].ID, nil))
	if del.Code != http.StatusNotFound {
		t.Fatalf("second dismiss status = %d", del.Code)
	}
}

func TestServerIndexHTML(t *testing.T) {
	srv, _, status, center := newTestServer(t)
	status.snap = interp.Snapshot{
		Running:    true,
		Status:     presence.Status{Details: "Racing"},
		HelperHTML: `<table data-row="energy"></table>`,
	}
	center.Notify(notify.Error, "Capture <dir>", "missing")

	rec := get(t, srv, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.Bytes()
	if !bytes.Contains(body, []byte(`<table data-row="energy">`)) {
		t.Fatalf("helper table should be embedded unescaped")
	}
	if !bytes.Contains(body, []byte("Capture &lt;dir&gt;")) {
		t.Fatalf("notification text should be escaped")
	}
	if rec := get(t, srv, "/nope"); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown path status = %d", rec.Code)
	}
}
