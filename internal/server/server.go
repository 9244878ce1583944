// Package server exposes the pipeline state on a local HTTP port.
package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/yourorg/trainlink/internal/interp"
	"github.com/yourorg/trainlink/internal/notify"
	"github.com/yourorg/trainlink/internal/store"
	"github.com/yourorg/trainlink/internal/watcher"
)

var (
	//go:embed status.html
	statusHTML string

	statusTemplate = template.Must(template.New("status").Parse(statusHTML))
)

// StatusSource reports the live run.
type StatusSource interface {
	Snapshot() interp.Snapshot
}

// StatsSource reports capture counters.
type StatsSource interface {
	Stats() watcher.Stats
}

type Options struct {
	Status        StatusSource
	Store         store.Store
	Notifications *notify.Center
	Stats         StatsSource
	Logger        *slog.Logger
}

// Server serves the status page and JSON API.
type Server struct {
	opts Options
	log  *slog.Logger
	mux  *http.ServeMux
}

type pageData struct {
	Snapshot interp.Snapshot
	Helper   template.HTML
	Notes    []notify.Notification
	Watcher  watcher.Stats
}

// New constructs a Server with routes registered.
func New(opts Options) (*Server, error) {
	if opts.Status == nil {
		return nil, errors.New("status source is nil")
	}
	if opts.Store == nil {
		return nil, errors.New("store is nil")
	}
	if opts.Notifications == nil {
		return nil, errors.New("notification center is nil")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	srv := &Server{
		opts: opts,
		log:  opts.Logger,
		mux:  http.NewServeMux(),
	}
	srv.registerRoutes()
	return srv, nil
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Serve listens on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	hs := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = hs.Shutdown(shutdownCtx)
	}()
	s.log.Info("status server listening", "addr", ln.Addr().String())
	if err := hs.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/", s.handleIndex)

	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/helper", s.handleHelper)
	s.mux.HandleFunc("/api/runs", s.handleRuns)
	s.mux.HandleFunc("/api/runs/", s.handleRunRoutes)
	s.mux.HandleFunc("/api/notifications", s.handleNotifications)
	s.mux.HandleFunc("/api/notifications/", s.handleNotificationRoutes)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap := s.opts.Status.Snapshot()
	data := pageData{
		Snapshot: snap,
		// the helper engine escapes every value it renders
		Helper:  template.HTML(snap.HelperHTML),
		Notes:   s.opts.Notifications.Active(),
		Watcher: s.stats(),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := statusTemplate.Execute(w, data); err != nil {
		s.log.Warn("render status page", "error", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := struct {
		Run     interp.Snapshot `json:"run"`
		Watcher watcher.Stats   `json:"watcher"`
	}{
		Run:     s.opts.Status.Snapshot(),
		Watcher: s.stats(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHelper(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	html := s.opts.Status.Snapshot().HelperHTML
	if html == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(html))
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	runs, err := s.opts.Store.ListRuns()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleRunRoutes(w http.ResponseWriter, r *http.Request) {
	id, tail, ok := splitPath(r.URL.Path, "/api/runs/")
	if !ok || id == "" || tail != "" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	run, err := s.opts.Store.GetRun(id)
	if err != nil {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Notifications.Active())
}

// handleNotificationRoutes serves DELETE /api/notifications/{id}.
func (s *Server) handleNotificationRoutes(w http.ResponseWriter, r *http.Request) {
	id, tail, ok := splitPath(r.URL.Path, "/api/notifications/")
	if !ok || id == "" || tail != "" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.opts.Notifications.Dismiss(id) {
		http.Error(w, "notification not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) stats() watcher.Stats {
	if s.opts.Stats == nil {
		return watcher.Stats{}
	}
	return s.opts.Stats.Stats()
}

func splitPath(fullPath, prefix string) (string, string, bool) {
	if !strings.HasPrefix(fullPath, prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(fullPath, prefix)
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	tail := ""
	if len(parts) > 1 {
		tail = strings.Join(parts[1:], "/")
	}
	return id, tail, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
