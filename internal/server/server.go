// Package server exposes the registration, custom-event and calendar
// surfaces over HTTP. It is a thin layer: every mutation goes through
// the same engine path the CLI uses, and responds only after the
// synchronous rebuild so clients immediately observe their own writes.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"roostersync/internal/events"
	"roostersync/internal/logging"
	"roostersync/internal/sync"
	"roostersync/internal/userstore"
)

// Server provides the HTTP API and serves the emitted calendar files.
type Server struct {
	users     *userstore.Store
	engine    *sync.Engine
	outputDir string
	mux       *http.ServeMux
}

// NewServer constructs a Server.
func NewServer(users *userstore.Store, engine *sync.Engine, outputDir string) *Server {
	s := &Server{
		users:     users,
		engine:    engine,
		outputDir: outputDir,
		mux:       http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	s.mux.HandleFunc("POST /{$}", s.handleRegister)
	s.mux.HandleFunc("POST /login", s.handleLogin)
	s.mux.HandleFunc("POST /new", s.handleNew)
	s.mux.HandleFunc("POST /update", s.handleUpdate)
	s.mux.HandleFunc("POST /remove", s.handleRemove)
	s.mux.HandleFunc("GET /api/events", s.handleListEvents)

	// Calendar files: /<username>.ics, /<username><N>.ics
	s.mux.HandleFunc("GET /", s.handleCalendar)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// registerRequest mirrors the JSON the web front-end posts.
type registerRequest struct {
	Username     string   `json:"username"`
	Password     string   `json:"password"`
	Summaries    []string `json:"summaries"`
	Frequency    int      `json:"frequency"`
	Descriptions bool     `json:"descriptions"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	cfg := &userstore.UserConfig{
		Username:       req.Username,
		Password:       req.Password,
		Summaries:      req.Summaries,
		Descriptions:   req.Descriptions,
		RefreshSeconds: req.Frequency,
	}
	if err := s.users.Register(cfg); err != nil {
		if errors.Is(err, userstore.ErrExists) {
			writeError(w, http.StatusConflict, "user already exists")
			return
		}
		slog.Error("register failed", logging.User(req.Username), logging.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to register user")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "registered"})
}

// handleLogin checks that a local record exists for the posted username.
// The body is the bare username, as the web front-end sends it.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1024))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	username := strings.TrimSpace(string(body))
	if username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}

	if _, err := s.users.Load(username); err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown user")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// eventRequest carries a custom-event mutation. Times are RFC 3339.
type eventRequest struct {
	Username    string    `json:"username"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Description string    `json:"description"`

	// OrigStart/OrigEnd address the event being updated.
	OrigStart time.Time `json:"origStart"`
	OrigEnd   time.Time `json:"origEnd"`
}

func (s *Server) handleNew(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !validSpan(w, req.Start, req.End) {
		return
	}

	if err := s.engine.AddCustomEvent(req.Username, req.Start, req.End, req.Description); err != nil {
		s.writeStoreError(w, req.Username, "add custom event", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "added"})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !validSpan(w, req.Start, req.End) {
		return
	}

	outcome, err := s.engine.UpdateCustomEvent(req.Username, req.OrigStart, req.OrigEnd, req.Start, req.End)
	if err != nil {
		s.writeStoreError(w, req.Username, "update custom event", err)
		return
	}

	status := "updated"
	if outcome == events.UpdateNoMatch {
		status = "no_match"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.engine.RemoveCustomEvent(req.Username, req.Start, req.End); err != nil {
		s.writeStoreError(w, req.Username, "remove custom event", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}

	cfg, err := s.users.Load(username)
	if err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown user")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	writeJSON(w, http.StatusOK, cfg.CustomEvents)
}

// handleCalendar serves the emitted .ics files from the output
// directory. Only flat file names are accepted.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/")
	if name == "" || name != filepath.Base(name) || !strings.HasSuffix(name, ".ics") {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	http.ServeFile(w, r, filepath.Join(s.outputDir, name))
}

func (s *Server) writeStoreError(w http.ResponseWriter, username, op string, err error) {
	if errors.Is(err, userstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown user")
		return
	}
	slog.Error(op+" failed", logging.User(username), logging.Err(err))
	writeError(w, http.StatusInternalServerError, op+" failed")
}

func validSpan(w http.ResponseWriter, start, end time.Time) bool {
	if start.IsZero() || end.IsZero() {
		writeError(w, http.StatusBadRequest, "start and end are required")
		return false
	}
	if !end.After(start) {
		writeError(w, http.StatusBadRequest, "end must be after start")
		return false
	}
	return true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", logging.Err(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
