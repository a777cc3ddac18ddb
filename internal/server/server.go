// Package server provides the optional HTTP surface of the tracker: health,
// the live session, its end and reset triggers, a websocket relay of session
// records for browsers, and the wall registry.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ayusman/cragtrack/internal/server/api"
	"github.com/ayusman/cragtrack/internal/store"
)

// Controller is the live session as seen from HTTP.
type Controller interface {
	// Latest returns the most recent session record, if any.
	Latest() ([]byte, bool)
	// EndSession ends the session and returns its final record.
	EndSession() ([]byte, error)
	// ResetHolds clears every hold and returns the reset record.
	ResetHolds() ([]byte, error)
	// Stats returns pipeline counters for the health endpoint.
	Stats() any
}

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	Session   Controller
	Hub       *Hub
}

// Server represents the HTTP server.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Session != nil {
		s.mux.HandleFunc("/api/session", s.handleSession)
		s.mux.HandleFunc("/api/session/end", s.handleEnd)
		s.mux.HandleFunc("/api/holds/reset", s.handleReset)
	}

	if s.config.Hub != nil {
		s.mux.Handle("/ws/session", s.config.Hub)
	}

	if s.config.Store != nil {
		walls := api.NewWallHandler(s.config.Store)
		sessions := api.NewSessionsHandler(s.config.Store)
		s.mux.Handle("/api/walls", walls)
		s.mux.Handle("/api/walls/", walls)
		s.mux.Handle("/api/sessions", sessions)
		s.mux.Handle("/api/sessions/", sessions)
	}

	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if s.config.Session != nil {
		response["pipeline"] = s.config.Session.Stats()
	}
	if s.config.Hub != nil {
		response["viewers"] = s.config.Hub.Clients()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// handleSession handles GET /api/session with the latest record.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rec, ok := s.config.Session.Latest()
	if !ok {
		writeError(w, http.StatusNotFound, "No session record yet")
		return
	}
	writeRecord(w, http.StatusOK, rec)
}

// handleEnd handles POST /api/session/end.
func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rec, err := s.config.Session.EndSession()
	if err != nil && rec == nil {
		slog.Error("server: end session failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to end session")
		return
	}
	if err != nil {
		// The session ended and the record went out; only storing it failed.
		slog.Error("server: session ended but not stored", "error", err)
	}
	writeRecord(w, http.StatusOK, rec)
}

// handleReset handles POST /api/holds/reset.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rec, err := s.config.Session.ResetHolds()
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeRecord(w, http.StatusOK, rec)
}

func writeRecord(w http.ResponseWriter, status int, rec []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(rec)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server: listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	if s.config.Hub != nil {
		s.config.Hub.Close()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Info("server: stopped")
	return nil
}
