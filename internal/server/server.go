// Package server exposes the render coordinator over HTTP: session
// creation, status, field download, PNG preview, SSE progress streaming,
// and cooperative cancellation. It is a thin front-end over
// internal/render.Coordinator; nothing in here is part of the compute
// core's tested contract.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"image/png"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"strings"
	"time"

	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/palette"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/render"
)

// Server represents the HTTP server
type Server struct {
	coordinator *render.Coordinator
	addr        string
	server      *http.Server
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewServer creates a new HTTP server around an existing coordinator.
// The coordinator's own store configuration decides whether finished
// sessions are persisted; the server never touches the store directly.
func NewServer(addr string, coordinator *render.Coordinator) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		coordinator: coordinator,
		addr:        addr,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	mux := http.NewServeMux()

	// Register API routes
	mux.HandleFunc("/api/v1/renders", s.handleRenders)
	mux.HandleFunc("/api/v1/renders/", s.handleRendersWithID)

	// Register pprof routes for profiling
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	// Wrap with middleware
	handler := s.loggingMiddleware(s.corsMiddleware(mux))

	s.server = &http.Server{
		Addr:    s.addr,
		Handler: handler,
	}

	slog.Info("Starting HTTP server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server")

	// Cancel server context so in-flight renders stop dispatching tiles
	s.cancel()

	// Request cooperative cancellation of every still-running session;
	// the coordinator persists each one as it reaches its terminal state.
	s.cancelRunningSessions()

	// Shutdown HTTP server
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// cancelRunningSessions cancels every session that has not reached a
// terminal state yet, so a server shutdown never leaves a render spinning.
func (s *Server) cancelRunningSessions() {
	running := 0
	for _, session := range s.coordinator.ListSessions() {
		switch session.State {
		case render.Dispatching, render.Rendering, render.GlitchPass, render.Supersampling:
			s.coordinator.Cancel(session.ID)
			running++
		}
	}
	if running > 0 {
		slog.Info("Cancelled running render sessions on shutdown", "count", running)
	}
}

// handleRenders handles /api/v1/renders
func (s *Server) handleRenders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateRender(w, r)
	case http.MethodGet:
		s.handleListRenders(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleRendersWithID handles /api/v1/renders/:id/*
func (s *Server) handleRendersWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/renders/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Session ID required", http.StatusBadRequest)
		return
	}

	sessionID := parts[0]

	if len(parts) == 1 || parts[1] == "status" {
		s.handleGetRenderStatus(w, r, sessionID)
	} else if parts[1] == "field" {
		s.handleGetField(w, r, sessionID)
	} else if parts[1] == "preview.png" {
		s.handleGetPreview(w, r, sessionID)
	} else if parts[1] == "stream" {
		s.handleSessionStream(w, r, sessionID)
	} else if parts[1] == "cancel" {
		s.handleCancelRender(w, r, sessionID)
	} else {
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleCreateRender handles POST /api/v1/renders
func (s *Server) handleCreateRender(w http.ResponseWriter, r *http.Request) {
	var body RenderRequestJSON
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	req, err := body.ToRenderRequest()
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid render request: %v", err), http.StatusBadRequest)
		return
	}

	session := s.coordinator.CreateSession(req)
	s.coordinator.Start(s.ctx, session.ID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(sessionSummary(session))
}

// handleListRenders handles GET /api/v1/renders
func (s *Server) handleListRenders(w http.ResponseWriter, r *http.Request) {
	sessions := s.coordinator.ListSessions()

	summaries := make([]SessionSummaryJSON, 0, len(sessions))
	for _, session := range sessions {
		summaries = append(summaries, sessionSummary(session))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summaries)
}

// handleGetRenderStatus handles GET /api/v1/renders/:id/status
func (s *Server) handleGetRenderStatus(w http.ResponseWriter, r *http.Request, sessionID string) {
	session, exists := s.coordinator.GetSession(sessionID)
	if !exists {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	response := map[string]interface{}{
		"id":    session.ID,
		"state": session.State.String(),
		"stats": session.Stats,
	}
	if session.Err != nil {
		response["error"] = session.Err.Error()
		response["errorKind"] = session.Err.Kind.String()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleGetField handles GET /api/v1/renders/:id/field
func (s *Server) handleGetField(w http.ResponseWriter, r *http.Request, sessionID string) {
	session, exists := s.coordinator.GetSession(sessionID)
	if !exists {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if session.Field == nil {
		http.Error(w, "No field data yet", http.StatusNotFound)
		return
	}
	if session.State == render.Cancelled {
		// After cancellation the field contents are undefined and must
		// not be consumed.
		http.Error(w, "Render was cancelled; field is undefined", http.StatusGone)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(fieldResponse(session.Field))
}

// handleGetPreview handles GET /api/v1/renders/:id/preview.png
func (s *Server) handleGetPreview(w http.ResponseWriter, r *http.Request, sessionID string) {
	session, exists := s.coordinator.GetSession(sessionID)
	if !exists {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if session.Field == nil || session.State == render.Cancelled {
		http.Error(w, "No results yet", http.StatusNotFound)
		return
	}

	img := PreviewImage(session.Field, palette.Grayscale())

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")

	if err := png.Encode(w, img); err != nil {
		slog.Error("Failed to encode PNG", "error", err)
	}
}

// handleCancelRender handles POST /api/v1/renders/:id/cancel
func (s *Server) handleCancelRender(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	session, exists := s.coordinator.GetSession(sessionID)
	if !exists {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	s.coordinator.Cancel(sessionID)
	slog.Info("Cancellation requested", "session_id", sessionID)

	response := map[string]interface{}{
		"id":      session.ID,
		"message": "cancellation requested",
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
