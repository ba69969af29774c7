package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/field"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/render"
)

// ProgressEventJSON is the SSE wire form of a render progress event.
type ProgressEventJSON struct {
	SessionID  string      `json:"sessionId"`
	Event      string      `json:"event"`
	State      string      `json:"state"`
	TilesDone  int         `json:"tilesDone"`
	TilesTotal int         `json:"tilesTotal"`
	Stats      field.Stats `json:"stats"`
	ErrorKind  string      `json:"errorKind,omitempty"`
	Message    string      `json:"message,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

func toProgressEvent(e render.Event) ProgressEventJSON {
	out := ProgressEventJSON{
		SessionID:  e.SessionID,
		Event:      string(e.Kind),
		State:      e.State.String(),
		TilesDone:  e.TilesDone,
		TilesTotal: e.TilesTotal,
		Stats:      e.Stats,
		Message:    e.Message,
		Timestamp:  e.Timestamp,
	}
	if e.Kind == render.EventError {
		out.ErrorKind = e.ErrorKind.String()
	}
	return out
}

// handleSessionStream handles SSE connections for render progress
func (s *Server) handleSessionStream(w http.ResponseWriter, r *http.Request, sessionID string) {
	session, exists := s.coordinator.GetSession(sessionID)
	if !exists {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	// Subscribe to events; the broadcaster replays the last event for
	// reconnecting clients, so a client that joins mid-render still sees
	// where the render currently stands.
	broadcaster := s.coordinator.Broadcaster()
	eventChan := broadcaster.Subscribe(sessionID)
	defer broadcaster.Unsubscribe(sessionID, eventChan)

	// Send an initial snapshot of the session's current state
	initial := ProgressEventJSON{
		SessionID: session.ID,
		Event:     "snapshot",
		State:     session.State.String(),
		Stats:     session.Stats,
		Timestamp: time.Now(),
	}
	if err := writeSSEEvent(w, initial); err != nil {
		slog.Error("Failed to write initial SSE event", "error", err)
		return
	}
	flusher.Flush()

	// Set up ping ticker to keep connection alive
	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			slog.Debug("SSE client disconnected", "session_id", sessionID)
			return

		case event, ok := <-eventChan:
			if !ok {
				return
			}

			if err := writeSSEEvent(w, toProgressEvent(event)); err != nil {
				slog.Error("Failed to write SSE event", "error", err)
				return
			}
			flusher.Flush()

		case <-pingTicker.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes an event in SSE format
func writeSSEEvent(w http.ResponseWriter, event ProgressEventJSON) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// SSE format: "data: {json}\n\n"
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
