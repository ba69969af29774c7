package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// FSStore implements the Store interface using filesystem-based persistence.
// Sessions are stored in a directory structure: <baseDir>/sessions/<sessionID>/
//
// Thread-safety: This implementation uses atomic file operations (rename)
// and does not require locks. Multiple goroutines can safely call methods
// concurrently.
type FSStore struct {
	baseDir string // Root directory for all session data (e.g., "./data")
}

// NewFSStore creates a new filesystem-based store.
// The baseDir will be created if it doesn't exist.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FSStore{
		baseDir: baseDir,
	}, nil
}

// sessionDir returns the directory path for a given session ID.
func (fs *FSStore) sessionDir(sessionID string) string {
	return filepath.Join(fs.baseDir, "sessions", sessionID)
}

// sessionPath returns the path to the session.json file for a session.
func (fs *FSStore) sessionPath(sessionID string) string {
	return filepath.Join(fs.sessionDir(sessionID), "session.json")
}

// SaveSession atomically saves a session.
// Uses temp file + rename pattern to ensure atomicity.
func (fs *FSStore) SaveSession(session *RenderSession) error {
	if session == nil {
		return fmt.Errorf("session cannot be nil")
	}
	if session.SessionID == "" {
		return fmt.Errorf("session.SessionID cannot be empty")
	}

	dir := fs.sessionDir(session.SessionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}

	tempPath := fs.sessionPath(session.SessionID) + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp session file: %w", err)
	}

	finalPath := fs.sessionPath(session.SessionID)
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename session file: %w", err)
	}

	slog.Debug("session saved", "sessionID", session.SessionID, "path", finalPath)
	return nil
}

// LoadSession retrieves the session for the given ID.
func (fs *FSStore) LoadSession(sessionID string) (*RenderSession, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("sessionID cannot be empty")
	}

	path := fs.sessionPath(sessionID)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, &NotFoundError{SessionID: sessionID}
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat session file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var session RenderSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to deserialize session: %w", err)
	}

	slog.Debug("session loaded", "sessionID", sessionID, "path", path)
	return &session, nil
}

// ListSessions returns metadata for all available sessions.
func (fs *FSStore) ListSessions() ([]RenderSessionInfo, error) {
	sessionsDir := filepath.Join(fs.baseDir, "sessions")

	if _, err := os.Stat(sessionsDir); os.IsNotExist(err) {
		return []RenderSessionInfo{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat sessions directory: %w", err)
	}

	entries, err := os.ReadDir(sessionsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var infos []RenderSessionInfo

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		sessionID := entry.Name()
		sessionPath := fs.sessionPath(sessionID)

		if _, err := os.Stat(sessionPath); os.IsNotExist(err) {
			continue
		}

		session, err := fs.LoadSession(sessionID)
		if err != nil {
			slog.Warn("failed to load session for listing", "sessionID", sessionID, "error", err)
			continue
		}

		infos = append(infos, session.ToInfo())
	}

	slog.Debug("listed sessions", "count", len(infos))
	return infos, nil
}

// DeleteSession removes the session and its trace (if any).
func (fs *FSStore) DeleteSession(sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("sessionID cannot be empty")
	}

	dir := fs.sessionDir(sessionID)

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return &NotFoundError{SessionID: sessionID}
	} else if err != nil {
		return fmt.Errorf("failed to stat session directory: %w", err)
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove session directory: %w", err)
	}

	slog.Debug("session deleted", "sessionID", sessionID, "path", dir)
	return nil
}
