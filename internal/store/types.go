package store

import (
	"fmt"
	"time"
)

// FractalConfig is the persisted subset of a render's fractal selection:
// kind plus the per-kind numeric parameters. This avoids an import cycle
// with internal/fractal by carrying the same fields as plain
// JSON-friendly values.
type FractalConfig struct {
	Kind       string  `json:"kind"` // "mandelbrot", "julia", "burning-ship", "multibrot"
	JuliaCRe   float64 `json:"juliaCRe,omitempty"`
	JuliaCIm   float64 `json:"juliaCIm,omitempty"`
	Power      float64 `json:"power,omitempty"`
}

// SessionConfig holds the configuration of a render session, serialized for
// persistence. It mirrors internal/render.RenderRequest's fields in
// JSON-friendly form (the viewport's BigFloat center/zoom are stored as
// decimal strings so a resumed session rebuilds the exact reference point).
type SessionConfig struct {
	Width  int `json:"width"`
	Height int `json:"height"`

	CenterRe string  `json:"centerRe"`
	CenterIm string  `json:"centerIm"`
	Zoom     string  `json:"zoom"`
	Rotation float64 `json:"rotation,omitempty"`

	Fractal FractalConfig `json:"fractal"`

	MaxIterations int     `json:"maxIterations,omitempty"`
	EscapeRadius  float64 `json:"escapeRadius,omitempty"`

	Antialiasing       bool   `json:"antialiasing,omitempty"`
	SupersampleLevel   int    `json:"supersampleLevel,omitempty"`
	SSPattern          int    `json:"ssPattern,omitempty"`
	GlitchCorrection   bool   `json:"glitchCorrection,omitempty"`
	AdaptiveIterations bool   `json:"adaptiveIterations,omitempty"`
	IterPreset         int    `json:"iterPreset,omitempty"`
	TileSize           int    `json:"tileSize,omitempty"`
	WorkerCount        int    `json:"workerCount,omitempty"`
	PrecisionOverride  string `json:"precisionOverride,omitempty"` // "", "double", "perturbation", "arbitrary"
	SeriesTerms        int    `json:"seriesTerms,omitempty"`
	SeriesTolerance    float64 `json:"seriesTolerance,omitempty"`
}

// RenderStatsSnapshot is the persisted form of field.Stats (no import of
// internal/field, keeping this package dependency-free of the compute
// core).
type RenderStatsSnapshot struct {
	TotalPixels       int     `json:"totalPixels"`
	TilesCompleted    int     `json:"tilesCompleted"`
	TilesTotal        int     `json:"tilesTotal"`
	AvgIterations     float64 `json:"avgIterations"`
	MaxIterationsUsed int     `json:"maxIterationsUsed"`
	GlitchesDetected  int     `json:"glitchesDetected"`
	GlitchesCorrected int     `json:"glitchesCorrected"`
	RenderTimeMs      int64   `json:"renderTimeMs"`
	PixelsPerSecond   float64 `json:"pixelsPerSecond"`
	PrecisionMode     string  `json:"precisionMode"`
	SSPasses          int     `json:"ssPasses"`
	SIMDBackend       string  `json:"simdBackend"`
}

// RenderSession represents a saved render that can be inspected, replayed,
// or used as a resume point for a deeper zoom at the same center.
// All fields are serialized to JSON for persistence.
type RenderSession struct {
	// SessionID is the unique identifier for this render.
	SessionID string `json:"sessionId"`

	// Config holds the render's configuration, needed for validation when
	// resuming or re-rendering at a deeper zoom.
	Config SessionConfig `json:"config"`

	// Stats is the completed (or last observed) RenderStats snapshot.
	Stats RenderStatsSnapshot `json:"stats"`

	// State is the render's terminal or last-known state ("complete",
	// "cancelled", "failed").
	State string `json:"state"`

	// OrbitCacheKey identifies the reference orbit this session's
	// perturbation/arbitrary-precision render used, letting a follow-up
	// deeper-zoom render decide whether it can extend the cached orbit
	// (internal/orbit.Cache) instead of rebuilding from iteration 0.
	OrbitCacheKey string `json:"orbitCacheKey,omitempty"`

	// Timestamp records when this session reached its terminal state.
	Timestamp time.Time `json:"timestamp"`
}

// RenderSessionInfo contains metadata about a session without the full
// config/stats payload. Used for listing sessions efficiently.
type RenderSessionInfo struct {
	SessionID      string    `json:"sessionId"`
	State          string    `json:"state"`
	Width          int       `json:"width"`
	Height         int       `json:"height"`
	Zoom           string    `json:"zoom"`
	FractalKind    string    `json:"fractalKind"`
	TilesCompleted int       `json:"tilesCompleted"`
	TilesTotal     int       `json:"tilesTotal"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewRenderSession creates a RenderSession from completed render state.
func NewRenderSession(sessionID string, cfg SessionConfig, stats RenderStatsSnapshot, state, orbitCacheKey string) *RenderSession {
	return &RenderSession{
		SessionID:     sessionID,
		Config:        cfg,
		Stats:         stats,
		State:         state,
		OrbitCacheKey: orbitCacheKey,
		Timestamp:     time.Now(),
	}
}

// ToInfo converts a full RenderSession to RenderSessionInfo (metadata only).
func (s *RenderSession) ToInfo() RenderSessionInfo {
	return RenderSessionInfo{
		SessionID:      s.SessionID,
		State:          s.State,
		Width:          s.Config.Width,
		Height:         s.Config.Height,
		Zoom:           s.Config.Zoom,
		FractalKind:    s.Config.Fractal.Kind,
		TilesCompleted: s.Stats.TilesCompleted,
		TilesTotal:     s.Stats.TilesTotal,
		Timestamp:      s.Timestamp,
	}
}

// Validate checks if the session has valid data. Returns an error if any
// required field is missing or invalid.
func (s *RenderSession) Validate() error {
	if s.SessionID == "" {
		return &ValidationError{Field: "SessionID", Reason: "cannot be empty"}
	}
	if s.Config.Width <= 0 {
		return &ValidationError{Field: "Config.Width", Reason: "must be positive"}
	}
	if s.Config.Height <= 0 {
		return &ValidationError{Field: "Config.Height", Reason: "must be positive"}
	}
	if s.Config.Zoom == "" {
		return &ValidationError{Field: "Config.Zoom", Reason: "cannot be empty"}
	}
	if s.Config.Fractal.Kind == "" {
		return &ValidationError{Field: "Config.Fractal.Kind", Reason: "cannot be empty"}
	}
	if s.State == "" {
		return &ValidationError{Field: "State", Reason: "cannot be empty"}
	}
	if s.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	return nil
}

// ValidationError represents a session validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// IsCompatible checks whether this session can serve as a resume/extension
// point for a render using cfg: same canvas dimensions and fractal kind.
func (s *RenderSession) IsCompatible(cfg SessionConfig) error {
	if s.Config.Width != cfg.Width || s.Config.Height != cfg.Height {
		return &CompatibilityError{
			Field:    "Width/Height",
			Expected: fmt.Sprintf("%dx%d", s.Config.Width, s.Config.Height),
			Actual:   fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		}
	}
	if s.Config.Fractal.Kind != cfg.Fractal.Kind {
		return &CompatibilityError{
			Field:    "Fractal.Kind",
			Expected: s.Config.Fractal.Kind,
			Actual:   cfg.Fractal.Kind,
		}
	}
	return nil
}

// CompatibilityError represents a session compatibility error.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
