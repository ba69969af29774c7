// Package render implements the renderer state machine and coordinator:
// the top-level driver that threads a RenderRequest through the precision
// dispatcher, reference-orbit/series engines, tile scheduler and worker
// pool, glitch corrector, and supersampling accumulator, publishing
// progress events and a final PixelField + Stats.
package render

import (
	"fmt"

	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/dispatch"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/fractal"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/glitch"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/iterctl"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/series"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/supersample"
)

// State is a node in the renderer state machine.
type State int

const (
	Idle State = iota
	Dispatching
	Rendering
	GlitchPass
	Supersampling
	Complete
	Cancelled
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dispatching:
		return "dispatching"
	case Rendering:
		return "rendering"
	case GlitchPass:
		return "glitch-pass"
	case Supersampling:
		return "supersampling"
	case Complete:
		return "complete"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrorKind enumerates the typed error kinds.
type ErrorKind int

const (
	InvalidInput ErrorKind = iota
	PrecisionOverflow
	SeriesDivergence
	GlitchUncorrectable
	CancelledKind
	Timeout
	WorkerCrash
)

func (k ErrorKind) String() string {
	switch k {
	case InvalidInput:
		return "InvalidInput"
	case PrecisionOverflow:
		return "PrecisionOverflow"
	case SeriesDivergence:
		return "SeriesDivergence"
	case GlitchUncorrectable:
		return "GlitchUncorrectable"
	case CancelledKind:
		return "Cancelled"
	case Timeout:
		return "Timeout"
	case WorkerCrash:
		return "WorkerCrash"
	default:
		return "Unknown"
	}
}

// Error is a typed, errors.Is/As-friendly error: a small struct carrying
// an ErrorKind rather than a bare fmt.Errorf string.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("render: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("render: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a *Error with the same Kind, so callers
// can write errors.Is(err, &render.Error{Kind: render.Timeout}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// RenderRequest is the concrete, immutable-once-constructed configuration
// for one render, threaded explicitly through every call.
type RenderRequest struct {
	Width, Height int

	Viewport Viewport
	Kind     fractal.Kind
	Params   fractal.Params

	MaxIterations int // 0 = derive via AdaptiveIterations/IterPreset
	EscapeRadius  float64

	Progressive bool

	Antialiasing     bool
	SupersampleLevel supersample.Level
	SSPattern        supersample.Pattern

	GlitchCorrection   bool
	AdaptiveIterations bool
	IterPreset         iterctl.Preset

	TileSize    int
	WorkerCount int

	PrecisionOverride     *dispatch.Mode
	PrecisionSafetyMargin int
	PeriodicityInterval   int

	SeriesTerms     int
	SeriesTolerance float64
}

// CoreConfig bundles the threshold/default tables every subsystem needs,
// constructed once per render rather than read from package-level globals.
type CoreConfig struct {
	Thresholds          dispatch.Thresholds
	GlitchCfg           glitch.Config
	SeriesDefaultTerms  int
	SeriesTolerance     float64
	MaxCorrectionPasses int
}

// DefaultCoreConfig returns the default thresholds bundled into one
// CoreConfig value.
func DefaultCoreConfig() CoreConfig {
	return CoreConfig{
		Thresholds:          dispatch.DefaultThresholds(),
		GlitchCfg:           glitch.DefaultConfig(),
		SeriesDefaultTerms:  series.DefaultTerms,
		SeriesTolerance:     1e-6,
		MaxCorrectionPasses: 3,
	}
}
