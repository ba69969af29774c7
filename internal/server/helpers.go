package server

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/bigfloat"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/dispatch"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/field"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/fractal"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/iterctl"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/palette"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/render"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/scheduler"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/supersample"
)

// FractalJSON is the wire form of a fractal kind descriptor.
type FractalJSON struct {
	Kind     string  `json:"kind"`
	JuliaCRe float64 `json:"juliaCRe,omitempty"`
	JuliaCIm float64 `json:"juliaCIm,omitempty"`
	Power    float64 `json:"power,omitempty"`
}

// RenderRequestJSON is the wire form of a render request. The viewport's
// center and zoom are decimal strings so a deep-zoom client can supply
// more digits than a float64 carries.
type RenderRequestJSON struct {
	Width  int `json:"width"`
	Height int `json:"height"`

	CenterRe string  `json:"centerRe"`
	CenterIm string  `json:"centerIm"`
	Zoom     string  `json:"zoom"`
	Rotation float64 `json:"rotation,omitempty"`

	Fractal FractalJSON `json:"fractal"`

	MaxIterations int     `json:"maxIterations,omitempty"`
	EscapeRadius  float64 `json:"escapeRadius,omitempty"`

	Progressive bool `json:"progressive,omitempty"`

	Antialiasing     bool   `json:"antialiasing,omitempty"`
	SupersampleLevel string `json:"supersampleLevel,omitempty"` // "1","2","4","8","adaptive"
	SSPattern        string `json:"ssPattern,omitempty"`

	GlitchCorrection   bool   `json:"glitchCorrection,omitempty"`
	AdaptiveIterations bool   `json:"adaptiveIterations,omitempty"`
	IterPreset         string `json:"iterPreset,omitempty"` // "fast","balanced","quality","extreme"

	TileSize    int `json:"tileSize,omitempty"`
	WorkerCount int `json:"workerCount,omitempty"`

	PrecisionOverride     string `json:"precisionOverride,omitempty"` // "double","perturbation","arbitrary"
	PrecisionSafetyMargin int    `json:"precisionSafetyMargin,omitempty"`
	PeriodicityInterval   int    `json:"periodicityInterval,omitempty"`

	SeriesTerms     int     `json:"seriesTerms,omitempty"`
	SeriesTolerance float64 `json:"seriesTolerance,omitempty"`
}

// parsePrecision is the BigFloat precision used when parsing the request's
// center/zoom strings; the coordinator re-derives the working precision
// from the dispatcher's decision, so this only needs to be generous enough
// not to truncate the client's digits.
const parsePrecision = 2048

// ToRenderRequest validates and converts the wire form into the
// coordinator's RenderRequest.
func (j RenderRequestJSON) ToRenderRequest() (render.RenderRequest, error) {
	var req render.RenderRequest

	if j.Width <= 0 || j.Height <= 0 {
		return req, fmt.Errorf("width and height must be positive")
	}

	centerRe, err := parseBig("centerRe", j.CenterRe, "0")
	if err != nil {
		return req, err
	}
	centerIm, err := parseBig("centerIm", j.CenterIm, "0")
	if err != nil {
		return req, err
	}
	zoom, err := parseBig("zoom", j.Zoom, "200")
	if err != nil {
		return req, err
	}
	if zoom.Sign() <= 0 {
		return req, fmt.Errorf("zoom must be > 0")
	}

	kind, params, err := ParseFractal(j.Fractal)
	if err != nil {
		return req, err
	}

	level, err := ParseSupersampleLevel(j.SupersampleLevel)
	if err != nil {
		return req, err
	}
	pattern, err := ParseSSPattern(j.SSPattern)
	if err != nil {
		return req, err
	}
	preset, err := ParseIterPreset(j.IterPreset)
	if err != nil {
		return req, err
	}
	override, err := ParsePrecisionOverride(j.PrecisionOverride)
	if err != nil {
		return req, err
	}

	req = render.RenderRequest{
		Width:  j.Width,
		Height: j.Height,
		Viewport: render.Viewport{
			CenterRe: centerRe,
			CenterIm: centerIm,
			Zoom:     zoom,
			Rotation: j.Rotation,
		},
		Kind:   kind,
		Params: params,

		MaxIterations: j.MaxIterations,
		EscapeRadius:  j.EscapeRadius,

		Progressive: j.Progressive,

		Antialiasing:     j.Antialiasing,
		SupersampleLevel: level,
		SSPattern:        pattern,

		GlitchCorrection:   j.GlitchCorrection,
		AdaptiveIterations: j.AdaptiveIterations,
		IterPreset:         preset,

		TileSize:    scheduler.ClampTileSize(j.TileSize),
		WorkerCount: j.WorkerCount,

		PrecisionOverride:     override,
		PrecisionSafetyMargin: j.PrecisionSafetyMargin,
		PeriodicityInterval:   j.PeriodicityInterval,

		SeriesTerms:     j.SeriesTerms,
		SeriesTolerance: j.SeriesTolerance,
	}
	return req, nil
}

func parseBig(name, s, fallback string) (*bigfloat.Value, error) {
	if s == "" {
		s = fallback
	}
	v, err := bigfloat.Parse(s, parsePrecision)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

// ParseFractal maps a wire-form fractal descriptor to a Kind + Params.
func ParseFractal(j FractalJSON) (fractal.Kind, fractal.Params, error) {
	var params fractal.Params
	switch strings.ToLower(j.Kind) {
	case "", "mandelbrot":
		return fractal.Mandelbrot, params, nil
	case "julia":
		params.JuliaC = complex(j.JuliaCRe, j.JuliaCIm)
		return fractal.Julia, params, nil
	case "burning-ship", "burningship":
		return fractal.BurningShip, params, nil
	case "multibrot":
		params.Power = j.Power
		if params.Power == 0 {
			params.Power = 3
		}
		return fractal.Multibrot, params, nil
	default:
		return 0, params, fmt.Errorf("unknown fractal kind: %q", j.Kind)
	}
}

// ParseSupersampleLevel maps the wire string to a supersample.Level.
func ParseSupersampleLevel(s string) (supersample.Level, error) {
	switch strings.ToLower(s) {
	case "", "1":
		return supersample.Level1, nil
	case "2":
		return supersample.Level2, nil
	case "4":
		return supersample.Level4, nil
	case "8":
		return supersample.Level8, nil
	case "adaptive":
		return supersample.Adaptive, nil
	default:
		return 0, fmt.Errorf("unknown supersample level: %q", s)
	}
}

// ParseSSPattern maps the wire string to a supersample.Pattern.
func ParseSSPattern(s string) (supersample.Pattern, error) {
	switch strings.ToLower(s) {
	case "", "grid":
		return supersample.Grid, nil
	case "rotated-grid", "rotatedgrid":
		return supersample.RotatedGrid, nil
	case "quincunx":
		return supersample.Quincunx, nil
	case "poisson16":
		return supersample.Poisson16, nil
	case "jittered":
		return supersample.Jittered, nil
	default:
		return 0, fmt.Errorf("unknown supersample pattern: %q", s)
	}
}

// ParseIterPreset maps the wire string to an iterctl.Preset.
func ParseIterPreset(s string) (iterctl.Preset, error) {
	switch strings.ToLower(s) {
	case "fast":
		return iterctl.FAST, nil
	case "", "balanced":
		return iterctl.BALANCED, nil
	case "quality":
		return iterctl.QUALITY, nil
	case "extreme":
		return iterctl.EXTREME, nil
	default:
		return 0, fmt.Errorf("unknown iteration preset: %q", s)
	}
}

// ParsePrecisionOverride maps the wire string to an optional dispatch.Mode.
func ParsePrecisionOverride(s string) (*dispatch.Mode, error) {
	var m dispatch.Mode
	switch strings.ToLower(s) {
	case "":
		return nil, nil
	case "double":
		m = dispatch.DOUBLE
	case "perturbation":
		m = dispatch.PERTURBATION
	case "arbitrary":
		m = dispatch.ARBITRARY
	default:
		return nil, fmt.Errorf("unknown precision override: %q", s)
	}
	return &m, nil
}

// SessionSummaryJSON is the wire form of a session in list/create replies.
type SessionSummaryJSON struct {
	ID     string      `json:"id"`
	State  string      `json:"state"`
	Width  int         `json:"width"`
	Height int         `json:"height"`
	Kind   string      `json:"kind"`
	Stats  field.Stats `json:"stats"`
}

func sessionSummary(s *render.Session) SessionSummaryJSON {
	return SessionSummaryJSON{
		ID:     s.ID,
		State:  s.State.String(),
		Width:  s.Request.Width,
		Height: s.Request.Height,
		Kind:   s.Request.Kind.String(),
		Stats:  s.Stats,
	}
}

// FieldJSON is the wire form of a PixelField: the seven parallel arrays
// plus dimensions.
type FieldJSON struct {
	Width            int       `json:"width"`
	Height           int       `json:"height"`
	Iterations       []float64 `json:"iterations"`
	Escaped          []bool    `json:"escaped"`
	OrbitFinalRe     []float64 `json:"orbitFinalRe"`
	OrbitFinalIm     []float64 `json:"orbitFinalIm"`
	DistanceEstimate []float64 `json:"distanceEstimate"`
	Potential        []float64 `json:"potential"`
	FinalAngle       []float64 `json:"finalAngle"`
}

func fieldResponse(f *field.PixelField) FieldJSON {
	return FieldJSON{
		Width:            f.Width,
		Height:           f.Height,
		Iterations:       f.Iterations,
		Escaped:          f.Escaped,
		OrbitFinalRe:     f.OrbitFinalRe,
		OrbitFinalIm:     f.OrbitFinalIm,
		DistanceEstimate: f.DistanceEstimate,
		Potential:        f.Potential,
		FinalAngle:       f.FinalAngle,
	}
}

// PreviewImage maps a PixelField through a palette LUT into an NRGBA
// image: escaped pixels index the LUT by their smoothed iteration count
// modulo the LUT size, interior pixels render black. This is a
// convenience for eyeballing a render; the real coloring engine is an
// separate component and consumes the field arrays directly.
func PreviewImage(f *field.PixelField, lut *palette.LUT) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			i := f.Index(x, y)
			if !f.Escaped[i] {
				img.Set(x, y, color.NRGBA{0, 0, 0, 255})
				continue
			}
			idx := int(f.Iterations[i]) % palette.Entries
			if idx < 0 {
				idx += palette.Entries
			}
			r, g, b, a := lut.At(idx)
			img.Set(x, y, color.NRGBA{r, g, b, a})
		}
	}
	return img
}
