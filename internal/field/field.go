// Package field defines the per-pixel scalar fields produced by the
// compute core (PixelField), the glitch byte map, the coarse complexity
// grid, and the RenderStats summary record.
package field

import "fmt"

// PixelField is a struct of parallel arrays of length width*height, all
// elements updated atomically per pixel by a single producer.
type PixelField struct {
	Width, Height int

	Iterations      []float64 // smoothed escape time
	Escaped         []bool
	OrbitFinalRe    []float64
	OrbitFinalIm    []float64
	DistanceEstimate []float64
	Potential       []float64
	FinalAngle      []float64
}

// New allocates a zeroed PixelField of the given dimensions.
func New(width, height int) *PixelField {
	n := width * height
	return &PixelField{
		Width:            width,
		Height:           height,
		Iterations:       make([]float64, n),
		Escaped:          make([]bool, n),
		OrbitFinalRe:     make([]float64, n),
		OrbitFinalIm:     make([]float64, n),
		DistanceEstimate: make([]float64, n),
		Potential:        make([]float64, n),
		FinalAngle:       make([]float64, n),
	}
}

// Index converts (x,y) to a flat array offset.
func (f *PixelField) Index(x, y int) int { return y*f.Width + x }

// PixelValue carries every scalar for one pixel so producers assign them
// in a single call; callers must not partially write a pixel's fields
// across two goroutines.
type PixelValue struct {
	Iterations       float64
	Escaped          bool
	OrbitFinalRe     float64
	OrbitFinalIm     float64
	DistanceEstimate float64
	Potential        float64
	FinalAngle       float64
}

// SetPixel writes all seven scalars for pixel (x,y) in one call.
func (f *PixelField) SetPixel(x, y int, v PixelValue) {
	i := f.Index(x, y)
	f.Iterations[i] = v.Iterations
	f.Escaped[i] = v.Escaped
	f.OrbitFinalRe[i] = v.OrbitFinalRe
	f.OrbitFinalIm[i] = v.OrbitFinalIm
	f.DistanceEstimate[i] = v.DistanceEstimate
	f.Potential[i] = v.Potential
	f.FinalAngle[i] = v.FinalAngle
}

// GetPixel reads all seven scalars for pixel (x,y).
func (f *PixelField) GetPixel(x, y int) PixelValue {
	i := f.Index(x, y)
	return PixelValue{
		Iterations:       f.Iterations[i],
		Escaped:          f.Escaped[i],
		OrbitFinalRe:     f.OrbitFinalRe[i],
		OrbitFinalIm:     f.OrbitFinalIm[i],
		DistanceEstimate: f.DistanceEstimate[i],
		Potential:        f.Potential[i],
		FinalAngle:       f.FinalAngle[i],
	}
}

// GlitchKind tags the byte stored per pixel in a GlitchMap.
type GlitchKind byte

const (
	NoGlitch GlitchKind = iota
	Candidate
	Confirmed
)

// GlitchMap is the per-pixel suspected-artifact byte map.
type GlitchMap struct {
	Width, Height int
	Bytes         []GlitchKind
}

// NewGlitchMap allocates a zeroed GlitchMap.
func NewGlitchMap(width, height int) *GlitchMap {
	return &GlitchMap{Width: width, Height: height, Bytes: make([]GlitchKind, width*height)}
}

func (g *GlitchMap) Index(x, y int) int { return y*g.Width + x }

// ClusterType classifies a connected component of flagged pixels.
type ClusterType int

const (
	BailoutArtifact ClusterType = iota
	PerturbationUnderflow
	ReferenceOrbitGlitch
)

func (c ClusterType) String() string {
	switch c {
	case BailoutArtifact:
		return "BailoutArtifact"
	case PerturbationUnderflow:
		return "PerturbationUnderflow"
	case ReferenceOrbitGlitch:
		return "ReferenceOrbitGlitch"
	default:
		return "Unknown"
	}
}

// CorrectionStrategy names the remediation chosen for a cluster.
type CorrectionStrategy int

const (
	Interpolate CorrectionStrategy = iota
	IncreaseIter
	HighPrecision
	Rebase
)

func (s CorrectionStrategy) String() string {
	switch s {
	case Interpolate:
		return "Interpolate"
	case IncreaseIter:
		return "IncreaseIter"
	case HighPrecision:
		return "HighPrecision"
	case Rebase:
		return "Rebase"
	default:
		return "Unknown"
	}
}

// GlitchRegion is a clustered set of flagged pixels bearing a type,
// severity, and assigned correction strategy.
type GlitchRegion struct {
	Pixels     []int // flat indices into the PixelField
	Type       ClusterType
	Severity   float64
	Strategy   CorrectionStrategy
}

// ComplexityMap is a coarse float grid (e.g. 32x32) derived from a
// completed pass, biasing a second pass's iteration counts.
type ComplexityMap struct {
	Cols, Rows int
	Cells      []float64
}

// NewComplexityMap allocates a zeroed ComplexityMap of cols x rows cells.
func NewComplexityMap(cols, rows int) *ComplexityMap {
	return &ComplexityMap{Cols: cols, Rows: rows, Cells: make([]float64, cols*rows)}
}

func (c *ComplexityMap) Index(cx, cy int) int { return cy*c.Cols + cx }

// Stats is the summary record produced alongside the field arrays.
type Stats struct {
	TotalPixels       int
	TilesCompleted    int
	TilesTotal        int
	AvgIterations     float64
	MaxIterationsUsed int
	GlitchesDetected  int
	GlitchesCorrected int
	RenderTimeMs      int64
	PixelsPerSecond   float64
	PrecisionMode     string
	SSPasses          int
	SIMDBackend       string
}

func (s Stats) String() string {
	return fmt.Sprintf("Stats{tiles=%d/%d precision=%s glitches=%d/%d ssPasses=%d}",
		s.TilesCompleted, s.TilesTotal, s.PrecisionMode, s.GlitchesCorrected, s.GlitchesDetected, s.SSPasses)
}
