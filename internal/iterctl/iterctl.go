// Package iterctl implements the adaptive iteration controller (component
// G): a zoom-driven scaling law, framerate-history feedback, and a
// complexity-map multiplier, producing a recommended maxIter per render or
// per region.
package iterctl

import "math"

// ScalingLaw selects f in iters_base(Z) = base + factor*f(log10(Z)).
type ScalingLaw int

const (
	LINEAR ScalingLaw = iota
	LOGARITHMIC
	EXPONENTIAL
	SQRT
)

// Preset names the four built-in quality presets.
type Preset int

const (
	FAST Preset = iota
	BALANCED
	QUALITY
	EXTREME
)

// Config is one preset's parameters.
type Config struct {
	Base                int
	Factor              float64
	Max                 int
	Strategy            ScalingLaw
	PeriodicityInterval int
}

// PresetConfig returns the default (base, factor, max, strategy, periodicity)
// tuple for a named preset.
func PresetConfig(p Preset) Config {
	switch p {
	case FAST:
		return Config{Base: 100, Factor: 50, Max: 2000, Strategy: LINEAR, PeriodicityInterval: 20}
	case BALANCED:
		return Config{Base: 250, Factor: 150, Max: 10000, Strategy: LOGARITHMIC, PeriodicityInterval: 20}
	case QUALITY:
		return Config{Base: 500, Factor: 400, Max: 50000, Strategy: LOGARITHMIC, PeriodicityInterval: 30}
	case EXTREME:
		return Config{Base: 1000, Factor: 800, Max: 200000, Strategy: EXPONENTIAL, PeriodicityInterval: 30}
	default:
		return PresetConfig(BALANCED)
	}
}

func applyLaw(law ScalingLaw, x float64) float64 {
	switch law {
	case LINEAR:
		return x
	case LOGARITHMIC:
		return x * math.Log2(x+2)
	case EXPONENTIAL:
		return math.Pow(1.1, x)
	case SQRT:
		return math.Sqrt(x) * x
	default:
		return x
	}
}

// BaseIters computes iters_base(zoom) for cfg, clamped to [Base, Max].
func BaseIters(cfg Config, zoom float64) int {
	if zoom <= 0 {
		zoom = 1
	}
	logZoom := math.Log10(zoom)
	v := float64(cfg.Base) + cfg.Factor*applyLaw(cfg.Strategy, logZoom)
	clamped := clamp(v, float64(cfg.Base), float64(cfg.Max))
	return int(clamped)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// FrameRateTracker averages recent frame rates over a short window
// (default 10 frames) and scales a recommended iteration count toward or
// away from a target: a small ring of recent samples feeding a single
// derived scalar.
type FrameRateTracker struct {
	window  int
	samples []float64
}

// DefaultWindow is the default averaging window (10 frames).
const DefaultWindow = 10

// NewFrameRateTracker returns a tracker with the given window size (0 = DefaultWindow).
func NewFrameRateTracker(window int) *FrameRateTracker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &FrameRateTracker{window: window}
}

// Record appends one frame-rate sample, dropping the oldest once the
// window is full.
func (f *FrameRateTracker) Record(fps float64) {
	f.samples = append(f.samples, fps)
	if len(f.samples) > f.window {
		f.samples = f.samples[len(f.samples)-f.window:]
	}
}

// Average returns the mean of recorded samples, or 0 if none recorded.
func (f *FrameRateTracker) Average() float64 {
	if len(f.samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range f.samples {
		sum += s
	}
	return sum / float64(len(f.samples))
}

// ScaleFactor applies the frame-rate feedback rule given a target:
// below 0.8*target -> max(0.5, avg/target); above 1.5*target ->
// min(1.5, avg/target); otherwise 1 (no scaling, insufficient signal to act).
func (f *FrameRateTracker) ScaleFactor(target float64) float64 {
	if target <= 0 || len(f.samples) == 0 {
		return 1
	}
	avg := f.Average()
	switch {
	case avg < 0.8*target:
		return math.Max(0.5, avg/target)
	case avg > 1.5*target:
		return math.Min(1.5, avg/target)
	default:
		return 1
	}
}

// ComplexityCell is one cell of the coarse ComplexityMap.
type ComplexityCell struct {
	Mean            float64
	StdDev          float64
	EscapedFraction float64
}

// Multiplier computes 1 + min(1, variance_score + boundary_score) for one
// cell, the complexity-driven per-region iteration multiplier.
func (c ComplexityCell) Multiplier() float64 {
	varianceScore := c.StdDev / (c.Mean + 1)
	boundaryScore := 2 * math.Abs(c.EscapedFraction-0.5)
	return 1 + math.Min(1, varianceScore+boundaryScore)
}

// Recommend composes the base scaling law, frame-rate feedback, and an
// optional complexity multiplier into one final iteration count for a
// region, clamped to cfg's [Base, Max] bound.
func Recommend(cfg Config, zoom float64, rate *FrameRateTracker, targetFPS float64, cell *ComplexityCell) int {
	base := float64(BaseIters(cfg, zoom))
	if rate != nil {
		base *= rate.ScaleFactor(targetFPS)
	}
	if cell != nil {
		base *= cell.Multiplier()
	}
	return int(clamp(base, float64(cfg.Base), float64(cfg.Max)))
}

// Analyze derives a grid of cols x rows ComplexityCells from a completed
// pass's iteration buffer and escaped flags, each cell summarizing the
// pixels that fall inside it. A second pass multiplies its per-region
// iteration budget by each cell's Multiplier.
func Analyze(iterations []float64, escaped []bool, width, height, cols, rows int) []ComplexityCell {
	if cols <= 0 {
		cols = 32
	}
	if rows <= 0 {
		rows = 32
	}
	cells := make([]ComplexityCell, cols*rows)
	counts := make([]int, cols*rows)
	sums := make([]float64, cols*rows)
	sumSqs := make([]float64, cols*rows)
	escapedCounts := make([]int, cols*rows)

	for y := 0; y < height; y++ {
		cy := y * rows / height
		for x := 0; x < width; x++ {
			cx := x * cols / width
			ci := cy*cols + cx
			v := iterations[y*width+x]
			sums[ci] += v
			sumSqs[ci] += v * v
			if escaped[y*width+x] {
				escapedCounts[ci]++
			}
			counts[ci]++
		}
	}

	for i := range cells {
		n := counts[i]
		if n == 0 {
			continue
		}
		mean := sums[i] / float64(n)
		variance := sumSqs[i]/float64(n) - mean*mean
		if variance < 0 {
			variance = 0
		}
		cells[i] = ComplexityCell{
			Mean:            mean,
			StdDev:          math.Sqrt(variance),
			EscapedFraction: float64(escapedCounts[i]) / float64(n),
		}
	}
	return cells
}
