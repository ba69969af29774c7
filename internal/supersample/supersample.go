// Package supersample implements the supersampling accumulator (component
// J): fixed-level sample patterns and an adaptive edge-driven refinement
// pass, both accumulating via weighted averaging.
package supersample

import "math"

// Level selects the supersampling strategy.
type Level int

const (
	Level1 Level = 1
	Level2 Level = 2
	Level4 Level = 4
	Level8 Level = 8
	Adaptive Level = -1
)

// Pattern names the sample-offset layout used at fixed levels.
type Pattern int

const (
	Grid Pattern = iota
	RotatedGrid
	Quincunx
	Poisson16
	Jittered
)

// Offset is one sample's (dx, dy) displacement within a pixel, in
// [-0.5, 0.5] pixel units, and its accumulation weight.
type Offset struct {
	DX, DY, Weight float64
}

// Offsets returns the sample pattern for a fixed level, matching
// the named patterns. The quincunx patterns and the 4-sample rotated
// grid lead with the center sample (0,0) so callers can reuse an
// already-computed pass instead of recomputing it; the other patterns
// contain no center sample.
func Offsets(level Level, pattern Pattern) []Offset {
	switch level {
	case Level1:
		return []Offset{{0, 0, 1}}
	case Level2:
		return twoSample(pattern)
	case Level4:
		return fourSample(pattern)
	case Level8:
		return eightSample(pattern)
	default:
		return []Offset{{0, 0, 1}}
	}
}

func equalWeights(offsets []Offset) []Offset {
	w := 1 / float64(len(offsets))
	for i := range offsets {
		offsets[i].Weight = w
	}
	return offsets
}

func twoSample(pattern Pattern) []Offset {
	switch pattern {
	case Quincunx:
		return equalWeights([]Offset{{0, 0, 0}, {0.25, 0.25, 0}})
	default:
		return equalWeights([]Offset{{-0.25, 0, 0}, {0.25, 0, 0}})
	}
}

func fourSample(pattern Pattern) []Offset {
	switch pattern {
	case RotatedGrid:
		// 4-sample rotated grid: the center sample plus three offsets of
		// radius ~0.28 rotated ~16.5 degrees (arctan(0.08/0.27)) off the axes.
		const a = 0.27
		const b = 0.08
		return equalWeights([]Offset{{0, 0, 0}, {a, b, 0}, {-b, a, 0}, {-a, -b, 0}})
	case Quincunx:
		return equalWeights([]Offset{{0, 0, 0}, {-0.5, -0.5, 0}, {0.5, -0.5, 0}, {0, 0.5, 0}})
	default: // Grid, Jittered (deterministic substitute: a fixed sub-grid)
		return equalWeights([]Offset{
			{-0.25, -0.25, 0}, {0.25, -0.25, 0},
			{-0.25, 0.25, 0}, {0.25, 0.25, 0},
		})
	}
}

func eightSample(pattern Pattern) []Offset {
	if pattern == Poisson16 {
		return poisson16()
	}
	var offsets []Offset
	for i := 0; i < 8; i++ {
		angle := 2 * math.Pi * float64(i) / 8
		offsets = append(offsets, Offset{DX: 0.35 * math.Cos(angle), DY: 0.35 * math.Sin(angle)})
	}
	return equalWeights(offsets)
}

// poisson16 returns a fixed, deterministic 16-point pattern approximating
// Poisson-disc spacing inside the unit pixel square. Deterministic
// offsets (rather than true per-render random sampling) keep repeated
// renders of the same request bit-identical.
func poisson16() []Offset {
	raw := [16][2]float64{
		{-0.45, -0.41}, {-0.13, -0.47}, {0.19, -0.43}, {0.43, -0.27},
		{-0.47, -0.08}, {-0.21, -0.15}, {0.05, -0.19}, {0.31, -0.05},
		{-0.39, 0.13}, {-0.09, 0.09}, {0.17, 0.15}, {0.41, 0.21},
		{-0.31, 0.37}, {-0.01, 0.33}, {0.23, 0.41}, {0.45, 0.45},
	}
	offsets := make([]Offset, len(raw))
	for i, r := range raw {
		offsets[i] = Offset{DX: r[0], DY: r[1]}
	}
	return equalWeights(offsets)
}

// SampleFunc computes the iteration-derived scalar (and escaped flag) at
// a sub-pixel offset; callers bind it to whichever iterator (direct or
// perturbation) the precision dispatcher selected for this pass.
type SampleFunc func(dx, dy float64) (value float64, escaped bool)

// Accumulate runs every offset's SampleFunc and returns the weighted
// average value and majority-vote escaped flag, clamped to the caller's
// expected output range by convention (the scalar itself, not a color,
// so no [0,1] clamp is imposed here; clamping happens once the
// coloring stage maps this scalar to RGB).
func Accumulate(offsets []Offset, sample SampleFunc) (value float64, escaped bool) {
	var sum, weightSum float64
	escapedVotes := 0.0
	for _, o := range offsets {
		v, e := sample(o.DX, o.DY)
		sum += v * o.Weight
		weightSum += o.Weight
		if e {
			escapedVotes += o.Weight
		}
	}
	if weightSum == 0 {
		return 0, false
	}
	return sum / weightSum, escapedVotes >= weightSum/2
}

// EdgeMask runs the adaptive edge detector over an iteration buffer
// (width x height), flagging a pixel when its 4- or 8-neighborhood
// iteration difference exceeds threshold/2, or its escaped flag disagrees
// with a neighbor.
func EdgeMask(iterations []float64, escaped []bool, width, height int, threshold float64) []bool {
	mask := make([]bool, width*height)
	half := threshold / 2
	idx := func(x, y int) int { return y*width + x }
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := idx(x, y)
			flagged := false
			for dy := -1; dy <= 1 && !flagged; dy++ {
				for dx := -1; dx <= 1 && !flagged; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					nx, ny := x+dx, y+dy
					if nx < 0 || nx >= width || ny < 0 || ny >= height {
						continue
					}
					ni := idx(nx, ny)
					if escaped[ni] != escaped[i] {
						flagged = true
						break
					}
					d := iterations[i] - iterations[ni]
					if d < 0 {
						d = -d
					}
					if d > half {
						flagged = true
					}
				}
			}
			mask[i] = flagged
		}
	}
	return mask
}
