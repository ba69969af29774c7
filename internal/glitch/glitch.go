// Package glitch implements the glitch detector and corrector (component
// I): three independent per-pixel detectors whose outputs OR into a
// per-pixel byte, connected-component clustering of flagged pixels,
// per-cluster classification, and correction strategy selection. Each
// detector inspects the field and returns a verdict per pixel rather than
// mutating state as a side effect of an unrelated computation.
package glitch

import (
	"math"

	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/field"
)

// Detection and clustering defaults.
const (
	DefaultIterDiff     = 50.0
	DefaultOutlierSigma = 3.0
	DefaultMinCluster   = 4
	DefaultMaxIsolated  = 16
)

// Config parameterizes detection and classification thresholds.
type Config struct {
	IterDiff     float64
	OutlierSigma float64
	MinCluster   int
	MaxIsolated  int
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		IterDiff:     DefaultIterDiff,
		OutlierSigma: DefaultOutlierSigma,
		MinCluster:   DefaultMinCluster,
		MaxIsolated:  DefaultMaxIsolated,
	}
}

func (c Config) withDefaults() Config {
	if c.IterDiff <= 0 {
		c.IterDiff = DefaultIterDiff
	}
	if c.OutlierSigma <= 0 {
		c.OutlierSigma = DefaultOutlierSigma
	}
	if c.MinCluster <= 0 {
		c.MinCluster = DefaultMinCluster
	}
	if c.MaxIsolated <= 0 {
		c.MaxIsolated = DefaultMaxIsolated
	}
	return c
}

func neighbors8(x, y, w, h int) [][2]int {
	var out [][2]int
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			nx, ny := x+dx, y+dy
			if nx >= 0 && nx < w && ny >= 0 && ny < h {
				out = append(out, [2]int{nx, ny})
			}
		}
	}
	return out
}

func neighbors4(x, y, w, h int) [][2]int {
	var out [][2]int
	for _, d := range [][2]int{{0, -1}, {0, 1}, {-1, 0}, {1, 0}} {
		nx, ny := x+d[0], y+d[1]
		if nx >= 0 && nx < w && ny >= 0 && ny < h {
			out = append(out, [2]int{nx, ny})
		}
	}
	return out
}

// Detect runs all three detectors over f and returns a GlitchMap
// flagging every pixel any detector marked as a candidate.
func Detect(f *field.PixelField, cfg Config) *field.GlitchMap {
	cfg = cfg.withDefaults()
	gm := field.NewGlitchMap(f.Width, f.Height)

	detectIterationDiscontinuity(f, gm, cfg)
	detectIsolatedPixel(f, gm)
	detectStatisticalOutlier(f, gm, cfg)

	return gm
}

// detectIterationDiscontinuity flags an escaped pixel whose 4 neighbors
// are all also escaped but >=3 of them differ in smoothed iteration by
// more than IterDiff.
func detectIterationDiscontinuity(f *field.PixelField, gm *field.GlitchMap, cfg Config) {
	w, h := f.Width, f.Height
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := f.Index(x, y)
			if !f.Escaped[i] {
				continue
			}
			four := neighbors4(x, y, w, h)
			if len(four) < 4 {
				continue
			}
			allEscaped := true
			for _, n := range four {
				if !f.Escaped[f.Index(n[0], n[1])] {
					allEscaped = false
					break
				}
			}
			if !allEscaped {
				continue
			}
			diffCount := 0
			for _, n := range four {
				ni := f.Index(n[0], n[1])
				d := f.Iterations[i] - f.Iterations[ni]
				if d < 0 {
					d = -d
				}
				if d > cfg.IterDiff {
					diffCount++
				}
			}
			if diffCount >= 3 {
				gm.Bytes[i] = field.Candidate
			}
		}
	}
}

// detectIsolatedPixel flags a pixel whose 8-neighborhood disagrees on the
// escaped flag entirely (all 8 different) or 7-of-8 differ and the pixel
// itself escaped.
func detectIsolatedPixel(f *field.PixelField, gm *field.GlitchMap) {
	w, h := f.Width, f.Height
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := f.Index(x, y)
			eight := neighbors8(x, y, w, h)
			if len(eight) == 0 {
				continue
			}
			diff := 0
			for _, n := range eight {
				ni := f.Index(n[0], n[1])
				if f.Escaped[ni] != f.Escaped[i] {
					diff++
				}
			}
			if diff == len(eight) || (diff == len(eight)-1 && f.Escaped[i]) {
				gm.Bytes[i] = field.Candidate
			}
		}
	}
}

// detectStatisticalOutlier flags a pixel whose smoothed iteration count
// deviates from its 5x5-window escaped-neighbor mean by more than
// OutlierSigma standard deviations.
func detectStatisticalOutlier(f *field.PixelField, gm *field.GlitchMap, cfg Config) {
	w, h := f.Width, f.Height
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := f.Index(x, y)
			if !f.Escaped[i] {
				continue
			}
			var sum, sumSq float64
			n := 0
			for dy := -2; dy <= 2; dy++ {
				for dx := -2; dx <= 2; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					nx, ny := x+dx, y+dy
					if nx < 0 || nx >= w || ny < 0 || ny >= h {
						continue
					}
					ni := f.Index(nx, ny)
					if !f.Escaped[ni] {
						continue
					}
					v := f.Iterations[ni]
					sum += v
					sumSq += v * v
					n++
				}
			}
			if n < 2 {
				continue
			}
			mean := sum / float64(n)
			variance := sumSq/float64(n) - mean*mean
			if variance < 0 {
				variance = 0
			}
			stddev := math.Sqrt(variance)
			d := f.Iterations[i] - mean
			if d < 0 {
				d = -d
			}
			if stddev > 0 && d > cfg.OutlierSigma*stddev {
				gm.Bytes[i] = field.Candidate
			}
		}
	}
}

// Cluster performs 4-neighborhood connected-component flood fill over
// every Candidate pixel in gm, discarding clusters smaller than
// cfg.MinCluster as noise.
func Cluster(gm *field.GlitchMap, cfg Config) []field.GlitchRegion {
	cfg = cfg.withDefaults()
	w, h := gm.Width, gm.Height
	visited := make([]bool, w*h)
	var regions []field.GlitchRegion

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := gm.Index(x, y)
			if gm.Bytes[i] != field.Candidate || visited[i] {
				continue
			}
			var pixels []int
			stack := [][2]int{{x, y}}
			visited[i] = true
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				pi := gm.Index(p[0], p[1])
				pixels = append(pixels, pi)
				for _, n := range neighbors4(p[0], p[1], w, h) {
					ni := gm.Index(n[0], n[1])
					if gm.Bytes[ni] == field.Candidate && !visited[ni] {
						visited[ni] = true
						stack = append(stack, n)
					}
				}
			}
			if len(pixels) < cfg.MinCluster {
				continue
			}
			regions = append(regions, field.GlitchRegion{Pixels: pixels})
		}
	}
	return regions
}

// Classify assigns a ClusterType and CorrectionStrategy to each region in
// place, given the completed PixelField.
func Classify(regions []field.GlitchRegion, f *field.PixelField, cfg Config) {
	cfg = cfg.withDefaults()
	for idx := range regions {
		r := &regions[idx]
		escaped, interior := 0, 0
		for _, i := range r.Pixels {
			if f.Escaped[i] {
				escaped++
			} else {
				interior++
			}
		}
		total := len(r.Pixels)
		allEscaped := escaped == total

		switch {
		case allEscaped:
			r.Type = field.BailoutArtifact
			if total <= cfg.MaxIsolated {
				r.Strategy = field.Interpolate
			} else {
				r.Strategy = field.IncreaseIter
			}
		case float64(interior)/float64(total) > 0.8:
			r.Type = field.PerturbationUnderflow
			r.Strategy = field.HighPrecision
		default:
			r.Type = field.ReferenceOrbitGlitch
			r.Strategy = field.Rebase
		}

		r.Severity = float64(total) / float64(f.Width*f.Height)
	}
}

// BoundingBox returns the pixel-space rectangle covering every pixel in
// region (used by the Rebase corrector to choose a new reference point).
func BoundingBox(r field.GlitchRegion, width int) (minX, minY, maxX, maxY int) {
	minX, minY = math.MaxInt32, math.MaxInt32
	maxX, maxY = -1, -1
	for _, i := range r.Pixels {
		x := i % width
		y := i / width
		if x < minX {
			minX = x
		}
		if x > maxX {
			maxX = x
		}
		if y < minY {
			minY = y
		}
		if y > maxY {
			maxY = y
		}
	}
	return
}
