// Correction strategies for glitch.Classify's output: Interpolate,
// IncreaseIter, HighPrecision, and Rebase. HighPrecision and Rebase both
// funnel through rebuildAndRerun; rebasing subsumes the high-precision
// case, which only raises the working precision first.
package glitch

import (
	"math"

	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/bigfloat"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/direct"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/field"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/fractal"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/orbit"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/perturb"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/series"
)

// PixelMapper converts a flat pixel index into its absolute fractal-space
// coordinate, using the viewport the render is currently using.
type PixelMapper func(index int) complex128

// Interpolate averages each flagged pixel's non-glitch 8-neighbors for
// every PixelField channel, clearing the pixel's glitch byte on success
// (the remedy for small all-escaped clusters).
func Interpolate(f *field.PixelField, gm *field.GlitchMap, region field.GlitchRegion) int {
	corrected := 0
	w, h := f.Width, f.Height
	for _, i := range region.Pixels {
		x, y := i%w, i/w
		var acc field.PixelValue
		escapedVotes, count := 0, 0
		for _, nb := range neighbors8(x, y, w, h) {
			ni := f.Index(nb[0], nb[1])
			if gm.Bytes[ni] != field.NoGlitch {
				continue
			}
			v := f.GetPixel(nb[0], nb[1])
			acc.Iterations += v.Iterations
			acc.OrbitFinalRe += v.OrbitFinalRe
			acc.OrbitFinalIm += v.OrbitFinalIm
			acc.DistanceEstimate += v.DistanceEstimate
			acc.Potential += v.Potential
			acc.FinalAngle += v.FinalAngle
			if v.Escaped {
				escapedVotes++
			}
			count++
		}
		if count == 0 {
			continue
		}
		acc.Escaped = escapedVotes*2 >= count
		acc.Iterations /= float64(count)
		acc.OrbitFinalRe /= float64(count)
		acc.OrbitFinalIm /= float64(count)
		acc.DistanceEstimate /= float64(count)
		acc.Potential /= float64(count)
		acc.FinalAngle /= float64(count)
		f.SetPixel(x, y, acc)
		gm.Bytes[i] = field.NoGlitch
		corrected++
	}
	return corrected
}

// RerunConfig carries the shared immutable context IncreaseIter/Rebase/
// HighPrecision need to recompute pixels: the formula, the bailout
// radius, and a mapper from pixel index to fractal-space coordinate.
type RerunConfig struct {
	Formula             fractal.Formula
	PixelToC            PixelMapper
	BailoutR2           float64
	PeriodicityInterval int
}

// IncreaseIter re-runs the direct iterator on every pixel in region at
// 2*maxIter, the remedy for a BailoutArtifact cluster too large to
// interpolate.
func IncreaseIter(f *field.PixelField, gm *field.GlitchMap, region field.GlitchRegion, cfg RerunConfig, maxIter int) int {
	corrected := 0
	w := f.Width
	for _, i := range region.Pixels {
		x, y := i%w, i/w
		pixel := cfg.PixelToC(i)
		r := direct.Iterate(direct.Config{
			Formula:             cfg.Formula,
			Pixel:               pixel,
			MaxIter:             2 * maxIter,
			BailoutR2:           cfg.BailoutR2,
			PeriodicityInterval: cfg.PeriodicityInterval,
		})
		f.SetPixel(x, y, field.PixelValue{
			Iterations:   r.Iterations,
			Escaped:      r.Escaped,
			OrbitFinalRe: real(r.OrbitFinal),
			OrbitFinalIm: imag(r.OrbitFinal),
		})
		gm.Bytes[i] = field.NoGlitch
		corrected++
	}
	return corrected
}

// RebaseConfig parameterizes Rebase/HighPrecision: how to build a fresh
// reference orbit centered in (or near) the glitch cluster.
type RebaseConfig struct {
	Kind            fractal.Kind
	Params          fractal.Params
	MaxIter         int
	BailoutR2       float64
	CheckpointEvery int
	TrackDerivative bool
	SeriesCfg       series.Config
}

// Rebase chooses a new reference point inside region's bounding box,
// rebuilds the reference orbit and series approximation there, and
// re-runs the cluster's pixels through the perturbation iterator (the
// remedy for ReferenceOrbitGlitch clusters).
func Rebase(f *field.PixelField, gm *field.GlitchMap, region field.GlitchRegion, cfg RerunConfig, rcfg RebaseConfig, precisionBits uint) (*orbit.Orbit, int, error) {
	return rebuildAndRerun(f, gm, region, cfg, rcfg, precisionBits)
}

// HighPrecision raises precisionBits before delegating to the same
// rebuild-and-rerun path Rebase uses (the remedy for
// PerturbationUnderflow clusters): a rebase at raised working precision,
// not a separate code path.
func HighPrecision(f *field.PixelField, gm *field.GlitchMap, region field.GlitchRegion, cfg RerunConfig, rcfg RebaseConfig, currentBits uint) (*orbit.Orbit, int, error) {
	raised := currentBits * 2
	if raised < currentBits+64 {
		raised = currentBits + 64
	}
	return rebuildAndRerun(f, gm, region, cfg, rcfg, raised)
}

func rebuildAndRerun(f *field.PixelField, gm *field.GlitchMap, region field.GlitchRegion, cfg RerunConfig, rcfg RebaseConfig, precisionBits uint) (*orbit.Orbit, int, error) {
	minX, minY, maxX, maxY := BoundingBox(region, f.Width)
	cx, cy := (minX+maxX)/2, (minY+maxY)/2
	newRef := cfg.PixelToC(f.Index(cx, cy))

	refPoint := bigfloat.NewComplex(real(newRef), imag(newRef), precisionBits)

	o, err := orbit.BuildOrbit(orbit.Config{
		ReferencePoint:  refPoint,
		Kind:            rcfg.Kind,
		Params:          rcfg.Params,
		MaxIter:         rcfg.MaxIter,
		BailoutR2:       rcfg.BailoutR2,
		CheckpointEvery: rcfg.CheckpointEvery,
		TrackDerivative: rcfg.TrackDerivative,
	})
	if err != nil {
		return nil, 0, err
	}

	var approx *series.Approximation
	radius := boundingRadius(region, f.Width, cfg.PixelToC, newRef)
	if rcfg.SeriesCfg.Terms > 0 {
		sc := rcfg.SeriesCfg
		sc.Radius = radius
		approx = series.Build(o.Z, sc)
	}

	corrected := 0
	for _, i := range region.Pixels {
		x, y := i%f.Width, i/f.Width
		pixel := cfg.PixelToC(i)
		deltaC := pixel - newRef

		var deltaZStart complex128
		start := 0
		if approx != nil && approx.ValidAt(deltaC) {
			deltaZStart = approx.DeltaZAt(deltaC)
			start = approx.SkipIter
		}

		r := perturb.Iterate(perturb.Config{
			Formula:        cfg.Formula,
			Z:              o.Z,
			DeltaCStart:    deltaC,
			DeltaZStart:    deltaZStart,
			StartIteration: start,
			MaxIter:        rcfg.MaxIter,
			BailoutR2:      rcfg.BailoutR2,
		})

		f.SetPixel(x, y, field.PixelValue{
			Iterations:   r.Iterations,
			Escaped:      r.Escaped,
			OrbitFinalRe: real(r.OrbitFinal),
			OrbitFinalIm: imag(r.OrbitFinal),
		})
		if r.GlitchCandidate {
			gm.Bytes[i] = field.Candidate
		} else {
			gm.Bytes[i] = field.NoGlitch
			corrected++
		}
	}

	return o, corrected, nil
}

func boundingRadius(region field.GlitchRegion, width int, pixelToC PixelMapper, center complex128) float64 {
	var maxR float64
	for _, i := range region.Pixels {
		d := pixelToC(i) - center
		r := real(d)*real(d) + imag(d)*imag(d)
		if r > maxR {
			maxR = r
		}
	}
	return math.Sqrt(maxR)
}
