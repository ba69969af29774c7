// Package perturb implements the perturbation iterator (component D):
// advancing δz against a cached reference orbit Z, seeded optionally from a
// series approximation's skip index, with glitch-candidate marking.
package perturb

import (
	"math"

	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/fractal"
)

// DefaultUnderflowAlpha is α in |z_n|² < α·|δz_n|².
const DefaultUnderflowAlpha = 1e-3

// Result carries the per-pixel outcome of one perturbation run, the fields
// that feed into the PixelField.
type Result struct {
	Escaped         bool
	Iterations      float64 // smoothed iteration count
	OrbitFinal      complex128
	GlitchCandidate bool
	IterationsUsed  int
}

// Config parameterizes Iterate.
type Config struct {
	Formula        fractal.Formula
	Z              []complex128 // reference orbit double projection
	DeltaCStart    complex128
	DeltaZStart    complex128 // seeded from a series approximation, may be 0
	StartIteration int        // S, the series skipIter; 0 if unused
	MaxIter        int
	BailoutR2      float64
	UnderflowAlpha float64
}

// Iterate runs the perturbation recurrence δz_{n+1} = Step(Z_n, δz_n, δc)
// starting at StartIteration, using the reference orbit's full orbit value
// z_n = Z_n + δz_n for the bailout check.
func Iterate(cfg Config) Result {
	alpha := cfg.UnderflowAlpha
	if alpha <= 0 {
		alpha = DefaultUnderflowAlpha
	}
	bailoutR2 := cfg.BailoutR2
	if bailoutR2 <= 0 {
		bailoutR2 = 4
	}

	deltaZ := cfg.DeltaZStart
	glitch := false

	n := cfg.StartIteration
	if n >= len(cfg.Z) {
		n = len(cfg.Z) - 1
	}
	if n < 0 {
		n = 0
	}

	for ; n < cfg.MaxIter && n < len(cfg.Z); n++ {
		Z := cfg.Z[n]
		full := Z + deltaZ

		mag2 := real(full)*real(full) + imag(full)*imag(full)
		dmag2 := real(deltaZ)*real(deltaZ) + imag(deltaZ)*imag(deltaZ)

		if dmag2 > 0 && mag2 < alpha*dmag2 {
			glitch = true
		}

		if mag2 > bailoutR2 {
			absz := math.Sqrt(mag2)
			smoothed := float64(n) + 1 - math.Log2(math.Log(absz)/math.Log(math.Sqrt(bailoutR2)))
			return Result{
				Escaped:         true,
				Iterations:      smoothed,
				OrbitFinal:      full,
				GlitchCandidate: glitch,
				IterationsUsed:  n + 1,
			}
		}

		deltaZ = cfg.Formula.PerturbDelta(Z, deltaZ, cfg.DeltaCStart)
	}

	last := cfg.Z[len(cfg.Z)-1] + deltaZ
	return Result{
		Escaped:         false,
		Iterations:      float64(cfg.MaxIter),
		OrbitFinal:      last,
		GlitchCandidate: glitch,
		IterationsUsed:  cfg.MaxIter,
	}
}
