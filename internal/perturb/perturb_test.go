package perturb

import (
	"testing"

	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/bigfloat"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/fractal"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/orbit"
)

func referenceOrbit(t *testing.T, maxIter int) *orbit.Orbit {
	t.Helper()
	o, err := orbit.BuildOrbit(orbit.Config{
		ReferencePoint:  bigfloat.NewComplex(-0.5, 0, 128),
		Kind:            fractal.Mandelbrot,
		MaxIter:         maxIter,
		BailoutR2:       4,
		CheckpointEvery: 50,
	})
	if err != nil {
		t.Fatal(err)
	}
	return o
}

func TestIteratePixelAtReferenceStaysInterior(t *testing.T) {
	o := referenceOrbit(t, 500)
	formula, _ := fractal.New(fractal.Mandelbrot, fractal.Params{})

	result := Iterate(Config{
		Formula:     formula,
		Z:           o.Z,
		DeltaCStart: 0,
		MaxIter:     500,
		BailoutR2:   4,
	})

	if result.Escaped {
		t.Error("pixel exactly at the reference point should remain interior")
	}
	if result.Iterations != 500 {
		t.Errorf("Iterations = %v, want 500", result.Iterations)
	}
}

func TestIterateEscapingPixelSmoothedIterInRange(t *testing.T) {
	o := referenceOrbit(t, 500)
	formula, _ := fractal.New(fractal.Mandelbrot, fractal.Params{})

	// A pixel offset far enough from the reference to escape quickly.
	deltaC := complex(1.5, 1.5)
	result := Iterate(Config{
		Formula:     formula,
		Z:           o.Z,
		DeltaCStart: deltaC,
		MaxIter:     500,
		BailoutR2:   4,
	})

	if !result.Escaped {
		t.Fatal("expected escape for a large perturbation offset")
	}
	n := float64(result.IterationsUsed - 1)
	if result.Iterations < n || result.Iterations > n+1 {
		t.Errorf("smoothed iterations %v not within [%v, %v]", result.Iterations, n, n+1)
	}
}

func TestIterateSeededFromSkipIter(t *testing.T) {
	o := referenceOrbit(t, 500)
	formula, _ := fractal.New(fractal.Mandelbrot, fractal.Params{})

	full := Iterate(Config{
		Formula:     formula,
		Z:           o.Z,
		DeltaCStart: complex(0.01, 0.01),
		MaxIter:     500,
		BailoutR2:   4,
	})

	seeded := Iterate(Config{
		Formula:        formula,
		Z:              o.Z,
		DeltaCStart:    complex(0.01, 0.01),
		DeltaZStart:    0,
		StartIteration: 0,
		MaxIter:        500,
		BailoutR2:      4,
	})

	if full.Escaped != seeded.Escaped {
		t.Errorf("seeding from StartIteration=0 should match an unseeded run: %v vs %v", full.Escaped, seeded.Escaped)
	}
}

func TestGlitchCandidateFlaggedOnUnderflow(t *testing.T) {
	o := referenceOrbit(t, 100)
	formula, _ := fractal.New(fractal.Mandelbrot, fractal.Params{})

	// Force a δz much larger than z_n = Z_n + δz_n by seeding, at n=1
	// where Z_1 = -0.5, a δz that nearly cancels Z_n, driving
	// |z_n|^2 << |δz_n|^2.
	result := Iterate(Config{
		Formula:        formula,
		Z:              o.Z,
		DeltaCStart:    0,
		DeltaZStart:    -o.Z[1] + complex(1e-9, 0),
		StartIteration: 1,
		MaxIter:        10,
		BailoutR2:      4,
		UnderflowAlpha: 0.5,
	})
	if !result.GlitchCandidate {
		t.Error("expected glitch candidate flag when |z| collapses relative to |δz|")
	}
}
