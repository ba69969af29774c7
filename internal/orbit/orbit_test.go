package orbit

import (
	"math/cmplx"
	"testing"

	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/bigfloat"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/fractal"
)

func TestBuildOrbitInteriorPoint(t *testing.T) {
	cfg := Config{
		ReferencePoint:  bigfloat.NewComplex(-0.5, 0, 128),
		Kind:            fractal.Mandelbrot,
		MaxIter:         500,
		BailoutR2:       4,
		CheckpointEvery: 100,
	}
	o, err := BuildOrbit(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if o.Escaped {
		t.Errorf("expected interior reference point, got escaped at %d", o.EscapeIteration)
	}
	if o.Len() != cfg.MaxIter+1 {
		t.Errorf("Len() = %d, want %d", o.Len(), cfg.MaxIter+1)
	}
	if len(o.Checkpoints) == 0 {
		t.Error("expected at least one checkpoint")
	}
}

func TestBuildOrbitEscapingPoint(t *testing.T) {
	cfg := Config{
		ReferencePoint:  bigfloat.NewComplex(2, 2, 128),
		Kind:            fractal.Mandelbrot,
		MaxIter:         1000,
		BailoutR2:       4,
		CheckpointEvery: 100,
	}
	o, err := BuildOrbit(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !o.Escaped {
		t.Fatal("expected (2,2) to escape quickly")
	}
	if o.EscapeIteration > 5 {
		t.Errorf("EscapeIteration = %d, want small (<=5)", o.EscapeIteration)
	}
	if o.Len() != o.EscapeIteration+1 {
		t.Errorf("Len() = %d, want EscapeIteration+1 = %d", o.Len(), o.EscapeIteration+1)
	}
}

func TestReferenceOrbitFidelity(t *testing.T) {
	cfg := Config{
		ReferencePoint:  bigfloat.NewComplex(-0.5, 0.1, 256),
		Kind:            fractal.Mandelbrot,
		MaxIter:         200,
		BailoutR2:       4,
		CheckpointEvery: 50,
	}
	o, err := BuildOrbit(cfg)
	if err != nil {
		t.Fatal(err)
	}
	// Recompute directly from a checkpoint and compare to the stored
	// double projection stays faithful to the high-precision value.
	cp, ok := o.NearestCheckpoint(100)
	if !ok {
		t.Fatal("expected a checkpoint at or before iteration 100")
	}
	formula, _ := fractal.New(fractal.Mandelbrot, fractal.Params{})
	Z := cp.Z
	for n := cp.Iteration; n < 100; n++ {
		var err error
		Z, err = formula.BigStep(Z, cfg.ReferencePoint, 0)
		if err != nil {
			t.Fatal(err)
		}
	}
	want := Z.ToComplex128()
	got := o.DoubleAt(100)
	if diff := cmplx.Abs(got - want); diff > 1e-9 {
		t.Errorf("DoubleAt(100) = %v, recomputed = %v (diff %v)", got, want, diff)
	}
}

func TestCacheReusesIdenticalConfig(t *testing.T) {
	c := NewCache()
	cfg := Config{
		ReferencePoint:  bigfloat.NewComplex(-0.5, 0, 128),
		Kind:            fractal.Mandelbrot,
		MaxIter:         300,
		BailoutR2:       4,
		CheckpointEvery: 100,
	}
	o1, err := c.Get(cfg)
	if err != nil {
		t.Fatal(err)
	}
	o2, err := c.Get(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if o1 != o2 {
		t.Error("expected identical Config to reuse the same cached Orbit")
	}
}

func TestJuliaOrbitSeedsAtReferencePoint(t *testing.T) {
	cfg := Config{
		ReferencePoint:  bigfloat.NewComplex(1, 0, 128),
		Kind:            fractal.Julia,
		Params:          fractal.Params{JuliaC: complex(-0.7, 0.27015)},
		MaxIter:         50,
		BailoutR2:       4,
		CheckpointEvery: 20,
	}
	o, err := BuildOrbit(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if o.DoubleAt(0) != complex(1, 0) {
		t.Errorf("Julia orbit should seed Z[0] at the reference point, got %v", o.DoubleAt(0))
	}
}
