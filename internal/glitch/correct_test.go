package glitch

import (
	"testing"

	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/field"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/fractal"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/series"
)

// mapperForRegion maps every pixel of a w-wide field onto a small disk
// of fractal-space points around center, spaced one step apart.
func mapperForRegion(w int, center complex128, step float64) PixelMapper {
	return func(index int) complex128 {
		x, y := index%w, index/w
		return center + complex(float64(x-w/2)*step, float64(y-w/2)*step)
	}
}

func TestIncreaseIter(t *testing.T) {
	formula, err := fractal.New(fractal.Mandelbrot, fractal.Params{})
	if err != nil {
		t.Fatal(err)
	}

	const w = 5
	f := field.New(w, w)
	gm := field.NewGlitchMap(w, w)

	// Pixels map to points near 0.5+0.5i, all well outside the set; seed
	// the field with wrong values and flag every pixel.
	mapper := mapperForRegion(w, complex(0.5, 0.5), 1e-3)
	var pixels []int
	for i := range f.Iterations {
		f.Iterations[i] = 12345 // bogus
		f.Escaped[i] = false    // bogus
		gm.Bytes[i] = field.Candidate
		pixels = append(pixels, i)
	}

	cfg := RerunConfig{
		Formula:   formula,
		PixelToC:  mapper,
		BailoutR2: 4,
	}
	corrected := IncreaseIter(f, gm, field.GlitchRegion{Pixels: pixels}, cfg, 100)

	if corrected != w*w {
		t.Fatalf("corrected = %d, want %d", corrected, w*w)
	}
	for i := range f.Iterations {
		if !f.Escaped[i] {
			t.Fatalf("pixel %d should escape near 0.5+0.5i", i)
		}
		if f.Iterations[i] < 0 || f.Iterations[i] > 200 {
			t.Fatalf("pixel %d iterations = %v outside [0, 2*maxIter]", i, f.Iterations[i])
		}
		if gm.Bytes[i] != field.NoGlitch {
			t.Fatalf("pixel %d glitch byte not cleared", i)
		}
	}
}

func TestRebase(t *testing.T) {
	formula, err := fractal.New(fractal.Mandelbrot, fractal.Params{})
	if err != nil {
		t.Fatal(err)
	}

	const w = 5
	f := field.New(w, w)
	gm := field.NewGlitchMap(w, w)

	// A cluster of pixels near an escaping region; the rebuilt reference
	// orbit is centered inside the cluster's bounding box.
	mapper := mapperForRegion(w, complex(0.5, 0.5), 1e-6)
	var pixels []int
	for i := range f.Iterations {
		gm.Bytes[i] = field.Candidate
		pixels = append(pixels, i)
	}

	cfg := RerunConfig{
		Formula:   formula,
		PixelToC:  mapper,
		BailoutR2: 4,
	}
	rcfg := RebaseConfig{
		Kind:            fractal.Mandelbrot,
		MaxIter:         100,
		BailoutR2:       4,
		CheckpointEvery: 10,
		SeriesCfg:       series.Config{Terms: 4, Tolerance: 1e-6},
	}

	orbitOut, corrected, err := Rebase(f, gm, field.GlitchRegion{Pixels: pixels}, cfg, rcfg, 128)
	if err != nil {
		t.Fatalf("Rebase: %v", err)
	}
	if orbitOut == nil {
		t.Fatal("Rebase returned no orbit")
	}
	if corrected != w*w {
		t.Fatalf("corrected = %d, want %d", corrected, w*w)
	}
	for i := range f.Iterations {
		if !f.Escaped[i] {
			t.Fatalf("pixel %d should escape near 0.5+0.5i after rebase", i)
		}
		if gm.Bytes[i] != field.NoGlitch {
			t.Fatalf("pixel %d glitch byte not cleared", i)
		}
	}
}

func TestHighPrecisionRaisesBits(t *testing.T) {
	formula, err := fractal.New(fractal.Mandelbrot, fractal.Params{})
	if err != nil {
		t.Fatal(err)
	}

	const w = 3
	f := field.New(w, w)
	gm := field.NewGlitchMap(w, w)
	mapper := mapperForRegion(w, complex(0.5, 0.5), 1e-6)
	var pixels []int
	for i := range f.Iterations {
		gm.Bytes[i] = field.Candidate
		pixels = append(pixels, i)
	}

	cfg := RerunConfig{Formula: formula, PixelToC: mapper, BailoutR2: 4}
	rcfg := RebaseConfig{
		Kind:            fractal.Mandelbrot,
		MaxIter:         50,
		BailoutR2:       4,
		CheckpointEvery: 10,
	}

	orbitOut, corrected, err := HighPrecision(f, gm, field.GlitchRegion{Pixels: pixels}, cfg, rcfg, 64)
	if err != nil {
		t.Fatalf("HighPrecision: %v", err)
	}
	if corrected != w*w {
		t.Fatalf("corrected = %d, want %d", corrected, w*w)
	}
	if orbitOut.Precision < 128 {
		t.Errorf("orbit precision = %d bits, want at least doubled from 64", orbitOut.Precision)
	}
}
