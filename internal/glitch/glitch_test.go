package glitch

import (
	"testing"

	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/field"
)

// uniformField builds a w x h field where every pixel escaped with the
// given smoothed iteration count.
func uniformField(w, h int, iter float64) *field.PixelField {
	f := field.New(w, h)
	for i := range f.Iterations {
		f.Iterations[i] = iter
		f.Escaped[i] = true
	}
	return f
}

func TestDetect_SmoothFieldHasNoFlags(t *testing.T) {
	f := uniformField(16, 16, 25)

	gm := Detect(f, DefaultConfig())

	for i, b := range gm.Bytes {
		if b != field.NoGlitch {
			t.Fatalf("pixel %d flagged in a perfectly smooth field", i)
		}
	}
}

func TestDetect_IterationDiscontinuity(t *testing.T) {
	f := uniformField(9, 9, 10)
	center := f.Index(4, 4)
	f.Iterations[center] = 200 // differs from all 4 neighbors by 190 > IterDiff

	gm := Detect(f, DefaultConfig())

	if gm.Bytes[center] != field.Candidate {
		t.Error("discontinuous pixel not flagged")
	}
}

func TestDetect_DiscontinuityNeedsThreeNeighbors(t *testing.T) {
	f := uniformField(9, 9, 10)
	center := f.Index(4, 4)
	// Only two neighbors differ strongly from the center.
	f.Iterations[f.Index(3, 4)] = 100
	f.Iterations[f.Index(5, 4)] = 100

	gm := field.NewGlitchMap(9, 9)
	detectIterationDiscontinuity(f, gm, DefaultConfig())

	if gm.Bytes[center] != field.NoGlitch {
		t.Error("pixel flagged with only 2 differing neighbors (threshold is 3)")
	}
}

func TestDetect_IsolatedPixel(t *testing.T) {
	f := uniformField(9, 9, 10)
	center := f.Index(4, 4)
	f.Escaped[center] = false // interior pixel in a sea of escaped
	f.Iterations[center] = 0

	gm := field.NewGlitchMap(9, 9)
	detectIsolatedPixel(f, gm)

	if gm.Bytes[center] != field.Candidate {
		t.Error("isolated interior pixel not flagged")
	}
}

func TestDetect_StatisticalOutlier(t *testing.T) {
	f := uniformField(11, 11, 50)
	// Introduce mild noise so the window stddev is nonzero.
	for y := 0; y < 11; y++ {
		for x := 0; x < 11; x++ {
			f.Iterations[f.Index(x, y)] = 50 + float64((x+y)%3)
		}
	}
	center := f.Index(5, 5)
	f.Iterations[center] = 500

	gm := field.NewGlitchMap(11, 11)
	detectStatisticalOutlier(f, gm, DefaultConfig())

	if gm.Bytes[center] != field.Candidate {
		t.Error("statistical outlier not flagged")
	}
}

func TestCluster_DiscardsNoise(t *testing.T) {
	gm := field.NewGlitchMap(16, 16)

	// A 2x2 block (size 4 = MinCluster, kept) and a lone pixel (discarded).
	for _, p := range [][2]int{{4, 4}, {5, 4}, {4, 5}, {5, 5}} {
		gm.Bytes[gm.Index(p[0], p[1])] = field.Candidate
	}
	gm.Bytes[gm.Index(12, 12)] = field.Candidate

	regions := Cluster(gm, DefaultConfig())

	if len(regions) != 1 {
		t.Fatalf("expected 1 region, got %d", len(regions))
	}
	if len(regions[0].Pixels) != 4 {
		t.Errorf("expected 4 pixels in region, got %d", len(regions[0].Pixels))
	}
}

func TestCluster_FourNeighborhoodOnly(t *testing.T) {
	gm := field.NewGlitchMap(16, 16)

	// Two 2x2 blocks touching only diagonally must remain separate regions.
	for _, p := range [][2]int{{2, 2}, {3, 2}, {2, 3}, {3, 3}} {
		gm.Bytes[gm.Index(p[0], p[1])] = field.Candidate
	}
	for _, p := range [][2]int{{4, 4}, {5, 4}, {4, 5}, {5, 5}} {
		gm.Bytes[gm.Index(p[0], p[1])] = field.Candidate
	}

	regions := Cluster(gm, DefaultConfig())

	if len(regions) != 2 {
		t.Errorf("diagonal blocks merged; expected 2 regions, got %d", len(regions))
	}
}

func TestClassify(t *testing.T) {
	f := field.New(16, 16)
	for i := range f.Escaped {
		f.Escaped[i] = true
	}

	t.Run("small all-escaped is BailoutArtifact/Interpolate", func(t *testing.T) {
		regions := []field.GlitchRegion{{Pixels: []int{0, 1, 2, 3}}}
		Classify(regions, f, DefaultConfig())
		if regions[0].Type != field.BailoutArtifact {
			t.Errorf("type = %v", regions[0].Type)
		}
		if regions[0].Strategy != field.Interpolate {
			t.Errorf("strategy = %v", regions[0].Strategy)
		}
	})

	t.Run("large all-escaped is BailoutArtifact/IncreaseIter", func(t *testing.T) {
		pixels := make([]int, 20)
		for i := range pixels {
			pixels[i] = i
		}
		regions := []field.GlitchRegion{{Pixels: pixels}}
		Classify(regions, f, DefaultConfig())
		if regions[0].Type != field.BailoutArtifact {
			t.Errorf("type = %v", regions[0].Type)
		}
		if regions[0].Strategy != field.IncreaseIter {
			t.Errorf("strategy = %v", regions[0].Strategy)
		}
	})

	t.Run("mostly interior is PerturbationUnderflow/HighPrecision", func(t *testing.T) {
		g := field.New(16, 16)
		g.Escaped[0] = true // 1 escaped of 10 pixels -> 90% interior
		pixels := make([]int, 10)
		for i := range pixels {
			pixels[i] = i
		}
		regions := []field.GlitchRegion{{Pixels: pixels}}
		Classify(regions, g, DefaultConfig())
		if regions[0].Type != field.PerturbationUnderflow {
			t.Errorf("type = %v", regions[0].Type)
		}
		if regions[0].Strategy != field.HighPrecision {
			t.Errorf("strategy = %v", regions[0].Strategy)
		}
	})

	t.Run("mixed is ReferenceOrbitGlitch/Rebase", func(t *testing.T) {
		g := field.New(16, 16)
		for i := 0; i < 5; i++ {
			g.Escaped[i] = true // half escaped, half interior
		}
		pixels := make([]int, 10)
		for i := range pixels {
			pixels[i] = i
		}
		regions := []field.GlitchRegion{{Pixels: pixels}}
		Classify(regions, g, DefaultConfig())
		if regions[0].Type != field.ReferenceOrbitGlitch {
			t.Errorf("type = %v", regions[0].Type)
		}
		if regions[0].Strategy != field.Rebase {
			t.Errorf("strategy = %v", regions[0].Strategy)
		}
	})
}

func TestInterpolate(t *testing.T) {
	f := uniformField(5, 5, 10)
	center := f.Index(2, 2)
	f.Iterations[center] = 999 // the glitched value

	gm := field.NewGlitchMap(5, 5)
	gm.Bytes[center] = field.Candidate
	region := field.GlitchRegion{Pixels: []int{center}}

	corrected := Interpolate(f, gm, region)

	if corrected != 1 {
		t.Fatalf("corrected = %d, want 1", corrected)
	}
	if f.Iterations[center] != 10 {
		t.Errorf("interpolated iterations = %v, want 10", f.Iterations[center])
	}
	if !f.Escaped[center] {
		t.Error("majority-escaped neighborhood should leave the pixel escaped")
	}
	if gm.Bytes[center] != field.NoGlitch {
		t.Error("glitch byte not cleared after correction")
	}
}

func TestInterpolate_AllNeighborsGlitched(t *testing.T) {
	f := uniformField(5, 5, 10)
	gm := field.NewGlitchMap(5, 5)

	// Flag the center and its whole 8-neighborhood; the center then has no
	// clean neighbor to average from and must stay uncorrected.
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			gm.Bytes[f.Index(2+dx, 2+dy)] = field.Candidate
		}
	}

	corrected := Interpolate(f, gm, field.GlitchRegion{Pixels: []int{f.Index(2, 2)}})

	if corrected != 0 {
		t.Errorf("corrected = %d, want 0 when no clean neighbors exist", corrected)
	}
	if gm.Bytes[f.Index(2, 2)] != field.Candidate {
		t.Error("uncorrectable pixel's glitch byte should stay set")
	}
}

func TestBoundingBox(t *testing.T) {
	width := 16
	region := field.GlitchRegion{Pixels: []int{
		3*width + 5, // (5, 3)
		4*width + 2, // (2, 4)
		6*width + 9, // (9, 6)
	}}

	minX, minY, maxX, maxY := BoundingBox(region, width)

	if minX != 2 || minY != 3 || maxX != 9 || maxY != 6 {
		t.Errorf("bounding box = (%d,%d)-(%d,%d), want (2,3)-(9,6)", minX, minY, maxX, maxY)
	}
}

func TestDetect_SecondPassIsStable(t *testing.T) {
	// Glitch idempotence: after interpolation corrects a flagged pixel,
	// a second detection pass reports nothing new.
	f := uniformField(9, 9, 10)
	center := f.Index(4, 4)
	f.Iterations[center] = 200

	gm := Detect(f, DefaultConfig())
	if gm.Bytes[center] != field.Candidate {
		t.Fatal("setup: pixel should be flagged")
	}
	Interpolate(f, gm, field.GlitchRegion{Pixels: []int{center}})

	gm2 := Detect(f, DefaultConfig())
	for i, b := range gm2.Bytes {
		if b != field.NoGlitch {
			t.Fatalf("pixel %d flagged on second pass after correction", i)
		}
	}
}
