package field

import "testing"

func TestNewPixelFieldDimensions(t *testing.T) {
	f := New(4, 3)
	if len(f.Iterations) != 12 {
		t.Errorf("len(Iterations) = %d, want 12", len(f.Iterations))
	}
	if f.Index(2, 1) != 1*4+2 {
		t.Errorf("Index(2,1) = %d, want %d", f.Index(2, 1), 1*4+2)
	}
}

func TestSetGetPixelRoundtrip(t *testing.T) {
	f := New(4, 4)
	v := PixelValue{Iterations: 42.5, Escaped: true, OrbitFinalRe: 1.5, OrbitFinalIm: -2.5, DistanceEstimate: 0.01, Potential: 0.5, FinalAngle: 1.0}
	f.SetPixel(2, 3, v)
	got := f.GetPixel(2, 3)
	if got != v {
		t.Errorf("GetPixel = %+v, want %+v", got, v)
	}
	other := f.GetPixel(0, 0)
	if other.Escaped {
		t.Error("untouched pixel should not be marked escaped")
	}
}

func TestGlitchMapIndexing(t *testing.T) {
	g := NewGlitchMap(8, 8)
	g.Bytes[g.Index(3, 2)] = Candidate
	if g.Bytes[g.Index(3, 2)] != Candidate {
		t.Error("expected Candidate at (3,2)")
	}
	if g.Bytes[g.Index(0, 0)] != NoGlitch {
		t.Error("expected NoGlitch at untouched cell")
	}
}

func TestClusterTypeAndStrategyStrings(t *testing.T) {
	if BailoutArtifact.String() != "BailoutArtifact" {
		t.Error("unexpected ClusterType.String()")
	}
	if Rebase.String() != "Rebase" {
		t.Error("unexpected CorrectionStrategy.String()")
	}
}

func TestComplexityMapIndexing(t *testing.T) {
	m := NewComplexityMap(32, 32)
	m.Cells[m.Index(5, 10)] = 0.75
	if m.Cells[m.Index(5, 10)] != 0.75 {
		t.Error("ComplexityMap cell assignment/read mismatch")
	}
}

func TestStatsString(t *testing.T) {
	s := Stats{TilesCompleted: 3, TilesTotal: 10, PrecisionMode: "DOUBLE"}
	if got := s.String(); got == "" {
		t.Error("expected non-empty Stats.String()")
	}
}
