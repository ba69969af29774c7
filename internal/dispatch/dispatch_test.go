package dispatch

import "testing"

func TestDecideThresholds(t *testing.T) {
	cases := []struct {
		zoom float64
		want Mode
	}{
		{200, DOUBLE},
		{1e12, DOUBLE},
		{1e13, PERTURBATION},
		{1e14, PERTURBATION},
		{1e15, ARBITRARY},
		{1e20, ARBITRARY},
	}
	for _, c := range cases {
		d, err := Decide(c.zoom, DefaultThresholds(), nil)
		if err != nil {
			t.Fatalf("Decide(%v): %v", c.zoom, err)
		}
		if d.Mode != c.want {
			t.Errorf("Decide(%v) = %v, want %v", c.zoom, d.Mode, c.want)
		}
	}
}

func TestDecideInvalidZoom(t *testing.T) {
	for _, z := range []float64{0, -1} {
		if _, err := Decide(z, DefaultThresholds(), nil); err == nil {
			t.Errorf("Decide(%v) expected ErrInvalidZoom", z)
		}
	}
}

func TestDecidePrecisionScalesWithZoom(t *testing.T) {
	low, _ := Decide(1e14, DefaultThresholds(), nil)
	high, _ := Decide(1e18, DefaultThresholds(), nil)
	if high.PrecisionBits <= low.PrecisionBits {
		t.Errorf("expected precision to grow with zoom: %d vs %d", low.PrecisionBits, high.PrecisionBits)
	}
}

func TestDecideOverrideForcesMode(t *testing.T) {
	forced := ARBITRARY
	d, err := Decide(200, DefaultThresholds(), &forced)
	if err != nil {
		t.Fatal(err)
	}
	if d.Mode != ARBITRARY {
		t.Errorf("override should force ARBITRARY even at low zoom, got %v", d.Mode)
	}
	if d.PrecisionBits == 0 {
		t.Error("expected nonzero precision bits for forced ARBITRARY mode")
	}
}

func TestDecideDoubleModeHasZeroPrecisionBits(t *testing.T) {
	d, err := Decide(100, DefaultThresholds(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if d.PrecisionBits != 0 {
		t.Errorf("DOUBLE mode should report PrecisionBits=0, got %d", d.PrecisionBits)
	}
}

func TestModeString(t *testing.T) {
	if DOUBLE.String() != "DOUBLE" || PERTURBATION.String() != "PERTURBATION" || ARBITRARY.String() != "ARBITRARY" {
		t.Error("unexpected Mode.String() output")
	}
}
