package palette

import (
	"errors"
	"testing"
)

func TestNew(t *testing.T) {
	raw := make([]byte, Entries*4)
	raw[0], raw[1], raw[2], raw[3] = 10, 20, 30, 255

	lut, err := New(raw)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	r, g, b, a := lut.At(0)
	if r != 10 || g != 20 || b != 30 || a != 255 {
		t.Errorf("At(0) = %d,%d,%d,%d", r, g, b, a)
	}
}

func TestNewRejectsWrongSize(t *testing.T) {
	_, err := New(make([]byte, 100))
	if err == nil {
		t.Fatal("expected error for undersized LUT")
	}
	if !errors.Is(err, ErrInvalidSize) {
		t.Errorf("expected ErrInvalidSize, got %v", err)
	}
}

func TestNewCopiesInput(t *testing.T) {
	raw := make([]byte, Entries*4)
	lut, err := New(raw)
	if err != nil {
		t.Fatal(err)
	}

	raw[0] = 99
	if r, _, _, _ := lut.At(0); r != 0 {
		t.Error("LUT aliased the caller's slice; it must copy")
	}
}

func TestGrayscale(t *testing.T) {
	lut := Grayscale()
	for _, i := range []int{0, 127, 255} {
		r, g, b, a := lut.At(i)
		if int(r) != i || int(g) != i || int(b) != i {
			t.Errorf("At(%d) = %d,%d,%d, want identity ramp", i, r, g, b)
		}
		if a != 255 {
			t.Errorf("At(%d) alpha = %d, want 255", i, a)
		}
	}
}
