// Package palette defines the compute core's one contract with the
// external coloring component: a read-only 256-entry RGBA lookup
// table. The palette engine itself (picking colors, gradients, cycling)
// is a separate component; this package only validates and exposes
// the LUT shape the coordinator hands to callers alongside a PixelField.
package palette

import "fmt"

// Entries is the fixed LUT size the compute core expects: a contiguous
// array of 256*4 RGBA bytes.
const Entries = 256

// LUT is a read-only 256-entry RGBA lookup table, provided by the caller
// before a render starts and never mutated by the compute core.
type LUT struct {
	RGBA [Entries * 4]byte
}

// ErrInvalidSize is returned by New when the supplied bytes are not
// exactly Entries*4 long.
var ErrInvalidSize = fmt.Errorf("palette: expected %d bytes", Entries*4)

// New validates and wraps a caller-supplied RGBA byte slice as a LUT.
func New(rgba []byte) (*LUT, error) {
	if len(rgba) != Entries*4 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidSize, len(rgba))
	}
	var lut LUT
	copy(lut.RGBA[:], rgba)
	return &lut, nil
}

// At returns the RGBA quad for a LUT index in [0, Entries).
func (l *LUT) At(index int) (r, g, b, a byte) {
	i := index * 4
	return l.RGBA[i], l.RGBA[i+1], l.RGBA[i+2], l.RGBA[i+3]
}

// Grayscale builds a trivial identity-ramp LUT, used by the CLI preview
// renderer (cmd/) when the caller does not supply a palette of its own;
// the compute core never constructs this itself in the render path.
func Grayscale() *LUT {
	var lut LUT
	for i := 0; i < Entries; i++ {
		v := byte(i)
		lut.RGBA[i*4] = v
		lut.RGBA[i*4+1] = v
		lut.RGBA[i*4+2] = v
		lut.RGBA[i*4+3] = 255
	}
	return &lut
}
