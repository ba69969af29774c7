package render

import (
	"math"
	"math/big"

	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/bigfloat"
)

const roundNearest = big.ToNearestEven

// Viewport is the render-time camera: a high-precision center, a zoom
// (pixels per unit in fractal space), and a rotation in radians.
// Invariant: Zoom > 0. A Viewport is immutable within one render.
type Viewport struct {
	CenterRe *bigfloat.Value
	CenterIm *bigfloat.Value
	Zoom     *bigfloat.Value
	Rotation float64
}

// ZoomFloat returns the viewport's zoom as a double, the precision
// dispatcher's input; the thresholds are double-precision even though the
// stored value is a BigFloat.
func (v Viewport) ZoomFloat() float64 {
	return v.Zoom.Float64(roundNearest)
}

// CenterComplex returns the viewport center as a double-precision
// complex, used to build a double-precision pixel mapper for the direct
// iterator and as the perturbation path's reference-point seed.
func (v Viewport) CenterComplex() complex128 {
	return complex(v.CenterRe.Float64(roundNearest), v.CenterIm.Float64(roundNearest))
}

// CenterBigComplex returns the viewport center as a bigfloat.Complex at
// the given precision, used to seed the reference-orbit engine.
func (v Viewport) CenterBigComplex(precBits uint) bigfloat.Complex {
	re := v.CenterRe
	im := v.CenterIm
	if precBits != 0 {
		re, _ = bigfloat.Add(re, bigfloat.Zero(precBits), precBits)
		im, _ = bigfloat.Add(im, bigfloat.Zero(precBits), precBits)
	}
	return bigfloat.Complex{Re: re, Im: im}
}

// PixelMapper converts pixel (x, y) into the corresponding fractal-space
// coordinate, applying the viewport's zoom and rotation around its
// center. zoom is pixels per unit, so one fractal-space unit spans `zoom`
// pixels.
type PixelMapper struct {
	width, height int
	zoom          float64
	sinR, cosR    float64
	center        complex128
}

// NewPixelMapper builds a double-precision pixel mapper for one render.
func NewPixelMapper(width, height int, v Viewport) PixelMapper {
	zoom := v.ZoomFloat()
	if zoom <= 0 {
		zoom = 1
	}
	return PixelMapper{
		width:  width,
		height: height,
		zoom:   zoom,
		sinR:   math.Sin(v.Rotation),
		cosR:   math.Cos(v.Rotation),
		center: v.CenterComplex(),
	}
}

// At returns the fractal-space coordinate for pixel (x, y).
func (m PixelMapper) At(x, y int) complex128 {
	dx := (float64(x) - float64(m.width)/2) / m.zoom
	dy := (float64(y) - float64(m.height)/2) / m.zoom
	rx := dx*m.cosR - dy*m.sinR
	ry := dx*m.sinR + dy*m.cosR
	return m.center + complex(rx, ry)
}

// AtIndex is the flat-index convenience form of At, for the glitch
// corrector's PixelMapper contract.
func (m PixelMapper) AtIndex(index int) complex128 {
	return m.At(index%m.width, index/m.width)
}

// AtF is the continuous-coordinate form of At, used by the supersampler to
// evaluate sub-pixel offsets rather than only integer pixel centers.
func (m PixelMapper) AtF(x, y float64) complex128 {
	dx := (x - float64(m.width)/2) / m.zoom
	dy := (y - float64(m.height)/2) / m.zoom
	rx := dx*m.cosR - dy*m.sinR
	ry := dx*m.sinR + dy*m.cosR
	return m.center + complex(rx, ry)
}

// PixelRadius returns the fractal-space distance spanned by rPixels
// pixels. Given the image's half-diagonal in pixels it is an upper bound
// on |δc|, used to size the series approximation's validity radius.
func (m PixelMapper) PixelRadius(rPixels float64) float64 {
	return rPixels / m.zoom
}
