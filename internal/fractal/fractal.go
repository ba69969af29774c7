// Package fractal defines the closed set of 2D fractal kinds the compute
// core supports and the per-kind formula used by the direct iterator,
// perturbation iterator, and reference-orbit engine. Only the 2D family is
// in scope; 3D kinds are forwarded to an external collaborator (see
// internal/gpu3d) rather than implemented here.
package fractal

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/bigfloat"
)

// Kind tags the supported fractal families. A closed enum plus a factory
// keeps the hot iteration loop switching on a small fixed set instead of
// calling through a vtable per pixel.
type Kind int

const (
	// Mandelbrot is z_{n+1} = z_n^2 + c, z_0 = 0.
	Mandelbrot Kind = iota
	// Julia is z_{n+1} = z_n^2 + c for a fixed c, z_0 = pixel coordinate.
	Julia
	// BurningShip is z_{n+1} = (|Re(z_n)| + i|Im(z_n)|)^2 + c.
	BurningShip
	// Multibrot is z_{n+1} = z_n^power + c for a configurable real power.
	Multibrot
)

func (k Kind) String() string {
	switch k {
	case Mandelbrot:
		return "mandelbrot"
	case Julia:
		return "julia"
	case BurningShip:
		return "burning-ship"
	case Multibrot:
		return "multibrot"
	default:
		return "unknown"
	}
}

// ErrUnknownKind is returned by New for a Kind value outside the closed set.
var ErrUnknownKind = fmt.Errorf("fractal: unknown kind")

// Params carries the per-kind numeric parameters: Julia's c,
// Multibrot's power. Unused fields are ignored by kinds that don't need
// them (Mandelbrot, BurningShip).
type Params struct {
	JuliaC complex128
	Power  float64
}

// Formula is the small interface every Kind implements: one
// implementation per kind, selected once per render by New. A closed set
// of formula structs behind one interface, rather than a method-dispatch
// tree re-evaluated per pixel.
type Formula interface {
	// Kind reports which tag this formula implements.
	Kind() Kind

	// Seed returns z_0 for a pixel whose fractal-space coordinate is c.
	// For Mandelbrot/BurningShip/Multibrot, z_0 = 0 and c is the orbit
	// parameter; for Julia, z_0 = c (the pixel coordinate) and the orbit
	// parameter is the fixed JuliaC.
	Seed(pixel complex128) (z0, orbitParam complex128)

	// Step advances one iteration: z_{n+1} given z_n and the orbit
	// parameter (c for Mandelbrot-family kinds, the fixed JuliaC for
	// Julia).
	Step(z, c complex128) complex128

	// StepDerivative advances the distance-estimation derivative
	// alongside Step: dZ_{n+1} = d/dz[Step](z_n)*dZ_n + 1.
	StepDerivative(z, dz complex128) complex128

	// PerturbDelta advances δz given the reference orbit value Z_n, the
	// current δz_n, and the pixel's δc: the perturbation-path analogue
	// of Step, expanded per kind.
	PerturbDelta(Z, deltaZ, deltaC complex128) complex128

	// BigStep advances one reference-orbit iteration at arbitrary
	// precision, the BigFloat analogue of Step used by the reference
	// orbit engine. ceiling bounds result precision (0 = no
	// ceiling beyond operand precision).
	BigStep(Z, c bigfloat.Complex, ceiling uint) (bigfloat.Complex, error)
}

// ErrUnsupportedBigStep is returned by BigStep for a configuration that has
// no arbitrary-precision form (currently: Multibrot with a non-integer
// power or a power outside [0, 8]; the reference-orbit loop only ever needs integer powers in
// practice, and a fractional big.Float power has no closed-form exact
// step).
var ErrUnsupportedBigStep = fmt.Errorf("fractal: arbitrary-precision step unsupported for this configuration")

// New builds the Formula for kind, applying params where the kind needs
// them. Returns ErrUnknownKind for any value outside the closed Kind set.
func New(kind Kind, params Params) (Formula, error) {
	switch kind {
	case Mandelbrot:
		return mandelbrotFormula{}, nil
	case Julia:
		return juliaFormula{c: params.JuliaC}, nil
	case BurningShip:
		return burningShipFormula{}, nil
	case Multibrot:
		power := params.Power
		if power == 0 {
			power = 2
		}
		return multibrotFormula{power: power}, nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownKind, kind)
	}
}

type mandelbrotFormula struct{}

func (mandelbrotFormula) Kind() Kind { return Mandelbrot }

func (mandelbrotFormula) Seed(pixel complex128) (complex128, complex128) {
	return 0, pixel
}

func (mandelbrotFormula) Step(z, c complex128) complex128 {
	return z*z + c
}

func (mandelbrotFormula) StepDerivative(z, dz complex128) complex128 {
	return 2*z*dz + 1
}

func (mandelbrotFormula) PerturbDelta(Z, deltaZ, deltaC complex128) complex128 {
	return 2*Z*deltaZ + deltaZ*deltaZ + deltaC
}

func (mandelbrotFormula) BigStep(Z, c bigfloat.Complex, ceiling uint) (bigfloat.Complex, error) {
	z2, err := bigfloat.ComplexMul(Z, Z, ceiling)
	if err != nil {
		return bigfloat.Complex{}, err
	}
	return bigfloat.ComplexAdd(z2, c, ceiling)
}

type juliaFormula struct {
	c complex128
}

func (juliaFormula) Kind() Kind { return Julia }

func (f juliaFormula) Seed(pixel complex128) (complex128, complex128) {
	return pixel, f.c
}

func (juliaFormula) Step(z, c complex128) complex128 {
	return z*z + c
}

func (juliaFormula) StepDerivative(z, dz complex128) complex128 {
	return 2*z*dz + 1
}

func (juliaFormula) PerturbDelta(Z, deltaZ, deltaC complex128) complex128 {
	// For a fixed-c kind the pixel's perturbation is in z_0, not c: δc is
	// the fixed orbit parameter's deviation, which is always zero here
	// because JuliaC does not vary per pixel. Perturbation around a
	// reference orbit for Julia sets instead deviates the seed, so δc is
	// folded into the same recurrence shape with the caller supplying
	// the seed deviation as deltaC at n=0.
	return 2*Z*deltaZ + deltaZ*deltaZ + deltaC
}

func (f juliaFormula) BigStep(Z, c bigfloat.Complex, ceiling uint) (bigfloat.Complex, error) {
	z2, err := bigfloat.ComplexMul(Z, Z, ceiling)
	if err != nil {
		return bigfloat.Complex{}, err
	}
	return bigfloat.ComplexAdd(z2, c, ceiling)
}

type burningShipFormula struct{}

func (burningShipFormula) Kind() Kind { return BurningShip }

func (burningShipFormula) Seed(pixel complex128) (complex128, complex128) {
	return 0, pixel
}

func foldAbs(z complex128) complex128 {
	return complex(math.Abs(real(z)), math.Abs(imag(z)))
}

func (burningShipFormula) Step(z, c complex128) complex128 {
	w := foldAbs(z)
	return w*w + c
}

func (burningShipFormula) StepDerivative(z, dz complex128) complex128 {
	// d/dz|Re(z)| and d/dz|Im(z)| are sign(Re)/sign(Im) almost everywhere;
	// the derivative of the folded square uses those signs in place of 1.
	sx := math.Copysign(1, real(z))
	sy := math.Copysign(1, imag(z))
	w := foldAbs(z)
	foldedDz := complex(sx*real(dz), sy*imag(dz))
	return 2*w*foldedDz + 1
}

func (burningShipFormula) PerturbDelta(Z, deltaZ, deltaC complex128) complex128 {
	// (|Re(Z+δz)|+i|Im(Z+δz)|)^2 - (|Re(Z)|+i|Im(Z)|)^2 expanded via the
	// folded full orbit value rather than a linearized delta, since the
	// abs-fold is not differentiable at the axes; this keeps the
	// perturbation path exact (not just first-order) for this kind.
	full := Z + deltaZ
	foldedFull := foldAbs(full)
	foldedZ := foldAbs(Z)
	return foldedFull*foldedFull - foldedZ*foldedZ + deltaC
}

func (burningShipFormula) BigStep(Z, c bigfloat.Complex, ceiling uint) (bigfloat.Complex, error) {
	folded := bigfloat.Complex{Re: Z.Re.Abs(), Im: Z.Im.Abs()}
	w2, err := bigfloat.ComplexMul(folded, folded, ceiling)
	if err != nil {
		return bigfloat.Complex{}, err
	}
	return bigfloat.ComplexAdd(w2, c, ceiling)
}

type multibrotFormula struct {
	power float64
}

func (multibrotFormula) Kind() Kind { return Multibrot }

func (multibrotFormula) Seed(pixel complex128) (complex128, complex128) {
	return 0, pixel
}

func (f multibrotFormula) pow(z complex128) complex128 {
	if f.power == math.Trunc(f.power) && f.power >= 0 && f.power <= 8 {
		n := int(f.power)
		if n == 0 {
			return 1
		}
		r := z
		for i := 1; i < n; i++ {
			r *= z
		}
		return r
	}
	return cmplx.Pow(z, complex(f.power, 0))
}

func (f multibrotFormula) Step(z, c complex128) complex128 {
	return f.pow(z) + c
}

func (f multibrotFormula) StepDerivative(z, dz complex128) complex128 {
	// d/dz[z^power] = power * z^(power-1)
	var zPowMinus1 complex128
	if f.power == math.Trunc(f.power) && f.power >= 1 && f.power <= 9 {
		n := int(f.power) - 1
		zPowMinus1 = 1
		for i := 0; i < n; i++ {
			zPowMinus1 *= z
		}
	} else {
		zPowMinus1 = cmplx.Pow(z, complex(f.power-1, 0))
	}
	return complex(f.power, 0)*zPowMinus1*dz + 1
}

func (f multibrotFormula) PerturbDelta(Z, deltaZ, deltaC complex128) complex128 {
	full := Z + deltaZ
	return f.pow(full) - f.pow(Z) + deltaC
}

func (f multibrotFormula) BigStep(Z, c bigfloat.Complex, ceiling uint) (bigfloat.Complex, error) {
	if f.power != math.Trunc(f.power) || f.power < 0 || f.power > 8 {
		return bigfloat.Complex{}, ErrUnsupportedBigStep
	}
	n := int(f.power)
	prec := Z.Re.Prec()
	result := bigfloat.NewComplex(1, 0, prec)
	if n == 0 {
		return bigfloat.ComplexAdd(result, c, ceiling)
	}
	result = Z
	for i := 1; i < n; i++ {
		var err error
		result, err = bigfloat.ComplexMul(result, Z, ceiling)
		if err != nil {
			return bigfloat.Complex{}, err
		}
	}
	return bigfloat.ComplexAdd(result, c, ceiling)
}
