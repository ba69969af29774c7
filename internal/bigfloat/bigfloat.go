// Package bigfloat provides the arbitrary-precision binary floating-point arithmetic the
// reference-orbit engine needs: construction, add, sub, mul, compare, and
// lossy conversion to double. Division and transcendentals are not needed
// by the compute core and are intentionally not exposed here.
package bigfloat

import (
	"fmt"
	"math/big"

	"github.com/mshafiee/bigmath"
)

// Value is a signed binary floating-point number at a configured precision, backed by
// math/big.Float (the same foundation bigmath builds on). Precision is
// tracked in bits, matching big.Float's own unit, and is never silently
// widened past what the caller asked for.
type Value struct {
	f *big.Float
}

// Kind distinguishes the two failure modes.
type Kind int

const (
	// InvalidInput marks an unparseable string or non-finite parameter.
	InvalidInput Kind = iota
	// OutOfRange marks exponent overflow/underflow.
	OutOfRange
)

// Error is returned by operations that can fail.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// maxExp bounds the base-2 exponent we allow a Value to carry; big.Float's
// own range is far larger, but callers need a deterministic
// OutOfRange signal rather than silently tracking astronomically large
// exponents forever, so the bound is explicit and configurable via
// SetMaxExponent for tests.
var maxExp = 1 << 24

// SetMaxExponent overrides the configured exponent bound. Exposed for tests
// that want to exercise OutOfRange without iterating to a real 2^24 exponent.
func SetMaxExponent(bits int) { maxExp = bits }

// New builds a Value from a float64 at the given precision (bits). The
// conversion is exact.
func New(v float64, prec uint) *Value {
	if prec == 0 {
		prec = bigmath.DefaultPrecision
	}
	return &Value{f: bigmath.NewBigFloat(v, prec)}
}

// NewInt builds a Value from an int at the given precision.
func NewInt(v int64, prec uint) *Value {
	if prec == 0 {
		prec = bigmath.DefaultPrecision
	}
	return &Value{f: new(big.Float).SetPrec(prec).SetInt64(v)}
}

// Parse builds a Value from a decimal string at the given precision.
// Returns InvalidInput on malformed input.
func Parse(s string, prec uint) (*Value, error) {
	if prec == 0 {
		prec = bigmath.DefaultPrecision
	}
	f, err := bigmath.NewBigFloatFromString(s, prec)
	if err != nil {
		return nil, &Error{Kind: InvalidInput, Msg: fmt.Sprintf("bigfloat: invalid input %q: %v", s, err)}
	}
	return &Value{f: f}, nil
}

// Zero returns the additive identity at the given precision. Zero
// is represented with sign +1 and exponent 0; big.Float already satisfies
// this (a freshly zeroed Float has Sign()==0 and is never negative-zero).
func Zero(prec uint) *Value {
	if prec == 0 {
		prec = bigmath.DefaultPrecision
	}
	return &Value{f: new(big.Float).SetPrec(prec)}
}

// Prec reports the value's configured precision in bits.
func (v *Value) Prec() uint { return v.f.Prec() }

// clampPrec returns the max of the two operand precisions, following the rule
// that a result's precision is the max of its operands truncated to the
// configured ceiling P.
func clampPrec(a, b *Value, ceiling uint) uint {
	p := a.f.Prec()
	if b.f.Prec() > p {
		p = b.f.Prec()
	}
	if ceiling != 0 && p > ceiling {
		p = ceiling
	}
	return p
}

func (v *Value) checkRange() error {
	if v.f.IsInf() {
		return &Error{Kind: OutOfRange, Msg: "bigfloat: exponent out of range"}
	}
	if v.f.Sign() != 0 {
		if e := v.f.MantExp(nil); e > maxExp || e < -maxExp {
			return &Error{Kind: OutOfRange, Msg: "bigfloat: exponent out of range"}
		}
	}
	return nil
}

// Add returns a+b truncated to ceiling bits (0 means "max of operand precisions").
func Add(a, b *Value, ceiling uint) (*Value, error) {
	prec := clampPrec(a, b, ceiling)
	r := &Value{f: new(big.Float).SetPrec(prec).Add(a.f, b.f)}
	if err := r.checkRange(); err != nil {
		return nil, err
	}
	return r, nil
}

// Sub returns a-b truncated to ceiling bits.
func Sub(a, b *Value, ceiling uint) (*Value, error) {
	prec := clampPrec(a, b, ceiling)
	r := &Value{f: new(big.Float).SetPrec(prec).Sub(a.f, b.f)}
	if err := r.checkRange(); err != nil {
		return nil, err
	}
	return r, nil
}

// Mul returns a*b truncated to ceiling bits.
func Mul(a, b *Value, ceiling uint) (*Value, error) {
	prec := clampPrec(a, b, ceiling)
	r := &Value{f: new(big.Float).SetPrec(prec).Mul(a.f, b.f)}
	if err := r.checkRange(); err != nil {
		return nil, err
	}
	return r, nil
}

// Compare returns -1, 0, or +1 as v is less than, equal to, or greater than other.
func (v *Value) Compare(other *Value) int { return v.f.Cmp(other.f) }

// Sign returns -1, 0, or +1 per big.Float.Sign.
func (v *Value) Sign() int { return v.f.Sign() }

// Abs returns |v|, delegating to bigmath.BigAbs so the absolute-value
// convention (sign handling, precision propagation) matches the rest of
// the pack's arbitrary-precision code rather than a hand-rolled copy.
func (v *Value) Abs() *Value {
	return &Value{f: bigmath.BigAbs(v.f, v.f.Prec())}
}

// Negate returns -v.
func (v *Value) Negate() *Value {
	r := new(big.Float).SetPrec(v.f.Prec()).Neg(v.f)
	return &Value{f: r}
}

// Float64 converts to a double with the given rounding mode, matching
// the caller always names the rounding mode explicitly.
func (v *Value) Float64(mode big.RoundingMode) float64 {
	rounded := new(big.Float).SetPrec(53).SetMode(mode).Set(v.f)
	f, _ := rounded.Float64()
	return f
}

// String serializes the value using big.Float's own decimal text form.
func (v *Value) String() string { return v.f.Text('g', -1) }

// Copy returns an independent copy of v at its own precision.
func (v *Value) Copy() *Value {
	return &Value{f: new(big.Float).SetPrec(v.f.Prec()).Set(v.f)}
}

// Complex is a pair of Values with standard arithmetic, the BigFloat-backed
// counterpart of complex128 for the reference path.
// Used by the reference-orbit engine, where the hot loop needs only
// add/sub/mul over this type.
type Complex struct {
	Re, Im *Value
}

// NewComplex builds a Complex from two float64 components at prec bits.
func NewComplex(re, im float64, prec uint) Complex {
	return Complex{Re: New(re, prec), Im: New(im, prec)}
}

// ComplexAdd returns a+b.
func ComplexAdd(a, b Complex, ceiling uint) (Complex, error) {
	re, err := Add(a.Re, b.Re, ceiling)
	if err != nil {
		return Complex{}, err
	}
	im, err := Add(a.Im, b.Im, ceiling)
	if err != nil {
		return Complex{}, err
	}
	return Complex{Re: re, Im: im}, nil
}

// ComplexMul returns a*b using the standard (ac-bd)+(ad+bc)i expansion.
func ComplexMul(a, b Complex, ceiling uint) (Complex, error) {
	ac, err := Mul(a.Re, b.Re, ceiling)
	if err != nil {
		return Complex{}, err
	}
	bd, err := Mul(a.Im, b.Im, ceiling)
	if err != nil {
		return Complex{}, err
	}
	ad, err := Mul(a.Re, b.Im, ceiling)
	if err != nil {
		return Complex{}, err
	}
	bc, err := Mul(a.Im, b.Re, ceiling)
	if err != nil {
		return Complex{}, err
	}
	re, err := Sub(ac, bd, ceiling)
	if err != nil {
		return Complex{}, err
	}
	im, err := Add(ad, bc, ceiling)
	if err != nil {
		return Complex{}, err
	}
	return Complex{Re: re, Im: im}, nil
}

// ComplexAbs2 returns |c|^2 = Re^2+Im^2 as a *Value.
func ComplexAbs2(c Complex, ceiling uint) (*Value, error) {
	re2, err := Mul(c.Re, c.Re, ceiling)
	if err != nil {
		return nil, err
	}
	im2, err := Mul(c.Im, c.Im, ceiling)
	if err != nil {
		return nil, err
	}
	return Add(re2, im2, ceiling)
}

// ToComplex128 lossily converts to a double complex using round-to-nearest.
func (c Complex) ToComplex128() complex128 {
	return complex(c.Re.Float64(big.ToNearestEven), c.Im.Float64(big.ToNearestEven))
}

// Copy returns an independent copy of c.
func (c Complex) Copy() Complex {
	return Complex{Re: c.Re.Copy(), Im: c.Im.Copy()}
}
