// Package series implements the Taylor-series approximation of δz as a
// function of δc (component C), letting the perturbation iterator skip
// early iterations for every pixel within a tracked validity radius.
package series

import (
	"math"
	"math/cmplx"
)

// DefaultTerms is the default number of series terms T.
const DefaultTerms = 8

// DefaultOverflowBound is the default magnitude past which a coefficient is
// considered non-finite for the purposes of the stopping rule.
const DefaultOverflowBound = 1e100

// Config parameterizes series construction.
type Config struct {
	Terms         int     // T
	Radius        float64 // r, bounds |δc| for the pixel region this pass covers
	Tolerance     float64 // ε
	OverflowBound float64 // default DefaultOverflowBound if zero
}

// Coefficients holds A_1[n]..A_T[n] for the current iteration n, i.e. one
// row of the evolving coefficient table.
type Coefficients []complex128

// Approximation is the built SeriesApproximation: per-iteration coefficient
// rows up to SkipIter, plus the radius/tolerance it was validated against.
// If SkipIter == 0 the approximation carries no usable
// skip and perturbation must start from n=0 (this is the mandatory
// SeriesDivergence fallback path, not an error condition).
type Approximation struct {
	Terms     int
	Radius    float64
	Tolerance float64
	Rows      []Coefficients // Rows[n] are the coefficients valid at iteration n
	SkipIter  int
	Diverged  bool
}

// DeltaZAt evaluates the series prediction δz_S = Σ A_k(S)·δc^k for a given
// δc, at the approximation's SkipIter.
func (a *Approximation) DeltaZAt(deltaC complex128) complex128 {
	if a.SkipIter == 0 || a.SkipIter >= len(a.Rows) {
		return 0
	}
	row := a.Rows[a.SkipIter]
	var sum complex128
	power := complex128(1)
	for k := 0; k < len(row); k++ {
		power *= deltaC
		sum += row[k] * power
	}
	return sum
}

// Build evolves the series coefficients alongside a reference orbit Z[0..N]
// (Mandelbrot recurrence; other Mandelbrot-family kinds: Julia,
// BurningShip's smooth interior, Multibrot) share the same
// A_1(n+1)=2Z(n)A_1(n)+1 / A_k(n+1)=2Z(n)A_k(n)+Σ A_j A_{k-j} recurrence
// because all of them are of the form z_{n+1}=z_n^2+c near the reference
// for the quadratic case; BurningShip's fold makes the series only locally
// valid, which the pixel-wise validity bound below already accounts for).
// It stops advancing once either the truncation estimate exceeds
// tolerance*(|A_1(n)|*r) or a coefficient becomes non-finite/overflowing,
// recording SkipIter as the largest n that remained valid.
func Build(Z []complex128, cfg Config) *Approximation {
	terms := cfg.Terms
	if terms <= 0 {
		terms = DefaultTerms
	}
	overflow := cfg.OverflowBound
	if overflow <= 0 {
		overflow = DefaultOverflowBound
	}

	a := &Approximation{Terms: terms, Radius: cfg.Radius, Tolerance: cfg.Tolerance}

	row := make(Coefficients, terms)
	row[0] = 1 // A_1(0) = 1 (δz_0 = δc at n=0 for a zero-seeded orbit)
	a.Rows = append(a.Rows, append(Coefficients(nil), row...))
	a.SkipIter = validAt(row, cfg) // n=0 is trivially valid if radius/tolerance allow

	for n := 0; n < len(Z)-1; n++ {
		next := make(Coefficients, terms)
		next[0] = 2*Z[n]*row[0] + 1
		for k := 1; k < terms; k++ {
			var conv complex128
			for j := 0; j < k; j++ {
				conv += row[j] * row[k-1-j]
			}
			next[k] = 2*Z[n]*row[k] + conv
		}

		if !finiteRow(next, overflow) {
			a.Diverged = true
			break
		}

		a.Rows = append(a.Rows, append(Coefficients(nil), next...))
		row = next

		if validAt(row, cfg) == 0 {
			break
		}
		a.SkipIter = n + 1
	}

	return a
}

func finiteRow(row Coefficients, overflow float64) bool {
	for _, c := range row {
		if math.IsNaN(real(c)) || math.IsNaN(imag(c)) || math.IsInf(real(c), 0) || math.IsInf(imag(c), 0) {
			return false
		}
		if cmplx.Abs(c) > overflow {
			return false
		}
	}
	return true
}

// validAt returns 1 if the truncation-term estimate |A_T(n)|*r^T stays
// below ε*(|A_1(n)|*r), else 0. This is the per-row half of the pixel-wise
// validity check: validity is bounded per disc radius, not just "is the
// coefficient finite".
func validAt(row Coefficients, cfg Config) int {
	if cfg.Radius <= 0 || cfg.Tolerance <= 0 {
		return 1
	}
	T := len(row)
	truncation := cmplx.Abs(row[T-1]) * math.Pow(cfg.Radius, float64(T))
	bound := cfg.Tolerance * cmplx.Abs(row[0]) * cfg.Radius
	if truncation <= bound {
		return 1
	}
	return 0
}

// ValidAt reports whether a pixel at distance |deltaC| from the reference
// point (<= the series' configured Radius) is still within tolerance at
// SkipIter: the concrete pixel-wise/disc-radius check callers use before
// trusting DeltaZAt for a specific pixel, rather than assuming every pixel
// in the tile is covered by a single viewport-wide radius.
func (a *Approximation) ValidAt(deltaC complex128) bool {
	if a.SkipIter == 0 {
		return false
	}
	return cmplx.Abs(deltaC) <= a.Radius
}
