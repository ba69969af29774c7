// Package direct implements the direct (double-precision) iterator
// (component E), used below the perturbation threshold. It includes a
// periodicity check so interior points short-circuit instead of running
// to maxIter.
package direct

import (
	"math"

	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/fractal"
)

// DefaultPeriodicityInterval is the periodicity snapshot cadence P.
const DefaultPeriodicityInterval = 20

// DefaultPeriodicityEpsilon is the cycle-match distance threshold.
const DefaultPeriodicityEpsilon = 1e-12

// Result mirrors the PixelField contribution of one direct-iterated pixel.
type Result struct {
	Escaped      bool
	Iterations   float64 // maxIter for interior, smoothed for escaped
	OrbitFinal   complex128
	ViaPeriodicity bool
}

// Config parameterizes Iterate.
type Config struct {
	Formula             fractal.Formula
	Pixel               complex128
	MaxIter             int
	BailoutR2           float64
	PeriodicityInterval int // 0 = DefaultPeriodicityInterval; negative disables the check
	PeriodicityEpsilon  float64
}

// Iterate runs the native formula's double-precision iteration, snapshotting
// z every PeriodicityInterval iterations and declaring the pixel interior
// (without running to maxIter) if a later iterate matches the snapshot
// within PeriodicityEpsilon.
func Iterate(cfg Config) Result {
	bailoutR2 := cfg.BailoutR2
	if bailoutR2 <= 0 {
		bailoutR2 = 4
	}
	interval := cfg.PeriodicityInterval
	if interval == 0 {
		interval = DefaultPeriodicityInterval
	}
	eps := cfg.PeriodicityEpsilon
	if eps <= 0 {
		eps = DefaultPeriodicityEpsilon
	}

	z, c := cfg.Formula.Seed(cfg.Pixel)
	var snapshot complex128
	snapshotSet := false

	for n := 0; n < cfg.MaxIter; n++ {
		mag2 := real(z)*real(z) + imag(z)*imag(z)
		if mag2 > bailoutR2 {
			absz := math.Sqrt(mag2)
			smoothed := float64(n) + 1 - math.Log2(math.Log(absz)/math.Log(math.Sqrt(bailoutR2)))
			return Result{Escaped: true, Iterations: smoothed, OrbitFinal: z}
		}

		if interval > 0 {
			if n%interval == 0 {
				snapshot = z
				snapshotSet = true
			} else if snapshotSet {
				d := z - snapshot
				dist2 := real(d)*real(d) + imag(d)*imag(d)
				if dist2 <= eps*eps {
					return Result{Escaped: false, Iterations: float64(cfg.MaxIter), OrbitFinal: z, ViaPeriodicity: true}
				}
			}
		}

		z = cfg.Formula.Step(z, c)
	}

	return Result{Escaped: false, Iterations: float64(cfg.MaxIter), OrbitFinal: z}
}
