// Package orbit implements the reference-orbit engine (component B):
// iterating one chosen high-precision point through a fractal formula and
// recording a double-precision projection plus sparse high-precision
// checkpoints, for the perturbation iterator to consume.
package orbit

import (
	"errors"
	"fmt"
	"math"

	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/bigfloat"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/fractal"
)

// ErrPrecisionOverflow is surfaced when the BigFloat library reports
// OutOfRange or InvalidInput during orbit construction.
var ErrPrecisionOverflow = errors.New("orbit: precision overflow")

// Checkpoint is a sparsely sampled high-precision orbit value, stored every
// K iterations.
type Checkpoint struct {
	Iteration int
	Z         bigfloat.Complex
}

// Orbit is the finite ordered sequence Z[0..N] plus checkpoints and escape
// metadata.
type Orbit struct {
	ReferencePoint  complex128
	Kind            fractal.Kind
	Params          fractal.Params
	Precision       uint
	CheckpointEvery int

	Z           []complex128 // double projection, length = returned sequence length
	DZ          []complex128 // derivative sequence, nil unless derivative tracking enabled
	Checkpoints []Checkpoint

	Escaped         bool
	EscapeIteration int // -1 if not escaped
	MaxIter         int
}

// Config parameterizes BuildOrbit.
type Config struct {
	ReferencePoint  bigfloat.Complex
	Kind            fractal.Kind
	Params          fractal.Params
	MaxIter         int
	BailoutR2       float64
	CheckpointEvery int  // K, default 100
	TrackDerivative bool
	PrecisionCeiling uint // 0 = operand precision, no explicit ceiling
}

// cacheKey identifies the (point, N, K, precision) tuple whose orbit is
// reusable.
type cacheKey struct {
	re, im          string
	kind            fractal.Kind
	power           float64
	juliaC          complex128
	maxIter         int
	checkpointEvery int
	precision       uint
}

func keyFor(cfg Config) cacheKey {
	return cacheKey{
		re:              cfg.ReferencePoint.Re.String(),
		im:              cfg.ReferencePoint.Im.String(),
		kind:            cfg.Kind,
		power:           cfg.Params.Power,
		juliaC:          cfg.Params.JuliaC,
		maxIter:         cfg.MaxIter,
		checkpointEvery: cfg.CheckpointEvery,
		precision:       cfg.ReferencePoint.Re.Prec(),
	}
}

// Cache reuses a previously built Orbit when (point, N, K, precision) are
// unchanged, and extends a partial-prefix result when only N grew. The
// cache is an in-memory map since reference orbits are rebuilt far more
// often than render sessions are persisted (internal/store handles the
// cross-process case).
type Cache struct {
	entries map[cacheKey]*Orbit
}

// NewCache returns an empty orbit cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[cacheKey]*Orbit)}
}

// Get builds (or reuses) the Orbit for cfg. If a cached orbit for a smaller
// MaxIter exists at the same (point, K, precision, kind), iteration resumes
// from its end rather than recomputing the prefix.
func (c *Cache) Get(cfg Config) (*Orbit, error) {
	key := keyFor(cfg)
	if cached, ok := c.entries[key]; ok && len(cached.Z) >= cfg.MaxIter+1 || (ok && cached.Escaped) {
		return cached, nil
	}

	prefixKey := key
	prefixKey.maxIter = 0 // search below for any smaller-N entry to extend
	var prefix *Orbit
	for k, v := range c.entries {
		pk := k
		pk.maxIter = 0
		if pk == prefixKey && !v.Escaped && len(v.Z) <= cfg.MaxIter {
			if prefix == nil || len(v.Z) > len(prefix.Z) {
				prefix = v
			}
		}
	}

	o, err := buildOrbit(cfg, prefix)
	if err != nil {
		return nil, err
	}
	c.entries[key] = o
	return o, nil
}

// BuildOrbit constructs a fresh reference orbit (no cache lookup). Exposed
// directly for callers (e.g. Rebase correction) that always need a
// new reference point and must bypass any cached entry for the old one.
func BuildOrbit(cfg Config) (*Orbit, error) {
	return buildOrbit(cfg, nil)
}

func buildOrbit(cfg Config, prefix *Orbit) (*Orbit, error) {
	if cfg.MaxIter < 0 {
		return nil, fmt.Errorf("orbit: negative maxIter")
	}
	checkpointEvery := cfg.CheckpointEvery
	if checkpointEvery <= 0 {
		checkpointEvery = 100
	}
	bailoutR2 := cfg.BailoutR2
	if bailoutR2 <= 0 {
		bailoutR2 = 4
	}

	formula, err := fractal.New(cfg.Kind, cfg.Params)
	if err != nil {
		return nil, err
	}

	prec := cfg.ReferencePoint.Re.Prec()

	o := &Orbit{
		ReferencePoint:  cfg.ReferencePoint.ToComplex128(),
		Kind:            cfg.Kind,
		Params:          cfg.Params,
		Precision:       prec,
		CheckpointEvery: checkpointEvery,
		EscapeIteration: -1,
		MaxIter:         cfg.MaxIter,
	}

	// The c argument of each BigStep: Julia iterates with its fixed
	// parameter, every other kind with the reference point.
	stepC := cfg.ReferencePoint
	if cfg.Kind == fractal.Julia {
		stepC = bigfloat.NewComplex(real(cfg.Params.JuliaC), imag(cfg.Params.JuliaC), prec)
	}

	var Z bigfloat.Complex
	start := 0
	var dz complex128
	if prefix != nil && len(prefix.Z) > 0 && !prefix.Escaped {
		// Resume from the prefix's last stored checkpoint rather than
		// recomputing from zero.
		o.Z = append(o.Z, prefix.Z...)
		o.Checkpoints = append(o.Checkpoints, prefix.Checkpoints...)
		if prefix.DZ != nil {
			o.DZ = append(o.DZ, prefix.DZ...)
			dz = prefix.DZ[len(prefix.DZ)-1]
		}
		start = len(prefix.Z)
		if len(prefix.Checkpoints) > 0 {
			Z = prefix.Checkpoints[len(prefix.Checkpoints)-1].Z.Copy()
			// advance Z to `start` from the last checkpoint iteration
			for n := prefix.Checkpoints[len(prefix.Checkpoints)-1].Iteration; n < start; n++ {
				Z, err = formula.BigStep(Z, stepC, cfg.PrecisionCeiling)
				if err != nil {
					return nil, classifyErr(err)
				}
			}
		} else {
			Z = bigfloat.NewComplex(0, 0, prec)
			for n := 0; n < start; n++ {
				Z, err = formula.BigStep(Z, stepC, cfg.PrecisionCeiling)
				if err != nil {
					return nil, classifyErr(err)
				}
			}
		}
	} else {
		Z = bigfloat.NewComplex(0, 0, prec)
		if cfg.Kind == fractal.Julia {
			// Julia's reference orbit seeds at the pixel/reference point
			// itself, per fractal.Formula.Seed's z0 = pixel contract.
			z0, _ := formula.Seed(cfg.ReferencePoint.ToComplex128())
			Z = bigfloat.NewComplex(real(z0), imag(z0), prec)
		}
		if cfg.TrackDerivative {
			o.DZ = make([]complex128, 0, cfg.MaxIter+1)
			dz = 0
		}
	}

	for n := start; n <= cfg.MaxIter; n++ {
		zDouble := Z.ToComplex128()
		o.Z = append(o.Z, zDouble)

		if n%checkpointEvery == 0 {
			o.Checkpoints = append(o.Checkpoints, Checkpoint{Iteration: n, Z: Z.Copy()})
		}

		if cfg.TrackDerivative {
			dz = formula.StepDerivative(zDouble, dz)
			o.DZ = append(o.DZ, dz)
		}

		mag2 := real(zDouble)*real(zDouble) + imag(zDouble)*imag(zDouble)
		if mag2 > bailoutR2 {
			o.Escaped = true
			o.EscapeIteration = n
			return o, nil
		}

		if n == cfg.MaxIter {
			break
		}

		Z, err = formula.BigStep(Z, stepC, cfg.PrecisionCeiling)
		if err != nil {
			return nil, classifyErr(err)
		}
	}

	return o, nil
}

func classifyErr(err error) error {
	var bfErr *bigfloat.Error
	if errors.As(err, &bfErr) {
		return fmt.Errorf("%w: %v", ErrPrecisionOverflow, bfErr)
	}
	return err
}

// DoubleAt returns the double projection of Z[n] (within 1 ulp of the true BigFloat
// value, verified in tests against a checkpoint recomputation).
func (o *Orbit) DoubleAt(n int) complex128 {
	return o.Z[n]
}

// Len returns min(N+1, escapeIteration+1), i.e. the actual stored sequence
// length (Z_0..Z_N for an orbit that never escapes).
func (o *Orbit) Len() int {
	return len(o.Z)
}

// NearestCheckpoint returns the checkpoint with the largest Iteration <= n.
func (o *Orbit) NearestCheckpoint(n int) (Checkpoint, bool) {
	var best Checkpoint
	found := false
	for _, cp := range o.Checkpoints {
		if cp.Iteration <= n && (!found || cp.Iteration > best.Iteration) {
			best = cp
			found = true
		}
	}
	return best, found
}

// ExponentBits rounds log2(10)*decimalDigits into a bit-precision count,
// sizing a reference point's BigFloat precision from a target
// decimal-digit count.
func ExponentBits(decimalDigits int) uint {
	return uint(math.Ceil(float64(decimalDigits) * math.Log2(10)))
}
