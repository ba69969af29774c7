// Package simd detects available CPU SIMD extensions at process start and
// reports the active backend for observability. The compute core's inner
// loops are plain Go and do not require a vectorized kernel, but the
// render coordinator uses DefaultWorkerCount (the CPU count) as a
// worker-count hint and RenderStats surfaces the backend name for
// diagnostics.
package simd

import (
	"log/slog"
	"runtime"

	"golang.org/x/sys/cpu"
)

// Backend names the detected CPU feature tier.
type Backend int

const (
	BackendScalar Backend = iota
	BackendAVX2
	BackendNEON
)

func (b Backend) String() string {
	switch b {
	case BackendAVX2:
		return "AVX2"
	case BackendNEON:
		return "NEON"
	case BackendScalar:
		return "scalar"
	default:
		return "unknown"
	}
}

// active is the backend detected at init.
var active Backend

func init() {
	switch {
	case cpu.X86.HasAVX2:
		active = BackendAVX2
		slog.Debug("simd: detected backend", "backend", "AVX2")
	case cpu.ARM64.HasASIMD:
		active = BackendNEON
		slog.Debug("simd: detected backend", "backend", "NEON")
	default:
		active = BackendScalar
		slog.Debug("simd: detected backend", "backend", "scalar")
	}
}

// ActiveBackend reports the CPU feature tier detected at process start.
func ActiveBackend() Backend { return active }

// DefaultWorkerCount returns the hardware-concurrency hint used when a
// render request does not specify workerCount explicitly.
func DefaultWorkerCount() int {
	n := runtime.NumCPU()
	if n < 1 {
		return 1
	}
	return n
}
