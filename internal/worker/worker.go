// Package worker implements the worker runtime (component K): a fixed
// pool of goroutines that pull tile jobs from a queue, compute them via a
// caller-supplied function, and push completion messages back to the
// coordinator. Workers never share mutable memory with each other; all
// exchange is through the message types below or through read-only
// handles to immutable shared data (reference orbit, series coefficients,
// palette LUT).
package worker

import (
	"context"
	"sync"
)

// TileGeometry is the rectangular pixel-space region a tile covers.
type TileGeometry struct {
	X, Y, W, H int
}

// RenderTileMsg is dispatched to a worker: tile geometry plus the
// scheduling priority the scheduler assigned it.
type RenderTileMsg struct {
	Tile     TileGeometry
	Priority int
}

// TilePixels packs the seven per-pixel arrays for one completed tile, row
// major within the tile (length Tile.W*Tile.H), matching PixelField's
// parallel-array shape.
type TilePixels struct {
	Iterations       []float64
	Escaped          []bool
	OrbitFinalRe     []float64
	OrbitFinalIm     []float64
	DistanceEstimate []float64
	Potential        []float64
	FinalAngle       []float64
	GlitchCandidate  []bool
}

// TileCompleteMsg is returned by a worker once every pixel of Tile has
// been computed. A tile's publish is atomic: the coordinator
// only ever sees a fully populated TilePixels for a given tile, never a
// partial one.
type TileCompleteMsg struct {
	Tile   TileGeometry
	Pixels TilePixels
}

// CancelMsg carries no payload; its receipt (via context cancellation in
// this in-process implementation) stops further tile dispatch.
type CancelMsg struct{}

// PingMsg/PongMsg are liveness messages for the worker protocol.
// In this in-process pool, liveness is implicit in goroutine scheduling;
// these types exist so the message set stays complete and a future
// out-of-process worker could implement the same contract.
type PingMsg struct{}
type PongMsg struct{}

// ComputeFunc computes every pixel of one tile. Implementations must
// honor ctx cancellation at their own internal yield points (per-pixel or
// per-row) in addition to the Pool's own between-tile check.
type ComputeFunc func(ctx context.Context, tile TileGeometry) (TilePixels, error)

// Pool is a fixed-size worker pool computing tiles concurrently.
type Pool struct {
	workers int
	compute ComputeFunc
}

// NewPool builds a Pool with the given worker count (clamped to >= 1) and
// compute function.
func NewPool(workers int, compute ComputeFunc) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{workers: workers, compute: compute}
}

// Run dispatches every tile in msgs to the pool, returning a channel of
// completions. The returned channel is closed once every tile has either
// completed or been abandoned due to cancellation. Tiles complete in an
// arbitrary order;
// callers that need ordered publish should key completions by Tile.
func (p *Pool) Run(ctx context.Context, msgs []RenderTileMsg) <-chan TileCompleteMsg {
	jobs := make(chan RenderTileMsg, len(msgs))
	out := make(chan TileCompleteMsg, len(msgs))

	for _, m := range msgs {
		jobs <- m
	}
	close(jobs)

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				select {
				case <-ctx.Done():
					// Abandon remaining work at this yield point without
					// publishing a partial result.
					return
				default:
				}
				pixels, err := p.compute(ctx, job.Tile)
				if err != nil {
					// No completion is published for this tile. The
					// coordinator compares drained completions against the
					// dispatched batch, re-queues the missing tile once on
					// fresh workers, and fails the render if it is still
					// missing after the retry.
					continue
				}
				select {
				case out <- TileCompleteMsg{Tile: job.Tile, Pixels: pixels}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}
