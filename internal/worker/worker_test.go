package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

// markerCompute fills every pixel's iteration slot with the tile's X
// origin so completions can be matched back to their geometry.
func markerCompute(ctx context.Context, tile TileGeometry) (TilePixels, error) {
	n := tile.W * tile.H
	p := TilePixels{
		Iterations: make([]float64, n),
		Escaped:    make([]bool, n),
	}
	for i := range p.Iterations {
		p.Iterations[i] = float64(tile.X)
	}
	return p, nil
}

func tileBatch(count, size int) []RenderTileMsg {
	msgs := make([]RenderTileMsg, count)
	for i := range msgs {
		msgs[i] = RenderTileMsg{Tile: TileGeometry{X: i * size, Y: 0, W: size, H: size}, Priority: i}
	}
	return msgs
}

func TestPool_ComputesEveryTile(t *testing.T) {
	pool := NewPool(4, markerCompute)
	msgs := tileBatch(16, 8)

	seen := make(map[int]bool)
	for tc := range pool.Run(context.Background(), msgs) {
		if len(tc.Pixels.Iterations) != tc.Tile.W*tc.Tile.H {
			t.Errorf("tile %v has %d pixels, want %d", tc.Tile, len(tc.Pixels.Iterations), tc.Tile.W*tc.Tile.H)
		}
		if tc.Pixels.Iterations[0] != float64(tc.Tile.X) {
			t.Errorf("tile %v carries marker %v, want %v", tc.Tile, tc.Pixels.Iterations[0], tc.Tile.X)
		}
		if seen[tc.Tile.X] {
			t.Errorf("tile at X=%d completed twice", tc.Tile.X)
		}
		seen[tc.Tile.X] = true
	}

	if len(seen) != 16 {
		t.Errorf("expected 16 completions, got %d", len(seen))
	}
}

func TestPool_SingleWorkerDrainsQueue(t *testing.T) {
	pool := NewPool(1, markerCompute)
	msgs := tileBatch(8, 4)

	count := 0
	for range pool.Run(context.Background(), msgs) {
		count++
	}
	if count != 8 {
		t.Errorf("expected 8 completions, got %d", count)
	}
}

func TestPool_WorkerCountClamped(t *testing.T) {
	pool := NewPool(0, markerCompute)
	msgs := tileBatch(3, 4)

	count := 0
	for range pool.Run(context.Background(), msgs) {
		count++
	}
	if count != 3 {
		t.Errorf("clamped pool should still complete all tiles, got %d", count)
	}
}

func TestPool_CancelledContextPublishesNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancelled before dispatch

	var computed atomic.Int32
	pool := NewPool(4, func(ctx context.Context, tile TileGeometry) (TilePixels, error) {
		computed.Add(1)
		return markerCompute(ctx, tile)
	})

	count := 0
	for range pool.Run(ctx, tileBatch(16, 8)) {
		count++
	}

	if count != 0 {
		t.Errorf("cancelled run published %d completions, want 0", count)
	}
	if computed.Load() != 0 {
		t.Errorf("cancelled run computed %d tiles, want 0", computed.Load())
	}
}

func TestPool_CancelMidRunStopsDispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	release := make(chan struct{})
	pool := NewPool(1, func(ctx context.Context, tile TileGeometry) (TilePixels, error) {
		<-release
		return markerCompute(ctx, tile)
	})

	out := pool.Run(ctx, tileBatch(8, 4))

	// Let one tile through, then cancel; the worker abandons the rest at
	// its next between-tile yield point.
	release <- struct{}{}
	first, ok := <-out
	if !ok {
		t.Fatal("expected a first completion")
	}
	_ = first
	cancel()
	close(release)

	rest := 0
	for range out {
		rest++
	}
	if rest > 1 {
		t.Errorf("after cancel, %d further tiles completed; the worker should stop at its next yield point", rest)
	}
}

func TestPool_ErroredTileIsAbandoned(t *testing.T) {
	failAt := TileGeometry{X: 8, Y: 0, W: 4, H: 4}
	pool := NewPool(2, func(ctx context.Context, tile TileGeometry) (TilePixels, error) {
		if tile == failAt {
			return TilePixels{}, errors.New("synthetic tile failure")
		}
		return markerCompute(ctx, tile)
	})

	msgs := tileBatch(4, 4) // X = 0, 4, 8, 12
	count := 0
	for tc := range pool.Run(context.Background(), msgs) {
		if tc.Tile == failAt {
			t.Error("failed tile must not publish a completion")
		}
		count++
	}
	if count != 3 {
		t.Errorf("expected 3 completions, got %d", count)
	}
}

func TestPool_CompletionOrderIsArbitraryButComplete(t *testing.T) {
	// Many workers, many tiles: the channel closes only after every tile
	// either completed or was abandoned, regardless of order.
	pool := NewPool(8, markerCompute)
	msgs := tileBatch(64, 4)

	total := 0
	for range pool.Run(context.Background(), msgs) {
		total++
	}
	if total != 64 {
		t.Errorf("expected 64 completions, got %d", total)
	}
}
