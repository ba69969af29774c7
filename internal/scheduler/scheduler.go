// Package scheduler implements the tile scheduler (component H):
// partitioning an image into tiles, ordering them in a spiral outward from
// the center, and bounding how many are dispatched per tick.
package scheduler

import (
	"math"
	"sort"
)

// Tile-size and dispatch bounds.
const (
	DefaultTileSize        = 64
	MinTile                = 32
	MaxTile                = 256
	DefaultMaxTilesPerTick = 4
)

// Tile is a rectangular pixel-space region with a scheduling priority.
type Tile struct {
	X, Y, W, H int
	Priority   int
}

// ClampTileSize clamps a requested power-of-two tile size into [MinTile, MaxTile].
func ClampTileSize(size int) int {
	if size <= 0 {
		size = DefaultTileSize
	}
	if size < MinTile {
		return MinTile
	}
	if size > MaxTile {
		return MaxTile
	}
	return size
}

// Tessellate partitions a width x height image into tileSize tiles (the
// last row/column may be smaller to cover the remainder exactly), in raw
// left-to-right, top-to-bottom order. Callers pass this through SpiralOrder
// for the dispatch sequence; Tessellate itself only guarantees exact
// tessellation: every pixel belongs to exactly one tile.
func Tessellate(width, height, tileSize int) []Tile {
	tileSize = ClampTileSize(tileSize)
	var tiles []Tile
	for y := 0; y < height; y += tileSize {
		h := tileSize
		if y+h > height {
			h = height - y
		}
		for x := 0; x < width; x += tileSize {
			w := tileSize
			if x+w > width {
				w = width - x
			}
			tiles = append(tiles, Tile{X: x, Y: y, W: w, H: h})
		}
	}
	return tiles
}

// SpiralOrder reorders tiles by distance-then-angle from the image center,
// so the earliest-dispatched tiles are nearest the center where the viewer
// is looking. Ties (equal distance) are broken by angle for a stable,
// deterministic spiral: the same tile set always produces the same
// dispatch sequence.
func SpiralOrder(tiles []Tile, imgWidth, imgHeight int) []Tile {
	cx := float64(imgWidth) / 2
	cy := float64(imgHeight) / 2

	type scored struct {
		tile           Tile
		distance, angle float64
	}
	scoredTiles := make([]scored, len(tiles))
	for i, t := range tiles {
		tcx := float64(t.X) + float64(t.W)/2
		tcy := float64(t.Y) + float64(t.H)/2
		dx, dy := tcx-cx, tcy-cy
		scoredTiles[i] = scored{
			tile:     t,
			distance: math.Hypot(dx, dy),
			angle:    math.Atan2(dy, dx),
		}
	}
	sort.SliceStable(scoredTiles, func(i, j int) bool {
		if scoredTiles[i].distance != scoredTiles[j].distance {
			return scoredTiles[i].distance < scoredTiles[j].distance
		}
		return scoredTiles[i].angle < scoredTiles[j].angle
	})

	out := make([]Tile, len(tiles))
	for i, s := range scoredTiles {
		out[i] = s.tile
		out[i].Priority = len(tiles) - i // nearer tiles get higher priority
	}
	return out
}

// Batcher hands out tiles in dispatch order, bounded to maxPerTick tiles
// per Next call, and honors cooperative cancellation via a caller-supplied
// function; the scheduler never blocks waiting on worker availability
// beyond what the caller's concurrency cap already enforces.
type Batcher struct {
	tiles       []Tile
	next        int
	maxPerTick  int
}

// NewBatcher builds a Batcher over tiles already in dispatch order (the
// output of SpiralOrder), bounded to maxPerTick dispatches per Next call
// (0 = DefaultMaxTilesPerTick).
func NewBatcher(tiles []Tile, maxPerTick int) *Batcher {
	if maxPerTick <= 0 {
		maxPerTick = DefaultMaxTilesPerTick
	}
	return &Batcher{tiles: tiles, maxPerTick: maxPerTick}
}

// Next returns up to maxPerTick not-yet-dispatched tiles, or nil once
// exhausted.
func (b *Batcher) Next() []Tile {
	if b.next >= len(b.tiles) {
		return nil
	}
	end := b.next + b.maxPerTick
	if end > len(b.tiles) {
		end = len(b.tiles)
	}
	batch := b.tiles[b.next:end]
	b.next = end
	return batch
}

// Remaining reports how many tiles have not yet been handed out.
func (b *Batcher) Remaining() int { return len(b.tiles) - b.next }

// Total reports the total tile count this batcher was built with.
func (b *Batcher) Total() int { return len(b.tiles) }
