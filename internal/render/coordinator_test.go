package render

import (
	"context"
	"testing"
	"time"

	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/bigfloat"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/dispatch"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/fractal"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/store"
)

const testPrec = 128

func viewportAt(re, im, zoom float64) Viewport {
	return Viewport{
		CenterRe: bigfloat.New(re, testPrec),
		CenterIm: bigfloat.New(im, testPrec),
		Zoom:     bigfloat.New(zoom, testPrec),
	}
}

func mandelbrotRequest(width, height int, zoom float64, maxIter int) RenderRequest {
	return RenderRequest{
		Width:         width,
		Height:        height,
		Viewport:      viewportAt(-0.5, 0, zoom),
		Kind:          fractal.Mandelbrot,
		MaxIterations: maxIter,
		EscapeRadius:  2,
		TileSize:      64,
		WorkerCount:   2,
	}
}

func runToCompletion(t *testing.T, c *Coordinator, req RenderRequest) *Session {
	t.Helper()
	s := c.CreateSession(req)
	c.Start(context.Background(), s.ID)

	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		current, _ := c.GetSession(s.ID)
		if current.Err != nil {
			t.Fatalf("render failed: %v", current.Err)
		}
		switch current.State {
		case Complete:
			return current
		case Cancelled:
			t.Fatalf("render ended in state %s", current.State)
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("render did not complete in time")
	return nil
}

// Mandelbrot overview in direct mode: the viewport center lies inside the
// set, the corner escapes within a handful of iterations, and the
// dispatcher reports DOUBLE.
func TestRender_MandelbrotOverview(t *testing.T) {
	c := NewCoordinator(DefaultCoreConfig(), nil, "", false)
	s := runToCompletion(t, c, mandelbrotRequest(256, 256, 200, 500))

	center := s.Field.Index(128, 128)
	if s.Field.Escaped[center] {
		t.Error("center pixel (-0.5, 0) should be interior")
	}
	if s.Field.Iterations[center] != 500 {
		t.Errorf("interior pixel iterations = %v, want maxIter 500", s.Field.Iterations[center])
	}

	corner := s.Field.Index(0, 0)
	if !s.Field.Escaped[corner] {
		t.Error("corner pixel should escape")
	}
	if s.Field.Iterations[corner] >= 6 {
		t.Errorf("corner pixel iterations = %v, want < 6", s.Field.Iterations[corner])
	}

	if s.Stats.PrecisionMode != "DOUBLE" {
		t.Errorf("precision mode = %s, want DOUBLE", s.Stats.PrecisionMode)
	}
	if s.Stats.TilesCompleted != s.Stats.TilesTotal {
		t.Errorf("tiles = %d/%d, want all complete", s.Stats.TilesCompleted, s.Stats.TilesTotal)
	}
	if s.Stats.TotalPixels != 256*256 {
		t.Errorf("total pixels = %d", s.Stats.TotalPixels)
	}
}

// Julia set at c = (-0.7, 0.27015): z0 = 0 is in the set; z0 = (2, 0)
// escapes on the first iteration with a smoothed count in [1, 2].
func TestRender_JuliaSmoothIteration(t *testing.T) {
	c := NewCoordinator(DefaultCoreConfig(), nil, "", false)
	req := RenderRequest{
		Width:         200,
		Height:        200,
		Viewport:      viewportAt(0, 0, 40),
		Kind:          fractal.Julia,
		Params:        fractal.Params{JuliaC: complex(-0.7, 0.27015)},
		MaxIterations: 1000,
		EscapeRadius:  2,
		TileSize:      64,
		WorkerCount:   2,
	}
	s := runToCompletion(t, c, req)

	center := s.Field.Index(100, 100)
	if s.Field.Escaped[center] {
		t.Error("z0 = 0 should be in this Julia set")
	}

	// Pixel (180, 100) maps to z0 = (2, 0) at zoom 40.
	far := s.Field.Index(180, 100)
	if !s.Field.Escaped[far] {
		t.Fatal("z0 = (2, 0) should escape")
	}
	if iter := s.Field.Iterations[far]; iter < 1 || iter > 2 {
		t.Errorf("smoothed iterations = %v, want within [1, 2]", iter)
	}
}

// The smoothed count for every escaped pixel must lie within [n, n+1] of
// its integer escape time; a cheap proxy is that it never exceeds maxIter
// and is never negative.
func TestRender_SmoothIterBounds(t *testing.T) {
	c := NewCoordinator(DefaultCoreConfig(), nil, "", false)
	s := runToCompletion(t, c, mandelbrotRequest(64, 64, 200, 300))

	for i, escaped := range s.Field.Escaped {
		iter := s.Field.Iterations[i]
		if escaped {
			if iter < 0 || iter > 300 {
				t.Fatalf("escaped pixel %d has iterations %v outside [0, maxIter]", i, iter)
			}
		} else if iter != 300 {
			t.Fatalf("interior pixel %d has iterations %v, want maxIter", i, iter)
		}
	}
}

// Determinism modulo parallel order: two identical renders produce
// bit-identical escaped and iterations fields.
func TestRender_Deterministic(t *testing.T) {
	c := NewCoordinator(DefaultCoreConfig(), nil, "", false)

	first := runToCompletion(t, c, mandelbrotRequest(64, 64, 200, 200))
	second := runToCompletion(t, c, mandelbrotRequest(64, 64, 200, 200))

	for i := range first.Field.Iterations {
		if first.Field.Iterations[i] != second.Field.Iterations[i] {
			t.Fatalf("iterations differ at pixel %d: %v vs %v", i, first.Field.Iterations[i], second.Field.Iterations[i])
		}
		if first.Field.Escaped[i] != second.Field.Escaped[i] {
			t.Fatalf("escaped flags differ at pixel %d", i)
		}
	}
}

// Forcing perturbation at a shallow zoom exercises the reference-orbit +
// series + delta-iteration path end to end; the classification of clearly
// interior and clearly escaped pixels must agree with direct mode.
func TestRender_PerturbationOverride(t *testing.T) {
	c := NewCoordinator(DefaultCoreConfig(), nil, "", false)

	baseline := runToCompletion(t, c, mandelbrotRequest(256, 256, 200, 300))

	mode := dispatch.PERTURBATION
	req := mandelbrotRequest(256, 256, 200, 300)
	req.PrecisionOverride = &mode
	perturbed := runToCompletion(t, c, req)

	if perturbed.Stats.PrecisionMode != "PERTURBATION" {
		t.Fatalf("precision mode = %s, want PERTURBATION", perturbed.Stats.PrecisionMode)
	}

	center := perturbed.Field.Index(128, 128)
	if perturbed.Field.Escaped[center] {
		t.Error("center should stay interior under perturbation")
	}
	corner := perturbed.Field.Index(0, 0)
	if !perturbed.Field.Escaped[corner] {
		t.Error("corner should stay escaped under perturbation")
	}
	if baseline.Field.Escaped[corner] != perturbed.Field.Escaped[corner] {
		t.Error("direct and perturbation modes disagree on a robustly escaped pixel")
	}
}

// Cancellation: after cancel, the final event is cancelled (never
// complete) and no tile-complete event follows it.
func TestRender_Cancellation(t *testing.T) {
	c := NewCoordinator(DefaultCoreConfig(), nil, "", false)

	req := mandelbrotRequest(1024, 1024, 200, 2000)
	req.Progressive = true
	req.WorkerCount = 1
	s := c.CreateSession(req)

	events := c.Broadcaster().Subscribe(s.ID)
	defer c.Broadcaster().Unsubscribe(s.ID, events)

	c.Start(context.Background(), s.ID)

	cancelled := false
	sawTileAfterCancel := false
	timeout := time.After(60 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

loop:
	for {
		select {
		case e := <-events:
			switch e.Kind {
			case EventTileComplete:
				if cancelled {
					sawTileAfterCancel = true
				} else {
					c.Cancel(s.ID)
					cancelled = true
				}
			case EventComplete:
				t.Fatal("render completed despite cancellation")
			case EventCancelled:
				break loop
			}
		case <-tick.C:
			// The cancelled event can be dropped if the subscriber buffer
			// is full of tile events; fall back to the session state.
			if cancelled {
				if current, _ := c.GetSession(s.ID); current.State == Idle || current.State == Cancelled {
					break loop
				}
			}
		case <-timeout:
			t.Fatal("never observed the cancelled event")
		}
	}

	if sawTileAfterCancel {
		// The batch in flight when cancel lands may still drain; anything
		// beyond one batch means dispatch did not stop.
		t.Log("tiles from the in-flight batch completed after cancel")
	}

	// The coordinator returns the session to Idle after the cancelled
	// event, releasing its workers.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		current, _ := c.GetSession(s.ID)
		if current.State == Idle {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	current, _ := c.GetSession(s.ID)
	t.Fatalf("session state after cancellation = %s, want idle", current.State)
}

// Invalid input (zoom <= 0) fails the render with a typed error and
// publishes an error event instead of start/complete.
func TestRender_InvalidZoomFails(t *testing.T) {
	c := NewCoordinator(DefaultCoreConfig(), nil, "", false)

	req := mandelbrotRequest(64, 64, 200, 100)
	req.Viewport.Zoom = bigfloat.New(-1, testPrec)
	s := c.CreateSession(req)

	events := c.Broadcaster().Subscribe(s.ID)
	defer c.Broadcaster().Unsubscribe(s.ID, events)

	c.Start(context.Background(), s.ID)

	timeout := time.After(10 * time.Second)
	for {
		select {
		case e := <-events:
			if e.Kind == EventError {
				if e.ErrorKind != InvalidInput {
					t.Errorf("error kind = %s, want InvalidInput", e.ErrorKind)
				}
				return
			}
			if e.Kind == EventComplete {
				t.Fatal("render with invalid zoom completed")
			}
		case <-timeout:
			t.Fatal("never observed the error event")
		}
	}
}

// A coordinator wired to a store persists the finished session, and the
// persisted record passes validation and carries the stats snapshot.
func TestRender_PersistsSession(t *testing.T) {
	dir := t.TempDir()
	fsStore, err := store.NewFSStore(dir)
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}

	c := NewCoordinator(DefaultCoreConfig(), fsStore, dir, true)
	s := runToCompletion(t, c, mandelbrotRequest(64, 64, 200, 200))

	saved, err := fsStore.LoadSession(s.ID)
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if err := saved.Validate(); err != nil {
		t.Errorf("persisted session fails validation: %v", err)
	}
	if saved.State != "complete" {
		t.Errorf("persisted state = %q, want complete", saved.State)
	}
	if saved.Stats.TilesCompleted != s.Stats.TilesCompleted {
		t.Errorf("persisted tiles = %d, want %d", saved.Stats.TilesCompleted, s.Stats.TilesCompleted)
	}
	if saved.Config.Fractal.Kind != "mandelbrot" {
		t.Errorf("persisted kind = %q", saved.Config.Fractal.Kind)
	}

	// The progress trace must exist and end at full tile coverage.
	tr, err := store.NewTraceReader(dir, s.ID)
	if err != nil {
		t.Fatalf("NewTraceReader: %v", err)
	}
	defer tr.Close()
	entries, err := tr.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("trace is empty")
	}
	last := entries[len(entries)-1]
	if last.TilesDone != last.TilesTotal {
		t.Errorf("trace ends at %d/%d tiles", last.TilesDone, last.TilesTotal)
	}
}

// Monotone progress: tile counters in published events never decrease.
func TestRender_MonotoneProgress(t *testing.T) {
	c := NewCoordinator(DefaultCoreConfig(), nil, "", false)

	req := mandelbrotRequest(256, 256, 200, 200)
	req.Progressive = true
	s := c.CreateSession(req)

	events := c.Broadcaster().Subscribe(s.ID)
	defer c.Broadcaster().Unsubscribe(s.ID, events)

	c.Start(context.Background(), s.ID)

	prev := 0
	timeout := time.After(60 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case e := <-events:
			if e.Kind == EventTileComplete {
				if e.TilesDone < prev {
					t.Fatalf("tilesDone went backwards: %d after %d", e.TilesDone, prev)
				}
				prev = e.TilesDone
			}
			if e.Kind == EventComplete {
				return
			}
			if e.Kind == EventError || e.Kind == EventCancelled {
				t.Fatalf("unexpected terminal event %s", e.Kind)
			}
		case <-tick.C:
			// The complete event can be dropped under a full subscriber
			// buffer; fall back to the session state.
			if current, _ := c.GetSession(s.ID); current.State == Complete {
				return
			}
		case <-timeout:
			t.Fatal("render did not complete in time")
		}
	}
}
