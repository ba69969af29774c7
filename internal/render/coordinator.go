package render

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/cmplx"
	"sync"
	"time"

	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/dispatch"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/direct"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/field"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/fractal"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/glitch"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/iterctl"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/orbit"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/perturb"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/scheduler"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/series"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/simd"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/store"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/supersample"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/worker"
	"github.com/google/uuid"
)

// Session is one render's tracked lifecycle: its request, current state,
// field buffers, and stats.
type Session struct {
	ID      string
	Request RenderRequest
	State   State
	Field   *field.PixelField
	GlitchMap *field.GlitchMap
	Stats   field.Stats
	Err     *Error
	cancel  context.CancelFunc
}

// Coordinator owns the session map and drives each render's state
// machine.
type Coordinator struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	broadcaster *EventBroadcaster
	orbits      *orbit.Cache
	config      CoreConfig

	store       store.Store
	dataDir     string
	enableTrace bool
}

// NewCoordinator builds a Coordinator with the given CoreConfig. sessionStore
// and dataDir are optional (pass nil, "" to run without persistence); when
// sessionStore is set, every session that reaches Complete/Cancelled/Failed
// is saved via SaveSession, and if enableTrace is also set a progress trace
// is written to <dataDir>/sessions/<id>/trace.jsonl.
func NewCoordinator(cfg CoreConfig, sessionStore store.Store, dataDir string, enableTrace bool) *Coordinator {
	return &Coordinator{
		sessions:    make(map[string]*Session),
		broadcaster: NewEventBroadcaster(),
		orbits:      orbit.NewCache(),
		config:      cfg,
		store:       sessionStore,
		dataDir:     dataDir,
		enableTrace: enableTrace,
	}
}

// Broadcaster exposes the coordinator's event bus for HTTP SSE handlers.
func (c *Coordinator) Broadcaster() *EventBroadcaster { return c.broadcaster }

// CreateSession registers a new Idle session for req and returns its ID.
func (c *Coordinator) CreateSession(req RenderRequest) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &Session{
		ID:      uuid.New().String(),
		Request: req,
		State:   Idle,
	}
	c.sessions[s.ID] = s
	return s
}

// GetSession retrieves a session by ID.
func (c *Coordinator) GetSession(id string) (*Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sessions[id]
	return s, ok
}

// ListSessions returns every tracked session.
func (c *Coordinator) ListSessions() []*Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, s)
	}
	return out
}

// updateSession atomically mutates a session via fn under the session
// map lock.
func (c *Coordinator) updateSession(id string, fn func(*Session)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions[id]; ok {
		fn(s)
	}
}

// Start launches the render for sessionID in a background goroutine; the
// session keeps the cancel function for Cancel to trigger.
func (c *Coordinator) Start(ctx context.Context, sessionID string) {
	runCtx, cancel := context.WithCancel(ctx)
	c.updateSession(sessionID, func(s *Session) { s.cancel = cancel })
	go c.run(runCtx, sessionID)
}

// Cancel requests cooperative cancellation of a running render.
func (c *Coordinator) Cancel(sessionID string) {
	c.mu.RLock()
	s, ok := c.sessions[sessionID]
	c.mu.RUnlock()
	if ok && s.cancel != nil {
		s.cancel()
	}
}

func (c *Coordinator) publish(sessionID string, kind EventKind, state State, tilesDone, tilesTotal int, stats field.Stats, errKind ErrorKind, msg string) {
	c.broadcaster.Broadcast(Event{
		SessionID:  sessionID,
		Kind:       kind,
		State:      state,
		TilesDone:  tilesDone,
		TilesTotal: tilesTotal,
		Stats:      stats,
		ErrorKind:  errKind,
		Message:    msg,
		Timestamp:  time.Now(),
	})
}

func (c *Coordinator) fail(sessionID string, kind ErrorKind, err error) {
	c.updateSession(sessionID, func(s *Session) {
		s.State = Failed
		s.Err = &Error{Kind: kind, Err: err}
	})
	c.publish(sessionID, EventError, Failed, 0, 0, field.Stats{}, kind, err.Error())
	if s, ok := c.GetSession(sessionID); ok {
		c.persistSession(sessionID, s.Request, field.Stats{}, Failed, "")
	}
	c.updateSession(sessionID, func(s *Session) { s.State = Idle })
}

// persistSession saves a terminal session state via the configured Store:
// best effort, a failure here is logged but never fails the render itself.
func (c *Coordinator) persistSession(sessionID string, req RenderRequest, stats field.Stats, state State, orbitCacheKey string) {
	if c.store == nil {
		return
	}
	session := store.NewRenderSession(sessionID, toSessionConfig(req), toStatsSnapshot(stats), state.String(), orbitCacheKey)
	if err := c.store.SaveSession(session); err != nil {
		slog.Warn("render: failed to save session", "session", sessionID, "error", err)
	}
}

func toSessionConfig(req RenderRequest) store.SessionConfig {
	cfg := store.SessionConfig{
		Width:  req.Width,
		Height: req.Height,

		CenterRe: req.Viewport.CenterRe.String(),
		CenterIm: req.Viewport.CenterIm.String(),
		Zoom:     req.Viewport.Zoom.String(),
		Rotation: req.Viewport.Rotation,

		Fractal: store.FractalConfig{
			Kind:     req.Kind.String(),
			JuliaCRe: real(req.Params.JuliaC),
			JuliaCIm: imag(req.Params.JuliaC),
			Power:    req.Params.Power,
		},

		MaxIterations: req.MaxIterations,
		EscapeRadius:  req.EscapeRadius,

		Antialiasing:       req.Antialiasing,
		SupersampleLevel:   int(req.SupersampleLevel),
		SSPattern:          int(req.SSPattern),
		GlitchCorrection:   req.GlitchCorrection,
		AdaptiveIterations: req.AdaptiveIterations,
		IterPreset:         int(req.IterPreset),
		TileSize:           req.TileSize,
		WorkerCount:        req.WorkerCount,
		SeriesTerms:        req.SeriesTerms,
		SeriesTolerance:    req.SeriesTolerance,
	}
	if req.PrecisionOverride != nil {
		cfg.PrecisionOverride = req.PrecisionOverride.String()
	}
	return cfg
}

func toStatsSnapshot(stats field.Stats) store.RenderStatsSnapshot {
	return store.RenderStatsSnapshot{
		TotalPixels:       stats.TotalPixels,
		TilesCompleted:    stats.TilesCompleted,
		TilesTotal:        stats.TilesTotal,
		AvgIterations:     stats.AvgIterations,
		MaxIterationsUsed: stats.MaxIterationsUsed,
		GlitchesDetected:  stats.GlitchesDetected,
		GlitchesCorrected: stats.GlitchesCorrected,
		RenderTimeMs:      stats.RenderTimeMs,
		PixelsPerSecond:   stats.PixelsPerSecond,
		PrecisionMode:     stats.PrecisionMode,
		SSPasses:          stats.SSPasses,
		SIMDBackend:       stats.SIMDBackend,
	}
}

// run drives one session through the renderer state machine:
// Idle -> Dispatching -> Rendering -> GlitchPass -> Supersampling -> Complete,
// with Cancelled/Failed reachable from any state.
func (c *Coordinator) run(ctx context.Context, sessionID string) {
	s, ok := c.GetSession(sessionID)
	if !ok {
		return
	}
	req := s.Request
	start := time.Now()

	var trace *store.TraceWriter
	if c.enableTrace && c.store != nil {
		tw, err := store.NewTraceWriter(c.dataDir, sessionID, false)
		if err != nil {
			slog.Warn("render: failed to open trace writer", "session", sessionID, "error", err)
		} else {
			trace = tw
			defer trace.Close()
		}
	}

	c.updateSession(sessionID, func(s *Session) { s.State = Dispatching })
	c.publish(sessionID, EventStart, Dispatching, 0, 0, field.Stats{}, 0, "")

	zoom := req.Viewport.ZoomFloat()
	thresholds := c.config.Thresholds
	if req.PrecisionSafetyMargin > 0 {
		thresholds.SafetyMargin = req.PrecisionSafetyMargin
	}
	decision, err := dispatch.Decide(zoom, thresholds, req.PrecisionOverride)
	if err != nil {
		c.fail(sessionID, InvalidInput, err)
		return
	}

	formula, err := fractal.New(req.Kind, req.Params)
	if err != nil {
		c.fail(sessionID, InvalidInput, err)
		return
	}

	maxIter := req.MaxIterations
	if maxIter <= 0 {
		preset := iterctl.PresetConfig(req.IterPreset)
		if req.AdaptiveIterations {
			maxIter = iterctl.Recommend(preset, zoom, nil, 0, nil)
		} else {
			maxIter = iterctl.BaseIters(preset, zoom)
		}
	}

	bailoutR2 := req.EscapeRadius
	if bailoutR2 <= 0 {
		bailoutR2 = 2
	}
	bailoutR2 *= bailoutR2

	mapper := NewPixelMapper(req.Width, req.Height, req.Viewport)

	var refOrbit *orbit.Orbit
	var approx *series.Approximation

	if decision.Mode != dispatch.DOUBLE {
		refPoint := req.Viewport.CenterBigComplex(decision.PrecisionBits)
		refOrbit, err = c.orbits.Get(orbit.Config{
			ReferencePoint:  refPoint,
			Kind:            req.Kind,
			Params:          req.Params,
			MaxIter:         maxIter,
			BailoutR2:       bailoutR2,
			CheckpointEvery: 100,
		})
		if err != nil {
			c.fail(sessionID, PrecisionOverflow, err)
			return
		}

		terms := req.SeriesTerms
		if terms <= 0 {
			terms = c.config.SeriesDefaultTerms
		}
		tol := req.SeriesTolerance
		if tol <= 0 {
			tol = c.config.SeriesTolerance
		}
		radius := mapper.PixelRadius(math.Hypot(float64(req.Width), float64(req.Height)) / 2)
		approx = series.Build(refOrbit.Z, series.Config{Terms: terms, Radius: radius, Tolerance: tol})
		// A Diverged approximation with SkipIter == 0 carries no usable skip;
		// ValidAt already returns false in that case, so perturbation falls
		// back to starting at n=0 for every pixel without any special-casing
		// here; series divergence is a silent fallback, not an error.
	}

	select {
	case <-ctx.Done():
		c.cancelSession(sessionID)
		return
	default:
	}

	// --- Rendering pass ---
	c.updateSession(sessionID, func(s *Session) {
		s.State = Rendering
		s.Field = field.New(req.Width, req.Height)
	})

	tileSize := req.TileSize
	tiles := scheduler.SpiralOrder(scheduler.Tessellate(req.Width, req.Height, tileSize), req.Width, req.Height)
	workerCount := req.WorkerCount
	if workerCount <= 0 {
		workerCount = simd.DefaultWorkerCount()
	}

	periodicity := req.PeriodicityInterval

	compute := func(ctx context.Context, t worker.TileGeometry) (worker.TilePixels, error) {
		n := t.W * t.H
		p := worker.TilePixels{
			Iterations:       make([]float64, n),
			Escaped:          make([]bool, n),
			OrbitFinalRe:     make([]float64, n),
			OrbitFinalIm:     make([]float64, n),
			DistanceEstimate: make([]float64, n),
			Potential:        make([]float64, n),
			FinalAngle:       make([]float64, n),
			GlitchCandidate:  make([]bool, n),
		}
		for ty := 0; ty < t.H; ty++ {
			for tx := 0; tx < t.W; tx++ {
				i := ty*t.W + tx
				px, py := t.X+tx, t.Y+ty
				pixel := mapper.At(px, py)

				var iterations float64
				var escaped bool
				var final complex128
				var glitchCandidate bool

				if decision.Mode == dispatch.DOUBLE {
					r := direct.Iterate(direct.Config{
						Formula:             formula,
						Pixel:               pixel,
						MaxIter:             maxIter,
						BailoutR2:           bailoutR2,
						PeriodicityInterval: periodicity,
					})
					iterations, escaped, final = r.Iterations, r.Escaped, r.OrbitFinal
				} else {
					deltaC := pixel - refOrbit.ReferencePoint
					var deltaZStart complex128
					start := 0
					if approx != nil && approx.ValidAt(deltaC) {
						deltaZStart = approx.DeltaZAt(deltaC)
						start = approx.SkipIter
					}
					r := perturb.Iterate(perturb.Config{
						Formula:        formula,
						Z:              refOrbit.Z,
						DeltaCStart:    deltaC,
						DeltaZStart:    deltaZStart,
						StartIteration: start,
						MaxIter:        maxIter,
						BailoutR2:      bailoutR2,
					})
					iterations, escaped, final, glitchCandidate = r.Iterations, r.Escaped, r.OrbitFinal, r.GlitchCandidate
				}

				p.Iterations[i] = iterations
				p.Escaped[i] = escaped
				p.OrbitFinalRe[i] = real(final)
				p.OrbitFinalIm[i] = imag(final)
				p.FinalAngle[i] = math.Atan2(imag(final), real(final))
				if escaped {
					p.Potential[i] = math.Log(cmplx.Abs(final)) / math.Exp2(iterations)
				}
				p.GlitchCandidate[i] = glitchCandidate
			}
		}
		return p, nil
	}

	pool := worker.NewPool(workerCount, compute)

	tilesTotal := len(tiles)
	tilesDone := 0
	batchSize := scheduler.DefaultMaxTilesPerTick
	if !req.Progressive {
		batchSize = tilesTotal
		if batchSize == 0 {
			batchSize = 1
		}
	}
	batcher := scheduler.NewBatcher(tiles, batchSize)

	cancelled := false
dispatchLoop:
	for {
		select {
		case <-ctx.Done():
			cancelled = true
			break dispatchLoop
		default:
		}

		batch := batcher.Next()
		if batch == nil {
			break
		}
		msgs := make([]worker.RenderTileMsg, len(batch))
		for i, t := range batch {
			msgs[i] = worker.RenderTileMsg{Tile: worker.TileGeometry{X: t.X, Y: t.Y, W: t.W, H: t.H}, Priority: t.Priority}
		}

		completed := make(map[worker.TileGeometry]bool, len(msgs))
		for tc := range pool.Run(ctx, msgs) {
			mergeTile(s.Field, s.GlitchMapOrNil(), tc)
			completed[tc.Tile] = true
			tilesDone++
			c.publish(sessionID, EventTileComplete, Rendering, tilesDone, tilesTotal, field.Stats{}, 0, "")
		}

		select {
		case <-ctx.Done():
			cancelled = true
			break dispatchLoop
		default:
		}

		// A tile missing from the drained batch means its worker failed on
		// it (cancellation is ruled out above). Re-queue each failed tile
		// once on fresh workers; a second failure is fatal.
		var retry []worker.RenderTileMsg
		for _, m := range msgs {
			if !completed[m.Tile] {
				retry = append(retry, m)
			}
		}
		if len(retry) > 0 {
			slog.Warn("render: re-queueing failed tiles", "session", sessionID, "count", len(retry))
			for tc := range pool.Run(ctx, retry) {
				mergeTile(s.Field, s.GlitchMapOrNil(), tc)
				completed[tc.Tile] = true
				tilesDone++
				c.publish(sessionID, EventTileComplete, Rendering, tilesDone, tilesTotal, field.Stats{}, 0, "")
			}

			select {
			case <-ctx.Done():
				cancelled = true
				break dispatchLoop
			default:
			}

			for _, m := range retry {
				if !completed[m.Tile] {
					c.fail(sessionID, WorkerCrash, fmt.Errorf("tile (%d,%d) %dx%d failed twice", m.Tile.X, m.Tile.Y, m.Tile.W, m.Tile.H))
					return
				}
			}
		}

		if trace != nil {
			trace.Write(store.TraceEntry{
				TilesDone:  tilesDone,
				TilesTotal: tilesTotal,
				State:      Rendering.String(),
				Timestamp:  time.Now(),
			})
		}

		select {
		case <-ctx.Done():
			cancelled = true
			break dispatchLoop
		default:
		}
	}

	if cancelled {
		c.cancelSession(sessionID)
		return
	}

	c.publish(sessionID, EventPassComplete, Rendering, tilesDone, tilesTotal, field.Stats{}, 0, "")

	// --- Glitch pass ---
	glitchesDetected, glitchesCorrected := 0, 0
	uncorrectable := false
	if req.GlitchCorrection && decision.Mode != dispatch.DOUBLE {
		c.updateSession(sessionID, func(s *Session) { s.State = GlitchPass })

		rerunCfg := glitch.RerunConfig{
			Formula:             formula,
			PixelToC:            mapper.AtIndex,
			BailoutR2:           bailoutR2,
			PeriodicityInterval: periodicity,
		}
		rebaseCfg := glitch.RebaseConfig{
			Kind:            req.Kind,
			Params:          req.Params,
			MaxIter:         maxIter,
			BailoutR2:       bailoutR2,
			CheckpointEvery: 100,
			SeriesCfg:       series.Config{Terms: c.config.SeriesDefaultTerms, Tolerance: c.config.SeriesTolerance},
		}

		for pass := 0; pass < c.config.MaxCorrectionPasses; pass++ {
			select {
			case <-ctx.Done():
				c.cancelSession(sessionID)
				return
			default:
			}

			gm := glitch.Detect(s.Field, c.config.GlitchCfg)
			regions := glitch.Cluster(gm, c.config.GlitchCfg)
			if len(regions) == 0 {
				break
			}
			glitch.Classify(regions, s.Field, c.config.GlitchCfg)
			if pass == 0 {
				for _, r := range regions {
					glitchesDetected += len(r.Pixels)
				}
			}

			for _, r := range regions {
				switch r.Strategy {
				case field.Interpolate:
					glitchesCorrected += glitch.Interpolate(s.Field, gm, r)
				case field.IncreaseIter:
					glitchesCorrected += glitch.IncreaseIter(s.Field, gm, r, rerunCfg, maxIter)
				case field.HighPrecision:
					_, n, rerr := glitch.HighPrecision(s.Field, gm, r, rerunCfg, rebaseCfg, decision.PrecisionBits)
					if rerr == nil {
						glitchesCorrected += n
					}
				case field.Rebase:
					_, n, rerr := glitch.Rebase(s.Field, gm, r, rerunCfg, rebaseCfg, decision.PrecisionBits)
					if rerr == nil {
						glitchesCorrected += n
					}
				}
			}

			if pass == c.config.MaxCorrectionPasses-1 {
				gmFinal := glitch.Detect(s.Field, c.config.GlitchCfg)
				remaining := glitch.Cluster(gmFinal, c.config.GlitchCfg)
				if len(remaining) > 0 {
					uncorrectable = true
				}
			}
		}
		c.publish(sessionID, EventGlitchPassComplete, GlitchPass, tilesDone, tilesTotal, field.Stats{}, 0, "")
	}

	// --- Supersampling pass ---
	ssPasses := 0
	if req.Antialiasing || req.SupersampleLevel != 0 {
		c.updateSession(sessionID, func(s *Session) { s.State = Supersampling })

		level := req.SupersampleLevel
		if level == 0 {
			level = supersample.Level2
		}
		ssPasses = runSupersample(s.Field, mapper, formula, decision, refOrbit, approx, maxIter, bailoutR2, periodicity, level, req.SSPattern)
	}

	// --- Complete ---
	elapsed := time.Since(start)
	var sumIter float64
	for _, v := range s.Field.Iterations {
		sumIter += v
	}
	total := req.Width * req.Height
	stats := field.Stats{
		TotalPixels:       total,
		TilesCompleted:    tilesDone,
		TilesTotal:        tilesTotal,
		AvgIterations:     sumIter / float64(max1(total)),
		MaxIterationsUsed: maxIter,
		GlitchesDetected:  glitchesDetected,
		GlitchesCorrected: glitchesCorrected,
		RenderTimeMs:      elapsed.Milliseconds(),
		PixelsPerSecond:   float64(total) / elapsed.Seconds(),
		PrecisionMode:     decision.Mode.String(),
		SSPasses:          ssPasses,
		SIMDBackend:       simd.ActiveBackend().String(),
	}
	if uncorrectable {
		// Uncorrectable clusters do not fail the render; they are surfaced
		// via logging and the GlitchesDetected/GlitchesCorrected gap in Stats.
		slog.Warn("render: glitch clusters remained after max correction passes",
			"session", sessionID, "passes", c.config.MaxCorrectionPasses)
	}

	c.updateSession(sessionID, func(s *Session) {
		s.State = Complete
		s.Stats = stats
	})
	c.publish(sessionID, EventComplete, Complete, tilesDone, tilesTotal, stats, 0, "")

	orbitCacheKey := ""
	if refOrbit != nil {
		orbitCacheKey = fmt.Sprintf("%v:%d", refOrbit.ReferencePoint, maxIter)
	}
	c.persistSession(sessionID, req, stats, Complete, orbitCacheKey)
}

func (c *Coordinator) cancelSession(sessionID string) {
	c.updateSession(sessionID, func(s *Session) { s.State = Cancelled })
	c.publish(sessionID, EventCancelled, Cancelled, 0, 0, field.Stats{}, CancelledKind, "cancelled")
	if s, ok := c.GetSession(sessionID); ok {
		c.persistSession(sessionID, s.Request, field.Stats{}, Cancelled, "")
	}
	c.updateSession(sessionID, func(s *Session) { s.State = Idle })
}

// GlitchMapOrNil lazily allocates a session's GlitchMap on first tile
// merge, since it is only needed when glitch correction runs but
// detection reads from a fully merged field regardless.
func (s *Session) GlitchMapOrNil() *field.GlitchMap {
	if s.GlitchMap == nil {
		s.GlitchMap = field.NewGlitchMap(s.Field.Width, s.Field.Height)
	}
	return s.GlitchMap
}

func mergeTile(f *field.PixelField, gm *field.GlitchMap, tc worker.TileCompleteMsg) {
	for ty := 0; ty < tc.Tile.H; ty++ {
		for tx := 0; tx < tc.Tile.W; tx++ {
			i := ty*tc.Tile.W + tx
			px, py := tc.Tile.X+tx, tc.Tile.Y+ty
			f.SetPixel(px, py, field.PixelValue{
				Iterations:       tc.Pixels.Iterations[i],
				Escaped:          tc.Pixels.Escaped[i],
				OrbitFinalRe:     tc.Pixels.OrbitFinalRe[i],
				OrbitFinalIm:     tc.Pixels.OrbitFinalIm[i],
				DistanceEstimate: tc.Pixels.DistanceEstimate[i],
				Potential:        tc.Pixels.Potential[i],
				FinalAngle:       tc.Pixels.FinalAngle[i],
			})
			if gm != nil && tc.Pixels.GlitchCandidate[i] {
				gi := gm.Index(px, py)
				gm.Bytes[gi] = field.Candidate
			}
		}
	}
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// runSupersample refines every pixel the adaptive edge detector flags,
// accumulating level's sample offsets through whichever iterator the
// precision dispatcher selected, and reports how many pixels it touched.
func runSupersample(f *field.PixelField, mapper PixelMapper, formula fractal.Formula, decision dispatch.Decision, refOrbit *orbit.Orbit, approx *series.Approximation, maxIter int, bailoutR2 float64, periodicity int, level supersample.Level, pattern supersample.Pattern) int {
	width, height := f.Width, f.Height

	useLevel := level
	if level == supersample.Adaptive {
		// Adaptive mode always refines flagged pixels with a 4-sample
		// rotated grid, regardless of the requested fixed-level pattern.
		useLevel = supersample.Level4
		pattern = supersample.RotatedGrid
	}
	mask := supersample.EdgeMask(f.Iterations, f.Escaped, width, height, glitch.DefaultIterDiff)
	offsets := supersample.Offsets(useLevel, pattern)

	passes := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := f.Index(x, y)
			if !mask[i] {
				continue
			}

			px, py := float64(x), float64(y)
			sample := func(dx, dy float64) (float64, bool) {
				pixel := mapper.AtF(px+dx, py+dy)
				if decision.Mode == dispatch.DOUBLE {
					r := direct.Iterate(direct.Config{
						Formula:             formula,
						Pixel:               pixel,
						MaxIter:             maxIter,
						BailoutR2:           bailoutR2,
						PeriodicityInterval: periodicity,
					})
					return r.Iterations, r.Escaped
				}
				deltaC := pixel - refOrbit.ReferencePoint
				var deltaZStart complex128
				start := 0
				if approx != nil && approx.ValidAt(deltaC) {
					deltaZStart = approx.DeltaZAt(deltaC)
					start = approx.SkipIter
				}
				r := perturb.Iterate(perturb.Config{
					Formula:        formula,
					Z:              refOrbit.Z,
					DeltaCStart:    deltaC,
					DeltaZStart:    deltaZStart,
					StartIteration: start,
					MaxIter:        maxIter,
					BailoutR2:      bailoutR2,
				})
				return r.Iterations, r.Escaped
			}

			value, escaped := supersample.Accumulate(offsets, sample)
			v := f.GetPixel(x, y)
			v.Iterations = value
			v.Escaped = escaped
			f.SetPixel(x, y, v)
			passes++
		}
	}
	return passes
}
