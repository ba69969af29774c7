package main

import (
	"context"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/palette"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/render"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/server"
	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/store"
	"github.com/spf13/cobra"
)

var (
	renderWidth        int
	renderHeight       int
	renderCenterRe     string
	renderCenterIm     string
	renderZoom         string
	renderRotation     float64
	renderKind         string
	renderJuliaRe      float64
	renderJuliaIm      float64
	renderPower        float64
	renderMaxIter      int
	renderEscapeRadius float64
	renderProgressive  bool
	renderSSLevel      string
	renderSSPattern    string
	renderGlitchFix    bool
	renderAdaptive     bool
	renderPreset       string
	renderTileSize     int
	renderWorkers      int
	renderPrecision    string
	renderSafetyMargin int
	renderPeriodicity  int
	renderOutPath      string
	renderDataDir      string
	renderTraceFlag    bool
	renderCPUProfile   string
	renderMemProfile   string
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Run a single-shot render",
	Long:  `Computes the per-pixel iteration field for one viewport and writes a grayscale PNG preview.`,
	RunE:  runRender,
}

func init() {
	renderCmd.Flags().IntVar(&renderWidth, "width", 800, "Output width in pixels")
	renderCmd.Flags().IntVar(&renderHeight, "height", 600, "Output height in pixels")
	renderCmd.Flags().StringVar(&renderCenterRe, "center-re", "-0.5", "Viewport center, real part (decimal string)")
	renderCmd.Flags().StringVar(&renderCenterIm, "center-im", "0", "Viewport center, imaginary part (decimal string)")
	renderCmd.Flags().StringVar(&renderZoom, "zoom", "200", "Zoom (pixels per fractal-space unit, decimal string)")
	renderCmd.Flags().Float64Var(&renderRotation, "rotation", 0, "Viewport rotation in radians")
	renderCmd.Flags().StringVar(&renderKind, "kind", "mandelbrot", "Fractal kind: mandelbrot, julia, burning-ship, multibrot")
	renderCmd.Flags().Float64Var(&renderJuliaRe, "julia-re", -0.7, "Julia c, real part")
	renderCmd.Flags().Float64Var(&renderJuliaIm, "julia-im", 0.27015, "Julia c, imaginary part")
	renderCmd.Flags().Float64Var(&renderPower, "power", 3, "Multibrot power")
	renderCmd.Flags().IntVar(&renderMaxIter, "iters", 0, "Max iterations (0 = derive from preset/zoom)")
	renderCmd.Flags().Float64Var(&renderEscapeRadius, "escape-radius", 2, "Escape radius")
	renderCmd.Flags().BoolVar(&renderProgressive, "progressive", false, "Spiral tile scheduling with batched dispatch")
	renderCmd.Flags().StringVar(&renderSSLevel, "supersample", "", "Supersample level: 1, 2, 4, 8, adaptive")
	renderCmd.Flags().StringVar(&renderSSPattern, "ss-pattern", "grid", "Supersample pattern: grid, rotated-grid, quincunx, poisson16, jittered")
	renderCmd.Flags().BoolVar(&renderGlitchFix, "glitch-correction", true, "Enable glitch detection and correction")
	renderCmd.Flags().BoolVar(&renderAdaptive, "adaptive-iters", false, "Enable adaptive iteration control")
	renderCmd.Flags().StringVar(&renderPreset, "preset", "balanced", "Iteration preset: fast, balanced, quality, extreme")
	renderCmd.Flags().IntVar(&renderTileSize, "tile-size", 64, "Tile size (power of two, clamped to [32, 256])")
	renderCmd.Flags().IntVar(&renderWorkers, "workers", 0, "Worker count (0 = hardware concurrency)")
	renderCmd.Flags().StringVar(&renderPrecision, "precision", "", "Force precision mode: double, perturbation, arbitrary")
	renderCmd.Flags().IntVar(&renderSafetyMargin, "safety-margin", 0, "Extra precision digits beyond ceil(log10(zoom))")
	renderCmd.Flags().IntVar(&renderPeriodicity, "periodicity", 0, "Periodicity snapshot interval (0 = default)")
	renderCmd.Flags().StringVar(&renderOutPath, "out", "out.png", "Output preview image path")
	renderCmd.Flags().StringVar(&renderDataDir, "data-dir", "", "Persist the session under this directory (empty = no persistence)")
	renderCmd.Flags().BoolVar(&renderTraceFlag, "trace", false, "Write a progress trace (requires --data-dir)")

	// Profiling flags
	renderCmd.Flags().StringVar(&renderCPUProfile, "cpuprofile", "", "Write CPU profile to file")
	renderCmd.Flags().StringVar(&renderMemProfile, "memprofile", "", "Write memory profile to file")

	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	// Start CPU profiling if requested
	if renderCPUProfile != "" {
		f, err := os.Create(renderCPUProfile)
		if err != nil {
			return fmt.Errorf("failed to create CPU profile: %w", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return fmt.Errorf("failed to start CPU profile: %w", err)
		}
		defer pprof.StopCPUProfile()
		slog.Info("CPU profiling enabled", "output", renderCPUProfile)
	}

	body := server.RenderRequestJSON{
		Width:    renderWidth,
		Height:   renderHeight,
		CenterRe: renderCenterRe,
		CenterIm: renderCenterIm,
		Zoom:     renderZoom,
		Rotation: renderRotation,
		Fractal: server.FractalJSON{
			Kind:     renderKind,
			JuliaCRe: renderJuliaRe,
			JuliaCIm: renderJuliaIm,
			Power:    renderPower,
		},
		MaxIterations:         renderMaxIter,
		EscapeRadius:          renderEscapeRadius,
		Progressive:           renderProgressive,
		Antialiasing:          renderSSLevel != "",
		SupersampleLevel:      renderSSLevel,
		SSPattern:             renderSSPattern,
		GlitchCorrection:      renderGlitchFix,
		AdaptiveIterations:    renderAdaptive,
		IterPreset:            renderPreset,
		TileSize:              renderTileSize,
		WorkerCount:           renderWorkers,
		PrecisionOverride:     renderPrecision,
		PrecisionSafetyMargin: renderSafetyMargin,
		PeriodicityInterval:   renderPeriodicity,
	}
	req, err := body.ToRenderRequest()
	if err != nil {
		return err
	}

	var sessionStore store.Store
	if renderDataDir != "" {
		fsStore, err := store.NewFSStore(renderDataDir)
		if err != nil {
			return fmt.Errorf("failed to create session store: %w", err)
		}
		sessionStore = fsStore
	}

	coordinator := render.NewCoordinator(render.DefaultCoreConfig(), sessionStore, renderDataDir, renderTraceFlag)
	session := coordinator.CreateSession(req)

	events := coordinator.Broadcaster().Subscribe(session.ID)
	defer coordinator.Broadcaster().Unsubscribe(session.ID, events)

	// Ctrl+C requests cooperative cancellation rather than killing the
	// process mid-tile.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting render",
		"size", fmt.Sprintf("%dx%d", renderWidth, renderHeight),
		"kind", renderKind,
		"zoom", renderZoom,
	)
	start := time.Now()
	coordinator.Start(ctx, session.ID)

	// Terminal events can be dropped if the subscriber channel fills, so
	// a slow ticker double-checks the session state.
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

waitLoop:
	for {
		select {
		case e := <-events:
			switch e.Kind {
			case render.EventTileComplete:
				slog.Debug("Tile complete", "done", e.TilesDone, "total", e.TilesTotal)
			case render.EventPassComplete:
				slog.Info("Render pass complete", "tiles", e.TilesTotal)
			case render.EventGlitchPassComplete:
				slog.Info("Glitch pass complete")
			case render.EventComplete, render.EventCancelled, render.EventError:
				break waitLoop
			}
		case <-ticker.C:
			s, ok := coordinator.GetSession(session.ID)
			if !ok {
				break waitLoop
			}
			switch s.State {
			case render.Complete, render.Cancelled, render.Failed, render.Idle:
				break waitLoop
			}
		}
	}

	final, _ := coordinator.GetSession(session.ID)
	elapsed := time.Since(start)

	if final.Err != nil {
		return fmt.Errorf("render failed: %w", final.Err)
	}
	if final.State != render.Complete {
		fmt.Println("Render cancelled")
		return nil
	}

	img := server.PreviewImage(final.Field, palette.Grayscale())
	outFile, err := os.Create(renderOutPath)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	defer outFile.Close()
	if err := png.Encode(outFile, img); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}

	stats := final.Stats
	slog.Info("Render complete",
		"elapsed", elapsed,
		"precision", stats.PrecisionMode,
		"avg_iterations", fmt.Sprintf("%.1f", stats.AvgIterations),
		"glitches_detected", stats.GlitchesDetected,
		"glitches_corrected", stats.GlitchesCorrected,
		"pixels_per_second", fmt.Sprintf("%.0f", stats.PixelsPerSecond),
	)
	fmt.Printf("Wrote %s (%dx%d, %s mode, %d/%d tiles, %.0f px/sec)\n",
		renderOutPath, renderWidth, renderHeight, stats.PrecisionMode,
		stats.TilesCompleted, stats.TilesTotal, stats.PixelsPerSecond)

	// Write memory profile if requested
	if renderMemProfile != "" {
		f, err := os.Create(renderMemProfile)
		if err != nil {
			return fmt.Errorf("failed to create memory profile: %w", err)
		}
		defer f.Close()
		runtime.GC() // Run GC to get accurate heap stats
		if err := pprof.WriteHeapProfile(f); err != nil {
			return fmt.Errorf("failed to write memory profile: %w", err)
		}
		slog.Info("Memory profile written", "output", renderMemProfile)
	}

	return nil
}
