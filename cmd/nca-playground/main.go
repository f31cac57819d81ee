// Command nca-playground runs an interactive neural cellular automaton.
// Per-channel 3x3 filters and activation functions drive a GPU-style
// compute simulation over a toroidal grid; the mouse paints into the
// running state.
//
// Controls:
//
//	left mouse   paint with the brush
//	R            reseed the grid
//	T            toggle brush shape (circle/square)
//	-/=          shrink/grow the brush
//	1..4         brush color: white, red, green, blue
//	F5 / F9      save / load settings
//	Tab          toggle the debug overlay
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/Rustcosky/nca-playground/backend/soft"
	"github.com/Rustcosky/nca-playground/backend/wgpu"
	"github.com/Rustcosky/nca-playground/control"
	"github.com/Rustcosky/nca-playground/gpucore"
	"github.com/Rustcosky/nca-playground/kernel"
	"github.com/Rustcosky/nca-playground/sim"
)

type game struct {
	adapter gpucore.Adapter
	graph   *sim.Graph
	pipe    *sim.Pipeline
	overlay *sim.Overlay
	ctrl    *control.Controller
	cfg     sim.Config

	pixels    []byte
	havePixel bool

	prevX, prevY float64
	brushSize    float32
	brushKind    kernel.BrushKind
	brushColor   [3]float32

	showDebug bool
	readErrs  int
}

func (g *game) Update() error {
	g.handleKeys()
	g.handleMouse()

	if err := g.graph.Step(); err != nil {
		return err
	}

	pix, err := g.adapter.ReadTexture(g.pipe.DisplayedTexture())
	if err != nil {
		// Keep showing the last good frame; the wgpu path cannot read
		// textures back yet.
		g.readErrs++
		return nil
	}
	g.pixels = pix
	g.havePixel = true
	return nil
}

func (g *game) handleKeys() {
	if inpututil.IsKeyJustPressed(ebiten.KeyR) {
		g.ctrl.Reinitialize()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyT) {
		if g.brushKind == kernel.BrushCircle {
			g.brushKind = kernel.BrushSquare
		} else {
			g.brushKind = kernel.BrushCircle
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyMinus) || inpututil.IsKeyJustPressed(ebiten.KeyKPSubtract) {
		if g.brushSize > 1 {
			g.brushSize--
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEqual) || inpututil.IsKeyJustPressed(ebiten.KeyKPAdd) {
		g.brushSize++
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyDigit1) {
		g.brushColor = [3]float32{1, 1, 1}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyDigit2) {
		g.brushColor = [3]float32{1, 0, 0}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyDigit3) {
		g.brushColor = [3]float32{0, 1, 0}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyDigit4) {
		g.brushColor = [3]float32{0, 0, 1}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF5) {
		if err := g.ctrl.SaveSettings(); err != nil {
			slog.Error("save settings failed", "error", err)
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF9) {
		if err := g.ctrl.LoadSettings(); err != nil {
			slog.Error("load settings failed", "error", err)
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyTab) {
		g.showDebug = !g.showDebug
	}
}

func (g *game) handleMouse() {
	mx, my := ebiten.CursorPosition()
	x, y := float64(mx), float64(my)

	if ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft) {
		g.overlay.SetStroke(kernel.DrawParams{
			Start: [2]float32{float32(x), float32(y)},
			End:   [2]float32{float32(g.prevX), float32(g.prevY)},
			Size:  g.brushSize,
			Kind:  g.brushKind,
			Color: g.brushColor,
		})
	} else {
		g.overlay.ClearStroke()
	}

	g.prevX, g.prevY = x, y
}

func (g *game) Draw(screen *ebiten.Image) {
	if g.havePixel {
		screen.WritePixels(g.pixels)
	}
	if g.showDebug {
		msg := fmt.Sprintf("state: %s  tick: %d  brush: %s %.0f  fps: %.0f",
			g.pipe.State(), g.pipe.Ticks(), g.brushKind, g.brushSize, ebiten.ActualFPS())
		if err := g.pipe.CompileErr(); err != nil {
			msg += "\ncompile error: " + err.Error()
		}
		if g.readErrs > 0 {
			msg += fmt.Sprintf("\nreadback unavailable (%d frames)", g.readErrs)
		}
		ebitenutil.DebugPrint(screen, msg)
	}
}

func (g *game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return g.cfg.Width, g.cfg.Height
}

func main() {
	var (
		width    = flag.Int("width", sim.DefaultWidth, "grid width in cells")
		height   = flag.Int("height", sim.DefaultHeight, "grid height in cells")
		tile     = flag.Int("tile", kernel.DefaultTileSize, "dispatch tile size")
		scale    = flag.Float64("scale", 0.5, "window size relative to the grid")
		useGPU   = flag.Bool("gpu", false, "use the Vulkan compute backend (experimental)")
		settings = flag.String("settings", "settings.json", "settings file")
		presets  = flag.String("presets", "presets.json", "preset library file")
		shader   = flag.String("shader-export", "shaders/nca.wgsl", "write generated programs here, empty to disable")
		verbose  = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	sim.SetLogger(logger)
	control.SetLogger(logger)

	cfg := sim.Config{Width: *width, Height: *height, Tile: *tile}
	if err := cfg.Validate(); err != nil {
		slog.Error("bad grid configuration", "error", err)
		os.Exit(1)
	}

	var adapter gpucore.Adapter
	if *useGPU {
		dev, err := wgpu.Open()
		if err != nil {
			slog.Warn("GPU unavailable, falling back to the CPU backend", "error", err)
			adapter = soft.NewAdapter()
		} else {
			defer dev.Close()
			slog.Info("GPU backend ready", "adapter", dev.AdapterName())
			adapter = dev
		}
	} else {
		adapter = soft.NewAdapter()
	}

	reinit := &sim.ReinitQueue{}

	// The controller pushes the initial program, so the pipeline can
	// start from a placeholder and restart immediately.
	initial, err := kernel.GenerateAutomaton("return x;", "return x;", "return x;", cfg.Tile)
	if err != nil {
		slog.Error("generate initial program", "error", err)
		os.Exit(1)
	}
	pipe, err := sim.NewPipeline(adapter, cfg, initial, reinit, control.DefaultSettings().Filters())
	if err != nil {
		slog.Error("build simulation pipeline", "error", err)
		os.Exit(1)
	}
	defer pipe.Release()

	overlay, err := sim.NewOverlay(adapter, cfg, pipe)
	if err != nil {
		slog.Error("build brush overlay", "error", err)
		os.Exit(1)
	}
	defer overlay.Release()

	opts := []control.Option{
		control.WithSettingsPath(*settings),
		control.WithPresetsPath(*presets),
	}
	if *shader != "" {
		opts = append(opts, control.WithShaderExport(*shader))
	}
	ctrl, err := control.NewController(pipe, reinit, cfg.Tile, opts...)
	if err != nil {
		slog.Error("build controller", "error", err)
		os.Exit(1)
	}

	g := &game{
		adapter:    adapter,
		graph:      sim.NewGraph(adapter, pipe, overlay),
		pipe:       pipe,
		overlay:    overlay,
		ctrl:       ctrl,
		cfg:        cfg,
		brushSize:  10,
		brushKind:  kernel.BrushCircle,
		brushColor: [3]float32{1, 1, 1},
		showDebug:  true,
	}

	ebiten.SetWindowSize(int(float64(cfg.Width)**scale), int(float64(cfg.Height)**scale))
	ebiten.SetWindowTitle("nca-playground")
	if err := ebiten.RunGame(g); err != nil {
		slog.Error("run", "error", err)
		os.Exit(1)
	}
}
