package sim_test

import (
	"testing"

	"github.com/Rustcosky/nca-playground/backend/soft"
	"github.com/Rustcosky/nca-playground/kernel"
	"github.com/Rustcosky/nca-playground/sim"
)

func newTestOverlay(t *testing.T) (*soft.Adapter, *sim.Pipeline, *sim.Overlay, *sim.Graph) {
	t.Helper()
	adapter := soft.NewAdapter()
	pipe, err := sim.NewPipeline(adapter, testConfig(), mustProgram(t, "return x;", "return x;", "return x;"), nil, identityFilters())
	if err != nil {
		t.Fatalf("NewPipeline error: %v", err)
	}
	t.Cleanup(func() { pipe.Release() })
	overlay, err := sim.NewOverlay(adapter, testConfig(), pipe)
	if err != nil {
		t.Fatalf("NewOverlay error: %v", err)
	}
	t.Cleanup(func() { overlay.Release() })
	return adapter, pipe, overlay, sim.NewGraph(adapter, pipe, overlay)
}

func TestOverlay_InactiveRecordsNothing(t *testing.T) {
	adapter, pipe, overlay, g := newTestOverlay(t)

	stepUntil(t, g, func() bool {
		return pipe.State() == sim.StateSteadyState && overlay.Ready()
	}, "pipeline steady and brush ready")

	for i := 0; i < 5; i++ {
		if err := g.Step(); err != nil {
			t.Fatalf("Step error: %v", err)
		}
	}
	if n := adapter.Stats().DrawDispatches; n != 0 {
		t.Errorf("DrawDispatches = %d without an active stroke, want 0", n)
	}
}

func TestOverlay_StampsDisplayedTexture(t *testing.T) {
	adapter, pipe, overlay, g := newTestOverlay(t)
	stepUntil(t, g, func() bool {
		return pipe.State() == sim.StateSteadyState && overlay.Ready()
	}, "pipeline steady and brush ready")

	overlay.SetStroke(kernel.DrawParams{
		Start: [2]float32{8, 8},
		End:   [2]float32{8, 8},
		Size:  2,
		Kind:  kernel.BrushCircle,
		Color: [3]float32{1, 0, 0},
	})
	if err := g.Step(); err != nil {
		t.Fatalf("Step error: %v", err)
	}

	got, err := adapter.ReadTexture(pipe.DisplayedTexture())
	if err != nil {
		t.Fatalf("ReadTexture error: %v", err)
	}
	center := ((8 * testW) + 8) * 4
	if got[center] != 255 || got[center+1] != 0 || got[center+2] != 0 {
		t.Errorf("center cell = (%d, %d, %d), want the brush color (255, 0, 0)",
			got[center], got[center+1], got[center+2])
	}
	if adapter.Stats().DrawDispatches == 0 {
		t.Error("no draw dispatch recorded for an active stroke")
	}

	// Clearing the stroke stops the stamping.
	overlay.ClearStroke()
	before := adapter.Stats().DrawDispatches
	if err := g.Step(); err != nil {
		t.Fatalf("Step error: %v", err)
	}
	if adapter.Stats().DrawDispatches != before {
		t.Error("draw dispatch recorded after the stroke was cleared")
	}
}

func TestOverlay_StrokePersistsWhileHeld(t *testing.T) {
	adapter, pipe, overlay, g := newTestOverlay(t)
	stepUntil(t, g, func() bool {
		return pipe.State() == sim.StateSteadyState && overlay.Ready()
	}, "pipeline steady and brush ready")

	overlay.SetStroke(kernel.DrawParams{
		Start: [2]float32{4, 4},
		End:   [2]float32{4, 4},
		Size:  1,
		Kind:  kernel.BrushSquare,
		Color: [3]float32{0, 1, 0},
	})
	before := adapter.Stats().DrawDispatches
	for i := 0; i < 3; i++ {
		if err := g.Step(); err != nil {
			t.Fatalf("Step error: %v", err)
		}
	}
	if got := adapter.Stats().DrawDispatches - before; got != 3 {
		t.Errorf("draw dispatches while held = %d, want 3", got)
	}
}
