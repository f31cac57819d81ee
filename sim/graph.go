package sim

import "github.com/Rustcosky/nca-playground/gpucore"

// Node is one stage of the frame graph. Update advances internal state
// and polls background work; Run records the stage's dispatches.
type Node interface {
	Update()
	Run() error
}

// Graph drives the per-frame node sequence: every node updates, then
// every node runs in order, then the recorded work is submitted. The
// automaton node must come before the overlay node so brush strokes land
// on the freshly written texture.
type Graph struct {
	adapter gpucore.Adapter
	nodes   []Node
	frame   uint64
}

// NewGraph builds a frame graph over the given nodes, executed in order.
func NewGraph(adapter gpucore.Adapter, nodes ...Node) *Graph {
	return &Graph{adapter: adapter, nodes: nodes}
}

// Frame returns the number of completed steps.
func (g *Graph) Frame() uint64 { return g.frame }

// Step executes one frame.
func (g *Graph) Step() error {
	for _, n := range g.nodes {
		n.Update()
	}
	for _, n := range g.nodes {
		if err := n.Run(); err != nil {
			return err
		}
	}
	g.adapter.Submit()
	g.frame++
	return nil
}
