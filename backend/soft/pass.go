package soft

import (
	"encoding/binary"
	"math"

	"github.com/Rustcosky/nca-playground/gpucore"
	"github.com/Rustcosky/nca-playground/kernel"
)

// computePass interprets recorded commands immediately. Dispatch runs the
// bound entry point over the whole bound texture; workgroup counts are
// accepted for interface parity but the interpreter always covers every
// cell, which matches a grid that divides evenly into tiles.
type computePass struct {
	adapter  *Adapter
	pipeline *pipeline
	groups   map[uint32]*bindGroup
	ended    bool
}

// BeginComputePass starts an interpreting pass.
func (a *Adapter) BeginComputePass() gpucore.ComputePassEncoder {
	return &computePass{
		adapter: a,
		groups:  make(map[uint32]*bindGroup),
	}
}

// SetPipeline binds a compute pipeline for subsequent dispatches.
func (p *computePass) SetPipeline(id gpucore.ComputePipelineID) {
	p.adapter.mu.RLock()
	p.pipeline = p.adapter.computePipelines[id]
	p.adapter.mu.RUnlock()
}

// SetBindGroup binds resources at the given group index.
func (p *computePass) SetBindGroup(index uint32, id gpucore.BindGroupID) {
	p.adapter.mu.RLock()
	p.groups[index] = p.adapter.bindGroups[id]
	p.adapter.mu.RUnlock()
}

// Dispatch executes the bound entry point. Missing pipeline or bind
// group makes it a no-op, same as an invalid dispatch getting dropped by
// a GPU queue.
func (p *computePass) Dispatch(x, y, z uint32) {
	if p.ended || p.pipeline == nil {
		return
	}
	group := p.groups[0]
	if group == nil {
		return
	}

	a := p.adapter
	a.mu.Lock()
	defer a.mu.Unlock()

	switch p.pipeline.entry {
	case "init":
		out := a.boundTexture(group, 1)
		if out == nil {
			return
		}
		kernel.SeedImage(out.pix, out.width, out.height)
		a.stats.InitDispatches++

	case "update":
		in := a.boundTexture(group, 0)
		out := a.boundTexture(group, 1)
		if in == nil || out == nil || in.width != out.width || in.height != out.height {
			return
		}
		var filters [3][12]float32
		for ch := 0; ch < 3; ch++ {
			buf := a.boundBuffer(group, uint32(2+ch))
			if buf == nil || len(buf.data) < kernel.FilterUniformSize {
				return
			}
			filters[ch] = unpackFilter(buf.data)
		}
		kernel.StepImage(out.pix, in.pix, in.width, in.height, filters, p.pipeline.module.acts)
		a.stats.UpdateDispatches++

	case "draw":
		tex := a.boundTexture(group, 0)
		buf := a.boundBuffer(group, 1)
		if tex == nil || buf == nil {
			return
		}
		params, err := kernel.DecodeDrawParams(buf.data)
		if err != nil {
			return
		}
		kernel.StampBrush(tex.pix, tex.width, tex.height, params)
		a.stats.DrawDispatches++
	}
}

// End finishes the pass. Further dispatches are ignored.
func (p *computePass) End() {
	p.ended = true
}

func (a *Adapter) boundTexture(g *bindGroup, binding uint32) *texture {
	for _, e := range g.entries {
		if e.Binding == binding && e.Texture != gpucore.InvalidID {
			return a.textures[e.Texture]
		}
	}
	return nil
}

func (a *Adapter) boundBuffer(g *bindGroup, binding uint32) *buffer {
	for _, e := range g.entries {
		if e.Binding == binding && e.Texture == gpucore.InvalidID {
			return a.buffers[e.Buffer]
		}
	}
	return nil
}

func unpackFilter(data []byte) [12]float32 {
	var out [12]float32
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}
