package sim

import (
	"fmt"
	"sync"

	"github.com/Rustcosky/nca-playground/gpucore"
	"github.com/Rustcosky/nca-playground/kernel"
)

// State tracks the simulation pipeline through its lifecycle.
type State int

const (
	// StateLoading means the compute program is still compiling. After a
	// restart the previous program keeps running until the new one lands.
	StateLoading State = iota

	// StateInitialized means the program is ready and the next frame runs
	// the seed pass.
	StateInitialized

	// StateSteadyState means the simulation is stepping every frame,
	// alternating between the two textures.
	StateSteadyState
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateInitialized:
		return "initialized"
	case StateSteadyState:
		return "steady"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// generation is one compiled automaton program with its pipelines and
// ping-pong bind groups. A restart compiles a new generation in the
// background and swaps it in whole.
type generation struct {
	module     gpucore.ShaderModuleID
	initPipe   gpucore.ComputePipelineID
	updatePipe gpucore.ComputePipelineID

	// groups[0] reads texture A and writes B, groups[1] the reverse.
	groups    [2]gpucore.BindGroupID
	groupsGen uint64

	ranInit bool
}

type compileResult struct {
	module gpucore.ShaderModuleID
	err    error
}

// Pipeline owns the automaton's GPU resources and drives the simulation
// state machine. Update and Run are called once per frame from the frame
// goroutine; SetProgramSource, SetFilters and the reinit queue may be
// poked from anywhere.
type Pipeline struct {
	adapter gpucore.Adapter
	cfg     Config
	images  *DoubleImage
	filters *FilterBuffers
	reinit  *ReinitQueue

	layout     gpucore.BindGroupLayoutID
	pipeLayout gpucore.PipelineLayoutID

	mu             sync.Mutex
	source         string
	pendingFilters *[3]kernel.Filter

	state       State
	updateTicks uint64
	displayed   int

	cur        *generation
	compiling  chan compileResult
	dirty      bool
	compileErr error
}

// NewPipeline builds the simulation resources and starts compiling the
// given program. The pipeline comes up in the loading state; call Update
// and Run once per frame to drive it.
func NewPipeline(adapter gpucore.Adapter, cfg Config, source string, reinit *ReinitQueue, filters [3]kernel.Filter) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !adapter.SupportsCompute() {
		return nil, fmt.Errorf("sim: adapter does not support compute")
	}
	if reinit == nil {
		reinit = &ReinitQueue{}
	}

	images, err := NewDoubleImage(adapter, cfg)
	if err != nil {
		return nil, err
	}
	filterBufs, err := NewFilterBuffers(adapter, filters)
	if err != nil {
		images.Release(adapter)
		return nil, err
	}

	layout, err := adapter.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{
		Label: "automaton",
		Entries: []gpucore.BindGroupLayoutEntry{
			{Binding: 0, Type: gpucore.BindingTypeStorageTexture},
			{Binding: 1, Type: gpucore.BindingTypeStorageTexture},
			{Binding: 2, Type: gpucore.BindingTypeUniformBuffer, MinBindingSize: kernel.FilterUniformSize},
			{Binding: 3, Type: gpucore.BindingTypeUniformBuffer, MinBindingSize: kernel.FilterUniformSize},
			{Binding: 4, Type: gpucore.BindingTypeUniformBuffer, MinBindingSize: kernel.FilterUniformSize},
		},
	})
	if err != nil {
		filterBufs.Release(adapter)
		images.Release(adapter)
		return nil, fmt.Errorf("sim: create bind group layout: %w", err)
	}
	pipeLayout, err := adapter.CreatePipelineLayout([]gpucore.BindGroupLayoutID{layout})
	if err != nil {
		adapter.DestroyBindGroupLayout(layout)
		filterBufs.Release(adapter)
		images.Release(adapter)
		return nil, fmt.Errorf("sim: create pipeline layout: %w", err)
	}

	p := &Pipeline{
		adapter:    adapter,
		cfg:        cfg,
		images:     images,
		filters:    filterBufs,
		reinit:     reinit,
		layout:     layout,
		pipeLayout: pipeLayout,
		source:     source,
		state:      StateLoading,
	}
	p.startCompile(source)
	return p, nil
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State { return p.state }

// CompileErr returns the error from the most recent failed compile, or
// nil. A successful compile clears it.
func (p *Pipeline) CompileErr() error { return p.compileErr }

// Ticks returns the number of completed update dispatches since the last
// seed pass.
func (p *Pipeline) Ticks() uint64 { return p.updateTicks }

// Images exposes the ping-pong texture pair.
func (p *Pipeline) Images() *DoubleImage { return p.images }

// DisplayedTexture returns the texture written most recently, the one to
// put on screen this frame.
func (p *Pipeline) DisplayedTexture() gpucore.TextureID {
	return p.images.Texture(p.displayed)
}

// DisplayedIndex returns the slot of the displayed texture.
func (p *Pipeline) DisplayedIndex() int { return p.displayed }

// SetProgramSource stores a new program. It takes effect on the next
// restart; pair it with a reinit post.
func (p *Pipeline) SetProgramSource(source string) {
	p.mu.Lock()
	p.source = source
	p.mu.Unlock()
}

// SetFilters queues replacement filter uniforms. They are applied at the
// start of the next frame and bind groups are rebuilt against them.
func (p *Pipeline) SetFilters(filters [3]kernel.Filter) {
	p.mu.Lock()
	f := filters
	p.pendingFilters = &f
	p.mu.Unlock()
}

// selector returns which bind group pair the next update dispatch uses.
// Tick zero reads the seeded texture B, so the sequence starts at pair 1
// and alternates from there.
func selector(tick uint64) int {
	if tick%2 == 0 {
		return 1
	}
	return 0
}

// Update advances the state machine: applies queued filter changes,
// drains restart requests, polls the background compile and promotes a
// ready program.
func (p *Pipeline) Update() {
	p.applyPendingFilters()

	if p.reinit.Drain() {
		slogger().Info("restarting simulation pipeline")
		p.mu.Lock()
		source := p.source
		p.mu.Unlock()
		p.state = StateLoading
		if p.compiling != nil {
			p.dirty = true
		} else {
			p.startCompile(source)
		}
	}

	p.pollCompile()

	if p.state == StateInitialized && p.cur != nil && p.cur.ranInit {
		p.state = StateSteadyState
		p.updateTicks = 0
	}
}

func (p *Pipeline) applyPendingFilters() {
	p.mu.Lock()
	pending := p.pendingFilters
	p.pendingFilters = nil
	p.mu.Unlock()
	if pending == nil {
		return
	}
	if err := p.filters.Update(p.adapter, *pending); err != nil {
		slogger().Error("filter update failed", "error", err)
	}
}

func (p *Pipeline) startCompile(source string) {
	ch := make(chan compileResult, 1)
	p.compiling = ch
	go func() {
		id, err := p.adapter.CreateShaderModule(&gpucore.ShaderModuleDesc{
			Label: "automaton",
			WGSL:  source,
		})
		ch <- compileResult{module: id, err: err}
	}()
}

// pollCompile checks the in-flight compile without blocking. On success
// the new generation replaces the old one and the seed pass is scheduled;
// on failure the previous program keeps running and the error is kept
// for diagnostics.
func (p *Pipeline) pollCompile() {
	if p.compiling == nil {
		return
	}
	var res compileResult
	select {
	case res = <-p.compiling:
	default:
		return
	}
	p.compiling = nil

	if p.dirty {
		// The program changed while this compile was in flight; its
		// result is stale either way.
		p.dirty = false
		if res.err == nil {
			p.adapter.DestroyShaderModule(res.module)
		}
		p.mu.Lock()
		source := p.source
		p.mu.Unlock()
		p.startCompile(source)
		return
	}

	if res.err != nil {
		p.compileErr = res.err
		slogger().Error("program compile failed", "error", res.err)
		return
	}

	gen, err := p.buildGeneration(res.module)
	if err != nil {
		p.adapter.DestroyShaderModule(res.module)
		p.compileErr = err
		slogger().Error("pipeline build failed", "error", err)
		return
	}

	p.releaseGeneration(p.cur)
	p.cur = gen
	p.compileErr = nil
	p.state = StateInitialized
	slogger().Info("program compiled", "state", p.state.String())
}

func (p *Pipeline) buildGeneration(module gpucore.ShaderModuleID) (*generation, error) {
	initPipe, err := p.adapter.CreateComputePipeline(&gpucore.ComputePipelineDesc{
		Label:        "automaton-init",
		Layout:       p.pipeLayout,
		ShaderModule: module,
		EntryPoint:   "init",
	})
	if err != nil {
		return nil, fmt.Errorf("sim: create init pipeline: %w", err)
	}
	updatePipe, err := p.adapter.CreateComputePipeline(&gpucore.ComputePipelineDesc{
		Label:        "automaton-update",
		Layout:       p.pipeLayout,
		ShaderModule: module,
		EntryPoint:   "update",
	})
	if err != nil {
		p.adapter.DestroyComputePipeline(initPipe)
		return nil, fmt.Errorf("sim: create update pipeline: %w", err)
	}

	gen := &generation{
		module:     module,
		initPipe:   initPipe,
		updatePipe: updatePipe,
	}
	if err := p.buildBindGroups(gen); err != nil {
		p.adapter.DestroyComputePipeline(updatePipe)
		p.adapter.DestroyComputePipeline(initPipe)
		return nil, err
	}
	return gen, nil
}

// buildBindGroups (re)creates the ping-pong bind group pair against the
// current filter buffers.
func (p *Pipeline) buildBindGroups(gen *generation) error {
	var fresh [2]gpucore.BindGroupID
	for pair := range fresh {
		in := p.images.Texture(pair)
		out := p.images.Texture(1 - pair)
		id, err := p.adapter.CreateBindGroup(p.layout, []gpucore.BindGroupEntry{
			{Binding: 0, Texture: in},
			{Binding: 1, Texture: out},
			{Binding: 2, Buffer: p.filters.Buffer(0), Size: kernel.FilterUniformSize},
			{Binding: 3, Buffer: p.filters.Buffer(1), Size: kernel.FilterUniformSize},
			{Binding: 4, Buffer: p.filters.Buffer(2), Size: kernel.FilterUniformSize},
		})
		if err != nil {
			for j := 0; j < pair; j++ {
				p.adapter.DestroyBindGroup(fresh[j])
			}
			return fmt.Errorf("sim: create bind group %d: %w", pair, err)
		}
		fresh[pair] = id
	}
	for _, id := range gen.groups {
		if id != gpucore.InvalidID {
			p.adapter.DestroyBindGroup(id)
		}
	}
	gen.groups = fresh
	gen.groupsGen = p.filters.Generation()
	return nil
}

func (p *Pipeline) releaseGeneration(gen *generation) {
	if gen == nil {
		return
	}
	for _, id := range gen.groups {
		if id != gpucore.InvalidID {
			p.adapter.DestroyBindGroup(id)
		}
	}
	p.adapter.DestroyComputePipeline(gen.updatePipe)
	p.adapter.DestroyComputePipeline(gen.initPipe)
	p.adapter.DestroyShaderModule(gen.module)
}

// Run records this frame's automaton dispatch. While loading it keeps
// stepping the previous program if one ever seeded; a program that never
// seeded dispatches nothing. Recording problems skip the frame rather
// than failing the run, the next frame retries.
func (p *Pipeline) Run() error {
	gen := p.cur
	if gen == nil {
		return nil
	}

	if gen.groupsGen != p.filters.Generation() {
		if err := p.buildBindGroups(gen); err != nil {
			slogger().Error("bind group rebuild failed, skipping frame", "error", err)
			return nil
		}
	}

	switch p.state {
	case StateLoading:
		if !gen.ranInit {
			return nil
		}
		p.dispatchUpdate(gen)
	case StateInitialized:
		pass := p.adapter.BeginComputePass()
		pass.SetPipeline(gen.initPipe)
		pass.SetBindGroup(0, gen.groups[0])
		x, y := p.cfg.Workgroups()
		pass.Dispatch(x, y, 1)
		pass.End()
		gen.ranInit = true
		p.displayed = 1
	case StateSteadyState:
		p.dispatchUpdate(gen)
	}
	return nil
}

func (p *Pipeline) dispatchUpdate(gen *generation) {
	sel := selector(p.updateTicks)
	pass := p.adapter.BeginComputePass()
	pass.SetPipeline(gen.updatePipe)
	pass.SetBindGroup(0, gen.groups[sel])
	x, y := p.cfg.Workgroups()
	pass.Dispatch(x, y, 1)
	pass.End()

	// Pair 1 writes texture A, pair 0 writes texture B.
	if sel == 1 {
		p.displayed = 0
	} else {
		p.displayed = 1
	}
	p.updateTicks++
}

// Release destroys every resource the pipeline owns. A compile still in
// flight is left to finish; its module is destroyed when it lands only
// if the caller keeps polling, so release after the frame loop stops.
func (p *Pipeline) Release() {
	p.releaseGeneration(p.cur)
	p.cur = nil
	p.adapter.DestroyPipelineLayout(p.pipeLayout)
	p.adapter.DestroyBindGroupLayout(p.layout)
	p.filters.Release(p.adapter)
	p.images.Release(p.adapter)
}
