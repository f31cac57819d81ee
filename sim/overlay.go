package sim

import (
	"fmt"
	"sync"

	"github.com/Rustcosky/nca-playground/gpucore"
	"github.com/Rustcosky/nca-playground/kernel"
)

// Overlay stamps brush strokes onto the displayed texture after the
// automaton pass. Its program is fixed, so it compiles once; frames
// before the compile lands simply draw nothing.
type Overlay struct {
	adapter gpucore.Adapter
	cfg     Config
	pipe    *Pipeline

	layout     gpucore.BindGroupLayoutID
	pipeLayout gpucore.PipelineLayoutID
	paramsBuf  gpucore.BufferID

	// One bind group per texture slot, matching the displayed index.
	groups [2]gpucore.BindGroupID

	module   gpucore.ShaderModuleID
	drawPipe gpucore.ComputePipelineID
	ready    bool

	compiling chan compileResult

	mu     sync.Mutex
	active bool
	params kernel.DrawParams
}

// NewOverlay builds the brush resources and starts compiling the draw
// program.
func NewOverlay(adapter gpucore.Adapter, cfg Config, pipe *Pipeline) (*Overlay, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	layout, err := adapter.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{
		Label: "brush",
		Entries: []gpucore.BindGroupLayoutEntry{
			{Binding: 0, Type: gpucore.BindingTypeStorageTexture},
			{Binding: 1, Type: gpucore.BindingTypeUniformBuffer, MinBindingSize: kernel.DrawParamsSize},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sim: create brush layout: %w", err)
	}
	pipeLayout, err := adapter.CreatePipelineLayout([]gpucore.BindGroupLayoutID{layout})
	if err != nil {
		adapter.DestroyBindGroupLayout(layout)
		return nil, fmt.Errorf("sim: create brush pipeline layout: %w", err)
	}
	paramsBuf, err := adapter.CreateBuffer(kernel.DrawParamsSize, gpucore.BufferUsageUniform|gpucore.BufferUsageCopyDst)
	if err != nil {
		adapter.DestroyPipelineLayout(pipeLayout)
		adapter.DestroyBindGroupLayout(layout)
		return nil, fmt.Errorf("sim: create brush params buffer: %w", err)
	}

	o := &Overlay{
		adapter:    adapter,
		cfg:        cfg,
		pipe:       pipe,
		layout:     layout,
		pipeLayout: pipeLayout,
		paramsBuf:  paramsBuf,
	}

	for i := range o.groups {
		id, err := adapter.CreateBindGroup(layout, []gpucore.BindGroupEntry{
			{Binding: 0, Texture: pipe.Images().Texture(i)},
			{Binding: 1, Buffer: paramsBuf, Size: kernel.DrawParamsSize},
		})
		if err != nil {
			o.Release()
			return nil, fmt.Errorf("sim: create brush bind group %d: %w", i, err)
		}
		o.groups[i] = id
	}

	ch := make(chan compileResult, 1)
	o.compiling = ch
	source := kernel.GenerateDraw(cfg.Tile)
	go func() {
		id, err := adapter.CreateShaderModule(&gpucore.ShaderModuleDesc{
			Label: "brush",
			WGSL:  source,
		})
		ch <- compileResult{module: id, err: err}
	}()
	return o, nil
}

// Ready reports whether the draw program has finished compiling.
func (o *Overlay) Ready() bool { return o.ready }

// SetStroke arms the overlay with this frame's stroke. The stroke stays
// active until cleared, stamping every frame while the button is held.
func (o *Overlay) SetStroke(params kernel.DrawParams) {
	o.mu.Lock()
	o.active = true
	o.params = params
	o.mu.Unlock()
}

// ClearStroke disarms the overlay.
func (o *Overlay) ClearStroke() {
	o.mu.Lock()
	o.active = false
	o.mu.Unlock()
}

// Update polls the one-time program compile.
func (o *Overlay) Update() {
	if o.compiling == nil {
		return
	}
	var res compileResult
	select {
	case res = <-o.compiling:
	default:
		return
	}
	o.compiling = nil

	if res.err != nil {
		slogger().Error("brush program compile failed", "error", res.err)
		return
	}
	pipe, err := o.adapter.CreateComputePipeline(&gpucore.ComputePipelineDesc{
		Label:        "brush-draw",
		Layout:       o.pipeLayout,
		ShaderModule: res.module,
		EntryPoint:   "draw",
	})
	if err != nil {
		o.adapter.DestroyShaderModule(res.module)
		slogger().Error("brush pipeline build failed", "error", err)
		return
	}
	o.module = res.module
	o.drawPipe = pipe
	o.ready = true
}

// Run stamps the active stroke onto the displayed texture. Without an
// active stroke no pass is recorded at all.
func (o *Overlay) Run() error {
	o.mu.Lock()
	active := o.active
	params := o.params
	o.mu.Unlock()

	if !active || !o.ready {
		return nil
	}

	o.adapter.WriteBuffer(o.paramsBuf, 0, params.Bytes())

	pass := o.adapter.BeginComputePass()
	pass.SetPipeline(o.drawPipe)
	pass.SetBindGroup(0, o.groups[o.pipe.DisplayedIndex()])
	x, y := o.cfg.Workgroups()
	pass.Dispatch(x, y, 1)
	pass.End()
	return nil
}

// Release destroys the overlay's resources.
func (o *Overlay) Release() {
	for i, id := range o.groups {
		if id != gpucore.InvalidID {
			o.adapter.DestroyBindGroup(id)
			o.groups[i] = gpucore.InvalidID
		}
	}
	if o.drawPipe != gpucore.InvalidID {
		o.adapter.DestroyComputePipeline(o.drawPipe)
		o.drawPipe = gpucore.InvalidID
	}
	if o.module != gpucore.InvalidID {
		o.adapter.DestroyShaderModule(o.module)
		o.module = gpucore.InvalidID
	}
	o.adapter.DestroyBuffer(o.paramsBuf)
	o.adapter.DestroyPipelineLayout(o.pipeLayout)
	o.adapter.DestroyBindGroupLayout(o.layout)
}
