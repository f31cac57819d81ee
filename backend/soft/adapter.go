// Package soft provides a CPU compute backend that interprets the
// generated automaton and brush programs. It implements gpucore.Adapter
// with eager dispatch execution, so results are visible as soon as a pass
// ends. Deterministic and dependency-free, it backs the tests and the
// default run mode on machines without a usable GPU.
package soft

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Rustcosky/nca-playground/gpucore"
	"github.com/Rustcosky/nca-playground/kernel"
)

// Stats counts executed dispatches per entry point.
type Stats struct {
	InitDispatches   int
	UpdateDispatches int
	DrawDispatches   int
}

type shaderModule struct {
	wgsl       string
	entryKinds map[string]bool
	acts       [3]*kernel.Activation
}

type buffer struct {
	data  []byte
	usage gpucore.BufferUsage
}

type texture struct {
	width  int
	height int
	pix    []byte
}

type pipeline struct {
	module *shaderModule
	entry  string
}

type bindGroup struct {
	entries []gpucore.BindGroupEntry
}

// Adapter is the interpreting gpucore.Adapter.
//
// Thread safety: all resource operations are protected by a mutex, same
// as the GPU adapters.
type Adapter struct {
	mu     sync.RWMutex
	nextID atomic.Uint64

	buffers          map[gpucore.BufferID]*buffer
	textures         map[gpucore.TextureID]*texture
	shaderModules    map[gpucore.ShaderModuleID]*shaderModule
	computePipelines map[gpucore.ComputePipelineID]*pipeline
	bindGroupLayouts map[gpucore.BindGroupLayoutID][]gpucore.BindGroupLayoutEntry
	pipelineLayouts  map[gpucore.PipelineLayoutID][]gpucore.BindGroupLayoutID
	bindGroups       map[gpucore.BindGroupID]*bindGroup

	stats Stats
}

// NewAdapter creates an interpreting adapter.
func NewAdapter() *Adapter {
	a := &Adapter{
		buffers:          make(map[gpucore.BufferID]*buffer),
		textures:         make(map[gpucore.TextureID]*texture),
		shaderModules:    make(map[gpucore.ShaderModuleID]*shaderModule),
		computePipelines: make(map[gpucore.ComputePipelineID]*pipeline),
		bindGroupLayouts: make(map[gpucore.BindGroupLayoutID][]gpucore.BindGroupLayoutEntry),
		pipelineLayouts:  make(map[gpucore.PipelineLayoutID][]gpucore.BindGroupLayoutID),
		bindGroups:       make(map[gpucore.BindGroupID]*bindGroup),
	}
	a.nextID.Store(1)
	return a
}

func (a *Adapter) newID() uint64 {
	return a.nextID.Add(1) - 1
}

// Stats returns a snapshot of the dispatch counters.
func (a *Adapter) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stats
}

// SupportsCompute reports compute support; the interpreter always has it.
func (a *Adapter) SupportsCompute() bool { return true }

// === Shader modules ===

// CreateShaderModule "compiles" a program by validating it and, for
// automaton programs, extracting and compiling the activation bodies.
// Invalid activation bodies fail here, mirroring a GPU shader compile
// error.
func (a *Adapter) CreateShaderModule(desc *gpucore.ShaderModuleDesc) (gpucore.ShaderModuleID, error) {
	if desc == nil || desc.WGSL == "" {
		return gpucore.InvalidID, fmt.Errorf("soft: empty shader source")
	}

	mod := &shaderModule{
		wgsl:       desc.WGSL,
		entryKinds: make(map[string]bool),
	}
	switch {
	case kernel.IsAutomatonProgram(desc.WGSL):
		red, green, blue, err := kernel.ActivationBodies(desc.WGSL)
		if err != nil {
			return gpucore.InvalidID, fmt.Errorf("soft: %w", err)
		}
		for ch, body := range map[int]string{0: red, 1: green, 2: blue} {
			act, err := kernel.CompileActivation(body)
			if err != nil {
				return gpucore.InvalidID, fmt.Errorf("soft: shader compile failed: %w", err)
			}
			mod.acts[ch] = act
		}
		mod.entryKinds["init"] = true
		mod.entryKinds["update"] = true
	case kernel.IsDrawProgram(desc.WGSL):
		mod.entryKinds["draw"] = true
	default:
		return gpucore.InvalidID, fmt.Errorf("soft: unrecognized program %q", desc.Label)
	}

	id := gpucore.ShaderModuleID(a.newID())
	a.mu.Lock()
	a.shaderModules[id] = mod
	a.mu.Unlock()
	return id, nil
}

// DestroyShaderModule releases a shader module.
func (a *Adapter) DestroyShaderModule(id gpucore.ShaderModuleID) {
	a.mu.Lock()
	delete(a.shaderModules, id)
	a.mu.Unlock()
}

// === Buffers ===

// CreateBuffer allocates a zeroed byte-backed buffer.
func (a *Adapter) CreateBuffer(size int, usage gpucore.BufferUsage) (gpucore.BufferID, error) {
	if size <= 0 {
		return gpucore.InvalidID, fmt.Errorf("soft: buffer size must be positive")
	}
	id := gpucore.BufferID(a.newID())
	a.mu.Lock()
	a.buffers[id] = &buffer{data: make([]byte, size), usage: usage}
	a.mu.Unlock()
	return id, nil
}

// DestroyBuffer releases a buffer.
func (a *Adapter) DestroyBuffer(id gpucore.BufferID) {
	a.mu.Lock()
	delete(a.buffers, id)
	a.mu.Unlock()
}

// WriteBuffer copies data into a buffer at the given offset. Writes past
// the end are ignored, matching queue semantics of dropped invalid
// writes.
func (a *Adapter) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	buf, ok := a.buffers[id]
	if !ok || int(offset)+len(data) > len(buf.data) {
		return
	}
	copy(buf.data[offset:], data)
}

// ReadBuffer returns a copy of a buffer range.
func (a *Adapter) ReadBuffer(id gpucore.BufferID, offset, size uint64) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	buf, ok := a.buffers[id]
	if !ok {
		return nil, fmt.Errorf("soft: buffer %d not found", id)
	}
	if int(offset+size) > len(buf.data) {
		return nil, fmt.Errorf("soft: read of %d bytes at %d exceeds buffer size %d", size, offset, len(buf.data))
	}
	out := make([]byte, size)
	copy(out, buf.data[offset:])
	return out, nil
}

// === Textures ===

// CreateTexture allocates a zeroed rgba8 texture.
func (a *Adapter) CreateTexture(width, height int, format gpucore.TextureFormat) (gpucore.TextureID, error) {
	if width <= 0 || height <= 0 {
		return gpucore.InvalidID, fmt.Errorf("soft: texture dimensions must be positive")
	}
	if format != gpucore.TextureFormatRGBA8Unorm && format != gpucore.TextureFormatRGBA8UnormSRGB {
		return gpucore.InvalidID, fmt.Errorf("soft: unsupported texture format %d", format)
	}
	id := gpucore.TextureID(a.newID())
	a.mu.Lock()
	a.textures[id] = &texture{width: width, height: height, pix: make([]byte, width*height*4)}
	a.mu.Unlock()
	return id, nil
}

// DestroyTexture releases a texture.
func (a *Adapter) DestroyTexture(id gpucore.TextureID) {
	a.mu.Lock()
	delete(a.textures, id)
	a.mu.Unlock()
}

// WriteTexture replaces a texture's pixel contents.
func (a *Adapter) WriteTexture(id gpucore.TextureID, data []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	tex, ok := a.textures[id]
	if !ok || len(data) != len(tex.pix) {
		return
	}
	copy(tex.pix, data)
}

// ReadTexture returns a copy of a texture's rgba8 pixels.
func (a *Adapter) ReadTexture(id gpucore.TextureID) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	tex, ok := a.textures[id]
	if !ok {
		return nil, fmt.Errorf("soft: texture %d not found", id)
	}
	out := make([]byte, len(tex.pix))
	copy(out, tex.pix)
	return out, nil
}

// === Layouts, pipelines, bind groups ===

// CreateBindGroupLayout records a binding layout.
func (a *Adapter) CreateBindGroupLayout(desc *gpucore.BindGroupLayoutDesc) (gpucore.BindGroupLayoutID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("soft: nil bind group layout descriptor")
	}
	id := gpucore.BindGroupLayoutID(a.newID())
	entries := make([]gpucore.BindGroupLayoutEntry, len(desc.Entries))
	copy(entries, desc.Entries)
	a.mu.Lock()
	a.bindGroupLayouts[id] = entries
	a.mu.Unlock()
	return id, nil
}

// DestroyBindGroupLayout releases a bind group layout.
func (a *Adapter) DestroyBindGroupLayout(id gpucore.BindGroupLayoutID) {
	a.mu.Lock()
	delete(a.bindGroupLayouts, id)
	a.mu.Unlock()
}

// CreatePipelineLayout records a pipeline layout.
func (a *Adapter) CreatePipelineLayout(layouts []gpucore.BindGroupLayoutID) (gpucore.PipelineLayoutID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, l := range layouts {
		if _, ok := a.bindGroupLayouts[l]; !ok {
			return gpucore.InvalidID, fmt.Errorf("soft: bind group layout %d not found", l)
		}
	}
	id := gpucore.PipelineLayoutID(a.newID())
	a.pipelineLayouts[id] = append([]gpucore.BindGroupLayoutID(nil), layouts...)
	return id, nil
}

// DestroyPipelineLayout releases a pipeline layout.
func (a *Adapter) DestroyPipelineLayout(id gpucore.PipelineLayoutID) {
	a.mu.Lock()
	delete(a.pipelineLayouts, id)
	a.mu.Unlock()
}

// CreateComputePipeline binds a shader module entry point.
func (a *Adapter) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("soft: nil compute pipeline descriptor")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	mod, ok := a.shaderModules[desc.ShaderModule]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("soft: shader module %d not found", desc.ShaderModule)
	}
	if !mod.entryKinds[desc.EntryPoint] {
		return gpucore.InvalidID, fmt.Errorf("soft: shader module has no entry point %q", desc.EntryPoint)
	}
	if _, ok := a.pipelineLayouts[desc.Layout]; !ok {
		return gpucore.InvalidID, fmt.Errorf("soft: pipeline layout %d not found", desc.Layout)
	}
	id := gpucore.ComputePipelineID(a.newID())
	a.computePipelines[id] = &pipeline{module: mod, entry: desc.EntryPoint}
	return id, nil
}

// DestroyComputePipeline releases a compute pipeline.
func (a *Adapter) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	a.mu.Lock()
	delete(a.computePipelines, id)
	a.mu.Unlock()
}

// CreateBindGroup resolves binding entries against a layout.
func (a *Adapter) CreateBindGroup(layout gpucore.BindGroupLayoutID, entries []gpucore.BindGroupEntry) (gpucore.BindGroupID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.bindGroupLayouts[layout]; !ok {
		return gpucore.InvalidID, fmt.Errorf("soft: bind group layout %d not found", layout)
	}
	for _, e := range entries {
		if e.Texture != gpucore.InvalidID {
			if _, ok := a.textures[e.Texture]; !ok {
				return gpucore.InvalidID, fmt.Errorf("soft: texture %d not found for binding %d", e.Texture, e.Binding)
			}
			continue
		}
		if _, ok := a.buffers[e.Buffer]; !ok {
			return gpucore.InvalidID, fmt.Errorf("soft: buffer %d not found for binding %d", e.Buffer, e.Binding)
		}
	}
	id := gpucore.BindGroupID(a.newID())
	bg := &bindGroup{entries: append([]gpucore.BindGroupEntry(nil), entries...)}
	a.bindGroups[id] = bg
	return id, nil
}

// DestroyBindGroup releases a bind group.
func (a *Adapter) DestroyBindGroup(id gpucore.BindGroupID) {
	a.mu.Lock()
	delete(a.bindGroups, id)
	a.mu.Unlock()
}

// === Command recording ===

// Submit is a no-op; the interpreter executes dispatches eagerly.
func (a *Adapter) Submit() {}

// WaitIdle is a no-op for the same reason.
func (a *Adapter) WaitIdle() {}
