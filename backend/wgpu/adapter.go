// Package wgpu provides a GPU compute backend on gogpu/wgpu's HAL,
// compiling the generated WGSL programs to SPIR-V with gogpu/naga.
package wgpu

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/types"

	"github.com/Rustcosky/nca-playground/gpucore"
)

// Adapter implements gpucore.Adapter over a HAL device and queue.
//
// Thread safety: all resource operations are protected by a mutex.
type Adapter struct {
	mu     sync.RWMutex
	device hal.Device
	queue  hal.Queue

	nextID atomic.Uint64

	buffers          map[gpucore.BufferID]hal.Buffer
	textures         map[gpucore.TextureID]*textureEntry
	shaderModules    map[gpucore.ShaderModuleID]hal.ShaderModule
	computePipelines map[gpucore.ComputePipelineID]hal.ComputePipeline
	bindGroupLayouts map[gpucore.BindGroupLayoutID]hal.BindGroupLayout
	pipelineLayouts  map[gpucore.PipelineLayoutID]hal.PipelineLayout
	bindGroups       map[gpucore.BindGroupID]hal.BindGroup

	encoder    hal.CommandEncoder
	hasEncoder bool
}

type textureEntry struct {
	texture hal.Texture
	width   int
	height  int
}

// NewAdapter wraps an open HAL device and queue.
func NewAdapter(device hal.Device, queue hal.Queue) *Adapter {
	a := &Adapter{
		device:           device,
		queue:            queue,
		buffers:          make(map[gpucore.BufferID]hal.Buffer),
		textures:         make(map[gpucore.TextureID]*textureEntry),
		shaderModules:    make(map[gpucore.ShaderModuleID]hal.ShaderModule),
		computePipelines: make(map[gpucore.ComputePipelineID]hal.ComputePipeline),
		bindGroupLayouts: make(map[gpucore.BindGroupLayoutID]hal.BindGroupLayout),
		pipelineLayouts:  make(map[gpucore.PipelineLayoutID]hal.PipelineLayout),
		bindGroups:       make(map[gpucore.BindGroupID]hal.BindGroup),
	}
	a.nextID.Store(1)
	return a
}

func (a *Adapter) newID() uint64 {
	return a.nextID.Add(1) - 1
}

// SupportsCompute reports compute support.
func (a *Adapter) SupportsCompute() bool { return true }

// === Shader modules ===

// CreateShaderModule compiles WGSL to SPIR-V and uploads it. Compile
// errors from naga carry the offending source location.
func (a *Adapter) CreateShaderModule(desc *gpucore.ShaderModuleDesc) (gpucore.ShaderModuleID, error) {
	if desc == nil || desc.WGSL == "" {
		return gpucore.InvalidID, fmt.Errorf("wgpu: empty shader source")
	}

	spirvBytes, err := naga.Compile(desc.WGSL)
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: compile %q: %w", desc.Label, err)
	}

	// SPIR-V is little-endian 32-bit words.
	spirv := make([]uint32, len(spirvBytes)/4)
	for i := range spirv {
		spirv[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}

	module, err := a.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label: desc.Label,
		Source: hal.ShaderSource{
			SPIRV: spirv,
		},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: create shader module: %w", err)
	}

	id := gpucore.ShaderModuleID(a.newID())
	a.mu.Lock()
	a.shaderModules[id] = module
	a.mu.Unlock()
	return id, nil
}

// DestroyShaderModule releases a shader module.
func (a *Adapter) DestroyShaderModule(id gpucore.ShaderModuleID) {
	a.mu.Lock()
	module, ok := a.shaderModules[id]
	if ok {
		delete(a.shaderModules, id)
	}
	a.mu.Unlock()

	if ok {
		a.device.DestroyShaderModule(module)
	}
}

// === Buffers ===

// CreateBuffer creates a GPU buffer.
func (a *Adapter) CreateBuffer(size int, usage gpucore.BufferUsage) (gpucore.BufferID, error) {
	if size <= 0 {
		return gpucore.InvalidID, fmt.Errorf("wgpu: buffer size must be positive")
	}

	buffer, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Size:  uint64(size),
		Usage: convertBufferUsage(usage),
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: create buffer: %w", err)
	}

	id := gpucore.BufferID(a.newID())
	a.mu.Lock()
	a.buffers[id] = buffer
	a.mu.Unlock()
	return id, nil
}

// DestroyBuffer releases a buffer.
func (a *Adapter) DestroyBuffer(id gpucore.BufferID) {
	a.mu.Lock()
	buffer, ok := a.buffers[id]
	if ok {
		delete(a.buffers, id)
	}
	a.mu.Unlock()

	if ok {
		a.device.DestroyBuffer(buffer)
	}
}

// WriteBuffer writes data through the queue.
func (a *Adapter) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) {
	a.mu.RLock()
	buffer, ok := a.buffers[id]
	a.mu.RUnlock()

	if ok && len(data) > 0 {
		a.queue.WriteBuffer(buffer, offset, data)
	}
}

// ReadBuffer is not wired for the HAL path; the simulation never reads
// buffers back.
func (a *Adapter) ReadBuffer(id gpucore.BufferID, offset, size uint64) ([]byte, error) {
	a.mu.RLock()
	_, ok := a.buffers[id]
	a.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("wgpu: buffer %d not found", id)
	}
	return nil, fmt.Errorf("wgpu: buffer readback not supported")
}

// === Textures ===

// CreateTexture creates a storage texture.
func (a *Adapter) CreateTexture(width, height int, format gpucore.TextureFormat) (gpucore.TextureID, error) {
	if width <= 0 || height <= 0 {
		return gpucore.InvalidID, fmt.Errorf("wgpu: texture dimensions must be positive")
	}

	texture, err := a.device.CreateTexture(&hal.TextureDescriptor{
		Size: hal.Extent3D{
			Width:              uint32(width),
			Height:             uint32(height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     types.TextureDimension2D,
		Format:        convertTextureFormat(format),
		Usage:         types.TextureUsageCopySrc | types.TextureUsageCopyDst | types.TextureUsageStorageBinding,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: create texture: %w", err)
	}

	id := gpucore.TextureID(a.newID())
	a.mu.Lock()
	a.textures[id] = &textureEntry{texture: texture, width: width, height: height}
	a.mu.Unlock()
	return id, nil
}

// DestroyTexture releases a texture.
func (a *Adapter) DestroyTexture(id gpucore.TextureID) {
	a.mu.Lock()
	entry, ok := a.textures[id]
	if ok {
		delete(a.textures, id)
	}
	a.mu.Unlock()

	if ok {
		a.device.DestroyTexture(entry.texture)
	}
}

// WriteTexture uploads full-texture rgba8 pixel data.
func (a *Adapter) WriteTexture(id gpucore.TextureID, data []byte) {
	a.mu.RLock()
	entry, ok := a.textures[id]
	a.mu.RUnlock()

	if !ok || len(data) != entry.width*entry.height*4 {
		return
	}

	a.queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture:  entry.texture,
			MipLevel: 0,
			Origin:   hal.Origin3D{X: 0, Y: 0, Z: 0},
			Aspect:   types.TextureAspectAll,
		},
		data,
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(entry.width * 4),
			RowsPerImage: uint32(entry.height),
		},
		&hal.Extent3D{
			Width:              uint32(entry.width),
			Height:             uint32(entry.height),
			DepthOrArrayLayers: 1,
		},
	)
}

// ReadTexture is not wired for the HAL path yet; readback needs staging
// buffer mapping the HAL does not expose. The interpreting backend
// covers every path that reads textures back.
func (a *Adapter) ReadTexture(id gpucore.TextureID) ([]byte, error) {
	a.mu.RLock()
	_, ok := a.textures[id]
	a.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("wgpu: texture %d not found", id)
	}
	return nil, fmt.Errorf("wgpu: texture readback not supported")
}

// === Layouts, pipelines, bind groups ===

// CreateBindGroupLayout creates a bind group layout.
func (a *Adapter) CreateBindGroupLayout(desc *gpucore.BindGroupLayoutDesc) (gpucore.BindGroupLayoutID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: nil bind group layout descriptor")
	}

	halEntries := make([]types.BindGroupLayoutEntry, len(desc.Entries))
	for i, entry := range desc.Entries {
		halEntries[i] = convertBindGroupLayoutEntry(entry)
	}

	layout, err := a.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   desc.Label,
		Entries: halEntries,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: create bind group layout: %w", err)
	}

	id := gpucore.BindGroupLayoutID(a.newID())
	a.mu.Lock()
	a.bindGroupLayouts[id] = layout
	a.mu.Unlock()
	return id, nil
}

// DestroyBindGroupLayout releases a bind group layout.
func (a *Adapter) DestroyBindGroupLayout(id gpucore.BindGroupLayoutID) {
	a.mu.Lock()
	layout, ok := a.bindGroupLayouts[id]
	if ok {
		delete(a.bindGroupLayouts, id)
	}
	a.mu.Unlock()

	if ok {
		a.device.DestroyBindGroupLayout(layout)
	}
}

// CreatePipelineLayout creates a pipeline layout.
func (a *Adapter) CreatePipelineLayout(layouts []gpucore.BindGroupLayoutID) (gpucore.PipelineLayoutID, error) {
	a.mu.RLock()
	halLayouts := make([]hal.BindGroupLayout, len(layouts))
	for i, id := range layouts {
		layout, ok := a.bindGroupLayouts[id]
		if !ok {
			a.mu.RUnlock()
			return gpucore.InvalidID, fmt.Errorf("wgpu: bind group layout %d not found", id)
		}
		halLayouts[i] = layout
	}
	a.mu.RUnlock()

	pipelineLayout, err := a.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		BindGroupLayouts: halLayouts,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: create pipeline layout: %w", err)
	}

	id := gpucore.PipelineLayoutID(a.newID())
	a.mu.Lock()
	a.pipelineLayouts[id] = pipelineLayout
	a.mu.Unlock()
	return id, nil
}

// DestroyPipelineLayout releases a pipeline layout.
func (a *Adapter) DestroyPipelineLayout(id gpucore.PipelineLayoutID) {
	a.mu.Lock()
	layout, ok := a.pipelineLayouts[id]
	if ok {
		delete(a.pipelineLayouts, id)
	}
	a.mu.Unlock()

	if ok {
		a.device.DestroyPipelineLayout(layout)
	}
}

// CreateComputePipeline creates a compute pipeline.
func (a *Adapter) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: nil compute pipeline descriptor")
	}

	a.mu.RLock()
	pipelineLayout, layoutOK := a.pipelineLayouts[desc.Layout]
	shaderModule, moduleOK := a.shaderModules[desc.ShaderModule]
	a.mu.RUnlock()

	if !layoutOK {
		return gpucore.InvalidID, fmt.Errorf("wgpu: pipeline layout %d not found", desc.Layout)
	}
	if !moduleOK {
		return gpucore.InvalidID, fmt.Errorf("wgpu: shader module %d not found", desc.ShaderModule)
	}

	pipeline, err := a.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  desc.Label,
		Layout: pipelineLayout,
		Compute: hal.ComputeState{
			Module:     shaderModule,
			EntryPoint: desc.EntryPoint,
		},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: create compute pipeline: %w", err)
	}

	id := gpucore.ComputePipelineID(a.newID())
	a.mu.Lock()
	a.computePipelines[id] = pipeline
	a.mu.Unlock()
	return id, nil
}

// DestroyComputePipeline releases a compute pipeline.
func (a *Adapter) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	a.mu.Lock()
	pipeline, ok := a.computePipelines[id]
	if ok {
		delete(a.computePipelines, id)
	}
	a.mu.Unlock()

	if ok {
		a.device.DestroyComputePipeline(pipeline)
	}
}

// CreateBindGroup creates a bind group.
func (a *Adapter) CreateBindGroup(layout gpucore.BindGroupLayoutID, entries []gpucore.BindGroupEntry) (gpucore.BindGroupID, error) {
	a.mu.RLock()
	halLayout, ok := a.bindGroupLayouts[layout]
	if !ok {
		a.mu.RUnlock()
		return gpucore.InvalidID, fmt.Errorf("wgpu: bind group layout %d not found", layout)
	}

	halEntries := make([]types.BindGroupEntry, len(entries))
	for i, entry := range entries {
		halEntry, err := a.convertBindGroupEntry(entry)
		if err != nil {
			a.mu.RUnlock()
			return gpucore.InvalidID, fmt.Errorf("wgpu: bind group entry %d: %w", entry.Binding, err)
		}
		halEntries[i] = halEntry
	}
	a.mu.RUnlock()

	bindGroup, err := a.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Layout:  halLayout,
		Entries: halEntries,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: create bind group: %w", err)
	}

	id := gpucore.BindGroupID(a.newID())
	a.mu.Lock()
	a.bindGroups[id] = bindGroup
	a.mu.Unlock()
	return id, nil
}

// DestroyBindGroup releases a bind group.
func (a *Adapter) DestroyBindGroup(id gpucore.BindGroupID) {
	a.mu.Lock()
	group, ok := a.bindGroups[id]
	if ok {
		delete(a.bindGroups, id)
	}
	a.mu.Unlock()

	if ok {
		a.device.DestroyBindGroup(group)
	}
}

// === Command recording ===

// BeginComputePass begins a compute pass on the frame's shared encoder,
// creating the encoder lazily.
func (a *Adapter) BeginComputePass() gpucore.ComputePassEncoder {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.hasEncoder {
		encoder, err := a.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
			Label: "frame-encoder",
		})
		if err != nil {
			return &computePassEncoder{adapter: a}
		}
		if err := encoder.BeginEncoding("frame"); err != nil {
			return &computePassEncoder{adapter: a}
		}
		a.encoder = encoder
		a.hasEncoder = true
	}

	halPass := a.encoder.BeginComputePass(&hal.ComputePassDescriptor{
		Label: "compute",
	})
	return &computePassEncoder{adapter: a, pass: halPass}
}

// Submit submits the frame's recorded commands.
func (a *Adapter) Submit() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.hasEncoder || a.encoder == nil {
		return
	}

	cmdBuffer, err := a.encoder.EndEncoding()
	if err != nil {
		a.encoder = nil
		a.hasEncoder = false
		return
	}

	_ = a.queue.Submit([]hal.CommandBuffer{cmdBuffer}, nil, 0)

	cmdBuffer.Destroy()
	a.encoder = nil
	a.hasEncoder = false
}

// WaitIdle blocks until submitted work completes.
func (a *Adapter) WaitIdle() {
	a.Submit()

	fence, err := a.device.CreateFence()
	if err != nil {
		return
	}
	defer a.device.DestroyFence(fence)

	if err := a.queue.Submit(nil, fence, 1); err != nil {
		return
	}
	_, _ = a.device.Wait(fence, 1, 5_000_000_000)
}

// === Compute pass encoder ===

type computePassEncoder struct {
	adapter *Adapter
	pass    hal.ComputePassEncoder
}

func (e *computePassEncoder) SetPipeline(pipeline gpucore.ComputePipelineID) {
	if e.pass == nil {
		return
	}
	e.adapter.mu.RLock()
	halPipeline, ok := e.adapter.computePipelines[pipeline]
	e.adapter.mu.RUnlock()
	if ok {
		e.pass.SetPipeline(halPipeline)
	}
}

func (e *computePassEncoder) SetBindGroup(index uint32, group gpucore.BindGroupID) {
	if e.pass == nil {
		return
	}
	e.adapter.mu.RLock()
	halGroup, ok := e.adapter.bindGroups[group]
	e.adapter.mu.RUnlock()
	if ok {
		e.pass.SetBindGroup(index, halGroup, nil)
	}
}

func (e *computePassEncoder) Dispatch(x, y, z uint32) {
	if e.pass == nil {
		return
	}
	e.pass.Dispatch(x, y, z)
}

func (e *computePassEncoder) End() {
	if e.pass == nil {
		return
	}
	e.pass.End()
}

// === Type conversion ===

func convertBufferUsage(usage gpucore.BufferUsage) types.BufferUsage {
	var result types.BufferUsage
	if usage&gpucore.BufferUsageMapRead != 0 {
		result |= types.BufferUsageMapRead
	}
	if usage&gpucore.BufferUsageCopySrc != 0 {
		result |= types.BufferUsageCopySrc
	}
	if usage&gpucore.BufferUsageCopyDst != 0 {
		result |= types.BufferUsageCopyDst
	}
	if usage&gpucore.BufferUsageUniform != 0 {
		result |= types.BufferUsageUniform
	}
	if usage&gpucore.BufferUsageStorage != 0 {
		result |= types.BufferUsageStorage
	}
	return result
}

func convertTextureFormat(format gpucore.TextureFormat) types.TextureFormat {
	switch format {
	case gpucore.TextureFormatRGBA8UnormSRGB:
		return types.TextureFormatRGBA8UnormSrgb
	default:
		return types.TextureFormatRGBA8Unorm
	}
}

func convertBindGroupLayoutEntry(entry gpucore.BindGroupLayoutEntry) types.BindGroupLayoutEntry {
	result := types.BindGroupLayoutEntry{
		Binding:    entry.Binding,
		Visibility: types.ShaderStageCompute,
	}

	switch entry.Type {
	case gpucore.BindingTypeUniformBuffer:
		result.Buffer = &types.BufferBindingLayout{
			Type:           types.BufferBindingTypeUniform,
			MinBindingSize: entry.MinBindingSize,
		}
	case gpucore.BindingTypeStorageBuffer:
		result.Buffer = &types.BufferBindingLayout{
			Type:           types.BufferBindingTypeStorage,
			MinBindingSize: entry.MinBindingSize,
		}
	case gpucore.BindingTypeStorageTexture:
		result.Storage = &types.StorageTextureBindingLayout{
			Access:        types.StorageTextureAccessReadWrite,
			Format:        types.TextureFormatRGBA8Unorm,
			ViewDimension: types.TextureViewDimension2D,
		}
	}
	return result
}

// convertBindGroupEntry resolves a gpucore entry to a HAL binding.
// Must be called with mu.RLock held.
func (a *Adapter) convertBindGroupEntry(entry gpucore.BindGroupEntry) (types.BindGroupEntry, error) {
	result := types.BindGroupEntry{
		Binding: entry.Binding,
	}

	if entry.Texture != gpucore.InvalidID {
		if _, ok := a.textures[entry.Texture]; !ok {
			return result, fmt.Errorf("texture %d not found", entry.Texture)
		}
		result.Resource = types.TextureViewBinding{
			TextureView: types.TextureViewHandle(entry.Texture),
		}
		return result, nil
	}

	if _, ok := a.buffers[entry.Buffer]; !ok {
		return result, fmt.Errorf("buffer %d not found", entry.Buffer)
	}
	result.Resource = types.BufferBinding{
		Buffer: types.BufferHandle(entry.Buffer),
		Offset: entry.Offset,
		Size:   entry.Size,
	}
	return result, nil
}
