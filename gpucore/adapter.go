package gpucore

// Adapter abstracts over the GPU backend implementations.
//
// Implementations must be safe for concurrent use: the simulation pipeline
// compiles kernels on a background goroutine while the frame tick records
// dispatches.
//
// Resource lifecycle:
//   - Resources are created via Create* methods
//   - Resources must be explicitly destroyed via Destroy* methods
//   - Destroying a resource while in use is undefined behavior
//   - IDs become invalid after destruction and must not be reused
type Adapter interface {
	// SupportsCompute returns whether compute dispatch is available.
	SupportsCompute() bool

	// === Shader Compilation ===

	// CreateShaderModule compiles a WGSL program into a shader module.
	// Returns the module ID, or an error carrying the compiler diagnostic
	// if the program is malformed.
	CreateShaderModule(desc *ShaderModuleDesc) (ShaderModuleID, error)

	// DestroyShaderModule releases a shader module.
	DestroyShaderModule(id ShaderModuleID)

	// === Buffer Management ===

	// CreateBuffer creates a GPU buffer of the given byte size.
	CreateBuffer(size int, usage BufferUsage) (BufferID, error)

	// DestroyBuffer releases a GPU buffer.
	DestroyBuffer(id BufferID)

	// WriteBuffer writes data to a buffer at the given byte offset.
	WriteBuffer(id BufferID, offset uint64, data []byte)

	// ReadBuffer reads size bytes from a buffer at the given offset.
	// This may cause a GPU-CPU synchronization stall.
	ReadBuffer(id BufferID, offset, size uint64) ([]byte, error)

	// === Texture Management ===

	// CreateTexture creates a 2-D texture usable as a storage binding and
	// as a copy source/destination.
	CreateTexture(width, height int, format TextureFormat) (TextureID, error)

	// DestroyTexture releases a GPU texture.
	DestroyTexture(id TextureID)

	// WriteTexture uploads pixel data covering the whole texture.
	WriteTexture(id TextureID, data []byte)

	// ReadTexture reads back the whole texture.
	// This may cause a GPU-CPU synchronization stall.
	ReadTexture(id TextureID) ([]byte, error)

	// === Pipeline Management ===

	// CreateBindGroupLayout creates a bind group layout.
	CreateBindGroupLayout(desc *BindGroupLayoutDesc) (BindGroupLayoutID, error)

	// DestroyBindGroupLayout releases a bind group layout.
	DestroyBindGroupLayout(id BindGroupLayoutID)

	// CreatePipelineLayout creates a pipeline layout from bind group layouts.
	CreatePipelineLayout(layouts []BindGroupLayoutID) (PipelineLayoutID, error)

	// DestroyPipelineLayout releases a pipeline layout.
	DestroyPipelineLayout(id PipelineLayoutID)

	// CreateComputePipeline creates a compute pipeline for one entry point
	// of a compiled shader module.
	CreateComputePipeline(desc *ComputePipelineDesc) (ComputePipelineID, error)

	// DestroyComputePipeline releases a compute pipeline.
	DestroyComputePipeline(id ComputePipelineID)

	// CreateBindGroup binds actual resources to a bind group layout.
	CreateBindGroup(layout BindGroupLayoutID, entries []BindGroupEntry) (BindGroupID, error)

	// DestroyBindGroup releases a bind group.
	DestroyBindGroup(id BindGroupID)

	// === Command Recording and Execution ===

	// BeginComputePass begins a compute pass.
	// The encoder must be ended with ComputePassEncoder.End().
	BeginComputePass() ComputePassEncoder

	// Submit submits recorded commands to the GPU.
	// Call this after ending all compute passes of a frame.
	Submit()

	// WaitIdle waits for all GPU operations to complete.
	// Use sparingly as this causes a full GPU-CPU synchronization.
	WaitIdle()
}

// ComputePassEncoder records compute commands.
//
// Usage:
//  1. Obtain encoder from Adapter.BeginComputePass()
//  2. Set pipeline and bind groups
//  3. Dispatch compute workgroups
//  4. Call End() to finish recording
//  5. Call Adapter.Submit() to execute
//
// The encoder is single-use and cannot be reused after End().
type ComputePassEncoder interface {
	// SetPipeline sets the active compute pipeline.
	SetPipeline(pipeline ComputePipelineID)

	// SetBindGroup sets a bind group at the specified index.
	SetBindGroup(index uint32, group BindGroupID)

	// Dispatch dispatches x*y*z compute workgroups.
	Dispatch(x, y, z uint32)

	// End finishes the compute pass.
	End()
}
