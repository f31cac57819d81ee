// Package gpucore provides the GPU resource abstraction shared by the
// automaton simulation pipeline.
//
// This package defines the [Adapter] interface, which abstracts over the GPU
// backend implementations, allowing the same simulation pipeline to run on:
//   - gogpu/wgpu (Pure Go WebGPU via HAL)
//   - a pure-Go software executor that mirrors the compute kernels on CPU
//
// # Resource Management
//
// GPU resources are managed via opaque IDs ([BufferID], [TextureID], etc.).
// A central table inside each adapter owns the actual resources by value;
// all consumers hold indices, never raw handles, so resource lifetime is
// unambiguous: an ID is valid from Create* until the matching Destroy*.
//
// # Command Recording
//
// Compute work is recorded through [ComputePassEncoder] obtained from
// [Adapter.BeginComputePass] and executed on [Adapter.Submit]. Submission is
// fire-and-forget; the underlying device queue orders execution.
package gpucore
