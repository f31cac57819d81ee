// Package kernel defines the compute kernel contract of the automaton:
// WGSL program generation, the restricted activation-expression language,
// the filter uniform layout, the draw parameter layout, and pure-Go mirrors
// of every generated kernel.
//
// # Program Generation
//
// [GenerateAutomaton] splices three per-channel activation bodies into fixed
// boilerplate (hash-based seeding, toroidal neighborhood sampling, per-channel
// 3x3 convolution) and yields a program exposing the entry points `init` and
// `update`. [GenerateDraw] yields a second program exposing `draw`, which
// stamps a brush along the segment between two pointer positions.
//
// Activation bodies are validated against the restricted grammar accepted by
// [CompileActivation] before they are spliced; arbitrary program text never
// reaches the generated source.
//
// # CPU Mirrors
//
// [SeedImage], [StepImage] and [StampBrush] are pure-Go implementations of
// the generated kernels, operating on RGBA8 pixel buffers. The software
// backend executes dispatches through them, and every simulation test
// asserts against them. Each mirror must match the corresponding WGSL
// exactly, including the filter read order and the rgba8unorm rounding.
package kernel
