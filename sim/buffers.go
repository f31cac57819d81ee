package sim

import (
	"fmt"

	"github.com/Rustcosky/nca-playground/gpucore"
	"github.com/Rustcosky/nca-playground/kernel"
)

// FilterBuffers holds the three per-channel filter uniforms. Updating a
// filter allocates fresh buffers rather than mutating in place, so
// dispatches already recorded against the old buffers keep their data;
// bind groups are rebuilt against the new buffers on the next frame.
type FilterBuffers struct {
	buffers    [3]gpucore.BufferID
	generation uint64
}

// NewFilterBuffers allocates and fills the three uniforms.
func NewFilterBuffers(adapter gpucore.Adapter, filters [3]kernel.Filter) (*FilterBuffers, error) {
	f := &FilterBuffers{generation: 1}
	if err := f.allocate(adapter, filters); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *FilterBuffers) allocate(adapter gpucore.Adapter, filters [3]kernel.Filter) error {
	var fresh [3]gpucore.BufferID
	for ch := range fresh {
		id, err := adapter.CreateBuffer(kernel.FilterUniformSize, gpucore.BufferUsageUniform|gpucore.BufferUsageCopyDst)
		if err != nil {
			for j := 0; j < ch; j++ {
				adapter.DestroyBuffer(fresh[j])
			}
			return fmt.Errorf("sim: create filter buffer %d: %w", ch, err)
		}
		adapter.WriteBuffer(id, 0, filters[ch].Bytes())
		fresh[ch] = id
	}
	f.buffers = fresh
	return nil
}

// Update replaces all three uniforms with freshly allocated buffers and
// bumps the generation so bind group holders can notice.
func (f *FilterBuffers) Update(adapter gpucore.Adapter, filters [3]kernel.Filter) error {
	old := f.buffers
	if err := f.allocate(adapter, filters); err != nil {
		return err
	}
	for _, id := range old {
		if id != gpucore.InvalidID {
			adapter.DestroyBuffer(id)
		}
	}
	f.generation++
	return nil
}

// Buffer returns the uniform for one channel (0 red, 1 green, 2 blue).
func (f *FilterBuffers) Buffer(ch int) gpucore.BufferID {
	return f.buffers[ch]
}

// Generation increments on every Update.
func (f *FilterBuffers) Generation() uint64 { return f.generation }

// Release destroys the uniforms.
func (f *FilterBuffers) Release(adapter gpucore.Adapter) {
	for ch, id := range f.buffers {
		if id != gpucore.InvalidID {
			adapter.DestroyBuffer(id)
			f.buffers[ch] = gpucore.InvalidID
		}
	}
}
