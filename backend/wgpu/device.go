package wgpu

import (
	"fmt"

	gputypes "github.com/gogpu/wgpu/types"

	"github.com/gogpu/wgpu/hal"
)

// Device bundles the open HAL handles behind an Adapter so the caller
// can shut the stack down in order.
type Device struct {
	*Adapter
	instance hal.Instance
	device   hal.Device
	name     string
}

// AdapterName returns the selected GPU's reported name.
func (d *Device) AdapterName() string { return d.name }

// Close releases the device and instance.
func (d *Device) Close() {
	if d.device != nil {
		d.device.Destroy()
		d.device = nil
	}
	if d.instance != nil {
		d.instance.Destroy()
		d.instance = nil
	}
}

// Open brings up a standalone Vulkan compute device, preferring a
// discrete or integrated GPU over software adapters.
func Open() (*Device, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("wgpu: vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("wgpu: no GPU adapters found")
	}

	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("wgpu: open device: %w", err)
	}

	return &Device{
		Adapter:  NewAdapter(openDev.Device, openDev.Queue),
		instance: instance,
		device:   openDev.Device,
		name:     selected.Info.Name,
	}, nil
}
