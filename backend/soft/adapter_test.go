package soft

import (
	"bytes"
	"testing"

	"github.com/Rustcosky/nca-playground/gpucore"
	"github.com/Rustcosky/nca-playground/kernel"
)

func TestAdapter_Buffers(t *testing.T) {
	a := NewAdapter()

	id, err := a.CreateBuffer(16, gpucore.BufferUsageUniform|gpucore.BufferUsageCopyDst)
	if err != nil {
		t.Fatalf("CreateBuffer error: %v", err)
	}
	if id == gpucore.InvalidID {
		t.Fatal("CreateBuffer returned invalid id")
	}

	data := []byte{1, 2, 3, 4}
	a.WriteBuffer(id, 4, data)
	got, err := a.ReadBuffer(id, 4, 4)
	if err != nil {
		t.Fatalf("ReadBuffer error: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("ReadBuffer = %v, want %v", got, data)
	}

	if _, err := a.CreateBuffer(0, 0); err == nil {
		t.Error("CreateBuffer accepted zero size")
	}
	if _, err := a.ReadBuffer(gpucore.BufferID(9999), 0, 4); err == nil {
		t.Error("ReadBuffer of unknown buffer succeeded")
	}

	a.DestroyBuffer(id)
	if _, err := a.ReadBuffer(id, 0, 4); err == nil {
		t.Error("ReadBuffer succeeded after DestroyBuffer")
	}
}

func TestAdapter_Textures(t *testing.T) {
	a := NewAdapter()

	id, err := a.CreateTexture(4, 4, gpucore.TextureFormatRGBA8Unorm)
	if err != nil {
		t.Fatalf("CreateTexture error: %v", err)
	}

	pix := make([]byte, 4*4*4)
	for i := range pix {
		pix[i] = byte(i)
	}
	a.WriteTexture(id, pix)
	got, err := a.ReadTexture(id)
	if err != nil {
		t.Fatalf("ReadTexture error: %v", err)
	}
	if !bytes.Equal(got, pix) {
		t.Error("ReadTexture does not match written pixels")
	}

	if _, err := a.CreateTexture(0, 4, gpucore.TextureFormatRGBA8Unorm); err == nil {
		t.Error("CreateTexture accepted zero width")
	}
}

func TestAdapter_ShaderModule(t *testing.T) {
	a := NewAdapter()

	wgsl, err := kernel.GenerateAutomaton("return x;", "return x;", "return x;", 4)
	if err != nil {
		t.Fatalf("GenerateAutomaton error: %v", err)
	}
	if _, err := a.CreateShaderModule(&gpucore.ShaderModuleDesc{Label: "sim", WGSL: wgsl}); err != nil {
		t.Errorf("CreateShaderModule(automaton) error: %v", err)
	}
	if _, err := a.CreateShaderModule(&gpucore.ShaderModuleDesc{Label: "draw", WGSL: kernel.GenerateDraw(4)}); err != nil {
		t.Errorf("CreateShaderModule(draw) error: %v", err)
	}
	if _, err := a.CreateShaderModule(&gpucore.ShaderModuleDesc{Label: "junk", WGSL: "fn main() {}"}); err == nil {
		t.Error("CreateShaderModule accepted an unrecognized program")
	}
	if _, err := a.CreateShaderModule(&gpucore.ShaderModuleDesc{}); err == nil {
		t.Error("CreateShaderModule accepted empty source")
	}
}

func TestAdapter_ShaderModule_BadActivation(t *testing.T) {
	a := NewAdapter()

	// Hand-assembled program with an activation body the grammar rejects.
	good, err := kernel.GenerateAutomaton("return x;", "return x;", "return x;", 4)
	if err != nil {
		t.Fatalf("GenerateAutomaton error: %v", err)
	}
	bad := bytes.Replace([]byte(good), []byte("fn activation_fn_red(x: f32) -> f32 {\n\treturn x;"),
		[]byte("fn activation_fn_red(x: f32) -> f32 {\n\treturn nosuchfn(x);"), 1)
	if _, err := a.CreateShaderModule(&gpucore.ShaderModuleDesc{Label: "bad", WGSL: string(bad)}); err == nil {
		t.Error("CreateShaderModule accepted an invalid activation body")
	}
}

// simFixture wires one automaton pipeline with two textures and the three
// filter uniforms, the same binding layout the simulation uses.
type simFixture struct {
	adapter  *Adapter
	initPipe gpucore.ComputePipelineID
	stepPipe gpucore.ComputePipelineID
	texA     gpucore.TextureID
	texB     gpucore.TextureID
	groupAB  gpucore.BindGroupID
	w, h     int
}

func newSimFixture(t *testing.T, red, green, blue string) *simFixture {
	t.Helper()
	const w, h, tile = 16, 16, 4
	a := NewAdapter()

	wgsl, err := kernel.GenerateAutomaton(red, green, blue, tile)
	if err != nil {
		t.Fatalf("GenerateAutomaton error: %v", err)
	}
	mod, err := a.CreateShaderModule(&gpucore.ShaderModuleDesc{Label: "sim", WGSL: wgsl})
	if err != nil {
		t.Fatalf("CreateShaderModule error: %v", err)
	}

	layout, err := a.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{
		Entries: []gpucore.BindGroupLayoutEntry{
			{Binding: 0, Type: gpucore.BindingTypeStorageTexture},
			{Binding: 1, Type: gpucore.BindingTypeStorageTexture},
			{Binding: 2, Type: gpucore.BindingTypeUniformBuffer, MinBindingSize: kernel.FilterUniformSize},
			{Binding: 3, Type: gpucore.BindingTypeUniformBuffer, MinBindingSize: kernel.FilterUniformSize},
			{Binding: 4, Type: gpucore.BindingTypeUniformBuffer, MinBindingSize: kernel.FilterUniformSize},
		},
	})
	if err != nil {
		t.Fatalf("CreateBindGroupLayout error: %v", err)
	}
	pipeLayout, err := a.CreatePipelineLayout([]gpucore.BindGroupLayoutID{layout})
	if err != nil {
		t.Fatalf("CreatePipelineLayout error: %v", err)
	}
	initPipe, err := a.CreateComputePipeline(&gpucore.ComputePipelineDesc{
		Layout: pipeLayout, ShaderModule: mod, EntryPoint: "init",
	})
	if err != nil {
		t.Fatalf("CreateComputePipeline(init) error: %v", err)
	}
	stepPipe, err := a.CreateComputePipeline(&gpucore.ComputePipelineDesc{
		Layout: pipeLayout, ShaderModule: mod, EntryPoint: "update",
	})
	if err != nil {
		t.Fatalf("CreateComputePipeline(update) error: %v", err)
	}

	texA, _ := a.CreateTexture(w, h, gpucore.TextureFormatRGBA8Unorm)
	texB, _ := a.CreateTexture(w, h, gpucore.TextureFormatRGBA8Unorm)

	var filterBufs [3]gpucore.BufferID
	for ch := range filterBufs {
		id, err := a.CreateBuffer(kernel.FilterUniformSize, gpucore.BufferUsageUniform|gpucore.BufferUsageCopyDst)
		if err != nil {
			t.Fatalf("CreateBuffer error: %v", err)
		}
		a.WriteBuffer(id, 0, kernel.IdentityFilter().Bytes())
		filterBufs[ch] = id
	}

	groupAB, err := a.CreateBindGroup(layout, []gpucore.BindGroupEntry{
		{Binding: 0, Texture: texA},
		{Binding: 1, Texture: texB},
		{Binding: 2, Buffer: filterBufs[0], Size: kernel.FilterUniformSize},
		{Binding: 3, Buffer: filterBufs[1], Size: kernel.FilterUniformSize},
		{Binding: 4, Buffer: filterBufs[2], Size: kernel.FilterUniformSize},
	})
	if err != nil {
		t.Fatalf("CreateBindGroup error: %v", err)
	}

	return &simFixture{
		adapter: a, initPipe: initPipe, stepPipe: stepPipe,
		texA: texA, texB: texB, groupAB: groupAB, w: w, h: h,
	}
}

func TestAdapter_InitDispatchSeedsTexture(t *testing.T) {
	f := newSimFixture(t, "return x;", "return x;", "return x;")
	a := f.adapter

	pass := a.BeginComputePass()
	pass.SetPipeline(f.initPipe)
	pass.SetBindGroup(0, f.groupAB)
	pass.Dispatch(uint32(f.w/4), uint32(f.h/4), 1)
	pass.End()
	a.Submit()

	got, err := a.ReadTexture(f.texB)
	if err != nil {
		t.Fatalf("ReadTexture error: %v", err)
	}
	want := make([]byte, f.w*f.h*4)
	kernel.SeedImage(want, f.w, f.h)
	if !bytes.Equal(got, want) {
		t.Error("init dispatch does not match the reference seed")
	}

	if s := a.Stats(); s.InitDispatches != 1 {
		t.Errorf("InitDispatches = %d, want 1", s.InitDispatches)
	}
}

func TestAdapter_UpdateDispatchMatchesReference(t *testing.T) {
	f := newSimFixture(t, "return x;", "return tanh(x);", "return clamp(x, 0.0, 1.0);")
	a := f.adapter

	src := make([]byte, f.w*f.h*4)
	kernel.SeedImage(src, f.w, f.h)
	a.WriteTexture(f.texA, src)

	pass := a.BeginComputePass()
	pass.SetPipeline(f.stepPipe)
	pass.SetBindGroup(0, f.groupAB)
	pass.Dispatch(uint32(f.w/4), uint32(f.h/4), 1)
	pass.End()
	a.Submit()

	got, err := a.ReadTexture(f.texB)
	if err != nil {
		t.Fatalf("ReadTexture error: %v", err)
	}

	var filters [3][12]float32
	packed := kernel.IdentityFilter().Pack()
	for ch := range filters {
		filters[ch] = packed
	}
	acts := [3]*kernel.Activation{}
	for ch, body := range []string{"return x;", "return tanh(x);", "return clamp(x, 0.0, 1.0);"} {
		act, err := kernel.CompileActivation(body)
		if err != nil {
			t.Fatalf("CompileActivation error: %v", err)
		}
		acts[ch] = act
	}
	want := make([]byte, f.w*f.h*4)
	kernel.StepImage(want, src, f.w, f.h, filters, acts)

	if !bytes.Equal(got, want) {
		t.Error("update dispatch does not match the reference step")
	}
	if s := a.Stats(); s.UpdateDispatches != 1 {
		t.Errorf("UpdateDispatches = %d, want 1", s.UpdateDispatches)
	}
}

func TestAdapter_DrawDispatch(t *testing.T) {
	const w, h, tile = 16, 16, 4
	a := NewAdapter()

	mod, err := a.CreateShaderModule(&gpucore.ShaderModuleDesc{Label: "draw", WGSL: kernel.GenerateDraw(tile)})
	if err != nil {
		t.Fatalf("CreateShaderModule error: %v", err)
	}
	layout, err := a.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{
		Entries: []gpucore.BindGroupLayoutEntry{
			{Binding: 0, Type: gpucore.BindingTypeStorageTexture},
			{Binding: 1, Type: gpucore.BindingTypeUniformBuffer, MinBindingSize: kernel.DrawParamsSize},
		},
	})
	if err != nil {
		t.Fatalf("CreateBindGroupLayout error: %v", err)
	}
	pipeLayout, err := a.CreatePipelineLayout([]gpucore.BindGroupLayoutID{layout})
	if err != nil {
		t.Fatalf("CreatePipelineLayout error: %v", err)
	}
	pipe, err := a.CreateComputePipeline(&gpucore.ComputePipelineDesc{
		Layout: pipeLayout, ShaderModule: mod, EntryPoint: "draw",
	})
	if err != nil {
		t.Fatalf("CreateComputePipeline error: %v", err)
	}

	tex, _ := a.CreateTexture(w, h, gpucore.TextureFormatRGBA8Unorm)
	params := kernel.DrawParams{
		Start: [2]float32{8, 8},
		End:   [2]float32{8, 8},
		Size:  2,
		Kind:  kernel.BrushCircle,
		Color: [3]float32{1, 1, 1},
	}
	buf, _ := a.CreateBuffer(kernel.DrawParamsSize, gpucore.BufferUsageUniform|gpucore.BufferUsageCopyDst)
	a.WriteBuffer(buf, 0, params.Bytes())

	group, err := a.CreateBindGroup(layout, []gpucore.BindGroupEntry{
		{Binding: 0, Texture: tex},
		{Binding: 1, Buffer: buf, Size: kernel.DrawParamsSize},
	})
	if err != nil {
		t.Fatalf("CreateBindGroup error: %v", err)
	}

	pass := a.BeginComputePass()
	pass.SetPipeline(pipe)
	pass.SetBindGroup(0, group)
	pass.Dispatch(w/tile, h/tile, 1)
	pass.End()

	got, err := a.ReadTexture(tex)
	if err != nil {
		t.Fatalf("ReadTexture error: %v", err)
	}
	want := make([]byte, w*h*4)
	kernel.StampBrush(want, w, h, params)
	if !bytes.Equal(got, want) {
		t.Error("draw dispatch does not match the reference stamp")
	}
	if s := a.Stats(); s.DrawDispatches != 1 {
		t.Errorf("DrawDispatches = %d, want 1", s.DrawDispatches)
	}
}

func TestComputePass_IgnoresInvalidDispatch(t *testing.T) {
	a := NewAdapter()

	pass := a.BeginComputePass()
	pass.Dispatch(1, 1, 1) // no pipeline bound
	pass.End()
	pass.Dispatch(1, 1, 1) // after End

	if s := a.Stats(); s != (Stats{}) {
		t.Errorf("Stats = %+v, want all zero", s)
	}
}
