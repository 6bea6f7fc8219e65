package webgpu

import (
	"encoding/binary"
	"testing"

	"github.com/Carmen-Shannon/oxy-waves/engine/device"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriangleEdges(t *testing.T) {
	raw := make([]byte, 0, 24)
	for _, i := range []uint32{0, 1, 2, 2, 1, 3} {
		raw = binary.LittleEndian.AppendUint32(raw, i)
	}
	assert.Equal(t, []uint32{0, 1, 1, 2, 2, 0, 2, 1, 1, 3, 3, 2}, triangleEdges(raw))
	assert.Empty(t, triangleEdges(raw[:8]))
}

func TestBufferUsage(t *testing.T) {
	assert.Equal(t, wgpu.BufferUsageMapRead|wgpu.BufferUsageCopyDst, bufferUsage(device.UsageReadback|device.UsageStorage))
	assert.Equal(t, wgpu.BufferUsageCopyDst|wgpu.BufferUsageUniform, bufferUsage(device.UsageConstant))
	assert.Equal(t, wgpu.BufferUsageCopyDst|wgpu.BufferUsageVertex|wgpu.BufferUsageIndex, bufferUsage(device.UsageVertex|device.UsageIndex))
	assert.NotZero(t, bufferUsage(device.UsageStorage)&wgpu.BufferUsageCopySrc)
}

// newHeadlessDevice skips on machines without any WebGPU adapter.
func newHeadlessDevice(t *testing.T) Device {
	t.Helper()
	dev, err := NewDevice(WithSize(64, 64))
	if err != nil {
		t.Skipf("no WebGPU adapter: %v", err)
	}
	t.Cleanup(dev.Release)
	return dev
}

func TestFenceFollowsSubmission(t *testing.T) {
	dev := newHeadlessDevice(t)

	f, err := dev.NewFence(0)
	require.NoError(t, err)
	alloc, err := dev.NewCommandAllocator()
	require.NoError(t, err)
	defer alloc.Release()
	list, err := dev.NewCommandList(alloc)
	require.NoError(t, err)

	require.NoError(t, device.Record(list, alloc, func(device.CommandList) error { return nil }))
	require.NoError(t, dev.Queue().Submit(list))
	require.NoError(t, dev.Queue().Signal(f, 1))

	done := make(chan error, 1)
	require.NoError(t, f.SetEventOnCompletion(1, done))
	require.NoError(t, <-done)
	assert.Equal(t, uint64(1), f.CompletedValue())
}

func TestComputeRoundTrip(t *testing.T) {
	dev := newHeadlessDevice(t)

	const src = `
struct Params {
    scale: f32,
    count: u32,
}

@group(0) @binding(0) var<storage, read_write> data: array<f32>;
@group(1) @binding(0) var<uniform> params: Params;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    if (id.x < params.count) {
        data[id.x] = f32(id.x) * params.scale;
    }
}
`
	p, err := dev.NewComputePipeline(device.ComputePipelineDescriptor{
		Key:           "scale",
		WGSL:          src,
		Textures:      []device.Access{device.AccessReadWrite},
		RootConstants: 2,
	})
	require.NoError(t, err)
	defer p.Release()

	tex, err := dev.AllocateTexture("data", 8, 8)
	require.NoError(t, err)
	defer tex.Release()

	alloc, err := dev.NewCommandAllocator()
	require.NoError(t, err)
	defer alloc.Release()
	list, err := dev.NewCommandList(alloc)
	require.NoError(t, err)

	require.NoError(t, device.Record(list, alloc, func(cl device.CommandList) error {
		cl.SetComputePipeline(p)
		cl.SetComputeRootConstants([]uint32{0x40000000, 64}) // 2.0
		cl.SetComputeTextures(tex)
		cl.Dispatch(1, 1, 1)
		return nil
	}))
	require.NoError(t, dev.Queue().Submit(list))

	data, err := dev.ReadTexture(tex)
	require.NoError(t, err)
	require.Len(t, data, 64)
	assert.Equal(t, float32(0), data[0])
	assert.Equal(t, float32(126), data[63])
}

func TestWriteTextureRoundTrip(t *testing.T) {
	dev := newHeadlessDevice(t)

	tex, err := dev.AllocateTexture("io", 4, 2)
	require.NoError(t, err)
	defer tex.Release()

	want := []float32{1, 2, 3, 4, 5, 6, 7, 8}
	require.NoError(t, dev.WriteTexture(tex, want))
	assert.ErrorIs(t, dev.WriteTexture(tex, make([]float32, 9)), device.ErrInvalidState)

	got, err := dev.ReadTexture(tex)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
