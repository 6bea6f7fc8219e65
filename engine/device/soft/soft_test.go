package soft

import (
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-waves/engine/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fill writes the first root constant, reinterpreted as a float, into every texel.
func fill(inv device.KernelInvocation) error {
	v := float32(inv.Constants[0])
	for i := range inv.Textures[0].Data {
		inv.Textures[0].Data[i] = v
	}
	return nil
}

func newFill(t *testing.T, d Device) device.Pipeline {
	t.Helper()
	p, err := d.NewComputePipeline(device.ComputePipelineDescriptor{
		Key:           "fill",
		Kernel:        fill,
		Textures:      []device.Access{device.AccessReadWrite},
		RootConstants: 1,
	})
	require.NoError(t, err)
	return p
}

func wait(t *testing.T, f device.Fence, value uint64) error {
	t.Helper()
	ch := make(chan error, 1)
	require.NoError(t, f.SetEventOnCompletion(value, ch))
	select {
	case err := <-ch:
		return err
	case <-time.After(5 * time.Second):
		t.Fatalf("fence never reached %d", value)
		return nil
	}
}

func TestDispatchRunsKernelAndSignals(t *testing.T) {
	d := NewDevice()
	defer d.Release()

	tex, err := d.AllocateTexture("target", 4, 4)
	require.NoError(t, err)
	alloc, err := d.NewCommandAllocator()
	require.NoError(t, err)
	list, err := d.NewCommandList(alloc)
	require.NoError(t, err)
	f, err := d.NewFence(0)
	require.NoError(t, err)
	p := newFill(t, d)

	err = device.Record(list, alloc, func(cl device.CommandList) error {
		cl.ResourceBarrier(tex, device.StateCommon, device.StateUnorderedAccess)
		cl.SetComputePipeline(p)
		cl.SetComputeRootConstants([]uint32{7})
		cl.SetComputeTextures(tex)
		cl.Dispatch(1, 1, 1)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, d.Queue().Submit(list))
	require.NoError(t, d.Queue().Signal(f, 1))
	require.NoError(t, wait(t, f, 1))

	assert.Equal(t, uint64(1), f.CompletedValue())
	for _, v := range d.TextureData(tex) {
		assert.Equal(t, float32(7), v)
	}
	assert.Equal(t, device.StateUnorderedAccess, d.TextureState(tex))

	s := d.Stats()
	assert.Equal(t, uint64(1), s.Submissions)
	assert.Equal(t, uint64(1), s.Dispatches)
	assert.Equal(t, uint64(1), s.Signals)
	assert.NoError(t, alloc.Reset())
}

func TestSubmitRejectsWrongState(t *testing.T) {
	d := NewDevice()
	defer d.Release()

	tex, err := d.AllocateTexture("target", 2, 2)
	require.NoError(t, err)
	alloc, _ := d.NewCommandAllocator()
	list, _ := d.NewCommandList(alloc)
	p := newFill(t, d)

	// Dispatch without the transition to unordered access.
	require.NoError(t, device.Record(list, alloc, func(cl device.CommandList) error {
		cl.SetComputePipeline(p)
		cl.SetComputeRootConstants([]uint32{1})
		cl.SetComputeTextures(tex)
		cl.Dispatch(1, 1, 1)
		return nil
	}))
	assert.ErrorIs(t, d.Queue().Submit(list), device.ErrInvalidState)

	// Barrier whose "from" state does not match.
	require.NoError(t, device.Record(list, alloc, func(cl device.CommandList) error {
		cl.ResourceBarrier(tex, device.StateShaderRead, device.StateUnorderedAccess)
		return nil
	}))
	assert.ErrorIs(t, d.Queue().Submit(list), device.ErrInvalidState)
	assert.Equal(t, device.StateCommon, d.TextureState(tex))
}

func TestBarriersCarryAcrossListsInOneSubmit(t *testing.T) {
	d := NewDevice()
	defer d.Release()

	tex, _ := d.AllocateTexture("target", 2, 2)
	alloc, _ := d.NewCommandAllocator()
	first, _ := d.NewCommandList(alloc)
	second, _ := d.NewCommandList(alloc)

	require.NoError(t, device.Record(first, alloc, func(cl device.CommandList) error {
		cl.ResourceBarrier(tex, device.StateCommon, device.StateUnorderedAccess)
		return nil
	}))
	require.NoError(t, device.Record(second, alloc, func(cl device.CommandList) error {
		cl.ResourceBarrier(tex, device.StateUnorderedAccess, device.StateShaderRead)
		return nil
	}))
	require.NoError(t, d.Queue().Submit(first, second))
	assert.Equal(t, device.StateShaderRead, d.TextureState(tex))
}

func TestSubmitRequiresClosedList(t *testing.T) {
	d := NewDevice()
	defer d.Release()

	alloc, _ := d.NewCommandAllocator()
	list, _ := d.NewCommandList(alloc)
	require.NoError(t, list.Reset(alloc))
	assert.ErrorIs(t, d.Queue().Submit(list), device.ErrNotRecording)
	require.NoError(t, list.Close())
	assert.ErrorIs(t, list.Close(), device.ErrNotRecording)
}

func TestAllocatorResetWhileInFlight(t *testing.T) {
	d := NewDevice(WithLatency(50 * time.Millisecond))
	defer d.Release()

	alloc, _ := d.NewCommandAllocator()
	list, _ := d.NewCommandList(alloc)
	f, _ := d.NewFence(0)
	require.NoError(t, device.Record(list, alloc, func(device.CommandList) error { return nil }))
	require.NoError(t, d.Queue().Submit(list))
	require.NoError(t, d.Queue().Signal(f, 1))

	assert.ErrorIs(t, alloc.Reset(), device.ErrInvalidState)
	require.NoError(t, wait(t, f, 1))
	assert.NoError(t, alloc.Reset())
}

func TestDrawNeedsDisplacementMap(t *testing.T) {
	d := NewDevice()
	defer d.Release()

	vb, _ := d.AllocateUploadBuffer("vertices", 64, device.UsageVertex)
	ib, _ := d.AllocateUploadBuffer("indices", 64, device.UsageIndex)
	gp, _ := d.NewGraphicsPipeline(device.GraphicsPipelineDescriptor{Key: "waves", DisplacementMap: true})
	alloc, _ := d.NewCommandAllocator()
	list, _ := d.NewCommandList(alloc)

	err := device.Record(list, alloc, func(cl device.CommandList) error {
		cl.BeginRenderPass([4]float32{})
		cl.SetGraphicsPipeline(gp)
		cl.SetVertexBuffer(vb, 0, 32)
		cl.SetIndexBuffer(ib, 0)
		cl.DrawIndexed(3, 0, 0)
		cl.EndRenderPass()
		return nil
	})
	assert.Error(t, err)
}

func TestGPUBufferIsNotMappable(t *testing.T) {
	d := NewDevice()
	defer d.Release()

	b, err := d.AllocateGPUBuffer("storage", 16, device.UsageStorage)
	require.NoError(t, err)
	_, err = b.Map()
	assert.ErrorIs(t, err, device.ErrNotMappable)

	rb, err := d.AllocateGPUBuffer("readback", 16, device.UsageReadback)
	require.NoError(t, err)
	mem, err := rb.Map()
	require.NoError(t, err)
	assert.Len(t, mem, 16)
}

func TestLoseWakesWaiters(t *testing.T) {
	d := NewDevice()
	defer d.Release()

	f, _ := d.NewFence(0)
	ch := make(chan error, 1)
	require.NoError(t, f.SetEventOnCompletion(5, ch))
	d.Lose()

	select {
	case err := <-ch:
		assert.ErrorIs(t, err, device.ErrDeviceLost)
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken")
	}
	assert.ErrorIs(t, d.Queue().Signal(f, 1), device.ErrDeviceLost)
	assert.ErrorIs(t, f.SetEventOnCompletion(6, make(chan error, 1)), device.ErrDeviceLost)
}

func TestFenceReachedValueNotifiesImmediately(t *testing.T) {
	d := NewDevice()
	defer d.Release()

	f, _ := d.NewFence(3)
	ch := make(chan error, 1)
	require.NoError(t, f.SetEventOnCompletion(2, ch))
	select {
	case err := <-ch:
		assert.NoError(t, err)
	default:
		t.Fatal("expected an immediate notification")
	}
}
