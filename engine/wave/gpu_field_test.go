package wave

import (
	"context"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-waves/engine/device"
	"github.com/Carmen-Shannon/oxy-waves/engine/device/soft"
	"github.com/Carmen-Shannon/oxy-waves/engine/fence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gpuHarness struct {
	dev   soft.Device
	alloc device.CommandAllocator
	list  device.CommandList
	sync  fence.Synchronizer
}

func newGPUHarness(t *testing.T) *gpuHarness {
	t.Helper()
	dev := soft.NewDevice()
	t.Cleanup(dev.Release)
	alloc, err := dev.NewCommandAllocator()
	require.NoError(t, err)
	list, err := dev.NewCommandList(alloc)
	require.NoError(t, err)
	s, err := fence.New(dev, fence.WithWaitTimeout(5*time.Second))
	require.NoError(t, err)
	return &gpuHarness{dev: dev, alloc: alloc, list: list, sync: s}
}

// run records build into the harness list, submits it and waits for the GPU.
func (h *gpuHarness) run(t *testing.T, build func(cl device.CommandList) error) {
	t.Helper()
	require.NoError(t, h.alloc.Reset())
	require.NoError(t, device.Record(h.list, h.alloc, build))
	require.NoError(t, h.dev.Queue().Submit(h.list))
	require.NoError(t, h.sync.Flush(context.Background()))
}

func TestGPUFieldRejectsPartialTiles(t *testing.T) {
	h := newGPUHarness(t)
	_, err := NewGPUField(h.dev, 20, 16)
	assert.ErrorIs(t, err, ErrTileMismatch)
	_, err = NewGPUField(h.dev, 16, 24)
	assert.ErrorIs(t, err, ErrTileMismatch)
}

func TestGPUFieldMatchesCPUField(t *testing.T) {
	h := newGPUHarness(t)
	gpu, err := NewGPUField(h.dev, 16, 32, dampedOptions...)
	require.NoError(t, err)
	defer gpu.Release()
	cpu, err := NewField(16, 32, dampedOptions...)
	require.NoError(t, err)

	require.NoError(t, cpu.Disturb(4, 9, 1))
	require.NoError(t, cpu.Disturb(11, 20, -0.5))
	h.run(t, func(cl device.CommandList) error {
		if err := gpu.Disturb(cl, 4, 9, 1); err != nil {
			return err
		}
		return gpu.Disturb(cl, 11, 20, -0.5)
	})
	assert.Equal(t, cpu.Heights(Current), h.dev.TextureData(gpu.DisplacementMap()))

	for frame := 0; frame < 12; frame++ {
		require.True(t, cpu.Update(0.03))
		h.run(t, func(cl device.CommandList) error {
			stepped, err := gpu.Update(cl, 0.03)
			require.True(t, stepped)
			return err
		})
	}
	assert.Equal(t, cpu.Heights(Current), h.dev.TextureData(gpu.Texture(Current)))
	assert.Equal(t, cpu.Heights(Previous), h.dev.TextureData(gpu.Texture(Previous)))
}

func TestGPUFieldLeavesCurrentReadable(t *testing.T) {
	h := newGPUHarness(t)
	gpu, err := NewGPUField(h.dev, 16, 16, dampedOptions...)
	require.NoError(t, err)
	defer gpu.Release()

	vb, err := h.dev.AllocateUploadBuffer("waves_vertices", 256, device.UsageVertex)
	require.NoError(t, err)
	ib, err := h.dev.AllocateUploadBuffer("waves_indices", 256, device.UsageIndex)
	require.NoError(t, err)
	draw, err := h.dev.NewGraphicsPipeline(device.GraphicsPipelineDescriptor{Key: "waves", DisplacementMap: true})
	require.NoError(t, err)

	drawWaves := func(cl device.CommandList) {
		cl.BeginRenderPass([4]float32{})
		cl.SetGraphicsPipeline(draw)
		cl.SetVertexBuffer(vb, 0, 32)
		cl.SetIndexBuffer(ib, 0)
		cl.SetGraphicsTexture(gpu.DisplacementMap())
		cl.DrawIndexed(6, 0, 0)
		cl.EndRenderPass()
	}

	for frame := 0; frame < 5; frame++ {
		h.run(t, func(cl device.CommandList) error {
			if err := gpu.Disturb(cl, 8, 8, 0.3); err != nil {
				return err
			}
			if _, err := gpu.Update(cl, 0.03); err != nil {
				return err
			}
			drawWaves(cl)
			return nil
		})
		assert.Equal(t, device.StateShaderRead, gpu.State(Current))
		assert.Equal(t, device.StateShaderRead, h.dev.TextureState(gpu.DisplacementMap()))
		assert.Equal(t, device.StateUnorderedAccess, h.dev.TextureState(gpu.Texture(Previous)))
	}

	stats := h.dev.Stats()
	assert.Equal(t, uint64(10), stats.Dispatches)
	assert.Equal(t, uint64(5), stats.Draws)
}

func TestGPUFieldUpdateBelowStepRecordsNothing(t *testing.T) {
	h := newGPUHarness(t)
	gpu, err := NewGPUField(h.dev, 16, 16, dampedOptions...)
	require.NoError(t, err)
	defer gpu.Release()

	h.run(t, func(cl device.CommandList) error {
		stepped, err := gpu.Update(cl, 0.01)
		assert.False(t, stepped)
		return err
	})
	assert.Zero(t, h.dev.Stats().Dispatches)
	assert.Equal(t, device.StateCommon, h.dev.TextureState(gpu.DisplacementMap()))
}

func TestGPUFieldDisturbOutOfBounds(t *testing.T) {
	h := newGPUHarness(t)
	gpu, err := NewGPUField(h.dev, 16, 16)
	require.NoError(t, err)
	defer gpu.Release()

	h.run(t, func(cl device.CommandList) error {
		assert.ErrorIs(t, gpu.Disturb(cl, 1, 8, 1), ErrDisturbOutOfBounds)
		assert.ErrorIs(t, gpu.Disturb(cl, 8, 14, 1), ErrDisturbOutOfBounds)
		return nil
	})
	assert.Zero(t, h.dev.Stats().Dispatches)
}

func TestGPUFieldMakeReadable(t *testing.T) {
	h := newGPUHarness(t)
	gpu, err := NewGPUField(h.dev, 16, 16)
	require.NoError(t, err)
	defer gpu.Release()

	h.run(t, func(cl device.CommandList) error {
		gpu.MakeReadable(cl)
		gpu.MakeReadable(cl)
		return nil
	})
	assert.Equal(t, device.StateShaderRead, h.dev.TextureState(gpu.DisplacementMap()))
	assert.Equal(t, device.StateCommon, h.dev.TextureState(gpu.Texture(Next)))
}
