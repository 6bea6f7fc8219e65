package frame

import (
	"context"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-waves/common"
	"github.com/Carmen-Shannon/oxy-waves/engine/device"
	"github.com/Carmen-Shannon/oxy-waves/engine/device/soft"
	"github.com/Carmen-Shannon/oxy-waves/engine/fence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLayout = Layout{PassCount: 1, ObjectCount: 4, MaterialCount: 2, WaveVertexCount: 16}

func newTestRing(t *testing.T, dev soft.Device) (Ring, fence.Synchronizer) {
	t.Helper()
	s, err := fence.New(dev, fence.WithWaitTimeout(5*time.Second))
	require.NoError(t, err)
	r, err := NewRing(dev, s, DefaultCount, testLayout)
	require.NoError(t, err)
	t.Cleanup(r.Release)
	return r, s
}

func TestAcquireIsCircular(t *testing.T) {
	dev := soft.NewDevice()
	defer dev.Release()
	r, _ := newTestRing(t, dev)

	assert.Equal(t, 3, r.Len())
	for k := uint64(0); k < 10; k++ {
		assert.Equal(t, int(k%3), r.Acquire(k).Index())
	}
	assert.Same(t, r.Acquire(1), r.Acquire(4))
}

func TestConstantBuffersAreAligned(t *testing.T) {
	dev := soft.NewDevice()
	defer dev.Release()
	r, _ := newTestRing(t, dev)

	res := r.Slot(0)
	assert.Equal(t, uint64(256), res.ObjectConstants().Stride())
	assert.Equal(t, uint64(768), res.PassConstants().Stride())
	assert.Equal(t, uint64(1024), res.ObjectConstants().Buffer().Size())
	assert.Equal(t, uint64(32), res.WaveVertices().Stride())
	assert.Equal(t, uint64(592), res.PassConstants().ElementSize())
	assert.Equal(t, uint64(144), res.ObjectConstants().ElementSize())
	assert.Equal(t, uint64(16*32), res.WaveVertices().Buffer().Size())
}

func TestCopyConstantsWritesAtOffset(t *testing.T) {
	dev := soft.NewDevice()
	defer dev.Release()
	r, _ := newTestRing(t, dev)

	obj := common.ObjectConstants{World: common.IdentityMatrix(), TexTransform: common.IdentityMatrix()}
	obj.World[12] = 5
	require.NoError(t, CopyConstants(r, 1, KindObject, 2, &obj))

	mem, err := r.Slot(1).ObjectConstants().Buffer().Map()
	require.NoError(t, err)
	got := common.BytesToSlice[float32](mem[512 : 512+128])
	assert.Equal(t, float32(5), got[12])
	assert.Equal(t, float32(1), got[0])

	mat := common.MaterialConstants{Roughness: 0.125}
	materials := r.Slot(1).MaterialConstants()
	require.NoError(t, materials.CopyData(1, &mat))
	mem, err = materials.Buffer().Map()
	require.NoError(t, err)
	assert.Equal(t, float32(0.125), common.BytesToSlice[common.MaterialConstants](mem[materials.Offset(1):])[0].Roughness)
	assert.ErrorIs(t, materials.CopyData(materials.Len(), &mat), ErrIndexOutOfRange)

	assert.ErrorIs(t, CopyConstants(r, 1, KindObject, 4, &obj), ErrIndexOutOfRange)
	assert.ErrorIs(t, CopyConstants(r, 3, KindObject, 0, &obj), ErrIndexOutOfRange)
	assert.ErrorIs(t, r.CopyConstants(0, KindMaterial, 0, make([]byte, 97)), ErrIndexOutOfRange)
	assert.ErrorIs(t, r.CopyVertices(0, make([]common.Vertex, 17)), ErrIndexOutOfRange)
}

func TestInFlightSlotRejectsWrites(t *testing.T) {
	dev := soft.NewDevice(soft.WithLatency(100 * time.Millisecond))
	defer dev.Release()
	r, s := newTestRing(t, dev)

	res := r.Acquire(0)
	list, err := dev.NewCommandList(res.Allocator())
	require.NoError(t, err)
	require.NoError(t, device.Record(list, res.Allocator(), func(device.CommandList) error { return nil }))
	require.NoError(t, dev.Queue().Submit(list))
	v, err := s.Advance()
	require.NoError(t, err)
	res.SetFenceValue(v)

	assert.False(t, res.Free())
	pass := common.PassConstants{TotalTime: 1}
	assert.ErrorIs(t, CopyConstants(r, 0, KindPass, 0, &pass), ErrFrameInFlight)
	assert.ErrorIs(t, r.CopyVertices(0, make([]common.Vertex, 4)), ErrFrameInFlight)
	assert.ErrorIs(t, res.ResetAllocator(), ErrFrameInFlight)

	// Other slots are unaffected.
	assert.NoError(t, CopyConstants(r, 1, KindPass, 0, &pass))

	require.NoError(t, s.WaitUntil(context.Background(), v))
	assert.True(t, res.Free())
	assert.NoError(t, CopyConstants(r, 0, KindPass, 0, &pass))
	assert.NoError(t, res.ResetAllocator())
}

// Drives the ring the way the render loop does against a slow GPU and checks that
// no upload region was rewritten while a submitted list still referenced it.
func TestWaitBeforeReuseAvoidsHazards(t *testing.T) {
	dev := soft.NewDevice(soft.WithLatency(5 * time.Millisecond))
	defer dev.Release()
	r, s := newTestRing(t, dev)

	pipe, err := dev.NewGraphicsPipeline(device.GraphicsPipelineDescriptor{Key: "opaque", ConstantBuffers: 2})
	require.NoError(t, err)
	ib, err := dev.AllocateGPUBuffer("indices", 64, device.UsageIndex)
	require.NoError(t, err)
	list, err := dev.NewCommandList(r.Slot(0).Allocator())
	require.NoError(t, err)

	vertices := make([]common.Vertex, testLayout.WaveVertexCount)
	for k := uint64(0); k < 20; k++ {
		res := r.Acquire(k)
		if res.FenceValue() != 0 {
			require.NoError(t, s.WaitUntil(context.Background(), res.FenceValue()))
		}
		require.NoError(t, res.ResetAllocator())

		pass := common.PassConstants{TotalTime: float32(k)}
		require.NoError(t, CopyConstants(r, res.Index(), KindPass, 0, &pass))
		vertices[0].Pos[1] = float32(k)
		require.NoError(t, r.CopyVertices(res.Index(), vertices))

		require.NoError(t, device.Record(list, res.Allocator(), func(cl device.CommandList) error {
			cl.BeginRenderPass([4]float32{})
			cl.SetGraphicsPipeline(pipe)
			cl.SetConstantBuffer(0, res.PassConstants().Buffer(), 0)
			cl.SetVertexBuffer(res.WaveVertices().Buffer(), 0, res.WaveVertices().Stride())
			cl.SetIndexBuffer(ib, 0)
			cl.DrawIndexed(6, 0, 0)
			cl.EndRenderPass()
			return nil
		}))
		require.NoError(t, dev.Queue().Submit(list))
		v, err := s.Advance()
		require.NoError(t, err)
		res.SetFenceValue(v)
	}
	require.NoError(t, s.Flush(context.Background()))

	stats := dev.Stats()
	assert.Equal(t, uint64(20), stats.Draws)
	assert.Zero(t, stats.Hazards)
	assert.NotZero(t, s.Stalls())
}

func TestNewRingValidatesLayout(t *testing.T) {
	dev := soft.NewDevice()
	defer dev.Release()
	s, err := fence.New(dev)
	require.NoError(t, err)

	_, err = NewRing(dev, s, 0, testLayout)
	assert.ErrorIs(t, err, ErrInvalidLayout)
	_, err = NewRing(dev, s, 3, Layout{})
	assert.ErrorIs(t, err, ErrInvalidLayout)

	r, err := NewRing(dev, s, 2, Layout{PassCount: 1})
	require.NoError(t, err)
	defer r.Release()
	assert.Nil(t, r.Slot(0).WaveVertices())
	assert.ErrorIs(t, r.CopyVertices(0, nil), ErrIndexOutOfRange)
}
