package scene

import (
	"context"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-waves/common"
	"github.com/Carmen-Shannon/oxy-waves/engine/camera"
	"github.com/Carmen-Shannon/oxy-waves/engine/device"
	"github.com/Carmen-Shannon/oxy-waves/engine/device/soft"
	"github.com/Carmen-Shannon/oxy-waves/engine/fence"
	"github.com/Carmen-Shannon/oxy-waves/engine/frame"
	"github.com/Carmen-Shannon/oxy-waves/engine/wave"
	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScene(options ...SceneBuilderOption) Scene {
	cam := camera.NewCamera(camera.WithController(camera.NewCameraController()))
	base := []SceneBuilderOption{
		WithWaveGrid(32, 32),
		WithLand(40, 40, 8, 8),
		WithDisturbOptions(wave.WithInterval(0.05), wave.WithSeed(7)),
	}
	return NewScene("waves", cam, append(base, options...)...)
}

func newTestDevice(t *testing.T, options ...soft.DeviceBuilderOption) soft.Device {
	t.Helper()
	dev := soft.NewDevice(options...)
	t.Cleanup(dev.Release)
	return dev
}

// runFrames drives s through n frames the way the render loop does and drains the GPU.
func runFrames(t *testing.T, dev soft.Device, s Scene, n int, dt float32) frame.Ring {
	t.Helper()
	sync, err := fence.New(dev, fence.WithWaitTimeout(5*time.Second))
	require.NoError(t, err)
	require.NoError(t, s.Init(dev, frame.DefaultCount))
	ring, err := frame.NewRing(dev, sync, frame.DefaultCount, s.Layout())
	require.NoError(t, err)
	list, err := dev.NewCommandList(ring.Slot(0).Allocator())
	require.NoError(t, err)
	t.Cleanup(func() {
		ring.Release()
		s.Release()
	})

	var total float32
	for k := uint64(0); k < uint64(n); k++ {
		res := ring.Acquire(k)
		if res.FenceValue() != 0 {
			require.NoError(t, sync.WaitUntil(context.Background(), res.FenceValue()))
		}
		require.NoError(t, res.ResetAllocator())
		total += dt
		f := &Frame{Counter: k, DeltaTime: dt, TotalTime: total, Ring: ring, Resource: res}

		require.NoError(t, s.Simulate(f))
		require.NoError(t, s.UpdateConstants(f))
		require.NoError(t, device.Record(list, res.Allocator(), func(cl device.CommandList) error {
			return s.Record(cl, f)
		}))
		require.NoError(t, dev.Queue().Submit(list))
		require.NoError(t, dev.Present())
		v, err := sync.Advance()
		require.NoError(t, err)
		res.SetFenceValue(v)
	}
	require.NoError(t, sync.Flush(context.Background()))
	return ring
}

func TestLayoutDependsOnVariant(t *testing.T) {
	cpu := newTestScene()
	assert.Equal(t, frame.Layout{PassCount: 1, ObjectCount: 2, MaterialCount: 2, WaveVertexCount: 32 * 32}, cpu.Layout())

	gpu := newTestScene(WithVariant(VariantGPU))
	assert.Equal(t, frame.Layout{PassCount: 1, ObjectCount: 2, MaterialCount: 2}, gpu.Layout())
	assert.Equal(t, "gpu", gpu.Variant().String())
}

func TestFrameMethodsNeedInit(t *testing.T) {
	s := newTestScene()
	f := &Frame{}
	assert.ErrorIs(t, s.Simulate(f), ErrNotInitialized)
	assert.ErrorIs(t, s.UpdateConstants(f), ErrNotInitialized)
	assert.ErrorIs(t, s.Record(nil, f), ErrNotInitialized)
}

func TestGPUVariantRejectsUntiledGrid(t *testing.T) {
	dev := newTestDevice(t)

	s := newTestScene(WithVariant(VariantGPU), WithWaveGrid(30, 32))
	err := s.Init(dev, frame.DefaultCount)
	assert.ErrorIs(t, err, wave.ErrTileMismatch)
}

func TestCPUVariantRendersWithoutHazards(t *testing.T) {
	dev := newTestDevice(t, soft.WithLatency(2*time.Millisecond))

	s := newTestScene()
	ring := runFrames(t, dev, s, 12, 0.05)

	stats := dev.Stats()
	assert.Equal(t, uint64(24), stats.Draws)
	assert.Equal(t, uint64(12), stats.Presents)
	assert.Zero(t, stats.Hazards)
	assert.Zero(t, stats.Dispatches)

	// Frame 11 used slot 2; its pass constants carry that frame's clock.
	mem, err := ring.Slot(2).PassConstants().Buffer().Map()
	require.NoError(t, err)
	pc := common.BytesToSlice[common.PassConstants](mem)[0]
	assert.InDelta(t, 0.6, pc.TotalTime, 1e-5)
	assert.Equal(t, [2]float32{1280, 720}, pc.RenderTargetSize)
	assert.NotZero(t, pc.Lights[0].Strength)

	field := s.(*scene).field
	mem, err = ring.Slot(2).WaveVertices().Buffer().Map()
	require.NoError(t, err)
	vs := common.BytesToSlice[common.Vertex](mem)
	require.Len(t, vs, field.VertexCount())
	for i := range vs {
		require.Equal(t, field.Position(i), vs[i].Pos)
	}
}

func TestObjectConstantsReachEverySlot(t *testing.T) {
	dev := newTestDevice(t)

	s := newTestScene()
	ring := runFrames(t, dev, s, 3, 0.01)

	for slot := 0; slot < ring.Len(); slot++ {
		mem, err := ring.Slot(slot).ObjectConstants().Buffer().Map()
		require.NoError(t, err)
		stride := int(ring.Slot(slot).ObjectConstants().Stride())
		waves := common.BytesToSlice[common.ObjectConstants](mem[stride:])[0]
		assert.Equal(t, [2]float32{1.0 / 32, 1.0 / 32}, waves.DisplacementMapTexelSize)
		assert.Equal(t, float32(5), waves.TexTransform[0])
	}
}

func TestWaterMaterialScrolls(t *testing.T) {
	dev := newTestDevice(t)

	s := newTestScene()
	runFrames(t, dev, s, 10, 0.1)

	water := s.Materials()[1]
	assert.Equal(t, "water", water.Name())
	m := water.MatTransform()
	assert.InDelta(t, 0.1, m[12], 1e-5)
	assert.InDelta(t, 0.02, m[13], 1e-5)
	assert.Equal(t, frame.DefaultCount, water.NumFramesDirty(9))
}

func TestGPUVariantDisplacesGrid(t *testing.T) {
	dev := newTestDevice(t, soft.WithLatency(time.Millisecond))

	s := newTestScene(WithVariant(VariantGPU), WithWireframe(true))
	runFrames(t, dev, s, 20, 0.05)

	stats := dev.Stats()
	assert.Equal(t, uint64(40), stats.Draws)
	assert.NotZero(t, stats.Dispatches)
	assert.Zero(t, stats.Hazards)

	g := s.(*scene).gpuField
	assert.Equal(t, device.StateShaderRead, dev.TextureState(g.DisplacementMap()))
	var peak float32
	for _, h := range dev.TextureData(g.DisplacementMap()) {
		peak = math32.Max(peak, math32.Abs(h))
	}
	assert.Greater(t, peak, float32(0))
}

func TestRotateSunClampsPolarAngle(t *testing.T) {
	s := newTestScene()
	sun := s.(*scene).lights[0]
	before := sun.Direction()

	s.RotateSun(0.5, 0)
	assert.NotEqual(t, before, sun.Direction())

	s.RotateSun(0, 10)
	assert.Equal(t, float32(math32.Pi/2), s.(*scene).sunPhi)
	assert.InDelta(t, 0, sun.Direction()[1], 1e-6)

	s.RotateSun(0, -10)
	assert.Equal(t, float32(0.1), s.(*scene).sunPhi)
}

func TestRotateSunWhileRendering(t *testing.T) {
	dev := newTestDevice(t)
	s := newTestScene()
	sun := s.(*scene).lights[0]
	before := sun.Direction()

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		for {
			select {
			case <-done:
				return
			default:
				s.RotateSun(0.01, 0.001)
				s.Resize(640, 480)
			}
		}
	}()
	runFrames(t, dev, s, 30, 0.02)
	close(done)
	<-stopped

	assert.NotEqual(t, before, sun.Direction())
}

func TestResizeUpdatesAspect(t *testing.T) {
	s := newTestScene()
	s.Resize(800, 400)
	assert.Equal(t, float32(2), s.Camera().Aspect())

	s.Resize(0, 10)
	assert.Equal(t, float32(2), s.Camera().Aspect())
}

func TestManualDisturbReachesField(t *testing.T) {
	dev := newTestDevice(t)

	s := newTestScene(WithDisturbOptions(wave.WithInterval(1000)))
	err := s.Disturb(1, 10, 0.5)
	require.ErrorIs(t, err, wave.ErrDisturbOutOfBounds)
	require.NoError(t, s.Disturb(10, 12, 0.5))

	runFrames(t, dev, s, 1, 0.001)

	rows, cols := s.Grid()
	assert.Equal(t, 32, rows)
	field := s.(*scene).field
	assert.Equal(t, 32, cols)
	assert.InDelta(t, 0.5, field.Height(10, 12), 1e-6)
	assert.InDelta(t, 0.125, field.Height(10, 13), 1e-6)
	assert.Empty(t, s.(*scene).manual)
}

func TestWireframeToggle(t *testing.T) {
	s := newTestScene()
	assert.False(t, s.Wireframe())
	s.SetWireframe(true)
	assert.True(t, s.Wireframe())
}

func TestExpandedShadersDeclareConstantBuffers(t *testing.T) {
	vs, displacedVS, fs, cbs, err := expandShaders()
	require.NoError(t, err)
	assert.Equal(t, 3, cbs)
	for _, src := range []string{vs, displacedVS, fs} {
		assert.Contains(t, src, "@group(2) @binding(0) var<uniform> cbMaterial: MaterialConstants;")
		assert.NotContains(t, src, "@waves:")
	}
	assert.Contains(t, displacedVS, "@group(3) @binding(0) var<storage, read> heights")
}
