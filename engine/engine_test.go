package engine

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-waves/engine/camera"
	"github.com/Carmen-Shannon/oxy-waves/engine/device"
	"github.com/Carmen-Shannon/oxy-waves/engine/device/soft"
	"github.com/Carmen-Shannon/oxy-waves/engine/scene"
	"github.com/Carmen-Shannon/oxy-waves/engine/wave"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestDevice releases the device after every engine cleanup registered later.
func newTestDevice(t *testing.T, options ...soft.DeviceBuilderOption) soft.Device {
	t.Helper()
	dev := soft.NewDevice(options...)
	t.Cleanup(dev.Release)
	return dev
}

func newTestEngine(t *testing.T, dev soft.Device, variant scene.Variant, options ...EngineBuilderOption) Engine {
	t.Helper()
	s := scene.NewScene("waves", camera.NewCamera(camera.WithController(camera.NewCameraController())),
		scene.WithVariant(variant),
		scene.WithWaveGrid(32, 32),
		scene.WithLand(40, 40, 8, 8),
		scene.WithDisturbOptions(wave.WithInterval(0.05), wave.WithSeed(3)),
	)
	e, err := NewEngine(dev, append([]EngineBuilderOption{WithScene(s), WithWaitTimeout(5 * time.Second)}, options...)...)
	require.NoError(t, err)
	t.Cleanup(e.Release)
	return e
}

func TestNewEngineNeedsScene(t *testing.T) {
	dev := newTestDevice(t)

	_, err := NewEngine(dev)
	assert.ErrorIs(t, err, ErrNoScene)
}

// The CPU runs ahead of a slow GPU by at most N-1 frames and never rewrites an
// upload region a submitted frame still reads.
func TestFrameBoundsFramesInFlight(t *testing.T) {
	for _, variant := range []scene.Variant{scene.VariantCPU, scene.VariantGPU} {
		t.Run(variant.String(), func(t *testing.T) {
			dev := newTestDevice(t, soft.WithLatency(3*time.Millisecond))
			e := newTestEngine(t, dev, variant)

			sync := e.Synchronizer()
			maxAhead := uint64(0)
			e.SetUpdateCallback(func(float32) {
				maxAhead = max(maxAhead, sync.Value()-sync.Completed())
			})

			ctx := context.Background()
			for i := 0; i < 30; i++ {
				require.NoError(t, e.Frame(ctx, 1.0/60))
			}

			stats := e.Stats()
			assert.Equal(t, uint64(30), stats.Frames)
			assert.Equal(t, 2, stats.Slot)
			assert.Equal(t, uint64(30), stats.FenceValue)
			assert.NotZero(t, stats.Stalls)
			assert.LessOrEqual(t, maxAhead, uint64(e.Ring().Len()-1))

			require.NoError(t, sync.Flush(ctx))
			ds := dev.Stats()
			assert.Zero(t, ds.Hazards)
			assert.Equal(t, uint64(60), ds.Draws)
			assert.Equal(t, uint64(30), ds.Presents)
		})
	}
}

func TestSingleFrameResourceSerializes(t *testing.T) {
	dev := newTestDevice(t, soft.WithLatency(time.Millisecond))
	e := newTestEngine(t, dev, scene.VariantCPU, WithFrameResources(1))

	sync := e.Synchronizer()
	e.SetUpdateCallback(func(float32) {
		assert.Equal(t, sync.Value(), sync.Completed())
	})
	for i := 0; i < 5; i++ {
		require.NoError(t, e.Frame(context.Background(), 0.01))
	}
	assert.Equal(t, 0, e.Stats().Slot)
}

func TestRunDrainsOnQuit(t *testing.T) {
	dev := newTestDevice(t, soft.WithLatency(2*time.Millisecond))
	e := newTestEngine(t, dev, scene.VariantGPU)

	frames := 0
	e.SetUpdateCallback(func(float32) {
		frames++
		if frames == 12 {
			e.Quit()
		}
	})
	require.NoError(t, e.Run(context.Background()))

	sync := e.Synchronizer()
	assert.Equal(t, sync.Value(), sync.Completed())
	assert.Equal(t, uint64(12), e.Stats().Frames)
	assert.ErrorIs(t, e.Frame(context.Background(), 0.01), ErrStopped)
}

type fakeWindow struct {
	width, height int
	onResize      func(width, height int)
	closeOnce     sync.Once
	closed        chan struct{}
}

func newFakeWindow(width, height int) *fakeWindow {
	return &fakeWindow{width: width, height: height, closed: make(chan struct{})}
}

func (w *fakeWindow) Width() int  { return w.width }
func (w *fakeWindow) Height() int { return w.height }

func (w *fakeWindow) SetResizeCallback(callback func(width, height int)) { w.onResize = callback }

func (w *fakeWindow) ProcessMessages() { <-w.closed }

func (w *fakeWindow) RequestClose() { w.closeOnce.Do(func() { close(w.closed) }) }

func TestWindowedRun(t *testing.T) {
	dev := newTestDevice(t, soft.WithLatency(time.Millisecond))
	win := newFakeWindow(800, 400)
	e := newTestEngine(t, dev, scene.VariantCPU, WithWindow(win))

	assert.Same(t, win, e.Window())
	assert.InDelta(t, 2.0, e.Scene().Camera().Aspect(), 1e-6)

	require.NotNil(t, win.onResize)
	win.onResize(300, 600)
	assert.InDelta(t, 0.5, e.Scene().Camera().Aspect(), 1e-6)

	e.SetUpdateCallback(func(float32) {
		if e.Stats().Frames == 8 {
			e.Quit()
		}
	})
	require.NoError(t, e.Run(context.Background()))

	select {
	case <-win.closed:
	default:
		t.Fatal("render loop returned without closing the window")
	}
	assert.Equal(t, e.Synchronizer().Value(), e.Synchronizer().Completed())
}

func TestRunStopsOnCancel(t *testing.T) {
	dev := newTestDevice(t)
	e := newTestEngine(t, dev, scene.VariantCPU)

	ctx, cancel := context.WithCancel(context.Background())
	e.SetUpdateCallback(func(float32) {
		if e.Stats().Frames == 5 {
			cancel()
		}
	})
	require.NoError(t, e.Run(ctx))
	assert.GreaterOrEqual(t, e.Stats().Frames, uint64(5))
	assert.Equal(t, e.Synchronizer().Value(), e.Synchronizer().Completed())
}

func TestDeviceLossIsFatal(t *testing.T) {
	dev := newTestDevice(t)
	e := newTestEngine(t, dev, scene.VariantCPU)

	require.NoError(t, e.Frame(context.Background(), 0.01))
	dev.Lose()

	err := e.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, device.ErrDeviceLost)

	err = e.Frame(context.Background(), 0.01)
	assert.ErrorIs(t, err, ErrStopped)
	assert.ErrorIs(t, err, device.ErrDeviceLost)
}

func TestInactiveSceneSkipsFrames(t *testing.T) {
	dev := newTestDevice(t)
	e := newTestEngine(t, dev, scene.VariantCPU)

	e.Scene().SetActive(false)
	require.NoError(t, e.Frame(context.Background(), 0.01))
	assert.Zero(t, e.Stats().Frames)
	assert.Equal(t, -1, e.Stats().Slot)
}

func TestTelemetryRows(t *testing.T) {
	dev := newTestDevice(t)
	var buf bytes.Buffer
	e := newTestEngine(t, dev, scene.VariantCPU, WithTelemetry(&buf), WithProfiling(true))

	e.Profiler().RecordStall(time.Millisecond)
	require.NoError(t, e.Frame(context.Background(), 0.01))
	time.Sleep(1100 * time.Millisecond)
	require.NoError(t, e.Frame(context.Background(), 0.01))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "frame,frames,fps"))
	assert.Equal(t, 2, strings.Count(out, "\n"))
}
