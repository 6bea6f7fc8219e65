package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-waves/engine/device"
	"github.com/Carmen-Shannon/oxy-waves/engine/fence"
	"github.com/Carmen-Shannon/oxy-waves/engine/frame"
	"github.com/Carmen-Shannon/oxy-waves/engine/profiler"
	"github.com/Carmen-Shannon/oxy-waves/engine/scene"
)

// ErrNoScene is returned by NewEngine when no scene was configured.
var ErrNoScene = errors.New("engine: no scene configured")

// ErrStopped is returned by Frame after Quit or after a fatal error.
var ErrStopped = errors.New("engine: stopped")

// surfaceDevice is implemented by backends whose render target follows the window size.
type surfaceDevice interface {
	ConfigureSurface(width, height int)
}

// Window is the part of a platform window the render loop drives. window.Window
// satisfies it; headless engines have none.
type Window interface {
	// Width returns the client area width in pixels.
	Width() int

	// Height returns the client area height in pixels.
	Height() int

	// SetResizeCallback sets the function called when the window is resized.
	SetResizeCallback(callback func(width, height int))

	// ProcessMessages runs the message loop until the window closes or RequestClose is called.
	ProcessMessages()

	// RequestClose asks the message loop to stop from any goroutine.
	RequestClose()
}

// Stats is a snapshot of the render loop's progress.
type Stats struct {
	// Frames is the number of frames submitted.
	Frames uint64
	// Slot is the frame resource used by the last submitted frame, or -1 before the first.
	Slot int
	// FenceValue is the fence value signalled after the last submitted frame.
	FenceValue uint64
	// Completed is the last fence value reached by the GPU.
	Completed uint64
	// Stalls counts the frames whose slot was still in flight when it came around again.
	Stalls uint64
}

// engine implements the Engine interface.
// Drives one scene through the frame-resource ring on a single render goroutine.
type engine struct {
	dev   device.Device
	sync  fence.Synchronizer
	ring  frame.Ring
	list  device.CommandList
	scene scene.Scene

	frameResources int
	waitTimeout    time.Duration

	wg sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once
	releaseOnce sync.Once

	window Window

	profiler         *profiler.Profiler
	profilingEnabled bool
	telemetry        io.Writer

	updateCallback func(deltaTime float32)

	frameCounter uint64
	totalTime    float32
	lastSlot     int
	lastFence    uint64
	fatal        error

	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped
}

// Engine is the main entry point for the engine.
// It owns the fence synchronizer and the frame resource ring and runs the per-frame
// state machine: advance slot, wait if necessary, simulate, update constants,
// record, submit, present, signal fence.
type Engine interface {
	// Window returns the underlying window, or nil for headless engines.
	//
	// Returns:
	//   - Window: the window instance
	Window() Window

	// Device returns the graphics device the engine renders with.
	Device() device.Device

	// Scene returns the rendered scene.
	Scene() scene.Scene

	// Ring returns the frame resource ring.
	Ring() frame.Ring

	// Synchronizer returns the fence synchronizer.
	Synchronizer() fence.Synchronizer

	// Profiler returns the engine's profiler.
	Profiler() *profiler.Profiler

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// SetUpdateCallback registers the function called at the start of every frame, before
	// the scene simulates. Use this for input processing and camera control.
	//
	// Parameters:
	//   - callback: function to call each frame, receiving the delta time in seconds
	SetUpdateCallback(callback func(deltaTime float32))

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per second.
	// Pass 0 to uncap the render loop (default).
	//
	// Parameters:
	//   - fps: maximum render frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// Frame runs exactly one frame. It only blocks when the frame resource it is about to
	// reuse is still in flight on the GPU. An inactive scene skips the frame entirely.
	//
	// Parameters:
	//   - ctx: bounds the fence wait
	//   - dt: seconds since the previous frame
	//
	// Returns:
	//   - error: ErrStopped, a scene error, or a fatal device error
	Frame(ctx context.Context, dt float32) error

	// Run loops Frame until Quit, ctx cancellation, the window closing or a fatal error,
	// then waits for every submitted frame to complete. With a window, Run must be called
	// from the main goroutine; the message loop runs there and frames on a render goroutine.
	//
	// Parameters:
	//   - ctx: cancels the loop
	//
	// Returns:
	//   - error: the error that stopped the loop, or nil after Quit/cancellation
	Run(ctx context.Context) error

	// Quit signals the render loop to stop.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()

	// Stats returns a snapshot of the render loop's progress.
	Stats() Stats

	// Release drains the GPU and releases the ring, the scene and the synchronizer.
	// The device is owned by the caller.
	Release()
}

var _ Engine = &engine{}

// NewEngine creates the engine, initializes the scene on dev and allocates the frame
// resource ring sized by the scene's layout.
//
// Parameters:
//   - dev: the graphics device (must not be nil)
//   - options: functional options for engine configuration (scene, frame resources, profiling, etc.)
//
// Returns:
//   - Engine: the newly created engine
//   - error: ErrNoScene, or an error creating the synchronizer, scene resources or ring
func NewEngine(dev device.Device, options ...EngineBuilderOption) (Engine, error) {
	if dev == nil {
		panic("engine: NewEngine requires a non-nil Device")
	}
	e := &engine{
		dev:            dev,
		frameResources: frame.DefaultCount,
		quitChannel:    make(chan struct{}),
		wg:             sync.WaitGroup{},
		lastSlot:       -1,
	}
	for _, opt := range options {
		opt(e)
	}
	if e.scene == nil {
		return nil, ErrNoScene
	}

	profOpts := []profiler.ProfilerBuilderOption{}
	if e.telemetry != nil {
		profOpts = append(profOpts, profiler.WithTelemetry(e.telemetry))
	}
	e.profiler = profiler.NewProfiler(profOpts...)

	var syncOpts []fence.SynchronizerBuilderOption
	if e.waitTimeout > 0 {
		syncOpts = append(syncOpts, fence.WithWaitTimeout(e.waitTimeout))
	}
	var err error
	if e.sync, err = fence.New(dev, syncOpts...); err != nil {
		return nil, fmt.Errorf("failed to create fence synchronizer: %w", err)
	}
	if err = e.scene.Init(dev, e.frameResources); err != nil {
		e.sync.Release()
		return nil, fmt.Errorf("failed to initialize scene %s: %w", e.scene.Name(), err)
	}
	if e.ring, err = frame.NewRing(dev, e.sync, e.frameResources, e.scene.Layout()); err != nil {
		e.scene.Release()
		e.sync.Release()
		return nil, fmt.Errorf("failed to create frame resources: %w", err)
	}
	if e.list, err = dev.NewCommandList(e.ring.Slot(0).Allocator()); err != nil {
		e.ring.Release()
		e.scene.Release()
		e.sync.Release()
		return nil, fmt.Errorf("failed to create command list: %w", err)
	}

	if e.window != nil {
		e.scene.Resize(e.window.Width(), e.window.Height())
		e.window.SetResizeCallback(func(width, height int) {
			if s, ok := e.dev.(surfaceDevice); ok {
				s.ConfigureSurface(width, height)
			}
			e.scene.Resize(width, height)
		})
	}

	log.Printf("[Engine] %s: %d frame resources, scene %s", dev.Name(), e.frameResources, e.scene.Name())
	return e, nil
}

func (e *engine) Window() Window                   { return e.window }
func (e *engine) Device() device.Device            { return e.dev }
func (e *engine) Scene() scene.Scene               { return e.scene }
func (e *engine) Ring() frame.Ring                 { return e.ring }
func (e *engine) Synchronizer() fence.Synchronizer { return e.sync }
func (e *engine) Profiler() *profiler.Profiler     { return e.profiler }

func (e *engine) Frame(ctx context.Context, dt float32) error {
	if e.fatal != nil {
		return fmt.Errorf("%w: %w", ErrStopped, e.fatal)
	}
	select {
	case <-e.quitChannel:
		return ErrStopped
	default:
	}
	if !e.scene.Active() {
		return nil
	}
	start := time.Now()

	// Advance to the next frame resource and wait until the GPU is done with it.
	k := e.frameCounter
	res := e.ring.Acquire(k)
	if v := res.FenceValue(); v != 0 && e.sync.Completed() < v {
		waitStart := time.Now()
		if err := e.sync.WaitUntil(ctx, v); err != nil {
			return e.fail(fmt.Errorf("frame %d waiting on fence %d: %w", k, v, err))
		}
		e.profiler.RecordStall(time.Since(waitStart))
	}
	if err := res.ResetAllocator(); err != nil {
		return e.fail(fmt.Errorf("frame %d: %w", k, err))
	}

	e.totalTime += dt
	f := &scene.Frame{Counter: k, DeltaTime: dt, TotalTime: e.totalTime, Ring: e.ring, Resource: res}

	if e.updateCallback != nil {
		e.updateCallback(dt)
	}
	if err := e.scene.Simulate(f); err != nil {
		return e.fail(fmt.Errorf("frame %d simulate: %w", k, err))
	}
	if err := e.scene.UpdateConstants(f); err != nil {
		return e.fail(fmt.Errorf("frame %d update constants: %w", k, err))
	}
	if err := device.Record(e.list, res.Allocator(), func(cl device.CommandList) error {
		return e.scene.Record(cl, f)
	}); err != nil {
		return e.fail(fmt.Errorf("frame %d record: %w", k, err))
	}
	if err := e.dev.Queue().Submit(e.list); err != nil {
		return e.fail(fmt.Errorf("frame %d submit: %w", k, err))
	}
	if err := e.dev.Present(); err != nil {
		return e.fail(fmt.Errorf("frame %d present: %w", k, err))
	}
	v, err := e.sync.Advance()
	if err != nil {
		return e.fail(fmt.Errorf("frame %d signal: %w", k, err))
	}
	res.SetFenceValue(v)

	e.frameCounter++
	e.lastSlot = res.Index()
	e.lastFence = v

	if e.profilingEnabled {
		if _, err := e.profiler.Tick(time.Since(start)); err != nil {
			log.Printf("[Engine] %v", err)
		}
	}
	return nil
}

// fail records err as fatal when it comes from the device. Scene and contract errors
// leave the loop usable.
func (e *engine) fail(err error) error {
	if errors.Is(err, device.ErrDeviceLost) || errors.Is(err, device.ErrOutOfMemory) {
		e.fatal = err
	}
	return err
}

func (e *engine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if e.window == nil {
		return e.handleRender(ctx)
	}

	var renderErr error
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		renderErr = e.handleRender(ctx)
		e.window.RequestClose()
	}()

	e.window.ProcessMessages()
	cancel()
	e.wg.Wait()
	return renderErr
}

// handleRender runs the uncapped (or frame-limited) render loop until ctx is cancelled,
// Quit is called or a frame fails, then drains the GPU.
// Recovers from panics to avoid crashing the process and signals quit on recovery.
func (e *engine) handleRender(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Engine] render loop recovered from panic: %v", r)
			e.signalQuit()
			err = fmt.Errorf("engine: render loop panic: %v", r)
		}
		if drainErr := e.drain(); err == nil {
			err = drainErr
		}
	}()

	lastRender := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.quitChannel:
			return nil
		default:
		}

		now := time.Now()
		dt := float32(now.Sub(lastRender).Seconds())
		lastRender = now

		if !e.scene.Active() {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if err := e.Frame(ctx, dt); err != nil {
			if errors.Is(err, ErrStopped) || errors.Is(err, context.Canceled) {
				return nil
			}
			log.Printf("[Engine] %v", err)
			return err
		}

		// Frame rate limiting
		if e.renderFrameLimit > 0 {
			elapsed := time.Since(lastRender)
			if remaining := e.renderFrameLimit - elapsed; remaining > 0 {
				time.Sleep(remaining)
			}
		}
	}
}

// drain waits until every submitted frame has completed. It is skipped once the
// device is lost since no signal will ever arrive.
func (e *engine) drain() error {
	if e.fatal != nil || e.frameCounter == 0 {
		return nil
	}
	if err := e.sync.Flush(context.Background()); err != nil {
		return fmt.Errorf("draining frames: %w", err)
	}
	log.Printf("[Engine] drained %d frames at fence %d", e.frameCounter, e.sync.Completed())
	return nil
}

// Quit signals all engine goroutines to stop and shuts down the engine.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel to signal all goroutines to exit.
// Uses sync.Once to ensure the channel is only closed once.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
	})
}

func (e *engine) Stats() Stats {
	return Stats{
		Frames:     e.frameCounter,
		Slot:       e.lastSlot,
		FenceValue: e.lastFence,
		Completed:  e.sync.Completed(),
		Stalls:     e.sync.Stalls(),
	}
}

func (e *engine) Release() {
	e.releaseOnce.Do(func() {
		e.signalQuit()
		if err := e.drain(); err != nil {
			log.Printf("[Engine] %v", err)
		}
		e.list.Release()
		e.ring.Release()
		e.scene.Release()
		e.sync.Release()
	})
}

// EnableProfiler enables performance profiling output to the log.
func (e *engine) EnableProfiler() {
	e.profilingEnabled = true
}

// DisableProfiler disables performance profiling output.
func (e *engine) DisableProfiler() {
	e.profilingEnabled = false
}

// SetUpdateCallback registers the function called at the start of each frame.
func (e *engine) SetUpdateCallback(callback func(deltaTime float32)) {
	e.updateCallback = callback
}

// SetRenderFrameLimit sets an optional render frame rate cap.
// Pass 0 to uncap the render loop.
func (e *engine) SetRenderFrameLimit(fps float64) {
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
}
