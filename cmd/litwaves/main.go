// Command litwaves renders the lit hills and waves sample: a terrain grid, a wave
// surface simulated on the CPU or in compute shaders, and a movable sun.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/Carmen-Shannon/oxy-waves/common"
	"github.com/Carmen-Shannon/oxy-waves/config"
	"github.com/Carmen-Shannon/oxy-waves/engine"
	"github.com/Carmen-Shannon/oxy-waves/engine/camera"
	"github.com/Carmen-Shannon/oxy-waves/engine/device"
	"github.com/Carmen-Shannon/oxy-waves/engine/device/soft"
	"github.com/Carmen-Shannon/oxy-waves/engine/device/webgpu"
	"github.com/Carmen-Shannon/oxy-waves/engine/scene"
	"github.com/Carmen-Shannon/oxy-waves/engine/wave"
	"github.com/Carmen-Shannon/oxy-waves/engine/window"
)

const (
	sunStep         = 0.05 // radians per arrow key press
	dragZoomPerPix  = 0.25
	manualMagnitude = 1.5
)

func main() {
	configPath := flag.String("config", "", "YAML file overriding the embedded defaults")
	backend := flag.String("backend", "", "graphics backend: wgpu or soft (overrides render.backend)")
	variant := flag.String("variant", "", "wave simulation: cpu or gpu (overrides waves.variant)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[LitWaves] %v", err)
	}
	if *backend != "" {
		cfg.Render.Backend = *backend
	}
	if *variant != "" {
		cfg.Waves.Variant = *variant
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[LitWaves] %v", err)
	}

	win := window.NewWindow(
		window.WithTitle(cfg.Window.Title),
		window.WithWidth(cfg.Window.Width),
		window.WithHeight(cfg.Window.Height),
	)

	dev, err := newDevice(cfg, win)
	if err != nil {
		log.Fatalf("[LitWaves] creating %s device: %v", cfg.Render.Backend, err)
	}
	defer dev.Release()

	cam := camera.NewCamera(
		camera.WithFov(cfg.Camera.Fov),
		camera.WithAspect(float32(cfg.Window.Width)/float32(cfg.Window.Height)),
		camera.WithClipPlanes(cfg.Camera.Near, cfg.Camera.Far),
		camera.WithController(camera.NewCameraController(
			camera.WithRadius(cfg.Camera.Radius),
			camera.WithAngles(cfg.Camera.Theta, cfg.Camera.Phi),
		)),
	)

	sc := scene.NewScene("LitWaves", cam, sceneOptions(cfg)...)

	var telemetry io.Writer
	if cfg.Render.Telemetry != "" {
		f, err := os.Create(cfg.Render.Telemetry)
		if err != nil {
			log.Fatalf("[LitWaves] opening telemetry file: %v", err)
		}
		defer f.Close()
		telemetry = f
	}

	eng, err := engine.NewEngine(dev,
		engine.WithWindow(win),
		engine.WithScene(sc),
		engine.WithFrameResources(cfg.Render.FrameResources),
		engine.WithWaitTimeout(cfg.Render.WaitTimeout),
		engine.WithProfiling(cfg.Render.Profiling),
		engine.WithTelemetry(telemetry),
		engine.WithRenderFrameLimit(cfg.Render.FrameLimit),
	)
	if err != nil {
		log.Fatalf("[LitWaves] %v", err)
	}
	defer eng.Release()

	setupInput(eng, win, cam, sc)

	fmt.Println("LitWaves")
	fmt.Println("  Left drag=Orbit  Right drag/Scroll=Zoom")
	fmt.Println("  Arrows=Move sun  Space=Disturb  P=Pause  1=Wireframe  Esc=Quit")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log.Printf("[LitWaves] running %s waves on %s", sc.Variant(), dev.Name())
	if err := eng.Run(ctx); err != nil {
		log.Fatalf("[LitWaves] %v", err)
	}
}

// newDevice opens the configured backend. The soft device has no swap chain, so the
// window only delivers input when it is selected.
func newDevice(cfg *config.Config, win window.Window) (device.Device, error) {
	if cfg.Render.Backend == "soft" {
		return soft.NewDevice(soft.WithLatency(cfg.Soft.Latency)), nil
	}
	return webgpu.NewDevice(
		webgpu.WithSurface(win.SurfaceDescriptor()),
		webgpu.WithSize(win.Width(), win.Height()),
	)
}

func sceneOptions(cfg *config.Config) []scene.SceneBuilderOption {
	v := scene.VariantCPU
	if cfg.Waves.Variant == "gpu" {
		v = scene.VariantGPU
	}
	return []scene.SceneBuilderOption{
		scene.WithVariant(v),
		scene.WithWaveGrid(cfg.Waves.Rows, cfg.Waves.Cols),
		scene.WithWaveOptions(
			wave.WithSpeed(cfg.Waves.Speed),
			wave.WithDamping(cfg.Waves.Damping),
			wave.WithSpatialStep(cfg.Waves.SpatialStep),
			wave.WithTimeStep(cfg.Waves.TimeStep),
			wave.WithMaxAmplitude(cfg.Waves.MaxAmplitude),
			wave.WithWorkers(cfg.Waves.Workers),
			wave.WithOpenCL(cfg.Waves.OpenCL),
		),
		scene.WithDisturbOptions(
			wave.WithInterval(cfg.Disturb.Interval),
			wave.WithMargin(cfg.Disturb.Margin),
			wave.WithMagnitudeRange(cfg.Disturb.MinMagnitude, cfg.Disturb.MaxMagnitude),
			wave.WithSeed(cfg.Disturb.Seed),
		),
		scene.WithLand(cfg.Land.Width, cfg.Land.Depth, cfg.Land.Rows, cfg.Land.Cols),
		scene.WithAmbient(cfg.Light.Ambient),
		scene.WithSunAngles(cfg.Light.SunTheta, cfg.Light.SunPhi),
		scene.WithClearColor(cfg.Render.ClearColor),
		scene.WithRenderTargetSize(cfg.Window.Width, cfg.Window.Height),
		scene.WithWireframe(cfg.Render.Wireframe),
	}
}

// setupInput wires camera and scene controls: left-drag orbit, right-drag and scroll zoom,
// arrow keys for the sun, and the pause, disturb, wireframe and quit keys.
//
// Parameters:
//   - eng: the engine to quit
//   - win: the window providing input callbacks
//   - cam: the camera to control
//   - sc: the waves scene
func setupInput(eng engine.Engine, win window.Window, cam camera.Camera, sc scene.Scene) {
	var dragging [3]bool
	var lastX, lastY int32

	win.SetMouseDownCallback(func(button window.MouseButton, x, y int32) {
		dragging[button] = true
		lastX, lastY = x, y
	})

	win.SetMouseUpCallback(func(button window.MouseButton, _, _ int32) {
		dragging[button] = false
	})

	win.SetMouseMoveCallback(func(x, y int32) {
		dx := float32(x - lastX)
		dy := float32(y - lastY)
		switch {
		case dragging[window.MouseButtonLeft]:
			cam.Controller().Rotate(dx, dy)
		case dragging[window.MouseButtonRight]:
			cam.Controller().Zoom((dy - dx) * dragZoomPerPix)
		}
		lastX, lastY = x, y
	})

	win.SetScrollCallback(func(delta float32) {
		cam.Controller().Zoom(delta)
	})

	win.SetKeyDownCallback(func(keyCode uint32) {
		switch keyCode {
		case common.KeyLeft:
			sc.RotateSun(-sunStep, 0)
		case common.KeyRight:
			sc.RotateSun(sunStep, 0)
		case common.KeyUp:
			sc.RotateSun(0, -sunStep)
		case common.KeyDown:
			sc.RotateSun(0, sunStep)
		case common.KeyP:
			sc.SetActive(!sc.Active())
		case common.Key1:
			sc.SetWireframe(!sc.Wireframe())
		case common.KeySpace:
			rows, cols := sc.Grid()
			if err := sc.Disturb(rows/2, cols/2, manualMagnitude); err != nil {
				log.Printf("[LitWaves] %v", err)
			}
		case common.KeyEsc:
			eng.Quit()
		}
	})
}
