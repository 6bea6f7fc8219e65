package engine

import (
	"io"
	"time"

	"github.com/Carmen-Shannon/oxy-waves/engine/scene"
)

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithProfiling enables or disables performance profiling output.
//
// Parameters:
//   - enabled: if true, enables performance profiling
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled = enabled
	}
}

// WithFrameResources sets the number of frame resources the CPU may run ahead of the GPU.
// Values < 1 are ignored (default 3).
//
// Parameters:
//   - n: the number of frame resources
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithFrameResources(n int) EngineBuilderOption {
	return func(e *engine) {
		if n >= 1 {
			e.frameResources = n
		}
	}
}

// WithWindow sets a custom configured window for the engine to use. Without one the
// engine runs headless.
//
// Parameters:
//   - w: a pre-configured Window instance
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithWindow(w Window) EngineBuilderOption {
	return func(e *engine) {
		e.window = w
	}
}

// WithScene sets the scene the engine renders. It is initialized by NewEngine.
//
// Parameters:
//   - s: the Scene to render
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithScene(s scene.Scene) EngineBuilderOption {
	return func(e *engine) {
		e.scene = s
	}
}

// WithWaitTimeout bounds every fence wait. The default is to wait forever.
//
// Parameters:
//   - d: the timeout (0 = none)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithWaitTimeout(d time.Duration) EngineBuilderOption {
	return func(e *engine) {
		e.waitTimeout = d
	}
}

// WithTelemetry makes the profiler append a CSV row per reporting window to w.
// Rows are only produced while profiling is enabled.
//
// Parameters:
//   - w: the CSV destination
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTelemetry(w io.Writer) EngineBuilderOption {
	return func(e *engine) {
		e.telemetry = w
	}
}

// WithRenderFrameLimit sets an optional render frame rate cap in frames per second.
// Pass 0 to uncap the render loop (default).
//
// Parameters:
//   - fps: maximum render frames per second (0 = uncapped)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRenderFrameLimit(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			e.renderFrameLimit = 0
			return
		}
		e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
	}
}
