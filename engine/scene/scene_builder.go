package scene

import (
	"github.com/Carmen-Shannon/oxy-waves/engine/light"
	"github.com/Carmen-Shannon/oxy-waves/engine/wave"
	"github.com/chewxy/math32"
)

// SceneBuilderOption is a functional option for configuring a Scene.
// Use the With* functions to create options.
type SceneBuilderOption func(s *scene)

// WithActive sets whether the scene is active for rendering.
//
// Parameters:
//   - active: whether the scene is active
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithActive(active bool) SceneBuilderOption {
	return func(s *scene) {
		s.active = active
	}
}

// WithVariant selects where the wave simulation runs. Defaults to VariantCPU.
//
// Parameters:
//   - v: the simulation variant
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithVariant(v Variant) SceneBuilderOption {
	return func(s *scene) {
		s.variant = v
	}
}

// WithWaveGrid sets the number of wave grid rows and columns. Defaults to 128 x 128.
// The GPU variant needs both to be multiples of 16; Init reports anything else.
//
// Parameters:
//   - rows: grid rows
//   - cols: grid columns
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithWaveGrid(rows, cols int) SceneBuilderOption {
	return func(s *scene) {
		s.rows = rows
		s.cols = cols
	}
}

// WithWaveOptions forwards options to the wave field created by Init.
//
// Parameters:
//   - options: wave field options such as wave.WithSpeed
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithWaveOptions(options ...wave.FieldBuilderOption) SceneBuilderOption {
	return func(s *scene) {
		s.waveOptions = append(s.waveOptions, options...)
	}
}

// WithDisturbOptions forwards options to the random disturbance scheduler.
//
// Parameters:
//   - options: scheduler options such as wave.WithInterval
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithDisturbOptions(options ...wave.DisturbSchedulerBuilderOption) SceneBuilderOption {
	return func(s *scene) {
		s.disturbOptions = append(s.disturbOptions, options...)
	}
}

// WithLand sets the size and tessellation of the hills. Defaults to 160 x 160 with 50 x 50 vertices.
//
// Parameters:
//   - width: extent along x
//   - depth: extent along z
//   - rows: vertex rows (>= 2)
//   - cols: vertex columns (>= 2)
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithLand(width, depth float32, rows, cols int) SceneBuilderOption {
	return func(s *scene) {
		if rows < 2 || cols < 2 {
			return
		}
		s.landWidth = width
		s.landDepth = depth
		s.landRows = rows
		s.landCols = cols
	}
}

// WithLights replaces the default sun with the given lights (at most three enabled).
func WithLights(lights ...light.Light) SceneBuilderOption {
	return func(s *scene) {
		s.lights = lights
	}
}

// WithAmbient sets the ambient light term.
func WithAmbient(ambient [4]float32) SceneBuilderOption {
	return func(s *scene) {
		s.ambient = ambient
	}
}

// WithClearColor sets the color the back buffer is cleared to.
func WithClearColor(c [4]float32) SceneBuilderOption {
	return func(s *scene) {
		s.clearColor = c
	}
}

// WithRenderTargetSize sets the initial render target size used for the pass constants.
//
// Parameters:
//   - width: width in pixels
//   - height: height in pixels
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithRenderTargetSize(width, height int) SceneBuilderOption {
	return func(s *scene) {
		if width > 0 && height > 0 {
			s.width = width
			s.height = height
		}
	}
}

// WithWireframe draws the wave grid in wireframe.
func WithWireframe(enabled bool) SceneBuilderOption {
	return func(s *scene) {
		s.wireframe = enabled
	}
}

// WithSunAngles sets the spherical angles of the default sun. It has no effect when
// WithLights replaces the default lights.
//
// Parameters:
//   - theta: azimuth in radians
//   - phi: polar angle in radians, measured from +y
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithSunAngles(theta, phi float32) SceneBuilderOption {
	return func(s *scene) {
		s.sunTheta = theta
		s.sunPhi = math32.Max(0.1, math32.Min(math32.Pi/2, phi))
	}
}
