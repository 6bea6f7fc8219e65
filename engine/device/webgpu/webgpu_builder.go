package webgpu

import "github.com/cogentcore/webgpu/wgpu"

// DeviceBuilderOption is a functional option applied to a WebGPU device during construction via NewDevice.
type DeviceBuilderOption func(*webgpuDevice)

// WithSurface renders into a window surface instead of an offscreen target.
// The surface descriptor is platform-specific and is typically obtained from Window.SurfaceDescriptor().
//
// Parameters:
//   - desc: the surface descriptor of the window
//
// Returns:
//   - DeviceBuilderOption: a function that applies the surface option to a device
func WithSurface(desc *wgpu.SurfaceDescriptor) DeviceBuilderOption {
	return func(d *webgpuDevice) {
		d.surfaceDescriptor = desc
	}
}

// WithSize sets the initial render target size in pixels.
//
// Parameters:
//   - width: the width in pixels
//   - height: the height in pixels
//
// Returns:
//   - DeviceBuilderOption: a function that applies the size option to a device
func WithSize(width, height int) DeviceBuilderOption {
	return func(d *webgpuDevice) {
		if width > 0 && height > 0 {
			d.width, d.height = width, height
		}
	}
}

// WithForceFallbackAdapter requests the software (fallback) adapter, e.g. in CI.
//
// Parameters:
//   - force: if true, only the fallback adapter is accepted
//
// Returns:
//   - DeviceBuilderOption: a function that applies the adapter option to a device
func WithForceFallbackAdapter(force bool) DeviceBuilderOption {
	return func(d *webgpuDevice) {
		d.forceFallbackAdapter = force
	}
}

// WithVSync selects PresentModeFifo instead of the default PresentModeImmediate.
//
// Parameters:
//   - enabled: if true, presentation waits for vertical blank
//
// Returns:
//   - DeviceBuilderOption: a function that applies the present mode option to a device
func WithVSync(enabled bool) DeviceBuilderOption {
	return func(d *webgpuDevice) {
		if enabled {
			d.presentMode = wgpu.PresentModeFifo
		} else {
			d.presentMode = wgpu.PresentModeImmediate
		}
	}
}
