package wave

// FieldBuilderOption is a functional option for configuring the simulation constants
// of a Field or GPUField.
type FieldBuilderOption func(*params)

// WithSpeed sets the wave propagation speed in world units per second.
//
// Parameters:
//   - speed: the wave speed (default 4)
//
// Returns:
//   - FieldBuilderOption: option function to apply
func WithSpeed(speed float32) FieldBuilderOption {
	return func(p *params) {
		p.speed = speed
	}
}

// WithDamping sets the damping factor.
//
// Parameters:
//   - damping: the damping factor (default 0.2)
//
// Returns:
//   - FieldBuilderOption: option function to apply
func WithDamping(damping float32) FieldBuilderOption {
	return func(p *params) {
		p.damping = damping
	}
}

// WithSpatialStep sets the distance between adjacent grid vertices.
//
// Parameters:
//   - dx: the spatial step (default 1)
//
// Returns:
//   - FieldBuilderOption: option function to apply
func WithSpatialStep(dx float32) FieldBuilderOption {
	return func(p *params) {
		p.spatialStep = dx
	}
}

// WithTimeStep sets the fixed simulation time step in seconds.
//
// Parameters:
//   - dt: the time step (default 0.03)
//
// Returns:
//   - FieldBuilderOption: option function to apply
func WithTimeStep(dt float32) FieldBuilderOption {
	return func(p *params) {
		p.timeStep = dt
	}
}

// WithMaxAmplitude sets the clamp applied to disturbed heights.
//
// Parameters:
//   - limit: the maximum absolute height a disturbance may produce (default 8)
//
// Returns:
//   - FieldBuilderOption: option function to apply
func WithMaxAmplitude(limit float32) FieldBuilderOption {
	return func(p *params) {
		p.maxAmplitude = limit
	}
}

// WithWorkers sets how many pool workers share the rows of a CPU step.
// Values <= 0 select one worker per CPU minus one. GPUField ignores this option.
//
// Parameters:
//   - n: the number of workers (default 1, serial)
//
// Returns:
//   - FieldBuilderOption: option function to apply
func WithWorkers(n int) FieldBuilderOption {
	return func(p *params) {
		if n <= 0 {
			n = defaultWorkers()
		}
		p.workers = n
	}
}

// WithOpenCL runs the CPU field's step on an OpenCL device when the binary is built with
// the opencl tag and a device is available. Otherwise the field logs and steps on the CPU.
//
// Parameters:
//   - enabled: whether to try OpenCL
//
// Returns:
//   - FieldBuilderOption: option function to apply
func WithOpenCL(enabled bool) FieldBuilderOption {
	return func(p *params) {
		p.useOpenCL = enabled
	}
}
