package soft

import "time"

// DeviceBuilderOption is a functional option applied to a software device during construction via NewDevice.
type DeviceBuilderOption func(*softDevice)

// WithLatency delays the execution of every submitted command list, emulating a GPU
// that runs behind the CPU. Useful to force the frame loop into its wait path.
//
// Parameters:
//   - d: the per-submission delay
//
// Returns:
//   - DeviceBuilderOption: a function that applies the latency option to a device
func WithLatency(d time.Duration) DeviceBuilderOption {
	return func(s *softDevice) {
		s.latency = d
	}
}

// WithQueueDepth sets how many submissions and signals may be queued before Submit blocks.
//
// Parameters:
//   - n: the queue capacity (values < 1 are ignored)
//
// Returns:
//   - DeviceBuilderOption: a function that applies the queue depth option to a device
func WithQueueDepth(n int) DeviceBuilderOption {
	return func(s *softDevice) {
		if n >= 1 {
			s.queueCap = n
		}
	}
}

// WithName overrides the name reported by Device.Name.
//
// Parameters:
//   - name: the device name
//
// Returns:
//   - DeviceBuilderOption: a function that applies the name option to a device
func WithName(name string) DeviceBuilderOption {
	return func(s *softDevice) {
		s.name = name
	}
}
