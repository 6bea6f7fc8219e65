package wave

// DisturbSchedulerBuilderOption is a functional option for configuring a DisturbScheduler.
type DisturbSchedulerBuilderOption func(*disturbScheduler)

// WithInterval sets the time between disturbances.
//
// Parameters:
//   - seconds: the interval (default 0.25; values <= 0 are ignored)
//
// Returns:
//   - DisturbSchedulerBuilderOption: option function to apply
func WithInterval(seconds float32) DisturbSchedulerBuilderOption {
	return func(s *disturbScheduler) {
		if seconds > 0 {
			s.interval = seconds
		}
	}
}

// WithMargin sets the minimum distance between a disturbance and any grid edge.
// The disturb stencil needs at least 2.
//
// Parameters:
//   - cells: the margin in cells (default 4)
//
// Returns:
//   - DisturbSchedulerBuilderOption: option function to apply
func WithMargin(cells int) DisturbSchedulerBuilderOption {
	return func(s *disturbScheduler) {
		s.margin = cells
	}
}

// WithMagnitudeRange sets the range disturbance magnitudes are drawn from.
//
// Parameters:
//   - lo: the smallest magnitude (default 0.2)
//   - hi: the largest magnitude (default 0.5)
//
// Returns:
//   - DisturbSchedulerBuilderOption: option function to apply
func WithMagnitudeRange(lo, hi float32) DisturbSchedulerBuilderOption {
	return func(s *disturbScheduler) {
		s.minMagnitude = lo
		s.maxMagnitude = hi
	}
}

// WithSeed seeds the pseudo-random generator so runs are reproducible.
//
// Parameters:
//   - seed: the seed (default 1)
//
// Returns:
//   - DisturbSchedulerBuilderOption: option function to apply
func WithSeed(seed uint64) DisturbSchedulerBuilderOption {
	return func(s *disturbScheduler) {
		s.seed = seed
	}
}
