package fence

import "time"

// SynchronizerBuilderOption is a functional option for configuring a Synchronizer.
type SynchronizerBuilderOption func(*synchronizer)

// WithWaitTimeout bounds every WaitUntil call. Test harnesses use it so a GPU that
// never signals fails the test instead of hanging it.
//
// Parameters:
//   - d: the maximum wait (0 = unbounded, the default)
//
// Returns:
//   - SynchronizerBuilderOption: option function to apply
func WithWaitTimeout(d time.Duration) SynchronizerBuilderOption {
	return func(s *synchronizer) {
		if d < 0 {
			d = 0
		}
		s.timeout = d
	}
}
