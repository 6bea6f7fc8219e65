//go:build !opencl

package wave

import "errors"

// ErrOpenCLUnavailable is returned when the binary was built without the opencl tag.
var ErrOpenCLUnavailable = errors.New("wave: OpenCL support is not enabled; rebuild with -tags opencl")

func newCLStepper(rows, cols int, k [3]float32) (stepper, error) {
	return nil, ErrOpenCLUnavailable
}
