//go:build opencl

package wave

import (
	"errors"
	"fmt"
	"strings"
	"unsafe"

	"github.com/jgillich/go-opencl/cl"
)

const clStepSource = `__kernel void wave_step(
    const int cols,
    const int rows,
    const float k0,
    const float k1,
    const float k2,
    __global const float* prev,
    __global const float* curr,
    __global float* next)
{
    int idx = get_global_id(0);
    if (idx >= cols * rows) {
        return;
    }
    int x = idx % cols;
    int y = idx / cols;
    if (x <= 0 || x >= cols - 1 || y <= 0 || y >= rows - 1) {
        return;
    }
    next[idx] = k0 * prev[idx] + k1 * curr[idx] +
        k2 * (curr[idx - cols] + curr[idx + cols] + curr[idx - 1] + curr[idx + 1]);
}`

// clStepper uploads Previous and Current, runs one step and reads Next back. Next keeps
// its boundary values because the kernel never writes edge cells and the device copy
// of Next is uploaded first.
type clStepper struct {
	context *cl.Context
	queue   *cl.CommandQueue
	program *cl.Program
	kernel  *cl.Kernel

	prevBuf *cl.MemObject
	currBuf *cl.MemObject
	nextBuf *cl.MemObject

	size       int
	deviceName string
}

func newCLStepper(rows, cols int, k [3]float32) (stepper, error) {
	platforms, err := cl.GetPlatforms()
	if err != nil {
		msg := "querying OpenCL platforms"
		if strings.Contains(err.Error(), "-1001") {
			msg += ": no ICD loader reported any platforms"
		}
		return nil, fmt.Errorf("%s: %w", msg, err)
	}
	var device *cl.Device
	for _, kind := range []cl.DeviceType{cl.DeviceTypeGPU, cl.DeviceTypeCPU} {
		for _, p := range platforms {
			devices, derr := p.GetDevices(kind)
			if derr != nil && derr != cl.ErrDeviceNotFound {
				continue
			}
			if len(devices) > 0 {
				device = devices[0]
				break
			}
		}
		if device != nil {
			break
		}
	}
	if device == nil {
		return nil, errors.New("no suitable OpenCL devices found")
	}

	s := &clStepper{size: rows * cols, deviceName: device.Name()}
	if s.context, err = cl.CreateContext([]*cl.Device{device}); err != nil {
		return nil, fmt.Errorf("creating OpenCL context: %w", err)
	}
	if s.queue, err = s.context.CreateCommandQueue(device, 0); err != nil {
		s.Close()
		return nil, fmt.Errorf("creating OpenCL command queue: %w", err)
	}
	if s.program, err = s.context.CreateProgramWithSource([]string{clStepSource}); err != nil {
		s.Close()
		return nil, fmt.Errorf("creating OpenCL program: %w", err)
	}
	if err = s.program.BuildProgram([]*cl.Device{device}, ""); err != nil {
		s.Close()
		if buildErr, ok := err.(cl.BuildError); ok {
			return nil, fmt.Errorf("building OpenCL program: %s", string(buildErr))
		}
		return nil, fmt.Errorf("building OpenCL program: %w", err)
	}
	if s.kernel, err = s.program.CreateKernel("wave_step"); err != nil {
		s.Close()
		return nil, fmt.Errorf("creating OpenCL kernel: %w", err)
	}

	byteSize := s.size * int(unsafe.Sizeof(float32(0)))
	if s.prevBuf, err = s.context.CreateEmptyBuffer(cl.MemReadOnly, byteSize); err != nil {
		s.Close()
		return nil, fmt.Errorf("allocating previous buffer: %w", err)
	}
	if s.currBuf, err = s.context.CreateEmptyBuffer(cl.MemReadOnly, byteSize); err != nil {
		s.Close()
		return nil, fmt.Errorf("allocating current buffer: %w", err)
	}
	if s.nextBuf, err = s.context.CreateEmptyBuffer(cl.MemReadWrite, byteSize); err != nil {
		s.Close()
		return nil, fmt.Errorf("allocating next buffer: %w", err)
	}
	if err := s.kernel.SetArgs(int32(cols), int32(rows), k[0], k[1], k[2], s.prevBuf, s.currBuf, s.nextBuf); err != nil {
		s.Close()
		return nil, fmt.Errorf("setting kernel arguments: %w", err)
	}
	return s, nil
}

func (s *clStepper) Step(prev, curr, next []float32) error {
	if len(prev) != s.size || len(curr) != s.size || len(next) != s.size {
		return fmt.Errorf("unexpected field buffer size")
	}
	if _, err := s.queue.EnqueueWriteBufferFloat32(s.prevBuf, false, 0, prev, nil); err != nil {
		return fmt.Errorf("writing previous buffer: %w", err)
	}
	if _, err := s.queue.EnqueueWriteBufferFloat32(s.currBuf, false, 0, curr, nil); err != nil {
		return fmt.Errorf("writing current buffer: %w", err)
	}
	if _, err := s.queue.EnqueueWriteBufferFloat32(s.nextBuf, false, 0, next, nil); err != nil {
		return fmt.Errorf("writing next buffer: %w", err)
	}
	if _, err := s.queue.EnqueueNDRangeKernel(s.kernel, nil, []int{s.size}, nil, nil); err != nil {
		return fmt.Errorf("enqueueing kernel: %w", err)
	}
	if _, err := s.queue.EnqueueReadBufferFloat32(s.nextBuf, true, 0, next, nil); err != nil {
		return fmt.Errorf("reading next buffer: %w", err)
	}
	return nil
}

func (s *clStepper) Name() string {
	return s.deviceName
}

func (s *clStepper) Close() {
	for _, m := range []*cl.MemObject{s.nextBuf, s.currBuf, s.prevBuf} {
		if m != nil {
			m.Release()
		}
	}
	s.prevBuf, s.currBuf, s.nextBuf = nil, nil, nil
	if s.kernel != nil {
		s.kernel.Release()
		s.kernel = nil
	}
	if s.program != nil {
		s.program.Release()
		s.program = nil
	}
	if s.queue != nil {
		s.queue.Release()
		s.queue = nil
	}
	if s.context != nil {
		s.context.Release()
		s.context = nil
	}
}
