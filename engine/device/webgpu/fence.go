package webgpu

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-waves/engine/device"
)

type waiter struct {
	value uint64
	ch    chan<- error
}

// fence is advanced by the device timeline once the submission preceding each
// Signal has finished on the GPU.
type fence struct {
	dev *webgpuDevice

	mu        sync.Mutex
	completed uint64
	waiters   []waiter
}

func (f *fence) CompletedValue() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}

func (f *fence) SetEventOnCompletion(value uint64, ch chan<- error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completed >= value {
		notify(ch, nil)
		return nil
	}
	if f.dev.released.Load() {
		return device.ErrDeviceLost
	}
	f.waiters = append(f.waiters, waiter{value: value, ch: ch})
	return nil
}

func (f *fence) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range f.waiters {
		notify(w.ch, device.ErrDeviceLost)
	}
	f.waiters = nil
}

func (f *fence) complete(value uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = max(f.completed, value)
	kept := f.waiters[:0]
	for _, w := range f.waiters {
		if w.value <= f.completed {
			notify(w.ch, nil)
			continue
		}
		kept = append(kept, w)
	}
	f.waiters = kept
}

func notify(ch chan<- error, err error) {
	select {
	case ch <- err:
	default:
	}
}
