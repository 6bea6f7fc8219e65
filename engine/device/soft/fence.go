package soft

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-waves/engine/device"
)

type waiter struct {
	value uint64
	ch    chan<- error
}

type fence struct {
	dev *softDevice

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
	if f.dev.lost.Load() {
		return device.ErrDeviceLost
	}
	if f.completed >= value {
		notify(ch, nil)
		return nil
	}
	f.waiters = append(f.waiters, waiter{value: value, ch: ch})
	return nil
}

func (f *fence) Release() {}

// complete advances the fence and wakes the waiters it satisfies.
// Values lower than the current one are ignored so the fence never goes backwards.
func (f *fence) complete(value uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if value > f.completed {
		f.completed = value
	}
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

func (f *fence) lose() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range f.waiters {
		notify(w.ch, device.ErrDeviceLost)
	}
	f.waiters = nil
}

func notify(ch chan<- error, err error) {
	select {
	case ch <- err:
	default:
	}
}
