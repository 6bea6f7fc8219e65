// Package fence implements the CPU side of the frame fence protocol: a counter that
// the render goroutine advances once per frame, a GPU signal enqueued behind each
// frame's commands, and a wait that blocks until the GPU has caught up to a value.
package fence

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-waves/engine/device"
)

// ErrNotSignalled is returned by WaitUntil for a value that Advance never produced.
// Such a wait could only end through cancellation.
var ErrNotSignalled = errors.New("fence: value was never signalled")

// Synchronizer owns one device fence and the CPU-side target value.
type Synchronizer interface {
	// Advance increments the target value and enqueues a GPU signal to reach it once
	// every previously submitted command has completed.
	//
	// Returns:
	//   - uint64: the new target value
	//   - error: device.ErrDeviceLost (wrapped) if the signal could not be enqueued
	Advance() (uint64, error)

	// WaitUntil blocks until the GPU has completed value. It returns immediately if
	// the value is already complete. Without a deadline on ctx and without
	// WithWaitTimeout the wait is unbounded.
	//
	// Parameters:
	//   - ctx: cancels the wait
	//   - value: the fence value to wait for
	//
	// Returns:
	//   - error: nil once reached, device.ErrDeviceLost (wrapped) on device loss,
	//     or the context error on cancellation or timeout
	WaitUntil(ctx context.Context, value uint64) error

	// Flush advances the fence and waits for the new value: every command submitted
	// before the call has completed when it returns.
	//
	// Parameters:
	//   - ctx: cancels the wait
	//
	// Returns:
	//   - error: as for Advance and WaitUntil
	Flush(ctx context.Context) error

	// Value returns the last target value produced by Advance.
	Value() uint64

	// Completed returns the value last reached by the GPU.
	Completed() uint64

	// Stalls returns how many WaitUntil calls had to block.
	Stalls() uint64

	// Fence returns the underlying device fence.
	Fence() device.Fence

	// Release releases the device fence.
	Release()
}

type synchronizer struct {
	dev   device.Device
	fence device.Fence

	value   atomic.Uint64
	stalls  atomic.Uint64
	timeout time.Duration
}

var _ Synchronizer = &synchronizer{}

// New creates a Synchronizer with a fresh device fence starting at zero.
//
// Parameters:
//   - dev: the device owning the fence and the queue signals are enqueued on
//   - options: functional options for the synchronizer
//
// Returns:
//   - Synchronizer: the synchronizer
//   - error: error if the fence could not be created
func New(dev device.Device, options ...SynchronizerBuilderOption) (Synchronizer, error) {
	if dev == nil {
		panic("fence: New called with nil device")
	}
	f, err := dev.NewFence(0)
	if err != nil {
		return nil, fmt.Errorf("failed to create fence: %w", err)
	}
	s := &synchronizer{dev: dev, fence: f}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

func (s *synchronizer) Advance() (uint64, error) {
	next := s.value.Load() + 1
	if err := s.dev.Queue().Signal(s.fence, next); err != nil {
		return 0, fmt.Errorf("fence: signal %d: %w", next, err)
	}
	s.value.Store(next)
	return next, nil
}

func (s *synchronizer) WaitUntil(ctx context.Context, value uint64) error {
	if s.fence.CompletedValue() >= value {
		return nil
	}
	if value > s.value.Load() {
		return fmt.Errorf("fence: wait for %d, last signalled %d: %w", value, s.value.Load(), ErrNotSignalled)
	}

	ch := make(chan error, 1)
	if err := s.fence.SetEventOnCompletion(value, ch); err != nil {
		return fmt.Errorf("fence: wait for %d: %w", value, err)
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.stalls.Add(1)
	select {
	case err := <-ch:
		if err != nil {
			return fmt.Errorf("fence: wait for %d: %w", value, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("fence: wait for %d: %w", value, ctx.Err())
	}
}

func (s *synchronizer) Flush(ctx context.Context) error {
	v, err := s.Advance()
	if err != nil {
		return err
	}
	return s.WaitUntil(ctx, v)
}

func (s *synchronizer) Value() uint64 {
	return s.value.Load()
}

func (s *synchronizer) Completed() uint64 {
	return s.fence.CompletedValue()
}

func (s *synchronizer) Stalls() uint64 {
	return s.stalls.Load()
}

func (s *synchronizer) Fence() device.Fence {
	return s.fence
}

func (s *synchronizer) Release() {
	s.fence.Release()
}
