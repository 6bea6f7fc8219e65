// Package frame implements the frame-resource ring: N bundles of per-frame GPU
// memory (command allocator and upload buffers) used in rotation so the CPU can
// prepare one frame while the GPU still executes the previous ones.
//
// A slot may only be written once the fence value recorded at its last use has
// completed. The ring enforces this on every write it performs and reports
// violations as ErrFrameInFlight.
package frame

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-waves/common"
	"github.com/Carmen-Shannon/oxy-waves/engine/device"
	"github.com/Carmen-Shannon/oxy-waves/engine/fence"
)

// ErrFrameInFlight is returned when a slot is written or its allocator reset while the
// GPU may still reference it.
var ErrFrameInFlight = errors.New("frame: slot is still in flight on the GPU")

// ErrIndexOutOfRange is returned for element indices outside an upload buffer.
var ErrIndexOutOfRange = errors.New("frame: index out of range")

// ErrInvalidLayout is returned by NewRing for unusable slot counts or layouts.
var ErrInvalidLayout = errors.New("frame: invalid layout")

// DefaultCount is the number of frame resources used by the samples.
const DefaultCount = 3

// Kind selects one of the constant buffers of a slot.
type Kind int

const (
	KindPass Kind = iota
	KindObject
	KindMaterial
)

func (k Kind) String() string {
	switch k {
	case KindPass:
		return "pass"
	case KindObject:
		return "object"
	case KindMaterial:
		return "material"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Layout sizes the buffers of every slot.
type Layout struct {
	PassCount     int
	ObjectCount   int
	MaterialCount int
	// WaveVertexCount sizes the dynamic vertex buffer; 0 allocates none.
	WaveVertexCount int
}

// Resource is the bundle of GPU memory owned by one slot.
type Resource interface {
	// Index returns the slot index in [0, N).
	Index() int

	// FenceValue returns the fence value signalled after the slot's last submission,
	// or 0 if the slot has never been submitted.
	FenceValue() uint64

	// SetFenceValue records the fence value signalled after the slot's commands.
	SetFenceValue(v uint64)

	// Free reports whether the GPU is done with the slot.
	Free() bool

	// Allocator returns the slot's command allocator.
	Allocator() device.CommandAllocator

	// ResetAllocator resets the command allocator.
	//
	// Returns:
	//   - error: ErrFrameInFlight if the slot's fence value has not completed
	ResetAllocator() error

	PassConstants() *UploadBuffer[common.PassConstants]
	ObjectConstants() *UploadBuffer[common.ObjectConstants]
	MaterialConstants() *UploadBuffer[common.MaterialConstants]

	// WaveVertices returns the dynamic vertex buffer, or nil if the layout has none.
	WaveVertices() *UploadBuffer[common.Vertex]

	Release()
}

// Ring is a fixed set of N frame resources indexed circularly.
type Ring interface {
	// Len returns N.
	Len() int

	// Acquire returns the resource for a frame counter, slot frameCounter % N.
	// It does not wait; callers wait on the slot's FenceValue first.
	Acquire(frameCounter uint64) Resource

	// Slot returns the resource at index i.
	Slot(i int) Resource

	// CopyConstants copies one constant structure into a slot's upload buffer.
	//
	// Parameters:
	//   - slot: the slot index
	//   - kind: which constant buffer
	//   - index: the element index within that buffer
	//   - data: the raw bytes of the structure
	//
	// Returns:
	//   - error: ErrFrameInFlight if the slot is still referenced by the GPU,
	//     ErrIndexOutOfRange for bad indices
	CopyConstants(slot int, kind Kind, index int, data []byte) error

	// CopyVertices copies the dynamic wave vertices into a slot's vertex buffer.
	//
	// Parameters:
	//   - slot: the slot index
	//   - vertices: the vertices, at most WaveVertexCount
	//
	// Returns:
	//   - error: ErrFrameInFlight if the slot is still referenced by the GPU,
	//     ErrIndexOutOfRange if the slot has no vertex buffer or the data does not fit
	CopyVertices(slot int, vertices []common.Vertex) error

	// Release releases every slot. The GPU must be idle.
	Release()
}

type resource struct {
	index      int
	sync       fence.Synchronizer
	fenceValue uint64
	alloc      device.CommandAllocator

	pass     *UploadBuffer[common.PassConstants]
	object   *UploadBuffer[common.ObjectConstants]
	material *UploadBuffer[common.MaterialConstants]
	vertices *UploadBuffer[common.Vertex]
}

var _ Resource = &resource{}

type ring struct {
	slots []*resource
}

var _ Ring = &ring{}

// NewRing allocates n frame resources.
//
// Parameters:
//   - dev: the device to allocate on
//   - sync: the fence synchronizer whose completed value gates slot reuse
//   - n: number of slots (>= 1, DefaultCount in the samples)
//   - layout: buffer sizes of every slot
//
// Returns:
//   - Ring: the ring
//   - error: ErrInvalidLayout or an allocation error
func NewRing(dev device.Device, sync fence.Synchronizer, n int, layout Layout) (Ring, error) {
	if dev == nil || sync == nil {
		panic("frame: NewRing called with nil device or synchronizer")
	}
	if n < 1 || layout.PassCount < 1 || layout.ObjectCount < 0 || layout.MaterialCount < 0 || layout.WaveVertexCount < 0 {
		return nil, fmt.Errorf("%d slots, %+v: %w", n, layout, ErrInvalidLayout)
	}

	r := &ring{slots: make([]*resource, 0, n)}
	for i := 0; i < n; i++ {
		res, err := newResource(dev, sync, i, layout)
		if err != nil {
			r.Release()
			return nil, fmt.Errorf("failed to create frame resource %d: %w", i, err)
		}
		r.slots = append(r.slots, res)
	}
	return r, nil
}

func newResource(dev device.Device, sync fence.Synchronizer, index int, layout Layout) (*resource, error) {
	alloc, err := dev.NewCommandAllocator()
	if err != nil {
		return nil, err
	}
	res := &resource{index: index, sync: sync, alloc: alloc}

	label := func(name string) string { return fmt.Sprintf("frame%d_%s", index, name) }
	if res.pass, err = NewUploadBuffer[common.PassConstants](dev, label("pass"), layout.PassCount, device.UsageConstant); err != nil {
		res.Release()
		return nil, err
	}
	if layout.ObjectCount > 0 {
		if res.object, err = NewUploadBuffer[common.ObjectConstants](dev, label("objects"), layout.ObjectCount, device.UsageConstant); err != nil {
			res.Release()
			return nil, err
		}
	}
	if layout.MaterialCount > 0 {
		if res.material, err = NewUploadBuffer[common.MaterialConstants](dev, label("materials"), layout.MaterialCount, device.UsageConstant); err != nil {
			res.Release()
			return nil, err
		}
	}
	if layout.WaveVertexCount > 0 {
		if res.vertices, err = NewUploadBuffer[common.Vertex](dev, label("wave_vertices"), layout.WaveVertexCount, device.UsageVertex); err != nil {
			res.Release()
			return nil, err
		}
	}
	return res, nil
}

func (r *ring) Len() int {
	return len(r.slots)
}

func (r *ring) Acquire(frameCounter uint64) Resource {
	return r.slots[frameCounter%uint64(len(r.slots))]
}

func (r *ring) Slot(i int) Resource {
	return r.slots[i]
}

func (r *ring) slot(i int) (*resource, error) {
	if i < 0 || i >= len(r.slots) {
		return nil, fmt.Errorf("slot %d of %d: %w", i, len(r.slots), ErrIndexOutOfRange)
	}
	res := r.slots[i]
	if !res.Free() {
		return nil, fmt.Errorf("slot %d waits for fence %d, completed %d: %w", i, res.fenceValue, res.sync.Completed(), ErrFrameInFlight)
	}
	return res, nil
}

func (r *ring) CopyConstants(slot int, kind Kind, index int, data []byte) error {
	res, err := r.slot(slot)
	if err != nil {
		return err
	}
	switch kind {
	case KindPass:
		return res.pass.CopyBytes(index, data)
	case KindObject:
		if res.object == nil {
			return fmt.Errorf("slot %d has no object constants: %w", slot, ErrIndexOutOfRange)
		}
		return res.object.CopyBytes(index, data)
	case KindMaterial:
		if res.material == nil {
			return fmt.Errorf("slot %d has no material constants: %w", slot, ErrIndexOutOfRange)
		}
		return res.material.CopyBytes(index, data)
	default:
		return fmt.Errorf("constant kind %s: %w", kind, ErrIndexOutOfRange)
	}
}

func (r *ring) CopyVertices(slot int, vertices []common.Vertex) error {
	res, err := r.slot(slot)
	if err != nil {
		return err
	}
	if res.vertices == nil {
		return fmt.Errorf("slot %d has no wave vertex buffer: %w", slot, ErrIndexOutOfRange)
	}
	return res.vertices.CopySlice(0, vertices)
}

func (r *ring) Release() {
	for _, s := range r.slots {
		s.Release()
	}
	r.slots = nil
}

// CopyConstants is the typed form of Ring.CopyConstants.
//
// Parameters:
//   - r: the ring
//   - slot: the slot index
//   - kind: which constant buffer
//   - index: the element index within that buffer
//   - v: the structure to copy
//
// Returns:
//   - error: as Ring.CopyConstants
func CopyConstants[T any](r Ring, slot int, kind Kind, index int, v *T) error {
	return r.CopyConstants(slot, kind, index, common.StructToBytes(v))
}

func (s *resource) Index() int             { return s.index }
func (s *resource) FenceValue() uint64     { return s.fenceValue }
func (s *resource) SetFenceValue(v uint64) { s.fenceValue = v }

func (s *resource) Free() bool {
	return s.fenceValue == 0 || s.sync.Completed() >= s.fenceValue
}

func (s *resource) Allocator() device.CommandAllocator {
	return s.alloc
}

func (s *resource) ResetAllocator() error {
	if !s.Free() {
		return fmt.Errorf("reset allocator of slot %d before fence %d: %w", s.index, s.fenceValue, ErrFrameInFlight)
	}
	if err := s.alloc.Reset(); err != nil {
		return fmt.Errorf("failed to reset allocator of slot %d: %w", s.index, err)
	}
	return nil
}

func (s *resource) PassConstants() *UploadBuffer[common.PassConstants]         { return s.pass }
func (s *resource) ObjectConstants() *UploadBuffer[common.ObjectConstants]     { return s.object }
func (s *resource) MaterialConstants() *UploadBuffer[common.MaterialConstants] { return s.material }
func (s *resource) WaveVertices() *UploadBuffer[common.Vertex]                 { return s.vertices }

func (s *resource) Release() {
	if s.pass != nil {
		s.pass.Release()
	}
	if s.object != nil {
		s.object.Release()
	}
	if s.material != nil {
		s.material.Release()
	}
	if s.vertices != nil {
		s.vertices.Release()
	}
	if s.alloc != nil {
		s.alloc.Release()
	}
}
