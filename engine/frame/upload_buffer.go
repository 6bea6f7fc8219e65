package frame

import (
	"fmt"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-waves/common"
	"github.com/Carmen-Shannon/oxy-waves/engine/device"
)

// UploadBuffer is a persistently mapped array of T in a CPU-visible device buffer.
// Constant buffers pad every element to common.ConstantBufferAlignment bytes so each
// element can be bound at its own offset; other buffers are tightly packed.
type UploadBuffer[T any] struct {
	buf         device.Buffer
	mem         []byte
	count       int
	elementSize uint64
	stride      uint64
}

// NewUploadBuffer allocates and maps an upload buffer holding count elements of T.
//
// Parameters:
//   - dev: the device to allocate on
//   - label: debug label of the buffer
//   - count: number of elements (>= 1)
//   - usage: the buffer usage; device.UsageConstant selects 256-byte element alignment
//
// Returns:
//   - *UploadBuffer[T]: the mapped buffer
//   - error: error if allocation or mapping fails
func NewUploadBuffer[T any](dev device.Device, label string, count int, usage device.Usage) (*UploadBuffer[T], error) {
	if count < 1 {
		return nil, fmt.Errorf("upload buffer %q: count %d: %w", label, count, ErrIndexOutOfRange)
	}
	var zero T
	u := &UploadBuffer[T]{
		count:       count,
		elementSize: uint64(unsafe.Sizeof(zero)),
	}
	u.stride = u.elementSize
	if usage&device.UsageConstant != 0 {
		u.stride = common.AlignUp(u.elementSize, common.ConstantBufferAlignment)
	}

	buf, err := dev.AllocateUploadBuffer(label, u.stride*uint64(count), usage)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate upload buffer %q: %w", label, err)
	}
	mem, err := buf.Map()
	if err != nil {
		buf.Release()
		return nil, fmt.Errorf("failed to map upload buffer %q: %w", label, err)
	}
	u.buf = buf
	u.mem = mem
	return u, nil
}

// CopyData copies v into element index.
//
// Parameters:
//   - index: the element index
//   - v: the value to copy
//
// Returns:
//   - error: ErrIndexOutOfRange if index is outside the buffer
func (u *UploadBuffer[T]) CopyData(index int, v *T) error {
	return u.CopyBytes(index, common.StructToBytes(v))
}

// CopyBytes copies raw bytes of one element into element index.
//
// Parameters:
//   - index: the element index
//   - data: at most one element worth of bytes
//
// Returns:
//   - error: ErrIndexOutOfRange if index is outside the buffer or data is larger than an element
func (u *UploadBuffer[T]) CopyBytes(index int, data []byte) error {
	if index < 0 || index >= u.count {
		return fmt.Errorf("element %d of %d in %q: %w", index, u.count, u.buf.Label(), ErrIndexOutOfRange)
	}
	if uint64(len(data)) > u.ElementSize() {
		return fmt.Errorf("%d bytes into %d-byte element of %q: %w", len(data), u.ElementSize(), u.buf.Label(), ErrIndexOutOfRange)
	}
	copy(u.mem[u.Offset(index):], data)
	return nil
}

// CopySlice copies values into consecutive elements starting at start.
//
// Parameters:
//   - start: the first element index
//   - values: the values to copy
//
// Returns:
//   - error: ErrIndexOutOfRange if the range does not fit
func (u *UploadBuffer[T]) CopySlice(start int, values []T) error {
	if start < 0 || start+len(values) > u.count {
		return fmt.Errorf("elements [%d, %d) of %d in %q: %w", start, start+len(values), u.count, u.buf.Label(), ErrIndexOutOfRange)
	}
	if u.stride == u.elementSize {
		copy(u.mem[u.Offset(start):], common.SliceToBytes(values))
		return nil
	}
	for i := range values {
		copy(u.mem[u.Offset(start+i):], common.StructToBytes(&values[i]))
	}
	return nil
}

// Buffer returns the device buffer.
func (u *UploadBuffer[T]) Buffer() device.Buffer { return u.buf }

// Offset returns the byte offset of element index.
func (u *UploadBuffer[T]) Offset(index int) uint64 { return uint64(index) * u.stride }

// Stride returns the byte distance between consecutive elements.
func (u *UploadBuffer[T]) Stride() uint64 { return u.stride }

// ElementSize returns the unpadded size of T.
func (u *UploadBuffer[T]) ElementSize() uint64 { return u.elementSize }

// Len returns the number of elements.
func (u *UploadBuffer[T]) Len() int { return u.count }

// Release unmaps and releases the device buffer.
func (u *UploadBuffer[T]) Release() {
	if u.buf == nil {
		return
	}
	u.buf.Unmap()
	u.buf.Release()
	u.buf = nil
	u.mem = nil
}
