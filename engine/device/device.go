// Package device defines the graphics device abstraction consumed by the frame pipeline.
//
// The frame ring, fence synchronizer and wave simulation only ever need to allocate
// GPU-visible buffers, record and submit command lists, signal and wait on fences,
// and dispatch compute work. Everything else (surface creation, shader compilation,
// pipeline state) stays behind the concrete backends in the soft and wgpu
// subpackages.
package device

import (
	"errors"
	"fmt"
)

// ErrDeviceLost means the device is in an unrecoverable state. Everything created
// from it must be released; no retry is attempted.
var ErrDeviceLost = errors.New("device: device lost")

// ErrOutOfMemory means a GPU allocation could not be satisfied.
var ErrOutOfMemory = errors.New("device: out of device memory")

// ErrNotMappable means Map was called on a buffer that lives in GPU-only memory.
var ErrNotMappable = errors.New("device: buffer is not CPU-visible")

// ErrInvalidState means a command list used a resource in a state other than the
// one the command requires, or recorded a barrier whose "from" state is wrong.
var ErrInvalidState = errors.New("device: invalid resource state")

// ErrNotRecording means a command was recorded into a closed command list, or a
// list still being recorded was submitted.
var ErrNotRecording = errors.New("device: command list is not recording")

// Usage describes how a buffer will be bound.
type Usage int

const (
	// UsageConstant buffers are bound with SetConstantBuffer.
	UsageConstant Usage = 1 << iota
	// UsageVertex buffers are bound with SetVertexBuffer.
	UsageVertex
	// UsageIndex buffers are bound with SetIndexBuffer.
	UsageIndex
	// UsageStorage buffers are read or written by compute dispatches.
	UsageStorage
	// UsageReadback buffers are copy destinations that the CPU may map.
	UsageReadback
)

// ResourceState is the access state a texture is in on the GPU timeline.
type ResourceState int

const (
	// StateCommon is the initial state of a freshly allocated texture.
	StateCommon ResourceState = iota
	// StateUnorderedAccess allows compute dispatches to read and write the texture.
	StateUnorderedAccess
	// StateShaderRead allows the vertex/pixel stages to sample the texture.
	StateShaderRead
)

func (s ResourceState) String() string {
	switch s {
	case StateCommon:
		return "common"
	case StateUnorderedAccess:
		return "unordered-access"
	case StateShaderRead:
		return "shader-read"
	default:
		return fmt.Sprintf("ResourceState(%d)", int(s))
	}
}

// Device is the interface to an underlying GPU implementation.
type Device interface {
	// Name returns a human readable name of the backend/adapter.
	Name() string

	// AllocateUploadBuffer creates a persistently mapped CPU-visible buffer.
	// Writes through the slice returned by Map become visible to command lists
	// submitted afterwards.
	AllocateUploadBuffer(label string, size uint64, usage Usage) (Buffer, error)

	// AllocateGPUBuffer creates a buffer in GPU-only memory.
	AllocateGPUBuffer(label string, size uint64, usage Usage) (Buffer, error)

	// AllocateTexture creates a single-channel float32 texture that compute
	// dispatches can write and the vertex stage can sample.
	AllocateTexture(label string, width, height int) (Texture, error)

	// NewCommandAllocator creates the backing memory for command lists.
	// An allocator may only be reset once every list recorded from it has
	// finished executing on the GPU.
	NewCommandAllocator() (CommandAllocator, error)

	// NewCommandList creates a closed command list bound to alloc.
	NewCommandList(alloc CommandAllocator) (CommandList, error)

	// NewComputePipeline creates a compute pipeline.
	NewComputePipeline(desc ComputePipelineDescriptor) (Pipeline, error)

	// NewGraphicsPipeline creates a graphics pipeline.
	NewGraphicsPipeline(desc GraphicsPipelineDescriptor) (Pipeline, error)

	// NewFence creates a fence whose completed value starts at initial.
	NewFence(initial uint64) (Fence, error)

	// Queue returns the single direct queue of the device.
	Queue() Queue

	// Present presents the back buffer rendered by the last submitted render pass.
	Present() error

	// Release destroys the device. It must only be called once the GPU is idle.
	Release()
}

// Buffer is a linear GPU allocation.
type Buffer interface {
	Label() string
	Size() uint64
	Usage() Usage

	// Map returns the CPU view of an upload or readback buffer. Upload buffers
	// stay mapped for their whole lifetime, so repeated calls return the same slice.
	Map() ([]byte, error)

	// Unmap releases the CPU view. It is a no-op for persistently mapped buffers.
	Unmap()

	Release()
}

// Texture is a 2D single-channel float32 GPU resource.
type Texture interface {
	Label() string
	Width() int
	Height() int
	Release()
}

// CommandAllocator backs the memory of recorded command lists.
type CommandAllocator interface {
	// Reset reclaims the memory of every list recorded from the allocator.
	Reset() error
	Release()
}

// Pipeline is an opaque compute or graphics pipeline.
type Pipeline interface {
	Key() string
	Release()
}

// CommandList records GPU commands. Reset opens it for recording, Close ends recording,
// and only closed lists may be submitted.
type CommandList interface {
	Reset(alloc CommandAllocator) error
	Close() error

	SetComputePipeline(p Pipeline)
	SetComputeRootConstants(values []uint32)
	SetComputeTextures(textures ...Texture)
	ResourceBarrier(t Texture, from, to ResourceState)
	Dispatch(groupsX, groupsY, groupsZ int)

	BeginRenderPass(clear [4]float32)
	SetGraphicsPipeline(p Pipeline)
	SetVertexBuffer(buf Buffer, offset, stride uint64)
	SetIndexBuffer(buf Buffer, offset uint64)
	SetConstantBuffer(slot int, buf Buffer, offset uint64)
	SetGraphicsTexture(t Texture)
	DrawIndexed(indexCount, startIndex, baseVertex int)
	EndRenderPass()

	Release()
}

// Queue executes command lists in submission order.
type Queue interface {
	// Submit enqueues closed command lists for execution.
	Submit(lists ...CommandList) error

	// Signal enqueues a fence signal that fires once every previously submitted
	// command has completed.
	Signal(f Fence, value uint64) error
}

// Fence is a monotonically increasing counter shared by the GPU and CPU timelines.
type Fence interface {
	// CompletedValue returns the last value reached by the GPU. It never decreases.
	CompletedValue() uint64

	// SetEventOnCompletion arranges for ch to receive nil once the fence reaches
	// value, or ErrDeviceLost if the device is lost first. ch should be buffered:
	// a send is never retried. If value has already been reached the send happens
	// before SetEventOnCompletion returns.
	SetEventOnCompletion(value uint64, ch chan<- error) error

	Release()
}

// Access declares how a compute pipeline touches a bound texture.
type Access int

const (
	// AccessRead textures are only read by the dispatch.
	AccessRead Access = iota
	// AccessReadWrite textures are written by the dispatch.
	AccessReadWrite
)

// KernelTexture is the CPU view of a bound texture handed to a software kernel.
type KernelTexture struct {
	Width, Height int
	Data          []float32
}

// KernelInvocation carries the state of a single Dispatch to a software kernel.
type KernelInvocation struct {
	Groups    [3]int
	Constants []uint32
	Textures  []KernelTexture
}

// Kernel is the CPU implementation of a compute shader, run by the software backend.
type Kernel func(inv KernelInvocation) error

// ComputePipelineDescriptor describes a compute pipeline. Backends use whichever
// of WGSL and Kernel they understand.
type ComputePipelineDescriptor struct {
	Key string
	// WGSL is the shader source, entry point "main".
	WGSL string
	// Kernel is the CPU equivalent of WGSL.
	Kernel Kernel
	// Textures declares the access of each texture slot, in SetComputeTextures order.
	Textures []Access
	// RootConstants is the number of 32-bit root constants.
	RootConstants int
}

// GraphicsPipelineDescriptor describes a graphics pipeline.
type GraphicsPipelineDescriptor struct {
	Key string
	// VertexWGSL and FragmentWGSL are the shader sources, entry points "vs_main" and "fs_main".
	VertexWGSL   string
	FragmentWGSL string
	// VertexStride is the byte stride of the single vertex buffer.
	VertexStride uint64
	// ConstantBuffers is the number of constant buffer slots (bind groups 0..n-1).
	ConstantBuffers int
	// DisplacementMap binds one read-only texture after the constant buffers.
	DisplacementMap bool
	Wireframe       bool
}

// Record opens list on alloc, calls build, and closes the list. The list is closed
// even if build fails, and build's error takes precedence.
//
// Parameters:
//   - list: the command list to record into
//   - alloc: the allocator backing the recorded commands
//   - build: the function recording commands
//
// Returns:
//   - error: the first error from Reset, build or Close
func Record(list CommandList, alloc CommandAllocator, build func(CommandList) error) error {
	if err := list.Reset(alloc); err != nil {
		return fmt.Errorf("resetting command list: %w", err)
	}
	if err := build(list); err != nil {
		_ = list.Close()
		return err
	}
	if err := list.Close(); err != nil {
		return fmt.Errorf("closing command list: %w", err)
	}
	return nil
}
