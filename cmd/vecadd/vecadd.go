package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-waves/common"
	"github.com/Carmen-Shannon/oxy-waves/engine/device"
	"github.com/Carmen-Shannon/oxy-waves/engine/device/soft"
	"github.com/Carmen-Shannon/oxy-waves/engine/fence"
)

const (
	vectorAddKey = "vector_add"
	groupSize    = 64
)

// elementFloats is the number of float32 components in one VectorAddElement.
const elementFloats = int(unsafe.Sizeof(common.VectorAddElement{}) / 4)

const vectorAddWGSL = `
struct Params {
    count: u32,
}

@group(0) @binding(0) var<storage, read> a: array<f32>;
@group(0) @binding(1) var<storage, read> b: array<f32>;
@group(0) @binding(2) var<storage, read_write> c: array<f32>;
@group(1) @binding(0) var<uniform> params: Params;

@compute @workgroup_size(64, 1, 1)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    if (id.x < params.count) {
        c[id.x] = a[id.x] + b[id.x];
    }
}
`

// vectorAddKernel is the CPU version of vectorAddWGSL for the software device.
func vectorAddKernel(inv device.KernelInvocation) error {
	if len(inv.Textures) != 3 || len(inv.Constants) < 1 {
		return fmt.Errorf("%s: want 3 textures and 1 constant, got %d and %d", vectorAddKey, len(inv.Textures), len(inv.Constants))
	}
	a, b, c := inv.Textures[0].Data, inv.Textures[1].Data, inv.Textures[2].Data
	n := min(int(inv.Constants[0]), inv.Groups[0]*groupSize, len(c))
	for i := 0; i < n; i++ {
		c[i] = a[i] + b[i]
	}
	return nil
}

// texelIO moves texel data between the CPU and textures of one device.
type texelIO interface {
	WriteTexture(t device.Texture, data []float32) error
	ReadTexture(t device.Texture) ([]float32, error)
}

// softTexels accesses soft device textures directly. Callers only touch a texture
// while the GPU is idle.
type softTexels struct {
	dev soft.Device
}

func (s softTexels) WriteTexture(t device.Texture, data []float32) error {
	dst := s.dev.TextureData(t)
	if len(data) > len(dst) {
		return fmt.Errorf("write %d texels to %q: %w", len(data), t.Label(), device.ErrInvalidState)
	}
	copy(dst, data)
	return nil
}

func (s softTexels) ReadTexture(t device.Texture) ([]float32, error) {
	return append([]float32(nil), s.dev.TextureData(t)...), nil
}

// inputs returns the two operand arrays: a[i] = (i, i, i, i, 0) and b[i] = (-i, i, 0, 0, -i).
func inputs(n int) (a, b []common.VectorAddElement) {
	a = make([]common.VectorAddElement, n)
	b = make([]common.VectorAddElement, n)
	for i := range a {
		f := float32(i)
		a[i] = common.VectorAddElement{V1: [3]float32{f, f, f}, V2: [2]float32{f, 0}}
		b[i] = common.VectorAddElement{V1: [3]float32{-f, f, 0}, V2: [2]float32{0, -f}}
	}
	return a, b
}

// vectorAdd computes a + b element-wise in a single compute dispatch and waits for the result.
//
// Parameters:
//   - ctx: bounds the fence wait
//   - dev: the device to dispatch on
//   - texels: uploads the operands and reads back the sum
//   - a: first operand
//   - b: second operand, same length as a
//
// Returns:
//   - []common.VectorAddElement: the sums
//   - error: a device, fence or length mismatch error
func vectorAdd(ctx context.Context, dev device.Device, texels texelIO, a, b []common.VectorAddElement) ([]common.VectorAddElement, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("operands have %d and %d elements: %w", len(a), len(b), device.ErrInvalidState)
	}
	n := len(a)
	count := n * elementFloats

	p, err := dev.NewComputePipeline(device.ComputePipelineDescriptor{
		Key:           vectorAddKey,
		WGSL:          vectorAddWGSL,
		Kernel:        vectorAddKernel,
		Textures:      []device.Access{device.AccessRead, device.AccessRead, device.AccessReadWrite},
		RootConstants: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s pipeline: %w", vectorAddKey, err)
	}
	defer p.Release()

	var textures [3]device.Texture
	for i, label := range []string{"input_a", "input_b", "output"} {
		textures[i], err = dev.AllocateTexture(label, elementFloats, n)
		if err != nil {
			return nil, err
		}
		defer textures[i].Release()
	}
	if err := texels.WriteTexture(textures[0], common.BytesToSlice[float32](common.SliceToBytes(a))); err != nil {
		return nil, err
	}
	if err := texels.WriteTexture(textures[1], common.BytesToSlice[float32](common.SliceToBytes(b))); err != nil {
		return nil, err
	}

	sync, err := fence.New(dev)
	if err != nil {
		return nil, err
	}
	defer sync.Release()
	alloc, err := dev.NewCommandAllocator()
	if err != nil {
		return nil, err
	}
	defer alloc.Release()
	list, err := dev.NewCommandList(alloc)
	if err != nil {
		return nil, err
	}

	err = device.Record(list, alloc, func(cl device.CommandList) error {
		for _, t := range textures {
			cl.ResourceBarrier(t, device.StateCommon, device.StateUnorderedAccess)
		}
		cl.SetComputePipeline(p)
		cl.SetComputeRootConstants([]uint32{uint32(count)})
		cl.SetComputeTextures(textures[:]...)
		cl.Dispatch((count+groupSize-1)/groupSize, 1, 1)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := dev.Queue().Submit(list); err != nil {
		return nil, err
	}
	if err := sync.Flush(ctx); err != nil {
		return nil, err
	}

	out, err := texels.ReadTexture(textures[2])
	if err != nil {
		return nil, err
	}
	return common.BytesToSlice[common.VectorAddElement](common.SliceToBytes(out[:count])), nil
}

// writeResults writes one "(x, y, z, u, v)" line per element.
func writeResults(w io.Writer, results []common.VectorAddElement) error {
	bw := bufio.NewWriter(w)
	for _, r := range results {
		fmt.Fprintf(bw, "(%.6f, %.6f, %.6f, %.6f, %.6f)\n", r.V1[0], r.V1[1], r.V1[2], r.V2[0], r.V2[1])
	}
	return bw.Flush()
}

// checkResults reports the first element that differs from a + b.
func checkResults(a, b, got []common.VectorAddElement) error {
	for i := range got {
		want := common.VectorAddElement{
			V1: [3]float32{a[i].V1[0] + b[i].V1[0], a[i].V1[1] + b[i].V1[1], a[i].V1[2] + b[i].V1[2]},
			V2: [2]float32{a[i].V2[0] + b[i].V2[0], a[i].V2[1] + b[i].V2[1]},
		}
		for k := range want.V1 {
			if math.Abs(float64(want.V1[k]-got[i].V1[k])) > 1e-6 {
				return fmt.Errorf("element %d: got %v, want %v", i, got[i], want)
			}
		}
		for k := range want.V2 {
			if math.Abs(float64(want.V2[k]-got[i].V2[k])) > 1e-6 {
				return fmt.Errorf("element %d: got %v, want %v", i, got[i], want)
			}
		}
	}
	return nil
}
