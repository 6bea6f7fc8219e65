// Package webgpu implements device.Device on top of wgpu-native through the
// cogentcore/webgpu bindings.
//
// WebGPU has no user-visible fences, command allocators or explicit barriers, so the
// backend maps them onto what it does have:
//
//   - upload buffers keep a CPU copy that is pushed with Queue.WriteBuffer at submit time
//   - textures are storage buffers of width*height float32 values
//   - command lists record commands on the CPU and are encoded when submitted
//   - root constants live in a uniform arena owned by the command allocator
//   - fence signals are completed by a goroutine polling the submission they follow
package webgpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"math"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-waves/engine/device"
	"github.com/Carmen-Shannon/oxy-waves/engine/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// constantSlotSize is the byte size of one dispatch's root constants in the arena. It
// matches the minimum uniform buffer offset alignment of the default limits.
const constantSlotSize = 256

const maxBindings = 4

// Device is the WebGPU device. Beyond device.Device it exposes the surface and readback
// operations the sample and its tools need.
type Device interface {
	device.Device

	// ConfigureSurface resizes the render target and its depth buffer. It must be
	// called when the window size changes.
	//
	// Parameters:
	//   - width: the new width in pixels
	//   - height: the new height in pixels
	ConfigureSurface(width, height int)

	// ReadTexture copies a texture back to the CPU. It waits for the queue to drain.
	//
	// Parameters:
	//   - t: a texture allocated by this device
	//
	// Returns:
	//   - []float32: row-major texel data
	//   - error: an error if the copy or the mapping failed
	ReadTexture(t device.Texture) ([]float32, error)

	// WriteTexture uploads texel data through the queue. The write is ordered before
	// the next Submit.
	//
	// Parameters:
	//   - t: a texture allocated by this device
	//   - data: row-major texel data, at most Width*Height values
	//
	// Returns:
	//   - error: an error if the texture is foreign or data does not fit
	WriteTexture(t device.Texture, data []float32) error
}

type signal struct {
	fence     *fence
	value     uint64
	index     wgpu.SubmissionIndex
	submitted bool
}

type bindKey struct {
	layout  *wgpu.BindGroupLayout
	buffers [maxBindings]*wgpu.Buffer
	offsets [maxBindings]uint64
}

type webgpuDevice struct {
	mu sync.Mutex

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	surface  *wgpu.Surface

	surfaceDescriptor    *wgpu.SurfaceDescriptor
	forceFallbackAdapter bool
	presentMode          wgpu.PresentMode
	format               wgpu.TextureFormat
	width, height        int

	depthTexture *wgpu.Texture
	depthView    *wgpu.TextureView
	// offscreen is the color target when there is no surface.
	offscreen     *wgpu.Texture
	offscreenView *wgpu.TextureView
	frameSurface  *wgpu.Texture
	frameView     *wgpu.TextureView

	bindGroups map[bindKey]*wgpu.BindGroup

	lastSubmission wgpu.SubmissionIndex
	submitted      bool
	signals        chan signal
	done           chan struct{}
	released       atomic.Bool
	releaseOnce    sync.Once
}

var _ Device = &webgpuDevice{}

// NewDevice creates the instance, adapter and device, configures the render target and
// starts the goroutine that completes fence signals.
//
// Parameters:
//   - options: functional options for the surface, size, adapter and present mode
//
// Returns:
//   - Device: the WebGPU device
//   - error: an error if no adapter or device could be created
func NewDevice(options ...DeviceBuilderOption) (Device, error) {
	d := &webgpuDevice{
		instance:    wgpu.CreateInstance(nil),
		presentMode: wgpu.PresentModeImmediate,
		format:      wgpu.TextureFormatBGRA8Unorm,
		width:       1280,
		height:      720,
		bindGroups:  make(map[bindKey]*wgpu.BindGroup),
		signals:     make(chan signal, 64),
		done:        make(chan struct{}),
	}
	for _, opt := range options {
		opt(d)
	}

	if d.surfaceDescriptor != nil {
		d.surface = d.instance.CreateSurface(d.surfaceDescriptor)
	}

	a, err := d.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: d.forceFallbackAdapter,
		CompatibleSurface:    d.surface,
	})
	if err != nil {
		d.instance.Release()
		return nil, fmt.Errorf("requesting adapter: %w", err)
	}
	d.adapter = a

	dev, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Waves Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: wgpu.DefaultLimits(),
		},
	})
	if err != nil {
		a.Release()
		d.instance.Release()
		return nil, fmt.Errorf("requesting device: %w", err)
	}
	d.device = dev
	d.queue = dev.GetQueue()

	if d.surface != nil {
		d.format = d.surface.GetCapabilities(d.adapter).Formats[0]
	}
	d.ConfigureSurface(d.width, d.height)

	go d.timeline()
	log.Printf("[WebGPU] device ready, target %dx%d, surface %t", d.width, d.height, d.surface != nil)
	return d, nil
}

// timeline completes fence signals in order once the submission they follow is done.
func (d *webgpuDevice) timeline() {
	defer close(d.done)
	for s := range d.signals {
		if s.submitted {
			d.device.Poll(true, &wgpu.WrappedSubmissionIndex{Queue: d.queue, SubmissionIndex: s.index})
		}
		s.fence.complete(s.value)
	}
}

func (d *webgpuDevice) Name() string {
	return "webgpu"
}

func (d *webgpuDevice) ConfigureSurface(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.width, d.height = width, height

	if d.surface != nil {
		capabilities := d.surface.GetCapabilities(d.adapter)
		d.surface.Configure(d.adapter, d.device, &wgpu.SurfaceConfiguration{
			Usage:       wgpu.TextureUsageRenderAttachment,
			Format:      d.format,
			Width:       uint32(width),
			Height:      uint32(height),
			PresentMode: d.presentMode,
			AlphaMode:   capabilities.AlphaModes[0],
		})
	} else {
		d.releaseTexture(&d.offscreen, &d.offscreenView)
		tex, view, err := d.createTarget("Offscreen Target", d.format, wgpu.TextureUsageRenderAttachment|wgpu.TextureUsageCopySrc)
		if err != nil {
			log.Printf("[WebGPU] offscreen target %dx%d: %v", width, height, err)
		}
		d.offscreen, d.offscreenView = tex, view
	}

	d.releaseTexture(&d.depthTexture, &d.depthView)
	tex, view, err := d.createTarget("Depth Texture", wgpu.TextureFormatDepth24Plus, wgpu.TextureUsageRenderAttachment)
	if err != nil {
		log.Printf("[WebGPU] depth texture %dx%d: %v", width, height, err)
	}
	d.depthTexture, d.depthView = tex, view
}

func (d *webgpuDevice) createTarget(label string, format wgpu.TextureFormat, usage wgpu.TextureUsage) (*wgpu.Texture, *wgpu.TextureView, error) {
	tex, err := d.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: label,
		Size: wgpu.Extent3D{
			Width:              uint32(d.width),
			Height:             uint32(d.height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        format,
		Usage:         usage,
	})
	if err != nil {
		return nil, nil, err
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, nil, err
	}
	return tex, view, nil
}

func (d *webgpuDevice) releaseTexture(tex **wgpu.Texture, view **wgpu.TextureView) {
	if *view != nil {
		(*view).Release()
		*view = nil
	}
	if *tex != nil {
		(*tex).Release()
		*tex = nil
	}
}

func bufferUsage(u device.Usage) wgpu.BufferUsage {
	if u&device.UsageReadback != 0 {
		return wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst
	}
	usage := wgpu.BufferUsageCopyDst
	if u&device.UsageConstant != 0 {
		usage |= wgpu.BufferUsageUniform
	}
	if u&device.UsageVertex != 0 {
		usage |= wgpu.BufferUsageVertex
	}
	if u&device.UsageIndex != 0 {
		usage |= wgpu.BufferUsageIndex
	}
	if u&device.UsageStorage != 0 {
		usage |= wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc
	}
	return usage
}

func (d *webgpuDevice) createBuffer(label string, size uint64, usage wgpu.BufferUsage) (*wgpu.Buffer, error) {
	if d.released.Load() {
		return nil, device.ErrDeviceLost
	}
	// Buffer sizes must be a multiple of 4 for WriteBuffer and copies.
	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  (size + 3) &^ 3,
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("webgpu: buffer %q (%d bytes): %w: %v", label, size, device.ErrOutOfMemory, err)
	}
	return buf, nil
}

func (d *webgpuDevice) AllocateUploadBuffer(label string, size uint64, usage device.Usage) (device.Buffer, error) {
	gpu, err := d.createBuffer(label, size, bufferUsage(usage&^device.UsageReadback))
	if err != nil {
		return nil, err
	}
	return &buffer{dev: d, label: label, usage: usage, size: size, gpu: gpu, data: make([]byte, (size+3)&^3), upload: true}, nil
}

func (d *webgpuDevice) AllocateGPUBuffer(label string, size uint64, usage device.Usage) (device.Buffer, error) {
	gpu, err := d.createBuffer(label, size, bufferUsage(usage))
	if err != nil {
		return nil, err
	}
	return &buffer{dev: d, label: label, usage: usage, size: size, gpu: gpu}, nil
}

func (d *webgpuDevice) AllocateTexture(label string, width, height int) (device.Texture, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("webgpu: invalid texture size %dx%d", width, height)
	}
	gpu, err := d.createBuffer(label, uint64(width*height*4), bufferUsage(device.UsageStorage))
	if err != nil {
		return nil, err
	}
	return &texture{dev: d, label: label, width: width, height: height, gpu: gpu}, nil
}

func (d *webgpuDevice) NewCommandAllocator() (device.CommandAllocator, error) {
	if d.released.Load() {
		return nil, device.ErrDeviceLost
	}
	return &commandAllocator{dev: d}, nil
}

func (d *webgpuDevice) NewCommandList(alloc device.CommandAllocator) (device.CommandList, error) {
	a, ok := alloc.(*commandAllocator)
	if !ok {
		return nil, fmt.Errorf("webgpu: foreign command allocator %T", alloc)
	}
	return &commandList{alloc: a}, nil
}

// createLayouts creates one bind group layout per group index 0..count-1.
func (d *webgpuDevice) createLayouts(key string, groups map[int]wgpu.BindGroupLayoutDescriptor, count int) ([]*wgpu.BindGroupLayout, [][]wgpu.BindGroupLayoutEntry, error) {
	if len(groups) != count {
		return nil, nil, fmt.Errorf("webgpu: pipeline %q declares %d bind groups, want %d", key, len(groups), count)
	}
	layouts := make([]*wgpu.BindGroupLayout, count)
	entries := make([][]wgpu.BindGroupLayoutEntry, count)
	for g := 0; g < count; g++ {
		desc, ok := groups[g]
		if !ok {
			releaseLayouts(layouts)
			return nil, nil, fmt.Errorf("webgpu: pipeline %q has no bind group %d", key, g)
		}
		desc.Label = fmt.Sprintf("%s group %d", key, g)
		layout, err := d.device.CreateBindGroupLayout(&desc)
		if err != nil {
			releaseLayouts(layouts)
			return nil, nil, fmt.Errorf("failed to create bind group layout for group %d: %w", g, err)
		}
		layouts[g] = layout
		entries[g] = desc.Entries
	}
	return layouts, entries, nil
}

func releaseLayouts(layouts []*wgpu.BindGroupLayout) {
	for _, l := range layouts {
		if l != nil {
			l.Release()
		}
	}
}

func (d *webgpuDevice) NewComputePipeline(desc device.ComputePipelineDescriptor) (device.Pipeline, error) {
	ref, err := shader.Reflect(desc.WGSL, shader.StageCompute)
	if err != nil {
		return nil, fmt.Errorf("webgpu: compute pipeline %q: %w", desc.Key, err)
	}
	groups := 1
	if desc.RootConstants > 0 {
		groups = 2
	}
	layouts, entries, err := d.createLayouts(desc.Key, ref.BindGroups, groups)
	if err != nil {
		return nil, err
	}
	if n := len(entries[0]); n != len(desc.Textures) {
		releaseLayouts(layouts)
		return nil, fmt.Errorf("webgpu: compute pipeline %q binds %d textures, want %d", desc.Key, n, len(desc.Textures))
	}

	module, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: desc.Key,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: desc.WGSL,
		},
	})
	if err != nil {
		releaseLayouts(layouts)
		return nil, err
	}
	defer module.Release()

	pipelineLayout, err := d.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            desc.Key,
		BindGroupLayouts: layouts,
	})
	if err != nil {
		releaseLayouts(layouts)
		return nil, err
	}

	created, err := d.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  desc.Key + " Compute Pipeline",
		Layout: pipelineLayout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: ref.EntryPoint,
		},
	})
	if err != nil {
		pipelineLayout.Release()
		releaseLayouts(layouts)
		return nil, err
	}

	return &pipeline{
		dev:           d,
		key:           desc.Key,
		compute:       created,
		layout:        pipelineLayout,
		layouts:       layouts,
		entries:       entries,
		textures:      len(desc.Textures),
		rootConstants: desc.RootConstants,
	}, nil
}

func (d *webgpuDevice) NewGraphicsPipeline(desc device.GraphicsPipelineDescriptor) (device.Pipeline, error) {
	vsRef, err := shader.Reflect(desc.VertexWGSL, shader.StageVertex)
	if err != nil {
		return nil, fmt.Errorf("webgpu: graphics pipeline %q: %w", desc.Key, err)
	}
	fsRef, err := shader.Reflect(desc.FragmentWGSL, shader.StageFragment)
	if err != nil {
		return nil, fmt.Errorf("webgpu: graphics pipeline %q: %w", desc.Key, err)
	}
	if len(vsRef.VertexLayouts) != 1 {
		return nil, fmt.Errorf("webgpu: graphics pipeline %q has %d vertex input structs, want 1", desc.Key, len(vsRef.VertexLayouts))
	}
	vertexLayout := vsRef.VertexLayouts[0]
	if desc.VertexStride > 0 {
		vertexLayout.ArrayStride = desc.VertexStride
	}

	groups := desc.ConstantBuffers
	if desc.DisplacementMap {
		groups++
	}
	layouts, entries, err := d.createLayouts(desc.Key, shader.MergeBindGroups(vsRef.BindGroups, fsRef.BindGroups), groups)
	if err != nil {
		return nil, err
	}

	vs, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          desc.Key + " vertex",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: desc.VertexWGSL},
	})
	if err != nil {
		releaseLayouts(layouts)
		return nil, err
	}
	defer vs.Release()
	fs, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          desc.Key + " fragment",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: desc.FragmentWGSL},
	})
	if err != nil {
		releaseLayouts(layouts)
		return nil, err
	}
	defer fs.Release()

	pipelineLayout, err := d.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            desc.Key,
		BindGroupLayouts: layouts,
	})
	if err != nil {
		releaseLayouts(layouts)
		return nil, err
	}

	// Wireframe draws re-index triangles as line lists, see lineIndices.
	topology := wgpu.PrimitiveTopologyTriangleList
	if desc.Wireframe {
		topology = wgpu.PrimitiveTopologyLineList
	}

	created, err := d.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  desc.Key + " Render Pipeline",
		Layout: pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     vs,
			EntryPoint: vsRef.EntryPoint,
			Buffers:    []wgpu.VertexBufferLayout{vertexLayout},
		},
		Fragment: &wgpu.FragmentState{
			Module:     fs,
			EntryPoint: fsRef.EntryPoint,
			Targets: []wgpu.ColorTargetState{
				{
					Format:    d.format,
					WriteMask: wgpu.ColorWriteMaskAll,
				},
			},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  topology,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
		DepthStencil: &wgpu.DepthStencilState{
			Format:            wgpu.TextureFormatDepth24Plus,
			DepthWriteEnabled: true,
			DepthCompare:      wgpu.CompareFunctionLess,
			StencilFront: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
			StencilBack: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
		},
	})
	if err != nil {
		pipelineLayout.Release()
		releaseLayouts(layouts)
		return nil, err
	}

	return &pipeline{
		dev:             d,
		key:             desc.Key,
		render:          created,
		layout:          pipelineLayout,
		layouts:         layouts,
		entries:         entries,
		constantBuffers: desc.ConstantBuffers,
		displacement:    desc.DisplacementMap,
		wireframe:       desc.Wireframe,
	}, nil
}

func (d *webgpuDevice) NewFence(initial uint64) (device.Fence, error) {
	if d.released.Load() {
		return nil, device.ErrDeviceLost
	}
	return &fence{dev: d, completed: initial}, nil
}

func (d *webgpuDevice) Queue() device.Queue {
	return (*queue)(d)
}

func (d *webgpuDevice) Present() error {
	if d.released.Load() {
		return device.ErrDeviceLost
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.frameSurface == nil {
		return nil
	}
	d.surface.Present()
	d.releaseTexture(&d.frameSurface, &d.frameView)
	return nil
}

// Release waits for pending fence signals and destroys every device-level object.
func (d *webgpuDevice) Release() {
	d.releaseOnce.Do(func() {
		d.released.Store(true)
		close(d.signals)
		<-d.done

		d.mu.Lock()
		defer d.mu.Unlock()
		for k, bg := range d.bindGroups {
			bg.Release()
			delete(d.bindGroups, k)
		}
		d.releaseTexture(&d.frameSurface, &d.frameView)
		d.releaseTexture(&d.offscreen, &d.offscreenView)
		d.releaseTexture(&d.depthTexture, &d.depthView)
		if d.surface != nil {
			d.surface.Release()
		}
		d.queue.Release()
		d.device.Release()
		d.adapter.Release()
		d.instance.Release()
	})
}

func (d *webgpuDevice) ReadTexture(t device.Texture) ([]float32, error) {
	tex, ok := t.(*texture)
	if !ok {
		return nil, fmt.Errorf("webgpu: foreign texture %T", t)
	}
	size := uint64(tex.width * tex.height * 4)
	staging, err := d.createBuffer(tex.label+" readback", size, wgpu.BufferUsageMapRead|wgpu.BufferUsageCopyDst)
	if err != nil {
		return nil, err
	}
	defer staging.Release()

	encoder, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, err
	}
	defer encoder.Release()
	encoder.CopyBufferToBuffer(tex.gpu, 0, staging, 0, size)
	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		return nil, err
	}
	d.queue.Submit(commandBuffer)
	commandBuffer.Release()

	raw, err := d.mapRead(staging, size)
	if err != nil {
		return nil, fmt.Errorf("webgpu: read %q: %w", tex.label, err)
	}
	out := make([]float32, tex.width*tex.height)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out, nil
}

func (d *webgpuDevice) WriteTexture(t device.Texture, data []float32) error {
	tex, ok := t.(*texture)
	if !ok {
		return fmt.Errorf("webgpu: foreign texture %T", t)
	}
	if len(data) > tex.width*tex.height {
		return fmt.Errorf("webgpu: write %d texels to %q (%dx%d): %w", len(data), tex.label, tex.width, tex.height, device.ErrInvalidState)
	}
	d.queue.WriteBuffer(tex.gpu, 0, wgpu.ToBytes(data))
	return nil
}

// mapRead maps buf, waits for the device and copies the mapped range.
func (d *webgpuDevice) mapRead(buf *wgpu.Buffer, size uint64) ([]byte, error) {
	var status wgpu.BufferMapAsyncStatus
	if err := buf.MapAsync(wgpu.MapModeRead, 0, size, func(s wgpu.BufferMapAsyncStatus) {
		status = s
	}); err != nil {
		return nil, err
	}
	d.device.Poll(true, nil)
	if status != wgpu.BufferMapAsyncStatusSuccess {
		return nil, fmt.Errorf("buffer map status %s", status.String())
	}
	out := make([]byte, size)
	copy(out, buf.GetMappedRange(0, uint(size)))
	buf.Unmap()
	return out, nil
}

// bindGroup returns a cached bind group of layout over the given buffer ranges.
func (d *webgpuDevice) bindGroup(layout *wgpu.BindGroupLayout, entries []wgpu.BindGroupEntry) (*wgpu.BindGroup, error) {
	key := bindKey{layout: layout}
	for i, e := range entries {
		key.buffers[i] = e.Buffer
		key.offsets[i] = e.Offset
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if bg, ok := d.bindGroups[key]; ok {
		return bg, nil
	}
	bg, err := d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout:  layout,
		Entries: entries,
	})
	if err != nil {
		return nil, err
	}
	d.bindGroups[key] = bg
	return bg, nil
}

// forget drops the cached bind groups that reference buf.
func (d *webgpuDevice) forget(buf *wgpu.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, bg := range d.bindGroups {
		for _, b := range k.buffers {
			if b == buf {
				bg.Release()
				delete(d.bindGroups, k)
				break
			}
		}
	}
}

// renderTarget returns the view the next render pass draws into, acquiring the
// surface texture on first use in a frame.
func (d *webgpuDevice) renderTarget() (*wgpu.TextureView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.surface == nil {
		if d.offscreenView == nil {
			return nil, errors.New("webgpu: no offscreen target")
		}
		return d.offscreenView, nil
	}
	if d.frameView != nil {
		return d.frameView, nil
	}
	surfaceTexture, err := d.surface.GetCurrentTexture()
	if err != nil {
		return nil, err
	}
	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		surfaceTexture.Release()
		return nil, err
	}
	d.frameSurface, d.frameView = surfaceTexture, view
	return view, nil
}

func (d *webgpuDevice) passDescriptor(view *wgpu.TextureView, clear [4]float32) *wgpu.RenderPassDescriptor {
	d.mu.Lock()
	defer d.mu.Unlock()
	return &wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{
				View:    view,
				LoadOp:  wgpu.LoadOpClear,
				StoreOp: wgpu.StoreOpStore,
				ClearValue: wgpu.Color{
					R: float64(clear[0]), G: float64(clear[1]), B: float64(clear[2]), A: float64(clear[3]),
				},
			},
		},
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            d.depthView,
			DepthLoadOp:     wgpu.LoadOpClear,
			DepthStoreOp:    wgpu.StoreOpDiscard,
			DepthClearValue: 1.0,
		},
	}
}

// queue is the device viewed through the device.Queue interface.
type queue webgpuDevice

func (q *queue) Submit(lists ...device.CommandList) error {
	d := (*webgpuDevice)(q)
	if d.released.Load() {
		return device.ErrDeviceLost
	}

	buffers := make([]*wgpu.CommandBuffer, 0, len(lists))
	defer func() {
		for _, cb := range buffers {
			cb.Release()
		}
	}()
	for _, l := range lists {
		cl, ok := l.(*commandList)
		if !ok {
			return fmt.Errorf("webgpu: foreign command list %T", l)
		}
		if cl.recording {
			return fmt.Errorf("webgpu: submit: %w", device.ErrNotRecording)
		}
		for b := range cl.uploads {
			b.flush()
		}
		if err := cl.alloc.writeConstants(cl); err != nil {
			return err
		}
		cb, err := d.encode(cl)
		if err != nil {
			return err
		}
		buffers = append(buffers, cb)
	}

	idx := d.queue.Submit(buffers...)
	d.mu.Lock()
	d.lastSubmission, d.submitted = idx, true
	d.mu.Unlock()
	return nil
}

func (q *queue) Signal(f device.Fence, value uint64) error {
	d := (*webgpuDevice)(q)
	if d.released.Load() {
		return device.ErrDeviceLost
	}
	wf, ok := f.(*fence)
	if !ok {
		return fmt.Errorf("webgpu: foreign fence %T", f)
	}
	d.mu.Lock()
	s := signal{fence: wf, value: value, index: d.lastSubmission, submitted: d.submitted}
	d.mu.Unlock()
	d.signals <- s
	return nil
}

type buffer struct {
	dev    *webgpuDevice
	label  string
	usage  device.Usage
	size   uint64
	gpu    *wgpu.Buffer
	upload bool

	// data is the CPU copy of an upload buffer, or the last mapped contents of a
	// readback buffer.
	data    []byte
	written uint64
	synced  bool

	lines     *wgpu.Buffer
	lineCount int
	linesHash uint64
}

func (b *buffer) Label() string       { return b.label }
func (b *buffer) Size() uint64        { return b.size }
func (b *buffer) Usage() device.Usage { return b.usage }

func (b *buffer) Map() ([]byte, error) {
	switch {
	case b.upload:
		return b.data[:b.size], nil
	case b.usage&device.UsageReadback != 0:
		raw, err := b.dev.mapRead(b.gpu, (b.size+3)&^3)
		if err != nil {
			return nil, fmt.Errorf("webgpu: map %q: %w", b.label, err)
		}
		b.data = raw[:b.size]
		return b.data, nil
	default:
		return nil, fmt.Errorf("webgpu: map %q: %w", b.label, device.ErrNotMappable)
	}
}

func (b *buffer) Unmap() {}

func (b *buffer) Release() {
	b.dev.forget(b.gpu)
	b.gpu.Release()
	if b.lines != nil {
		b.lines.Release()
	}
}

func (b *buffer) hash() uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b.data)
	return h.Sum64()
}

// flush pushes the CPU copy of an upload buffer if it changed since the last push.
func (b *buffer) flush() {
	h := b.hash()
	if b.synced && h == b.written {
		return
	}
	b.dev.queue.WriteBuffer(b.gpu, 0, b.data)
	b.written, b.synced = h, true
}

// lineIndices returns a line-list index buffer with the three edges of every triangle
// of an upload index buffer.
func (b *buffer) lineIndices() (*wgpu.Buffer, error) {
	if !b.upload {
		return nil, fmt.Errorf("webgpu: wireframe needs a CPU-visible index buffer, %q is not", b.label)
	}
	h := b.hash()
	if b.lines != nil && h == b.linesHash {
		return b.lines, nil
	}
	lines := triangleEdges(b.data[:b.size])
	if b.lines != nil {
		b.dev.forget(b.lines)
		b.lines.Release()
		b.lines = nil
	}
	gpu, err := b.dev.createBuffer(b.label+" lines", uint64(len(lines)*4), wgpu.BufferUsageIndex|wgpu.BufferUsageCopyDst)
	if err != nil {
		return nil, err
	}
	b.dev.queue.WriteBuffer(gpu, 0, wgpu.ToBytes(lines))
	b.lines, b.lineCount, b.linesHash = gpu, len(lines), h
	return gpu, nil
}

// triangleEdges expands uint32 triangle indices into (a,b) (b,c) (c,a) line pairs.
func triangleEdges(raw []byte) []uint32 {
	tris := len(raw) / 12
	lines := make([]uint32, 0, tris*6)
	for t := 0; t < tris; t++ {
		a := binary.LittleEndian.Uint32(raw[t*12:])
		b := binary.LittleEndian.Uint32(raw[t*12+4:])
		c := binary.LittleEndian.Uint32(raw[t*12+8:])
		lines = append(lines, a, b, b, c, c, a)
	}
	return lines
}

type texture struct {
	dev           *webgpuDevice
	label         string
	width, height int
	gpu           *wgpu.Buffer
}

func (t *texture) Label() string { return t.label }
func (t *texture) Width() int    { return t.width }
func (t *texture) Height() int   { return t.height }

func (t *texture) Release() {
	t.dev.forget(t.gpu)
	t.gpu.Release()
}

type pipeline struct {
	dev     *webgpuDevice
	key     string
	render  *wgpu.RenderPipeline
	compute *wgpu.ComputePipeline
	layout  *wgpu.PipelineLayout
	layouts []*wgpu.BindGroupLayout
	entries [][]wgpu.BindGroupLayoutEntry

	textures        int
	rootConstants   int
	constantBuffers int
	displacement    bool
	wireframe       bool
}

func (p *pipeline) Key() string { return p.key }

func (p *pipeline) Release() {
	if p.render != nil {
		p.render.Release()
	}
	if p.compute != nil {
		p.compute.Release()
	}
	p.layout.Release()
	releaseLayouts(p.layouts)
}

// bindingSize is the byte range bound for a buffer at offset: the reflected size of
// a uniform, or the rest of the buffer for storage.
func (p *pipeline) bindingSize(group, binding int, bufSize, offset uint64) uint64 {
	e := p.entries[group][binding]
	if e.Buffer.Type == wgpu.BufferBindingTypeUniform && e.Buffer.MinBindingSize > 0 {
		return min(e.Buffer.MinBindingSize, bufSize-offset)
	}
	return bufSize - offset
}
