// Package soft implements device.Device on the CPU. A single goroutine plays the
// role of the GPU timeline: submitted command lists and fence signals execute on it
// in submission order, asynchronously from the recording goroutine. Compute
// dispatches run the pipeline's device.Kernel; draws only validate their inputs.
package soft

import (
	"fmt"
	"hash/fnv"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-waves/engine/device"
)

// Stats counts what the timeline has executed so far.
type Stats struct {
	Submissions uint64
	Dispatches  uint64
	Draws       uint64
	Presents    uint64
	Signals     uint64
	// Hazards counts upload buffers whose contents changed between submission
	// and execution, i.e. the CPU wrote a region the GPU still referenced.
	Hazards uint64
}

// Device is the software device. Beyond device.Device it exposes inspection
// hooks used by tests and headless tools.
type Device interface {
	device.Device

	// Stats returns a snapshot of the execution counters.
	//
	// Returns:
	//   - Stats: the counters
	Stats() Stats

	// Lose marks the device as lost. Pending and future fence waits receive
	// device.ErrDeviceLost and further submissions fail.
	Lose()

	// TextureData returns the backing storage of a texture created by this device.
	// Callers must only read it once the GPU is done with the texture.
	//
	// Parameters:
	//   - t: a texture allocated by this device
	//
	// Returns:
	//   - []float32: row-major texel data
	TextureData(t device.Texture) []float32

	// TextureState returns the committed (last submitted) state of a texture.
	//
	// Parameters:
	//   - t: a texture allocated by this device
	//
	// Returns:
	//   - device.ResourceState: the state after every submitted barrier
	TextureState(t device.Texture) device.ResourceState
}

// work is either an executed command list (alloc set) or a fence signal (fence set).
type work struct {
	ops    []op
	alloc  *commandAllocator
	hashes map[*buffer]uint64
	fence  *fence
	value  uint64
}

type softDevice struct {
	mu   sync.Mutex
	name string

	latency  time.Duration
	queueCap int

	work     chan work
	done     chan struct{}
	lost     atomic.Bool
	released sync.Once

	fences []*fence

	submissions atomic.Uint64
	dispatches  atomic.Uint64
	draws       atomic.Uint64
	presents    atomic.Uint64
	signals     atomic.Uint64
	hazards     atomic.Uint64
}

var _ Device = &softDevice{}

// NewDevice creates a software device and starts its timeline goroutine.
//
// Parameters:
//   - options: functional options for latency, queue depth and naming
//
// Returns:
//   - Device: the software device
func NewDevice(options ...DeviceBuilderOption) Device {
	d := &softDevice{
		name:     "soft",
		queueCap: 64,
		done:     make(chan struct{}),
	}
	for _, opt := range options {
		opt(d)
	}
	d.work = make(chan work, d.queueCap)
	go d.timeline()
	return d
}

// timeline executes submitted work in order until the work channel is closed.
func (d *softDevice) timeline() {
	defer close(d.done)
	for w := range d.work {
		if w.alloc != nil && d.latency > 0 {
			time.Sleep(d.latency)
		}
		if d.lost.Load() {
			continue
		}
		if w.alloc != nil {
			for b, h := range w.hashes {
				if b.hash() != h {
					d.hazards.Add(1)
				}
			}
			if err := d.execute(w.ops); err != nil {
				log.Printf("[Soft] command list execution failed, device lost: %v", err)
				d.Lose()
				continue
			}
			w.alloc.pending.Add(-1)
			d.submissions.Add(1)
		}
		if w.fence != nil {
			w.fence.complete(w.value)
			d.signals.Add(1)
		}
	}
}

func (d *softDevice) execute(ops []op) error {
	for i := range ops {
		o := &ops[i]
		switch o.kind {
		case opBarrier:
			o.texture.state = o.to
		case opDispatch:
			inv := device.KernelInvocation{
				Groups:    o.groups,
				Constants: o.constants,
				Textures:  make([]device.KernelTexture, len(o.textures)),
			}
			for j, t := range o.textures {
				inv.Textures[j] = device.KernelTexture{Width: t.width, Height: t.height, Data: t.data}
			}
			if o.pipeline.kernel == nil {
				return fmt.Errorf("soft: compute pipeline %q has no kernel", o.pipeline.key)
			}
			if err := o.pipeline.kernel(inv); err != nil {
				return fmt.Errorf("soft: dispatch %q: %w", o.pipeline.key, err)
			}
			d.dispatches.Add(1)
		case opDraw:
			d.draws.Add(1)
		}
	}
	return nil
}

func (d *softDevice) Name() string {
	return d.name
}

func (d *softDevice) AllocateUploadBuffer(label string, size uint64, usage device.Usage) (device.Buffer, error) {
	if d.lost.Load() {
		return nil, device.ErrDeviceLost
	}
	return &buffer{label: label, usage: usage, data: make([]byte, size), mappable: true, upload: true}, nil
}

func (d *softDevice) AllocateGPUBuffer(label string, size uint64, usage device.Usage) (device.Buffer, error) {
	if d.lost.Load() {
		return nil, device.ErrDeviceLost
	}
	return &buffer{label: label, usage: usage, data: make([]byte, size), mappable: usage&device.UsageReadback != 0}, nil
}

func (d *softDevice) AllocateTexture(label string, width, height int) (device.Texture, error) {
	if d.lost.Load() {
		return nil, device.ErrDeviceLost
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("soft: invalid texture size %dx%d", width, height)
	}
	return &texture{label: label, width: width, height: height, data: make([]float32, width*height)}, nil
}

func (d *softDevice) NewCommandAllocator() (device.CommandAllocator, error) {
	if d.lost.Load() {
		return nil, device.ErrDeviceLost
	}
	return &commandAllocator{}, nil
}

func (d *softDevice) NewCommandList(alloc device.CommandAllocator) (device.CommandList, error) {
	a, ok := alloc.(*commandAllocator)
	if !ok {
		return nil, fmt.Errorf("soft: foreign command allocator %T", alloc)
	}
	return &commandList{alloc: a}, nil
}

func (d *softDevice) NewComputePipeline(desc device.ComputePipelineDescriptor) (device.Pipeline, error) {
	if desc.Kernel == nil {
		return nil, fmt.Errorf("soft: compute pipeline %q needs a Kernel", desc.Key)
	}
	return &pipeline{key: desc.Key, kernel: desc.Kernel, access: desc.Textures, rootConstants: desc.RootConstants}, nil
}

func (d *softDevice) NewGraphicsPipeline(desc device.GraphicsPipelineDescriptor) (device.Pipeline, error) {
	return &pipeline{key: desc.Key, graphics: true, displacement: desc.DisplacementMap}, nil
}

func (d *softDevice) NewFence(initial uint64) (device.Fence, error) {
	if d.lost.Load() {
		return nil, device.ErrDeviceLost
	}
	f := &fence{dev: d, completed: initial}
	d.mu.Lock()
	d.fences = append(d.fences, f)
	d.mu.Unlock()
	return f, nil
}

func (d *softDevice) Queue() device.Queue {
	return (*queue)(d)
}

func (d *softDevice) Present() error {
	if d.lost.Load() {
		return device.ErrDeviceLost
	}
	d.presents.Add(1)
	return nil
}

// Release stops the timeline after draining the work already queued.
func (d *softDevice) Release() {
	d.released.Do(func() {
		close(d.work)
		<-d.done
	})
}

func (d *softDevice) Stats() Stats {
	return Stats{
		Submissions: d.submissions.Load(),
		Dispatches:  d.dispatches.Load(),
		Draws:       d.draws.Load(),
		Presents:    d.presents.Load(),
		Signals:     d.signals.Load(),
		Hazards:     d.hazards.Load(),
	}
}

func (d *softDevice) Lose() {
	if d.lost.Swap(true) {
		return
	}
	d.mu.Lock()
	fences := append([]*fence(nil), d.fences...)
	d.mu.Unlock()
	for _, f := range fences {
		f.lose()
	}
}

func (d *softDevice) TextureData(t device.Texture) []float32 {
	return t.(*texture).data
}

func (d *softDevice) TextureState(t device.Texture) device.ResourceState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return t.(*texture).committed
}

// queue is the device viewed through the device.Queue interface.
type queue softDevice

func (q *queue) Submit(lists ...device.CommandList) error {
	d := (*softDevice)(q)
	if d.lost.Load() {
		return device.ErrDeviceLost
	}

	d.mu.Lock()
	pending := make([]work, 0, len(lists))
	committed := make(map[*texture]device.ResourceState)
	for _, l := range lists {
		cl, ok := l.(*commandList)
		if !ok {
			d.mu.Unlock()
			return fmt.Errorf("soft: foreign command list %T", l)
		}
		if cl.recording {
			d.mu.Unlock()
			return fmt.Errorf("soft: submit: %w", device.ErrNotRecording)
		}
		if err := cl.validate(committed); err != nil {
			d.mu.Unlock()
			return err
		}
		w := work{ops: append([]op(nil), cl.ops...), alloc: cl.alloc, hashes: make(map[*buffer]uint64)}
		for _, b := range cl.uploads {
			w.hashes[b] = b.hash()
		}
		pending = append(pending, w)
	}
	for t, s := range committed {
		t.committed = s
	}
	d.mu.Unlock()

	for _, w := range pending {
		w.alloc.pending.Add(1)
		d.work <- w
	}
	return nil
}

func (q *queue) Signal(f device.Fence, value uint64) error {
	d := (*softDevice)(q)
	if d.lost.Load() {
		return device.ErrDeviceLost
	}
	sf, ok := f.(*fence)
	if !ok {
		return fmt.Errorf("soft: foreign fence %T", f)
	}
	d.work <- work{fence: sf, value: value}
	return nil
}

type buffer struct {
	label    string
	usage    device.Usage
	data     []byte
	mappable bool
	upload   bool
}

func (b *buffer) Label() string       { return b.label }
func (b *buffer) Size() uint64        { return uint64(len(b.data)) }
func (b *buffer) Usage() device.Usage { return b.usage }
func (b *buffer) Unmap()              {}
func (b *buffer) Release()            {}

func (b *buffer) Map() ([]byte, error) {
	if !b.mappable {
		return nil, fmt.Errorf("soft: map %q: %w", b.label, device.ErrNotMappable)
	}
	return b.data, nil
}

func (b *buffer) hash() uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b.data)
	return h.Sum64()
}

type texture struct {
	label         string
	width, height int
	data          []float32

	// committed is the state after every submitted barrier (guarded by the device mutex);
	// state is the state on the timeline.
	committed device.ResourceState
	state     device.ResourceState
}

func (t *texture) Label() string { return t.label }
func (t *texture) Width() int    { return t.width }
func (t *texture) Height() int   { return t.height }
func (t *texture) Release()      {}

type commandAllocator struct {
	pending atomic.Int64
}

func (a *commandAllocator) Reset() error {
	if n := a.pending.Load(); n > 0 {
		return fmt.Errorf("soft: allocator reset with %d submissions in flight: %w", n, device.ErrInvalidState)
	}
	return nil
}

func (a *commandAllocator) Release() {}

type pipeline struct {
	key           string
	kernel        device.Kernel
	access        []device.Access
	rootConstants int
	graphics      bool
	displacement  bool
}

func (p *pipeline) Key() string { return p.key }
func (p *pipeline) Release()    {}
