package webgpu

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/Carmen-Shannon/oxy-waves/engine/device"
	"github.com/cogentcore/webgpu/wgpu"
)

type cmdKind int

const (
	cmdDispatch cmdKind = iota
	cmdBeginPass
	cmdDraw
	cmdEndPass
)

type constantBinding struct {
	buf    *buffer
	offset uint64
}

type cmd struct {
	kind     cmdKind
	pipeline *pipeline

	// dispatch
	groups    [3]int
	constants []uint32
	slot      int
	textures  []*texture

	// begin pass
	clear [4]float32

	// draw
	vertex       *buffer
	vertexOffset uint64
	index        *buffer
	indexOffset  uint64
	cbs          [maxBindings]constantBinding
	displacement *texture
	count        int
	start        int
	base         int
}

// commandAllocator owns the uniform arena the root constants of its lists live in.
type commandAllocator struct {
	dev *webgpuDevice

	mu       sync.Mutex
	arena    *wgpu.Buffer
	capacity int
	used     int
}

func (a *commandAllocator) Reset() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.used = 0
	return nil
}

func (a *commandAllocator) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.arena != nil {
		a.dev.forget(a.arena)
		a.arena.Release()
		a.arena = nil
	}
}

// writeConstants assigns an arena slot to every dispatch of cl that carries root
// constants and uploads them. Growing the arena replaces the buffer; work already
// submitted keeps the old one alive.
func (a *commandAllocator) writeConstants(cl *commandList) error {
	n := 0
	for i := range cl.cmds {
		if cl.cmds[i].kind == cmdDispatch && cl.cmds[i].pipeline.rootConstants > 0 {
			n++
		}
	}
	if n == 0 {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.used+n > a.capacity {
		capacity := max(2*a.capacity, a.used+n, 8)
		arena, err := a.dev.createBuffer("root constants", uint64(capacity*constantSlotSize), wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst)
		if err != nil {
			return err
		}
		if a.arena != nil {
			a.dev.forget(a.arena)
			a.arena.Release()
		}
		a.arena, a.capacity = arena, capacity
	}

	data := make([]uint32, n*constantSlotSize/4)
	k := 0
	for i := range cl.cmds {
		c := &cl.cmds[i]
		if c.kind != cmdDispatch || c.pipeline.rootConstants == 0 {
			continue
		}
		copy(data[k*constantSlotSize/4:], c.constants)
		c.slot = a.used + k
		k++
	}
	a.dev.queue.WriteBuffer(a.arena, uint64(a.used*constantSlotSize), wgpu.ToBytes(data))
	a.used += n
	cl.arena, cl.arenaSize = a.arena, uint64(a.capacity*constantSlotSize)
	return nil
}

// commandList records commands on the CPU; Submit encodes them.
type commandList struct {
	alloc     *commandAllocator
	recording bool
	err       error

	cmds      []cmd
	uploads   map[*buffer]struct{}
	arena     *wgpu.Buffer
	arenaSize uint64

	compute   *pipeline
	constants []uint32
	textures  []*texture

	inPass bool
	draw   cmd
}

func (c *commandList) Reset(alloc device.CommandAllocator) error {
	if c.recording {
		return errors.New("webgpu: reset of a command list that is still recording")
	}
	a, ok := alloc.(*commandAllocator)
	if !ok {
		return fmt.Errorf("webgpu: foreign command allocator %T", alloc)
	}
	*c = commandList{alloc: a, recording: true, uploads: make(map[*buffer]struct{})}
	return nil
}

func (c *commandList) Close() error {
	if !c.recording {
		return device.ErrNotRecording
	}
	c.recording = false
	if c.inPass {
		c.fail(errors.New("webgpu: command list closed inside a render pass"))
	}
	return c.err
}

func (c *commandList) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

func (c *commandList) check() bool {
	if !c.recording {
		c.fail(device.ErrNotRecording)
		return false
	}
	return true
}

func (c *commandList) buffer(b device.Buffer) *buffer {
	wb, ok := b.(*buffer)
	if !ok {
		c.fail(fmt.Errorf("webgpu: foreign buffer %T", b))
		return nil
	}
	if wb.upload {
		c.uploads[wb] = struct{}{}
	}
	return wb
}

func (c *commandList) texture(t device.Texture) *texture {
	wt, ok := t.(*texture)
	if !ok {
		c.fail(fmt.Errorf("webgpu: foreign texture %T", t))
		return nil
	}
	return wt
}

func (c *commandList) SetComputePipeline(p device.Pipeline) {
	if !c.check() {
		return
	}
	wp, ok := p.(*pipeline)
	if !ok || wp.compute == nil {
		c.fail(fmt.Errorf("webgpu: %v is not a compute pipeline", p))
		return
	}
	c.compute = wp
	c.constants = nil
	c.textures = nil
}

func (c *commandList) SetComputeRootConstants(values []uint32) {
	if !c.check() {
		return
	}
	if c.compute != nil && len(values) > c.compute.rootConstants {
		c.fail(fmt.Errorf("webgpu: %d root constants exceed the %d declared by %q", len(values), c.compute.rootConstants, c.compute.key))
		return
	}
	c.constants = append([]uint32(nil), values...)
}

func (c *commandList) SetComputeTextures(textures ...device.Texture) {
	if !c.check() {
		return
	}
	c.textures = c.textures[:0:0]
	for _, t := range textures {
		if wt := c.texture(t); wt != nil {
			c.textures = append(c.textures, wt)
		}
	}
}

// ResourceBarrier only validates its argument: WebGPU inserts the storage-to-vertex
// synchronization itself.
func (c *commandList) ResourceBarrier(t device.Texture, from, to device.ResourceState) {
	if !c.check() {
		return
	}
	c.texture(t)
}

func (c *commandList) Dispatch(groupsX, groupsY, groupsZ int) {
	if !c.check() {
		return
	}
	switch {
	case c.inPass:
		c.fail(errors.New("webgpu: dispatch inside a render pass"))
		return
	case c.compute == nil:
		c.fail(errors.New("webgpu: dispatch without a compute pipeline"))
		return
	case len(c.textures) != c.compute.textures:
		c.fail(fmt.Errorf("webgpu: %q expects %d textures, %d bound", c.compute.key, c.compute.textures, len(c.textures)))
		return
	}
	c.cmds = append(c.cmds, cmd{
		kind:      cmdDispatch,
		pipeline:  c.compute,
		groups:    [3]int{groupsX, groupsY, groupsZ},
		constants: c.constants,
		textures:  append([]*texture(nil), c.textures...),
	})
}

func (c *commandList) BeginRenderPass(clear [4]float32) {
	if !c.check() {
		return
	}
	if c.inPass {
		c.fail(errors.New("webgpu: nested render pass"))
		return
	}
	c.inPass = true
	c.draw = cmd{kind: cmdDraw}
	c.cmds = append(c.cmds, cmd{kind: cmdBeginPass, clear: clear})
}

func (c *commandList) SetGraphicsPipeline(p device.Pipeline) {
	if !c.check() {
		return
	}
	wp, ok := p.(*pipeline)
	if !ok || wp.render == nil {
		c.fail(fmt.Errorf("webgpu: %v is not a graphics pipeline", p))
		return
	}
	c.draw.pipeline = wp
}

func (c *commandList) SetVertexBuffer(buf device.Buffer, offset, stride uint64) {
	if !c.check() {
		return
	}
	c.draw.vertex, c.draw.vertexOffset = c.buffer(buf), offset
}

func (c *commandList) SetIndexBuffer(buf device.Buffer, offset uint64) {
	if !c.check() {
		return
	}
	c.draw.index, c.draw.indexOffset = c.buffer(buf), offset
}

func (c *commandList) SetConstantBuffer(slot int, buf device.Buffer, offset uint64) {
	if !c.check() {
		return
	}
	if slot < 0 || slot >= maxBindings {
		c.fail(fmt.Errorf("webgpu: constant buffer slot %d out of range", slot))
		return
	}
	if offset%constantSlotSize != 0 || offset >= buf.Size() {
		c.fail(fmt.Errorf("webgpu: constant buffer offset %d invalid for %q", offset, buf.Label()))
		return
	}
	c.draw.cbs[slot] = constantBinding{buf: c.buffer(buf), offset: offset}
}

func (c *commandList) SetGraphicsTexture(t device.Texture) {
	if !c.check() {
		return
	}
	c.draw.displacement = c.texture(t)
}

func (c *commandList) DrawIndexed(indexCount, startIndex, baseVertex int) {
	if !c.check() {
		return
	}
	p := c.draw.pipeline
	switch {
	case !c.inPass:
		c.fail(errors.New("webgpu: draw outside a render pass"))
		return
	case p == nil:
		c.fail(errors.New("webgpu: draw without a graphics pipeline"))
		return
	case c.draw.vertex == nil || c.draw.index == nil:
		c.fail(errors.New("webgpu: draw without vertex or index buffer"))
		return
	case p.displacement && c.draw.displacement == nil:
		c.fail(fmt.Errorf("webgpu: %q needs a displacement map", p.key))
		return
	}
	for slot := 0; slot < p.constantBuffers; slot++ {
		if c.draw.cbs[slot].buf == nil {
			c.fail(fmt.Errorf("webgpu: %q draws without constant buffer %d", p.key, slot))
			return
		}
	}
	d := c.draw
	d.count, d.start, d.base = indexCount, startIndex, baseVertex
	c.cmds = append(c.cmds, d)
}

func (c *commandList) EndRenderPass() {
	if !c.check() {
		return
	}
	if !c.inPass {
		c.fail(errors.New("webgpu: EndRenderPass without BeginRenderPass"))
		return
	}
	c.inPass = false
	c.cmds = append(c.cmds, cmd{kind: cmdEndPass})
}

func (c *commandList) Release() {}

// encode replays the recorded commands into a WebGPU command buffer. A frame whose
// surface texture cannot be acquired (e.g. a minimized window) skips its render pass.
func (d *webgpuDevice) encode(cl *commandList) (*wgpu.CommandBuffer, error) {
	encoder, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, err
	}
	defer encoder.Release()

	var pass *wgpu.RenderPassEncoder
	skipping := false
	for i := range cl.cmds {
		c := &cl.cmds[i]
		switch c.kind {
		case cmdDispatch:
			if err := d.encodeDispatch(encoder, cl.arena, cl.arenaSize, c); err != nil {
				return nil, err
			}
		case cmdBeginPass:
			view, err := d.renderTarget()
			if err != nil {
				log.Printf("[WebGPU] skipping render pass: %v", err)
				skipping = true
				continue
			}
			pass = encoder.BeginRenderPass(d.passDescriptor(view, c.clear))
		case cmdDraw:
			if skipping {
				continue
			}
			if err := d.encodeDraw(pass, c); err != nil {
				pass.End()
				return nil, err
			}
		case cmdEndPass:
			if !skipping {
				pass.End()
			}
			pass, skipping = nil, false
		}
	}
	return encoder.Finish(nil)
}

func (d *webgpuDevice) encodeDispatch(encoder *wgpu.CommandEncoder, arena *wgpu.Buffer, arenaSize uint64, c *cmd) error {
	p := c.pipeline
	entries := make([]wgpu.BindGroupEntry, len(c.textures))
	for i, t := range c.textures {
		entries[i] = wgpu.BindGroupEntry{
			Binding: p.entries[0][i].Binding,
			Buffer:  t.gpu,
			Size:    uint64(t.width * t.height * 4),
		}
	}
	textures, err := d.bindGroup(p.layouts[0], entries)
	if err != nil {
		return fmt.Errorf("webgpu: %q texture bind group: %w", p.key, err)
	}

	cp := encoder.BeginComputePass(nil)
	cp.SetPipeline(p.compute)
	cp.SetBindGroup(0, textures, nil)
	if p.rootConstants > 0 {
		offset := uint64(c.slot * constantSlotSize)
		params, err := d.bindGroup(p.layouts[1], []wgpu.BindGroupEntry{{
			Binding: p.entries[1][0].Binding,
			Buffer:  arena,
			Offset:  offset,
			Size:    p.bindingSize(1, 0, arenaSize, offset),
		}})
		if err != nil {
			cp.End()
			return fmt.Errorf("webgpu: %q constants bind group: %w", p.key, err)
		}
		cp.SetBindGroup(1, params, nil)
	}
	cp.DispatchWorkgroups(uint32(c.groups[0]), uint32(c.groups[1]), uint32(c.groups[2]))
	cp.End()
	return nil
}

func (d *webgpuDevice) encodeDraw(pass *wgpu.RenderPassEncoder, c *cmd) error {
	p := c.pipeline
	pass.SetPipeline(p.render)
	for slot := 0; slot < p.constantBuffers; slot++ {
		cb := c.cbs[slot]
		bg, err := d.bindGroup(p.layouts[slot], []wgpu.BindGroupEntry{{
			Binding: p.entries[slot][0].Binding,
			Buffer:  cb.buf.gpu,
			Offset:  cb.offset,
			Size:    p.bindingSize(slot, 0, cb.buf.size, cb.offset),
		}})
		if err != nil {
			return fmt.Errorf("webgpu: %q constant buffer %d: %w", p.key, slot, err)
		}
		pass.SetBindGroup(uint32(slot), bg, nil)
	}
	if p.displacement {
		t := c.displacement
		bg, err := d.bindGroup(p.layouts[p.constantBuffers], []wgpu.BindGroupEntry{{
			Binding: p.entries[p.constantBuffers][0].Binding,
			Buffer:  t.gpu,
			Size:    uint64(t.width * t.height * 4),
		}})
		if err != nil {
			return fmt.Errorf("webgpu: %q displacement map: %w", p.key, err)
		}
		pass.SetBindGroup(uint32(p.constantBuffers), bg, nil)
	}

	pass.SetVertexBuffer(0, c.vertex.gpu, c.vertexOffset, wgpu.WholeSize)
	count, start := uint32(c.count), uint32(c.start)
	if p.wireframe {
		lines, err := c.index.lineIndices()
		if err != nil {
			return err
		}
		pass.SetIndexBuffer(lines, wgpu.IndexFormatUint32, c.indexOffset*2, wgpu.WholeSize)
		count, start = 2*count, 2*start
	} else {
		pass.SetIndexBuffer(c.index.gpu, wgpu.IndexFormatUint32, c.indexOffset, wgpu.WholeSize)
	}
	pass.DrawIndexed(count, 1, start, int32(c.base), 0)
	return nil
}
