package soft

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-waves/engine/device"
)

type opKind int

const (
	opBarrier opKind = iota
	opDispatch
	opDraw
)

type op struct {
	kind opKind

	// barrier
	texture  *texture
	from, to device.ResourceState

	// dispatch
	pipeline  *pipeline
	groups    [3]int
	constants []uint32
	textures  []*texture

	// draw
	displacement *texture
}

// commandList records ops on the CPU; Submit copies them onto the timeline.
type commandList struct {
	alloc     *commandAllocator
	recording bool
	err       error

	ops     []op
	uploads []*buffer

	compute   *pipeline
	constants []uint32
	textures  []*texture

	graphics     *pipeline
	inPass       bool
	vertex       *buffer
	index        *buffer
	displacement *texture
}

func (c *commandList) Reset(alloc device.CommandAllocator) error {
	if c.recording {
		return errors.New("soft: reset of a command list that is still recording")
	}
	a, ok := alloc.(*commandAllocator)
	if !ok {
		return fmt.Errorf("soft: foreign command allocator %T", alloc)
	}
	*c = commandList{alloc: a, recording: true}
	return nil
}

func (c *commandList) Close() error {
	if !c.recording {
		return device.ErrNotRecording
	}
	c.recording = false
	if c.inPass {
		c.fail(errors.New("soft: command list closed inside a render pass"))
	}
	return c.err
}

// fail records the first recording error; Close reports it.
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

func (c *commandList) trackUpload(b device.Buffer) *buffer {
	sb, ok := b.(*buffer)
	if !ok {
		c.fail(fmt.Errorf("soft: foreign buffer %T", b))
		return nil
	}
	if sb.upload {
		for _, u := range c.uploads {
			if u == sb {
				return sb
			}
		}
		c.uploads = append(c.uploads, sb)
	}
	return sb
}

func (c *commandList) SetComputePipeline(p device.Pipeline) {
	if !c.check() {
		return
	}
	sp, ok := p.(*pipeline)
	if !ok || sp.graphics {
		c.fail(fmt.Errorf("soft: %v is not a compute pipeline", p))
		return
	}
	c.compute = sp
	c.constants = nil
	c.textures = nil
}

func (c *commandList) SetComputeRootConstants(values []uint32) {
	if !c.check() {
		return
	}
	if c.compute != nil && len(values) > c.compute.rootConstants {
		c.fail(fmt.Errorf("soft: %d root constants exceed the %d declared by %q", len(values), c.compute.rootConstants, c.compute.key))
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
		st, ok := t.(*texture)
		if !ok {
			c.fail(fmt.Errorf("soft: foreign texture %T", t))
			return
		}
		c.textures = append(c.textures, st)
	}
}

func (c *commandList) ResourceBarrier(t device.Texture, from, to device.ResourceState) {
	if !c.check() {
		return
	}
	st, ok := t.(*texture)
	if !ok {
		c.fail(fmt.Errorf("soft: foreign texture %T", t))
		return
	}
	c.ops = append(c.ops, op{kind: opBarrier, texture: st, from: from, to: to})
}

func (c *commandList) Dispatch(groupsX, groupsY, groupsZ int) {
	if !c.check() {
		return
	}
	if c.compute == nil {
		c.fail(errors.New("soft: dispatch without a compute pipeline"))
		return
	}
	if len(c.textures) != len(c.compute.access) {
		c.fail(fmt.Errorf("soft: %q expects %d textures, %d bound", c.compute.key, len(c.compute.access), len(c.textures)))
		return
	}
	c.ops = append(c.ops, op{
		kind:      opDispatch,
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
		c.fail(errors.New("soft: nested render pass"))
		return
	}
	c.inPass = true
}

func (c *commandList) SetGraphicsPipeline(p device.Pipeline) {
	if !c.check() {
		return
	}
	sp, ok := p.(*pipeline)
	if !ok || !sp.graphics {
		c.fail(fmt.Errorf("soft: %v is not a graphics pipeline", p))
		return
	}
	c.graphics = sp
}

func (c *commandList) SetVertexBuffer(buf device.Buffer, offset, stride uint64) {
	if !c.check() {
		return
	}
	c.vertex = c.trackUpload(buf)
}

func (c *commandList) SetIndexBuffer(buf device.Buffer, offset uint64) {
	if !c.check() {
		return
	}
	c.index = c.trackUpload(buf)
}

func (c *commandList) SetConstantBuffer(slot int, buf device.Buffer, offset uint64) {
	if !c.check() {
		return
	}
	if offset >= buf.Size() {
		c.fail(fmt.Errorf("soft: constant buffer offset %d outside %q", offset, buf.Label()))
		return
	}
	c.trackUpload(buf)
}

func (c *commandList) SetGraphicsTexture(t device.Texture) {
	if !c.check() {
		return
	}
	st, ok := t.(*texture)
	if !ok {
		c.fail(fmt.Errorf("soft: foreign texture %T", t))
		return
	}
	c.displacement = st
}

func (c *commandList) DrawIndexed(indexCount, startIndex, baseVertex int) {
	if !c.check() {
		return
	}
	switch {
	case !c.inPass:
		c.fail(errors.New("soft: draw outside a render pass"))
		return
	case c.graphics == nil:
		c.fail(errors.New("soft: draw without a graphics pipeline"))
		return
	case c.vertex == nil || c.index == nil:
		c.fail(errors.New("soft: draw without vertex or index buffer"))
		return
	case c.graphics.displacement && c.displacement == nil:
		c.fail(fmt.Errorf("soft: %q needs a displacement map", c.graphics.key))
		return
	}
	o := op{kind: opDraw}
	if c.graphics.displacement {
		o.displacement = c.displacement
	}
	c.ops = append(c.ops, o)
}

func (c *commandList) EndRenderPass() {
	if !c.check() {
		return
	}
	if !c.inPass {
		c.fail(errors.New("soft: EndRenderPass without BeginRenderPass"))
		return
	}
	c.inPass = false
}

func (c *commandList) Release() {}

// validate replays the list's state transitions starting from the committed states,
// updating states so that consecutive lists in one Submit see each other's barriers.
// The caller holds the device mutex.
func (c *commandList) validate(states map[*texture]device.ResourceState) error {
	state := func(t *texture) device.ResourceState {
		if s, ok := states[t]; ok {
			return s
		}
		return t.committed
	}
	for _, o := range c.ops {
		switch o.kind {
		case opBarrier:
			if cur := state(o.texture); cur != o.from {
				return fmt.Errorf("soft: barrier on %q from %s but texture is %s: %w", o.texture.label, o.from, cur, device.ErrInvalidState)
			}
			states[o.texture] = o.to
		case opDispatch:
			for _, t := range o.textures {
				if cur := state(t); cur != device.StateUnorderedAccess {
					return fmt.Errorf("soft: dispatch %q uses %q in state %s: %w", o.pipeline.key, t.label, cur, device.ErrInvalidState)
				}
			}
		case opDraw:
			if o.displacement != nil {
				if cur := state(o.displacement); cur != device.StateShaderRead {
					return fmt.Errorf("soft: draw samples %q in state %s: %w", o.displacement.label, cur, device.ErrInvalidState)
				}
			}
		}
	}
	return nil
}
