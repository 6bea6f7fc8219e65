package render_item

import (
	"github.com/Carmen-Shannon/oxy-waves/common"
	"github.com/Carmen-Shannon/oxy-waves/engine/device"
)

// Layer groups render items drawn with the same pipeline.
type Layer int

const (
	LayerOpaque Layer = iota
	LayerWaves
	LayerCount
)

// Geometry is a region of a vertex and index buffer shared by render items.
// It is read-only while frames are in flight.
type Geometry struct {
	Name         string
	VertexBuffer device.Buffer
	IndexBuffer  device.Buffer
	VertexStride uint64
	IndexCount   int
	StartIndex   int
	BaseVertex   int
	// Dynamic geometry takes its vertices from the frame resource's wave vertex
	// buffer instead of VertexBuffer.
	Dynamic bool
}

type renderItem struct {
	objectIndex   int
	frameCount    int
	world         [16]float32
	texTransform  [16]float32
	materialIndex int
	geometry      *Geometry
	layer         Layer
	lastModified  uint64

	texelSize   [2]float32
	spatialStep float32
}

// RenderItem describes one draw call and the per-object constants it needs.
//
// Instead of a counter decremented once per uploaded frame, a render item remembers
// the frame in which it last changed. Its constants must be uploaded into each of
// the N frame resources once, so it is dirty for the N frames starting at that frame.
type RenderItem interface {
	// ObjectIndex returns the element of the object constant buffer owned by the item.
	ObjectIndex() int

	// World returns the world transform (column-major).
	World() [16]float32

	// SetWorld replaces the world transform.
	//
	// Parameters:
	//   - m: the new world transform
	//   - frame: the frame counter of the frame being prepared
	SetWorld(m [16]float32, frame uint64)

	// TexTransform returns the texture coordinate transform.
	TexTransform() [16]float32

	// SetTexTransform replaces the texture coordinate transform.
	//
	// Parameters:
	//   - m: the new texture transform
	//   - frame: the frame counter of the frame being prepared
	SetTexTransform(m [16]float32, frame uint64)

	// MaterialIndex returns the index into the material table.
	MaterialIndex() int

	// SetMaterialIndex changes the material.
	//
	// Parameters:
	//   - index: the new material index
	//   - frame: the frame counter of the frame being prepared
	SetMaterialIndex(index int, frame uint64)

	Geometry() *Geometry
	Layer() Layer

	// LastModified returns the frame counter of the last change.
	LastModified() uint64

	// NumFramesDirty returns how many frame resources, starting with the one for frame,
	// still hold stale constants for this item. It is N in the frame of a change,
	// decreases by one per frame and stays at 0.
	//
	// Parameters:
	//   - frame: the frame counter of the frame being prepared
	//
	// Returns:
	//   - int: a value in [0, N]
	NumFramesDirty(frame uint64) int

	// Constants returns the object constants to upload.
	Constants() common.ObjectConstants
}

var _ RenderItem = &renderItem{}

// NewRenderItem creates a render item that is dirty for the first frameCount frames.
//
// Parameters:
//   - objectIndex: the item's element in the object constant buffer
//   - frameCount: the number of frame resources N
//   - options: functional options for transforms, material, geometry and layer
//
// Returns:
//   - RenderItem: the render item
func NewRenderItem(objectIndex, frameCount int, options ...RenderItemBuilderOption) RenderItem {
	r := &renderItem{
		objectIndex:  objectIndex,
		frameCount:   frameCount,
		world:        common.IdentityMatrix(),
		texTransform: common.IdentityMatrix(),
	}
	for _, option := range options {
		option(r)
	}
	return r
}

func (r *renderItem) ObjectIndex() int { return r.objectIndex }

func (r *renderItem) World() [16]float32 { return r.world }

func (r *renderItem) SetWorld(m [16]float32, frame uint64) {
	r.world = m
	r.lastModified = frame
}

func (r *renderItem) TexTransform() [16]float32 { return r.texTransform }

func (r *renderItem) SetTexTransform(m [16]float32, frame uint64) {
	r.texTransform = m
	r.lastModified = frame
}

func (r *renderItem) MaterialIndex() int { return r.materialIndex }

func (r *renderItem) SetMaterialIndex(index int, frame uint64) {
	r.materialIndex = index
	r.lastModified = frame
}

func (r *renderItem) Geometry() *Geometry { return r.geometry }

func (r *renderItem) Layer() Layer { return r.layer }

func (r *renderItem) LastModified() uint64 { return r.lastModified }

func (r *renderItem) NumFramesDirty(frame uint64) int {
	return FramesDirty(frame, r.lastModified, r.frameCount)
}

func (r *renderItem) Constants() common.ObjectConstants {
	return common.ObjectConstants{
		World:                    r.world,
		TexTransform:             r.texTransform,
		DisplacementMapTexelSize: r.texelSize,
		GridSpatialStep:          r.spatialStep,
	}
}

// FramesDirty returns max(0, n - (frame - lastModified)), or n when frame precedes
// lastModified. Anything uploaded per frame resource after a change uses it.
//
// Parameters:
//   - frame: the frame counter of the frame being prepared
//   - lastModified: the frame counter of the last change
//   - n: the number of frame resources
//
// Returns:
//   - int: the number of frame resources still to be updated
func FramesDirty(frame, lastModified uint64, n int) int {
	if frame < lastModified {
		return n
	}
	elapsed := frame - lastModified
	if elapsed >= uint64(n) {
		return 0
	}
	return n - int(elapsed)
}
