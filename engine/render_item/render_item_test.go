package render_item

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-waves/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const slots = 3

func TestNumFramesDirtyAfterChange(t *testing.T) {
	it := NewRenderItem(0, slots)

	// Newly created items are dirty for the first N frames.
	assert.Equal(t, 3, it.NumFramesDirty(0))
	assert.Equal(t, 1, it.NumFramesDirty(2))
	assert.Equal(t, 0, it.NumFramesDirty(3))

	world := common.IdentityMatrix()
	world[12] = 2
	it.SetWorld(world, 10)
	assert.Equal(t, world, it.World())
	assert.Equal(t, uint64(10), it.LastModified())

	for k := 0; k <= slots; k++ {
		assert.Equal(t, slots-k, it.NumFramesDirty(uint64(10+k)), "frame %d", 10+k)
	}
	for k := uint64(14); k < 100; k++ {
		require.Equal(t, 0, it.NumFramesDirty(k))
	}
}

func TestEveryChangeRestartsTheCount(t *testing.T) {
	it := NewRenderItem(0, slots, WithCreatedAt(5))
	assert.Equal(t, 3, it.NumFramesDirty(5))
	assert.Equal(t, 3, it.NumFramesDirty(4))

	it.SetMaterialIndex(2, 6)
	assert.Equal(t, 2, it.MaterialIndex())
	assert.Equal(t, 3, it.NumFramesDirty(6))

	it.SetTexTransform(common.IdentityMatrix(), 7)
	assert.Equal(t, 3, it.NumFramesDirty(7))
	assert.Equal(t, 0, it.NumFramesDirty(10))
}

func TestDirtySetCoversEachSlotOnce(t *testing.T) {
	s := NewSet()
	a := NewRenderItem(0, slots, WithLayer(LayerOpaque))
	b := NewRenderItem(1, slots, WithLayer(LayerWaves))
	s.Add(a)
	s.Add(b)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []RenderItem{b}, s.Layer(LayerWaves))

	uploads := map[int]map[uint64]int{}
	var dirty []RenderItem
	for frame := uint64(0); frame < 30; frame++ {
		if frame == 12 {
			w := common.IdentityMatrix()
			w[13] = 1
			b.SetWorld(w, frame)
		}
		dirty = s.Dirty(frame, dirty[:0])
		for _, it := range dirty {
			if uploads[it.ObjectIndex()] == nil {
				uploads[it.ObjectIndex()] = map[uint64]int{}
			}
			uploads[it.ObjectIndex()][frame%slots]++
		}
	}

	// a: uploaded once into each slot at start-up.
	assert.Equal(t, map[uint64]int{0: 1, 1: 1, 2: 1}, uploads[0])
	// b: once at start-up and once after the change, per slot.
	assert.Equal(t, map[uint64]int{0: 2, 1: 2, 2: 2}, uploads[1])
}

func TestConstants(t *testing.T) {
	tex := common.IdentityMatrix()
	tex[0] = 5
	it := NewRenderItem(3, slots, WithTexTransform(tex), WithMaterialIndex(1), WithGeometry(&Geometry{Name: "grid", IndexCount: 6}))
	c := it.Constants()
	assert.Equal(t, common.IdentityMatrix(), c.World)
	assert.Equal(t, tex, c.TexTransform)
	assert.Equal(t, 3, it.ObjectIndex())
	assert.Equal(t, "grid", it.Geometry().Name)
}
