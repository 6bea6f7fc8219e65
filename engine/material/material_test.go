package material

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-waves/common"
	"github.com/stretchr/testify/assert"
)

func TestMaterialConstants(t *testing.T) {
	m := NewMaterial("water", 1, 3,
		WithDiffuseAlbedo([4]float32{0, 0.2, 0.6, 1}),
		WithFresnelR0([3]float32{0.1, 0.1, 0.1}),
		WithRoughness(0),
	)
	c := m.Constants()
	assert.Equal(t, "water", m.Name())
	assert.Equal(t, 1, m.Index())
	assert.Equal(t, [4]float32{0, 0.2, 0.6, 1}, c.DiffuseAlbedo)
	assert.Equal(t, [3]float32{0.1, 0.1, 0.1}, c.FresnelR0)
	assert.Zero(t, c.Roughness)
	assert.Equal(t, common.IdentityMatrix(), c.MatTransform)
}

func TestMaterialDirtyAfterChange(t *testing.T) {
	m := NewMaterial("grass", 0, 3)
	assert.Equal(t, 3, m.NumFramesDirty(0))
	assert.Equal(t, 0, m.NumFramesDirty(3))

	tr := common.IdentityMatrix()
	tr[12] = 0.5
	m.SetMatTransform(tr, 7)
	assert.Equal(t, tr, m.MatTransform())
	assert.Equal(t, 3, m.NumFramesDirty(7))
	assert.Equal(t, 1, m.NumFramesDirty(9))
	assert.Equal(t, 0, m.NumFramesDirty(10))
}
