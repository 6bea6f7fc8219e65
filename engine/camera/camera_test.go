package camera

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-waves/common"
	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
)

func transform(m [16]float32, p [3]float32) [3]float32 {
	var out [3]float32
	for r := 0; r < 3; r++ {
		out[r] = m[r]*p[0] + m[4+r]*p[1] + m[8+r]*p[2] + m[12+r]
	}
	return out
}

func TestControllerSphericalPosition(t *testing.T) {
	cc := NewCameraController()
	x, y, z := cc.Position()
	assert.InDelta(t, 0, x, 1e-4)
	assert.InDelta(t, 50*math32.Cos(0.2*math32.Pi), y, 1e-4)
	assert.InDelta(t, -50*math32.Sin(0.2*math32.Pi), z, 1e-4)

	cc.SetTarget(1, 2, 3)
	x2, y2, z2 := cc.Position()
	assert.InDelta(t, x+1, x2, 1e-4)
	assert.InDelta(t, y+2, y2, 1e-4)
	assert.InDelta(t, z+3, z2, 1e-4)
}

func TestControllerClamps(t *testing.T) {
	cc := NewCameraController(WithRadiusBounds(5, 20), WithRadius(10))
	cc.Zoom(1000)
	assert.Equal(t, float32(5), cc.Radius())
	cc.Zoom(-1000)
	assert.Equal(t, float32(20), cc.Radius())

	cc.Rotate(0, 1e6)
	assert.InDelta(t, math32.Pi-0.1, cc.Phi(), 1e-6)
	cc.Rotate(0, -1e6)
	assert.InDelta(t, 0.1, cc.Phi(), 1e-6)

	before := cc.Theta()
	cc.Rotate(4, 0)
	assert.InDelta(t, before+math32.Pi/180, cc.Theta(), 1e-6)
}

func TestViewMovesEyeToOrigin(t *testing.T) {
	cc := NewCameraController(WithTarget(0, 0, 0), WithRadius(30))
	c := NewCamera(WithController(cc), WithAspect(16.0/9.0))

	eye := c.Eye()
	got := transform(c.ViewMatrix(), eye)
	for _, v := range got {
		assert.InDelta(t, 0, v, 1e-3)
	}

	// The target lies on the -Z axis of view space at the orbit radius.
	target := transform(c.ViewMatrix(), [3]float32{})
	assert.InDelta(t, -30, target[2], 1e-3)

	var pc common.PassConstants
	c.PassConstants(&pc)
	assert.Equal(t, eye, pc.EyePosW)
	assert.Equal(t, c.ViewProjectionMatrix(), pc.ViewProj)
	assert.Equal(t, float32(1), pc.NearZ)
	assert.Equal(t, float32(1000), pc.FarZ)

	var id [16]float32
	common.Mul4(id[:], pc.View[:], pc.InvView[:])
	idm := common.IdentityMatrix()
	assert.InDeltaSlice(t, idm[:], id[:], 1e-4)
}

func TestUpdateFollowsController(t *testing.T) {
	cc := NewCameraController()
	c := NewCamera(WithController(cc))
	before := c.ViewMatrix()
	cc.Rotate(40, 0)
	assert.Equal(t, before, c.ViewMatrix())
	c.Update()
	assert.NotEqual(t, before, c.ViewMatrix())
}
