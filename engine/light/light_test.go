package light

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackOrdersByType(t *testing.T) {
	spot := NewLight(LightTypeSpot, WithPosition(1, 2, 3), WithSpotPower(8))
	dir := NewLight(LightTypeDirectional, WithDirection(0, -2, 0), WithColor(0.5, 0.5, 0.5), WithIntensity(2))
	off := NewLight(LightTypePoint, WithEnabled(false))
	point := NewLight(LightTypePoint, WithFalloff(2, 20))

	packed, counts, err := Pack([]Light{spot, off, point, dir})
	require.NoError(t, err)
	assert.Equal(t, [3]int{1, 1, 1}, counts)

	assert.Equal(t, [3]float32{0, -1, 0}, packed[0].Direction)
	assert.Equal(t, [3]float32{1, 1, 1}, packed[0].Strength)
	assert.Equal(t, float32(20), packed[1].FalloffEnd)
	assert.Equal(t, [3]float32{1, 2, 3}, packed[2].Position)
	assert.Equal(t, float32(8), packed[2].SpotPower)
}

func TestPackLeavesUnusedSlotsDark(t *testing.T) {
	packed, counts, err := Pack([]Light{NewLight(LightTypeDirectional)})
	require.NoError(t, err)
	assert.Equal(t, [3]int{1, 0, 0}, counts)
	assert.Zero(t, packed[1].Strength)
	assert.Zero(t, packed[2].Strength)
}

func TestPackRejectsTooManyLights(t *testing.T) {
	ls := []Light{
		NewLight(LightTypeDirectional),
		NewLight(LightTypeDirectional),
		NewLight(LightTypeDirectional),
		NewLight(LightTypePoint),
	}
	_, _, err := Pack(ls)
	assert.ErrorIs(t, err, ErrTooManyLights)

	ls[3].SetEnabled(false)
	_, _, err = Pack(ls)
	assert.NoError(t, err)
}

func TestSphericalDirectionPointsAtOrigin(t *testing.T) {
	d := SphericalDirection(0, math32.Pi/2)
	assert.InDelta(t, -1, d[0], 1e-6)
	assert.InDelta(t, 0, d[1], 1e-6)
	assert.InDelta(t, 0, d[2], 1e-6)

	d = SphericalDirection(1.25*math32.Pi, math32.Pi/4)
	assert.InDelta(t, 1, d[0]*d[0]+d[1]*d[1]+d[2]*d[2], 1e-5)
	assert.Less(t, d[1], float32(0))
}
