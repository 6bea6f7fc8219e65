package common

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

func TestConstantLayouts(t *testing.T) {
	assert.Equal(t, uintptr(32), unsafe.Sizeof(Vertex{}))
	assert.Equal(t, uintptr(48), unsafe.Sizeof(Light{}))
	assert.Equal(t, uintptr(144), unsafe.Sizeof(ObjectConstants{}))
	assert.Equal(t, uintptr(96), unsafe.Sizeof(MaterialConstants{}))
	assert.LessOrEqual(t, unsafe.Sizeof(PassConstants{}), uintptr(3*ConstantBufferAlignment))
}

func TestAlignUp(t *testing.T) {
	assert.Equal(t, uint64(256), AlignUp(1, 256))
	assert.Equal(t, uint64(256), AlignUp(256, 256))
	assert.Equal(t, uint64(512), AlignUp(257, 256))
	assert.Equal(t, uint64(0), AlignUp(0, 256))
}

func TestInvert4RoundTrip(t *testing.T) {
	var m, inv, prod [16]float32
	ScaleTranslation(m[:], 2, 3, 4, 1, -2, 5)
	assert.True(t, Invert4(inv[:], m[:]))
	Mul4(prod[:], m[:], inv[:])
	id := IdentityMatrix()
	for i := range prod {
		assert.InDelta(t, id[i], prod[i], 1e-5)
	}

	var zero [16]float32
	assert.False(t, Invert4(inv[:], zero[:]))
}

func TestLookAtMapsEyeToOrigin(t *testing.T) {
	var view [16]float32
	eye := [3]float32{3, 4, 5}
	LookAt(view[:], eye, [3]float32{0, 0, 0}, [3]float32{0, 1, 0})

	x := view[0]*eye[0] + view[4]*eye[1] + view[8]*eye[2] + view[12]
	y := view[1]*eye[0] + view[5]*eye[1] + view[9]*eye[2] + view[13]
	z := view[2]*eye[0] + view[6]*eye[1] + view[10]*eye[2] + view[14]
	assert.InDelta(t, 0, x, 1e-5)
	assert.InDelta(t, 0, y, 1e-5)
	assert.InDelta(t, 0, z, 1e-5)
}

func TestBytesToSlice(t *testing.T) {
	src := []float32{1, 2, 3}
	b := SliceToBytes(src)
	assert.Len(t, b, 12)
	back := BytesToSlice[float32](b)
	assert.Equal(t, src, back)
	assert.Nil(t, BytesToSlice[float32](b[:3]))
}
