package material

import (
	"github.com/Carmen-Shannon/oxy-waves/common"
	"github.com/Carmen-Shannon/oxy-waves/engine/render_item"
)

// material is the implementation of the Material interface.
type material struct {
	name          string
	index         int
	frameCount    int
	diffuseAlbedo [4]float32
	fresnelR0     [3]float32
	roughness     float32
	matTransform  [16]float32
	lastModified  uint64
}

// Material is one entry of the flat material table. Each material owns one element
// of the material constant buffer of every frame resource and, like a render item,
// is dirty for the N frames following a change.
type Material interface {
	// Name retrieves the material identifier.
	Name() string

	// Index returns the element of the material constant buffer owned by the material.
	Index() int

	// DiffuseAlbedo retrieves the RGBA albedo.
	DiffuseAlbedo() [4]float32

	// FresnelR0 retrieves the reflectance at normal incidence.
	FresnelR0() [3]float32

	// Roughness retrieves the roughness in [0, 1]; 0 is a perfect mirror.
	Roughness() float32

	// MatTransform retrieves the texture-space transform (column-major).
	MatTransform() [16]float32

	// SetDiffuseAlbedo changes the albedo.
	//
	// Parameters:
	//   - albedo: the RGBA albedo
	//   - frame: the frame counter of the frame being prepared
	SetDiffuseAlbedo(albedo [4]float32, frame uint64)

	// SetMatTransform changes the texture-space transform.
	//
	// Parameters:
	//   - m: the transform
	//   - frame: the frame counter of the frame being prepared
	SetMatTransform(m [16]float32, frame uint64)

	// NumFramesDirty returns how many frame resources, starting with the one for frame,
	// still hold stale constants for this material.
	//
	// Parameters:
	//   - frame: the frame counter of the frame being prepared
	//
	// Returns:
	//   - int: a value in [0, N]
	NumFramesDirty(frame uint64) int

	// Constants returns the material constants to upload.
	Constants() common.MaterialConstants
}

var _ Material = &material{}

// NewMaterial creates a new white, fully rough Material.
//
// Parameters:
//   - name: the material identifier
//   - index: the element of the material constant buffer
//   - frameCount: the number of frame resources N
//   - options: variadic list of MaterialBuilderOption functions to configure the material
//
// Returns:
//   - Material: a new Material instance
func NewMaterial(name string, index, frameCount int, options ...MaterialBuilderOption) Material {
	m := &material{
		name:          name,
		index:         index,
		frameCount:    frameCount,
		diffuseAlbedo: [4]float32{1, 1, 1, 1},
		fresnelR0:     [3]float32{0.01, 0.01, 0.01},
		roughness:     1.0,
		matTransform:  common.IdentityMatrix(),
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

func (m *material) Name() string              { return m.name }
func (m *material) Index() int                { return m.index }
func (m *material) DiffuseAlbedo() [4]float32 { return m.diffuseAlbedo }
func (m *material) FresnelR0() [3]float32     { return m.fresnelR0 }
func (m *material) Roughness() float32        { return m.roughness }
func (m *material) MatTransform() [16]float32 { return m.matTransform }

func (m *material) SetDiffuseAlbedo(albedo [4]float32, frame uint64) {
	m.diffuseAlbedo = albedo
	m.lastModified = frame
}

func (m *material) SetMatTransform(t [16]float32, frame uint64) {
	m.matTransform = t
	m.lastModified = frame
}

func (m *material) NumFramesDirty(frame uint64) int {
	return render_item.FramesDirty(frame, m.lastModified, m.frameCount)
}

func (m *material) Constants() common.MaterialConstants {
	return common.MaterialConstants{
		DiffuseAlbedo: m.diffuseAlbedo,
		FresnelR0:     m.fresnelR0,
		Roughness:     m.roughness,
		MatTransform:  m.matTransform,
	}
}
