// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types. Every struct here is uploaded verbatim to the GPU, so field order and padding are part of the shader contract.
package common

import _ "embed"

// MaxLights is the number of light slots carried in PassConstants.
const MaxLights = 3

// ConstantBufferAlignment is the byte alignment of each element in a constant upload buffer.
const ConstantBufferAlignment = 256

// Vertex is the layout of one wave/land vertex in a dynamic or static vertex buffer.
type Vertex struct {
	// Pos is the world-space position.
	Pos [3]float32
	// Normal is the unit surface normal.
	Normal [3]float32
	// TexC is the texture coordinate.
	TexC [2]float32
}

// VertexSource is the WGSL VertexIn struct matching Vertex.
//
//go:embed assets/vertex.wgsl
var VertexSource string

// LightSource is the WGSL definition of Light.
//
//go:embed assets/light.wgsl
var LightSource string

// Light describes one directional, point or spot light in the pass constants.
// The layout matches the HLSL/WGSL struct used by the lit shaders (two vec4s plus padding).
type Light struct {
	// Strength is the light colour/intensity.
	Strength [3]float32
	// FalloffStart is used by point and spot lights.
	FalloffStart float32
	// Direction is used by directional and spot lights.
	Direction [3]float32
	// FalloffEnd is used by point and spot lights.
	FalloffEnd float32
	// Position is used by point and spot lights.
	Position [3]float32
	// SpotPower is used by spot lights.
	SpotPower float32
}

// PassConstantsSource is the WGSL definition of PassConstants (592 bytes). It refers to Light.
//
//go:embed assets/pass_constants.wgsl
var PassConstantsSource string

// PassConstants holds the per-pass values written once per frame into slot 0 of a frame resource's pass buffer.
type PassConstants struct {
	View        [16]float32
	InvView     [16]float32
	Proj        [16]float32
	InvProj     [16]float32
	ViewProj    [16]float32
	InvViewProj [16]float32

	EyePosW          [3]float32
	_                float32
	RenderTargetSize [2]float32
	InvRenderTarget  [2]float32
	NearZ            float32
	FarZ             float32
	TotalTime        float32
	DeltaTime        float32

	AmbientLight [4]float32
	Lights       [MaxLights]Light
}

// ObjectConstantsSource is the WGSL definition of ObjectConstants.
//
//go:embed assets/object_constants.wgsl
var ObjectConstantsSource string

// ObjectConstants holds the per-render-item values.
type ObjectConstants struct {
	World        [16]float32
	TexTransform [16]float32
	// DisplacementMapTexelSize and GridSpatialStep are only read by items displaced by a
	// GPU wave height map: (1/cols, 1/rows) and the grid spacing.
	DisplacementMapTexelSize [2]float32
	GridSpatialStep          float32
	_                        float32
}

//go:embed assets/material_constants.wgsl
var MaterialConstantsSource string

// MaterialConstants holds the per-material values.
type MaterialConstants struct {
	DiffuseAlbedo [4]float32
	FresnelR0     [3]float32
	Roughness     float32
	MatTransform  [16]float32
}

// VectorAddElement is one element of the vector-add compute sample; the shader sums two arrays of these.
type VectorAddElement struct {
	V1 [3]float32
	V2 [2]float32
}
