package light

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-waves/common"
	"github.com/chewxy/math32"
)

// ErrTooManyLights is returned by Pack when more enabled lights are given than the
// pass constants have slots for.
var ErrTooManyLights = errors.New("light: too many enabled lights")

// LightType identifies the kind of light source.
type LightType int

const (
	// LightTypeDirectional represents a light with no position, only direction.
	// Used for large distant sources like the sun. No distance attenuation.
	LightTypeDirectional LightType = iota

	// LightTypePoint represents a light that emits in all directions from a position.
	// Attenuates linearly between FalloffStart and FalloffEnd.
	LightTypePoint

	// LightTypeSpot represents a point light restricted to a cone around its direction.
	// The cone narrows as SpotPower grows.
	LightTypeSpot
)

// lightImpl is the implementation of the Light interface.
type lightImpl struct {
	lightType    LightType
	position     [3]float32
	direction    [3]float32
	color        [3]float32
	intensity    float32
	falloffStart float32
	falloffEnd   float32
	spotPower    float32
	enabled      bool
}

// Light defines the interface for a light source of the lit pass.
//
// Lights are packed into the fixed light array of the pass constants every frame by
// Pack; type-specific properties are ignored by the other types.
type Light interface {
	// Type returns the kind of light source.
	Type() LightType

	// Position returns the world-space position. Meaningless for directional lights.
	Position() [3]float32

	// Direction returns the normalized direction the light travels in.
	// Meaningless for point lights.
	Direction() [3]float32

	// Strength returns the color scaled by the intensity.
	//
	// Returns:
	//   - [3]float32: the RGB strength
	Strength() [3]float32

	FalloffStart() float32
	FalloffEnd() float32
	SpotPower() float32

	// Enabled returns whether this light is packed for rendering.
	Enabled() bool

	// SetPosition sets the world-space position of the light.
	//
	// Parameters:
	//   - x, y, z: position components
	SetPosition(x, y, z float32)

	// SetDirection sets the direction of the light and normalizes it.
	//
	// Parameters:
	//   - x, y, z: direction components (will be normalized)
	SetDirection(x, y, z float32)

	// SetColor sets the RGB color of the light.
	//
	// Parameters:
	//   - r, g, b: color components
	SetColor(r, g, b float32)

	// SetIntensity sets the scalar intensity multiplier.
	//
	// Parameters:
	//   - intensity: the intensity value
	SetIntensity(intensity float32)

	// SetEnabled enables or disables the light for rendering.
	//
	// Parameters:
	//   - enabled: true to enable
	SetEnabled(enabled bool)
}

var _ Light = &lightImpl{}

// NewLight creates a new Light of the specified type with sensible defaults and
// any provided options applied.
//
// Parameters:
//   - lightType: the kind of light to create (directional, point, or spot)
//   - opts: variadic list of LightBuilderOption functions to configure the light
//
// Returns:
//   - Light: a new Light instance
func NewLight(lightType LightType, opts ...LightBuilderOption) Light {
	l := &lightImpl{
		lightType:    lightType,
		direction:    [3]float32{0, -1, 0},
		color:        [3]float32{1, 1, 1},
		intensity:    1.0,
		falloffStart: 1.0,
		falloffEnd:   10.0,
		spotPower:    64.0,
		enabled:      true,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *lightImpl) Type() LightType       { return l.lightType }
func (l *lightImpl) Position() [3]float32  { return l.position }
func (l *lightImpl) Direction() [3]float32 { return l.direction }
func (l *lightImpl) FalloffStart() float32 { return l.falloffStart }
func (l *lightImpl) FalloffEnd() float32   { return l.falloffEnd }
func (l *lightImpl) SpotPower() float32    { return l.spotPower }
func (l *lightImpl) Enabled() bool         { return l.enabled }

func (l *lightImpl) Strength() [3]float32 {
	return [3]float32{l.color[0] * l.intensity, l.color[1] * l.intensity, l.color[2] * l.intensity}
}

func (l *lightImpl) SetPosition(x, y, z float32) {
	l.position = [3]float32{x, y, z}
}

func (l *lightImpl) SetDirection(x, y, z float32) {
	l.direction = common.Normalize3([3]float32{x, y, z})
}

func (l *lightImpl) SetColor(r, g, b float32) {
	l.color = [3]float32{r, g, b}
}

func (l *lightImpl) SetIntensity(intensity float32) {
	l.intensity = intensity
}

func (l *lightImpl) SetEnabled(enabled bool) {
	l.enabled = enabled
}

// Pack converts the enabled lights into the pass-constant light array. Directional
// lights come first, then point lights, then spot lights, so shaders can evaluate
// each range with its own model. Unused slots are zero and contribute no light.
//
// Parameters:
//   - lights: the lights to pack, in any order
//
// Returns:
//   - [common.MaxLights]common.Light: the packed lights
//   - [3]int: the number of directional, point and spot lights packed
//   - error: ErrTooManyLights if more than common.MaxLights lights are enabled
func Pack(lights []Light) ([common.MaxLights]common.Light, [3]int, error) {
	var out [common.MaxLights]common.Light
	var counts [3]int
	n := 0
	for _, t := range []LightType{LightTypeDirectional, LightTypePoint, LightTypeSpot} {
		for _, l := range lights {
			if !l.Enabled() || l.Type() != t {
				continue
			}
			if n == common.MaxLights {
				return out, counts, fmt.Errorf("more than %d lights: %w", common.MaxLights, ErrTooManyLights)
			}
			out[n] = common.Light{
				Strength:     l.Strength(),
				FalloffStart: l.FalloffStart(),
				Direction:    l.Direction(),
				FalloffEnd:   l.FalloffEnd(),
				Position:     l.Position(),
				SpotPower:    l.SpotPower(),
			}
			counts[t]++
			n++
		}
	}
	return out, counts, nil
}

// SphericalDirection returns the direction of a light shining from the point at
// spherical angles (theta around +Y, phi from +Y) toward the origin.
//
// Parameters:
//   - theta: azimuth in radians
//   - phi: polar angle in radians
//
// Returns:
//   - [3]float32: the unit direction
func SphericalDirection(theta, phi float32) [3]float32 {
	sinPhi, cosPhi := math32.Sincos(phi)
	sinTheta, cosTheta := math32.Sincos(theta)
	return [3]float32{-sinPhi * cosTheta, -cosPhi, -sinPhi * sinTheta}
}
