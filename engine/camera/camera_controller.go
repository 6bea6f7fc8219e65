package camera

import (
	"sync"

	"github.com/chewxy/math32"
)

// CameraController owns the positional state of an orbit camera: a target and the
// spherical coordinates (radius, azimuth theta, polar angle phi) of the eye around it.
type CameraController interface {
	// Position returns the camera's world-space position.
	//
	// Returns:
	//   - x, y, z: world-space camera position
	Position() (x, y, z float32)

	// Target returns the look-at point.
	//
	// Returns:
	//   - x, y, z: world-space target position
	Target() (x, y, z float32)

	// SetTarget sets the look-at point and recomputes the position.
	//
	// Parameters:
	//   - x, y, z: world-space coordinates
	SetTarget(x, y, z float32)

	// Rotate orbits the eye around the target by a mouse drag.
	// One pixel is a quarter of a degree scaled by the mouse sensitivity.
	//
	// Parameters:
	//   - dx: horizontal drag in pixels
	//   - dy: vertical drag in pixels
	Rotate(dx, dy float32)

	// Zoom moves the eye toward (positive delta) or away from the target,
	// clamped to the radius bounds.
	//
	// Parameters:
	//   - delta: zoom amount scaled by the zoom speed
	Zoom(delta float32)

	Radius() float32
	Theta() float32
	Phi() float32
}

type cameraControllerImpl struct {
	mu *sync.Mutex

	position [3]float32
	target   [3]float32

	radius float32
	theta  float32 // around the Y axis
	phi    float32 // from the +Y axis

	minRadius float32
	maxRadius float32
	minPhi    float32
	maxPhi    float32

	mouseSensitivity float32
	zoomSpeed        float32
}

var _ CameraController = &cameraControllerImpl{}

// NewCameraController creates an orbit controller looking at the origin from radius 50,
// theta 1.5π and phi 0.2π.
//
// Parameters:
//   - options: functional options to configure the controller
//
// Returns:
//   - CameraController: the newly created controller
func NewCameraController(options ...CameraControllerOption) CameraController {
	cc := &cameraControllerImpl{
		mu:               &sync.Mutex{},
		radius:           50,
		theta:            1.5 * math32.Pi,
		phi:              0.2 * math32.Pi,
		minRadius:        5,
		maxRadius:        150,
		minPhi:           0.1,
		maxPhi:           math32.Pi - 0.1,
		mouseSensitivity: 1,
		zoomSpeed:        0.2,
	}
	for _, option := range options {
		option(cc)
	}
	cc.clamp()
	cc.updatePosition()
	return cc
}

// clamp keeps radius and phi inside their bounds. Caller must hold the mutex.
func (cc *cameraControllerImpl) clamp() {
	cc.radius = math32.Min(math32.Max(cc.radius, cc.minRadius), cc.maxRadius)
	cc.phi = math32.Min(math32.Max(cc.phi, cc.minPhi), cc.maxPhi)
}

// updatePosition converts spherical to cartesian coordinates. Caller must hold the mutex.
func (cc *cameraControllerImpl) updatePosition() {
	sinPhi, cosPhi := math32.Sincos(cc.phi)
	sinTheta, cosTheta := math32.Sincos(cc.theta)
	cc.position[0] = cc.target[0] + cc.radius*sinPhi*cosTheta
	cc.position[1] = cc.target[1] + cc.radius*cosPhi
	cc.position[2] = cc.target[2] + cc.radius*sinPhi*sinTheta
}

func (cc *cameraControllerImpl) Position() (x, y, z float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.position[0], cc.position[1], cc.position[2]
}

func (cc *cameraControllerImpl) Target() (x, y, z float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.target[0], cc.target[1], cc.target[2]
}

func (cc *cameraControllerImpl) SetTarget(x, y, z float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.target = [3]float32{x, y, z}
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Rotate(dx, dy float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	perPixel := 0.25 * math32.Pi / 180 * cc.mouseSensitivity
	cc.theta += dx * perPixel
	cc.phi += dy * perPixel
	cc.clamp()
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Zoom(delta float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.radius -= delta * cc.zoomSpeed
	cc.clamp()
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Radius() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.radius
}

func (cc *cameraControllerImpl) Theta() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.theta
}

func (cc *cameraControllerImpl) Phi() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.phi
}
