package camera

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-waves/common"
	"github.com/chewxy/math32"
)

type cameraImpl struct {
	mu *sync.Mutex

	up [3]float32

	fov    float32
	aspect float32
	near   float32
	far    float32

	viewMatrix              [16]float32
	inverseViewMatrix       [16]float32
	projectionMatrix        [16]float32
	inverseProjectionMatrix [16]float32
	viewProjectionMatrix    [16]float32

	controller CameraController
}

// Camera holds perspective settings and computes view/projection matrices
// from an attached CameraController each frame via Update().
type Camera interface {
	// Fov returns the vertical field of view in radians.
	Fov() float32

	// Aspect returns the aspect ratio (width / height).
	Aspect() float32

	Near() float32
	Far() float32

	// Eye returns the world-space camera position read at the last Update.
	//
	// Returns:
	//   - [3]float32: the eye position
	Eye() [3]float32

	// ViewMatrix returns the current 4x4 view matrix (column-major).
	ViewMatrix() [16]float32

	// ProjectionMatrix returns the current 4x4 projection matrix (column-major).
	ProjectionMatrix() [16]float32

	// ViewProjectionMatrix returns projection * view (column-major).
	ViewProjectionMatrix() [16]float32

	// PassConstants fills the camera part of the per-pass constants: the view, projection
	// and view-projection matrices with their inverses, the eye position and the clip planes.
	//
	// Parameters:
	//   - pc: the pass constants to fill
	PassConstants(pc *common.PassConstants)

	// Controller returns the attached CameraController, or nil.
	Controller() CameraController

	// SetController attaches a CameraController to the camera.
	//
	// Parameters:
	//   - ctrl: the controller to attach
	SetController(ctrl CameraController)

	// SetAspect sets the aspect ratio and recomputes matrices.
	//
	// Parameters:
	//   - aspect: the aspect ratio (width / height)
	SetAspect(aspect float32)

	// SetFov sets the vertical field of view in radians and recomputes matrices.
	//
	// Parameters:
	//   - fov: field of view in radians
	SetFov(fov float32)

	// Update reads position/target from the controller and recomputes matrices.
	// Without a controller it does nothing.
	Update()
}

var _ Camera = &cameraImpl{}

// NewCamera creates a new Camera with a 45 degree field of view and clip planes at 1 and 1000.
//
// Parameters:
//   - options: functional options to configure the camera
//
// Returns:
//   - Camera: the newly created camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		mu:                   &sync.Mutex{},
		up:                   [3]float32{0, 1, 0},
		fov:                  0.25 * math32.Pi,
		aspect:               1.0,
		near:                 1.0,
		far:                  1000.0,
		viewMatrix:           common.IdentityMatrix(),
		inverseViewMatrix:    common.IdentityMatrix(),
		projectionMatrix:     common.IdentityMatrix(),
		viewProjectionMatrix: common.IdentityMatrix(),
	}
	for _, option := range options {
		option(c)
	}
	c.updateMatrices()
	return c
}

func (c *cameraImpl) Fov() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fov
}

func (c *cameraImpl) Aspect() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aspect
}

func (c *cameraImpl) Near() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.near
}

func (c *cameraImpl) Far() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.far
}

func (c *cameraImpl) Eye() [3]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eye()
}

func (c *cameraImpl) ViewMatrix() [16]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewMatrix
}

func (c *cameraImpl) ProjectionMatrix() [16]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projectionMatrix
}

func (c *cameraImpl) ViewProjectionMatrix() [16]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewProjectionMatrix
}

func (c *cameraImpl) PassConstants(pc *common.PassConstants) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pc.View = c.viewMatrix
	pc.InvView = c.inverseViewMatrix
	pc.Proj = c.projectionMatrix
	pc.InvProj = c.inverseProjectionMatrix
	pc.ViewProj = c.viewProjectionMatrix
	common.Invert4(pc.InvViewProj[:], c.viewProjectionMatrix[:])
	pc.EyePosW = c.eye()
	pc.NearZ = c.near
	pc.FarZ = c.far
}

func (c *cameraImpl) Controller() CameraController {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controller
}

func (c *cameraImpl) SetController(ctrl CameraController) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controller = ctrl
	c.updateMatrices()
}

func (c *cameraImpl) SetAspect(aspect float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aspect = aspect
	c.updateMatrices()
}

func (c *cameraImpl) SetFov(fov float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fov = fov
	c.updateMatrices()
}

func (c *cameraImpl) Update() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.controller == nil {
		return
	}
	c.updateMatrices()
}

// eye returns the controller position, or the origin without a controller.
// Caller must hold the mutex.
func (c *cameraImpl) eye() [3]float32 {
	if c.controller == nil {
		return [3]float32{}
	}
	x, y, z := c.controller.Position()
	return [3]float32{x, y, z}
}

// updateMatrices recalculates every matrix. The view matrix stays at identity without a controller.
// Caller must hold the mutex.
func (c *cameraImpl) updateMatrices() {
	common.Perspective(c.projectionMatrix[:], c.fov, c.aspect, c.near, c.far)
	common.Invert4(c.inverseProjectionMatrix[:], c.projectionMatrix[:])

	if c.controller != nil {
		tx, ty, tz := c.controller.Target()
		common.LookAt(c.viewMatrix[:], c.eye(), [3]float32{tx, ty, tz}, c.up)
		common.Invert4(c.inverseViewMatrix[:], c.viewMatrix[:])
	}

	common.Mul4(c.viewProjectionMatrix[:], c.projectionMatrix[:], c.viewMatrix[:])
}
