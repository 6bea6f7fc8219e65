package scene

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/Carmen-Shannon/oxy-waves/common"
	"github.com/Carmen-Shannon/oxy-waves/engine/camera"
	"github.com/Carmen-Shannon/oxy-waves/engine/device"
	"github.com/Carmen-Shannon/oxy-waves/engine/frame"
	"github.com/Carmen-Shannon/oxy-waves/engine/light"
	"github.com/Carmen-Shannon/oxy-waves/engine/material"
	"github.com/Carmen-Shannon/oxy-waves/engine/render_item"
	"github.com/Carmen-Shannon/oxy-waves/engine/shader"
	"github.com/Carmen-Shannon/oxy-waves/engine/wave"
	"github.com/chewxy/math32"
)

// ErrNotInitialized is returned by the per-frame methods before Init succeeded.
var ErrNotInitialized = errors.New("scene: not initialized")

// Variant selects where the wave simulation runs.
type Variant int

const (
	// VariantCPU simulates on the CPU and streams vertices through each frame resource.
	VariantCPU Variant = iota
	// VariantGPU simulates with compute dispatches and displaces a static grid in the vertex stage.
	VariantGPU
)

func (v Variant) String() string {
	if v == VariantGPU {
		return "gpu"
	}
	return "cpu"
}

// Frame is the per-frame state the render loop hands to a scene.
type Frame struct {
	// Counter is the number of frames started before this one.
	Counter uint64
	// DeltaTime is the wall time since the previous frame in seconds.
	DeltaTime float32
	// TotalTime is the wall time since the first frame in seconds.
	TotalTime float32
	Ring      frame.Ring
	// Resource is the frame resource of slot Counter % N. Its fence has completed.
	Resource frame.Resource
}

// Scene is the lit waves scene: hills and a wave grid lit by up to three lights.
//
// The render loop calls Simulate, UpdateConstants and Record in that order once per
// frame from a single goroutine; none of them may block on the GPU.
type Scene interface {
	// Name returns the scene's identifier.
	Name() string

	// Active returns whether this scene is currently active for rendering.
	Active() bool

	// SetActive sets whether this scene is active for rendering.
	SetActive(active bool)

	// Variant returns where the wave simulation runs.
	Variant() Variant

	// Camera returns the scene's camera.
	Camera() camera.Camera

	// Items returns the scene's render items.
	Items() render_item.Set

	// Materials returns the material table.
	Materials() []material.Material

	// Layout returns the frame resource layout the scene needs.
	Layout() frame.Layout

	// Init creates the wave field, geometry, render items and pipelines.
	//
	// Parameters:
	//   - dev: the device to allocate on
	//   - frames: the number of frame resources N
	//
	// Returns:
	//   - error: wave field or allocation errors
	Init(dev device.Device, frames int) error

	// Simulate advances the wave simulation and animated state by one frame.
	//
	// Parameters:
	//   - f: the frame being prepared
	//
	// Returns:
	//   - error: ErrNotInitialized or a wave field error
	Simulate(f *Frame) error

	// UpdateConstants uploads the pass constants, the constants of every dirty render item
	// and material, and the wave vertices of the CPU variant into the frame's resource.
	//
	// Parameters:
	//   - f: the frame being prepared
	//
	// Returns:
	//   - error: ErrNotInitialized or frame.ErrFrameInFlight if the resource is still in use
	UpdateConstants(f *Frame) error

	// Record records the frame's compute and draw commands.
	//
	// Parameters:
	//   - cl: a command list recording on the frame's allocator
	//   - f: the frame being prepared
	//
	// Returns:
	//   - error: ErrNotInitialized or a wave field error
	Record(cl device.CommandList, f *Frame) error

	// Resize updates the render target size and the camera aspect ratio.
	//
	// Parameters:
	//   - width: render target width in pixels
	//   - height: render target height in pixels
	Resize(width, height int)

	// RotateSun moves the first directional light around the origin.
	//
	// Parameters:
	//   - dTheta: change of the azimuth in radians
	//   - dPhi: change of the polar angle in radians, clamped to [0.1, π/2]
	RotateSun(dTheta, dPhi float32)

	// SetWireframe switches the wave grid between solid and wireframe drawing.
	SetWireframe(enabled bool)

	// Wireframe reports whether the wave grid is drawn as wireframe.
	Wireframe() bool

	// Disturb queues a disturbance that the next Simulate applies on top of the
	// scheduled ones. It is safe to call from input callbacks.
	//
	// Parameters:
	//   - row: the grid row
	//   - col: the grid column
	//   - magnitude: the height added at (row, col)
	//
	// Returns:
	//   - error: wave.ErrDisturbOutOfBounds if the stencil would leave the grid
	Disturb(row, col int, magnitude float32) error

	// Grid returns the wave grid dimensions.
	Grid() (rows, cols int)

	// Release releases every GPU resource created by Init. The GPU must be idle.
	Release()
}

type scene struct {
	mu *sync.Mutex

	name    string
	active  bool
	variant Variant

	rows, cols     int
	waveOptions    []wave.FieldBuilderOption
	disturbOptions []wave.DisturbSchedulerBuilderOption

	landWidth, landDepth float32
	landRows, landCols   int

	cam        camera.Camera
	lights     []light.Light
	ambient    [4]float32
	clearColor [4]float32
	width      int
	height     int
	wireframe  bool

	sunTheta, sunPhi float32

	// Created by Init.
	frames     int
	field      wave.Field
	gpuField   wave.GPUField
	scheduler  wave.DisturbScheduler
	items      render_item.Set
	materials  []material.Material
	water      material.Material
	geometries []*render_item.Geometry
	pipelines  map[string]device.Pipeline

	vertices []common.Vertex
	pending  []wave.Disturbance
	manual   []wave.Disturbance
	stepDt   float32
	waterU   float32
	waterV   float32
	dirty    []render_item.RenderItem
	initDone bool
}

var _ Scene = &scene{}

// NewScene creates the waves scene. The camera is required and NewScene panics if it is nil.
// GPU work is deferred to Init.
//
// Parameters:
//   - name: the name of the scene
//   - cam: the camera (must not be nil)
//   - options: functional options to configure the scene
//
// Returns:
//   - Scene: the newly created scene
func NewScene(name string, cam camera.Camera, options ...SceneBuilderOption) Scene {
	if cam == nil {
		panic("scene: NewScene requires a non-nil Camera")
	}
	s := &scene{
		mu:         &sync.Mutex{},
		name:       name,
		active:     true,
		rows:       128,
		cols:       128,
		landWidth:  160,
		landDepth:  160,
		landRows:   50,
		landCols:   50,
		cam:        cam,
		ambient:    [4]float32{0.25, 0.25, 0.35, 1},
		clearColor: [4]float32{0.69, 0.77, 0.87, 1},
		width:      1280,
		height:     720,
		sunTheta:   1.25 * math32.Pi,
		sunPhi:     0.25 * math32.Pi,
	}
	for _, option := range options {
		option(s)
	}
	if len(s.lights) == 0 {
		d := light.SphericalDirection(s.sunTheta, s.sunPhi)
		s.lights = []light.Light{
			light.NewLight(light.LightTypeDirectional, light.WithDirection(d[0], d[1], d[2]), light.WithColor(1, 1, 0.9)),
		}
	}
	return s
}

func (s *scene) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

func (s *scene) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *scene) SetActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = active
}

func (s *scene) Variant() Variant               { return s.variant }
func (s *scene) Camera() camera.Camera          { return s.cam }
func (s *scene) Items() render_item.Set         { return s.items }
func (s *scene) Materials() []material.Material { return s.materials }

func (s *scene) Layout() frame.Layout {
	l := frame.Layout{PassCount: 1, ObjectCount: 2, MaterialCount: 2}
	if s.variant == VariantCPU {
		l.WaveVertexCount = s.rows * s.cols
	}
	return l
}

func (s *scene) Init(dev device.Device, frames int) error {
	if dev == nil {
		panic("scene: Init requires a non-nil Device")
	}
	s.frames = frames
	s.pipelines = make(map[string]device.Pipeline)
	if err := s.initWaves(dev); err != nil {
		s.Release()
		return err
	}
	if err := s.initPipelines(dev); err != nil {
		s.Release()
		return err
	}
	if err := s.initItems(dev); err != nil {
		s.Release()
		return err
	}
	s.initDone = true
	log.Printf("[Scene] %s initialized: %s waves %dx%d, %d render items, %d frame resources",
		s.name, s.variant, s.rows, s.cols, s.items.Len(), frames)
	return nil
}

func (s *scene) initWaves(dev device.Device) error {
	var err error
	switch s.variant {
	case VariantGPU:
		s.gpuField, err = wave.NewGPUField(dev, s.rows, s.cols, s.waveOptions...)
	default:
		s.field, err = wave.NewField(s.rows, s.cols, s.waveOptions...)
		s.vertices = make([]common.Vertex, s.rows*s.cols)
	}
	if err != nil {
		return fmt.Errorf("failed to create wave field: %w", err)
	}
	s.scheduler, err = wave.NewDisturbScheduler(s.rows, s.cols, s.disturbOptions...)
	if err != nil {
		return fmt.Errorf("failed to create disturb scheduler: %w", err)
	}
	return nil
}

// expandShaders runs the scene's WGSL through the pre-processor and returns the expanded
// vertex, displaced vertex and fragment sources with the number of constant buffer groups they declare.
func expandShaders() (vs, displacedVS, fs string, constantBuffers int, err error) {
	pp := shader.NewPreProcessor()
	if vs, err = pp.Process(vertexWGSL); err != nil {
		return "", "", "", 0, fmt.Errorf("failed to expand vertex shader: %w", err)
	}
	groups := make(map[int]bool)
	for _, d := range pp.Declarations() {
		groups[*d.Group] = true
	}
	if displacedVS, err = pp.Process(displacedVertexWGSL); err != nil {
		return "", "", "", 0, fmt.Errorf("failed to expand displaced vertex shader: %w", err)
	}
	if fs, err = pp.Process(fragmentWGSL); err != nil {
		return "", "", "", 0, fmt.Errorf("failed to expand fragment shader: %w", err)
	}
	return vs, displacedVS, fs, len(groups), nil
}

func (s *scene) initPipelines(dev device.Device) error {
	vs, displacedVS, fs, cbs, err := expandShaders()
	if err != nil {
		return err
	}
	stride := vertexStride
	descs := []device.GraphicsPipelineDescriptor{
		{Key: "opaque", VertexWGSL: vs, FragmentWGSL: fs, VertexStride: stride, ConstantBuffers: cbs},
		{Key: "opaque_wireframe", VertexWGSL: vs, FragmentWGSL: fs, VertexStride: stride, ConstantBuffers: cbs, Wireframe: true},
	}
	if s.variant == VariantGPU {
		descs = append(descs,
			device.GraphicsPipelineDescriptor{Key: "waves_displaced", VertexWGSL: displacedVS, FragmentWGSL: fs, VertexStride: stride, ConstantBuffers: cbs, DisplacementMap: true},
			device.GraphicsPipelineDescriptor{Key: "waves_displaced_wireframe", VertexWGSL: displacedVS, FragmentWGSL: fs, VertexStride: stride, ConstantBuffers: cbs, DisplacementMap: true, Wireframe: true},
		)
	}
	for _, d := range descs {
		p, err := dev.NewGraphicsPipeline(d)
		if err != nil {
			return fmt.Errorf("failed to create pipeline %s: %w", d.Key, err)
		}
		s.pipelines[d.Key] = p
	}
	return nil
}

func (s *scene) initItems(dev device.Device) error {
	grass := material.NewMaterial("grass", 0, s.frames,
		material.WithDiffuseAlbedo([4]float32{0.2, 0.6, 0.2, 1}),
		material.WithFresnelR0([3]float32{0.01, 0.01, 0.01}),
		material.WithRoughness(0.125),
	)
	s.water = material.NewMaterial("water", 1, s.frames,
		material.WithDiffuseAlbedo([4]float32{0, 0.2, 0.6, 1}),
		material.WithFresnelR0([3]float32{0.1, 0.1, 0.1}),
		material.WithRoughness(0),
	)
	s.materials = []material.Material{grass, s.water}

	land, err := staticGeometry(dev, "land",
		landVertices(s.landWidth, s.landDepth, s.landRows, s.landCols),
		wave.GridIndices(s.landRows, s.landCols))
	if err != nil {
		return err
	}
	s.geometries = append(s.geometries, land)

	var dx float32
	if s.variant == VariantGPU {
		dx = s.gpuField.SpatialStep()
	} else {
		dx = s.field.SpatialStep()
	}
	waves, err := wavesGeometry(dev, s.rows, s.cols, dx, s.variant == VariantGPU)
	if err != nil {
		return err
	}
	s.geometries = append(s.geometries, waves)

	var tile [16]float32
	common.ScaleTranslation(tile[:], 5, 5, 1, 0, 0, 0)

	s.items = render_item.NewSet()
	s.items.Add(render_item.NewRenderItem(0, s.frames,
		render_item.WithGeometry(land),
		render_item.WithMaterialIndex(grass.Index()),
		render_item.WithTexTransform(tile),
		render_item.WithLayer(render_item.LayerOpaque),
	))
	s.items.Add(render_item.NewRenderItem(1, s.frames,
		render_item.WithGeometry(waves),
		render_item.WithMaterialIndex(s.water.Index()),
		render_item.WithTexTransform(tile),
		render_item.WithLayer(render_item.LayerWaves),
		render_item.WithDisplacementMap(s.rows, s.cols, dx),
	))
	return nil
}

func (s *scene) Simulate(f *Frame) error {
	if !s.initDone {
		return ErrNotInitialized
	}
	s.cam.Update()

	s.mu.Lock()
	fired := append([]wave.Disturbance(nil), s.manual...)
	s.manual = s.manual[:0]
	s.mu.Unlock()
	if d, fire := s.scheduler.Tick(f.DeltaTime); fire {
		fired = append(fired, d)
	}

	switch s.variant {
	case VariantGPU:
		s.pending = append(s.pending, fired...)
		s.stepDt = f.DeltaTime
	default:
		for _, d := range fired {
			if err := s.field.Disturb(d.Row, d.Col, d.Magnitude); err != nil {
				return err
			}
		}
		s.field.Update(f.DeltaTime)
	}

	s.animateWater(f)
	return nil
}

// animateWater scrolls the water texture, which dirties the water material every frame.
func (s *scene) animateWater(f *Frame) {
	s.waterU += 0.1 * f.DeltaTime
	s.waterV += 0.02 * f.DeltaTime
	if s.waterU >= 1 {
		s.waterU -= 1
	}
	if s.waterV >= 1 {
		s.waterV -= 1
	}
	var m [16]float32
	common.ScaleTranslation(m[:], 1, 1, 1, s.waterU, s.waterV, 0)
	s.water.SetMatTransform(m, f.Counter)
}

func (s *scene) UpdateConstants(f *Frame) error {
	if !s.initDone {
		return ErrNotInitialized
	}
	slot := f.Resource.Index()

	s.dirty = s.items.Dirty(f.Counter, s.dirty[:0])
	for _, it := range s.dirty {
		c := it.Constants()
		if err := frame.CopyConstants(f.Ring, slot, frame.KindObject, it.ObjectIndex(), &c); err != nil {
			return fmt.Errorf("object %d: %w", it.ObjectIndex(), err)
		}
	}
	for _, m := range s.materials {
		if m.NumFramesDirty(f.Counter) == 0 {
			continue
		}
		c := m.Constants()
		if err := frame.CopyConstants(f.Ring, slot, frame.KindMaterial, m.Index(), &c); err != nil {
			return fmt.Errorf("material %s: %w", m.Name(), err)
		}
	}

	pc, err := s.passConstants(f)
	if err != nil {
		return err
	}
	if err := frame.CopyConstants(f.Ring, slot, frame.KindPass, 0, &pc); err != nil {
		return fmt.Errorf("pass constants: %w", err)
	}

	if s.variant == VariantCPU {
		s.field.WriteVertices(s.vertices)
		if err := f.Ring.CopyVertices(slot, s.vertices); err != nil {
			return fmt.Errorf("wave vertices: %w", err)
		}
	}
	return nil
}

func (s *scene) passConstants(f *Frame) (common.PassConstants, error) {
	var pc common.PassConstants
	s.cam.PassConstants(&pc)

	// RotateSun mutates the lights under mu.
	s.mu.Lock()
	w, h := float32(s.width), float32(s.height)
	packed, _, err := light.Pack(s.lights)
	s.mu.Unlock()
	if err != nil {
		return pc, err
	}

	pc.RenderTargetSize = [2]float32{w, h}
	pc.InvRenderTarget = [2]float32{1 / w, 1 / h}
	pc.TotalTime = f.TotalTime
	pc.DeltaTime = f.DeltaTime
	pc.AmbientLight = s.ambient
	pc.Lights = packed
	return pc, nil
}

func (s *scene) Record(cl device.CommandList, f *Frame) error {
	if !s.initDone {
		return ErrNotInitialized
	}
	if s.variant == VariantGPU {
		for _, d := range s.pending {
			if err := s.gpuField.Disturb(cl, d.Row, d.Col, d.Magnitude); err != nil {
				return err
			}
		}
		s.pending = s.pending[:0]
		if _, err := s.gpuField.Update(cl, s.stepDt); err != nil {
			return err
		}
		s.gpuField.MakeReadable(cl)
	}

	s.mu.Lock()
	wireframe := s.wireframe
	s.mu.Unlock()

	cl.BeginRenderPass(s.clearColor)
	cl.SetGraphicsPipeline(s.pipelines["opaque"])
	s.drawItems(cl, f.Resource, s.items.Layer(render_item.LayerOpaque))

	key := "opaque"
	if s.variant == VariantGPU {
		key = "waves_displaced"
	}
	if wireframe {
		key += "_wireframe"
	}
	cl.SetGraphicsPipeline(s.pipelines[key])
	if s.variant == VariantGPU {
		cl.SetGraphicsTexture(s.gpuField.DisplacementMap())
	}
	s.drawItems(cl, f.Resource, s.items.Layer(render_item.LayerWaves))
	cl.EndRenderPass()
	return nil
}

func (s *scene) drawItems(cl device.CommandList, res frame.Resource, items []render_item.RenderItem) {
	pass, obj, mat := res.PassConstants(), res.ObjectConstants(), res.MaterialConstants()
	cl.SetConstantBuffer(passSlot, pass.Buffer(), pass.Offset(0))
	for _, it := range items {
		g := it.Geometry()
		if g.Dynamic {
			vb := res.WaveVertices()
			cl.SetVertexBuffer(vb.Buffer(), 0, vb.Stride())
		} else {
			cl.SetVertexBuffer(g.VertexBuffer, 0, g.VertexStride)
		}
		cl.SetIndexBuffer(g.IndexBuffer, 0)
		cl.SetConstantBuffer(objectSlot, obj.Buffer(), obj.Offset(it.ObjectIndex()))
		cl.SetConstantBuffer(materialSlot, mat.Buffer(), mat.Offset(it.MaterialIndex()))
		cl.DrawIndexed(g.IndexCount, g.StartIndex, g.BaseVertex)
	}
}

func (s *scene) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	s.mu.Lock()
	s.width, s.height = width, height
	s.mu.Unlock()
	s.cam.SetAspect(float32(width) / float32(height))
}

func (s *scene) RotateSun(dTheta, dPhi float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sunTheta += dTheta
	s.sunPhi = math32.Min(math32.Max(s.sunPhi+dPhi, 0.1), math32.Pi/2)
	for _, l := range s.lights {
		if l.Type() == light.LightTypeDirectional {
			d := light.SphericalDirection(s.sunTheta, s.sunPhi)
			l.SetDirection(d[0], d[1], d[2])
			return
		}
	}
}

func (s *scene) SetWireframe(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wireframe = enabled
}

func (s *scene) Wireframe() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wireframe
}

func (s *scene) Disturb(row, col int, magnitude float32) error {
	if !wave.InDisturbRange(s.rows, s.cols, row, col) {
		return fmt.Errorf("disturb (%d, %d) on %dx%d grid: %w", row, col, s.rows, s.cols, wave.ErrDisturbOutOfBounds)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manual = append(s.manual, wave.Disturbance{Row: row, Col: col, Magnitude: magnitude})
	return nil
}

func (s *scene) Grid() (rows, cols int) {
	return s.rows, s.cols
}

func (s *scene) Release() {
	for _, g := range s.geometries {
		releaseGeometry(g)
	}
	s.geometries = nil
	for k, p := range s.pipelines {
		p.Release()
		delete(s.pipelines, k)
	}
	if s.field != nil {
		s.field.Release()
		s.field = nil
	}
	if s.gpuField != nil {
		s.gpuField.Release()
		s.gpuField = nil
	}
	s.initDone = false
}
