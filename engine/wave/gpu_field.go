package wave

import (
	"errors"
	"fmt"
	"math"

	"github.com/Carmen-Shannon/oxy-waves/engine/device"
)

// ErrTileMismatch is returned when a GPU grid dimension is not a multiple of TileSize.
var ErrTileMismatch = errors.New("wave: grid dimensions must be multiples of the dispatch tile")

// GPUField runs the wave simulation as compute dispatches over three device textures.
//
// Every method that records work leaves the Current texture in
// device.StateShaderRead so the vertex stage can sample it as a displacement map, and
// transitions it back to device.StateUnorderedAccess before its own dispatch. The
// field tracks the state it last recorded, so command lists must be submitted in the
// order they were recorded.
type GPUField interface {
	// Disturb records a dispatch adding magnitude at (row, col) and a quarter of it to
	// the four neighbours of the Current texture.
	//
	// Parameters:
	//   - cl: a command list that is recording
	//   - row: the row, in [2, rows-3]
	//   - col: the column, in [2, cols-3]
	//   - magnitude: the height added at the centre
	//
	// Returns:
	//   - error: ErrDisturbOutOfBounds if the stencil would come within two cells of an edge
	Disturb(cl device.CommandList, row, col int, magnitude float32) error

	// Update accumulates dt and, once a full time step has accumulated, records one update
	// dispatch and rotates the texture roles. The accumulator resets to zero.
	//
	// Parameters:
	//   - cl: a command list that is recording
	//   - dt: elapsed time in seconds
	//
	// Returns:
	//   - bool: true if a step was recorded
	//   - error: always nil; reserved for recording failures of other backends
	Update(cl device.CommandList, dt float32) (bool, error)

	// MakeReadable records the transition of the Current texture to device.StateShaderRead
	// if it is not already there. Draws sampling DisplacementMap need it after creation,
	// before the first step has been recorded.
	//
	// Parameters:
	//   - cl: a command list that is recording
	MakeReadable(cl device.CommandList)

	// DisplacementMap returns the Current texture.
	DisplacementMap() device.Texture

	// Texture returns the texture currently holding role.
	Texture(role Role) device.Texture

	// State returns the last state recorded for the texture holding role.
	State(role Role) device.ResourceState

	RowCount() int
	ColumnCount() int
	VertexCount() int
	SpatialStep() float32
	TimeStep() float32

	// Release releases the textures and pipelines.
	Release()
}

type gpuField struct {
	params
	rows, cols int
	k          [3]float32

	textures [3]device.Texture
	states   [3]device.ResourceState
	roles    [3]int
	timer    float32

	update  device.Pipeline
	disturb device.Pipeline
}

var _ GPUField = &gpuField{}

// NewGPUField allocates the three height textures and the update and disturb pipelines.
//
// Parameters:
//   - dev: the device to allocate on
//   - rows: number of vertex rows, a multiple of TileSize
//   - cols: number of vertex columns, a multiple of TileSize
//   - options: functional options for the simulation constants
//
// Returns:
//   - GPUField: the field
//   - error: ErrTileMismatch, ErrInvalidGrid, ErrUnstable or a device allocation error
func NewGPUField(dev device.Device, rows, cols int, options ...FieldBuilderOption) (GPUField, error) {
	if dev == nil {
		panic("wave: NewGPUField called with nil device")
	}
	p := defaultParams()
	for _, opt := range options {
		opt(&p)
	}
	if rows%TileSize != 0 || cols%TileSize != 0 {
		return nil, fmt.Errorf("%dx%d with %d tile: %w", rows, cols, TileSize, ErrTileMismatch)
	}
	if err := p.validate(rows, cols); err != nil {
		return nil, err
	}

	f := &gpuField{
		params: p,
		rows:   rows,
		cols:   cols,
		k:      coefficients(p.speed, p.damping, p.spatialStep, p.timeStep),
		roles:  [3]int{0, 1, 2},
	}
	for i, name := range []string{"waves_a", "waves_b", "waves_c"} {
		t, err := dev.AllocateTexture(name, cols, rows)
		if err != nil {
			f.Release()
			return nil, fmt.Errorf("failed to allocate wave texture: %w", err)
		}
		f.textures[i] = t
		f.states[i] = device.StateCommon
	}

	var err error
	f.update, err = dev.NewComputePipeline(device.ComputePipelineDescriptor{
		Key:           updatePipelineKey,
		WGSL:          updateWGSL,
		Kernel:        updateKernel,
		Textures:      []device.Access{device.AccessRead, device.AccessRead, device.AccessReadWrite},
		RootConstants: updateConstants,
	})
	if err != nil {
		f.Release()
		return nil, fmt.Errorf("failed to create wave update pipeline: %w", err)
	}
	f.disturb, err = dev.NewComputePipeline(device.ComputePipelineDescriptor{
		Key:           disturbPipelineKey,
		WGSL:          disturbWGSL,
		Kernel:        disturbKernel,
		Textures:      []device.Access{device.AccessReadWrite},
		RootConstants: disturbConstants,
	})
	if err != nil {
		f.Release()
		return nil, fmt.Errorf("failed to create wave disturb pipeline: %w", err)
	}
	return f, nil
}

// transition records a barrier for the texture at buffer index i unless it is already in to.
func (f *gpuField) transition(cl device.CommandList, i int, to device.ResourceState) {
	if f.states[i] == to {
		return
	}
	cl.ResourceBarrier(f.textures[i], f.states[i], to)
	f.states[i] = to
}

func (f *gpuField) Disturb(cl device.CommandList, row, col int, magnitude float32) error {
	if !InDisturbRange(f.rows, f.cols, row, col) {
		return fmt.Errorf("(%d, %d) on %dx%d grid: %w", row, col, f.rows, f.cols, ErrDisturbOutOfBounds)
	}
	cur := f.roles[Current]
	f.transition(cl, cur, device.StateUnorderedAccess)
	cl.SetComputePipeline(f.disturb)
	cl.SetComputeRootConstants([]uint32{
		uint32(row),
		uint32(col),
		math.Float32bits(magnitude),
		math.Float32bits(f.maxAmplitude),
		uint32(f.cols),
	})
	cl.SetComputeTextures(f.textures[cur])
	cl.Dispatch(1, 1, 1)
	f.transition(cl, cur, device.StateShaderRead)
	return nil
}

func (f *gpuField) Update(cl device.CommandList, dt float32) (bool, error) {
	f.timer += dt
	if f.timer < f.timeStep {
		return false, nil
	}

	prev, cur, next := f.roles[Previous], f.roles[Current], f.roles[Next]
	for _, i := range f.roles {
		f.transition(cl, i, device.StateUnorderedAccess)
	}
	cl.SetComputePipeline(f.update)
	cl.SetComputeRootConstants([]uint32{
		math.Float32bits(f.k[0]),
		math.Float32bits(f.k[1]),
		math.Float32bits(f.k[2]),
		uint32(f.cols),
		uint32(f.rows),
	})
	cl.SetComputeTextures(f.textures[prev], f.textures[cur], f.textures[next])
	cl.Dispatch(f.cols/TileSize, f.rows/TileSize, 1)

	f.roles = [3]int{cur, next, prev}
	f.transition(cl, f.roles[Current], device.StateShaderRead)
	f.timer = 0
	return true, nil
}

func (f *gpuField) MakeReadable(cl device.CommandList) {
	f.transition(cl, f.roles[Current], device.StateShaderRead)
}

func (f *gpuField) DisplacementMap() device.Texture {
	return f.textures[f.roles[Current]]
}

func (f *gpuField) Texture(role Role) device.Texture {
	return f.textures[f.roles[role]]
}

func (f *gpuField) State(role Role) device.ResourceState {
	return f.states[f.roles[role]]
}

func (f *gpuField) RowCount() int        { return f.rows }
func (f *gpuField) ColumnCount() int     { return f.cols }
func (f *gpuField) VertexCount() int     { return f.rows * f.cols }
func (f *gpuField) SpatialStep() float32 { return f.spatialStep }
func (f *gpuField) TimeStep() float32    { return f.timeStep }

func (f *gpuField) Release() {
	for i, t := range f.textures {
		if t != nil {
			t.Release()
			f.textures[i] = nil
		}
	}
	if f.update != nil {
		f.update.Release()
		f.update = nil
	}
	if f.disturb != nil {
		f.disturb.Release()
		f.disturb = nil
	}
}
