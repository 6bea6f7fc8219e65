// Package wave simulates a damped 2D wave equation on a height grid with an explicit
// finite-difference scheme. Field runs the simulation on the CPU and exposes per-vertex
// positions, normals and tangents; GPUField records the same update as compute
// dispatches on a device.
package wave

import (
	"errors"
	"fmt"
	"log"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-waves/common"
	"github.com/chewxy/math32"
	"gonum.org/v1/gonum/blas/blas32"
)

// ErrDisturbOutOfBounds is returned when a disturbance would touch a cell closer than
// two cells to an edge.
var ErrDisturbOutOfBounds = errors.New("wave: disturb position too close to the grid edge")

// ErrInvalidGrid is returned for grids smaller than 2x2 or with non-positive constants.
var ErrInvalidGrid = errors.New("wave: invalid grid")

// ErrUnstable is returned when speed²dt²/dx² exceeds 0.5, where the explicit scheme diverges.
var ErrUnstable = errors.New("wave: time step too large for the spatial step and wave speed")

// Role names one of the three height buffers.
type Role int

const (
	// Previous holds the heights of the previous step.
	Previous Role = iota
	// Current holds the heights that are displayed.
	Current
	// Next receives the heights of the following step.
	Next
)

// Field is a CPU wave simulation over a rows x cols grid of vertices.
type Field interface {
	// Disturb adds magnitude to the height at (row, col) and a quarter of it to the four
	// direct neighbours, clamping each result to the maximum amplitude. Only the Current
	// buffer is modified.
	//
	// Parameters:
	//   - row: the row, in [2, rows-3]
	//   - col: the column, in [2, cols-3]
	//   - magnitude: the height added at the centre
	//
	// Returns:
	//   - error: ErrDisturbOutOfBounds if the stencil would come within two cells of an edge
	Disturb(row, col int, magnitude float32) error

	// Update accumulates dt and, once the accumulated time reaches the time step, runs
	// exactly one simulation step, rotates the buffer roles, recomputes normals and
	// tangents and resets the accumulator to zero. Time beyond one step is discarded.
	//
	// Parameters:
	//   - dt: elapsed time in seconds
	//
	// Returns:
	//   - bool: true if a step ran
	Update(dt float32) bool

	RowCount() int
	ColumnCount() int
	VertexCount() int
	TriangleCount() int

	// Width returns the extent of the grid along x, (cols-1)*dx.
	Width() float32
	// Depth returns the extent of the grid along z, (rows-1)*dx.
	Depth() float32
	SpatialStep() float32
	TimeStep() float32

	// Height returns the Current height at (row, col). It panics when out of range.
	Height(row, col int) float32

	// Heights returns a read-only view of the buffer holding role. It is invalidated by Update.
	Heights(role Role) []float32

	// Position returns the world-space position of vertex i (x, height, z), centred on the origin.
	Position(i int) [3]float32
	// Normal returns the unit normal of vertex i. Edge vertices keep the up vector.
	Normal(i int) [3]float32
	// TangentX returns the unit tangent along +x of vertex i.
	TangentX(i int) [3]float32

	// Energy returns the sum of squared Current heights.
	Energy() float64
	// Peak returns the largest absolute Current height.
	Peak() float32

	// WriteVertices fills dst with position, normal and texture coordinates of every vertex.
	// dst must hold at least VertexCount elements.
	WriteVertices(dst []common.Vertex)

	// Indices returns the triangle-list index buffer of the grid.
	Indices() []uint32

	// Release closes the OpenCL solver, if one is attached. Pool workers exit on their own once idle.
	Release()
}

type params struct {
	speed        float32
	damping      float32
	spatialStep  float32
	timeStep     float32
	maxAmplitude float32
	workers      int
	useOpenCL    bool
}

func defaultParams() params {
	return params{
		speed:        4.0,
		damping:      0.2,
		spatialStep:  1.0,
		timeStep:     0.03,
		maxAmplitude: 8.0,
		workers:      1,
	}
}

func (p params) validate(rows, cols int) error {
	if rows < 2 || cols < 2 {
		return fmt.Errorf("%dx%d: %w", rows, cols, ErrInvalidGrid)
	}
	if p.spatialStep <= 0 || p.timeStep <= 0 || p.speed < 0 || p.damping < 0 || p.maxAmplitude <= 0 {
		return fmt.Errorf("non-positive simulation constant: %w", ErrInvalidGrid)
	}
	if c := courant(p.speed, p.spatialStep, p.timeStep); c > 0.5 {
		return fmt.Errorf("speed²dt²/dx² = %.3f: %w", c, ErrUnstable)
	}
	return nil
}

// stepper advances the three height buffers by one step on an external device.
type stepper interface {
	Step(prev, curr, next []float32) error
	Name() string
	Close()
}

type field struct {
	params
	rows, cols int
	k          [3]float32

	buffers [3][]float32
	roles   [3]int
	timer   float32

	normals  [][3]float32
	tangents [][3]float32

	pool   worker.DynamicWorkerPool
	solver stepper
}

var _ Field = &field{}

// NewField creates a CPU wave field with all heights at rest.
//
// Parameters:
//   - rows: number of vertex rows (>= 2)
//   - cols: number of vertex columns (>= 2)
//   - options: functional options for the simulation constants and parallelism
//
// Returns:
//   - Field: the wave field
//   - error: ErrInvalidGrid or ErrUnstable for unusable dimensions or constants
func NewField(rows, cols int, options ...FieldBuilderOption) (Field, error) {
	p := defaultParams()
	for _, opt := range options {
		opt(&p)
	}
	if err := p.validate(rows, cols); err != nil {
		return nil, err
	}

	n := rows * cols
	f := &field{
		params:   p,
		rows:     rows,
		cols:     cols,
		k:        coefficients(p.speed, p.damping, p.spatialStep, p.timeStep),
		roles:    [3]int{0, 1, 2},
		normals:  make([][3]float32, n),
		tangents: make([][3]float32, n),
	}
	for i := range f.buffers {
		f.buffers[i] = make([]float32, n)
	}
	for i := range f.normals {
		f.normals[i] = [3]float32{0, 1, 0}
		f.tangents[i] = [3]float32{1, 0, 0}
	}
	if f.workers > 1 {
		f.pool = worker.NewDynamicWorkerPool(f.workers, 256, 1*time.Second)
	}
	if f.useOpenCL {
		s, err := newCLStepper(rows, cols, f.k)
		if err != nil {
			log.Printf("[Wave] OpenCL unavailable, stepping on the CPU: %v", err)
		} else {
			log.Printf("[Wave] stepping %dx%d grid on OpenCL device %s", rows, cols, s.Name())
			f.solver = s
		}
	}
	return f, nil
}

func (f *field) buffer(r Role) []float32 {
	return f.buffers[f.roles[r]]
}

func (f *field) Disturb(row, col int, magnitude float32) error {
	if !InDisturbRange(f.rows, f.cols, row, col) {
		return fmt.Errorf("(%d, %d) on %dx%d grid: %w", row, col, f.rows, f.cols, ErrDisturbOutOfBounds)
	}
	disturbCells(f.buffer(Current), f.cols, row, col, magnitude, f.maxAmplitude)
	return nil
}

func (f *field) Update(dt float32) bool {
	f.timer += dt
	if f.timer < f.timeStep {
		return false
	}

	f.step()
	f.roles = [3]int{f.roles[Current], f.roles[Next], f.roles[Previous]}
	f.computeNormals()
	f.timer = 0
	return true
}

// step writes Next from Previous and Current.
func (f *field) step() {
	prev, curr, next := f.buffer(Previous), f.buffer(Current), f.buffer(Next)
	if f.solver != nil {
		err := f.solver.Step(prev, curr, next)
		if err == nil {
			return
		}
		log.Printf("[Wave] OpenCL step failed, falling back to the CPU: %v", err)
		f.solver.Close()
		f.solver = nil
	}

	interior := f.rows - 2
	if f.pool == nil || interior < 2*f.workers {
		stepRows(prev, curr, next, f.cols, 1, f.rows-1, f.k)
		return
	}

	// Rows are independent within a step, so each task owns a disjoint band of Next.
	// The WaitGroup is the per-step barrier.
	chunk := (interior + f.workers - 1) / f.workers
	var wg sync.WaitGroup
	for id, r0 := 0, 1; r0 < f.rows-1; id, r0 = id+1, r0+chunk {
		r1 := min(r0+chunk, f.rows-1)
		wg.Add(1)
		f.pool.SubmitTask(worker.Task{
			ID: id,
			Do: func() (any, error) {
				defer wg.Done()
				stepRows(prev, curr, next, f.cols, r0, r1, f.k)
				return nil, nil
			},
		})
	}
	wg.Wait()
}

func (f *field) computeNormals() {
	h := f.buffer(Current)
	twoDx := 2 * f.spatialStep
	for i := 1; i < f.rows-1; i++ {
		for j := 1; j < f.cols-1; j++ {
			c := i*f.cols + j
			l, r := h[c-1], h[c+1]
			t, b := h[c-f.cols], h[c+f.cols]
			f.normals[c] = common.Normalize3([3]float32{l - r, twoDx, t - b})
			f.tangents[c] = common.Normalize3([3]float32{twoDx, r - l, 0})
		}
	}
}

func (f *field) RowCount() int      { return f.rows }
func (f *field) ColumnCount() int   { return f.cols }
func (f *field) VertexCount() int   { return f.rows * f.cols }
func (f *field) TriangleCount() int { return (f.rows - 1) * (f.cols - 1) * 2 }

func (f *field) Width() float32       { return float32(f.cols-1) * f.spatialStep }
func (f *field) Depth() float32       { return float32(f.rows-1) * f.spatialStep }
func (f *field) SpatialStep() float32 { return f.spatialStep }
func (f *field) TimeStep() float32    { return f.timeStep }

func (f *field) Height(row, col int) float32 {
	if row < 0 || row >= f.rows || col < 0 || col >= f.cols {
		panic(fmt.Sprintf("wave: cell (%d, %d) outside %dx%d grid", row, col, f.rows, f.cols))
	}
	return f.buffer(Current)[row*f.cols+col]
}

func (f *field) Heights(role Role) []float32 {
	return f.buffer(role)
}

func (f *field) Position(i int) [3]float32 {
	row, col := i/f.cols, i%f.cols
	return [3]float32{
		f.spatialStep*float32(col) - 0.5*f.Width(),
		f.buffer(Current)[i],
		f.spatialStep*float32(row) - 0.5*f.Depth(),
	}
}

func (f *field) Normal(i int) [3]float32 {
	return f.normals[i]
}

func (f *field) TangentX(i int) [3]float32 {
	return f.tangents[i]
}

func (f *field) Energy() float64 {
	h := f.buffer(Current)
	v := blas32.Vector{N: len(h), Inc: 1, Data: h}
	return float64(blas32.Dot(v, v))
}

func (f *field) Peak() float32 {
	var peak float32
	for _, h := range f.buffer(Current) {
		peak = math32.Max(peak, math32.Abs(h))
	}
	return peak
}

func (f *field) WriteVertices(dst []common.Vertex) {
	w, d := f.Width(), f.Depth()
	for i := 0; i < f.VertexCount(); i++ {
		p := f.Position(i)
		dst[i] = common.Vertex{
			Pos:    p,
			Normal: f.normals[i],
			TexC:   [2]float32{0.5 + p[0]/w, 0.5 - p[2]/d},
		}
	}
}

func (f *field) Indices() []uint32 {
	return GridIndices(f.rows, f.cols)
}

func (f *field) Release() {
	if f.solver != nil {
		f.solver.Close()
		f.solver = nil
	}
}

// GridIndices returns the triangle-list indices of a rows x cols vertex grid, two
// triangles per quad.
//
// Parameters:
//   - rows: number of vertex rows
//   - cols: number of vertex columns
//
// Returns:
//   - []uint32: 6*(rows-1)*(cols-1) indices
func GridIndices(rows, cols int) []uint32 {
	indices := make([]uint32, 0, (rows-1)*(cols-1)*6)
	for i := 0; i < rows-1; i++ {
		for j := 0; j < cols-1; j++ {
			a := uint32(i*cols + j)
			b := a + 1
			c := uint32((i+1)*cols + j)
			d := c + 1
			indices = append(indices, a, c, b, c, d, b)
		}
	}
	return indices
}

// GridVertices returns the vertices of a flat rows x cols grid laid out like a Field's:
// centred on the origin at height 0, normals up, texture coordinates spanning [0, 1].
// Items displaced by a GPUField height map draw this grid.
//
// Parameters:
//   - rows: number of vertex rows
//   - cols: number of vertex columns
//   - dx: distance between neighbouring vertices
//
// Returns:
//   - []common.Vertex: rows*cols vertices, row-major
func GridVertices(rows, cols int, dx float32) []common.Vertex {
	w, d := float32(cols-1)*dx, float32(rows-1)*dx
	out := make([]common.Vertex, rows*cols)
	for i := range rows {
		for j := range cols {
			x := dx*float32(j) - 0.5*w
			z := dx*float32(i) - 0.5*d
			out[i*cols+j] = common.Vertex{
				Pos:    [3]float32{x, 0, z},
				Normal: [3]float32{0, 1, 0},
				TexC:   [2]float32{0.5 + x/w, 0.5 - z/d},
			}
		}
	}
	return out
}

func defaultWorkers() int {
	return max(runtime.NumCPU()-1, 1)
}
