package wave

import (
	"fmt"
	"math/rand/v2"
)

// Disturbance is one disturbance chosen by a DisturbScheduler.
type Disturbance struct {
	Row       int
	Col       int
	Magnitude float32
}

// DisturbScheduler produces a pseudo-random disturbance at a fixed real-time interval.
type DisturbScheduler interface {
	// Tick advances the scheduler clock by dt.
	//
	// Parameters:
	//   - dt: elapsed time in seconds
	//
	// Returns:
	//   - Disturbance: the disturbance to apply
	//   - bool: true if an interval elapsed and the disturbance should be applied
	Tick(dt float32) (Disturbance, bool)

	// Margin returns the minimum distance in cells between a disturbance and any edge.
	Margin() int
}

type disturbScheduler struct {
	rows, cols   int
	interval     float32
	margin       int
	minMagnitude float32
	maxMagnitude float32
	seed         uint64

	elapsed float32
	rng     *rand.Rand
}

var _ DisturbScheduler = &disturbScheduler{}

// NewDisturbScheduler creates a scheduler for a rows x cols grid. By default it fires
// every 0.25 s at a cell at least 4 cells from every edge with a magnitude in [0.2, 0.5].
//
// Parameters:
//   - rows: number of grid rows
//   - cols: number of grid columns
//   - options: functional options for interval, margin, magnitude range and seed
//
// Returns:
//   - DisturbScheduler: the scheduler
//   - error: ErrDisturbOutOfBounds if the margin is below 2 or leaves no cell on the grid
func NewDisturbScheduler(rows, cols int, options ...DisturbSchedulerBuilderOption) (DisturbScheduler, error) {
	s := &disturbScheduler{
		rows:         rows,
		cols:         cols,
		interval:     0.25,
		margin:       4,
		minMagnitude: 0.2,
		maxMagnitude: 0.5,
		seed:         1,
	}
	for _, opt := range options {
		opt(s)
	}
	if s.margin < 2 || rows-1-s.margin < s.margin || cols-1-s.margin < s.margin {
		return nil, fmt.Errorf("margin %d on %dx%d grid: %w", s.margin, rows, cols, ErrDisturbOutOfBounds)
	}
	if s.maxMagnitude < s.minMagnitude {
		s.minMagnitude, s.maxMagnitude = s.maxMagnitude, s.minMagnitude
	}
	s.rng = rand.New(rand.NewPCG(s.seed, s.seed^0x9e3779b97f4a7c15))
	return s, nil
}

func (s *disturbScheduler) Tick(dt float32) (Disturbance, bool) {
	s.elapsed += dt
	if s.elapsed < s.interval {
		return Disturbance{}, false
	}
	s.elapsed -= s.interval

	span := func(dim int) int {
		return s.margin + s.rng.IntN(dim-2*s.margin)
	}
	return Disturbance{
		Row:       span(s.rows),
		Col:       span(s.cols),
		Magnitude: s.minMagnitude + s.rng.Float32()*(s.maxMagnitude-s.minMagnitude),
	}, true
}

func (s *disturbScheduler) Margin() int {
	return s.margin
}
