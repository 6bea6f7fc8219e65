package wave

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-waves/common"
	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dampedOptions are the constants of the 8x8 damping scenario.
var dampedOptions = []FieldBuilderOption{
	WithSpeed(2.0),
	WithDamping(0.2),
	WithSpatialStep(0.25),
	WithTimeStep(0.03),
}

func snapshot(f Field) []float32 {
	return append([]float32(nil), f.Heights(Current)...)
}

func TestCoefficients(t *testing.T) {
	k := coefficients(2.0, 0.2, 0.25, 0.03)
	assert.InDelta(t, -0.9940179, k[0], 1e-5)
	assert.InDelta(t, 1.7643070, k[1], 1e-5)
	assert.InDelta(t, 0.0574277, k[2], 1e-5)
}

func TestNewFieldValidation(t *testing.T) {
	_, err := NewField(1, 5)
	assert.ErrorIs(t, err, ErrInvalidGrid)

	_, err = NewField(8, 8, WithSpatialStep(0))
	assert.ErrorIs(t, err, ErrInvalidGrid)

	_, err = NewField(8, 8, WithSpeed(10), WithTimeStep(1), WithSpatialStep(1))
	assert.ErrorIs(t, err, ErrUnstable)

	f, err := NewField(4, 4)
	require.NoError(t, err)
	assert.Equal(t, 16, f.VertexCount())
	assert.Equal(t, 18, f.TriangleCount())
}

func TestDisturbRejectsCellsNearEdge(t *testing.T) {
	f, err := NewField(4, 4)
	require.NoError(t, err)

	err = f.Disturb(2, 2, 1.0)
	assert.ErrorIs(t, err, ErrDisturbOutOfBounds)
	for _, h := range f.Heights(Current) {
		assert.Zero(t, h)
	}

	g, err := NewField(8, 8)
	require.NoError(t, err)
	assert.ErrorIs(t, g.Disturb(1, 4, 1), ErrDisturbOutOfBounds)
	assert.ErrorIs(t, g.Disturb(4, 6, 1), ErrDisturbOutOfBounds)
	assert.NoError(t, g.Disturb(2, 5, 1))
}

func TestDisturbLocality(t *testing.T) {
	f, err := NewField(10, 10, dampedOptions...)
	require.NoError(t, err)
	require.NoError(t, f.Disturb(3, 3, 0.8))
	for i := 0; i < 5; i++ {
		require.True(t, f.Update(0.03))
	}

	before := snapshot(f)
	prev := append([]float32(nil), f.Heights(Previous)...)
	require.NoError(t, f.Disturb(5, 6, 0.3))
	after := f.Heights(Current)

	touched := map[int]float32{
		5*10 + 6: 0.3,
		5*10 + 5: 0.075,
		5*10 + 7: 0.075,
		4*10 + 6: 0.075,
		6*10 + 6: 0.075,
	}
	for i := range after {
		if d, ok := touched[i]; ok {
			assert.InDelta(t, before[i]+d, after[i], 1e-6, "cell %d", i)
			continue
		}
		assert.Equal(t, before[i], after[i], "cell %d changed", i)
	}
	assert.Equal(t, prev, f.Heights(Previous))
}

func TestDisturbClamps(t *testing.T) {
	f, err := NewField(8, 8, WithMaxAmplitude(1))
	require.NoError(t, err)

	require.NoError(t, f.Disturb(4, 4, 5))
	assert.Equal(t, float32(1), f.Height(4, 4))
	assert.Equal(t, float32(1), f.Height(4, 5))

	require.NoError(t, f.Disturb(4, 4, -9))
	assert.Equal(t, float32(-1), f.Height(4, 4))
}

func TestBoundaryInvariance(t *testing.T) {
	f, err := NewField(12, 12, dampedOptions...)
	require.NoError(t, err)
	require.NoError(t, f.Disturb(2, 2, 1))
	require.NoError(t, f.Disturb(9, 9, -1))
	require.NoError(t, f.Disturb(2, 9, 0.5))

	rows, cols := f.RowCount(), f.ColumnCount()
	for tick := 0; tick < 300; tick++ {
		f.Update(0.03)
		for _, role := range []Role{Previous, Current, Next} {
			h := f.Heights(role)
			for j := 0; j < cols; j++ {
				require.Zero(t, h[j], "tick %d top edge", tick)
				require.Zero(t, h[(rows-1)*cols+j], "tick %d bottom edge", tick)
			}
			for i := 0; i < rows; i++ {
				require.Zero(t, h[i*cols], "tick %d left edge", tick)
				require.Zero(t, h[i*cols+cols-1], "tick %d right edge", tick)
			}
		}
	}
}

func TestDampingReducesPeak(t *testing.T) {
	f, err := NewField(8, 8, dampedOptions...)
	require.NoError(t, err)
	require.NoError(t, f.Disturb(4, 4, 1.0))
	peak := f.Peak()
	require.Equal(t, float32(1), peak)

	for i := 0; i < 50; i++ {
		require.True(t, f.Update(0.03))
	}
	assert.Less(t, f.Peak(), peak)
}

func TestEnergyDecaysWithoutDisturbance(t *testing.T) {
	f, err := NewField(8, 8, dampedOptions...)
	require.NoError(t, err)
	require.NoError(t, f.Disturb(4, 4, 1.0))
	require.Greater(t, f.Energy(), 0.0)

	// The disturbance starts with zero Previous heights, so the first window is the
	// transient. Window peaks must fall from then on.
	const window = 200
	windowPeak := func() float64 {
		var peak float64
		for i := 0; i < window; i++ {
			f.Update(0.03)
			peak = max(peak, f.Energy())
		}
		return peak
	}
	transient := windowPeak()
	last := transient
	for w := 1; w < 10; w++ {
		peak := windowPeak()
		assert.Less(t, peak, last, "window %d", w)
		last = peak
	}
	assert.Less(t, f.Energy(), transient*1e-3)
}

func TestFixedStepIsChunkIndependent(t *testing.T) {
	opts := []FieldBuilderOption{WithSpeed(2), WithSpatialStep(1), WithTimeStep(0.25), WithDamping(0.2)}
	a, err := NewField(8, 8, opts...)
	require.NoError(t, err)
	b, err := NewField(8, 8, opts...)
	require.NoError(t, err)
	require.NoError(t, a.Disturb(3, 4, 0.7))
	require.NoError(t, b.Disturb(3, 4, 0.7))

	assert.True(t, a.Update(0.25))

	assert.False(t, b.Update(0.125))
	assert.False(t, b.Update(0.0625))
	assert.True(t, b.Update(0.0625))

	for _, role := range []Role{Previous, Current, Next} {
		assert.Equal(t, a.Heights(role), b.Heights(role))
	}
}

func TestExcessTimeIsDiscarded(t *testing.T) {
	f, err := NewField(8, 8, WithSpeed(2), WithSpatialStep(1), WithTimeStep(0.25))
	require.NoError(t, err)

	assert.True(t, f.Update(0.3))
	// 0.05 of the previous call is not carried over.
	assert.False(t, f.Update(0.2))
	assert.True(t, f.Update(0.05))
}

func TestUpdateRotatesRoles(t *testing.T) {
	f, err := NewField(8, 8, dampedOptions...)
	require.NoError(t, err)
	require.NoError(t, f.Disturb(4, 4, 1))

	before := snapshot(f)
	require.True(t, f.Update(0.03))
	assert.Equal(t, before, f.Heights(Previous))
	assert.NotEqual(t, before, f.Heights(Current))
}

func TestParallelStepMatchesSerial(t *testing.T) {
	serial, err := NewField(64, 48, dampedOptions...)
	require.NoError(t, err)
	parallel, err := NewField(64, 48, append(dampedOptions, WithWorkers(4))...)
	require.NoError(t, err)
	defer serial.Release()
	defer parallel.Release()

	for _, f := range []Field{serial, parallel} {
		require.NoError(t, f.Disturb(10, 20, 1))
		require.NoError(t, f.Disturb(40, 30, -0.5))
	}
	for i := 0; i < 25; i++ {
		serial.Update(0.03)
		parallel.Update(0.03)
	}
	assert.Equal(t, serial.Heights(Current), parallel.Heights(Current))
	assert.Equal(t, serial.Heights(Previous), parallel.Heights(Previous))
}

func TestPositionsAndTexCoords(t *testing.T) {
	f, err := NewField(3, 5, WithSpatialStep(0.5), WithSpeed(1), WithTimeStep(0.03))
	require.NoError(t, err)
	assert.Equal(t, float32(2), f.Width())
	assert.Equal(t, float32(1), f.Depth())

	assert.Equal(t, [3]float32{-1, 0, -0.5}, f.Position(0))
	assert.Equal(t, [3]float32{1, 0, 0.5}, f.Position(14))
	assert.Equal(t, [3]float32{0, 0, 0}, f.Position(7))

	verts := make([]common.Vertex, f.VertexCount())
	f.WriteVertices(verts)
	assert.Equal(t, [2]float32{0, 1}, verts[0].TexC)
	assert.Equal(t, [2]float32{1, 0}, verts[14].TexC)
	assert.Equal(t, [3]float32{0, 1, 0}, verts[7].Normal)
}

func TestNormalsFollowSlope(t *testing.T) {
	f, err := NewField(8, 8, dampedOptions...)
	require.NoError(t, err)
	require.NoError(t, f.Disturb(4, 4, 1))
	require.True(t, f.Update(0.03))

	for i := 0; i < f.VertexCount(); i++ {
		n := f.Normal(i)
		assert.InDelta(t, 1, math32.Sqrt(common.Dot3(n, n)), 1e-5)
		tx := f.TangentX(i)
		assert.InDelta(t, 1, math32.Sqrt(common.Dot3(tx, tx)), 1e-5)
		assert.InDelta(t, 0, common.Dot3(n, tx), 1e-5)
	}

	// Left of the crest the surface rises toward +x, so the normal leans to -x.
	left := f.Normal(4*8 + 3)
	assert.Less(t, left[0], float32(0))
	right := f.Normal(4*8 + 5)
	assert.Greater(t, right[0], float32(0))
	assert.Equal(t, [3]float32{0, 1, 0}, f.Normal(0))
}

func TestIndices(t *testing.T) {
	idx := GridIndices(3, 3)
	require.Len(t, idx, 24)
	assert.Equal(t, []uint32{0, 3, 1, 3, 4, 1}, idx[:6])
	for _, i := range idx {
		assert.Less(t, i, uint32(9))
	}

	f, err := NewField(4, 6)
	require.NoError(t, err)
	assert.Len(t, f.Indices(), f.TriangleCount()*3)
}

func TestHeightOutOfRangePanics(t *testing.T) {
	f, err := NewField(4, 4)
	require.NoError(t, err)
	assert.Panics(t, func() { f.Height(4, 0) })
	assert.Panics(t, func() { f.Height(0, -1) })
}

func TestGridVerticesMatchFieldLayout(t *testing.T) {
	f, err := NewField(5, 7, WithSpatialStep(0.5))
	require.NoError(t, err)
	want := make([]common.Vertex, f.VertexCount())
	f.WriteVertices(want)

	got := GridVertices(5, 7, 0.5)
	require.Len(t, got, len(want))
	for i := range got {
		assert.Equal(t, want[i].Pos, got[i].Pos, "vertex %d", i)
		assert.Equal(t, want[i].TexC, got[i].TexC, "vertex %d", i)
		assert.Equal(t, [3]float32{0, 1, 0}, got[i].Normal)
	}
}
