package wave

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerFiresOncePerInterval(t *testing.T) {
	s, err := NewDisturbScheduler(64, 64)
	require.NoError(t, err)

	fired := 0
	for i := 0; i < 64; i++ {
		if _, ok := s.Tick(0.0625); ok {
			fired++
		}
	}
	// 64 * 0.0625 = 4 seconds at one disturbance per 0.25 s.
	assert.Equal(t, 16, fired)
}

func TestSchedulerStaysInsideMargin(t *testing.T) {
	s, err := NewDisturbScheduler(20, 12, WithMargin(4), WithMagnitudeRange(0.2, 0.5), WithInterval(0.5))
	require.NoError(t, err)
	assert.Equal(t, 4, s.Margin())

	f, err := NewField(20, 12)
	require.NoError(t, err)
	for i := 0; i < 500; i++ {
		d, ok := s.Tick(0.5)
		require.True(t, ok)
		assert.GreaterOrEqual(t, d.Row, 4)
		assert.LessOrEqual(t, d.Row, 15)
		assert.GreaterOrEqual(t, d.Col, 4)
		assert.LessOrEqual(t, d.Col, 7)
		assert.GreaterOrEqual(t, d.Magnitude, float32(0.2))
		assert.LessOrEqual(t, d.Magnitude, float32(0.5))
		assert.NoError(t, f.Disturb(d.Row, d.Col, d.Magnitude))
	}
}

func TestSchedulerIsReproducible(t *testing.T) {
	a, err := NewDisturbScheduler(32, 32, WithSeed(42))
	require.NoError(t, err)
	b, err := NewDisturbScheduler(32, 32, WithSeed(42))
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		da, _ := a.Tick(0.25)
		db, _ := b.Tick(0.25)
		assert.Equal(t, da, db)
	}
}

func TestSchedulerRejectsMargin(t *testing.T) {
	_, err := NewDisturbScheduler(8, 8, WithMargin(4))
	assert.ErrorIs(t, err, ErrDisturbOutOfBounds)
	_, err = NewDisturbScheduler(32, 32, WithMargin(1))
	assert.ErrorIs(t, err, ErrDisturbOutOfBounds)
	_, err = NewDisturbScheduler(8, 8, WithMargin(2))
	assert.NoError(t, err)
}
