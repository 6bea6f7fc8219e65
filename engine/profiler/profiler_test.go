package profiler

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickSummarizesWindow(t *testing.T) {
	p := NewProfiler(WithUpdateInterval(time.Hour), WithQuiet(true))
	for _, ms := range []int{10, 20, 30} {
		logged, err := p.Tick(time.Duration(ms) * time.Millisecond)
		require.NoError(t, err)
		assert.False(t, logged)
	}
	p.RecordStall(4 * time.Millisecond)

	p.updateInterval = time.Nanosecond
	logged, err := p.Tick(40 * time.Millisecond)
	require.NoError(t, err)
	require.True(t, logged)

	ws := p.Last()
	assert.Equal(t, uint64(4), ws.Frame)
	assert.Equal(t, 4, ws.Frames)
	assert.InDelta(t, 25, ws.FrameMeanMs, 1e-9)
	assert.InDelta(t, 12.909944, ws.FrameStdMs, 1e-6)
	assert.Equal(t, 1, ws.Stalls)
	assert.InDelta(t, 4, ws.StallMeanMs, 1e-9)
	assert.Zero(t, ws.StallStdMs)
}

func TestTelemetryWritesHeaderOnce(t *testing.T) {
	var buf bytes.Buffer
	p := NewProfiler(WithUpdateInterval(time.Nanosecond), WithQuiet(true), WithTelemetry(&buf))

	for i := 0; i < 3; i++ {
		time.Sleep(time.Millisecond)
		logged, err := p.Tick(time.Millisecond)
		require.NoError(t, err)
		require.True(t, logged)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "frame,frames,fps,frame_mean_ms"))
	assert.True(t, strings.HasPrefix(lines[3], "3,1,"))
}
