package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-waves/common"
	"github.com/Carmen-Shannon/oxy-waves/engine/device/soft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorAddOnSoftDevice(t *testing.T) {
	dev := soft.NewDevice()
	t.Cleanup(dev.Release)

	a, b := inputs(100)
	got, err := vectorAdd(context.Background(), dev, softTexels{dev: dev}, a, b)
	require.NoError(t, err)
	require.Len(t, got, 100)
	require.NoError(t, checkResults(a, b, got))
	assert.Equal(t, common.VectorAddElement{V1: [3]float32{0, 14, 7}, V2: [2]float32{7, -7}}, got[7])

	stats := dev.Stats()
	assert.Equal(t, uint64(1), stats.Dispatches)
	assert.Zero(t, stats.Hazards)
}

func TestVectorAddRejectsLengthMismatch(t *testing.T) {
	dev := soft.NewDevice()
	t.Cleanup(dev.Release)

	a, _ := inputs(4)
	_, b := inputs(3)
	_, err := vectorAdd(context.Background(), dev, softTexels{dev: dev}, a, b)
	assert.Error(t, err)
}

func TestWriteResultsFormat(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeResults(&buf, []common.VectorAddElement{
		{V1: [3]float32{0, 2, 1}, V2: [2]float32{1, -1}},
		{V1: [3]float32{0.5, 0, 0}, V2: [2]float32{0, 0}},
	}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{
		"(0.000000, 2.000000, 1.000000, 1.000000, -1.000000)",
		"(0.500000, 0.000000, 0.000000, 0.000000, 0.000000)",
	}, lines)
}

func TestCheckResultsFindsMismatch(t *testing.T) {
	a, b := inputs(3)
	got := make([]common.VectorAddElement, 3)
	assert.ErrorContains(t, checkResults(a, b, got), "element 1")
	assert.NoError(t, checkResults(a, b, got[:1]))
}
