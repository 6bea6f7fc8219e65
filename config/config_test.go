package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "wgpu", cfg.Render.Backend)
	assert.Equal(t, 3, cfg.Render.FrameResources)
	assert.Zero(t, cfg.Render.WaitTimeout)
	assert.Equal(t, 2*time.Millisecond, cfg.Soft.Latency)
	assert.Equal(t, 128, cfg.Waves.Rows)
	assert.Equal(t, float32(0.03), cfg.Waves.TimeStep)
	assert.Equal(t, 4, cfg.Disturb.Margin)
	assert.Equal(t, [4]float32{0.25, 0.25, 0.35, 1}, cfg.Light.Ambient)
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "waves.yaml")
	require.NoError(t, os.WriteFile(path, []byte("render:\n  backend: soft\n  wait_timeout: 5s\nwaves:\n  variant: gpu\n  rows: 256\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "soft", cfg.Render.Backend)
	assert.Equal(t, 5*time.Second, cfg.Render.WaitTimeout)
	assert.Equal(t, "gpu", cfg.Waves.Variant)
	assert.Equal(t, 256, cfg.Waves.Rows)
	assert.Equal(t, 128, cfg.Waves.Cols)
	assert.Equal(t, 3, cfg.Render.FrameResources)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("render:\n  frame_resources: 0\n"), 0644))

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Waves.Variant = "gpu"
	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, cfg.WriteYAML(path))

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}
