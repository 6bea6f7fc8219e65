// Package config provides configuration loading for the wave samples.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalid is returned by Load and Validate for values no component can use.
var ErrInvalid = errors.New("config: invalid value")

// Config holds all sample configuration parameters.
type Config struct {
	Window  WindowConfig  `yaml:"window"`
	Render  RenderConfig  `yaml:"render"`
	Soft    SoftConfig    `yaml:"soft"`
	Waves   WavesConfig   `yaml:"waves"`
	Disturb DisturbConfig `yaml:"disturb"`
	Land    LandConfig    `yaml:"land"`
	Camera  CameraConfig  `yaml:"camera"`
	Light   LightConfig   `yaml:"light"`
}

// WindowConfig holds display settings.
type WindowConfig struct {
	Title  string `yaml:"title"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

// RenderConfig holds render loop settings.
type RenderConfig struct {
	Backend        string        `yaml:"backend"`         // wgpu or soft
	FrameResources int           `yaml:"frame_resources"` // frames the CPU may run ahead of the GPU
	FrameLimit     float64       `yaml:"frame_limit"`     // frames per second, 0 = uncapped
	WaitTimeout    time.Duration `yaml:"wait_timeout"`    // 0 = block until the fence completes
	Wireframe      bool          `yaml:"wireframe"`
	ClearColor     [4]float32    `yaml:"clear_color"`
	Profiling      bool          `yaml:"profiling"`
	Telemetry      string        `yaml:"telemetry"` // CSV path, empty = off
}

// SoftConfig holds settings of the software device.
type SoftConfig struct {
	Latency time.Duration `yaml:"latency"`
}

// WavesConfig holds wave simulation constants.
type WavesConfig struct {
	Variant      string  `yaml:"variant"` // cpu or gpu
	Rows         int     `yaml:"rows"`
	Cols         int     `yaml:"cols"`
	Speed        float32 `yaml:"speed"`
	Damping      float32 `yaml:"damping"`
	SpatialStep  float32 `yaml:"spatial_step"`
	TimeStep     float32 `yaml:"time_step"`
	MaxAmplitude float32 `yaml:"max_amplitude"`
	Workers      int     `yaml:"workers"` // 0 = one per CPU
	OpenCL       bool    `yaml:"opencl"`
}

// DisturbConfig holds the random disturbance schedule.
type DisturbConfig struct {
	Interval     float32 `yaml:"interval"`
	Margin       int     `yaml:"margin"`
	MinMagnitude float32 `yaml:"min_magnitude"`
	MaxMagnitude float32 `yaml:"max_magnitude"`
	Seed         uint64  `yaml:"seed"`
}

// LandConfig holds the hills grid.
type LandConfig struct {
	Width float32 `yaml:"width"`
	Depth float32 `yaml:"depth"`
	Rows  int     `yaml:"rows"`
	Cols  int     `yaml:"cols"`
}

// CameraConfig holds the initial orbit camera.
type CameraConfig struct {
	Radius float32 `yaml:"radius"`
	Theta  float32 `yaml:"theta"`
	Phi    float32 `yaml:"phi"`
	Fov    float32 `yaml:"fov"`
	Near   float32 `yaml:"near"`
	Far    float32 `yaml:"far"`
}

// LightConfig holds the ambient term and the initial sun direction.
type LightConfig struct {
	Ambient  [4]float32 `yaml:"ambient"`
	SunTheta float32    `yaml:"sun_theta"`
	SunPhi   float32    `yaml:"sun_phi"`
}

// Default returns the embedded defaults.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults: %v", err))
	}
	return cfg
}

// Load loads configuration from the embedded defaults, then overlays the file at path.
// If path is empty, only the defaults are used.
//
// Parameters:
//   - path: optional YAML file
//
// Returns:
//   - *Config: the validated configuration
//   - error: read, parse or ErrInvalid errors
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values that would otherwise fail deep inside the engine.
func (c *Config) Validate() error {
	switch {
	case c.Render.Backend != "wgpu" && c.Render.Backend != "soft":
		return fmt.Errorf("render.backend %q: %w", c.Render.Backend, ErrInvalid)
	case c.Render.FrameResources < 1:
		return fmt.Errorf("render.frame_resources %d: %w", c.Render.FrameResources, ErrInvalid)
	case c.Waves.Variant != "cpu" && c.Waves.Variant != "gpu":
		return fmt.Errorf("waves.variant %q: %w", c.Waves.Variant, ErrInvalid)
	case c.Waves.Rows < 2 || c.Waves.Cols < 2:
		return fmt.Errorf("waves grid %dx%d: %w", c.Waves.Rows, c.Waves.Cols, ErrInvalid)
	case c.Land.Rows < 2 || c.Land.Cols < 2:
		return fmt.Errorf("land grid %dx%d: %w", c.Land.Rows, c.Land.Cols, ErrInvalid)
	case c.Window.Width <= 0 || c.Window.Height <= 0:
		return fmt.Errorf("window %dx%d: %w", c.Window.Width, c.Window.Height, ErrInvalid)
	}
	return nil
}

// WriteYAML saves the configuration as YAML.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
