// Package config handles engine configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds all engine settings.
type Config struct {
	Render  RenderConfig  `yaml:"render"`
	Loader  LoaderConfig  `yaml:"loader"`
	Stream  StreamConfig  `yaml:"stream"`
	Window  WindowConfig  `yaml:"window"`
	Logging LoggingConfig `yaml:"logging"`
}

// RenderConfig holds batching and draw settings of the render layer.
type RenderConfig struct {
	UseObjectColors  bool `yaml:"use_object_colors"`
	QuantizeVertices bool `yaml:"quantize_vertices"`
	QuantizeNormals  bool `yaml:"quantize_normals"`
	FakeLoading      bool `yaml:"fake_loading"` // account bytes/primitives without device buffers

	// Geometry referenced by at least ReuseThreshold objects is drawn instanced,
	// unless it has more than ReuseMaxTriangles triangles (0 = no limit).
	ReuseThreshold    int `yaml:"reuse_threshold"`
	ReuseMaxTriangles int `yaml:"reuse_max_triangles"`

	// NarrowInstancedIndices uploads 16-bit indices for instanced geometry when they fit.
	NarrowInstancedIndices bool `yaml:"narrow_instanced_indices"`

	BufferVertices   int     `yaml:"buffer_vertices"` // default staging capacity, in vertices
	BufferIndices    int     `yaml:"buffer_indices"`  // default staging capacity, in indices
	FlushThreshold   float64 `yaml:"flush_threshold"` // occupancy ratio that marks a set for flushing
	MaxPooledBuffers int     `yaml:"max_pooled_buffers"`
}

// LoaderConfig describes the format of the incoming geometry stream.
type LoaderConfig struct {
	QuantizeVertices bool `yaml:"quantize_vertices"`
	QuantizeNormals  bool `yaml:"quantize_normals"`
}

// StreamConfig holds geometry stream transport settings.
type StreamConfig struct {
	URL              string        `yaml:"url"`    // ws:// endpoint to load from
	Listen           string        `yaml:"listen"` // address to serve a scene on
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	ReadLimit        int64         `yaml:"read_limit"` // max message size in bytes
	// GeometryLast makes a served scene stream objects before their
	// geometry, linking them with attach messages.
	GeometryLast bool `yaml:"geometry_last"`
}

// WindowConfig holds viewer window settings.
type WindowConfig struct {
	Width      int  `yaml:"width"`
	Height     int  `yaml:"height"`
	Fullscreen bool `yaml:"fullscreen"`
	VSync      bool `yaml:"vsync"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
	Format  string `yaml:"format"` // log file format: console or json
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Render: RenderConfig{
			UseObjectColors:        false,
			QuantizeVertices:       false,
			QuantizeNormals:        false,
			FakeLoading:            false,
			ReuseThreshold:         25,
			ReuseMaxTriangles:      0,
			NarrowInstancedIndices: true,
			BufferVertices:         500000,
			BufferIndices:          1500000,
			FlushThreshold:         0.9,
			MaxPooledBuffers:       8,
		},
		Loader: LoaderConfig{
			QuantizeVertices: false,
			QuantizeNormals:  false,
		},
		Stream: StreamConfig{
			HandshakeTimeout: 10 * time.Second,
			ReadLimit:        64 << 20,
		},
		Window: WindowConfig{
			Width:      1280,
			Height:     720,
			Fullscreen: false,
			VSync:      true,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
			Format:  "console",
		},
	}
}

// Validate checks settings that would otherwise fail deep inside the engine.
func (c *Config) Validate() error {
	var errs []error
	if c.Render.BufferVertices <= 0 {
		errs = append(errs, fmt.Errorf("render.buffer_vertices must be positive, got %d", c.Render.BufferVertices))
	}
	if c.Render.BufferIndices <= 0 {
		errs = append(errs, fmt.Errorf("render.buffer_indices must be positive, got %d", c.Render.BufferIndices))
	}
	if c.Render.FlushThreshold <= 0 || c.Render.FlushThreshold > 1 {
		errs = append(errs, fmt.Errorf("render.flush_threshold must be in (0, 1], got %g", c.Render.FlushThreshold))
	}
	if c.Render.ReuseThreshold < 0 {
		errs = append(errs, fmt.Errorf("render.reuse_threshold must not be negative, got %d", c.Render.ReuseThreshold))
	}
	if c.Render.MaxPooledBuffers < 0 {
		errs = append(errs, fmt.Errorf("render.max_pooled_buffers must not be negative, got %d", c.Render.MaxPooledBuffers))
	}
	if f := c.Logging.Format; f != "" && f != "console" && f != "json" {
		errs = append(errs, fmt.Errorf("logging.format must be console or json, got %q", f))
	}
	if c.Stream.URL != "" && c.Stream.Listen != "" {
		errs = append(errs, errors.New("stream.url and stream.listen are mutually exclusive"))
	}
	return errors.Join(errs...)
}
