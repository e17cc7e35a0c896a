package config

import "flag"

var (
	flagConfig       = flag.String("config", "", "Path to config file")
	flagDebug        = flag.Bool("debug", false, "Enable debug logging")
	flagScene        = flag.String("scene", "", "Scene file to replay into the render layer")
	flagConnect      = flag.String("connect", "", "Geometry stream URL (ws://host/stream)")
	flagListen       = flag.String("listen", "", "Serve the scene as a geometry stream on this address")
	flagFake         = flag.Bool("fake", false, "Fake loading: account data without creating GPU buffers")
	flagObjectColors = flag.Bool("object-colors", false, "Batch by object color instead of vertex colors")
	flagQuantize     = flag.Bool("quantize", false, "Quantize vertices and normals in GPU buffers")
	flagView         = flag.Bool("view", false, "Open a window and render the loaded model")
	flagGeometryLast = flag.Bool("geometry-last", false, "Serve objects before their geometry")
	flagSynthetic    = flag.Int("synthetic", 0, "Generate a synthetic building with this many storeys instead of reading a scene")
	flagWriteConfig  = flag.String("write-config", "", "Write the effective config to this path (\"user\" for the user config dir) and exit")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// ScenePath returns the scene file given with --scene.
func ScenePath() string {
	return *flagScene
}

// ViewerEnabled reports whether --view was given.
func ViewerEnabled() bool {
	return *flagView
}

// SyntheticStoreys returns the storey count given with --synthetic, 0 if
// unset.
func SyntheticStoreys() int {
	return *flagSynthetic
}

// WriteConfigTarget returns the --write-config destination, empty if unset.
func WriteConfigTarget() string {
	return *flagWriteConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagConnect != "" {
		cfg.Stream.URL = *flagConnect
	}
	if *flagListen != "" {
		cfg.Stream.Listen = *flagListen
	}
	if *flagFake {
		cfg.Render.FakeLoading = true
	}
	if *flagObjectColors {
		cfg.Render.UseObjectColors = true
	}
	if *flagGeometryLast {
		cfg.Stream.GeometryLast = true
	}
	if *flagQuantize {
		cfg.Render.QuantizeVertices = true
		cfg.Render.QuantizeNormals = true
	}
}
