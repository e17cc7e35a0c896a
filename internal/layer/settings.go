package layer

import (
	"github.com/Faultbox/bimstream/internal/batch"
	"github.com/Faultbox/bimstream/internal/config"
	"github.com/Faultbox/bimstream/internal/quantize"
)

// ReusePolicy decides whether a geometry is drawn instanced. refCount is
// the number of objects expected to reference it, triangles its size.
type ReusePolicy interface {
	ShouldInstance(refCount, triangles int) bool
}

// PolicyFunc adapts a function to ReusePolicy.
type PolicyFunc func(refCount, triangles int) bool

func (f PolicyFunc) ShouldInstance(refCount, triangles int) bool { return f(refCount, triangles) }

// ThresholdPolicy instances geometry referenced at least MinRefs times and
// no larger than MaxTriangles (0 = any size). MinRefs of 0 disables reuse.
type ThresholdPolicy struct {
	MinRefs      int
	MaxTriangles int
}

func (p ThresholdPolicy) ShouldInstance(refCount, triangles int) bool {
	if p.MinRefs <= 0 || refCount < p.MinRefs {
		return false
	}
	return p.MaxTriangles == 0 || triangles <= p.MaxTriangles
}

// Settings configure a Layer.
type Settings struct {
	UseObjectColors  bool
	QuantizeVertices bool
	QuantizeNormals  bool
	FakeLoading      bool

	LoaderQuantizeVertices bool
	LoaderQuantizeNormals  bool

	NarrowInstancedIndices bool
	BufferCapacity         batch.Capacity
	FlushThreshold         float64

	Reuse ReusePolicy
}

// SettingsFromConfig maps the render and loader config sections.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		UseObjectColors:        cfg.Render.UseObjectColors,
		QuantizeVertices:       cfg.Render.QuantizeVertices,
		QuantizeNormals:        cfg.Render.QuantizeNormals,
		FakeLoading:            cfg.Render.FakeLoading,
		LoaderQuantizeVertices: cfg.Loader.QuantizeVertices,
		LoaderQuantizeNormals:  cfg.Loader.QuantizeNormals,
		NarrowInstancedIndices: cfg.Render.NarrowInstancedIndices,
		BufferCapacity: batch.Capacity{
			Vertices: cfg.Render.BufferVertices,
			Indices:  cfg.Render.BufferIndices,
		},
		FlushThreshold: cfg.Render.FlushThreshold,
		Reuse: ThresholdPolicy{
			MinRefs:      cfg.Render.ReuseThreshold,
			MaxTriangles: cfg.Render.ReuseMaxTriangles,
		},
	}
}

func (s Settings) quantizeOptions() quantize.Options {
	return quantize.Options{
		QuantizeVertices:       s.QuantizeVertices,
		QuantizeNormals:        s.QuantizeNormals,
		LoaderQuantizeVertices: s.LoaderQuantizeVertices,
		LoaderQuantizeNormals:  s.LoaderQuantizeNormals,
	}
}

func (s Settings) batchOptions() batch.Options {
	return batch.Options{
		Defaults: s.BufferCapacity,
		Layout: batch.Layout{
			QuantizedPositions: s.QuantizeVertices,
			QuantizedNormals:   s.QuantizeNormals,
			VertexColors:       !s.UseObjectColors,
		},
		PerColor: s.UseObjectColors,
	}
}
