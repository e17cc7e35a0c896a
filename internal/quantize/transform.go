package quantize

import (
	"github.com/chewxy/math32"

	"github.com/Faultbox/bimstream/internal/engine/gpu"
	"github.com/Faultbox/bimstream/pkg/math"
)

// Options says which side of the pipeline is quantized.
type Options struct {
	// QuantizeVertices and QuantizeNormals describe the render format.
	QuantizeVertices bool
	QuantizeNormals  bool
	// LoaderQuantizeVertices and LoaderQuantizeNormals describe the data
	// as it arrives from the loader.
	LoaderQuantizeVertices bool
	LoaderQuantizeNormals  bool
}

// Transformer moves geometry from loader format into render format.
type Transformer struct {
	opts  Options
	basis Basis
}

// NewTransformer creates a transformer over basis.
func NewTransformer(opts Options, basis Basis) *Transformer {
	return &Transformer{opts: opts, basis: basis}
}

// Options returns the formats the transformer was built for.
func (t *Transformer) Options() Options {
	return t.opts
}

// VertexMatrix composes the full per-object vertex transform: unquantize with
// the roid inverse, apply model, re-quantize with the global matrix. The
// order matters: model matrices may mirror, and quantized space is not
// shared between roids.
func (t *Transformer) VertexMatrix(roid int64, model math.Mat4) math.Mat4 {
	m := model
	if t.opts.LoaderQuantizeVertices {
		m = m.Mul(t.basis.UntransformedInverseQuantizationMatrix(roid))
	}
	if t.opts.QuantizeVertices {
		m = t.basis.TransformedQuantizationMatrix().Mul(m)
	}
	return m
}

// TransformVertex runs one vertex through VertexMatrix.
func (t *Transformer) TransformVertex(roid int64, v [3]float32, model math.Mat4) [3]float32 {
	return t.VertexMatrix(roid, model).TransformPoint(v)
}

// TransformNormal applies model to a normal and re-normalizes it, scaling
// in and out of the 8-bit range as configured.
func (t *Transformer) TransformNormal(n [3]float32, model math.Mat4) [3]float32 {
	if t.opts.LoaderQuantizeNormals {
		n = DequantizeNormal(n)
	}
	n = math.Normalize3(model.TransformDirection(n))
	if t.opts.QuantizeNormals {
		n = [3]float32{n[0] * NormalRange, n[1] * NormalRange, n[2] * NormalRange}
	}
	return n
}

// ConvertVertices converts object-space positions of roid to the render
// format without any model transform. Returns []int16 when vertices are
// quantized, []float32 otherwise.
func (t *Transformer) ConvertVertices(roid int64, positions []float32) any {
	switch {
	case t.opts.LoaderQuantizeVertices && t.opts.QuantizeVertices:
		out := make([]int16, len(positions))
		for i, p := range positions {
			out[i] = QuantizeVertex(p)
		}
		return out
	case t.opts.LoaderQuantizeVertices:
		return transformPositions(positions, t.basis.UntransformedInverseQuantizationMatrix(roid))
	case t.opts.QuantizeVertices:
		q := t.basis.UntransformedQuantizationMatrix(roid)
		out := make([]int16, len(positions))
		for i := 0; i+2 < len(positions); i += 3 {
			p := q.TransformPoint([3]float32{positions[i], positions[i+1], positions[i+2]})
			out[i], out[i+1], out[i+2] = QuantizeVertex(p[0]), QuantizeVertex(p[1]), QuantizeVertex(p[2])
		}
		return out
	default:
		out := make([]float32, len(positions))
		copy(out, positions)
		return out
	}
}

func transformPositions(positions []float32, m math.Mat4) []float32 {
	out := make([]float32, len(positions))
	for i := 0; i+2 < len(positions); i += 3 {
		p := m.TransformPoint([3]float32{positions[i], positions[i+1], positions[i+2]})
		copy(out[i:i+3], p[:])
	}
	return out
}

// ConvertNormals converts object-space normals to the render format.
// Returns []int8 when normals are quantized, []float32 otherwise.
func (t *Transformer) ConvertNormals(normals []float32) any {
	switch {
	case t.opts.QuantizeNormals:
		scale := float32(NormalRange)
		if t.opts.LoaderQuantizeNormals {
			scale = 1
		}
		out := make([]int8, len(normals))
		for i, n := range normals {
			out[i] = QuantizeNormal(n * scale)
		}
		return out
	case t.opts.LoaderQuantizeNormals:
		out := make([]float32, len(normals))
		for i, n := range normals {
			out[i] = n / NormalRange
		}
		return out
	default:
		out := make([]float32, len(normals))
		copy(out, normals)
		return out
	}
}

// ConvertIndices returns indices as []uint16 when narrow is set and every
// vertex of a geometry with nrPositions position floats is addressable in
// 16 bits, else as []uint32.
func ConvertIndices(indices []uint32, nrPositions int, narrow bool) (any, gpu.ComponentType) {
	if narrow && nrPositions/3 <= 1<<16 {
		out := make([]uint16, len(indices))
		for i, idx := range indices {
			out[i] = uint16(idx)
		}
		return out, gpu.UnsignedShort
	}
	out := make([]uint32, len(indices))
	copy(out, indices)
	return out, gpu.UnsignedInt
}

// QuantizeVertex rounds an already-scaled vertex component to int16.
func QuantizeVertex(v float32) int16 {
	return int16(clamp(math32.Round(v), -VertexRange, VertexRange))
}

// DequantizeVertex is the inverse of QuantizeVertex under inv.
func DequantizeVertex(q [3]int16, inv math.Mat4) [3]float32 {
	return inv.TransformPoint([3]float32{float32(q[0]), float32(q[1]), float32(q[2])})
}

// QuantizeNormal rounds an already-scaled normal component to int8.
func QuantizeNormal(n float32) int8 {
	return int8(clamp(math32.Round(n), -NormalRange, NormalRange))
}

// DequantizeNormal maps a normal from the 8-bit range back to unit scale.
func DequantizeNormal(n [3]float32) [3]float32 {
	return [3]float32{n[0] / NormalRange, n[1] / NormalRange, n[2] / NormalRange}
}

func clamp(v, lo, hi float32) float32 {
	return max(lo, min(hi, v))
}
