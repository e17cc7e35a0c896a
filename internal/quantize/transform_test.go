package quantize

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/bimstream/internal/engine/gpu"
	"github.com/Faultbox/bimstream/pkg/math"
)

func sceneTable() *Table {
	table := NewTable()
	table.Register(7, Bounds{Min: [3]float32{-1, -1, -1}, Max: [3]float32{1, 1, 1}})
	table.SetGlobal(Bounds{Min: [3]float32{-20, -20, -20}, Max: [3]float32{20, 20, 20}})
	return table
}

func TestBoundsMatricesAreInverse(t *testing.T) {
	q, inv := Bounds{Min: [3]float32{0, -5, 10}, Max: [3]float32{4, 5, 30}}.Matrices()

	corner := q.TransformPoint([3]float32{4, 5, 30})
	assert.InDelta(t, VertexRange, corner[0], 0.01)
	assert.InDelta(t, VertexRange, corner[1], 0.01)
	assert.InDelta(t, VertexRange, corner[2], 0.01)

	back := inv.TransformPoint(q.TransformPoint([3]float32{1, 2, 15}))
	assert.InDelta(t, 1, back[0], 1e-4)
	assert.InDelta(t, 2, back[1], 1e-4)
	assert.InDelta(t, 15, back[2], 1e-4)
}

func TestBoundsDegenerateAxis(t *testing.T) {
	q, _ := Bounds{Min: [3]float32{0, 0, 3}, Max: [3]float32{2, 2, 3}}.Matrices()
	p := q.TransformPoint([3]float32{1, 1, 3})
	assert.Equal(t, float32(0), p[2])
}

func TestTableUnknownRoidIsIdentity(t *testing.T) {
	table := NewTable()
	assert.True(t, table.UntransformedQuantizationMatrix(42).IsIdentity())
	assert.True(t, table.UntransformedInverseQuantizationMatrix(42).IsIdentity())
	assert.True(t, table.TransformedQuantizationMatrix().IsIdentity())
}

func TestQuantizeTransformRoundTrip(t *testing.T) {
	table := sceneTable()
	tr := NewTransformer(Options{QuantizeVertices: true}, table)
	model := math.Translate(5, -3, 2).Mul(math.RotateY(0.7))
	step := float32(40) / (2 * VertexRange)

	for _, v := range [][3]float32{{0, 0, 0}, {1, 1, 1}, {-0.5, 0.25, 0.9}} {
		p := tr.TransformVertex(7, v, model)
		q := [3]int16{QuantizeVertex(p[0]), QuantizeVertex(p[1]), QuantizeVertex(p[2])}
		got := DequantizeVertex(q, table.TransformedInverseQuantizationMatrix())
		want := model.TransformPoint(v)
		for i := range 3 {
			assert.InDelta(t, want[i], got[i], float64(step), "component %d of %v", i, v)
		}
	}
}

func TestUnquantizeBeforeModelTransform(t *testing.T) {
	table := sceneTable()
	tr := NewTransformer(Options{QuantizeVertices: true, LoaderQuantizeVertices: true}, table)
	mirror := math.Scale(-1, 1, 1).Mul(math.Translate(3, 0, 0))

	loaded := [3]float32{VertexRange, 0, -VertexRange} // (1, 0, -1) in model space
	got := tr.TransformVertex(7, loaded, mirror)

	world := mirror.TransformPoint([3]float32{1, 0, -1})
	want := table.TransformedQuantizationMatrix().TransformPoint(world)
	for i := range 3 {
		assert.InDelta(t, want[i], got[i], 0.05)
	}

	wrongOrder := table.TransformedQuantizationMatrix().Mul(table.UntransformedInverseQuantizationMatrix(7)).Mul(mirror).TransformPoint(loaded)
	assert.Greater(t, math32.Abs(wrongOrder[0]-got[0]), float32(1))
}

func TestTransformNormalQuantized(t *testing.T) {
	tr := NewTransformer(Options{QuantizeNormals: true, LoaderQuantizeNormals: true}, NewTable())
	n := tr.TransformNormal([3]float32{0, 0, 127}, math.RotateY(math32.Pi/2))

	assert.InDelta(t, 127, n[0], 0.01)
	assert.InDelta(t, 0, n[1], 0.01)
	assert.InDelta(t, 0, n[2], 0.01)
}

func TestTransformNormalIgnoresTranslationAndScale(t *testing.T) {
	tr := NewTransformer(Options{}, NewTable())
	n := tr.TransformNormal([3]float32{0, 1, 0}, math.Translate(10, 10, 10).Mul(math.Scale(3, 3, 3)))
	assert.InDelta(t, 1, n[1], 1e-6)
	assert.InDelta(t, 0, n[0], 1e-6)
}

func TestConvertVertices(t *testing.T) {
	table := sceneTable()
	positions := []float32{1, 0, -1}

	f := NewTransformer(Options{}, table).ConvertVertices(7, positions)
	assert.Equal(t, []float32{1, 0, -1}, f)

	q := NewTransformer(Options{QuantizeVertices: true}, table).ConvertVertices(7, positions)
	assert.Equal(t, []int16{VertexRange, 0, -VertexRange}, q)

	loaded := []float32{VertexRange, 0, -VertexRange}
	passthrough := NewTransformer(Options{QuantizeVertices: true, LoaderQuantizeVertices: true}, table).ConvertVertices(7, loaded)
	assert.Equal(t, []int16{VertexRange, 0, -VertexRange}, passthrough)

	unq := NewTransformer(Options{LoaderQuantizeVertices: true}, table).ConvertVertices(7, loaded)
	require.IsType(t, []float32{}, unq)
	assert.InDeltaSlice(t, []float32{1, 0, -1}, unq, 1e-4)
}

func TestConvertNormals(t *testing.T) {
	assert.Equal(t, []int8{127, 0, -127},
		NewTransformer(Options{QuantizeNormals: true}, NewTable()).ConvertNormals([]float32{1, 0, -1}))
	assert.Equal(t, []int8{127, 0, -64},
		NewTransformer(Options{QuantizeNormals: true, LoaderQuantizeNormals: true}, NewTable()).ConvertNormals([]float32{127, 0, -64}))
	assert.InDeltaSlice(t, []float32{1, 0, -0.5},
		NewTransformer(Options{LoaderQuantizeNormals: true}, NewTable()).ConvertNormals([]float32{127, 0, -63.5}), 1e-6)
}

func TestConvertIndices(t *testing.T) {
	small, typ := ConvertIndices([]uint32{0, 1, 2}, 9, true)
	assert.Equal(t, gpu.UnsignedShort, typ)
	assert.Equal(t, []uint16{0, 1, 2}, small)

	wide, typ := ConvertIndices([]uint32{0, 1, 2}, 9, false)
	assert.Equal(t, gpu.UnsignedInt, typ)
	assert.Equal(t, []uint32{0, 1, 2}, wide)

	_, typ = ConvertIndices([]uint32{0, 1, 70000}, 3*70001, true)
	assert.Equal(t, gpu.UnsignedInt, typ)
}

func TestQuantizeClamps(t *testing.T) {
	assert.Equal(t, int16(VertexRange), QuantizeVertex(1e9))
	assert.Equal(t, int16(-VertexRange), QuantizeVertex(-1e9))
	assert.Equal(t, int16(3), QuantizeVertex(2.5))
	assert.Equal(t, int8(-NormalRange), QuantizeNormal(-300))
}
