package layer

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/bimstream/internal/batch"
	"github.com/Faultbox/bimstream/internal/engine/gpu"
	"github.com/Faultbox/bimstream/internal/quantize"
	"github.com/Faultbox/bimstream/internal/telemetry"
	"github.com/Faultbox/bimstream/pkg/math"
)

func TestWallWithVertexColors(t *testing.T) {
	f := newFixture(t, nil)
	d := quad(10)
	d.Colors = []float32{
		1, 0, 0, 1,
		0, 1, 0, 1,
		0, 0, 1, 1,
		1, 1, 1, 1,
	}
	f.geometry(t, d)
	f.object(t, 100, "IfcWall", math.Identity(), 10)
	f.finish(t)

	buffers := f.layer.Buffers()
	require.Len(t, buffers, 1)
	b := buffers[0]
	assert.Equal(t, 6, b.NrIndices)
	assert.False(t, b.HasTransparency)
	assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, f.upload(t, b.IndexBuffer))
	assert.Equal(t, d.Colors, f.upload(t, b.ColorBuffer))
	assert.Empty(t, f.layer.ReusedBuffers())
	assert.Equal(t, 2, f.stats.Get(telemetry.Primitives, telemetry.MetricLoaded))
	assert.Equal(t, 1, f.stats.Get(telemetry.Models, telemetry.MetricObjects))
}

func TestNoLossNoDuplication(t *testing.T) {
	f := newFixture(t, func(s *Settings) {
		s.BufferCapacity = batch.Capacity{Vertices: 10, Indices: 12}
		s.Reuse = ThresholdPolicy{}
	})
	shared := grid(1, 1)
	wide := grid(2, 2)
	f.geometry(t, shared)
	f.geometry(t, wide)

	var want []triangle
	for i := range 7 {
		m := math.Translate(float32(i*3), float32(i), -2)
		f.object(t, int64(100+i), "IfcSlab", m, 1, 2)
		want = append(want, placed(shared, m)...)
		want = append(want, placed(wide, m)...)
	}
	f.finish(t)

	assert.Greater(t, len(f.layer.Buffers()), 1, "small capacity forces several flushes")
	assert.Equal(t, sortTriangles(want), f.batchedTriangles(t))
	assert.Equal(t, len(want), f.stats.Get(telemetry.Primitives, telemetry.MetricLoaded))
}

func TestReusedGeometryIsInstanced(t *testing.T) {
	f := newFixture(t, nil)
	d := quad(5)
	d.Reused = 5
	g := f.geometry(t, d)
	require.True(t, g.IsReused)

	var matrices []float32
	for i := range 5 {
		m := math.Translate(float32(i), 0, 0)
		f.object(t, int64(i+1), "IfcColumn", m, 5)
		matrices = append(matrices, m[:]...)
	}

	reused := f.layer.ReusedBuffers()
	require.Len(t, reused, 1, "materialized on the last expected reference")
	f.finish(t)

	assert.Empty(t, f.layer.Buffers())
	r := f.layer.ReusedBuffers()[0]
	assert.Equal(t, 5, r.NrProcessedMatrices)
	assert.Equal(t, 6, r.NrIndices)
	assert.Equal(t, gpu.UnsignedShort, r.IndexType)
	assert.Equal(t, matrices, f.upload(t, r.InstancesBuffer))
	assert.Equal(t, []uint16{0, 1, 2, 0, 2, 3}, f.upload(t, r.IndexBuffer))
	assert.Equal(t, d.Positions, f.upload(t, r.PositionBuffer), "instanced geometry stays in object space")

	layout, ok := f.rec.VertexArray(r.VAO)
	require.True(t, ok)
	var divisors int
	for _, a := range layout.Attribs {
		if a.Divisor == 1 {
			divisors++
			assert.Equal(t, int32(64), a.Stride)
		}
	}
	assert.Equal(t, 4, divisors)

	assert.Equal(t, 10, f.stats.Get(telemetry.Primitives, telemetry.MetricLoaded))
	assert.Equal(t, 10, f.stats.Get(telemetry.Drawing, telemetry.MetricTriangles))
	assert.Equal(t, 1, f.stats.Get(telemetry.Drawing, telemetry.MetricDrawCalls))
	assert.Equal(t, g.Bytes+5*64, f.stats.Get(telemetry.Data, telemetry.MetricGPUReuse))
}

func TestDoneMaterializesUndercountedGeometry(t *testing.T) {
	f := newFixture(t, nil)
	d := quad(5)
	d.Reused = 5
	f.geometry(t, d)
	for i := range 3 {
		f.object(t, int64(i+1), "IfcColumn", math.Translate(float32(i), 0, 0), 5)
	}
	assert.Empty(t, f.layer.ReusedBuffers())

	require.NoError(t, f.layer.Done(loader))
	reused := f.layer.ReusedBuffers()
	require.Len(t, reused, 1)
	assert.Equal(t, 3, reused[0].NrProcessedMatrices)

	require.NoError(t, f.layer.Done(loader))
	assert.Len(t, f.layer.ReusedBuffers(), 1, "second Done is a no-op")
	assert.Equal(t, 0, f.layer.ActiveSessions())
}

func TestIfcSpaceIsHidden(t *testing.T) {
	f := newFixture(t, nil)
	f.geometry(t, grid(3, 2))
	o := f.object(t, 1, "IfcSpace", math.Identity(), 3)
	f.finish(t)

	assert.False(t, o.Visible)
	assert.Empty(t, o.Geometry)
	assert.Empty(t, f.layer.Buffers())
	assert.Empty(t, f.layer.ReusedBuffers())
	assert.Zero(t, f.rec.LiveBuffers())
	assert.Equal(t, 4, f.stats.Get(telemetry.Primitives, telemetry.MetricHidden))
	assert.Zero(t, f.stats.Get(telemetry.Primitives, telemetry.MetricLoaded))
}

func TestLoadedPlusHiddenIsTotal(t *testing.T) {
	f := newFixture(t, func(s *Settings) { s.Reuse = ThresholdPolicy{MinRefs: 4} })

	instanced := quad(1)
	instanced.Reused = 4
	batched := grid(2, 2)
	batched.Reused = 3
	f.geometry(t, instanced)
	f.geometry(t, batched)

	f.object(t, 1, "IfcWall", math.Translate(0, 0, 0), 1)
	f.object(t, 2, "IfcWall", math.Translate(2, 0, 0), 1, 2)
	f.object(t, 3, "IfcSpace", math.Identity(), 1)
	f.object(t, 4, "IfcWall", math.Translate(4, 0, 0), 1, 2)
	f.object(t, 5, "IfcOpeningElement", math.Identity(), 2)

	var progress []int
	f.layer.SetProgressListener(func(n int) { progress = append(progress, n) })
	f.finish(t)

	total := 4*2 + 3*4
	loaded := f.stats.Get(telemetry.Primitives, telemetry.MetricLoaded)
	hidden := f.stats.Get(telemetry.Primitives, telemetry.MetricHidden)
	assert.Equal(t, total, loaded+hidden)
	assert.Equal(t, 2+4, hidden)
	require.NotEmpty(t, progress)
	assert.Equal(t, total, progress[len(progress)-1])
}

func TestProgressIsMonotonic(t *testing.T) {
	f := newFixture(t, func(s *Settings) { s.BufferCapacity = batch.Capacity{Vertices: 4, Indices: 6} })
	var progress []int
	f.layer.SetProgressListener(func(n int) { progress = append(progress, n) })

	f.geometry(t, quad(1))
	f.geometry(t, quad(2))
	f.object(t, 1, "IfcWall", math.Identity(), 1)
	f.object(t, 2, "IfcSpace", math.Identity(), 2)
	f.object(t, 3, "IfcWall", math.Translate(1, 0, 0), 2)
	f.finish(t)

	assert.Equal(t, []int{2, 4, 6}, progress)
}

func TestBatchedGeometryLeavesSessionAfterExpectedReferences(t *testing.T) {
	f := newFixture(t, func(s *Settings) { s.Reuse = ThresholdPolicy{} })
	s, err := f.layer.BeginSession(loader, 1)
	require.NoError(t, err)

	d := quad(1)
	d.Reused = 2
	f.geometry(t, d)
	f.geometry(t, quad(2))
	f.object(t, 1, "IfcWall", math.Identity(), 1, 2)
	assert.Equal(t, 2, s.Pending())
	f.object(t, 2, "IfcWall", math.Identity(), 1)
	assert.Equal(t, 1, s.Pending(), "geometry without an expected count stays until Done")
}

func TestObjectAdd(t *testing.T) {
	f := newFixture(t, nil)
	o := f.object(t, 1, "IfcDoor", math.Identity())
	f.geometry(t, quad(7))

	require.NoError(t, o.Add(7))
	require.NoError(t, o.Add(99), "unknown geometry is ignored")
	assert.Equal(t, []int64{7}, o.Geometry)

	require.NoError(t, f.layer.Done(loader))
	assert.ErrorIs(t, o.Add(7), ErrObjectImmutable)
}

func TestAddGeometryToObject(t *testing.T) {
	f := newFixture(t, nil)
	err := f.layer.AddGeometryToObject(42, 1, 1)
	assert.True(t, errors.Is(err, ErrUnknownSession))

	f.object(t, 1, "IfcBeam", math.Identity())
	f.geometry(t, quad(3))
	require.NoError(t, f.layer.AddGeometryToObject(loader, 3, 1))
	require.NoError(t, f.layer.AddGeometryToObject(loader, 3, 77), "unknown object is ignored")
	f.finish(t)

	assert.Len(t, f.layer.Buffers(), 1)
}

func TestInvalidGeometry(t *testing.T) {
	f := newFixture(t, nil)

	bad := quad(1)
	bad.Indices = append(bad.Indices, 0, 1, 9)
	_, err := f.layer.CreateGeometry(loader, bad)
	assert.ErrorIs(t, err, ErrInvalidGeometry)

	bad = quad(2)
	bad.Normals = bad.Normals[:3]
	_, err = f.layer.CreateGeometry(loader, bad)
	assert.ErrorIs(t, err, ErrInvalidGeometry)

	bad = quad(3)
	bad.Colors = []float32{1, 1, 1, 1}
	_, err = f.layer.CreateGeometry(loader, bad)
	assert.ErrorIs(t, err, ErrInvalidGeometry)
}

func TestFlushBufferIgnoresEmptySets(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.layer.FlushBuffer(nil))
	require.NoError(t, f.layer.FlushBuffer(batch.NewBufferSet(batch.Capacity{Vertices: 4, Indices: 6}, batch.Layout{})))

	assert.Zero(t, f.rec.LiveBuffers())
	assert.Zero(t, f.stats.Get(telemetry.Buffers, telemetry.MetricFlushed))
}

func TestOversizeGeometryGetsOwnBuffer(t *testing.T) {
	f := newFixture(t, func(s *Settings) { s.BufferCapacity = batch.Capacity{Vertices: 4, Indices: 6} })
	f.geometry(t, grid(1, 3))
	f.object(t, 1, "IfcRoof", math.Identity(), 1)

	buffers := f.layer.Buffers()
	require.Len(t, buffers, 1, "flushed right away")
	assert.Equal(t, 18, buffers[0].NrIndices)
}

func TestVertexColorPadding(t *testing.T) {
	f := newFixture(t, nil)
	d := quad(1)
	d.Color = batch.Color{R: 0.5, G: 0.25, B: 0, A: 1}
	f.geometry(t, d)
	f.object(t, 1, "IfcWall", math.Identity(), 1)
	f.finish(t)

	colors := f.upload(t, f.layer.Buffers()[0].ColorBuffer).([]float32)
	require.Len(t, colors, 16)
	for i := 0; i < len(colors); i += 4 {
		assert.Equal(t, []float32{0.5, 0.25, 0, 1}, colors[i:i+4])
	}
}

func TestQuantizedBatchRoundTrip(t *testing.T) {
	f := newFixture(t, func(s *Settings) {
		s.QuantizeVertices = true
		s.QuantizeNormals = true
	})
	f.table.SetGlobal(quantize.Bounds{Min: [3]float32{-10, -10, -10}, Max: [3]float32{10, 10, 10}})

	d := quad(1)
	m := math.Translate(2, 3, 4)
	f.geometry(t, d)
	f.object(t, 1, "IfcWall", m, 1)
	f.finish(t)

	b := f.layer.Buffers()[0]
	positions := f.upload(t, b.PositionBuffer).([]int16)
	inv := f.table.TransformedInverseQuantizationMatrix()
	step := 20.0 / (2 * quantize.VertexRange)
	for i := 0; i < len(positions); i += 3 {
		got := quantize.DequantizeVertex([3]int16{positions[i], positions[i+1], positions[i+2]}, inv)
		want := m.TransformPoint([3]float32{d.Positions[i], d.Positions[i+1], d.Positions[i+2]})
		for k := range 3 {
			assert.InDelta(t, want[k], got[k], step)
		}
	}
	assert.Equal(t, []int8{0, 0, 127, 0, 0, 127, 0, 0, 127, 0, 0, 127}, f.upload(t, b.NormalBuffer))

	layout, _ := f.rec.VertexArray(b.VAO)
	assert.True(t, layout.Attribs[0].Integer)
	assert.Equal(t, gpu.Short, layout.Attribs[0].Type)
	assert.Equal(t, gpu.Byte, layout.Attribs[1].Type)
}

func TestNarrowIndicesDisabled(t *testing.T) {
	f := newFixture(t, func(s *Settings) {
		s.NarrowInstancedIndices = false
		s.Reuse = ThresholdPolicy{MinRefs: 1}
	})
	d := quad(1)
	d.Reused = 1
	f.geometry(t, d)
	f.object(t, 1, "IfcWindow", math.Identity(), 1)

	r := f.layer.ReusedBuffers()[0]
	assert.Equal(t, gpu.UnsignedInt, r.IndexType)
	assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, f.upload(t, r.IndexBuffer))
}

func TestReusedGeometryWithoutVisibleInstances(t *testing.T) {
	f := newFixture(t, func(s *Settings) { s.Reuse = ThresholdPolicy{MinRefs: 2} })
	d := quad(1)
	d.Reused = 2
	f.geometry(t, d)
	f.object(t, 1, "IfcSpace", math.Identity(), 1)
	f.object(t, 2, "IfcSpace", math.Identity(), 1)
	f.finish(t)

	assert.Empty(t, f.layer.ReusedBuffers())
	assert.Zero(t, f.rec.LiveBuffers())
	assert.Equal(t, 4, f.stats.Get(telemetry.Primitives, telemetry.MetricHidden))
}

func TestFakeLoading(t *testing.T) {
	f := newFixture(t, func(s *Settings) {
		s.FakeLoading = true
		s.Reuse = ThresholdPolicy{MinRefs: 2}
	})
	instanced := quad(1)
	instanced.Reused = 2
	f.geometry(t, instanced)
	f.geometry(t, quad(2))
	f.object(t, 1, "IfcWall", math.Identity(), 1, 2)
	f.object(t, 2, "IfcWall", math.Identity(), 1)
	f.finish(t)

	assert.Empty(t, f.layer.Buffers())
	assert.Empty(t, f.layer.ReusedBuffers())
	assert.Zero(t, f.rec.LiveBuffers())
	assert.Equal(t, 6, f.stats.Get(telemetry.Primitives, telemetry.MetricLoaded))
	assert.Positive(t, f.stats.Get(telemetry.Data, telemetry.MetricGPUTotal))
}

func TestDeviceFailureIsReported(t *testing.T) {
	f := newFixture(t, nil)
	f.rec.FailAfter = 2
	f.geometry(t, quad(1))
	f.object(t, 1, "IfcWall", math.Identity(), 1)
	require.NoError(t, f.layer.Done(loader))

	err := f.layer.CompletelyDone()
	require.Error(t, err)
	assert.ErrorIs(t, err, gpu.ErrOutOfMemory)
	assert.Zero(t, f.rec.LiveBuffers(), "partial uploads are released")
}

func TestCompletelyDoneWithOpenSession(t *testing.T) {
	f := newFixture(t, nil)
	f.object(t, 1, "IfcWall", math.Identity())
	assert.ErrorIs(t, f.layer.CompletelyDone(), ErrSessionsActive)
}

func TestCloseReleasesDeviceResources(t *testing.T) {
	f := newFixture(t, nil)
	d := quad(1)
	d.Reused = 3
	f.geometry(t, d)
	f.geometry(t, quad(2))
	for i := range 3 {
		f.object(t, int64(i+1), "IfcWall", math.Translate(float32(i), 0, 0), 1, 2)
	}
	f.finish(t)
	require.NotZero(t, f.rec.LiveBuffers())

	f.layer.Close()
	f.layer.Close()
	assert.Zero(t, f.rec.LiveBuffers())
	assert.Zero(t, f.rec.LiveVertexArrays())
	assert.ErrorIs(t, f.layer.Render(false, View{}), ErrClosed)

	_, err := f.layer.CreateGeometry(loader, quad(3))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestObjectAddAfterClose(t *testing.T) {
	f := newFixture(t, func(s *Settings) {
		s.BufferCapacity = batch.Capacity{Vertices: 4, Indices: 6}
	})
	o := f.object(t, 1, "IfcWall", math.Identity())
	f.geometry(t, grid(9, 3))

	f.layer.Close()
	assert.ErrorIs(t, o.Add(9), ErrClosed)
	assert.Empty(t, o.Geometry)
	assert.Zero(t, f.rec.LiveBuffers())
	assert.Empty(t, f.layer.Buffers())
}

func TestObjectCountedWhenAttachFails(t *testing.T) {
	f := newFixture(t, func(s *Settings) {
		s.Reuse = ThresholdPolicy{MinRefs: 1}
	})
	f.rec.FailAfter = 1
	d := quad(1)
	d.Reused = 1
	f.geometry(t, d)

	_, err := f.layer.CreateObject(loader, ObjectData{
		Roid:        1,
		ID:          1,
		GeometryIDs: []int64{1},
		Matrix:      math.Identity(),
		ScaleMatrix: math.Identity(),
		Type:        "IfcColumn",
	})
	require.ErrorIs(t, err, gpu.ErrOutOfMemory)
	assert.Equal(t, 1, f.stats.Get(telemetry.Models, telemetry.MetricObjects))
}

func TestInterleavedSessions(t *testing.T) {
	f := newFixture(t, func(s *Settings) {
		s.QuantizeVertices = true
		s.Reuse = ThresholdPolicy{MinRefs: 2}
	})
	f.table.Register(1, quantize.Bounds{Min: [3]float32{0, 0, 0}, Max: [3]float32{1, 1, 1}})
	f.table.Register(2, quantize.Bounds{Min: [3]float32{-4, -4, -4}, Max: [3]float32{4, 4, 4}})
	f.table.SetGlobal(quantize.Bounds{Min: [3]float32{-50, -50, -50}, Max: [3]float32{50, 50, 50}})

	geometry := func(loaderID int, d GeometryData, roid int64, reused int) {
		t.Helper()
		d.Roid, d.Reused = roid, reused
		_, err := f.layer.CreateGeometry(loaderID, d)
		require.NoError(t, err)
	}
	object := func(loaderID int, id, roid int64, x float32, geometry ...int64) {
		t.Helper()
		_, err := f.layer.CreateObject(loaderID, ObjectData{
			Roid:        roid,
			Oid:         id,
			ID:          id,
			GeometryIDs: geometry,
			Matrix:      math.Translate(x, 0, 0),
			ScaleMatrix: math.Identity(),
			Type:        "IfcColumn",
		})
		require.NoError(t, err)
	}

	// both loaders use geometry ids 1, 2 and object ids 1, 2
	geometry(1, grid(1, 1), 1, 2)
	geometry(2, grid(1, 2), 2, 2)
	geometry(1, grid(2, 1), 1, 1)
	geometry(2, grid(2, 2), 2, 1)
	object(1, 1, 1, 0, 1, 2)
	object(2, 1, 2, 10, 1, 2)
	object(1, 2, 1, 3, 1)
	require.NoError(t, f.layer.Done(1))

	assert.Equal(t, 1, f.layer.ActiveSessions())
	s2, err := f.layer.BeginSession(2, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, s2.Pending(), "reused geometry of loader 2 still waits for its second object")
	require.Len(t, f.layer.ReusedBuffers(), 1)

	object(2, 2, 2, 20, 1)
	require.NoError(t, f.layer.Done(2))
	require.NoError(t, f.layer.CompletelyDone())

	reused := f.layer.ReusedBuffers()
	require.Len(t, reused, 2)
	assert.Equal(t, int64(1), reused[0].Roid)
	assert.Equal(t, 6, reused[0].NrIndices)
	assert.Equal(t, int64(2), reused[1].Roid)
	assert.Equal(t, 12, reused[1].NrIndices)
	for _, b := range reused {
		assert.Equal(t, 2, b.NrProcessedMatrices)
	}

	nrIndices := 0
	for _, b := range f.layer.Buffers() {
		nrIndices += b.NrIndices
	}
	assert.Equal(t, 6+12, nrIndices, "one object of each loader batches its own geometry 2")
	assert.Equal(t, 2*2+4*2+2+4, f.stats.Get(telemetry.Primitives, telemetry.MetricLoaded))

	f.rec.ResetCalls()
	require.NoError(t, f.layer.Render(false, NewView(math.Identity(), math.Identity(), 1)))
	var vqm []math.Mat4
	var draws []gpu.Call
	for _, c := range f.rec.Calls() {
		switch {
		case c.Op == gpu.OpUniformMatrix4 && c.Location == 3:
			vqm = append(vqm, c.Matrix)
		case c.Op == gpu.OpDrawElementsInstanced:
			draws = append(draws, c)
		}
	}
	require.Len(t, vqm, 3)
	require.Len(t, draws, 2)
	assert.Equal(t, f.table.TransformedInverseQuantizationMatrix(), vqm[0])
	assert.Equal(t, f.table.UntransformedInverseQuantizationMatrix(1), vqm[1])
	assert.Equal(t, f.table.UntransformedInverseQuantizationMatrix(2), vqm[2])
	assert.NotEqual(t, vqm[1], vqm[2])
	assert.Equal(t, int32(6), draws[0].Count)
	assert.Equal(t, int32(12), draws[1].Count)
}

func TestThresholdPolicy(t *testing.T) {
	tests := []struct {
		name      string
		policy    ThresholdPolicy
		refs, tri int
		want      bool
	}{
		{"disabled", ThresholdPolicy{}, 100, 1, false},
		{"below threshold", ThresholdPolicy{MinRefs: 3}, 2, 1, false},
		{"at threshold", ThresholdPolicy{MinRefs: 3}, 3, 1, true},
		{"too large", ThresholdPolicy{MinRefs: 3, MaxTriangles: 10}, 5, 11, false},
		{"size limit met", ThresholdPolicy{MinRefs: 3, MaxTriangles: 10}, 5, 10, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.ShouldInstance(tt.refs, tt.tri))
		})
	}

	var calls int
	f := newFixture(t, func(s *Settings) {
		s.Reuse = PolicyFunc(func(refs, tri int) bool { calls++; return refs == 2 })
	})
	d := quad(1)
	d.Reused = 2
	g := f.geometry(t, d)
	assert.True(t, g.IsReused)
	f.object(t, 1, "IfcWall", math.Identity(), 1)
	f.object(t, 2, "IfcWall", math.Identity(), 1)
	assert.Equal(t, 1, calls, "policy is consulted once per geometry")
}
