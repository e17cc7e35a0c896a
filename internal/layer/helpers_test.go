package layer

import (
	"cmp"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Faultbox/bimstream/internal/batch"
	"github.com/Faultbox/bimstream/internal/engine/gpu"
	"github.com/Faultbox/bimstream/internal/quantize"
	"github.com/Faultbox/bimstream/internal/telemetry"
	"github.com/Faultbox/bimstream/pkg/math"
)

const loader = 1

type fixture struct {
	layer *Layer
	rec   *gpu.Recorder
	stats *telemetry.Stats
	table *quantize.Table
}

func newFixture(t *testing.T, mutate func(*Settings)) *fixture {
	t.Helper()
	settings := Settings{
		NarrowInstancedIndices: true,
		BufferCapacity:         batch.Capacity{Vertices: 1000, Indices: 3000},
		FlushThreshold:         0.9,
		Reuse:                  ThresholdPolicy{MinRefs: 3},
	}
	if mutate != nil {
		mutate(&settings)
	}
	f := &fixture{
		rec:   gpu.NewRecorder(),
		stats: telemetry.NewStats(),
		table: quantize.NewTable(),
	}
	f.layer = New(settings, Deps{
		Device:   f.rec,
		Programs: gpu.StaticPrograms{},
		Basis:    f.table,
		Stats:    f.stats,
		Pool:     batch.NewPool(4),
		Logger:   zap.NewNop(),
	})
	t.Cleanup(f.layer.Close)
	return f
}

// grid returns n unit quads side by side along x, 2n triangles.
func grid(id int64, n int) GeometryData {
	g := GeometryData{ID: id, Roid: 1}
	for q := range n {
		x := float32(q)
		g.Positions = append(g.Positions,
			x, 0, 0,
			x+1, 0, 0,
			x+1, 1, 0,
			x, 1, 0)
		g.Normals = append(g.Normals, 0, 0, 1, 0, 0, 1, 0, 0, 1, 0, 0, 1)
		base := uint32(q * 4)
		g.Indices = append(g.Indices, base, base+1, base+2, base, base+2, base+3)
	}
	return g
}

func quad(id int64) GeometryData {
	return grid(id, 1)
}

func (f *fixture) geometry(t *testing.T, d GeometryData) *Geometry {
	t.Helper()
	g, err := f.layer.CreateGeometry(loader, d)
	require.NoError(t, err)
	return g
}

func (f *fixture) object(t *testing.T, id int64, typ string, m math.Mat4, geometry ...int64) *Object {
	t.Helper()
	o, err := f.layer.CreateObject(loader, ObjectData{
		Roid:        1,
		Oid:         id,
		ID:          id,
		GeometryIDs: geometry,
		Matrix:      m,
		ScaleMatrix: math.Identity(),
		Type:        typ,
	})
	require.NoError(t, err)
	return o
}

func (f *fixture) finish(t *testing.T) {
	t.Helper()
	require.NoError(t, f.layer.Done(loader))
	require.NoError(t, f.layer.CompletelyDone())
}

func (f *fixture) upload(t *testing.T, h gpu.Handle) any {
	t.Helper()
	u, ok := f.rec.Buffer(h)
	require.True(t, ok, "buffer %d not uploaded", h)
	return u.Data
}

type triangle [9]float32

// batchedTriangles reads back every triangle of the plain buffers.
func (f *fixture) batchedTriangles(t *testing.T) []triangle {
	t.Helper()
	var out []triangle
	for _, b := range f.layer.Buffers() {
		pos := f.upload(t, b.PositionBuffer).([]float32)
		idx := f.upload(t, b.IndexBuffer).([]uint32)
		require.Len(t, idx, b.NrIndices)
		for i := 0; i < len(idx); i += 3 {
			var tri triangle
			for k := range 3 {
				copy(tri[k*3:k*3+3], pos[idx[i+k]*3:idx[i+k]*3+3])
			}
			out = append(out, tri)
		}
	}
	return sortTriangles(out)
}

func sortTriangles(ts []triangle) []triangle {
	slices.SortFunc(ts, func(a, b triangle) int {
		for i := range a {
			if c := cmp.Compare(a[i], b[i]); c != 0 {
				return c
			}
		}
		return 0
	})
	return ts
}

func placed(d GeometryData, m math.Mat4) []triangle {
	var out []triangle
	for i := 0; i < len(d.Indices); i += 3 {
		var tri triangle
		for k := range 3 {
			j := d.Indices[i+k] * 3
			p := m.TransformPoint([3]float32{d.Positions[j], d.Positions[j+1], d.Positions[j+2]})
			copy(tri[k*3:k*3+3], p[:])
		}
		out = append(out, tri)
	}
	return out
}
