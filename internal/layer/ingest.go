package layer

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Faultbox/bimstream/internal/batch"
	"github.com/Faultbox/bimstream/internal/engine/gpu"
	"github.com/Faultbox/bimstream/internal/quantize"
	"github.com/Faultbox/bimstream/internal/telemetry"
)

// addGeometry batches g placed by o. Reused geometry only records the
// instance transform.
func (l *Layer) addGeometry(g *Geometry, o *Object) error {
	if g.IsReused {
		g.Matrices = append(g.Matrices, o.Matrix)
		l.stats.Inc(telemetry.Drawing, telemetry.MetricTriangles, g.Triangles())
		return nil
	}

	var color *batch.Color
	if l.settings.UseObjectColors {
		color = &g.Color
	}
	set, err := l.manager.GetBufferSet(g.HasTransparency, color, g.sizes(!l.settings.UseObjectColors))
	if err != nil {
		return err
	}

	startIndex := set.VertexCount()

	vertexMatrix := l.transformer.VertexMatrix(g.Roid, o.Matrix)
	for i := 0; i < len(g.Positions); i += 3 {
		set.PutPosition(vertexMatrix.TransformPoint([3]float32{g.Positions[i], g.Positions[i+1], g.Positions[i+2]}))
	}

	normalMatrix := o.Matrix.NormalMatrix()
	for i := 0; i < len(g.Normals); i += 3 {
		set.PutNormal(l.transformer.TransformNormal([3]float32{g.Normals[i], g.Normals[i+1], g.Normals[i+2]}, normalMatrix))
	}

	if set.HasVertexColors() {
		if len(g.Colors) > 0 {
			set.AppendColors(g.Colors)
		} else {
			set.FillColor(g.Color, g.VertexCount())
		}
	}

	set.AppendIndices(g.Indices, uint32(startIndex))
	set.Commit(len(g.Indices), l.settings.FlushThreshold)

	if set.NeedsToFlush {
		return l.flushBufferSet(set)
	}
	return nil
}

// addGeometryReusable uploads g once in object space, with one instance
// per recorded matrix, and removes it from the session.
func (l *Layer) addGeometryReusable(g *Geometry, s *Session) error {
	delete(s.geometries, g.ID)

	if len(g.Matrices) == 0 {
		l.log.Debug("reused geometry has no visible instances", zap.Int64("geometry", g.ID))
		return nil
	}

	if !l.settings.FakeLoading {
		b, err := l.uploadReused(g)
		if err != nil {
			return errors.Wrapf(err, "materializing geometry %d", g.ID)
		}
		l.reused = append(l.reused, b)
	}

	l.stats.Inc(telemetry.Primitives, telemetry.MetricLoaded, g.Triangles()*len(g.Matrices))
	l.reportProgress()

	toAdd := g.Bytes + len(g.Matrices)*16*4
	l.stats.Inc(telemetry.Drawing, telemetry.MetricDrawCalls, 1)
	l.stats.Inc(telemetry.Data, telemetry.MetricGPUReuse, toAdd)
	l.stats.Inc(telemetry.Data, telemetry.MetricGPUTotal, toAdd)

	g.Matrices = nil
	return nil
}

func (l *Layer) uploadReused(g *Geometry) (*ReusedBuffer, error) {
	prog, err := l.programs.Program(gpu.Capabilities{
		Instancing:       true,
		UseObjectColors:  l.settings.UseObjectColors,
		QuantizeNormals:  l.settings.QuantizeNormals,
		QuantizeVertices: l.settings.QuantizeVertices,
	})
	if err != nil {
		return nil, err
	}

	up := uploader{device: l.device}
	b := &ReusedBuffer{
		NrIndices:           len(g.Indices),
		NrProcessedMatrices: len(g.Matrices),
		Roid:                g.Roid,
		HasTransparency:     g.HasTransparency,
	}

	b.PositionBuffer = up.buffer(gpu.ArrayBuffer, l.transformer.ConvertVertices(g.Roid, g.Positions))
	b.NormalBuffer = up.buffer(gpu.ArrayBuffer, l.transformer.ConvertNormals(g.Normals))
	if !l.settings.UseObjectColors {
		colors := g.Colors
		if len(colors) == 0 {
			colors = fill(g.Color, g.VertexCount())
		}
		b.ColorBuffer = up.buffer(gpu.ArrayBuffer, colors)
	}

	indices, indexType := quantize.ConvertIndices(g.Indices, len(g.Positions), l.settings.NarrowInstancedIndices)
	b.IndexType = indexType
	b.IndexBuffer = up.buffer(gpu.ElementArrayBuffer, indices)

	instances := make([]float32, 0, len(g.Matrices)*16)
	for _, m := range g.Matrices {
		instances = append(instances, m[:]...)
	}
	b.InstancesBuffer = up.buffer(gpu.ArrayBuffer, instances)

	layout := l.attributes(prog, b.PositionBuffer, b.NormalBuffer, b.ColorBuffer)
	for col := range 4 {
		layout.Attribs = append(layout.Attribs, gpu.AttribPointer{
			Location:   prog.Attribs.Instances + uint32(col),
			Buffer:     b.InstancesBuffer,
			Components: 4,
			Type:       gpu.Float,
			Stride:     64,
			Offset:     col * 16,
			Divisor:    1,
		})
	}
	layout.Elements = b.IndexBuffer
	b.VAO = up.vertexArray(layout)

	if up.err != nil {
		return nil, up.err
	}

	if l.settings.UseObjectColors {
		b.Color = g.Color
		b.HasColor = true
		b.ColorHash = g.Color.Hash()
	}
	return b, nil
}

// attributes lays out position, normal and optional color for prog.
func (l *Layer) attributes(prog *gpu.ProgramInfo, position, normal, color gpu.Handle) gpu.VertexLayout {
	pos := gpu.AttribPointer{Location: prog.Attribs.VertexPosition, Buffer: position, Components: 3, Type: gpu.Float}
	if l.settings.QuantizeVertices {
		pos.Type, pos.Integer = gpu.Short, true
	}
	nrm := gpu.AttribPointer{Location: prog.Attribs.VertexNormal, Buffer: normal, Components: 3, Type: gpu.Float}
	if l.settings.QuantizeNormals {
		nrm.Type, nrm.Integer = gpu.Byte, true
	}

	layout := gpu.VertexLayout{Attribs: []gpu.AttribPointer{pos, nrm}}
	if color != 0 {
		layout.Attribs = append(layout.Attribs, gpu.AttribPointer{
			Location:   prog.Attribs.VertexColor,
			Buffer:     color,
			Components: 4,
			Type:       gpu.Float,
		})
	}
	return layout
}

func fill(c batch.Color, n int) []float32 {
	out := make([]float32, 0, n*4)
	rgba := c.Array()
	for range n {
		out = append(out, rgba[:]...)
	}
	return out
}

// uploader creates device objects until the first failure, after which it
// deletes what it created and keeps the error.
type uploader struct {
	device  gpu.Device
	created []gpu.Handle
	err     error
}

func (u *uploader) buffer(target gpu.BufferTarget, data any) gpu.Handle {
	if u.err != nil {
		return 0
	}
	h, err := u.device.CreateBuffer(target, data)
	if err != nil {
		u.fail(errors.Wrap(err, "creating buffer"))
		return 0
	}
	u.created = append(u.created, h)
	return h
}

func (u *uploader) vertexArray(layout gpu.VertexLayout) gpu.Handle {
	if u.err != nil {
		return 0
	}
	h, err := u.device.CreateVertexArray(layout)
	if err != nil {
		u.fail(errors.Wrap(err, "creating vertex array"))
		return 0
	}
	return h
}

func (u *uploader) fail(err error) {
	u.err = err
	u.device.DeleteBuffers(u.created...)
	u.created = nil
}
