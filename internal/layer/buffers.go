package layer

import (
	"cmp"
	"slices"

	"github.com/pkg/errors"

	"github.com/Faultbox/bimstream/internal/batch"
	"github.com/Faultbox/bimstream/internal/engine/gpu"
	"github.com/Faultbox/bimstream/internal/telemetry"
)

// Buffer is a flushed staging set living on the device.
type Buffer struct {
	PositionBuffer gpu.Handle
	NormalBuffer   gpu.Handle
	ColorBuffer    gpu.Handle // zero with object colors
	IndexBuffer    gpu.Handle
	VAO            gpu.Handle

	NrIndices       int
	HasTransparency bool

	Color     batch.Color
	HasColor  bool
	ColorHash uint64
}

func (b *Buffer) handles() []gpu.Handle {
	return nonZero(b.PositionBuffer, b.NormalBuffer, b.ColorBuffer, b.IndexBuffer)
}

// ReusedBuffer is one geometry drawn once per instance matrix.
type ReusedBuffer struct {
	PositionBuffer  gpu.Handle
	NormalBuffer    gpu.Handle
	ColorBuffer     gpu.Handle
	IndexBuffer     gpu.Handle
	InstancesBuffer gpu.Handle
	VAO             gpu.Handle

	NrIndices           int
	IndexType           gpu.ComponentType
	NrProcessedMatrices int
	// Roid selects the inverse quantization matrix at draw time.
	Roid            int64
	HasTransparency bool

	Color     batch.Color
	HasColor  bool
	ColorHash uint64
}

func (b *ReusedBuffer) handles() []gpu.Handle {
	return nonZero(b.PositionBuffer, b.NormalBuffer, b.ColorBuffer, b.IndexBuffer, b.InstancesBuffer)
}

func nonZero(hs ...gpu.Handle) []gpu.Handle {
	return slices.DeleteFunc(hs, func(h gpu.Handle) bool { return h == 0 })
}

// FlushBuffer uploads a staging set and resets it. Nil and empty sets are
// ignored.
func (l *Layer) FlushBuffer(set *batch.BufferSet) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushBufferSet(set)
}

func (l *Layer) flushBufferSet(set *batch.BufferSet) error {
	if set == nil || set.NrIndices == 0 {
		return nil
	}

	l.stats.Inc(telemetry.Buffers, telemetry.MetricFlushed, 1)

	if !l.settings.FakeLoading {
		b, err := l.upload(set)
		if err != nil {
			return errors.Wrap(err, "flushing buffer set")
		}
		l.buffers = append(l.buffers, b)
	}

	toAdd := set.ByteSize()
	triangles := set.NrIndices / 3

	l.stats.Inc(telemetry.Primitives, telemetry.MetricLoaded, triangles)
	l.reportProgress()
	l.stats.Inc(telemetry.Data, telemetry.MetricGPUBytes, toAdd)
	l.stats.Inc(telemetry.Drawing, telemetry.MetricDrawCalls, 1)
	l.stats.Inc(telemetry.Data, telemetry.MetricGPUTotal, toAdd)
	l.stats.Inc(telemetry.Buffers, telemetry.MetricGroups, 1)
	l.stats.Inc(telemetry.Drawing, telemetry.MetricTriangles, triangles)

	l.manager.ResetBuffer(set)
	return nil
}

func (l *Layer) upload(set *batch.BufferSet) (*Buffer, error) {
	prog, err := l.programs.Program(gpu.Capabilities{
		Instancing:       false,
		UseObjectColors:  !set.HasVertexColors(),
		QuantizeNormals:  l.settings.QuantizeNormals,
		QuantizeVertices: l.settings.QuantizeVertices,
	})
	if err != nil {
		return nil, err
	}

	up := uploader{device: l.device}
	b := &Buffer{
		NrIndices:       set.NrIndices,
		HasTransparency: set.HasTransparency,
	}
	b.PositionBuffer = up.buffer(gpu.ArrayBuffer, set.Positions())
	b.NormalBuffer = up.buffer(gpu.ArrayBuffer, set.Normals())
	if set.HasVertexColors() {
		b.ColorBuffer = up.buffer(gpu.ArrayBuffer, set.Colors())
	}
	b.IndexBuffer = up.buffer(gpu.ElementArrayBuffer, set.Indices())

	layout := l.attributes(prog, b.PositionBuffer, b.NormalBuffer, b.ColorBuffer)
	layout.Elements = b.IndexBuffer
	b.VAO = up.vertexArray(layout)
	if up.err != nil {
		return nil, up.err
	}

	if l.settings.UseObjectColors {
		b.Color = set.Color
		b.HasColor = true
		b.ColorHash = set.Color.Hash()
	}
	return b, nil
}

// SortBuffers orders both buffer lists by color hash so buffers of equal
// color are drawn back to back. The sort is stable.
func (l *Layer) SortBuffers() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sortBuffers()
}

func (l *Layer) sortBuffers() {
	slices.SortStableFunc(l.buffers, func(a, b *Buffer) int { return cmp.Compare(a.ColorHash, b.ColorHash) })
	slices.SortStableFunc(l.reused, func(a, b *ReusedBuffer) int { return cmp.Compare(a.ColorHash, b.ColorHash) })
}
