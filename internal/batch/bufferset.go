package batch

import "github.com/Faultbox/bimstream/internal/quantize"

// BufferSet is a staging area for one future device buffer. Every arena
// has its own cursor; positions and normals are stored in the quantized
// or float format chosen by the layout.
type BufferSet struct {
	Capacity Capacity
	Layout   Layout

	HasTransparency bool
	Color           Color
	HasColor        bool

	// NrIndices is the number of committed indices.
	NrIndices int
	// NeedsToFlush is set once occupancy crosses the flush threshold, and
	// on oversize sets from the start.
	NeedsToFlush bool
	// Oversize marks a dedicated set sized for a single geometry.
	Oversize bool

	positions  *Arena[float32]
	qpositions *Arena[int16]
	normals    *Arena[float32]
	qnormals   *Arena[int8]
	colors     *Arena[float32]
	indices    *Arena[uint32]

	pooled bool
}

// NewBufferSet allocates arenas for c in the format of l.
func NewBufferSet(c Capacity, l Layout) *BufferSet {
	s := &BufferSet{Capacity: c, Layout: l}
	if l.QuantizedPositions {
		s.qpositions = NewArena[int16](c.Vertices * 3)
	} else {
		s.positions = NewArena[float32](c.Vertices * 3)
	}
	if l.QuantizedNormals {
		s.qnormals = NewArena[int8](c.Vertices * 3)
	} else {
		s.normals = NewArena[float32](c.Vertices * 3)
	}
	if l.VertexColors {
		s.colors = NewArena[float32](c.Vertices * 4)
	}
	s.indices = NewArena[uint32](c.Indices)
	return s
}

// PutPosition appends one render-space vertex, rounding it when the set is
// quantized.
func (s *BufferSet) PutPosition(p [3]float32) {
	if s.qpositions != nil {
		s.qpositions.Append(quantize.QuantizeVertex(p[0]), quantize.QuantizeVertex(p[1]), quantize.QuantizeVertex(p[2]))
		return
	}
	s.positions.Append(p[:]...)
}

// PutNormal appends one render-space normal.
func (s *BufferSet) PutNormal(n [3]float32) {
	if s.qnormals != nil {
		s.qnormals.Append(quantize.QuantizeNormal(n[0]), quantize.QuantizeNormal(n[1]), quantize.QuantizeNormal(n[2]))
		return
	}
	s.normals.Append(n[:]...)
}

// AppendColors appends RGBA vertex colors. No-op when the layout has none.
func (s *BufferSet) AppendColors(colors []float32) {
	if s.colors == nil {
		return
	}
	s.colors.Append(colors...)
}

// FillColor appends the same color for n vertices.
func (s *BufferSet) FillColor(c Color, n int) {
	if s.colors == nil {
		return
	}
	rgba := c.Array()
	for range n {
		s.colors.Append(rgba[:]...)
	}
}

// AppendIndices appends a geometry's indices shifted by offset.
func (s *BufferSet) AppendIndices(indices []uint32, offset uint32) {
	AppendOffset(s.indices, indices, offset)
}

// Commit accounts n appended indices and updates NeedsToFlush against
// threshold, the allowed occupancy fraction in (0, 1].
func (s *BufferSet) Commit(n int, threshold float64) {
	s.NrIndices += n
	if s.Occupancy() >= threshold {
		s.NeedsToFlush = true
	}
}

// Occupancy is the fuller of the vertex and index fill ratios.
func (s *BufferSet) Occupancy() float64 {
	var v, i float64
	if s.Capacity.Vertices > 0 {
		v = float64(s.VertexCount()) / float64(s.Capacity.Vertices)
	}
	if s.Capacity.Indices > 0 {
		i = float64(s.indices.Len()) / float64(s.Capacity.Indices)
	}
	return max(v, i)
}

// VertexCount is the number of vertices written so far.
func (s *BufferSet) VertexCount() int {
	if s.qpositions != nil {
		return s.qpositions.Len() / 3
	}
	return s.positions.Len() / 3
}

// Fits reports whether sizes can be appended without overflowing.
func (s *BufferSet) Fits(sizes Sizes) bool {
	if s.positionFree() < sizes.Vertices || s.normalFree() < sizes.Normals {
		return false
	}
	if s.indices.Free() < sizes.Indices {
		return false
	}
	if s.colors != nil && s.colors.Free() < sizes.Colors {
		return false
	}
	return true
}

func (s *BufferSet) positionFree() int {
	if s.qpositions != nil {
		return s.qpositions.Free()
	}
	return s.positions.Free()
}

func (s *BufferSet) normalFree() int {
	if s.qnormals != nil {
		return s.qnormals.Free()
	}
	return s.normals.Free()
}

// Positions returns the occupied positions, []int16 or []float32.
func (s *BufferSet) Positions() any {
	if s.qpositions != nil {
		return s.qpositions.Data()
	}
	return s.positions.Data()
}

// Normals returns the occupied normals, []int8 or []float32.
func (s *BufferSet) Normals() any {
	if s.qnormals != nil {
		return s.qnormals.Data()
	}
	return s.normals.Data()
}

// Colors returns the occupied vertex colors, nil when the layout has none.
func (s *BufferSet) Colors() []float32 {
	if s.colors == nil {
		return nil
	}
	return s.colors.Data()
}

// HasVertexColors reports whether the set stores per-vertex colors.
func (s *BufferSet) HasVertexColors() bool {
	return s.colors != nil
}

// Indices returns the occupied indices.
func (s *BufferSet) Indices() []uint32 {
	return s.indices.Data()
}

// ByteSize is the device footprint of the occupied prefix.
func (s *BufferSet) ByteSize() int {
	var n int
	if s.qpositions != nil {
		n += s.qpositions.Len() * 2
	} else {
		n += s.positions.Len() * 4
	}
	if s.qnormals != nil {
		n += s.qnormals.Len()
	} else {
		n += s.normals.Len() * 4
	}
	if s.colors != nil {
		n += s.colors.Len() * 4
	}
	return n + s.indices.Len()*4
}

// Reset rewinds every cursor and clears the flush flag.
func (s *BufferSet) Reset() {
	s.indices.Reset()
	if s.positions != nil {
		s.positions.Reset()
	}
	if s.qpositions != nil {
		s.qpositions.Reset()
	}
	if s.normals != nil {
		s.normals.Reset()
	}
	if s.qnormals != nil {
		s.qnormals.Reset()
	}
	if s.colors != nil {
		s.colors.Reset()
	}
	s.NrIndices = 0
	s.NeedsToFlush = false
}
