package batch

import (
	"encoding/binary"
	"hash/fnv"
	stdmath "math"
)

// Color is an RGBA object color.
type Color struct {
	R, G, B, A float32
}

// Array returns the color as a uniform value.
func (c Color) Array() [4]float32 {
	return [4]float32{c.R, c.G, c.B, c.A}
}

// Hash identifies equal colors so the render pass can skip redundant
// uniform updates.
func (c Color) Hash() uint64 {
	var buf [16]byte
	for i, v := range c.Array() {
		binary.LittleEndian.PutUint32(buf[i*4:], stdmath.Float32bits(v))
	}
	h := fnv.New64a()
	h.Write(buf[:])
	return h.Sum64()
}

// Key identifies one staging set in a Manager.
type Key struct {
	Transparency bool
	HasColor     bool
	Color        Color
}

// Layout is the attribute format of a set.
type Layout struct {
	QuantizedPositions bool // int16 positions instead of float32
	QuantizedNormals   bool // int8 normals instead of float32
	VertexColors       bool // per-vertex RGBA float32 colors
}

// Capacity is the size of a set in vertices and indices.
type Capacity struct {
	Vertices int
	Indices  int
}

// Sizes are the float or index counts one geometry needs.
type Sizes struct {
	Vertices int // position components
	Normals  int // normal components
	Indices  int
	Colors   int // color components
}

// VertexCount is the number of vertices the sizes describe.
func (s Sizes) VertexCount() int {
	return max(s.Vertices, s.Normals) / 3
}
