// Package gpu describes the device surface the render layer draws through.
// The types here carry no cgo dependency; the OpenGL backend lives in
// package gldevice and the in-memory Recorder in this package.
package gpu

import (
	stderrors "errors"

	"github.com/Faultbox/bimstream/pkg/math"
)

// Handle names a device object (buffer or vertex array). Zero is never valid.
type Handle uint32

// BufferTarget selects the binding point of a device buffer.
type BufferTarget int

const (
	ArrayBuffer BufferTarget = iota
	ElementArrayBuffer
	UniformBuffer
)

// ComponentType is the element type of an attribute or index buffer.
type ComponentType int

const (
	Float ComponentType = iota
	Short
	Byte
	UnsignedShort
	UnsignedInt
)

// Size returns the byte width of one component.
func (c ComponentType) Size() int {
	switch c {
	case Byte:
		return 1
	case Short, UnsignedShort:
		return 2
	default:
		return 4
	}
}

func (c ComponentType) String() string {
	switch c {
	case Float:
		return "float"
	case Short:
		return "short"
	case Byte:
		return "byte"
	case UnsignedShort:
		return "ushort"
	case UnsignedInt:
		return "uint"
	default:
		return "unknown"
	}
}

// ErrOutOfMemory is returned when the device cannot allocate a buffer.
var ErrOutOfMemory = stderrors.New("gpu: out of memory")

// AttribPointer binds one vertex attribute to a slice of a buffer.
type AttribPointer struct {
	Location   uint32
	Buffer     Handle
	Components int32
	Type       ComponentType
	Integer    bool // use the integer pipeline (quantized data read as ivec)
	Normalize  bool
	Stride     int32
	Offset     int
	Divisor    uint32 // 0 = per vertex, 1 = per instance
}

// VertexLayout is everything a vertex array object records.
type VertexLayout struct {
	Attribs  []AttribPointer
	Elements Handle
}

// Device is the subset of a GPU API the render layer needs.
// Buffers are created once from CPU data and never modified afterwards.
type Device interface {
	// CreateBuffer uploads data ([]float32, []int16, []int8, []uint16 or
	// []uint32) into a new static buffer.
	CreateBuffer(target BufferTarget, data any) (Handle, error)
	CreateVertexArray(layout VertexLayout) (Handle, error)
	DeleteBuffers(handles ...Handle)
	DeleteVertexArray(h Handle)

	UseProgram(program uint32)
	BindUniformBlock(binding uint32, buffer Handle)
	UniformMatrix4(location int32, m math.Mat4)
	Uniform4(location int32, v [4]float32)

	DrawElements(vao Handle, count int32, indexType ComponentType)
	DrawElementsInstanced(vao Handle, count int32, indexType ComponentType, instances int32)
}
