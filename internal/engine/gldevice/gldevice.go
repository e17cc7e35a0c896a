// Package gldevice implements gpu.Device on OpenGL 4.1 core.
// All methods must be called from the thread that owns the GL context.
package gldevice

import (
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Faultbox/bimstream/internal/engine/gpu"
	"github.com/Faultbox/bimstream/internal/logger"
	"github.com/Faultbox/bimstream/pkg/math"
)

// Device draws through the current OpenGL context.
type Device struct {
	log *zap.Logger
}

// New initializes the GL function pointers and returns a Device.
// IMPORTANT: Must be called AFTER the OpenGL context is created!
func New() (*Device, error) {
	if err := gl.Init(); err != nil {
		return nil, errors.Wrap(err, "failed to initialize OpenGL")
	}

	d := &Device{log: logger.Named("gl")}
	d.log.Info("OpenGL initialized",
		zap.String("version", gl.GoStr(gl.GetString(gl.VERSION))),
		zap.String("renderer", gl.GoStr(gl.GetString(gl.RENDERER))),
	)

	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LESS)
	gl.ClearColor(0.1, 0.1, 0.15, 1.0)

	return d, nil
}

func target(t gpu.BufferTarget) uint32 {
	switch t {
	case gpu.ElementArrayBuffer:
		return gl.ELEMENT_ARRAY_BUFFER
	case gpu.UniformBuffer:
		return gl.UNIFORM_BUFFER
	default:
		return gl.ARRAY_BUFFER
	}
}

func componentType(c gpu.ComponentType) uint32 {
	switch c {
	case gpu.Short:
		return gl.SHORT
	case gpu.Byte:
		return gl.BYTE
	case gpu.UnsignedShort:
		return gl.UNSIGNED_SHORT
	case gpu.UnsignedInt:
		return gl.UNSIGNED_INT
	default:
		return gl.FLOAT
	}
}

// CreateBuffer implements gpu.Device.
func (d *Device) CreateBuffer(t gpu.BufferTarget, data any) (gpu.Handle, error) {
	size, _, err := gpu.SizeOf(data)
	if err != nil {
		return 0, err
	}

	var h uint32
	gl.GenBuffers(1, &h)
	if h == 0 {
		return 0, errors.New("glGenBuffers returned no buffer")
	}

	var ptr unsafe.Pointer
	if size > 0 {
		ptr = gl.Ptr(data)
	}
	glTarget := target(t)
	gl.BindBuffer(glTarget, h)
	gl.BufferData(glTarget, size, ptr, gl.STATIC_DRAW)
	glErr := gl.GetError()
	gl.BindBuffer(glTarget, 0)

	if glErr == gl.OUT_OF_MEMORY {
		gl.DeleteBuffers(1, &h)
		return 0, errors.Wrapf(gpu.ErrOutOfMemory, "uploading %d bytes", size)
	}
	if glErr != gl.NO_ERROR {
		gl.DeleteBuffers(1, &h)
		return 0, errors.Errorf("glBufferData failed: 0x%x", glErr)
	}
	return gpu.Handle(h), nil
}

// CreateVertexArray implements gpu.Device.
func (d *Device) CreateVertexArray(layout gpu.VertexLayout) (gpu.Handle, error) {
	var vao uint32
	gl.GenVertexArrays(1, &vao)
	if vao == 0 {
		return 0, errors.New("glGenVertexArrays returned no vertex array")
	}
	gl.BindVertexArray(vao)

	for _, a := range layout.Attribs {
		gl.BindBuffer(gl.ARRAY_BUFFER, uint32(a.Buffer))
		if a.Integer {
			gl.VertexAttribIPointerWithOffset(a.Location, a.Components, componentType(a.Type), a.Stride, uintptr(a.Offset))
		} else {
			gl.VertexAttribPointerWithOffset(a.Location, a.Components, componentType(a.Type), a.Normalize, a.Stride, uintptr(a.Offset))
		}
		gl.EnableVertexAttribArray(a.Location)
		if a.Divisor > 0 {
			gl.VertexAttribDivisor(a.Location, a.Divisor)
		}
	}
	if layout.Elements != 0 {
		gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, uint32(layout.Elements))
	}

	gl.BindVertexArray(0)
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	return gpu.Handle(vao), nil
}

// DeleteBuffers implements gpu.Device.
func (d *Device) DeleteBuffers(handles ...gpu.Handle) {
	for _, h := range handles {
		if h == 0 {
			continue
		}
		id := uint32(h)
		gl.DeleteBuffers(1, &id)
	}
}

// DeleteVertexArray implements gpu.Device.
func (d *Device) DeleteVertexArray(h gpu.Handle) {
	if h == 0 {
		return
	}
	id := uint32(h)
	gl.DeleteVertexArrays(1, &id)
}

// UseProgram implements gpu.Device.
func (d *Device) UseProgram(program uint32) {
	gl.UseProgram(program)
}

// BindUniformBlock implements gpu.Device.
func (d *Device) BindUniformBlock(binding uint32, buffer gpu.Handle) {
	gl.BindBufferBase(gl.UNIFORM_BUFFER, binding, uint32(buffer))
}

// UniformMatrix4 implements gpu.Device.
func (d *Device) UniformMatrix4(location int32, m math.Mat4) {
	if location < 0 {
		return
	}
	gl.UniformMatrix4fv(location, 1, false, m.Ptr())
}

// Uniform4 implements gpu.Device.
func (d *Device) Uniform4(location int32, v [4]float32) {
	if location < 0 {
		return
	}
	gl.Uniform4fv(location, 1, &v[0])
}

// DrawElements implements gpu.Device.
func (d *Device) DrawElements(vao gpu.Handle, count int32, indexType gpu.ComponentType) {
	gl.BindVertexArray(uint32(vao))
	gl.DrawElementsWithOffset(gl.TRIANGLES, count, componentType(indexType), 0)
	gl.BindVertexArray(0)
}

// DrawElementsInstanced implements gpu.Device.
func (d *Device) DrawElementsInstanced(vao gpu.Handle, count int32, indexType gpu.ComponentType, instances int32) {
	gl.BindVertexArray(uint32(vao))
	gl.DrawElementsInstanced(gl.TRIANGLES, count, componentType(indexType), nil, instances)
	gl.BindVertexArray(0)
}

// Begin clears the frame.
func (d *Device) Begin() {
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
}

// Resize updates the viewport.
func (d *Device) Resize(width, height int) {
	gl.Viewport(0, 0, int32(width), int32(height))
	d.log.Debug("viewport resized",
		zap.Int("width", width),
		zap.Int("height", height),
	)
}

// SetBlending toggles alpha blending and depth writes for the transparent pass.
func (d *Device) SetBlending(enabled bool) {
	if enabled {
		gl.Enable(gl.BLEND)
		gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)
		gl.DepthMask(false)
		return
	}
	gl.Disable(gl.BLEND)
	gl.DepthMask(true)
}

// ReadPixels returns the back buffer as bottom-up RGBA rows.
func (d *Device) ReadPixels(width, height int) []byte {
	pixels := make([]byte, width*height*4)
	gl.PixelStorei(gl.PACK_ALIGNMENT, 1)
	gl.ReadPixels(0, 0, int32(width), int32(height), gl.RGBA, gl.UNSIGNED_BYTE, unsafe.Pointer(&pixels[0]))
	return pixels
}
