package gpu

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/Faultbox/bimstream/pkg/math"
)

// Upload is a buffer captured by the Recorder.
type Upload struct {
	Target BufferTarget
	Type   ComponentType
	Data   any // private copy of the uploaded slice
	Bytes  int
}

// Op identifies a recorded call.
type Op int

const (
	OpUseProgram Op = iota
	OpBindUniformBlock
	OpUniformMatrix4
	OpUniform4
	OpDrawElements
	OpDrawElementsInstanced
)

// Call is one recorded state change or draw.
type Call struct {
	Op        Op
	Program   uint32
	Location  int32
	Matrix    math.Mat4
	Vec4      [4]float32
	Binding   uint32
	Buffer    Handle
	VAO       Handle
	Count     int32
	IndexType ComponentType
	Instances int32
}

// Recorder is a headless Device. It keeps copies of every upload and a log
// of draw-time calls, which makes it the device of choice for tests and for
// benchmark runs without a window.
type Recorder struct {
	mu      sync.Mutex
	next    Handle
	buffers map[Handle]Upload
	arrays  map[Handle]VertexLayout
	calls   []Call

	// FailAfter makes CreateBuffer fail with ErrOutOfMemory once this many
	// buffers exist. Zero disables the limit.
	FailAfter int
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		buffers: make(map[Handle]Upload),
		arrays:  make(map[Handle]VertexLayout),
	}
}

func (r *Recorder) handle() Handle {
	r.next++
	return r.next
}

// CreateBuffer implements Device.
func (r *Recorder) CreateBuffer(target BufferTarget, data any) (Handle, error) {
	size, typ, err := SizeOf(data)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailAfter > 0 && len(r.buffers) >= r.FailAfter {
		return 0, errors.Wrapf(ErrOutOfMemory, "allocating %d bytes", size)
	}
	h := r.handle()
	r.buffers[h] = Upload{Target: target, Type: typ, Data: cloneData(data), Bytes: size}
	return h, nil
}

// CreateVertexArray implements Device.
func (r *Recorder) CreateVertexArray(layout VertexLayout) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range layout.Attribs {
		if _, ok := r.buffers[a.Buffer]; !ok {
			return 0, errors.Errorf("vertex array: attribute %d references unknown buffer %d", a.Location, a.Buffer)
		}
	}
	if layout.Elements != 0 {
		if _, ok := r.buffers[layout.Elements]; !ok {
			return 0, errors.Errorf("vertex array: unknown element buffer %d", layout.Elements)
		}
	}
	h := r.handle()
	r.arrays[h] = VertexLayout{
		Attribs:  append([]AttribPointer(nil), layout.Attribs...),
		Elements: layout.Elements,
	}
	return h, nil
}

// DeleteBuffers implements Device.
func (r *Recorder) DeleteBuffers(handles ...Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range handles {
		delete(r.buffers, h)
	}
}

// DeleteVertexArray implements Device.
func (r *Recorder) DeleteVertexArray(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.arrays, h)
}

func (r *Recorder) record(c Call) {
	r.mu.Lock()
	r.calls = append(r.calls, c)
	r.mu.Unlock()
}

// UseProgram implements Device.
func (r *Recorder) UseProgram(program uint32) {
	r.record(Call{Op: OpUseProgram, Program: program})
}

// BindUniformBlock implements Device.
func (r *Recorder) BindUniformBlock(binding uint32, buffer Handle) {
	r.record(Call{Op: OpBindUniformBlock, Binding: binding, Buffer: buffer})
}

// UniformMatrix4 implements Device.
func (r *Recorder) UniformMatrix4(location int32, m math.Mat4) {
	r.record(Call{Op: OpUniformMatrix4, Location: location, Matrix: m})
}

// Uniform4 implements Device.
func (r *Recorder) Uniform4(location int32, v [4]float32) {
	r.record(Call{Op: OpUniform4, Location: location, Vec4: v})
}

// DrawElements implements Device.
func (r *Recorder) DrawElements(vao Handle, count int32, indexType ComponentType) {
	r.record(Call{Op: OpDrawElements, VAO: vao, Count: count, IndexType: indexType})
}

// DrawElementsInstanced implements Device.
func (r *Recorder) DrawElementsInstanced(vao Handle, count int32, indexType ComponentType, instances int32) {
	r.record(Call{Op: OpDrawElementsInstanced, VAO: vao, Count: count, IndexType: indexType, Instances: instances})
}

// Buffer returns the upload behind h.
func (r *Recorder) Buffer(h Handle) (Upload, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.buffers[h]
	return u, ok
}

// VertexArray returns the layout recorded for h.
func (r *Recorder) VertexArray(h Handle) (VertexLayout, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.arrays[h]
	return l, ok
}

// LiveBuffers returns the number of buffers not yet deleted.
func (r *Recorder) LiveBuffers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buffers)
}

// LiveVertexArrays returns the number of vertex arrays not yet deleted.
func (r *Recorder) LiveVertexArrays() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.arrays)
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// CallsOf returns the recorded calls with the given op.
func (r *Recorder) CallsOf(op Op) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// ResetCalls clears the call log but keeps buffers.
func (r *Recorder) ResetCalls() {
	r.mu.Lock()
	r.calls = nil
	r.mu.Unlock()
}
