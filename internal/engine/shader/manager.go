package shader

import (
	"fmt"
	"sync"

	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"github.com/Faultbox/bimstream/internal/engine/gpu"
	"github.com/Faultbox/bimstream/internal/engine/shader/shaders"
	"github.com/Faultbox/bimstream/internal/logger"
)

// LightDataBinding is the uniform buffer binding point of the LightData block.
const LightDataBinding = 0

// Manager compiles program variants on first use and caches them.
// It must only be used on the thread that owns the GL context.
type Manager struct {
	mu       sync.Mutex
	programs map[uint32]*gpu.ProgramInfo
	log      *zap.Logger
}

// NewManager creates an empty variant cache.
func NewManager() *Manager {
	return &Manager{
		programs: make(map[uint32]*gpu.ProgramInfo),
		log:      logger.Named("shader"),
	}
}

// Program implements gpu.Programs.
func (m *Manager) Program(c gpu.Capabilities) (*gpu.ProgramInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if info, ok := m.programs[c.Bits()]; ok {
		return info, nil
	}

	vert := shaders.Specialize(shaders.BatchVertexShader, c)
	frag := shaders.Specialize(shaders.BatchFragmentShader, c)
	program, err := CompileProgram(vert, frag)
	if err != nil {
		return nil, fmt.Errorf("compiling variant %04b: %w", c.Bits(), err)
	}

	block := gl.GetUniformBlockIndex(program, gl.Str("LightData\x00"))
	if block != gl.INVALID_INDEX {
		gl.UniformBlockBinding(program, block, LightDataBinding)
	}

	info := &gpu.ProgramInfo{
		Program:      program,
		Capabilities: c,
		Attribs:      gpu.DefaultAttribLocations(),
		Uniforms: gpu.UniformLocations{
			ProjectionMatrix:         GetUniform(program, "projectionMatrix"),
			NormalMatrix:             GetUniform(program, "normalMatrix"),
			ModelViewMatrix:          GetUniform(program, "modelViewMatrix"),
			VertexQuantizationMatrix: GetUniform(program, "vertexQuantizationMatrix"),
			VertexColor:              GetUniform(program, "vertexColor"),
		},
		LightDataBinding: LightDataBinding,
	}
	m.programs[c.Bits()] = info

	m.log.Debug("compiled program variant",
		zap.Uint32("program", program),
		zap.Strings("defines", shaders.Defines(c)))
	return info, nil
}

// Close deletes all compiled programs.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for bits, info := range m.programs {
		gl.DeleteProgram(info.Program)
		delete(m.programs, bits)
	}
}
