package layer

import (
	"github.com/Faultbox/bimstream/internal/batch"
	"github.com/Faultbox/bimstream/internal/engine/gpu"
	"github.com/Faultbox/bimstream/pkg/math"
)

// View holds the per-frame camera state and the light uniform buffer.
type View struct {
	Projection  math.Mat4
	ModelView   math.Mat4
	Normal      math.Mat4
	LightBuffer gpu.Handle
}

// NewView derives the normal matrix from modelView.
func NewView(projection, modelView math.Mat4, light gpu.Handle) View {
	return View{
		Projection:  projection,
		ModelView:   modelView,
		Normal:      modelView.NormalMatrix(),
		LightBuffer: light,
	}
}

// Render draws the buffers whose transparency matches, plain batches
// first, instanced ones second.
func (l *Layer) Render(transparency bool, view View) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}

	if len(l.buffers) > 0 {
		prog, err := l.beginPass(false, view)
		if err != nil {
			return err
		}
		var colors colorState
		for _, b := range l.buffers {
			if b.HasTransparency != transparency {
				continue
			}
			l.setColor(prog, &colors, b.Color, b.ColorHash)
			l.device.DrawElements(b.VAO, int32(b.NrIndices), gpu.UnsignedInt)
		}
	}

	if len(l.reused) > 0 {
		prog, err := l.beginPass(true, view)
		if err != nil {
			return err
		}
		var colors colorState
		for _, b := range l.reused {
			if b.HasTransparency != transparency {
				continue
			}
			l.setColor(prog, &colors, b.Color, b.ColorHash)
			if l.settings.QuantizeVertices {
				l.device.UniformMatrix4(prog.Uniforms.VertexQuantizationMatrix, l.basis.UntransformedInverseQuantizationMatrix(b.Roid))
			}
			l.device.DrawElementsInstanced(b.VAO, int32(b.NrIndices), b.IndexType, int32(b.NrProcessedMatrices))
		}
	}
	return nil
}

func (l *Layer) beginPass(instancing bool, view View) (*gpu.ProgramInfo, error) {
	prog, err := l.programs.Program(gpu.Capabilities{
		Instancing:       instancing,
		UseObjectColors:  l.settings.UseObjectColors,
		QuantizeNormals:  l.settings.QuantizeNormals,
		QuantizeVertices: l.settings.QuantizeVertices,
	})
	if err != nil {
		return nil, err
	}

	l.device.UseProgram(prog.Program)
	l.device.BindUniformBlock(prog.LightDataBinding, view.LightBuffer)
	l.device.UniformMatrix4(prog.Uniforms.ProjectionMatrix, view.Projection)
	l.device.UniformMatrix4(prog.Uniforms.NormalMatrix, view.Normal)
	l.device.UniformMatrix4(prog.Uniforms.ModelViewMatrix, view.ModelView)
	if l.settings.QuantizeVertices && !instancing {
		l.device.UniformMatrix4(prog.Uniforms.VertexQuantizationMatrix, l.basis.TransformedInverseQuantizationMatrix())
	}
	return prog, nil
}

type colorState struct {
	set  bool
	hash uint64
}

// setColor binds the object color unless the previous buffer of the pass
// had the same one.
func (l *Layer) setColor(prog *gpu.ProgramInfo, s *colorState, c batch.Color, hash uint64) {
	if !l.settings.UseObjectColors {
		return
	}
	if s.set && s.hash == hash {
		return
	}
	l.device.Uniform4(prog.Uniforms.VertexColor, c.Array())
	s.set, s.hash = true, hash
}
