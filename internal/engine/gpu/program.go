package gpu

// Capabilities selects a shader variant. A program is a pure function of
// these four flags.
type Capabilities struct {
	Instancing       bool
	UseObjectColors  bool
	QuantizeNormals  bool
	QuantizeVertices bool
}

// Bits packs the capabilities into a 4-bit variant index.
func (c Capabilities) Bits() uint32 {
	var b uint32
	if c.Instancing {
		b |= 1
	}
	if c.UseObjectColors {
		b |= 2
	}
	if c.QuantizeNormals {
		b |= 4
	}
	if c.QuantizeVertices {
		b |= 8
	}
	return b
}

// AttribLocations are the vertex attribute slots of a program.
// Instances occupies four consecutive slots starting at Instances.
type AttribLocations struct {
	VertexPosition uint32
	VertexNormal   uint32
	VertexColor    uint32
	Instances      uint32
}

// UniformLocations are the uniform slots of a program; -1 means inactive.
type UniformLocations struct {
	ProjectionMatrix         int32
	NormalMatrix             int32
	ModelViewMatrix          int32
	VertexQuantizationMatrix int32
	VertexColor              int32
}

// ProgramInfo is a linked program with its attribute and uniform mapping.
type ProgramInfo struct {
	Program          uint32
	Capabilities     Capabilities
	Attribs          AttribLocations
	Uniforms         UniformLocations
	LightDataBinding uint32
}

// Programs hands out shader variants.
type Programs interface {
	Program(c Capabilities) (*ProgramInfo, error)
}

// DefaultAttribLocations are the fixed layout locations used by every variant.
func DefaultAttribLocations() AttribLocations {
	return AttribLocations{
		VertexPosition: 0,
		VertexNormal:   1,
		VertexColor:    2,
		Instances:      3,
	}
}

// StaticPrograms serves ProgramInfo values without a GL context. Program ids
// are 1 + the variant bits, uniforms use fixed locations. Used for headless
// runs against a Recorder.
type StaticPrograms struct{}

// Program implements Programs.
func (StaticPrograms) Program(c Capabilities) (*ProgramInfo, error) {
	info := &ProgramInfo{
		Program:      1 + c.Bits(),
		Capabilities: c,
		Attribs:      DefaultAttribLocations(),
		Uniforms: UniformLocations{
			ProjectionMatrix:         0,
			NormalMatrix:             1,
			ModelViewMatrix:          2,
			VertexQuantizationMatrix: -1,
			VertexColor:              -1,
		},
	}
	if c.QuantizeVertices {
		info.Uniforms.VertexQuantizationMatrix = 3
	}
	if c.UseObjectColors {
		info.Uniforms.VertexColor = 4
	}
	return info, nil
}
