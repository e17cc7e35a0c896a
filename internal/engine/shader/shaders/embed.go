// Package shaders provides the embedded GLSL sources of the batch programs
// and their variant specialization.
package shaders

import (
	_ "embed"
	"strings"

	"github.com/Faultbox/bimstream/internal/engine/gpu"
)

// BatchVertexShader is the vertex shader shared by all batch variants.
//
//go:embed batch.vert
var BatchVertexShader string

// BatchFragmentShader is the fragment shader shared by all batch variants.
//
//go:embed batch.frag
var BatchFragmentShader string

// Defines returns the preprocessor symbols of a variant.
func Defines(c gpu.Capabilities) []string {
	var defs []string
	if c.Instancing {
		defs = append(defs, "WITH_INSTANCING")
	}
	if c.UseObjectColors {
		defs = append(defs, "WITH_OBJECT_COLORS")
	}
	if c.QuantizeNormals {
		defs = append(defs, "QUANTIZE_NORMALS")
	}
	if c.QuantizeVertices {
		defs = append(defs, "QUANTIZE_VERTICES")
	}
	return defs
}

// Specialize inserts the variant's #define lines right after the #version
// directive, which GLSL requires to stay first.
func Specialize(src string, c gpu.Capabilities) string {
	var b strings.Builder
	for _, d := range Defines(c) {
		b.WriteString("#define ")
		b.WriteString(d)
		b.WriteByte('\n')
	}
	if b.Len() == 0 {
		return src
	}

	if strings.HasPrefix(src, "#version") {
		if i := strings.IndexByte(src, '\n'); i >= 0 {
			return src[:i+1] + b.String() + src[i+1:]
		}
		return src + "\n" + b.String()
	}
	return b.String() + src
}
