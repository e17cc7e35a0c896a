package scenefile

import "github.com/pkg/errors"

// Mesh is raw triangle data.
type Mesh struct {
	Positions []float32
	Normals   []float32
	Colors    []float32
	Indices   []uint32
}

var boxFaces = [6]struct {
	normal [3]float32
	// corners as offsets in units of size, counter-clockwise seen from outside
	corners [4][3]float32
}{
	{[3]float32{1, 0, 0}, [4][3]float32{{1, 0, 0}, {1, 1, 0}, {1, 1, 1}, {1, 0, 1}}},
	{[3]float32{-1, 0, 0}, [4][3]float32{{0, 0, 0}, {0, 0, 1}, {0, 1, 1}, {0, 1, 0}}},
	{[3]float32{0, 1, 0}, [4][3]float32{{0, 1, 0}, {0, 1, 1}, {1, 1, 1}, {1, 1, 0}}},
	{[3]float32{0, -1, 0}, [4][3]float32{{0, 0, 0}, {1, 0, 0}, {1, 0, 1}, {0, 0, 1}}},
	{[3]float32{0, 0, 1}, [4][3]float32{{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1}}},
	{[3]float32{0, 0, -1}, [4][3]float32{{0, 0, 0}, {0, 1, 0}, {1, 1, 0}, {1, 0, 0}}},
}

// Box returns an axis aligned box from the origin to size with flat normals:
// 24 vertices and 12 triangles.
func Box(size [3]float32) Mesh {
	m := Mesh{
		Positions: make([]float32, 0, 24*3),
		Normals:   make([]float32, 0, 24*3),
		Indices:   make([]uint32, 0, 36),
	}
	for _, f := range boxFaces {
		base := uint32(len(m.Positions) / 3)
		for _, c := range f.corners {
			m.Positions = append(m.Positions, c[0]*size[0], c[1]*size[1], c[2]*size[2])
			m.Normals = append(m.Normals, f.normal[:]...)
		}
		m.Indices = append(m.Indices, base, base+1, base+2, base, base+2, base+3)
	}
	return m
}

// Plane returns a quad in the XY plane from the origin to size, facing +Z.
func Plane(size [3]float32) Mesh {
	return Mesh{
		Positions: []float32{0, 0, 0, size[0], 0, 0, size[0], size[1], 0, 0, size[1], 0},
		Normals:   []float32{0, 0, 1, 0, 0, 1, 0, 0, 1, 0, 0, 1},
		Indices:   []uint32{0, 1, 2, 0, 2, 3},
	}
}

// Mesh resolves the geometry's triangle data, generating a shape when one
// is named.
func (g *Geometry) Mesh() (Mesh, error) {
	size := g.Size
	if size == ([3]float32{}) {
		size = [3]float32{1, 1, 1}
	}

	var m Mesh
	switch g.Shape {
	case "":
		m = Mesh{Positions: g.Positions, Normals: g.Normals, Colors: g.Colors, Indices: g.Indices}
		if len(m.Normals) == 0 {
			m.Normals = make([]float32, len(m.Positions))
		}
	case "box":
		m = Box(size)
	case "plane":
		m = Plane(size)
	default:
		return Mesh{}, errors.Wrapf(ErrUnknownShape, "geometry %d: %q", g.ID, g.Shape)
	}

	if len(m.Indices) < 3 || len(m.Positions) < 9 {
		return Mesh{}, errors.Wrapf(ErrEmptyGeometry, "geometry %d", g.ID)
	}
	return m, nil
}
