package layer

import (
	"github.com/Faultbox/bimstream/internal/batch"
	"github.com/Faultbox/bimstream/pkg/math"
)

// invisibleTypes are object types whose geometry is counted but never drawn.
var invisibleTypes = map[string]bool{
	"IfcOpeningElement": true,
	"IfcSpace":          true,
}

// Visible reports whether objects of type typ are drawn.
func Visible(typ string) bool {
	return !invisibleTypes[typ]
}

// Session is the state of one loader between its first message and Done.
type Session struct {
	ID   int
	Roid int64

	objects    map[int64]*Object
	geometries map[int64]*Geometry
}

func newSession(id int, roid int64) *Session {
	return &Session{
		ID:         id,
		Roid:       roid,
		objects:    make(map[int64]*Object),
		geometries: make(map[int64]*Geometry),
	}
}

// Pending is the number of geometries still held by the session.
func (s *Session) Pending() int {
	return len(s.geometries)
}

// ObjectData describes an object as announced by the loader.
type ObjectData struct {
	Roid            int64
	Oid             int64
	ID              int64
	GeometryIDs     []int64
	Matrix          math.Mat4
	ScaleMatrix     math.Mat4
	HasTransparency bool
	Type            string
}

// Object is a placed instance referencing geometry by id.
type Object struct {
	ID              int64
	Oid             int64
	Roid            int64
	Type            string
	Visible         bool
	HasTransparency bool
	Matrix          math.Mat4
	ScaleMatrix     math.Mat4
	// Geometry lists the ids batched for this object.
	Geometry []int64

	layer   *Layer
	session *Session
	active  bool
}

// Add attaches a geometry that arrived after the object. It fails with
// ErrObjectImmutable once the object's session is done and with ErrClosed
// once the layer is closed.
func (o *Object) Add(geometryID int64) error {
	o.layer.mu.Lock()
	defer o.layer.mu.Unlock()
	if o.layer.closed {
		return ErrClosed
	}
	if !o.active {
		return ErrObjectImmutable
	}
	return o.layer.addGeometryToObject(geometryID, o, o.session)
}

// GeometryData is a geometry as streamed by the loader. Positions and
// normals hold quantized integers when the loader quantizes.
type GeometryData struct {
	ID        int64
	Roid      int64
	Positions []float32
	Normals   []float32
	Colors    []float32 // optional RGBA per vertex
	Indices   []uint32

	Color           batch.Color
	HasTransparency bool
	// Reused is the number of objects expected to reference the geometry.
	Reused int
}

// Geometry is a registered GeometryData plus its reuse bookkeeping.
type Geometry struct {
	GeometryData

	// ReuseMaterialized counts references seen so far.
	ReuseMaterialized int
	// Matrices are the pending instance transforms of reused geometry.
	Matrices []math.Mat4
	// IsReused is decided once, when the geometry is created.
	IsReused bool
	// Bytes is the CPU size of the geometry.
	Bytes int

	attached int
}

// VertexCount is the number of vertices.
func (g *Geometry) VertexCount() int {
	return len(g.Positions) / 3
}

// Triangles is the number of triangles.
func (g *Geometry) Triangles() int {
	return len(g.Indices) / 3
}

func (g *Geometry) sizes(vertexColors bool) batch.Sizes {
	s := batch.Sizes{
		Vertices: len(g.Positions),
		Normals:  len(g.Normals),
		Indices:  len(g.Indices),
	}
	if vertexColors {
		s.Colors = g.VertexCount() * 4
	}
	return s
}
