package scenefile

import (
	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/Faultbox/bimstream/pkg/math"
)

// GLTFObjectType is the object type given to imported glTF nodes.
const GLTFObjectType = "IfcBuildingElementProxy"

// ImportGLTF appends the meshes and mesh nodes of a glTF file to sess. Each
// primitive becomes a geometry; every node instancing a mesh becomes an
// object, so meshes shared between nodes stream as reused geometry. New ids
// continue after the highest id already in the session.
func ImportGLTF(path string, sess *Session) error {
	doc, err := gltf.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open gltf %s", path)
	}
	return importDocument(doc, sess)
}

func importDocument(doc *gltf.Document, sess *Session) error {
	nextID := int64(0)
	for _, g := range sess.Geometries {
		nextID = max(nextID, g.ID)
	}
	for _, o := range sess.Objects {
		nextID = max(nextID, o.ID)
	}

	meshGeometry := make(map[uint32][]int64)
	for iMesh, mesh := range doc.Meshes {
		for iPrim, prim := range mesh.Primitives {
			g, err := readPrimitive(doc, prim)
			if err != nil {
				return errors.Wrapf(err, "mesh %d (%q) primitive %d", iMesh, mesh.Name, iPrim)
			}
			if g == nil {
				continue
			}
			nextID++
			g.ID = nextID
			sess.Geometries = append(sess.Geometries, g)
			meshGeometry[uint32(iMesh)] = append(meshGeometry[uint32(iMesh)], g.ID)
		}
	}

	var visit func(id uint32, parent math.Mat4)
	visit = func(id uint32, parent math.Mat4) {
		node := doc.Nodes[id]
		world := parent.Mul(nodeMatrix(node))
		if node.Mesh != nil && len(meshGeometry[*node.Mesh]) > 0 {
			nextID++
			matrix := [16]float32(world)
			sess.Objects = append(sess.Objects, &Object{
				ID:       nextID,
				Type:     GLTFObjectType,
				Geometry: meshGeometry[*node.Mesh],
				Matrix:   &matrix,
			})
		}
		for _, child := range node.Children {
			visit(child, world)
		}
	}

	for _, root := range sceneRoots(doc) {
		visit(root, math.Identity())
	}
	return nil
}

func sceneRoots(doc *gltf.Document) []uint32 {
	if len(doc.Scenes) == 0 {
		return nil
	}
	scene := 0
	if doc.Scene != nil {
		scene = int(*doc.Scene)
	}
	return doc.Scenes[scene].Nodes
}

func readPrimitive(doc *gltf.Document, prim *gltf.Primitive) (*Geometry, error) {
	if prim.Mode != gltf.PrimitiveTriangles {
		return nil, nil
	}
	posIdx, ok := prim.Attributes["POSITION"]
	if !ok {
		return nil, nil
	}

	positions, err := modeler.ReadPosition(doc, doc.Accessors[posIdx], nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read positions")
	}

	var normals [][3]float32
	if nrmIdx, ok := prim.Attributes["NORMAL"]; ok {
		normals, err = modeler.ReadNormal(doc, doc.Accessors[nrmIdx], nil)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read normals")
		}
	}

	var indices []uint32
	if prim.Indices != nil {
		indices, err = modeler.ReadIndices(doc, doc.Accessors[*prim.Indices], nil)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read indices")
		}
	} else {
		indices = make([]uint32, len(positions))
		for i := range indices {
			indices[i] = uint32(i)
		}
	}

	g := &Geometry{
		Positions: make([]float32, 0, len(positions)*3),
		Normals:   make([]float32, 0, len(positions)*3),
		Indices:   indices[:len(indices)/3*3],
	}
	for i, p := range positions {
		g.Positions = append(g.Positions, p[:]...)
		if i < len(normals) {
			g.Normals = append(g.Normals, normals[i][:]...)
		} else {
			g.Normals = append(g.Normals, 0, 0, 0)
		}
	}
	g.Color, g.Transparent = materialColor(doc, prim)
	return g, nil
}

func materialColor(doc *gltf.Document, prim *gltf.Primitive) ([4]float32, bool) {
	if prim.Material == nil || int(*prim.Material) >= len(doc.Materials) {
		return DefaultColor, false
	}
	mat := doc.Materials[*prim.Material]
	color := [4]float32{1, 1, 1, 1}
	if pbr := mat.PBRMetallicRoughness; pbr != nil && pbr.BaseColorFactor != nil {
		for i, c := range pbr.BaseColorFactor {
			color[i] = float32(c)
		}
	}
	return color, mat.AlphaMode == gltf.AlphaBlend || color[3] < 1
}

// nodeMatrix returns the node's local transform. glTF matrices are column
// major, the same layout as Mat4.
func nodeMatrix(node *gltf.Node) math.Mat4 {
	var m math.Mat4
	for i := range m {
		m[i] = float32(node.Matrix[i])
	}
	if m != (math.Mat4{}) && !m.IsIdentity() {
		return m
	}

	t := math.Vec3{X: float32(node.Translation[0]), Y: float32(node.Translation[1]), Z: float32(node.Translation[2])}
	r := math.Quat{
		X: float32(node.Rotation[0]), Y: float32(node.Rotation[1]),
		Z: float32(node.Rotation[2]), W: float32(node.Rotation[3]),
	}
	if r == (math.Quat{}) {
		r = math.QuatIdentity()
	}
	s := math.Vec3{X: float32(node.Scale[0]), Y: float32(node.Scale[1]), Z: float32(node.Scale[2])}
	if s == (math.Vec3{}) {
		s = math.Vec3{X: 1, Y: 1, Z: 1}
	}
	return math.TRS(t, r, s)
}
