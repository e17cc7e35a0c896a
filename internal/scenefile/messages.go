package scenefile

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"

	"github.com/Faultbox/bimstream/internal/quantize"
	"github.com/Faultbox/bimstream/internal/stream"
	"github.com/Faultbox/bimstream/pkg/math"
)

// Options control how a scene is turned into messages.
type Options struct {
	// GeometryLast streams every object before any geometry; geometry is
	// then linked with attach messages, the way a loader that receives
	// objects ahead of their data behaves.
	GeometryLast bool
	// QuantizeVertices and QuantizeNormals emit data the way a quantizing
	// loader would: positions in the roid's quantized space, normals
	// scaled to the 8-bit range.
	QuantizeVertices bool
	QuantizeNormals  bool
}

// ModelMatrix returns the object's placement.
func (o *Object) ModelMatrix() math.Mat4 {
	if o.Matrix != nil {
		return math.Mat4(*o.Matrix)
	}

	scale := o.Scale
	if scale == ([3]float32{}) {
		scale = [3]float32{1, 1, 1}
	}
	return math.TRS(math.V3(o.Translation), o.Rotation.quat(), math.V3(scale))
}

func (r *Rotation) quat() math.Quat {
	switch {
	case r == nil:
		return math.QuatIdentity()
	case r.Quaternion != nil:
		q := r.Quaternion
		return math.Quat{X: q[0], Y: q[1], Z: q[2], W: q[3]}.Normalize()
	case r.Axis == [3]float32{}:
		return math.QuatIdentity()
	default:
		return math.QuatFromAxisAngle(math.V3(r.Axis), r.Angle*math32.Pi/180)
	}
}

// DefaultColor is used for geometry without a color.
var DefaultColor = [4]float32{0.8, 0.8, 0.8, 1}

func (g *Geometry) color() [4]float32 {
	if g.Color == ([4]float32{}) {
		return DefaultColor
	}
	return g.Color
}

type resolved struct {
	geometry *Geometry
	mesh     Mesh
	refs     int
	objects  []*Object
}

// Messages converts the scene into the loader message stream, ending with a
// complete message. Sessions stream one after the other.
func (s *Scene) Messages(opts Options) ([]stream.Message, error) {
	var global *quantize.Bounds
	resolvedSessions := make([]map[int64]*resolved, len(s.Sessions))

	for i, sess := range s.Sessions {
		geoms, err := sess.resolve()
		if err != nil {
			return nil, errors.Wrapf(err, "session %d", sess.Loader)
		}
		resolvedSessions[i] = geoms

		for _, o := range sess.Objects {
			m := o.ModelMatrix()
			for _, id := range o.Geometry {
				global = includeMesh(global, geoms[id].mesh.Positions, m)
			}
		}
	}

	var msgs []stream.Message
	for i, sess := range s.Sessions {
		geoms := resolvedSessions[i]

		var bounds *quantize.Bounds
		for _, g := range sess.Geometries {
			bounds = includeMesh(bounds, geoms[g.ID].mesh.Positions, math.Identity())
		}

		open := &stream.Session{Roid: sess.Roid, Bounds: bounds}
		if i == 0 {
			open.Global = global
		}
		msgs = append(msgs, stream.Message{Kind: stream.KindSession, Loader: sess.Loader, Session: open})

		var q math.Mat4
		if bounds != nil {
			q, _ = bounds.Matrices()
		}

		geometry := func(g *Geometry) stream.Message {
			r := geoms[g.ID]
			return stream.Message{Kind: stream.KindGeometry, Loader: sess.Loader, Geometry: &stream.Geometry{
				ID:          g.ID,
				Roid:        sess.Roid,
				Positions:   quantizePositions(r.mesh.Positions, q, opts.QuantizeVertices),
				Normals:     quantizeNormals(r.mesh.Normals, opts.QuantizeNormals),
				Colors:      r.mesh.Colors,
				Indices:     r.mesh.Indices,
				Color:       g.color(),
				Transparent: g.Transparent || g.color()[3] < 1,
				Reused:      r.refs,
			}}
		}
		object := func(o *Object, withGeometry bool) stream.Message {
			oid := o.Oid
			if oid == 0 {
				oid = o.ID
			}
			payload := &stream.Object{
				ID:          o.ID,
				Oid:         oid,
				Roid:        sess.Roid,
				Type:        o.Type,
				Matrix:      o.ModelMatrix(),
				Transparent: o.Transparent,
			}
			if withGeometry {
				payload.Geometry = o.Geometry
			}
			return stream.Message{Kind: stream.KindObject, Loader: sess.Loader, Object: payload}
		}

		if opts.GeometryLast {
			for _, o := range sess.Objects {
				msgs = append(msgs, object(o, false))
			}
			for _, g := range sess.Geometries {
				msgs = append(msgs, geometry(g))
				for _, o := range geoms[g.ID].objects {
					msgs = append(msgs, stream.Message{
						Kind:   stream.KindAttach,
						Loader: sess.Loader,
						Attach: &stream.Attach{Object: o.ID, Geometry: g.ID},
					})
				}
			}
		} else {
			for _, g := range sess.Geometries {
				msgs = append(msgs, geometry(g))
			}
			for _, o := range sess.Objects {
				msgs = append(msgs, object(o, true))
			}
		}

		msgs = append(msgs, stream.Message{Kind: stream.KindDone, Loader: sess.Loader})
	}

	msgs = append(msgs, stream.Message{Kind: stream.KindComplete})
	return msgs, nil
}

func (sess *Session) resolve() (map[int64]*resolved, error) {
	geoms := make(map[int64]*resolved, len(sess.Geometries))
	for _, g := range sess.Geometries {
		if _, ok := geoms[g.ID]; ok {
			return nil, errors.Wrapf(ErrDuplicateID, "geometry %d", g.ID)
		}
		mesh, err := g.Mesh()
		if err != nil {
			return nil, err
		}
		geoms[g.ID] = &resolved{geometry: g, mesh: mesh}
	}

	objects := make(map[int64]bool, len(sess.Objects))
	for _, o := range sess.Objects {
		if objects[o.ID] {
			return nil, errors.Wrapf(ErrDuplicateID, "object %d", o.ID)
		}
		objects[o.ID] = true
		for _, id := range o.Geometry {
			r, ok := geoms[id]
			if !ok {
				return nil, errors.Wrapf(ErrUnknownGeometry, "object %d: geometry %d", o.ID, id)
			}
			r.refs++
			r.objects = append(r.objects, o)
		}
	}

	for _, r := range geoms {
		if r.geometry.Reused > 0 {
			r.refs = r.geometry.Reused
		}
	}
	return geoms, nil
}

func includeMesh(b *quantize.Bounds, positions []float32, m math.Mat4) *quantize.Bounds {
	for i := 0; i+2 < len(positions); i += 3 {
		p := m.TransformPoint([3]float32{positions[i], positions[i+1], positions[i+2]})
		if b == nil {
			b = &quantize.Bounds{Min: p, Max: p}
			continue
		}
		b.Include(p)
	}
	return b
}

func quantizePositions(positions []float32, q math.Mat4, enabled bool) []float32 {
	if !enabled {
		return positions
	}
	out := make([]float32, len(positions))
	for i := 0; i+2 < len(positions); i += 3 {
		p := q.TransformPoint([3]float32{positions[i], positions[i+1], positions[i+2]})
		for j := range 3 {
			out[i+j] = float32(quantize.QuantizeVertex(p[j]))
		}
	}
	return out
}

func quantizeNormals(normals []float32, enabled bool) []float32 {
	if !enabled {
		return normals
	}
	out := make([]float32, len(normals))
	for i, n := range normals {
		out[i] = float32(quantize.QuantizeNormal(n * quantize.NormalRange))
	}
	return out
}
