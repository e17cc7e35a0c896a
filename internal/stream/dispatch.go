package stream

import (
	"errors"
	"fmt"

	"github.com/Faultbox/bimstream/internal/batch"
	"github.com/Faultbox/bimstream/internal/layer"
	"github.com/Faultbox/bimstream/internal/quantize"
	"github.com/Faultbox/bimstream/pkg/math"
)

// ErrGlobalBasisChanged is returned when a session announces scene bounds
// different from the ones batched geometry was already quantized with.
var ErrGlobalBasisChanged = errors.New("stream: scene bounds changed")

// Dispatcher applies messages to a layer. Table, when set, receives the
// quantization bounds announced by session messages. The scene bounds are
// fixed by the first session that carries them.
type Dispatcher struct {
	Layer *layer.Layer
	Table *quantize.Table

	global *quantize.Bounds
}

// Apply runs one message against the layer.
func (d *Dispatcher) Apply(msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	switch msg.Kind {
	case KindSession:
		s := msg.Session
		if d.Table != nil {
			if s.Bounds != nil {
				d.Table.Register(s.Roid, *s.Bounds)
			}
			if err := d.setGlobal(s.Global); err != nil {
				return err
			}
		}
		_, err := d.Layer.BeginSession(msg.Loader, s.Roid)
		return err

	case KindGeometry:
		g := msg.Geometry
		_, err := d.Layer.CreateGeometry(msg.Loader, layer.GeometryData{
			ID:              g.ID,
			Roid:            g.Roid,
			Positions:       g.Positions,
			Normals:         g.Normals,
			Colors:          g.Colors,
			Indices:         g.Indices,
			Color:           batch.Color{R: g.Color[0], G: g.Color[1], B: g.Color[2], A: g.Color[3]},
			HasTransparency: g.Transparent,
			Reused:          g.Reused,
		})
		if err != nil {
			return fmt.Errorf("geometry %d: %w", g.ID, err)
		}
		return nil

	case KindObject:
		o := msg.Object
		matrix := math.Mat4(o.Matrix)
		if matrix == (math.Mat4{}) {
			matrix = math.Identity()
		}
		_, err := d.Layer.CreateObject(msg.Loader, layer.ObjectData{
			Roid:            o.Roid,
			Oid:             o.Oid,
			ID:              o.ID,
			GeometryIDs:     o.Geometry,
			Matrix:          matrix,
			ScaleMatrix:     math.Identity(),
			HasTransparency: o.Transparent,
			Type:            o.Type,
		})
		if err != nil {
			return fmt.Errorf("object %d: %w", o.ID, err)
		}
		return nil

	case KindAttach:
		return d.Layer.AddGeometryToObject(msg.Loader, msg.Attach.Geometry, msg.Attach.Object)

	case KindDone:
		return d.Layer.Done(msg.Loader)

	default:
		return d.Layer.CompletelyDone()
	}
}

func (d *Dispatcher) setGlobal(b *quantize.Bounds) error {
	switch {
	case b == nil:
		return nil
	case d.global == nil:
		g := *b
		d.global = &g
		d.Table.SetGlobal(g)
		return nil
	case *d.global != *b:
		return fmt.Errorf("%w: %v, first announced %v", ErrGlobalBasisChanged, *b, *d.global)
	}
	return nil
}

// ApplyAll applies messages in order and stops at the first error.
func (d *Dispatcher) ApplyAll(msgs []Message) error {
	for i, m := range msgs {
		if err := d.Apply(m); err != nil {
			return fmt.Errorf("message %d (%s): %w", i, m.Kind, err)
		}
	}
	return nil
}
