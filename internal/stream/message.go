// Package stream carries loader messages over a websocket: a Server replays
// a scene to every client, a Client reads messages into a channel, and a
// Dispatcher applies them to a render layer on the owner goroutine.
package stream

import (
	"errors"
	"fmt"

	"github.com/Faultbox/bimstream/internal/quantize"
)

// Kind is the message type.
type Kind string

const (
	KindSession  Kind = "session"
	KindGeometry Kind = "geometry"
	KindObject   Kind = "object"
	KindAttach   Kind = "attach"
	KindDone     Kind = "done"
	KindComplete Kind = "complete"
)

// ErrUnknownMessage is returned for a message kind the dispatcher does not
// handle or a message missing its payload.
var ErrUnknownMessage = errors.New("stream: unknown message")

// Message is one loader event. Exactly the payload matching Kind is set.
type Message struct {
	Kind   Kind `json:"kind"`
	Loader int  `json:"loader,omitempty"`

	Session  *Session  `json:"session,omitempty"`
	Geometry *Geometry `json:"geometry,omitempty"`
	Object   *Object   `json:"object,omitempty"`
	Attach   *Attach   `json:"attach,omitempty"`
}

// Session opens a loader session for one revision.
type Session struct {
	Roid int64 `json:"roid"`
	// Bounds of the revision in loader coordinates, for quantization.
	Bounds *quantize.Bounds `json:"bounds,omitempty"`
	// Scene bounds after object transforms.
	Global *quantize.Bounds `json:"global,omitempty"`
}

// Geometry is a streamed geometry.
type Geometry struct {
	ID          int64      `json:"id"`
	Roid        int64      `json:"roid,omitempty"`
	Positions   []float32  `json:"positions"`
	Normals     []float32  `json:"normals"`
	Colors      []float32  `json:"colors,omitempty"`
	Indices     []uint32   `json:"indices"`
	Color       [4]float32 `json:"color"`
	Transparent bool       `json:"transparent,omitempty"`
	Reused      int        `json:"reused,omitempty"`
}

// Object is a streamed object placement.
type Object struct {
	ID          int64       `json:"id"`
	Oid         int64       `json:"oid"`
	Roid        int64       `json:"roid,omitempty"`
	Type        string      `json:"type"`
	Geometry    []int64     `json:"geometry,omitempty"`
	Matrix      [16]float32 `json:"matrix"`
	Transparent bool        `json:"transparent,omitempty"`
}

// Attach adds a late geometry to an object.
type Attach struct {
	Object   int64 `json:"object"`
	Geometry int64 `json:"geometry"`
}

// Validate checks that the payload matching Kind is present.
func (m Message) Validate() error {
	var ok bool
	switch m.Kind {
	case KindSession:
		ok = m.Session != nil
	case KindGeometry:
		ok = m.Geometry != nil
	case KindObject:
		ok = m.Object != nil
	case KindAttach:
		ok = m.Attach != nil
	case KindDone, KindComplete:
		ok = true
	default:
		return fmt.Errorf("%w: kind %q", ErrUnknownMessage, m.Kind)
	}
	if !ok {
		return fmt.Errorf("%w: %s without payload", ErrUnknownMessage, m.Kind)
	}
	return nil
}
