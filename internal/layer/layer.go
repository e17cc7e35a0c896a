// Package layer is the default render layer. It turns streamed geometry
// into a small number of device draw batches: per-object geometry is
// transformed into shared staging sets, geometry reused by many objects
// is uploaded once and drawn instanced.
package layer

import (
	"slices"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Faultbox/bimstream/internal/batch"
	"github.com/Faultbox/bimstream/internal/engine/gpu"
	"github.com/Faultbox/bimstream/internal/logger"
	"github.com/Faultbox/bimstream/internal/quantize"
	"github.com/Faultbox/bimstream/internal/telemetry"
)

var (
	// ErrObjectImmutable is returned by Object.Add after its session is done.
	ErrObjectImmutable = errors.New("layer: object session is done")
	// ErrSessionsActive is returned by CompletelyDone while loaders are open.
	ErrSessionsActive = errors.New("layer: loader sessions still active")
	// ErrUnknownSession is returned for a loader id with no open session.
	ErrUnknownSession = errors.New("layer: unknown loader session")
	// ErrInvalidGeometry is returned for inconsistent geometry arrays.
	ErrInvalidGeometry = errors.New("layer: invalid geometry")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("layer: closed")
)

// Deps are the collaborators of a Layer.
type Deps struct {
	Device   gpu.Device
	Programs gpu.Programs
	Basis    quantize.Basis
	Stats    telemetry.Sink
	// Pool is shared between layers; nil creates a private one.
	Pool   *batch.Pool
	Logger *zap.Logger
}

// Layer is the default render layer. All methods are safe to call from
// multiple goroutines; device calls happen on the caller's goroutine, so
// with a GL device every call must come from the thread owning the context.
type Layer struct {
	mu sync.Mutex

	settings    Settings
	device      gpu.Device
	programs    gpu.Programs
	basis       quantize.Basis
	transformer *quantize.Transformer
	stats       telemetry.Sink
	manager     *batch.Manager
	log         *zap.Logger

	sessions map[int]*Session
	buffers  []*Buffer
	reused   []*ReusedBuffer

	progress telemetry.ProgressFunc
	closed   bool
}

// New creates a render layer.
func New(settings Settings, deps Deps) *Layer {
	if settings.Reuse == nil {
		settings.Reuse = ThresholdPolicy{}
	}
	if settings.FlushThreshold <= 0 {
		settings.FlushThreshold = 1
	}
	if deps.Basis == nil {
		deps.Basis = quantize.NewTable()
	}
	if deps.Stats == nil {
		deps.Stats = telemetry.NewStats()
	}
	if deps.Pool == nil {
		deps.Pool = batch.NewPool(0)
	}
	if deps.Logger == nil {
		deps.Logger = logger.Named("layer")
	}

	l := &Layer{
		settings:    settings,
		device:      deps.Device,
		programs:    deps.Programs,
		basis:       deps.Basis,
		transformer: quantize.NewTransformer(settings.quantizeOptions(), deps.Basis),
		stats:       deps.Stats,
		log:         deps.Logger,
		sessions:    make(map[int]*Session),
	}
	l.manager = batch.NewManager(settings.batchOptions(), deps.Pool, batch.FlusherFunc(l.flushBufferSet))
	return l
}

// Settings returns the layer settings.
func (l *Layer) Settings() Settings {
	return l.settings
}

// SetProgressListener installs fn, called with loaded plus hidden
// primitives whenever either grows. fn runs with the layer locked and must
// not call back into it.
func (l *Layer) SetProgressListener(fn telemetry.ProgressFunc) {
	l.mu.Lock()
	l.progress = fn
	l.mu.Unlock()
}

func (l *Layer) reportProgress() {
	if l.progress == nil {
		return
	}
	l.progress(l.stats.Get(telemetry.Primitives, telemetry.MetricLoaded) +
		l.stats.Get(telemetry.Primitives, telemetry.MetricHidden))
}

// BeginSession opens the session of a loader. Sessions are also opened
// implicitly by the first object or geometry of a loader.
func (l *Layer) BeginSession(loaderID int, roid int64) (*Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	return l.session(loaderID, roid), nil
}

func (l *Layer) session(loaderID int, roid int64) *Session {
	s, ok := l.sessions[loaderID]
	if !ok {
		s = newSession(loaderID, roid)
		l.sessions[loaderID] = s
		l.log.Debug("session opened", zap.Int("loader", loaderID), zap.Int64("roid", roid))
	}
	return s
}

// ActiveSessions is the number of open loader sessions.
func (l *Layer) ActiveSessions() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sessions)
}

// CreateGeometry registers a streamed geometry in the loader's session and
// decides whether it will be instanced.
func (l *Layer) CreateGeometry(loaderID int, data GeometryData) (*Geometry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	if err := validate(&data); err != nil {
		return nil, err
	}

	s := l.session(loaderID, data.Roid)
	if data.Roid == 0 {
		data.Roid = s.Roid
	}

	g := &Geometry{GeometryData: data}
	g.IsReused = l.settings.Reuse.ShouldInstance(g.Reused, g.Triangles())
	g.Bytes = l.cpuBytes(g)
	s.geometries[g.ID] = g

	l.stats.Inc(telemetry.Data, telemetry.MetricCPUBytes, g.Bytes)
	return g, nil
}

func validate(d *GeometryData) error {
	switch {
	case len(d.Positions)%3 != 0:
		return errors.Wrapf(ErrInvalidGeometry, "geometry %d: %d position components", d.ID, len(d.Positions))
	case len(d.Normals) != len(d.Positions):
		return errors.Wrapf(ErrInvalidGeometry, "geometry %d: %d normals for %d positions", d.ID, len(d.Normals), len(d.Positions))
	case len(d.Indices)%3 != 0:
		return errors.Wrapf(ErrInvalidGeometry, "geometry %d: %d indices", d.ID, len(d.Indices))
	case len(d.Colors) != 0 && len(d.Colors) != len(d.Positions)/3*4:
		return errors.Wrapf(ErrInvalidGeometry, "geometry %d: %d colors for %d vertices", d.ID, len(d.Colors), len(d.Positions)/3)
	}
	n := uint32(len(d.Positions) / 3)
	for _, idx := range d.Indices {
		if idx >= n {
			return errors.Wrapf(ErrInvalidGeometry, "geometry %d: index %d out of %d vertices", d.ID, idx, n)
		}
	}
	return nil
}

func (l *Layer) cpuBytes(g *Geometry) int {
	pos, nrm := 4, 4
	if l.settings.LoaderQuantizeVertices {
		pos = 2
	}
	if l.settings.LoaderQuantizeNormals {
		nrm = 1
	}
	return len(g.Positions)*pos + len(g.Normals)*nrm + len(g.Colors)*4 + len(g.Indices)*4
}

// CreateObject registers an object and attaches every geometry it names
// that is already known.
func (l *Layer) CreateObject(loaderID int, data ObjectData) (*Object, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}

	s := l.session(loaderID, data.Roid)
	o := &Object{
		ID:              data.ID,
		Oid:             data.Oid,
		Roid:            data.Roid,
		Type:            data.Type,
		Visible:         Visible(data.Type),
		HasTransparency: data.HasTransparency,
		Matrix:          data.Matrix,
		ScaleMatrix:     data.ScaleMatrix,
		layer:           l,
		session:         s,
		active:          true,
	}
	s.objects[o.ID] = o
	l.stats.Inc(telemetry.Models, telemetry.MetricObjects, 1)

	for _, id := range data.GeometryIDs {
		if err := l.addGeometryToObject(id, o, s); err != nil {
			return o, err
		}
	}
	return o, nil
}

// AddGeometryToObject attaches a geometry to an object of the loader's
// session. Unknown geometry ids are ignored.
func (l *Layer) AddGeometryToObject(loaderID int, geometryID, objectID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}

	s, ok := l.sessions[loaderID]
	if !ok {
		return errors.Wrapf(ErrUnknownSession, "loader %d", loaderID)
	}
	o, ok := s.objects[objectID]
	if !ok {
		l.log.Debug("attach to unknown object", zap.Int64("object", objectID), zap.Int64("geometry", geometryID))
		return nil
	}
	return l.addGeometryToObject(geometryID, o, s)
}

func (l *Layer) addGeometryToObject(geometryID int64, o *Object, s *Session) error {
	g, ok := s.geometries[geometryID]
	if !ok {
		l.log.Debug("unknown geometry", zap.Int64("geometry", geometryID), zap.Int64("object", o.ID))
		return nil
	}

	if o.Visible {
		if err := l.addGeometry(g, o); err != nil {
			return err
		}
		o.Geometry = append(o.Geometry, geometryID)
	} else {
		l.stats.Inc(telemetry.Primitives, telemetry.MetricHidden, g.Triangles())
		l.reportProgress()
	}

	if g.IsReused {
		g.ReuseMaterialized++
		if g.ReuseMaterialized == g.Reused {
			return l.addGeometryReusable(g, s)
		}
		return nil
	}

	// batched geometry is dropped once every expected reference was seen
	g.attached++
	if g.Reused > 0 && g.attached >= g.Reused {
		delete(s.geometries, g.ID)
	}
	return nil
}

// Done ends a loader session: reused geometry still waiting for
// references is materialized with the instances seen so far, objects stop
// accepting geometry, and the session is discarded. Done on an unknown or
// already finished session does nothing.
func (l *Layer) Done(loaderID int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.sessions[loaderID]
	if !ok {
		return nil
	}

	ids := make([]int64, 0, len(s.geometries))
	for id, g := range s.geometries {
		if g.IsReused {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	for _, id := range ids {
		if err := l.addGeometryReusable(s.geometries[id], s); err != nil {
			return err
		}
	}

	for _, o := range s.objects {
		o.active = false
	}
	delete(l.sessions, loaderID)

	l.log.Debug("session done",
		zap.Int("loader", loaderID),
		zap.Int("objects", len(s.objects)),
		zap.Int("materialized", len(ids)))
	return nil
}

// CompletelyDone flushes every staging set and releases the staging
// memory. With object colors, buffers are sorted so equal colors are
// adjacent.
func (l *Layer) CompletelyDone() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.sessions) > 0 {
		return errors.Wrapf(ErrSessionsActive, "%d open", len(l.sessions))
	}

	for set := range l.manager.AllBuffers() {
		if err := l.flushBufferSet(set); err != nil {
			return err
		}
	}
	if l.settings.UseObjectColors {
		l.sortBuffers()
	}
	l.manager.Clear()

	l.log.Info("loading complete",
		zap.Int("buffers", len(l.buffers)),
		zap.Int("reused_buffers", len(l.reused)))
	return nil
}

// Buffers returns the finalized batch buffers in draw order.
func (l *Layer) Buffers() []*Buffer {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.buffers)
}

// ReusedBuffers returns the instanced buffers in draw order.
func (l *Layer) ReusedBuffers() []*ReusedBuffer {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.reused)
}

// Close deletes every device resource. It is safe to call twice.
func (l *Layer) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true

	for _, b := range l.buffers {
		l.device.DeleteVertexArray(b.VAO)
		l.device.DeleteBuffers(b.handles()...)
	}
	for _, b := range l.reused {
		l.device.DeleteVertexArray(b.VAO)
		l.device.DeleteBuffers(b.handles()...)
	}
	l.buffers, l.reused = nil, nil
	l.manager.Clear()
	for _, s := range l.sessions {
		for _, o := range s.objects {
			o.active = false
		}
	}
	clear(l.sessions)
}
