// Package quantize converts geometry between the loader's coordinate format
// and the render format, with optional 16-bit vertex and 8-bit normal
// quantization.
package quantize

import (
	"sync"

	"github.com/Faultbox/bimstream/pkg/math"
)

// VertexRange is the largest magnitude of a quantized vertex component.
const VertexRange = 32767

// NormalRange is the largest magnitude of a quantized normal component.
const NormalRange = 127

// Basis supplies the quantization matrices. Untransformed matrices map the
// model-space bounds of one revision (roid); the transformed pair maps the
// scene-wide bounds after object transforms are applied.
type Basis interface {
	UntransformedQuantizationMatrix(roid int64) math.Mat4
	UntransformedInverseQuantizationMatrix(roid int64) math.Mat4
	TransformedQuantizationMatrix() math.Mat4
	TransformedInverseQuantizationMatrix() math.Mat4
}

// Bounds is an axis-aligned box.
type Bounds struct {
	Min [3]float32 `yaml:"min" json:"min"`
	Max [3]float32 `yaml:"max" json:"max"`
}

// Include grows b to contain p.
func (b *Bounds) Include(p [3]float32) {
	for i := range 3 {
		b.Min[i] = min(b.Min[i], p[i])
		b.Max[i] = max(b.Max[i], p[i])
	}
}

// Matrices returns the matrix mapping b onto [-VertexRange, VertexRange]
// on every axis, and its inverse. Degenerate axes keep unit scale.
func (b Bounds) Matrices() (q, inv math.Mat4) {
	var s, c [3]float32
	for i := range 3 {
		c[i] = (b.Min[i] + b.Max[i]) / 2
		extent := b.Max[i] - b.Min[i]
		s[i] = 1
		if extent > 0 {
			s[i] = 2 * VertexRange / extent
		}
	}
	q = math.Scale(s[0], s[1], s[2]).Mul(math.Translate(-c[0], -c[1], -c[2]))
	inv = math.Translate(c[0], c[1], c[2]).Mul(math.Scale(1/s[0], 1/s[1], 1/s[2]))
	return q, inv
}

type pair struct {
	q, inv math.Mat4
}

// Table is a Basis keyed by roid. Unknown roids map through the identity.
type Table struct {
	mu     sync.RWMutex
	roids  map[int64]pair
	global pair
}

// NewTable creates a table with identity matrices everywhere.
func NewTable() *Table {
	return &Table{
		roids:  make(map[int64]pair),
		global: pair{math.Identity(), math.Identity()},
	}
}

// Register sets the untransformed basis of roid from its model-space bounds.
func (t *Table) Register(roid int64, b Bounds) {
	q, inv := b.Matrices()
	t.mu.Lock()
	t.roids[roid] = pair{q, inv}
	t.mu.Unlock()
}

// SetGlobal sets the transformed basis from the scene-wide bounds.
func (t *Table) SetGlobal(b Bounds) {
	q, inv := b.Matrices()
	t.mu.Lock()
	t.global = pair{q, inv}
	t.mu.Unlock()
}

func (t *Table) lookup(roid int64) pair {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if p, ok := t.roids[roid]; ok {
		return p
	}
	return pair{math.Identity(), math.Identity()}
}

func (t *Table) UntransformedQuantizationMatrix(roid int64) math.Mat4 {
	return t.lookup(roid).q
}

func (t *Table) UntransformedInverseQuantizationMatrix(roid int64) math.Mat4 {
	return t.lookup(roid).inv
}

func (t *Table) TransformedQuantizationMatrix() math.Mat4 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.global.q
}

func (t *Table) TransformedInverseQuantizationMatrix() math.Mat4 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.global.inv
}
