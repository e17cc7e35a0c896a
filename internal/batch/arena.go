// Package batch stages transformed geometry in CPU-side buffer sets before
// it is flushed to the device, and decides when sets are allocated, reused
// or flushed.
package batch

import "errors"

// ErrOverflow is the panic value raised when an arena is written past its
// capacity. Callers size sets with Fits/Plan first, so hitting it is a bug.
var ErrOverflow = errors.New("batch: arena overflow")

// Arena is a fixed-capacity slab with an explicit fill cursor.
type Arena[T any] struct {
	data []T
	n    int
}

// NewArena allocates an arena holding up to capacity elements.
func NewArena[T any](capacity int) *Arena[T] {
	return &Arena[T]{data: make([]T, capacity)}
}

func (a *Arena[T]) Cap() int { return len(a.data) }
func (a *Arena[T]) Len() int { return a.n }
func (a *Arena[T]) Free() int { return len(a.data) - a.n }

// Append copies values after the cursor.
func (a *Arena[T]) Append(values ...T) {
	if len(values) > a.Free() {
		panic(ErrOverflow)
	}
	a.n += copy(a.data[a.n:], values)
}

// Data returns the occupied prefix. The slice aliases the arena.
func (a *Arena[T]) Data() []T {
	return a.data[:a.n]
}

// Reset rewinds the cursor without clearing memory.
func (a *Arena[T]) Reset() {
	a.n = 0
}

// AppendOffset appends indices shifted by offset.
func AppendOffset(a *Arena[uint32], indices []uint32, offset uint32) {
	if offset == 0 {
		a.Append(indices...)
		return
	}
	if len(indices) > a.Free() {
		panic(ErrOverflow)
	}
	dst := a.data[a.n : a.n+len(indices)]
	for i, idx := range indices {
		dst[i] = idx + offset
	}
	a.n += len(indices)
}
