package batch

import (
	"fmt"
	"iter"
)

// Flusher uploads a set to the device and hands it back through
// Manager.ResetBuffer.
type Flusher interface {
	FlushBufferSet(s *BufferSet) error
}

// FlusherFunc adapts a function to Flusher.
type FlusherFunc func(s *BufferSet) error

func (f FlusherFunc) FlushBufferSet(s *BufferSet) error { return f(s) }

// Options configure a Manager.
type Options struct {
	Defaults Capacity
	Layout   Layout
	// PerColor keys sets on (transparency, color) instead of transparency.
	PerColor bool
}

// Handle is the slot index of a registered set.
type Handle int

// Manager keeps one open staging set per key.
type Manager struct {
	opts    Options
	pool    *Pool
	flusher Flusher

	keys  map[Key]Handle
	slots []*BufferSet
}

// NewManager creates a manager drawing sets from pool.
func NewManager(opts Options, pool *Pool, flusher Flusher) *Manager {
	return &Manager{
		opts:    opts,
		pool:    pool,
		flusher: flusher,
		keys:    make(map[Key]Handle),
	}
}

// KeyFor returns the registry key of a geometry.
func (m *Manager) KeyFor(hasTransparency bool, color *Color) Key {
	k := Key{Transparency: hasTransparency}
	if m.opts.PerColor && color != nil {
		k.HasColor = true
		k.Color = *color
	}
	return k
}

// Lookup returns the set registered under k.
func (m *Manager) Lookup(k Key) (*BufferSet, bool) {
	h, ok := m.keys[k]
	if !ok {
		return nil, false
	}
	return m.slots[h], true
}

func (m *Manager) insert(s *BufferSet) Handle {
	for i, slot := range m.slots {
		if slot == nil {
			m.slots[i] = s
			return Handle(i)
		}
	}
	m.slots = append(m.slots, s)
	return Handle(len(m.slots) - 1)
}

func (m *Manager) remove(s *BufferSet) {
	for i, slot := range m.slots {
		if slot == s {
			m.slots[i] = nil
			return
		}
	}
}

// GetBufferSet returns a set able to take a geometry of the given sizes,
// flushing the registered set first if it is too full.
func (m *Manager) GetBufferSet(hasTransparency bool, color *Color, sizes Sizes) (*BufferSet, error) {
	k := m.KeyFor(hasTransparency, color)
	set, _ := m.Lookup(k)

	switch Plan(set, sizes, m.opts.Defaults) {
	case UseExisting:
		return set, nil

	case FlushThenUse:
		if err := m.flusher.FlushBufferSet(set); err != nil {
			return nil, fmt.Errorf("flushing full buffer set: %w", err)
		}
		if !set.Fits(sizes) {
			// the flusher did not reset the set
			m.ResetBuffer(set)
		}
		return set, nil

	case AllocateOversize:
		s := m.pool.Get(EstimateCapacity(sizes, m.opts.Defaults), m.opts.Layout)
		m.label(s, k)
		s.Oversize = true
		s.NeedsToFlush = true
		m.insert(s)
		return s, nil

	default:
		s := m.pool.Get(m.opts.Defaults, m.opts.Layout)
		m.label(s, k)
		m.keys[k] = m.insert(s)
		return s, nil
	}
}

func (m *Manager) label(s *BufferSet, k Key) {
	s.HasTransparency = k.Transparency
	s.HasColor = k.HasColor
	s.Color = k.Color
}

// ResetBuffer empties s after a flush. Registered sets stay registered;
// oversize sets go back to the pool.
func (m *Manager) ResetBuffer(s *BufferSet) {
	if s.Oversize {
		m.remove(s)
		m.pool.Put(s)
		return
	}
	s.Reset()
}

// AllBuffers yields every live set. The sequence is a snapshot, so the
// caller may flush (and thereby reset) sets while iterating.
func (m *Manager) AllBuffers() iter.Seq[*BufferSet] {
	live := make([]*BufferSet, 0, len(m.slots))
	for _, s := range m.slots {
		if s != nil {
			live = append(live, s)
		}
	}
	return func(yield func(*BufferSet) bool) {
		for _, s := range live {
			if !yield(s) {
				return
			}
		}
	}
}

// Len is the number of live sets.
func (m *Manager) Len() int {
	n := 0
	for _, s := range m.slots {
		if s != nil {
			n++
		}
	}
	return n
}

// Clear returns every set to the pool. Calling it again is a no-op.
func (m *Manager) Clear() {
	for _, s := range m.slots {
		if s != nil {
			m.pool.Put(s)
		}
	}
	m.slots = nil
	clear(m.keys)
}
