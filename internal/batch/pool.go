package batch

import "sync"

// Pool recycles released buffer sets across managers and sessions.
// It is safe for concurrent use.
type Pool struct {
	mu        sync.Mutex
	free      []*BufferSet
	maxPooled int
}

// NewPool creates a pool keeping at most maxPooled idle sets.
func NewPool(maxPooled int) *Pool {
	return &Pool{maxPooled: maxPooled}
}

// Get returns an idle set with the same capacity and layout, or a new one.
func (p *Pool) Get(c Capacity, l Layout) *BufferSet {
	p.mu.Lock()
	for i, s := range p.free {
		if s.Capacity == c && s.Layout == l {
			p.free = append(p.free[:i], p.free[i+1:]...)
			p.mu.Unlock()
			s.pooled = false
			return s
		}
	}
	p.mu.Unlock()
	return NewBufferSet(c, l)
}

// Put releases s. Releasing the same set twice is ignored; sets beyond
// the pool bound are dropped for the garbage collector.
func (p *Pool) Put(s *BufferSet) {
	if s == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if s.pooled {
		return
	}
	s.Reset()
	s.HasTransparency = false
	s.HasColor = false
	s.Color = Color{}
	s.Oversize = false
	s.pooled = true
	if len(p.free) < p.maxPooled {
		p.free = append(p.free, s)
	}
}

// Len is the number of idle sets.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}
