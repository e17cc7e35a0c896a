package batch

// Decision is the outcome of Plan.
type Decision int

const (
	// UseExisting appends into the registered set as is.
	UseExisting Decision = iota
	// FlushThenUse flushes the registered set, then appends into it.
	FlushThenUse
	// Allocate creates a set of default capacity and registers it.
	Allocate
	// AllocateOversize creates a dedicated set sized for one geometry.
	AllocateOversize
)

func (d Decision) String() string {
	switch d {
	case UseExisting:
		return "use-existing"
	case FlushThenUse:
		return "flush-then-use"
	case Allocate:
		return "allocate"
	case AllocateOversize:
		return "allocate-oversize"
	default:
		return "unknown"
	}
}

// Exceeds reports whether sizes cannot fit in an empty set of capacity c.
func Exceeds(sizes Sizes, c Capacity) bool {
	return sizes.VertexCount() > c.Vertices || sizes.Indices > c.Indices
}

// EstimateCapacity returns defaults, or exactly what sizes needs when a
// single geometry is larger than a default set.
func EstimateCapacity(sizes Sizes, defaults Capacity) Capacity {
	if !Exceeds(sizes, defaults) {
		return defaults
	}
	return Capacity{Vertices: sizes.VertexCount(), Indices: sizes.Indices}
}

// Fits reports whether set can take sizes. A nil set fits nothing.
func Fits(set *BufferSet, sizes Sizes) bool {
	return set != nil && set.Fits(sizes)
}

// Plan decides how to stage a geometry of the given sizes when set is the
// currently registered set for its key (nil if none).
func Plan(set *BufferSet, sizes Sizes, defaults Capacity) Decision {
	switch {
	case Exceeds(sizes, defaults):
		return AllocateOversize
	case set == nil:
		return Allocate
	case set.Fits(sizes):
		return UseExisting
	default:
		return FlushThenUse
	}
}
