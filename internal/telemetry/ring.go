package telemetry

// Ring is a fixed-capacity FIFO buffer that overwrites its oldest item.
// It is not synchronized; Stats guards it.
type Ring[T any] struct {
	items []T
	head  int
	size  int
}

// NewRing creates a ring holding up to capacity items (default 100).
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Add appends item, evicting the oldest when full.
func (r *Ring[T]) Add(item T) {
	r.items[r.head] = item
	r.head = (r.head + 1) % len(r.items)
	if r.size < len(r.items) {
		r.size++
	}
}

// Items returns a copy of the contents, oldest first.
func (r *Ring[T]) Items() []T {
	out := make([]T, r.size)
	if r.size < len(r.items) {
		copy(out, r.items[:r.size])
		return out
	}
	n := copy(out, r.items[r.head:])
	copy(out[n:], r.items[:r.head])
	return out
}

// Len returns the number of items held.
func (r *Ring[T]) Len() int { return r.size }
