package gating

// ring is a fixed-capacity FIFO that overwrites its oldest element.
type ring[T any] struct {
	buf   []T
	start int
	size  int
}

func newRing[T any](capacity int) *ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &ring[T]{buf: make([]T, capacity)}
}

func (r *ring[T]) push(v T) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = v
		r.size++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

// values returns the contents oldest first.
func (r *ring[T]) values() []T {
	out := make([]T, r.size)
	for i := range out {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

func (r *ring[T]) capacity() int { return len(r.buf) }

// resize changes capacity, keeping the most recent elements.
func (r *ring[T]) resize(capacity int) {
	if capacity < 1 {
		capacity = 1
	}
	if capacity == len(r.buf) {
		return
	}
	vals := r.values()
	if len(vals) > capacity {
		vals = vals[len(vals)-capacity:]
	}
	r.buf = make([]T, capacity)
	copy(r.buf, vals)
	r.start = 0
	r.size = len(vals)
}
