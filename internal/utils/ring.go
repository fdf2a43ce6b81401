package utils

// Ring is a fixed-capacity FIFO. Pushing onto a full ring overwrites the oldest element.
// It is not safe for concurrent use; owners guard it with their own lock.
type Ring[T any] struct {
	buf  []T
	head int // index of the oldest element
	size int
}

// NewRing creates a ring holding at most capacity elements (minimum 1)
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

func (r *Ring[T]) Push(v T) {
	if r.size < len(r.buf) {
		r.buf[(r.head+r.size)%len(r.buf)] = v
		r.size++
		return
	}
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
}

func (r *Ring[T]) Len() int { return r.size }

func (r *Ring[T]) Cap() int { return len(r.buf) }

// At returns the i-th element, 0 being the oldest
func (r *Ring[T]) At(i int) T {
	if i < 0 || i >= r.size {
		panic("utils: ring index out of range")
	}
	return r.buf[(r.head+i)%len(r.buf)]
}

// Last returns a copy of the newest n elements, oldest first
func (r *Ring[T]) Last(n int) []T {
	if n > r.size {
		n = r.size
	}
	if n <= 0 {
		return nil
	}

	out := make([]T, n)
	start := r.size - n
	for i := 0; i < n; i++ {
		out[i] = r.At(start + i)
	}
	return out
}

// Values returns a copy of every element, oldest first
func (r *Ring[T]) Values() []T {
	return r.Last(r.size)
}

func (r *Ring[T]) Reset() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.head = 0
	r.size = 0
}
