// Package ringbuf provides a fixed-capacity ring buffer that keeps the most
// recent entries, dropping the oldest on overflow. It is the storage primitive
// behind the in-memory telemetry stores.
package ringbuf

// Buffer is a bounded ring of T. The zero value is not usable; create one
// with New. Buffer is not safe for concurrent use, callers hold their own
// lock.
type Buffer[T any] struct {
	buf  []T
	head int // index of the oldest element
	size int
}

// New creates a Buffer holding at most capacity elements. Capacities below
// one are raised to one so Append never has to fail.
func New[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{
		buf: make([]T, capacity),
	}
}

// Append adds v, evicting the oldest element when the buffer is full.
func (b *Buffer[T]) Append(v T) {
	if b.size < len(b.buf) {
		b.buf[(b.head+b.size)%len(b.buf)] = v
		b.size++
		return
	}
	b.buf[b.head] = v
	b.head = (b.head + 1) % len(b.buf)
}

// Len returns the number of elements currently stored.
func (b *Buffer[T]) Len() int {
	return b.size
}

// Cap returns the maximum number of elements the buffer holds.
func (b *Buffer[T]) Cap() int {
	return len(b.buf)
}

// Snapshot returns a copy of the contents ordered oldest to newest.
func (b *Buffer[T]) Snapshot() []T {
	out := make([]T, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.buf[(b.head+i)%len(b.buf)]
	}
	return out
}

// Last returns the most recent element and true, or the zero value and false
// when the buffer is empty.
func (b *Buffer[T]) Last() (T, bool) {
	var zero T
	if b.size == 0 {
		return zero, false
	}
	return b.buf[(b.head+b.size-1)%len(b.buf)], true
}

// Clear removes every element without releasing the backing array.
func (b *Buffer[T]) Clear() {
	var zero T
	for i := range b.buf {
		b.buf[i] = zero
	}
	b.head = 0
	b.size = 0
}
