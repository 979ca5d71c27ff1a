package audio

// RingBuffer is a bounded FIFO with overwrite-oldest eviction. It owns its own
// storage; the zero value is not usable, create one with [NewRingBuffer].
//
// Capacity changes made with [RingBuffer.SetCapacity] are applied lazily: the
// current contents are never truncated. Each later Push evicts exactly one
// element, so a buffer holding more elements than its new capacity keeps its
// length, neither shrinking nor growing, until it is drained or cleared. Only
// then does Len stay within the new capacity. This is deliberate: it neither
// truncates on shrink nor lets an over-full buffer keep growing.
//
// RingBuffer is not safe for concurrent use. The trigger pipeline confines
// both of its buffers to a single processing goroutine.
type RingBuffer[T any] struct {
	data     []T
	start    int
	n        int
	capacity int
}

// NewRingBuffer returns an empty buffer holding at most capacity elements.
// A capacity below 1 is raised to 1.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer[T]{
		data:     make([]T, capacity),
		capacity: capacity,
	}
}

// Push appends v, evicting the oldest element first when the buffer is full.
func (r *RingBuffer[T]) Push(v T) {
	if r.n >= r.capacity {
		var zero T
		r.data[r.start] = zero
		r.start = (r.start + 1) % len(r.data)
		r.n--
	}
	if r.n == len(r.data) {
		r.grow(max(r.capacity, r.n+1))
	}
	r.data[(r.start+r.n)%len(r.data)] = v
	r.n++
}

// DrainAll removes and returns every element in insertion order, leaving the
// buffer empty. Callers check [RingBuffer.Len] first; draining an empty buffer
// returns an empty slice.
func (r *RingBuffer[T]) DrainAll() []T {
	out := r.Snapshot()
	r.Clear()
	return out
}

// Snapshot returns the elements in insertion order without removing them.
func (r *RingBuffer[T]) Snapshot() []T {
	out := make([]T, r.n)
	for i := range r.n {
		out[i] = r.data[(r.start+i)%len(r.data)]
	}
	return out
}

// Clear empties the buffer without returning its elements.
func (r *RingBuffer[T]) Clear() {
	clear(r.data)
	r.start = 0
	r.n = 0
}

// SetCapacity changes the capacity used by subsequent pushes. Existing
// contents are kept; see the type documentation. A capacity below 1 is raised
// to 1.
func (r *RingBuffer[T]) SetCapacity(capacity int) {
	if capacity < 1 {
		capacity = 1
	}
	r.capacity = capacity
}

// Cap returns the configured capacity.
func (r *RingBuffer[T]) Cap() int { return r.capacity }

// Len returns the number of buffered elements.
func (r *RingBuffer[T]) Len() int { return r.n }

// IsFull reports whether the next Push will evict an element.
func (r *RingBuffer[T]) IsFull() bool { return r.n >= r.capacity }

// grow re-linearises the storage into a slice of the given size.
func (r *RingBuffer[T]) grow(size int) {
	data := make([]T, size)
	for i := range r.n {
		data[i] = r.data[(r.start+i)%len(r.data)]
	}
	r.data = data
	r.start = 0
}
