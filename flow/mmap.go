package flow

import "sync"

// Const marks an element type as read-only in a port declaration.
type Const[T any] = T

type region[T any] struct {
	mu   sync.Mutex
	data []T
}

// MMap is a memory-mapped array shared with the host.
type MMap[T any] struct {
	r *region[T]
}

// NewMMap wraps data. The slice is shared, not copied.
func NewMMap[T any](data []T) MMap[T] {
	return MMap[T]{r: &region[T]{data: data}}
}

// Data returns the backing slice.
func (m MMap[T]) Data() []T { return m.r.data }

// Len reports the number of elements.
func (m MMap[T]) Len() int { return len(m.r.data) }

// AsyncMMap is a memory-mapped array accessed through explicit read and
// write requests.
type AsyncMMap[T any] struct {
	r *region[T]
}

// NewAsyncMMap wraps data. The slice is shared, not copied.
func NewAsyncMMap[T any](data []T) AsyncMMap[T] {
	return AsyncMMap[T]{r: &region[T]{data: data}}
}

// Load returns the element at addr.
func (m AsyncMMap[T]) Load(addr uint64) T {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	return m.r.data[addr]
}

// Store writes v at addr.
func (m AsyncMMap[T]) Store(addr uint64, v T) {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	m.r.data[addr] = v
}

// Data returns the backing slice.
func (m AsyncMMap[T]) Data() []T { return m.r.data }

func (MMap[T]) portKind() kind      { return kindMMap }
func (AsyncMMap[T]) portKind() kind { return kindMMap }
func (m MMap[T]) handle() any       { return m.r }
func (m AsyncMMap[T]) handle() any  { return m.r }
