package flow

import (
	"fmt"
	"reflect"
	"sync"
)

// fifo is a bounded queue with an end-of-transaction marker.
type fifo[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	buf      []T
	depth    int
	closed   bool
}

func newFIFO[T any](depth int) *fifo[T] {
	if depth <= 0 {
		panic(fmt.Sprintf("flow: stream depth must be positive, got %d", depth))
	}
	f := &fifo[T]{depth: depth, buf: make([]T, 0, depth)}
	f.notEmpty = sync.NewCond(&f.mu)
	f.notFull = sync.NewCond(&f.mu)
	return f
}

func (f *fifo[T]) write(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.buf) >= f.depth && !f.closed {
		f.notFull.Wait()
	}
	if f.closed {
		panic("flow: write to closed stream")
	}
	f.buf = append(f.buf, v)
	f.notEmpty.Signal()
}

func (f *fifo[T]) tryWrite(v T) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || len(f.buf) >= f.depth {
		return false
	}
	f.buf = append(f.buf, v)
	f.notEmpty.Signal()
	return true
}

func (f *fifo[T]) read(remove bool) (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.buf) == 0 && !f.closed {
		f.notEmpty.Wait()
	}
	return f.take(remove)
}

func (f *fifo[T]) tryRead() (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.take(true)
}

// take must be called with mu held.
func (f *fifo[T]) take(remove bool) (T, bool) {
	var zero T
	if len(f.buf) == 0 {
		return zero, false
	}
	v := f.buf[0]
	if remove {
		f.buf[0] = zero
		f.buf = f.buf[1:]
		f.notFull.Signal()
	}
	return v, true
}

func (f *fifo[T]) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.notEmpty.Broadcast()
	f.notFull.Broadcast()
}

func (f *fifo[T]) state() (n int, closed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.buf), f.closed
}

// Stream is a channel declared inside an upper-level task. It converts to
// IStream or OStream when bound to a task parameter.
type Stream[T any] struct {
	f *fifo[T]
}

// IStream is the consuming end of a stream.
type IStream[T any] struct {
	f *fifo[T]
}

// OStream is the producing end of a stream.
type OStream[T any] struct {
	f *fifo[T]
}

// NewStream declares a stream holding at most depth elements.
func NewStream[T any](depth int) Stream[T] {
	return Stream[T]{f: newFIFO[T](depth)}
}

// NewStreams declares an array of streams. S must be an array type of
// Stream values, e.g. [4]flow.Stream[int32].
func NewStreams[S any](depth int) S {
	var s S
	v := reflect.ValueOf(&s).Elem()
	if v.Kind() != reflect.Array {
		panic(fmt.Sprintf("flow: NewStreams needs an array of streams, got %s", v.Type()))
	}
	for i := 0; i < v.Len(); i++ {
		elem, ok := v.Index(i).Addr().Interface().(streamInit)
		if !ok {
			panic(fmt.Sprintf("flow: NewStreams needs an array of streams, got %s", v.Type()))
		}
		elem.initStream(depth)
	}
	return s
}

type streamInit interface {
	initStream(depth int)
}

func (s *Stream[T]) initStream(depth int) { s.f = newFIFO[T](depth) }

// Write blocks until there is room for v.
func (s Stream[T]) Write(v T) { s.f.write(v) }

// TryWrite writes v if there is room and reports whether it did.
func (s Stream[T]) TryWrite(v T) bool { return s.f.tryWrite(v) }

// Read blocks for the next element. ok is false once the stream is closed
// and drained.
func (s Stream[T]) Read() (T, bool) { return s.f.read(true) }

// TryRead returns the next element without blocking.
func (s Stream[T]) TryRead() (T, bool) { return s.f.tryRead() }

// Peek returns the next element without consuming it.
func (s Stream[T]) Peek() (T, bool) { return s.f.read(false) }

// Close marks the end of the transaction.
func (s Stream[T]) Close() { s.f.close() }

func (s IStream[T]) Read() (T, bool)    { return s.f.read(true) }
func (s IStream[T]) TryRead() (T, bool) { return s.f.tryRead() }
func (s IStream[T]) Peek() (T, bool)    { return s.f.read(false) }

// Empty reports whether no element is buffered.
func (s IStream[T]) Empty() bool {
	n, _ := s.f.state()
	return n == 0
}

// Closed reports whether the producer closed the stream and every element
// has been consumed.
func (s IStream[T]) Closed() bool {
	n, closed := s.f.state()
	return closed && n == 0
}

func (s OStream[T]) Write(v T)         { s.f.write(v) }
func (s OStream[T]) TryWrite(v T) bool { return s.f.tryWrite(v) }
func (s OStream[T]) Close()            { s.f.close() }

// Full reports whether a Write would block.
func (s OStream[T]) Full() bool {
	n, _ := s.f.state()
	return n >= s.f.depth
}

func (Stream[T]) portKind() kind  { return kindStream }
func (IStream[T]) portKind() kind { return kindIStream }
func (OStream[T]) portKind() kind { return kindOStream }
func (s Stream[T]) handle() any   { return s.f }
func (s IStream[T]) handle() any  { return s.f }
func (s OStream[T]) handle() any  { return s.f }
