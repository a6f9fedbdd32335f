package flow

import (
	"fmt"
	"reflect"
	"sync"
)

// MemcoreKind selects the memory resource backing a buffer.
type MemcoreKind int

const (
	BRAM MemcoreKind = iota
	URAM
)

// PartitionScheme describes how one buffer dimension is split.
type PartitionScheme struct {
	kind   string
	factor int
}

// Normal keeps a dimension in a single memory.
func Normal() PartitionScheme { return PartitionScheme{kind: "normal"} }

// Complete splits a dimension into registers.
func Complete() PartitionScheme { return PartitionScheme{kind: "complete"} }

// Block splits a dimension into factor contiguous chunks.
func Block(factor int) PartitionScheme { return PartitionScheme{kind: "block", factor: factor} }

// Cyclic interleaves a dimension across factor memories.
func Cyclic(factor int) PartitionScheme { return PartitionScheme{kind: "cyclic", factor: factor} }

// BufferOption configures NewBuffer and NewBuffers.
type BufferOption func(*bufferConfig)

type bufferConfig struct {
	partitions []PartitionScheme
	memcore    MemcoreKind
}

// Partition lists one scheme per leading dimension. Omitted dimensions stay
// normal.
func Partition(schemes ...PartitionScheme) BufferOption {
	return func(c *bufferConfig) { c.partitions = append(c.partitions, schemes...) }
}

// Memcore selects the memory resource.
func Memcore(kind MemcoreKind) BufferOption {
	return func(c *bufferConfig) { c.memcore = kind }
}

// pool rotates a fixed set of sections between one producer and one
// consumer. Sections start out free.
type pool[A any] struct {
	free      chan *A
	full      chan *A
	closeOnce sync.Once
	sections  int
	config    bufferConfig
}

func newPool[A any](sections int, opts []BufferOption) *pool[A] {
	if sections <= 0 {
		panic(fmt.Sprintf("flow: buffer section count must be positive, got %d", sections))
	}
	var zero A
	t := reflect.TypeOf(zero)
	if t == nil || t.Kind() != reflect.Array {
		panic(fmt.Sprintf("flow: buffer element must be an array type, got %v", t))
	}
	p := &pool[A]{
		free:     make(chan *A, sections),
		full:     make(chan *A, sections),
		sections: sections,
	}
	for _, opt := range opts {
		opt(&p.config)
	}
	dims := 0
	for ; t.Kind() == reflect.Array; t = t.Elem() {
		dims++
	}
	if len(p.config.partitions) > dims {
		panic(fmt.Sprintf("flow: %d partition schemes for a %d-dimensional buffer", len(p.config.partitions), dims))
	}
	for _, s := range p.config.partitions {
		if (s.kind == "block" || s.kind == "cyclic") && s.factor <= 0 {
			panic(fmt.Sprintf("flow: %s partition factor must be positive, got %d", s.kind, s.factor))
		}
	}
	for i := 0; i < sections; i++ {
		p.free <- new(A)
	}
	return p
}

// Buffer is a multi-section memory declared inside an upper-level task.
type Buffer[A any] struct {
	p *pool[A]
}

// IBuffer is the consuming end of a buffer.
type IBuffer[A any] struct {
	p *pool[A]
}

// OBuffer is the producing end of a buffer.
type OBuffer[A any] struct {
	p *pool[A]
}

// NewBuffer declares a buffer of the given number of sections. A must be an
// array type, e.g. flow.NewBuffer[[64][64]float32](2).
func NewBuffer[A any](sections int, opts ...BufferOption) Buffer[A] {
	return Buffer[A]{p: newPool[A](sections, opts)}
}

// NewBuffers declares an array of buffers. S must be an array type of Buffer
// values.
func NewBuffers[S any](sections int, opts ...BufferOption) S {
	var s S
	v := reflect.ValueOf(&s).Elem()
	if v.Kind() != reflect.Array {
		panic(fmt.Sprintf("flow: NewBuffers needs an array of buffers, got %s", v.Type()))
	}
	for i := 0; i < v.Len(); i++ {
		elem, ok := v.Index(i).Addr().Interface().(bufferInit)
		if !ok {
			panic(fmt.Sprintf("flow: NewBuffers needs an array of buffers, got %s", v.Type()))
		}
		elem.initBuffer(sections, opts)
	}
	return s
}

type bufferInit interface {
	initBuffer(sections int, opts []BufferOption)
}

func (b *Buffer[A]) initBuffer(sections int, opts []BufferOption) { b.p = newPool[A](sections, opts) }

// Sections reports the number of sections.
func (b Buffer[A]) Sections() int { return b.p.sections }

// Memcore reports the configured memory resource.
func (b Buffer[A]) Memcore() MemcoreKind { return b.p.config.memcore }

// Acquire blocks until a free section is available for writing.
func (b OBuffer[A]) Acquire() *A { return <-b.p.free }

// Release hands a written section to the consumer.
func (b OBuffer[A]) Release(s *A) { b.p.full <- s }

// Close signals that no more sections will be released.
func (b OBuffer[A]) Close() { b.p.closeOnce.Do(func() { close(b.p.full) }) }

// Acquire blocks until a written section is available. ok is false once the
// producer closed the buffer and every section has been consumed.
func (b IBuffer[A]) Acquire() (s *A, ok bool) {
	s, ok = <-b.p.full
	return s, ok
}

// Release returns a consumed section to the producer.
func (b IBuffer[A]) Release(s *A) {
	var zero A
	*s = zero
	b.p.free <- s
}

func (Buffer[A]) portKind() kind  { return kindBuffer }
func (IBuffer[A]) portKind() kind { return kindIBuffer }
func (OBuffer[A]) portKind() kind { return kindOBuffer }
func (b Buffer[A]) handle() any   { return b.p }
func (b IBuffer[A]) handle() any  { return b.p }
func (b OBuffer[A]) handle() any  { return b.p }
