package ir

import (
	"errors"
	"fmt"
	"go/ast"
)

var (
	// ErrAlreadyProduced is returned when a second producer binds an entity.
	ErrAlreadyProduced = errors.New("already produced")
	// ErrAlreadyConsumed is returned when a second consumer binds an entity.
	ErrAlreadyConsumed = errors.New("already consumed")
)

// Endpoint identifies one invocation of a task: the callee name and the
// index of the invocation within that callee's invocation list.
type Endpoint struct {
	Task  string
	Index int
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s#%d", e.Task, e.Index)
}

// Channel is a named point-to-point stream.
type Channel struct {
	Name  string
	Depth int64
	// Declared is false for streams passed in from the parent task.
	Declared   bool
	Decl       ast.Node
	ProducedBy *Endpoint
	ConsumedBy *Endpoint
}

// Buffer is a named multi-section memory shared by one producer and one
// consumer.
type Buffer struct {
	Name       string
	Config     BufferConfig
	Declared   bool
	Decl       ast.Node
	ProducedBy *Endpoint
	ConsumedBy *Endpoint
}

// Registry tracks the channels and buffers of one task-graph build. The first
// producer and the first consumer registered for an entity are retained;
// later registrations are rejected.
type Registry struct {
	channels     map[string]*Channel
	channelOrder []string
	buffers      map[string]*Buffer
	bufferOrder  []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[string]*Channel),
		buffers:  make(map[string]*Buffer),
	}
}

// DeclareChannel records a locally declared stream.
func (r *Registry) DeclareChannel(name string, depth int64, decl ast.Node) *Channel {
	ch := r.channel(name)
	ch.Depth, ch.Declared, ch.Decl = depth, true, decl
	return ch
}

// DeclareBuffer records a locally declared buffer.
func (r *Registry) DeclareBuffer(name string, cfg BufferConfig, decl ast.Node) *Buffer {
	buf := r.buffer(name)
	cfg.Instantiated = true
	buf.Config, buf.Declared, buf.Decl = cfg, true, decl
	return buf
}

// ProduceChannel binds ep as the producer of the named stream, creating an
// external entry for streams that were not declared locally.
func (r *Registry) ProduceChannel(name string, ep Endpoint) error {
	ch := r.channel(name)
	if ch.ProducedBy != nil {
		return fmt.Errorf("stream %q: %w", name, ErrAlreadyProduced)
	}
	ch.ProducedBy = &ep
	return nil
}

// ConsumeChannel binds ep as the consumer of the named stream.
func (r *Registry) ConsumeChannel(name string, ep Endpoint) error {
	ch := r.channel(name)
	if ch.ConsumedBy != nil {
		return fmt.Errorf("stream %q: %w", name, ErrAlreadyConsumed)
	}
	ch.ConsumedBy = &ep
	return nil
}

// ProduceBuffer binds ep as the producer of the named buffer. cfg describes
// the buffer as seen by the binding port and is used only for buffers that
// were not declared locally.
func (r *Registry) ProduceBuffer(name string, cfg BufferConfig, ep Endpoint) error {
	buf := r.bufferFor(name, cfg)
	if buf.ProducedBy != nil {
		return fmt.Errorf("buffer %q: %w", name, ErrAlreadyProduced)
	}
	buf.ProducedBy = &ep
	return nil
}

// ConsumeBuffer binds ep as the consumer of the named buffer.
func (r *Registry) ConsumeBuffer(name string, cfg BufferConfig, ep Endpoint) error {
	buf := r.bufferFor(name, cfg)
	if buf.ConsumedBy != nil {
		return fmt.Errorf("buffer %q: %w", name, ErrAlreadyConsumed)
	}
	buf.ConsumedBy = &ep
	return nil
}

// Channel returns the named stream.
func (r *Registry) Channel(name string) (*Channel, bool) {
	ch, ok := r.channels[name]
	return ch, ok
}

// Buffer returns the named buffer.
func (r *Registry) Buffer(name string) (*Buffer, bool) {
	buf, ok := r.buffers[name]
	return buf, ok
}

// Channels returns streams in registration order.
func (r *Registry) Channels() []*Channel {
	out := make([]*Channel, 0, len(r.channelOrder))
	for _, name := range r.channelOrder {
		out = append(out, r.channels[name])
	}
	return out
}

// Buffers returns buffers in registration order.
func (r *Registry) Buffers() []*Buffer {
	out := make([]*Buffer, 0, len(r.bufferOrder))
	for _, name := range r.bufferOrder {
		out = append(out, r.buffers[name])
	}
	return out
}

// RemoveChannel drops a stream from the registry.
func (r *Registry) RemoveChannel(name string) {
	if _, ok := r.channels[name]; !ok {
		return
	}
	delete(r.channels, name)
	r.channelOrder = removeName(r.channelOrder, name)
}

// RemoveBuffer drops a buffer from the registry.
func (r *Registry) RemoveBuffer(name string) {
	if _, ok := r.buffers[name]; !ok {
		return
	}
	delete(r.buffers, name)
	r.bufferOrder = removeName(r.bufferOrder, name)
}

func (r *Registry) channel(name string) *Channel {
	if ch, ok := r.channels[name]; ok {
		return ch
	}
	ch := &Channel{Name: name}
	r.channels[name] = ch
	r.channelOrder = append(r.channelOrder, name)
	return ch
}

func (r *Registry) buffer(name string) *Buffer {
	if buf, ok := r.buffers[name]; ok {
		return buf
	}
	buf := &Buffer{Name: name}
	r.buffers[name] = buf
	r.bufferOrder = append(r.bufferOrder, name)
	return buf
}

func (r *Registry) bufferFor(name string, cfg BufferConfig) *Buffer {
	_, existed := r.buffers[name]
	buf := r.buffer(name)
	if !existed {
		buf.Config = cfg
	}
	return buf
}

func removeName(names []string, name string) []string {
	for i, n := range names {
		if n == name {
			return append(names[:i], names[i+1:]...)
		}
	}
	return names
}
