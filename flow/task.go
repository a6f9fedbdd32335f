package flow

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

type kind int

const (
	kindStream kind = iota
	kindIStream
	kindOStream
	kindBuffer
	kindIBuffer
	kindOBuffer
	kindMMap
)

// port is implemented by every channel and memory type.
type port interface {
	portKind() kind
	handle() any
}

var portType = reflect.TypeOf((*port)(nil)).Elem()

// Seq yields the lane index of a vectorized invocation.
type Seq struct {
	_ int
}

// NewSeq declares a sequence.
func NewSeq() Seq { return Seq{} }

// Option adjusts one Invoke call.
type Option struct {
	name    bool
	step    int64
	vec     int
	setStep bool
	setVec  bool
}

const detached = -1

var (
	// Join runs the callee concurrently and waits for it in Wait.
	Join = Option{setStep: true}
	// Detach runs the callee without waiting for it.
	Detach = Option{setStep: true, step: detached}
	// Named makes the argument after the callee the instance name.
	Named = Option{name: true}
)

// Step orders joined invocations: step 0 starts at once, positive steps run
// in increasing order after every lower step has finished. Among Join, Detach
// and Step the last option given wins.
func Step(n int64) Option { return Option{setStep: true, step: n} }

// Vec replicates the invocation n times.
func Vec(n int) Option { return Option{setVec: true, vec: n} }

// TaskGroup composes child task invocations.
type TaskGroup struct {
	mu       sync.Mutex
	join     sync.WaitGroup
	steps    map[int64][]func()
	counters map[counterKey]int
	invokes  int
	panicked any
	failed   bool
}

type counterKey struct {
	kind kind
	id   any
}

// Task starts a composition.
func Task() *TaskGroup {
	return &TaskGroup{
		steps:    make(map[int64][]func()),
		counters: make(map[counterKey]int),
	}
}

// Invoke schedules callee with args. Options come first, then the callee,
// then its instance name when Named is given, then the arguments.
func (g *TaskGroup) Invoke(args ...any) *TaskGroup {
	var (
		step  int64
		vec   = 1
		named bool
	)
	i := 0
	for ; i < len(args); i++ {
		opt, ok := args[i].(Option)
		if !ok {
			break
		}
		if opt.setStep {
			step = opt.step
		}
		if opt.setVec {
			vec = opt.vec
		}
		named = named || opt.name
	}
	if vec <= 0 {
		panic("flow: replication factor must be positive")
	}
	if i >= len(args) {
		panic("flow: Invoke without a task")
	}
	fn := reflect.ValueOf(args[i])
	if fn.Kind() != reflect.Func {
		panic(fmt.Sprintf("flow: Invoke needs a function, got %T", args[i]))
	}
	i++
	name := fmt.Sprintf("task#%d", g.invokes)
	if named {
		if i >= len(args) {
			panic("flow: Named invocation without a name")
		}
		name = fmt.Sprint(args[i])
		i++
	}
	rest := args[i:]
	ft := fn.Type()
	if ft.IsVariadic() || ft.NumIn() != len(rest) {
		panic(fmt.Sprintf("flow: %s takes %d arguments, got %d", name, ft.NumIn(), len(rest)))
	}

	for lane := 0; lane < vec; lane++ {
		in := make([]reflect.Value, len(rest))
		for j, arg := range rest {
			in[j] = g.bind(name, ft.In(j), arg, lane)
		}
		call := g.wrap(name, func() { fn.Call(in) })
		switch {
		case step < 0:
			go call()
		case step == 0:
			g.join.Add(1)
			go func() {
				defer g.join.Done()
				call()
			}()
		default:
			g.steps[step] = append(g.steps[step], call)
		}
	}
	g.invokes++
	return g
}

func (g *TaskGroup) wrap(name string, f func()) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				g.mu.Lock()
				if !g.failed {
					g.failed = true
					g.panicked = fmt.Errorf("flow: task %s panicked: %v", name, r)
				}
				g.mu.Unlock()
			}
		}()
		f()
	}
}

// bind converts one argument for the given lane.
func (g *TaskGroup) bind(name string, param reflect.Type, arg any, lane int) reflect.Value {
	if _, ok := arg.(Seq); ok {
		switch param.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return reflect.ValueOf(lane).Convert(param)
		}
		panic(fmt.Sprintf("flow: sequence passed to %s parameter of %s", param, name))
	}
	v := reflect.ValueOf(arg)
	if !v.IsValid() {
		panic(fmt.Sprintf("flow: nil argument in invocation of %s", name))
	}
	switch {
	case param.Kind() == reflect.Array && param.Elem().Implements(portType):
		out := reflect.New(param).Elem()
		k := reflect.Zero(param.Elem()).Interface().(port).portKind()
		for i := 0; i < param.Len(); i++ {
			out.Index(i).Set(g.element(name, k, param.Elem(), v))
		}
		return out
	case param.Implements(portType):
		k := reflect.Zero(param).Interface().(port).portKind()
		return g.element(name, k, param, v)
	}
	return convert(name, v, param)
}

// element picks the next lane of a collection, or converts a single port.
func (g *TaskGroup) element(name string, k kind, param reflect.Type, v reflect.Value) reflect.Value {
	if v.Kind() != reflect.Array {
		return convert(name, v, param)
	}
	if v.Len() == 0 {
		panic(fmt.Sprintf("flow: empty collection passed to %s", name))
	}
	first, ok := v.Index(0).Interface().(port)
	if !ok {
		panic(fmt.Sprintf("flow: %s is not a port collection", v.Type()))
	}
	key := counterKey{kind: k, id: first.handle()}
	g.mu.Lock()
	c := g.counters[key]
	g.counters[key] = c + 1
	g.mu.Unlock()
	return convert(name, v.Index(c%v.Len()), param)
}

func convert(name string, v reflect.Value, t reflect.Type) reflect.Value {
	switch {
	case v.Type().AssignableTo(t):
		return v
	case v.Type().ConvertibleTo(t):
		return v.Convert(t)
	}
	panic(fmt.Sprintf("flow: cannot pass %s as %s to %s", v.Type(), t, name))
}

// Wait blocks until every joined invocation has returned, then runs
// positive steps in order. A panic in any task is raised again here.
func (g *TaskGroup) Wait() {
	g.join.Wait()
	steps := make([]int64, 0, len(g.steps))
	for s := range g.steps {
		steps = append(steps, s)
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i] < steps[j] })
	for _, s := range steps {
		var wg sync.WaitGroup
		for _, call := range g.steps[s] {
			wg.Add(1)
			go func() {
				defer wg.Done()
				call()
			}()
		}
		wg.Wait()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failed {
		panic(g.panicked)
	}
}
