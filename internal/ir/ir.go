package ir

import (
	"fmt"
	"go/ast"
	"go/token"

	"flowcc/internal/flowtype"
)

// Design is the set of tasks discovered from one compilation unit, reachable
// from the top-level task.
type Design struct {
	Top   string
	Tasks []*Task
	index map[string]*Task
	// failed holds the names of tasks an error was recorded for.
	failed map[string]bool
}

// NewDesign returns an empty design rooted at top.
func NewDesign(top string) *Design {
	return &Design{Top: top, index: make(map[string]*Task), failed: make(map[string]bool)}
}

// Add appends a task in discovery order.
func (d *Design) Add(task *Task) {
	d.Tasks = append(d.Tasks, task)
	d.index[task.Name] = task
}

// Task looks up a task by name.
func (d *Design) Task(name string) *Task {
	return d.index[name]
}

// Fail marks the named task as failed.
func (d *Design) Fail(name string) {
	d.failed[name] = true
}

// Failed returns the failed tasks in discovery order.
func (d *Design) Failed() []string {
	var out []string
	for _, task := range d.Tasks {
		if d.failed[task.Name] {
			out = append(out, task.Name)
		}
	}
	return out
}

// TopTask returns the top-level task, or nil when it was not discovered.
func (d *Design) TopTask() *Task {
	return d.index[d.Top]
}

// Level is a task's position in the hierarchy.
type Level int

const (
	Lower Level = iota
	Middle
	Top
)

func (l Level) String() string {
	switch l {
	case Top:
		return "top"
	case Middle:
		return "middle"
	default:
		return "lower"
	}
}

// MarshalText renders the level by name.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText parses a level name.
func (l *Level) UnmarshalText(text []byte) error {
	switch string(text) {
	case "top":
		*l = Top
	case "middle":
		*l = Middle
	case "lower":
		*l = Lower
	default:
		return fmt.Errorf("unknown task level %q", text)
	}
	return nil
}

// Target names the synthesis technology and vendor a task is compiled for.
type Target struct {
	Technology string
	Vendor     string
}

// DefaultTarget is used for tasks without a target directive.
var DefaultTarget = Target{Technology: "hls", Vendor: "xilinx"}

func (t Target) String() string {
	return t.Technology + " by " + t.Vendor
}

// Task is one function visited during compilation.
type Task struct {
	Name   string
	Level  Level
	Target Target
	Ports  []*Port
	Decl   *ast.FuncDecl
	// Graph is nil for lower-level tasks.
	Graph *Graph
}

// IsUpper reports whether the task composes other tasks.
func (t *Task) IsUpper() bool {
	return t.Graph != nil
}

// Port is one parameter of a task as seen from outside.
type Port struct {
	Name     string
	Category flowtype.Category
	// Width is the element width in bits; zero until width inference runs.
	Width int
	// Type is the element type as written in source.
	Type string
	// Arity is the array length for arrays of ports, zero otherwise.
	Arity int
	// Const marks read-only memory.
	Const  bool
	Buffer *BufferConfig

	ElemExpr ast.Expr
	Field    *ast.Field
	Pos      token.Pos
}

// IsArray reports whether the port is a homogeneous array of ports.
func (p *Port) IsArray() bool {
	return p.Arity > 0
}

// Graph is the communication graph of an upper-level task.
type Graph struct {
	Registry *Registry
	// Callees lists invoked task names in first-discovery order.
	Callees     []string
	Invocations map[string][]*Invocation
	// Composition is the composition statement the graph was built from.
	Composition *ast.CallExpr
}

func newGraph() *Graph {
	return &Graph{
		Registry:    NewRegistry(),
		Invocations: make(map[string][]*Invocation),
	}
}

func (g *Graph) addInvocation(inv *Invocation) int {
	if _, seen := g.Invocations[inv.Callee]; !seen {
		g.Callees = append(g.Callees, inv.Callee)
	}
	g.Invocations[inv.Callee] = append(g.Invocations[inv.Callee], inv)
	return len(g.Invocations[inv.Callee]) - 1
}

// Step values with special meaning.
const (
	StepJoin   = 0
	StepDetach = -1
)

// Invocation is one replication lane of an invoked task.
type Invocation struct {
	Callee string
	Step   int64
	Name   string
	Lane   int
	// Args maps callee port names to their bound arguments in binding order.
	Args []Arg
	Pos  token.Pos
}

// Arg is one port binding of an invocation.
type Arg struct {
	Port     string
	Category flowtype.Category
	Arg      string
}
