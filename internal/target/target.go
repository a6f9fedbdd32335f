// Package target generates target-specific source text for tasks: interface
// directives per port, argument type rewrites and loop attribute lowering.
package target

import (
	"errors"
	"fmt"
	"go/ast"
	"strings"

	"flowcc/internal/flowtype"
	"flowcc/internal/ir"
)

// DirectivePrefix starts every synthesis directive line.
const DirectivePrefix = "//hls:"

// Code collects generated lines.
type Code struct {
	lines []string
}

// Line appends a verbatim line.
func (c *Code) Line(s string) {
	c.lines = append(c.lines, s)
}

// Directive appends a synthesis directive built from space-separated words.
func (c *Code) Directive(args ...string) {
	c.Line(DirectivePrefix + strings.Join(args, " "))
}

// Lines returns the collected lines.
func (c *Code) Lines() []string {
	return c.lines
}

// ParamEdit replaces the declared type of one parameter field.
type ParamEdit struct {
	Field *ast.Field
	Type  string
}

// Strategy generates code for one (technology, vendor) pair. Each per-port
// hook receives the level of the task being generated. Embed Base to inherit
// no-op defaults.
type Strategy interface {
	Target() ir.Target
	Stream(code *Code, level ir.Level, port *ir.Port)
	Buffer(code *Code, level ir.Level, port *ir.Port)
	AsyncMMap(code *Code, level ir.Level, port *ir.Port)
	MMap(code *Code, level ir.Level, port *ir.Port)
	Scalar(code *Code, level ir.Level, port *ir.Port)
	// Func runs once per top-level task after all port hooks.
	Func(code *Code, task *ir.Task)
	// RewriteArgs returns parameter type replacements. top is set only for
	// the top-level task.
	RewriteArgs(task *ir.Task, top bool) []ParamEdit
}

// AttrKind tells declaration-shaped attribute targets from statement-shaped
// ones.
type AttrKind int

const (
	DeclTarget AttrKind = iota
	StmtTarget
)

func (k AttrKind) String() string {
	if k == StmtTarget {
		return "stmt"
	}
	return "decl"
}

// AttrTarget is the node an attribute annotates together with the body that
// generated lines go into.
type AttrTarget struct {
	Kind AttrKind
	Node ast.Node
	Body *ast.BlockStmt
}

// AttrHandler lowers structural attributes.
type AttrHandler interface {
	Pipeline(code *Code, d flowtype.Directive, t AttrTarget)
	Unroll(code *Code, d flowtype.Directive, t AttrTarget)
}

// Base implements every hook as a no-op.
type Base struct{}

func (Base) Target() ir.Target { return ir.Target{} }
func (Base) Stream(*Code, ir.Level, *ir.Port) {}
func (Base) Buffer(*Code, ir.Level, *ir.Port) {}
func (Base) AsyncMMap(*Code, ir.Level, *ir.Port) {}
func (Base) MMap(*Code, ir.Level, *ir.Port) {}
func (Base) Scalar(*Code, ir.Level, *ir.Port) {}
func (Base) Func(*Code, *ir.Task) {}
func (Base) RewriteArgs(*ir.Task, bool) []ParamEdit { return nil }
func (Base) Pipeline(*Code, flowtype.Directive, AttrTarget) {}
func (Base) Unroll(*Code, flowtype.Directive, AttrTarget) {}

// ErrUnsupported is returned by Table.Lookup for unknown targets.
var ErrUnsupported = errors.New("unsupported target")

// Table selects a strategy per target. Entries are shared read-only across
// workers.
type Table map[ir.Target]Strategy

// Builtin lists the strategies shipped with the compiler.
var Builtin = Table{
	ir.DefaultTarget: XilinxHLS{},
}

// Lookup returns the strategy registered for t. Unknown targets yield the
// default strategy together with an error wrapping ErrUnsupported.
func (tb Table) Lookup(t ir.Target) (Strategy, error) {
	if s, ok := tb[t]; ok {
		return s, nil
	}
	return XilinxHLS{}, fmt.Errorf("%w: %s", ErrUnsupported, t)
}
