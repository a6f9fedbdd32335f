package validate

import (
	"fmt"
	"go/ast"
	"go/token"
	"strings"

	"flowcc/internal/consteval"
	"flowcc/internal/diag"
	"flowcc/internal/flowtype"
	"flowcc/internal/frontend"
	"flowcc/internal/ir"
)

// CheckDesign validates the structural rules that the task-graph builder does
// not enforce while walking a single composition: channel and buffer
// parameters, composition placement, the task hierarchy and the subset of Go
// accepted inside synthesized task bodies.
func CheckDesign(unit *frontend.Unit, design *ir.Design, reporter *diag.Reporter) error {
	if design == nil {
		return fmt.Errorf("no design provided for validation")
	}
	if reporter == nil {
		return fmt.Errorf("no reporter provided for validation")
	}

	c := &checker{
		unit:     unit,
		reporter: reporter,
		rec:      flowtype.Recognizer{Pkg: unit.FlowName},
		eval:     unit.Evaluator(),
	}
	c.run(design)
	if c.errCount > 0 {
		return fmt.Errorf("validation failed with %d issue(s)", c.errCount)
	}
	return nil
}

type checker struct {
	unit     *frontend.Unit
	reporter *diag.Reporter
	errCount int
	rec      flowtype.Recognizer
	eval     consteval.Evaluator
}

func (c *checker) run(design *ir.Design) {
	for _, task := range design.Tasks {
		if task.Decl == nil {
			continue
		}
		before := c.errCount
		c.checkCompositions(task)
		if task.Graph != nil {
			c.checkGraph(task)
		}
		c.checkBody(task)
		if c.errCount > before {
			design.Fail(task.Name)
		}
	}
	c.checkHierarchy(design)
}

// failedEval marks a parameter whose evaluation already reported an error.
const failedEval = -1

func (c *checker) checkGraph(task *ir.Task) {
	for _, ch := range task.Graph.Registry.Channels() {
		if !ch.Declared || ch.Depth == failedEval {
			continue
		}
		if ch.Depth <= 0 {
			c.error(nodePos(ch.Decl), "stream %s must declare a positive constant depth; got %d", ch.Name, ch.Depth)
		}
	}
	for _, buf := range task.Graph.Registry.Buffers() {
		if !buf.Declared {
			continue
		}
		cfg := buf.Config
		if cfg.Sections != failedEval && cfg.Sections <= 0 {
			c.error(nodePos(buf.Decl), "buffer %s must declare a positive section count; got %d", buf.Name, cfg.Sections)
		}
		for i, d := range cfg.Dims {
			if d != failedEval && d <= 0 {
				c.error(nodePos(buf.Decl), "buffer %s dimension %d must be positive; got %d", buf.Name, i, d)
			}
		}
		for i, p := range cfg.Partitions {
			if (p.Kind == ir.PartitionBlock || p.Kind == ir.PartitionCyclic) && p.Factor != failedEval && p.Factor <= 0 {
				c.error(nodePos(buf.Decl), "buffer %s partition factor for dimension %d must be positive; got %d", buf.Name, i, p.Factor)
			}
		}
	}
}

// checkCompositions requires the composition to be a direct statement of the
// task body and flags compositions that the builder ignores.
func (c *checker) checkCompositions(task *ir.Task) {
	body := task.Decl.Body
	if body == nil {
		return
	}
	top := make(map[ast.Stmt]bool, len(body.List))
	seen := 0
	for _, stmt := range body.List {
		top[stmt] = true
		if call, ok := c.rec.Composition(stmt); ok {
			seen++
			if seen > 1 {
				c.warning(call.Pos(), "only the first task composition of %s is used", task.Name)
			}
		}
	}
	ast.Inspect(body, func(n ast.Node) bool {
		stmt, ok := n.(ast.Stmt)
		if !ok || top[stmt] {
			return true
		}
		if _, ok := n.(*ast.BlockStmt); ok {
			return true
		}
		if call, ok := c.rec.Composition(stmt); ok {
			c.error(call.Pos(), "task composition in %s must be a top-level statement of the task body", task.Name)
			return false
		}
		return true
	})
}

// checkBody rejects constructs that have no hardware counterpart inside a
// task body.
func (c *checker) checkBody(task *ir.Task) {
	if task.Decl.Body == nil {
		return
	}
	var loops map[ast.Stmt][]flowtype.Directive
	if c.unit.InFile(task.Decl) {
		loops = flowtype.LoopDirectives(c.unit.Fset, c.unit.File, task.Decl.Body)
	}
	ast.Inspect(task.Decl.Body, func(n ast.Node) bool {
		switch node := n.(type) {
		case *ast.GoStmt:
			c.error(node.Go, "go statements are not supported in tasks; compose tasks with Task().Invoke instead")
		case *ast.SelectStmt:
			c.error(node.Select, "select statements are not supported; rewrite using stream reads and writes")
		case *ast.MapType:
			if task.Graph == nil {
				c.error(node.Map, "maps are not supported in hardware tasks")
			}
		case *ast.ForStmt:
			if task.Graph == nil && hasDirective(loops[node], "unroll") && !c.isBoundedFor(node) {
				c.error(node.For, "unrolled for loops must have compile-time constant init, condition, and step")
			}
		}
		return true
	})
}

func hasDirective(ds []flowtype.Directive, kind string) bool {
	for _, d := range ds {
		if d.Kind == kind {
			return true
		}
	}
	return false
}

// checkHierarchy reports tasks that invoke themselves, directly or through
// other tasks.
func (c *checker) checkHierarchy(design *ir.Design) {
	const (
		unvisited = iota
		active
		done
	)
	state := make(map[string]int)
	var path []string
	var visit func(task *ir.Task)
	visit = func(task *ir.Task) {
		state[task.Name] = active
		path = append(path, task.Name)
		if task.Graph != nil {
			for _, callee := range task.Graph.Callees {
				switch state[callee] {
				case active:
					design.Fail(task.Name)
					pos := token.NoPos
					if invs := task.Graph.Invocations[callee]; len(invs) > 0 {
						pos = invs[0].Pos
					}
					if callee == task.Name {
						c.error(pos, "recursion is not supported; task %s invokes itself", task.Name)
					} else {
						c.error(pos, "recursion is not supported; task cycle %s", cycle(path, callee))
					}
				case unvisited:
					if next := design.Task(callee); next != nil {
						visit(next)
					}
				}
			}
		}
		path = path[:len(path)-1]
		state[task.Name] = done
	}
	for _, task := range design.Tasks {
		if state[task.Name] == unvisited {
			visit(task)
		}
	}
}

func cycle(path []string, back string) string {
	for i, name := range path {
		if name == back {
			return strings.Join(append(append([]string{}, path[i:]...), back), " -> ")
		}
	}
	return back
}

func (c *checker) error(pos token.Pos, format string, args ...any) {
	c.errCount++
	if c.reporter != nil {
		c.reporter.Error(pos, fmt.Sprintf(format, args...))
	}
}

func (c *checker) warning(pos token.Pos, format string, args ...any) {
	if c.reporter != nil {
		c.reporter.Warning(pos, fmt.Sprintf(format, args...))
	}
}

func nodePos(n ast.Node) token.Pos {
	if n == nil {
		return token.NoPos
	}
	return n.Pos()
}
