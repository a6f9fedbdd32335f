package target

import (
	"go/ast"

	"flowcc/internal/flowtype"
	"flowcc/internal/ir"
)

// Generate produces the lines inserted at the top of a task body: one group
// per port in declaration order, each followed by an empty line, and for
// top-level tasks the whole-function hook.
func Generate(s Strategy, task *ir.Task, level ir.Level) []string {
	code := &Code{}
	code.Line("")
	for _, port := range task.Ports {
		switch {
		case port.Category.IsStream():
			s.Stream(code, level, port)
		case port.Category.IsBuffer() && level != ir.Top:
			s.Buffer(code, level, port)
		case port.Category == flowtype.AsyncMMap:
			s.AsyncMMap(code, level, port)
		case port.Category == flowtype.MMap:
			s.MMap(code, level, port)
		default:
			s.Scalar(code, level, port)
		}
		code.Line("")
	}
	if level == ir.Top {
		code.Line("")
		s.Func(code, task)
	}
	return code.Lines()
}

// Attr lowers one structural directive. Strategies that do not handle
// attributes, and directive kinds other than pipeline and unroll, produce
// nothing.
func Attr(s Strategy, d flowtype.Directive, t AttrTarget) []string {
	h, ok := s.(AttrHandler)
	if !ok {
		return nil
	}
	code := &Code{}
	switch d.Kind {
	case "pipeline":
		h.Pipeline(code, d, t)
	case "unroll":
		h.Unroll(code, d, t)
	}
	return code.Lines()
}

// LoopBody returns the block of a loop statement.
func LoopBody(stmt ast.Stmt) *ast.BlockStmt {
	switch s := stmt.(type) {
	case *ast.ForStmt:
		return s.Body
	case *ast.RangeStmt:
		return s.Body
	case *ast.LabeledStmt:
		return LoopBody(s.Stmt)
	}
	return nil
}
