package passes

import (
	"fmt"
	"go/ast"
	"go/types"

	"flowcc/internal/consteval"
	"flowcc/internal/diag"
	"flowcc/internal/flowtype"
	"flowcc/internal/frontend"
	"flowcc/internal/ir"
)

// WidthInference assigns bit widths to task ports and buffer elements and
// reports element types whose size cannot be determined.
type WidthInference struct {
	unit     *frontend.Unit
	reporter *diag.Reporter
	eval     consteval.Evaluator
}

// NewWidthInference constructs the pass. reporter is optional but recommended
// so the pass can surface precise diagnostics.
func NewWidthInference(unit *frontend.Unit, reporter *diag.Reporter) *WidthInference {
	return &WidthInference{
		unit:     unit,
		reporter: reporter,
		eval:     unit.Evaluator(),
	}
}

// Name implements the Pass interface.
func (w *WidthInference) Name() string {
	return "width-inference"
}

// Run executes the pass over the entire design.
func (w *WidthInference) Run(design *ir.Design) error {
	if design == nil {
		return fmt.Errorf("width inference requires a non-nil design")
	}
	failed := 0
	for _, task := range design.Tasks {
		before := failed
		for _, port := range task.Ports {
			if !w.visitPort(port) {
				failed++
			}
		}
		if task.Graph != nil {
			for _, buf := range task.Graph.Registry.Buffers() {
				if !w.visitBuffer(buf) {
					failed++
				}
			}
		}
		if failed > before {
			design.Fail(task.Name)
		}
	}
	if failed > 0 {
		return fmt.Errorf("width inference failed for %d element type(s)", failed)
	}
	return nil
}

func (w *WidthInference) visitPort(port *ir.Port) bool {
	if port.Buffer != nil {
		width, ok := w.width(port.Buffer.ElemExpr)
		if !ok {
			w.report(port.Buffer.ElemExpr, port.Name, port.Buffer.Type)
			return false
		}
		port.Buffer.Width = width
		port.Width = width
		return true
	}
	width, ok := w.width(port.ElemExpr)
	if !ok {
		w.report(port.ElemExpr, port.Name, port.Type)
		return false
	}
	port.Width = width
	return true
}

func (w *WidthInference) visitBuffer(buf *ir.Buffer) bool {
	if buf.Config.Width > 0 {
		return true
	}
	width, ok := w.width(buf.Config.ElemExpr)
	if !ok {
		w.report(buf.Config.ElemExpr, buf.Name, buf.Config.Type)
		return false
	}
	buf.Config.Width = width
	return true
}

// width returns the size of expr in bits, preferring the type checker and
// falling back to the spelled-out predeclared types when imports were not
// resolved.
func (w *WidthInference) width(expr ast.Expr) (int, bool) {
	if expr == nil {
		return 0, false
	}
	if w.unit.Info != nil && w.unit.Sizes != nil {
		if t := w.unit.Info.TypeOf(expr); t != nil && !isInvalid(t) {
			return int(w.unit.Sizes.Sizeof(t)) * 8, true
		}
	}
	return w.syntactic(expr)
}

var basicWidths = map[string]int{
	"bool": 8, "int8": 8, "uint8": 8, "byte": 8,
	"int16": 16, "uint16": 16,
	"int32": 32, "uint32": 32, "float32": 32, "rune": 32,
	"int64": 64, "uint64": 64, "float64": 64, "complex64": 64,
	"int": 64, "uint": 64, "uintptr": 64,
	"complex128": 128,
}

func (w *WidthInference) syntactic(expr ast.Expr) (int, bool) {
	switch x := ast.Unparen(expr).(type) {
	case *ast.Ident:
		if width, ok := basicWidths[x.Name]; ok {
			return width, true
		}
		return w.named(x.Name)
	case *ast.StarExpr:
		return 64, true
	case *ast.ArrayType:
		if x.Len == nil {
			return 0, false
		}
		n, ok := consteval.Int64(w.eval, x.Len)
		if !ok {
			return 0, false
		}
		elem, ok := w.syntactic(x.Elt)
		return int(n) * elem, ok
	case *ast.IndexExpr:
		// Const[T] marks read-only memory and has T's layout.
		rec := flowtype.Recognizer{Pkg: w.unit.FlowName}
		if name, arg, ok := rec.Generic(x); ok && name == "Const" {
			return w.width(arg)
		}
	}
	return 0, false
}

// named sizes a type declared at package level, for references the checker
// could not resolve in place.
func (w *WidthInference) named(name string) (int, bool) {
	if w.unit.Info == nil || w.unit.Sizes == nil {
		return 0, false
	}
	for ident, obj := range w.unit.Info.Defs {
		tn, ok := obj.(*types.TypeName)
		if !ok || ident.Name != name || tn.Parent() == nil || tn.Parent() != tn.Pkg().Scope() {
			continue
		}
		if t := tn.Type(); !isInvalid(t.Underlying()) {
			return int(w.unit.Sizes.Sizeof(t)) * 8, true
		}
	}
	return 0, false
}

func isInvalid(t types.Type) bool {
	if b, ok := t.(*types.Basic); ok && b.Kind() == types.Invalid {
		return true
	}
	return false
}

func (w *WidthInference) report(expr ast.Expr, name, typ string) {
	if w.reporter == nil {
		return
	}
	if expr == nil {
		w.reporter.Errorf("cannot infer the bit width of '%s'", name)
		return
	}
	w.reporter.Report(diag.Error, expr.Pos(), expr.End(), "cannot infer the bit width of '%0' with element type '%1'", name, typ)
}
