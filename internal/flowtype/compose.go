package flowtype

import (
	"go/ast"
)

// Composition returns the call expression of stmt when it is a composition
// chain rooted at `<Pkg>.Task()`, such as
//
//	flow.Task().Invoke(load, a, q).Invoke(store, q, b).Wait()
func (r Recognizer) Composition(stmt ast.Stmt) (*ast.CallExpr, bool) {
	es, ok := stmt.(*ast.ExprStmt)
	if !ok {
		return nil, false
	}
	call, ok := ast.Unparen(es.X).(*ast.CallExpr)
	if !ok || !r.rootedAtTask(call) {
		return nil, false
	}
	return call, true
}

// IsTaskCall reports whether call is `<Pkg>.Task()`.
func (r Recognizer) IsTaskCall(call *ast.CallExpr) bool {
	name, ok := r.Sel(call.Fun)
	return ok && name == "Task" && len(call.Args) == 0
}

func (r Recognizer) rootedAtTask(call *ast.CallExpr) bool {
	for {
		if r.IsTaskCall(call) {
			return true
		}
		sel, ok := call.Fun.(*ast.SelectorExpr)
		if !ok {
			return false
		}
		inner, ok := ast.Unparen(sel.X).(*ast.CallExpr)
		if !ok {
			return false
		}
		call = inner
	}
}

// Invokes returns every `.Invoke(...)` call under root in post-order, which
// for a method chain is source order.
func (r Recognizer) Invokes(root ast.Node) []*ast.CallExpr {
	var (
		out   []*ast.CallExpr
		stack []ast.Node
	)
	ast.Inspect(root, func(n ast.Node) bool {
		if n != nil {
			stack = append(stack, n)
			return true
		}
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if call, ok := top.(*ast.CallExpr); ok && r.isInvoke(call) {
			out = append(out, call)
		}
		return true
	})
	return out
}

func (r Recognizer) isInvoke(call *ast.CallExpr) bool {
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok || sel.Sel.Name != "Invoke" {
		return false
	}
	inner, ok := ast.Unparen(sel.X).(*ast.CallExpr)
	return ok && r.rootedAtTask(inner)
}

// Spec is the compile-time parameter list of one invocation.
type Spec struct {
	// Step is the sequencing expression; nil means join. Among Join, Detach
	// and Step the last option given wins.
	Step ast.Expr
	// Detach is set by the `Detach` option.
	Detach bool
	// Vec is the replication factor expression; nil means 1.
	Vec ast.Expr
	// Named marks the argument after the callee as a literal display name.
	Named bool
	// Callee is the index in the call's arguments of the invoked task.
	Callee int
}

// InvokeSpec consumes the leading option arguments of an Invoke call. Callee
// is len(call.Args) when the call has no task argument.
func (r Recognizer) InvokeSpec(call *ast.CallExpr) Spec {
	var spec Spec
	i := 0
	for ; i < len(call.Args); i++ {
		arg := ast.Unparen(call.Args[i])
		if name, ok := r.Sel(arg); ok {
			switch name {
			case "Join":
				spec.Step, spec.Detach = nil, false
				continue
			case "Detach":
				spec.Step, spec.Detach = nil, true
				continue
			case "Named":
				spec.Named = true
				continue
			}
			break
		}
		opt, ok := arg.(*ast.CallExpr)
		if !ok || len(opt.Args) != 1 {
			break
		}
		name, ok := r.Sel(opt.Fun)
		if !ok {
			break
		}
		if name == "Step" {
			spec.Step, spec.Detach = opt.Args[0], false
			continue
		}
		if name == "Vec" {
			spec.Vec = opt.Args[0]
			continue
		}
		break
	}
	spec.Callee = i
	return spec
}
