// Package consteval folds Go expressions to compile-time integer constants.
//
// Type-checker results are consulted first. When a unit was checked leniently
// (unresolved imports, partial information) a syntactic folder covers
// literals, arithmetic, conversions and package-level constants.
package consteval

import (
	"go/ast"
	"go/constant"
	"go/token"
	"go/types"
	"math"
	"strconv"

	"flowcc/internal/diag"
)

// Evaluator folds an expression to an exact constant value.
type Evaluator interface {
	Eval(expr ast.Expr) (constant.Value, bool)
}

// Scope resolves identifiers that the type checker could not.
type Scope map[string]ast.Expr

// New returns an evaluator backed by info (which may be nil) and the
// package-level constant expressions in scope.
func New(info *types.Info, scope Scope) Evaluator {
	return &evaluator{info: info, scope: scope}
}

type evaluator struct {
	info  *types.Info
	scope Scope
}

func (e *evaluator) Eval(expr ast.Expr) (constant.Value, bool) {
	return e.eval(expr, 0)
}

// maxDepth bounds identifier chasing so self-referential scopes terminate.
const maxDepth = 32

func (e *evaluator) eval(expr ast.Expr, depth int) (constant.Value, bool) {
	if expr == nil || depth > maxDepth {
		return nil, false
	}
	if v, ok := e.typed(expr); ok {
		return v, true
	}
	switch x := expr.(type) {
	case *ast.BasicLit:
		v := constant.MakeFromLiteral(x.Value, x.Kind, 0)
		return v, v.Kind() != constant.Unknown
	case *ast.ParenExpr:
		return e.eval(x.X, depth)
	case *ast.Ident:
		switch x.Name {
		case "true":
			return constant.MakeBool(true), true
		case "false":
			return constant.MakeBool(false), true
		}
		if def, ok := e.scope[x.Name]; ok {
			return e.eval(def, depth+1)
		}
	case *ast.UnaryExpr:
		v, ok := e.eval(x.X, depth)
		if !ok {
			return nil, false
		}
		switch {
		case (x.Op == token.ADD || x.Op == token.SUB) && numeric(v.Kind()):
			return constant.UnaryOp(x.Op, v, 0), true
		case x.Op == token.XOR && v.Kind() == constant.Int:
			return constant.UnaryOp(x.Op, v, 0), true
		case x.Op == token.NOT && v.Kind() == constant.Bool:
			return constant.UnaryOp(x.Op, v, 0), true
		}
	case *ast.BinaryExpr:
		return e.binary(x, depth)
	case *ast.CallExpr:
		// Conversions such as uint64(4) keep the operand's value.
		if len(x.Args) == 1 && isConversion(x.Fun) {
			return e.eval(x.Args[0], depth)
		}
	}
	return nil, false
}

func (e *evaluator) typed(expr ast.Expr) (constant.Value, bool) {
	if e.info == nil {
		return nil, false
	}
	if ident, ok := expr.(*ast.Ident); ok {
		if obj, ok := e.info.ObjectOf(ident).(*types.Const); ok && obj.Val() != nil {
			return obj.Val(), true
		}
	}
	if tv, ok := e.info.Types[expr]; ok && tv.Value != nil {
		return tv.Value, true
	}
	return nil, false
}

func (e *evaluator) binary(x *ast.BinaryExpr, depth int) (constant.Value, bool) {
	l, ok := e.eval(x.X, depth)
	if !ok {
		return nil, false
	}
	r, ok := e.eval(x.Y, depth)
	if !ok {
		return nil, false
	}
	switch x.Op {
	case token.SHL, token.SHR:
		l = constant.ToInt(l)
		s, ok := constant.Uint64Val(constant.ToInt(r))
		if l.Kind() != constant.Int || !ok || s > math.MaxUint32 {
			return nil, false
		}
		return constant.Shift(l, x.Op, uint(s)), true
	}
	if !compatible(l, r) {
		return nil, false
	}
	switch x.Op {
	case token.EQL, token.NEQ, token.LSS, token.LEQ, token.GTR, token.GEQ:
		if l.Kind() == constant.Bool && x.Op != token.EQL && x.Op != token.NEQ {
			return nil, false
		}
		return constant.MakeBool(constant.Compare(l, x.Op, r)), true
	case token.QUO:
		if !numeric(l.Kind()) || constant.Sign(r) == 0 {
			return nil, false
		}
		if l.Kind() == constant.Int && r.Kind() == constant.Int {
			return constant.BinaryOp(l, token.QUO_ASSIGN, r), true
		}
		return constant.BinaryOp(l, x.Op, r), true
	case token.REM, token.AND, token.OR, token.XOR, token.AND_NOT:
		l, r = constant.ToInt(l), constant.ToInt(r)
		if l.Kind() != constant.Int || r.Kind() != constant.Int {
			return nil, false
		}
		if x.Op == token.REM && constant.Sign(r) == 0 {
			return nil, false
		}
	case token.ADD, token.SUB, token.MUL:
		if !numeric(l.Kind()) && !(x.Op == token.ADD && l.Kind() == constant.String) {
			return nil, false
		}
	case token.LAND, token.LOR:
		if l.Kind() != constant.Bool {
			return nil, false
		}
	default:
		return nil, false
	}
	v := constant.BinaryOp(l, x.Op, r)
	return v, v.Kind() != constant.Unknown
}

func numeric(k constant.Kind) bool {
	return k == constant.Int || k == constant.Float || k == constant.Complex
}

func compatible(l, r constant.Value) bool {
	if numeric(l.Kind()) && numeric(r.Kind()) {
		return true
	}
	return l.Kind() == r.Kind() && l.Kind() != constant.Unknown
}

var conversionTypes = map[string]bool{
	"int": true, "int8": true, "int16": true, "int32": true, "int64": true,
	"uint": true, "uint8": true, "uint16": true, "uint32": true, "uint64": true,
	"uintptr": true, "byte": true, "rune": true,
}

func isConversion(fun ast.Expr) bool {
	ident, ok := fun.(*ast.Ident)
	return ok && conversionTypes[ident.Name]
}

// Int64 folds expr and converts the result to int64.
func Int64(ev Evaluator, expr ast.Expr) (int64, bool) {
	if ev == nil {
		return 0, false
	}
	v, ok := ev.Eval(expr)
	if !ok {
		return 0, false
	}
	v = constant.ToInt(v)
	if v.Kind() != constant.Int {
		return 0, false
	}
	return constant.Int64Val(v)
}

// Int folds expr where a constant is required. On failure it reports
// "fail to evaluate as integer at compile time" over the expression and
// returns -1.
func Int(ev Evaluator, reporter *diag.Reporter, expr ast.Expr) int64 {
	if v, ok := Int64(ev, expr); ok {
		return v
	}
	if reporter != nil {
		var pos, end token.Pos
		if expr != nil {
			pos, end = expr.Pos(), expr.End()
		}
		reporter.Report(diag.Error, pos, end, "fail to evaluate as integer at compile time")
	}
	return -1
}

// PackageScope collects package-level constant declarations from files,
// including implicitly repeated iota specs.
func PackageScope(files ...*ast.File) Scope {
	scope := make(Scope)
	for _, file := range files {
		if file == nil {
			continue
		}
		for _, decl := range file.Decls {
			gen, ok := decl.(*ast.GenDecl)
			if !ok || gen.Tok != token.CONST {
				continue
			}
			var last []ast.Expr
			for iota, spec := range gen.Specs {
				vs, ok := spec.(*ast.ValueSpec)
				if !ok {
					continue
				}
				values := vs.Values
				if len(values) == 0 {
					values = last
				}
				last = values
				for i, name := range vs.Names {
					if i >= len(values) || name.Name == "_" {
						continue
					}
					scope[name.Name] = substituteIota(values[i], iota)
				}
			}
		}
	}
	return scope
}

// substituteIota returns expr with every `iota` identifier replaced by the
// spec index. Expressions without iota are returned unchanged.
func substituteIota(expr ast.Expr, index int) ast.Expr {
	found := false
	ast.Inspect(expr, func(n ast.Node) bool {
		if id, ok := n.(*ast.Ident); ok && id.Name == "iota" {
			found = true
		}
		return !found
	})
	if !found {
		return expr
	}
	lit := &ast.BasicLit{Kind: token.INT, Value: strconv.Itoa(index)}
	return rewriteIota(expr, lit)
}

func rewriteIota(expr ast.Expr, lit *ast.BasicLit) ast.Expr {
	switch x := expr.(type) {
	case *ast.Ident:
		if x.Name == "iota" {
			return lit
		}
		return x
	case *ast.ParenExpr:
		return &ast.ParenExpr{X: rewriteIota(x.X, lit)}
	case *ast.UnaryExpr:
		return &ast.UnaryExpr{Op: x.Op, X: rewriteIota(x.X, lit)}
	case *ast.BinaryExpr:
		return &ast.BinaryExpr{X: rewriteIota(x.X, lit), Op: x.Op, Y: rewriteIota(x.Y, lit)}
	case *ast.CallExpr:
		args := make([]ast.Expr, len(x.Args))
		for i, a := range x.Args {
			args[i] = rewriteIota(a, lit)
		}
		return &ast.CallExpr{Fun: x.Fun, Args: args}
	default:
		return expr
	}
}
