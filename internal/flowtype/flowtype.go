// Package flowtype recognises the dataflow DSL's types, constructors and
// composition chains in Go syntax trees.
//
// Recognition is purely syntactic: it only requires the local name under
// which a file imports the DSL package, so it works on units whose imports
// were never resolved.
package flowtype

import (
	"go/ast"
	"go/token"
)

// Category classifies a task parameter.
type Category string

const (
	Scalar    Category = "scalar"
	MMap      Category = "mmap"
	AsyncMMap Category = "async_mmap"
	IStream   Category = "istream"
	OStream   Category = "ostream"
	IBuffer   Category = "ibuffer"
	OBuffer   Category = "obuffer"
)

// IsStream reports whether c is a stream direction.
func (c Category) IsStream() bool { return c == IStream || c == OStream }

// IsBuffer reports whether c is a buffer direction.
func (c Category) IsBuffer() bool { return c == IBuffer || c == OBuffer }

// IsMMap reports whether c is a memory-mapped port.
func (c Category) IsMMap() bool { return c == MMap || c == AsyncMMap }

var portTypes = map[string]Category{
	"MMap":      MMap,
	"AsyncMMap": AsyncMMap,
	"IStream":   IStream,
	"OStream":   OStream,
	"IBuffer":   IBuffer,
	"OBuffer":   OBuffer,
}

// Recognizer matches DSL constructs for one file.
type Recognizer struct {
	// Pkg is the local import name of the DSL package; empty disables
	// recognition.
	Pkg string
}

// Sel returns the selected name when expr is `<Pkg>.<Name>`.
func (r Recognizer) Sel(expr ast.Expr) (string, bool) {
	if r.Pkg == "" {
		return "", false
	}
	sel, ok := ast.Unparen(expr).(*ast.SelectorExpr)
	if !ok {
		return "", false
	}
	x, ok := sel.X.(*ast.Ident)
	if !ok || x.Name != r.Pkg {
		return "", false
	}
	return sel.Sel.Name, true
}

// Generic splits `<Pkg>.<Name>[T]` into its name and type argument.
func (r Recognizer) Generic(expr ast.Expr) (string, ast.Expr, bool) {
	idx, ok := ast.Unparen(expr).(*ast.IndexExpr)
	if !ok {
		return "", nil, false
	}
	name, ok := r.Sel(idx.X)
	if !ok {
		return "", nil, false
	}
	return name, idx.Index, true
}

// ParamType is the classified declared type of a task parameter.
type ParamType struct {
	Category Category
	// Len is the array length expression for arrays of ports; nil otherwise.
	Len ast.Expr
	// Elem is the data element type of a port, or the buffer shape (an array
	// type) for buffers. For scalars it is the declared type.
	Elem ast.Expr
	// Const marks a read-only memory element, written `Const[T]`.
	Const bool
}

// Param classifies a parameter's declared type expression.
func (r Recognizer) Param(typ ast.Expr) ParamType {
	if arr, ok := typ.(*ast.ArrayType); ok && arr.Len != nil {
		if inner := r.Param(arr.Elt); inner.Category != Scalar && inner.Len == nil {
			inner.Len = arr.Len
			return inner
		}
		return ParamType{Category: Scalar, Elem: typ}
	}
	name, arg, ok := r.Generic(typ)
	if !ok {
		return ParamType{Category: Scalar, Elem: typ}
	}
	cat, ok := portTypes[name]
	if !ok {
		return ParamType{Category: Scalar, Elem: typ}
	}
	pt := ParamType{Category: cat, Elem: arg}
	if cat.IsMMap() {
		if wrapper, elem, ok := r.Generic(arg); ok && wrapper == "Const" {
			pt.Elem = elem
			pt.Const = true
		}
	}
	return pt
}

// DeclKind identifies a local channel, buffer or sequence constructor.
type DeclKind int

const (
	StreamDecl DeclKind = iota + 1
	StreamsDecl
	BufferDecl
	BuffersDecl
	SeqDecl
)

var declCtors = map[string]DeclKind{
	"NewStream":  StreamDecl,
	"NewStreams": StreamsDecl,
	"NewBuffer":  BufferDecl,
	"NewBuffers": BuffersDecl,
	"NewSeq":     SeqDecl,
}

// Decl is a recognised local declaration `name := <Pkg>.NewX[T](args...)`.
type Decl struct {
	Name *ast.Ident
	Kind DeclKind
	// TypeArg is the constructor's type argument (nil for sequences).
	TypeArg ast.Expr
	Args    []ast.Expr
	Node    ast.Node
}

// Decls returns every recognised declaration in stmt. Both short variable
// declarations and `var` declarations are matched.
func (r Recognizer) Decls(stmt ast.Stmt) []Decl {
	var out []Decl
	switch s := stmt.(type) {
	case *ast.AssignStmt:
		if s.Tok != token.DEFINE || len(s.Lhs) != len(s.Rhs) {
			return nil
		}
		for i, lhs := range s.Lhs {
			if d, ok := r.declFrom(lhs, s.Rhs[i], s); ok {
				out = append(out, d)
			}
		}
	case *ast.DeclStmt:
		gen, ok := s.Decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.VAR {
			return nil
		}
		for _, spec := range gen.Specs {
			vs := spec.(*ast.ValueSpec)
			for i, name := range vs.Names {
				if i < len(vs.Values) {
					if d, ok := r.declFrom(name, vs.Values[i], s); ok {
						out = append(out, d)
					}
				}
			}
		}
	}
	return out
}

func (r Recognizer) declFrom(lhs, rhs ast.Expr, node ast.Node) (Decl, bool) {
	ident, ok := lhs.(*ast.Ident)
	if !ok || ident.Name == "_" {
		return Decl{}, false
	}
	call, ok := ast.Unparen(rhs).(*ast.CallExpr)
	if !ok {
		return Decl{}, false
	}
	d := Decl{Name: ident, Args: call.Args, Node: node}
	if name, arg, ok := r.Generic(call.Fun); ok {
		d.Kind, d.TypeArg = declCtors[name], arg
	} else if name, ok := r.Sel(call.Fun); ok && name == "NewSeq" {
		d.Kind = SeqDecl
	}
	if d.Kind == 0 || (d.Kind != SeqDecl && d.TypeArg == nil) {
		return Decl{}, false
	}
	return d, true
}

// IsSeqCall reports whether expr is an inline `<Pkg>.NewSeq()` call.
func (r Recognizer) IsSeqCall(expr ast.Expr) bool {
	call, ok := ast.Unparen(expr).(*ast.CallExpr)
	if !ok || len(call.Args) != 0 {
		return false
	}
	name, ok := r.Sel(call.Fun)
	return ok && name == "NewSeq"
}

// ArrayOf splits `[L]<Pkg>.<Name>[T]` into its length and element argument.
func (r Recognizer) ArrayOf(expr ast.Expr, name string) (ast.Expr, ast.Expr, bool) {
	arr, ok := ast.Unparen(expr).(*ast.ArrayType)
	if !ok || arr.Len == nil {
		return nil, nil, false
	}
	got, arg, ok := r.Generic(arr.Elt)
	if !ok || got != name {
		return nil, nil, false
	}
	return arr.Len, arg, true
}
