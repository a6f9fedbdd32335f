package flowtype

import (
	"go/ast"
	"go/token"
	"strings"
)

// DirectivePrefix starts every structural attribute comment.
const DirectivePrefix = "//flow:"

// Directive is one `//flow:<kind> <args>` comment line.
type Directive struct {
	Kind string
	Args []string
	Pos  token.Pos
	End  token.Pos
}

// Arg returns the value of a `key=value` argument.
func (d Directive) Arg(key string) (string, bool) {
	for _, a := range d.Args {
		k, v, ok := strings.Cut(a, "=")
		if ok && strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

// Has reports whether a bare argument is present.
func (d Directive) Has(word string) bool {
	for _, a := range d.Args {
		if strings.EqualFold(a, word) {
			return true
		}
	}
	return false
}

// ParseDirective parses a single comment. ok is false for ordinary comments.
func ParseDirective(c *ast.Comment) (Directive, bool) {
	text, ok := strings.CutPrefix(c.Text, DirectivePrefix)
	if !ok {
		return Directive{}, false
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return Directive{}, false
	}
	return Directive{Kind: fields[0], Args: fields[1:], Pos: c.Pos(), End: c.End()}, true
}

// Directives returns the directives of a comment group in source order.
func Directives(group *ast.CommentGroup) []Directive {
	if group == nil {
		return nil
	}
	var out []Directive
	for _, c := range group.List {
		if d, ok := ParseDirective(c); ok {
			out = append(out, d)
		}
	}
	return out
}

// Target returns the function's `//flow:target <technology> <vendor>`
// directive values.
func Target(fn *ast.FuncDecl) (technology, vendor string, d Directive, ok bool) {
	for _, d := range Directives(fn.Doc) {
		if d.Kind != "target" {
			continue
		}
		technology, vendor = "hls", "xilinx"
		if len(d.Args) > 0 {
			technology = d.Args[0]
		}
		if len(d.Args) > 1 {
			vendor = d.Args[1]
		}
		return technology, vendor, d, true
	}
	return "", "", Directive{}, false
}

// LoopDirectives maps every for or range statement inside body to the
// directives written on the lines directly above it.
func LoopDirectives(fset *token.FileSet, file *ast.File, body *ast.BlockStmt) map[ast.Stmt][]Directive {
	if body == nil {
		return nil
	}
	byLine := make(map[int]Directive)
	for _, group := range file.Comments {
		if group.End() < body.Lbrace || group.Pos() > body.Rbrace {
			continue
		}
		for _, c := range group.List {
			if d, ok := ParseDirective(c); ok {
				byLine[fset.Position(c.Pos()).Line] = d
			}
		}
	}
	if len(byLine) == 0 {
		return nil
	}
	out := make(map[ast.Stmt][]Directive)
	ast.Inspect(body, func(n ast.Node) bool {
		var stmt ast.Stmt
		switch s := n.(type) {
		case *ast.ForStmt:
			stmt = s
		case *ast.RangeStmt:
			stmt = s
		default:
			return true
		}
		line := fset.Position(stmt.Pos()).Line
		var ds []Directive
		for l := line - 1; ; l-- {
			d, ok := byLine[l]
			if !ok {
				break
			}
			ds = append([]Directive{d}, ds...)
		}
		if len(ds) > 0 {
			out[stmt] = ds
		}
		return true
	})
	return out
}
