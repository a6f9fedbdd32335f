package driver

import (
	"go/ast"
	"strings"

	"flowcc/internal/flowtype"
	"flowcc/internal/ir"
	"flowcc/internal/rewrite"
	"flowcc/internal/target"
)

// stubBody replaces the bodies of tasks that return values.
const stubBody = `{
	panic("flowcc: stub")
}`

// taskCode renders the unit as seen when compiling current: current is
// rewritten for its level, every other discovered task keeps only its
// signature, and everything else is left as written.
func (tc *taskContext) taskCode(current *ir.Task) ([]byte, error) {
	buf := rewrite.New(tc.unit.Src)
	for _, task := range tc.design.Tasks {
		fn := task.Decl
		if fn == nil || fn.Body == nil || !tc.unit.InFile(fn) {
			continue
		}
		strategy := tc.strategies[task.Name]
		for _, edit := range strategy.RewriteArgs(task, task.Level == ir.Top) {
			start, end := tc.unit.Offset(edit.Field.Type.Pos()), tc.unit.Offset(edit.Field.Type.End())
			if err := buf.Replace(start, end, edit.Type); err != nil {
				return nil, err
			}
		}
		if task == current {
			if err := tc.rewriteCurrent(buf, task, strategy); err != nil {
				return nil, err
			}
			continue
		}
		body := "{}"
		if fn.Type.Results != nil && fn.Type.Results.NumFields() > 0 {
			body = stubBody
		}
		if err := buf.Replace(tc.unit.Offset(fn.Body.Lbrace), tc.unit.Offset(fn.Body.Rbrace)+1, body); err != nil {
			return nil, err
		}
	}
	return buf.Bytes()
}

func (tc *taskContext) rewriteCurrent(buf *rewrite.Buffer, task *ir.Task, s target.Strategy) error {
	fn := task.Decl
	var lines []string
	for _, d := range flowtype.Directives(fn.Doc) {
		if d.Kind == "target" {
			continue
		}
		lines = append(lines, target.Attr(s, d, target.AttrTarget{Kind: target.DeclTarget, Node: fn, Body: fn.Body})...)
	}
	lines = append(lines, target.Generate(s, task, task.Level)...)
	if err := tc.insertLines(buf, fn.Body, lines); err != nil {
		return err
	}

	for stmt, ds := range flowtype.LoopDirectives(tc.unit.Fset, tc.unit.File, fn.Body) {
		body := target.LoopBody(stmt)
		if body == nil {
			continue
		}
		var loopLines []string
		for _, d := range ds {
			loopLines = append(loopLines, target.Attr(s, d, target.AttrTarget{Kind: target.StmtTarget, Node: stmt, Body: body})...)
		}
		if err := tc.insertLines(buf, body, loopLines); err != nil {
			return err
		}
	}
	return nil
}

// insertLines places lines right after the opening brace of body, indented
// one level deeper than the line holding the brace.
func (tc *taskContext) insertLines(buf *rewrite.Buffer, body *ast.BlockStmt, lines []string) error {
	if len(lines) == 0 {
		return nil
	}
	lbrace := tc.unit.Offset(body.Lbrace)
	indent := lineIndent(tc.unit.Src, lbrace) + "\t"
	var sb strings.Builder
	for _, line := range lines {
		sb.WriteByte('\n')
		if line != "" {
			sb.WriteString(indent)
			sb.WriteString(line)
		}
	}
	return buf.InsertAfter(lbrace+1, sb.String())
}

// lineIndent returns the leading whitespace of the line containing offset.
func lineIndent(src []byte, offset int) string {
	start := offset
	for start > 0 && src[start-1] != '\n' {
		start--
	}
	end := start
	for end < len(src) && (src[end] == ' ' || src[end] == '\t') {
		end++
	}
	return string(src[start:end])
}
