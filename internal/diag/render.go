package diag

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/fatih/color"
)

var (
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgMagenta, color.Bold)
	remarkColor  = color.New(color.FgCyan, color.Bold)
	caretColor   = color.New(color.FgGreen, color.Bold)
)

func severityLabel(sev Severity) string {
	var c *color.Color
	switch sev {
	case Error:
		c = errorColor
	case Warning:
		c = warningColor
	default:
		c = remarkColor
	}
	return c.Sprint(sev.String())
}

// writeText renders `file:line:col: severity: message`, followed by the
// quoted source line and an underline when the source is known.
func (r *Reporter) writeText(d Diagnostic) {
	pos, ok := r.position(d.Pos)
	if !ok {
		fmt.Fprintf(r.w, "%s: %s\n", severityLabel(d.Severity), d.Message)
		return
	}
	fmt.Fprintf(r.w, "%s: %s: %s\n", pos, severityLabel(d.Severity), d.Message)

	line, ok := r.sourceLine(pos.Filename, pos.Line)
	if !ok {
		return
	}
	width := 1
	if end, ok := r.position(d.End); ok && end.Line == pos.Line && end.Column > pos.Column {
		width = end.Column - pos.Column
	}
	fmt.Fprintf(r.w, "%s\n", expandTabs(line))
	fmt.Fprintf(r.w, "%s%s\n", underlineIndent(line, pos.Column), caretColor.Sprint("^"+strings.Repeat("~", width-1)))
}

func (r *Reporter) sourceLine(filename string, line int) (string, bool) {
	src, ok := r.sources[filename]
	if !ok || line <= 0 {
		return "", false
	}
	lines := bytes.Split(src, []byte("\n"))
	if line > len(lines) {
		return "", false
	}
	return strings.TrimRight(string(lines[line-1]), "\r"), true
}

func expandTabs(line string) string {
	return strings.ReplaceAll(line, "\t", "    ")
}

// underlineIndent returns the blank prefix that aligns a caret with the 1-based
// byte column col of line once tabs are expanded.
func underlineIndent(line string, col int) string {
	if col <= 1 {
		return ""
	}
	if col-1 > len(line) {
		col = len(line) + 1
	}
	return strings.Repeat(" ", len(expandTabs(line[:col-1])))
}
