// Package diag collects and renders source-located compiler diagnostics.
package diag

import (
	"encoding/json"
	"fmt"
	"go/token"
	"io"
	"strconv"
	"strings"
)

// Severity orders diagnostics from informational to fatal-for-the-task.
type Severity int

const (
	Remark Severity = iota
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Remark:
		return "remark"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "severity(" + strconv.Itoa(int(s)) + ")"
	}
}

// MarshalText renders the severity by name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Diagnostic is one rendered message. Pos and End delimit the highlighted
// source range; End may be NoPos for point diagnostics.
type Diagnostic struct {
	Severity Severity
	Pos      token.Pos
	End      token.Pos
	Message  string
}

// Reporter records diagnostics and writes them to an output stream as they
// arrive. A Reporter is not safe for concurrent use; parallel workers each
// own one.
type Reporter struct {
	w       io.Writer
	format  string
	fset    *token.FileSet
	sources map[string][]byte

	diags  []Diagnostic
	counts [3]int
}

// NewReporter creates a reporter writing in the given format ("text" or
// "json"). Unknown formats fall back to text.
func NewReporter(w io.Writer, format string) *Reporter {
	if w == nil {
		w = io.Discard
	}
	if format != "json" {
		format = "text"
	}
	return &Reporter{w: w, format: format, sources: make(map[string][]byte)}
}

// SetFileSet provides the position table used to render token.Pos values.
func (r *Reporter) SetFileSet(fset *token.FileSet) {
	r.fset = fset
}

// FileSet returns the position table set on the reporter, if any.
func (r *Reporter) FileSet() *token.FileSet {
	return r.fset
}

// AddSource registers file contents so text output can quote the offending
// line.
func (r *Reporter) AddSource(filename string, src []byte) {
	r.sources[filename] = src
}

// Error reports an error at pos.
func (r *Reporter) Error(pos token.Pos, msg string) {
	r.emit(Diagnostic{Severity: Error, Pos: pos, Message: msg})
}

// Warning reports a warning at pos.
func (r *Reporter) Warning(pos token.Pos, msg string) {
	r.emit(Diagnostic{Severity: Warning, Pos: pos, Message: msg})
}

// Remark reports an informational note at pos.
func (r *Reporter) Remark(pos token.Pos, msg string) {
	r.emit(Diagnostic{Severity: Remark, Pos: pos, Message: msg})
}

// Errorf reports an error without a source position.
func (r *Reporter) Errorf(format string, args ...any) {
	r.emit(Diagnostic{Severity: Error, Message: fmt.Sprintf(format, args...)})
}

// Report emits a diagnostic over the node range [pos, end). The template uses
// positional placeholders %0, %1, ... which are replaced by args in order.
func (r *Reporter) Report(sev Severity, pos, end token.Pos, template string, args ...string) {
	r.emit(Diagnostic{Severity: sev, Pos: pos, End: end, Message: Expand(template, args...)})
}

// Expand substitutes %N placeholders in template with args[N]. Placeholders
// without a matching argument are left untouched.
func Expand(template string, args ...string) string {
	if !strings.Contains(template, "%") {
		return template
	}
	var b strings.Builder
	for i := 0; i < len(template); i++ {
		c := template[i]
		if c != '%' || i+1 >= len(template) {
			b.WriteByte(c)
			continue
		}
		j := i + 1
		for j < len(template) && template[j] >= '0' && template[j] <= '9' {
			j++
		}
		if j == i+1 {
			b.WriteByte(c)
			continue
		}
		idx, err := strconv.Atoi(template[i+1 : j])
		if err != nil || idx >= len(args) {
			b.WriteString(template[i:j])
		} else {
			b.WriteString(args[idx])
		}
		i = j - 1
	}
	return b.String()
}

// HasErrors reports whether any error-severity diagnostic was recorded.
func (r *Reporter) HasErrors() bool {
	return r.ErrorCount() > 0
}

// ErrorCount returns the number of errors recorded so far. Callers snapshot it
// before and after a unit of work to attribute failures.
func (r *Reporter) ErrorCount() int {
	return r.counts[Error]
}

// Count returns the number of diagnostics recorded at the given severity.
func (r *Reporter) Count(sev Severity) int {
	if sev < Remark || sev > Error {
		return 0
	}
	return r.counts[sev]
}

// Diagnostics returns a copy of everything recorded so far.
func (r *Reporter) Diagnostics() []Diagnostic {
	return append([]Diagnostic(nil), r.diags...)
}

func (r *Reporter) emit(d Diagnostic) {
	r.diags = append(r.diags, d)
	if d.Severity >= Remark && d.Severity <= Error {
		r.counts[d.Severity]++
	}

	if r.format == "json" {
		r.writeJSON(d)
		return
	}
	r.writeText(d)
}

type jsonDiagnostic struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	File     string   `json:"file,omitempty"`
	Line     int      `json:"line,omitempty"`
	Column   int      `json:"column,omitempty"`
	EndLine  int      `json:"end_line,omitempty"`
	EndCol   int      `json:"end_column,omitempty"`
}

func (r *Reporter) writeJSON(d Diagnostic) {
	out := jsonDiagnostic{Severity: d.Severity, Message: d.Message}
	if pos, ok := r.position(d.Pos); ok {
		out.File, out.Line, out.Column = pos.Filename, pos.Line, pos.Column
	}
	if end, ok := r.position(d.End); ok {
		out.EndLine, out.EndCol = end.Line, end.Column
	}
	data, err := json.Marshal(out)
	if err != nil {
		fmt.Fprintf(r.w, "%s: %s\n", d.Severity, d.Message)
		return
	}
	fmt.Fprintln(r.w, string(data))
}

func (r *Reporter) position(pos token.Pos) (token.Position, bool) {
	if r.fset == nil || !pos.IsValid() {
		return token.Position{}, false
	}
	p := r.fset.Position(pos)
	return p, p.IsValid()
}
