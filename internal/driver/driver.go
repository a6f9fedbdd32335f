// Package driver compiles units: it discovers the task hierarchy below the
// top-level task, builds and validates every communication graph, and
// produces per-task source text, the host wrapper and the metadata document.
package driver

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"flowcc/internal/ctxlog"
	"flowcc/internal/diag"
	"flowcc/internal/flowtype"
	"flowcc/internal/frontend"
	"flowcc/internal/hostshim"
	"flowcc/internal/ir"
	"flowcc/internal/metadata"
	"flowcc/internal/passes"
	"flowcc/internal/target"
	"flowcc/internal/validate"
)

// Options configures a compilation.
type Options struct {
	// Top names the top-level task.
	Top string
	// Target applies to tasks without a target directive. Zero means
	// ir.DefaultTarget.
	Target ir.Target
	// Strategies maps targets to code generators. Nil means target.Builtin.
	Strategies target.Table
	// HostShim enables host wrapper generation for the top-level task.
	HostShim bool
	// Workers bounds CompileAll parallelism; zero or less means one worker
	// per unit.
	Workers    int
	DiagFormat string
}

// Result is the output of compiling one unit.
type Result struct {
	Unit   *frontend.Unit
	Design *ir.Design
	// Code holds the rewritten unit text of every task, by task name.
	Code map[string][]byte
	// Host is the host wrapper, nil when disabled or not generated.
	Host     []byte
	Document *metadata.Document
	Errors   int
	Warnings int
	// Failed lists, in discovery order, the tasks any error was recorded for.
	Failed []string
}

// taskContext is the per-unit state of one compilation. It is owned by a
// single worker.
type taskContext struct {
	ctx        context.Context
	opts       Options
	unit       *frontend.Unit
	reporter   *diag.Reporter
	build      *ir.Context
	design     *ir.Design
	strategies map[string]target.Strategy
}

// Compile compiles one unit, reporting user-source problems to reporter.
// The returned error is reserved for failures that prevent any output.
func Compile(ctx context.Context, unit *frontend.Unit, opts Options, reporter *diag.Reporter) (*Result, error) {
	logger := ctxlog.FromContext(ctx).With("unit", unit.Path)
	if opts.Target == (ir.Target{}) {
		opts.Target = ir.DefaultTarget
	}
	if opts.Strategies == nil {
		opts.Strategies = target.Builtin
	}
	top := unit.Func(opts.Top)
	if top == nil || !unit.InFile(top) {
		return nil, fmt.Errorf("%s: top-level task %q not found", unit.Path, opts.Top)
	}

	tc := &taskContext{
		ctx:        ctx,
		opts:       opts,
		unit:       unit,
		reporter:   reporter,
		build:      ir.NewContext(unit, reporter),
		design:     ir.NewDesign(opts.Top),
		strategies: make(map[string]target.Strategy),
	}
	res := &Result{Unit: unit, Design: tc.design, Code: make(map[string][]byte)}

	tc.discover()
	logger.Debug("discovered tasks", "count", len(tc.design.Tasks))

	pm := passes.NewManager()
	pm.Add(passes.NewWidthInference(unit, reporter))
	if err := pm.Run(tc.design); err != nil {
		logger.Debug("pass pipeline reported errors", "err", err)
	}
	if err := validate.CheckDesign(unit, tc.design, reporter); err != nil {
		logger.Debug("validation reported errors", "err", err)
	}

	for _, task := range tc.design.Tasks {
		code, err := tc.taskCode(task)
		if err != nil {
			return nil, fmt.Errorf("%s: task %s: %w", unit.Path, task.Name, err)
		}
		res.Code[task.Name] = code
	}

	var frt string
	if opts.HostShim {
		host, err := hostshim.Generate(unit, tc.design.TopTask())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", unit.Path, err)
		}
		res.Host = host
		frt = string(host)
	}

	res.Document = metadata.NewDocument(opts.Top)
	for _, task := range tc.design.Tasks {
		res.Document.Tasks[task.Name] = metadata.Task(task, string(res.Code[task.Name]), frt)
	}
	res.Failed = tc.design.Failed()
	res.Errors = reporter.ErrorCount()
	res.Warnings = reporter.Count(diag.Warning)
	logger.Info("compiled unit", "tasks", len(tc.design.Tasks), "errors", res.Errors, "warnings", res.Warnings)
	return res, nil
}

// discover visits tasks breadth-first from the top in discovery order. Each
// task is built exactly once.
func (tc *taskContext) discover() {
	logger := ctxlog.FromContext(tc.ctx)
	queue := []string{tc.opts.Top}
	seen := map[string]bool{tc.opts.Top: true}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		fn := tc.unit.Func(name)
		if fn == nil || fn.Body == nil {
			continue
		}

		before := tc.reporter.ErrorCount()
		task := tc.build.BuildTask(fn, name == tc.opts.Top)
		if _, _, _, ok := flowtype.Target(fn); !ok {
			task.Target = tc.opts.Target
		}
		strategy, err := tc.opts.Strategies.Lookup(task.Target)
		if err != nil {
			tc.reporter.Report(diag.Error, fn.Name.Pos(), fn.Name.End(), "unsupported target: %0", task.Target.String())
		}
		tc.strategies[name] = strategy
		tc.design.Add(task)
		if tc.reporter.ErrorCount() > before {
			tc.design.Fail(name)
		}
		logger.Debug("built task", "task", name, "level", task.Level.String(), "target", task.Target.String())

		if task.Graph == nil {
			continue
		}
		for _, callee := range task.Graph.Callees {
			if !seen[callee] {
				seen[callee] = true
				queue = append(queue, callee)
			}
		}
	}
}

// CompileAll compiles, in parallel, every unit that declares the top-level
// task. Diagnostics of each unit are buffered by its worker and written to w
// in unit order once every unit is done.
func CompileAll(ctx context.Context, units []*frontend.Unit, opts Options, w io.Writer) ([]*Result, error) {
	var selected []*frontend.Unit
	for _, unit := range units {
		if fn := unit.Func(opts.Top); fn != nil && unit.InFile(fn) {
			selected = append(selected, unit)
		}
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("top-level task %q not found in any source", opts.Top)
	}
	units = selected
	results := make([]*Result, len(units))
	outputs := make([]bytes.Buffer, len(units))

	g, gctx := errgroup.WithContext(ctx)
	if opts.Workers > 0 {
		g.SetLimit(opts.Workers)
	}
	for i, unit := range units {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			reporter := diag.NewReporter(&outputs[i], opts.DiagFormat)
			reporter.SetFileSet(unit.Fset)
			reporter.AddSource(unit.Path, unit.Src)
			res, err := Compile(gctx, unit, opts, reporter)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	err := g.Wait()
	for i := range outputs {
		if _, werr := outputs[i].WriteTo(w); werr != nil && err == nil {
			err = fmt.Errorf("write diagnostics: %w", werr)
		}
	}
	if err != nil {
		return nil, err
	}
	return results, nil
}

// ErrorCount sums the errors of results.
func ErrorCount(results []*Result) int {
	n := 0
	for _, r := range results {
		if r != nil {
			n += r.Errors
		}
	}
	return n
}
