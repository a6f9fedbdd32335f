package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"flowcc/internal/backend"
	"flowcc/internal/config"
	"flowcc/internal/ctxlog"
	"flowcc/internal/diag"
	"flowcc/internal/driver"
	"flowcc/internal/frontend"
	"flowcc/internal/ir"
)

// inputOptions are the flags shared by compile and lint.
type inputOptions struct {
	top        string
	workers    int
	standalone bool
	tags       []string
	defines    map[string]int64
	target     string
}

func (in *inputOptions) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&in.top, "top", "", "top-level task")
	flags.IntVar(&in.workers, "workers", 0, "units compiled in parallel (0 means one per unit)")
	flags.BoolVar(&in.standalone, "standalone", false, "parse each source on its own instead of loading its package")
	flags.StringSliceVar(&in.tags, "tags", nil, "build tags used when loading packages")
	flags.StringToInt64VarP(&in.defines, "define", "D", nil, "integer constant injected into every unit (name=value)")
	flags.StringVar(&in.target, "target", "", "default target for tasks without a directive (technology/vendor)")
}

type compileOptions struct {
	inputOptions
	outputDir string
	format    string
	noHost    bool
	formatter string
}

func newCompileCommand(g *globalOptions) *cobra.Command {
	o := &compileOptions{}
	cmd := &cobra.Command{
		Use:   "compile [flags] [sources...]",
		Short: "Generate per-task sources, the host wrapper and metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, g, &o.inputOptions, args)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("output-dir") {
				cfg.OutputDir = o.outputDir
			}
			if flags.Changed("format") {
				cfg.Format = o.format
			}
			if o.noHost {
				cfg.HostShim = false
			}
			if flags.Changed("formatter") {
				cfg.Formatter = o.formatter
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd, g, cfg, true, false)
		},
	}
	o.register(cmd)
	flags := cmd.Flags()
	flags.StringVarP(&o.outputDir, "output-dir", "o", "", "directory receiving the artifacts")
	flags.StringVar(&o.format, "format", "", "metadata format (json|yaml)")
	flags.BoolVar(&o.noHost, "no-host", false, "skip host wrapper generation")
	flags.StringVar(&o.formatter, "formatter", "", "binary that formats generated Go sources, such as gofmt")
	return cmd
}

func newLintCommand(g *globalOptions) *cobra.Command {
	in := &inputOptions{}
	var dump bool
	cmd := &cobra.Command{
		Use:   "lint [flags] [sources...]",
		Short: "Check task graphs without writing artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, g, in, args)
			if err != nil {
				return err
			}
			cfg.HostShim = false
			return run(cmd, g, cfg, false, dump)
		},
	}
	in.register(cmd)
	cmd.Flags().BoolVar(&dump, "dump-ir", false, "print the extracted task graphs")
	return cmd
}

func run(cmd *cobra.Command, g *globalOptions, cfg config.Config, emit, dump bool) error {
	applyColor(cfg)
	level, err := ctxlog.ParseLevel(g.logLevel)
	if err != nil {
		return err
	}
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	logger := ctxlog.New(stderr, level, g.logFormat)
	ctx := ctxlog.WithLogger(cmd.Context(), logger)

	reporter := diag.NewReporter(stderr, cfg.DiagFormat)
	units, err := frontend.Load(frontend.LoadConfig{
		Sources:    cfg.Sources,
		BuildTags:  cfg.BuildTags,
		Defines:    cfg.Defines,
		Standalone: cfg.Standalone,
	}, reporter)
	if err != nil {
		return err
	}
	if n := reporter.ErrorCount(); n > 0 {
		return fmt.Errorf("loading failed with %d error(s)", n)
	}
	logger.Debug("loaded sources", "units", len(units))

	results, err := driver.CompileAll(ctx, units, driver.Options{
		Top:        cfg.Top,
		Target:     cfg.Target,
		HostShim:   cfg.HostShim,
		Workers:    cfg.Workers,
		DiagFormat: cfg.DiagFormat,
	}, stderr)
	if err != nil {
		return err
	}
	if dump {
		for _, res := range results {
			ir.Dump(res.Design, stdout)
		}
	}
	if n := driver.ErrorCount(results); n > 0 {
		return fmt.Errorf("compilation failed with %d error(s)", n)
	}

	if !emit {
		warnings := 0
		for _, res := range results {
			warnings += res.Warnings
		}
		fmt.Fprintf(stdout, "%s: %d unit(s) checked, %d warning(s)\n", cfg.Top, len(results), warnings)
		return nil
	}

	written, err := backend.WriteAll(ctx, results, backend.Options{
		OutputDir:     cfg.OutputDir,
		Format:        cfg.Format,
		FormatterPath: cfg.Formatter,
	})
	if err != nil {
		return err
	}
	for _, w := range written {
		fmt.Fprintln(stdout, w.MetadataPath)
	}
	return nil
}
