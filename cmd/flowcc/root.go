package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"flowcc/internal/config"
	"flowcc/internal/ir"
)

// globalOptions are shared by every subcommand.
type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string
	diagFormat string
	noColor    bool
}

func newRootCommand() *cobra.Command {
	g := &globalOptions{}
	cmd := &cobra.Command{
		Use:   "flowcc",
		Short: "Compile dataflow task graphs written with the flow package",
		Long: "flowcc extracts the task graph below a top-level task, validates its\n" +
			"streams and buffers, and generates per-task sources, a host wrapper\n" +
			"and a metadata document for the selected hardware target.\n",
		Version:       versionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.SetVersionTemplate("{{.Version}}\n")

	flags := cmd.PersistentFlags()
	flags.StringVar(&g.configPath, "config", "", "project file (default "+config.DefaultFile+" when present)")
	flags.StringVar(&g.logLevel, "log-level", "warn", "log level (debug|info|warn|error|silent)")
	flags.StringVar(&g.logFormat, "log-format", "text", "log format (text|json)")
	flags.StringVar(&g.diagFormat, "diag-format", "", "diagnostic output format (text|json)")
	flags.BoolVar(&g.noColor, "no-color", false, "disable coloured output")

	cmd.AddCommand(
		newCompileCommand(g),
		newLintCommand(g),
		newVersionCommand(),
	)
	return cmd
}

// resolveConfig layers the project file, then flags that were set, then the
// positional sources.
func resolveConfig(cmd *cobra.Command, g *globalOptions, in *inputOptions, args []string) (config.Config, error) {
	cfg := config.Default()
	path := g.configPath
	explicit := path != ""
	if !explicit {
		path = config.DefaultFile
	}
	if _, err := os.Stat(path); err == nil || explicit {
		loaded, err := config.Load(path, environ())
		if err != nil {
			return cfg, err
		}
		cfg = loaded
		// Sources listed in the file are relative to it.
		for i, src := range cfg.Sources {
			if !filepath.IsAbs(src) {
				cfg.Sources[i] = filepath.Join(filepath.Dir(path), src)
			}
		}
	}

	flags := cmd.Flags()
	if flags.Changed("top") {
		cfg.Top = in.top
	}
	if flags.Changed("workers") {
		cfg.Workers = in.workers
	}
	if flags.Changed("standalone") {
		cfg.Standalone = in.standalone
	}
	if flags.Changed("tags") {
		cfg.BuildTags = in.tags
	}
	for name, v := range in.defines {
		cfg.Defines[name] = v
	}
	if flags.Changed("target") {
		t, err := parseTarget(in.target)
		if err != nil {
			return cfg, err
		}
		cfg.Target = t
	}
	if g.diagFormat != "" {
		cfg.DiagFormat = g.diagFormat
	}
	if g.noColor {
		cfg.Color = false
	}
	if len(args) > 0 {
		cfg.Sources = args
	}

	if cfg.Top == "" {
		return cfg, fmt.Errorf("no top-level task: pass --top or set top in %s", config.DefaultFile)
	}
	if len(cfg.Sources) == 0 {
		return cfg, fmt.Errorf("no source files: pass them as arguments or set sources in %s", config.DefaultFile)
	}
	return cfg, cfg.Validate()
}

// parseTarget reads "technology/vendor".
func parseTarget(s string) (ir.Target, error) {
	tech, vendor, ok := strings.Cut(s, "/")
	if !ok || tech == "" || vendor == "" {
		return ir.Target{}, fmt.Errorf("invalid target %q, want technology/vendor", s)
	}
	return ir.Target{Technology: tech, Vendor: vendor}, nil
}

func environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

func applyColor(cfg config.Config) {
	if _, exists := os.LookupEnv("NO_COLOR"); exists || !cfg.Color {
		color.NoColor = true
	}
}
