// Package config loads the optional flowcc.hcl project file.
package config

import (
	"fmt"
	"math/big"
	"runtime"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"flowcc/internal/ir"
)

// DefaultFile is the project file looked up in the working directory.
const DefaultFile = "flowcc.hcl"

// Config is the resolved project configuration.
type Config struct {
	Top        string
	Sources    []string
	OutputDir  string
	// Format is the metadata encoding, "json" or "yaml".
	Format     string
	Workers    int
	Standalone bool
	BuildTags  []string
	// Formatter is an optional binary run over generated Go files.
	Formatter  string
	Defines    map[string]int64
	// Target applies to tasks without a target directive.
	Target     ir.Target
	HostShim   bool
	DiagFormat string
	Color      bool
}

// Default returns the configuration used when no project file exists.
func Default() Config {
	return Config{
		OutputDir:  "flowcc-out",
		Format:     "json",
		Workers:    runtime.NumCPU(),
		Defines:    map[string]int64{},
		Target:     ir.DefaultTarget,
		HostShim:   true,
		DiagFormat: "text",
		Color:      true,
	}
}

type fileSchema struct {
	Top         string           `hcl:"top,optional"`
	Sources     []string         `hcl:"sources,optional"`
	OutputDir   string           `hcl:"output_dir,optional"`
	Format      string           `hcl:"format,optional"`
	Workers     int              `hcl:"workers,optional"`
	Standalone  bool             `hcl:"standalone,optional"`
	BuildTags   []string         `hcl:"build_tags,optional"`
	Formatter   string           `hcl:"formatter,optional"`
	Defines     hcl.Expression   `hcl:"defines,optional"`
	Target      *targetBlock     `hcl:"target,block"`
	Host        *hostBlock       `hcl:"host,block"`
	Diagnostics *diagnosticBlock `hcl:"diagnostics,block"`
}

type targetBlock struct {
	Technology string `hcl:"technology"`
	Vendor     string `hcl:"vendor"`
}

type hostBlock struct {
	Enabled *bool `hcl:"enabled,optional"`
}

type diagnosticBlock struct {
	Format string `hcl:"format,optional"`
	Color  *bool  `hcl:"color,optional"`
}

// Load reads the project file at path on top of Default. env is exposed to
// the defines expression as the env object.
func Load(path string, env map[string]string) (Config, error) {
	cfg := Default()
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return cfg, fmt.Errorf("failed to parse %s: %s", path, diags.Error())
	}

	var raw fileSchema
	if diags := gohcl.DecodeBody(file.Body, nil, &raw); diags.HasErrors() {
		return cfg, fmt.Errorf("failed to decode %s: %s", path, diags.Error())
	}

	if raw.Top != "" {
		cfg.Top = raw.Top
	}
	if len(raw.Sources) > 0 {
		cfg.Sources = raw.Sources
	}
	if raw.OutputDir != "" {
		cfg.OutputDir = raw.OutputDir
	}
	if raw.Format != "" {
		cfg.Format = raw.Format
	}
	if raw.Workers != 0 {
		cfg.Workers = raw.Workers
	}
	cfg.Standalone = raw.Standalone
	cfg.BuildTags = raw.BuildTags
	cfg.Formatter = raw.Formatter
	if raw.Target != nil {
		cfg.Target = ir.Target{Technology: raw.Target.Technology, Vendor: raw.Target.Vendor}
	}
	if raw.Host != nil && raw.Host.Enabled != nil {
		cfg.HostShim = *raw.Host.Enabled
	}
	if d := raw.Diagnostics; d != nil {
		if d.Format != "" {
			cfg.DiagFormat = d.Format
		}
		if d.Color != nil {
			cfg.Color = *d.Color
		}
	}

	defines, err := evalDefines(raw.Defines, env)
	if err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Defines = defines
	return cfg, cfg.Validate()
}

// Validate checks value ranges.
func (c Config) Validate() error {
	switch c.Format {
	case "json", "yaml":
	default:
		return fmt.Errorf("format must be \"json\" or \"yaml\", got %q", c.Format)
	}
	switch c.DiagFormat {
	case "text", "json":
	default:
		return fmt.Errorf("diagnostics format must be \"text\" or \"json\", got %q", c.DiagFormat)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if c.Target.Technology == "" || c.Target.Vendor == "" {
		return fmt.Errorf("target needs both technology and vendor")
	}
	return nil
}

func evalDefines(expr hcl.Expression, env map[string]string) (map[string]int64, error) {
	out := map[string]int64{}
	if expr == nil {
		return out, nil
	}
	vars := make(map[string]cty.Value, len(env))
	for k, v := range env {
		vars[k] = cty.StringVal(v)
	}
	ctx := &hcl.EvalContext{Variables: map[string]cty.Value{"env": cty.ObjectVal(vars)}}
	val, diags := expr.Value(ctx)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to evaluate defines: %s", diags.Error())
	}
	if val.IsNull() {
		return out, nil
	}
	ty := val.Type()
	if !ty.IsObjectType() && !ty.IsMapType() {
		return nil, fmt.Errorf("defines must be an object, got %s", ty.FriendlyName())
	}
	for it := val.ElementIterator(); it.Next(); {
		k, v := it.Element()
		name := k.AsString()
		n, err := convert.Convert(v, cty.Number)
		if err != nil || n.IsNull() || !n.IsKnown() {
			return nil, fmt.Errorf("define %s must be a number", name)
		}
		bf := n.AsBigFloat()
		i, acc := bf.Int64()
		if acc != big.Exact {
			return nil, fmt.Errorf("define %s must be a 64-bit integer, got %s", name, bf.Text('g', -1))
		}
		out[name] = i
	}
	return out, nil
}
