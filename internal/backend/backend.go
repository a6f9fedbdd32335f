// Package backend writes compilation results to disk.
package backend

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"flowcc/internal/ctxlog"
	"flowcc/internal/driver"
	"flowcc/internal/metadata"
)

// Options configures where and how artifacts are written.
type Options struct {
	// OutputDir receives one subdirectory per compiled unit.
	OutputDir string
	// Format selects the metadata encoding, "json" or "yaml".
	Format string
	// FormatterPath optionally names a binary that reads Go source on stdin
	// and prints it formatted, such as gofmt. A bare name is looked up on
	// PATH.
	FormatterPath string
}

// Result lists the artifacts produced for one unit.
type Result struct {
	MetadataPath string
	// TaskPaths holds the per-task sources, sorted by task name.
	TaskPaths []string
	// HostPath is empty when no host wrapper was generated.
	HostPath string
}

// Write lays out the artifacts of res under OutputDir/<unit>:
//
//	<top>.flow.<format>
//	tasks/<task>.go
//	host/<top>_host.go
func Write(ctx context.Context, res *driver.Result, opts Options) (Result, error) {
	if res == nil || res.Document == nil {
		return Result{}, fmt.Errorf("backend: result is nil")
	}
	if opts.OutputDir == "" {
		return Result{}, fmt.Errorf("backend: output directory is required")
	}
	if opts.Format == "" {
		opts.Format = "json"
	}

	var formatter string
	if opts.FormatterPath != "" {
		path, err := resolveBinary(opts.FormatterPath)
		if err != nil {
			return Result{}, fmt.Errorf("backend: resolve formatter: %w", err)
		}
		formatter = path
	}

	top := res.Document.Top
	dir := filepath.Join(opts.OutputDir, unitDir(res.Unit.Path))
	logger := ctxlog.FromContext(ctx).With("unit", res.Unit.Path, "dir", dir)

	var out Result
	names := make([]string, 0, len(res.Code))
	for name := range res.Code {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		path := filepath.Join(dir, "tasks", name+".go")
		if err := writeSource(ctx, formatter, path, res.Code[name]); err != nil {
			return Result{}, err
		}
		out.TaskPaths = append(out.TaskPaths, path)
	}

	if res.Host != nil {
		path := filepath.Join(dir, "host", top+"_host.go")
		if err := writeSource(ctx, formatter, path, res.Host); err != nil {
			return Result{}, err
		}
		out.HostPath = path
	}

	data, err := metadata.Marshal(res.Document, opts.Format)
	if err != nil {
		return Result{}, fmt.Errorf("backend: %w", err)
	}
	out.MetadataPath = filepath.Join(dir, top+".flow."+opts.Format)
	if err := writeFile(out.MetadataPath, data); err != nil {
		return Result{}, err
	}
	logger.Info("wrote artifacts", "tasks", len(out.TaskPaths), "metadata", out.MetadataPath)
	return out, nil
}

// WriteAll writes every non-nil result in order, stopping at the first
// failure.
func WriteAll(ctx context.Context, results []*driver.Result, opts Options) ([]Result, error) {
	var out []Result
	for _, res := range results {
		if res == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
		r, err := Write(ctx, res, opts)
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}

func writeSource(ctx context.Context, formatter, path string, src []byte) error {
	if formatter != "" {
		formatted, err := runFormatter(ctx, formatter, src)
		if err != nil {
			return fmt.Errorf("%w (formatting %s)", err, path)
		}
		src = formatted
	}
	return writeFile(path, src)
}

func runFormatter(ctx context.Context, binary string, src []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary)
	cmd.Stdin = bytes.NewReader(src)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("backend: %s failed: %w", filepath.Base(binary), err)
		}
		return nil, fmt.Errorf("backend: %s failed: %w: %s", filepath.Base(binary), err, msg)
	}
	return stdout.Bytes(), nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("backend: create output dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("backend: write %s: %w", path, err)
	}
	return nil
}

// resolveBinary accepts an explicit path or a name found on PATH.
func resolveBinary(name string) (string, error) {
	if strings.ContainsRune(name, filepath.Separator) {
		if _, err := os.Stat(name); err != nil {
			return "", err
		}
		return name, nil
	}
	return exec.LookPath(name)
}

// unitDir names the output subdirectory of a unit after its file.
func unitDir(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return sanitize(base)
}

func sanitize(name string) string {
	if name == "" {
		return "unnamed"
	}
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}
