package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowcc/internal/metadata"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--no-color"}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := newRootCommand()
	assert.Equal(t, "flowcc", cmd.Use)
	assert.True(t, cmd.SilenceUsage)
	assert.True(t, cmd.SilenceErrors)
	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.ElementsMatch(t, []string{"compile", "lint", "version"}, names)
}

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "flowcc "), out)
}

func TestCompileWritesArtifacts(t *testing.T) {
	tmp := t.TempDir()
	out, stderr, err := execute(t, "compile", "--standalone", "--top", "VecAdd", "-D", "Lanes=4", "-o", tmp, "testdata/vadd.go")
	require.NoError(t, err, stderr)

	dir := filepath.Join(tmp, "vadd")
	assert.Equal(t, filepath.Join(dir, "VecAdd.flow.json")+"\n", out)
	for _, name := range []string{"VecAdd", "Load", "Add", "Store"} {
		assert.FileExists(t, filepath.Join(dir, "tasks", name+".go"))
	}
	host, err := os.ReadFile(filepath.Join(dir, "host", "VecAdd_host.go"))
	require.NoError(t, err)
	assert.Contains(t, string(host), "FLOW_BITSTREAM_VecAdd")

	data, err := os.ReadFile(filepath.Join(dir, "VecAdd.flow.json"))
	require.NoError(t, err)
	doc, err := metadata.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, "VecAdd", doc.Top)
	assert.Len(t, doc.Tasks, 4)
}

func TestCompileNoHost(t *testing.T) {
	tmp := t.TempDir()
	_, stderr, err := execute(t, "compile", "--standalone", "--top", "VecAdd", "--no-host", "--format", "yaml", "-o", tmp, "testdata/vadd.go")
	require.NoError(t, err, stderr)
	assert.FileExists(t, filepath.Join(tmp, "vadd", "VecAdd.flow.yaml"))
	assert.NoDirExists(t, filepath.Join(tmp, "vadd", "host"))
}

func TestCompileFromProjectFile(t *testing.T) {
	tmp := t.TempDir()
	src, err := os.ReadFile("testdata/vadd.go")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(tmp, "vadd.go"), src, 0o644))
	project := filepath.Join(tmp, "flowcc.hcl")
	require.NoError(t, os.WriteFile(project, []byte(`
top        = "VecAdd"
sources    = ["vadd.go"]
standalone = true
format     = "yaml"
`), 0o644))

	outDir := filepath.Join(tmp, "out")
	out, stderr, err := execute(t, "--config", project, "compile", "-o", outDir)
	require.NoError(t, err, stderr)
	assert.Equal(t, filepath.Join(outDir, "vadd", "VecAdd.flow.yaml")+"\n", out)
}

func TestLint(t *testing.T) {
	out, stderr, err := execute(t, "lint", "--standalone", "--top", "VecAdd", "testdata/vadd.go")
	require.NoError(t, err, stderr)
	assert.Equal(t, "VecAdd: 1 unit(s) checked, 0 warning(s)\n", out)
}

func TestLintDumpsTaskGraphs(t *testing.T) {
	out, stderr, err := execute(t, "lint", "--standalone", "--top", "VecAdd", "--dump-ir", "testdata/vadd.go")
	require.NoError(t, err, stderr)
	assert.Contains(t, out, "task VecAdd (top, hls by xilinx)\n")
	assert.Contains(t, out, "task Store (lower, hls by xilinx)\n")
	assert.True(t, strings.HasSuffix(out, "VecAdd: 1 unit(s) checked, 0 warning(s)\n"), out)
}

func TestLintReportsDiagnostics(t *testing.T) {
	_, stderr, err := execute(t, "lint", "--standalone", "--top", "Top", "testdata/mixed.go")
	require.EqualError(t, err, "compilation failed with 1 error(s)")
	assert.Contains(t, stderr, "error: unsupported target: rtl by intel")
	assert.Contains(t, stderr, "warning: unused stream: spare")
}

func TestLintJSONDiagnostics(t *testing.T) {
	_, stderr, err := execute(t, "--diag-format", "json", "lint", "--standalone", "--top", "Top", "testdata/mixed.go")
	require.Error(t, err)
	assert.Contains(t, stderr, `"message":"unsupported target: rtl by intel"`)
}

func TestCommandErrors(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want string
	}{
		{"missing top", []string{"lint", "--standalone", "testdata/vadd.go"}, "no top-level task"},
		{"missing sources", []string{"lint", "--top", "VecAdd"}, "no source files"},
		{"bad target", []string{"lint", "--standalone", "--top", "VecAdd", "--target", "hls", "testdata/vadd.go"}, `invalid target "hls"`},
		{"bad format", []string{"compile", "--standalone", "--top", "VecAdd", "--format", "toml", "testdata/vadd.go"}, `format must be "json" or "yaml"`},
		{"unknown top", []string{"lint", "--standalone", "--top", "Missing", "testdata/vadd.go"}, `top-level task "Missing" not found`},
		{"bad log level", []string{"--log-level", "loud", "lint", "--standalone", "--top", "VecAdd", "testdata/vadd.go"}, "loud"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := execute(t, tc.args...)
			require.ErrorContains(t, err, tc.want)
		})
	}
}
