package backend

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"flowcc/internal/driver"
	"flowcc/internal/frontend"
	"flowcc/internal/ir"
	"flowcc/internal/metadata"
)

func testResult() *driver.Result {
	doc := metadata.NewDocument("VecAdd")
	doc.Tasks["VecAdd"] = &metadata.TaskDoc{Target: "hls", Vendor: "xilinx", Level: ir.Top, Code: "package vadd\n"}
	doc.Tasks["Load"] = &metadata.TaskDoc{Target: "hls", Vendor: "xilinx", Level: ir.Lower, Code: "package vadd\n"}
	return &driver.Result{
		Unit: &frontend.Unit{Path: filepath.Join("src", "vadd.go")},
		Code: map[string][]byte{
			"VecAdd": []byte("package vadd\n\nfunc VecAdd() {}\n"),
			"Load":   []byte("package vadd\n\nfunc Load() {}\n"),
		},
		Host:     []byte("package vadd\n\nfunc VecAdd() { /* host */ }\n"),
		Document: doc,
	}
}

func TestWriteLaysOutArtifacts(t *testing.T) {
	tmp := t.TempDir()
	res, err := Write(context.Background(), testResult(), Options{OutputDir: tmp})
	require.NoError(t, err)

	dir := filepath.Join(tmp, "vadd")
	want := Result{
		MetadataPath: filepath.Join(dir, "VecAdd.flow.json"),
		TaskPaths: []string{
			filepath.Join(dir, "tasks", "Load.go"),
			filepath.Join(dir, "tasks", "VecAdd.go"),
		},
		HostPath: filepath.Join(dir, "host", "VecAdd_host.go"),
	}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}

	data, err := os.ReadFile(res.TaskPaths[0])
	require.NoError(t, err)
	require.Equal(t, "package vadd\n\nfunc Load() {}\n", string(data))

	data, err = os.ReadFile(res.MetadataPath)
	require.NoError(t, err)
	doc, err := metadata.Unmarshal(data)
	require.NoError(t, err)
	require.Equal(t, "VecAdd", doc.Top)
	require.Equal(t, ir.Lower, doc.Tasks["Load"].Level)
}

func TestWriteYAMLWithoutHost(t *testing.T) {
	tmp := t.TempDir()
	in := testResult()
	in.Host = nil
	res, err := Write(context.Background(), in, Options{OutputDir: tmp, Format: "yaml"})
	require.NoError(t, err)
	require.Empty(t, res.HostPath)
	require.Equal(t, filepath.Join(tmp, "vadd", "VecAdd.flow.yaml"), res.MetadataPath)

	data, err := os.ReadFile(res.MetadataPath)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(data), "tasks:"), string(data))
	_, err = os.Stat(filepath.Join(tmp, "vadd", "host"))
	require.True(t, os.IsNotExist(err))
}

func TestWriteRunsFormatter(t *testing.T) {
	requirePosix(t)
	tmp := t.TempDir()
	formatter := writeScript(t, tmp, "fmt.sh", `#!/bin/sh
set -e
echo "// formatted"
cat
`)

	res, err := Write(context.Background(), testResult(), Options{OutputDir: filepath.Join(tmp, "out"), FormatterPath: formatter})
	require.NoError(t, err)
	for _, path := range append(res.TaskPaths, res.HostPath) {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(string(data), "// formatted\npackage vadd\n"), path)
	}
	data, err := os.ReadFile(res.MetadataPath)
	require.NoError(t, err)
	require.NotContains(t, string(data), "// formatted")
}

func TestWriteReportsFormatterFailure(t *testing.T) {
	requirePosix(t)
	tmp := t.TempDir()
	formatter := writeScript(t, tmp, "fmt.sh", `#!/bin/sh
echo "syntax error" >&2
exit 2
`)

	_, err := Write(context.Background(), testResult(), Options{OutputDir: filepath.Join(tmp, "out"), FormatterPath: formatter})
	require.ErrorContains(t, err, "fmt.sh failed")
	require.ErrorContains(t, err, "syntax error")
}

func TestWriteMissingFormatter(t *testing.T) {
	tmp := t.TempDir()
	_, err := Write(context.Background(), testResult(), Options{OutputDir: tmp, FormatterPath: filepath.Join(tmp, "missing")})
	require.ErrorContains(t, err, "resolve formatter")
}

func TestWriteRejectsBadInput(t *testing.T) {
	_, err := Write(context.Background(), testResult(), Options{})
	require.ErrorContains(t, err, "output directory is required")

	_, err = Write(context.Background(), testResult(), Options{OutputDir: t.TempDir(), Format: "toml"})
	require.ErrorContains(t, err, `unknown metadata format "toml"`)
}

func TestWriteAllSkipsMissingResults(t *testing.T) {
	tmp := t.TempDir()
	second := testResult()
	second.Unit = &frontend.Unit{Path: "other.go"}
	res, err := WriteAll(context.Background(), []*driver.Result{testResult(), nil, second}, Options{OutputDir: tmp})
	require.NoError(t, err)
	require.Len(t, res, 2)
	require.Equal(t, filepath.Join(tmp, "other", "VecAdd.flow.json"), res[1].MetadataPath)
}

func TestUnitDir(t *testing.T) {
	cases := map[string]string{
		"vadd.go":             "vadd",
		"dir/with space.go":   "with_space",
		"pkg/vec-add.flow.go": "vec-add_flow",
	}
	for in, want := range cases {
		require.Equal(t, want, unitDir(in), in)
	}
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func requirePosix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests require a POSIX shell")
	}
}
