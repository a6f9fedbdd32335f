package driver

import (
	"bytes"
	"context"
	"go/token"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"flowcc/internal/diag"
	"flowcc/internal/frontend"
	"flowcc/internal/ir"
	"flowcc/internal/metadata"
)

func init() {
	color.NoColor = true
}

func loadUnit(t *testing.T, name string) *frontend.Unit {
	t.Helper()
	unit, err := frontend.ParseFile(token.NewFileSet(), filepath.Join("testdata", name), nil, nil)
	require.NoError(t, err)
	return unit
}

func compile(t *testing.T, name, top string) (*Result, string) {
	t.Helper()
	unit := loadUnit(t, name)
	var out bytes.Buffer
	reporter := diag.NewReporter(&out, "text")
	reporter.SetFileSet(unit.Fset)
	reporter.AddSource(unit.Path, unit.Src)
	res, err := Compile(context.Background(), unit, Options{Top: top, HostShim: true}, reporter)
	require.NoError(t, err)
	return res, out.String()
}

func taskNames(d *ir.Design) []string {
	var names []string
	for _, task := range d.Tasks {
		names = append(names, task.Name+":"+task.Level.String())
	}
	return names
}

func TestCompileVecAdd(t *testing.T) {
	res, diags := compile(t, "vadd.go", "VecAdd")
	require.Zero(t, res.Errors, diags)
	require.Zero(t, res.Warnings, diags)
	require.Empty(t, res.Failed)

	want := []string{"VecAdd:top", "Load:lower", "Add:lower", "Store:lower"}
	if diff := cmp.Diff(want, taskNames(res.Design)); diff != "" {
		t.Fatalf("discovery order mismatch (-want +got):\n%s", diff)
	}

	top := string(res.Code["VecAdd"])
	require.Contains(t, top, "func VecAdd(a, b uint64, c uint64, n uint64) {\n\n"+
		"\t//hls:interface m_axi port=a offset=slave bundle=gmem_a\n"+
		"\t//hls:interface s_axilite port=a bundle=control\n\n"+
		"\t//hls:interface m_axi port=b offset=slave bundle=gmem_b\n")
	require.Contains(t, top, "\t//hls:interface s_axilite port=return bundle=control\n\tqa := flow.NewStream[float32](8)")
	require.Contains(t, top, "func Load(in []float32, out flow.OStream[float32], n uint64) {}")
	require.Contains(t, top, "func Add(a, b flow.IStream[float32], c flow.OStream[float32]) {}")
	require.Contains(t, top, "func scale(v float32) float32 {\n\treturn v * 2\n}")

	load := string(res.Code["Load"])
	require.Contains(t, load, "\t//hls:interface m_axi port=in offset=direct bundle=in\n")
	require.Contains(t, load, "\t//hls:interface ap_fifo port=out\n\t//hls:aggregate variable=out bit\n")
	require.Contains(t, load, "i++ {\n\t\t//hls:pipeline II=1\n\t\tout.Write(in.Data()[i])")
	require.Contains(t, load, "func VecAdd(a, b uint64, c uint64, n uint64) {}")
	require.NotContains(t, string(res.Code["Store"]), "//hls:pipeline")
}

func TestCompileVecAddMetadata(t *testing.T) {
	res, _ := compile(t, "vadd.go", "VecAdd")
	doc := res.Document
	require.Equal(t, "VecAdd", doc.Top)
	require.Len(t, doc.Tasks, 4)

	top := doc.Tasks["VecAdd"]
	require.Equal(t, ir.Top, top.Level)
	require.Equal(t, metadata.PortDoc{Name: "a", Cat: "mmap", Width: 32, Type: "*float32"}, top.Ports[0])
	require.Equal(t, metadata.PortDoc{Name: "n", Cat: "scalar", Width: 64, Type: "uint64"}, top.Ports[3])
	require.Equal(t, &metadata.Endpoint{Task: "Load", Index: 1}, top.Fifos["qb"].ProducedBy)
	require.Equal(t, &metadata.Endpoint{Task: "Add", Index: 0}, top.Fifos["qb"].ConsumedBy)
	require.Equal(t, &metadata.Endpoint{Task: "Store", Index: 0}, top.Fifos["qc"].ConsumedBy)
	require.Len(t, top.Tasks["Load"], 2)
	require.Contains(t, top.FrtInterface, `flowos.LookupEnv("FLOW_BITSTREAM_VecAdd")`)
	require.Equal(t, string(res.Host), top.FrtInterface)

	leaf := doc.Tasks["Store"]
	require.Equal(t, ir.Lower, leaf.Level)
	require.Empty(t, leaf.Ports)
	require.Empty(t, leaf.FrtInterface)
	require.Equal(t, string(res.Code["Store"]), leaf.Code)
}

func TestUnsupportedTargetAndStubs(t *testing.T) {
	res, diags := compile(t, "mixed.go", "Top")
	require.Equal(t, 1, res.Errors, diags)
	require.Equal(t, 1, res.Warnings, diags)
	require.Contains(t, diags, "error: unsupported target: rtl by intel")
	require.Contains(t, diags, "warning: unused stream: spare")
	require.Equal(t, []string{"Count"}, res.Failed)

	// The task still gets code from the default strategy.
	require.Contains(t, string(res.Code["Count"]), "\t//hls:interface ap_fifo port=in\n")
	require.Contains(t, string(res.Code["Top"]), "func Count(in flow.IStream[int32]) int64 {\n\tpanic(\"flowcc: stub\")\n}")
	require.Equal(t, "rtl", res.Document.Tasks["Count"].Target)
	require.NotContains(t, res.Document.Tasks["Top"].Fifos, "spare")
}

func TestCompileRequiresTop(t *testing.T) {
	unit := loadUnit(t, "vadd.go")
	_, err := Compile(context.Background(), unit, Options{Top: "Missing"}, diag.NewReporter(nil, "text"))
	require.ErrorContains(t, err, `top-level task "Missing" not found`)

	_, err = CompileAll(context.Background(), []*frontend.Unit{unit}, Options{Top: "Missing"}, &bytes.Buffer{})
	require.ErrorContains(t, err, "not found in any source")
}

const lateErrorSrc = `package p

import (
	"example.com/other"
	"flowcc/flow"
)

func Source(out flow.OStream[int32]) {}

func Sink(in flow.IStream[int32]) {}

func Tally(x other.Thing) {}

func Top() {
	q := flow.NewStream[int32](0)
	flow.Task().Invoke(Source, q).Invoke(Sink, q).Invoke(Tally, 3).Wait()
}
`

func TestFailedCoversValidationAndWidths(t *testing.T) {
	unit, err := frontend.ParseFile(token.NewFileSet(), "late.go", []byte(lateErrorSrc), nil)
	require.NoError(t, err)
	var out bytes.Buffer
	reporter := diag.NewReporter(&out, "text")
	reporter.SetFileSet(unit.Fset)
	res, err := Compile(context.Background(), unit, Options{Top: "Top"}, reporter)
	require.NoError(t, err)

	diags := out.String()
	require.Equal(t, 2, res.Errors, diags)
	require.Contains(t, diags, "stream q must declare a positive constant depth; got 0")
	require.Contains(t, diags, "cannot infer the bit width of 'x' with element type 'other.Thing'")
	require.Equal(t, []string{"Top", "Tally"}, res.Failed)
}

const unusedSrc = `package p

import "flowcc/flow"

func Source(out flow.OStream[int32]) {}

func Sink(in flow.IStream[int32]) {}

func Top() {
	q := flow.NewStream[int32](1)
	%s := flow.NewStream[int32](1)
	flow.Task().Invoke(Source, q).Invoke(Sink, q).Wait()
}
`

func TestCompileAllWritesDiagnosticsInUnitOrder(t *testing.T) {
	var units []*frontend.Unit
	for _, name := range []string{"first", "second", "third"} {
		src := strings.Replace(unusedSrc, "%s", name, 1)
		unit, err := frontend.ParseFile(token.NewFileSet(), name+".go", []byte(src), nil)
		require.NoError(t, err)
		units = append(units, unit)
	}
	helper, err := frontend.ParseFile(token.NewFileSet(), "helper.go", []byte("package p\n\nfunc helper() {}\n"), nil)
	require.NoError(t, err)
	units = append(units, helper)

	var out bytes.Buffer
	results, err := CompileAll(context.Background(), units, Options{Top: "Top", Workers: 2}, &out)
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.Zero(t, ErrorCount(results))

	text := out.String()
	first := strings.Index(text, "unused stream: first")
	second := strings.Index(text, "unused stream: second")
	third := strings.Index(text, "unused stream: third")
	require.True(t, first >= 0 && first < second && second < third, text)
	for i, res := range results {
		require.Equal(t, units[i].Path, res.Unit.Path)
		require.Nil(t, res.Host)
	}
}

func TestCompileAllStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := CompileAll(ctx, []*frontend.Unit{loadUnit(t, "vadd.go")}, Options{Top: "VecAdd"}, &bytes.Buffer{})
	require.ErrorIs(t, err, context.Canceled)
}
