package hostshim

import (
	"bytes"
	"go/parser"
	"go/token"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"flowcc/internal/diag"
	"flowcc/internal/frontend"
	"flowcc/internal/ir"
)

const src = `package vadd

import "flowcc/flow"

func VecAdd(a [2]flow.MMap[flow.Const[float32]], c flow.MMap[float32], n uint64) {
	q := flow.NewStream[float32](8)
	flow.Task().Invoke(Load, a, q, n).Invoke(Store, q, c, n).Wait()
}

func Streamed(in flow.IStream[int32], n uint64) {}

func Bare() {}
`

func build(t *testing.T, name string) (*frontend.Unit, *ir.Task) {
	t.Helper()
	unit, err := frontend.ParseFile(token.NewFileSet(), "vadd.go", []byte(src), nil)
	require.NoError(t, err)
	ctx := ir.NewContext(unit, diag.NewReporter(&bytes.Buffer{}, "text"))
	return unit, ctx.BuildTask(unit.Func(name), true)
}

func TestGenerateReplacesTopBody(t *testing.T) {
	unit, task := build(t, "VecAdd")
	out, err := Generate(unit, task)
	require.NoError(t, err)

	text := string(out)
	for _, want := range []string{
		`flowfrt "flowcc/flow/frt"`,
		`flowos.LookupEnv("FLOW_BITSTREAM_VecAdd")`,
		`flowos.LookupEnv("FLOW_BITSTREAM")`,
		"panic(\"no bitstream found; please set `FLOW_BITSTREAM_VecAdd` or `FLOW_BITSTREAM`\")",
		`case "a[0]":`,
		`flowErr = flowInstance.SetArg(flowIndex, flowfrt.WriteOnly(a[1].Data()))`,
		`flowErr = flowInstance.SetArg(flowIndex, flowfrt.ReadWrite(c.Data()))`,
		`flowErr = flowInstance.SetArg(flowIndex, n)`,
		`panic(flowfmt.Sprintf("unknown argument: %v", flowArg))`,
		`flowInstance.ReadFromDevice,`,
	} {
		require.Contains(t, text, want)
	}
	require.NotContains(t, text, "flow.NewStream")
	require.Contains(t, text, "func Streamed(in flow.IStream[int32], n uint64) {}")

	_, err = parser.ParseFile(token.NewFileSet(), "shim.go", out, parser.AllErrors)
	require.NoError(t, err)
}

func TestStreamParameterIsMarked(t *testing.T) {
	_, task := build(t, "Streamed")
	body, err := Body(task)
	require.NoError(t, err)
	require.Contains(t, body, "case \"in\":\n\t\t\t_ = "+StreamMarker+"\n")
	require.Equal(t, 1, strings.Count(body, StreamMarker))
}

func TestTaskWithoutArguments(t *testing.T) {
	_, task := build(t, "Bare")
	body, err := Body(task)
	require.NoError(t, err)
	require.Contains(t, body, "for _, flowArg := range flowInstance.Args() {\n\t\tswitch flowArg.Name {\n\t\tdefault:")
	require.NotContains(t, body, "flowIndex")
}
