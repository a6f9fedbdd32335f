package metadata

import (
	"bytes"
	"go/token"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"flowcc/internal/diag"
	"flowcc/internal/frontend"
	"flowcc/internal/ir"
)

const src = `package p

import "flowcc/flow"

func Load(in flow.MMap[flow.Const[int32]], out flow.OStream[int32], n uint64) {}

func Store(in flow.IStream[int32], out flow.MMap[int32], n uint64) {}

func Fill(out flow.OBuffer[[16][8]int16]) {}

func Drain(in flow.IBuffer[[16][8]int16]) {}

func Top(src [2]flow.MMap[flow.Const[int32]], dst flow.MMap[int32], n uint64) {
	a := flow.NewStream[int32](4)
	b := flow.NewBuffer[[16][8]int16](2, flow.Partition(flow.Cyclic(2)), flow.Memcore(flow.URAM))
	flow.Task().
		Invoke(Load, src[0], a, n).
		Invoke(flow.Named, Store, "store", a, dst, n).
		Invoke(Fill, b).
		Invoke(flow.Detach, Drain, b).
		Wait()
}
`

func buildDocument(t *testing.T) *Document {
	t.Helper()
	unit, err := frontend.ParseFile(token.NewFileSet(), "p.go", []byte(src), nil)
	require.NoError(t, err)
	var out bytes.Buffer
	reporter := diag.NewReporter(&out, "text")
	task := ir.NewContext(unit, reporter).BuildTask(unit.Func("Top"), true)
	require.Zero(t, reporter.ErrorCount(), out.String())

	doc := NewDocument("Top")
	doc.Tasks["Top"] = Task(task, "code", "shim")
	return doc
}

func pair(task string, idx int) *Endpoint {
	return &Endpoint{Task: task, Index: idx}
}

func TestTaskDocument(t *testing.T) {
	doc := buildDocument(t)
	depth := int64(4)
	want := &TaskDoc{
		Target: "hls",
		Vendor: "xilinx",
		Level:  ir.Top,
		Code:   "code",
		Ports: []PortDoc{
			{Name: "src[0]", Cat: "mmap", Type: "*int32"},
			{Name: "src[1]", Cat: "mmap", Type: "*int32"},
			{Name: "dst", Cat: "mmap", Type: "*int32"},
			{Name: "n", Cat: "scalar", Type: "uint64"},
		},
		Tasks: map[string][]InvocationDoc{
			"Load": {{Args: map[string]ArgDoc{
				"in":  {Cat: "mmap", Arg: "src[0]"},
				"out": {Cat: "ostream", Arg: "a"},
				"n":   {Cat: "scalar", Arg: "n"},
			}}},
			"Store": {{Name: "store", Args: map[string]ArgDoc{
				"in":  {Cat: "istream", Arg: "a"},
				"out": {Cat: "mmap", Arg: "dst"},
				"n":   {Cat: "scalar", Arg: "n"},
			}}},
			"Fill":  {{Args: map[string]ArgDoc{"out": {Cat: "obuffer", Arg: "b"}}}},
			"Drain": {{Step: -1, Args: map[string]ArgDoc{"in": {Cat: "ibuffer", Arg: "b"}}}},
		},
		Fifos: map[string]FifoDoc{
			"a": {Depth: &depth, ProducedBy: pair("Load", 0), ConsumedBy: pair("Store", 0)},
		},
		Buffers: map[string]BufferDoc{
			"b": {
				Type: "int16",
				BufferShape: BufferShape{
					Dims:       []int64{16, 8},
					Partitions: []PartitionDoc{{Type: "cyclic", Factor: 2}, {Type: "normal"}},
					Sections:   2,
					Memcore:    "URAM",
				},
				Instantiated: true,
				ProducedBy:   pair("Fill", 0),
				ConsumedBy:   pair("Drain", 0),
			},
		},
		FrtInterface: "shim",
	}
	if diff := cmp.Diff(want, doc.Tasks["Top"]); diff != "" {
		t.Fatalf("task document mismatch (-want +got):\n%s", diff)
	}
}

func TestEndpointsAreSerializedAsPairs(t *testing.T) {
	out, err := Marshal(buildDocument(t), "json")
	require.NoError(t, err)
	compact := strings.Join(strings.Fields(string(out)), "")
	require.Contains(t, compact, `"produced_by":["Load",0]`)
	require.Contains(t, compact, `"consumed_by":["Drain",0]`)
	require.Contains(t, compact, `"level":"top"`)
}

func TestRoundTrip(t *testing.T) {
	doc := buildDocument(t)
	for _, format := range []string{"json", "yaml"} {
		t.Run(format, func(t *testing.T) {
			out, err := Marshal(doc, format)
			require.NoError(t, err)
			back, err := Unmarshal(out)
			require.NoError(t, err)
			if diff := cmp.Diff(doc, back); diff != "" {
				t.Fatalf("%s round trip mismatch (-want +got):\n%s", format, diff)
			}
		})
	}
}

func TestLowerTaskHasNoGraph(t *testing.T) {
	task := &ir.Task{Name: "Leaf", Level: ir.Lower, Target: ir.DefaultTarget}
	out, err := Marshal(&Document{Top: "Leaf", Tasks: map[string]*TaskDoc{"Leaf": Task(task, "", "ignored")}}, "json")
	require.NoError(t, err)
	require.NotContains(t, string(out), "fifos")
	require.NotContains(t, string(out), "frt_interface")

	_, err = Marshal(&Document{}, "toml")
	require.Error(t, err)

	var ep Endpoint
	require.Error(t, ep.UnmarshalJSON([]byte(`["a"]`)))
}
