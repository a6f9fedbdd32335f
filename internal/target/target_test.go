package target

import (
	"bytes"
	"errors"
	"go/ast"
	"go/token"
	"testing"

	"github.com/google/go-cmp/cmp"

	"flowcc/internal/diag"
	"flowcc/internal/flowtype"
	"flowcc/internal/frontend"
	"flowcc/internal/ir"
)

const src = `package p

import "flowcc/flow"

func Top(a flow.MMap[flow.Const[float32]], in flow.IStream[int32], n uint64) {}

func Mid(b flow.IBuffer[[8][8]int16], ms [2]flow.MMap[int32], am flow.AsyncMMap[int64]) {}
`

func task(t *testing.T, name string) *ir.Task {
	t.Helper()
	fset := token.NewFileSet()
	unit, err := frontend.ParseFile(fset, "p.go", []byte(src), nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ctx := ir.NewContext(unit, diag.NewReporter(&bytes.Buffer{}, "text"))
	return ctx.BuildTask(unit.Func(name), name == "Top")
}

func TestGenerateTopLevel(t *testing.T) {
	got := Generate(XilinxHLS{}, task(t, "Top"), ir.Top)
	want := []string{
		"",
		"//hls:interface m_axi port=a offset=slave bundle=gmem_a",
		"//hls:interface s_axilite port=a bundle=control",
		"",
		"//hls:interface axis port=in",
		"",
		"//hls:interface s_axilite port=n bundle=control",
		"",
		"",
		"//hls:interface s_axilite port=return bundle=control",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("generated lines mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateMiddleLevelBuffer(t *testing.T) {
	mid := task(t, "Mid")
	mid.Ports[0].Buffer.Partitions[1] = ir.Partition{Kind: ir.PartitionCyclic, Factor: 4}
	mid.Ports[0].Buffer.Memcore = ir.URAM

	got := Generate(XilinxHLS{}, mid, ir.Middle)
	want := []string{
		"",
		"//hls:interface ap_memory port=b storage_type=ram_2p",
		"//hls:array_partition variable=b cyclic factor=4 dim=2",
		"//hls:bind_storage variable=b type=ram_2p impl=uram",
		"",
		"//hls:interface m_axi port=ms offset=direct bundle=ms",
		"",
		"//hls:disaggregate variable=am",
		"//hls:interface ap_fifo port=am.read_addr",
		"//hls:interface ap_fifo port=am.read_data",
		"//hls:interface ap_fifo port=am.write_addr",
		"//hls:interface ap_fifo port=am.write_data",
		"//hls:interface ap_fifo port=am.write_resp",
		"",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("generated lines mismatch (-want +got):\n%s", diff)
	}
}

func TestBaseIsSilent(t *testing.T) {
	type quiet struct{ Base }
	got := Generate(quiet{}, task(t, "Top"), ir.Top)
	if diff := cmp.Diff([]string{"", "", "", "", ""}, got); diff != "" {
		t.Fatalf("expected only separators (-want +got):\n%s", diff)
	}
}

func TestRewriteArgs(t *testing.T) {
	render := func(edits []ParamEdit) []string {
		var out []string
		for _, e := range edits {
			out = append(out, e.Field.Names[0].Name+" "+e.Type)
		}
		return out
	}
	top := task(t, "Top")
	if diff := cmp.Diff([]string{"a uint64"}, render(XilinxHLS{}.RewriteArgs(top, true))); diff != "" {
		t.Fatalf("top rewrite mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a []float32"}, render(XilinxHLS{}.RewriteArgs(top, false))); diff != "" {
		t.Fatalf("inner rewrite mismatch (-want +got):\n%s", diff)
	}
	mid := task(t, "Mid")
	if diff := cmp.Diff([]string{"ms [2]uint64", "am uint64"}, render(XilinxHLS{}.RewriteArgs(mid, true))); diff != "" {
		t.Fatalf("array rewrite mismatch (-want +got):\n%s", diff)
	}
}

func TestAttrDispatch(t *testing.T) {
	loop := AttrTarget{Kind: StmtTarget, Node: &ast.ForStmt{}, Body: &ast.BlockStmt{}}
	decl := AttrTarget{Kind: DeclTarget, Node: &ast.FuncDecl{}, Body: &ast.BlockStmt{}}
	pipeline := flowtype.Directive{Kind: "pipeline", Args: []string{"II=2"}}
	unroll := flowtype.Directive{Kind: "unroll", Args: []string{"factor=4"}}

	cases := []struct {
		name string
		d    flowtype.Directive
		t    AttrTarget
		want []string
	}{
		{"pipeline loop", pipeline, loop, []string{"//hls:pipeline II=2"}},
		{"pipeline func", pipeline, decl, []string{"//hls:pipeline II=2"}},
		{"pipeline off", flowtype.Directive{Kind: "pipeline", Args: []string{"off"}}, loop, []string{"//hls:pipeline off"}},
		{"unroll loop", unroll, loop, []string{"//hls:unroll factor=4"}},
		{"unroll func", unroll, decl, nil},
		{"unknown", flowtype.Directive{Kind: "dataflow"}, loop, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(tc.want, Attr(XilinxHLS{}, tc.d, tc.t)); diff != "" {
				t.Fatalf("attr mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLookup(t *testing.T) {
	s, err := Builtin.Lookup(ir.Target{Technology: "hls", Vendor: "xilinx"})
	if err != nil || s.Target() != ir.DefaultTarget {
		t.Fatalf("unexpected lookup result %v, %v", s, err)
	}
	s, err = Builtin.Lookup(ir.Target{Technology: "rtl", Vendor: "intel"})
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected unsupported target error, got %v", err)
	}
	if err.Error() != "unsupported target: rtl by intel" {
		t.Fatalf("unexpected message %q", err)
	}
	if _, ok := s.(XilinxHLS); !ok {
		t.Fatalf("expected default strategy fallback, got %T", s)
	}
}
