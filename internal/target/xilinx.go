package target

import (
	"fmt"
	"go/ast"

	"flowcc/internal/flowtype"
	"flowcc/internal/ir"
)

// XilinxHLS targets Vitis HLS. Top-level memory ports become AXI masters
// addressed through 64-bit device pointers; inner ports become FIFOs and
// memories.
type XilinxHLS struct {
	Base
}

func (XilinxHLS) Target() ir.Target { return ir.DefaultTarget }

func (XilinxHLS) Stream(code *Code, level ir.Level, port *ir.Port) {
	if level == ir.Top {
		code.Directive("interface", "axis", "port="+port.Name)
		return
	}
	code.Directive("interface", "ap_fifo", "port="+port.Name)
	code.Directive("aggregate", "variable="+port.Name, "bit")
}

func (XilinxHLS) Buffer(code *Code, level ir.Level, port *ir.Port) {
	code.Directive("interface", "ap_memory", "port="+port.Name, "storage_type=ram_2p")
	if port.Buffer == nil {
		return
	}
	for i, p := range port.Buffer.Partitions {
		if p.Kind == ir.PartitionNormal {
			continue
		}
		args := []string{"array_partition", "variable=" + port.Name, string(p.Kind)}
		if p.Kind == ir.PartitionBlock || p.Kind == ir.PartitionCyclic {
			args = append(args, fmt.Sprintf("factor=%d", p.Factor))
		}
		args = append(args, fmt.Sprintf("dim=%d", i+1))
		code.Directive(args...)
	}
	if port.Buffer.Memcore == ir.URAM {
		code.Directive("bind_storage", "variable="+port.Name, "type=ram_2p", "impl=uram")
	}
}

func (XilinxHLS) AsyncMMap(code *Code, level ir.Level, port *ir.Port) {
	if level == ir.Top {
		mAxi(code, port)
		return
	}
	code.Directive("disaggregate", "variable="+port.Name)
	for _, ch := range []string{"read_addr", "read_data", "write_addr", "write_data", "write_resp"} {
		code.Directive("interface", "ap_fifo", "port="+port.Name+"."+ch)
	}
}

func (XilinxHLS) MMap(code *Code, level ir.Level, port *ir.Port) {
	if level == ir.Top {
		mAxi(code, port)
		return
	}
	code.Directive("interface", "m_axi", "port="+port.Name, "offset=direct", "bundle="+port.Name)
}

func (XilinxHLS) Scalar(code *Code, level ir.Level, port *ir.Port) {
	switch level {
	case ir.Top:
		code.Directive("interface", "s_axilite", "port="+port.Name, "bundle=control")
	case ir.Middle:
		code.Directive("interface", "ap_stable", "port="+port.Name)
	}
}

func (XilinxHLS) Func(code *Code, task *ir.Task) {
	code.Directive("interface", "s_axilite", "port=return", "bundle=control")
}

func mAxi(code *Code, port *ir.Port) {
	code.Directive("interface", "m_axi", "port="+port.Name, "offset=slave", "bundle=gmem_"+port.Name)
	code.Directive("interface", "s_axilite", "port="+port.Name, "bundle=control")
}

// RewriteArgs turns memory-mapped ports into device addresses on the top-level
// task and into plain slices everywhere else.
func (XilinxHLS) RewriteArgs(task *ir.Task, top bool) []ParamEdit {
	var edits []ParamEdit
	seen := make(map[*ast.Field]bool)
	for _, port := range task.Ports {
		if !port.Category.IsMMap() || port.Field == nil || seen[port.Field] {
			continue
		}
		var typ string
		switch {
		case top:
			typ = "uint64"
		case port.Category == flowtype.MMap:
			typ = "[]" + port.Type
		default:
			continue
		}
		if port.IsArray() {
			typ = fmt.Sprintf("[%d]%s", port.Arity, typ)
		}
		seen[port.Field] = true
		edits = append(edits, ParamEdit{Field: port.Field, Type: typ})
	}
	return edits
}

// Pipeline places the directive at the top of the annotated body, whether
// the annotation sits on a function or on a loop.
func (XilinxHLS) Pipeline(code *Code, d flowtype.Directive, t AttrTarget) {
	args := []string{"pipeline"}
	switch {
	case d.Has("off"):
		args = append(args, "off")
	default:
		if ii, ok := d.Arg("ii"); ok {
			args = append(args, "II="+ii)
		}
	}
	code.Directive(args...)
}

// Unroll applies to loops only.
func (XilinxHLS) Unroll(code *Code, d flowtype.Directive, t AttrTarget) {
	if t.Kind != StmtTarget {
		return
	}
	args := []string{"unroll"}
	if f, ok := d.Arg("factor"); ok {
		args = append(args, "factor="+f)
	}
	code.Directive(args...)
}
