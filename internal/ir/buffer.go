package ir

import (
	"go/ast"
	"go/types"
	"strconv"

	"flowcc/internal/consteval"
	"flowcc/internal/diag"
	"flowcc/internal/flowtype"
)

// PartitionKind is the memory layout policy of one buffer dimension.
type PartitionKind string

const (
	PartitionNormal   PartitionKind = "normal"
	PartitionComplete PartitionKind = "complete"
	PartitionBlock    PartitionKind = "block"
	PartitionCyclic   PartitionKind = "cyclic"
)

// Partition is the layout of one dimension. Factor is zero for normal and
// complete partitioning.
type Partition struct {
	Kind   PartitionKind
	Factor int64
}

// Memcore selects the on-chip memory primitive.
type Memcore string

const (
	BRAM Memcore = "BRAM"
	URAM Memcore = "URAM"
)

// DefaultSections is the section count of buffer ports, which do not spell
// out their configuration.
const DefaultSections = 2

// BufferConfig is the resolved compile-time configuration of a buffer.
type BufferConfig struct {
	Type       string
	Dims       []int64
	Partitions []Partition
	Sections   int64
	Memcore    Memcore
	// Length is the collection length for arrays of buffers.
	Length int64
	// Width is the element width in bits; zero until width inference runs.
	Width        int
	Instantiated bool

	ElemExpr ast.Expr
}

// BufferResolver turns buffer type expressions and constructor options into
// BufferConfig values, reporting malformed shapes.
type BufferResolver struct {
	Rec      flowtype.Recognizer
	Eval     consteval.Evaluator
	Reporter *diag.Reporter
}

// Resolve parses a buffer shape `[d0][d1]...T`, a section count expression
// and up to three trailing configuration options. ok is false when the shape
// is not an array type.
func (br BufferResolver) Resolve(shape, sections ast.Expr, opts []ast.Expr) (BufferConfig, bool) {
	cfg, ok := br.shape(shape)
	if !ok {
		return cfg, false
	}
	if sections != nil {
		cfg.Sections = consteval.Int(br.Eval, br.Reporter, sections)
	}
	if len(opts) > 3 {
		opts = opts[:3]
	}
	for _, opt := range opts {
		call, ok := ast.Unparen(opt).(*ast.CallExpr)
		if !ok {
			break
		}
		name, ok := br.Rec.Sel(call.Fun)
		if !ok {
			break
		}
		if name == "Partition" {
			br.partitions(&cfg, call)
			continue
		}
		if name == "Memcore" {
			cfg.Memcore = BRAM
			if len(call.Args) > 0 {
				if core, ok := br.Rec.Sel(call.Args[0]); ok && core == "URAM" {
					cfg.Memcore = URAM
				}
			}
			continue
		}
		break
	}
	return cfg, true
}

// ResolvePort derives the configuration seen through a buffer port type.
func (br BufferResolver) ResolvePort(shape ast.Expr) (BufferConfig, bool) {
	cfg, ok := br.shape(shape)
	if !ok {
		return cfg, false
	}
	cfg.Sections = DefaultSections
	return cfg, true
}

func (br BufferResolver) shape(expr ast.Expr) (BufferConfig, bool) {
	cfg := BufferConfig{Memcore: BRAM}
	arr, ok := ast.Unparen(expr).(*ast.ArrayType)
	if !ok || arr.Len == nil {
		br.report(expr, "buffer shape must be a fixed-size array type, got '%0'", types.ExprString(expr))
		return cfg, false
	}
	for ok && arr.Len != nil {
		cfg.Dims = append(cfg.Dims, consteval.Int(br.Eval, br.Reporter, arr.Len))
		expr = arr.Elt
		arr, ok = ast.Unparen(expr).(*ast.ArrayType)
	}
	cfg.ElemExpr = expr
	cfg.Type = types.ExprString(expr)
	cfg.Partitions = make([]Partition, len(cfg.Dims))
	for i := range cfg.Partitions {
		cfg.Partitions[i] = Partition{Kind: PartitionNormal}
	}
	return cfg, true
}

func (br BufferResolver) partitions(cfg *BufferConfig, call *ast.CallExpr) {
	for i, arg := range call.Args {
		if i >= len(cfg.Partitions) {
			br.report(arg, "partition scheme for dimension %0 exceeds buffer rank %1",
				strconv.Itoa(i), strconv.Itoa(len(cfg.Dims)))
			return
		}
		scheme, ok := ast.Unparen(arg).(*ast.CallExpr)
		if !ok {
			br.report(arg, "unknown partition scheme '%0'", types.ExprString(arg))
			continue
		}
		kind, _ := br.Rec.Sel(scheme.Fun)
		switch kind {
		case "Normal":
			cfg.Partitions[i] = Partition{Kind: PartitionNormal}
		case "Complete":
			cfg.Partitions[i] = Partition{Kind: PartitionComplete}
		case "Block", "Cyclic":
			if len(scheme.Args) != 1 {
				br.report(arg, "partition scheme '%0' takes exactly one factor", types.ExprString(arg))
				continue
			}
			p := Partition{Kind: PartitionBlock, Factor: consteval.Int(br.Eval, br.Reporter, scheme.Args[0])}
			if kind == "Cyclic" {
				p.Kind = PartitionCyclic
			}
			cfg.Partitions[i] = p
		default:
			br.report(arg, "unknown partition scheme '%0'", types.ExprString(arg))
		}
	}
}

func (br BufferResolver) report(node ast.Node, template string, args ...string) {
	if br.Reporter != nil {
		br.Reporter.Report(diag.Error, node.Pos(), node.End(), template, args...)
	}
}
