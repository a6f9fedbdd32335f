package ir

import (
	"errors"
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"strconv"
	"strings"

	"flowcc/internal/consteval"
	"flowcc/internal/diag"
	"flowcc/internal/flowtype"
	"flowcc/internal/frontend"
)

// Context carries the per-unit services a build needs. It is owned by a
// single worker and never shared.
type Context struct {
	Unit     *frontend.Unit
	Rec      flowtype.Recognizer
	Eval     consteval.Evaluator
	Reporter *diag.Reporter
}

// NewContext prepares a build context for unit.
func NewContext(unit *frontend.Unit, reporter *diag.Reporter) *Context {
	return &Context{
		Unit:     unit,
		Rec:      flowtype.Recognizer{Pkg: unit.FlowName},
		Eval:     unit.Evaluator(),
		Reporter: reporter,
	}
}

func (c *Context) buffers() BufferResolver {
	return BufferResolver{Rec: c.Rec, Eval: c.Eval, Reporter: c.Reporter}
}

func (c *Context) report(sev diag.Severity, node ast.Node, template string, args ...string) {
	if c.Reporter == nil {
		return
	}
	var pos, end token.Pos
	if node != nil {
		pos, end = node.Pos(), node.End()
	}
	c.Reporter.Report(sev, pos, end, template, args...)
}

// ResolveTarget reads the function's target directive, defaulting to
// DefaultTarget.
func ResolveTarget(fn *ast.FuncDecl) Target {
	tech, vendor, _, ok := flowtype.Target(fn)
	if !ok {
		return DefaultTarget
	}
	return Target{Technology: tech, Vendor: vendor}
}

// Ports classifies the parameters of fn.
func (c *Context) Ports(fn *ast.FuncDecl) []*Port {
	var ports []*Port
	if fn.Type.Params == nil {
		return nil
	}
	for _, field := range fn.Type.Params.List {
		pt := c.Rec.Param(field.Type)
		names := field.Names
		if len(names) == 0 {
			names = []*ast.Ident{ast.NewIdent("_")}
		}
		for _, name := range names {
			port := &Port{
				Name:     name.Name,
				Category: pt.Category,
				Type:     types.ExprString(pt.Elem),
				Const:    pt.Const,
				ElemExpr: pt.Elem,
				Field:    field,
				Pos:      name.Pos(),
			}
			if pt.Len != nil {
				port.Arity = int(consteval.Int(c.Eval, c.Reporter, pt.Len))
			}
			if pt.Category.IsBuffer() {
				if cfg, ok := c.buffers().ResolvePort(pt.Elem); ok {
					cfg.Length = int64(port.Arity)
					port.Buffer = &cfg
					port.Type = cfg.Type
				}
			}
			ports = append(ports, port)
		}
	}
	return ports
}

// FindComposition returns the first composition statement among the direct
// children of body.
func (c *Context) FindComposition(body *ast.BlockStmt) *ast.CallExpr {
	if body == nil {
		return nil
	}
	for _, stmt := range body.List {
		if call, ok := c.Rec.Composition(stmt); ok {
			return call
		}
	}
	return nil
}

// BuildTask creates the task for fn. Upper-level tasks (those with a
// composition) get their communication graph built; lower-level tasks only
// get their ports classified.
func (c *Context) BuildTask(fn *ast.FuncDecl, top bool) *Task {
	task := &Task{
		Name:   fn.Name.Name,
		Target: ResolveTarget(fn),
		Ports:  c.Ports(fn),
		Decl:   fn,
		Level:  Lower,
	}
	comp := c.FindComposition(fn.Body)
	if comp != nil {
		task.Level = Middle
		b := newBuilder(c, task)
		b.build(fn.Body, comp)
		task.Graph = b.graph
	}
	if top {
		task.Level = Top
	}
	return task
}

type builder struct {
	*Context
	task  *Task
	graph *Graph

	// collections maps the names of arrays of ports or channels to their
	// length.
	collections map[string]int64
	seqs        map[string]bool

	// Running lane counters, one table per access direction.
	istreams map[string]int64
	ostreams map[string]int64
	ibuffers map[string]int64
	obuffers map[string]int64
	mmaps    map[string]int64
	seqPos   map[ast.Expr]int64

	params map[*ast.FuncDecl][]param
}

func newBuilder(c *Context, task *Task) *builder {
	b := &builder{
		Context:     c,
		task:        task,
		graph:       newGraph(),
		collections: make(map[string]int64),
		seqs:        make(map[string]bool),
		istreams:    make(map[string]int64),
		ostreams:    make(map[string]int64),
		ibuffers:    make(map[string]int64),
		obuffers:    make(map[string]int64),
		mmaps:       make(map[string]int64),
		seqPos:      make(map[ast.Expr]int64),
		params:      make(map[*ast.FuncDecl][]param),
	}
	for _, p := range task.Ports {
		if p.IsArray() {
			b.collections[p.Name] = int64(p.Arity)
		}
	}
	return b
}

func (b *builder) build(body *ast.BlockStmt, comp *ast.CallExpr) {
	b.graph.Composition = comp
	for _, stmt := range body.List {
		for _, d := range b.Rec.Decls(stmt) {
			b.declare(d)
		}
	}
	for _, call := range b.Rec.Invokes(comp) {
		b.invoke(call)
	}
	b.finish()
}

func (b *builder) declare(d flowtype.Decl) {
	name := d.Name.Name
	switch d.Kind {
	case flowtype.SeqDecl:
		b.seqs[name] = true
	case flowtype.StreamDecl:
		b.graph.Registry.DeclareChannel(name, b.depth(d), d.Node)
	case flowtype.StreamsDecl:
		length, _, ok := b.Rec.ArrayOf(d.TypeArg, "Stream")
		if !ok {
			b.report(diag.Error, d.TypeArg, "stream collection type must be an array of streams, got '%0'", types.ExprString(d.TypeArg))
			return
		}
		n := consteval.Int(b.Eval, b.Reporter, length)
		depth := b.depth(d)
		b.collections[name] = n
		for i := int64(0); i < n; i++ {
			b.graph.Registry.DeclareChannel(ArrayNameAt(name, i), depth, d.Node)
		}
	case flowtype.BufferDecl:
		cfg, ok := b.buffers().Resolve(d.TypeArg, firstArg(d.Args), restArgs(d.Args))
		if !ok {
			return
		}
		b.requireSections(d)
		b.graph.Registry.DeclareBuffer(name, cfg, d.Node)
	case flowtype.BuffersDecl:
		length, shape, ok := b.Rec.ArrayOf(d.TypeArg, "Buffer")
		if !ok {
			b.report(diag.Error, d.TypeArg, "buffer collection type must be an array of buffers, got '%0'", types.ExprString(d.TypeArg))
			return
		}
		cfg, ok := b.buffers().Resolve(shape, firstArg(d.Args), restArgs(d.Args))
		if !ok {
			return
		}
		b.requireSections(d)
		cfg.Length = consteval.Int(b.Eval, b.Reporter, length)
		b.collections[name] = cfg.Length
		for i := int64(0); i < cfg.Length; i++ {
			b.graph.Registry.DeclareBuffer(ArrayNameAt(name, i), cfg, d.Node)
		}
	}
}

func (b *builder) depth(d flowtype.Decl) int64 {
	if len(d.Args) == 0 {
		b.report(diag.Error, d.Node, "stream '%0' must declare a constant depth", d.Name.Name)
		return -1
	}
	return consteval.Int(b.Eval, b.Reporter, d.Args[0])
}

func (b *builder) requireSections(d flowtype.Decl) {
	if len(d.Args) == 0 {
		b.report(diag.Error, d.Node, "buffer '%0' must declare a constant section count", d.Name.Name)
	}
}

func firstArg(args []ast.Expr) ast.Expr {
	if len(args) == 0 {
		return nil
	}
	return args[0]
}

func restArgs(args []ast.Expr) []ast.Expr {
	if len(args) < 2 {
		return nil
	}
	return args[1:]
}

// ArrayNameAt names element i of a collection.
func ArrayNameAt(name string, i int64) string {
	return name + "[" + strconv.FormatInt(i, 10) + "]"
}

type param struct {
	name string
	typ  flowtype.ParamType
	port *Port
}

func (b *builder) invoke(call *ast.CallExpr) {
	spec := b.Rec.InvokeSpec(call)
	if spec.Callee >= len(call.Args) {
		b.report(diag.Error, call, "unexpected invocation: %0", "missing task argument")
		return
	}
	calleeExpr := call.Args[spec.Callee]
	callee, calleeName := b.resolveCallee(calleeExpr)
	if callee == nil {
		b.report(diag.Error, calleeExpr, "unexpected invocation: %0", types.ExprString(calleeExpr))
		return
	}

	step := int64(StepJoin)
	switch {
	case spec.Detach:
		step = StepDetach
	case spec.Step != nil:
		step = consteval.Int(b.Eval, b.Reporter, spec.Step)
	}
	vec := int64(1)
	if spec.Vec != nil {
		n, ok := consteval.Int64(b.Eval, spec.Vec)
		switch {
		case !ok:
			b.report(diag.Error, spec.Vec, "fail to evaluate as integer at compile time")
			return
		case n < 1:
			b.report(diag.Error, spec.Vec, "replication factor must be positive")
			return
		}
		vec = n
	}

	params := b.calleeParams(callee)
	rest := call.Args[spec.Callee+1:]
	for lane := int64(0); lane < vec; lane++ {
		inv := &Invocation{Callee: calleeName, Step: step, Lane: int(lane), Pos: call.Pos()}
		ep := Endpoint{Task: calleeName, Index: b.graph.addInvocation(inv)}
		args := rest
		if spec.Named {
			if name, ok := stringLit(firstArg(args)); ok {
				inv.Name = name
				args = args[1:]
			} else if len(args) > 0 {
				if lane == 0 {
					b.report(diag.Error, args[0], "unexpected argument: %0", nodeKind(args[0]))
				}
				args = args[1:]
			}
		}
		for i, arg := range args {
			if i >= len(params) {
				if lane == 0 {
					b.report(diag.Error, arg, "too many arguments in invocation of task '%0'", calleeName)
				}
				break
			}
			b.bind(inv, ep, params[i], arg, lane == 0)
		}
	}
}

func (b *builder) resolveCallee(expr ast.Expr) (*ast.FuncDecl, string) {
	switch x := ast.Unparen(expr).(type) {
	case *ast.Ident:
		if fn := b.Unit.Func(x.Name); fn != nil {
			return fn, x.Name
		}
	case *ast.IndexExpr:
		table, ok := x.X.(*ast.Ident)
		if !ok {
			return nil, ""
		}
		lit := b.Unit.FuncTable(table.Name)
		if lit == nil {
			return nil, ""
		}
		idx := consteval.Int(b.Eval, b.Reporter, x.Index)
		if idx < 0 {
			return nil, ""
		}
		elem := tableElem(b.Eval, lit, idx)
		if ident, ok := elem.(*ast.Ident); ok {
			if fn := b.Unit.Func(ident.Name); fn != nil {
				return fn, ident.Name
			}
		}
	}
	return nil, ""
}

// tableElem returns element idx of an array or slice literal, honouring
// explicit index keys.
func tableElem(ev consteval.Evaluator, lit *ast.CompositeLit, idx int64) ast.Expr {
	next := int64(0)
	for _, elt := range lit.Elts {
		if kv, ok := elt.(*ast.KeyValueExpr); ok {
			if k, ok := consteval.Int64(ev, kv.Key); ok {
				next = k
			}
			elt = kv.Value
		}
		if next == idx {
			return ast.Unparen(elt)
		}
		next++
	}
	return nil
}

// calleeParams classifies the callee's parameters without reporting; the
// callee reports its own malformed ports when it is built.
func (b *builder) calleeParams(fn *ast.FuncDecl) []param {
	if params, ok := b.params[fn]; ok {
		return params
	}
	quiet := *b.Context
	quiet.Reporter = nil
	ports := quiet.Ports(fn)
	params := make([]param, 0, len(ports))
	for _, p := range ports {
		params = append(params, param{name: p.Name, typ: b.Rec.Param(p.Field.Type), port: p})
	}
	b.params[fn] = params
	return params
}

type argKind int

const (
	argInvalid argKind = iota
	argName
	argElement
	argInt
	argSeq
)

// classify names an argument: an identifier, a constant-indexed element, a
// compile-time integer, or a sequence marker.
func (b *builder) classify(arg ast.Expr) (string, argKind) {
	arg = ast.Unparen(arg)
	if b.Rec.IsSeqCall(arg) {
		return "", argSeq
	}
	if ident, ok := arg.(*ast.Ident); ok && b.seqs[ident.Name] {
		return ident.Name, argSeq
	}
	if v, ok := consteval.Int64(b.Eval, arg); ok {
		return "64'd" + strconv.FormatUint(uint64(v), 10), argInt
	}
	switch x := arg.(type) {
	case *ast.Ident:
		return x.Name, argName
	case *ast.IndexExpr:
		if base, ok := ast.Unparen(x.X).(*ast.Ident); ok {
			return ArrayNameAt(base.Name, consteval.Int(b.Eval, b.Reporter, x.Index)), argElement
		}
	}
	return "", argInvalid
}

func (b *builder) bind(inv *Invocation, ep Endpoint, p param, arg ast.Expr, firstLane bool) {
	name, kind := b.classify(arg)
	if kind == argInvalid {
		if firstLane {
			b.report(diag.Error, arg, "unexpected argument: %0", nodeKind(arg))
		}
		return
	}
	cat := p.typ.Category
	if kind == argSeq && cat != flowtype.Scalar {
		if firstLane {
			b.report(diag.Error, arg, "sequence passed to %0 port '%1'", string(cat), p.name)
		}
		return
	}
	if kind == argSeq {
		pos := b.seqPos[arg]
		b.seqPos[arg]++
		inv.Args = append(inv.Args, Arg{Port: p.name, Category: cat, Arg: "64'd" + strconv.FormatInt(pos, 10)})
		return
	}
	collection := kind == argName

	counters := b.counters(cat)
	if counters == nil {
		inv.Args = append(inv.Args, Arg{Port: p.name, Category: cat, Arg: name})
		return
	}
	ports := []string{p.name}
	if p.port.IsArray() {
		ports = ports[:0]
		for i := 0; i < p.port.Arity; i++ {
			ports = append(ports, ArrayNameAt(p.name, int64(i)))
		}
	}
	for _, port := range ports {
		bound := name
		if collection {
			bound = b.lane(name, counters, arg)
		}
		b.register(cat, bound, p.port, ep, arg)
		inv.Args = append(inv.Args, Arg{Port: port, Category: cat, Arg: bound})
	}
}

func (b *builder) counters(cat flowtype.Category) map[string]int64 {
	switch cat {
	case flowtype.MMap, flowtype.AsyncMMap:
		return b.mmaps
	case flowtype.IStream:
		return b.istreams
	case flowtype.OStream:
		return b.ostreams
	case flowtype.IBuffer:
		return b.ibuffers
	case flowtype.OBuffer:
		return b.obuffers
	}
	return nil
}

// lane maps the next access to a collection onto one of its elements,
// wrapping around with a remark once every element has been handed out.
func (b *builder) lane(name string, counters map[string]int64, arg ast.Expr) string {
	i := counters[name]
	counters[name]++
	length, ok := b.collections[name]
	if !ok || length <= 0 {
		return name
	}
	if i >= length {
		b.report(diag.Remark, arg, "invocation #%0 accesses '%1[%2]'",
			strconv.FormatInt(i, 10), name, strconv.FormatInt(i%length, 10))
	}
	return ArrayNameAt(name, i%length)
}

func (b *builder) register(cat flowtype.Category, name string, port *Port, ep Endpoint, arg ast.Expr) {
	var err error
	reg := b.graph.Registry
	switch cat {
	case flowtype.IStream:
		err = reg.ConsumeChannel(name, ep)
	case flowtype.OStream:
		err = reg.ProduceChannel(name, ep)
	case flowtype.IBuffer:
		err = reg.ConsumeBuffer(name, portBufferConfig(port), ep)
	case flowtype.OBuffer:
		err = reg.ProduceBuffer(name, portBufferConfig(port), ep)
	default:
		return
	}
	if err == nil {
		return
	}
	entity := "stream"
	if cat.IsBuffer() {
		entity = "buffer"
	}
	switch {
	case errors.Is(err, ErrAlreadyProduced):
		b.report(diag.Error, arg, "%0 '%1' produced more than once", entity, name)
	case errors.Is(err, ErrAlreadyConsumed):
		b.report(diag.Error, arg, "%0 '%1' consumed more than once", entity, name)
	default:
		b.report(diag.Error, arg, "%0", err.Error())
	}
}

func portBufferConfig(port *Port) BufferConfig {
	if port == nil || port.Buffer == nil {
		return BufferConfig{Memcore: BRAM}
	}
	cfg := *port.Buffer
	cfg.Length = 0
	return cfg
}

// finish applies the end-of-build rules: entities used on neither side are
// dropped with a warning; declared entities used on one side only are errors
// but kept. Streams and buffers passed in from the parent are exempt.
func (b *builder) finish() {
	reg := b.graph.Registry
	for _, ch := range reg.Channels() {
		produced, consumed := ch.ProducedBy != nil, ch.ConsumedBy != nil
		switch {
		case !produced && !consumed:
			b.report(diag.Warning, ch.Decl, "unused stream: %0", ch.Name)
			reg.RemoveChannel(ch.Name)
		case ch.Declared && !produced:
			b.report(diag.Error, ch.Decl, "consumed but not produced stream: %0", ch.Name)
		case ch.Declared && !consumed:
			b.report(diag.Error, ch.Decl, "produced but not consumed stream: %0", ch.Name)
		}
	}
	for _, buf := range reg.Buffers() {
		produced, consumed := buf.ProducedBy != nil, buf.ConsumedBy != nil
		switch {
		case !produced && !consumed:
			b.report(diag.Warning, buf.Decl, "unused buffer: %0", buf.Name)
			reg.RemoveBuffer(buf.Name)
		case buf.Declared && !produced:
			b.report(diag.Error, buf.Decl, "consumed but not produced buffer: %0", buf.Name)
		case buf.Declared && !consumed:
			b.report(diag.Error, buf.Decl, "produced but not consumed buffer: %0", buf.Name)
		}
	}
}

func stringLit(expr ast.Expr) (string, bool) {
	lit, ok := expr.(*ast.BasicLit)
	if !ok || lit.Kind != token.STRING {
		return "", false
	}
	s, err := strconv.Unquote(lit.Value)
	if err != nil {
		return "", false
	}
	return s, true
}

// nodeKind names the syntax node class of expr, e.g. "CallExpr".
func nodeKind(expr ast.Expr) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", expr), "*ast.")
}
