package ir

import (
	"fmt"
	"io"
	"strings"
)

// Dump writes a simple human-readable representation of the design.
func Dump(design *Design, w io.Writer) {
	if design == nil {
		fmt.Fprintln(w, "<nil design>")
		return
	}
	for _, task := range design.Tasks {
		fmt.Fprintf(w, "task %s (%s, %s)\n", task.Name, task.Level, task.Target)
		dumpPorts(task, w)
		if task.Graph != nil {
			dumpChannels(task.Graph, w)
			dumpBuffers(task.Graph, w)
			dumpInvocations(task.Graph, w)
		}
		fmt.Fprintln(w)
	}
}

func dumpPorts(task *Task, w io.Writer) {
	if len(task.Ports) == 0 {
		return
	}
	fmt.Fprintln(w, "  ports:")
	for _, port := range task.Ports {
		typ := port.Type
		if port.IsArray() {
			typ = fmt.Sprintf("[%d]%s", port.Arity, typ)
		}
		fmt.Fprintf(w, "    %-10s %-8s %s %db%s\n",
			port.Category,
			port.Name,
			typ,
			port.Width,
			constSuffix(port.Const),
		)
	}
}

func dumpChannels(g *Graph, w io.Writer) {
	channels := g.Registry.Channels()
	if len(channels) == 0 {
		return
	}
	fmt.Fprintln(w, "  fifos:")
	for _, ch := range channels {
		depth := "external"
		if ch.Declared {
			depth = fmt.Sprintf("depth=%d", ch.Depth)
		}
		fmt.Fprintf(w, "    %-8s %s %s -> %s\n", ch.Name, depth, endpoint(ch.ProducedBy), endpoint(ch.ConsumedBy))
	}
}

func dumpBuffers(g *Graph, w io.Writer) {
	buffers := g.Registry.Buffers()
	if len(buffers) == 0 {
		return
	}
	fmt.Fprintln(w, "  buffers:")
	for _, buf := range buffers {
		dims := make([]string, 0, len(buf.Config.Dims))
		for i, d := range buf.Config.Dims {
			p := buf.Config.Partitions[i]
			part := string(p.Kind)
			if p.Factor > 0 {
				part = fmt.Sprintf("%s(%d)", p.Kind, p.Factor)
			}
			dims = append(dims, fmt.Sprintf("%d:%s", d, part))
		}
		fmt.Fprintf(w, "    %-8s %s [%s] sections=%d %s %s -> %s\n",
			buf.Name,
			buf.Config.Type,
			strings.Join(dims, " "),
			buf.Config.Sections,
			buf.Config.Memcore,
			endpoint(buf.ProducedBy),
			endpoint(buf.ConsumedBy),
		)
	}
}

func dumpInvocations(g *Graph, w io.Writer) {
	for _, callee := range g.Callees {
		for idx, inv := range g.Invocations[callee] {
			args := make([]string, 0, len(inv.Args))
			for _, arg := range inv.Args {
				args = append(args, arg.Port+"="+arg.Arg)
			}
			name := ""
			if inv.Name != "" {
				name = fmt.Sprintf(" %q", inv.Name)
			}
			fmt.Fprintf(w, "  invoke %s#%d%s step=%s (%s)\n", callee, idx, name, stepName(inv.Step), strings.Join(args, ", "))
		}
	}
}

func endpoint(ep *Endpoint) string {
	if ep == nil {
		return "-"
	}
	return ep.String()
}

func stepName(step int64) string {
	switch step {
	case StepJoin:
		return "join"
	case StepDetach:
		return "detach"
	}
	return fmt.Sprint(step)
}

func constSuffix(c bool) string {
	if c {
		return " const"
	}
	return ""
}
