// Package metadata projects compiled tasks into the graph description read by
// downstream floorplanning and packaging tools.
package metadata

import (
	"encoding/json"
	"fmt"

	"sigs.k8s.io/yaml"

	"flowcc/internal/ir"
)

// Document is the whole output for one top-level task.
type Document struct {
	Top   string              `json:"top"`
	Tasks map[string]*TaskDoc `json:"tasks"`
}

// NewDocument returns an empty document rooted at top.
func NewDocument(top string) *Document {
	return &Document{Top: top, Tasks: make(map[string]*TaskDoc)}
}

// TaskDoc describes one task.
type TaskDoc struct {
	Target string   `json:"target"`
	Vendor string   `json:"vendor"`
	Level  ir.Level `json:"level"`
	Code   string   `json:"code"`
	// Ports is filled for the top-level task only.
	Ports        []PortDoc                  `json:"ports,omitempty"`
	Tasks        map[string][]InvocationDoc `json:"tasks,omitempty"`
	Fifos        map[string]FifoDoc         `json:"fifos,omitempty"`
	Buffers      map[string]BufferDoc       `json:"buffers,omitempty"`
	FrtInterface string                     `json:"frt_interface,omitempty"`
}

// PortDoc is one entry of the top-level interface listing. Buffer ports
// carry their shape inline.
type PortDoc struct {
	Name  string `json:"name"`
	Cat   string `json:"cat"`
	Width int    `json:"width"`
	Type  string `json:"type"`
	*BufferShape
}

// InvocationDoc is one lane of an invoked task.
type InvocationDoc struct {
	Step int64             `json:"step"`
	Name string            `json:"name,omitempty"`
	Args map[string]ArgDoc `json:"args"`
}

// ArgDoc is the binding of one callee port.
type ArgDoc struct {
	Cat string `json:"cat"`
	Arg string `json:"arg"`
}

// FifoDoc is one stream. Depth is absent for streams passed in from the
// parent task.
type FifoDoc struct {
	Depth      *int64    `json:"depth,omitempty"`
	ProducedBy *Endpoint `json:"produced_by,omitempty"`
	ConsumedBy *Endpoint `json:"consumed_by,omitempty"`
}

// BufferShape is the compile-time configuration shared by buffer ports and
// buffer instances.
type BufferShape struct {
	Dims       []int64        `json:"dims"`
	Partitions []PartitionDoc `json:"partitions"`
	Sections   int64          `json:"n_sections"`
	Memcore    string         `json:"memcore_type"`
}

// PartitionDoc is the layout of one dimension.
type PartitionDoc struct {
	Type   string `json:"type"`
	Factor int64  `json:"factor"`
}

// BufferDoc is one buffer instance.
type BufferDoc struct {
	Type string `json:"type"`
	BufferShape
	Width        int       `json:"width,omitempty"`
	Length       int64     `json:"length,omitempty"`
	Instantiated bool      `json:"is_instantiated,omitempty"`
	ProducedBy   *Endpoint `json:"produced_by,omitempty"`
	ConsumedBy   *Endpoint `json:"consumed_by,omitempty"`
}

// Endpoint serializes as a [task, index] pair.
type Endpoint ir.Endpoint

func (e Endpoint) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.Task, e.Index})
}

func (e *Endpoint) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("endpoint must have 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &e.Task); err != nil {
		return fmt.Errorf("endpoint task: %w", err)
	}
	if err := json.Unmarshal(pair[1], &e.Index); err != nil {
		return fmt.Errorf("endpoint index: %w", err)
	}
	return nil
}

func endpoint(ep *ir.Endpoint) *Endpoint {
	if ep == nil {
		return nil
	}
	out := Endpoint(*ep)
	return &out
}

func shape(cfg ir.BufferConfig) BufferShape {
	s := BufferShape{
		Dims:       append([]int64{}, cfg.Dims...),
		Partitions: make([]PartitionDoc, 0, len(cfg.Partitions)),
		Sections:   cfg.Sections,
		Memcore:    string(cfg.Memcore),
	}
	for _, p := range cfg.Partitions {
		s.Partitions = append(s.Partitions, PartitionDoc{Type: string(p.Kind), Factor: p.Factor})
	}
	return s
}

// Task builds the document of one task. code is the rewritten unit text;
// frt is the host wrapper and is recorded only for the top-level task.
func Task(task *ir.Task, code, frt string) *TaskDoc {
	doc := &TaskDoc{
		Target: task.Target.Technology,
		Vendor: task.Target.Vendor,
		Level:  task.Level,
		Code:   code,
	}
	if task.Level == ir.Top {
		doc.Ports = Ports(task)
		doc.FrtInterface = frt
	}
	if g := task.Graph; g != nil {
		doc.Tasks = make(map[string][]InvocationDoc, len(g.Callees))
		for _, callee := range g.Callees {
			for _, inv := range g.Invocations[callee] {
				args := make(map[string]ArgDoc, len(inv.Args))
				for _, a := range inv.Args {
					args[a.Port] = ArgDoc{Cat: string(a.Category), Arg: a.Arg}
				}
				doc.Tasks[callee] = append(doc.Tasks[callee], InvocationDoc{Step: inv.Step, Name: inv.Name, Args: args})
			}
		}
		doc.Fifos = make(map[string]FifoDoc)
		for _, ch := range g.Registry.Channels() {
			f := FifoDoc{ProducedBy: endpoint(ch.ProducedBy), ConsumedBy: endpoint(ch.ConsumedBy)}
			if ch.Declared {
				depth := ch.Depth
				f.Depth = &depth
			}
			doc.Fifos[ch.Name] = f
		}
		doc.Buffers = make(map[string]BufferDoc)
		for _, b := range g.Registry.Buffers() {
			doc.Buffers[b.Name] = BufferDoc{
				Type:         b.Config.Type,
				BufferShape:  shape(b.Config),
				Width:        b.Config.Width,
				Length:       b.Config.Length,
				Instantiated: b.Config.Instantiated,
				ProducedBy:   endpoint(b.ProducedBy),
				ConsumedBy:   endpoint(b.ConsumedBy),
			}
		}
	}
	return doc
}

// Ports lists the interface of a task. Arrays of ports expand to one entry
// per element; memory-mapped ports are typed as pointers to their element.
func Ports(task *ir.Task) []PortDoc {
	var out []PortDoc
	for _, port := range task.Ports {
		doc := PortDoc{
			Cat:   string(port.Category),
			Width: port.Width,
			Type:  port.Type,
		}
		if port.Category.IsMMap() {
			doc.Type = "*" + port.Type
		}
		if port.Buffer != nil {
			s := shape(*port.Buffer)
			doc.BufferShape = &s
		}
		if !port.IsArray() {
			doc.Name = port.Name
			out = append(out, doc)
			continue
		}
		for i := int64(0); i < int64(port.Arity); i++ {
			doc.Name = ir.ArrayNameAt(port.Name, i)
			out = append(out, doc)
		}
	}
	return out
}

// Marshal renders the document as "json" or "yaml".
func Marshal(doc *Document, format string) ([]byte, error) {
	switch format {
	case "", "json":
		out, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode metadata: %w", err)
		}
		return append(out, '\n'), nil
	case "yaml":
		out, err := yaml.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("encode metadata: %w", err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown metadata format %q", format)
}

// Unmarshal parses a document in either format.
func Unmarshal(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &doc, nil
}
