// Package hostshim generates the host-side wrapper of a top-level task: the
// task body is replaced by code that loads a bitstream, binds every kernel
// argument by name and runs the accelerator.
package hostshim

import (
	"bytes"
	"fmt"
	"text/template"

	"flowcc/internal/frontend"
	"flowcc/internal/ir"
	"flowcc/internal/rewrite"
)

// EnvPrefix names the environment variables consulted for the bitstream
// path: EnvPrefix+"_"+task first, then EnvPrefix alone.
const EnvPrefix = "FLOW_BITSTREAM"

// StreamMarker is an undefined identifier emitted for stream parameters so
// the generated wrapper fails to build.
const StreamMarker = "flowcc_error_stream_not_supported_yet"

const imports = `

import (
	flowfmt "fmt"
	flowos "os"

	flowfrt "flowcc/flow/frt"
)`

var bodyTemplate = template.Must(template.New("body").Parse(`{
	flowBitstream, flowOK := flowos.LookupEnv({{printf "%q" .AppEnv}})
	if !flowOK {
		flowBitstream, flowOK = flowos.LookupEnv({{printf "%q" .Env}})
	}
	if !flowOK {
		panic({{printf "%q" .Missing}})
	}
	flowInstance, flowErr := flowfrt.Open(flowBitstream)
	if flowErr != nil {
		panic(flowErr)
	}
	for {{if .Args}}flowIndex{{else}}_{{end}}, flowArg := range flowInstance.Args() {
		switch flowArg.Name {
{{- range .Args}}
		case {{printf "%q" .Name}}:
{{- if eq .Kind "stream"}}
			_ = ` + StreamMarker + `
{{- else if eq .Kind "mmap"}}
			flowErr = flowInstance.SetArg(flowIndex, flowfrt.{{.Dir}}({{.Expr}}.Data()))
{{- else}}
			flowErr = flowInstance.SetArg(flowIndex, {{.Expr}})
{{- end}}
{{- end}}
		default:
			panic(flowfmt.Sprintf("unknown argument: %v", flowArg))
		}
		if flowErr != nil {
			panic(flowErr)
		}
	}
	for _, flowStep := range []func() error{
		flowInstance.WriteToDevice,
		flowInstance.Exec,
		flowInstance.ReadFromDevice,
		flowInstance.Finish,
	} {
		if flowErr := flowStep(); flowErr != nil {
			panic(flowErr)
		}
	}
}`))

type shimArg struct {
	Name string
	Expr string
	Kind string
	Dir  string
}

type shimData struct {
	AppEnv  string
	Env     string
	Missing string
	Args    []shimArg
}

// Body renders the replacement body of task, braces included.
func Body(task *ir.Task) (string, error) {
	data := shimData{
		AppEnv: EnvPrefix + "_" + task.Name,
		Env:    EnvPrefix,
	}
	data.Missing = fmt.Sprintf("no bitstream found; please set `%s` or `%s`", data.AppEnv, data.Env)
	for _, port := range task.Ports {
		kind := "scalar"
		switch {
		case port.Category.IsMMap():
			kind = "mmap"
		case port.Category.IsStream():
			kind = "stream"
		}
		// Only writes to the device are known statically; const memory is
		// never read back.
		dir := "ReadWrite"
		if port.Const {
			dir = "WriteOnly"
		}
		if kind == "mmap" && port.IsArray() {
			for i := int64(0); i < int64(port.Arity); i++ {
				name := ir.ArrayNameAt(port.Name, i)
				data.Args = append(data.Args, shimArg{Name: name, Expr: name, Kind: kind, Dir: dir})
			}
			continue
		}
		data.Args = append(data.Args, shimArg{Name: port.Name, Expr: port.Name, Kind: kind, Dir: dir})
	}

	var buf bytes.Buffer
	if err := bodyTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render host shim for %s: %w", task.Name, err)
	}
	return buf.String(), nil
}

// Generate returns the unit text with the host runtime imported and the
// body of task replaced by its host wrapper.
func Generate(unit *frontend.Unit, task *ir.Task) ([]byte, error) {
	if task.Decl == nil || task.Decl.Body == nil {
		return nil, fmt.Errorf("task %s has no body", task.Name)
	}
	body, err := Body(task)
	if err != nil {
		return nil, err
	}
	buf := rewrite.New(unit.Src)
	if err := buf.InsertAfter(unit.Offset(unit.File.Name.End()), imports); err != nil {
		return nil, err
	}
	start := unit.Offset(task.Decl.Body.Lbrace)
	end := unit.Offset(task.Decl.Body.Rbrace) + 1
	if err := buf.Replace(start, end, body); err != nil {
		return nil, err
	}
	out, err := buf.Bytes()
	if err != nil {
		return nil, fmt.Errorf("host shim for %s: %w", task.Name, err)
	}
	return out, nil
}
