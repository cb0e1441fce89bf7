package corevm

import (
	"bytes"
	"fmt"
	"text/template"

	"golang.org/x/tools/imports"
)

// DisassembleInstruction names one decoded instruction for a
// human-readable dump: the opcode name, its handler token, and its
// raw operand words.
type DisassembleInstruction struct {
	IP       int
	Name     string
	Handler  Word
	Operands []Word
}

// Disassemble walks mc's prepared stream and decodes every
// instruction using its own opcode metadata, producing the listing
// DumpDisassembly formats for humans inspecting JIT candidates.
func Disassemble(mc *MachineCode) []DisassembleInstruction {
	var out []DisassembleInstruction
	stream := mc.Stream
	for ip := 0; ip < len(stream); {
		op := Opcode(stream[ip])
		info, ok := LookupOpcode(op)
		if !ok {
			out = append(out, DisassembleInstruction{IP: ip, Name: "<unknown>", Handler: stream[ip]})
			ip++
			continue
		}
		operands := append([]Word(nil), stream[ip+1:ip+info.Width]...)
		out = append(out, DisassembleInstruction{IP: ip, Name: info.Name, Handler: stream[ip], Operands: operands})
		ip += info.Width
	}
	return out
}

var dumpTemplate = template.Must(template.New("dump").Parse(
	`package dump

// Disassembly of {{.Name}}, serial {{.Serial}}.
var Instructions = []struct {
	IP       int
	Name     string
	Handler  int64
	Operands []int64
}{
{{- range .Instructions}}
	{IP: {{.IP}}, Name: {{printf "%q" .Name}}, Handler: {{.Handler}}, Operands: []int64{ {{- range .Operands}}{{.}}, {{end -}} }},
{{- end}}
}
`))

type dumpData struct {
	Name         string
	Serial       uint64
	Instructions []DisassembleInstruction
}

// DumpDisassembly renders mc's disassembly as formatted Go source, the
// same debug-dump shape the teacher's own tooling produces for
// generated code. golang.org/x/tools/imports formats and resolves
// imports in one pass, the same package the teacher's introspection
// tooling depends on transitively through golang.org/x/tools/go/packages.
func DumpDisassembly(mc *MachineCode) ([]byte, error) {
	var buf bytes.Buffer
	data := dumpData{
		Name:         mc.Source.Name,
		Serial:       mc.Source.Serial,
		Instructions: Disassemble(mc),
	}
	if err := dumpTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("corevm: rendering disassembly dump: %w", err)
	}

	formatted, err := imports.Process("dump.go", buf.Bytes(), nil)
	if err != nil {
		return nil, fmt.Errorf("corevm: formatting disassembly dump: %w", err)
	}
	return formatted, nil
}
