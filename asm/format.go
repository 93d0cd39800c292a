package asm

import (
	"fmt"
	"strings"

	"github.com/wippyai/autodispose/il"
	"github.com/wippyai/autodispose/module"
)

// Format renders m in assembler syntax. Bodies are printed with
// il.Disassemble, so every instruction carries its IL_xxxx label and
// offsets are recomputed as a side effect. Parsing the result yields an
// equivalent module.
func Format(m *module.Module) string {
	var b strings.Builder
	fmt.Fprintf(&b, "module %s\n", m.Name)
	for _, ref := range m.References {
		fmt.Fprintf(&b, "reference %s\n", ref)
	}
	for _, t := range m.Types {
		b.WriteByte('\n')
		formatType(&b, t)
	}
	return b.String()
}

func formatType(b *strings.Builder, t *module.TypeDef) {
	b.WriteString("type ")
	b.WriteString(t.Name)
	if t.BaseType != "" {
		b.WriteString(" extends ")
		b.WriteString(t.BaseType)
	}
	if len(t.Interfaces) > 0 {
		b.WriteString(" implements ")
		b.WriteString(strings.Join(t.Interfaces, ", "))
	}
	if t.IsInterface {
		b.WriteString(" interface")
	}
	if t.IsValueType {
		b.WriteString(" valuetype")
	}
	b.WriteByte('\n')

	for _, md := range t.Methods {
		formatMethod(b, md)
	}
	for _, p := range t.Properties {
		fmt.Fprintf(b, "  property %s", p.Name)
		if p.Getter != nil {
			fmt.Fprintf(b, " get %s", p.Getter.Name)
		}
		if p.Setter != nil {
			fmt.Fprintf(b, " set %s", p.Setter.Name)
		}
		b.WriteByte('\n')
	}
	b.WriteString("end\n")
}

func formatMethod(b *strings.Builder, md *module.MethodDef) {
	ret := md.ReturnType
	if ret == "" {
		ret = il.Void
	}
	fmt.Fprintf(b, "  method %s %s(%s)", ret, md.Name, strings.Join(md.Params, ", "))
	if md.IsStatic {
		b.WriteString(" static")
	}
	if md.IsAbstract || md.Body == nil {
		b.WriteString(" abstract\n")
		return
	}
	b.WriteByte('\n')
	if md.Body.MaxStack > 0 {
		fmt.Fprintf(b, "    .maxstack %d\n", md.Body.MaxStack)
	}
	if md.Body.InitLocals {
		b.WriteString("    .initlocals\n")
	}
	for _, line := range strings.Split(il.Disassemble(md.Body), "\n") {
		if line == "" {
			continue
		}
		b.WriteString("    ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString("  end\n")
}
