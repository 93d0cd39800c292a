package il

import (
	"fmt"
	"strings"
)

// Disassemble renders a body in the assembler's text syntax: local
// declarations, one labelled instruction per line, then the handler table.
// Offsets are recomputed first.
func Disassemble(body *MethodBody) string {
	body.UpdateOffsets()

	var b strings.Builder
	for _, l := range body.Locals {
		fmt.Fprintf(&b, "local %s %s\n", TypeName(l.Type), LocalName(l))
	}
	for _, ins := range body.Instructions {
		b.WriteString(ins.String())
		b.WriteByte('\n')
	}
	for _, h := range body.Handlers {
		b.WriteString(FormatHandler(h))
		b.WriteByte('\n')
	}
	return b.String()
}

// FormatHandler renders one handler as a .try directive.
func FormatHandler(h *ExceptionHandler) string {
	var b strings.Builder
	fmt.Fprintf(&b, ".try %s %s %s", Label(h.TryStart), Label(h.TryEnd), h.Kind)
	if h.Kind == HandlerCatch {
		b.WriteByte(' ')
		b.WriteString(TypeName(h.CatchType))
	}
	fmt.Fprintf(&b, " %s %s", Label(h.HandlerStart), Label(h.HandlerEnd))
	return b.String()
}
