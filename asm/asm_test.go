package asm

import (
	stderrors "errors"
	"strings"
	"testing"

	"github.com/wippyai/autodispose/errors"
	"github.com/wippyai/autodispose/il"
)

const sample = `
; resource types
module Demo
reference System

type System.IDisposable interface
  method void Dispose() abstract
end

type Demo.Res extends System.Object implements System.IDisposable
  method void Dispose()
    ret
  end
  method void Use(string)
    ret
  end
end

type Demo.Program extends System.Object
  method int32 Run(int32, string) static
    .maxstack 2
    local Demo.Res r
    local int32 <>ret
    newobj instance void Demo.Res::.ctor()
    stloc.0
  TRY: ldloc r
    ldstr "hi \"there\""
    callvirt instance void Demo.Res::Use(string)
    leave.s DONE
  FIN: ldloc.0
    brfalse.s ENDF
    ldloc 0
    callvirt instance void System.IDisposable::Dispose()
  ENDF: endfinally
  DONE: ldarg.0
    switch (TRY, DONE)
    ldc.i4.s -5
    ret
    .try TRY FIN finally FIN DONE
  end
  method string get_Name()
    ldsfld string Demo.Program::name
    ret
  end
  property Name get get_Name
end
`

func TestParse(t *testing.T) {
	m, err := Parse(sample)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if m.Name != "Demo" || len(m.References) != 1 || len(m.Types) != 3 {
		t.Fatalf("module header: %q refs=%v types=%d", m.Name, m.References, len(m.Types))
	}

	iface, _ := m.Type("System.IDisposable")
	if !iface.IsInterface || !iface.Methods[0].IsAbstract || iface.Methods[0].Body != nil {
		t.Error("interface not parsed")
	}
	res, _ := m.Type("Demo.Res")
	if res.BaseType != "System.Object" || len(res.Interfaces) != 1 || res.Interfaces[0] != "System.IDisposable" {
		t.Errorf("Demo.Res header: %+v", res)
	}

	prog, _ := m.Type("Demo.Program")
	run, ok := prog.Method("Run")
	if !ok || !run.IsStatic || run.ReturnType != "int32" || len(run.Params) != 2 {
		t.Fatalf("Run signature: %+v", run)
	}
	body := run.Body
	if body.MaxStack != 2 || len(body.Locals) != 2 {
		t.Fatalf("maxstack=%d locals=%d", body.MaxStack, len(body.Locals))
	}
	if !body.Locals[1].Synthetic || body.Locals[0].Synthetic {
		t.Error("synthetic flag follows the <> prefix")
	}
	if !body.ReturnsValue() {
		t.Error("Run returns a value")
	}

	ins := body.Instructions
	if ins[1].Code != il.Stloc0 || ins[1].Local() != body.Locals[0] {
		t.Error("stloc.0 should carry local 0")
	}
	if s, _ := ins[3].Operand.(string); s != `hi "there"` {
		t.Errorf("ldstr operand = %q", s)
	}
	call := ins[4].Method()
	if call == nil || !call.HasThis || call.FullName() != "Demo.Res::Use" || len(call.Params) != 1 {
		t.Errorf("callvirt operand = %v", ins[4].Operand)
	}
	if ins[0].Method().DeclaringType != call.DeclaringType {
		t.Error("type references should be shared")
	}
	if ins[5].Target() != ins[11] {
		t.Errorf("leave target = %v", ins[5].Target())
	}
	if ins[8].Local() != body.Locals[0] {
		t.Error("indexed local operand not resolved")
	}
	if targets := ins[12].Targets(); len(targets) != 2 || targets[0] != ins[2] || targets[1] != ins[11] {
		t.Errorf("switch targets = %v", targets)
	}
	if v, _ := ins[13].Int(); v != -5 {
		t.Errorf("ldc.i4.s operand = %d", v)
	}
	if v, _ := ins[11].Int(); v != 0 {
		t.Errorf("ldarg.0 operand = %d", v)
	}

	if len(body.Handlers) != 1 {
		t.Fatalf("handlers = %d", len(body.Handlers))
	}
	h := body.Handlers[0]
	if h.Kind != il.HandlerFinally || h.TryStart != ins[2] || h.TryEnd != ins[6] || h.HandlerStart != ins[6] || h.HandlerEnd != ins[11] {
		t.Errorf("handler = %s", il.FormatHandler(h))
	}
	if ins[1].Offset == 0 {
		t.Error("offsets not computed")
	}

	if len(prog.Properties) != 1 || prog.Properties[0].Getter == nil {
		t.Error("property accessor not bound")
	}
}

func TestFormatRoundTrip(t *testing.T) {
	m, err := Parse(sample)
	if err != nil {
		t.Fatal(err)
	}
	text := Format(m)
	again, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse(Format): %v\n%s", err, text)
	}
	if Format(again) != text {
		t.Errorf("round trip changed the module:\n%s\n---\n%s", text, Format(again))
	}
	for _, want := range []string{
		"type Demo.Res extends System.Object implements System.IDisposable\n",
		"  method void Dispose() abstract\n",
		"    .maxstack 2\n",
		"    local int32 <>ret\n",
		"    .try IL_",
		"  property Name get get_Name\n",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("formatted module missing %q", want)
		}
	}
}

func TestParseHandlerEndsAtBodyEnd(t *testing.T) {
	m, err := Parse(`module M
type T
  method void F()
    A: nop
    B: endfinally
    .try A B fault B end
  end
end`)
	if err != nil {
		t.Fatal(err)
	}
	md, _ := m.Types[0].Method("F")
	if h := md.Body.Handlers[0]; h.HandlerEnd != nil || h.Kind != il.HandlerFault {
		t.Errorf("handler = %s", il.FormatHandler(h))
	}
}

func TestParseErrors(t *testing.T) {
	parseFailed := errors.New(errors.PhaseParse, errors.KindInvalidData).Build()
	tests := []struct {
		name string
		src  string
		line int
	}{
		{"no module", "type T\nend", 1},
		{"unknown directive", "module M\nfrobnicate", 2},
		{"unknown operation", "module M\ntype T\n  method void F()\n    bogus\n  end\nend", 4},
		{"unknown local", "module M\ntype T\n  method void F()\n    ldloc x\n  end\nend", 4},
		{"undefined label", "module M\ntype T\n  method void F()\n    br L9\n    ret\n  end\nend", 4},
		{"duplicate label", "module M\ntype T\n  method void F()\n  L: nop\n  L: ret\n  end\nend", 5},
		{"unclosed method", "module M\ntype T\n  method void F()\n    ret", 0},
		{"bad member", "module M\ntype T\n  method void F()\n    call void Nope()\n  end\nend", 4},
		{"missing getter", "module M\ntype T\n  property P get get_P\nend", 3},
		{"macro local out of range", "module M\ntype T\n  method void F()\n    stloc.2\n  end\nend", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			if err == nil {
				t.Fatal("expected error")
			}
			if !stderrors.Is(err, parseFailed) {
				t.Fatalf("expected parse error, got %v", err)
			}
			var perr *errors.Error
			if stderrors.As(err, &perr) && perr.Value != tt.line {
				t.Errorf("line = %v, want %d (%v)", perr.Value, tt.line, err)
			}
		})
	}
}
