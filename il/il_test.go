package il

import (
	"fmt"
	"strings"
	"testing"
)

var (
	resType = &TypeRef{Name: "Demo.Res"}
	resCtor = &MethodRef{DeclaringType: resType, Name: ".ctor", ReturnType: &TypeRef{Name: Void}, HasThis: true}
	resUse  = &MethodRef{DeclaringType: resType, Name: "Use", ReturnType: &TypeRef{Name: Void}, HasThis: true}
)

// loopBody builds:
//
//	r = new Res(); for (i = 0; i < 10; i++) r.Use(); return
func loopBody() *MethodBody {
	b := &MethodBody{Name: "Demo.Program::Loop", ReturnType: &TypeRef{Name: Void}}
	r := b.AddLocal(resType, "r", false)
	i := b.AddLocal(&TypeRef{Name: "int32"}, "i", false)

	ret := NewInstruction(Ret, nil)
	head := NewInstruction(Ldloc, i)
	b.Append(
		NewInstruction(Newobj, resCtor),
		NewInstruction(Stloc, r),
		NewInstruction(LdcI4, 0),
		NewInstruction(Stloc, i),
		head,
		NewInstruction(LdcI4, 10),
		NewInstruction(Bge, ret),
		NewInstruction(Ldloc, r),
		NewInstruction(Callvirt, resUse),
		NewInstruction(Ldloc, i),
		NewInstruction(LdcI4, 1),
		NewInstruction(Add, nil),
		NewInstruction(Stloc, i),
		NewInstruction(Br, head),
		ret,
	)
	b.UpdateOffsets()
	return b
}

func codes(b *MethodBody) []Code {
	out := make([]Code, len(b.Instructions))
	for n, ins := range b.Instructions {
		out[n] = ins.Code
	}
	return out
}

func offsets(b *MethodBody) []int {
	out := make([]int, len(b.Instructions))
	for n, ins := range b.Instructions {
		out[n] = ins.Offset
	}
	return out
}

func TestLookupCodeRoundTrip(t *testing.T) {
	for c, info := range opInfos {
		got, ok := LookupCode(info.Name)
		if !ok || got != c {
			t.Errorf("LookupCode(%q) = %v, %v; want %v", info.Name, got, ok, c)
		}
	}
	if _, ok := LookupCode("frobnicate"); ok {
		t.Error("unknown mnemonic resolved")
	}
}

func TestBranchFormPairs(t *testing.T) {
	for long, short := range longToShort {
		if long.ShortForm() != short || short.LongForm() != long {
			t.Errorf("pair %s/%s not symmetric", long, short)
		}
		if long.OperandKind() != OperandBranch || short.OperandKind() != OperandShortBranch {
			t.Errorf("pair %s/%s has wrong operand kinds", long, short)
		}
	}
	if Nop.ShortForm() != Nop || Nop.LongForm() != Nop {
		t.Error("non-branch code should map to itself")
	}
}

func TestInstructionSize(t *testing.T) {
	tests := []struct {
		ins  *Instruction
		want int
	}{
		{NewInstruction(Nop, nil), 1},
		{NewInstruction(Stloc0, &Local{}), 1},
		{NewInstruction(StlocS, &Local{Index: 9}), 2},
		{NewInstruction(Stloc, &Local{Index: 9}), 4},
		{NewInstruction(LdcI4, 1000), 5},
		{NewInstruction(LdcI8, int64(1)), 9},
		{NewInstruction(BrS, nil), 2},
		{NewInstruction(Leave, nil), 5},
		{NewInstruction(Switch, []*Instruction{nil, nil, nil}), 1 + 4 + 12},
		{NewInstruction(Callvirt, resUse), 5},
		{NewInstruction(Ceq, nil), 2},
	}
	for _, tt := range tests {
		if got := tt.ins.Size(); got != tt.want {
			t.Errorf("%s: Size() = %d, want %d", tt.ins.Code, got, tt.want)
		}
	}
}

func TestOptimizeMacrosPicksShortForms(t *testing.T) {
	b := loopBody()
	b.OptimizeMacros()

	want := []Code{Newobj, Stloc0, LdcI40, Stloc1, Ldloc1, LdcI4S, BgeS, Ldloc0, Callvirt, Ldloc1, LdcI41, Add, Stloc1, BrS, Ret}
	got := codes(b)
	if len(got) != len(want) {
		t.Fatalf("got %d instructions, want %d", len(got), len(want))
	}
	for n := range want {
		if got[n] != want[n] {
			t.Errorf("instruction %d: got %s, want %s", n, got[n], want[n])
		}
	}
}

func TestSimplifyMacrosExpandsEverything(t *testing.T) {
	b := loopBody()
	b.OptimizeMacros()
	b.SimplifyMacros()

	for _, ins := range b.Instructions {
		if ins.Code.OperandKind() == OperandShortBranch {
			t.Errorf("%s still short", ins.Code)
		}
		switch ins.Code {
		case Stloc0, Stloc1, Ldloc0, Ldloc1, LdcI40, LdcI41, LdcI4S:
			t.Errorf("%s is a macro form", ins.Code)
		}
	}
	if b.Instructions[1].Local() == nil || b.Instructions[1].Local().Name != "r" {
		t.Error("local operand lost across macro expansion")
	}
}

func TestCanonicalizationIdempotence(t *testing.T) {
	b := loopBody()
	b.OptimizeMacros()
	canonical := codes(b)
	canonicalOffsets := offsets(b)

	b.SimplifyMacros()
	b.OptimizeMacros()
	again := codes(b)
	for n := range canonical {
		if canonical[n] != again[n] {
			t.Errorf("instruction %d: %s became %s", n, canonical[n], again[n])
		}
	}
	for n, off := range offsets(b) {
		if off != canonicalOffsets[n] {
			t.Errorf("instruction %d moved from %d to %d", n, canonicalOffsets[n], off)
		}
	}

	b.OptimizeMacros()
	for n, c := range codes(b) {
		if c != canonical[n] {
			t.Errorf("second optimize changed instruction %d", n)
		}
	}
}

func TestOptimizeMacrosBranchDistance(t *testing.T) {
	tests := []struct {
		name string
		nops int
		want Code
	}{
		{"near", 100, BrS},
		{"edge", 127, BrS},
		{"far", 128, Br},
		{"very far", 300, Br},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &MethodBody{}
			ret := NewInstruction(Ret, nil)
			b.Append(NewInstruction(Br, ret))
			for i := 0; i < tt.nops; i++ {
				b.Append(NewInstruction(Nop, nil))
			}
			b.Append(ret)
			b.OptimizeMacros()
			if got := b.Instructions[0].Code; got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestOptimizeMacrosFixedPoint(t *testing.T) {
	// The first branch only fits once the second has been shortened.
	b := &MethodBody{}
	target := NewInstruction(Ret, nil)
	after := NewInstruction(Ret, nil)
	b.Append(NewInstruction(Br, target), NewInstruction(Br, after))
	for i := 0; i < 123; i++ {
		b.Append(NewInstruction(Nop, nil))
	}
	b.Append(target, after)

	b.OptimizeMacros()
	if b.Instructions[0].Code != BrS || b.Instructions[1].Code != BrS {
		t.Fatalf("got %s, %s; want both br.s", b.Instructions[0].Code, b.Instructions[1].Code)
	}
	if _, err := EncodeBody(b, nil); err != nil {
		t.Fatalf("optimized body does not encode: %v", err)
	}
}

func TestInsertBeforeKeepsReferences(t *testing.T) {
	b := loopBody()
	ret := b.Last()
	h := &ExceptionHandler{Kind: HandlerFinally, TryStart: b.Instructions[2], TryEnd: ret, HandlerStart: ret}
	b.Handlers = append(b.Handlers, h)

	nop := NewInstruction(Nop, nil)
	if err := b.InsertBefore(ret, nop); err != nil {
		t.Fatal(err)
	}
	if b.Previous(ret) != nop {
		t.Fatal("nop not placed before ret")
	}
	if b.Instructions[6].Target() != ret {
		t.Error("branch retargeted by insertion")
	}
	if h.TryEnd != ret {
		t.Error("handler boundary moved by insertion")
	}
}

func TestReplaceRetargets(t *testing.T) {
	b := loopBody()
	ret := b.Last()
	h := &ExceptionHandler{Kind: HandlerFinally, TryStart: b.Instructions[0], TryEnd: ret, HandlerStart: ret}
	b.Handlers = append(b.Handlers, h)

	repl := NewInstruction(Nop, nil)
	if err := b.Replace(ret, repl); err != nil {
		t.Fatal(err)
	}
	if b.Instructions[6].Target() != repl {
		t.Error("branch not retargeted")
	}
	if h.TryEnd != repl || h.HandlerStart != repl {
		t.Error("handler not retargeted")
	}
	if b.IndexOf(ret) != -1 {
		t.Error("old instruction still present")
	}
}

func TestRemoveMovesReferencesForward(t *testing.T) {
	b := loopBody()
	head := b.Instructions[4]
	next := b.Instructions[5]
	if err := b.Remove(head); err != nil {
		t.Fatal(err)
	}
	if b.Instructions[len(b.Instructions)-2].Target() != next {
		t.Error("back edge should now target the following instruction")
	}
}

func TestRewriteKeepsIdentity(t *testing.T) {
	b := loopBody()
	ret := b.Last()
	b.Rewrite(ret, Br, b.Instructions[0])
	if b.Instructions[6].Target() != ret {
		t.Error("identity lost")
	}
	if ret.Code != Br || ret.Target() != b.Instructions[0] {
		t.Error("rewrite not applied")
	}
}

func TestEditErrorsOnForeignInstruction(t *testing.T) {
	b := loopBody()
	foreign := NewInstruction(Nop, nil)
	if err := b.InsertBefore(foreign, NewInstruction(Nop, nil)); err == nil {
		t.Error("InsertBefore accepted foreign target")
	}
	if err := b.InsertAfter(foreign, NewInstruction(Nop, nil)); err == nil {
		t.Error("InsertAfter accepted foreign target")
	}
	if err := b.Replace(foreign, NewInstruction(Nop, nil)); err == nil {
		t.Error("Replace accepted foreign target")
	}
	err := b.Remove(foreign)
	if err == nil {
		t.Fatal("Remove accepted foreign target")
	}
	if !strings.Contains(err.Error(), "is not part of the body") {
		t.Errorf("err = %v", err)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	b := loopBody()
	b.Handlers = append(b.Handlers, &ExceptionHandler{
		Kind: HandlerFinally, TryStart: b.Instructions[2], TryEnd: b.Instructions[13],
		HandlerStart: b.Instructions[13], HandlerEnd: b.Instructions[14],
	})

	c := b.Clone()
	if len(c.Instructions) != len(b.Instructions) {
		t.Fatal("length mismatch")
	}
	for n, ins := range c.Instructions {
		if ins == b.Instructions[n] {
			t.Fatalf("instruction %d shared", n)
		}
	}
	if c.Instructions[6].Target() != c.Last() {
		t.Error("branch not remapped")
	}
	if c.Instructions[1].Local() != c.Locals[0] || c.Locals[0] == b.Locals[0] {
		t.Error("local not remapped")
	}
	if c.Handlers[0].TryStart != c.Instructions[2] || c.Handlers[0].HandlerEnd != c.Instructions[14] {
		t.Error("handler not remapped")
	}

	c.Append(NewInstruction(Nop, nil))
	c.Instructions[0].Code = Nop
	if len(b.Instructions) == len(c.Instructions) || b.Instructions[0].Code != Newobj {
		t.Error("edit on clone leaked into original")
	}
}

func TestAtOffset(t *testing.T) {
	b := loopBody()
	for _, ins := range b.Instructions {
		got, ok := b.AtOffset(ins.Offset)
		if !ok || got != ins {
			t.Errorf("AtOffset(%d) = %v", ins.Offset, got)
		}
	}
	if _, ok := b.AtOffset(1); ok {
		t.Error("offset inside newobj resolved")
	}
	if _, ok := b.AtOffset(b.CodeSize()); ok {
		t.Error("end of code resolved")
	}
}

type tokenTable struct {
	ops []any
}

func (tt *tokenTable) Token(op any) (uint32, error) {
	for n, o := range tt.ops {
		if o == op {
			return uint32(n + 1), nil
		}
	}
	tt.ops = append(tt.ops, op)
	return uint32(len(tt.ops)), nil
}

func (tt *tokenTable) Resolve(tok uint32) (any, error) {
	if tok == 0 || int(tok) > len(tt.ops) {
		return nil, fmt.Errorf("token %d out of range", tok)
	}
	return tt.ops[tok-1], nil
}

func TestEncodeDecodeBody(t *testing.T) {
	for _, optimize := range []bool{false, true} {
		t.Run(fmt.Sprintf("optimized=%v", optimize), func(t *testing.T) {
			b := loopBody()
			sw := NewInstruction(Switch, []*Instruction{b.Instructions[4], b.Last()})
			if err := b.InsertBefore(b.Last(), NewInstruction(Ldstr, "x"), NewInstruction(Pop, nil), NewInstruction(LdcI40, 0), sw); err != nil {
				t.Fatal(err)
			}
			if optimize {
				b.OptimizeMacros()
			}
			tokens := &tokenTable{}
			code, err := EncodeBody(b, tokens)
			if err != nil {
				t.Fatalf("EncodeBody: %v", err)
			}
			if len(code) != b.CodeSize() {
				t.Fatalf("encoded %d bytes, CodeSize %d", len(code), b.CodeSize())
			}

			got, err := DecodeBody(code, b.Locals, tokens)
			if err != nil {
				t.Fatalf("DecodeBody: %v", err)
			}
			if len(got) != len(b.Instructions) {
				t.Fatalf("decoded %d instructions, want %d", len(got), len(b.Instructions))
			}
			for n, ins := range got {
				want := b.Instructions[n]
				if ins.Code != want.Code || ins.Offset != want.Offset {
					t.Errorf("%d: got %s@%d, want %s@%d", n, ins.Code, ins.Offset, want.Code, want.Offset)
				}
				switch op := want.Operand.(type) {
				case *Instruction:
					if ins.Target().Offset != op.Offset {
						t.Errorf("%d: target %d, want %d", n, ins.Target().Offset, op.Offset)
					}
				case []*Instruction:
					for k, tgt := range ins.Targets() {
						if tgt.Offset != op[k].Offset {
							t.Errorf("%d: switch target %d = %d, want %d", n, k, tgt.Offset, op[k].Offset)
						}
					}
				default:
					if ins.Operand != want.Operand {
						t.Errorf("%d: operand %v, want %v", n, ins.Operand, want.Operand)
					}
				}
			}
		})
	}
}

func TestEncodeRejectsOverflowingShortBranch(t *testing.T) {
	b := &MethodBody{}
	ret := NewInstruction(Ret, nil)
	b.Append(NewInstruction(BrS, ret))
	for i := 0; i < 200; i++ {
		b.Append(NewInstruction(Nop, nil))
	}
	b.Append(ret)
	if _, err := EncodeBody(b, nil); err == nil {
		t.Fatal("expected displacement error")
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		code []byte
	}{
		{"unknown opcode", []byte{0xA0}},
		{"truncated immediate", []byte{byte(LdcI4), 0x01}},
		{"branch into operand", []byte{byte(BrS), 0x01, byte(LdcI4S), 0x05, byte(Ret)}},
		{"local out of range", []byte{byte(Ldloc0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeBody(tt.code, nil, &tokenTable{}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestHandlerRecordsRoundTrip(t *testing.T) {
	b := loopBody()
	b.Handlers = []*ExceptionHandler{{
		Kind: HandlerCatch, CatchType: &TypeRef{Name: "System.Exception"},
		TryStart: b.Instructions[2], TryEnd: b.Instructions[13],
		HandlerStart: b.Instructions[13], HandlerEnd: nil,
	}}
	b.UpdateOffsets()
	recs := HandlerRecords(b)
	if recs[0].HandlerEnd != b.CodeSize() {
		t.Errorf("nil end = %d, want code size %d", recs[0].HandlerEnd, b.CodeSize())
	}

	hs, err := BindHandlers(b.Instructions, recs, b.CodeSize())
	if err != nil {
		t.Fatal(err)
	}
	h := hs[0]
	if h.TryStart != b.Instructions[2] || h.TryEnd != b.Instructions[13] || h.HandlerEnd != nil {
		t.Error("handler not rebound")
	}
	if h.CatchType == nil || h.CatchType.Name != "System.Exception" {
		t.Error("catch type lost")
	}

	recs[0].TryStart++
	if _, err := BindHandlers(b.Instructions, recs, b.CodeSize()); err == nil {
		t.Error("expected error for misaligned boundary")
	}
}

func TestDisassemble(t *testing.T) {
	b := loopBody()
	b.OptimizeMacros()
	b.Handlers = []*ExceptionHandler{{
		Kind: HandlerFinally, TryStart: b.Instructions[2], TryEnd: b.Instructions[13],
		HandlerStart: b.Instructions[13], HandlerEnd: b.Instructions[14],
	}}
	text := Disassemble(b)

	for _, want := range []string{
		"local Demo.Res r",
		"local int32 i",
		"IL_0000: newobj instance void Demo.Res::.ctor()",
		"IL_0005: stloc.0\n",
		"callvirt instance void Demo.Res::Use()",
		"bge.s IL_",
		".try IL_0006 ",
		"finally",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("disassembly missing %q:\n%s", want, text)
		}
	}
}

func TestStackEffect(t *testing.T) {
	withArgs := &MethodRef{DeclaringType: resType, Name: "Mix", ReturnType: &TypeRef{Name: "int32"},
		Params: []*TypeRef{{Name: "int32"}, {Name: "int32"}}, HasThis: true}
	tests := []struct {
		ins          *Instruction
		returns      bool
		pops, pushes int
	}{
		{NewInstruction(Callvirt, withArgs), false, 3, 1},
		{NewInstruction(Call, resUse), false, 1, 0},
		{NewInstruction(Newobj, resCtor), false, 0, 1},
		{NewInstruction(Ret, nil), true, 1, 0},
		{NewInstruction(Ret, nil), false, 0, 0},
		{NewInstruction(Dup, nil), false, 1, 2},
		{NewInstruction(Stfld, nil), false, 2, 0},
	}
	for _, tt := range tests {
		pops, pushes := tt.ins.StackEffect(tt.returns)
		if pops != tt.pops || pushes != tt.pushes {
			t.Errorf("%s: got %d/%d, want %d/%d", tt.ins.Code, pops, pushes, tt.pops, tt.pushes)
		}
	}
}
