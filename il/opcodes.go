package il

import "fmt"

// Code is an operation code. One-byte codes use their byte value; two-byte
// codes are 0xFE00 | second byte.
type Code uint16

// Operation codes.
const (
	Nop     Code = 0x00
	Ldarg0  Code = 0x02
	Ldarg1  Code = 0x03
	Ldarg2  Code = 0x04
	Ldarg3  Code = 0x05
	Ldloc0  Code = 0x06
	Ldloc1  Code = 0x07
	Ldloc2  Code = 0x08
	Ldloc3  Code = 0x09
	Stloc0  Code = 0x0A
	Stloc1  Code = 0x0B
	Stloc2  Code = 0x0C
	Stloc3  Code = 0x0D
	LdargS  Code = 0x0E
	LdargaS Code = 0x0F
	StargS  Code = 0x10
	LdlocS  Code = 0x11
	LdlocaS Code = 0x12
	StlocS  Code = 0x13
	Ldnull  Code = 0x14
	LdcI4M1 Code = 0x15
	LdcI40  Code = 0x16
	LdcI41  Code = 0x17
	LdcI42  Code = 0x18
	LdcI43  Code = 0x19
	LdcI44  Code = 0x1A
	LdcI45  Code = 0x1B
	LdcI46  Code = 0x1C
	LdcI47  Code = 0x1D
	LdcI48  Code = 0x1E
	LdcI4S  Code = 0x1F
	LdcI4   Code = 0x20
	LdcI8   Code = 0x21
	Dup     Code = 0x25
	Pop     Code = 0x26
	Call    Code = 0x28
	Ret     Code = 0x2A

	BrS      Code = 0x2B
	BrfalseS Code = 0x2C
	BrtrueS  Code = 0x2D
	BeqS     Code = 0x2E
	BgeS     Code = 0x2F
	BgtS     Code = 0x30
	BleS     Code = 0x31
	BltS     Code = 0x32
	BneUnS   Code = 0x33
	Br       Code = 0x38
	Brfalse  Code = 0x39
	Brtrue   Code = 0x3A
	Beq      Code = 0x3B
	Bge      Code = 0x3C
	Bgt      Code = 0x3D
	Ble      Code = 0x3E
	Blt      Code = 0x3F
	BneUn    Code = 0x40
	Switch   Code = 0x45

	Add Code = 0x58
	Sub Code = 0x59
	Mul Code = 0x5A
	Div Code = 0x5B

	Callvirt   Code = 0x6F
	Ldstr      Code = 0x72
	Newobj     Code = 0x73
	Castclass  Code = 0x74
	Isinst     Code = 0x75
	Throw      Code = 0x7A
	Ldfld      Code = 0x7B
	Stfld      Code = 0x7D
	Ldsfld     Code = 0x7E
	Stsfld     Code = 0x80
	Box        Code = 0x8C
	Endfinally Code = 0xDC
	Leave      Code = 0xDD
	LeaveS     Code = 0xDE

	Ceq     Code = 0xFE01
	Cgt     Code = 0xFE02
	Clt     Code = 0xFE04
	Ldarg   Code = 0xFE09
	Ldarga  Code = 0xFE0A
	Starg   Code = 0xFE0B
	Ldloc   Code = 0xFE0C
	Ldloca  Code = 0xFE0D
	Stloc   Code = 0xFE0E
	Rethrow Code = 0xFE1A
)

// PrefixTwoByte introduces a two-byte operation code.
const PrefixTwoByte byte = 0xFE

// OperandKind describes how an instruction's operand is encoded.
type OperandKind uint8

const (
	OperandNone OperandKind = iota
	OperandShortBranch
	OperandBranch
	OperandSwitch
	OperandShortVar
	OperandVar
	OperandShortArg
	OperandArg
	OperandShortInt
	OperandInt
	OperandInt64
	OperandMethod
	OperandField
	OperandType
	OperandString
)

// FlowControl describes how control leaves an instruction.
type FlowControl uint8

const (
	FlowNext FlowControl = iota
	FlowBranch
	FlowCondBranch
	FlowReturn
	FlowThrow
	FlowEndFinally
)

// Varies marks a stack effect that depends on the operand (calls, ret).
const Varies = -1

// OpInfo is the static description of an operation code.
type OpInfo struct {
	Name    string
	Operand OperandKind
	Flow    FlowControl
	Pops    int
	Pushes  int
}

var opInfos = map[Code]OpInfo{
	Nop:     {"nop", OperandNone, FlowNext, 0, 0},
	Ldarg0:  {"ldarg.0", OperandNone, FlowNext, 0, 1},
	Ldarg1:  {"ldarg.1", OperandNone, FlowNext, 0, 1},
	Ldarg2:  {"ldarg.2", OperandNone, FlowNext, 0, 1},
	Ldarg3:  {"ldarg.3", OperandNone, FlowNext, 0, 1},
	Ldloc0:  {"ldloc.0", OperandNone, FlowNext, 0, 1},
	Ldloc1:  {"ldloc.1", OperandNone, FlowNext, 0, 1},
	Ldloc2:  {"ldloc.2", OperandNone, FlowNext, 0, 1},
	Ldloc3:  {"ldloc.3", OperandNone, FlowNext, 0, 1},
	Stloc0:  {"stloc.0", OperandNone, FlowNext, 1, 0},
	Stloc1:  {"stloc.1", OperandNone, FlowNext, 1, 0},
	Stloc2:  {"stloc.2", OperandNone, FlowNext, 1, 0},
	Stloc3:  {"stloc.3", OperandNone, FlowNext, 1, 0},
	LdargS:  {"ldarg.s", OperandShortArg, FlowNext, 0, 1},
	LdargaS: {"ldarga.s", OperandShortArg, FlowNext, 0, 1},
	StargS:  {"starg.s", OperandShortArg, FlowNext, 1, 0},
	LdlocS:  {"ldloc.s", OperandShortVar, FlowNext, 0, 1},
	LdlocaS: {"ldloca.s", OperandShortVar, FlowNext, 0, 1},
	StlocS:  {"stloc.s", OperandShortVar, FlowNext, 1, 0},
	Ldnull:  {"ldnull", OperandNone, FlowNext, 0, 1},
	LdcI4M1: {"ldc.i4.m1", OperandNone, FlowNext, 0, 1},
	LdcI40:  {"ldc.i4.0", OperandNone, FlowNext, 0, 1},
	LdcI41:  {"ldc.i4.1", OperandNone, FlowNext, 0, 1},
	LdcI42:  {"ldc.i4.2", OperandNone, FlowNext, 0, 1},
	LdcI43:  {"ldc.i4.3", OperandNone, FlowNext, 0, 1},
	LdcI44:  {"ldc.i4.4", OperandNone, FlowNext, 0, 1},
	LdcI45:  {"ldc.i4.5", OperandNone, FlowNext, 0, 1},
	LdcI46:  {"ldc.i4.6", OperandNone, FlowNext, 0, 1},
	LdcI47:  {"ldc.i4.7", OperandNone, FlowNext, 0, 1},
	LdcI48:  {"ldc.i4.8", OperandNone, FlowNext, 0, 1},
	LdcI4S:  {"ldc.i4.s", OperandShortInt, FlowNext, 0, 1},
	LdcI4:   {"ldc.i4", OperandInt, FlowNext, 0, 1},
	LdcI8:   {"ldc.i8", OperandInt64, FlowNext, 0, 1},
	Dup:     {"dup", OperandNone, FlowNext, 1, 2},
	Pop:     {"pop", OperandNone, FlowNext, 1, 0},
	Call:    {"call", OperandMethod, FlowNext, Varies, Varies},
	Ret:     {"ret", OperandNone, FlowReturn, Varies, 0},

	BrS:      {"br.s", OperandShortBranch, FlowBranch, 0, 0},
	BrfalseS: {"brfalse.s", OperandShortBranch, FlowCondBranch, 1, 0},
	BrtrueS:  {"brtrue.s", OperandShortBranch, FlowCondBranch, 1, 0},
	BeqS:     {"beq.s", OperandShortBranch, FlowCondBranch, 2, 0},
	BgeS:     {"bge.s", OperandShortBranch, FlowCondBranch, 2, 0},
	BgtS:     {"bgt.s", OperandShortBranch, FlowCondBranch, 2, 0},
	BleS:     {"ble.s", OperandShortBranch, FlowCondBranch, 2, 0},
	BltS:     {"blt.s", OperandShortBranch, FlowCondBranch, 2, 0},
	BneUnS:   {"bne.un.s", OperandShortBranch, FlowCondBranch, 2, 0},
	Br:       {"br", OperandBranch, FlowBranch, 0, 0},
	Brfalse:  {"brfalse", OperandBranch, FlowCondBranch, 1, 0},
	Brtrue:   {"brtrue", OperandBranch, FlowCondBranch, 1, 0},
	Beq:      {"beq", OperandBranch, FlowCondBranch, 2, 0},
	Bge:      {"bge", OperandBranch, FlowCondBranch, 2, 0},
	Bgt:      {"bgt", OperandBranch, FlowCondBranch, 2, 0},
	Ble:      {"ble", OperandBranch, FlowCondBranch, 2, 0},
	Blt:      {"blt", OperandBranch, FlowCondBranch, 2, 0},
	BneUn:    {"bne.un", OperandBranch, FlowCondBranch, 2, 0},
	Switch:   {"switch", OperandSwitch, FlowCondBranch, 1, 0},

	Add: {"add", OperandNone, FlowNext, 2, 1},
	Sub: {"sub", OperandNone, FlowNext, 2, 1},
	Mul: {"mul", OperandNone, FlowNext, 2, 1},
	Div: {"div", OperandNone, FlowNext, 2, 1},

	Callvirt:   {"callvirt", OperandMethod, FlowNext, Varies, Varies},
	Ldstr:      {"ldstr", OperandString, FlowNext, 0, 1},
	Newobj:     {"newobj", OperandMethod, FlowNext, Varies, 1},
	Castclass:  {"castclass", OperandType, FlowNext, 1, 1},
	Isinst:     {"isinst", OperandType, FlowNext, 1, 1},
	Throw:      {"throw", OperandNone, FlowThrow, 1, 0},
	Ldfld:      {"ldfld", OperandField, FlowNext, 1, 1},
	Stfld:      {"stfld", OperandField, FlowNext, 2, 0},
	Ldsfld:     {"ldsfld", OperandField, FlowNext, 0, 1},
	Stsfld:     {"stsfld", OperandField, FlowNext, 1, 0},
	Box:        {"box", OperandType, FlowNext, 1, 1},
	Endfinally: {"endfinally", OperandNone, FlowEndFinally, 0, 0},
	Leave:      {"leave", OperandBranch, FlowBranch, 0, 0},
	LeaveS:     {"leave.s", OperandShortBranch, FlowBranch, 0, 0},

	Ceq:     {"ceq", OperandNone, FlowNext, 2, 1},
	Cgt:     {"cgt", OperandNone, FlowNext, 2, 1},
	Clt:     {"clt", OperandNone, FlowNext, 2, 1},
	Ldarg:   {"ldarg", OperandArg, FlowNext, 0, 1},
	Ldarga:  {"ldarga", OperandArg, FlowNext, 0, 1},
	Starg:   {"starg", OperandArg, FlowNext, 1, 0},
	Ldloc:   {"ldloc", OperandVar, FlowNext, 0, 1},
	Ldloca:  {"ldloca", OperandVar, FlowNext, 0, 1},
	Stloc:   {"stloc", OperandVar, FlowNext, 1, 0},
	Rethrow: {"rethrow", OperandNone, FlowThrow, 0, 0},
}

var codesByName = func() map[string]Code {
	m := make(map[string]Code, len(opInfos))
	for c, info := range opInfos {
		m[info.Name] = c
	}
	return m
}()

// longToShort pairs every branch with its one-byte displacement form.
var longToShort = map[Code]Code{
	Br:      BrS,
	Brfalse: BrfalseS,
	Brtrue:  BrtrueS,
	Beq:     BeqS,
	Bge:     BgeS,
	Bgt:     BgtS,
	Ble:     BleS,
	Blt:     BltS,
	BneUn:   BneUnS,
	Leave:   LeaveS,
}

var shortToLong = func() map[Code]Code {
	m := make(map[Code]Code, len(longToShort))
	for l, s := range longToShort {
		m[s] = l
	}
	return m
}()

// Info returns the static description of c. Unknown codes report ok=false.
func (c Code) Info() (OpInfo, bool) {
	info, ok := opInfos[c]
	return info, ok
}

// String returns the mnemonic.
func (c Code) String() string {
	if info, ok := opInfos[c]; ok {
		return info.Name
	}
	return fmt.Sprintf("0x%04x", uint16(c))
}

// Known reports whether c is a supported operation code.
func (c Code) Known() bool {
	_, ok := opInfos[c]
	return ok
}

// OperandKind returns how c's operand is encoded.
func (c Code) OperandKind() OperandKind {
	return opInfos[c].Operand
}

// Flow returns how control leaves an instruction with this code.
func (c Code) Flow() FlowControl {
	return opInfos[c].Flow
}

// EncodedSize returns the number of bytes the code itself occupies.
func (c Code) EncodedSize() int {
	if c > 0xFF {
		return 2
	}
	return 1
}

// IsBranch reports whether c transfers control to an instruction operand.
func (c Code) IsBranch() bool {
	k := c.OperandKind()
	return k == OperandShortBranch || k == OperandBranch || k == OperandSwitch
}

// IsUnconditionalBranch reports whether c is br or br.s.
func (c Code) IsUnconditionalBranch() bool {
	return c == Br || c == BrS
}

// IsLeave reports whether c is leave or leave.s.
func (c Code) IsLeave() bool {
	return c == Leave || c == LeaveS
}

// IsStoreLocal reports whether c stores into a local variable.
func (c Code) IsStoreLocal() bool {
	switch c {
	case Stloc, StlocS, Stloc0, Stloc1, Stloc2, Stloc3:
		return true
	}
	return false
}

// IsLoadLocal reports whether c loads a local variable's value.
func (c Code) IsLoadLocal() bool {
	switch c {
	case Ldloc, LdlocS, Ldloc0, Ldloc1, Ldloc2, Ldloc3:
		return true
	}
	return false
}

// EndsBlock reports whether control never falls through to the next instruction.
func (c Code) EndsBlock() bool {
	switch c.Flow() {
	case FlowBranch, FlowReturn, FlowThrow, FlowEndFinally:
		return true
	}
	return false
}

// LongForm returns the four-byte displacement form of a short branch, or c itself.
func (c Code) LongForm() Code {
	if l, ok := shortToLong[c]; ok {
		return l
	}
	return c
}

// ShortForm returns the one-byte displacement form of a long branch, or c itself.
func (c Code) ShortForm() Code {
	if s, ok := longToShort[c]; ok {
		return s
	}
	return c
}

// LookupCode finds a code by mnemonic.
func LookupCode(name string) (Code, bool) {
	c, ok := codesByName[name]
	return c, ok
}
