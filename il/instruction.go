package il

import (
	"fmt"
	"strconv"
	"strings"
)

// Instruction is one decoded operation. Branch operands are *Instruction,
// switch operands []*Instruction, local operands *Local (macro forms such as
// stloc.0 carry their *Local too), argument indices and 32-bit constants int.
type Instruction struct {
	Operand any
	Offset  int
	Code    Code
}

// TypeRef names a type by its full name.
type TypeRef struct {
	Name string
}

// MethodRef references a method by declaring type, name and signature.
type MethodRef struct {
	DeclaringType *TypeRef
	ReturnType    *TypeRef
	Name          string
	Params        []*TypeRef
	HasThis       bool
}

// FieldRef references a field.
type FieldRef struct {
	DeclaringType *TypeRef
	FieldType     *TypeRef
	Name          string
}

// Local is a method-local variable slot.
type Local struct {
	Type      *TypeRef
	Name      string
	Index     int
	Synthetic bool
}

// Void is the return type of methods that produce no value.
const Void = "void"

// NewInstruction creates an instruction with the given code and operand.
func NewInstruction(code Code, operand any) *Instruction {
	return &Instruction{Code: code, Operand: operand}
}

// Size returns the encoded size in bytes.
func (i *Instruction) Size() int {
	size := i.Code.EncodedSize()
	switch i.Code.OperandKind() {
	case OperandShortBranch, OperandShortVar, OperandShortArg, OperandShortInt:
		size++
	case OperandVar, OperandArg:
		size += 2
	case OperandBranch, OperandInt, OperandMethod, OperandField, OperandType, OperandString:
		size += 4
	case OperandInt64:
		size += 8
	case OperandSwitch:
		targets, _ := i.Operand.([]*Instruction)
		size += 4 + 4*len(targets)
	}
	return size
}

// Target returns the branch target, or nil for non-branch instructions.
func (i *Instruction) Target() *Instruction {
	t, _ := i.Operand.(*Instruction)
	return t
}

// Targets returns the switch targets, or nil.
func (i *Instruction) Targets() []*Instruction {
	t, _ := i.Operand.([]*Instruction)
	return t
}

// Local returns the local variable operand, or nil.
func (i *Instruction) Local() *Local {
	l, _ := i.Operand.(*Local)
	return l
}

// Method returns the method operand, or nil.
func (i *Instruction) Method() *MethodRef {
	m, _ := i.Operand.(*MethodRef)
	return m
}

// Int returns the integer operand and whether one is present.
func (i *Instruction) Int() (int, bool) {
	v, ok := i.Operand.(int)
	return v, ok
}

// String formats the instruction the way the disassembler prints it.
func (i *Instruction) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", Label(i), i.Code)
	if op := FormatOperand(i); op != "" {
		b.WriteByte(' ')
		b.WriteString(op)
	}
	return b.String()
}

// Label returns the IL_xxxx label of an instruction.
func Label(i *Instruction) string {
	if i == nil {
		return "end"
	}
	return fmt.Sprintf("IL_%04x", i.Offset)
}

// FormatOperand renders the operand in assembler syntax. Implicit operands
// of macro forms (ldloc.0, ldc.i4.3) render as the empty string.
func FormatOperand(i *Instruction) string {
	switch i.Code.OperandKind() {
	case OperandNone:
		return ""
	case OperandShortBranch, OperandBranch:
		return Label(i.Target())
	case OperandSwitch:
		labels := make([]string, len(i.Targets()))
		for n, t := range i.Targets() {
			labels[n] = Label(t)
		}
		return "(" + strings.Join(labels, ", ") + ")"
	case OperandShortVar, OperandVar:
		return LocalName(i.Local())
	case OperandShortArg, OperandArg, OperandShortInt, OperandInt:
		v, _ := i.Int()
		return strconv.Itoa(v)
	case OperandInt64:
		v, _ := i.Operand.(int64)
		return strconv.FormatInt(v, 10)
	case OperandString:
		s, _ := i.Operand.(string)
		return strconv.Quote(s)
	case OperandMethod:
		if m := i.Method(); m != nil {
			return m.String()
		}
	case OperandField:
		if f, ok := i.Operand.(*FieldRef); ok {
			return f.String()
		}
	case OperandType:
		if t, ok := i.Operand.(*TypeRef); ok {
			return t.Name
		}
	}
	return "<nil>"
}

// LocalName returns the printable name of a local.
func LocalName(l *Local) string {
	if l == nil {
		return "<nil>"
	}
	if l.Name != "" {
		return l.Name
	}
	return fmt.Sprintf("V_%d", l.Index)
}

// TypeName returns t's name, or "void" for nil.
func TypeName(t *TypeRef) string {
	if t == nil {
		return Void
	}
	return t.Name
}

// FullName returns "Type::Name".
func (m *MethodRef) FullName() string {
	return TypeName(m.DeclaringType) + "::" + m.Name
}

// String renders the reference in assembler syntax:
// "instance void Demo.Res::Use(int32)".
func (m *MethodRef) String() string {
	var b strings.Builder
	if m.HasThis {
		b.WriteString("instance ")
	}
	b.WriteString(TypeName(m.ReturnType))
	b.WriteByte(' ')
	b.WriteString(m.FullName())
	b.WriteByte('(')
	for n, p := range m.Params {
		if n > 0 {
			b.WriteString(", ")
		}
		b.WriteString(TypeName(p))
	}
	b.WriteByte(')')
	return b.String()
}

// ReturnsValue reports whether a call leaves a result on the stack.
func (m *MethodRef) ReturnsValue() bool {
	return m.ReturnType != nil && m.ReturnType.Name != Void
}

// String renders the reference in assembler syntax: "int32 Demo.Res::count".
func (f *FieldRef) String() string {
	return TypeName(f.FieldType) + " " + TypeName(f.DeclaringType) + "::" + f.Name
}

// StackEffect returns how many values i pops and pushes. returnsValue tells
// whether ret consumes a value in the enclosing method.
func (i *Instruction) StackEffect(returnsValue bool) (pops, pushes int) {
	info, ok := i.Code.Info()
	if !ok {
		return 0, 0
	}
	pops, pushes = info.Pops, info.Pushes
	switch i.Code {
	case Call, Callvirt:
		m := i.Method()
		if m == nil {
			return 0, 0
		}
		pops = len(m.Params)
		if m.HasThis {
			pops++
		}
		pushes = 0
		if m.ReturnsValue() {
			pushes = 1
		}
	case Newobj:
		pops = 0
		if m := i.Method(); m != nil {
			pops = len(m.Params)
		}
	case Ret:
		pops = 0
		if returnsValue {
			pops = 1
		}
	}
	return pops, pushes
}
