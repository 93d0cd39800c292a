package il

import (
	"fmt"

	"github.com/wippyai/autodispose/errors"
	"github.com/wippyai/autodispose/il/internal/binary"
)

// TokenEncoder assigns metadata tokens to member, type and string operands.
type TokenEncoder interface {
	Token(operand any) (uint32, error)
}

// TokenDecoder resolves metadata tokens back into operands.
type TokenDecoder interface {
	Resolve(token uint32) (any, error)
}

// EncodeBody serializes the instruction stream. Offsets are recomputed first.
// Branch displacements are relative to the end of the branch instruction.
func EncodeBody(body *MethodBody, tokens TokenEncoder) ([]byte, error) {
	body.UpdateOffsets()
	w := binary.NewWriter()
	for _, ins := range body.Instructions {
		if err := encodeInstruction(w, ins, tokens); err != nil {
			return nil, err
		}
	}
	return w.Bytes(), nil
}

func encodeInstruction(w *binary.Writer, ins *Instruction, tokens TokenEncoder) error {
	if !ins.Code.Known() {
		return errors.Unsupported(errors.PhaseEncode, fmt.Sprintf("opcode %s", ins.Code))
	}
	if ins.Code > 0xFF {
		w.Byte(PrefixTwoByte)
	}
	w.Byte(byte(ins.Code))

	end := ins.Offset + ins.Size()
	switch ins.Code.OperandKind() {
	case OperandNone:
	case OperandShortBranch:
		t := ins.Target()
		if t == nil {
			return invalidOperand(ins)
		}
		disp := t.Offset - end
		if disp < -128 || disp > 127 {
			return errors.New(errors.PhaseEncode, errors.KindOutOfBounds).
				Offset(ins.Offset).
				Detail("%s displacement %d does not fit in one byte", ins.Code, disp).
				Build()
		}
		w.WriteI8(int8(disp))
	case OperandBranch:
		t := ins.Target()
		if t == nil {
			return invalidOperand(ins)
		}
		w.WriteI32LE(int32(t.Offset - end))
	case OperandSwitch:
		targets := ins.Targets()
		w.WriteU32LE(uint32(len(targets)))
		for _, t := range targets {
			if t == nil {
				return invalidOperand(ins)
			}
			w.WriteI32LE(int32(t.Offset - end))
		}
	case OperandShortVar, OperandVar:
		l := ins.Local()
		if l == nil {
			return invalidOperand(ins)
		}
		if ins.Code.OperandKind() == OperandShortVar {
			w.Byte(byte(l.Index))
		} else {
			w.WriteU16LE(uint16(l.Index))
		}
	case OperandShortArg, OperandShortInt:
		v, ok := ins.Int()
		if !ok {
			return invalidOperand(ins)
		}
		w.WriteI8(int8(v))
	case OperandArg:
		v, ok := ins.Int()
		if !ok {
			return invalidOperand(ins)
		}
		w.WriteU16LE(uint16(v))
	case OperandInt:
		v, ok := ins.Int()
		if !ok {
			return invalidOperand(ins)
		}
		w.WriteI32LE(int32(v))
	case OperandInt64:
		v, ok := ins.Operand.(int64)
		if !ok {
			return invalidOperand(ins)
		}
		w.WriteI64LE(v)
	case OperandMethod, OperandField, OperandType, OperandString:
		tok, err := tokens.Token(ins.Operand)
		if err != nil {
			return errors.Wrap(errors.PhaseEncode, errors.KindInvalidData, err,
				fmt.Sprintf("token for %s", ins))
		}
		w.WriteU32LE(tok)
	}
	return nil
}

func invalidOperand(ins *Instruction) error {
	return errors.New(errors.PhaseEncode, errors.KindInvalidData).
		Offset(ins.Offset).
		Detail("%s has operand of type %T", ins.Code, ins.Operand).
		Build()
}

type pendingBranch struct {
	ins     *Instruction
	targets []int
	multi   bool
}

// DecodeBody parses code into instructions. Branch operands are resolved to
// instruction pointers; local operands bind to locals by index.
func DecodeBody(code []byte, locals []*Local, tokens TokenDecoder) ([]*Instruction, error) {
	r := binary.NewReader(code)
	var (
		out      []*Instruction
		pending  []pendingBranch
		byOffset = make(map[int]*Instruction)
	)

	local := func(idx int) (*Local, error) {
		if idx < 0 || idx >= len(locals) {
			return nil, errors.OutOfBounds(errors.PhaseDecode, []string{"locals"}, idx, len(locals))
		}
		return locals[idx], nil
	}

	for r.Len() > 0 {
		start := r.Position()
		b, err := r.ReadByte()
		if err != nil {
			return nil, r.WrapError("opcode", err)
		}
		c := Code(b)
		if b == PrefixTwoByte {
			second, err := r.ReadByte()
			if err != nil {
				return nil, r.WrapError("opcode", err)
			}
			c = 0xFE00 | Code(second)
		}
		if !c.Known() {
			return nil, r.WrapError("opcode", errors.Unsupported(errors.PhaseDecode, fmt.Sprintf("opcode %s", c)))
		}

		ins := &Instruction{Code: c, Offset: start}
		switch c.OperandKind() {
		case OperandNone:
			if err := BindImplicitOperand(ins, local); err != nil {
				return nil, err
			}
		case OperandShortBranch:
			v, err := r.ReadI8()
			if err != nil {
				return nil, r.WrapError("branch", err)
			}
			pending = append(pending, pendingBranch{ins: ins, targets: []int{r.Position() + int(v)}})
		case OperandBranch:
			v, err := r.ReadI32LE()
			if err != nil {
				return nil, r.WrapError("branch", err)
			}
			pending = append(pending, pendingBranch{ins: ins, targets: []int{r.Position() + int(v)}})
		case OperandSwitch:
			n, err := r.ReadU32LE()
			if err != nil {
				return nil, r.WrapError("switch", err)
			}
			if int(n)*4 > r.Len() {
				return nil, r.WrapError("switch", binary.ErrShortBuffer)
			}
			disps := make([]int32, n)
			for i := range disps {
				if disps[i], err = r.ReadI32LE(); err != nil {
					return nil, r.WrapError("switch", err)
				}
			}
			targets := make([]int, n)
			for i, d := range disps {
				targets[i] = r.Position() + int(d)
			}
			pending = append(pending, pendingBranch{ins: ins, targets: targets, multi: true})
		case OperandShortVar, OperandVar:
			var idx int
			if c.OperandKind() == OperandShortVar {
				v, err := r.ReadByte()
				if err != nil {
					return nil, r.WrapError("local", err)
				}
				idx = int(v)
			} else {
				v, err := r.ReadU16LE()
				if err != nil {
					return nil, r.WrapError("local", err)
				}
				idx = int(v)
			}
			l, err := local(idx)
			if err != nil {
				return nil, err
			}
			ins.Operand = l
		case OperandShortArg:
			v, err := r.ReadByte()
			if err != nil {
				return nil, r.WrapError("argument", err)
			}
			ins.Operand = int(v)
		case OperandArg:
			v, err := r.ReadU16LE()
			if err != nil {
				return nil, r.WrapError("argument", err)
			}
			ins.Operand = int(v)
		case OperandShortInt:
			v, err := r.ReadI8()
			if err != nil {
				return nil, r.WrapError("constant", err)
			}
			ins.Operand = int(v)
		case OperandInt:
			v, err := r.ReadI32LE()
			if err != nil {
				return nil, r.WrapError("constant", err)
			}
			ins.Operand = int(v)
		case OperandInt64:
			v, err := r.ReadI64LE()
			if err != nil {
				return nil, r.WrapError("constant", err)
			}
			ins.Operand = v
		case OperandMethod, OperandField, OperandType, OperandString:
			tok, err := r.ReadU32LE()
			if err != nil {
				return nil, r.WrapError("token", err)
			}
			op, err := tokens.Resolve(tok)
			if err != nil {
				return nil, r.WrapError("token", err)
			}
			ins.Operand = op
		}

		out = append(out, ins)
		byOffset[start] = ins
	}

	for _, p := range pending {
		resolved := make([]*Instruction, len(p.targets))
		for i, off := range p.targets {
			t, ok := byOffset[off]
			if !ok {
				return nil, errors.New(errors.PhaseDecode, errors.KindInvalidData).
					Offset(p.ins.Offset).
					Detail("%s targets IL_%04x which is not an instruction boundary", p.ins.Code, off).
					Build()
			}
			resolved[i] = t
		}
		if p.multi {
			p.ins.Operand = resolved
		} else {
			p.ins.Operand = resolved[0]
		}
	}
	return out, nil
}

// BindImplicitOperand sets the operand that a macro form encodes in its
// code: the argument index of ldarg.0, the local of stloc.1, the constant of
// ldc.i4.5. Other codes are left alone.
func BindImplicitOperand(ins *Instruction, local func(int) (*Local, error)) error {
	c := ins.Code
	switch {
	case c >= Ldarg0 && c <= Ldarg3:
		ins.Operand = int(c - Ldarg0)
	case c >= Ldloc0 && c <= Ldloc3:
		l, err := local(int(c - Ldloc0))
		if err != nil {
			return err
		}
		ins.Operand = l
	case c >= Stloc0 && c <= Stloc3:
		l, err := local(int(c - Stloc0))
		if err != nil {
			return err
		}
		ins.Operand = l
	case c == LdcI4M1:
		ins.Operand = -1
	case c >= LdcI40 && c <= LdcI48:
		ins.Operand = int(c - LdcI40)
	}
	return nil
}

// HandlerRecord is an exception handler expressed in byte offsets.
type HandlerRecord struct {
	CatchType    string
	Kind         HandlerKind
	TryStart     int
	TryEnd       int
	HandlerStart int
	HandlerEnd   int
}

// HandlerRecords converts the handler table to offsets. Offsets must be
// current; a nil end maps to the code size.
func HandlerRecords(body *MethodBody) []HandlerRecord {
	size := body.CodeSize()
	off := func(ins *Instruction) int {
		if ins == nil {
			return size
		}
		return ins.Offset
	}
	recs := make([]HandlerRecord, len(body.Handlers))
	for n, h := range body.Handlers {
		recs[n] = HandlerRecord{
			Kind:         h.Kind,
			TryStart:     off(h.TryStart),
			TryEnd:       off(h.TryEnd),
			HandlerStart: off(h.HandlerStart),
			HandlerEnd:   off(h.HandlerEnd),
		}
		if h.CatchType != nil {
			recs[n].CatchType = h.CatchType.Name
		}
	}
	return recs
}

// BindHandlers resolves handler records against decoded instructions.
// An offset equal to codeSize binds to nil (end of body).
func BindHandlers(instrs []*Instruction, recs []HandlerRecord, codeSize int) ([]*ExceptionHandler, error) {
	byOffset := make(map[int]*Instruction, len(instrs))
	for _, ins := range instrs {
		byOffset[ins.Offset] = ins
	}
	at := func(off int) (*Instruction, error) {
		if off == codeSize {
			return nil, nil
		}
		ins, ok := byOffset[off]
		if !ok {
			return nil, errors.New(errors.PhaseDecode, errors.KindInvalidData).
				Offset(off).
				Detail("handler boundary IL_%04x is not an instruction boundary", off).
				Build()
		}
		return ins, nil
	}

	out := make([]*ExceptionHandler, len(recs))
	for n, rec := range recs {
		h := &ExceptionHandler{Kind: rec.Kind}
		var err error
		if h.TryStart, err = at(rec.TryStart); err != nil {
			return nil, err
		}
		if h.TryEnd, err = at(rec.TryEnd); err != nil {
			return nil, err
		}
		if h.HandlerStart, err = at(rec.HandlerStart); err != nil {
			return nil, err
		}
		if h.HandlerEnd, err = at(rec.HandlerEnd); err != nil {
			return nil, err
		}
		if rec.CatchType != "" {
			h.CatchType = &TypeRef{Name: rec.CatchType}
		}
		out[n] = h
	}
	return out, nil
}
