package il

// HandlerKind is the kind of an exception handler.
type HandlerKind uint8

const (
	HandlerCatch HandlerKind = iota
	HandlerFinally
	HandlerFault
)

func (k HandlerKind) String() string {
	switch k {
	case HandlerCatch:
		return "catch"
	case HandlerFinally:
		return "finally"
	case HandlerFault:
		return "fault"
	}
	return "unknown"
}

// ExceptionHandler is one protected region. End references are exclusive;
// a nil end means the end of the body.
type ExceptionHandler struct {
	TryStart     *Instruction
	TryEnd       *Instruction
	HandlerStart *Instruction
	HandlerEnd   *Instruction
	CatchType    *TypeRef
	Kind         HandlerKind
}

// MethodBody is the mutable instruction stream of one method.
type MethodBody struct {
	ReturnType   *TypeRef
	Name         string
	Instructions []*Instruction
	Handlers     []*ExceptionHandler
	Locals       []*Local
	MaxStack     int
	InitLocals   bool
}

// ReturnsValue reports whether the method's ret consumes a value.
func (b *MethodBody) ReturnsValue() bool {
	return b.ReturnType != nil && b.ReturnType.Name != Void
}

// UpdateOffsets recomputes every instruction's offset from its encoded size.
func (b *MethodBody) UpdateOffsets() {
	off := 0
	for _, ins := range b.Instructions {
		ins.Offset = off
		off += ins.Size()
	}
}

// CodeSize returns the encoded size of the body in bytes.
func (b *MethodBody) CodeSize() int {
	size := 0
	for _, ins := range b.Instructions {
		size += ins.Size()
	}
	return size
}

// IndexOf returns the position of ins in the stream, or -1.
func (b *MethodBody) IndexOf(ins *Instruction) int {
	for n, cur := range b.Instructions {
		if cur == ins {
			return n
		}
	}
	return -1
}

// Position is IndexOf with nil mapped to len(Instructions), the exclusive
// end of the body.
func (b *MethodBody) Position(ins *Instruction) int {
	if ins == nil {
		return len(b.Instructions)
	}
	return b.IndexOf(ins)
}

// Next returns the instruction following ins, or nil.
func (b *MethodBody) Next(ins *Instruction) *Instruction {
	n := b.IndexOf(ins)
	if n < 0 || n+1 >= len(b.Instructions) {
		return nil
	}
	return b.Instructions[n+1]
}

// Previous returns the instruction preceding ins, or nil.
func (b *MethodBody) Previous(ins *Instruction) *Instruction {
	n := b.IndexOf(ins)
	if n <= 0 {
		return nil
	}
	return b.Instructions[n-1]
}

// Last returns the final instruction, or nil for an empty body.
func (b *MethodBody) Last() *Instruction {
	if len(b.Instructions) == 0 {
		return nil
	}
	return b.Instructions[len(b.Instructions)-1]
}

// AtOffset finds the instruction starting at off. Offsets must be current.
func (b *MethodBody) AtOffset(off int) (*Instruction, bool) {
	for _, ins := range b.Instructions {
		if ins.Offset == off {
			return ins, true
		}
		if ins.Offset > off {
			break
		}
	}
	return nil, false
}

// AddLocal appends a new local variable slot.
func (b *MethodBody) AddLocal(typ *TypeRef, name string, synthetic bool) *Local {
	l := &Local{Index: len(b.Locals), Type: typ, Name: name, Synthetic: synthetic}
	b.Locals = append(b.Locals, l)
	return l
}

// TryStarts returns the offsets at which pre-existing protected regions begin.
func (b *MethodBody) TryStarts() map[int]bool {
	starts := make(map[int]bool, len(b.Handlers))
	for _, h := range b.Handlers {
		if h.TryStart != nil {
			starts[h.TryStart.Offset] = true
		}
	}
	return starts
}

// Clone deep-copies the body. Instructions, locals and handlers are new
// objects with every internal reference remapped; type and member
// references are shared.
func (b *MethodBody) Clone() *MethodBody {
	out := &MethodBody{
		Name:       b.Name,
		ReturnType: b.ReturnType,
		MaxStack:   b.MaxStack,
		InitLocals: b.InitLocals,
	}

	locals := make(map[*Local]*Local, len(b.Locals))
	out.Locals = make([]*Local, len(b.Locals))
	for n, l := range b.Locals {
		c := *l
		out.Locals[n] = &c
		locals[l] = &c
	}

	instrs := make(map[*Instruction]*Instruction, len(b.Instructions))
	out.Instructions = make([]*Instruction, len(b.Instructions))
	for n, ins := range b.Instructions {
		c := *ins
		out.Instructions[n] = &c
		instrs[ins] = &c
	}
	remap := func(ins *Instruction) *Instruction {
		if ins == nil {
			return nil
		}
		return instrs[ins]
	}

	for _, ins := range out.Instructions {
		switch op := ins.Operand.(type) {
		case *Instruction:
			ins.Operand = remap(op)
		case []*Instruction:
			targets := make([]*Instruction, len(op))
			for n, t := range op {
				targets[n] = remap(t)
			}
			ins.Operand = targets
		case *Local:
			if l, ok := locals[op]; ok {
				ins.Operand = l
			}
		}
	}

	out.Handlers = make([]*ExceptionHandler, len(b.Handlers))
	for n, h := range b.Handlers {
		out.Handlers[n] = &ExceptionHandler{
			Kind:         h.Kind,
			CatchType:    h.CatchType,
			TryStart:     remap(h.TryStart),
			TryEnd:       remap(h.TryEnd),
			HandlerStart: remap(h.HandlerStart),
			HandlerEnd:   remap(h.HandlerEnd),
		}
	}
	return out
}
