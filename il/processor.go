package il

import "github.com/wippyai/autodispose/errors"

// Editing operations. Inserting never retargets existing branch operands or
// handler boundaries: a branch to target still reaches target after code is
// inserted in front of it. Offsets are stale after any edit until
// UpdateOffsets (or a canonicalizer pass) runs.

// InsertBefore inserts instrs, in order, immediately before target.
// A nil target appends.
func (b *MethodBody) InsertBefore(target *Instruction, instrs ...*Instruction) error {
	at := len(b.Instructions)
	if target != nil {
		at = b.IndexOf(target)
		if at < 0 {
			return missing(b, target)
		}
	}
	b.insertAt(at, instrs)
	return nil
}

// InsertAfter inserts instrs, in order, immediately after target.
func (b *MethodBody) InsertAfter(target *Instruction, instrs ...*Instruction) error {
	at := b.IndexOf(target)
	if at < 0 {
		return missing(b, target)
	}
	b.insertAt(at+1, instrs)
	return nil
}

// Append adds instrs at the end of the body.
func (b *MethodBody) Append(instrs ...*Instruction) {
	b.insertAt(len(b.Instructions), instrs)
}

func (b *MethodBody) insertAt(at int, instrs []*Instruction) {
	if len(instrs) == 0 {
		return
	}
	grown := make([]*Instruction, 0, len(b.Instructions)+len(instrs))
	grown = append(grown, b.Instructions[:at]...)
	grown = append(grown, instrs...)
	grown = append(grown, b.Instructions[at:]...)
	b.Instructions = grown
}

// Replace swaps old for repl and retargets every branch operand and handler
// boundary that referenced old.
func (b *MethodBody) Replace(old, repl *Instruction) error {
	at := b.IndexOf(old)
	if at < 0 {
		return missing(b, old)
	}
	b.Instructions[at] = repl
	b.retarget(old, repl)
	return nil
}

// Rewrite changes ins in place. Every reference to ins stays valid.
func (b *MethodBody) Rewrite(ins *Instruction, code Code, operand any) {
	ins.Code = code
	ins.Operand = operand
}

// Remove deletes ins. References to it move to the following instruction.
func (b *MethodBody) Remove(ins *Instruction) error {
	at := b.IndexOf(ins)
	if at < 0 {
		return missing(b, ins)
	}
	var next *Instruction
	if at+1 < len(b.Instructions) {
		next = b.Instructions[at+1]
	}
	b.Instructions = append(b.Instructions[:at], b.Instructions[at+1:]...)
	b.retarget(ins, next)
	return nil
}

func (b *MethodBody) retarget(old, repl *Instruction) {
	for _, ins := range b.Instructions {
		switch op := ins.Operand.(type) {
		case *Instruction:
			if op == old {
				ins.Operand = repl
			}
		case []*Instruction:
			for n, t := range op {
				if t == old {
					op[n] = repl
				}
			}
		}
	}
	for _, h := range b.Handlers {
		if h.TryStart == old {
			h.TryStart = repl
		}
		if h.TryEnd == old {
			h.TryEnd = repl
		}
		if h.HandlerStart == old {
			h.HandlerStart = repl
		}
		if h.HandlerEnd == old {
			h.HandlerEnd = repl
		}
	}
}

func missing(b *MethodBody, ins *Instruction) error {
	return errors.New(errors.PhaseRewrite, errors.KindNotFound).
		Method(b.Name).
		Detail("instruction %s is not part of the body", ins).
		Build()
}
