package il

import "github.com/wippyai/autodispose/errors"

// Unreachable is the height StackHeights reports for instructions control
// never reaches.
const Unreachable = -1

// BranchTargets returns every instruction ins can transfer control to other
// than the next one.
func BranchTargets(ins *Instruction) []*Instruction {
	if t := ins.Target(); t != nil {
		return []*Instruction{t}
	}
	return ins.Targets()
}

// StackHeights returns the evaluation stack depth in front of every
// instruction. The body entry starts empty, a catch handler starts with the
// exception on the stack and finally and fault handlers start empty; leave
// empties the stack. Heights that disagree at a join or pops below zero are
// reported as errors together with the heights computed so far.
func StackHeights(b *MethodBody) ([]int, error) {
	heights := make([]int, len(b.Instructions))
	for n := range heights {
		heights[n] = Unreachable
	}
	if len(heights) == 0 {
		return heights, nil
	}

	var (
		work  []int
		first error
	)
	fail := func(n int, format string, args ...any) {
		if first == nil {
			first = errors.New(errors.PhaseVerify, errors.KindStructural).
				Method(b.Name).
				Offset(b.Instructions[n].Offset).
				Detail(format, args...).
				Build()
		}
	}
	reach := func(n, h int) {
		if n < 0 || n >= len(heights) {
			return
		}
		switch heights[n] {
		case Unreachable:
			heights[n] = h
			work = append(work, n)
		case h:
		default:
			fail(n, "stack height %d meets %d at %s", heights[n], h, Label(b.Instructions[n]))
		}
	}

	reach(0, 0)
	for _, h := range b.Handlers {
		if h.HandlerStart == nil {
			continue
		}
		entry := 0
		if h.Kind == HandlerCatch {
			entry = 1
		}
		reach(b.IndexOf(h.HandlerStart), entry)
	}

	returnsValue := b.ReturnsValue()
	for len(work) > 0 {
		n := work[len(work)-1]
		work = work[:len(work)-1]
		ins := b.Instructions[n]

		pops, pushes := ins.StackEffect(returnsValue)
		h := heights[n]
		if h < pops {
			fail(n, "%s pops %d values from a stack of %d", ins, pops, h)
			continue
		}
		h += pushes - pops

		switch ins.Code.Flow() {
		case FlowBranch:
			if ins.Code.IsLeave() {
				h = 0
			}
			reach(b.IndexOf(ins.Target()), h)
		case FlowCondBranch:
			for _, t := range BranchTargets(ins) {
				reach(b.IndexOf(t), h)
			}
			reach(n+1, h)
		case FlowReturn, FlowThrow, FlowEndFinally:
		default:
			reach(n+1, h)
		}
	}
	return heights, first
}
