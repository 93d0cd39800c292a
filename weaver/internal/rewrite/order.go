package rewrite

import (
	"github.com/wippyai/autodispose/errors"
	"github.com/wippyai/autodispose/il"
)

// SortHandlers orders body.Handlers so that every handler comes before the
// handlers whose try or handler block encloses its try. Among handlers with
// no ordering constraint between them the original order is kept, so
// handlers of one try stay in declaration order.
func SortHandlers(body *il.MethodBody) error {
	hs := body.Handlers
	n := len(hs)
	if n < 2 {
		return nil
	}

	type span struct{ ts, te, hs, he int }
	spans := make([]span, n)
	for i, h := range hs {
		spans[i] = span{
			ts: body.Position(h.TryStart),
			te: body.Position(h.TryEnd),
			hs: body.Position(h.HandlerStart),
			he: body.Position(h.HandlerEnd),
		}
	}
	inside := func(i, j int) bool {
		a, b := spans[i], spans[j]
		if a.ts == b.ts && a.te == b.te {
			return false
		}
		return (b.ts <= a.ts && a.te <= b.te) || (b.hs <= a.ts && a.te <= b.he)
	}

	succ := make([][]int, n)
	indeg := make([]int, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j && inside(i, j) {
				succ[i] = append(succ[i], j)
				indeg[j]++
			}
		}
	}

	sorted := make([]*il.ExceptionHandler, 0, n)
	done := make([]bool, n)
	for len(sorted) < n {
		next := -1
		for i := 0; i < n; i++ {
			if !done[i] && indeg[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			return errors.CyclicNesting(body.Name, n-len(sorted))
		}
		done[next] = true
		sorted = append(sorted, hs[next])
		for _, j := range succ[next] {
			indeg[j]--
		}
	}
	body.Handlers = sorted
	return nil
}

// FixLeaves replaces control transfers out of protected ranges with leave.
// An unconditional br that exits a try becomes leave in place. A
// conditional branch or switch case that exits is redirected to a leave
// placed at the end of the try, one per target. Handlers are processed in
// table order, which SortHandlers makes inner first, so a leave added for an
// inner try is seen by the tries around it. The body must be in long form.
func FixLeaves(body *il.MethodBody) error {
	for _, h := range body.Handlers {
		if err := fixLeaves(body, h); err != nil {
			return err
		}
	}
	return nil
}

func fixLeaves(body *il.MethodBody, h *il.ExceptionHandler) error {
	ts, te := body.Position(h.TryStart), body.Position(h.TryEnd)
	if ts < 0 || te < ts {
		return errors.Structural(errors.PhaseRewrite, body.Name, "exception region bounds are not part of the body")
	}
	exits := func(t *il.Instruction) bool {
		if t == nil {
			return false
		}
		p := body.Position(t)
		return p < ts || p >= te
	}

	block := append([]*il.Instruction(nil), body.Instructions[ts:te]...)
	trampolines := make(map[*il.Instruction]*il.Instruction)
	trampoline := func(target *il.Instruction) (*il.Instruction, error) {
		if l, ok := trampolines[target]; ok {
			return l, nil
		}
		l := il.NewInstruction(il.Leave, target)
		if err := body.InsertBefore(h.TryEnd, l); err != nil {
			return nil, err
		}
		adoptEnds(body, ts, h.TryEnd, l, h)
		trampolines[target] = l
		return l, nil
	}

	for _, ins := range block {
		switch {
		case ins.Code == il.Br:
			if exits(ins.Target()) {
				body.Rewrite(ins, il.Leave, ins.Target())
			}
		case ins.Code == il.Switch:
			targets := ins.Targets()
			for i, t := range targets {
				if !exits(t) {
					continue
				}
				l, err := trampoline(t)
				if err != nil {
					return err
				}
				targets[i] = l
			}
		case ins.Code.Flow() == il.FlowCondBranch:
			if !exits(ins.Target()) {
				continue
			}
			l, err := trampoline(ins.Target())
			if err != nil {
				return err
			}
			ins.Operand = l
		}
	}
	return nil
}
