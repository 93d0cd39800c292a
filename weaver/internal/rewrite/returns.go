package rewrite

import (
	"github.com/wippyai/autodispose/errors"
	"github.com/wippyai/autodispose/il"
)

// ReturnSlot names the local that carries the return value of a method
// whose returns were unified.
const ReturnSlot = "<>ret"

// UnifyReturns gives body a single ret as its last instruction.
//
// In a void method a ret is appended when the body ends in something else,
// and every other ret is rewritten in place into br to the terminal one.
// In a method returning a value every ret becomes stloc of a synthetic
// ReturnSlot local, followed by br to a new epilogue "ldloc; ret" unless it
// already falls through into it. Return values are then computed before
// control reaches the exit, so a leave never has to carry a stack value.
//
// Rewritten instructions keep their identity, so branches and handlers that
// referenced them stay valid. The body must be in long form.
func UnifyReturns(body *il.MethodBody) error {
	if body.ReturnsValue() {
		if err := unifyValueReturns(body); err != nil {
			return err
		}
	} else {
		unifyVoidReturns(body)
	}

	rets := 0
	for _, ins := range body.Instructions {
		if ins.Code == il.Ret {
			rets++
		}
	}
	if last := body.Last(); rets != 1 || last.Code != il.Ret {
		return errors.Structural(errors.PhaseRewrite, body.Name, "method has no single terminal return after unification")
	}
	return nil
}

func unifyVoidReturns(body *il.MethodBody) {
	terminal := body.Last()
	if terminal == nil || terminal.Code != il.Ret {
		terminal = il.NewInstruction(il.Ret, nil)
		body.Append(terminal)
	}
	for _, ins := range body.Instructions {
		if ins.Code == il.Ret && ins != terminal {
			body.Rewrite(ins, il.Br, terminal)
		}
	}
}

func unifyValueReturns(body *il.MethodBody) error {
	if unifiedValueReturn(body) {
		return nil
	}
	slot := body.AddLocal(body.ReturnType, ReturnSlot, true)
	epilogue := il.NewInstruction(il.Ldloc, slot)

	var rets []*il.Instruction
	for _, ins := range body.Instructions {
		if ins.Code == il.Ret {
			rets = append(rets, ins)
		}
	}
	last := body.Last()
	for _, ret := range rets {
		body.Rewrite(ret, il.Stloc, slot)
		if ret != last {
			if err := body.InsertAfter(ret, il.NewInstruction(il.Br, epilogue)); err != nil {
				return err
			}
		}
	}
	body.Append(epilogue, il.NewInstruction(il.Ret, nil))
	if body.MaxStack < 1 {
		body.MaxStack = 1
	}
	return nil
}

// unifiedValueReturn reports whether body already ends in the epilogue
// UnifyReturns produces and has no other ret.
func unifiedValueReturn(body *il.MethodBody) bool {
	last := body.Last()
	if last == nil || last.Code != il.Ret {
		return false
	}
	prev := body.Previous(last)
	if prev == nil || !prev.Code.IsLoadLocal() || prev.Local() == nil || !prev.Local().Synthetic || prev.Local().Name != ReturnSlot {
		return false
	}
	for _, ins := range body.Instructions {
		if ins.Code == il.Ret && ins != last {
			return false
		}
	}
	return true
}
