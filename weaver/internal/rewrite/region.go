package rewrite

import (
	"github.com/wippyai/autodispose/errors"
	"github.com/wippyai/autodispose/il"
)

// BuildRegion wraps [r.Start, r.End) in a try/finally whose handler calls
// release on the local when it is not null:
//
//	leave End
//	ldloc v        <- TryEnd, HandlerStart
//	brfalse done
//	ldloc v
//	callvirt release
//	done: endfinally
//	End:           <- HandlerEnd
//
// When the range already ends in br, that br becomes the leave. Existing
// regions nested in the range that end at r.End are moved to end at the
// inserted code. The body must be in long form.
func BuildRegion(body *il.MethodBody, r Range, release *il.MethodRef) error {
	if r.End == nil {
		return errors.Structural(errors.PhaseRewrite, body.Name, "protected region "+r.String()+" has no end")
	}
	start := body.Position(r.Start)
	if start < 0 || body.IndexOf(r.End) < start {
		return errors.Structural(errors.PhaseRewrite, body.Name, "protected region "+r.String()+" is not part of the body")
	}

	done := il.NewInstruction(il.Endfinally, nil)
	handler := []*il.Instruction{
		il.NewInstruction(il.Ldloc, r.Local),
		il.NewInstruction(il.Brfalse, done),
		il.NewInstruction(il.Ldloc, r.Local),
		il.NewInstruction(il.Callvirt, release),
		done,
	}

	first := handler[0]
	insert := handler
	if prev := body.Previous(r.End); prev != nil && prev.Code == il.Br && body.Position(prev) >= start {
		body.Rewrite(prev, il.Leave, prev.Target())
	} else {
		leave := il.NewInstruction(il.Leave, r.End)
		first = leave
		insert = append([]*il.Instruction{leave}, handler...)
	}
	if err := body.InsertBefore(r.End, insert...); err != nil {
		return err
	}
	adoptEnds(body, start, r.End, first, nil)

	body.Handlers = append(body.Handlers, &il.ExceptionHandler{
		Kind:         il.HandlerFinally,
		TryStart:     r.Start,
		TryEnd:       handler[0],
		HandlerStart: handler[0],
		HandlerEnd:   r.End,
	})
	body.InitLocals = true
	if body.MaxStack < 1 {
		body.MaxStack = 1
	}
	return nil
}

// adoptEnds moves the ends of regions that start at or after position start
// and end at boundary to first, the first instruction inserted in front of
// boundary. A try end moves only when the try starts strictly after start;
// a try equal to the enclosing range keeps the inserted code. Handlers of
// the same try as skip are left alone.
func adoptEnds(body *il.MethodBody, start int, boundary, first *il.Instruction, skip *il.ExceptionHandler) {
	for _, g := range body.Handlers {
		if skip != nil && g.TryStart == skip.TryStart && g.TryEnd == skip.TryEnd {
			continue
		}
		ts := body.Position(g.TryStart)
		if g.TryEnd == boundary && ts > start {
			g.TryEnd = first
		}
		if g.HandlerEnd == boundary && ts >= start {
			g.HandlerEnd = first
		}
	}
}
