package rewrite

import (
	"fmt"

	"github.com/wippyai/autodispose/errors"
	"github.com/wippyai/autodispose/il"
	"github.com/wippyai/autodispose/weaver/internal/scope"
)

// Range is a live range bound to instructions. The protected region built
// for it covers [Start, End); End is the boundary the finally code is
// inserted in front of. Store is the instruction that assigned Local.
type Range struct {
	Local *il.Local
	Store *il.Instruction
	Start *il.Instruction
	End   *il.Instruction
}

func (r Range) String() string {
	return fmt.Sprintf("%s [%s, %s)", il.LocalName(r.Local), il.Label(r.Start), il.Label(r.End))
}

// Resolve binds candidates to the instructions of body, whose offsets must
// be the ones the candidates were computed from. The local of each range is
// the one stored by the instruction right before its start, skipping nops.
// Ranges of synthetic locals and of locals eligible rejects are dropped. An
// end at the end of the body resolves to a nil End.
func Resolve(body *il.MethodBody, candidates []scope.Candidate, eligible func(*il.Local) bool) ([]Range, error) {
	var out []Range
	size := body.CodeSize()
	for _, c := range candidates {
		start, ok := body.AtOffset(c.Start)
		if !ok {
			return nil, errors.MissingStore(body.Name, c.Start)
		}
		store := body.Previous(start)
		for store != nil && store.Code == il.Nop {
			store = body.Previous(store)
		}
		if store == nil || !store.Code.IsStoreLocal() || store.Local() == nil {
			return nil, errors.MissingStore(body.Name, c.Start)
		}
		v := store.Local()
		if v.Synthetic || (eligible != nil && !eligible(v)) {
			continue
		}

		var end *il.Instruction
		if c.End != size {
			if end, ok = body.AtOffset(c.End); !ok {
				return nil, errors.Structural(errors.PhaseRewrite, body.Name,
					fmt.Sprintf("live range of %s ends inside an instruction at IL_%04x", il.LocalName(v), c.End))
			}
		}
		out = append(out, Range{Local: v, Store: store, Start: start, End: end})
	}
	return out, nil
}
