// Package verify checks the structural rules a method body must satisfy to
// be loadable: well-formed and properly nested exception regions listed
// inner first, control entering and leaving protected blocks only the way
// the runtime allows, and a consistent evaluation stack.
//
// Body reports every violation it finds, not just the first.
package verify

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/wippyai/autodispose/errors"
	"github.com/wippyai/autodispose/il"
)

// Options selects optional rules.
type Options struct {
	// SingleExit requires exactly one ret, as the last instruction.
	SingleExit bool
}

// Body validates body and returns a *multierror.Error listing every
// violation, or nil.
func Body(body *il.MethodBody, opts Options) error {
	v := &verifier{body: body}
	if v.bounds() {
		v.nesting()
		v.order()
		v.endings()
		v.branches()
	}
	v.stack()
	v.exit(opts.SingleExit)
	return v.result.ErrorOrNil()
}

type block struct {
	start, end int
	kind       il.HandlerKind
	try        bool
}

func (b block) contains(p int) bool { return b.start <= p && p < b.end }

type verifier struct {
	body   *il.MethodBody
	result *multierror.Error
	blocks []block
	spans  [][4]int
}

func (v *verifier) fail(format string, args ...any) {
	v.result = multierror.Append(v.result,
		errors.Structural(errors.PhaseVerify, v.body.Name, fmt.Sprintf(format, args...)))
}

// bounds checks every handler boundary and records block positions. It
// reports whether the remaining region checks can run.
func (v *verifier) bounds() bool {
	ok := true
	for i, h := range v.body.Handlers {
		ts, te := v.pos(h.TryStart, false), v.pos(h.TryEnd, true)
		hs, he := v.pos(h.HandlerStart, false), v.pos(h.HandlerEnd, true)
		switch {
		case ts < 0 || te < 0 || hs < 0 || he < 0:
			v.fail("handler %d references an instruction outside the body", i)
		case ts >= te || hs >= he:
			v.fail("handler %d has an empty or inverted block: %s", i, il.FormatHandler(h))
		case ts < he && hs < te:
			v.fail("handler %d overlaps its own try: %s", i, il.FormatHandler(h))
		default:
			v.spans = append(v.spans, [4]int{ts, te, hs, he})
			v.blocks = append(v.blocks,
				block{start: ts, end: te, kind: h.Kind, try: true},
				block{start: hs, end: he, kind: h.Kind})
			continue
		}
		ok = false
	}
	for _, ins := range v.body.Instructions {
		for _, t := range il.BranchTargets(ins) {
			if t == nil || v.body.IndexOf(t) < 0 {
				v.fail("%s branches outside the body", ins)
				ok = false
			}
		}
	}
	return ok
}

func (v *verifier) pos(ins *il.Instruction, end bool) int {
	if ins == nil && !end {
		return -1
	}
	return v.body.Position(ins)
}

// nesting checks that any two constructs are disjoint or that one lies
// entirely inside a single block of the other.
func (v *verifier) nesting() {
	type construct struct {
		blocks     [][2]int
		start, end int
	}
	var cs []construct
	index := make(map[[2]int]int)
	for _, s := range v.spans {
		key := [2]int{s[0], s[1]}
		i, ok := index[key]
		if !ok {
			i = len(cs)
			index[key] = i
			cs = append(cs, construct{start: s[0], end: s[1], blocks: [][2]int{{s[0], s[1]}}})
		}
		c := &cs[i]
		c.blocks = append(c.blocks, [2]int{s[2], s[3]})
		c.start, c.end = min(c.start, s[2]), max(c.end, s[3])
	}
	inside := func(a, b construct) bool {
		for _, blk := range b.blocks {
			if blk[0] <= a.start && a.end <= blk[1] {
				return true
			}
		}
		return false
	}
	for i := range cs {
		for j := i + 1; j < len(cs); j++ {
			a, b := cs[i], cs[j]
			if a.end <= b.start || b.end <= a.start || inside(a, b) || inside(b, a) {
				continue
			}
			v.fail("protected regions at %s and %s partially overlap",
				il.Label(v.body.Instructions[a.start]), il.Label(v.body.Instructions[b.start]))
		}
	}
}

// order checks that no handler precedes a handler whose try it encloses.
func (v *verifier) order() {
	for i, outer := range v.spans {
		for j := i + 1; j < len(v.spans); j++ {
			inner := v.spans[j]
			if inner[0] == outer[0] && inner[1] == outer[1] {
				continue
			}
			if (outer[0] <= inner[0] && inner[1] <= outer[1]) || (outer[2] <= inner[0] && inner[1] <= outer[3]) {
				v.fail("handler %d encloses handler %d but is listed first", i, j)
			}
		}
	}
}

// endings checks that no block falls through its end.
func (v *verifier) endings() {
	for _, b := range v.blocks {
		last := v.body.Instructions[b.end-1]
		switch {
		case b.try || b.kind == il.HandlerCatch:
			if !last.Code.IsLeave() && last.Code != il.Throw && last.Code != il.Rethrow {
				v.fail("%s block ending at %s does not end in leave or throw", v.blockName(b), last)
			}
		default:
			if last.Code != il.Endfinally && last.Code != il.Throw {
				v.fail("%s block ending at %s does not end in endfinally", v.blockName(b), last)
			}
		}
	}
}

func (v *verifier) blockName(b block) string {
	if b.try {
		return "try"
	}
	return b.kind.String()
}

// branches checks that control leaves protected blocks only through leave
// and enters them only at the start of a try.
func (v *verifier) branches() {
	for p, ins := range v.body.Instructions {
		for _, t := range il.BranchTargets(ins) {
			tp := v.body.IndexOf(t)
			for _, b := range v.blocks {
				from, to := b.contains(p), b.contains(tp)
				switch {
				case from && !to && !ins.Code.IsLeave():
					v.fail("%s leaves a %s block without leave", ins, v.blockName(b))
				case !from && to && (!b.try || tp != b.start):
					v.fail("%s enters a %s block at %s", ins, v.blockName(b), il.Label(t))
				}
			}
		}
	}
}

func (v *verifier) stack() {
	heights, err := il.StackHeights(v.body)
	if err != nil {
		v.result = multierror.Append(v.result, err)
	}
	for _, b := range v.blocks {
		if b.try && b.start < len(heights) && heights[b.start] > 0 {
			v.fail("try block at %s is entered with %d values on the stack",
				il.Label(v.body.Instructions[b.start]), heights[b.start])
		}
	}
}

func (v *verifier) exit(single bool) {
	last := v.body.Last()
	if last == nil {
		v.fail("body is empty")
		return
	}
	if !last.Code.EndsBlock() {
		v.fail("control falls off the end of the body after %s", last)
	}
	if !single {
		return
	}
	rets := 0
	for _, ins := range v.body.Instructions {
		if ins.Code == il.Ret {
			rets++
		}
	}
	if rets != 1 || last.Code != il.Ret {
		v.fail("body has %d ret instructions, want exactly one at the end", rets)
	}
}
