package rewrite

import (
	"fmt"
	"sort"

	"github.com/wippyai/autodispose/errors"
	"github.com/wippyai/autodispose/il"
)

// ResolveConflicts adjusts ranges so that every protected region built from
// them is well nested. It runs three passes:
//
//   - clamp: a range that would cut into an existing protected construct
//     ends at the construct's try start, and a range whose interior is the
//     target of a branch from outside ends at that target. A range that
//     starts inside a construct and ends outside it, or whose start or end
//     has values on the evaluation stack, is dropped.
//   - hoist: when two ranges partially overlap, the later one starts where
//     the earlier one does, provided its local carries no other range there
//     and the widened range still passes the clamp unchanged. Otherwise the
//     later range is dropped.
//   - anchor: ranges sharing an end are taken in ascending start order; the
//     first keeps the end and every later one gets a nop inserted right
//     before the current boundary, which becomes its end and the boundary for
//     the ones after it. An empty range first gets a nop of its own to start
//     at.
//
// warn receives one message per dropped range. The body must be in long
// form; anchors are the only instructions inserted.
func ResolveConflicts(body *il.MethodBody, ranges []Range, warn func(string)) ([]Range, error) {
	if warn == nil {
		warn = func(string) {}
	}
	c, err := newChecker(body)
	if err != nil {
		return nil, err
	}

	var kept []Range
	for _, r := range ranges {
		if r.End == nil {
			return nil, errors.Structural(errors.PhaseRewrite, body.Name,
				fmt.Sprintf("live range of %s runs past the final return", il.LocalName(r.Local)))
		}
		clamped, reason := c.clamp(r)
		if reason != "" {
			warn(fmt.Sprintf("%s: not disposing %s: %s", body.Name, r, reason))
			continue
		}
		kept = append(kept, clamped)
	}

	kept = c.hoist(kept, warn)

	if err := anchor(body, kept); err != nil {
		return nil, err
	}
	return kept, nil
}

// construct is an existing try with all of its handlers, in positions.
type construct struct {
	blocks [][2]int
	start  int
	end    int
}

func (k construct) within(s, e int) bool {
	for _, b := range k.blocks {
		if b[0] <= s && e <= b[1] {
			return true
		}
	}
	return false
}

type checker struct {
	body       *il.MethodBody
	constructs []construct
	heights    []int
}

func newChecker(body *il.MethodBody) (*checker, error) {
	heights, err := il.StackHeights(body)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseRewrite, errors.KindStructural, err, "stack heights of "+body.Name)
	}
	c := &checker{body: body, heights: heights}
	byTry := make(map[[2]int]int)
	for _, h := range body.Handlers {
		ts, te := body.Position(h.TryStart), body.Position(h.TryEnd)
		hs, he := body.Position(h.HandlerStart), body.Position(h.HandlerEnd)
		key := [2]int{ts, te}
		i, ok := byTry[key]
		if !ok {
			i = len(c.constructs)
			byTry[key] = i
			c.constructs = append(c.constructs, construct{start: ts, end: te, blocks: [][2]int{{ts, te}}})
		}
		k := &c.constructs[i]
		k.blocks = append(k.blocks, [2]int{hs, he})
		if hs < k.start {
			k.start = hs
		}
		if he > k.end {
			k.end = he
		}
	}
	return c, nil
}

func (c *checker) pos(ins *il.Instruction) int {
	return c.body.Position(ins)
}

// clamp shortens r until it nests with every existing construct and is only
// entered at its start. It returns a reason when r has to be dropped.
func (c *checker) clamp(r Range) (Range, string) {
	for {
		s, e := c.pos(r.Start), c.pos(r.End)
		if s < 0 || e < s {
			return r, "range does not map onto the body"
		}
		end := e
		for _, k := range c.constructs {
			if e <= k.start || s >= k.end || (s <= k.start && e >= k.end) || k.within(s, e) {
				continue
			}
			if s < k.start {
				end = min(end, k.start)
				continue
			}
			return r, fmt.Sprintf("range leaves the protected block at %s", il.Label(c.body.Instructions[k.start]))
		}
		if t := c.firstEntry(s, end); t >= 0 {
			end = t
		}
		if end == e {
			break
		}
		r.End = c.body.Instructions[end]
	}

	s, e := c.pos(r.Start), c.pos(r.End)
	if c.heights[s] > 0 {
		return r, "evaluation stack is not empty where the range starts"
	}
	if c.heights[e] > 0 {
		return r, fmt.Sprintf("evaluation stack is not empty at %s", il.Label(r.End))
	}
	return r, ""
}

// firstEntry returns the first position in (s, e) that a branch from outside
// [s, e) targets, or -1.
func (c *checker) firstEntry(s, e int) int {
	first := -1
	check := func(t *il.Instruction) {
		if t == nil {
			return
		}
		if p := c.pos(t); p > s && p < e && (first < 0 || p < first) {
			first = p
		}
	}
	for p, ins := range c.body.Instructions {
		if p >= s && p < e {
			continue
		}
		check(ins.Target())
		for _, t := range ins.Targets() {
			check(t)
		}
	}
	return first
}

func (c *checker) hoist(ranges []Range, warn func(string)) []Range {
	for limit := len(ranges) * len(ranges); limit >= 0; limit-- {
		sortRanges(c.body, ranges)
		i, j := c.partialOverlap(ranges)
		if i < 0 {
			return ranges
		}
		widened := ranges[j]
		widened.Start = ranges[i].Start
		if c.holdsOther(ranges, j, c.pos(widened.Start), c.pos(ranges[j].Start)) {
			warn(fmt.Sprintf("%s: not disposing %s: overlaps %s and %s is live before it",
				c.body.Name, ranges[j], ranges[i], il.LocalName(ranges[j].Local)))
			ranges = append(ranges[:j], ranges[j+1:]...)
			continue
		}
		if clamped, reason := c.clamp(widened); reason != "" || clamped.End != widened.End {
			warn(fmt.Sprintf("%s: not disposing %s: overlaps %s and cannot be widened",
				c.body.Name, ranges[j], ranges[i]))
			ranges = append(ranges[:j], ranges[j+1:]...)
			continue
		}
		ranges[j] = widened
	}
	return ranges
}

// partialOverlap finds ranges i and j with si < sj < ei < ej. ranges must
// be sorted.
func (c *checker) partialOverlap(ranges []Range) (int, int) {
	for i := range ranges {
		si, ei := c.pos(ranges[i].Start), c.pos(ranges[i].End)
		for j := i + 1; j < len(ranges); j++ {
			sj, ej := c.pos(ranges[j].Start), c.pos(ranges[j].End)
			if si < sj && sj < ei && ei < ej {
				return i, j
			}
		}
	}
	return -1, -1
}

// holdsOther reports whether another range of ranges[j]'s local intersects
// [from, to).
func (c *checker) holdsOther(ranges []Range, j, from, to int) bool {
	for k, r := range ranges {
		if k == j || r.Local != ranges[j].Local {
			continue
		}
		if c.pos(r.Start) < to && from < c.pos(r.End) {
			return true
		}
	}
	return false
}

// sortRanges orders ranges by start, outer first among equal starts.
func sortRanges(body *il.MethodBody, ranges []Range) {
	sort.SliceStable(ranges, func(a, b int) bool {
		sa, sb := body.Position(ranges[a].Start), body.Position(ranges[b].Start)
		if sa != sb {
			return sa < sb
		}
		return body.Position(ranges[a].End) > body.Position(ranges[b].End)
	})
}

func anchor(body *il.MethodBody, ranges []Range) error {
	for i := range ranges {
		r := &ranges[i]
		if r.Start != r.End {
			continue
		}
		nop := il.NewInstruction(il.Nop, nil)
		if err := body.InsertBefore(r.End, nop); err != nil {
			return err
		}
		r.Start = nop
	}

	sortRanges(body, ranges)
	groups := make(map[*il.Instruction][]int)
	var ends []*il.Instruction
	for i, r := range ranges {
		if _, ok := groups[r.End]; !ok {
			ends = append(ends, r.End)
		}
		groups[r.End] = append(groups[r.End], i)
	}
	for _, end := range ends {
		boundary := end
		for _, i := range groups[end][1:] {
			nop := il.NewInstruction(il.Nop, nil)
			if err := body.InsertBefore(boundary, nop); err != nil {
				return err
			}
			boundary = nop
			ranges[i].End = nop
		}
	}
	body.UpdateOffsets()
	return nil
}
