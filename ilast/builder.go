package ilast

import (
	"fmt"
	"sort"

	"github.com/wippyai/autodispose/errors"
	"github.com/wippyai/autodispose/il"
)

// TreeBuilder produces the tree of a method body.
type TreeBuilder interface {
	Build(body *il.MethodBody) (*Block, error)
}

// Builder builds the tree of a method body by simulating the evaluation
// stack. It is the default tree builder of the weaver.
type Builder struct{}

var _ TreeBuilder = Builder{}

// Build converts body into a tree. Offsets must be current.
//
// Each instruction pops its operands from a simulated stack and either
// pushes an expression or becomes a statement of the enclosing block.
// Values still on the stack at a branch target, at a region boundary or
// before a control transfer are flushed as statements. nop produces no node.
// Protected regions become TryBlocks whose try and handler blocks omit the
// trailing leave or endfinally. The method's final ret and the value it
// returns are the implicit exit of the method block and are not part of the
// tree.
func (Builder) Build(body *il.MethodBody) (*Block, error) {
	b := newBuilder(body)
	root, err := b.block(BlockMethod, 0, len(body.Instructions), 0)
	if err != nil {
		return nil, errors.TreeBuild(body.Name, err)
	}
	return root, nil
}

// region is a group of handlers sharing one try range. Positions are
// instruction indices; end is the exclusive end of the last handler.
type region struct {
	handlers []*il.ExceptionHandler
	tryStart int
	tryEnd   int
	end      int
}

type builder struct {
	body     *il.MethodBody
	regions  []*region
	used     map[*region]bool
	labels   map[*il.Instruction]bool
	heights  map[*il.Instruction]int
	terminal *il.Instruction
}

func newBuilder(body *il.MethodBody) *builder {
	b := &builder{
		body:    body,
		used:    make(map[*region]bool),
		labels:  make(map[*il.Instruction]bool),
		heights: make(map[*il.Instruction]int),
	}
	if last := body.Last(); last != nil && last.Code == il.Ret {
		b.terminal = last
	}

	for _, ins := range body.Instructions {
		if t := ins.Target(); t != nil {
			b.labels[t] = true
		}
		for _, t := range ins.Targets() {
			if t != nil {
				b.labels[t] = true
			}
		}
	}

	byRange := make(map[[2]int]*region)
	for _, h := range body.Handlers {
		for _, ins := range []*il.Instruction{h.TryStart, h.TryEnd, h.HandlerStart, h.HandlerEnd} {
			if ins != nil {
				b.labels[ins] = true
			}
		}
		key := [2]int{body.Position(h.TryStart), body.Position(h.TryEnd)}
		r, ok := byRange[key]
		if !ok {
			r = &region{tryStart: key[0], tryEnd: key[1]}
			byRange[key] = r
			b.regions = append(b.regions, r)
		}
		r.handlers = append(r.handlers, h)
		if he := body.Position(h.HandlerEnd); he > r.end {
			r.end = he
		}
	}
	for _, r := range b.regions {
		if r.tryEnd > r.end {
			r.end = r.tryEnd
		}
		sort.SliceStable(r.handlers, func(i, j int) bool {
			return body.Position(r.handlers[i].HandlerStart) < body.Position(r.handlers[j].HandlerStart)
		})
	}
	// Outermost first among regions starting at the same instruction.
	sort.SliceStable(b.regions, func(i, j int) bool {
		ri, rj := b.regions[i], b.regions[j]
		if ri.tryStart != rj.tryStart {
			return ri.tryStart < rj.tryStart
		}
		return ri.end > rj.end
	})
	return b
}

// regionAt returns the outermost unbuilt region starting at position i.
func (b *builder) regionAt(i, to int) (*region, error) {
	for _, r := range b.regions {
		if r.tryStart != i || b.used[r] {
			continue
		}
		if r.tryStart < 0 || r.tryEnd <= r.tryStart || r.end > to {
			return nil, fmt.Errorf("protected region at %s is not nested in its enclosing block",
				il.Label(b.body.Instructions[i]))
		}
		return r, nil
	}
	return nil, nil
}

// state is the simulated evaluation stack of one block. spilled counts
// values that are on the real stack but were already flushed as statements.
type state struct {
	blk     *Block
	stack   []*Expr
	spilled int
}

func (s *state) height() int {
	return s.spilled + len(s.stack)
}

func (s *state) push(e *Expr) {
	s.stack = append(s.stack, e)
}

func (s *state) pop(n int) ([]*Expr, error) {
	if n > s.height() {
		return nil, fmt.Errorf("stack underflow: need %d values, have %d", n, s.height())
	}
	take := n
	if take > len(s.stack) {
		s.spilled -= take - len(s.stack)
		take = len(s.stack)
	}
	args := s.stack[len(s.stack)-take:]
	s.stack = s.stack[:len(s.stack)-take]
	return append([]*Expr(nil), args...), nil
}

func (s *state) flush() {
	for _, e := range s.stack {
		s.blk.Body = append(s.blk.Body, e)
	}
	s.spilled += len(s.stack)
	s.stack = nil
}

func (s *state) reset(height int) {
	s.flush()
	s.spilled = height
}

func (b *builder) block(kind BlockKind, from, to, height int) (*Block, error) {
	if kind != BlockMethod && to > from {
		last := b.body.Instructions[to-1]
		switch {
		case (kind == BlockTry || kind == BlockCatch) && last.Code.IsLeave():
			to--
		case (kind == BlockFinally || kind == BlockFault) && last.Code == il.Endfinally:
			to--
		}
	}

	s := &state{blk: &Block{Kind: kind}, spilled: height}
	fallsThrough := true
	for i := from; i < to; {
		r, err := b.regionAt(i, to)
		if err != nil {
			return nil, err
		}
		if r != nil {
			s.flush()
			if fallsThrough && s.height() != 0 {
				return nil, fmt.Errorf("stack not empty on entry to protected region at %s",
					il.Label(b.body.Instructions[i]))
			}
			tb, err := b.tryBlock(r)
			if err != nil {
				return nil, err
			}
			s.blk.Body = append(s.blk.Body, tb)
			s.reset(0)
			i = r.end
			fallsThrough = false
			continue
		}

		ins := b.body.Instructions[i]
		if !fallsThrough {
			s.reset(b.heights[ins])
		} else if i > from && b.labels[ins] {
			s.flush()
		}
		if kind == BlockMethod && ins == b.terminal {
			pops, _ := ins.StackEffect(b.body.ReturnsValue())
			if _, err := s.pop(pops); err != nil {
				return nil, fmt.Errorf("%s: %w", ins, err)
			}
			break
		}
		if err := b.instruction(s, ins); err != nil {
			return nil, fmt.Errorf("%s: %w", ins, err)
		}
		fallsThrough = !ins.Code.EndsBlock()
		i++
	}
	s.flush()
	return s.blk, nil
}

func (b *builder) instruction(s *state, ins *il.Instruction) error {
	if ins.Code == il.Nop {
		return nil
	}
	if !ins.Code.Known() {
		return errors.Unsupported(errors.PhaseBuild, fmt.Sprintf("operation code %s", ins.Code))
	}
	span := []Span{{From: ins.Offset, To: ins.Offset + ins.Size()}}

	if ins.Code == il.Dup {
		args, err := s.pop(1)
		if err != nil {
			return err
		}
		if len(args) == 1 {
			s.push(args[0])
		}
		s.push(&Expr{Code: il.Dup, Ranges: span})
		return nil
	}

	pops, pushes := ins.StackEffect(b.body.ReturnsValue())
	args, err := s.pop(pops)
	if err != nil {
		return err
	}
	e := &Expr{Code: ins.Code.Expand(), Operand: ins.Operand, Args: args, Ranges: span}
	if pushes > 0 {
		s.push(e)
		return nil
	}

	if ins.Code.IsBranch() || ins.Code.EndsBlock() {
		s.flush()
		h := s.height()
		if ins.Code.IsLeave() {
			h = 0
		}
		b.record(ins.Target(), h)
		for _, t := range ins.Targets() {
			b.record(t, h)
		}
	}
	s.blk.Body = append(s.blk.Body, e)
	return nil
}

func (b *builder) record(target *il.Instruction, height int) {
	if target == nil {
		return
	}
	if _, ok := b.heights[target]; !ok {
		b.heights[target] = height
	}
}

func (b *builder) tryBlock(r *region) (*TryBlock, error) {
	b.used[r] = true
	try, err := b.block(BlockTry, r.tryStart, r.tryEnd, 0)
	if err != nil {
		return nil, err
	}
	tb := &TryBlock{Try: try}
	for _, h := range r.handlers {
		hs, he := b.body.Position(h.HandlerStart), b.body.Position(h.HandlerEnd)
		if hs < r.tryEnd || he < hs {
			return nil, fmt.Errorf("%s handler of region at %s is out of order",
				h.Kind, il.Label(b.body.Instructions[r.tryStart]))
		}
		kind, height := BlockFinally, 0
		switch h.Kind {
		case il.HandlerCatch:
			kind, height = BlockCatch, 1
		case il.HandlerFault:
			kind = BlockFault
		}
		body, err := b.block(kind, hs, he, height)
		if err != nil {
			return nil, err
		}
		tb.Handlers = append(tb.Handlers, &HandlerBlock{Kind: h.Kind, CatchType: h.CatchType, Body: body})
	}
	return tb, nil
}
