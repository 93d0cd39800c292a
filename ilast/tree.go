package ilast

import "github.com/wippyai/autodispose/il"

// Node is a node of the method tree. The variants are *Block, *Expr and
// *TryBlock.
type Node interface {
	node()
}

// BlockKind tells what a block's instructions belong to.
type BlockKind uint8

const (
	BlockMethod BlockKind = iota
	BlockTry
	BlockCatch
	BlockFinally
	BlockFault
)

func (k BlockKind) String() string {
	switch k {
	case BlockMethod:
		return "method"
	case BlockTry:
		return "try"
	case BlockCatch:
		return "catch"
	case BlockFinally:
		return "finally"
	case BlockFault:
		return "fault"
	}
	return "unknown"
}

// Span is a half-open range of instruction offsets [From, To).
type Span struct {
	From int
	To   int
}

// Block is a sequence of statements.
type Block struct {
	Body []Node
	Kind BlockKind
}

// Expr is one instruction together with the expressions that produced its
// stack operands. Code is always the long form; Ranges covers the
// instruction itself, not its arguments.
type Expr struct {
	Operand any
	Args    []*Expr
	Ranges  []Span
	Code    il.Code
}

// TryBlock is a protected region with its handlers.
type TryBlock struct {
	Try      *Block
	Handlers []*HandlerBlock
}

// HandlerBlock is one handler of a TryBlock.
type HandlerBlock struct {
	CatchType *il.TypeRef
	Body      *Block
	Kind      il.HandlerKind
}

func (*Block) node()    {}
func (*Expr) node()     {}
func (*TryBlock) node() {}

// Local returns the variable a stloc expression stores to, or nil.
func (e *Expr) Local() *il.Local {
	if e.Code != il.Stloc {
		return nil
	}
	l, _ := e.Operand.(*il.Local)
	return l
}

// Empty reports whether the block has no statements.
func (b *Block) Empty() bool {
	return len(b.Body) == 0
}

// Children returns the direct child nodes of n in stream order.
func Children(n Node) []Node {
	switch n := n.(type) {
	case *Block:
		return n.Body
	case *Expr:
		out := make([]Node, len(n.Args))
		for i, a := range n.Args {
			out[i] = a
		}
		return out
	case *TryBlock:
		out := make([]Node, 0, 1+len(n.Handlers))
		out = append(out, n.Try)
		for _, h := range n.Handlers {
			out = append(out, h.Body)
		}
		return out
	}
	return nil
}

// FirstOffset returns the offset of the leftmost instruction under n.
// ok is false when n covers no instruction.
func FirstOffset(n Node) (off int, ok bool) {
	if e, isExpr := n.(*Expr); isExpr && len(e.Args) == 0 {
		if len(e.Ranges) == 0 {
			return 0, false
		}
		return e.Ranges[0].From, true
	}
	children := Children(n)
	if len(children) == 0 {
		return 0, false
	}
	return FirstOffset(children[0])
}

// LastOffset returns the exclusive end offset of n. For an expression that
// is the end of its own last range; otherwise the last child that is not an
// empty block decides.
func LastOffset(n Node) (off int, ok bool) {
	if e, isExpr := n.(*Expr); isExpr {
		if len(e.Ranges) == 0 {
			return 0, false
		}
		return e.Ranges[len(e.Ranges)-1].To, true
	}
	children := Children(n)
	for i := len(children) - 1; i >= 0; i-- {
		if b, isBlock := children[i].(*Block); isBlock && b.Empty() {
			continue
		}
		return LastOffset(children[i])
	}
	return 0, false
}

// LastExpr returns the last statement of b that is an expression.
func (b *Block) LastExpr() *Expr {
	for i := len(b.Body) - 1; i >= 0; i-- {
		if e, ok := b.Body[i].(*Expr); ok {
			return e
		}
	}
	return nil
}
