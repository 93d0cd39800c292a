// Package scope computes the live ranges of local variables from the tree of
// a method body.
//
// A range opens right after a store into a local and closes where the next
// store into the same local begins, or at the end of the block the store
// belongs to. Leaving any block, including a nested one, closes every open
// range: the block boundary is where a value stops being tracked.
package scope

import (
	"github.com/wippyai/autodispose/il"
	"github.com/wippyai/autodispose/ilast"
)

// Candidate is the half-open offset range [Start, End) over which Local
// holds a value that was stored at Start and not yet overwritten.
type Candidate struct {
	Local *il.Local
	Start int
	End   int
}

// Analyze returns the live ranges of every local stored in root, in the
// order they were closed. A store whose value flows straight into a
// protected region starting at one of tryStarts opens no range. Type
// eligibility is not considered.
func Analyze(root *ilast.Block, tryStarts map[int]bool) []Candidate {
	a := &analyzer{tryStarts: tryStarts}
	a.node(root)
	return a.out
}

type open struct {
	local *il.Local
	start int
}

type analyzer struct {
	tryStarts map[int]bool
	open      []open
	out       []Candidate
}

func (a *analyzer) node(n ilast.Node) {
	switch n := n.(type) {
	case *ilast.Block:
		for _, child := range n.Body {
			a.node(child)
		}
		a.exit(n)
	case *ilast.TryBlock:
		a.node(n.Try)
		for _, h := range n.Handlers {
			a.node(h.Body)
		}
	case *ilast.Expr:
		if l := n.Local(); l != nil {
			a.store(l, n)
		}
		for _, arg := range n.Args {
			a.node(arg)
		}
	}
}

func (a *analyzer) store(l *il.Local, e *ilast.Expr) {
	if i := a.find(l); i >= 0 {
		if first, ok := ilast.FirstOffset(e); ok {
			a.emit(a.open[i], first)
		}
		a.open = append(a.open[:i], a.open[i+1:]...)
	}
	last, ok := ilast.LastOffset(e)
	if !ok || a.tryStarts[last] {
		return
	}
	a.open = append(a.open, open{local: l, start: last})
}

// exit closes every open range at the end of the block's last expression.
func (a *analyzer) exit(b *ilast.Block) {
	defer func() { a.open = a.open[:0] }()
	if len(a.open) == 0 {
		return
	}
	var end int
	var ok bool
	if last := b.LastExpr(); last != nil {
		end, ok = ilast.LastOffset(last)
	} else {
		end, ok = ilast.LastOffset(b)
	}
	if !ok {
		return
	}
	for _, o := range a.open {
		a.emit(o, end)
	}
}

func (a *analyzer) emit(o open, end int) {
	if end < o.start {
		return
	}
	a.out = append(a.out, Candidate{Local: o.local, Start: o.start, End: end})
}

func (a *analyzer) find(l *il.Local) int {
	for i, o := range a.open {
		if o.local == l {
			return i
		}
	}
	return -1
}
