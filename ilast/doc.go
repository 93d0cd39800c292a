// Package ilast provides the tree representation of a method body used by
// live-range analysis.
//
// The tree mirrors the flat instruction stream: every expression leaf maps
// back to the offsets of the instruction it came from, so analysis results
// computed on the tree are expressed as offsets into the stream. Nodes form
// a closed set (Block, Expr, TryBlock) consumed with type switches.
//
//	root, err := ilast.Builder{}.Build(body)
//	first, _ := ilast.FirstOffset(root.Body[0])
//	last, _ := ilast.LastOffset(root.Body[0])
//
// The tree is read-only once built and is only valid for the offsets it was
// built from.
package ilast
