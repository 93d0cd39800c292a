// Package il models compiled method bodies as a mutable stream of
// stack-machine instructions with CIL-compatible encodings.
//
// # Instructions
//
// An Instruction pairs a Code with an operand. Control transfers reference
// their targets directly:
//
//	br      *Instruction
//	switch  []*Instruction
//	ldloc   *Local            (ldloc.0 .. ldloc.3 carry their *Local too)
//	call    *MethodRef
//	ldc.i4  int
//
// Offsets are derived data. Any edit leaves them stale until UpdateOffsets
// or one of the canonicalizer passes runs.
//
// # Editing
//
// MethodBody offers InsertBefore, InsertAfter, Append, Replace, Rewrite and
// Remove. Insertion keeps every existing reference where it was; Replace
// and Remove retarget branch operands and handler boundaries; Rewrite keeps
// the instruction's identity.
//
// # Canonical forms
//
// SimplifyMacros expands every short and macro form to its long form so
// code can be inserted without displacement overflow. OptimizeMacros picks
// the shortest encoding, shortening branches by fixed-point iteration.
//
//	body.SimplifyMacros()
//	// ... structural edits ...
//	body.OptimizeMacros()
//
// # Encoding
//
// EncodeBody and DecodeBody convert between instructions and code bytes;
// member, type and string operands travel as 4-byte tokens supplied by a
// TokenEncoder/TokenDecoder (see the module package). HandlerRecords and
// BindHandlers do the same for the handler table.
package il
