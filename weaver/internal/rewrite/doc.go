// Package rewrite turns live ranges of disposable locals into protected
// regions of a method body.
//
// The steps run in a fixed order on one body:
//
//  1. UnifyReturns leaves a single ret at the end of the body.
//  2. Resolve binds analyzed offset ranges to instructions and drops
//     locals that are not eligible.
//  3. ResolveConflicts makes ranges nest with each other and with the
//     body's existing regions, inserting nop anchors where ranges share an
//     end.
//  4. BuildRegion wraps each range in try/finally with a guarded release
//     call.
//  5. SortHandlers orders the handler table inner first.
//  6. FixLeaves turns branches out of protected ranges into leave.
//
// Every structural edit is bracketed by a Canonicalizer switching the body
// to long branch forms and back, so inserted code never invalidates a
// short displacement. Apply runs steps 3 to 6 with that bracketing.
package rewrite
