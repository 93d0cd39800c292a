// Package engine orchestrates automatic disposal over a module.
//
// Per method:
//  1. Build the tree of the untouched body, analyze it and keep only ranges
//     of disposable locals. A method without any is left as it is.
//  2. On a clone: unify returns, rebuild and re-analyze the tree, resolve
//     ranges again.
//  3. Apply the region rewrite, optionally verify, then commit the clone.
//
// Methods run concurrently; capability answers are cached per run.
package engine
