package rewrite

import "github.com/wippyai/autodispose/il"

// Canonicalizer switches a body between long and short branch encodings.
// ShortForm(LongForm(b)) must leave a body in short form unchanged.
type Canonicalizer interface {
	LongForm(body *il.MethodBody)
	ShortForm(body *il.MethodBody)
}

// MacroCanonicalizer canonicalizes with the body's own macro passes.
type MacroCanonicalizer struct{}

func (MacroCanonicalizer) LongForm(body *il.MethodBody)  { body.SimplifyMacros() }
func (MacroCanonicalizer) ShortForm(body *il.MethodBody) { body.OptimizeMacros() }
