package weaver

import (
	"context"

	"github.com/wippyai/autodispose/il"
	"github.com/wippyai/autodispose/ilast"
	"github.com/wippyai/autodispose/module"
	"github.com/wippyai/autodispose/weaver/internal/engine"
	"github.com/wippyai/autodispose/weaver/internal/rewrite"
)

// Default capability.
const (
	DefaultInterface = engine.DefaultInterface
	DefaultMethod    = engine.DefaultMethod
)

// TreeBuilder produces the tree IR of a method body.
type TreeBuilder = ilast.TreeBuilder

// Canonicalizer converts bodies between long and short branch forms.
type Canonicalizer = rewrite.Canonicalizer

// Diagnostics receives info, warning and error messages. Nil sinks log
// through Logger().
type Diagnostics = engine.Diagnostics

// MethodReport describes the outcome for one method.
type MethodReport = engine.MethodReport

// Report summarizes a module run.
type Report = engine.Report

// Capability names the interface whose locals are disposed and the
// parameterless method called to release them.
type Capability struct {
	Interface string
	Method    string
}

// Config configures the weaver.
type Config struct {
	Include       MethodMatcher
	Exclude       MethodMatcher
	Builder       TreeBuilder
	Canonicalizer Canonicalizer
	References    module.TypeResolver
	Diagnostics   Diagnostics
	Capability    Capability
	Parallelism   int
	Verify        bool
}

// Weaver inserts disposal of capability-typed locals at the end of their
// live ranges. A Weaver is safe for concurrent use.
type Weaver struct {
	eng *engine.Engine
}

// New creates a weaver.
func New(cfg Config) *Weaver {
	return &Weaver{eng: engine.New(engine.Config{
		Include:     cfg.Include,
		Exclude:     cfg.Exclude,
		Builder:     cfg.Builder,
		Canon:       cfg.Canonicalizer,
		References:  cfg.References,
		Diagnostics: cfg.Diagnostics,
		Interface:   cfg.Capability.Interface,
		Method:      cfg.Capability.Method,
		Parallelism: cfg.Parallelism,
		Verify:      cfg.Verify,
	})}
}

// ProcessMethod weaves a single body. Types resolve through the configured
// references only. On error the body is left as it was.
//
// The rewrite:
//   - finds where each eligible local stops being live
//   - folds early returns into a single exit
//   - wraps each live range in try/finally calling the release method
//     when the local is not null
//   - orders handlers inner first and turns exiting branches into leave
func (w *Weaver) ProcessMethod(body *il.MethodBody) (MethodReport, error) {
	return w.eng.ProcessMethod(body)
}

// ProcessModule weaves every selected method and property accessor of m
// that has a body. Types resolve through m, then the configured
// references. The first fatal error cancels the run and is returned.
func (w *Weaver) ProcessModule(ctx context.Context, m *module.Module) (*Report, error) {
	return w.eng.ProcessModule(ctx, m)
}
