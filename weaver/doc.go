// Package weaver disposes of locals automatically by rewriting method
// bodies after compilation.
//
// A local whose declared type exposes the capability interface (by default
// System.IDisposable) is released at the end of its live range: the code
// from just after the store to the point where the variable stops being
// used is wrapped in a try/finally whose handler calls the release method
// when the local is not null. Locals already released by a hand-written
// region are left alone.
//
// # Usage
//
//	w := weaver.New(weaver.Config{
//	    References: module.NewResolver(system),
//	    Exclude:    weaver.NewWildcardMatcher([]string{"App.Generated.*"}),
//	    Verify:     true,
//	})
//	report, err := w.ProcessModule(ctx, m)
//
// A configuration can also be read from an autodispose.toml file with
// LoadConfig.
//
// # Method Selection
//
// Methods are named "Type::Method". Include and Exclude take any
// MethodMatcher; the package provides exact, prefix, wildcard and
// composite matchers. Property accessors are selected by their accessor
// names (get_X, set_X).
//
// # Failure
//
// Each method is rewritten on a copy that replaces the original only when
// the whole rewrite succeeds. Ranges that cannot be protected without
// breaking block structure are dropped with a warning; a method that
// cannot be analyzed at all fails the run.
package weaver
