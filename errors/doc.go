// Package errors provides structured error types for the autodispose weaver.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the method being processed, an instruction offset when one
// applies, a free-form detail and the cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseRewrite, errors.KindStructural).
//		Method("Demo.Program::Run").
//		Detail("method has %d return instructions", n).
//		Build()
//
// Or use convenience constructors for the fatal conditions of a run:
//
//	err := errors.TreeBuild(method, cause)
//	err := errors.MissingStore(method, 0x12)
//	err := errors.CyclicNesting(method, 3)
//
// All errors implement the standard error interface and support errors.Is/As.
// Is compares Phase and Kind only, so a sentinel built with New(...).Build()
// matches any error of the same category.
package errors
