package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseLoad    Phase = "load"    // module image loading
	PhaseEncode  Phase = "encode"  // instructions to bytes
	PhaseDecode  Phase = "decode"  // bytes to instructions
	PhaseParse   Phase = "parse"   // assembler text
	PhaseConfig  Phase = "config"  // configuration file
	PhaseBuild   Phase = "build"   // tree construction
	PhaseAnalyze Phase = "analyze" // live range discovery
	PhaseRewrite Phase = "rewrite" // region construction
	PhaseVerify  Phase = "verify"  // structural validation
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidData   Kind = "invalid_data"
	KindInvalidInput  Kind = "invalid_input"
	KindOutOfBounds   Kind = "out_of_bounds"
	KindUnsupported   Kind = "unsupported"
	KindNotFound      Kind = "not_found"
	KindMissingStore  Kind = "missing_store"
	KindStructural    Kind = "structural"
	KindCyclicNesting Kind = "cyclic_nesting"
	KindTreeBuild     Kind = "tree_build"
)

// Error is the structured error type used throughout the weaver
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Method string
	Detail string
	Path   []string
	Offset int
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Method != "" {
		b.WriteString(" in ")
		b.WriteString(e.Method)
		if e.Offset >= 0 && e.Kind == KindMissingStore {
			fmt.Fprintf(&b, " at IL_%04x", e.Offset)
		}
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase:  phase,
			Kind:   kind,
			Offset: -1,
		},
	}
}

// Path sets the element path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Method sets the method the error belongs to
func (b *Builder) Method(name string) *Builder {
	b.err.Method = name
	return b
}

// Offset sets the instruction offset
func (b *Builder) Offset(off int) *Builder {
	b.err.Offset = off
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// TreeBuild reports that the tree IR could not be produced for a method.
func TreeBuild(method string, cause error) *Error {
	return &Error{
		Phase:  PhaseBuild,
		Kind:   KindTreeBuild,
		Method: method,
		Detail: "tree cannot be built",
		Cause:  cause,
		Offset: -1,
	}
}

// MissingStore reports a live range whose binding store instruction is absent.
func MissingStore(method string, offset int) *Error {
	return &Error{
		Phase:  PhaseRewrite,
		Kind:   KindMissingStore,
		Method: method,
		Offset: offset,
		Detail: "no local store precedes live range start",
		Value:  offset,
	}
}

// Structural reports a violated structural precondition.
func Structural(phase Phase, method, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindStructural,
		Method: method,
		Detail: detail,
		Offset: -1,
	}
}

// CyclicNesting reports exception regions that cannot be ordered inner-first.
func CyclicNesting(method string, regions int) *Error {
	return &Error{
		Phase:  PhaseRewrite,
		Kind:   KindCyclicNesting,
		Method: method,
		Detail: fmt.Sprintf("%d exception regions form a nesting cycle", regions),
		Value:  regions,
		Offset: -1,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
		Offset: -1,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
		Offset: -1,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
		Offset: -1,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
		Offset: -1,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
		Offset: -1,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
		Offset: -1,
	}
}

// Load creates a module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
		Offset: -1,
	}
}

// ParseFailed creates a parsing error for the given source line
func ParseFailed(what string, line int, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindInvalidData,
		Detail: fmt.Sprintf("parse %s (line %d)", what, line),
		Cause:  cause,
		Value:  line,
		Offset: -1,
	}
}
