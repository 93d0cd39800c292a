package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/autodispose/errors"
	"github.com/wippyai/autodispose/il"
	"github.com/wippyai/autodispose/ilast"
	"github.com/wippyai/autodispose/module"
	"github.com/wippyai/autodispose/verify"
	"github.com/wippyai/autodispose/weaver/internal/rewrite"
	"github.com/wippyai/autodispose/weaver/internal/scope"
)

// Default capability.
const (
	DefaultInterface = "System.IDisposable"
	DefaultMethod    = "Dispose"
)

// MethodMatcher selects methods by their "Type::Method" name.
type MethodMatcher interface {
	MatchMethod(name string) bool
}

// Diagnostics receives messages about the run. Nil sinks fall back to the
// engine logger. Calls are serialized.
type Diagnostics struct {
	Info    func(string)
	Warning func(string)
	Error   func(string)
}

// Config configures the engine.
type Config struct {
	Include     MethodMatcher
	Exclude     MethodMatcher
	Builder     ilast.TreeBuilder
	Canon       rewrite.Canonicalizer
	References  module.TypeResolver
	Diagnostics Diagnostics
	Interface   string
	Method      string
	Parallelism int
	Verify      bool
}

// Engine weaves disposal into method bodies. It holds no per-module state
// and can be reused.
type Engine struct {
	include     MethodMatcher
	exclude     MethodMatcher
	builder     ilast.TreeBuilder
	canon       rewrite.Canonicalizer
	references  module.TypeResolver
	release     *il.MethodRef
	diag        Diagnostics
	iface       string
	parallelism int
	verify      bool
	diagMu      sync.Mutex
}

// New creates an engine, filling in defaults.
func New(cfg Config) *Engine {
	e := &Engine{
		include:     cfg.Include,
		exclude:     cfg.Exclude,
		builder:     cfg.Builder,
		canon:       cfg.Canon,
		references:  cfg.References,
		diag:        cfg.Diagnostics,
		iface:       cfg.Interface,
		parallelism: cfg.Parallelism,
		verify:      cfg.Verify,
	}
	if e.builder == nil {
		e.builder = ilast.Builder{}
	}
	if e.canon == nil {
		e.canon = rewrite.MacroCanonicalizer{}
	}
	if e.iface == "" {
		e.iface = DefaultInterface
	}
	method := cfg.Method
	if method == "" {
		method = DefaultMethod
	}
	if e.parallelism <= 0 {
		e.parallelism = runtime.GOMAXPROCS(0)
	}
	e.release = &il.MethodRef{
		DeclaringType: &il.TypeRef{Name: e.iface},
		ReturnType:    &il.TypeRef{Name: il.Void},
		Name:          method,
		HasThis:       true,
	}
	return e
}

// MethodReport describes the outcome for one method.
type MethodReport struct {
	Method  string
	Regions int
	Dropped int
}

// Report summarizes a module run. Methods lists every selected method in
// module order.
type Report struct {
	Methods []MethodReport
}

// Regions returns the total number of protected regions added.
func (r *Report) Regions() int {
	n := 0
	for _, m := range r.Methods {
		n += m.Regions
	}
	return n
}

// Woven returns how many methods were changed.
func (r *Report) Woven() int {
	n := 0
	for _, m := range r.Methods {
		if m.Regions > 0 {
			n++
		}
	}
	return n
}

// ProcessMethod weaves one body, resolving types through the configured
// references only.
func (e *Engine) ProcessMethod(body *il.MethodBody) (MethodReport, error) {
	caps := newCapabilities(resolvers{e.references}, e.iface, e.warning)
	return e.processMethod(body, caps)
}

// ProcessModule weaves every selected method of m that has a body. Types
// resolve through m first, then the configured references. The first fatal
// error stops the run and is returned; bodies already committed stay woven.
func (e *Engine) ProcessModule(ctx context.Context, m *module.Module) (*Report, error) {
	caps := newCapabilities(resolvers{module.NewResolver(m), e.references}, e.iface, e.warning)

	var methods []*module.MethodDef
	for _, md := range m.BodiedMethods() {
		if e.selected(md.FullName()) {
			methods = append(methods, md)
		}
	}

	reports := make([]MethodReport, len(methods))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)
	for i, md := range methods {
		i, md := i, md
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := e.processMethod(md.Body, caps)
			if err != nil {
				e.failure(fmt.Sprintf("%s: %v", md.FullName(), err))
				return fmt.Errorf("method %s: %w", md.FullName(), err)
			}
			reports[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{Methods: reports}
	Logger().Debug("module woven",
		zap.String("module", m.Name),
		zap.Int("methods", len(reports)),
		zap.Int("regions", report.Regions()))
	return report, nil
}

func (e *Engine) selected(name string) bool {
	if e.include != nil && !e.include.MatchMethod(name) {
		return false
	}
	return e.exclude == nil || !e.exclude.MatchMethod(name)
}

func (e *Engine) processMethod(body *il.MethodBody, caps *capabilities) (MethodReport, error) {
	report := MethodReport{Method: body.Name}

	body.UpdateOffsets()
	ranges, err := e.ranges(body, caps)
	if err != nil || len(ranges) == 0 {
		return report, err
	}

	work := body.Clone()
	if err := rewrite.Normalize(work, e.canon); err != nil {
		return report, err
	}
	if ranges, err = e.ranges(work, caps); err != nil || len(ranges) == 0 {
		return report, err
	}

	built, err := rewrite.Apply(work, ranges, rewrite.Config{
		Canon:   e.canon,
		Release: e.release,
		Warn: func(msg string) {
			report.Dropped++
			e.warning(msg)
		},
	})
	if err != nil || len(built) == 0 {
		return report, err
	}
	if e.verify {
		if err := verify.Body(work, verify.Options{SingleExit: true}); err != nil {
			return report, errors.Wrap(errors.PhaseVerify, errors.KindStructural, err,
				"woven body of "+body.Name+" is invalid")
		}
	}

	*body = *work
	report.Regions = len(built)
	for _, r := range built {
		e.info(fmt.Sprintf("%s: disposing %s", body.Name, r))
	}
	Logger().Debug("method woven",
		zap.String("method", body.Name),
		zap.Int("regions", report.Regions),
		zap.Int("dropped", report.Dropped))
	return report, nil
}

var treeBuildErr = errors.New(errors.PhaseBuild, errors.KindTreeBuild).Build()

// ranges analyzes body as it is and resolves the ranges of eligible locals.
func (e *Engine) ranges(body *il.MethodBody, caps *capabilities) ([]rewrite.Range, error) {
	root, err := e.builder.Build(body)
	if err != nil {
		if !stderrors.Is(err, treeBuildErr) {
			err = errors.TreeBuild(body.Name, err)
		}
		return nil, err
	}
	return rewrite.Resolve(body, scope.Analyze(root, body.TryStarts()), caps.eligible)
}

func (e *Engine) info(msg string) {
	e.emit(e.diag.Info, msg, func(l *zap.Logger) { l.Info(msg) })
}

func (e *Engine) warning(msg string) {
	e.emit(e.diag.Warning, msg, func(l *zap.Logger) { l.Warn(msg) })
}

func (e *Engine) failure(msg string) {
	e.emit(e.diag.Error, msg, func(l *zap.Logger) { l.Error(msg) })
}

func (e *Engine) emit(sink func(string), msg string, fallback func(*zap.Logger)) {
	e.diagMu.Lock()
	defer e.diagMu.Unlock()
	if sink != nil {
		sink(msg)
		return
	}
	fallback(Logger())
}
