package engine

import (
	"context"
	stderrors "errors"
	"sort"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"

	"github.com/wippyai/autodispose/asm"
	"github.com/wippyai/autodispose/errors"
	"github.com/wippyai/autodispose/il"
	"github.com/wippyai/autodispose/module"
	"github.com/wippyai/autodispose/verify"
	"github.com/wippyai/autodispose/weaver/internal/mocks"
)

const library = `module Demo
type System.IDisposable interface
  method void Dispose() abstract
end
type Demo.Res extends System.Object implements System.IDisposable
  method void Use()
    ret
  end
end
type Demo.Point valuetype implements System.IDisposable
end
type Demo.Plain extends System.Object
end
`

const program = `type Demo.Program extends System.Object
  method void Run() static
    local Demo.Res r
    newobj instance void Demo.Res::.ctor()
    stloc r
    ldloc r
    callvirt instance void Demo.Res::Use()
    ret
  end
  method void Plain() static
    local Demo.Plain p
    newobj instance void Demo.Plain::.ctor()
    stloc p
    ret
  end
  method void Point() static
    local Demo.Point v
    newobj instance void Demo.Point::.ctor()
    stloc v
    ret
  end
  method void Missing() static
    local Demo.Missing a
    newobj instance void Demo.Missing::.ctor()
    stloc a
    ret
  end
  method void MissingAgain() static
    local Demo.Missing b
    newobj instance void Demo.Missing::.ctor()
    stloc b
    ret
  end
end
`

func parse(t *testing.T, src string) *module.Module {
	t.Helper()
	m, err := asm.Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return m
}

func method(t *testing.T, m *module.Module, full string) *il.MethodBody {
	t.Helper()
	for _, md := range m.BodiedMethods() {
		if md.FullName() == full {
			return md.Body
		}
	}
	t.Fatalf("method %s not found", full)
	return nil
}

type matchFunc func(string) bool

func (f matchFunc) MatchMethod(name string) bool { return f(name) }

func named(names ...string) matchFunc {
	return func(name string) bool {
		for _, n := range names {
			if n == name {
				return true
			}
		}
		return false
	}
}

// collector records diagnostics by severity.
type collector struct {
	info, warnings, errs []string
}

func (c *collector) diagnostics() Diagnostics {
	return Diagnostics{
		Info:    func(msg string) { c.info = append(c.info, msg) },
		Warning: func(msg string) { c.warnings = append(c.warnings, msg) },
		Error:   func(msg string) { c.errs = append(c.errs, msg) },
	}
}

func TestCapabilities(t *testing.T) {
	m := parse(t, library)
	var warnings []string
	caps := newCapabilities(module.NewResolver(m), DefaultInterface, func(msg string) {
		warnings = append(warnings, msg)
	})

	tests := []struct {
		name  string
		local *il.Local
		want  bool
	}{
		{"implementing class", &il.Local{Type: &il.TypeRef{Name: "Demo.Res"}}, true},
		{"interface itself", &il.Local{Type: &il.TypeRef{Name: "System.IDisposable"}}, true},
		{"value type", &il.Local{Type: &il.TypeRef{Name: "Demo.Point"}}, false},
		{"plain class", &il.Local{Type: &il.TypeRef{Name: "Demo.Plain"}}, false},
		{"builtin", &il.Local{Type: &il.TypeRef{Name: "int32"}}, false},
		{"object", &il.Local{Type: &il.TypeRef{Name: "System.Object"}}, false},
		{"synthetic", &il.Local{Type: &il.TypeRef{Name: "Demo.Res"}, Synthetic: true}, false},
		{"untyped", &il.Local{}, false},
		{"unresolved", &il.Local{Type: &il.TypeRef{Name: "Demo.Missing"}}, false},
		{"unresolved again", &il.Local{Type: &il.TypeRef{Name: "Demo.Missing"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := caps.eligible(tt.local); got != tt.want {
				t.Errorf("eligible = %v, want %v", got, tt.want)
			}
		})
	}

	if len(warnings) != 1 || !strings.Contains(warnings[0], "Demo.Missing") {
		t.Errorf("warnings = %q, want one for Demo.Missing", warnings)
	}
}

func TestCapabilitiesUnresolvedInterface(t *testing.T) {
	var warnings []string
	caps := newCapabilities(resolvers{nil}, DefaultInterface, func(msg string) {
		warnings = append(warnings, msg)
	})
	if !caps.eligible(&il.Local{Type: &il.TypeRef{Name: DefaultInterface}}) {
		t.Error("interface typed local is not eligible")
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %q", warnings)
	}
}

func TestProcessModule(t *testing.T) {
	m := parse(t, library+program)
	before := map[string]string{}
	for _, md := range m.BodiedMethods() {
		before[md.FullName()] = il.Disassemble(md.Body)
	}

	var diag collector
	e := New(Config{Diagnostics: diag.diagnostics(), Parallelism: 2, Verify: true})
	report, err := e.ProcessModule(context.Background(), m)
	if err != nil {
		t.Fatalf("ProcessModule: %v", err)
	}

	if report.Woven() != 1 || report.Regions() != 1 {
		t.Errorf("woven %d methods with %d regions, want 1 and 1", report.Woven(), report.Regions())
	}
	if len(report.Methods) != len(m.BodiedMethods()) {
		t.Errorf("report lists %d methods", len(report.Methods))
	}

	run := method(t, m, "Demo.Program::Run")
	if len(run.Handlers) != 1 || run.Handlers[0].Kind != il.HandlerFinally {
		t.Fatalf("Run not woven:\n%s", il.Disassemble(run))
	}
	if err := verify.Body(run, verify.Options{SingleExit: true}); err != nil {
		t.Errorf("woven Run is invalid: %v", err)
	}
	for _, name := range []string{"Demo.Program::Plain", "Demo.Program::Point", "Demo.Program::Missing", "Demo.Program::MissingAgain", "Demo.Res::Use"} {
		if got := il.Disassemble(method(t, m, name)); got != before[name] {
			t.Errorf("%s changed:\n%s", name, got)
		}
	}

	if len(diag.warnings) != 1 {
		t.Errorf("warnings = %q, want one for the unresolved type", diag.warnings)
	}
	if len(diag.info) != 1 || !strings.Contains(diag.info[0], "Demo.Program::Run") {
		t.Errorf("info = %q", diag.info)
	}
	if len(diag.errs) != 0 {
		t.Errorf("errors = %q", diag.errs)
	}
}

func TestProcessModuleFilters(t *testing.T) {
	tests := []struct {
		name    string
		include MethodMatcher
		exclude MethodMatcher
		want    []string
		woven   int
	}{
		{
			name:    "include",
			include: named("Demo.Program::Run", "Demo.Program::Plain"),
			want:    []string{"Demo.Program::Plain", "Demo.Program::Run"},
			woven:   1,
		},
		{
			name:    "exclude",
			include: named("Demo.Program::Run", "Demo.Program::Plain"),
			exclude: named("Demo.Program::Run"),
			want:    []string{"Demo.Program::Plain"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := parse(t, library+program)
			e := New(Config{Include: tt.include, Exclude: tt.exclude, Diagnostics: (&collector{}).diagnostics()})
			report, err := e.ProcessModule(context.Background(), m)
			if err != nil {
				t.Fatal(err)
			}
			var got []string
			for _, r := range report.Methods {
				got = append(got, r.Method)
			}
			sort.Strings(got)
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("methods = %v, want %v", got, tt.want)
			}
			if report.Woven() != tt.woven {
				t.Errorf("woven = %d, want %d", report.Woven(), tt.woven)
			}
			if tt.woven == 0 && len(method(t, m, "Demo.Program::Run").Handlers) != 0 {
				t.Error("excluded method was woven")
			}
		})
	}
}

func TestProcessMethodReferences(t *testing.T) {
	lib := parse(t, library)
	m := parse(t, "module App\n"+program)
	run := method(t, m, "Demo.Program::Run")

	report, err := New(Config{References: module.NewResolver(lib)}).ProcessMethod(run)
	if err != nil {
		t.Fatalf("ProcessMethod: %v", err)
	}
	if report.Regions != 1 || len(run.Handlers) != 1 {
		t.Errorf("regions = %d, handlers = %d", report.Regions, len(run.Handlers))
	}

	// Without references nothing resolves and the body is left alone.
	m = parse(t, "module App\n"+program)
	run = method(t, m, "Demo.Program::Run")
	report, err = New(Config{Diagnostics: (&collector{}).diagnostics()}).ProcessMethod(run)
	if err != nil {
		t.Fatal(err)
	}
	if report.Regions != 0 || len(run.Handlers) != 0 {
		t.Error("unresolvable local was disposed")
	}
}

// dupStore keeps a copy of the new resource on the stack across the store,
// so its range cannot be protected.
const dupStore = `module App
type Demo.Program extends System.Object
  method int32 Run(int32) static
    local Demo.Res r
    newobj instance void Demo.Res::.ctor()
    dup
    stloc r
    callvirt instance void Demo.Res::Use()
    ldarg.0
    brtrue ONE
    ldc.i4.0
    ret
    ONE: ldc.i4.1
    ret
  end
end
`

func TestProcessMethodAllRangesDropped(t *testing.T) {
	m := parse(t, dupStore)
	body := method(t, m, "Demo.Program::Run")
	before := il.Disassemble(body)

	var diag collector
	e := New(Config{References: module.NewResolver(parse(t, library)), Diagnostics: diag.diagnostics(), Verify: true})
	report, err := e.ProcessMethod(body)
	if err != nil {
		t.Fatalf("ProcessMethod: %v", err)
	}
	if report.Regions != 0 || report.Dropped != 1 {
		t.Errorf("report = %+v, want no regions and one dropped range", report)
	}
	if len(diag.warnings) != 1 {
		t.Errorf("warnings = %q", diag.warnings)
	}
	if got := il.Disassemble(body); got != before {
		t.Errorf("body changed:\n%s\nwant:\n%s", got, before)
	}
	if len(body.Locals) != 1 {
		t.Errorf("locals = %d, want only r", len(body.Locals))
	}
}

func TestProcessMethodTreeBuildFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	builder := mocks.NewMockTreeBuilder(ctrl)

	m := parse(t, library+program)
	run := method(t, m, "Demo.Program::Run")
	before := il.Disassemble(run)

	cause := stderrors.New("unbalanced stack")
	builder.EXPECT().Build(run).Return(nil, cause)

	_, err := New(Config{Builder: builder}).ProcessMethod(run)
	if !stderrors.Is(err, errors.New(errors.PhaseBuild, errors.KindTreeBuild).Build()) {
		t.Fatalf("err = %v, want tree build failure", err)
	}
	if !stderrors.Is(err, cause) {
		t.Errorf("cause lost: %v", err)
	}
	if il.Disassemble(run) != before {
		t.Error("failed method was modified")
	}
}

func TestProcessMethodKeepsTreeBuildError(t *testing.T) {
	ctrl := gomock.NewController(t)
	builder := mocks.NewMockTreeBuilder(ctrl)

	m := parse(t, library+program)
	run := method(t, m, "Demo.Program::Run")
	original := errors.TreeBuild(run.Name, stderrors.New("unknown opcode"))
	builder.EXPECT().Build(gomock.Any()).Return(nil, original)

	_, err := New(Config{Builder: builder}).ProcessMethod(run)
	var got *errors.Error
	if !stderrors.As(err, &got) || got != original {
		t.Errorf("err = %v, want the builder's error unchanged", err)
	}
}

func TestProcessModuleFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	builder := mocks.NewMockTreeBuilder(ctrl)
	builder.EXPECT().Build(gomock.Any()).Return(nil, stderrors.New("boom")).AnyTimes()

	m := parse(t, library+program)
	var diag collector
	e := New(Config{
		Include:     named("Demo.Program::Run"),
		Builder:     builder,
		Diagnostics: diag.diagnostics(),
	})
	report, err := e.ProcessModule(context.Background(), m)
	if err == nil {
		t.Fatalf("ProcessModule succeeded: %+v", report)
	}
	if !strings.Contains(err.Error(), "Demo.Program::Run") {
		t.Errorf("error does not name the method: %v", err)
	}
	if !stderrors.Is(err, errors.New(errors.PhaseBuild, errors.KindTreeBuild).Build()) {
		t.Errorf("err = %v, want tree build failure", err)
	}
	if len(diag.errs) != 1 {
		t.Errorf("errors = %q", diag.errs)
	}
}

func TestProcessModuleCanceled(t *testing.T) {
	m := parse(t, library+program)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Config{}).ProcessModule(ctx, m)
	if !stderrors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if len(method(t, m, "Demo.Program::Run").Handlers) != 0 {
		t.Error("canceled run wove a method")
	}
}
