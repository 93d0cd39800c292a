package verify

import (
	stderrors "errors"
	"strings"
	"testing"

	"github.com/hashicorp/go-multierror"

	"github.com/wippyai/autodispose/asm"
	"github.com/wippyai/autodispose/il"
)

func parseBody(t *testing.T, lines ...string) *il.MethodBody {
	t.Helper()
	src := "module Demo\ntype Demo.Program\n  method void Run(bool) static\n" +
		strings.Join(lines, "\n") + "\n  end\nend\n"
	m, err := asm.Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return m.Types[0].Methods[0].Body
}

func violations(err error) []string {
	var merr *multierror.Error
	if !stderrors.As(err, &merr) {
		return nil
	}
	out := make([]string, len(merr.Errors))
	for i, e := range merr.Errors {
		out[i] = e.Error()
	}
	return out
}

const (
	newRes  = "newobj instance void Demo.Res::.ctor()"
	useRes  = "callvirt instance void Demo.Res::Use()"
	dispose = "callvirt instance void System.IDisposable::Dispose()"
)

func TestBodyValid(t *testing.T) {
	body := parseBody(t,
		"local Demo.Res r",
		newRes, "stloc r",
		"TRY: ldloc r", useRes,
		"ldarg.0", "brfalse OUT",
		"leave DONE",
		"OUT: leave DONE",
		"FIN: ldloc r", "brfalse ENDF", "ldloc r", dispose,
		"ENDF: endfinally",
		"DONE: ret",
		".try TRY FIN finally FIN DONE",
	)
	if err := Body(body, Options{SingleExit: true}); err != nil {
		t.Fatalf("Body: %v", err)
	}
}

func TestBodyViolations(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		opts  Options
		want  string
	}{
		{
			name: "branch out of try",
			lines: []string{
				"TRY: ldarg.0", "brtrue DONE",
				"leave DONE",
				"FIN: endfinally",
				"DONE: ret",
				".try TRY FIN finally FIN DONE",
			},
			want: "leaves a try block without leave",
		},
		{
			name: "branch into try",
			lines: []string{
				"ldarg.0", "brtrue MID",
				"TRY: nop",
				"MID: leave DONE",
				"FIN: endfinally",
				"DONE: ret",
				".try TRY FIN finally FIN DONE",
			},
			want: "enters a try block",
		},
		{
			name: "try falls through",
			lines: []string{
				"TRY: nop",
				"FIN: endfinally",
				"DONE: ret",
				".try TRY FIN finally FIN DONE",
			},
			want: "does not end in leave or throw",
		},
		{
			name: "finally without endfinally",
			lines: []string{
				"TRY: leave DONE",
				"FIN: nop", "leave DONE",
				"DONE: ret",
				".try TRY FIN finally FIN DONE",
			},
			want: "does not end in endfinally",
		},
		{
			name: "outer handler listed first",
			lines: []string{
				"A: nop",
				"B: leave C",
				"F1: endfinally",
				"C: leave DONE",
				"F2: endfinally",
				"DONE: ret",
				".try A F2 finally F2 DONE",
				".try B F1 finally F1 C",
			},
			want: "encloses handler 1 but is listed first",
		},
		{
			name: "partial overlap",
			lines: []string{
				"A: nop",
				"B: leave C",
				"F1: endfinally",
				"C: leave DONE",
				"F2: endfinally",
				"DONE: ret",
				".try A F1 finally F1 C",
				".try B F2 finally F2 DONE",
			},
			want: "partially overlap",
		},
		{
			name: "stack not empty at try",
			lines: []string{
				"ldc.i4.1",
				"TRY: leave DONE",
				"FIN: endfinally",
				"DONE: pop", "ret",
				".try TRY FIN finally FIN DONE",
			},
			want: "entered with 1 values on the stack",
		},
		{
			name:  "two returns",
			lines: []string{"ldarg.0", "brfalse L", "ret", "L: ret"},
			opts:  Options{SingleExit: true},
			want:  "2 ret instructions",
		},
		{
			name:  "falls off the end",
			lines: []string{"nop"},
			want:  "falls off the end",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := parseBody(t, tt.lines...)
			err := Body(body, tt.opts)
			if err == nil {
				t.Fatalf("Body accepted:\n%s", il.Disassemble(body))
			}
			found := false
			for _, v := range violations(err) {
				if strings.Contains(v, tt.want) {
					found = true
				}
			}
			if !found {
				t.Errorf("violations %q do not mention %q", violations(err), tt.want)
			}
		})
	}
}

func TestBodyReportsAllViolations(t *testing.T) {
	body := parseBody(t,
		"TRY: ldarg.0", "brtrue DONE",
		"nop",
		"FIN: nop",
		"DONE: ret",
		".try TRY FIN finally FIN DONE",
	)
	if got := violations(Body(body, Options{})); len(got) < 3 {
		t.Errorf("expected several violations, got %q", got)
	}
}
