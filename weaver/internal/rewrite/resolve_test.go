package rewrite

import (
	stderrors "errors"
	"testing"

	"github.com/wippyai/autodispose/errors"
	"github.com/wippyai/autodispose/il"
	"github.com/wippyai/autodispose/weaver/internal/scope"
)

func local(body *il.MethodBody, name string) *il.Local {
	for _, l := range body.Locals {
		if l.Name == name {
			return l
		}
	}
	return nil
}

func TestResolve(t *testing.T) {
	body := parseMethod(t, "void Run()",
		"local Demo.Res r", "local int32 n",
		newRes, "stloc r", "nop",
		"ldloc r", useRes,
		"ldc.i4.1", "stloc n",
		"ldloc n", "pop",
		"ret",
	)
	body.UpdateOffsets()
	at := func(i int) int { return body.Instructions[i].Offset }

	got, err := Resolve(body, []scope.Candidate{
		{Local: local(body, "r"), Start: at(2), End: at(5)},
		{Local: local(body, "n"), Start: at(7), End: at(9)},
		{Local: local(body, "r"), Start: at(3), End: body.CodeSize()},
	}, isRes)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Resolve = %v, want two ranges of r", got)
	}
	r := got[0]
	if r.Local != local(body, "r") || r.Store != body.Instructions[1] || r.Start != body.Instructions[2] || r.End != body.Instructions[5] {
		t.Errorf("first range = %v", r)
	}
	if got[1].Store != body.Instructions[1] || got[1].End != nil {
		t.Errorf("range to the end of the body = %v", got[1])
	}
}

func TestResolveSkipsSyntheticLocals(t *testing.T) {
	body := parseMethod(t, "void Run()",
		"local Demo.Res <>tmp",
		newRes, "stloc <>tmp", "ldloc <>tmp", useRes, "ret",
	)
	body.UpdateOffsets()
	got, err := Resolve(body, []scope.Candidate{
		{Local: body.Locals[0], Start: body.Instructions[2].Offset, End: body.Instructions[4].Offset},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("synthetic local resolved: %v", got)
	}
}

func TestResolveErrors(t *testing.T) {
	body := parseMethod(t, "void Run()",
		"local Demo.Res r",
		newRes, "stloc r", "ldloc r", useRes, "ret",
	)
	body.UpdateOffsets()
	r := local(body, "r")

	tests := []struct {
		name string
		c    scope.Candidate
		want error
	}{
		{
			name: "no store before start",
			c:    scope.Candidate{Local: r, Start: body.Instructions[3].Offset, End: body.Instructions[4].Offset},
			want: errors.New(errors.PhaseRewrite, errors.KindMissingStore).Build(),
		},
		{
			name: "start inside an instruction",
			c:    scope.Candidate{Local: r, Start: body.Instructions[0].Offset + 1, End: body.Instructions[4].Offset},
			want: errors.New(errors.PhaseRewrite, errors.KindMissingStore).Build(),
		},
		{
			name: "end inside an instruction",
			c:    scope.Candidate{Local: r, Start: body.Instructions[2].Offset, End: body.Instructions[3].Offset + 1},
			want: errors.New(errors.PhaseRewrite, errors.KindStructural).Build(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(body, []scope.Candidate{tt.c}, isRes)
			if !stderrors.Is(err, tt.want) {
				t.Errorf("Resolve error = %v, want %v", err, tt.want)
			}
		})
	}
}
