package token

import (
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []Token
	}{
		{
			"empty",
			"",
			nil,
		},
		{
			"mnemonic",
			"ldloc.0",
			[]Token{{"ldloc.0", Ident, 1}},
		},
		{
			"label",
			"IL_0005: stloc.0",
			[]Token{{"IL_0005", Ident, 1}, {":", Colon, 1}, {"stloc.0", Ident, 1}},
		},
		{
			"member",
			"callvirt instance void Demo.Res::Use(int32, string)",
			[]Token{
				{"callvirt", Ident, 1}, {"instance", Ident, 1}, {"void", Ident, 1},
				{"Demo.Res::Use", Ident, 1}, {"(", LParen, 1}, {"int32", Ident, 1},
				{",", Comma, 1}, {"string", Ident, 1}, {")", RParen, 1},
			},
		},
		{
			"constructor",
			"Demo.Res::.ctor",
			[]Token{{"Demo.Res::.ctor", Ident, 1}},
		},
		{
			"synthetic name",
			"local int32 <>ret",
			[]Token{{"local", Ident, 1}, {"int32", Ident, 1}, {"<>ret", Ident, 1}},
		},
		{
			"numbers",
			"42 -7 0x1F",
			[]Token{{"42", Number, 1}, {"-7", Number, 1}, {"0x1F", Number, 1}},
		},
		{
			"string",
			`ldstr "a \"b\""`,
			[]Token{{"ldstr", Ident, 1}, {`a \"b\"`, String, 1}},
		},
		{
			"comment",
			"nop ; does nothing\nret",
			[]Token{{"nop", Ident, 1}, {"ret", Ident, 2}},
		},
		{
			"switch",
			"switch (L1, L2)",
			[]Token{
				{"switch", Ident, 1}, {"(", LParen, 1}, {"L1", Ident, 1},
				{",", Comma, 1}, {"L2", Ident, 1}, {")", RParen, 1},
			},
		},
		{
			"unterminated string",
			"ldstr \"abc\nret",
			[]Token{{"ldstr", Ident, 1}, {"abc", String, 1}, {"ret", Ident, 2}},
		},
		{
			"line numbers",
			"\n\nmodule Demo",
			[]Token{{"module", Ident, 3}, {"Demo", Ident, 3}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.input)
			if len(got) != len(tt.expected) {
				t.Fatalf("got %d tokens %v, want %d %v", len(got), got, len(tt.expected), tt.expected)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("token %d: got %+v, want %+v", i, got[i], tt.expected[i])
				}
			}
		})
	}
}

func TestTypeString(t *testing.T) {
	for typ, want := range map[Type]string{
		Ident:    "identifier",
		Number:   "number",
		String:   "string",
		LParen:   "'('",
		RParen:   "')'",
		Comma:    "','",
		Colon:    "':'",
		Type(99): "unknown",
	} {
		if got := typ.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", typ, got, want)
		}
	}
}
