package token

import "unicode"

type Type int

const (
	Ident Type = iota
	Number
	String
	LParen
	RParen
	Comma
	Colon
)

func (t Type) String() string {
	switch t {
	case Ident:
		return "identifier"
	case Number:
		return "number"
	case String:
		return "string"
	case LParen:
		return "'('"
	case RParen:
		return "')'"
	case Comma:
		return "','"
	case Colon:
		return "':'"
	}
	return "unknown"
}

type Token struct {
	Value string
	Type  Type
	Line  int
}

// Tokenize splits assembler source into tokens. A ';' starts a comment that
// runs to the end of the line. String values keep their escapes. A '::'
// inside a name is part of the name; a lone ':' ends a label.
func Tokenize(input string) []Token {
	var tokens []Token
	line := 1
	runes := []rune(input)

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if r == '\n' {
			line++
			continue
		}
		if unicode.IsSpace(r) {
			continue
		}

		if r == ';' {
			for i+1 < len(runes) && runes[i+1] != '\n' {
				i++
			}
			continue
		}

		switch r {
		case '(':
			tokens = append(tokens, Token{"(", LParen, line})
			continue
		case ')':
			tokens = append(tokens, Token{")", RParen, line})
			continue
		case ',':
			tokens = append(tokens, Token{",", Comma, line})
			continue
		case ':':
			tokens = append(tokens, Token{":", Colon, line})
			continue
		}

		// String literal, ends at the closing quote or the end of the line
		if r == '"' {
			start := i + 1
			i++
			for i < len(runes) && runes[i] != '"' && runes[i] != '\n' {
				if runes[i] == '\\' && i+1 < len(runes) {
					i++
				}
				i++
			}
			tokens = append(tokens, Token{string(runes[start:min(i, len(runes))]), String, line})
			if i < len(runes) && runes[i] == '\n' {
				i--
			}
			continue
		}

		// Number, optionally negative or hexadecimal
		if unicode.IsDigit(r) || (r == '-' && i+1 < len(runes) && unicode.IsDigit(runes[i+1])) {
			start := i
			i++
			for i < len(runes) && (unicode.IsDigit(runes[i]) || isHex(runes[i]) || runes[i] == 'x' || runes[i] == 'X') {
				i++
			}
			tokens = append(tokens, Token{string(runes[start:i]), Number, line})
			i--
			continue
		}

		// Name: types, members, mnemonics, labels and directives
		start := i
		for i < len(runes) {
			c := runes[i]
			if c == ':' && i+1 < len(runes) && runes[i+1] == ':' {
				i += 2
				continue
			}
			if !isNameRune(c) {
				break
			}
			i++
		}
		if i == start {
			// Unknown character, kept as a one-rune name so the parser reports it.
			i++
		}
		tokens = append(tokens, Token{string(runes[start:i]), Ident, line})
		i--
	}

	return tokens
}

func isHex(r rune) bool {
	return (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

func isNameRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '_', '.', '$', '<', '>', '`', '[', ']', '&', '*', '/', '\'', '@', '-', '=':
		return true
	}
	return false
}
