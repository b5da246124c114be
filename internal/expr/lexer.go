package expr

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokOp
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokenKind
	text string
	num  float64
}

// lex tokenizes a source expression. It never executes anything; it only
// produces tokens for the recursive-descent parser in parser.go. Unknown
// characters fail the lex, which is how the evaluator refuses arbitrary
// code (§4.1: "must refuse arbitrary code").
func lex(src string) ([]token, error) {
	var toks []token
	runes := []rune(src)
	i := 0
	n := len(runes)

	peek := func() rune {
		if i < n {
			return runes[i]
		}
		return 0
	}

	for i < n {
		c := runes[i]
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "("})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")"})
			i++
		case c == ',':
			toks = append(toks, token{kind: tokComma, text: ","})
			i++
		case unicode.IsDigit(c) || (c == '.' && i+1 < n && unicode.IsDigit(runes[i+1])):
			start := i
			for i < n && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				i++
			}
			text := string(runes[start:i])
			var val float64
			if _, err := fmt.Sscanf(text, "%g", &val); err != nil {
				return nil, fmt.Errorf("invalid numeric literal %q", text)
			}
			toks = append(toks, token{kind: tokNumber, text: text, num: val})
		case unicode.IsLetter(c) || c == '_':
			start := i
			for i < n && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_' || runes[i] == '.') {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: string(runes[start:i])})
		case strings.ContainsRune("+-*/%<>=!", c):
			op := string(c)
			i++
			if c == '*' && peek() == '*' {
				op = "**"
				i++
			} else if (c == '<' || c == '>' || c == '=' || c == '!') && peek() == '=' {
				op += "="
				i++
			}
			toks = append(toks, token{kind: tokOp, text: op})
		default:
			return nil, fmt.Errorf("unexpected character %q at position %d", c, i)
		}
	}
	toks = append(toks, token{kind: tokEOF})
	return toks, nil
}
