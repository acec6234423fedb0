package expr

import (
	"fmt"
	"strconv"
	"strings"
)

type tokenType int

const (
	tokenEOF tokenType = iota
	tokenNumber
	tokenString
	tokenIdent
	tokenDot
	tokenDollarBrace // ${
	tokenRightBrace
	tokenLeftParen
	tokenRightParen
	tokenPlus
	tokenMinus
	tokenStar
	tokenSlash
	tokenAssign
	tokenComparison
)

type token struct {
	typ   tokenType
	text  string
	num   float64
	start int // byte offset within the source
}

func (t token) String() string {
	if t.typ == tokenEOF {
		return "end of input"
	}
	return fmt.Sprintf("%q at position %d", t.text, t.start)
}

// tokenize splits an expression or a single script statement into tokens.
// The returned slice is always terminated by a token of type tokenEOF.
func tokenize(s string) ([]token, error) {
	var tokens []token

	i := 0
	for i < len(s) {
		c := s[i]

		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			i++
		case isDigit(c):
			start := i
			for i < len(s) && isDigit(s[i]) {
				i++
			}
			if i+1 < len(s) && s[i] == '.' && isDigit(s[i+1]) {
				i++
				for i < len(s) && isDigit(s[i]) {
					i++
				}
			}
			if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
				j := i + 1
				if j < len(s) && (s[j] == '+' || s[j] == '-') {
					j++
				}
				if j < len(s) && isDigit(s[j]) {
					i = j
					for i < len(s) && isDigit(s[i]) {
						i++
					}
				}
			}

			num, err := strconv.ParseFloat(s[start:i], 64)
			if err != nil {
				return nil, fmt.Errorf("invalid number %q at position %d", s[start:i], start)
			}
			tokens = append(tokens, token{typ: tokenNumber, text: s[start:i], num: num, start: start})
		case isIdentStart(c):
			start := i
			for i < len(s) && isIdentPart(s[i]) {
				i++
			}
			tokens = append(tokens, token{typ: tokenIdent, text: s[start:i], start: start})
		case c == '\'' || c == '"':
			text, n, err := scanString(s[i:])
			if err != nil {
				return nil, fmt.Errorf("%v at position %d", err, i)
			}
			tokens = append(tokens, token{typ: tokenString, text: text, start: i})
			i += n
		case c == '$':
			if i+1 >= len(s) || s[i+1] != '{' {
				return nil, fmt.Errorf("unexpected character '$' at position %d", i)
			}
			tokens = append(tokens, token{typ: tokenDollarBrace, text: "${", start: i})
			i += 2
		case c == '=' || c == '!' || c == '<' || c == '>':
			op := comparisonAt(s, i)
			switch {
			case op != "":
				tokens = append(tokens, token{typ: tokenComparison, text: op, start: i})
				i += len(op)
			case c == '=':
				tokens = append(tokens, token{typ: tokenAssign, text: "=", start: i})
				i++
			default:
				return nil, fmt.Errorf("unexpected character %q at position %d", c, i)
			}
		default:
			typ, ok := punctuation[c]
			if !ok {
				return nil, fmt.Errorf("unexpected character %q at position %d", c, i)
			}
			tokens = append(tokens, token{typ: typ, text: string(c), start: i})
			i++
		}
	}

	return append(tokens, token{typ: tokenEOF, start: len(s)}), nil
}

var punctuation = map[byte]tokenType{
	'.': tokenDot,
	'}': tokenRightBrace,
	'(': tokenLeftParen,
	')': tokenRightParen,
	'+': tokenPlus,
	'-': tokenMinus,
	'*': tokenStar,
	'/': tokenSlash,
}

// comparisons ordered by length, so that the longest operator matches first.
var comparisons = []string{"===", "!==", "==", "!=", ">=", "<=", ">", "<"}

func comparisonAt(s string, i int) string {
	for _, op := range comparisons {
		if strings.HasPrefix(s[i:], op) {
			return op
		}
	}
	return ""
}

// scanString scans a single or double quoted string literal and returns its unescaped value and its length within s.
func scanString(s string) (string, int, error) {
	quote := s[0]

	var sb strings.Builder
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == quote:
			return sb.String(), i + 1, nil
		case c == '\\' && i+1 < len(s):
			i++
			switch s[i] {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				sb.WriteByte(s[i])
			}
		default:
			sb.WriteByte(c)
		}
	}
	return "", 0, fmt.Errorf("unterminated string")
}

// splitStatements splits a script into statements, separated by semicolons or line breaks outside of string literals.
func splitStatements(script string) []string {
	var (
		statements []string
		start      int
		quote      byte
	)

	for i := 0; i < len(script); i++ {
		c := script[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == ';' || c == '\n':
			statements = append(statements, script[start:i])
			start = i + 1
		}
	}
	statements = append(statements, script[start:])

	nonEmpty := statements[:0]
	for _, statement := range statements {
		if strings.TrimSpace(statement) != "" {
			nonEmpty = append(nonEmpty, statement)
		}
	}
	return nonEmpty
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}
