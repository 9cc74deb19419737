package expr

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokOp
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func (t token) String() string {
	if t.kind == tokEOF {
		return "end of expression"
	}
	return fmt.Sprintf("%q", t.text)
}

var twoCharOps = []string{"==", "!=", "<=", ">=", "//"}

const oneCharOps = "<>+-*/%~()[]{},:.|!"

func tokenize(src string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case isIdentStart(rune(c)):
			start := i
			for i < len(src) && isIdentPart(rune(src[i])) {
				i++
			}
			tokens = append(tokens, token{kind: tokIdent, text: src[start:i], pos: start})

		case c >= '0' && c <= '9':
			start := i
			// items.0.name 中的 0 是下标，不吞掉后面的点
			seenDot := len(tokens) > 0 && tokens[len(tokens)-1].kind == tokOp && tokens[len(tokens)-1].text == "."
			for i < len(src) {
				d := src[i]
				if d >= '0' && d <= '9' || d == '_' {
					i++
					continue
				}
				if d == '.' && !seenDot && i+1 < len(src) && src[i+1] >= '0' && src[i+1] <= '9' {
					seenDot = true
					i++
					continue
				}
				break
			}
			tokens = append(tokens, token{kind: tokNumber, text: strings.ReplaceAll(src[start:i], "_", ""), pos: start})

		case c == '\'' || c == '"':
			s, n, err := readString(src[i:])
			if err != nil {
				return nil, fmt.Errorf("position %d: %w", i, err)
			}
			tokens = append(tokens, token{kind: tokString, text: s, pos: i})
			i += n

		default:
			matched := false
			for _, op := range twoCharOps {
				if strings.HasPrefix(src[i:], op) {
					tokens = append(tokens, token{kind: tokOp, text: op, pos: i})
					i += len(op)
					matched = true
					break
				}
			}
			if matched {
				continue
			}
			if strings.IndexByte(oneCharOps, c) >= 0 {
				tokens = append(tokens, token{kind: tokOp, text: string(c), pos: i})
				i++
				continue
			}
			return nil, fmt.Errorf("position %d: unexpected character %q", i, c)
		}
	}
	tokens = append(tokens, token{kind: tokEOF, pos: len(src)})
	return tokens, nil
}

func readString(src string) (string, int, error) {
	quote := src[0]
	var b strings.Builder
	for i := 1; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '\\' && i+1 < len(src):
			i++
			switch src[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(src[i])
			}
		case c == quote:
			return b.String(), i + 1, nil
		default:
			b.WriteByte(c)
		}
	}
	return "", 0, fmt.Errorf("unterminated string")
}

func isIdentStart(r rune) bool {
	return r == '_' || r < unicode.MaxASCII && unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || r >= '0' && r <= '9'
}
