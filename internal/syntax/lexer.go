package syntax

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokLifetime
	tokLiteral
	tokPunct
)

type token struct {
	kind tokenKind
	text string
	pos  int
	end  int
}

func (t token) is(punct string) bool { return t.kind == tokPunct && t.text == punct }

func (t token) isIdent(name string) bool { return t.kind == tokIdent && t.text == name }

func (t token) isEOF() bool { return t.kind == tokEOF }

// SyntaxError reports a lexing or parsing failure at a byte offset.
type SyntaxError struct {
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("offset %d: %s", e.Offset, e.Msg)
}

// Multi-character punctuation recognized by the lexer. A lone `>` is always
// its own token so nested generic lists close correctly.
var puncts2 = map[string]bool{"::": true, "->": true, "=>": true, "..": true, "==": true}

func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		r, size := utf8.DecodeRuneInString(src[i:])
		switch {
		case unicode.IsSpace(r):
			i += size
		case r == '/' && i+1 < len(src) && src[i+1] == '/':
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case r == '/' && i+1 < len(src) && src[i+1] == '*':
			end := indexFrom(src, "*/", i+2)
			if end < 0 {
				return nil, &SyntaxError{Offset: i, Msg: "unterminated block comment"}
			}
			i = end + 2
		case r == 'r' && i+1 < len(src) && src[i+1] == '#' && i+2 < len(src) && isIdentStart(rune(src[i+2])):
			start := i
			i += 2
			for i < len(src) {
				r2, s2 := utf8.DecodeRuneInString(src[i:])
				if !isIdentContinue(r2) {
					break
				}
				i += s2
			}
			toks = append(toks, token{kind: tokIdent, text: src[start+2 : i], pos: start, end: i})
		case isIdentStart(r):
			start := i
			for i < len(src) {
				r2, s2 := utf8.DecodeRuneInString(src[i:])
				if !isIdentContinue(r2) {
					break
				}
				i += s2
			}
			toks = append(toks, token{kind: tokIdent, text: src[start:i], pos: start, end: i})
		case r == '\'':
			start := i
			// char literal 'x' or '\n', otherwise a lifetime
			if i+2 < len(src) && src[i+2] == '\'' {
				i += 3
				toks = append(toks, token{kind: tokLiteral, text: src[start:i], pos: start, end: i})
				continue
			}
			if i+1 < len(src) && src[i+1] == '\\' {
				end := indexFrom(src, "'", i+2)
				if end < 0 {
					return nil, &SyntaxError{Offset: i, Msg: "unterminated char literal"}
				}
				i = end + 1
				toks = append(toks, token{kind: tokLiteral, text: src[start:i], pos: start, end: i})
				continue
			}
			i++
			for i < len(src) {
				r2, s2 := utf8.DecodeRuneInString(src[i:])
				if !isIdentContinue(r2) {
					break
				}
				i += s2
			}
			toks = append(toks, token{kind: tokLifetime, text: src[start:i], pos: start, end: i})
		case r == '"':
			start := i
			i++
			for i < len(src) && src[i] != '"' {
				if src[i] == '\\' {
					i++
				}
				i++
			}
			if i >= len(src) {
				return nil, &SyntaxError{Offset: start, Msg: "unterminated string literal"}
			}
			i++
			toks = append(toks, token{kind: tokLiteral, text: src[start:i], pos: start, end: i})
		case r >= '0' && r <= '9':
			start := i
			for i < len(src) && (isIdentContinue(rune(src[i])) || src[i] == '.') {
				if src[i] == '.' && (i+1 >= len(src) || src[i+1] < '0' || src[i+1] > '9') {
					break
				}
				i++
			}
			toks = append(toks, token{kind: tokLiteral, text: src[start:i], pos: start, end: i})
		default:
			if i+1 < len(src) && puncts2[src[i:i+2]] {
				toks = append(toks, token{kind: tokPunct, text: src[i : i+2], pos: i, end: i + 2})
				i += 2
				continue
			}
			toks = append(toks, token{kind: tokPunct, text: src[i : i+size], pos: i, end: i + size})
			i += size
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(src), end: len(src)})
	return toks, nil
}

func indexFrom(s, sub string, from int) int {
	for i := from; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentContinue(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
