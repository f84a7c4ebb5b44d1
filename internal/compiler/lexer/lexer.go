// Package lexer turns a source's text into a flat stream of tokens,
// recursively pre-grouping balanced ()/[]/{} runs into single bracket
// tokens that own their tokenized interior (spec.md §4.C).
//
// The tokenizer never aborts: every character either starts a well-formed
// token or becomes an Error token, so a single pass always terminates with
// a token for every byte of significant input.
package lexer

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/btouchard/nibl/internal/compiler/diag"
	"github.com/btouchard/nibl/internal/compiler/source"
	"github.com/btouchard/nibl/internal/compiler/token"
)

// Lexer is a cursor-driven state machine producing tokens greedily, one at
// a time, from a single Source.
type Lexer struct {
	cur *source.Cursor
	log *diag.Logger
}

// New creates a lexer over src, reporting lexical warnings (e.g. invalid
// escape sequences) through log. log may be nil to discard them.
func New(src *source.Source, log *diag.Logger) *Lexer {
	return &Lexer{cur: source.NewCursor(src), log: log}
}

// Tokenize drives a fresh Lexer over src to completion and returns every
// top-level token, with bracketed runs grouped recursively.
func Tokenize(src *source.Source, log *diag.Logger) []token.Token {
	l := New(src, log)
	var out []token.Token
	for {
		tok, ok := l.Next()
		if !ok {
			break
		}
		out = append(out, tok)
	}
	return out
}

func (l *Lexer) span(start int) source.Span {
	return source.NewSpan(l.cur.Source(), start, l.cur.Pos())
}

// skipWhitespaceAndComments consumes runs of whitespace and `//` line
// comments between tokens.
func (l *Lexer) skipWhitespaceAndComments() {
	for {
		if r, ok := l.cur.Peek(); ok && unicode.IsSpace(r) {
			l.cur.Next()
			continue
		}
		if r, ok := l.cur.Peek(); ok && r == '/' {
			if r2, ok2 := l.cur.PeekAt(1); ok2 && r2 == '/' {
				l.cur.Next()
				l.cur.Next()
				for {
					c, ok := l.cur.Next()
					if !ok || c == '\n' {
						break
					}
				}
				continue
			}
		}
		break
	}
}

func isXIDStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

func isXIDContinue(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// Next produces the single next token, recursing into bracket groups as
// needed. The second return value is false only at true end of input.
func (l *Lexer) Next() (token.Token, bool) {
	l.skipWhitespaceAndComments()
	start := l.cur.Pos()
	r, ok := l.cur.Peek()
	if !ok {
		return token.Token{}, false
	}

	switch {
	case isXIDStart(r):
		return l.lexIdentifier(start), true
	case unicode.IsDigit(r):
		return l.lexNumber(start), true
	case r == '"':
		return l.lexString(start), true
	case r == '(' || r == '[' || r == '{':
		return l.lexBracket(start, r), true
	}

	if tok, ok := l.lexChainedPunct(start, r); ok {
		return tok, true
	}
	if tok, ok := l.lexSingleCharPunct(start, r); ok {
		return tok, true
	}
	if tok, ok := l.lexArrow(start, r); ok {
		return tok, true
	}
	if token.IsOperatorChar(r) {
		return l.lexOperator(start), true
	}

	l.cur.Next()
	return token.Token{
		Kind:        token.Error,
		Raw:         string(r),
		Span:        l.span(start),
		ErrorReason: fmt.Sprintf("invalid character %q", r),
	}, true
}

func (l *Lexer) lexIdentifier(start int) token.Token {
	var b strings.Builder
	for {
		r, ok := l.cur.Peek()
		if !ok || !isXIDContinue(r) {
			break
		}
		l.cur.Next()
		b.WriteRune(r)
	}
	lexeme := b.String()
	kind, reason := token.IdentKind(lexeme)
	return token.Token{Kind: kind, Raw: lexeme, Span: l.span(start), ErrorReason: reason}
}

func (l *Lexer) lexNumber(start int) token.Token {
	var b strings.Builder
	for {
		r, ok := l.cur.Peek()
		if !ok || !unicode.IsDigit(r) {
			break
		}
		l.cur.Next()
		b.WriteRune(r)
	}

	isFloat := false
	if r, ok := l.cur.Peek(); ok && r == '.' {
		if r2, ok2 := l.cur.PeekAt(1); ok2 && unicode.IsDigit(r2) {
			isFloat = true
			l.cur.Next()
			b.WriteByte('.')
			for {
				r, ok := l.cur.Peek()
				if !ok || !unicode.IsDigit(r) {
					break
				}
				l.cur.Next()
				b.WriteRune(r)
			}
		}
	}

	raw := b.String()
	if isFloat {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return token.Token{Kind: token.Error, Raw: raw, Span: l.span(start),
				ErrorReason: fmt.Sprintf("invalid float literal %q", raw)}
		}
		return token.Token{Kind: token.Float, Raw: raw, Span: l.span(start), FloatValue: f}
	}
	i, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return token.Token{Kind: token.Error, Raw: raw, Span: l.span(start),
			ErrorReason: fmt.Sprintf("invalid integer literal %q", raw)}
	}
	return token.Token{Kind: token.Int, Raw: raw, Span: l.span(start), IntValue: i}
}

var escapeTable = map[rune]rune{
	'n': '\n', 't': '\t', '0': 0, 'r': '\r', '\\': '\\', '"': '"', '\'': '\'',
}

func (l *Lexer) lexString(start int) token.Token {
	l.cur.Next() // consume opening quote
	var decoded strings.Builder
	for {
		c, ok := l.cur.Next()
		if !ok {
			raw := l.cur.Source().Text()[start:l.cur.Pos()]
			return token.Token{Kind: token.Error, Raw: raw, Span: l.span(start),
				ErrorReason: "unclosed string literal"}
		}
		if c == '"' {
			break
		}
		if c == '\\' {
			escStart := l.cur.Pos() - 1
			next, ok := l.cur.Next()
			if !ok {
				if l.log != nil {
					l.log.Warnf(l.span(escStart), "expected escape sequence")
				}
				continue // the next read hits end of input: unclosed string
			}
			if replacement, known := escapeTable[next]; known {
				decoded.WriteRune(replacement)
			} else {
				if l.log != nil {
					l.log.Warnf(l.span(escStart), "invalid escape sequence '\\%c'", next)
				}
				decoded.WriteRune(next)
			}
			continue
		}
		decoded.WriteRune(c)
	}
	raw := l.cur.Source().Text()[start:l.cur.Pos()]
	return token.Token{
		Kind:        token.String,
		Raw:         raw,
		Span:        l.span(start),
		StringValue: norm.NFC.String(decoded.String()),
	}
}

// lexChainedPunct matches runs of `.` or `:` (`::`, `...`) as a single
// punctuation token.
func (l *Lexer) lexChainedPunct(start int, r rune) (token.Token, bool) {
	if r != '.' && r != ':' {
		return token.Token{}, false
	}
	for {
		c, ok := l.cur.Peek()
		if !ok || c != r {
			break
		}
		l.cur.Next()
	}
	return token.Token{Kind: token.Punctuation, Raw: l.cur.Source().Text()[start:l.cur.Pos()], Span: l.span(start)}, true
}

func (l *Lexer) lexSingleCharPunct(start int, r rune) (token.Token, bool) {
	switch r {
	case ',', ';', '@':
		l.cur.Next()
		return token.Token{Kind: token.Punctuation, Raw: string(r), Span: l.span(start)}, true
	case ')', ']', '}':
		// Bracket closers are only consumed by lexBracket; reaching here at
		// top level means an unmatched closer, surfaced as an error token.
		l.cur.Next()
		return token.Token{Kind: token.Error, Raw: string(r), Span: l.span(start),
			ErrorReason: fmt.Sprintf("unmatched closing %q", r)}, true
	default:
		return token.Token{}, false
	}
}

func (l *Lexer) lexArrow(start int, r rune) (token.Token, bool) {
	if r != '-' && r != '=' {
		return token.Token{}, false
	}
	if r2, ok := l.cur.PeekAt(1); !ok || r2 != '>' {
		return token.Token{}, false
	}
	l.cur.Next()
	l.cur.Next()
	return token.Token{Kind: token.Punctuation, Raw: string(r) + ">", Span: l.span(start)}, true
}

func (l *Lexer) lexOperator(start int) token.Token {
	var b strings.Builder
	for {
		r, ok := l.cur.Peek()
		if !ok || !token.IsOperatorChar(r) {
			break
		}
		l.cur.Next()
		b.WriteRune(r)
	}
	return token.Token{Kind: token.Operator, Raw: b.String(), Span: l.span(start)}
}

var closingFor = map[rune]rune{'(': ')', '[': ']', '{': '}'}
var bracketKind = map[rune]token.Kind{'(': token.Parentheses, '[': token.Brackets, '{': token.Braces}
var bracketName = map[rune]string{'(': "parenthesis", '[': "bracket", '{': "brace"}

// lexBracket recursively tokenizes the interior of a `(`/`[`/`{` run until
// the matching closer (or end of input) is reached.
func (l *Lexer) lexBracket(start int, opening rune) token.Token {
	l.cur.Next() // consume opener
	want := closingFor[opening]

	var inner []token.Token
	for {
		l.skipWhitespaceAndComments()
		if r, ok := l.cur.Peek(); ok && r == want {
			l.cur.Next()
			return token.Token{
				Kind:  bracketKind[opening],
				Raw:   l.cur.Source().Text()[start:l.cur.Pos()],
				Span:  l.span(start),
				Inner: inner,
			}
		}
		if l.cur.AtEOF() {
			return token.Token{
				Kind:        token.Error,
				Raw:         l.cur.Source().Text()[start:l.cur.Pos()],
				Span:        l.span(start),
				ErrorReason: fmt.Sprintf("unclosed %s", bracketName[opening]),
			}
		}
		tok, _ := l.Next()
		inner = append(inner, tok)
	}
}
