// Package nibl is the library facade for the compiler front-end: the two
// entry points spec.md §6 names, "tokenize source with grammar and logger
// → token sequence" and "parse token sequence with grammar → AST", plus a
// Check convenience wrapping the type checker over a parsed file. There is
// no CLI or HTTP surface (spec.md §6: "CLI surface: out of scope").
package nibl

import (
	"github.com/btouchard/nibl/internal/compiler/ast"
	"github.com/btouchard/nibl/internal/compiler/check"
	"github.com/btouchard/nibl/internal/compiler/diag"
	"github.com/btouchard/nibl/internal/compiler/lexer"
	"github.com/btouchard/nibl/internal/compiler/parser"
	"github.com/btouchard/nibl/internal/compiler/source"
	"github.com/btouchard/nibl/internal/compiler/token"
)

// Logger is re-exported so callers need not import the diag package
// directly just to construct one.
type Logger = diag.Logger

// NewLogger creates an empty diagnostics logger.
func NewLogger() *Logger {
	return diag.NewLogger()
}

// NewSource wraps text as an in-memory Source identified by name.
func NewSource(name, text string) *source.Source {
	return source.InMemory(name, text)
}

// Tokenize lexes src into a token sequence, reporting lexical errors
// (unclosed strings, invalid escapes, unclosed brackets, reserved-keyword
// usage) through log. Balanced ()/[]/{} runs are returned as a single
// bracket-kind token owning its fully-tokenized interior.
func Tokenize(src *source.Source, log *Logger) []token.Token {
	toks := lexer.Tokenize(src, log)
	var report func([]token.Token)
	report = func(ts []token.Token) {
		for _, t := range ts {
			if t.Kind == token.Error {
				log.Errorf(t.Span, "%s", t.ErrorReason)
			}
			report(t.Inner)
		}
	}
	if log != nil {
		report(toks)
	}
	return toks
}

// Parse parses an already-tokenized sequence into a File. Parse errors,
// including the furthest-reaching speculative failure when no top-level
// alternative matches, are reported through log.
func Parse(src *source.Source, toks []token.Token, log *Logger) *ast.File {
	return parser.ParseTokens(src, toks, log)
}

// TokenizeAndParse runs both stages in sequence, the common case for a
// caller that has no use for the intermediate token sequence.
func TokenizeAndParse(src *source.Source, log *Logger) *ast.File {
	return parser.Parse(src, log)
}

// Check type-checks file in place: every node's Meta.Type is resolved and
// written exactly once, and type/name-resolution diagnostics are reported
// through log.
func Check(file *ast.File, log *Logger) {
	check.NewChecker(log).CheckFile(file)
}

// Compile is the full pipeline: tokenize, parse, and check one source in
// one call, for callers that don't need to inspect the intermediate token
// sequence.
func Compile(src *source.Source, log *Logger) *ast.File {
	file := TokenizeAndParse(src, log)
	Check(file, log)
	return file
}
