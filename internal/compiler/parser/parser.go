// Package parser implements the concrete grammar for declarations, types,
// and expressions as a graph of rule-engine clauses (spec.md §4.E):
// declarations and binary/unary/call expressions are wired together with
// rule.Seq/Alt/Ref/Rep/Opt/Action/Bind so the rule model (component E)
// actually drives the token stream (component D) to build the AST
// (component F), rather than a hand-rolled switch reimplementing it
// alongside. Bracketed constructs (parameter lists, call arguments,
// blocks, grouping parens) fork a fresh sub-parser over the bracket
// token's pre-tokenized Inner via rule.Inner (spec.md §4.C, §4.D).
package parser

import (
	"github.com/btouchard/nibl/internal/compiler/ast"
	"github.com/btouchard/nibl/internal/compiler/diag"
	"github.com/btouchard/nibl/internal/compiler/lexer"
	"github.com/btouchard/nibl/internal/compiler/pstream"
	"github.com/btouchard/nibl/internal/compiler/rule"
	"github.com/btouchard/nibl/internal/compiler/source"
	"github.com/btouchard/nibl/internal/compiler/token"
)

// Parse lexes src and parses it to completion, returning the resulting
// file. Parse errors (including the furthest-reaching speculative
// failure, when nothing at top level matches) are reported through log;
// a best-effort partial File is still returned so a caller can inspect
// whatever did parse.
func Parse(src *source.Source, log *diag.Logger) *ast.File {
	return ParseTokens(src, lexer.Tokenize(src, log), log)
}

// ParseTokens parses an already-lexed token sequence. This is the second
// of the two library entry points (spec.md §6: "parse token sequence with
// grammar and logger → AST"); the grammar itself is grammar, a fixed
// rule.Grammar compiled in at package init (Design Notes option (b): a
// library of combinator values), rather than a runtime-supplied JSON
// document.
func ParseTokens(src *source.Source, toks []token.Token, log *diag.Logger) *ast.File {
	p := rule.NewParser(pstream.New(src, toks, 0), log)

	declsAny, _ := rule.Ref(grammar, "declSeq").Parse(p)
	decls, _ := declsAny.([]ast.Decl)

	if !p.AtEOF() {
		if err := p.Furthest(); err != nil {
			log.Errorf(err.Span, "%s", err.Message)
		} else {
			log.Errorf(p.EOFSpan(), "unexpected trailing input")
		}
	}
	return &ast.File{Decls: decls, Sp: source.NewSpan(src, 0, len(src.Text()))}
}
