// Package rule implements the declarative clause/combinator engine the
// parser's concrete grammar is built from: literal/predicate leaf
// clauses, sequencing with named bindings, repetition, optional and
// negative-lookahead guards, and furthest-error alternation
// (spec.md §4.E).
//
// A grammar is assembled once, as a graph of Clause values wired together
// by Ref for recursive rules, and then driven repeatedly over different
// token streams.
package rule

import (
	"fmt"

	"github.com/btouchard/nibl/internal/compiler/diag"
	"github.com/btouchard/nibl/internal/compiler/pstream"
	"github.com/btouchard/nibl/internal/compiler/source"
	"github.com/btouchard/nibl/internal/compiler/token"
)

// Parser drives one parse attempt over a token stream, accumulating the
// furthest-reaching candidate error across every alternative tried
// (spec.md §4.D). It carries its own *diag.Logger so a bespoke ClauseFunc
// (a block, a declaration sequence) can report a diagnostic at the exact
// point it gives up, rather than only at the top-level caller; forking
// into a bracket's interior threads the same Logger into the child Parser.
type Parser struct {
	s        *pstream.Stream
	furthest pstream.Furthest
	log      *diag.Logger
}

// NewParser wraps a token stream for clause-driven parsing, reporting
// through log.
func NewParser(s *pstream.Stream, log *diag.Logger) *Parser {
	return &Parser{s: s, log: log}
}

// Log returns the Logger this parser reports through.
func (p *Parser) Log() *diag.Logger { return p.log }

// Error logs a diagnostic at span through the parser's Logger and offers
// the same failure into the furthest-error accumulator, implementing the
// engine's documented error(loc, msg) contract (spec.md §4.D).
func (p *Parser) Error(span source.Span, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	p.log.Errorf(span, "%s", msg)
	p.Offer(pstream.Error{Span: span, Message: msg})
}

func (p *Parser) Peek() (token.Token, bool)            { return p.s.Peek() }
func (p *Parser) PeekAt(ahead int) (token.Token, bool) { return p.s.PeekAt(ahead) }
func (p *Parser) Next() (token.Token, bool)            { return p.s.Next() }
func (p *Parser) Pos() pstream.Pos                     { return p.s.Pos() }
func (p *Parser) Goto(pos pstream.Pos)                 { p.s.Goto(pos) }
func (p *Parser) AtEOF() bool                          { return p.s.AtEOF() }
func (p *Parser) EOFSpan() source.Span                 { return p.s.EOFSpan() }
func (p *Parser) Source() *source.Source               { return p.s.Source() }

// SkipWS returns the position after whitespace/comments. Our streams are
// token-level, so whitespace is already gone by the time a Stream sees
// them; this is here only to keep the engine's documented contract
// complete, and is equivalent to Pos() (spec.md §4.D).
func (p *Parser) SkipWS() pstream.Pos { return p.Pos() }

// Offer records a candidate parse error into the furthest-error
// accumulator for this parse attempt.
func (p *Parser) Offer(err pstream.Error) { p.furthest.Offer(err) }

// Furthest returns the best (furthest-reaching) candidate error recorded
// so far, or nil if none was ever offered.
func (p *Parser) Furthest() *pstream.Error { return p.furthest.Best() }

func (p *Parser) failHere(msg string) pstream.Error {
	tok, ok := p.Peek()
	span := p.EOFSpan()
	if ok {
		span = tok.Span
	}
	return pstream.Error{Span: span, Message: msg}
}

// Vars is the positional-and-named record a Seq clause builds from its
// sub-clauses, per the `name: clause` / `_: clause` / bare-clause binding
// rules of spec.md §4.E.
type Vars struct {
	named map[string]any
	all   []any
}

// Get returns the value bound under name, or nil if nothing was bound
// under that name (including `_:`-bound and dropped sub-clauses).
func (v *Vars) Get(name string) any { return v.named[name] }

// All returns every named- or anonymously-bound sub-clause value, in
// source order, skipping dropped (bare) sub-clauses.
func (v *Vars) All() []any { return v.all }

// Clause is one parseable unit: given a Parser, it either consumes some
// tokens and returns a value with ok=true, or consumes nothing (having
// restored its own position) and returns ok=false.
type Clause interface {
	Parse(p *Parser) (any, bool)
}

// ClauseFunc adapts a plain function to the Clause interface.
type ClauseFunc func(p *Parser) (any, bool)

func (f ClauseFunc) Parse(p *Parser) (any, bool) { return f(p) }

// --- leaf clauses ---

// Word matches a token whose raw spelling is exactly lit (a keyword,
// punctuation mark, or operator), consuming it and returning lit.
func Word(lit string) Clause {
	return ClauseFunc(func(p *Parser) (any, bool) {
		tok, ok := p.Peek()
		if !ok || tok.Raw != lit || tok.Kind == token.Error {
			p.Offer(p.failHere(fmt.Sprintf("expected %q", lit)))
			return nil, false
		}
		p.Next()
		return lit, true
	})
}

// Kind matches any non-Error token of the given kind, consuming it and
// returning the token itself.
func Kind(k token.Kind) Clause {
	return ClauseFunc(func(p *Parser) (any, bool) {
		tok, ok := p.Peek()
		if !ok || tok.Kind != k {
			p.Offer(p.failHere(fmt.Sprintf("expected %s", k)))
			return nil, false
		}
		p.Next()
		return tok, true
	})
}

// Char matches a token whose raw text is the single rune c (used to pick
// apart operator/punctuation tokens at a finer grain than Word), returning
// c.
func Char(c rune) Clause {
	return ClauseFunc(func(p *Parser) (any, bool) {
		tok, ok := p.Peek()
		runes := []rune(tok.Raw)
		if !ok || len(runes) != 1 || runes[0] != c {
			p.Offer(p.failHere(fmt.Sprintf("expected %q", c)))
			return nil, false
		}
		p.Next()
		return c, true
	})
}

// CharRange matches a token whose raw text is a single rune within
// [lo, hi], returning that rune.
func CharRange(lo, hi rune) Clause {
	return ClauseFunc(func(p *Parser) (any, bool) {
		tok, ok := p.Peek()
		runes := []rune(tok.Raw)
		if !ok || len(runes) != 1 || runes[0] < lo || runes[0] > hi {
			p.Offer(p.failHere(fmt.Sprintf("expected character in range %q..%q", lo, hi)))
			return nil, false
		}
		p.Next()
		return runes[0], true
	})
}

// Pred matches a token whose raw text is a single rune satisfying pred,
// returning that rune. label names the predicate in diagnostics.
func Pred(pred func(rune) bool, label string) Clause {
	return ClauseFunc(func(p *Parser) (any, bool) {
		tok, ok := p.Peek()
		runes := []rune(tok.Raw)
		if !ok || len(runes) != 1 || !pred(runes[0]) {
			p.Offer(p.failHere("expected " + label))
			return nil, false
		}
		p.Next()
		return runes[0], true
	})
}

// EOF matches only when the stream has no more tokens, producing nil.
func EOF() Clause {
	return ClauseFunc(func(p *Parser) (any, bool) {
		if !p.AtEOF() {
			p.Offer(p.failHere("expected end of input"))
			return nil, false
		}
		return nil, true
	})
}

// Default always succeeds without consuming input, producing value. It
// implements the `_` default/ignore clause, typically as the final arm
// of an Alt.
func Default(value any) Clause {
	return ClauseFunc(func(p *Parser) (any, bool) { return value, true })
}

// --- combinators ---

// Ref invokes the named rule from g, speculatively: on failure the
// stream position is restored. Rules may reference each other (including
// themselves) by name, so recursive grammars can be built without a
// chicken-and-egg initialization order.
func Ref(g *Grammar, name string) Clause {
	return ClauseFunc(func(p *Parser) (any, bool) {
		start := p.Pos()
		c := g.lookup(name)
		val, ok := c.Parse(p)
		if !ok {
			p.Goto(start)
		}
		return val, ok
	})
}

// Grammar is a registry of named rules, used so rules can reference each
// other (directly or recursively) via Ref before every rule has been
// defined.
type Grammar struct {
	rules map[string]Clause
}

// NewGrammar creates an empty rule registry.
func NewGrammar() *Grammar {
	return &Grammar{rules: make(map[string]Clause)}
}

// Define registers (or replaces) the clause for a named rule.
func (g *Grammar) Define(name string, c Clause) {
	g.rules[name] = c
}

func (g *Grammar) lookup(name string) Clause {
	c, ok := g.rules[name]
	if !ok {
		panic("rule: undefined rule " + name)
	}
	return c
}

// Rep matches c zero or more times, returning the (possibly empty) slice
// of produced values.
func Rep(c Clause) Clause {
	return ClauseFunc(func(p *Parser) (any, bool) {
		var out []any
		for {
			start := p.Pos()
			val, ok := c.Parse(p)
			if !ok {
				p.Goto(start)
				break
			}
			out = append(out, val)
		}
		return out, true
	})
}

// Rep1 matches c one or more times.
func Rep1(c Clause) Clause {
	return ClauseFunc(func(p *Parser) (any, bool) {
		first, ok := c.Parse(p)
		if !ok {
			return nil, false
		}
		rest, _ := Rep(c).Parse(p)
		return append([]any{first}, rest.([]any)...), true
	})
}

// Opt matches c zero or one times, always succeeding. The produced value
// is nil when c didn't match.
func Opt(c Clause) Clause {
	return ClauseFunc(func(p *Parser) (any, bool) {
		start := p.Pos()
		val, ok := c.Parse(p)
		if !ok {
			p.Goto(start)
			return nil, true
		}
		return val, true
	})
}

// Until matches c zero or more times, stopping as soon as stop matches at
// the current lookahead (stop is only peeked, never consumed).
func Until(c, stop Clause) Clause {
	return ClauseFunc(func(p *Parser) (any, bool) {
		var out []any
		for {
			checkpoint := p.Pos()
			if _, ok := stop.Parse(p); ok {
				p.Goto(checkpoint)
				break
			}
			p.Goto(checkpoint)

			start := p.Pos()
			val, ok := c.Parse(p)
			if !ok {
				p.Goto(start)
				break
			}
			out = append(out, val)
		}
		return out, true
	})
}

// Unless matches c only if neg does not match at the current lookahead
// (a negative-lookahead guard); like Opt, it always succeeds, producing
// nil when the guard blocked the match or c itself failed.
func Unless(c, neg Clause) Clause {
	return ClauseFunc(func(p *Parser) (any, bool) {
		checkpoint := p.Pos()
		if _, ok := neg.Parse(p); ok {
			p.Goto(checkpoint)
			return nil, true
		}
		p.Goto(checkpoint)
		return Opt(c).Parse(p)
	})
}

// SeqItem is one element of a Seq: a clause, optionally bound to a name,
// optionally dropped entirely from the resulting Vars.
type SeqItem struct {
	name string
	c    Clause
	drop bool
}

// Bind produces a `name: clause` sequence item: bound under name and
// included in the positional tuple.
func Bind(name string, c Clause) SeqItem { return SeqItem{name: name, c: c} }

// AnonBind produces a `_: clause` sequence item: included in the
// positional tuple but not retrievable by name.
func AnonBind(c Clause) SeqItem { return SeqItem{c: c} }

// Skip produces a bare-clause sequence item: matched and validated, but
// dropped from the resulting Vars entirely.
func Skip(c Clause) SeqItem { return SeqItem{c: c, drop: true} }

// Seq matches every item's clause in order; if any fails, the whole
// sequence fails and the stream is restored to its pre-Seq position.
// On success it returns a *Vars gathering the named and positional
// bindings (spec.md §4.E's "binding syntax inside a group").
func Seq(items ...SeqItem) Clause {
	return ClauseFunc(func(p *Parser) (any, bool) {
		start := p.Pos()
		vars := &Vars{named: make(map[string]any)}
		for _, it := range items {
			val, ok := it.c.Parse(p)
			if !ok {
				p.Goto(start)
				return nil, false
			}
			if it.drop {
				continue
			}
			if it.name != "" {
				vars.named[it.name] = val
			}
			vars.all = append(vars.all, val)
		}
		return vars, true
	})
}

// Alt tries each clause in order, returning the first successful match.
// When every clause fails, Alt fails too; whichever candidate clause
// reached furthest into the input (tracked via Parser.Offer) is what a
// caller should ultimately report (spec.md's furthest-error rule).
func Alt(clauses ...Clause) Clause {
	return ClauseFunc(func(p *Parser) (any, bool) {
		start := p.Pos()
		for _, c := range clauses {
			val, ok := c.Parse(p)
			if ok {
				return val, true
			}
			p.Goto(start)
		}
		return nil, false
	})
}

// Action runs c and, on success, replaces its value with fn(value).
func Action(c Clause, fn func(any) any) Clause {
	return ClauseFunc(func(p *Parser) (any, bool) {
		val, ok := c.Parse(p)
		if !ok {
			return nil, false
		}
		return fn(val), true
	})
}

// ActionVars is Action specialized for a Seq clause: fn receives the
// *Vars record directly instead of an any that must be type-asserted.
func ActionVars(c Clause, fn func(*Vars) any) Clause {
	return Action(c, func(v any) any { return fn(v.(*Vars)) })
}

// Guarded implements `(?guard a b c) => expr`: guard is evaluated purely
// as lookahead (the stream is always rewound after testing it, whether
// or not it matched) and only gates whether body is attempted; on a
// successful body match, action computes the group's result.
func Guarded(guard, body Clause, action func(any) any) Clause {
	return ClauseFunc(func(p *Parser) (any, bool) {
		checkpoint := p.Pos()
		_, guardOK := guard.Parse(p)
		p.Goto(checkpoint)
		if !guardOK {
			return nil, false
		}
		val, ok := body.Parse(p)
		if !ok {
			return nil, false
		}
		return action(val), true
	})
}

// Spanned runs c and passes fn the full span c consumed: from the token
// about to be matched when c started to the last token c actually
// consumed. Several leaf clauses (Word, in particular) return only a bare
// literal with no span of their own, so a grammar action that needs the
// matched span — a literal, a prefix operator, an `if`/`return` keyword —
// wraps its clause in Spanned instead of re-deriving position bookkeeping
// by hand.
func Spanned(c Clause, fn func(source.Span, any) any) Clause {
	return ClauseFunc(func(p *Parser) (any, bool) {
		startTok, _ := p.Peek()
		val, ok := c.Parse(p)
		if !ok {
			return nil, false
		}
		endTok, _ := p.PeekAt(-1)
		return fn(startTok.Span.Merge(endTok.Span), val), true
	})
}

// Bracket pairs a matched bracket token with whatever its tokenized
// interior parsed to.
type Bracket struct {
	Tok   token.Token
	Value any
}

// Inner matches a bracket token of kind k, then drives c over a freshly
// forked Parser (sharing this Parser's Logger) across that bracket's
// pre-tokenized Inner sequence (spec.md §4.C) — the rule-engine-native way
// to recurse into a parenthesized/bracketed/braced run. c must consume the
// forked stream completely; on a short parse, or on c failing outright,
// the forked parser's furthest-reaching candidate error is folded into p's
// own accumulator (so a caller one or more levels up still sees the
// deepest diagnostic) and Inner itself fails without having moved p.
func Inner(k token.Kind, c Clause) Clause {
	return ClauseFunc(func(p *Parser) (any, bool) {
		start := p.Pos()
		tokAny, ok := Kind(k).Parse(p)
		if !ok {
			return nil, false
		}
		tok := tokAny.(token.Token)
		sub := NewParser(pstream.Fork(p.Source(), tok), p.log)
		val, ok := c.Parse(sub)
		if !ok || !sub.AtEOF() {
			if err := sub.Furthest(); err != nil {
				p.Offer(*err)
			} else {
				p.Offer(pstream.Error{Span: sub.EOFSpan(), Message: "unexpected trailing input"})
			}
			p.Goto(start)
			return nil, false
		}
		return Bracket{Tok: tok, Value: val}, true
	})
}
