// Package pstream implements the token stream the parser engine drives:
// single-token lookahead, branchable checkpoints for backtracking, and a
// furthest-error accumulator for "one of these alternatives" diagnostics
// (spec.md §4.D).
package pstream

import (
	"github.com/btouchard/nibl/internal/compiler/source"
	"github.com/btouchard/nibl/internal/compiler/token"
)

// Pos is an opaque, totally-ordered position within one Stream. Positions
// from different streams must never be compared.
type Pos int

// Stream is a positioned sequence of tokens with single-token lookahead and
// save/restore checkpoints. A Stream never mutates the underlying token
// slice; forking into a bracket token's Inner creates a new Stream.
type Stream struct {
	src    *source.Source
	tokens []token.Token
	pos    int
	// endOffset is the byte offset immediately after the most recently
	// yielded token, used to synthesize an end-of-input span.
	endOffset int
}

// New creates a stream over a flat token slice. start is the byte offset at
// which this slice begins (0 for a top-level stream; the opening bracket's
// span end for a stream forked over a bracket token's Inner).
func New(src *source.Source, tokens []token.Token, start int) *Stream {
	return &Stream{src: src, tokens: tokens, endOffset: start}
}

// Fork creates a child stream over a bracket token's Inner sequence. The
// child starts immediately after the bracket's opening delimiter.
func Fork(src *source.Source, bracket token.Token) *Stream {
	innerStart := bracket.Span.Start + 1
	return New(src, bracket.Inner, innerStart)
}

// Peek returns the next token without consuming it, or ok=false at end of
// stream.
func (s *Stream) Peek() (token.Token, bool) {
	if s.pos >= len(s.tokens) {
		return token.Token{}, false
	}
	return s.tokens[s.pos], true
}

// PeekAt returns the token `ahead` positions past the current one, 0 being
// equivalent to Peek.
func (s *Stream) PeekAt(ahead int) (token.Token, bool) {
	i := s.pos + ahead
	if i < 0 || i >= len(s.tokens) {
		return token.Token{}, false
	}
	return s.tokens[i], true
}

// Next consumes and returns the next token.
func (s *Stream) Next() (token.Token, bool) {
	tok, ok := s.Peek()
	if !ok {
		return token.Token{}, false
	}
	s.pos++
	s.endOffset = tok.Span.End
	return tok, true
}

// Pos returns a checkpoint for the stream's current position.
func (s *Stream) Pos() Pos {
	return Pos(s.pos)
}

// Goto restores the stream to a previously saved position. It is
// idempotent: Goto(Pos()) is always a no-op, and repeated Gotos to the same
// Pos behave identically.
func (s *Stream) Goto(p Pos) {
	s.pos = int(p)
}

// AtEOF reports whether every token has been consumed.
func (s *Stream) AtEOF() bool {
	return s.pos >= len(s.tokens)
}

// EOFSpan synthesizes a zero-width span immediately after the most recently
// yielded token, used to anchor diagnostics that fire at end-of-input (e.g.
// "expected ')', got end of input").
func (s *Stream) EOFSpan() source.Span {
	return source.NewSpan(s.src, s.endOffset, s.endOffset)
}

// Source returns the source this stream's tokens were lexed from.
func (s *Stream) Source() *source.Source {
	return s.src
}

// Furthest is the single-slot furthest-error accumulator used by the
// one-of/alternation combinator: among several candidate errors, it keeps
// only the one whose span ends furthest along the input, with ties broken
// in favor of the most recently offered candidate (spec.md §4.D, §9).
type Furthest struct {
	err *Error
}

// Error is a candidate parse error: a span and a message. Alternation
// compares reach by the span's end offset.
type Error struct {
	Span    source.Span
	Message string
}

// Offer records a candidate error. If the accumulator is empty, or err's
// span ends strictly further than the current winner's, err replaces it.
// On an exact tie, the newer candidate wins (later alternatives beat
// earlier ones at equal range-end).
func (f *Furthest) Offer(err Error) {
	if f.err == nil || err.Span.End >= f.err.Span.End {
		f.err = &err
	}
}

// Best returns the winning candidate, or nil if none was ever offered.
func (f *Furthest) Best() *Error {
	return f.err
}
