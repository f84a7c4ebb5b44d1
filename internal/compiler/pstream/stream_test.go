package pstream

import (
	"testing"

	"github.com/btouchard/nibl/internal/compiler/diag"
	"github.com/btouchard/nibl/internal/compiler/lexer"
	"github.com/btouchard/nibl/internal/compiler/source"
)

func streamFor(t *testing.T, text string) *Stream {
	t.Helper()
	src := source.InMemory("test", text)
	toks := lexer.Tokenize(src, diag.NewLogger())
	return New(src, toks, 0)
}

func TestPeekNextAdvance(t *testing.T) {
	s := streamFor(t, "a b c")
	first, ok := s.Peek()
	if !ok || first.Raw != "a" {
		t.Fatalf("Peek = %+v, %v", first, ok)
	}
	if tok, _ := s.Next(); tok.Raw != "a" {
		t.Errorf("Next = %q, want a", tok.Raw)
	}
	if tok, _ := s.Peek(); tok.Raw != "b" {
		t.Errorf("Peek after Next = %q, want b", tok.Raw)
	}
}

func TestPeekAt(t *testing.T) {
	s := streamFor(t, "a b c")
	tok, ok := s.PeekAt(2)
	if !ok || tok.Raw != "c" {
		t.Errorf("PeekAt(2) = %+v, %v, want c", tok, ok)
	}
	if _, ok := s.PeekAt(5); ok {
		t.Errorf("PeekAt out of range should fail")
	}
}

func TestGotoRestoresPosition(t *testing.T) {
	s := streamFor(t, "a b c")
	start := s.Pos()
	s.Next()
	s.Next()
	s.Goto(start)
	if tok, _ := s.Peek(); tok.Raw != "a" {
		t.Errorf("after Goto(start), Peek = %q, want a", tok.Raw)
	}
}

func TestAtEOF(t *testing.T) {
	s := streamFor(t, "a")
	if s.AtEOF() {
		t.Fatalf("should not be at EOF before consuming")
	}
	s.Next()
	if !s.AtEOF() {
		t.Errorf("should be at EOF after consuming the only token")
	}
}

func TestEOFSpanAnchorsAfterLastToken(t *testing.T) {
	s := streamFor(t, "ab")
	s.Next()
	sp := s.EOFSpan()
	if sp.Start != sp.End || sp.Start != 2 {
		t.Errorf("EOFSpan = %+v, want zero-width span at offset 2", sp)
	}
}

func TestFurthestPrefersLongerReachAndNewerTie(t *testing.T) {
	var f Furthest
	if f.Best() != nil {
		t.Fatalf("empty Furthest should have no Best")
	}
	src := source.InMemory("test", "abcdef")
	short := Error{Span: source.NewSpan(src, 0, 2), Message: "short"}
	long := Error{Span: source.NewSpan(src, 0, 4), Message: "long"}
	tie := Error{Span: source.NewSpan(src, 1, 4), Message: "tie"}

	f.Offer(short)
	f.Offer(long)
	if f.Best().Message != "long" {
		t.Errorf("Best = %q, want long (furthest reach)", f.Best().Message)
	}
	f.Offer(tie)
	if f.Best().Message != "tie" {
		t.Errorf("Best = %q, want tie (equal reach, newer wins)", f.Best().Message)
	}
	f.Offer(short)
	if f.Best().Message != "tie" {
		t.Errorf("Best = %q, want tie to survive a shorter-reach offer", f.Best().Message)
	}
}

func TestForkStartsAfterOpeningBracket(t *testing.T) {
	s := streamFor(t, "(a b)")
	paren, ok := s.Next()
	if !ok {
		t.Fatalf("expected a bracket token")
	}
	inner := Fork(s.src, paren)
	tok, ok := inner.Peek()
	if !ok || tok.Raw != "a" {
		t.Fatalf("forked stream should start at the first inner token, got %+v, %v", tok, ok)
	}
}
