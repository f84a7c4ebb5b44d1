package rule

import (
	"testing"

	"github.com/btouchard/nibl/internal/compiler/diag"
	"github.com/btouchard/nibl/internal/compiler/lexer"
	"github.com/btouchard/nibl/internal/compiler/pstream"
	"github.com/btouchard/nibl/internal/compiler/source"
	"github.com/btouchard/nibl/internal/compiler/token"
)

func parserFor(t *testing.T, text string) *Parser {
	t.Helper()
	src := source.InMemory("test", text)
	toks := lexer.Tokenize(src, diag.NewLogger())
	return NewParser(pstream.New(src, toks, 0), diag.NewLogger())
}

func TestWordMatchesAndConsumes(t *testing.T) {
	p := parserFor(t, "let x")
	val, ok := Word("let").Parse(p)
	if !ok || val != "let" {
		t.Fatalf("Word(let) = (%v, %v), want (\"let\", true)", val, ok)
	}
	if tok, _ := p.Peek(); tok.Raw != "x" {
		t.Errorf("after Word(let), Peek().Raw = %q, want \"x\"", tok.Raw)
	}
}

func TestWordFailureRestoresPosition(t *testing.T) {
	p := parserFor(t, "let x")
	start := p.Pos()
	if _, ok := Word("fun").Parse(p); ok {
		t.Fatalf("Word(fun) should fail against 'let'")
	}
	if p.Pos() != start {
		t.Errorf("Word failure should not move the stream")
	}
}

func TestKindMatches(t *testing.T) {
	p := parserFor(t, "42")
	val, ok := Kind(token.Int).Parse(p)
	if !ok {
		t.Fatalf("Kind(Int) should match")
	}
	tok := val.(token.Token)
	if tok.IntValue != 42 {
		t.Errorf("IntValue = %d, want 42", tok.IntValue)
	}
}

func TestRepAndRep1(t *testing.T) {
	p := parserFor(t, "a a a b")
	vals, _ := Rep(Word("a")).Parse(p)
	if got := len(vals.([]any)); got != 3 {
		t.Errorf("Rep(a) matched %d times, want 3", got)
	}

	p2 := parserFor(t, "b")
	vals2, ok := Rep1(Word("a")).Parse(p2)
	if ok {
		t.Fatalf("Rep1(a) should fail on zero matches, got %v", vals2)
	}
}

func TestOptAlwaysSucceeds(t *testing.T) {
	p := parserFor(t, "b")
	val, ok := Opt(Word("a")).Parse(p)
	if !ok || val != nil {
		t.Errorf("Opt(a) on non-a = (%v, %v), want (nil, true)", val, ok)
	}
	if tok, _ := p.Peek(); tok.Raw != "b" {
		t.Errorf("Opt should not consume on failure, next = %q", tok.Raw)
	}
}

func TestSeqBindingsAndFailureRestores(t *testing.T) {
	p := parserFor(t, "let x = 1")
	start := p.Pos()
	seq := Seq(
		Skip(Word("let")),
		Bind("name", Kind(token.Identifier)),
		Skip(Word("=")),
		Bind("value", Kind(token.Int)),
	)
	val, ok := seq.Parse(p)
	if !ok {
		t.Fatalf("Seq should match")
	}
	vars := val.(*Vars)
	name := vars.Get("name").(token.Token)
	if name.Raw != "x" {
		t.Errorf("bound name = %q, want \"x\"", name.Raw)
	}
	if len(vars.All()) != 2 {
		t.Errorf("All() has %d entries, want 2 (let/= should be dropped)", len(vars.All()))
	}

	p2 := parserFor(t, "let x")
	startPos := p2.Pos()
	if _, ok := seq.Parse(p2); ok {
		t.Fatalf("Seq should fail on incomplete input")
	}
	if p2.Pos() != startPos {
		t.Errorf("failed Seq should restore position")
	}
	_ = start
}

func TestAltPicksFirstMatch(t *testing.T) {
	p := parserFor(t, "fun")
	alt := Alt(Word("let"), Word("fun"), Word("if"))
	val, ok := alt.Parse(p)
	if !ok || val != "fun" {
		t.Errorf("Alt = (%v, %v), want (\"fun\", true)", val, ok)
	}
}

func TestAltFailsWithFurthestErrorRecorded(t *testing.T) {
	p := parserFor(t, "xyz")
	alt := Alt(Word("let"), Word("fun"))
	if _, ok := alt.Parse(p); ok {
		t.Fatalf("Alt should fail when nothing matches")
	}
	if p.Furthest() == nil {
		t.Errorf("a failed Alt should leave a furthest-error candidate")
	}
}

func TestGrammarRefSupportsRecursion(t *testing.T) {
	g := NewGrammar()
	// list := "begin" (list | "x")* "end"
	// Uses bare words rather than real brackets: the lexer pre-groups
	// balanced ()/[]/{} into a single token, so recursive descent over
	// bracketed structure happens by forking into Inner (component D),
	// not by matching "(" / ")" as ordinary literal clauses.
	g.Define("item", Alt(Ref(g, "list"), Word("x")))
	g.Define("list", Seq(
		Skip(Word("begin")),
		Bind("items", Rep(Ref(g, "item"))),
		Skip(Word("end")),
	))

	p := parserFor(t, "begin x x end")
	val, ok := Ref(g, "list").Parse(p)
	if !ok {
		t.Fatalf("recursive grammar should match")
	}
	items := val.(*Vars).Get("items").([]any)
	if len(items) != 2 {
		t.Errorf("matched %d items, want 2", len(items))
	}
}

func TestUntilStopsAtLookahead(t *testing.T) {
	p := parserFor(t, "a a a b")
	vals, _ := Until(Word("a"), Word("b")).Parse(p)
	if got := len(vals.([]any)); got != 3 {
		t.Errorf("Until matched %d times, want 3", got)
	}
	if tok, _ := p.Peek(); tok.Raw != "b" {
		t.Errorf("Until should leave the stop token unconsumed, next = %q", tok.Raw)
	}
}

func TestUnlessBlocksOnNegativeLookahead(t *testing.T) {
	p := parserFor(t, "else")
	val, ok := Unless(Word("else"), Word("else")).Parse(p)
	if !ok || val != nil {
		t.Errorf("Unless should succeed with nil when the guard matches, got (%v, %v)", val, ok)
	}
}

func TestActionTransformsResult(t *testing.T) {
	p := parserFor(t, "42")
	doubled := Action(Kind(token.Int), func(v any) any {
		return v.(token.Token).IntValue * 2
	})
	val, ok := doubled.Parse(p)
	if !ok || val != int64(84) {
		t.Errorf("Action result = (%v, %v), want (84, true)", val, ok)
	}
}

func TestSpannedCapturesFullMatchedRange(t *testing.T) {
	p := parserFor(t, "- 42")
	clause := Spanned(Seq(
		Skip(Word("-")),
		Bind("val", Kind(token.Int)),
	), func(sp source.Span, v any) any {
		return sp.Text()
	})
	val, ok := clause.Parse(p)
	if !ok {
		t.Fatalf("Spanned(Seq(...)) should match")
	}
	if got := val.(string); got != "- 42" {
		t.Errorf("Spanned span text = %q, want %q", got, "- 42")
	}
}

func TestInnerParsesBracketInterior(t *testing.T) {
	p := parserFor(t, "(a b)")
	clause := Inner(token.Parentheses, Rep(Word("a")))
	// Only "a" repeats inside; "b" is left over, so Inner must fail and
	// report the trailing-input error rather than silently truncate.
	if _, ok := clause.Parse(p); ok {
		t.Fatalf("Inner should fail when the inner clause doesn't fully consume the bracket")
	}
	if p.Furthest() == nil {
		t.Errorf("a failed Inner should leave a furthest-error candidate")
	}
}

func TestInnerSucceedsOnFullConsumption(t *testing.T) {
	p := parserFor(t, "(a a)")
	clause := Inner(token.Parentheses, Rep(Word("a")))
	val, ok := clause.Parse(p)
	if !ok {
		t.Fatalf("Inner should succeed when the inner clause consumes the whole bracket")
	}
	bracket := val.(Bracket)
	if got := len(bracket.Value.([]any)); got != 2 {
		t.Errorf("Inner matched %d items, want 2", got)
	}
}
