package parser

import (
	"github.com/btouchard/nibl/internal/compiler/ast"
	"github.com/btouchard/nibl/internal/compiler/pstream"
	"github.com/btouchard/nibl/internal/compiler/rule"
	"github.com/btouchard/nibl/internal/compiler/source"
	"github.com/btouchard/nibl/internal/compiler/token"
)

// grammar is the fixed rule.Grammar the concrete syntax is built from,
// assembled once at package init as a graph of Clause values wired
// together by rule.Ref (spec.md §4.E). ParseTokens drives it by asking
// for the "declSeq" rule.
var grammar = buildGrammar()

func buildGrammar() *rule.Grammar {
	g := rule.NewGrammar()

	// --- type references ---

	typeName := rule.Alt(rule.Kind(token.Identifier), rule.Kind(token.Keyword))
	g.Define("namedTypeRef", rule.Action(typeName, func(v any) any {
		tok := v.(token.Token)
		return ast.TypeRef(&ast.NamedTypeRef{Name: tok.Raw, Sp: tok.Span})
	}))

	g.Define("functionTypeRef", rule.Spanned(rule.Seq(
		rule.Skip(rule.Word("fun")),
		rule.Bind("params", rule.Inner(token.Parentheses, sepBy(rule.Ref(g, "type")))),
		rule.Bind("ret", rule.Opt(rule.Seq(
			rule.Skip(rule.Word("->")),
			rule.Bind("ty", rule.Ref(g, "type")),
		))),
	), func(sp source.Span, v any) any {
		vars := v.(*rule.Vars)
		params := toTypeRefs(vars.Get("params").(rule.Bracket).Value.([]any))
		var ret ast.TypeRef
		if retAny := vars.Get("ret"); retAny != nil {
			ret = retAny.(*rule.Vars).Get("ty").(ast.TypeRef)
		}
		return ast.TypeRef(&ast.FunctionTypeRef{Params: params, Ret: ret, Sp: sp})
	}))

	// "fun" must be tried first: it is itself a strict keyword, so
	// namedTypeRef (which also accepts any Keyword token) would otherwise
	// swallow it as a (wrong) named type called "fun".
	g.Define("type", rule.Alt(rule.Ref(g, "functionTypeRef"), rule.Ref(g, "namedTypeRef")))

	// --- declarations ---

	g.Define("funParam", rule.Spanned(rule.Seq(
		rule.Bind("name", rule.Kind(token.Identifier)),
		rule.Skip(rule.Word(":")),
		rule.Bind("type", rule.Ref(g, "type")),
	), func(sp source.Span, v any) any {
		vars := v.(*rule.Vars)
		name := vars.Get("name").(token.Token)
		return &ast.FunParam{Name: name.Raw, Type: vars.Get("type").(ast.TypeRef), Sp: sp}
	}))

	g.Define("varDecl", rule.Spanned(rule.Seq(
		rule.Bind("kw", rule.Alt(rule.Word("let"), rule.Word("var"))),
		rule.Bind("name", rule.Kind(token.Identifier)),
		rule.Bind("type", rule.Opt(rule.Seq(
			rule.Skip(rule.Word(":")),
			rule.Bind("ty", rule.Ref(g, "type")),
		))),
		rule.Skip(rule.Word("=")),
		rule.Bind("value", rule.Ref(g, "assignExpr")),
	), func(sp source.Span, v any) any {
		vars := v.(*rule.Vars)
		kw := vars.Get("kw").(string)
		name := vars.Get("name").(token.Token)
		var typeRef ast.TypeRef
		if tAny := vars.Get("type"); tAny != nil {
			typeRef = tAny.(*rule.Vars).Get("ty").(ast.TypeRef)
		}
		value := vars.Get("value").(ast.Expr)
		return ast.Decl(&ast.VarDecl{Name: name.Raw, Type: typeRef, Value: value, Mutable: kw == "var", Sp: sp})
	}))

	// Two declaration forms, since spec.md names the alias/opaque-wrapper
	// feature without pinning a literal syntax for it (DESIGN.md): `type
	// Name = Underlying;` is a transparent alias, `type Name(Underlying);`
	// is an opaque new-type wrapper.
	g.Define("typeDecl", rule.Spanned(rule.Seq(
		rule.Skip(rule.Word("type")),
		rule.Bind("name", rule.Kind(token.Identifier)),
		rule.Bind("form", rule.Alt(
			rule.Seq(rule.Skip(rule.Word("=")), rule.Bind("ty", rule.Ref(g, "type"))),
			rule.Inner(token.Parentheses, rule.Ref(g, "type")),
		)),
	), func(sp source.Span, v any) any {
		vars := v.(*rule.Vars)
		name := vars.Get("name").(token.Token)
		var underlying ast.TypeRef
		opaque := false
		switch form := vars.Get("form").(type) {
		case *rule.Vars:
			underlying = form.Get("ty").(ast.TypeRef)
		case rule.Bracket:
			underlying = form.Value.(ast.TypeRef)
			opaque = true
		}
		return ast.Decl(&ast.TypeDecl{Name: name.Raw, Underlying: underlying, Opaque: opaque, Sp: sp})
	}))

	g.Define("funDecl", rule.Spanned(rule.Seq(
		rule.Skip(rule.Word("fun")),
		rule.Bind("name", rule.Kind(token.Identifier)),
		rule.Bind("params", rule.Inner(token.Parentheses, sepBy(rule.Ref(g, "funParam")))),
		rule.Bind("ret", rule.Opt(rule.Seq(
			rule.Skip(rule.Word("->")),
			rule.Bind("ty", rule.Ref(g, "type")),
		))),
		rule.Bind("body", rule.Ref(g, "block")),
	), func(sp source.Span, v any) any {
		vars := v.(*rule.Vars)
		name := vars.Get("name").(token.Token)
		paramsAny := vars.Get("params").(rule.Bracket).Value.([]any)
		params := make([]*ast.FunParam, len(paramsAny))
		for i, pv := range paramsAny {
			params[i] = pv.(*ast.FunParam)
		}
		var ret ast.TypeRef
		if retAny := vars.Get("ret"); retAny != nil {
			ret = retAny.(*rule.Vars).Get("ty").(ast.TypeRef)
		}
		body := vars.Get("body").(*ast.BlockExpr)
		return ast.Decl(&ast.FunDecl{Name: name.Raw, Params: params, Ret: ret, Body: body, Sp: sp})
	}))

	g.Define("exprDecl", rule.Action(rule.Ref(g, "assignExpr"), func(v any) any {
		e := v.(ast.Expr)
		return ast.Decl(&ast.ExprDecl{Value: e, Sp: e.Span()})
	}))

	g.Define("decl", rule.Alt(
		rule.Ref(g, "varDecl"),
		rule.Ref(g, "funDecl"),
		rule.Ref(g, "typeDecl"),
		rule.Ref(g, "exprDecl"),
	))

	// declSeq parses a flat run of declarations until the stream is
	// exhausted, always succeeding (ok=true): a decl not self-delimited by
	// a brace body (every form except funDecl) may optionally be followed
	// by `;`; its absence means this was the block's trailing (implicitly
	// yielded) declaration, so the loop stops even with tokens left over.
	// Reporting that leftover is the caller's job (block, or ParseTokens
	// at the top level), which is why declSeq itself never logs.
	g.Define("declSeq", rule.ClauseFunc(func(p *rule.Parser) (any, bool) {
		var decls []ast.Decl
		for !p.AtEOF() {
			dAny, ok := rule.Ref(g, "decl").Parse(p)
			if !ok {
				break
			}
			d := dAny.(ast.Decl)
			decls = append(decls, d)

			if _, isFun := d.(*ast.FunDecl); isFun {
				continue
			}
			if _, ok := rule.Word(";").Parse(p); !ok {
				break
			}
		}
		return decls, true
	}))

	// block forks a fresh Parser over the brace token's pre-tokenized
	// interior and drives declSeq across it (spec.md §4.C, §4.D). Once the
	// opening brace has matched, block never fails: it is Ref'd from
	// primary/funDecl's body/ifExpr's branches without risking an
	// enclosing Alt backtracking past a brace it already committed to.
	// Any leftover tokens inside the braces are reported immediately,
	// against the furthest point the forked parser reached.
	g.Define("block", rule.ClauseFunc(func(p *rule.Parser) (any, bool) {
		tokAny, ok := rule.Kind(token.Braces).Parse(p)
		if !ok {
			return nil, false
		}
		tok := tokAny.(token.Token)
		sub := rule.NewParser(pstream.Fork(p.Source(), tok), p.Log())
		declsAny, _ := rule.Ref(g, "declSeq").Parse(sub)
		decls, _ := declsAny.([]ast.Decl)
		if !sub.AtEOF() {
			if err := sub.Furthest(); err != nil {
				sub.Error(err.Span, "%s", err.Message)
			} else {
				sub.Error(sub.EOFSpan(), "unexpected trailing input")
			}
		}
		return &ast.BlockExpr{Decls: decls, Sp: tok.Span}, true
	}))

	// --- expressions ---

	binaryLevel(g, "productExpr", "unaryExpr", "*", "/", "%")
	binaryLevel(g, "sumExpr", "productExpr", "+", "-")
	binaryLevel(g, "relExpr", "sumExpr", "<=", ">=", "<", ">")
	binaryLevel(g, "eqExpr", "relExpr", "==", "!=")
	binaryLevel(g, "andExpr", "eqExpr", "&&")
	binaryLevel(g, "orExpr", "andExpr", "||")

	g.Define("unaryExpr", rule.Alt(
		rule.Spanned(rule.Seq(
			rule.Bind("op", rule.Alt(rule.Word("-"), rule.Word("!"))),
			rule.Bind("operand", rule.Ref(g, "unaryExpr")),
		), func(sp source.Span, v any) any {
			vars := v.(*rule.Vars)
			op := vars.Get("op").(string)
			operand := vars.Get("operand").(ast.Expr)
			return ast.Expr(&ast.UnaryExpr{Op: op, Operand: operand, Sp: sp})
		}),
		rule.Ref(g, "callExpr"),
	))

	g.Define("argList", rule.Inner(token.Parentheses, sepBy(rule.Ref(g, "assignExpr"))))

	// callExpr wraps primary in a postfix loop of call-argument lists, so
	// `f(x)(y)` and a grouped callee `(f)(x)` both chain without grouping
	// needing any special case of its own.
	g.Define("callExpr", rule.ClauseFunc(func(p *rule.Parser) (any, bool) {
		baseAny, ok := rule.Ref(g, "primary").Parse(p)
		if !ok {
			return nil, false
		}
		expr := baseAny.(ast.Expr)
		for {
			argAny, ok := rule.Ref(g, "argList").Parse(p)
			if !ok {
				break
			}
			bracket := argAny.(rule.Bracket)
			args := toExprs(bracket.Value.([]any))
			expr = &ast.CallExpr{Callee: expr, Args: args, Sp: expr.Span().Merge(bracket.Tok.Span)}
		}
		return expr, true
	}))

	g.Define("grouping", rule.Action(rule.Inner(token.Parentheses, rule.Ref(g, "assignExpr")), func(v any) any {
		return v.(rule.Bracket).Value.(ast.Expr)
	}))

	g.Define("primary", rule.Alt(
		rule.Action(rule.Kind(token.Int), func(v any) any {
			tok := v.(token.Token)
			return ast.Expr(&ast.IntLit{Value: tok.IntValue, Sp: tok.Span})
		}),
		rule.Action(rule.Kind(token.Float), func(v any) any {
			tok := v.(token.Token)
			return ast.Expr(&ast.FloatLit{Value: tok.FloatValue, Sp: tok.Span})
		}),
		rule.Action(rule.Kind(token.String), func(v any) any {
			tok := v.(token.Token)
			return ast.Expr(&ast.StringLit{Value: tok.StringValue, Sp: tok.Span})
		}),
		rule.Spanned(rule.Alt(rule.Word("true"), rule.Word("false")), func(sp source.Span, v any) any {
			return ast.Expr(&ast.BoolLit{Value: v.(string) == "true", Sp: sp})
		}),
		rule.Ref(g, "ifExpr"),
		rule.Ref(g, "returnExpr"),
		rule.Action(rule.Ref(g, "block"), func(v any) any {
			return ast.Expr(v.(*ast.BlockExpr))
		}),
		rule.Ref(g, "grouping"),
		rule.Action(rule.Kind(token.Identifier), func(v any) any {
			tok := v.(token.Token)
			return ast.Expr(&ast.Ident{Name: tok.Raw, Sp: tok.Span})
		}),
	))

	g.Define("ifExpr", rule.Spanned(rule.Seq(
		rule.Skip(rule.Word("if")),
		// cond binds to orExpr, not assignExpr: `if x = y {...}` must parse
		// `x` as the condition and leave `= y` a syntax error, not read the
		// whole assignment as the condition.
		rule.Bind("cond", rule.Ref(g, "orExpr")),
		rule.Bind("then", rule.Ref(g, "block")),
		rule.Bind("else", rule.Opt(rule.Seq(
			rule.Skip(rule.Word("else")),
			rule.Bind("branch", rule.Alt(
				rule.Ref(g, "ifExpr"),
				rule.Action(rule.Ref(g, "block"), func(v any) any { return ast.Expr(v.(*ast.BlockExpr)) }),
			)),
		))),
	), func(sp source.Span, v any) any {
		vars := v.(*rule.Vars)
		cond := vars.Get("cond").(ast.Expr)
		then := vars.Get("then").(*ast.BlockExpr)
		var elseExpr ast.Expr
		if elseAny := vars.Get("else"); elseAny != nil {
			elseExpr = elseAny.(*rule.Vars).Get("branch").(ast.Expr)
		}
		return ast.Expr(&ast.IfExpr{Cond: cond, Then: then, Else: elseExpr, Sp: sp})
	}))

	// returnExpr fails the whole clause (with rollback) if "return" is
	// followed by something other than `;`, a block-terminator, or a value
	// expression: a dangling `return` followed only by garbage is a syntax
	// error, not a silently-accepted bare return.
	g.Define("returnExpr", rule.Spanned(rule.ClauseFunc(func(p *rule.Parser) (any, bool) {
		start := p.Pos()
		if _, ok := rule.Word("return").Parse(p); !ok {
			return nil, false
		}
		if tok, hasNext := p.Peek(); !hasNext || tok.Raw == ";" || tok.Kind == token.Braces {
			return nil, true
		}
		valAny, ok := rule.Ref(g, "assignExpr").Parse(p)
		if !ok {
			p.Goto(start)
			return nil, false
		}
		return valAny, true
	}), func(sp source.Span, v any) any {
		var value ast.Expr
		if v != nil {
			value = v.(ast.Expr)
		}
		return ast.Expr(&ast.ReturnExpr{Value: value, Sp: sp})
	}))

	// assignExpr is not a plain Seq/Alt: once `left =` has matched, a
	// failed value parse fails the whole clause (rolled back) rather than
	// falling back to bare left, so `let x = ;` is reported as a syntax
	// error instead of silently accepting `x` as the declaration's value.
	g.Define("assignExpr", rule.ClauseFunc(func(p *rule.Parser) (any, bool) {
		leftAny, ok := rule.Ref(g, "orExpr").Parse(p)
		if !ok {
			return nil, false
		}
		left := leftAny.(ast.Expr)

		start := p.Pos()
		if _, ok := rule.Word("=").Parse(p); !ok {
			return left, true
		}
		valueAny, ok := rule.Ref(g, "assignExpr").Parse(p)
		if !ok {
			p.Goto(start)
			return nil, false
		}
		value := valueAny.(ast.Expr)
		return ast.Expr(&ast.AssignExpr{Target: left, Value: value, Sp: left.Span().Merge(value.Span())}), true
	}))

	return g
}

// binaryLevel defines a uniform left-associative binary-operator rule:
// name := next (op next)*, folding left-to-right into nested BinaryExprs.
func binaryLevel(g *rule.Grammar, name, next string, ops ...string) {
	alts := make([]rule.Clause, len(ops))
	for i, op := range ops {
		alts[i] = rule.Word(op)
	}
	g.Define(name, rule.Action(rule.Seq(
		rule.Bind("left", rule.Ref(g, next)),
		rule.Bind("rest", rule.Rep(rule.Seq(
			rule.Bind("op", rule.Alt(alts...)),
			rule.Bind("rhs", rule.Ref(g, next)),
		))),
	), func(v any) any {
		vars := v.(*rule.Vars)
		left := vars.Get("left").(ast.Expr)
		rest, _ := vars.Get("rest").([]any)
		for _, r := range rest {
			rv := r.(*rule.Vars)
			op := rv.Get("op").(string)
			rhs := rv.Get("rhs").(ast.Expr)
			left = &ast.BinaryExpr{Left: left, Op: op, Right: rhs, Sp: left.Span().Merge(rhs.Span())}
		}
		return ast.Expr(left)
	}))
}

func toTypeRefs(vals []any) []ast.TypeRef {
	out := make([]ast.TypeRef, len(vals))
	for i, v := range vals {
		out[i] = v.(ast.TypeRef)
	}
	return out
}

func toExprs(vals []any) []ast.Expr {
	out := make([]ast.Expr, len(vals))
	for i, v := range vals {
		out[i] = v.(ast.Expr)
	}
	return out
}

// sepBy matches item zero or more times separated by `,`, with no
// trailing comma tolerated: if a comma is consumed but the following item
// fails to parse, the comma is un-consumed and the list ends there,
// leaving the dangling comma for the caller (typically rule.Inner's
// fully-consumed check) to report as a syntax error.
func sepBy(item rule.Clause) rule.Clause {
	return rule.ClauseFunc(func(p *rule.Parser) (any, bool) {
		var out []any
		first, ok := item.Parse(p)
		if !ok {
			return out, true
		}
		out = append(out, first)
		for {
			start := p.Pos()
			if _, ok := rule.Word(",").Parse(p); !ok {
				break
			}
			val, ok := item.Parse(p)
			if !ok {
				p.Goto(start)
				break
			}
			out = append(out, val)
		}
		return out, true
	})
}
