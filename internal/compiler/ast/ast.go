// Package ast defines the syntax tree the parser builds and the checker
// annotates. Every node carries its own Span; the checker writes each
// node's Meta exactly once (spec.md §4.F, §4.I).
package ast

import (
	"github.com/btouchard/nibl/internal/compiler/source"
	"github.com/btouchard/nibl/internal/compiler/types"
)

// Node is the base interface implemented by every syntax tree node.
type Node interface {
	Span() source.Span
}

// Meta holds the checker's output for a node that carries a type: the
// resolved Type, written at most once. A nil Meta means the node has not
// been checked yet.
type Meta struct {
	Type types.Type
}

// Decl is a top-level or block-level declaration.
type Decl interface {
	Node
	declNode()
}

// Expr is anything that produces a value (or never/void).
type Expr interface {
	Node
	Meta() *Meta
	exprNode()
}

// TypeRef is a syntactic reference to a type, resolved by the checker.
type TypeRef interface {
	Node
	typeRefNode()
}

// File is the root node: a flat sequence of top-level declarations.
type File struct {
	Decls []Decl
	Sp    source.Span
}

func (f *File) Span() source.Span { return f.Sp }

// FunParam is one parameter of a function declaration or type.
type FunParam struct {
	Name string
	Type TypeRef
	Sp   source.Span
}

func (p *FunParam) Span() source.Span { return p.Sp }

// VarDecl: `let name [: Type] = value;` or `var name [: Type] = value;`.
type VarDecl struct {
	Name    string
	Type    TypeRef // nil when the annotation is omitted
	Value   Expr
	Mutable bool // true for `var`, false for `let`
	Sp      source.Span

	meta Meta
}

func (v *VarDecl) Span() source.Span { return v.Sp }
func (v *VarDecl) declNode()         {}
func (v *VarDecl) Meta() *Meta       { return &v.meta }

// FunDecl: `fun name(params) [-> Ret] { body }`.
type FunDecl struct {
	Name   string
	Params []*FunParam
	Ret    TypeRef // nil when the return type is to be inferred
	Body   *BlockExpr
	Sp     source.Span

	meta Meta
}

func (f *FunDecl) Span() source.Span { return f.Sp }
func (f *FunDecl) declNode()         {}
func (f *FunDecl) Meta() *Meta       { return &f.meta }

// TypeDecl declares a name for another type. `type Name = Underlying;`
// (Opaque == false) is a transparent alias: Name and Underlying are
// mutually convertible everywhere. `type Name(Underlying);` (Opaque ==
// true) is an opaque "new type" wrapper: Name is a distinct type that
// does not implicitly convert to or from Underlying.
type TypeDecl struct {
	Name       string
	Underlying TypeRef
	Opaque     bool
	Sp         source.Span
}

func (t *TypeDecl) Span() source.Span { return t.Sp }
func (t *TypeDecl) declNode()         {}

// ExprDecl wraps a bare expression used where a declaration is expected
// (an expression-statement at block scope).
type ExprDecl struct {
	Value Expr
	Sp    source.Span
}

func (e *ExprDecl) Span() source.Span { return e.Sp }
func (e *ExprDecl) declNode()         {}

// --- expressions ---

// Ident is a name reference, resolved against the entity namespace.
type Ident struct {
	Name string
	Sp   source.Span
	meta Meta
}

func (i *Ident) Span() source.Span { return i.Sp }
func (i *Ident) Meta() *Meta       { return &i.meta }
func (i *Ident) exprNode()         {}

// IntLit is an integer literal.
type IntLit struct {
	Value int64
	Sp    source.Span
	meta  Meta
}

func (l *IntLit) Span() source.Span { return l.Sp }
func (l *IntLit) Meta() *Meta       { return &l.meta }
func (l *IntLit) exprNode()         {}

// FloatLit is a floating-point literal.
type FloatLit struct {
	Value float64
	Sp    source.Span
	meta  Meta
}

func (l *FloatLit) Span() source.Span { return l.Sp }
func (l *FloatLit) Meta() *Meta       { return &l.meta }
func (l *FloatLit) exprNode()         {}

// StringLit is a (already-decoded) string literal.
type StringLit struct {
	Value string
	Sp    source.Span
	meta  Meta
}

func (l *StringLit) Span() source.Span { return l.Sp }
func (l *StringLit) Meta() *Meta       { return &l.meta }
func (l *StringLit) exprNode()         {}

// BoolLit is `true` or `false`.
type BoolLit struct {
	Value bool
	Sp    source.Span
	meta  Meta
}

func (l *BoolLit) Span() source.Span { return l.Sp }
func (l *BoolLit) Meta() *Meta       { return &l.meta }
func (l *BoolLit) exprNode()         {}

// UnaryExpr: `-x`, `!x`.
type UnaryExpr struct {
	Op      string
	Operand Expr
	Sp      source.Span
	meta    Meta
}

func (u *UnaryExpr) Span() source.Span { return u.Sp }
func (u *UnaryExpr) Meta() *Meta       { return &u.meta }
func (u *UnaryExpr) exprNode()         {}

// BinaryExpr: `a + b`, `a == b`, and so on. Op is the source spelling;
// the checker resolves `!=` against `==` (and `==` against `!=`) when no
// direct entry exists; `<=`/`>=` have no such fallback (spec.md §4.H).
type BinaryExpr struct {
	Left  Expr
	Op    string
	Right Expr
	Sp    source.Span
	meta  Meta
}

func (b *BinaryExpr) Span() source.Span { return b.Sp }
func (b *BinaryExpr) Meta() *Meta       { return &b.meta }
func (b *BinaryExpr) exprNode()         {}

// AssignExpr: `target = value`. Assignment is an expression of type void.
type AssignExpr struct {
	Target Expr
	Value  Expr
	Sp     source.Span
	meta   Meta
}

func (a *AssignExpr) Span() source.Span { return a.Sp }
func (a *AssignExpr) Meta() *Meta       { return &a.meta }
func (a *AssignExpr) exprNode()         {}

// CallExpr: `callee(args...)`.
type CallExpr struct {
	Callee Expr
	Args   []Expr
	Sp     source.Span
	meta   Meta
}

func (c *CallExpr) Span() source.Span { return c.Sp }
func (c *CallExpr) Meta() *Meta       { return &c.meta }
func (c *CallExpr) exprNode()         {}

// BlockExpr: `{ decls...; last }`. The value of the block is the value of
// its last expression-shaped declaration (the implicit yield, spec.md
// §4.G's `pop_scope`), or void if the block ends in a non-expression
// declaration or is empty.
type BlockExpr struct {
	Decls []Decl
	Sp    source.Span
	meta  Meta
}

func (b *BlockExpr) Span() source.Span { return b.Sp }
func (b *BlockExpr) Meta() *Meta       { return &b.meta }
func (b *BlockExpr) exprNode()         {}

// IfExpr: `if cond then_ [else else_]`, including an else-if chain
// (`else_` holding a nested IfExpr). Missing else yields void
// (spec.md §4.I point 9).
type IfExpr struct {
	Cond  Expr
	Then  *BlockExpr
	Else  Expr // *BlockExpr, *IfExpr, or nil
	Sp    source.Span
	meta  Meta
}

func (i *IfExpr) Span() source.Span { return i.Sp }
func (i *IfExpr) Meta() *Meta       { return &i.meta }
func (i *IfExpr) exprNode()         {}

// ReturnExpr: `return [value];`. A bare return has Value == nil and type
// void; it always marks the enclosing function scope as returned-to and
// produces `never` as the expression's own type.
type ReturnExpr struct {
	Value Expr // nil for a bare `return;`
	Sp    source.Span
	meta  Meta
}

func (r *ReturnExpr) Span() source.Span { return r.Sp }
func (r *ReturnExpr) Meta() *Meta       { return &r.meta }
func (r *ReturnExpr) exprNode()         {}

// --- type references ---

// NamedTypeRef is a reference to a type by name (`int`, `string`, `Foo`).
type NamedTypeRef struct {
	Name string
	Sp   source.Span
}

func (n *NamedTypeRef) Span() source.Span { return n.Sp }
func (n *NamedTypeRef) typeRefNode()      {}

// FunctionTypeRef is a function type written out in a signature position,
// `fun(Params...) -> Ret`.
type FunctionTypeRef struct {
	Params []TypeRef
	Ret    TypeRef // nil means void
	Sp     source.Span
}

func (f *FunctionTypeRef) Span() source.Span { return f.Sp }
func (f *FunctionTypeRef) typeRefNode()      {}
