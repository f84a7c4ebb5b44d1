// Package scope implements the checker's scope stack: two namespaces
// (types and entities) per scope, never-propagation bookkeeping, and
// return-type inference across nested function/block scopes
// (spec.md §4.G).
package scope

import (
	"fmt"
	"strings"

	"github.com/btouchard/nibl/internal/compiler/diag"
	"github.com/btouchard/nibl/internal/compiler/source"
	"github.com/btouchard/nibl/internal/compiler/types"
)

// Path is an unresolved, possibly-relative reference to an item, as
// written in source (`foo`, `::foo::bar`).
type Path struct {
	Absolute bool
	Parts    []string
}

// NewPath builds a Path from its dotted/coloned segments.
func NewPath(absolute bool, parts ...string) Path {
	return Path{Absolute: absolute, Parts: parts}
}

func (p Path) String() string {
	prefix := ""
	if p.Absolute {
		prefix = "::"
	}
	return prefix + strings.Join(p.Parts, "::")
}

// FullPath is a fully-resolved item path, unique within a Space.
type FullPath struct {
	Parts []string
}

// NewFullPath builds a FullPath from already-resolved segments.
func NewFullPath(parts ...string) FullPath {
	return FullPath{Parts: parts}
}

func (p FullPath) String() string {
	return "::" + strings.Join(p.Parts, "::")
}

// EndsWith reports whether p's trailing segments equal path's segments, the
// suffix match `Space.Resolve` uses to find an item by a possibly-relative
// path (`::a::foo` ends with `foo` and `a::foo`, but `::max` does not end
// with `x`).
func (p FullPath) EndsWith(path Path) bool {
	if len(path.Parts) > len(p.Parts) {
		return false
	}
	off := len(p.Parts) - len(path.Parts)
	for i, part := range path.Parts {
		if p.Parts[off+i] != part {
			return false
		}
	}
	return true
}

// Space is a flat namespace of full-path-keyed items. Types and Entities
// each get their own Space per Scope.
type Space[T any] struct {
	entries map[string]T
	order   []FullPath
}

func newSpace[T any]() Space[T] {
	return Space[T]{entries: make(map[string]T)}
}

// Push inserts an item under path, overwriting any previous entry at the
// same path.
func (s *Space[T]) Push(path FullPath, v T) {
	key := path.String()
	if _, exists := s.entries[key]; !exists {
		s.order = append(s.order, path)
	}
	s.entries[key] = v
}

// Find looks up an item by its exact full path.
func (s *Space[T]) Find(path FullPath) (T, bool) {
	v, ok := s.entries[path.String()]
	return v, ok
}

// Resolve finds the full path of the item whose path ends with the given
// (possibly relative) path, falling back to a FullPath built from path's
// own segments when no entry
// matches (mirroring the original's `resolve`: an unresolved path still
// gets a deterministic FullPath so lookups elsewhere don't panic).
func (s *Space[T]) Resolve(path Path) FullPath {
	for _, full := range s.order {
		if full.EndsWith(path) {
			return full
		}
	}
	return FullPath{Parts: path.Parts}
}

// Level orders scopes from least to most restrictive for capture rules:
// a Function-level scope boundary stops outer mutable entities from
// being captured by inner code.
type Level int

const (
	Opaque Level = iota
	Function
)

// Entity is a named, typed value: a variable, parameter, or builtin
// operator function.
type Entity struct {
	Name    FullPath
	Decl    types.Decl // nil for compiler-synthesized builtins
	Type    types.Type
	Mutable bool
}

// CanAccessOutsideFunction reports whether this entity may be referenced
// from inside a nested function scope: only non-mutable (let-bound)
// entities may be captured.
func (e *Entity) CanAccessOutsideFunction() bool {
	return !e.Mutable
}

func binopPath(a types.Type, op string, b types.Type) FullPath {
	return NewFullPath(fmt.Sprintf("@binop`%s%s%s`", a, op, b))
}

func unopPath(op string, a types.Type) FullPath {
	return NewFullPath(fmt.Sprintf("@unop`%s%s`", op, a))
}

// NewBuiltinBinOp creates the synthetic entity representing the builtin
// `a op b -> ret` operator, keyed so the checker can find it again from
// just the operand types and operator spelling.
func NewBuiltinBinOp(a types.Type, op string, b types.Type, ret types.Type) *Entity {
	return &Entity{
		Name: binopPath(a, op, b),
		Type: types.Function{
			Params: []types.Param{{Name: "a", Type: a}, {Name: "b", Type: b}},
			Ret:    ret,
		},
	}
}

// NewBuiltinUnOp creates the synthetic entity representing the builtin
// `op a -> ret` unary operator.
func NewBuiltinUnOp(op string, a types.Type, ret types.Type) *Entity {
	return &Entity{
		Name: unopPath(op, a),
		Type: types.Function{
			Params: []types.Param{{Name: "a", Type: a}},
			Ret:    ret,
		},
	}
}

// Scope is one entry in the scope stack: its own type/entity namespaces,
// plus the return-type-inference state for the Function-level scope that
// owns it.
type Scope struct {
	Types    Space[types.Type]
	Entities Space[*Entity]

	Level Level
	Decl  types.Decl

	ReturnType             types.Type // nil until inferred or declared
	ReturnTypeInferredFrom types.Decl
	IsReturnedTo           bool

	HasEncounteredNever bool
	UnreachableReported bool
}

// New creates an empty scope at the given level, optionally seeded with a
// declared return type (non-nil only for Function-level scopes whose
// signature names a return type).
func New(level Level, decl types.Decl, returnType types.Type) *Scope {
	return &Scope{
		Types:      newSpace[types.Type](),
		Entities:   newSpace[*Entity](),
		Level:      level,
		Decl:       decl,
		ReturnType: returnType,
	}
}

// newTop creates the root scope: the five builtin types and the builtin
// operator table, mirroring the original's `Scope::new_top`.
func newTop() *Scope {
	s := New(Opaque, nil, nil)
	for _, t := range []types.Type{types.Void{}, types.Bool{}, types.Int{}, types.Float{}, types.String{}} {
		s.Types.Push(NewFullPath(t.String()), t)
	}

	define := func(a types.Type, op string, b types.Type, ret types.Type) {
		e := NewBuiltinBinOp(a, op, b, ret)
		s.Entities.Push(e.Name, e)
	}
	V, B, I, F, S := types.Void{}, types.Bool{}, types.Int{}, types.Float{}, types.String{}

	define(V, "==", V, B)

	define(I, "+", I, I)
	define(I, "-", I, I)
	define(I, "/", I, I)
	define(I, "*", I, I)
	define(I, "%", I, I)
	define(I, "==", I, B)
	define(I, ">", I, B)
	define(I, "<", I, B)

	define(F, "+", F, F)
	define(F, "-", F, F)
	define(F, "/", F, F)
	define(F, "*", F, F)
	define(F, "%", F, F)
	define(F, "==", F, B)
	define(F, ">", F, B)
	define(F, "<", F, B)

	define(S, "==", S, B)
	define(S, "+", S, S)
	define(S, "*", I, S)

	define(B, "==", B, B)
	define(B, "&&", B, B)
	define(B, "||", B, B)

	return s
}

// Found is the three-way result of a scoped lookup: present and usable,
// present but inaccessible from the current (function-nested) position,
// or altogether absent. Mirrors the original's FindItem.
type Found[T any] struct {
	kind foundKind
	val  T
}

type foundKind int

const (
	foundNone foundKind = iota
	foundSome
	foundNotAvailable
)

func FoundSome[T any](v T) Found[T]         { return Found[T]{kind: foundSome, val: v} }
func FoundNotAvailable[T any](v T) Found[T] { return Found[T]{kind: foundNotAvailable, val: v} }
func FoundNone[T any]() Found[T]            { return Found[T]{kind: foundNone} }

// Option collapses Found down to the (value, ok) shape callers that don't
// care about the NotAvailable distinction want.
func (f Found[T]) Option() (T, bool) {
	if f.kind == foundSome {
		return f.val, true
	}
	var zero T
	return zero, false
}

// NotAvailable reports whether the lookup found the item but it was
// inaccessible (a mutable entity captured across a function boundary).
func (f Found[T]) NotAvailable() (T, bool) {
	if f.kind == foundNotAvailable {
		return f.val, true
	}
	var zero T
	return zero, false
}

// Stack is the live scope stack a checker walk pushes and pops as it
// descends into blocks and function bodies.
type Stack struct {
	log    *diag.Logger
	scopes []*Scope
}

// NewStack creates a stack seeded with the top-level builtin scope.
func NewStack(log *diag.Logger) *Stack {
	return &Stack{log: log, scopes: []*Scope{newTop()}}
}

// Top returns the innermost scope.
func (st *Stack) Top() *Scope {
	return st.scopes[len(st.scopes)-1]
}

// PushScope pushes a new scope onto the stack.
func (st *Stack) PushScope(level Level, decl types.Decl, returnType types.Type) {
	st.scopes = append(st.scopes, New(level, decl, returnType))
}

// PopScope pops the innermost scope, resolving its return type: ty is the
// default (e.g. a block's trailing-expression type) used when the scope
// was never explicitly returned to; yieldingNode anchors a mismatch
// diagnostic against the declared/inferred return type.
func (st *Stack) PopScope(ty types.Type, yieldingNode types.Decl) types.Type {
	n := len(st.scopes)
	s := st.scopes[n-1]
	st.scopes = st.scopes[:n-1]

	var retTy types.Type
	if s.IsReturnedTo {
		retTy = s.ReturnType
	} else {
		if s.ReturnType != nil && !types.Convertible(ty, s.ReturnType) {
			st.log.Errorf(anySpan(yieldingNode), "expected return type to be '%s', got '%s'", s.ReturnType, ty)
		}
		retTy = ty
	}

	if s.HasEncounteredNever {
		retTy = types.Never{}
	}
	return retTy
}

// TryPushEntity inserts a new entity into the current scope's Entities
// space, or logs a redeclaration error (with a note pointing at the
// previous declaration) and returns ok=false.
func (st *Stack) TryPushEntity(e *Entity, span source.Span) bool {
	top := st.Top()
	if prev, ok := top.Entities.Find(e.Name); ok {
		msg := st.log.Errorf(span, "entity '%s' already exists in this scope", e.Name)
		if prev.Decl != nil {
			msg.WithNote(diag.NoteAt("previous declaration here", prev.Decl.Span()))
		}
		return false
	}
	top.Entities.Push(e.Name, e)
	return true
}

// TryPushType inserts a new named/alias type into the current scope's
// Types space, or logs a redeclaration error.
func (st *Stack) TryPushType(name FullPath, t types.Type, span source.Span) bool {
	top := st.Top()
	if _, ok := top.Types.Find(name); ok {
		st.log.Errorf(span, "type '%s' already exists in this scope", name)
		return false
	}
	top.Types.Push(name, t)
	return true
}

// FindEntity walks the stack from innermost to outermost, applying the
// function-boundary capture rule: once the walk has crossed a
// Function-level scope, only entities for which CanAccessOutsideFunction
// is true remain reachable.
func (st *Stack) FindEntity(path Path) Found[*Entity] {
	outsideFunction := false
	for i := len(st.scopes) - 1; i >= 0; i-- {
		s := st.scopes[i]
		full := s.Entities.Resolve(path)
		if e, ok := s.Entities.Find(full); ok {
			if !outsideFunction || e.CanAccessOutsideFunction() {
				return FoundSome(e)
			}
			return FoundNotAvailable(e)
		}
		if s.Level >= Function {
			outsideFunction = true
		}
	}
	return FoundNone[*Entity]()
}

// FindType walks the stack from innermost to outermost looking up a type
// name. Types are always visible across function boundaries.
func (st *Stack) FindType(path Path) Found[types.Type] {
	for i := len(st.scopes) - 1; i >= 0; i-- {
		s := st.scopes[i]
		full := s.Types.Resolve(path)
		if t, ok := s.Types.Find(full); ok {
			return FoundSome(t)
		}
	}
	return FoundNone[types.Type]()
}

// BinOpType looks up the builtin/user-defined `a op b` operator. When no
// direct entry exists and op is the symmetric `!=`/`==` pair, it also
// tries the other member of the pair before giving up: `a != b` and
// `a == b` are defined in terms of each other when only one is seeded
// (spec.md's Open Question, resolved in favor of this fallback; see
// DESIGN.md).
func (st *Stack) BinOpType(a types.Type, op string, b types.Type) (types.Type, bool) {
	if ty, ok := st.tryBinOp(a, op, b); ok {
		return ty, true
	}
	switch op {
	case "!=":
		return st.tryBinOp(a, "==", b)
	case "==":
		return st.tryBinOp(a, "!=", b)
	}
	return nil, false
}

func (st *Stack) tryBinOp(a types.Type, op string, b types.Type) (types.Type, bool) {
	e, ok := st.FindEntity(NewPath(true, binopPath(a, op, b).Parts...)).Option()
	if !ok {
		return nil, false
	}
	return types.ReturnTy(e.Type)
}

// UnOpType looks up the builtin/user-defined `op a` unary operator.
func (st *Stack) UnOpType(op string, a types.Type) (types.Type, bool) {
	e, ok := st.FindEntity(NewPath(true, unopPath(op, a).Parts...)).Option()
	if !ok {
		return nil, false
	}
	return types.ReturnTy(e.Type)
}

// ScopeSelector chooses which ancestor scope InferReturnType targets.
type ScopeSelector interface {
	matches(s *Scope) bool
}

type byLevel struct{ level Level }

func (b byLevel) matches(s *Scope) bool { return s.Level >= b.level }

// ByLevel selects the nearest enclosing scope whose level is at least
// level (used to find the nearest Function scope for `return`).
func ByLevel(level Level) ScopeSelector { return byLevel{level} }

type byDecl struct{ decl types.Decl }

func (b byDecl) matches(s *Scope) bool { return s.Decl == b.decl }

// ByDecl selects the scope declared by a specific node.
func ByDecl(decl types.Decl) ScopeSelector { return byDecl{decl} }

type topMost struct{}

func (topMost) matches(*Scope) bool { return true }

// TopMost selects the outermost (program) scope.
func TopMost() ScopeSelector { return topMost{} }

// InferReturnType records that `node` (typically a `return` expression)
// produced ty, targeting the nearest ancestor scope matching sel. If that
// scope already has a return type and ty isn't convertible to it, a
// mismatch is logged; otherwise ty becomes (or confirms) the scope's
// inferred return type.
func (st *Stack) InferReturnType(sel ScopeSelector, ty types.Type, node types.Decl) {
	for i := len(st.scopes) - 1; i >= 0; i-- {
		s := st.scopes[i]
		if !sel.matches(s) {
			continue
		}
		if s.ReturnType != nil {
			if !types.Convertible(ty, s.ReturnType) {
				msg := st.log.Errorf(anySpan(node), "expected return type to be '%s', got '%s'", s.ReturnType, ty)
				if s.ReturnTypeInferredFrom != nil {
					msg.WithNote(diag.NoteAt("return type inferred from here", s.ReturnTypeInferredFrom.Span()))
				}
			}
		} else {
			s.ReturnType = ty
			s.ReturnTypeInferredFrom = node
		}
		s.IsReturnedTo = true
		return
	}
	st.log.Errorf(anySpan(node), "cannot return here")
}

// MarkEncounteredNever flags the innermost scope as having produced a
// never-typed expression: every later sibling declaration/expression in
// that scope is unreachable.
func (st *Stack) MarkEncounteredNever() {
	st.Top().HasEncounteredNever = true
}

// CheckUnreachable reports (at most once per scope) that expr is
// unreachable because an earlier sibling already produced `never`.
// Returns true the first time it fires for the current scope.
func (st *Stack) CheckUnreachable(expr types.Decl) bool {
	top := st.Top()
	if top.HasEncounteredNever && !top.UnreachableReported {
		top.UnreachableReported = true
		st.log.Errorf(anySpan(expr), "unreachable expression")
		return true
	}
	return false
}

// ExpectEq checks that a is convertible to b, logging a mismatch anchored
// at span, and returns b.Or(a): b unless b is unreal, in which case a
// (so an error doesn't cascade into a second, spurious mismatch).
func (st *Stack) ExpectEq(a, b types.Type, span source.Span) types.Type {
	if !types.Convertible(a, b) {
		st.log.Errorf(span, "expected type %s, got type %s", b, a)
	}
	return types.Or(b, a)
}

func anySpan(d types.Decl) source.Span {
	if d == nil {
		return source.Zero
	}
	return d.Span()
}
