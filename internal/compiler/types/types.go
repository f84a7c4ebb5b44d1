// Package types implements the type model the checker operates over:
// a closed set of built-ins plus Function, Alias, and Named composite
// types, with convertibility and reduction rules (spec.md §4.H).
package types

import (
	"fmt"
	"strings"

	"github.com/btouchard/nibl/internal/compiler/source"
)

// Decl is the minimal surface a declaration node needs for a type's decl
// backlink (used by Alias/Named/Function to point back at the declaring
// AST node). ast.Node satisfies this structurally, without types needing
// to import ast.
type Decl interface {
	Span() source.Span
}

// Type is any member of the type model. Types are compared by value
// (Go struct/interface equality), matching the original's structural
// PartialEq derive, except where a decl backlink is present: Alias and
// Named compare equal only when name, underlying type, and decl all
// match.
type Type interface {
	String() string
	typeNode()
}

// Invalid marks that a checked expression has no meaningful type, either
// because an error occurred or resolution failed.
type Invalid struct{}

func (Invalid) String() string { return "invalid" }
func (Invalid) typeNode()      {}

// Never marks that the containing branch never finishes execution.
type Never struct{}

func (Never) String() string { return "never" }
func (Never) typeNode()      {}

// Void is the unit type; its only value is `void`.
type Void struct{}

func (Void) String() string { return "void" }
func (Void) typeNode()      {}

// Bool is the boolean type.
type Bool struct{}

func (Bool) String() string { return "bool" }
func (Bool) typeNode()      {}

// Int is the 64-bit integer type.
type Int struct{}

func (Int) String() string { return "int" }
func (Int) typeNode()      {}

// Float is the 64-bit floating-point type.
type Float struct{}

func (Float) String() string { return "float" }
func (Float) typeNode()      {}

// String is the UTF-8 string type.
type String struct{}

func (String) String() string { return "string" }
func (String) typeNode()      {}

// Param is one parameter of a Function type.
type Param struct {
	Name string
	Type Type
}

// Function is a function type: an ordered parameter list plus a return
// type.
type Function struct {
	Params []Param
	Ret    Type
}

func (f Function) String() string {
	parts := make([]string, len(f.Params))
	for i, p := range f.Params {
		parts[i] = fmt.Sprintf("%s: %s", p.Name, p.Type)
	}
	return fmt.Sprintf("fun(%s) -> %s", strings.Join(parts, ", "), f.Ret)
}
func (Function) typeNode() {}

// Alias is a transparent alias for another type: implicitly convertible
// to and from its underlying type.
type Alias struct {
	Name string
	Ty   Type
	Decl Decl
}

func (a Alias) String() string { return a.Name }
func (Alias) typeNode()        {}

// Named is an opaque "new type" wrapper around another type: distinct
// from, and not implicitly convertible to, its underlying type.
type Named struct {
	Name string
	Ty   Type
	Decl Decl
}

func (n Named) String() string { return n.Name }
func (Named) typeNode()        {}

// NewBuiltin resolves one of the built-in type names. It panics on any
// other name; callers must only pass names already verified as built-in.
func NewBuiltin(name string) Type {
	switch name {
	case "never":
		return Never{}
	case "void":
		return Void{}
	case "bool":
		return Bool{}
	case "int":
		return Int{}
	case "float":
		return Float{}
	case "string":
		return String{}
	default:
		panic(fmt.Sprintf("internal compiler error: invalid builtin type %q", name))
	}
}

// Unreal reports whether t is a type that can't exist as a runtime value
// (Invalid or Never). Convertible treats an unreal type as compatible with
// every type (spec.md §4.I).
func Unreal(t Type) bool {
	switch t.(type) {
	case Invalid, Never:
		return true
	default:
		return false
	}
}

// Reduce strips transparent Alias wrappers, returning the canonical
// representation of t. Named wrappers are NOT stripped: they are opaque
// by design.
func Reduce(t Type) Type {
	if a, ok := t.(Alias); ok {
		return Reduce(a.Ty)
	}
	return t
}

// Convertible reports whether a value of type from may be used where a
// value of type to is expected: true when either side is unreal, or when
// their reduced forms are equal.
func Convertible(from, to Type) bool {
	if Unreal(from) || Unreal(to) {
		return true
	}
	return Equal(Reduce(from), Reduce(to))
}

// Equal reports structural equality between two types. Ground types
// compare by native equality. Function cannot use == because Params is a
// slice, so it is compared structurally, in order, by parameter *type*
// only — parameter names never participate (spec.md §3). Alias and Named
// compare name and decl with == and their underlying types with Equal,
// since the underlying type may itself be a Function.
func Equal(a, b Type) bool {
	fa, aIsFn := a.(Function)
	fb, bIsFn := b.(Function)
	if aIsFn || bIsFn {
		if !aIsFn || !bIsFn {
			return false
		}
		return equalFunction(fa, fb)
	}
	if na, ok := a.(Named); ok {
		nb, ok := b.(Named)
		return ok && na.Name == nb.Name && na.Decl == nb.Decl && Equal(na.Ty, nb.Ty)
	}
	if aa, ok := a.(Alias); ok {
		ab, ok := b.(Alias)
		return ok && aa.Name == ab.Name && aa.Decl == ab.Decl && Equal(aa.Ty, ab.Ty)
	}
	return a == b
}

func equalFunction(a, b Function) bool {
	if len(a.Params) != len(b.Params) {
		return false
	}
	for i := range a.Params {
		if !Equal(a.Params[i].Type, b.Params[i].Type) {
			return false
		}
	}
	return Equal(a.Ret, b.Ret)
}

// ReturnTy returns the return type of a Function type (reducing through
// aliases first), and ok=false when t does not reduce to a Function.
func ReturnTy(t Type) (Type, bool) {
	fn, ok := Reduce(t).(Function)
	if !ok {
		return nil, false
	}
	return fn.Ret, true
}

// Or returns a, unless a is unreal (Invalid or Never), in which case it
// returns b. This is the best-effort propagation rule used to keep a real
// type flowing through an error site instead of cascading (spec.md §4.H).
func Or(a, b Type) Type {
	if Unreal(a) {
		return b
	}
	return a
}
