package check

import (
	"strings"
	"testing"

	"github.com/btouchard/nibl/internal/compiler/ast"
	"github.com/btouchard/nibl/internal/compiler/diag"
	"github.com/btouchard/nibl/internal/compiler/parser"
	"github.com/btouchard/nibl/internal/compiler/source"
)

func checkText(t *testing.T, text string) (*ast.File, *diag.Logger) {
	t.Helper()
	log := diag.NewLogger()
	src := source.InMemory("test", text)
	file := parser.Parse(src, log)
	if log.HasErrors() {
		t.Fatalf("unexpected parse errors for %q: %+v", text, log.Messages())
	}
	NewChecker(log).CheckFile(file)
	return file, log
}

func headlines(log *diag.Logger) []string {
	var out []string
	for _, m := range log.Messages() {
		out = append(out, m.Headline)
	}
	return out
}

func countContaining(log *diag.Logger, substr string) int {
	n := 0
	for _, h := range headlines(log) {
		if strings.Contains(h, substr) {
			n++
		}
	}
	return n
}

func TestVarDeclInfersInitializerType(t *testing.T) {
	file, log := checkText(t, "let x = 1;")
	if log.HasErrors() {
		t.Fatalf("unexpected errors: %+v", log.Messages())
	}
	v := file.Decls[0].(*ast.VarDecl)
	if v.Meta().Type.String() != "int" {
		t.Errorf("VarDecl type = %s, want int", v.Meta().Type)
	}
}

func TestVarDeclTypeMismatch(t *testing.T) {
	_, log := checkText(t, `let x: string = 1;`)
	if countContaining(log, "expected type") != 1 {
		t.Errorf("expected one type-mismatch error, got: %v", headlines(log))
	}
}

// Scenario 3: exactly one "unreachable expression" diagnostic, however
// many unreachable siblings follow a never-typed expression in one scope.
func TestUnreachableExpressionReportedOnce(t *testing.T) {
	_, log := checkText(t, `fun f() -> int { return 1; return 2; 3 }`)
	if got := countContaining(log, "unreachable expression"); got != 1 {
		t.Errorf("got %d unreachable-expression diagnostics, want exactly 1: %v", got, headlines(log))
	}
}

// Scenario 4: return-type inference mismatch with a note pointing at the
// first return.
func TestReturnTypeInferenceMismatch(t *testing.T) {
	_, log := checkText(t, `fun f() { return 1; return "a"; }`)
	var found *diag.Message
	for _, m := range log.Messages() {
		if strings.Contains(m.Headline, "expected return type") {
			found = m
		}
	}
	if found == nil {
		t.Fatalf("expected a return-type mismatch diagnostic, got: %v", headlines(log))
	}
	if !strings.Contains(found.Headline, "'int'") || !strings.Contains(found.Headline, "'string'") {
		t.Errorf("headline = %q, want it to mention int and string", found.Headline)
	}
	hasNote := false
	for _, n := range found.Notes {
		if strings.Contains(n.Headline, "inferred from here") {
			hasNote = true
		}
	}
	if !hasNote {
		t.Errorf("expected a 'return type inferred from here' note, got notes: %+v", found.Notes)
	}
}

// Scenario 5: a mutable (var) outer binding is not accessible from inside
// a nested function.
func TestMutableCaptureForbidden(t *testing.T) {
	_, log := checkText(t, `var x = 0; fun g() -> int { x }`)
	if countContaining(log, "not accessible here") != 1 {
		t.Errorf("expected one capture error, got: %v", headlines(log))
	}
}

func TestImmutableCaptureAllowed(t *testing.T) {
	_, log := checkText(t, `let x = 0; fun g() -> int { x }`)
	if log.HasErrors() {
		t.Errorf("capturing a let-bound outer entity should be allowed, got: %v", headlines(log))
	}
}

// Scenario 6: string operator resolution, including the `string * int`
// asymmetric entry and a missing `string - string` operator.
func TestStringOperators(t *testing.T) {
	file, log := checkText(t, `let a = "a" + "b"; let b = "a" * 3;`)
	if log.HasErrors() {
		t.Fatalf("unexpected errors: %+v", log.Messages())
	}
	a := file.Decls[0].(*ast.VarDecl)
	b := file.Decls[1].(*ast.VarDecl)
	if a.Meta().Type.String() != "string" {
		t.Errorf("\"a\"+\"b\" type = %s, want string", a.Meta().Type)
	}
	if b.Meta().Type.String() != "string" {
		t.Errorf("\"a\"*3 type = %s, want string", b.Meta().Type)
	}
}

func TestMissingOperatorReported(t *testing.T) {
	_, log := checkText(t, `let a = "a" - "b";`)
	if countContaining(log, "no operator") != 1 {
		t.Errorf("expected a missing-operator diagnostic, got: %v", headlines(log))
	}
}

func TestSymmetricNeqFallsBackToEq(t *testing.T) {
	file, log := checkText(t, `let a = 1 != 2;`)
	if log.HasErrors() {
		t.Fatalf("unexpected errors: %+v", log.Messages())
	}
	v := file.Decls[0].(*ast.VarDecl)
	if v.Meta().Type.String() != "bool" {
		t.Errorf("1 != 2 type = %s, want bool", v.Meta().Type)
	}
}

func TestCallArgumentCountAndTypeChecked(t *testing.T) {
	_, log := checkText(t, `fun add(a: int, b: int) -> int { return a + b; } let r = add(1, "x");`)
	if countContaining(log, "expected type") != 1 {
		t.Errorf("expected one argument type-mismatch error, got: %v", headlines(log))
	}
}

func TestCallArgumentCountMismatch(t *testing.T) {
	_, log := checkText(t, `fun add(a: int, b: int) -> int { return a + b; } let r = add(1);`)
	if countContaining(log, "argument") != 1 {
		t.Errorf("expected one argument-count error, got: %v", headlines(log))
	}
}

func TestIfElseCommonType(t *testing.T) {
	file, log := checkText(t, `let x = if true { 1 } else { 2 };`)
	if log.HasErrors() {
		t.Fatalf("unexpected errors: %+v", log.Messages())
	}
	v := file.Decls[0].(*ast.VarDecl)
	if v.Meta().Type.String() != "int" {
		t.Errorf("if/else type = %s, want int", v.Meta().Type)
	}
}

func TestIfReturnElseValueUsesNonNeverArm(t *testing.T) {
	file, log := checkText(t, `fun f() -> int { if true { return 1; } else { 2 } }`)
	if log.HasErrors() {
		t.Fatalf("unexpected errors: %+v", log.Messages())
	}
	fn := file.Decls[0].(*ast.FunDecl)
	if fn.Meta().Type.String() != "fun() -> int" {
		t.Errorf("fn type = %s, want fun() -> int", fn.Meta().Type)
	}
}

// TestFunctionTypedVarDeclAgainstAnnotation exercises Convertible with two
// function-shaped types on both sides of an assignment: the declared
// `fun(int) -> int` annotation and `add`'s inferred function type. Function
// carries a slice field (Params), so this path must compare structurally
// rather than via a bare ==.
func TestFunctionTypedVarDeclAgainstAnnotation(t *testing.T) {
	_, log := checkText(t, `fun add(a: int) -> int { return a; } let r: fun(int) -> int = add;`)
	if log.HasErrors() {
		t.Fatalf("unexpected errors: %+v", log.Messages())
	}
}

// TestFunctionTypedVarDeclMismatch checks the mismatching case still reports
// a clean type error instead of panicking.
func TestFunctionTypedVarDeclMismatch(t *testing.T) {
	_, log := checkText(t, `fun add(a: int) -> int { return a; } let r: fun(string) -> int = add;`)
	if countContaining(log, "expected type") != 1 {
		t.Errorf("expected one type-mismatch error, got: %v", headlines(log))
	}
}

func TestMissingElseRequiresVoidThen(t *testing.T) {
	_, log := checkText(t, `fun f() { if true { 1 } }`)
	if countContaining(log, "incompatible types") != 1 {
		t.Errorf("expected one if/else type mismatch (then not void, no else), got: %v", headlines(log))
	}
}

func TestAssignToImmutableRejected(t *testing.T) {
	_, log := checkText(t, `fun f() { let x = 1; x = 2; }`)
	if countContaining(log, "declared with 'let'") != 1 {
		t.Errorf("expected an immutable-assignment error, got: %v", headlines(log))
	}
}

func TestAssignToMutableAllowed(t *testing.T) {
	_, log := checkText(t, `fun f() { var x = 1; x = 2; }`)
	if log.HasErrors() {
		t.Errorf("assigning to a var-bound entity should be allowed, got: %v", headlines(log))
	}
}

func TestReturnOutsideFunctionReported(t *testing.T) {
	_, log := checkText(t, `return 1;`)
	if countContaining(log, "cannot return here") != 1 {
		t.Errorf("expected a 'cannot return here' error, got: %v", headlines(log))
	}
}

func TestUnknownIdentifierReported(t *testing.T) {
	_, log := checkText(t, `let x = y;`)
	if countContaining(log, "unknown identifier") != 1 {
		t.Errorf("expected an unknown-identifier error, got: %v", headlines(log))
	}
}

// TestAliasTypeDeclIsTransparentlyConvertible exercises an alias declared
// via `type Meters = int;`: a value of the underlying type must convert to
// the declared alias type with no error.
func TestAliasTypeDeclIsTransparentlyConvertible(t *testing.T) {
	_, log := checkText(t, `type Meters = int; let m: Meters = 1;`)
	if log.HasErrors() {
		t.Fatalf("alias should accept its underlying type, got: %v", headlines(log))
	}
}

// TestOpaqueTypeDeclRejectsUnderlyingValue exercises an opaque wrapper
// declared via `type UserId(int);`: a bare int must NOT satisfy it, since
// the whole point of the wrapper is that it is a distinct type.
func TestOpaqueTypeDeclRejectsUnderlyingValue(t *testing.T) {
	_, log := checkText(t, `type UserId(int); let id: UserId = 1;`)
	if countContaining(log, "expected type") != 1 {
		t.Errorf("expected a type-mismatch error assigning int to an opaque wrapper, got: %v", headlines(log))
	}
}

func TestDuplicateTypeDeclRejected(t *testing.T) {
	_, log := checkText(t, `type Meters = int; type Meters = float;`)
	if countContaining(log, "already exists") != 1 {
		t.Errorf("expected a redeclaration error, got: %v", headlines(log))
	}
}

func TestRecursiveFunctionCanReferenceItself(t *testing.T) {
	_, log := checkText(t, `fun fact(n: int) -> int { if n == 0 { return 1; } else { return n * fact(n - 1); } }`)
	if log.HasErrors() {
		t.Errorf("recursive call should resolve, got: %v", headlines(log))
	}
}
